// Package catalog maps logical table names to the command, output parser and
// schema that back them.
package catalog

import (
	"fmt"
	"sort"
	"strings"

	"github.com/steelcutops/cmdsql/cmdsql/columnar"
	"github.com/steelcutops/cmdsql/common"
)

// Shape says whether a parser emits one JSON object or an array of them.
type Shape int

const (
	Single Shape = iota
	Array
)

func (s Shape) String() string {
	if s == Array {
		return "array"
	}
	return "single"
}

// ParseShape accepts "single" or "array".
func ParseShape(s string) (Shape, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "single", "object", "":
		return Single, nil
	case "array":
		return Array, nil
	default:
		return Single, fmt.Errorf("unknown result shape %q", s)
	}
}

// CommandSpec is the immutable descriptor of one logical table.
type CommandSpec struct {
	Name     string
	Argv     []string
	ParserID string
	Schema   *columnar.Schema
	Shape    Shape
}

// Registry is the read-only set of known tables.
type Registry struct {
	specs map[string]CommandSpec
}

// NewRegistry builds a registry. Duplicate or empty names are rejected.
func NewRegistry(specs ...CommandSpec) (*Registry, error) {
	r := &Registry{specs: make(map[string]CommandSpec, len(specs))}
	for _, s := range specs {
		if err := validate(s); err != nil {
			return nil, err
		}
		key := strings.ToLower(s.Name)
		if _, exists := r.specs[key]; exists {
			return nil, fmt.Errorf("table %q defined twice", s.Name)
		}
		r.specs[key] = s
	}
	return r, nil
}

func validate(s CommandSpec) error {
	if s.Name == "" {
		return fmt.Errorf("table name is empty")
	}
	if len(s.Argv) == 0 || s.Argv[0] == "" {
		return fmt.Errorf("table %q has no command", s.Name)
	}
	if s.ParserID == "" {
		return fmt.Errorf("table %q has no parser", s.Name)
	}
	if s.Schema == nil || len(s.Schema.Fields) == 0 {
		return fmt.Errorf("table %q has no columns", s.Name)
	}
	seen := map[string]bool{}
	for _, f := range s.Schema.Fields {
		if seen[f.Name] {
			return fmt.Errorf("table %q declares column %q twice", s.Name, f.Name)
		}
		seen[f.Name] = true
	}
	return nil
}

// Lookup returns the spec for name or an UnknownTable error.
func (r *Registry) Lookup(name string) (CommandSpec, error) {
	s, ok := r.specs[strings.ToLower(name)]
	if !ok {
		return CommandSpec{}, &common.ScanError{Kind: common.UnknownTable, Table: name, Err: fmt.Errorf("no command is registered for table %q", name)}
	}
	return s, nil
}

// Has reports whether name is a registered table.
func (r *Registry) Has(name string) bool {
	_, ok := r.specs[strings.ToLower(name)]
	return ok
}

// Names lists the registered tables in sorted order.
func (r *Registry) Names() []string {
	names := make([]string, 0, len(r.specs))
	for n := range r.specs {
		names = append(names, n)
	}
	sort.Strings(names)
	return names
}
