package catalog

import (
	"fmt"
	"strings"

	"github.com/steelcutops/cmdsql/cmdsql/columnar"
)

// TableDef is the YAML form of a CommandSpec.
type TableDef struct {
	Name    string      `yaml:"name"`
	Argv    []string    `yaml:"argv"`
	Parser  string      `yaml:"parser"`
	Shape   string      `yaml:"shape"`
	Columns []ColumnDef `yaml:"columns"`
}

// ColumnDef is the YAML form of a schema field. Columns are nullable unless
// nullable is set to false explicitly.
type ColumnDef struct {
	Name     string `yaml:"name"`
	Type     string `yaml:"type"`
	Nullable *bool  `yaml:"nullable,omitempty"`
}

// Spec converts the definition into a CommandSpec.
func (d TableDef) Spec() (CommandSpec, error) {
	shape, err := ParseShape(d.Shape)
	if err != nil {
		return CommandSpec{}, fmt.Errorf("table %q: %w", d.Name, err)
	}
	fields := make([]columnar.Field, 0, len(d.Columns))
	for _, c := range d.Columns {
		typ, err := columnar.ParseDataType(c.Type)
		if err != nil {
			return CommandSpec{}, fmt.Errorf("table %q column %q: %w", d.Name, c.Name, err)
		}
		nullable := true
		if c.Nullable != nil {
			nullable = *c.Nullable
		}
		fields = append(fields, columnar.Field{Name: c.Name, Type: typ, Nullable: nullable})
	}
	parser := d.Parser
	if parser == "" {
		parser = strings.ToLower(d.Name)
	}
	return CommandSpec{
		Name:     strings.ToLower(d.Name),
		Argv:     append([]string(nil), d.Argv...),
		ParserID: parser,
		Schema:   columnar.NewSchema(fields...),
		Shape:    shape,
	}, nil
}

// WithCustom returns a registry holding the builtin tables plus defs.
// A custom table may not reuse a builtin name.
func WithCustom(defs []TableDef) (*Registry, error) {
	specs := Builtin()
	for _, d := range defs {
		s, err := d.Spec()
		if err != nil {
			return nil, err
		}
		specs = append(specs, s)
	}
	return NewRegistry(specs...)
}
