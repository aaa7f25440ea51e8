package table

import (
	"fmt"
	"strings"

	"github.com/steelcutops/cmdsql/cmdsql/catalog"
	"github.com/steelcutops/cmdsql/cmdsql/columnar"
	"github.com/steelcutops/cmdsql/cmdsql/commandmanager"
)

const (
	// HostSelector runs the scan on one named host.
	HostSelector = "host"
	// GroupSelector runs the scan on every host of an inventory group.
	GroupSelector = "hostgroup"
	// HostColumn is prepended to the schema of group scans.
	HostColumn = "host"
)

// BindOptions controls how arguments are reduced.
type BindOptions struct {
	// Strict rejects arguments that are not literals instead of turning
	// them into empty strings.
	Strict bool
}

// TableHandle is a bound table-function call. It holds no state between
// scans and may be scanned any number of times.
type TableHandle struct {
	Spec catalog.CommandSpec
	// Host is the SSH alias to run on; empty means local.
	Host string
	// Group, when set, names an inventory group and overrides Host.
	Group string
	// Args are appended to Spec.Argv.
	Args []string
}

// IsLocal reports whether the handle targets the local machine.
func (h *TableHandle) IsLocal() bool {
	return h.Group == "" && commandmanager.IsLocal(h.Host)
}

// Argv returns the base argv followed by the call-site arguments.
func (h *TableHandle) Argv() []string {
	argv := make([]string, 0, len(h.Spec.Argv)+len(h.Args))
	argv = append(argv, h.Spec.Argv...)
	return append(argv, h.Args...)
}

// Schema is the spec's schema, with a leading host column for group scans.
func (h *TableHandle) Schema() *columnar.Schema {
	if h.Group == "" {
		return h.Spec.Schema
	}
	return h.Spec.Schema.Prepend(columnar.Field{Name: HostColumn, Type: columnar.Utf8})
}

// Bind turns call-site arguments into a TableHandle. A host or hostgroup
// call in first position selects the target; every other argument becomes
// an extra argv token.
func Bind(spec catalog.CommandSpec, args []Expr, opts BindOptions) (*TableHandle, error) {
	h := &TableHandle{Spec: spec}

	if len(args) > 0 {
		if call, ok := args[0].(Call); ok {
			switch strings.ToLower(call.Name) {
			case HostSelector:
				host, err := selectorArg(call, opts)
				if err != nil {
					return nil, err
				}
				h.Host = host
				args = args[1:]
			case GroupSelector:
				group, err := selectorArg(call, opts)
				if err != nil {
					return nil, err
				}
				if group == "" {
					return nil, fmt.Errorf("%s: hostgroup() needs a group name", spec.Name)
				}
				if spec.Schema.FieldIndex(HostColumn) >= 0 {
					return nil, fmt.Errorf("%s: already has a %q column and cannot be scanned by group", spec.Name, HostColumn)
				}
				h.Group = group
				args = args[1:]
			}
		}
	}

	h.Args = make([]string, 0, len(args))
	for i, a := range args {
		lit, ok := a.(Literal)
		if !ok {
			if opts.Strict {
				return nil, fmt.Errorf("%s: argument %d is not a literal: %s", spec.Name, i+1, a)
			}
			h.Args = append(h.Args, "")
			continue
		}
		h.Args = append(h.Args, lit.Value)
	}
	return h, nil
}

func selectorArg(call Call, opts BindOptions) (string, error) {
	if len(call.Args) == 1 {
		if lit, ok := call.Args[0].(Literal); ok {
			return lit.Value, nil
		}
	}
	if opts.Strict {
		return "", fmt.Errorf("%s() takes exactly one literal argument, got %s", call.Name, call)
	}
	return "", nil
}
