// Package columnar holds the typed, column-oriented record sets produced by a
// table scan.
package columnar

import (
	"fmt"
	"strings"
)

// DataType is the semantic type of a column.
type DataType int

const (
	Utf8 DataType = iota
	Int64
	Float64
	Boolean
)

func (t DataType) String() string {
	switch t {
	case Utf8:
		return "utf8"
	case Int64:
		return "int64"
	case Float64:
		return "float64"
	case Boolean:
		return "boolean"
	default:
		return fmt.Sprintf("DataType(%d)", int(t))
	}
}

// ParseDataType accepts the names printed by String.
func ParseDataType(s string) (DataType, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "utf8", "string", "text":
		return Utf8, nil
	case "int64", "int", "integer":
		return Int64, nil
	case "float64", "float", "double":
		return Float64, nil
	case "boolean", "bool":
		return Boolean, nil
	default:
		return 0, fmt.Errorf("unknown column type %q", s)
	}
}

// Field describes one column of a Schema.
type Field struct {
	Name     string
	Type     DataType
	Nullable bool
}

// Schema is an ordered list of fields.
type Schema struct {
	Fields []Field
}

// NewSchema builds a Schema from fields.
func NewSchema(fields ...Field) *Schema {
	return &Schema{Fields: fields}
}

func (s *Schema) NumFields() int {
	return len(s.Fields)
}

// FieldIndex returns the position of the named field or -1.
func (s *Schema) FieldIndex(name string) int {
	for i, f := range s.Fields {
		if f.Name == name {
			return i
		}
	}
	return -1
}

// Names lists the field names in order.
func (s *Schema) Names() []string {
	names := make([]string, len(s.Fields))
	for i, f := range s.Fields {
		names[i] = f.Name
	}
	return names
}

// Project returns a schema restricted to the given field positions.
func (s *Schema) Project(indices []int) (*Schema, error) {
	fields := make([]Field, 0, len(indices))
	for _, i := range indices {
		if i < 0 || i >= len(s.Fields) {
			return nil, fmt.Errorf("projection index %d out of range for %d fields", i, len(s.Fields))
		}
		fields = append(fields, s.Fields[i])
	}
	return &Schema{Fields: fields}, nil
}

// Prepend returns a copy of s with f as its first field.
func (s *Schema) Prepend(f Field) *Schema {
	fields := make([]Field, 0, len(s.Fields)+1)
	fields = append(fields, f)
	fields = append(fields, s.Fields...)
	return &Schema{Fields: fields}
}
