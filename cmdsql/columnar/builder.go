package columnar

import "fmt"

// Builder accumulates rows for a schema and emits RecordBatches.
type Builder struct {
	schema  *Schema
	columns []Column
	rows    int
}

// NewBuilder creates a Builder for schema.
func NewBuilder(schema *Schema) *Builder {
	b := &Builder{schema: schema}
	b.reset()
	return b
}

func (b *Builder) reset() {
	b.columns = make([]Column, len(b.schema.Fields))
	for i, f := range b.schema.Fields {
		b.columns[i] = newColumn(f.Type)
	}
	b.rows = 0
}

func newColumn(t DataType) Column {
	switch t {
	case Int64:
		return &Int64Column{vector[int64]{typ: Int64}}
	case Float64:
		return &Float64Column{vector[float64]{typ: Float64}}
	case Boolean:
		return &BooleanColumn{vector[bool]{typ: Boolean}}
	default:
		return &StringColumn{vector[string]{typ: Utf8}}
	}
}

// Rows is the number of rows appended since the last Flush.
func (b *Builder) Rows() int {
	return b.rows
}

// AppendRow appends one row. values must have one entry per field; nil is a
// null. Each non-nil value must already have the Go type of its field.
func (b *Builder) AppendRow(values []interface{}) error {
	if len(values) != len(b.columns) {
		return fmt.Errorf("row has %d values, schema has %d fields", len(values), len(b.columns))
	}
	for i, v := range values {
		if v == nil {
			if !b.schema.Fields[i].Nullable {
				return fmt.Errorf("field %q is not nullable", b.schema.Fields[i].Name)
			}
		} else if err := checkType(b.schema.Fields[i], v); err != nil {
			return err
		}
	}
	for i, v := range values {
		appendTo(b.columns[i], v)
	}
	b.rows++
	return nil
}

func checkType(f Field, v interface{}) error {
	ok := false
	switch f.Type {
	case Utf8:
		_, ok = v.(string)
	case Int64:
		_, ok = v.(int64)
	case Float64:
		_, ok = v.(float64)
	case Boolean:
		_, ok = v.(bool)
	}
	if !ok {
		return fmt.Errorf("field %q expects %s, got %T", f.Name, f.Type, v)
	}
	return nil
}

func appendTo(c Column, v interface{}) {
	switch col := c.(type) {
	case *StringColumn:
		if v == nil {
			col.appendNull()
		} else {
			col.appendValue(v.(string))
		}
	case *Int64Column:
		if v == nil {
			col.appendNull()
		} else {
			col.appendValue(v.(int64))
		}
	case *Float64Column:
		if v == nil {
			col.appendNull()
		} else {
			col.appendValue(v.(float64))
		}
	case *BooleanColumn:
		if v == nil {
			col.appendNull()
		} else {
			col.appendValue(v.(bool))
		}
	}
}

// Flush returns the accumulated rows as a batch and starts a new one.
func (b *Builder) Flush() *RecordBatch {
	batch := &RecordBatch{schema: b.schema, columns: b.columns, rows: b.rows}
	b.reset()
	return batch
}
