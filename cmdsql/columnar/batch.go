package columnar

import "fmt"

// RecordBatch is a set of equal-length columns matching a schema.
type RecordBatch struct {
	schema  *Schema
	columns []Column
	rows    int
}

// NewRecordBatch assembles a batch from prebuilt columns.
func NewRecordBatch(schema *Schema, columns []Column) (*RecordBatch, error) {
	if len(columns) != len(schema.Fields) {
		return nil, fmt.Errorf("batch has %d columns, schema has %d fields", len(columns), len(schema.Fields))
	}
	rows := 0
	for i, c := range columns {
		if c.DataType() != schema.Fields[i].Type {
			return nil, fmt.Errorf("column %q is %s, schema declares %s", schema.Fields[i].Name, c.DataType(), schema.Fields[i].Type)
		}
		if i == 0 {
			rows = c.Len()
		} else if c.Len() != rows {
			return nil, fmt.Errorf("column %q has %d rows, expected %d", schema.Fields[i].Name, c.Len(), rows)
		}
	}
	return &RecordBatch{schema: schema, columns: columns, rows: rows}, nil
}

func (b *RecordBatch) Schema() *Schema { return b.schema }

func (b *RecordBatch) NumRows() int { return b.rows }

func (b *RecordBatch) NumCols() int { return len(b.columns) }

func (b *RecordBatch) Column(i int) Column { return b.columns[i] }

// Row returns the values of row i in schema order.
func (b *RecordBatch) Row(i int) []interface{} {
	row := make([]interface{}, len(b.columns))
	for j, c := range b.columns {
		row[j] = c.Value(i)
	}
	return row
}

// Project returns a batch sharing the selected columns.
func (b *RecordBatch) Project(indices []int) (*RecordBatch, error) {
	schema, err := b.schema.Project(indices)
	if err != nil {
		return nil, err
	}
	columns := make([]Column, len(indices))
	for j, i := range indices {
		columns[j] = b.columns[i]
	}
	return &RecordBatch{schema: schema, columns: columns, rows: b.rows}, nil
}

// TotalRows sums the rows of all batches.
func TotalRows(batches []*RecordBatch) int {
	n := 0
	for _, b := range batches {
		n += b.NumRows()
	}
	return n
}
