package columnar

// Column is a typed vector of nullable values.
type Column interface {
	DataType() DataType
	Len() int
	IsNull(i int) bool
	// Value returns the Go value at i (string, int64, float64 or bool), or nil.
	Value(i int) interface{}
}

type vector[T any] struct {
	typ    DataType
	values []T
	valid  []bool
}

func (v *vector[T]) DataType() DataType { return v.typ }

func (v *vector[T]) Len() int { return len(v.values) }

func (v *vector[T]) IsNull(i int) bool { return !v.valid[i] }

func (v *vector[T]) Value(i int) interface{} {
	if !v.valid[i] {
		return nil
	}
	return v.values[i]
}

func (v *vector[T]) appendValue(x T) {
	v.values = append(v.values, x)
	v.valid = append(v.valid, true)
}

func (v *vector[T]) appendNull() {
	var zero T
	v.values = append(v.values, zero)
	v.valid = append(v.valid, false)
}

type StringColumn struct{ vector[string] }

type Int64Column struct{ vector[int64] }

type Float64Column struct{ vector[float64] }

type BooleanColumn struct{ vector[bool] }

func (c *StringColumn) At(i int) string { return c.values[i] }

func (c *Int64Column) At(i int) int64 { return c.values[i] }

func (c *Float64Column) At(i int) float64 { return c.values[i] }

func (c *BooleanColumn) At(i int) bool { return c.values[i] }

// NewStringColumn builds a column from values; a nil entry is a null.
func NewStringColumn(values ...*string) *StringColumn {
	c := &StringColumn{vector[string]{typ: Utf8}}
	for _, v := range values {
		if v == nil {
			c.appendNull()
		} else {
			c.appendValue(*v)
		}
	}
	return c
}

// ConstStringColumn repeats s n times.
func ConstStringColumn(s string, n int) *StringColumn {
	c := &StringColumn{vector[string]{typ: Utf8}}
	for i := 0; i < n; i++ {
		c.appendValue(s)
	}
	return c
}
