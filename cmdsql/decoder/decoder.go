// Package decoder reads a stream of JSON records into columnar batches.
package decoder

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"math"
	"strconv"
	"strings"

	"github.com/steelcutops/cmdsql/cmdsql/columnar"
	"github.com/steelcutops/cmdsql/common"
)

// DefaultBatchSize is the number of rows per emitted batch.
const DefaultBatchSize = 1024

// Decoder coerces JSON records into the types declared by a schema.
type Decoder struct {
	Schema    *columnar.Schema
	BatchSize int
}

// New returns a Decoder for schema.
func New(schema *columnar.Schema, batchSize int) *Decoder {
	if batchSize <= 0 {
		batchSize = DefaultBatchSize
	}
	return &Decoder{Schema: schema, BatchSize: batchSize}
}

// Decode reads every record from r. Records may be separated by newlines or
// simply concatenated. Any malformed record or failed coercion fails the
// whole decode. An empty stream yields a single zero-row batch.
func (d *Decoder) Decode(r io.Reader) ([]*columnar.RecordBatch, error) {
	batchSize := d.BatchSize
	if batchSize <= 0 {
		batchSize = DefaultBatchSize
	}

	dec := json.NewDecoder(r)
	dec.UseNumber()

	builder := columnar.NewBuilder(d.Schema)
	var batches []*columnar.RecordBatch
	row := make([]interface{}, len(d.Schema.Fields))

	for n := 0; ; n++ {
		var raw json.RawMessage
		err := dec.Decode(&raw)
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return nil, common.Errorf(common.ParseFailure, "record %d: %w", n, err)
		}

		rec, err := decodeObject(raw)
		if err != nil {
			return nil, common.Errorf(common.ParseFailure, "record %d: %w", n, err)
		}

		for i, f := range d.Schema.Fields {
			v, err := coerce(f, rec[f.Name])
			if err != nil {
				return nil, common.Errorf(common.SchemaMismatch, "record %d: %w", n, err)
			}
			row[i] = v
		}
		if err := builder.AppendRow(row); err != nil {
			return nil, common.Errorf(common.SchemaMismatch, "record %d: %w", n, err)
		}

		if builder.Rows() >= batchSize {
			batches = append(batches, builder.Flush())
		}
	}

	if builder.Rows() > 0 || len(batches) == 0 {
		batches = append(batches, builder.Flush())
	}
	return batches, nil
}

// DecodeString is Decode over an in-memory stream.
func (d *Decoder) DecodeString(s string) ([]*columnar.RecordBatch, error) {
	return d.Decode(strings.NewReader(s))
}

func decodeObject(raw json.RawMessage) (map[string]interface{}, error) {
	dec := json.NewDecoder(strings.NewReader(string(raw)))
	dec.UseNumber()
	var v interface{}
	if err := dec.Decode(&v); err != nil {
		return nil, err
	}
	obj, ok := v.(map[string]interface{})
	if !ok {
		return nil, fmt.Errorf("expected a JSON object, got %s", kind(v))
	}
	return obj, nil
}

// coerce converts one JSON value to the Go type of f. Absent keys and JSON
// null both mean null.
func coerce(f columnar.Field, v interface{}) (interface{}, error) {
	if v == nil {
		if !f.Nullable {
			return nil, fmt.Errorf("field %q is null but not nullable", f.Name)
		}
		return nil, nil
	}

	switch f.Type {
	case columnar.Utf8:
		return toString(f, v)
	case columnar.Int64:
		return toInt64(f, v)
	case columnar.Float64:
		return toFloat64(f, v)
	case columnar.Boolean:
		return toBool(f, v)
	}
	return nil, fmt.Errorf("field %q has unsupported type %s", f.Name, f.Type)
}

func toString(f columnar.Field, v interface{}) (interface{}, error) {
	switch x := v.(type) {
	case string:
		return x, nil
	case json.Number:
		return x.String(), nil
	case bool:
		return strconv.FormatBool(x), nil
	default:
		// Nested arrays and objects are kept as compact JSON text.
		b, err := json.Marshal(x)
		if err != nil {
			return nil, fmt.Errorf("field %q: %w", f.Name, err)
		}
		return string(b), nil
	}
}

func toInt64(f columnar.Field, v interface{}) (interface{}, error) {
	var s string
	switch x := v.(type) {
	case json.Number:
		s = x.String()
	case string:
		s = strings.TrimSpace(x)
	default:
		return nil, mismatch(f, v)
	}

	if i, err := strconv.ParseInt(s, 10, 64); err == nil {
		return i, nil
	}
	fl, err := strconv.ParseFloat(s, 64)
	if err != nil || fl != math.Trunc(fl) || fl >= math.MaxInt64 || fl < math.MinInt64 {
		return nil, mismatch(f, v)
	}
	return int64(fl), nil
}

func toFloat64(f columnar.Field, v interface{}) (interface{}, error) {
	var s string
	switch x := v.(type) {
	case json.Number:
		s = x.String()
	case string:
		s = strings.TrimSpace(x)
	default:
		return nil, mismatch(f, v)
	}
	fl, err := strconv.ParseFloat(s, 64)
	if err != nil {
		return nil, mismatch(f, v)
	}
	return fl, nil
}

func toBool(f columnar.Field, v interface{}) (interface{}, error) {
	switch x := v.(type) {
	case bool:
		return x, nil
	case string:
		b, err := strconv.ParseBool(strings.TrimSpace(x))
		if err != nil {
			return nil, mismatch(f, v)
		}
		return b, nil
	default:
		return nil, mismatch(f, v)
	}
}

func mismatch(f columnar.Field, v interface{}) error {
	return fmt.Errorf("field %q: cannot use %s %v as %s", f.Name, kind(v), v, f.Type)
}

func kind(v interface{}) string {
	switch v.(type) {
	case nil:
		return "null"
	case string:
		return "string"
	case json.Number:
		return "number"
	case bool:
		return "boolean"
	case []interface{}:
		return "array"
	case map[string]interface{}:
		return "object"
	default:
		return fmt.Sprintf("%T", v)
	}
}
