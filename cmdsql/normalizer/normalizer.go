// Package normalizer turns parser output into newline-delimited JSON records.
package normalizer

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os/exec"
	"strings"

	"github.com/steelcutops/cmdsql/cmdsql/catalog"
	"github.com/steelcutops/cmdsql/common"
)

// Flattener rewrites one JSON array document as one JSON object per line.
type Flattener interface {
	Flatten(ctx context.Context, doc string) (string, error)
}

// Normalizer applies a Flattener to Array shaped output and passes Single
// shaped output through untouched.
type Normalizer struct {
	Flattener Flattener
}

// New returns a Normalizer using f, or the in-process flattener if f is nil.
func New(f Flattener) *Normalizer {
	if f == nil {
		f = NativeFlattener{}
	}
	return &Normalizer{Flattener: f}
}

// Normalize returns the record stream for output.
func (n *Normalizer) Normalize(ctx context.Context, output string, shape catalog.Shape) (string, error) {
	if shape != catalog.Array {
		return output, nil
	}
	f := n.Flattener
	if f == nil {
		f = NativeFlattener{}
	}
	return f.Flatten(ctx, output)
}

// NativeFlattener streams the array with encoding/json, preserving element
// order and rejecting elements that are not objects.
type NativeFlattener struct{}

func (NativeFlattener) Flatten(_ context.Context, doc string) (string, error) {
	if strings.TrimSpace(doc) == "" {
		return "", nil
	}

	dec := json.NewDecoder(strings.NewReader(doc))
	tok, err := dec.Token()
	if err != nil {
		return "", common.Errorf(common.ParseFailure, "read array start: %w", err)
	}
	if d, ok := tok.(json.Delim); !ok || d != '[' {
		return "", common.Errorf(common.ParseFailure, "expected a JSON array, got %v", tok)
	}

	var out strings.Builder
	for i := 0; dec.More(); i++ {
		var elem json.RawMessage
		if err := dec.Decode(&elem); err != nil {
			return "", common.Errorf(common.ParseFailure, "element %d: %w", i, err)
		}
		trimmed := bytes.TrimSpace(elem)
		if len(trimmed) == 0 || trimmed[0] != '{' {
			return "", common.Errorf(common.ParseFailure, "element %d is not a JSON object", i)
		}
		var compact bytes.Buffer
		if err := json.Compact(&compact, trimmed); err != nil {
			return "", common.Errorf(common.ParseFailure, "element %d: %w", i, err)
		}
		out.Write(compact.Bytes())
		out.WriteByte('\n')
	}

	if _, err := dec.Token(); err != nil {
		return "", common.Errorf(common.ParseFailure, "read array end: %w", err)
	}
	if _, err := dec.Token(); !errors.Is(err, io.EOF) {
		return "", common.Errorf(common.ParseFailure, "unexpected data after JSON array")
	}
	return out.String(), nil
}

// ExecFlattener delegates to an external tool, `jq -c .[]` by default.
type ExecFlattener struct {
	Binary string
	Args   []string
}

// NewJQFlattener returns an ExecFlattener invoking jq.
func NewJQFlattener(binary string) *ExecFlattener {
	if binary == "" {
		binary = "jq"
	}
	return &ExecFlattener{Binary: binary, Args: []string{"-c", ".[]"}}
}

func (f *ExecFlattener) Flatten(ctx context.Context, doc string) (string, error) {
	cmd := exec.CommandContext(ctx, f.Binary, f.Args...)
	var stdout, stderr bytes.Buffer
	cmd.Stdin = strings.NewReader(doc)
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	if err := cmd.Start(); err != nil {
		return "", common.Errorf(common.SpawnFailure, "start %s: %w", f.Binary, err)
	}
	if err := cmd.Wait(); err != nil {
		var exitErr *exec.ExitError
		if errors.As(err, &exitErr) {
			return "", common.Errorf(common.ParseFailure, "%s: %s", f.Binary, strings.TrimSpace(stderr.String()))
		}
		return "", common.NewError(common.StreamFailure, fmt.Errorf("wait for %s: %w", f.Binary, err))
	}
	return stdout.String(), nil
}
