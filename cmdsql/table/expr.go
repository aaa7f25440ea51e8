// Package table binds table-function calls to command specs and scans them
// into columnar batches.
package table

import (
	"strconv"
	"strings"
)

// Expr is one call-site argument of a table function.
type Expr interface {
	String() string
	expr()
}

// Literal is a constant argument. Numbers and booleans keep their SQL text.
type Literal struct {
	Value string
}

// Call is a function application such as host('db1').
type Call struct {
	Name string
	Args []Expr
}

// Raw is any other expression, kept as written.
type Raw struct {
	Text string
}

func (Literal) expr() {}
func (Call) expr()    {}
func (Raw) expr()     {}

func (l Literal) String() string { return strconv.Quote(l.Value) }

func (c Call) String() string {
	args := make([]string, len(c.Args))
	for i, a := range c.Args {
		args[i] = a.String()
	}
	return c.Name + "(" + strings.Join(args, ", ") + ")"
}

func (r Raw) String() string { return r.Text }
