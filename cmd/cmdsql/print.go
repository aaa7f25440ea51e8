package main

import (
	"fmt"
	"io"
	"strconv"
	"strings"
	"text/tabwriter"

	"github.com/steelcutops/cmdsql/cmdsql/catalog"
	"github.com/steelcutops/cmdsql/cmdsql/engine"
)

func formatValue(v interface{}) string {
	switch x := v.(type) {
	case nil:
		return "NULL"
	case string:
		return x
	case float64:
		return strconv.FormatFloat(x, 'f', -1, 64)
	default:
		return fmt.Sprint(x)
	}
}

func printResult(out io.Writer, res *engine.Result) error {
	w := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)

	if len(res.Columns) > 0 {
		fmt.Fprintln(w, strings.Join(res.Columns, "\t"))
	}
	cells := make([]string, len(res.Columns))
	for _, row := range res.Rows {
		for i, v := range row {
			cells[i] = formatValue(v)
		}
		fmt.Fprintln(w, strings.Join(cells, "\t"))
	}
	if err := w.Flush(); err != nil {
		return err
	}

	noun := "rows"
	if len(res.Rows) == 1 {
		noun = "row"
	}
	_, err := fmt.Fprintf(out, "(%d %s)\n", len(res.Rows), noun)
	return err
}

func printTables(out io.Writer, registry *catalog.Registry) error {
	w := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, "TABLE\tCOMMAND\tPARSER\tSHAPE\tCOLUMNS")
	for _, name := range registry.Names() {
		spec, err := registry.Lookup(name)
		if err != nil {
			return err
		}
		fmt.Fprintf(w, "%s\t%s\t%s\t%s\t%d\n", spec.Name, strings.Join(spec.Argv, " "), spec.ParserID, spec.Shape, spec.Schema.NumFields())
	}
	return w.Flush()
}

func printSchema(out io.Writer, spec catalog.CommandSpec) error {
	w := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, "COLUMN\tTYPE\tNULLABLE")
	for _, f := range spec.Schema.Fields {
		fmt.Fprintf(w, "%s\t%s\t%t\n", f.Name, f.Type, f.Nullable)
	}
	return w.Flush()
}
