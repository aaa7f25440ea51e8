// Package engine runs SQL over table-function scans. Every referenced
// table is scanned, loaded into a SQLite temporary table and the rewritten
// query is executed against it.
package engine

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"sync"

	_ "modernc.org/sqlite"

	"github.com/steelcutops/cmdsql/cmdsql/catalog"
	"github.com/steelcutops/cmdsql/cmdsql/columnar"
	"github.com/steelcutops/cmdsql/cmdsql/table"
	"github.com/steelcutops/cmdsql/cmdsql/tracer"
	"github.com/steelcutops/cmdsql/logger"
)

const tempPrefix = "cmdsql_scan_"

// Scanner produces the batches for one bound table.
type Scanner interface {
	Scan(ctx context.Context, h *table.TableHandle, projection []int, limit int) ([]*columnar.RecordBatch, error)
}

// Result is a fully materialized query result.
type Result struct {
	Columns []string
	Rows    [][]interface{}
}

type Engine struct {
	Registry *catalog.Registry
	Scanner  Scanner
	Bind     table.BindOptions
	Logger   logger.Logger

	db   *sql.DB
	once sync.Once
}

// New opens an in-memory SQLite database for query execution.
func New(registry *catalog.Registry, scanner Scanner, opts table.BindOptions, log logger.Logger) (*Engine, error) {
	db, err := sql.Open("sqlite", ":memory:")
	if err != nil {
		return nil, fmt.Errorf("open query engine: %w", err)
	}
	if log == nil {
		log = logger.New()
	}
	return &Engine{Registry: registry, Scanner: scanner, Bind: opts, Logger: log, db: db}, nil
}

// Close releases the database.
func (e *Engine) Close() error {
	var err error
	e.once.Do(func() { err = e.db.Close() })
	return err
}

// Query scans every table the statement references and runs it. Each call
// re-executes its command; nothing is cached between queries.
func (e *Engine) Query(ctx context.Context, query string) (res *Result, err error) {
	ctx, span := tracer.StartSpan(ctx, "engine.query")
	defer func() { tracer.End(span, err) }()

	rewritten, calls, err := Rewrite(query, e.Registry.Has, tempPrefix)
	if err != nil {
		return nil, err
	}
	span.SetAttributes(tracer.Int("query.tables", len(calls)))
	e.Logger.Debug("Rewrote query", "sql", rewritten, "tables", len(calls))

	// Temp tables live on a single connection.
	conn, err := e.db.Conn(ctx)
	if err != nil {
		return nil, fmt.Errorf("engine: acquire connection: %w", err)
	}
	defer conn.Close()

	var loaded []string
	defer func() {
		for _, name := range loaded {
			if _, err := conn.ExecContext(context.Background(), "DROP TABLE IF EXISTS temp."+quoteIdent(name)); err != nil {
				e.Logger.Warn("Failed to drop scan table", "table", name, "error", err)
			}
		}
	}()

	for _, call := range calls {
		h, err := e.bind(call)
		if err != nil {
			return nil, err
		}
		batches, err := e.Scanner.Scan(ctx, h, nil, 0)
		if err != nil {
			return nil, fmt.Errorf("engine: scan %s: %w", call.Name, err)
		}
		loaded = append(loaded, call.Temp)
		if err := load(ctx, conn, call.Temp, h.Schema(), batches); err != nil {
			return nil, fmt.Errorf("engine: load %s: %w", call.Name, err)
		}
	}

	res, err = run(ctx, conn, rewritten)
	if err == nil {
		span.SetAttributes(tracer.Int("query.rows", len(res.Rows)))
	}
	return res, err
}

func (e *Engine) bind(call TableCall) (*table.TableHandle, error) {
	spec, err := e.Registry.Lookup(call.Name)
	if err != nil {
		return nil, err
	}
	h, err := table.Bind(spec, call.Args, e.Bind)
	if err != nil {
		return nil, fmt.Errorf("engine: bind %s: %w", call.Name, err)
	}
	return h, nil
}

func sqlType(t columnar.DataType) string {
	switch t {
	case columnar.Int64, columnar.Boolean:
		return "INTEGER"
	case columnar.Float64:
		return "REAL"
	default:
		return "TEXT"
	}
}

func load(ctx context.Context, conn *sql.Conn, name string, schema *columnar.Schema, batches []*columnar.RecordBatch) error {
	cols := make([]string, len(schema.Fields))
	marks := make([]string, len(schema.Fields))
	for i, f := range schema.Fields {
		cols[i] = quoteIdent(f.Name) + " " + sqlType(f.Type)
		marks[i] = "?"
	}

	create := fmt.Sprintf("CREATE TEMP TABLE %s (%s)", quoteIdent(name), strings.Join(cols, ", "))
	if _, err := conn.ExecContext(ctx, create); err != nil {
		return err
	}

	tx, err := conn.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	stmt, err := tx.PrepareContext(ctx, fmt.Sprintf("INSERT INTO temp.%s VALUES (%s)", quoteIdent(name), strings.Join(marks, ", ")))
	if err != nil {
		return err
	}
	defer stmt.Close()

	for _, b := range batches {
		for r := 0; r < b.NumRows(); r++ {
			row := b.Row(r)
			for i, v := range row {
				if bv, ok := v.(bool); ok {
					row[i] = boolToInt(bv)
				}
			}
			if _, err := stmt.ExecContext(ctx, row...); err != nil {
				return err
			}
		}
	}
	return tx.Commit()
}

func boolToInt(b bool) int64 {
	if b {
		return 1
	}
	return 0
}

func run(ctx context.Context, conn *sql.Conn, query string) (*Result, error) {
	rows, err := conn.QueryContext(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("engine: %w", err)
	}
	defer rows.Close()

	columns, err := rows.Columns()
	if err != nil {
		return nil, fmt.Errorf("engine: %w", err)
	}

	res := &Result{Columns: columns}
	for rows.Next() {
		values := make([]interface{}, len(columns))
		ptrs := make([]interface{}, len(columns))
		for i := range values {
			ptrs[i] = &values[i]
		}
		if err := rows.Scan(ptrs...); err != nil {
			return nil, fmt.Errorf("engine: %w", err)
		}
		for i, v := range values {
			if b, ok := v.([]byte); ok {
				values[i] = string(b)
			}
		}
		res.Rows = append(res.Rows, values)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("engine: %w", err)
	}
	return res, nil
}
