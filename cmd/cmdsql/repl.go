package main

import (
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/ergochat/readline"
	"github.com/spf13/cobra"
)

var replCmd = &cobra.Command{
	Use:   "repl",
	Short: "Start an interactive SQL prompt",
	Long: `Start an interactive SQL prompt. Each line is run as one statement.

Type "tables" to list tables, "describe <table>" for a table's columns and
"exit" or "\q" to leave. History is kept in the configured history file.`,
	Args: cobra.NoArgs,
	RunE: runRepl,
}

func init() {
	rootCmd.AddCommand(replCmd)
}

func runRepl(cmd *cobra.Command, args []string) error {
	a, err := newApp(&rootFlags)
	if err != nil {
		return err
	}
	defer a.Close()

	if a.cfg.HistoryFile != "" {
		if err := os.MkdirAll(filepath.Dir(a.cfg.HistoryFile), 0o700); err != nil {
			return fmt.Errorf("create history directory: %w", err)
		}
	}

	rl, err := readline.NewFromConfig(&readline.Config{
		Prompt:          "cmdsql> ",
		HistoryFile:     a.cfg.HistoryFile,
		InterruptPrompt: "^C",
		EOFPrompt:       "exit",
	})
	if err != nil {
		return fmt.Errorf("start line editor: %w", err)
	}
	defer rl.Close()

	out := cmd.OutOrStdout()
	for {
		line, err := rl.ReadLine()
		if errors.Is(err, readline.ErrInterrupt) {
			continue
		}
		if errors.Is(err, io.EOF) {
			return nil
		}
		if err != nil {
			return err
		}

		if done := a.evalLine(cmd, out, line); done {
			return nil
		}
	}
}

// evalLine runs one REPL line and reports whether the session should end.
// Query errors are printed and the session continues.
func (a *app) evalLine(cmd *cobra.Command, out io.Writer, line string) bool {
	line = strings.TrimSpace(strings.TrimSuffix(strings.TrimSpace(line), ";"))
	fields := strings.Fields(line)
	if len(fields) == 0 {
		return false
	}

	var err error
	switch strings.ToLower(fields[0]) {
	case "exit", "quit", `\q`:
		return true
	case "tables", `\dt`:
		err = printTables(out, a.registry)
	case "describe", `\d`:
		if len(fields) != 2 {
			err = errors.New("usage: describe <table>")
			break
		}
		spec, lookupErr := a.registry.Lookup(fields[1])
		if lookupErr != nil {
			err = lookupErr
			break
		}
		err = printSchema(out, spec)
	default:
		ctx, cancel := queryContext(cmd.Context(), &rootFlags)
		res, qerr := a.engine.Query(ctx, line)
		cancel()
		if qerr != nil {
			err = qerr
			break
		}
		err = printResult(out, res)
	}

	if err != nil {
		fmt.Fprintf(cmd.ErrOrStderr(), "error: %v\n", err)
	}
	return false
}
