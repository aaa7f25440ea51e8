// Package outputparser runs the external text-to-JSON parser (jc by default)
// over raw command output.
package outputparser

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os/exec"
	"strings"
	"unicode/utf8"

	"github.com/steelcutops/cmdsql/common"
)

// DefaultBinary is the parser executable used when none is configured.
const DefaultBinary = "jc"

// Bridge selects and launches parser processes.
type Bridge struct {
	// Binary is the parser executable. It is invoked as `<Binary> --<parserID>`.
	Binary string
}

// New returns a Bridge for binary, falling back to DefaultBinary.
func New(binary string) *Bridge {
	if binary == "" {
		binary = DefaultBinary
	}
	return &Bridge{Binary: binary}
}

func (b *Bridge) command(ctx context.Context, parserID string) *exec.Cmd {
	binary := b.Binary
	if binary == "" {
		binary = DefaultBinary
	}
	return exec.CommandContext(ctx, binary, "--"+parserID)
}

// Process is a running parser whose stdin is fed by the caller.
type Process struct {
	// Stdin must be closed by the caller to signal end of input.
	Stdin io.WriteCloser

	cmd    *exec.Cmd
	stdout bytes.Buffer
	stderr bytes.Buffer
}

// Start launches the parser for parserID with a piped stdin.
func (b *Bridge) Start(ctx context.Context, parserID string) (*Process, error) {
	p := &Process{cmd: b.command(ctx, parserID)}
	p.cmd.Stdout = &p.stdout
	p.cmd.Stderr = &p.stderr

	stdin, err := p.cmd.StdinPipe()
	if err != nil {
		return nil, common.Errorf(common.SpawnFailure, "parser stdin pipe: %w", err)
	}
	p.Stdin = stdin

	slog.Debug("Starting output parser", "binary", p.cmd.Path, "parser", parserID)
	if err := p.cmd.Start(); err != nil {
		return nil, common.Errorf(common.SpawnFailure, "start parser %q: %w", parserID, err)
	}
	return p, nil
}

// Wait blocks until the parser exits and returns what it wrote to stdout.
func (p *Process) Wait() (string, error) {
	err := p.cmd.Wait()
	return collect(p.stdout.Bytes(), p.stderr.String(), err)
}

// Kill stops the parser and reaps it.
func (p *Process) Kill() {
	if p.cmd.Process != nil {
		_ = p.cmd.Process.Kill()
	}
	_ = p.cmd.Wait()
}

// Parse feeds raw to the parser for parserID and returns its output. A
// trailing newline is added so parsers that read line by line see the last line.
func (b *Bridge) Parse(ctx context.Context, parserID string, raw []byte) (string, error) {
	cmd := b.command(ctx, parserID)

	input := make([]byte, 0, len(raw)+1)
	input = append(input, raw...)
	input = append(input, '\n')

	var stdout, stderr bytes.Buffer
	cmd.Stdin = bytes.NewReader(input)
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	slog.Debug("Running output parser", "binary", cmd.Path, "parser", parserID, "bytes", len(raw))
	if err := cmd.Start(); err != nil {
		return "", common.Errorf(common.SpawnFailure, "start parser %q: %w", parserID, err)
	}
	err := cmd.Wait()
	return collect(stdout.Bytes(), stderr.String(), err)
}

func collect(stdout []byte, stderr string, waitErr error) (string, error) {
	if waitErr != nil {
		var exitErr *exec.ExitError
		if errors.As(waitErr, &exitErr) {
			msg := strings.TrimSpace(stderr)
			if msg == "" {
				msg = exitErr.Error()
			}
			return "", common.Errorf(common.ParseFailure, "parser exited with code %d: %s", exitErr.ExitCode(), msg)
		}
		return "", common.Errorf(common.StreamFailure, "wait for parser: %w", waitErr)
	}
	if !utf8.Valid(stdout) {
		return "", common.NewError(common.StreamFailure, fmt.Errorf("parser output is not valid UTF-8"))
	}
	return string(stdout), nil
}
