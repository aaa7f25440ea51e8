// Package commandmanager runs a table's command on its execution target and
// hands the raw output to the output parser.
package commandmanager

import (
	"context"
	"strings"
	"time"
)

// CommandConfig describes one invocation: the command, its full argument
// list and the parser that turns its output into JSON.
type CommandConfig struct {
	Command string
	Args    []string
	Parser  string
}

// CommandLine returns the space-joined command line sent to remote hosts.
func (c CommandConfig) CommandLine() string {
	return strings.Join(append([]string{c.Command}, c.Args...), " ")
}

// CommandResult encapsulates the results from a command execution.
type CommandResult struct {
	Command string
	// STDOUT holds the parser's JSON output, not the command's raw text.
	STDOUT    string
	STDERR    string
	ExitCode  int
	Duration  time.Duration
	Timestamp time.Time
}

// CommandManager provides methods to execute commands, both locally and remotely.
type CommandManager interface {
	// RunLocal executes a command on the local system.
	RunLocal(ctx context.Context, config CommandConfig) (CommandResult, error)

	// RunRemote executes a command on a remote system via SSH.
	RunRemote(ctx context.Context, config CommandConfig) (CommandResult, error)

	// Run dispatches to RunLocal or RunRemote based on the target host.
	Run(ctx context.Context, config CommandConfig) (CommandResult, error)
}
