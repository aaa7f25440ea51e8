package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"time"

	"github.com/spf13/cobra"
	"golang.org/x/term"
)

var programLevel = new(slog.LevelVar)

type flags struct {
	ConfigPath     string
	Debug          bool
	Verbose        bool
	LogFile        string
	User           string
	PasswordPrompt bool
	KeyPassPrompt  bool
	UseAgent       bool
	Strict         bool
	Timeout        time.Duration
	Trace          string
}

var rootFlags flags

var rootCmd = &cobra.Command{
	Use:   "cmdsql",
	Short: "Query command output with SQL",
	Long: `cmdsql exposes administrative commands (ps, df, who, uptime, ...) as SQL tables.

Each table is a function: SELECT * FROM ps() runs "ps aux" locally, parses its
output with jc and returns typed rows. Pass host('alias') as the first argument
to run the command over SSH, or hostgroup('name') to run it on every host of an
inventory group. Remaining arguments are appended to the command line.`,
	SilenceUsage: true,
	PersistentPreRun: func(cmd *cobra.Command, args []string) {
		configureLogger(&rootFlags)
	},
}

func init() {
	pf := rootCmd.PersistentFlags()
	pf.StringVar(&rootFlags.ConfigPath, "config", "", "Config file (default $XDG_CONFIG_HOME/cmdsql/config.yaml)")
	pf.BoolVar(&rootFlags.Debug, "debug", false, "Enable debug log level")
	pf.BoolVarP(&rootFlags.Verbose, "verbose", "v", false, "Log scan progress")
	pf.StringVar(&rootFlags.LogFile, "log", "", "Write scan logs to this file")
	pf.StringVarP(&rootFlags.User, "user", "u", "", "SSH user for every host, overriding ssh config")
	pf.BoolVarP(&rootFlags.PasswordPrompt, "password", "p", false, "Prompt for an SSH password")
	pf.BoolVar(&rootFlags.KeyPassPrompt, "keypass", false, "Prompt for the identity file passphrase")
	pf.BoolVar(&rootFlags.UseAgent, "agent", false, "Offer ssh-agent keys")
	pf.BoolVar(&rootFlags.Strict, "strict", false, "Reject non-literal table function arguments")
	pf.DurationVar(&rootFlags.Timeout, "timeout", 0, "Abort a query after this long (default no limit)")
	pf.StringVar(&rootFlags.Trace, "trace", "", "Trace exporter for scans and queries: none or stdout (written to stderr)")
}

// Execute runs the root command and returns any error.
func Execute() error {
	return rootCmd.Execute()
}

func configureLogger(f *flags) {
	h := slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: programLevel})
	slog.SetDefault(slog.New(h))

	switch {
	case f.Debug:
		programLevel.Set(slog.LevelDebug)
		slog.Debug("Debug mode enabled")
	case f.Verbose:
		programLevel.Set(slog.LevelInfo)
	default:
		programLevel.Set(slog.LevelWarn)
	}
}

// queryContext bounds a query by --timeout when one was given.
func queryContext(parent context.Context, f *flags) (context.Context, context.CancelFunc) {
	if f.Timeout > 0 {
		return context.WithTimeout(parent, f.Timeout)
	}
	return context.WithCancel(parent)
}

func readPasswords(f *flags) (password, keyPass string, err error) {
	if f.PasswordPrompt {
		if password, err = prompt("Enter the password: "); err != nil {
			return "", "", fmt.Errorf("read password: %w", err)
		}
	}
	if f.KeyPassPrompt {
		if keyPass, err = prompt("Enter the key passphrase: "); err != nil {
			return "", "", fmt.Errorf("read key passphrase: %w", err)
		}
	}
	return password, keyPass, nil
}

func prompt(label string) (string, error) {
	fd := int(os.Stdin.Fd())
	if !term.IsTerminal(fd) {
		return "", fmt.Errorf("stdin is not a terminal")
	}
	fmt.Fprint(os.Stderr, label)
	b, err := term.ReadPassword(fd)
	fmt.Fprintln(os.Stderr)
	if err != nil {
		return "", err
	}
	return string(b), nil
}
