package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"

	"github.com/steelcutops/cmdsql/cmdsql/catalog"
	"github.com/steelcutops/cmdsql/cmdsql/commandmanager"
	"github.com/steelcutops/cmdsql/cmdsql/config"
	"github.com/steelcutops/cmdsql/cmdsql/engine"
	"github.com/steelcutops/cmdsql/cmdsql/normalizer"
	"github.com/steelcutops/cmdsql/cmdsql/outputparser"
	"github.com/steelcutops/cmdsql/cmdsql/sshmanager"
	"github.com/steelcutops/cmdsql/cmdsql/table"
	"github.com/steelcutops/cmdsql/cmdsql/tracer"
	"github.com/steelcutops/cmdsql/logger"
)

// app holds everything resolved once at startup.
type app struct {
	cfg      *config.Config
	registry *catalog.Registry
	engine   *engine.Engine
	logFile  *os.File
	shutdown func(context.Context) error
}

func loadConfig(f *flags) (*config.Config, string, error) {
	home, err := os.UserHomeDir()
	if err != nil {
		return nil, "", fmt.Errorf("locate home directory: %w", err)
	}
	path := f.ConfigPath
	if path == "" {
		path = config.DefaultPath(home)
	}
	cfg, err := config.Load(path, home)
	if err != nil {
		return nil, "", err
	}
	return cfg, home, nil
}

func newApp(f *flags) (*app, error) {
	cfg, home, err := loadConfig(f)
	if err != nil {
		return nil, err
	}

	registry, err := cfg.Registry()
	if err != nil {
		return nil, fmt.Errorf("build table catalog: %w", err)
	}
	inventory, err := cfg.Inventory()
	if err != nil {
		return nil, err
	}

	password, keyPass, err := readPasswords(f)
	if err != nil {
		return nil, err
	}
	settings := cfg.SSHSettings(home).Apply(buildSSHOptions(f, password, keyPass)...)
	resolver, err := sshmanager.NewResolver(settings)
	if err != nil {
		return nil, err
	}

	var flattener normalizer.Flattener
	if cfg.Flattener == config.FlattenerJQ {
		flattener = normalizer.NewJQFlattener(cfg.JQBinary)
	}

	exporter := cfg.Tracing.Exporter
	if f.Trace != "" {
		exporter = f.Trace
	}
	shutdown, err := tracer.Setup(exporter, os.Stderr)
	if err != nil {
		return nil, err
	}

	a := &app{cfg: cfg, registry: registry, shutdown: shutdown}
	log := logger.FromSlog(slog.Default())
	if f.LogFile != "" {
		a.logFile, err = os.OpenFile(f.LogFile, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
		if err != nil {
			a.Close()
			return nil, fmt.Errorf("open log file: %w", err)
		}
		log = logger.NewLogrus(a.logFile, f.Debug)
	}

	scanner := &table.Scanner{
		Parser:      outputparser.New(cfg.Parser.Binary),
		Normalizer:  normalizer.New(flattener),
		Resolver:    resolver,
		SSHClient:   commandmanager.RealSSHClient{},
		Inventory:   inventory,
		BatchSize:   cfg.BatchSize,
		Concurrency: cfg.Concurrency,
		Logger:      log,
		DialLimiter: cfg.DialLimiter(),
	}

	strict := cfg.StrictArgs || f.Strict
	a.engine, err = engine.New(registry, scanner, table.BindOptions{Strict: strict}, log)
	if err != nil {
		a.Close()
		return nil, err
	}
	return a, nil
}

func buildSSHOptions(f *flags, password, keyPass string) []sshmanager.Option {
	var options []sshmanager.Option
	if f.User != "" {
		options = append(options, sshmanager.WithUser(f.User))
	}
	if password != "" {
		options = append(options, sshmanager.WithPassword(password))
	}
	if keyPass != "" {
		options = append(options, sshmanager.WithKeyPassphrase(keyPass))
	}
	if f.UseAgent {
		options = append(options, sshmanager.WithAgent(""))
	}
	return options
}

func (a *app) Close() {
	if a.engine != nil {
		a.engine.Close()
	}
	if a.shutdown != nil {
		if err := a.shutdown(context.Background()); err != nil {
			slog.Warn("Failed to flush traces", "error", err)
		}
	}
	if a.logFile != nil {
		a.logFile.Close()
	}
}
