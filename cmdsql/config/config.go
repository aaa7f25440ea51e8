// Package config loads the cmdsql YAML configuration.
package config

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	"golang.org/x/time/rate"
	"gopkg.in/yaml.v3"

	"github.com/steelcutops/cmdsql/cmdsql/catalog"
	"github.com/steelcutops/cmdsql/cmdsql/decoder"
	"github.com/steelcutops/cmdsql/cmdsql/hostgroup"
	"github.com/steelcutops/cmdsql/cmdsql/outputparser"
	"github.com/steelcutops/cmdsql/cmdsql/sshmanager"
	"github.com/steelcutops/cmdsql/cmdsql/tracer"
)

const (
	FlattenerNative = "native"
	FlattenerJQ     = "jq"
)

type Config struct {
	Parser      ParserConfig       `yaml:"parser"`
	Flattener   string             `yaml:"flattener"`
	JQBinary    string             `yaml:"jq_binary"`
	SSH         SSHConfig          `yaml:"ssh"`
	HostsFile   string             `yaml:"hosts_file"`
	BatchSize   int                `yaml:"batch_size"`
	Concurrency int                `yaml:"concurrency"`
	StrictArgs  bool               `yaml:"strict_args"`
	HistoryFile string             `yaml:"history_file"`
	Tables      []catalog.TableDef `yaml:"tables"`
	Tracing     TracingConfig      `yaml:"tracing"`
}

type TracingConfig struct {
	Exporter string `yaml:"exporter"`
}

type ParserConfig struct {
	Binary string `yaml:"binary"`
}

type SSHConfig struct {
	ConfigFile            string        `yaml:"config_file"`
	IdentityFile          string        `yaml:"identity_file"`
	KnownHosts            string        `yaml:"known_hosts"`
	InsecureIgnoreHostKey bool          `yaml:"insecure_ignore_host_key"`
	UseAgent              bool          `yaml:"use_agent"`
	DefaultUser           string        `yaml:"default_user"`
	DefaultPort           int           `yaml:"default_port"`
	DialTimeout           time.Duration `yaml:"dial_timeout"`
	DialRate              float64       `yaml:"dial_rate"`
	DialBurst             int           `yaml:"dial_burst"`
}

// Dir returns $XDG_CONFIG_HOME/cmdsql, or ~/.config/cmdsql.
func Dir(home string) string {
	base := os.Getenv("XDG_CONFIG_HOME")
	if base == "" {
		base = filepath.Join(home, ".config")
	}
	return filepath.Join(base, "cmdsql")
}

// DefaultPath is the config file used when --config is not given.
func DefaultPath(home string) string {
	return filepath.Join(Dir(home), "config.yaml")
}

// Default returns the configuration used when no file exists.
func Default(home string) *Config {
	ssh := sshmanager.DefaultSettings(home)
	return &Config{
		Parser:      ParserConfig{Binary: outputparser.DefaultBinary},
		Flattener:   FlattenerNative,
		JQBinary:    "jq",
		BatchSize:   decoder.DefaultBatchSize,
		Concurrency: hostgroup.DefaultConcurrency,
		HistoryFile: filepath.Join(Dir(home), "history.txt"),
		Tracing:     TracingConfig{Exporter: tracer.ExporterNone},
		SSH: SSHConfig{
			ConfigFile:   ssh.ConfigFile,
			IdentityFile: ssh.IdentityFile,
			KnownHosts:   ssh.KnownHostsFile,
			DefaultUser:  ssh.DefaultUser,
			DefaultPort:  ssh.DefaultPort,
			DialTimeout:  ssh.DialTimeout,
			DialBurst:    1,
		},
	}
}

// Load reads path on top of the defaults. A missing file yields the
// defaults; a file with unknown keys is an error.
func Load(path, home string) (*Config, error) {
	cfg := Default(home)

	data, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			slog.Debug("config: file not found, using defaults", "path", path)
			return cfg, nil
		}
		return nil, fmt.Errorf("read config: %w", err)
	}

	if err := strictUnmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("parse config %s: %w", path, err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("load config %s: %w", path, err)
	}
	cfg.expandPaths(home)
	return cfg, nil
}

// strictUnmarshal decodes data into v, rejecting unknown fields. Empty
// input leaves v untouched.
func strictUnmarshal(data []byte, v any) error {
	decoder := yaml.NewDecoder(bytes.NewReader(data))
	decoder.KnownFields(true)
	err := decoder.Decode(v)
	if errors.Is(err, io.EOF) {
		return nil
	}
	if err != nil {
		return fmt.Errorf("decode YAML: %w", err)
	}
	return nil
}

func (c *Config) Validate() error {
	switch c.Flattener {
	case FlattenerNative, FlattenerJQ:
	default:
		return fmt.Errorf("flattener must be %q or %q, got %q", FlattenerNative, FlattenerJQ, c.Flattener)
	}
	if c.BatchSize <= 0 {
		return fmt.Errorf("batch_size must be positive, got %d", c.BatchSize)
	}
	if c.Concurrency <= 0 {
		return fmt.Errorf("concurrency must be positive, got %d", c.Concurrency)
	}
	if c.SSH.DefaultPort <= 0 || c.SSH.DefaultPort > 65535 {
		return fmt.Errorf("ssh.default_port out of range: %d", c.SSH.DefaultPort)
	}
	if c.SSH.DialRate < 0 {
		return fmt.Errorf("ssh.dial_rate must not be negative, got %g", c.SSH.DialRate)
	}
	if c.SSH.DialRate > 0 && c.SSH.DialBurst <= 0 {
		return fmt.Errorf("ssh.dial_burst must be positive, got %d", c.SSH.DialBurst)
	}
	switch c.Tracing.Exporter {
	case tracer.ExporterNone, tracer.ExporterStdout:
	default:
		return fmt.Errorf("tracing.exporter must be %q or %q, got %q", tracer.ExporterNone, tracer.ExporterStdout, c.Tracing.Exporter)
	}
	if c.Parser.Binary == "" {
		return errors.New("parser.binary must not be empty")
	}
	return nil
}

func (c *Config) expandPaths(home string) {
	for _, p := range []*string{
		&c.SSH.ConfigFile,
		&c.SSH.IdentityFile,
		&c.SSH.KnownHosts,
		&c.HostsFile,
		&c.HistoryFile,
	} {
		*p = sshmanager.ExpandHome(*p, home)
	}
}

// SSHSettings converts the ssh section into the settings handed to the
// remote backend.
func (c *Config) SSHSettings(home string) sshmanager.Settings {
	return sshmanager.Settings{
		HomeDir:               home,
		ConfigFile:            c.SSH.ConfigFile,
		IdentityFile:          c.SSH.IdentityFile,
		KnownHostsFile:        c.SSH.KnownHosts,
		InsecureIgnoreHostKey: c.SSH.InsecureIgnoreHostKey,
		UseAgent:              c.SSH.UseAgent,
		DefaultUser:           c.SSH.DefaultUser,
		DefaultPort:           c.SSH.DefaultPort,
		DialTimeout:           c.SSH.DialTimeout,
	}
}

// DialLimiter paces group fan-out to ssh.dial_rate host starts per second.
// Zero means unlimited and returns nil.
func (c *Config) DialLimiter() *rate.Limiter {
	if c.SSH.DialRate <= 0 {
		return nil
	}
	return rate.NewLimiter(rate.Limit(c.SSH.DialRate), c.SSH.DialBurst)
}

// Registry returns the builtin tables plus the configured custom ones.
func (c *Config) Registry() (*catalog.Registry, error) {
	return catalog.WithCustom(c.Tables)
}

// Inventory loads the hosts file, or returns nil if none is configured.
func (c *Config) Inventory() (*hostgroup.Inventory, error) {
	if c.HostsFile == "" {
		return nil, nil
	}
	return hostgroup.LoadInventory(c.HostsFile)
}
