// Package sshmanager resolves host aliases against the user's SSH client
// configuration and builds authenticated client configs.
package sshmanager

import (
	"path/filepath"
	"strings"
	"time"

	"github.com/steelcutops/cmdsql/common"
)

const (
	DefaultPort = 22
	DefaultUser = "root"
)

// Settings is resolved once at startup and passed to every remote scan.
type Settings struct {
	HomeDir               string
	ConfigFile            string
	IdentityFile          string
	KnownHostsFile        string
	InsecureIgnoreHostKey bool
	UseAgent              bool
	AgentSocket           string
	DefaultUser           string
	DefaultPort           int
	DialTimeout           time.Duration
	common.Credentials
}

// DefaultSettings returns the conventional locations under home.
func DefaultSettings(home string) Settings {
	return Settings{
		HomeDir:        home,
		ConfigFile:     filepath.Join(home, ".ssh", "config"),
		IdentityFile:   filepath.Join(home, ".ssh", "id_rsa"),
		KnownHostsFile: filepath.Join(home, ".ssh", "known_hosts"),
		DefaultUser:    DefaultUser,
		DefaultPort:    DefaultPort,
		DialTimeout:    30 * time.Second,
	}
}

// ExpandHome replaces a leading "~" with home.
func ExpandHome(path, home string) string {
	if path == "~" {
		return home
	}
	if strings.HasPrefix(path, "~/") {
		return filepath.Join(home, path[2:])
	}
	return path
}
