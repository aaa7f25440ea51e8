package sshmanager

import (
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"net"
	"os"
	"strconv"

	"github.com/kevinburke/ssh_config"

	"github.com/steelcutops/cmdsql/common"
)

// Endpoint is a host alias resolved to something dialable.
type Endpoint struct {
	Alias        string
	HostName     string
	Port         int
	User         string
	IdentityFile string
}

// Addr returns host:port.
func (e Endpoint) Addr() string {
	return net.JoinHostPort(e.HostName, strconv.Itoa(e.Port))
}

// Resolver answers alias lookups from a parsed ssh client config.
type Resolver struct {
	settings Settings
	config   *ssh_config.Config
}

// NewResolver parses the config file named in settings. A missing file is
// not an error; every alias then resolves to the defaults.
func NewResolver(settings Settings) (*Resolver, error) {
	r := &Resolver{settings: settings}
	if settings.ConfigFile == "" {
		return r, nil
	}

	f, err := os.Open(settings.ConfigFile)
	if errors.Is(err, fs.ErrNotExist) {
		slog.Debug("No ssh client config found", "path", settings.ConfigFile)
		return r, nil
	}
	if err != nil {
		return nil, fmt.Errorf("open ssh config: %w", err)
	}
	defer f.Close()

	cfg, err := ssh_config.Decode(f)
	if err != nil {
		return nil, fmt.Errorf("parse ssh config %s: %w", settings.ConfigFile, err)
	}
	r.config = cfg
	return r, nil
}

// Settings returns the settings the resolver was built with.
func (r *Resolver) Settings() Settings {
	return r.settings
}

func (r *Resolver) lookup(alias, key string) string {
	if r.config == nil {
		return ""
	}
	v, err := r.config.Get(alias, key)
	if err != nil {
		slog.Debug("ssh config lookup failed", "alias", alias, "key", key, "error", err)
		return ""
	}
	return v
}

// Resolve maps alias to an Endpoint. Unset values fall back to the alias
// itself for the host name, DefaultPort and DefaultUser.
func (r *Resolver) Resolve(alias string) (Endpoint, error) {
	if alias == "" {
		return Endpoint{}, common.Errorf(common.RemoteConnectFailure, "empty host alias")
	}

	ep := Endpoint{Alias: alias, HostName: alias, Port: r.settings.DefaultPort, User: r.settings.DefaultUser}
	if ep.Port == 0 {
		ep.Port = DefaultPort
	}
	if ep.User == "" {
		ep.User = DefaultUser
	}

	if v := r.lookup(alias, "HostName"); v != "" {
		ep.HostName = v
	}
	if v := r.lookup(alias, "Port"); v != "" {
		port, err := strconv.Atoi(v)
		if err != nil || port <= 0 || port > 65535 {
			return Endpoint{}, common.Errorf(common.RemoteConnectFailure, "invalid port %q for host %q", v, alias)
		}
		ep.Port = port
	}
	if v := r.lookup(alias, "User"); v != "" {
		ep.User = v
	}
	if r.settings.User != "" {
		ep.User = r.settings.User
	}

	ep.IdentityFile = r.settings.IdentityFile
	if v := r.lookup(alias, "IdentityFile"); v != "" {
		ep.IdentityFile = ExpandHome(v, r.settings.HomeDir)
	}
	return ep, nil
}
