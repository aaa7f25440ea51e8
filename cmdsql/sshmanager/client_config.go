package sshmanager

import (
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"os"

	"golang.org/x/crypto/ssh"
	"golang.org/x/crypto/ssh/knownhosts"

	"github.com/steelcutops/cmdsql/common"
)

// ClientConfig builds the ssh client config for ep. The returned cleanup
// releases the agent connection, if one was opened, and must be called once
// the connection is established or abandoned.
func (s Settings) ClientConfig(ep Endpoint) (*ssh.ClientConfig, func(), error) {
	cleanup := func() {}
	var auth []ssh.AuthMethod

	if s.Password != "" {
		slog.Debug("Using password authentication", "hostname", ep.HostName)
		auth = append(auth, ssh.Password(s.Password))
	}

	if ep.IdentityFile != "" {
		keys, err := FileSSHKeyManager{Paths: []string{ep.IdentityFile}}.ReadPrivateKeys(s.KeyPassphrase)
		if err == nil {
			slog.Debug("Using public key authentication", "hostname", ep.HostName, "key", ep.IdentityFile)
			auth = append(auth, ssh.PublicKeys(keys...))
		} else if !s.UseAgent && s.Password == "" {
			return nil, cleanup, common.NewError(common.RemoteAuthFailure, err)
		} else {
			slog.Debug("Skipping identity file", "path", ep.IdentityFile, "error", err)
		}
	}

	if s.UseAgent {
		km := &AgentSSHKeyManager{Socket: s.AgentSocket}
		keys, err := km.ReadPrivateKeys("")
		if err != nil {
			if len(auth) == 0 {
				return nil, cleanup, common.NewError(common.RemoteAuthFailure, err)
			}
			slog.Debug("SSH agent unavailable", "error", err)
		} else {
			cleanup = func() { km.Close() }
			auth = append(auth, ssh.PublicKeys(keys...))
		}
	}

	if len(auth) == 0 {
		return nil, cleanup, common.Errorf(common.RemoteAuthFailure, "no authentication method available for %s", ep.Alias)
	}

	hostKeyCallback, err := s.hostKeyCallback()
	if err != nil {
		cleanup()
		return nil, func() {}, common.NewError(common.RemoteAuthFailure, err)
	}

	return &ssh.ClientConfig{
		User:            ep.User,
		Auth:            auth,
		HostKeyCallback: hostKeyCallback,
		Timeout:         s.DialTimeout,
	}, cleanup, nil
}

func (s Settings) hostKeyCallback() (ssh.HostKeyCallback, error) {
	if s.InsecureIgnoreHostKey {
		return ssh.InsecureIgnoreHostKey(), nil
	}
	if s.KnownHostsFile == "" {
		return nil, errors.New("no known_hosts file configured and host key checking is enabled")
	}
	if _, err := os.Stat(s.KnownHostsFile); errors.Is(err, fs.ErrNotExist) {
		return nil, fmt.Errorf("known_hosts file %s does not exist", s.KnownHostsFile)
	}
	cb, err := knownhosts.New(s.KnownHostsFile)
	if err != nil {
		return nil, fmt.Errorf("load known_hosts: %w", err)
	}
	return cb, nil
}
