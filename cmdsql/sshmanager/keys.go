package sshmanager

import (
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net"
	"os"

	"golang.org/x/crypto/ssh"
	"golang.org/x/crypto/ssh/agent"
)

type SSHKeyManager interface {
	ReadPrivateKeys(keyPassphrase string) ([]ssh.Signer, error)
}

// FileSSHKeyManager loads private keys from fixed paths.
type FileSSHKeyManager struct {
	Paths []string
}

// AgentSSHKeyManager fetches signers from a running ssh-agent. The agent
// connection must stay open while the signers are in use; call Close after
// the handshake.
type AgentSSHKeyManager struct {
	Socket string
	conn   net.Conn
}

func (km FileSSHKeyManager) ReadPrivateKeys(keyPassphrase string) ([]ssh.Signer, error) {
	signers := []ssh.Signer{}
	var lastErr error

	for _, file := range km.Paths {
		keyBytes, err := os.ReadFile(file)
		if err != nil {
			slog.Debug("Could not read key file", "path", file, "error", err)
			lastErr = err
			continue
		}

		var signer ssh.Signer
		if keyPassphrase != "" {
			signer, err = ssh.ParsePrivateKeyWithPassphrase(keyBytes, []byte(keyPassphrase))
		} else {
			signer, err = ssh.ParsePrivateKey(keyBytes)
		}
		if err != nil {
			var missing *ssh.PassphraseMissingError
			if errors.As(err, &missing) {
				err = fmt.Errorf("%s is encrypted, a passphrase is required", file)
			}
			slog.Debug("Could not parse key file", "path", file, "error", err)
			lastErr = err
			continue
		}

		signers = append(signers, signer)
	}

	if len(signers) == 0 {
		if lastErr == nil {
			lastErr = errors.New("no key files configured")
		}
		return nil, fmt.Errorf("no usable private key: %w", lastErr)
	}
	return signers, nil
}

func (km *AgentSSHKeyManager) ReadPrivateKeys(_ string) ([]ssh.Signer, error) {
	socket := km.Socket
	if socket == "" {
		socket = os.Getenv("SSH_AUTH_SOCK")
	}
	if socket == "" {
		return nil, errors.New("SSH_AUTH_SOCK not set")
	}

	conn, err := net.Dial("unix", socket)
	if err != nil {
		return nil, fmt.Errorf("could not connect to SSH agent: %w", err)
	}

	signers, err := agent.NewClient(conn).Signers()
	if err != nil {
		conn.Close()
		return nil, fmt.Errorf("could not get signers from SSH agent: %w", err)
	}
	km.conn = conn
	return signers, nil
}

func (km *AgentSSHKeyManager) Close() error {
	if km.conn == nil {
		return nil
	}
	err := km.conn.Close()
	km.conn = nil
	return err
}

var _ io.Closer = (*AgentSSHKeyManager)(nil)
