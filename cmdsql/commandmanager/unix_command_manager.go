package commandmanager

import (
	"bytes"
	"context"
	"errors"
	"io"
	"log/slog"
	"net"
	"os/exec"
	"strings"
	"time"

	"golang.org/x/crypto/ssh"

	"github.com/steelcutops/cmdsql/cmdsql/outputparser"
	"github.com/steelcutops/cmdsql/cmdsql/sshmanager"
	"github.com/steelcutops/cmdsql/common"
)

// SSHDialer connects to a host in two steps. Connect opens the transport,
// Handshake authenticates over it. Credentials are only needed for the
// second step.
type SSHDialer interface {
	Connect(ctx context.Context, network, addr string, timeout time.Duration) (net.Conn, error)
	Handshake(conn net.Conn, addr string, config *ssh.ClientConfig, timeout time.Duration) (*ssh.Client, error)
}

// RealSSHClient dials over TCP and runs the SSH handshake. Connect failures
// are reported as RemoteConnectFailure and handshake failures as
// RemoteAuthFailure.
type RealSSHClient struct{}

func (RealSSHClient) Connect(ctx context.Context, network, addr string, timeout time.Duration) (net.Conn, error) {
	d := net.Dialer{Timeout: timeout}
	conn, err := d.DialContext(ctx, network, addr)
	if err != nil {
		return nil, common.NewError(common.RemoteConnectFailure, err)
	}
	return conn, nil
}

func (RealSSHClient) Handshake(conn net.Conn, addr string, config *ssh.ClientConfig, timeout time.Duration) (*ssh.Client, error) {
	if timeout > 0 {
		_ = conn.SetDeadline(time.Now().Add(timeout))
	}
	c, chans, reqs, err := ssh.NewClientConn(conn, addr, config)
	if err != nil {
		conn.Close()
		return nil, common.NewError(common.RemoteAuthFailure, err)
	}
	_ = conn.SetDeadline(time.Time{})

	return ssh.NewClient(c, chans, reqs), nil
}

// UnixCommandManager runs commands for one target. An empty Hostname,
// "localhost" and "127.0.0.1" run locally; anything else is an SSH alias.
type UnixCommandManager struct {
	Hostname  string
	SSHClient SSHDialer
	Resolver  *sshmanager.Resolver
	Parser    *outputparser.Bridge
}

func (u *UnixCommandManager) parser() *outputparser.Bridge {
	if u.Parser == nil {
		return outputparser.New("")
	}
	return u.Parser
}

// RunLocal starts the command and the parser side by side and streams the
// command's stdout into the parser on a separate goroutine, so neither
// process can stall on a full pipe while the other is waited on.
func (u *UnixCommandManager) RunLocal(ctx context.Context, config CommandConfig) (CommandResult, error) {
	start := time.Now()
	result := CommandResult{Command: config.CommandLine(), Timestamp: start}

	cmd := exec.CommandContext(ctx, config.Command, config.Args...)
	var stderr strings.Builder
	cmd.Stderr = &stderr

	stdout, err := cmd.StdoutPipe()
	if err != nil {
		return result, common.Errorf(common.SpawnFailure, "stdout pipe for %q: %w", config.Command, err)
	}
	if err := cmd.Start(); err != nil {
		return result, common.Errorf(common.SpawnFailure, "start %q: %w", config.Command, err)
	}

	parser, err := u.parser().Start(ctx, config.Parser)
	if err != nil {
		_ = cmd.Process.Kill()
		_ = cmd.Wait()
		return result, err
	}

	copyErr := make(chan error, 1)
	go func() {
		copyErr <- pipe(parser.Stdin, stdout)
	}()

	out, parseErr := parser.Wait()
	cpErr := <-copyErr
	waitErr := cmd.Wait()

	result.Duration = time.Since(start)
	result.STDERR = stderr.String()
	result.ExitCode = getExitCode(waitErr)

	if ctx.Err() != nil {
		return result, ctx.Err()
	}
	if parseErr != nil {
		return result, parseErr
	}
	if cpErr != nil {
		return result, common.Errorf(common.StreamFailure, "copy %q output to parser: %w", config.Command, cpErr)
	}
	if waitErr != nil {
		var exitErr *exec.ExitError
		if !errors.As(waitErr, &exitErr) {
			return result, common.Errorf(common.StreamFailure, "wait for %q: %w", config.Command, waitErr)
		}
		slog.Warn("Command exited with non-zero status", "command", result.Command, "exit_code", result.ExitCode, "stderr", strings.TrimSpace(result.STDERR))
	}

	result.STDOUT = out
	return result, nil
}

// pipe copies src into dst and closes dst. If dst stops accepting data the
// rest of src is drained so the source process can exit.
func pipe(dst io.WriteCloser, src io.Reader) error {
	_, err := io.Copy(dst, src)
	if err != nil {
		_, _ = io.Copy(io.Discard, src)
	}
	if cerr := dst.Close(); err == nil && cerr != nil && !errors.Is(cerr, io.ErrClosedPipe) {
		err = cerr
	}
	return err
}

func (u *UnixCommandManager) dialTimeout(ctx context.Context) time.Duration {
	timeout := u.Resolver.Settings().DialTimeout
	if deadline, ok := ctx.Deadline(); ok {
		if until := time.Until(deadline); timeout == 0 || until < timeout {
			timeout = until
		}
	}
	return timeout
}

// RunRemote runs the command line over an SSH session, reads stdout until
// the channel reports EOF and then runs the parser locally on what was read.
// The TCP connection is opened before credentials are loaded, so an
// unreachable host is a RemoteConnectFailure whatever the auth setup.
func (u *UnixCommandManager) RunRemote(ctx context.Context, config CommandConfig) (CommandResult, error) {
	start := time.Now()
	cmdStr := config.CommandLine()
	result := CommandResult{Command: cmdStr, Timestamp: start}

	slog.Debug("Executing remote command", "hostname", u.Hostname, "command", cmdStr)

	if u.SSHClient == nil {
		return result, common.Errorf(common.RemoteConnectFailure, "SSHClient is not initialized")
	}
	if u.Resolver == nil {
		return result, common.Errorf(common.RemoteConnectFailure, "ssh resolver is not initialized")
	}

	ep, err := u.Resolver.Resolve(u.Hostname)
	if err != nil {
		return result, err
	}

	timeout := u.dialTimeout(ctx)
	conn, err := u.SSHClient.Connect(ctx, "tcp", ep.Addr(), timeout)
	if err != nil {
		if _, ok := common.KindOf(err); !ok {
			err = common.NewError(common.RemoteConnectFailure, err)
		}
		return result, err
	}

	sshConfig, cleanup, err := u.Resolver.Settings().ClientConfig(ep)
	if err != nil {
		conn.Close()
		return result, err
	}
	defer cleanup()

	client, err := u.SSHClient.Handshake(conn, ep.Addr(), sshConfig, timeout)
	if err != nil {
		if _, ok := common.KindOf(err); !ok {
			err = common.NewError(common.RemoteAuthFailure, err)
		}
		return result, err
	}
	defer client.Close()

	stop := context.AfterFunc(ctx, func() { client.Close() })
	defer stop()

	session, err := client.NewSession()
	if err != nil {
		return result, common.Errorf(common.StreamFailure, "open session: %w", err)
	}
	defer session.Close()

	var stderr bytes.Buffer
	session.Stderr = &stderr
	stdout, err := session.StdoutPipe()
	if err != nil {
		return result, common.Errorf(common.StreamFailure, "session stdout: %w", err)
	}
	if err := session.Start(cmdStr); err != nil {
		return result, common.Errorf(common.StreamFailure, "start remote command: %w", err)
	}

	raw, readErr := io.ReadAll(stdout)
	waitErr := session.Wait()
	result.STDERR = stderr.String()

	if ctx.Err() != nil {
		return result, ctx.Err()
	}
	if readErr != nil {
		return result, common.Errorf(common.StreamFailure, "read remote output: %w", readErr)
	}
	if waitErr != nil {
		var exitErr *ssh.ExitError
		var missingErr *ssh.ExitMissingError
		switch {
		case errors.As(waitErr, &exitErr):
			result.ExitCode = exitErr.ExitStatus()
			slog.Warn("Remote command exited with non-zero status", "hostname", u.Hostname, "command", cmdStr, "exit_code", result.ExitCode, "stderr", strings.TrimSpace(result.STDERR))
		case errors.As(waitErr, &missingErr):
			slog.Warn("Remote command exited without status", "hostname", u.Hostname, "command", cmdStr)
		default:
			return result, common.Errorf(common.StreamFailure, "wait for remote command: %w", waitErr)
		}
	}

	out, err := u.parser().Parse(ctx, config.Parser, raw)
	result.Duration = time.Since(start)
	if err != nil {
		return result, err
	}
	result.STDOUT = out
	return result, nil
}

func (u *UnixCommandManager) Run(ctx context.Context, config CommandConfig) (CommandResult, error) {
	if u.isLocal() {
		slog.Debug("Detected local so running local command", "hostname", u.Hostname, "command", config.Command)
		return u.RunLocal(ctx, config)
	}

	slog.Debug("Detected remote command so running remote command", "hostname", u.Hostname, "command", config.Command)
	return u.RunRemote(ctx, config)
}

func (u *UnixCommandManager) isLocal() bool {
	return IsLocal(u.Hostname)
}

// IsLocal reports whether host names the machine cmdsql runs on.
func IsLocal(host string) bool {
	return host == "" || host == "localhost" || host == "127.0.0.1"
}

func getExitCode(err error) int {
	var exitErr *exec.ExitError
	if errors.As(err, &exitErr) {
		return exitErr.ExitCode()
	}
	return 0
}
