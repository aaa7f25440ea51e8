package commandmanager

import (
	"context"
	"crypto/ed25519"
	"crypto/rand"
	"errors"
	"net"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/ssh"

	"github.com/steelcutops/cmdsql/cmdsql/outputparser"
	"github.com/steelcutops/cmdsql/cmdsql/sshmanager"
	"github.com/steelcutops/cmdsql/common"
)

type MockSSHClient struct {
	connectError error
	conn         net.Conn
	dialed       []string
	handshakes   int
}

func (m *MockSSHClient) Connect(ctx context.Context, network, addr string, timeout time.Duration) (net.Conn, error) {
	m.dialed = append(m.dialed, addr)
	if m.connectError != nil {
		return nil, m.connectError
	}
	return m.conn, nil
}

func (m *MockSSHClient) Handshake(conn net.Conn, addr string, config *ssh.ClientConfig, timeout time.Duration) (*ssh.Client, error) {
	m.handshakes++
	conn.Close()
	return nil, errors.New("mock handshake error")
}

func writeScript(t *testing.T, dir, name, body string) string {
	t.Helper()
	path := filepath.Join(dir, name)
	require.NoError(t, os.WriteFile(path, []byte("#!/bin/sh\n"+body+"\n"), 0o755))
	return path
}

// fakeParser writes a parser stand-in that records its arguments and input
// and prints out.
func fakeParser(t *testing.T, dir, out string) *outputparser.Bridge {
	t.Helper()
	body := `echo "$@" > "` + dir + `/parser.args"
cat > "` + dir + `/parser.stdin"
printf '%s' '` + out + `'`
	return outputparser.New(writeScript(t, dir, "parser", body))
}

func testResolver(t *testing.T) *sshmanager.Resolver {
	t.Helper()
	settings := sshmanager.DefaultSettings(t.TempDir())
	settings.Password = "password"
	settings.InsecureIgnoreHostKey = true
	r, err := sshmanager.NewResolver(settings)
	require.NoError(t, err)
	return r
}

func TestRunLocal(t *testing.T) {
	dir := t.TempDir()
	manager := UnixCommandManager{
		Hostname: "localhost",
		Parser:   fakeParser(t, dir, `{"ok":true}`),
	}

	result, err := manager.RunLocal(context.Background(), CommandConfig{
		Command: "echo",
		Args:    []string{"hello", "world"},
		Parser:  "uptime",
	})
	require.NoError(t, err)
	assert.Equal(t, `{"ok":true}`, result.STDOUT)
	assert.Equal(t, "echo hello world", result.Command)
	assert.Equal(t, 0, result.ExitCode)

	stdin, err := os.ReadFile(filepath.Join(dir, "parser.stdin"))
	require.NoError(t, err)
	assert.Equal(t, "hello world\n", string(stdin))

	args, err := os.ReadFile(filepath.Join(dir, "parser.args"))
	require.NoError(t, err)
	assert.Equal(t, "--uptime\n", string(args))
}

func TestRunLocalLargeOutput(t *testing.T) {
	dir := t.TempDir()
	// Large enough to fill both pipes if the copy and the wait were serial.
	source := writeScript(t, dir, "source", `i=0; while [ $i -lt 20000 ]; do echo "line $i padding padding padding"; i=$((i+1)); done`)
	parser := outputparser.New(writeScript(t, dir, "parser", `wc -l | tr -d ' '`))

	manager := UnixCommandManager{Parser: parser}
	result, err := manager.Run(context.Background(), CommandConfig{Command: source, Parser: "x"})
	require.NoError(t, err)
	assert.Equal(t, "20000\n", result.STDOUT)
}

func TestRunLocalNonZeroExitStillParses(t *testing.T) {
	dir := t.TempDir()
	source := writeScript(t, dir, "source", `echo partial; echo oops >&2; exit 3`)
	manager := UnixCommandManager{Parser: fakeParser(t, dir, `[]`)}

	result, err := manager.RunLocal(context.Background(), CommandConfig{Command: source, Parser: "x"})
	require.NoError(t, err)
	assert.Equal(t, 3, result.ExitCode)
	assert.Equal(t, "oops\n", result.STDERR)
	assert.Equal(t, "[]", result.STDOUT)
}

func TestRunLocalSpawnFailures(t *testing.T) {
	dir := t.TempDir()
	manager := UnixCommandManager{Parser: fakeParser(t, dir, `{}`)}

	_, err := manager.RunLocal(context.Background(), CommandConfig{Command: filepath.Join(dir, "missing"), Parser: "x"})
	assert.True(t, common.IsKind(err, common.SpawnFailure), "got %v", err)

	manager.Parser = outputparser.New(filepath.Join(dir, "no-parser"))
	_, err = manager.RunLocal(context.Background(), CommandConfig{Command: "echo", Args: []string{"hi"}, Parser: "x"})
	assert.True(t, common.IsKind(err, common.SpawnFailure), "got %v", err)
}

func TestRunLocalParserFailure(t *testing.T) {
	dir := t.TempDir()
	parser := outputparser.New(writeScript(t, dir, "parser", `cat >/dev/null; echo "unknown parser" >&2; exit 1`))
	manager := UnixCommandManager{Parser: parser}

	_, err := manager.RunLocal(context.Background(), CommandConfig{Command: "echo", Args: []string{"hi"}, Parser: "x"})
	require.Error(t, err)
	assert.True(t, common.IsKind(err, common.ParseFailure))
	assert.Contains(t, err.Error(), "unknown parser")
}

func TestRunLocalInvalidUTF8(t *testing.T) {
	dir := t.TempDir()
	parser := outputparser.New(writeScript(t, dir, "parser", `cat >/dev/null; printf '\377\376'`))
	manager := UnixCommandManager{Parser: parser}

	_, err := manager.RunLocal(context.Background(), CommandConfig{Command: "echo", Parser: "x"})
	assert.True(t, common.IsKind(err, common.StreamFailure), "got %v", err)
}

func TestRunLocalContextCanceled(t *testing.T) {
	dir := t.TempDir()
	manager := UnixCommandManager{Parser: fakeParser(t, dir, `{}`)}

	ctx, cancel := context.WithTimeout(context.Background(), 100*time.Millisecond)
	defer cancel()
	_, err := manager.RunLocal(ctx, CommandConfig{Command: "sleep", Args: []string{"5"}, Parser: "x"})
	assert.ErrorIs(t, err, context.DeadlineExceeded)
}

func TestIsLocal(t *testing.T) {
	manager := UnixCommandManager{
		Hostname: "localhost",
	}

	if !manager.isLocal() {
		t.Errorf("Expected isLocal to return true for localhost")
	}

	manager.Hostname = ""
	if !manager.isLocal() {
		t.Errorf("Expected isLocal to return true for an empty host")
	}

	manager.Hostname = "example.com"
	if manager.isLocal() {
		t.Errorf("Expected isLocal to return false for example.com")
	}
}

func TestRunRemoteDialError(t *testing.T) {
	dir := t.TempDir()
	dialer := &MockSSHClient{connectError: errors.New("mock dial error")}
	manager := UnixCommandManager{
		Hostname:  "remote",
		SSHClient: dialer,
		Resolver:  testResolver(t),
		Parser:    fakeParser(t, dir, `{}`),
	}

	_, err := manager.Run(context.Background(), CommandConfig{Command: "ls", Parser: "ls"})
	require.Error(t, err)
	assert.True(t, common.IsKind(err, common.RemoteConnectFailure))
	assert.Equal(t, []string{"remote:22"}, dialer.dialed)

	_, statErr := os.Stat(filepath.Join(dir, "parser.args"))
	assert.True(t, os.IsNotExist(statErr), "parser must not run when the host is unreachable")
}

func TestRunRemoteUnresolvableHost(t *testing.T) {
	dir := t.TempDir()
	manager := UnixCommandManager{
		Hostname:  "no-such-host.invalid",
		SSHClient: RealSSHClient{},
		Resolver:  testResolver(t),
		Parser:    fakeParser(t, dir, `{}`),
	}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	_, err := manager.RunRemote(ctx, CommandConfig{Command: "uptime", Parser: "uptime"})
	require.Error(t, err)
	assert.True(t, common.IsKind(err, common.RemoteConnectFailure), "got %v", err)

	_, statErr := os.Stat(filepath.Join(dir, "parser.args"))
	assert.True(t, os.IsNotExist(statErr))
}

func TestRunRemoteUnresolvableHostDefaultSettings(t *testing.T) {
	for name, password := range map[string]string{"no credentials": "", "password only": "password"} {
		t.Run(name, func(t *testing.T) {
			settings := sshmanager.DefaultSettings(t.TempDir())
			settings.Password = password
			resolver, err := sshmanager.NewResolver(settings)
			require.NoError(t, err)

			manager := UnixCommandManager{
				Hostname:  "no-such-host.invalid",
				SSHClient: RealSSHClient{},
				Resolver:  resolver,
				Parser:    fakeParser(t, t.TempDir(), `{}`),
			}

			ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
			defer cancel()
			_, err = manager.RunRemote(ctx, CommandConfig{Command: "uptime", Parser: "uptime"})
			require.Error(t, err)
			assert.True(t, common.IsKind(err, common.RemoteConnectFailure), "got %v", err)
		})
	}
}

func TestRunRemoteMissingCredentialsAfterConnect(t *testing.T) {
	client, server := net.Pipe()
	t.Cleanup(func() { server.Close() })

	resolver, err := sshmanager.NewResolver(sshmanager.DefaultSettings(t.TempDir()))
	require.NoError(t, err)

	dialer := &MockSSHClient{conn: client}
	manager := UnixCommandManager{Hostname: "remote", SSHClient: dialer, Resolver: resolver}

	_, err = manager.RunRemote(context.Background(), CommandConfig{Command: "ls", Parser: "ls"})
	require.Error(t, err)
	assert.True(t, common.IsKind(err, common.RemoteAuthFailure), "got %v", err)
	assert.Equal(t, []string{"remote:22"}, dialer.dialed)
	assert.Equal(t, 0, dialer.handshakes)
}

func TestRunRemoteHandshakeError(t *testing.T) {
	client, server := net.Pipe()
	t.Cleanup(func() { server.Close() })

	dialer := &MockSSHClient{conn: client}
	manager := UnixCommandManager{Hostname: "remote", SSHClient: dialer, Resolver: testResolver(t)}

	_, err := manager.RunRemote(context.Background(), CommandConfig{Command: "ls", Parser: "ls"})
	require.Error(t, err)
	assert.True(t, common.IsKind(err, common.RemoteAuthFailure), "got %v", err)
	assert.Equal(t, 1, dialer.handshakes)
}

// startSSHServer serves password "secret" on a loopback port. handle runs
// once per exec request and returns the exit status to report.
func startSSHServer(t *testing.T, handle func(ch ssh.Channel) uint32) (int, <-chan string) {
	t.Helper()
	_, priv, err := ed25519.GenerateKey(rand.Reader)
	require.NoError(t, err)
	signer, err := ssh.NewSignerFromKey(priv)
	require.NoError(t, err)

	config := &ssh.ServerConfig{
		PasswordCallback: func(c ssh.ConnMetadata, pass []byte) (*ssh.Permissions, error) {
			if string(pass) != "secret" {
				return nil, errors.New("wrong password")
			}
			return nil, nil
		},
	}
	config.AddHostKey(signer)

	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	t.Cleanup(func() { ln.Close() })

	commands := make(chan string, 8)
	go func() {
		for {
			nc, err := ln.Accept()
			if err != nil {
				return
			}
			go serveSSH(nc, config, commands, handle)
		}
	}()
	return ln.Addr().(*net.TCPAddr).Port, commands
}

func serveSSH(nc net.Conn, config *ssh.ServerConfig, commands chan<- string, handle func(ch ssh.Channel) uint32) {
	conn, chans, reqs, err := ssh.NewServerConn(nc, config)
	if err != nil {
		nc.Close()
		return
	}
	defer conn.Close()
	go ssh.DiscardRequests(reqs)

	for newChannel := range chans {
		if newChannel.ChannelType() != "session" {
			_ = newChannel.Reject(ssh.UnknownChannelType, "only sessions are supported")
			continue
		}
		ch, requests, err := newChannel.Accept()
		if err != nil {
			return
		}
		go func() {
			for req := range requests {
				var exec struct{ Command string }
				if req.Type != "exec" || ssh.Unmarshal(req.Payload, &exec) != nil {
					_ = req.Reply(false, nil)
					continue
				}
				_ = req.Reply(true, nil)
				commands <- exec.Command

				status := handle(ch)
				_, _ = ch.SendRequest("exit-status", false, ssh.Marshal(struct{ Status uint32 }{status}))
				ch.Close()
			}
		}()
	}
}

func serverManager(t *testing.T, port int, dir string) *UnixCommandManager {
	t.Helper()
	settings := sshmanager.DefaultSettings(t.TempDir())
	settings.Password = "secret"
	settings.InsecureIgnoreHostKey = true
	settings.DefaultPort = port
	resolver, err := sshmanager.NewResolver(settings)
	require.NoError(t, err)

	return &UnixCommandManager{
		Hostname:  "127.0.0.1",
		SSHClient: RealSSHClient{},
		Resolver:  resolver,
		Parser:    fakeParser(t, dir, `{"ok":1}`),
	}
}

func TestRunRemoteReadsUntilEOF(t *testing.T) {
	port, commands := startSSHServer(t, func(ch ssh.Channel) uint32 {
		time.Sleep(200 * time.Millisecond)
		_, _ = ch.Write([]byte(" 10:00  up 1 day\n"))
		return 0
	})
	dir := t.TempDir()
	manager := serverManager(t, port, dir)

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	result, err := manager.RunRemote(ctx, CommandConfig{Command: "uptime", Parser: "uptime"})
	require.NoError(t, err)

	assert.Equal(t, "uptime", <-commands)
	assert.Equal(t, `{"ok":1}`, result.STDOUT)
	assert.Equal(t, 0, result.ExitCode)
	assert.Equal(t, "uptime", result.Command)

	stdin, err := os.ReadFile(filepath.Join(dir, "parser.stdin"))
	require.NoError(t, err)
	assert.Equal(t, " 10:00  up 1 day\n\n", string(stdin))

	args, err := os.ReadFile(filepath.Join(dir, "parser.args"))
	require.NoError(t, err)
	assert.Equal(t, "--uptime\n", string(args))
}

func TestRunRemoteNonZeroExitStillParses(t *testing.T) {
	port, commands := startSSHServer(t, func(ch ssh.Channel) uint32 {
		_, _ = ch.Write([]byte("partial\n"))
		_, _ = ch.Stderr().Write([]byte("permission denied"))
		return 3
	})
	dir := t.TempDir()
	manager := serverManager(t, port, dir)

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	result, err := manager.RunRemote(ctx, CommandConfig{Command: "ls", Args: []string{"-l", "/root"}, Parser: "ls"})
	require.NoError(t, err)

	assert.Equal(t, "ls -l /root", <-commands)
	assert.Equal(t, 3, result.ExitCode)
	assert.Equal(t, "permission denied", result.STDERR)
	assert.Equal(t, `{"ok":1}`, result.STDOUT)

	stdin, err := os.ReadFile(filepath.Join(dir, "parser.stdin"))
	require.NoError(t, err)
	assert.Equal(t, "partial\n\n", string(stdin))
}

func TestRunRemoteWrongPassword(t *testing.T) {
	port, _ := startSSHServer(t, func(ch ssh.Channel) uint32 { return 0 })
	manager := serverManager(t, port, t.TempDir())
	settings := manager.Resolver.Settings().Apply(sshmanager.WithPassword("nope"))
	resolver, err := sshmanager.NewResolver(settings)
	require.NoError(t, err)
	manager.Resolver = resolver

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	_, err = manager.RunRemote(ctx, CommandConfig{Command: "uptime", Parser: "uptime"})
	require.Error(t, err)
	assert.True(t, common.IsKind(err, common.RemoteAuthFailure), "got %v", err)
}

func TestRunRemoteNotInitialized(t *testing.T) {
	manager := UnixCommandManager{Hostname: "remote"}
	_, err := manager.RunRemote(context.Background(), CommandConfig{Command: "ls"})
	assert.True(t, common.IsKind(err, common.RemoteConnectFailure))
}

func TestCommandLine(t *testing.T) {
	assert.Equal(t, "ps aux", CommandConfig{Command: "ps", Args: []string{"aux"}}.CommandLine())
	assert.Equal(t, "uptime", CommandConfig{Command: "uptime"}.CommandLine())
}
