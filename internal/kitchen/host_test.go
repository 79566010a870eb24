package kitchen

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"

	"kitchenctl/internal/sshtest"
)

func TestHostRun(t *testing.T) {
	_, host := newTestHost(t, sshtest.Script{
		"echo hi": {Stdout: "hi\n"},
		"false":   {Stderr: "boom\n", Exit: 1},
	}.Handle)
	ctx := context.Background()

	res, err := host.Run(ctx, "echo hi")
	require.NoError(t, err)
	require.True(t, res.Succeeded())
	require.Equal(t, "echo hi", res.Command)
	require.Equal(t, "hi\n", res.Stdout)
	require.Equal(t, "hi", res.Output())

	res, err = host.Run(ctx, "false")
	require.NoError(t, err, "a non-zero exit is a result, not an error")
	require.True(t, res.Failed())
	require.Equal(t, 1, res.ExitStatus)
	require.Equal(t, "boom\n", res.Stderr)
}

func TestHostConnectsLazilyAndReusesConnection(t *testing.T) {
	srv, host := newTestHost(t, sshtest.Script{"true": {}}.Handle)
	require.Equal(t, 0, srv.Connections())

	for i := 0; i < 3; i++ {
		_, err := host.Run(context.Background(), "true")
		require.NoError(t, err)
	}
	require.Equal(t, 1, srv.Connections())
	require.Equal(t, []string{"true", "true", "true"}, srv.Commands())
}

func TestHostRunfQuotesArguments(t *testing.T) {
	srv, host := newTestHost(t, func(string) sshtest.Reply { return sshtest.Reply{} })

	_, err := host.Runf(context.Background(), "ls -ld %s %s", "/tmp/kitchen", "a dir; rm -rf /")
	require.NoError(t, err)
	require.Equal(t, []string{`ls -ld /tmp/kitchen 'a dir; rm -rf /'`}, srv.Commands())
}

func TestHostExists(t *testing.T) {
	_, host := newTestHost(t, sshtest.Script{"command -v ss": {Stdout: "/usr/bin/ss\n"}}.Handle)

	ok, err := host.Exists(context.Background(), "ss")
	require.NoError(t, err)
	require.True(t, ok)

	ok, err = host.Exists(context.Background(), "netstat")
	require.NoError(t, err)
	require.False(t, ok)
}

func TestHostRunTransportError(t *testing.T) {
	srv, host := newTestHost(t, sshtest.Script{}.Handle)
	require.NoError(t, srv.Close())

	res, err := host.Run(context.Background(), "true")
	require.Error(t, err)
	require.Nil(t, res)
}

func TestHostRunCanceledContext(t *testing.T) {
	_, host := newTestHost(t, sshtest.Script{"true": {}}.Handle)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := host.Run(ctx, "true")
	require.Error(t, err)
}

func TestHostWrongUserFailsHandshake(t *testing.T) {
	srv := sshtest.Start(t, sshtest.Script{"true": {}}.Handle)
	cfg := testConfig(srv)
	cfg.Username = "intruder"
	host, err := NewHost(cfg, nil)
	require.NoError(t, err)
	defer host.Close()

	_, err = host.Run(context.Background(), "true")
	require.ErrorContains(t, err, "ssh handshake")
}

func TestNewHostRejectsUnreadableKey(t *testing.T) {
	cfg := Config{Username: "kitchen", Hostname: "127.0.0.1", Port: 22, SSHKeyPath: filepath.Join(t.TempDir(), "missing")}
	_, err := NewHost(cfg, nil)
	require.ErrorContains(t, err, "read ssh key")
}

func TestNewHostRejectsMissingKnownHosts(t *testing.T) {
	srv := sshtest.Start(t, nil)
	cfg := testConfig(srv)
	cfg.KnownHostsPath = filepath.Join(t.TempDir(), "known_hosts")
	_, err := NewHost(cfg, nil)
	require.ErrorContains(t, err, "load known hosts")
}

func TestHostCloseWithoutConnect(t *testing.T) {
	_, host := newTestHost(t, nil)
	require.NoError(t, host.Close())
	require.NoError(t, host.Close())
}
