package checks

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"kitchenctl/internal/kitchen"
	"kitchenctl/internal/sshtest"
)

const (
	detectSystemd = `command -v systemctl >/dev/null 2>&1 && test "$(ps -p 1 -o comm= 2>/dev/null)" = systemd`
	ssTCP         = "ss --listening --numeric --tcp"
)

func newDeps(t *testing.T, script sshtest.Script) kitchen.Deps {
	t.Helper()
	srv := sshtest.Start(t, script.Handle)
	cfg := kitchen.Config{
		Username:   srv.User,
		Hostname:   srv.Host,
		Port:       srv.Port,
		SSHKeyPath: srv.KeyPath,
		SSHTimeout: 5 * time.Second,
		RootPath:   kitchen.DefaultRootPath,
	}
	host, err := kitchen.NewHost(cfg, nil)
	require.NoError(t, err)
	t.Cleanup(func() { _ = host.Close() })
	return kitchen.Deps{Config: cfg, Host: host}
}

func TestAll(t *testing.T) {
	ids := map[string]bool{}
	for _, c := range All() {
		require.NotEmpty(t, c.Title())
		require.False(t, ids[c.ID()], "duplicate check %s", c.ID())
		ids[c.ID()] = true
	}
	require.True(t, ids["mysql.service"])
	require.True(t, ids["mysql.listening"])
}

func TestMySQLServiceRunning(t *testing.T) {
	deps := newDeps(t, sshtest.Script{
		detectSystemd:                {},
		"systemctl is-active mysql":  {Stdout: "active\n"},
		"systemctl is-enabled mysql": {Stdout: "enabled\n"},
	})

	out, err := MySQLServiceRunning{Service: DefaultMySQLService}.Run(context.Background(), deps)
	require.NoError(t, err)
	require.Len(t, out.Findings, 1)
	f := out.Findings[0]
	require.True(t, f.Pass)
	require.Equal(t, "mysql", f.ResourceName)
	require.Equal(t, map[string]string{"is_running": "yes", "is_enabled": "yes"}, f.Evidence)
}

func TestMySQLServiceStoppedAndDisabled(t *testing.T) {
	deps := newDeps(t, sshtest.Script{
		detectSystemd:                {},
		"systemctl is-active mysql":  {Stdout: "inactive\n", Exit: 3},
		"systemctl is-enabled mysql": {Stdout: "disabled\n", Exit: 1},
	})

	out, err := MySQLServiceRunning{Service: DefaultMySQLService}.Run(context.Background(), deps)
	require.NoError(t, err)
	f := out.Findings[0]
	require.False(t, f.Pass)
	require.Equal(t, "mysql service not running; mysql service not enabled", f.Reason)
}

func TestMySQLListening(t *testing.T) {
	deps := newDeps(t, sshtest.Script{
		ssTCP: {Stdout: "State Recv-Q Send-Q Local Address:Port Peer Address:Port\nLISTEN 0 151 127.0.0.1:3306 0.0.0.0:*\n"},
	})

	out, err := MySQLListening{Socket: DefaultMySQLSocket}.Run(context.Background(), deps)
	require.NoError(t, err)
	f := out.Findings[0]
	require.True(t, f.Pass)
	require.Equal(t, "tcp://127.0.0.1:3306", f.ResourceName)
}

func TestMySQLNotListening(t *testing.T) {
	deps := newDeps(t, sshtest.Script{
		ssTCP: {Stdout: "State Recv-Q Send-Q Local Address:Port Peer Address:Port\nLISTEN 0 128 0.0.0.0:22 0.0.0.0:*\n"},
	})

	out, err := MySQLListening{Socket: DefaultMySQLSocket}.Run(context.Background(), deps)
	require.NoError(t, err)
	f := out.Findings[0]
	require.False(t, f.Pass)
	require.Equal(t, "Nothing listening on tcp://127.0.0.1:3306", f.Reason)
}

func TestMySQLListeningBadSocket(t *testing.T) {
	deps := newDeps(t, sshtest.Script{})

	_, err := MySQLListening{Socket: "tcp://localhost:3306"}.Run(context.Background(), deps)
	require.Error(t, err)
}

func TestSaltWorkdirOwned(t *testing.T) {
	root := t.TempDir()
	deps := newDeps(t, sshtest.Script{
		"stat -c '%U %G' " + root: {Stdout: "kitchen kitchen\n"},
	})
	deps.Config.RootPath = root

	out, err := SaltWorkdirOwned{}.Run(context.Background(), deps)
	require.NoError(t, err)
	f := out.Findings[0]
	require.True(t, f.Pass, f.Reason)
	require.Equal(t, "kitchen", f.Evidence["owner"])
	require.Equal(t, "yes", f.Evidence["is_directory"])
}

func TestSaltWorkdirOwnedByRoot(t *testing.T) {
	root := t.TempDir()
	deps := newDeps(t, sshtest.Script{
		"stat -c '%U %G' " + root: {Stdout: "root root\n"},
	})
	deps.Config.RootPath = root

	out, err := SaltWorkdirOwned{}.Run(context.Background(), deps)
	require.NoError(t, err)
	f := out.Findings[0]
	require.False(t, f.Pass)
	require.Equal(t, "owned by root, want kitchen", f.Reason)
}

func TestSaltWorkdirMissing(t *testing.T) {
	deps := newDeps(t, sshtest.Script{})
	deps.Config.RootPath = filepath.Join(t.TempDir(), "kitchen")

	out, err := SaltWorkdirOwned{}.Run(context.Background(), deps)
	require.NoError(t, err)
	f := out.Findings[0]
	require.False(t, f.Pass)
	require.Equal(t, "Kitchen root does not exist", f.Reason)
}
