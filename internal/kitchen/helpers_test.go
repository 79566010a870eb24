package kitchen

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"kitchenctl/internal/sshtest"
)

func testConfig(srv *sshtest.Server) Config {
	return Config{
		Username:   srv.User,
		Hostname:   srv.Host,
		Port:       srv.Port,
		SSHKeyPath: srv.KeyPath,
		SSHTimeout: 5 * time.Second,
		RootPath:   DefaultRootPath,
	}
}

func newTestHost(t *testing.T, h sshtest.Handler) (*sshtest.Server, *Host) {
	t.Helper()
	srv := sshtest.Start(t, h)
	host, err := NewHost(testConfig(srv), nil)
	require.NoError(t, err)
	t.Cleanup(func() { _ = host.Close() })
	return srv, host
}

func count(cmds []string, want string) int {
	n := 0
	for _, c := range cmds {
		if c == want {
			n++
		}
	}
	return n
}

// clearKitchenEnv blanks every variable LoadConfig reads.
func clearKitchenEnv(t *testing.T) {
	for _, name := range []string{
		"KITCHEN_USERNAME", "KITCHEN_HOSTNAME", "KITCHEN_PORT", "KITCHEN_SSH_KEY",
		"KITCHEN_KNOWN_HOSTS", "KITCHEN_SSH_TIMEOUT_SECONDS", "KITCHEN_ROOT_PATH",
		"KITCHEN_DROPLET_TAG", "DO_ACCESS_TOKEN", "DIGITALOCEAN_ACCESS_TOKEN",
		"LOG_DIR", "REPORT_DIR", "SSH_AUTH_SOCK",
	} {
		t.Setenv(name, "")
	}
}
