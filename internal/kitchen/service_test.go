package kitchen

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"

	"kitchenctl/internal/sshtest"
)

func TestServiceSystemd(t *testing.T) {
	srv, host := newTestHost(t, sshtest.Script{
		detectSystemdCmd:             {},
		"systemctl is-active mysql":  {Stdout: "active\n"},
		"systemctl is-enabled mysql": {Stdout: "enabled\n"},
	}.Handle)
	ctx := context.Background()
	svc := host.Service("mysql")

	running, err := svc.IsRunning(ctx)
	require.NoError(t, err)
	require.True(t, running)

	enabled, err := svc.IsEnabled(ctx)
	require.NoError(t, err)
	require.True(t, enabled)

	st, err := svc.Status(ctx)
	require.NoError(t, err)
	require.Empty(t, st.Reasons())
	require.Equal(t, "mysql running=yes enabled=yes", st.String())

	require.Equal(t, 1, count(srv.Commands(), detectSystemdCmd), "init system is detected once per host")
}

func TestServiceSystemdStopped(t *testing.T) {
	_, host := newTestHost(t, sshtest.Script{
		detectSystemdCmd:             {},
		"systemctl is-active mysql":  {Stdout: "inactive\n", Exit: 3},
		"systemctl is-enabled mysql": {Stdout: "enabled\n"},
	}.Handle)

	st, err := host.Service("mysql").Status(context.Background())
	require.NoError(t, err)
	require.False(t, st.IsRunning)
	require.True(t, st.IsEnabled)
	require.Equal(t, []string{"mysql service not running"}, st.Reasons())
}

func TestServiceSystemdDisabled(t *testing.T) {
	srv, host := newTestHost(t, sshtest.Script{
		detectSystemdCmd:             {},
		"systemctl is-enabled mysql": {Stdout: "disabled\n", Exit: 1},
	}.Handle)

	enabled, err := host.Service("mysql").IsEnabled(context.Background())
	require.NoError(t, err)
	require.False(t, enabled)
	require.Zero(t, count(srv.Commands(), "ls /etc/rc?.d/S??mysql"), "disabled is final, no SysV fallback")
}

func TestServiceSystemdBusFailureFallsBackToSysV(t *testing.T) {
	_, host := newTestHost(t, sshtest.Script{
		detectSystemdCmd:            {},
		"systemctl is-active mysql": {Stderr: "Failed to connect to bus\n", Exit: 1},
		"service mysql status":      {Stdout: "mysqld is running\n"},
	}.Handle)

	running, err := host.Service("mysql").IsRunning(context.Background())
	require.NoError(t, err)
	require.True(t, running)
}

func TestServiceSysV(t *testing.T) {
	_, host := newTestHost(t, sshtest.Script{
		detectSystemdCmd:         {Exit: 1},
		"service mysql status":   {Stdout: "mysqld is running\n"},
		"ls /etc/rc?.d/S??mysql": {Stdout: "/etc/rc2.d/S01mysql\n"},
	}.Handle)

	st, err := host.Service("mysql").Status(context.Background())
	require.NoError(t, err)
	require.True(t, st.IsRunning)
	require.True(t, st.IsEnabled)
}

func TestServiceSysVNotEnabled(t *testing.T) {
	_, host := newTestHost(t, sshtest.Script{
		detectSystemdCmd:       {Exit: 1},
		"service mysql status": {Exit: 3},
	}.Handle)

	st, err := host.Service("mysql").Status(context.Background())
	require.NoError(t, err)
	require.Equal(t, []string{"mysql service not running", "mysql service not enabled"}, st.Reasons())
}

func TestServiceTransportError(t *testing.T) {
	srv, host := newTestHost(t, sshtest.Script{}.Handle)
	require.NoError(t, srv.Close())

	_, err := host.Service("mysql").Status(context.Background())
	require.ErrorContains(t, err, "service mysql")
}
