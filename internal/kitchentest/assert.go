package kitchentest

import (
	"context"

	"github.com/stretchr/testify/require"

	"kitchenctl/internal/kitchen"
)

// HostAssertions are fluent, fail-fast assertions against one host.
type HostAssertions struct {
	t    T
	ctx  context.Context
	host *kitchen.Host
}

func Assert(t T, host *kitchen.Host) *HostAssertions {
	return &HostAssertions{t: t, ctx: testContext(t), host: host}
}

func (a *HostAssertions) WithContext(ctx context.Context) *HostAssertions {
	cp := *a
	cp.ctx = ctx
	return &cp
}

// Succeeded asserts a command result exited 0.
func (a *HostAssertions) Succeeded(res *kitchen.CommandResult) *HostAssertions {
	a.t.Helper()
	require.NotNil(a.t, res)
	if res == nil {
		return a
	}
	require.Equalf(a.t, 0, res.ExitStatus, "%q exited %d on %s: %s", res.Command, res.ExitStatus, a.host, res.Stderr)
	return a
}

type ServiceAssertions struct {
	*HostAssertions
	svc *kitchen.Service
}

func (a *HostAssertions) Service(name string) *ServiceAssertions {
	return &ServiceAssertions{HostAssertions: a, svc: a.host.Service(name)}
}

func (a *ServiceAssertions) IsRunning() *ServiceAssertions {
	a.t.Helper()
	running, err := a.svc.IsRunning(a.ctx)
	require.NoErrorf(a.t, err, "service %s on %s", a.svc.Name, a.host)
	require.Truef(a.t, running, "is_running: service %s is not running on %s", a.svc.Name, a.host)
	return a
}

func (a *ServiceAssertions) IsEnabled() *ServiceAssertions {
	a.t.Helper()
	enabled, err := a.svc.IsEnabled(a.ctx)
	require.NoErrorf(a.t, err, "service %s on %s", a.svc.Name, a.host)
	require.Truef(a.t, enabled, "is_enabled: service %s is not enabled on %s", a.svc.Name, a.host)
	return a
}

type SocketAssertions struct {
	*HostAssertions
	spec string
	sock *kitchen.Socket
}

func (a *HostAssertions) Socket(spec string) *SocketAssertions {
	a.t.Helper()
	sock, err := a.host.Socket(spec)
	require.NoError(a.t, err)
	return &SocketAssertions{HostAssertions: a, spec: spec, sock: sock}
}

func (a *SocketAssertions) IsListening() *SocketAssertions {
	a.t.Helper()
	if a.sock == nil {
		return a
	}
	listening, err := a.sock.IsListening(a.ctx)
	require.NoErrorf(a.t, err, "socket %s on %s", a.spec, a.host)
	require.Truef(a.t, listening, "is_listening: nothing listens on %s on %s", a.spec, a.host)
	return a
}

func (a *SocketAssertions) IsNotListening() *SocketAssertions {
	a.t.Helper()
	if a.sock == nil {
		return a
	}
	listening, err := a.sock.IsListening(a.ctx)
	require.NoErrorf(a.t, err, "socket %s on %s", a.spec, a.host)
	require.Falsef(a.t, listening, "is_listening: %s is unexpectedly listening on %s", a.spec, a.host)
	return a
}

type FileAssertions struct {
	*HostAssertions
	file *kitchen.File
}

func (a *HostAssertions) File(path string) *FileAssertions {
	return &FileAssertions{HostAssertions: a, file: a.host.File(path)}
}

func (a *FileAssertions) Exists() *FileAssertions {
	a.t.Helper()
	exists, err := a.file.Exists(a.ctx)
	require.NoError(a.t, err)
	require.Truef(a.t, exists, "%s does not exist on %s", a.file.Path, a.host)
	return a
}

func (a *FileAssertions) IsDirectory() *FileAssertions {
	a.t.Helper()
	isDir, err := a.file.IsDirectory(a.ctx)
	require.NoError(a.t, err)
	require.Truef(a.t, isDir, "%s is not a directory on %s", a.file.Path, a.host)
	return a
}

func (a *FileAssertions) IsOwnedBy(user string) *FileAssertions {
	a.t.Helper()
	owner, _, err := a.file.Owner(a.ctx)
	require.NoError(a.t, err)
	require.Equalf(a.t, user, owner, "owner of %s on %s", a.file.Path, a.host)
	return a
}
