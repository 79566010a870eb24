package kitchen

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"os"
	"path/filepath"
	"sync"
	"time"

	shellquote "github.com/kballard/go-shellquote"
	"golang.org/x/crypto/ssh"
	"golang.org/x/crypto/ssh/agent"
	"golang.org/x/crypto/ssh/knownhosts"
)

var defaultIdentityFiles = []string{"id_ed25519", "id_ecdsa", "id_rsa"}

// Host is a handle on one machine reachable over SSH. Connection parameters
// are fixed at construction; the connection itself is opened on first use and
// reused for every command until Close.
type Host struct {
	cfg     Config
	auths   []ssh.AuthMethod
	hostKey ssh.HostKeyCallback
	log     *slog.Logger

	mu        sync.Mutex
	client    *ssh.Client
	agentConn net.Conn
	init      initSystem
}

// NewHost prepares a handle for cfg. It reads the identity file but does not
// touch the network.
func NewHost(cfg Config, logger *slog.Logger) (*Host, error) {
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	h := &Host{
		cfg: cfg,
		log: logger.With("host", cfg.URI()),
	}

	if err := h.loadAuth(); err != nil {
		return nil, err
	}

	h.hostKey = ssh.InsecureIgnoreHostKey()
	if cfg.KnownHostsPath != "" {
		cb, err := knownhosts.New(cfg.KnownHostsPath)
		if err != nil {
			h.closeAgent()
			return nil, fmt.Errorf("load known hosts %s: %w", cfg.KnownHostsPath, err)
		}
		h.hostKey = cb
	}
	return h, nil
}

func (h *Host) Config() Config {
	return h.cfg
}

func (h *Host) String() string {
	return h.cfg.URI()
}

func (h *Host) loadAuth() error {
	if h.cfg.SSHKeyPath != "" {
		signer, err := readSigner(h.cfg.SSHKeyPath)
		if err != nil {
			return err
		}
		h.auths = []ssh.AuthMethod{ssh.PublicKeys(signer)}
		return nil
	}

	if sock := os.Getenv("SSH_AUTH_SOCK"); sock != "" {
		conn, err := net.Dial("unix", sock)
		if err == nil {
			h.agentConn = conn
			h.auths = append(h.auths, ssh.PublicKeysCallback(agent.NewClient(conn).Signers))
		} else {
			h.log.Debug("ssh agent unavailable", "socket", sock, "err", err)
		}
	}

	home, err := os.UserHomeDir()
	if err != nil {
		return nil
	}
	var signers []ssh.Signer
	for _, name := range defaultIdentityFiles {
		signer, err := readSigner(filepath.Join(home, ".ssh", name))
		if err != nil {
			continue
		}
		signers = append(signers, signer)
	}
	if len(signers) > 0 {
		h.auths = append(h.auths, ssh.PublicKeys(signers...))
	}
	return nil
}

func readSigner(path string) (ssh.Signer, error) {
	keyBytes, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read ssh key: %w", err)
	}
	signer, err := ssh.ParsePrivateKey(keyBytes)
	if err != nil {
		return nil, fmt.Errorf("parse ssh key %s: %w", path, err)
	}
	return signer, nil
}

func (h *Host) connect(ctx context.Context) (*ssh.Client, error) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.client != nil {
		return h.client, nil
	}

	addr := h.cfg.Addr()
	cfg := &ssh.ClientConfig{
		User:            h.cfg.Username,
		Auth:            h.auths,
		HostKeyCallback: h.hostKey,
		Timeout:         h.cfg.SSHTimeout,
	}

	d := net.Dialer{Timeout: h.cfg.SSHTimeout}
	conn, err := d.DialContext(ctx, "tcp", addr)
	if err != nil {
		return nil, fmt.Errorf("dial %s: %w", addr, err)
	}
	if h.cfg.SSHTimeout > 0 {
		_ = conn.SetDeadline(time.Now().Add(h.cfg.SSHTimeout))
	}
	c, chans, reqs, err := ssh.NewClientConn(conn, addr, cfg)
	if err != nil {
		conn.Close()
		return nil, fmt.Errorf("ssh handshake with %s as %s: %w", addr, h.cfg.Username, err)
	}
	_ = conn.SetDeadline(time.Time{})

	h.client = ssh.NewClient(c, chans, reqs)
	h.log.Debug("connected")
	return h.client, nil
}

// Run executes cmd through the remote user's shell and waits for it.
// Only transport failures are returned as errors.
func (h *Host) Run(ctx context.Context, cmd string) (*CommandResult, error) {
	client, err := h.connect(ctx)
	if err != nil {
		return nil, err
	}

	sess, err := client.NewSession()
	if err != nil {
		return nil, fmt.Errorf("open session on %s: %w", h.cfg.Addr(), err)
	}
	defer sess.Close()

	var stdout, stderr bytes.Buffer
	sess.Stdout = &stdout
	sess.Stderr = &stderr

	done := make(chan error, 1)
	go func() { done <- sess.Run(cmd) }()

	select {
	case <-ctx.Done():
		_ = sess.Close()
		<-done
		return nil, ctx.Err()
	case err = <-done:
	}

	res := &CommandResult{
		Command: cmd,
		Stdout:  stdout.String(),
		Stderr:  stderr.String(),
	}
	if err != nil {
		var exitErr *ssh.ExitError
		if !errors.As(err, &exitErr) {
			return nil, fmt.Errorf("run %q on %s: %w", cmd, h.cfg.Addr(), err)
		}
		res.ExitStatus = exitErr.ExitStatus()
	}
	h.log.Debug("command", "cmd", cmd, "exit", res.ExitStatus)
	return res, nil
}

// Runf formats a command, shell-quoting every argument.
func (h *Host) Runf(ctx context.Context, format string, args ...any) (*CommandResult, error) {
	quoted := make([]any, len(args))
	for i, a := range args {
		quoted[i] = shellquote.Join(fmt.Sprint(a))
	}
	return h.Run(ctx, fmt.Sprintf(format, quoted...))
}

// Exists reports whether name resolves to a command on the remote PATH.
func (h *Host) Exists(ctx context.Context, name string) (bool, error) {
	res, err := h.Runf(ctx, "command -v %s", name)
	if err != nil {
		return false, err
	}
	return res.Succeeded(), nil
}

func (h *Host) Close() error {
	h.mu.Lock()
	defer h.mu.Unlock()

	var err error
	if h.client != nil {
		err = h.client.Close()
		h.client = nil
	}
	h.closeAgent()
	return err
}

func (h *Host) closeAgent() {
	if h.agentConn != nil {
		_ = h.agentConn.Close()
		h.agentConn = nil
	}
}
