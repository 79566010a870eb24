package kitchen

import (
	"context"
	"log/slog"
	"strings"
)

// Session owns the one Host a test run talks to. Create it once, hand it to
// every test, Close it at the end.
type Session struct {
	cfg  Config
	host *Host
	log  *slog.Logger
}

// NewSession needs a concrete host: a config that only names a droplet tag
// is rejected.
func NewSession(cfg Config, logger *slog.Logger) (*Session, error) {
	if cfg.Hostname == "" {
		return nil, &EnvError{Name: "KITCHEN_HOSTNAME", Err: ErrMissingEnv}
	}
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	host, err := NewHost(cfg, logger)
	if err != nil {
		return nil, err
	}
	return &Session{cfg: cfg, host: host, log: logger}, nil
}

// SessionFromEnv loads KITCHEN_* variables and builds a session. Missing or
// malformed variables fail here, before any command runs.
func SessionFromEnv(logger *slog.Logger) (*Session, error) {
	cfg, err := LoadConfig(".", Overrides{})
	if err != nil {
		return nil, err
	}
	return NewSession(cfg, logger)
}

func (s *Session) Config() Config {
	return s.cfg
}

// Host returns the shared handle.
func (s *Session) Host() *Host {
	return s.host
}

// Salt gives the kitchen root back to the login user, then returns a salt-call
// bound to the staged config directory. The chown is best effort: its result
// is kept on the command and only a transport failure is returned.
func (s *Session) Salt(ctx context.Context) (*SaltCommand, error) {
	res, err := s.host.Runf(ctx, "sudo chown -R %s %s", s.cfg.Username, s.cfg.RootPath)
	if err != nil {
		return nil, err
	}
	if res.Failed() {
		s.log.Warn("chown of kitchen root failed",
			"path", s.cfg.RootPath,
			"exit", res.ExitStatus,
			"stderr", strings.TrimSpace(res.Stderr),
		)
	}

	cmd := s.host.Salt(s.cfg.SaltConfigDir())
	cmd.ownership = res
	return cmd, nil
}

func (s *Session) Close() error {
	return s.host.Close()
}
