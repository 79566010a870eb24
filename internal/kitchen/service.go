package kitchen

import (
	"context"
	"fmt"

	shellquote "github.com/kballard/go-shellquote"
)

type initSystem int

const (
	initUnknown initSystem = iota
	initSystemd
	initSysV
)

func (i initSystem) String() string {
	switch i {
	case initSystemd:
		return "systemd"
	case initSysV:
		return "sysv"
	default:
		return "unknown"
	}
}

const detectSystemdCmd = `command -v systemctl >/dev/null 2>&1 && test "$(ps -p 1 -o comm= 2>/dev/null)" = systemd`

// Service inspects one service on the remote host.
type Service struct {
	host *Host
	Name string
}

func (h *Host) Service(name string) *Service {
	return &Service{host: h, Name: name}
}

// initSystem detects the service manager once per host.
func (h *Host) initSystem(ctx context.Context) (initSystem, error) {
	h.mu.Lock()
	cached := h.init
	h.mu.Unlock()
	if cached != initUnknown {
		return cached, nil
	}

	res, err := h.Run(ctx, detectSystemdCmd)
	if err != nil {
		return initUnknown, err
	}
	detected := initSysV
	if res.Succeeded() {
		detected = initSystemd
	}

	h.mu.Lock()
	h.init = detected
	h.mu.Unlock()
	h.log.Debug("init system", "kind", detected.String())
	return detected, nil
}

// IsRunning reports whether the service is active.
func (s *Service) IsRunning(ctx context.Context) (bool, error) {
	kind, err := s.host.initSystem(ctx)
	if err != nil {
		return false, err
	}
	if kind == initSystemd {
		res, err := s.host.Runf(ctx, "systemctl is-active %s", s.Name)
		if err != nil {
			return false, err
		}
		// Exit 1 means systemctl could not talk to the bus.
		if res.ExitStatus != 1 {
			return res.Succeeded(), nil
		}
	}
	res, err := s.host.Runf(ctx, "service %s status", s.Name)
	if err != nil {
		return false, err
	}
	return res.Succeeded(), nil
}

// IsEnabled reports whether the service starts at boot.
func (s *Service) IsEnabled(ctx context.Context) (bool, error) {
	kind, err := s.host.initSystem(ctx)
	if err != nil {
		return false, err
	}
	if kind == initSystemd {
		res, err := s.host.Runf(ctx, "systemctl is-enabled %s", s.Name)
		if err != nil {
			return false, err
		}
		if res.Succeeded() {
			return true, nil
		}
		if res.Output() == "disabled" {
			return false, nil
		}
	}
	// The rc glob must stay unquoted.
	res, err := s.host.Run(ctx, "ls /etc/rc?.d/S??"+shellquote.Join(s.Name))
	if err != nil {
		return false, err
	}
	return res.Succeeded(), nil
}

// ServiceStatus is a snapshot of both service properties.
type ServiceStatus struct {
	Name      string `json:"name"`
	IsRunning bool   `json:"is_running"`
	IsEnabled bool   `json:"is_enabled"`
}

func (s *Service) Status(ctx context.Context) (ServiceStatus, error) {
	st := ServiceStatus{Name: s.Name}
	var err error
	if st.IsRunning, err = s.IsRunning(ctx); err != nil {
		return st, fmt.Errorf("service %s: %w", s.Name, err)
	}
	if st.IsEnabled, err = s.IsEnabled(ctx); err != nil {
		return st, fmt.Errorf("service %s: %w", s.Name, err)
	}
	return st, nil
}

func (st ServiceStatus) String() string {
	return fmt.Sprintf("%s running=%s enabled=%s", st.Name, yesNo(st.IsRunning), yesNo(st.IsEnabled))
}

func yesNo(b bool) string {
	if b {
		return "yes"
	}
	return "no"
}

// Reasons lists what is wrong with st, empty when running and enabled.
func (st ServiceStatus) Reasons() []string {
	var reasons []string
	if !st.IsRunning {
		reasons = append(reasons, fmt.Sprintf("%s service not running", st.Name))
	}
	if !st.IsEnabled {
		reasons = append(reasons, fmt.Sprintf("%s service not enabled", st.Name))
	}
	return reasons
}
