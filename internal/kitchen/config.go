package kitchen

import (
	"fmt"
	"net"
	"net/url"
	"os"
	"path"
	"path/filepath"
	"strconv"
	"strings"
	"time"
)

const (
	DefaultRootPath   = "/tmp/kitchen"
	DefaultSSHTimeout = 10 * time.Second
)

type Config struct {
	RootDir string

	LogDir    string
	ReportDir string

	Username       string
	Hostname       string
	Port           int
	SSHKeyPath     string
	KnownHostsPath string
	SSHTimeout     time.Duration

	// RootPath is the kitchen root on the remote host. Salt's config lives
	// under RootPath/etc/salt.
	RootPath string

	DropletTag    string
	DOAccessToken string
}

// Overrides carries values given on the command line. They win over the
// environment.
type Overrides struct {
	HostURI    string
	DropletTag string
}

func LoadConfig(rootDir string, o Overrides) (Config, error) {
	cfg := Config{
		RootDir:    rootDir,
		LogDir:     filepath.Join(rootDir, "logs"),
		ReportDir:  filepath.Join(rootDir, "reports"),
		SSHTimeout: DefaultSSHTimeout,
		RootPath:   DefaultRootPath,
	}

	if v := strings.TrimSpace(os.Getenv("LOG_DIR")); v != "" {
		cfg.LogDir = v
	}
	if v := strings.TrimSpace(os.Getenv("REPORT_DIR")); v != "" {
		cfg.ReportDir = v
	}

	cfg.DropletTag = firstNonEmpty(o.DropletTag, os.Getenv("KITCHEN_DROPLET_TAG"))
	cfg.DOAccessToken = firstNonEmpty(
		os.Getenv("DO_ACCESS_TOKEN"),
		os.Getenv("DIGITALOCEAN_ACCESS_TOKEN"),
	)
	if cfg.DropletTag != "" && cfg.DOAccessToken == "" {
		return Config{}, &EnvError{Name: "DO_ACCESS_TOKEN", Err: ErrMissingEnv}
	}

	if uri := strings.TrimSpace(o.HostURI); uri != "" {
		user, host, port, err := ParseHostURI(uri)
		if err != nil {
			return Config{}, err
		}
		cfg.Username, cfg.Hostname, cfg.Port = user, host, port
	} else {
		var err error
		if cfg.Username, err = requireEnv("KITCHEN_USERNAME"); err != nil {
			return Config{}, err
		}
		if cfg.DropletTag == "" {
			if cfg.Hostname, err = requireEnv("KITCHEN_HOSTNAME"); err != nil {
				return Config{}, err
			}
		}
		raw, err := requireEnv("KITCHEN_PORT")
		if err != nil {
			return Config{}, err
		}
		if cfg.Port, err = parsePort(raw); err != nil {
			return Config{}, &EnvError{Name: "KITCHEN_PORT", Value: raw, Err: ErrMalformedEnv}
		}
	}

	if v := strings.TrimSpace(os.Getenv("KITCHEN_SSH_KEY")); v != "" {
		expanded, err := expandPath(v)
		if err != nil {
			return Config{}, &EnvError{Name: "KITCHEN_SSH_KEY", Value: v, Err: err}
		}
		cfg.SSHKeyPath = expanded
	}
	if v := strings.TrimSpace(os.Getenv("KITCHEN_KNOWN_HOSTS")); v != "" {
		expanded, err := expandPath(v)
		if err != nil {
			return Config{}, &EnvError{Name: "KITCHEN_KNOWN_HOSTS", Value: v, Err: err}
		}
		cfg.KnownHostsPath = expanded
	}
	if v := strings.TrimSpace(os.Getenv("KITCHEN_SSH_TIMEOUT_SECONDS")); v != "" {
		secs, err := strconv.Atoi(v)
		if err != nil || secs <= 0 {
			return Config{}, &EnvError{Name: "KITCHEN_SSH_TIMEOUT_SECONDS", Value: v, Err: ErrMalformedEnv}
		}
		cfg.SSHTimeout = time.Duration(secs) * time.Second
	}
	if v := strings.TrimSpace(os.Getenv("KITCHEN_ROOT_PATH")); v != "" {
		cfg.RootPath = path.Clean(v)
	}

	return cfg, nil
}

// SaltConfigDir is the salt config directory staged by the kitchen provisioner.
func (c Config) SaltConfigDir() string {
	return path.Join(c.RootPath, "etc", "salt")
}

func (c Config) Addr() string {
	return net.JoinHostPort(c.Hostname, strconv.Itoa(c.Port))
}

func (c Config) URI() string {
	u := url.URL{Scheme: "ssh", User: url.User(c.Username), Host: c.Addr()}
	return u.String()
}

// WithHostname returns a copy of c pointing at another machine.
func (c Config) WithHostname(host string) Config {
	c.Hostname = host
	return c
}

// ParseHostURI accepts ssh://user@host:port and paramiko://user@host:port.
func ParseHostURI(raw string) (user string, host string, port int, err error) {
	u, err := url.Parse(raw)
	if err != nil {
		return "", "", 0, fmt.Errorf("parse host uri %q: %w", raw, err)
	}
	switch u.Scheme {
	case "ssh", "paramiko":
	default:
		return "", "", 0, fmt.Errorf("host uri %q: unsupported scheme %q", raw, u.Scheme)
	}
	if u.User == nil || u.User.Username() == "" {
		return "", "", 0, fmt.Errorf("host uri %q: missing user", raw)
	}
	host = u.Hostname()
	if host == "" {
		return "", "", 0, fmt.Errorf("host uri %q: missing host", raw)
	}
	port = 22
	if p := u.Port(); p != "" {
		if port, err = parsePort(p); err != nil {
			return "", "", 0, fmt.Errorf("host uri %q: %w", raw, err)
		}
	}
	return u.User.Username(), host, port, nil
}

func requireEnv(name string) (string, error) {
	v := strings.TrimSpace(os.Getenv(name))
	if v == "" {
		return "", &EnvError{Name: name, Err: ErrMissingEnv}
	}
	return v, nil
}

func parsePort(v string) (int, error) {
	port, err := strconv.Atoi(strings.TrimSpace(v))
	if err != nil {
		return 0, err
	}
	if port <= 0 || port >= 65536 {
		return 0, fmt.Errorf("port %d out of range", port)
	}
	return port, nil
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if v = strings.TrimSpace(v); v != "" {
			return v
		}
	}
	return ""
}

func expandPath(p string) (string, error) {
	p = strings.TrimSpace(p)
	if p == "" {
		return "", ErrMissingEnv
	}

	if strings.HasPrefix(p, "~"+string(os.PathSeparator)) || strings.HasPrefix(p, "~/") {
		home, err := os.UserHomeDir()
		if err != nil {
			return "", err
		}
		p = filepath.Join(home, strings.TrimPrefix(strings.TrimPrefix(p, "~"+string(os.PathSeparator)), "~/"))
	}

	p = filepath.FromSlash(p)
	return filepath.Clean(p), nil
}
