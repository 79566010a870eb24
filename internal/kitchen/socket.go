package kitchen

import (
	"context"
	"fmt"
	"net/netip"
	"strconv"
	"strings"
)

// Socket describes a listening endpoint in URI form:
//
//	tcp://3306             any address
//	tcp://127.0.0.1:3306
//	tcp://[::1]:3306
//	udp://0.0.0.0:53
//	unix:///run/mysqld/mysqld.sock
type Socket struct {
	host *Host

	Protocol string
	Address  string
	Port     int
	Path     string
}

func (h *Host) Socket(spec string) (*Socket, error) {
	s, err := ParseSocket(spec)
	if err != nil {
		return nil, err
	}
	s.host = h
	return &s, nil
}

func ParseSocket(spec string) (Socket, error) {
	scheme, rest, ok := strings.Cut(spec, "://")
	if !ok {
		return Socket{}, fmt.Errorf("socket %q: expected <proto>://<address>", spec)
	}

	switch scheme {
	case "unix":
		if !strings.HasPrefix(rest, "/") {
			return Socket{}, fmt.Errorf("socket %q: unix socket path must be absolute", spec)
		}
		return Socket{Protocol: scheme, Path: rest}, nil
	case "tcp", "udp":
	default:
		return Socket{}, fmt.Errorf("socket %q: unsupported protocol %q", spec, scheme)
	}

	var host, portStr string
	if i := strings.LastIndex(rest, ":"); i >= 0 {
		host, portStr = rest[:i], rest[i+1:]
	} else {
		portStr = rest
	}
	port, err := parsePort(portStr)
	if err != nil {
		return Socket{}, fmt.Errorf("socket %q: %w", spec, err)
	}

	host = strings.TrimSuffix(strings.TrimPrefix(host, "["), "]")
	if host != "" {
		addr, err := netip.ParseAddr(host)
		if err != nil {
			return Socket{}, fmt.Errorf("socket %q: %w", spec, err)
		}
		host = addr.WithZone("").String()
	}
	return Socket{Protocol: scheme, Address: host, Port: port}, nil
}

func (s Socket) String() string {
	switch {
	case s.Protocol == "unix":
		return "unix://" + s.Path
	case s.Address == "":
		return fmt.Sprintf("%s://%d", s.Protocol, s.Port)
	case strings.Contains(s.Address, ":"):
		return fmt.Sprintf("%s://[%s]:%d", s.Protocol, s.Address, s.Port)
	default:
		return fmt.Sprintf("%s://%s:%d", s.Protocol, s.Address, s.Port)
	}
}

// IsListening reports whether something on the remote host listens on s.
// A socket bound to the wildcard address of the same family also counts.
func (s *Socket) IsListening(ctx context.Context) (bool, error) {
	ls, err := s.listeners(ctx)
	if err != nil {
		return false, err
	}
	return s.matches(ls), nil
}

type listener struct {
	addr string
	port int
	path string
}

func (s *Socket) listeners(ctx context.Context) ([]listener, error) {
	flag := "--" + s.Protocol
	res, err := s.host.Run(ctx, "ss --listening --numeric "+flag)
	if err != nil {
		return nil, err
	}
	parse := parseSS
	if res.ExitStatus == 127 {
		res, err = s.host.Run(ctx, "netstat --listening --numeric "+flag)
		if err != nil {
			return nil, err
		}
		parse = parseNetstat
	}
	if res.Failed() {
		return nil, fmt.Errorf("list %s sockets: %q exited %d: %s", s.Protocol, res.Command, res.ExitStatus, strings.TrimSpace(res.Stderr))
	}
	return parse(s.Protocol, res.Stdout), nil
}

func (s *Socket) matches(ls []listener) bool {
	var want netip.Addr
	if s.Address != "" {
		want, _ = netip.ParseAddr(s.Address)
	}
	for _, l := range ls {
		if s.Protocol == "unix" {
			if l.path == s.Path {
				return true
			}
			continue
		}
		if l.port != s.Port {
			continue
		}
		switch {
		case s.Address == "", l.addr == "*", l.addr == s.Address:
			return true
		case want.Is4() && l.addr == "0.0.0.0":
			return true
		case want.Is6() && l.addr == "::":
			return true
		}
	}
	return false
}

var ssNetids = map[string]bool{
	"tcp": true, "udp": true, "u_str": true, "u_dgr": true, "u_seq": true,
}

// parseSS reads `ss --listening --numeric` output.
func parseSS(proto string, out string) []listener {
	var ls []listener
	for _, line := range strings.Split(out, "\n") {
		fields := strings.Fields(line)
		if len(fields) == 0 || fields[0] == "State" || fields[0] == "Netid" {
			continue
		}
		if ssNetids[fields[0]] {
			fields = fields[1:]
		}
		if len(fields) < 4 {
			continue
		}
		local := fields[3]
		if proto == "unix" {
			ls = append(ls, listener{path: local})
			continue
		}
		if l, ok := parseLocalAddr(local); ok {
			ls = append(ls, l)
		}
	}
	return ls
}

// parseNetstat reads `netstat --listening --numeric` output.
func parseNetstat(proto string, out string) []listener {
	var ls []listener
	for _, line := range strings.Split(out, "\n") {
		fields := strings.Fields(line)
		if len(fields) < 4 {
			continue
		}
		if proto == "unix" {
			if fields[0] != "unix" {
				continue
			}
			last := fields[len(fields)-1]
			if strings.HasPrefix(last, "/") || strings.HasPrefix(last, "@") {
				ls = append(ls, listener{path: last})
			}
			continue
		}
		if !strings.HasPrefix(fields[0], proto) {
			continue
		}
		if l, ok := parseLocalAddr(fields[3]); ok {
			ls = append(ls, l)
		}
	}
	return ls
}

// parseLocalAddr handles 0.0.0.0:3306, [::]:3306, :::3306, *:3306 and
// 127.0.0.53%lo:53.
func parseLocalAddr(local string) (listener, bool) {
	i := strings.LastIndex(local, ":")
	if i < 0 {
		return listener{}, false
	}
	port, err := strconv.Atoi(local[i+1:])
	if err != nil {
		return listener{}, false
	}
	host := strings.TrimSuffix(strings.TrimPrefix(local[:i], "["), "]")
	if j := strings.Index(host, "%"); j >= 0 {
		host = host[:j]
	}
	if host != "*" {
		addr, err := netip.ParseAddr(host)
		if err != nil {
			return listener{}, false
		}
		host = addr.Unmap().String()
	}
	return listener{addr: host, port: port}, true
}
