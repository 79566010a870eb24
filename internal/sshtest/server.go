// Package sshtest runs an in-process SSH server for tests. Exec requests are
// answered by a Handler and recorded; the sftp subsystem serves the local
// filesystem.
package sshtest

import (
	"bytes"
	"crypto/ed25519"
	"crypto/rand"
	"encoding/pem"
	"fmt"
	"io"
	"net"
	"os"
	"path/filepath"
	"strconv"
	"sync"
	"testing"

	"github.com/mikesmitty/edkey"
	"github.com/pkg/sftp"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/ssh"
)

// Reply is what the server answers to one exec request.
type Reply struct {
	Stdout string
	Stderr string
	Exit   int
}

type Handler func(cmd string) Reply

// Script answers the commands it knows and fails everything else with 127,
// like a shell that cannot find the program.
type Script map[string]Reply

func (s Script) Handle(cmd string) Reply {
	if r, ok := s[cmd]; ok {
		return r
	}
	return Reply{Stderr: "sh: 1: command not found\n", Exit: 127}
}

type Server struct {
	User    string
	Host    string
	Port    int
	KeyPath string

	listener net.Listener
	config   *ssh.ServerConfig

	mu       sync.Mutex
	handler  Handler
	commands []string
	conns    []net.Conn
	accepted int

	closeOnce sync.Once
	wg        sync.WaitGroup
}

// Start listens on a random loopback port. The server accepts only the
// generated client key written to KeyPath, for User. It is closed when the
// test ends.
func Start(t testing.TB, h Handler) *Server {
	t.Helper()

	keyPath, clientPub, err := WriteClientKey(t.TempDir())
	require.NoError(t, err)

	_, hostPriv, err := ed25519.GenerateKey(rand.Reader)
	require.NoError(t, err)
	hostSigner, err := ssh.NewSignerFromKey(hostPriv)
	require.NoError(t, err)

	s := &Server{
		User:    "kitchen",
		Host:    "127.0.0.1",
		KeyPath: keyPath,
		handler: h,
	}
	authorized := clientPub.Marshal()
	s.config = &ssh.ServerConfig{
		PublicKeyCallback: func(meta ssh.ConnMetadata, key ssh.PublicKey) (*ssh.Permissions, error) {
			if meta.User() == s.User && bytes.Equal(key.Marshal(), authorized) {
				return nil, nil
			}
			return nil, fmt.Errorf("unknown public key for %q", meta.User())
		},
	}
	s.config.AddHostKey(hostSigner)

	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	s.listener = ln
	s.Port = ln.Addr().(*net.TCPAddr).Port

	s.wg.Add(1)
	go s.serve()
	t.Cleanup(func() { _ = s.Close() })
	return s
}

// WriteClientKey writes a fresh unencrypted OpenSSH ed25519 key to dir.
func WriteClientKey(dir string) (string, ssh.PublicKey, error) {
	pub, priv, err := ed25519.GenerateKey(rand.Reader)
	if err != nil {
		return "", nil, err
	}
	pemBytes := pem.EncodeToMemory(&pem.Block{
		Type:  "OPENSSH PRIVATE KEY",
		Bytes: edkey.MarshalED25519PrivateKey(priv),
	})
	path := filepath.Join(dir, "id_ed25519")
	if err := os.WriteFile(path, pemBytes, 0o600); err != nil {
		return "", nil, err
	}
	sshPub, err := ssh.NewPublicKey(pub)
	if err != nil {
		return "", nil, err
	}
	return path, sshPub, nil
}

// Setenv points the KITCHEN_* variables at s for the rest of the test.
func (s *Server) Setenv(t testing.TB) {
	t.Setenv("KITCHEN_USERNAME", s.User)
	t.Setenv("KITCHEN_HOSTNAME", s.Host)
	t.Setenv("KITCHEN_PORT", strconv.Itoa(s.Port))
	t.Setenv("KITCHEN_SSH_KEY", s.KeyPath)
}

func (s *Server) URI() string {
	return fmt.Sprintf("ssh://%s@%s", s.User, net.JoinHostPort(s.Host, strconv.Itoa(s.Port)))
}

func (s *Server) SetHandler(h Handler) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.handler = h
}

// Commands returns every exec request received so far, in order.
func (s *Server) Commands() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]string(nil), s.commands...)
}

// Connections counts completed SSH handshakes.
func (s *Server) Connections() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.accepted
}

func (s *Server) Close() error {
	var err error
	s.closeOnce.Do(func() {
		err = s.listener.Close()
		s.mu.Lock()
		for _, c := range s.conns {
			_ = c.Close()
		}
		s.mu.Unlock()
		s.wg.Wait()
	})
	return err
}

func (s *Server) serve() {
	defer s.wg.Done()
	for {
		nc, err := s.listener.Accept()
		if err != nil {
			return
		}
		s.mu.Lock()
		s.conns = append(s.conns, nc)
		s.mu.Unlock()

		s.wg.Add(1)
		go func() {
			defer s.wg.Done()
			s.handleConn(nc)
		}()
	}
}

func (s *Server) handleConn(nc net.Conn) {
	defer nc.Close()
	sconn, chans, reqs, err := ssh.NewServerConn(nc, s.config)
	if err != nil {
		return
	}
	defer sconn.Close()

	s.mu.Lock()
	s.accepted++
	s.mu.Unlock()

	go ssh.DiscardRequests(reqs)
	for nch := range chans {
		if nch.ChannelType() != "session" {
			_ = nch.Reject(ssh.UnknownChannelType, "unsupported channel type")
			continue
		}
		ch, chReqs, err := nch.Accept()
		if err != nil {
			continue
		}
		s.wg.Add(1)
		go func() {
			defer s.wg.Done()
			s.handleSession(ch, chReqs)
		}()
	}
}

func (s *Server) handleSession(ch ssh.Channel, reqs <-chan *ssh.Request) {
	defer ch.Close()
	for req := range reqs {
		switch req.Type {
		case "exec":
			var payload struct{ Command string }
			if err := ssh.Unmarshal(req.Payload, &payload); err != nil {
				_ = req.Reply(false, nil)
				continue
			}
			_ = req.Reply(true, nil)
			go ssh.DiscardRequests(reqs)

			r := s.exec(payload.Command)
			_, _ = io.WriteString(ch, r.Stdout)
			_, _ = io.WriteString(ch.Stderr(), r.Stderr)
			status := struct{ Status uint32 }{uint32(r.Exit)}
			_, _ = ch.SendRequest("exit-status", false, ssh.Marshal(&status))
			return
		case "subsystem":
			var payload struct{ Name string }
			if err := ssh.Unmarshal(req.Payload, &payload); err != nil || payload.Name != "sftp" {
				_ = req.Reply(false, nil)
				continue
			}
			_ = req.Reply(true, nil)
			go ssh.DiscardRequests(reqs)

			srv, err := sftp.NewServer(ch)
			if err != nil {
				return
			}
			_ = srv.Serve()
			return
		default:
			if req.WantReply {
				_ = req.Reply(false, nil)
			}
		}
	}
}

func (s *Server) exec(cmd string) Reply {
	s.mu.Lock()
	s.commands = append(s.commands, cmd)
	h := s.handler
	s.mu.Unlock()

	if h == nil {
		return Reply{Exit: 127}
	}
	return h(cmd)
}
