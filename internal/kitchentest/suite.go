// Package kitchentest wires a kitchen.Session into Go tests.
//
//	var suite kitchentest.Suite
//
//	func TestMain(m *testing.M) { os.Exit(suite.Main(m)) }
//
//	func TestMySQLServiceRunning(t *testing.T) {
//		kitchentest.Assert(t, suite.Host(t)).Service("mysql").IsRunning().IsEnabled()
//	}
package kitchentest

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"

	"kitchenctl/internal/kitchen"
)

// T is the subset of testing.TB the fixtures and assertions need.
type T interface {
	Errorf(format string, args ...any)
	FailNow()
	Helper()
}

// Runner is satisfied by *testing.M.
type Runner interface {
	Run() int
}

// Suite owns the session for one test binary.
type Suite struct {
	// Logger receives session logs; nil logs warnings to stderr.
	Logger *slog.Logger
	// Stderr receives setup errors; nil means os.Stderr.
	Stderr io.Writer

	session *kitchen.Session
}

// Main builds the session from KITCHEN_* variables, runs the tests and closes
// the session. A configuration error returns 2 without running any test.
func (s *Suite) Main(m Runner) int {
	stderr := s.Stderr
	if stderr == nil {
		stderr = os.Stderr
	}
	logger := s.Logger
	if logger == nil {
		logger = kitchen.NewConsoleLogger(stderr, os.Getenv("KITCHEN_VERBOSE") != "")
	}

	session, err := kitchen.SessionFromEnv(logger)
	if err != nil {
		fmt.Fprintf(stderr, "kitchen session setup failed: %v\n", err)
		return 2
	}
	s.session = session
	defer func() {
		if err := session.Close(); err != nil {
			logger.Warn("close kitchen session", "err", err)
		}
		s.session = nil
	}()

	return m.Run()
}

func (s *Suite) Session(t T) *kitchen.Session {
	t.Helper()
	if s.session == nil {
		t.Errorf("kitchentest: no session, call Suite.Main from TestMain")
		t.FailNow()
	}
	return s.session
}

// Host is the host fixture: the one handle shared by every test.
func (s *Suite) Host(t T) *kitchen.Host {
	t.Helper()
	session := s.Session(t)
	if session == nil {
		return nil
	}
	return session.Host()
}

// Salt is the salt fixture. Every call re-issues the chown of the kitchen root.
func (s *Suite) Salt(t T) *kitchen.SaltCommand {
	t.Helper()
	session := s.Session(t)
	if session == nil {
		return nil
	}
	cmd, err := session.Salt(testContext(t))
	if err != nil {
		t.Errorf("salt fixture: %v", err)
		t.FailNow()
	}
	return cmd
}

// testContext uses the test's own context when it has one (testing.T does).
func testContext(t T) context.Context {
	if c, ok := t.(interface{ Context() context.Context }); ok {
		return c.Context()
	}
	return context.Background()
}
