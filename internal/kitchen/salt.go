package kitchen

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"regexp"
	"sort"
	"strings"

	"github.com/hashicorp/go-version"
	shellquote "github.com/kballard/go-shellquote"
)

// SaltCommand is a salt-call invocation with a fixed config directory.
// Build one with Host.Salt or Session.Salt and call Run as often as needed.
type SaltCommand struct {
	host *Host

	ConfigDir string
	Local     bool
	Sudo      bool

	ownership *CommandResult
}

func (h *Host) Salt(configDir string) *SaltCommand {
	return &SaltCommand{host: h, ConfigDir: configDir}
}

func (c *SaltCommand) WithLocal() *SaltCommand {
	cp := *c
	cp.Local = true
	return &cp
}

func (c *SaltCommand) WithSudo() *SaltCommand {
	cp := *c
	cp.Sudo = true
	return &cp
}

// Ownership is the result of the chown the fixture issued before handing out
// the command, or nil if it did not issue one.
func (c *SaltCommand) Ownership() *CommandResult {
	return c.ownership
}

func (c *SaltCommand) command(function string, args []string) string {
	argv := []string{}
	if c.Sudo {
		argv = append(argv, "sudo")
	}
	argv = append(argv, "salt-call", "--out=json")
	if c.Local {
		argv = append(argv, "--local")
	}
	if c.ConfigDir != "" {
		argv = append(argv, "-c", c.ConfigDir)
	}
	argv = append(argv, function)
	argv = append(argv, args...)
	return shellquote.Join(argv...)
}

// Run calls a salt execution function. A failing salt-call is reported through
// the result's exit status.
func (c *SaltCommand) Run(ctx context.Context, function string, args ...string) (*SaltResult, error) {
	res, err := c.host.Run(ctx, c.command(function, args))
	if err != nil {
		return nil, err
	}
	return &SaltResult{CommandResult: *res}, nil
}

// Apply runs state.apply with args, e.g. Apply(ctx, "mysql").
func (c *SaltCommand) Apply(ctx context.Context, args ...string) (*SaltResult, error) {
	return c.Run(ctx, "state.apply", args...)
}

var saltVersionRe = regexp.MustCompile(`\b(\d+(?:\.\d+)*(?:rc\d+)?)\b`)

// Version returns the salt-call version installed on the host.
func (c *SaltCommand) Version(ctx context.Context) (*version.Version, error) {
	res, err := c.host.Run(ctx, "salt-call --version")
	if err != nil {
		return nil, err
	}
	if res.Failed() {
		return nil, fmt.Errorf("salt-call --version: exit %d: %s", res.ExitStatus, strings.TrimSpace(res.Stderr))
	}
	return ParseSaltVersion(res.Stdout)
}

// ParseSaltVersion reads output like "salt-call 3006.1 (Sulfur)".
func ParseSaltVersion(out string) (*version.Version, error) {
	m := saltVersionRe.FindString(strings.TrimSpace(out))
	if m == "" {
		return nil, fmt.Errorf("no version in %q", out)
	}
	return version.NewVersion(m)
}

type SaltResult struct {
	CommandResult
}

var ErrNoSaltReturn = errors.New("salt output has no local return")

// Return decodes the "local" payload of --out=json output into v.
func (r *SaltResult) Return(v any) error {
	var envelope map[string]json.RawMessage
	if err := json.Unmarshal([]byte(r.Stdout), &envelope); err != nil {
		return fmt.Errorf("decode salt output: %w", err)
	}
	raw, ok := envelope["local"]
	if !ok {
		return ErrNoSaltReturn
	}
	if err := json.Unmarshal(raw, v); err != nil {
		return fmt.Errorf("decode salt return: %w", err)
	}
	return nil
}

// StateResult is one entry of a state.apply / state.sls return.
type StateResult struct {
	ID      string         `json:"-"`
	Name    string         `json:"name"`
	Result  *bool          `json:"result"`
	Comment string         `json:"comment"`
	Changes map[string]any `json:"changes"`
	RunNum  int            `json:"__run_num__"`
}

// Failed is true only for result=false; a nil result means test mode.
func (s StateResult) Failed() bool {
	return s.Result != nil && !*s.Result
}

// States decodes a state run return, ordered by execution.
func (r *SaltResult) States() ([]StateResult, error) {
	var raw map[string]StateResult
	if err := r.Return(&raw); err != nil {
		return nil, err
	}
	states := make([]StateResult, 0, len(raw))
	for id, st := range raw {
		st.ID = id
		states = append(states, st)
	}
	sort.Slice(states, func(i, j int) bool { return states[i].RunNum < states[j].RunNum })
	return states, nil
}

func (r *SaltResult) FailedStates() ([]StateResult, error) {
	states, err := r.States()
	if err != nil {
		return nil, err
	}
	var failed []StateResult
	for _, st := range states {
		if st.Failed() {
			failed = append(failed, st)
		}
	}
	return failed, nil
}
