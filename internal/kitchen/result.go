package kitchen

import "strings"

// CommandResult is the outcome of one remote command. A non-zero ExitStatus is
// not an error.
type CommandResult struct {
	Command    string `json:"command"`
	ExitStatus int    `json:"exit_status"`
	Stdout     string `json:"stdout,omitempty"`
	Stderr     string `json:"stderr,omitempty"`
}

func (r *CommandResult) Succeeded() bool {
	return r != nil && r.ExitStatus == 0
}

func (r *CommandResult) Failed() bool {
	return !r.Succeeded()
}

// Output returns trimmed stdout.
func (r *CommandResult) Output() string {
	if r == nil {
		return ""
	}
	return strings.TrimSpace(r.Stdout)
}
