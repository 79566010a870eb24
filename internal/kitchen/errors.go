package kitchen

import (
	"errors"
	"fmt"
)

var (
	ErrMissingEnv   = errors.New("not set")
	ErrMalformedEnv = errors.New("malformed value")
)

// EnvError reports a configuration variable that could not be used.
type EnvError struct {
	Name  string
	Value string
	Err   error
}

func (e *EnvError) Error() string {
	if e.Value != "" {
		return fmt.Sprintf("%s=%q: %v", e.Name, e.Value, e.Err)
	}
	return fmt.Sprintf("%s: %v", e.Name, e.Err)
}

func (e *EnvError) Unwrap() error {
	return e.Err
}
