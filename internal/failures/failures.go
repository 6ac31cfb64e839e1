// Package failures holds the error kinds a grading run can end with.
package failures

import (
	"errors"
	"fmt"
)

// ErrTimeout is returned once the overall deadline of a plan has passed.
var ErrTimeout = errors.New("distributed tests timed out")

// ConfigError is a problem with the test plan or the engine's configuration
// that only shows up while the run is in progress, e.g. a PORT_n index that
// exceeds the container's allocated ports.
type ConfigError struct {
	Msg string
}

func (e *ConfigError) Error() string {
	return "configuration error: " + e.Msg
}

func Configf(format string, args ...any) *ConfigError {
	return &ConfigError{Msg: fmt.Sprintf(format, args...)}
}

// LaunchError means a container could not be started.
type LaunchError struct {
	Name     string
	ExitCode int
	Output   string
	Err      error
}

func (e *LaunchError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("failed to launch container %s: %v", e.Name, e.Err)
	}
	return fmt.Sprintf("failed to launch container %s: exit status %d", e.Name, e.ExitCode)
}

func (e *LaunchError) Unwrap() error { return e.Err }

// CommandError is a failed DSL command. Only halting failures travel up the
// call stack; non-halting ones are logged where they happen.
type CommandError struct {
	Command  string
	Where    string
	ExitCode int
	Output   string
	Halting  bool
}

func (e *CommandError) Error() string {
	return fmt.Sprintf("command %q failed on %s with exit status %d", e.Command, e.Where, e.ExitCode)
}

// IsFatal reports whether err must abort the whole run instead of being
// written to the result log at the phase boundary.
func IsFatal(err error) bool {
	var cfgErr *ConfigError
	return errors.As(err, &cfgErr)
}
