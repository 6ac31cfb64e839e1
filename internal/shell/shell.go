// Package shell runs command strings through bash.
package shell

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os/exec"
	"time"
)

type Result struct {
	// Output holds stdout and stderr interleaved.
	Output   []byte
	ExitCode int
}

func (r Result) Ok() bool {
	return r.ExitCode == 0
}

// Runner executes shell command strings. A non-zero exit status is reported
// through Result, not as an error.
type Runner interface {
	// Run blocks until the command exits.
	Run(ctx context.Context, command string) (Result, error)
	// Start launches the command in the background and returns at once.
	Start(ctx context.Context, command string) error
}

type Bash struct {
	path   string
	logger *slog.Logger
}

func NewBash(logger *slog.Logger) *Bash {
	path, err := exec.LookPath("bash")
	if err != nil {
		path = "/usr/bin/bash"
	}
	return &Bash{path: path, logger: logger}
}

func (b *Bash) Run(ctx context.Context, command string) (Result, error) {
	cmd := exec.CommandContext(ctx, b.path, "-c", command)
	// backgrounded children may keep the output pipe open
	cmd.WaitDelay = 2 * time.Second

	out, err := cmd.CombinedOutput()
	res := Result{Output: out}
	if err == nil {
		return res, nil
	}
	if ctxErr := ctx.Err(); ctxErr != nil {
		res.ExitCode = -1
		return res, ctxErr
	}
	var exitErr *exec.ExitError
	if errors.As(err, &exitErr) {
		res.ExitCode = exitErr.ExitCode()
		return res, nil
	}
	if errors.Is(err, exec.ErrWaitDelay) {
		return res, nil
	}
	return res, fmt.Errorf("failed to run %q: %w", command, err)
}

func (b *Bash) Start(ctx context.Context, command string) error {
	cmd := exec.Command(b.path, "-c", command)
	if err := cmd.Start(); err != nil {
		return fmt.Errorf("failed to start %q: %w", command, err)
	}
	go func() {
		err := cmd.Wait()
		b.logger.Debug("background command exited", "command", command, "error", err)
	}()
	return nil
}
