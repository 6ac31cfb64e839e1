// Package docker starts, stops and talks to the containers of a grading run.
package docker

import (
	"context"

	"github.com/programme-lv/disttester/internal/shell"
)

type State struct {
	Exists  bool
	Running bool
}

// Runtime is everything the engine needs from a container engine.
type Runtime interface {
	// Start runs a fully expanded launch command. Its output carries the new
	// container's id on the last line.
	Start(ctx context.Context, launchCommand string) (shell.Result, error)
	// Stop stops and then removes the container. When wait is false the
	// call may return before the container is gone.
	Stop(ctx context.Context, ref string, wait bool) error
	Exec(ctx context.Context, id string, command string) (shell.Result, error)
	// ExecDetached starts command inside the container without waiting.
	ExecDetached(ctx context.Context, id string, command string) error
	Inspect(ctx context.Context, ref string) (State, error)
}
