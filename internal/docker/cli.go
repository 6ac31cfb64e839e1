package docker

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"github.com/kballard/go-shellquote"
	"github.com/programme-lv/disttester/internal/shell"
)

// CLI drives docker, or anything with a compatible command line, through
// the shell.
type CLI struct {
	sh     shell.Runner
	binary string
	// containerShell interprets commands inside containers.
	containerShell string
	logger         *slog.Logger
}

var _ Runtime = (*CLI)(nil)

func NewCLI(sh shell.Runner, binary string, containerShell string, logger *slog.Logger) *CLI {
	if binary == "" {
		binary = "docker"
	}
	if containerShell == "" {
		containerShell = "bash"
	}
	return &CLI{sh: sh, binary: binary, containerShell: containerShell, logger: logger}
}

func (c *CLI) Start(ctx context.Context, launchCommand string) (shell.Result, error) {
	c.logger.Debug("launching container", "command", launchCommand)
	return c.sh.Run(ctx, launchCommand)
}

func (c *CLI) Stop(ctx context.Context, ref string, wait bool) error {
	stop := shellquote.Join(c.binary, "stop", ref)
	rm := shellquote.Join(c.binary, "rm", ref)
	cmdStr := fmt.Sprintf("%s || true && %s", stop, rm)

	if !wait {
		return c.sh.Start(ctx, cmdStr)
	}
	res, err := c.sh.Run(ctx, cmdStr)
	if err != nil {
		return fmt.Errorf("failed to stop container %s: %w", ref, err)
	}
	if !res.Ok() {
		return fmt.Errorf("failed to remove container %s: %s", ref, strings.TrimSpace(string(res.Output)))
	}
	return nil
}

func (c *CLI) Exec(ctx context.Context, id string, command string) (shell.Result, error) {
	cmdStr := shellquote.Join(c.binary, "exec", id, c.containerShell, "-c", command)
	return c.sh.Run(ctx, cmdStr)
}

func (c *CLI) ExecDetached(ctx context.Context, id string, command string) error {
	cmdStr := shellquote.Join(c.binary, "exec", "-d", id, c.containerShell, "-c", command)
	res, err := c.sh.Run(ctx, cmdStr)
	if err != nil {
		return fmt.Errorf("failed to exec in container %s: %w", id, err)
	}
	if !res.Ok() {
		return fmt.Errorf("failed to exec in container %s: %s", id, strings.TrimSpace(string(res.Output)))
	}
	return nil
}

func (c *CLI) Inspect(ctx context.Context, ref string) (State, error) {
	cmdStr := shellquote.Join(c.binary, "inspect", "-f", "{{.State.Running}}", ref)
	res, err := c.sh.Run(ctx, cmdStr)
	if err != nil {
		return State{}, fmt.Errorf("failed to inspect container %s: %w", ref, err)
	}
	if !res.Ok() {
		return State{}, nil
	}
	running := strings.TrimSpace(string(res.Output)) == "true"
	return State{Exists: true, Running: running}, nil
}
