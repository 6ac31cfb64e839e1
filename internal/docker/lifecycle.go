package docker

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"github.com/programme-lv/disttester/internal/failures"
	"github.com/programme-lv/disttester/internal/metrics"
	"github.com/programme-lv/disttester/internal/placeholder"
	"github.com/programme-lv/disttester/internal/registry"
)

// Lifecycle starts and stops the containers of one run and keeps the
// registry in step with them.
type Lifecycle struct {
	rt           Runtime
	reg          *registry.Registry
	imageCommand string
	logger       *slog.Logger
}

func NewLifecycle(rt Runtime, reg *registry.Registry, imageCommand string, logger *slog.Logger) *Lifecycle {
	return &Lifecycle{rt: rt, reg: reg, imageCommand: imageCommand, logger: logger}
}

// StartReplacing launches a fresh container called name with workDir
// mounted. Any container left behind under the same name is removed first.
func (l *Lifecycle) StartReplacing(ctx context.Context, name string, workDir string, portsNeeded int) (*registry.Record, error) {
	if name == registry.ControllerName {
		return nil, fmt.Errorf("use StartController for %s", name)
	}
	if l.reg.Get(name) != nil {
		if err := l.Stop(ctx, name, true); err != nil {
			l.logger.Warn("failed to stop previous container", "container", name, "error", err)
		}
	}
	rec, err := l.launch(ctx, name, workDir, portsNeeded)
	if err != nil {
		return nil, err
	}
	if err := l.reg.Add(rec); err != nil {
		l.discard(ctx, rec)
		return nil, fmt.Errorf("failed to register container %s: %w", name, err)
	}
	return rec, nil
}

// Stop removes the named container. Unknown names are a no-op.
func (l *Lifecycle) Stop(ctx context.Context, name string, wait bool) error {
	rec := l.reg.Get(name)
	if rec == nil {
		return nil
	}
	if name == registry.ControllerName {
		l.reg.RemoveController()
	} else {
		l.reg.Remove(name)
	}
	l.logger.Debug("stopping container", "container", name, "id", rec.ID, "wait", wait)
	if err := l.rt.Stop(ctx, rec.ID, wait); err != nil {
		return fmt.Errorf("failed to stop %s: %w", name, err)
	}
	return nil
}

// StopReplicas stops every registered replica and waits for each.
func (l *Lifecycle) StopReplicas(ctx context.Context) error {
	var errs []error
	for _, rec := range l.reg.Replicas() {
		errs = append(errs, l.Stop(ctx, rec.Name, true))
	}
	return errors.Join(errs...)
}

func (l *Lifecycle) StartController(ctx context.Context, workDir string, portsNeeded int) (*registry.Record, error) {
	if cur := l.reg.Controller(); cur != nil {
		return nil, fmt.Errorf("controller %s is still running", cur.ID)
	}
	rec, err := l.launch(ctx, registry.ControllerName, workDir, portsNeeded)
	if err != nil {
		return nil, err
	}
	if err := l.reg.SetController(rec); err != nil {
		l.discard(ctx, rec)
		return nil, fmt.Errorf("failed to register controller: %w", err)
	}
	return rec, nil
}

func (l *Lifecycle) StopController(ctx context.Context, wait bool) error {
	return l.Stop(ctx, registry.ControllerName, wait)
}

func (l *Lifecycle) launch(ctx context.Context, name string, workDir string, portsNeeded int) (*registry.Record, error) {
	ports, err := l.reg.AllocatePorts(portsNeeded)
	if err != nil {
		return nil, err
	}

	launchCmd, err := placeholder.Expand(l.imageCommand, placeholder.LaunchKinds, placeholder.Values{
		Name:        name,
		Submissions: workDir,
		Target:      ports,
		HasTarget:   true,
	})
	if err != nil {
		l.reg.Release(ports...)
		return nil, err
	}

	// stale-kill, a missing container is fine
	if err := l.rt.Stop(ctx, name, true); err != nil {
		l.logger.Debug("no stale container to remove", "container", name, "error", err)
	}

	res, err := l.rt.Start(ctx, launchCmd)
	if err == nil && !res.Ok() {
		err = &failures.LaunchError{Name: name, ExitCode: res.ExitCode, Output: string(res.Output)}
	}
	if err != nil {
		l.reg.Release(ports...)
		metrics.LaunchFailures.Inc()
		var launchErr *failures.LaunchError
		if errors.As(err, &launchErr) || ctx.Err() != nil {
			return nil, err
		}
		return nil, &failures.LaunchError{Name: name, ExitCode: -1, Err: err}
	}

	rec := &registry.Record{ID: containerID(res.Output), Name: name, Ports: ports}
	if rec.ID == "" {
		l.reg.Release(ports...)
		metrics.LaunchFailures.Inc()
		return nil, &failures.LaunchError{Name: name, Output: string(res.Output), Err: errors.New("launch printed no container id")}
	}

	state, err := l.rt.Inspect(ctx, rec.ID)
	if err == nil && !state.Running {
		err = errors.New("container is not running after launch")
	}
	if err != nil {
		l.discard(ctx, rec)
		metrics.LaunchFailures.Inc()
		return nil, &failures.LaunchError{Name: name, Output: string(res.Output), Err: err}
	}

	metrics.ContainersStarted.Inc()
	l.logger.Info("started container", "container", name, "id", rec.ID, "ports", ports)
	return rec, nil
}

// discard stops a launched container that never made it into the registry.
func (l *Lifecycle) discard(ctx context.Context, rec *registry.Record) {
	l.reg.Release(rec.Ports...)
	if err := l.rt.Stop(ctx, rec.ID, false); err != nil {
		l.logger.Warn("failed to discard container", "container", rec.Name, "id", rec.ID, "error", err)
	}
}

func containerID(output []byte) string {
	lines := strings.Split(strings.TrimSpace(string(output)), "\n")
	return strings.TrimSpace(lines[len(lines)-1])
}
