// Package executor runs DSL commands on the host, in replicas and in the
// controller container, and reports failures to a gatherer.
package executor

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"path"
	"time"

	"github.com/programme-lv/disttester/internal/docker"
	"github.com/programme-lv/disttester/internal/failures"
	"github.com/programme-lv/disttester/internal/metrics"
	"github.com/programme-lv/disttester/internal/placeholder"
	"github.com/programme-lv/disttester/internal/registry"
	"github.com/programme-lv/disttester/internal/report"
	"github.com/programme-lv/disttester/internal/shell"
)

const (
	DefaultAsyncCheckDelay = 3 * time.Second
	containerMarkerDir     = "/tmp"
)

type Options struct {
	Sync    bool
	Halting bool
}

type Config struct {
	HostIP  string
	TempDir string
	// Username is the sanitized name of the student being graded.
	Username        string
	AsyncCheckDelay time.Duration
	// MarkerDir holds deferred-check files of host commands.
	MarkerDir string
	// RunID keeps marker files of concurrent runs apart.
	RunID string
}

type Executor struct {
	host   shell.Runner
	rt     docker.Runtime
	reg    *registry.Registry
	gath   report.Gatherer
	logger *slog.Logger
	cfg    Config

	usernames map[string]string
	seq       int
}

func New(host shell.Runner, rt docker.Runtime, reg *registry.Registry, gath report.Gatherer, logger *slog.Logger, cfg Config) *Executor {
	if cfg.AsyncCheckDelay <= 0 {
		cfg.AsyncCheckDelay = DefaultAsyncCheckDelay
	}
	return &Executor{
		host:      host,
		rt:        rt,
		reg:       reg,
		gath:      gath,
		logger:    logger,
		cfg:       cfg,
		usernames: map[string]string{},
	}
}

// SetGatherer redirects the user-visible output of subsequent commands.
func (e *Executor) SetGatherer(g report.Gatherer) {
	e.gath = g
}

func (e *Executor) Gatherer() report.Gatherer {
	return e.gath
}

// SetUsernames maps container names to the USERNAME their commands see.
func (e *Executor) SetUsernames(usernames map[string]string) {
	e.usernames = usernames
}

// target is where a command runs. A nil rec with a non-empty name is a
// container that is not registered.
type target struct {
	surface string
	name    string
	rec     *registry.Record
}

func (t target) onHost() bool {
	return t.surface == "host"
}

func (t target) String() string {
	if t.onHost() {
		return "host"
	}
	return t.name
}

func (e *Executor) hostTarget() target {
	return target{surface: "host"}
}

func (e *Executor) containerTarget(name string) target {
	surface := "container"
	if name == registry.ControllerName {
		surface = "controller"
	}
	return target{surface: surface, name: name, rec: e.reg.Get(name)}
}

func (e *Executor) OnHost(ctx context.Context, command string, opts Options) error {
	return e.run(ctx, e.hostTarget(), command, opts)
}

func (e *Executor) InContainer(ctx context.Context, name string, command string, opts Options) error {
	return e.run(ctx, e.containerTarget(name), command, opts)
}

func (e *Executor) InController(ctx context.Context, command string, opts Options) error {
	return e.run(ctx, e.containerTarget(registry.ControllerName), command, opts)
}

// AcrossContainers runs command in each named container in order. Sync
// fan-outs stop at the first halting failure. Async halting fan-outs start
// every container's command before checking any of them.
func (e *Executor) AcrossContainers(ctx context.Context, names []string, command string, opts Options) error {
	if opts.Sync || !opts.Halting {
		for _, name := range names {
			if err := e.InContainer(ctx, name, command, opts); err != nil {
				return err
			}
		}
		return nil
	}

	type pending struct {
		t      target
		cmd    string
		marker string
	}
	var checks []pending
	for _, name := range names {
		t := e.containerTarget(name)
		expanded, err := e.expand(t, command)
		if err != nil {
			return err
		}
		if t.rec == nil {
			return e.missing(t, expanded, opts)
		}
		marker := e.marker(t)
		if err := e.start(ctx, t, deferred(expanded, marker)); err != nil {
			return e.fail(t, expanded, -1, []byte(err.Error()), opts)
		}
		checks = append(checks, pending{t: t, cmd: expanded, marker: marker})
	}

	if err := sleep(ctx, e.cfg.AsyncCheckDelay); err != nil {
		return err
	}
	for _, c := range checks {
		if err := e.probe(ctx, c.t, c.cmd, c.marker, opts); err != nil {
			return err
		}
	}
	return nil
}

// Test runs a graded test command synchronously on the host, or in the
// controller when inController is set. A failed test is a halting
// *failures.CommandError.
func (e *Executor) Test(ctx context.Context, inController bool, command string, number, total int, hint *string) error {
	t := e.hostTarget()
	if inController {
		t = e.containerTarget(registry.ControllerName)
	}
	expanded, err := e.expand(t, command)
	if err != nil {
		return err
	}
	if !t.onHost() && t.rec == nil {
		out := []byte(fmt.Sprintf("%s container is not running", t))
		e.gath.FinishTest(number, total, false, hint, expanded, out)
		metrics.Commands.WithLabelValues("test", "failed").Inc()
		return &failures.CommandError{Command: expanded, Where: t.String(), ExitCode: -1, Output: string(out), Halting: true}
	}

	res, err := e.exec(ctx, t, expanded)
	if err != nil {
		return err
	}
	e.logger.Debug("test command finished", "number", number, "exit_code", res.ExitCode, "command", expanded)
	if res.Ok() {
		metrics.Commands.WithLabelValues("test", "passed").Inc()
		e.gath.FinishTest(number, total, true, hint, expanded, res.Output)
		return nil
	}
	metrics.Commands.WithLabelValues("test", "failed").Inc()
	e.gath.FinishTest(number, total, false, hint, expanded, res.Output)
	return &failures.CommandError{
		Command:  expanded,
		Where:    t.String(),
		ExitCode: res.ExitCode,
		Output:   string(res.Output),
		Halting:  true,
	}
}

func (e *Executor) run(ctx context.Context, t target, command string, opts Options) error {
	expanded, err := e.expand(t, command)
	if err != nil {
		return err
	}
	if !t.onHost() && t.rec == nil {
		return e.missing(t, expanded, opts)
	}

	switch {
	case opts.Sync:
		res, err := e.exec(ctx, t, expanded)
		if err != nil {
			return err
		}
		if !res.Ok() {
			return e.fail(t, expanded, res.ExitCode, res.Output, opts)
		}
	case !opts.Halting:
		if err := e.start(ctx, t, expanded); err != nil {
			return e.fail(t, expanded, -1, []byte(err.Error()), opts)
		}
	default:
		marker := e.marker(t)
		if err := e.start(ctx, t, deferred(expanded, marker)); err != nil {
			return e.fail(t, expanded, -1, []byte(err.Error()), opts)
		}
		if err := sleep(ctx, e.cfg.AsyncCheckDelay); err != nil {
			return err
		}
		if err := e.probe(ctx, t, expanded, marker, opts); err != nil {
			return err
		}
	}
	metrics.Commands.WithLabelValues(t.surface, "ok").Inc()
	return nil
}

func (e *Executor) expand(t target, command string) (string, error) {
	v := placeholder.Values{
		HostIP:   e.cfg.HostIP,
		TempDir:  e.cfg.TempDir,
		Username: e.cfg.Username,
	}
	if name, ok := e.usernames[t.name]; ok {
		v.Username = name
	}
	if t.rec != nil {
		v.Target = t.rec.Ports
		v.HasTarget = true
	}
	if ctl := e.reg.Controller(); ctl != nil {
		v.Controller = ctl.Ports
		v.HasController = true
	}
	for _, rec := range e.reg.Replicas() {
		if rec.Name != t.name {
			v.Peers = append(v.Peers, placeholder.Endpoint{Name: rec.Name, Ports: rec.Ports})
		}
	}
	return placeholder.Expand(command, placeholder.CommandKinds, v)
}

func (e *Executor) exec(ctx context.Context, t target, command string) (shell.Result, error) {
	var res shell.Result
	var err error
	if t.onHost() {
		res, err = e.host.Run(ctx, command)
	} else {
		res, err = e.rt.Exec(ctx, t.rec.ID, command)
	}
	if err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return res, fmt.Errorf("%w: %w", failures.ErrTimeout, ctxErr)
		}
		return res, fmt.Errorf("failed to run command on %s: %w", t, err)
	}
	return res, nil
}

func (e *Executor) start(ctx context.Context, t target, command string) error {
	if t.onHost() {
		return e.host.Start(ctx, command)
	}
	return e.rt.ExecDetached(ctx, t.rec.ID, command)
}

func (e *Executor) probe(ctx context.Context, t target, command string, marker string, opts Options) error {
	res, err := e.exec(ctx, t, probe(marker))
	if err != nil {
		return err
	}
	if !res.Ok() {
		return e.fail(t, command, res.ExitCode, res.Output, opts)
	}
	return nil
}

func (e *Executor) missing(t target, command string, opts Options) error {
	out := []byte(fmt.Sprintf("%s container is not running", t))
	return e.fail(t, command, -1, out, opts)
}

// fail reports a failed command. Only halting failures are returned.
func (e *Executor) fail(t target, command string, code int, output []byte, opts Options) error {
	if !opts.Halting {
		metrics.Commands.WithLabelValues(t.surface, "warning").Inc()
		e.logger.Warn("command failed, continuing", "where", t.String(), "command", command)
		e.gath.Warning(command, output)
		return nil
	}
	metrics.Commands.WithLabelValues(t.surface, "failed").Inc()
	e.logger.Info("halting command failed", "where", t.String(), "command", command)
	e.gath.CommandFailed(command, output)
	return &failures.CommandError{
		Command:  command,
		Where:    t.String(),
		ExitCode: code,
		Output:   string(output),
		Halting:  true,
	}
}

func (e *Executor) marker(t target) string {
	e.seq++
	dir := containerMarkerDir
	if t.onHost() && e.cfg.MarkerDir != "" {
		dir = e.cfg.MarkerDir
	}
	return path.Join(dir, fmt.Sprintf(".disttester-%s-%d", e.cfg.RunID, e.seq))
}

// deferred wraps a backgrounded command so that a failure leaves its exit
// status and stderr behind for probe.
func deferred(command string, marker string) string {
	return fmt.Sprintf("( %s ) 2> %s.err || echo $? > %s.status", command, marker, marker)
}

func probe(marker string) string {
	return fmt.Sprintf("test ! -f %s.status || { cat %s.err; exit 1; }", marker, marker)
}

func sleep(ctx context.Context, d time.Duration) error {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-t.C:
		return nil
	case <-ctx.Done():
		return fmt.Errorf("%w: %w", failures.ErrTimeout, ctx.Err())
	}
}

// IsHalting reports whether err came from a failed halting command.
func IsHalting(err error) bool {
	var cmdErr *failures.CommandError
	return errors.As(err, &cmdErr) && cmdErr.Halting
}
