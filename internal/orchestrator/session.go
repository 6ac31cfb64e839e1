package orchestrator

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/google/uuid"
	"github.com/programme-lv/disttester/internal/docker"
	"github.com/programme-lv/disttester/internal/dsl"
	"github.com/programme-lv/disttester/internal/executor"
	"github.com/programme-lv/disttester/internal/failures"
	"github.com/programme-lv/disttester/internal/placeholder"
	"github.com/programme-lv/disttester/internal/registry"
	"github.com/programme-lv/disttester/internal/report"
	"github.com/programme-lv/disttester/internal/tasks"
)

// session is the state of one grading run. Nothing in it is shared with
// other runs.
type session struct {
	e      *Engine
	plan   *dsl.Plan
	subj   Subject
	runID  uuid.UUID
	logger *slog.Logger

	reg  *registry.Registry
	lc   *docker.Lifecycle
	exec *executor.Executor
	log  *report.Log
	// out writes to log and the observer.
	out report.Gatherer
}

// participant is one submission taking part in a group.
type participant struct {
	name string
	dir  string
}

func (e *Engine) newSession(plan *dsl.Plan, subj Subject) *session {
	runID := uuid.New()
	logger := e.deps.Logger.With("run_id", runID)

	var opts []registry.Option
	if e.cfg.PortMin > 0 && e.cfg.PortMax >= e.cfg.PortMin {
		opts = append(opts, registry.WithPortRange(e.cfg.PortMin, e.cfg.PortMax))
	}
	if e.cfg.PortAttempts > 0 {
		opts = append(opts, registry.WithMaxAttempts(e.cfg.PortAttempts))
	}
	reg := registry.New(opts...)

	imageCommand := plan.ImageCommand
	if imageCommand == "" {
		imageCommand = e.cfg.ImageCommand
	}
	hostIP := plan.HostIP
	if hostIP == "" {
		hostIP = e.cfg.HostIP
	}
	workDir := subj.WorkDir
	if workDir == "" {
		workDir = plan.WorkDir
	}
	subj.WorkDir = workDir

	log := report.NewLog()
	s := &session{
		e:      e,
		plan:   plan,
		subj:   subj,
		runID:  runID,
		logger: logger,
		reg:    reg,
		lc:     docker.NewLifecycle(e.deps.Runtime, reg, imageCommand, logger),
		log:    log,
	}
	s.out = s.gatherer(log)
	s.exec = executor.New(e.deps.Host, e.deps.Runtime, reg, s.out, logger, executor.Config{
		HostIP:          hostIP,
		TempDir:         workDir,
		Username:        placeholder.SanitizeUsername(subj.StudentName, -1),
		AsyncCheckDelay: e.cfg.AsyncCheckDelay,
		MarkerDir:       e.cfg.MarkerDir,
		RunID:           runID.String(),
	})
	return s
}

func (s *session) gatherer(log *report.Log) report.Gatherer {
	return report.Multi(log, s.e.deps.Observer)
}

func (s *session) self() participant {
	return participant{name: s.subj.StudentName, dir: s.subj.WorkDir}
}

// runCommands runs setup or cleanup commands on the host. It reports false
// after the first halting failure.
func (s *session) runCommands(ctx context.Context, cmds []dsl.Command) (bool, error) {
	for _, cmd := range cmds {
		err := s.exec.OnHost(ctx, cmd.Text, executor.Options{Sync: cmd.Sync, Halting: cmd.Halting})
		if executor.IsHalting(err) {
			return false, nil
		}
		if err != nil {
			return false, err
		}
	}
	return true, nil
}

// runGroup starts one replica per participant, runs the group's commands
// and stops the replicas again. External and test commands run in the
// controller when inController is set and on the host otherwise.
func (s *session) runGroup(ctx context.Context, idx int, g dsl.Group, members []participant, inController bool) (bool, error) {
	defer s.stopReplicas(ctx)

	usernames := make(map[string]string, len(members))
	for i, m := range members {
		name := replicaName(i)
		if _, err := s.lc.StartReplacing(ctx, name, m.dir, s.plan.PortsPerContainer); err != nil {
			var launchErr *failures.LaunchError
			if errors.As(err, &launchErr) {
				s.logger.Warn("failed to start replica", "container", name, "error", err)
				s.exec.Gatherer().CommandFailed(fmt.Sprintf("start container %s", name), launchOutput(launchErr))
				return false, nil
			}
			return false, err
		}
		usernames[name] = placeholder.SanitizeUsername(m.name, i)
	}
	s.exec.SetUsernames(usernames)

	number := s.plan.FirstTestNumber(idx, inController)
	tests := 0
	for _, cmd := range g.Commands {
		opts := executor.Options{Sync: cmd.Sync, Halting: cmd.Halting}
		var err error
		switch cmd.Kind {
		case dsl.External:
			if inController {
				err = s.exec.InController(ctx, cmd.Text, opts)
			} else {
				err = s.exec.OnHost(ctx, cmd.Text, opts)
			}
		case dsl.InContainer:
			err = s.exec.AcrossContainers(ctx, targets(cmd, len(members)), cmd.Text, opts)
		case dsl.Test:
			err = s.exec.Test(ctx, inController, cmd.Text, number+tests, s.plan.TotalTests, g.Hints[tests])
			tests++
		}
		if executor.IsHalting(err) {
			return false, nil
		}
		if err != nil {
			return false, err
		}
	}
	return true, nil
}

func (s *session) stopReplicas(ctx context.Context) {
	if err := s.lc.StopReplicas(context.WithoutCancel(ctx)); err != nil {
		s.logger.Warn("failed to stop replicas", "error", err)
	}
}

// teardown removes every container of the run after it was aborted.
func (s *session) teardown(ctx context.Context) {
	ctx = context.WithoutCancel(ctx)
	s.stopReplicas(ctx)
	if err := s.lc.StopController(ctx, true); err != nil {
		s.logger.Warn("failed to stop controller", "error", err)
	}
}

func (s *session) dispatch(ctx context.Context, t tasks.Task) {
	if err := s.e.deps.Tasks.Dispatch(context.WithoutCancel(ctx), t); err != nil {
		s.logger.Error("failed to dispatch task", "task_id", t.ID, "kind", t.Kind, "error", err)
	}
}

func replicaName(i int) string {
	return fmt.Sprintf("replica%d", i)
}

func targets(cmd dsl.Command, machines int) []string {
	var res []string
	if cmd.Targets == nil {
		for i := 0; i < machines; i++ {
			res = append(res, replicaName(i))
		}
		return res
	}
	for _, i := range cmd.Targets {
		res = append(res, replicaName(i))
	}
	return res
}

func launchOutput(err *failures.LaunchError) []byte {
	if err.Output != "" {
		return []byte(err.Output)
	}
	return []byte(err.Error())
}
