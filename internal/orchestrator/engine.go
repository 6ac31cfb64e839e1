// Package orchestrator grades one submission against a distributed test
// plan: first with copies of itself, then together with peer submissions.
package orchestrator

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	"github.com/google/uuid"
	"github.com/programme-lv/disttester/internal/attach"
	"github.com/programme-lv/disttester/internal/docker"
	"github.com/programme-lv/disttester/internal/dsl"
	"github.com/programme-lv/disttester/internal/failures"
	"github.com/programme-lv/disttester/internal/metrics"
	"github.com/programme-lv/disttester/internal/pool"
	"github.com/programme-lv/disttester/internal/report"
	"github.com/programme-lv/disttester/internal/shell"
	"github.com/programme-lv/disttester/internal/tasks"
)

type Outcome string

const (
	OutcomePassed        Outcome = "passed"
	OutcomeFailed        Outcome = "failed"
	OutcomeNotApplicable Outcome = "not_applicable"
	OutcomeWaiting       Outcome = "waiting"
	OutcomeNoMatch       Outcome = "no_match"
	OutcomeSkipped       Outcome = "skipped"
)

type Result struct {
	RunID         uuid.UUID
	Passed        bool
	Homogeneous   Outcome
	Heterogeneous Outcome
	// Log is the text posted back to the student.
	Log string
}

// Subject is the submission being graded.
type Subject struct {
	AssignmentID string
	StudentID    string
	StudentName  string
	SubmittedAt  time.Time
	Attachments  []pool.Attachment
	// WorkDir holds the unpacked submission. It is mounted into the
	// student's own containers and substituted for TEMP_DIR.
	WorkDir string
}

type Config struct {
	HostIP string
	// ImageCommand is used when the plan does not carry its own.
	ImageCommand    string
	PortMin         int
	PortMax         int
	PortAttempts    int
	AsyncCheckDelay time.Duration
	// PeerRoot receives the unpacked attachments of peers, one directory
	// per run.
	PeerRoot  string
	MarkerDir string
}

type Deps struct {
	Runtime docker.Runtime
	Host    shell.Runner
	Store   pool.Store
	Fetcher attach.Fetcher
	Tasks   tasks.Dispatcher
	// Observer additionally receives every event, e.g. a report.Terminal.
	Observer report.Gatherer
	Logger   *slog.Logger
}

type Engine struct {
	deps Deps
	cfg  Config
}

func New(cfg Config, deps Deps) *Engine {
	if deps.Logger == nil {
		deps.Logger = slog.Default()
	}
	if cfg.PeerRoot == "" {
		cfg.PeerRoot = filepath.Join(os.TempDir(), "disttester-peers")
	}
	return &Engine{deps: deps, cfg: cfg}
}

// Grade runs plan for subj. The returned error is non-nil only for
// configuration errors; test failures and timeouts are part of the Result.
func (e *Engine) Grade(ctx context.Context, plan *dsl.Plan, subj Subject) (*Result, error) {
	s := e.newSession(plan, subj)
	res := &Result{
		RunID:         s.runID,
		Homogeneous:   OutcomeFailed,
		Heterogeneous: OutcomeSkipped,
	}
	if len(plan.HeterogeneousGroups()) == 0 {
		res.Heterogeneous = OutcomeNotApplicable
	}

	timeout := plan.Timeout
	if timeout <= 0 {
		timeout = dsl.DefaultTimeout
	}
	runCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	s.logger.Info("grading submission", "student_id", subj.StudentID, "groups", len(plan.Groups), "timeout", timeout)
	s.out.Note("Running Distributed Tests...")

	err := func() error {
		homPassed, err := s.homogeneous(runCtx)
		if err != nil {
			return err
		}
		if homPassed {
			res.Homogeneous = OutcomePassed
		} else if len(plan.HeterogeneousGroups()) > 0 {
			s.dispatch(runCtx, tasks.Deactivate(subj.AssignmentID, subj.StudentID, time.Now()))
		}
		if !homPassed || res.Heterogeneous == OutcomeNotApplicable {
			return nil
		}
		res.Heterogeneous, err = s.heterogeneous(runCtx)
		return err
	}()

	var cfgErr *failures.ConfigError
	switch {
	case err == nil:
	case errors.As(err, &cfgErr):
		s.logger.Error("run aborted by configuration error", "error", err)
		s.out.Note(fmt.Sprintf("Error: %s", cfgErr.Error()))
		s.teardown(runCtx)
		res.Homogeneous, res.Heterogeneous = failIfPending(res.Homogeneous), failIfPending(res.Heterogeneous)
	case errors.Is(err, failures.ErrTimeout) || runCtx.Err() != nil:
		s.logger.Warn("run timed out", "timeout", timeout)
		s.out.Note(fmt.Sprintf("Distributed tests timed out after %gs", timeout.Seconds()))
		s.teardown(runCtx)
		res.Homogeneous, res.Heterogeneous = failIfPending(res.Homogeneous), failIfPending(res.Heterogeneous)
		err = nil
	default:
		s.logger.Error("run failed", "error", err)
		s.out.Note(fmt.Sprintf("Error: %s", err))
		s.teardown(runCtx)
		res.Homogeneous, res.Heterogeneous = failIfPending(res.Homogeneous), failIfPending(res.Heterogeneous)
		err = nil
	}

	res.Passed = res.Homogeneous == OutcomePassed && res.Heterogeneous != OutcomeFailed
	res.Log = s.log.String()
	verdict := "failed"
	if res.Passed {
		verdict = "passed"
	}
	metrics.Runs.WithLabelValues(verdict).Inc()
	s.logger.Info("finished grading", "passed", res.Passed,
		"homogeneous", res.Homogeneous, "heterogeneous", res.Heterogeneous)
	return res, err
}

// failIfPending marks a phase that was interrupted as failed. Outcomes that
// were settled before the interruption stay.
func failIfPending(o Outcome) Outcome {
	if o == OutcomeSkipped {
		return OutcomeFailed
	}
	return o
}
