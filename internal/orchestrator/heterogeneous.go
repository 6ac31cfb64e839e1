package orchestrator

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"strings"

	"github.com/programme-lv/disttester/internal/attach"
	"github.com/programme-lv/disttester/internal/failures"
	"github.com/programme-lv/disttester/internal/metrics"
	"github.com/programme-lv/disttester/internal/peers"
	"github.com/programme-lv/disttester/internal/pool"
	"github.com/programme-lv/disttester/internal/report"
	"github.com/programme-lv/disttester/internal/tasks"
)

// heterogeneous pairs the submission with peers from the pool and runs the
// HET groups for each ranked combination until one passes all of them.
func (s *session) heterogeneous(ctx context.Context) (Outcome, error) {
	s.reg.Clear()
	s.out.Section("Tests with other users' submissions:")

	if err := s.e.deps.Store.Upsert(ctx, s.subj.AssignmentID, pool.Submission{
		StudentID:   s.subj.StudentID,
		StudentName: s.subj.StudentName,
		SubmittedAt: s.subj.SubmittedAt,
		Attachments: s.subj.Attachments,
		Active:      true,
	}); err != nil {
		return s.poolFailure(ctx, "failed to add submission to the pool", err)
	}
	others, err := s.e.deps.Store.OtherActive(ctx, s.subj.AssignmentID, s.subj.StudentID)
	if err != nil {
		return s.poolFailure(ctx, "failed to list other submissions", err)
	}

	size := s.plan.MaxHeterogeneousMachines() - 1
	if len(others) < size {
		s.logger.Info("not enough peers", "have", len(others), "need", size)
		s.out.Note("Could not find enough submissions to run tests. Added to the pool and waiting for others.")
		return OutcomeWaiting, nil
	}
	combos := peers.Ranked(others, size)
	s.logger.Debug("ranked peer combinations", "count", len(combos), "size", size)

	if _, err := s.lc.StartController(ctx, s.subj.WorkDir, s.plan.PortsPerContainer); err != nil {
		var launchErr *failures.LaunchError
		if !errors.As(err, &launchErr) {
			return OutcomeFailed, err
		}
		s.exec.Gatherer().CommandFailed("start container controller", launchOutput(launchErr))
		return OutcomeFailed, nil
	}

	outcome, err := s.tryCombinations(ctx, combos)
	if err != nil {
		return OutcomeFailed, err
	}

	cleaned, err := s.runCommands(ctx, s.plan.Cleanup)
	if err != nil {
		return OutcomeFailed, err
	}
	if err := s.lc.StopController(context.WithoutCancel(ctx), true); err != nil {
		s.logger.Warn("failed to stop controller", "error", err)
	}
	if !cleaned {
		outcome = OutcomeFailed
	}
	s.logger.Info("finished tests with other submissions", "outcome", outcome)
	return outcome, nil
}

func (s *session) tryCombinations(ctx context.Context, combos []peers.Combination) (Outcome, error) {
	ok, err := s.runCommands(ctx, s.plan.Setup)
	if err != nil || !ok {
		return OutcomeFailed, err
	}

	cache := attach.NewCache(s.e.deps.Fetcher, filepath.Join(s.e.cfg.PeerRoot, s.runID.String()))
	defer func() {
		if err := cache.Close(); err != nil {
			s.logger.Warn("failed to remove peer submissions", "error", err)
		}
	}()
	defer s.exec.SetGatherer(s.out)

	var last *report.Log
	for _, combo := range combos {
		names := append([]string{s.subj.StudentName}, combo.Names()...)
		comboLog := report.NewLog()
		g := s.gatherer(comboLog)
		g.Note(fmt.Sprintf("Test with submissions by: %s", strings.Join(names, ", ")))
		s.exec.SetGatherer(g)

		members, err := s.materialize(ctx, cache, combo)
		if err != nil {
			if ctx.Err() != nil {
				return OutcomeFailed, fmt.Errorf("%w: %w", failures.ErrTimeout, ctx.Err())
			}
			s.logger.Warn("skipping combination", "peers", combo.StudentIDs(), "error", err)
			s.out.Note(fmt.Sprintf("Skipped submissions by %s: %s", strings.Join(combo.Names(), ", "), err))
			metrics.Combinations.WithLabelValues("skipped").Inc()
			continue
		}

		passed, err := s.runCombination(ctx, members)
		if err != nil {
			s.log.Append(comboLog)
			return OutcomeFailed, err
		}
		if passed {
			metrics.Combinations.WithLabelValues("passed").Inc()
			s.log.Append(comboLog)
			s.reward(ctx, combo, comboLog.String())
			return OutcomePassed, nil
		}
		metrics.Combinations.WithLabelValues("failed").Inc()
		last = comboLog
	}

	if last != nil {
		s.out.Note("No pairing passed. Results of the last unsuccessful pairing:")
		s.log.Append(last)
	}
	return OutcomeNoMatch, nil
}

// materialize returns the participants of a combination, the student first.
func (s *session) materialize(ctx context.Context, cache *attach.Cache, combo peers.Combination) ([]participant, error) {
	members := []participant{s.self()}
	for _, sub := range combo {
		dir, err := cache.Dir(ctx, sub.StudentID, sub.Attachments)
		if err != nil {
			return nil, fmt.Errorf("could not fetch the submission of %s: %w", sub.StudentName, err)
		}
		members = append(members, participant{name: sub.StudentName, dir: dir})
	}
	return members, nil
}

func (s *session) runCombination(ctx context.Context, members []participant) (bool, error) {
	for idx, g := range s.plan.Groups {
		if !g.Heterogeneous {
			continue
		}
		ok, err := s.runGroup(ctx, idx, g, members[:g.Machines], true)
		if err != nil || !ok {
			return false, err
		}
	}
	return true, nil
}

// reward credits everyone in a passing combination and tells the peers.
func (s *session) reward(ctx context.Context, combo peers.Combination, log string) {
	ids := append([]string{s.subj.StudentID}, combo.StudentIDs()...)
	s.dispatch(ctx, tasks.IncrementScores(s.subj.AssignmentID, ids))
	for _, id := range combo.StudentIDs() {
		s.dispatch(ctx, tasks.PostComment(s.subj.AssignmentID, id, log))
	}
}

func (s *session) poolFailure(ctx context.Context, msg string, err error) (Outcome, error) {
	if ctx.Err() != nil {
		return OutcomeFailed, fmt.Errorf("%w: %w", failures.ErrTimeout, ctx.Err())
	}
	s.logger.Error(msg, "error", err)
	s.out.Note(fmt.Sprintf("Could not reach the submission pool: %s", err))
	return OutcomeFailed, nil
}
