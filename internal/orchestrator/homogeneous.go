package orchestrator

import (
	"context"
)

// homogeneous runs every HOM group with all replicas built from the
// student's own submission. Cleanup commands run even after a failure.
func (s *session) homogeneous(ctx context.Context) (bool, error) {
	s.reg.Clear()

	passed, err := s.runCommands(ctx, s.plan.Setup)
	if err != nil {
		return false, err
	}

	if passed {
		header := false
		for idx, g := range s.plan.Groups {
			if !g.Homogeneous {
				continue
			}
			if !header {
				s.out.Section("Tests with your own submission:")
				header = true
			}
			members := make([]participant, g.Machines)
			for i := range members {
				members[i] = s.self()
			}
			s.logger.Debug("running homogeneous group", "group", idx, "machines", g.Machines)
			ok, err := s.runGroup(ctx, idx, g, members, false)
			if err != nil {
				return false, err
			}
			if !ok {
				passed = false
				break
			}
		}
	}

	cleaned, err := s.runCommands(ctx, s.plan.Cleanup)
	if err != nil {
		return false, err
	}
	s.logger.Info("finished tests with own submission", "passed", passed && cleaned)
	return passed && cleaned, nil
}
