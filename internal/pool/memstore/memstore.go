// Package memstore keeps the submission pool in memory.
package memstore

import (
	"context"
	"slices"
	"sync"
	"time"

	"github.com/programme-lv/disttester/internal/pool"
	"github.com/puzpuzpuz/xsync/v3"
)

type assignment struct {
	mu   sync.Mutex
	subs map[string]*pool.Submission
	// order keeps first-upsert order so listings are stable
	order []string
}

type Store struct {
	assignments *xsync.MapOf[string, *assignment]
}

var _ pool.Store = (*Store)(nil)

func New() *Store {
	return &Store{assignments: xsync.NewMapOf[string, *assignment]()}
}

func (s *Store) get(assignmentID string) *assignment {
	a, _ := s.assignments.LoadOrCompute(assignmentID, func() *assignment {
		return &assignment{subs: map[string]*pool.Submission{}}
	})
	return a
}

func (s *Store) OtherActive(ctx context.Context, assignmentID string, excludeStudentID string) ([]pool.Submission, error) {
	a := s.get(assignmentID)
	a.mu.Lock()
	defer a.mu.Unlock()

	var res []pool.Submission
	for _, id := range a.order {
		sub := *a.subs[id]
		if id == excludeStudentID || !sub.Active {
			continue
		}
		sub.Attachments = slices.Clone(sub.Attachments)
		res = append(res, sub)
	}
	return res, nil
}

func (s *Store) Upsert(ctx context.Context, assignmentID string, sub pool.Submission) error {
	a := s.get(assignmentID)
	a.mu.Lock()
	defer a.mu.Unlock()

	sub.Active = true
	sub.Attachments = slices.Clone(sub.Attachments)
	if cur, ok := a.subs[sub.StudentID]; ok {
		sub.Score = cur.Score
		*cur = sub
		return nil
	}
	sub.Score = 0
	a.subs[sub.StudentID] = &sub
	a.order = append(a.order, sub.StudentID)
	return nil
}

func (s *Store) IncrementScores(ctx context.Context, assignmentID string, studentIDs []string) error {
	a := s.get(assignmentID)
	a.mu.Lock()
	defer a.mu.Unlock()

	for _, id := range studentIDs {
		if sub, ok := a.subs[id]; ok {
			sub.Score++
		}
	}
	return nil
}

func (s *Store) Deactivate(ctx context.Context, assignmentID string, studentID string, at time.Time) error {
	a := s.get(assignmentID)
	a.mu.Lock()
	defer a.mu.Unlock()

	if sub, ok := a.subs[studentID]; ok {
		sub.Active = false
	}
	return nil
}
