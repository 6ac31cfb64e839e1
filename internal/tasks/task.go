// Package tasks runs the side effects of a grading run (score updates,
// comments, pool deactivation) outside the run itself.
package tasks

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
)

type Kind string

const (
	KindIncrementScores Kind = "increment_scores"
	KindPostComment     Kind = "post_comment"
	KindDeactivate      Kind = "deactivate_submission"
)

type Task struct {
	ID           uuid.UUID `json:"id"`
	Kind         Kind      `json:"kind"`
	AssignmentID string    `json:"assignment_id"`
	// StudentIDs is set for increment_scores.
	StudentIDs []string `json:"student_ids,omitempty"`
	// StudentID is set for post_comment and deactivate_submission.
	StudentID string    `json:"student_id,omitempty"`
	Text      string    `json:"text,omitempty"`
	At        time.Time `json:"at"`
	Attempt   int       `json:"attempt"`
}

func IncrementScores(assignmentID string, studentIDs []string) Task {
	return Task{
		ID:           uuid.New(),
		Kind:         KindIncrementScores,
		AssignmentID: assignmentID,
		StudentIDs:   studentIDs,
		At:           time.Now(),
	}
}

func PostComment(assignmentID, studentID, text string) Task {
	return Task{
		ID:           uuid.New(),
		Kind:         KindPostComment,
		AssignmentID: assignmentID,
		StudentID:    studentID,
		Text:         text,
		At:           time.Now(),
	}
}

func Deactivate(assignmentID, studentID string, at time.Time) Task {
	return Task{
		ID:           uuid.New(),
		Kind:         KindDeactivate,
		AssignmentID: assignmentID,
		StudentID:    studentID,
		At:           at,
	}
}

func (t Task) Validate() error {
	if t.AssignmentID == "" {
		return fmt.Errorf("task %s has no assignment id", t.ID)
	}
	switch t.Kind {
	case KindIncrementScores:
		if len(t.StudentIDs) == 0 {
			return fmt.Errorf("task %s has no student ids", t.ID)
		}
	case KindPostComment, KindDeactivate:
		if t.StudentID == "" {
			return fmt.Errorf("task %s has no student id", t.ID)
		}
	default:
		return fmt.Errorf("task %s has unknown kind %q", t.ID, t.Kind)
	}
	return nil
}

// Encode and Decode define the queue wire format.
func Encode(t Task) ([]byte, error) {
	return json.Marshal(t)
}

func Decode(b []byte) (Task, error) {
	var t Task
	if err := json.Unmarshal(b, &t); err != nil {
		return Task{}, fmt.Errorf("failed to unmarshal task: %w", err)
	}
	if err := t.Validate(); err != nil {
		return Task{}, err
	}
	return t, nil
}

type Dispatcher interface {
	Dispatch(ctx context.Context, t Task) error
}

type Handler interface {
	Handle(ctx context.Context, t Task) error
}

type HandlerFunc func(ctx context.Context, t Task) error

func (f HandlerFunc) Handle(ctx context.Context, t Task) error {
	return f(ctx, t)
}
