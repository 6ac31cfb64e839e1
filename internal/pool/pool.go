// Package pool describes the shared pool of submissions that take part in
// heterogeneous rounds.
package pool

import (
	"context"
	"time"
)

type Attachment struct {
	DisplayName string `json:"display_name"`
	URL         string `json:"url"`
}

type Submission struct {
	StudentID   string       `json:"student_id"`
	StudentName string       `json:"student_name"`
	SubmittedAt time.Time    `json:"submitted_at"`
	Attachments []Attachment `json:"attachments"`
	// Score counts the heterogeneous rounds this submission has passed.
	Score  int  `json:"score"`
	Active bool `json:"active"`
}

// Store persists the pool. Implementations must make Upsert and
// IncrementScores atomic, since concurrent runs share one store.
type Store interface {
	// OtherActive returns the active submissions of an assignment except
	// the one by excludeStudentID.
	OtherActive(ctx context.Context, assignmentID string, excludeStudentID string) ([]Submission, error)
	// Upsert stores s keyed by its student id and marks it active. Score is
	// kept for an existing entry.
	Upsert(ctx context.Context, assignmentID string, s Submission) error
	IncrementScores(ctx context.Context, assignmentID string, studentIDs []string) error
	Deactivate(ctx context.Context, assignmentID string, studentID string, at time.Time) error
}
