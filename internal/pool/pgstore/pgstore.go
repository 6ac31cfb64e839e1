// Package pgstore keeps the submission pool in PostgreSQL so that graders on
// several machines share it.
package pgstore

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/programme-lv/disttester/internal/pool"
)

const schema = `
CREATE TABLE IF NOT EXISTS pool_submissions (
	id             BIGSERIAL   PRIMARY KEY,
	assignment_id  TEXT        NOT NULL,
	student_id     TEXT        NOT NULL,
	student_name   TEXT        NOT NULL,
	submitted_at   TIMESTAMPTZ NOT NULL,
	attachments    JSONB       NOT NULL,
	score          INTEGER     NOT NULL DEFAULT 0,
	active         BOOLEAN     NOT NULL DEFAULT TRUE,
	deactivated_at TIMESTAMPTZ,
	UNIQUE (assignment_id, student_id)
);`

type Store struct {
	pool *pgxpool.Pool
}

var _ pool.Store = (*Store)(nil)

func Connect(ctx context.Context, dsn string) (*Store, error) {
	p, err := pgxpool.New(ctx, dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to postgres: %w", err)
	}
	if _, err := p.Exec(ctx, schema); err != nil {
		p.Close()
		return nil, fmt.Errorf("failed to create schema: %w", err)
	}
	return &Store{pool: p}, nil
}

func (s *Store) Close() {
	s.pool.Close()
}

func (s *Store) OtherActive(ctx context.Context, assignmentID string, excludeStudentID string) ([]pool.Submission, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT student_id, student_name, submitted_at, attachments, score
		FROM pool_submissions
		WHERE assignment_id = $1 AND student_id <> $2 AND active
		ORDER BY id`, assignmentID, excludeStudentID)
	if err != nil {
		return nil, fmt.Errorf("failed to query submissions: %w", err)
	}
	defer rows.Close()

	var res []pool.Submission
	for rows.Next() {
		var sub pool.Submission
		var attachments []byte
		if err := rows.Scan(&sub.StudentID, &sub.StudentName, &sub.SubmittedAt, &attachments, &sub.Score); err != nil {
			return nil, fmt.Errorf("failed to scan submission: %w", err)
		}
		sub.Active = true
		if err := json.Unmarshal(attachments, &sub.Attachments); err != nil {
			return nil, fmt.Errorf("failed to decode attachments of %s: %w", sub.StudentID, err)
		}
		res = append(res, sub)
	}
	return res, rows.Err()
}

func (s *Store) Upsert(ctx context.Context, assignmentID string, sub pool.Submission) error {
	attachments, err := json.Marshal(sub.Attachments)
	if err != nil {
		return fmt.Errorf("failed to encode attachments: %w", err)
	}
	_, err = s.pool.Exec(ctx, `
		INSERT INTO pool_submissions (assignment_id, student_id, student_name, submitted_at, attachments)
		VALUES ($1, $2, $3, $4, $5::jsonb)
		ON CONFLICT (assignment_id, student_id) DO UPDATE SET
			student_name = EXCLUDED.student_name,
			submitted_at = EXCLUDED.submitted_at,
			attachments = EXCLUDED.attachments,
			active = TRUE,
			deactivated_at = NULL`,
		assignmentID, sub.StudentID, sub.StudentName, sub.SubmittedAt, string(attachments))
	if err != nil {
		return fmt.Errorf("failed to upsert submission of %s: %w", sub.StudentID, err)
	}
	return nil
}

func (s *Store) IncrementScores(ctx context.Context, assignmentID string, studentIDs []string) error {
	if len(studentIDs) == 0 {
		return nil
	}
	_, err := s.pool.Exec(ctx, `
		UPDATE pool_submissions SET score = score + 1
		WHERE assignment_id = $1 AND student_id = ANY($2)`,
		assignmentID, studentIDs)
	if err != nil {
		return fmt.Errorf("failed to increment scores: %w", err)
	}
	return nil
}

func (s *Store) Deactivate(ctx context.Context, assignmentID string, studentID string, at time.Time) error {
	_, err := s.pool.Exec(ctx, `
		UPDATE pool_submissions SET active = FALSE, deactivated_at = $3
		WHERE assignment_id = $1 AND student_id = $2`,
		assignmentID, studentID, at)
	if err != nil {
		return fmt.Errorf("failed to deactivate submission of %s: %w", studentID, err)
	}
	return nil
}

// Truncate empties the pool. It exists for tests and for resetting a course.
func (s *Store) Truncate(ctx context.Context) error {
	if _, err := s.pool.Exec(ctx, `TRUNCATE pool_submissions`); err != nil {
		return fmt.Errorf("failed to truncate pool: %w", err)
	}
	return nil
}
