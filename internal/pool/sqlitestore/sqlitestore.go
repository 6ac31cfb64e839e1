// Package sqlitestore keeps the submission pool in a SQLite database, which
// is enough when every grading run happens on one machine.
package sqlitestore

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	_ "github.com/mattn/go-sqlite3"
	"github.com/programme-lv/disttester/internal/pool"
)

const schema = `
CREATE TABLE IF NOT EXISTS pool_submissions (
	assignment_id  TEXT    NOT NULL,
	student_id     TEXT    NOT NULL,
	student_name   TEXT    NOT NULL,
	submitted_at   INTEGER NOT NULL,
	attachments    TEXT    NOT NULL,
	score          INTEGER NOT NULL DEFAULT 0,
	active         INTEGER NOT NULL DEFAULT 1,
	deactivated_at INTEGER,
	UNIQUE (assignment_id, student_id)
);`

type Store struct {
	db *sql.DB
}

var _ pool.Store = (*Store)(nil)

// Open opens or creates the database at path and applies the schema.
func Open(ctx context.Context, path string) (*Store, error) {
	db, err := sql.Open("sqlite3", fmt.Sprintf("file:%s?_busy_timeout=5000&_journal_mode=WAL", path))
	if err != nil {
		return nil, fmt.Errorf("failed to open sqlite database: %w", err)
	}
	// one writer at a time keeps increments from racing on the file lock
	db.SetMaxOpenConns(1)
	if _, err := db.ExecContext(ctx, schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to create schema: %w", err)
	}
	return &Store{db: db}, nil
}

func (s *Store) Close() error {
	return s.db.Close()
}

func (s *Store) OtherActive(ctx context.Context, assignmentID string, excludeStudentID string) ([]pool.Submission, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT student_id, student_name, submitted_at, attachments, score
		FROM pool_submissions
		WHERE assignment_id = ? AND student_id <> ? AND active = 1
		ORDER BY rowid`, assignmentID, excludeStudentID)
	if err != nil {
		return nil, fmt.Errorf("failed to query submissions: %w", err)
	}
	defer rows.Close()

	var res []pool.Submission
	for rows.Next() {
		var sub pool.Submission
		var submittedAt int64
		var attachments string
		if err := rows.Scan(&sub.StudentID, &sub.StudentName, &submittedAt, &attachments, &sub.Score); err != nil {
			return nil, fmt.Errorf("failed to scan submission: %w", err)
		}
		sub.SubmittedAt = time.Unix(0, submittedAt).UTC()
		sub.Active = true
		if err := json.Unmarshal([]byte(attachments), &sub.Attachments); err != nil {
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
	_, err = s.db.ExecContext(ctx, `
		INSERT INTO pool_submissions (assignment_id, student_id, student_name, submitted_at, attachments)
		VALUES (?, ?, ?, ?, ?)
		ON CONFLICT (assignment_id, student_id) DO UPDATE SET
			student_name = excluded.student_name,
			submitted_at = excluded.submitted_at,
			attachments = excluded.attachments,
			active = 1,
			deactivated_at = NULL`,
		assignmentID, sub.StudentID, sub.StudentName, sub.SubmittedAt.UnixNano(), string(attachments))
	if err != nil {
		return fmt.Errorf("failed to upsert submission of %s: %w", sub.StudentID, err)
	}
	return nil
}

func (s *Store) IncrementScores(ctx context.Context, assignmentID string, studentIDs []string) error {
	if len(studentIDs) == 0 {
		return nil
	}
	args := make([]any, 0, len(studentIDs)+1)
	args = append(args, assignmentID)
	for _, id := range studentIDs {
		args = append(args, id)
	}
	query := fmt.Sprintf(`
		UPDATE pool_submissions SET score = score + 1
		WHERE assignment_id = ? AND student_id IN (%s)`,
		strings.TrimSuffix(strings.Repeat("?,", len(studentIDs)), ","))
	if _, err := s.db.ExecContext(ctx, query, args...); err != nil {
		return fmt.Errorf("failed to increment scores: %w", err)
	}
	return nil
}

func (s *Store) Deactivate(ctx context.Context, assignmentID string, studentID string, at time.Time) error {
	_, err := s.db.ExecContext(ctx, `
		UPDATE pool_submissions SET active = 0, deactivated_at = ?
		WHERE assignment_id = ? AND student_id = ?`,
		at.UnixNano(), assignmentID, studentID)
	if err != nil {
		return fmt.Errorf("failed to deactivate submission of %s: %w", studentID, err)
	}
	return nil
}
