package tasks

import (
	"context"
	"fmt"
	"strings"

	"github.com/programme-lv/disttester/internal/lms"
	"github.com/programme-lv/disttester/internal/pool"
)

// CommentPrefix marks comments written by the autograder.
const CommentPrefix = "[AG]\n\n"

// FormatComment prefixes text and escapes NUL bytes, which the LMS rejects.
func FormatComment(text string) string {
	return CommentPrefix + strings.ReplaceAll(text, "\x00", `\0`)
}

// Applier executes tasks against the pool store and the LMS.
type Applier struct {
	store     pool.Store
	commenter lms.Commenter
}

var _ Handler = (*Applier)(nil)

func NewApplier(store pool.Store, commenter lms.Commenter) *Applier {
	return &Applier{store: store, commenter: commenter}
}

func (a *Applier) Handle(ctx context.Context, t Task) error {
	if err := t.Validate(); err != nil {
		return err
	}
	switch t.Kind {
	case KindIncrementScores:
		return a.store.IncrementScores(ctx, t.AssignmentID, t.StudentIDs)
	case KindPostComment:
		return a.commenter.Comment(ctx, t.AssignmentID, t.StudentID, FormatComment(t.Text))
	case KindDeactivate:
		return a.store.Deactivate(ctx, t.AssignmentID, t.StudentID, t.At)
	}
	return fmt.Errorf("unhandled task kind %q", t.Kind)
}
