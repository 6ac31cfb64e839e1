// Package pooltest checks pool.Store implementations against the
// behaviour the engine relies on.
package pooltest

import (
	"context"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/programme-lv/disttester/internal/pool"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var t0 = time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC)

func submission(id string, offset time.Duration) pool.Submission {
	return pool.Submission{
		StudentID:   id,
		StudentName: "Student " + id,
		SubmittedAt: t0.Add(offset),
		Attachments: []pool.Attachment{{DisplayName: id + ".zip", URL: "https://files.example/" + id + ".zip"}},
	}
}

// Run exercises a fresh store returned by newStore.
func Run(t *testing.T, newStore func(t *testing.T) pool.Store) {
	t.Run("upsert and list others", func(t *testing.T) {
		ctx := context.Background()
		s := newStore(t)
		require.NoError(t, s.Upsert(ctx, "hw1", submission("a", 0)))
		require.NoError(t, s.Upsert(ctx, "hw1", submission("b", time.Hour)))
		require.NoError(t, s.Upsert(ctx, "hw2", submission("c", 0)))

		others, err := s.OtherActive(ctx, "hw1", "a")
		require.NoError(t, err)
		require.Len(t, others, 1)
		got := others[0]
		assert.Equal(t, "b", got.StudentID)
		assert.Equal(t, "Student b", got.StudentName)
		assert.True(t, got.SubmittedAt.Equal(t0.Add(time.Hour)))
		assert.Equal(t, submission("b", 0).Attachments, got.Attachments)
		assert.True(t, got.Active)
		assert.Zero(t, got.Score)
	})

	t.Run("scores survive resubmission", func(t *testing.T) {
		ctx := context.Background()
		s := newStore(t)
		require.NoError(t, s.Upsert(ctx, "hw1", submission("a", 0)))
		require.NoError(t, s.IncrementScores(ctx, "hw1", []string{"a", "ghost"}))
		require.NoError(t, s.IncrementScores(ctx, "hw1", []string{"a"}))

		resub := submission("a", 2*time.Hour)
		resub.Score = 100
		require.NoError(t, s.Upsert(ctx, "hw1", resub))

		others, err := s.OtherActive(ctx, "hw1", "nobody")
		require.NoError(t, err)
		require.Len(t, others, 1)
		assert.Equal(t, 2, others[0].Score)
		assert.True(t, others[0].SubmittedAt.Equal(t0.Add(2*time.Hour)))
	})

	t.Run("deactivate and reactivate", func(t *testing.T) {
		ctx := context.Background()
		s := newStore(t)
		require.NoError(t, s.Upsert(ctx, "hw1", submission("a", 0)))
		require.NoError(t, s.Deactivate(ctx, "hw1", "a", t0))
		require.NoError(t, s.Deactivate(ctx, "hw1", "missing", t0))

		others, err := s.OtherActive(ctx, "hw1", "")
		require.NoError(t, err)
		assert.Empty(t, others)

		require.NoError(t, s.Upsert(ctx, "hw1", submission("a", 0)))
		others, err = s.OtherActive(ctx, "hw1", "")
		require.NoError(t, err)
		assert.Len(t, others, 1)
	})

	t.Run("concurrent increments", func(t *testing.T) {
		ctx := context.Background()
		s := newStore(t)
		require.NoError(t, s.Upsert(ctx, "hw1", submission("a", 0)))
		require.NoError(t, s.Upsert(ctx, "hw1", submission("b", 0)))

		var wg sync.WaitGroup
		for i := range 20 {
			wg.Add(1)
			go func() {
				defer wg.Done()
				assert.NoError(t, s.IncrementScores(ctx, "hw1", []string{"a", "b"}), fmt.Sprint(i))
			}()
		}
		wg.Wait()

		others, err := s.OtherActive(ctx, "hw1", "")
		require.NoError(t, err)
		require.Len(t, others, 2)
		for _, o := range others {
			assert.Equal(t, 20, o.Score, o.StudentID)
		}
	})
}
