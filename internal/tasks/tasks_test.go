package tasks_test

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/programme-lv/disttester/internal/pool"
	"github.com/programme-lv/disttester/internal/pool/memstore"
	"github.com/programme-lv/disttester/internal/tasks"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type recordingCommenter struct {
	mu       sync.Mutex
	comments map[string]string
}

func (c *recordingCommenter) Comment(ctx context.Context, assignmentID, studentID, text string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.comments == nil {
		c.comments = map[string]string{}
	}
	c.comments[assignmentID+"/"+studentID] = text
	return nil
}

func TestFormatComment(t *testing.T) {
	assert.Equal(t, "[AG]\n\nout\\0put", tasks.FormatComment("out\x00put"))
}

func TestDecodeRejectsBadTasks(t *testing.T) {
	_, err := tasks.Decode([]byte(`{"kind":"reboot","assignment_id":"a1"}`))
	assert.ErrorContains(t, err, "unknown kind")

	_, err = tasks.Decode([]byte(`{"kind":"post_comment","assignment_id":"a1"}`))
	assert.ErrorContains(t, err, "no student id")

	_, err = tasks.Decode([]byte(`not json`))
	assert.Error(t, err)

	in := tasks.IncrementScores("a1", []string{"s1", "s2"})
	b, err := tasks.Encode(in)
	require.NoError(t, err)
	out, err := tasks.Decode(b)
	require.NoError(t, err)
	assert.Equal(t, in.ID, out.ID)
	assert.Equal(t, []string{"s1", "s2"}, out.StudentIDs)
}

func TestApplier(t *testing.T) {
	ctx := context.Background()
	store := memstore.New()
	for _, id := range []string{"s1", "s2"} {
		require.NoError(t, store.Upsert(ctx, "a1", pool.Submission{StudentID: id, SubmittedAt: time.Now()}))
	}
	commenter := &recordingCommenter{}
	a := tasks.NewApplier(store, commenter)

	require.NoError(t, a.Handle(ctx, tasks.IncrementScores("a1", []string{"s1", "s2"})))
	require.NoError(t, a.Handle(ctx, tasks.PostComment("a1", "s2", "Distributed Test 1 of 1: PASSED\n")))
	require.NoError(t, a.Handle(ctx, tasks.Deactivate("a1", "s1", time.Now())))

	others, err := store.OtherActive(ctx, "a1", "nobody")
	require.NoError(t, err)
	require.Len(t, others, 1)
	assert.Equal(t, "s2", others[0].StudentID)
	assert.Equal(t, 1, others[0].Score)
	assert.Equal(t, "[AG]\n\nDistributed Test 1 of 1: PASSED\n", commenter.comments["a1/s2"])
}

func TestLocalPoolRetries(t *testing.T) {
	var calls atomic.Int32
	h := tasks.HandlerFunc(func(ctx context.Context, task tasks.Task) error {
		if calls.Add(1) < 3 {
			return errors.New("lms is down")
		}
		assert.Equal(t, 3, task.Attempt)
		return nil
	})
	p := tasks.NewLocalPool(h, tasks.PoolConfig{Workers: 1, MaxAttempts: 5, RetryBackoff: time.Millisecond}, slog.Default())

	require.NoError(t, p.Dispatch(context.Background(), tasks.PostComment("a1", "s1", "hi")))
	require.NoError(t, p.Close(context.Background()))
	assert.Equal(t, int32(3), calls.Load())
}

func TestLocalPoolGivesUp(t *testing.T) {
	var calls atomic.Int32
	h := tasks.HandlerFunc(func(ctx context.Context, task tasks.Task) error {
		calls.Add(1)
		return errors.New("always")
	})
	p := tasks.NewLocalPool(h, tasks.PoolConfig{Workers: 2, MaxAttempts: 2, RetryBackoff: time.Millisecond}, slog.Default())

	require.NoError(t, p.Dispatch(context.Background(), tasks.Deactivate("a1", "s1", time.Now())))
	require.NoError(t, p.Dispatch(context.Background(), tasks.Deactivate("a1", "s2", time.Now())))
	require.NoError(t, p.Close(context.Background()))
	assert.Equal(t, int32(4), calls.Load())
}

func TestLocalPoolRejectsAfterClose(t *testing.T) {
	p := tasks.NewLocalPool(tasks.HandlerFunc(func(context.Context, tasks.Task) error { return nil }),
		tasks.PoolConfig{}, slog.Default())
	require.NoError(t, p.Close(context.Background()))
	err := p.Dispatch(context.Background(), tasks.Deactivate("a1", "s1", time.Now()))
	assert.ErrorIs(t, err, tasks.ErrClosed)
}

func TestLocalPoolCloseAbandonsRetries(t *testing.T) {
	h := tasks.HandlerFunc(func(ctx context.Context, task tasks.Task) error {
		return errors.New("down")
	})
	p := tasks.NewLocalPool(h, tasks.PoolConfig{Workers: 1, MaxAttempts: 10, RetryBackoff: time.Hour}, slog.Default())
	require.NoError(t, p.Dispatch(context.Background(), tasks.Deactivate("a1", "s1", time.Now())))

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	assert.ErrorIs(t, p.Close(ctx), context.DeadlineExceeded)
}
