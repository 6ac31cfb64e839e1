package natsqueue_test

import (
	"context"
	"log/slog"
	"os"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/nats-io/nats.go"
	"github.com/programme-lv/disttester/internal/tasks"
	"github.com/programme-lv/disttester/internal/tasks/natsqueue"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// Needs a JetStream enabled server, e.g. `nats-server -js`, reachable at
// DISTTESTER_TEST_NATS_URL.
func TestRoundTrip(t *testing.T) {
	url := os.Getenv("DISTTESTER_TEST_NATS_URL")
	if url == "" {
		t.Skip("DISTTESTER_TEST_NATS_URL is not set")
	}
	nc, err := nats.Connect(url)
	require.NoError(t, err)
	defer nc.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	suffix := uuid.NewString()[:8]
	q, err := natsqueue.New(ctx, nc, natsqueue.Config{
		Stream:     "TEST_" + suffix,
		Subject:    "test." + suffix,
		Durable:    "w-" + suffix,
		RetryDelay: 10 * time.Millisecond,
	}, slog.Default())
	require.NoError(t, err)

	sent := tasks.PostComment("a1", "s1", "hello")
	require.NoError(t, q.Dispatch(ctx, sent))

	got := make(chan tasks.Task, 2)
	consumeCtx, stop := context.WithCancel(ctx)
	go q.Consume(consumeCtx, tasks.HandlerFunc(func(ctx context.Context, task tasks.Task) error {
		got <- task
		if task.Attempt == 1 {
			return assert.AnError
		}
		return nil
	}))
	defer stop()

	next := func() tasks.Task {
		select {
		case task := <-got:
			return task
		case <-ctx.Done():
			t.Fatal("task was not delivered")
			return tasks.Task{}
		}
	}
	first := next()
	second := next()
	assert.Equal(t, sent.ID, first.ID)
	assert.Equal(t, 1, first.Attempt)
	assert.Equal(t, 2, second.Attempt)
}
