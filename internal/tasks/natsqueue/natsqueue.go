// Package natsqueue carries tasks over a NATS JetStream stream.
package natsqueue

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/nats-io/nats.go"
	"github.com/nats-io/nats.go/jetstream"
	"github.com/programme-lv/disttester/internal/metrics"
	"github.com/programme-lv/disttester/internal/tasks"
)

type Config struct {
	Stream  string
	Subject string
	// Durable names the consumer shared by all workers.
	Durable    string
	MaxDeliver int
	AckWait    time.Duration
	// RetryDelay is how long a failed task waits before redelivery.
	RetryDelay time.Duration
}

func (c *Config) defaults() {
	if c.Stream == "" {
		c.Stream = "DISTTESTER_TASKS"
	}
	if c.Subject == "" {
		c.Subject = "disttester.tasks"
	}
	if c.Durable == "" {
		c.Durable = "disttester-worker"
	}
	if c.MaxDeliver <= 0 {
		c.MaxDeliver = 5
	}
	if c.AckWait <= 0 {
		c.AckWait = time.Minute
	}
	if c.RetryDelay <= 0 {
		c.RetryDelay = 5 * time.Second
	}
}

type Queue struct {
	js     jetstream.JetStream
	cfg    Config
	logger *slog.Logger
}

var _ tasks.Dispatcher = (*Queue)(nil)

// New creates the stream if it does not exist yet.
func New(ctx context.Context, nc *nats.Conn, cfg Config, logger *slog.Logger) (*Queue, error) {
	cfg.defaults()
	js, err := jetstream.New(nc)
	if err != nil {
		return nil, fmt.Errorf("failed to create jetstream context: %w", err)
	}
	_, err = js.CreateOrUpdateStream(ctx, jetstream.StreamConfig{
		Name:      cfg.Stream,
		Subjects:  []string{cfg.Subject},
		Retention: jetstream.WorkQueuePolicy,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create stream %s: %w", cfg.Stream, err)
	}
	return &Queue{js: js, cfg: cfg, logger: logger}, nil
}

func (q *Queue) Dispatch(ctx context.Context, t tasks.Task) error {
	if err := t.Validate(); err != nil {
		return err
	}
	b, err := tasks.Encode(t)
	if err != nil {
		return fmt.Errorf("failed to marshal task: %w", err)
	}
	if _, err := q.js.Publish(ctx, q.cfg.Subject, b, jetstream.WithMsgID(t.ID.String())); err != nil {
		return fmt.Errorf("failed to publish task %s: %w", t.ID, err)
	}
	return nil
}

// Consume hands tasks to h until ctx is cancelled. Failed tasks are
// redelivered after RetryDelay, up to MaxDeliver times.
func (q *Queue) Consume(ctx context.Context, h tasks.Handler) error {
	cons, err := q.js.CreateOrUpdateConsumer(ctx, q.cfg.Stream, jetstream.ConsumerConfig{
		Durable:       q.cfg.Durable,
		AckPolicy:     jetstream.AckExplicitPolicy,
		FilterSubject: q.cfg.Subject,
		MaxDeliver:    q.cfg.MaxDeliver,
		AckWait:       q.cfg.AckWait,
	})
	if err != nil {
		return fmt.Errorf("failed to create consumer %s: %w", q.cfg.Durable, err)
	}

	cc, err := cons.Consume(func(msg jetstream.Msg) {
		q.handle(ctx, h, msg)
	})
	if err != nil {
		return fmt.Errorf("failed to start consuming: %w", err)
	}
	<-ctx.Done()
	cc.Stop()
	return nil
}

func (q *Queue) handle(ctx context.Context, h tasks.Handler, msg jetstream.Msg) {
	t, err := tasks.Decode(msg.Data())
	if err != nil {
		q.logger.Error("dropping malformed task", "error", err)
		if err := msg.Term(); err != nil {
			q.logger.Error("failed to terminate message", "error", err)
		}
		return
	}
	if meta, err := msg.Metadata(); err == nil {
		t.Attempt = int(meta.NumDelivered)
	}

	logger := q.logger.With("task_id", t.ID, "kind", t.Kind, "attempt", t.Attempt)
	if err := h.Handle(ctx, t); err != nil {
		outcome := "retry"
		if t.Attempt >= q.cfg.MaxDeliver {
			outcome = "failed"
		}
		metrics.Tasks.WithLabelValues(string(t.Kind), outcome).Inc()
		logger.Warn("task failed", "error", err, "outcome", outcome)
		if err := msg.NakWithDelay(q.cfg.RetryDelay); err != nil {
			logger.Error("failed to nak message", "error", err)
		}
		return
	}
	metrics.Tasks.WithLabelValues(string(t.Kind), "ok").Inc()
	if err := msg.Ack(); err != nil {
		logger.Error("failed to ack message", "error", err)
	}
}
