package tasks

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"time"

	"github.com/programme-lv/disttester/internal/metrics"
	"golang.org/x/sync/errgroup"
)

var ErrClosed = errors.New("task pool is closed")

type PoolConfig struct {
	Workers      int
	QueueSize    int
	MaxAttempts  int
	RetryBackoff time.Duration
}

func (c *PoolConfig) defaults() {
	if c.Workers <= 0 {
		c.Workers = 4
	}
	if c.QueueSize <= 0 {
		c.QueueSize = 256
	}
	if c.MaxAttempts <= 0 {
		c.MaxAttempts = 5
	}
	if c.RetryBackoff <= 0 {
		c.RetryBackoff = time.Second
	}
}

// LocalPool runs tasks in-process on a fixed number of workers. A failed
// task is retried with linear backoff until MaxAttempts.
type LocalPool struct {
	handler Handler
	cfg     PoolConfig
	logger  *slog.Logger

	mu     sync.RWMutex
	closed bool
	queue  chan Task
	stop   context.CancelFunc
	group  *errgroup.Group
}

var _ Dispatcher = (*LocalPool)(nil)

func NewLocalPool(handler Handler, cfg PoolConfig, logger *slog.Logger) *LocalPool {
	cfg.defaults()
	ctx, cancel := context.WithCancel(context.Background())
	g := &errgroup.Group{}
	p := &LocalPool{
		handler: handler,
		cfg:     cfg,
		logger:  logger,
		queue:   make(chan Task, cfg.QueueSize),
		stop:    cancel,
		group:   g,
	}
	for i := 0; i < cfg.Workers; i++ {
		g.Go(func() error {
			p.work(ctx)
			return nil
		})
	}
	return p
}

// Dispatch enqueues t, blocking while the queue is full.
func (p *LocalPool) Dispatch(ctx context.Context, t Task) error {
	if err := t.Validate(); err != nil {
		return err
	}
	p.mu.RLock()
	defer p.mu.RUnlock()
	if p.closed {
		return ErrClosed
	}
	select {
	case p.queue <- t:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Close stops accepting tasks and waits until queued ones are done. When ctx
// expires first, pending retries are abandoned.
func (p *LocalPool) Close(ctx context.Context) error {
	p.mu.Lock()
	if !p.closed {
		p.closed = true
		close(p.queue)
	}
	p.mu.Unlock()

	done := make(chan struct{})
	go func() {
		p.group.Wait()
		close(done)
	}()
	select {
	case <-done:
		return nil
	case <-ctx.Done():
		p.stop()
		<-done
		return ctx.Err()
	}
}

func (p *LocalPool) work(ctx context.Context) {
	for t := range p.queue {
		p.run(ctx, t)
	}
}

func (p *LocalPool) run(ctx context.Context, t Task) {
	for attempt := 1; ; attempt++ {
		t.Attempt = attempt
		logger := p.logger.With("task_id", t.ID, "kind", t.Kind, "attempt", attempt)

		err := p.handler.Handle(ctx, t)
		if err == nil {
			metrics.Tasks.WithLabelValues(string(t.Kind), "ok").Inc()
			logger.Debug("task done")
			return
		}
		if attempt >= p.cfg.MaxAttempts {
			metrics.Tasks.WithLabelValues(string(t.Kind), "failed").Inc()
			logger.Error("task failed, giving up", "error", err)
			return
		}
		metrics.Tasks.WithLabelValues(string(t.Kind), "retry").Inc()
		logger.Warn("task failed, retrying", "error", err)

		timer := time.NewTimer(time.Duration(attempt) * p.cfg.RetryBackoff)
		select {
		case <-timer.C:
		case <-ctx.Done():
			timer.Stop()
			logger.Error("task abandoned", "error", ctx.Err())
			return
		}
	}
}

// DryRun logs tasks instead of running them.
type DryRun struct {
	logger *slog.Logger
}

var _ Dispatcher = (*DryRun)(nil)

func NewDryRun(logger *slog.Logger) *DryRun {
	return &DryRun{logger: logger}
}

func (d *DryRun) Dispatch(ctx context.Context, t Task) error {
	d.logger.InfoContext(ctx, "dry run, skipping task",
		"task_id", t.ID, "kind", t.Kind, "assignment_id", t.AssignmentID,
		"student_id", t.StudentID, "student_ids", t.StudentIDs, "text", t.Text)
	return nil
}
