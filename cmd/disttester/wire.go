package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"path/filepath"
	"time"

	"github.com/nats-io/nats.go"
	"github.com/programme-lv/disttester/internal/attach"
	"github.com/programme-lv/disttester/internal/docker"
	"github.com/programme-lv/disttester/internal/lms"
	"github.com/programme-lv/disttester/internal/orchestrator"
	"github.com/programme-lv/disttester/internal/pool"
	"github.com/programme-lv/disttester/internal/pool/memstore"
	"github.com/programme-lv/disttester/internal/pool/pgstore"
	"github.com/programme-lv/disttester/internal/pool/sqlitestore"
	"github.com/programme-lv/disttester/internal/report"
	"github.com/programme-lv/disttester/internal/shell"
	"github.com/programme-lv/disttester/internal/tasks"
	"github.com/programme-lv/disttester/internal/tasks/natsqueue"
	"github.com/programme-lv/disttester/internal/tasks/sqsqueue"
	"github.com/programme-lv/disttester/internal/xdg"
)

// closers releases resources in reverse order of acquisition.
type closers []func(ctx context.Context) error

func (c *closers) add(f func(ctx context.Context) error) {
	*c = append(*c, f)
}

func (c closers) close(ctx context.Context) error {
	var errs []error
	for i := len(c) - 1; i >= 0; i-- {
		errs = append(errs, c[i](ctx))
	}
	return errors.Join(errs...)
}

func (a *app) openStore(ctx context.Context, cl *closers) (pool.Store, error) {
	switch a.cfg.Store.Driver {
	case "memory":
		a.logger.Warn("using the in-memory pool, submissions are forgotten on exit")
		return memstore.New(), nil
	case "sqlite":
		if err := os.MkdirAll(filepath.Dir(a.cfg.Store.DSN), 0o755); err != nil {
			return nil, fmt.Errorf("failed to create database directory: %w", err)
		}
		s, err := sqlitestore.Open(ctx, a.cfg.Store.DSN)
		if err != nil {
			return nil, err
		}
		cl.add(func(context.Context) error { return s.Close() })
		return s, nil
	case "postgres":
		s, err := pgstore.Connect(ctx, a.cfg.Store.DSN)
		if err != nil {
			return nil, err
		}
		cl.add(func(context.Context) error { s.Close(); return nil })
		return s, nil
	default:
		return nil, fmt.Errorf("unknown store driver %q", a.cfg.Store.Driver)
	}
}

func (a *app) newCommenter() lms.Commenter {
	if a.cfg.LMS.Kind == "canvas" {
		client := &http.Client{Timeout: 30 * time.Second}
		return lms.NewCanvas(a.cfg.LMS.BaseURL, a.cfg.LMS.CourseID, a.cfg.LMS.Token, client)
	}
	return lms.NewLog(a.logger)
}

// queue is a task backend that can also be consumed by a worker.
type queue interface {
	tasks.Dispatcher
	Consume(ctx context.Context, h tasks.Handler) error
}

func (a *app) openQueue(ctx context.Context, cl *closers) (queue, error) {
	switch a.cfg.Tasks.Backend {
	case "sqs":
		client, err := sqsqueue.NewClient(ctx, a.cfg.Tasks.SQSRegion)
		if err != nil {
			return nil, err
		}
		return sqsqueue.New(client, a.cfg.Tasks.SQSQueueURL, a.logger), nil
	case "nats":
		nc, err := nats.Connect(a.cfg.Tasks.NATSURL, nats.Name("disttester"))
		if err != nil {
			return nil, fmt.Errorf("failed to connect to nats: %w", err)
		}
		cl.add(func(context.Context) error { return nc.Drain() })
		return natsqueue.New(ctx, nc, natsqueue.Config{
			Stream:     a.cfg.Tasks.NATSStream,
			Subject:    a.cfg.Tasks.NATSSubject,
			MaxDeliver: a.cfg.Tasks.MaxAttempts,
			RetryDelay: a.cfg.Tasks.RetryBackoff.Std(),
		}, a.logger)
	default:
		return nil, fmt.Errorf("task backend %q cannot be consumed", a.cfg.Tasks.Backend)
	}
}

// newDispatcher returns where the engine sends its follow-up work. The
// local backend applies tasks in-process and drains them on close.
func (a *app) newDispatcher(ctx context.Context, store pool.Store, cl *closers) (tasks.Dispatcher, error) {
	if a.cfg.Tasks.DryRun {
		return tasks.NewDryRun(a.logger), nil
	}
	if a.cfg.Tasks.Backend != "local" {
		return a.openQueue(ctx, cl)
	}
	p := tasks.NewLocalPool(tasks.NewApplier(store, a.newCommenter()), tasks.PoolConfig{
		Workers:      a.cfg.Tasks.Workers,
		QueueSize:    a.cfg.Tasks.QueueSize,
		MaxAttempts:  a.cfg.Tasks.MaxAttempts,
		RetryBackoff: a.cfg.Tasks.RetryBackoff.Std(),
	}, a.logger)
	cl.add(p.Close)
	return p, nil
}

func (a *app) newFetcher(ctx context.Context) attach.Fetcher {
	var getter attach.S3Getter
	client, err := attach.NewS3Client(ctx, a.cfg.Attachments.S3Region)
	if err != nil {
		a.logger.Warn("s3 attachments are unavailable", "error", err)
	} else {
		getter = client
	}
	return attach.NewDownloader(&http.Client{Timeout: 5 * time.Minute}, getter, a.logger)
}

func (a *app) markerDir() string {
	if a.cfg.Executor.MarkerDir != "" {
		return a.cfg.Executor.MarkerDir
	}
	dir := xdg.RuntimeDir()
	if err := xdg.EnsureRuntimeDir(dir); err != nil {
		a.logger.Warn("falling back to the temp dir for marker files", "error", err)
		return os.TempDir()
	}
	return dir
}

func (a *app) newRuntime(host shell.Runner) *docker.CLI {
	return docker.NewCLI(host, a.cfg.Runtime.Binary, a.cfg.Runtime.Shell, a.logger)
}

func (a *app) newEngine(ctx context.Context, observer report.Gatherer, cl *closers) (*orchestrator.Engine, error) {
	store, err := a.openStore(ctx, cl)
	if err != nil {
		return nil, err
	}
	dispatcher, err := a.newDispatcher(ctx, store, cl)
	if err != nil {
		return nil, err
	}
	host := shell.NewBash(a.logger)
	return orchestrator.New(orchestrator.Config{
		HostIP:          a.cfg.HostIP,
		ImageCommand:    a.cfg.Runtime.ImageCommand,
		PortMin:         a.cfg.Ports.Min,
		PortMax:         a.cfg.Ports.Max,
		PortAttempts:    a.cfg.Ports.MaxAttempts,
		AsyncCheckDelay: a.cfg.Executor.AsyncCheckDelay.Std(),
		PeerRoot:        a.cfg.Attachments.CacheDir,
		MarkerDir:       a.markerDir(),
	}, orchestrator.Deps{
		Runtime:  a.newRuntime(host),
		Host:     host,
		Store:    store,
		Fetcher:  a.newFetcher(ctx),
		Tasks:    dispatcher,
		Observer: observer,
		Logger:   a.logger,
	}), nil
}
