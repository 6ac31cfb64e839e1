package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/programme-lv/disttester/internal/metrics"
	"github.com/programme-lv/disttester/internal/pool"
	"github.com/programme-lv/disttester/internal/tasks"
	"github.com/urfave/cli/v3"
	"golang.org/x/sync/errgroup"
)

func (a *app) workerCommand() *cli.Command {
	return &cli.Command{
		Name:  "worker",
		Usage: "apply follow-up tasks from the sqs or nats queue",
		Flags: []cli.Flag{
			&cli.StringFlag{Name: "metrics-addr", Usage: "serve Prometheus metrics on this address"},
		},
		Action: a.worker,
	}
}

func (a *app) worker(ctx context.Context, cmd *cli.Command) error {
	var cl closers
	defer func() {
		if err := cl.close(context.WithoutCancel(ctx)); err != nil {
			a.logger.Error("failed to shut down cleanly", "error", err)
		}
	}()

	store, err := a.openStore(ctx, &cl)
	if err != nil {
		return err
	}
	q, err := a.openQueue(ctx, &cl)
	if err != nil {
		return err
	}
	applier := tasks.NewApplier(store, a.newCommenter())

	addr := cmd.String("metrics-addr")
	if addr == "" {
		addr = a.cfg.Metrics.Addr
	}

	g, ctx := errgroup.WithContext(ctx)
	if addr != "" {
		srv := &http.Server{Addr: addr, Handler: metricsMux(), ReadHeaderTimeout: 10 * time.Second}
		g.Go(func() error {
			a.logger.Info("serving metrics", "addr", addr)
			if err := srv.ListenAndServe(); !errors.Is(err, http.ErrServerClosed) {
				return fmt.Errorf("metrics server: %w", err)
			}
			return nil
		})
		g.Go(func() error {
			<-ctx.Done()
			shutdownCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 5*time.Second)
			defer cancel()
			return srv.Shutdown(shutdownCtx)
		})
	}
	g.Go(func() error {
		a.logger.Info("consuming tasks", "backend", a.cfg.Tasks.Backend)
		err := q.Consume(ctx, applier)
		if errors.Is(err, context.Canceled) {
			return nil
		}
		return err
	})
	return g.Wait()
}

func metricsMux() *http.ServeMux {
	mux := http.NewServeMux()
	mux.Handle("/metrics", metrics.Handler())
	mux.HandleFunc("/healthz", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	})
	return mux
}

func (a *app) deactivateCommand() *cli.Command {
	return &cli.Command{
		Name:  "deactivate",
		Usage: "remove a submission from the peer pool",
		Flags: []cli.Flag{
			&cli.StringFlag{Name: "assignment", Required: true},
			&cli.StringFlag{Name: "student-id", Required: true},
		},
		Action: func(ctx context.Context, cmd *cli.Command) error {
			var cl closers
			defer cl.close(context.WithoutCancel(ctx))

			store, err := a.openStore(ctx, &cl)
			if err != nil {
				return err
			}
			return deactivate(ctx, store, cmd.String("assignment"), cmd.String("student-id"))
		},
	}
}

func deactivate(ctx context.Context, store pool.Store, assignmentID, studentID string) error {
	if err := store.Deactivate(ctx, assignmentID, studentID, time.Now()); err != nil {
		return fmt.Errorf("failed to deactivate %s: %w", studentID, err)
	}
	return nil
}
