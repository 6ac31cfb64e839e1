package main

import (
	"context"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/fatih/color"
	"github.com/kballard/go-shellquote"
	"github.com/programme-lv/disttester/internal/shell"
	"github.com/urfave/cli/v3"
)

type health int

const (
	healthOK health = iota
	healthWarning
	healthError
)

type feedbackRow struct {
	unit    string
	health  health
	message string
}

func (a *app) healthCommand() *cli.Command {
	return &cli.Command{
		Name:  "health",
		Usage: "check that the container runtime and the configured backends are usable",
		Action: func(ctx context.Context, cmd *cli.Command) error {
			ctx, cancel := context.WithTimeout(ctx, 30*time.Second)
			defer cancel()

			rows := []feedbackRow{
				a.checkRuntime(ctx),
				a.checkStore(ctx),
				a.checkTasks(ctx),
				a.checkMarkerDir(),
			}
			worst := outputFeedback(rows)
			if worst == healthError {
				return cli.Exit("", 1)
			}
			return nil
		},
	}
}

func (a *app) checkRuntime(ctx context.Context) feedbackRow {
	row := feedbackRow{unit: "Runtime"}
	host := shell.NewBash(a.logger)
	res, err := host.Run(ctx, shellquote.Join(a.cfg.Runtime.Binary, "version", "--format", "{{.Server.Version}}"))
	switch {
	case err != nil:
		row.health, row.message = healthError, err.Error()
	case !res.Ok():
		row.health, row.message = healthError, firstLine(res.Output)
	default:
		row.message = fmt.Sprintf("%s %s", a.cfg.Runtime.Binary, firstLine(res.Output))
	}
	return row
}

func (a *app) checkStore(ctx context.Context) feedbackRow {
	row := feedbackRow{unit: "Pool store"}
	var cl closers
	defer cl.close(ctx)

	store, err := a.openStore(ctx, &cl)
	if err != nil {
		row.health, row.message = healthError, err.Error()
		return row
	}
	if _, err := store.OtherActive(ctx, "", ""); err != nil {
		row.health, row.message = healthError, err.Error()
		return row
	}
	row.message = a.cfg.Store.Driver
	if a.cfg.Store.Driver == "memory" {
		row.health, row.message = healthWarning, "memory store does not persist the pool"
	}
	return row
}

func (a *app) checkTasks(ctx context.Context) feedbackRow {
	row := feedbackRow{unit: "Tasks"}
	if a.cfg.Tasks.DryRun {
		row.health, row.message = healthWarning, "dry run, follow-up tasks are only logged"
		return row
	}
	if a.cfg.Tasks.Backend == "local" {
		row.message = fmt.Sprintf("local pool with %d workers", a.cfg.Tasks.Workers)
		return row
	}
	var cl closers
	defer cl.close(ctx)
	if _, err := a.openQueue(ctx, &cl); err != nil {
		row.health, row.message = healthError, err.Error()
		return row
	}
	row.message = a.cfg.Tasks.Backend
	return row
}

func (a *app) checkMarkerDir() feedbackRow {
	row := feedbackRow{unit: "Marker dir"}
	dir := a.markerDir()
	f, err := os.CreateTemp(dir, ".disttester-health-*")
	if err != nil {
		row.health, row.message = healthError, err.Error()
		return row
	}
	f.Close()
	os.Remove(f.Name())
	row.message = dir
	return row
}

func outputFeedback(rows []feedbackRow) health {
	labels := map[health]*color.Color{
		healthOK:      color.New(color.FgGreen, color.Bold),
		healthWarning: color.New(color.FgYellow, color.Bold),
		healthError:   color.New(color.FgRed, color.Bold),
	}
	names := map[health]string{healthOK: "OK", healthWarning: "WARNING", healthError: "ERROR"}

	worst := healthOK
	for _, r := range rows {
		worst = max(worst, r.health)
		fmt.Printf("%-12s %s %s\n", r.unit, labels[r.health].Sprintf("%-8s", names[r.health]), r.message)
	}
	return worst
}

func firstLine(b []byte) string {
	s := strings.TrimSpace(string(b))
	if i := strings.IndexByte(s, '\n'); i >= 0 {
		return s[:i]
	}
	return s
}
