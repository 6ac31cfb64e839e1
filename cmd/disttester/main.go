package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/programme-lv/disttester/internal/config"
	"github.com/programme-lv/disttester/internal/logging"
	"github.com/urfave/cli/v3"
)

// app carries what the Before hook loads for the subcommands.
type app struct {
	cfg    config.Config
	logger *slog.Logger
}

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	a := &app{}
	cmd := &cli.Command{
		Name:  "disttester",
		Usage: "run distributed tests against student submissions",
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:    "config",
				Aliases: []string{"c"},
				Usage:   "path to the TOML config (default " + config.DefaultPath() + ")",
			},
			&cli.StringFlag{
				Name:  "log-level",
				Usage: "debug, info, warn or error; overrides the config",
			},
			&cli.BoolFlag{
				Name:  "log-json",
				Usage: "write logs as JSON",
			},
		},
		Before: a.before,
		Commands: []*cli.Command{
			a.runCommand(),
			a.parseCommand(),
			a.workerCommand(),
			a.deactivateCommand(),
			a.healthCommand(),
		},
	}

	if err := cmd.Run(ctx, os.Args); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func (a *app) before(ctx context.Context, cmd *cli.Command) (context.Context, error) {
	cfg, err := config.Load(cmd.String("config"))
	if err != nil {
		return ctx, err
	}
	if lvl := cmd.String("log-level"); lvl != "" {
		cfg.Log.Level = lvl
	}
	if cmd.Bool("log-json") {
		cfg.Log.JSON = true
	}
	level, err := logging.ParseLevel(cfg.Log.Level)
	if err != nil {
		return ctx, err
	}
	a.cfg = cfg
	a.logger = logging.New(os.Stderr, level, cfg.Log.JSON)
	slog.SetDefault(a.logger)
	return ctx, nil
}
