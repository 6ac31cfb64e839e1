package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"time"

	"github.com/programme-lv/disttester/api"
	"github.com/programme-lv/disttester/internal/dsl"
	"github.com/programme-lv/disttester/internal/failures"
	"github.com/programme-lv/disttester/internal/report"
	"github.com/urfave/cli/v3"
)

func (a *app) runCommand() *cli.Command {
	return &cli.Command{
		Name:      "run",
		Usage:     "grade one submission",
		ArgsUsage: "[spec-file]",
		Flags: []cli.Flag{
			&cli.StringFlag{Name: "request", Usage: "read the grade request from a JSON file"},
			&cli.StringFlag{Name: "assignment", Usage: "assignment id"},
			&cli.StringFlag{Name: "student-id", Usage: "student id"},
			&cli.StringFlag{Name: "student-name", Usage: "student name, used for USERNAME"},
			&cli.StringFlag{Name: "work-dir", Usage: "directory with the unpacked submission"},
			&cli.StringFlag{Name: "attachments-json", Usage: `attachments as [{"display_name":..,"url":..}]`},
			&cli.BoolFlag{Name: "json", Usage: "print the result as JSON"},
			&cli.BoolFlag{Name: "quiet", Aliases: []string{"q"}, Usage: "do not stream progress to stderr"},
			&cli.BoolFlag{Name: "dry-run", Usage: "log follow-up tasks instead of applying them"},
		},
		Action: a.run,
	}
}

func (a *app) gradeReq(cmd *cli.Command) (api.GradeReq, error) {
	var req api.GradeReq
	if path := cmd.String("request"); path != "" {
		b, err := os.ReadFile(path)
		if err != nil {
			return req, fmt.Errorf("failed to read request: %w", err)
		}
		if err := json.Unmarshal(b, &req); err != nil {
			return req, fmt.Errorf("failed to parse request %s: %w", path, err)
		}
	}

	set := func(dst *string, flag string) {
		if v := cmd.String(flag); v != "" {
			*dst = v
		}
	}
	set(&req.AssignmentID, "assignment")
	set(&req.StudentID, "student-id")
	set(&req.StudentName, "student-name")
	set(&req.WorkDir, "work-dir")
	if arg := cmd.Args().First(); arg != "" {
		req.SpecPath = arg
	}
	if raw := cmd.String("attachments-json"); raw != "" {
		if err := json.Unmarshal([]byte(raw), &req.Attachments); err != nil {
			return req, fmt.Errorf("failed to parse --attachments-json: %w", err)
		}
	}
	if req.SubmittedAt.IsZero() {
		req.SubmittedAt = time.Now()
	}
	if req.StudentName == "" {
		req.StudentName = req.StudentID
	}

	var missing []error
	for flag, v := range map[string]string{
		"spec file":    req.SpecPath,
		"--assignment": req.AssignmentID,
		"--student-id": req.StudentID,
		"--work-dir":   req.WorkDir,
	} {
		if v == "" {
			missing = append(missing, fmt.Errorf("%s is required", flag))
		}
	}
	return req, errors.Join(missing...)
}

func (a *app) run(ctx context.Context, cmd *cli.Command) error {
	req, err := a.gradeReq(cmd)
	if err != nil {
		return err
	}
	plan, err := dsl.ParseFile(req.SpecPath)
	if err != nil {
		return err
	}
	if cmd.Bool("dry-run") {
		a.cfg.Tasks.DryRun = true
	}

	var observer report.Gatherer
	if !cmd.Bool("quiet") {
		observer = report.NewTerminal(os.Stderr)
	}

	var cl closers
	defer func() {
		// pending tasks may outlive the grading deadline
		closeCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), time.Minute)
		defer cancel()
		if err := cl.close(closeCtx); err != nil {
			a.logger.Error("failed to shut down cleanly", "error", err)
		}
	}()
	engine, err := a.newEngine(ctx, observer, &cl)
	if err != nil {
		return err
	}

	res, gradeErr := engine.Grade(ctx, plan, req.Subject())
	out := api.NewGradeRes(res, gradeErr)
	if cmd.Bool("json") {
		enc := json.NewEncoder(os.Stdout)
		enc.SetIndent("", "  ")
		if err := enc.Encode(out); err != nil {
			return err
		}
	} else if observer == nil {
		fmt.Print(out.Log)
	}

	var cfgErr *failures.ConfigError
	switch {
	case errors.As(gradeErr, &cfgErr):
		return cli.Exit("", 2)
	case gradeErr != nil:
		return gradeErr
	case !out.Passed:
		return cli.Exit("", 1)
	}
	return nil
}
