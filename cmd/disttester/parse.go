package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"strings"
	"text/tabwriter"

	"github.com/fatih/color"
	"github.com/programme-lv/disttester/internal/dsl"
	"github.com/urfave/cli/v3"
)

func (a *app) parseCommand() *cli.Command {
	return &cli.Command{
		Name:      "parse",
		Usage:     "check a spec file and print its distributed test plan",
		ArgsUsage: "<spec-file>",
		Action: func(ctx context.Context, cmd *cli.Command) error {
			path := cmd.Args().First()
			if path == "" {
				return errors.New("spec file is required")
			}
			plan, err := dsl.ParseFile(path)
			if err != nil {
				return err
			}
			printPlan(plan)
			return nil
		},
	}
}

func printPlan(plan *dsl.Plan) {
	head := color.New(color.FgCyan, color.Bold)
	head.Println("Distributed test plan")
	fmt.Printf("timeout: %s, ports per container: %d, tests: %d\n",
		plan.Timeout, plan.PortsPerContainer, plan.TotalTests)
	if n := plan.MaxHeterogeneousMachines(); n > 0 {
		fmt.Printf("peers needed per heterogeneous round: %d\n", n-1)
	}

	w := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
	defer w.Flush()

	printCommands(w, "setup", plan.Setup)
	for i, g := range plan.Groups {
		var modes []string
		if g.Homogeneous {
			modes = append(modes, "HOM")
		}
		if g.Heterogeneous {
			modes = append(modes, "HET")
		}
		label := fmt.Sprintf("group %d (%d machines, %s)", i+1, g.Machines, strings.Join(modes, "+"))
		printCommands(w, label, g.Commands)
	}
	printCommands(w, "cleanup", plan.Cleanup)
}

func printCommands(w *tabwriter.Writer, label string, cmds []dsl.Command) {
	if len(cmds) == 0 {
		return
	}
	fmt.Fprintf(w, "\n%s\n", label)
	for _, c := range cmds {
		mode := "ASYNC"
		if c.Sync {
			mode = "SYNC"
		}
		if c.Halting {
			mode += ",halting"
		}
		where := "all"
		if c.Targets != nil {
			where = strings.Trim(strings.Join(strings.Fields(fmt.Sprint(c.Targets)), ","), "[]")
		}
		if c.Kind != dsl.InContainer {
			where = "-"
		}
		fmt.Fprintf(w, "  %d\t%s\t%s\t%s\t%s\n", c.Line, c.Kind, mode, where, c.Text)
	}
}
