package main

import (
	"context"
	"fmt"
	"os"
	"strings"
	"text/tabwriter"

	"github.com/fatih/color"

	"github.com/core-tools/hsu-desk/pkg/domain"
	"github.com/core-tools/hsu-desk/pkg/errors"
	"github.com/core-tools/hsu-desk/pkg/unitconfig"
)

type unitArgs struct {
	Name string `positional-arg-name:"unit" description:"unit name, quoted when it has spaces"`
}

// Empty values leave the persisted definition untouched
type overrideOptions struct {
	Dir      string `long:"dir" description:"working directory override"`
	Command  string `long:"command" description:"command line override (editable units only)"`
	URL      string `long:"url" description:"URL override (cron units)"`
	Interval int    `long:"interval" description:"poll interval in seconds (cron units)"`
}

func (o overrideOptions) overrides() unitconfig.Overrides {
	var overrides unitconfig.Overrides
	if o.Dir != "" {
		overrides.WorkingDirectory = &o.Dir
	}
	if o.Command != "" {
		overrides.CommandLine = unitconfig.ParseCommandLine(o.Command)
	}
	if o.URL != "" {
		overrides.URL = &o.URL
	}
	if o.Interval != 0 {
		overrides.IntervalSeconds = &o.Interval
	}
	return overrides
}

type statusCommand struct{}

func (c *statusCommand) Execute(args []string) error {
	return withContract(func(ctx context.Context, contract domain.Contract) error {
		units, err := contract.Status(ctx)
		if err != nil {
			return err
		}
		printUnits(units)
		return nil
	})
}

type startCommand struct {
	overrideOptions
	Args unitArgs `positional-args:"yes" required:"yes"`
}

func (c *startCommand) Execute(args []string) error {
	return withContract(func(ctx context.Context, contract domain.Contract) error {
		if err := contract.Start(ctx, c.Args.Name, c.overrides()); err != nil {
			return err
		}
		return printUnit(ctx, contract, c.Args.Name)
	})
}

type stopCommand struct {
	Args unitArgs `positional-args:"yes" required:"yes"`
}

func (c *stopCommand) Execute(args []string) error {
	return withContract(func(ctx context.Context, contract domain.Contract) error {
		if err := contract.Stop(ctx, c.Args.Name); err != nil {
			return err
		}
		return printUnit(ctx, contract, c.Args.Name)
	})
}

type restartCommand struct {
	overrideOptions
	Args unitArgs `positional-args:"yes" required:"yes"`
}

func (c *restartCommand) Execute(args []string) error {
	return withContract(func(ctx context.Context, contract domain.Contract) error {
		if err := contract.Restart(ctx, c.Args.Name, c.overrides()); err != nil {
			return err
		}
		return printUnit(ctx, contract, c.Args.Name)
	})
}

type clearCommand struct {
	Args unitArgs `positional-args:"yes" required:"yes"`
}

func (c *clearCommand) Execute(args []string) error {
	return withContract(func(ctx context.Context, contract domain.Contract) error {
		if err := contract.ClearLog(ctx, c.Args.Name); err != nil {
			return err
		}
		color.Green("Log of %s cleared", c.Args.Name)
		return nil
	})
}

type logsCommand struct {
	Limit int      `long:"limit" short:"n" default:"0" description:"print only the most recent lines; 0 prints all"`
	Args  unitArgs `positional-args:"yes" required:"yes"`
}

func (c *logsCommand) Execute(args []string) error {
	if c.Limit < 0 {
		return errors.NewValidationError("limit cannot be negative", nil)
	}
	return withContract(func(ctx context.Context, contract domain.Contract) error {
		lines, err := contract.Logs(ctx, c.Args.Name, c.Limit)
		if err != nil {
			return err
		}
		for _, line := range lines {
			fmt.Println(line)
		}
		return nil
	})
}

func printUnit(ctx context.Context, contract domain.Contract, name string) error {
	unit, err := contract.Unit(ctx, name)
	if err != nil {
		return err
	}
	printUnits([]domain.UnitInfo{unit})
	return nil
}

func printUnits(units []domain.UnitInfo) {
	w := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
	fmt.Fprintln(w, "UNIT\tKIND\tSTATE\tPID\tDETAIL")
	for _, unit := range units {
		pid := "-"
		if unit.PID > 0 {
			pid = fmt.Sprintf("%d", unit.PID)
		}
		fmt.Fprintf(w, "%s\t%s\t%s\t%s\t%s\n", unit.Name, unit.Kind, stateColor(unit.State), pid, unitDetail(unit))
	}
	w.Flush()
}

func unitDetail(unit domain.UnitInfo) string {
	if unit.Kind == string(unitconfig.UnitKindCron) {
		return fmt.Sprintf("every %ds %s", unit.IntervalSeconds, unit.URL)
	}
	detail := strings.Join(unit.CommandLine, " ")
	if unit.State == "exited" && unit.LastExit != "" {
		detail += " (" + unit.LastExit + ")"
	}
	return detail
}

func stateColor(state string) string {
	switch state {
	case "running":
		return color.GreenString(state)
	case "exited":
		return color.RedString(state)
	default:
		return color.YellowString(state)
	}
}

func printError(err error) {
	switch {
	case errors.IsAlreadyRunningError(err), errors.IsNotRunningError(err):
		color.Yellow("%v", err)
	default:
		color.Red("Error: %v", err)
	}
}
