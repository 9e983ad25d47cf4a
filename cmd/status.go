package cmd

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/Tiliavir/tracktime/internal/timecalc"
	"github.com/Tiliavir/tracktime/internal/timeline"
)

var statusCmd = &cobra.Command{
	Use:   "status",
	Short: "Show the running time entry",
	Args:  cobra.NoArgs,
	RunE:  runStatus,
}

func runStatus(cmd *cobra.Command, _ []string) error {
	t := now()
	tl, err := timeline.Load(env.store, today())
	if err != nil {
		return err
	}

	out := cmd.OutOrStdout()
	if active, ok := tl.Running(); ok {
		elapsed, _ := timeline.Duration(active, true, t)
		fmt.Fprintln(out, "Running:")
		if active.Description != "" {
			fmt.Fprintf(out, "  Description: %s\n", active.Description)
		}
		if active.Project != "" {
			fmt.Fprintf(out, "  Project: %s\n", active.Project)
		}
		if active.TaskID != "" {
			fmt.Fprintf(out, "  Task: %s %s\n", active.Type, active.TaskID)
		}
		fmt.Fprintf(out, "  Since: %s\n", active.Start.Format(timecalc.ClockLayout))
		fmt.Fprintf(out, "  Elapsed: %s\n", timecalc.FormatDuration(elapsed))
	} else {
		fmt.Fprintln(out, "No active time entry.")
	}
	fmt.Fprintf(out, "Today: %s logged.\n", timecalc.FormatDuration(tl.Total(t)))
	return nil
}
