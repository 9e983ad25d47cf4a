package cmd

import (
	"errors"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/Tiliavir/tracktime/internal/model"
	"github.com/Tiliavir/tracktime/internal/timecalc"
	"github.com/Tiliavir/tracktime/internal/timeline"
)

var stopAt string

var stopCmd = &cobra.Command{
	Use:   "stop",
	Short: "Stop the running time entry",
	Args:  cobra.NoArgs,
	RunE:  runStop,
}

func init() {
	stopCmd.Flags().StringVarP(&stopAt, "stop", "s", "now", "Stop time (now, HH:MM or HHMM)")
}

func runStop(cmd *cobra.Command, _ []string) error {
	day := today()
	at, err := timecalc.ParseClock(stopAt, day, now())
	if err != nil {
		return err
	}

	tl, err := timeline.Load(env.store, day)
	if err != nil {
		return err
	}
	entry, err := tl.Stop(at)
	if errors.Is(err, model.ErrNoActiveEntry) {
		fmt.Fprintln(cmd.ErrOrStderr(), "No active time entry to stop.")
		return nil
	}
	if err != nil {
		return err
	}
	if err := tl.Save(); err != nil {
		return err
	}

	minutes, _ := timeline.Duration(entry, false, at)
	out := cmd.OutOrStdout()
	fmt.Fprintf(out, "Stopped %s at %s. Duration: %s\n",
		describe(entry.Description, entry.Project), at.Format(timecalc.ClockLayout), timecalc.FormatDuration(minutes))

	syncAfterChange(cmd.Context(), out, day)
	return nil
}
