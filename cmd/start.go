package cmd

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/Tiliavir/tracktime/internal/timecalc"
	"github.com/Tiliavir/tracktime/internal/timeline"
)

var (
	startAt       string
	startType     string
	startProject  string
	startCustomer string
	startTaskID   string
)

var startCmd = &cobra.Command{
	Use:   "start [DESCRIPTION]",
	Short: "Start a new time entry",
	Long: `Start a new time entry today. A running entry is stopped at the start
time of the new one; starting inside an existing entry splits it.`,
	Example: `  tracktime start -t gl -p org/repo -i 42 "Fix login redirect"
  tracktime start --start 0930 standup`,
	RunE: runStart,
}

func init() {
	startCmd.Flags().StringVarP(&startAt, "start", "s", "now", "Start time (now, HH:MM or HHMM)")
	startCmd.Flags().StringVarP(&startType, "type", "t", "", "Task type, e.g. gitlab (gl), github (gh), jira, linear, sourcehut (sh)")
	startCmd.Flags().StringVarP(&startProject, "project", "p", "", "Project, e.g. org/repo")
	startCmd.Flags().StringVarP(&startCustomer, "customer", "c", "", "Customer")
	startCmd.Flags().StringVarP(&startTaskID, "taskid", "i", "", "Task id, e.g. 42, #42 or !7")
}

func runStart(cmd *cobra.Command, args []string) error {
	day := today()
	at, err := timecalc.ParseClock(startAt, day, now())
	if err != nil {
		return err
	}

	tl, err := timeline.Load(env.store, day)
	if err != nil {
		return err
	}
	running, wasRunning := tl.Running()

	entry := tl.Start(at, timeline.Fields{
		Description: strings.Join(args, " "),
		Type:        startType,
		Project:     startProject,
		TaskID:      startTaskID,
		Customer:    startCustomer,
	})
	if err := tl.Save(); err != nil {
		return err
	}

	out := cmd.OutOrStdout()
	if wasRunning && !running.Start.After(at) {
		fmt.Fprintf(out, "Stopped running entry %q at %s\n", running.Description, at.Format(timecalc.ClockLayout))
	}
	fmt.Fprintf(out, "Started %s at %s\n", describe(entry.Description, entry.Project), entry.Start.Format(timecalc.ClockLayout))

	syncAfterChange(cmd.Context(), out, day)
	return nil
}

func describe(description, project string) string {
	switch {
	case description != "":
		return fmt.Sprintf("%q", description)
	case project != "":
		return "entry for project " + project
	default:
		return "entry"
	}
}
