package cmd

import (
	"errors"
	"fmt"
	"strconv"
	"strings"

	"github.com/spf13/cobra"

	"github.com/Tiliavir/tracktime/internal/model"
	"github.com/Tiliavir/tracktime/internal/timecalc"
	"github.com/Tiliavir/tracktime/internal/timeline"
)

var resumeAt string

var resumeCmd = &cobra.Command{
	Use:   "resume [INDEX] [DESCRIPTION]",
	Short: "Start a new entry copying an earlier one",
	Long: `Start a new time entry with the type, project, task and customer of an
earlier entry today. INDEX is the number shown by "tracktime list"; without
it the most recent entry is resumed, which on an empty day is the last entry
of yesterday. DESCRIPTION replaces the copied description.`,
	RunE: runResume,
}

func init() {
	resumeCmd.Flags().StringVarP(&resumeAt, "start", "s", "now", "Start time (now, HH:MM or HHMM)")
}

// parseResumeArgs splits an optional leading index from the description.
func parseResumeArgs(args []string) (int, string) {
	if len(args) == 0 {
		return 0, ""
	}
	if n, err := strconv.Atoi(args[0]); err == nil {
		return n, strings.Join(args[1:], " ")
	}
	return 0, strings.Join(args, " ")
}

func runResume(cmd *cobra.Command, args []string) error {
	day := today()
	at, err := timecalc.ParseClock(resumeAt, day, now())
	if err != nil {
		return err
	}
	index, description := parseResumeArgs(args)
	if index < 0 {
		return &model.ValidationError{Field: "index", Reason: fmt.Sprintf("%d is not a valid entry number", index)}
	}

	tl, err := timeline.Load(env.store, day)
	if err != nil {
		return err
	}
	entry, err := tl.Resume(at, index, description)
	if errors.Is(err, model.ErrNoActiveEntry) {
		fmt.Fprintln(cmd.ErrOrStderr(), "No time entry to resume.")
		return nil
	}
	if err != nil {
		return err
	}
	if err := tl.Save(); err != nil {
		return err
	}

	out := cmd.OutOrStdout()
	fmt.Fprintf(out, "Resumed %s at %s\n", describe(entry.Description, entry.Project), entry.Start.Format(timecalc.ClockLayout))

	syncAfterChange(cmd.Context(), out, day)
	return nil
}
