package cmd

import (
	"context"
	"io"
	"strings"
	"time"

	"github.com/fatih/color"
	"github.com/rodaine/table"
	"github.com/spf13/cobra"

	"github.com/Tiliavir/tracktime/internal/backend"
	"github.com/Tiliavir/tracktime/internal/backend/registry"
	"github.com/Tiliavir/tracktime/internal/descache"
	"github.com/Tiliavir/tracktime/internal/model"
	"github.com/Tiliavir/tracktime/internal/timecalc"
	"github.com/Tiliavir/tracktime/internal/timeline"
)

var (
	listLinks    bool
	listCustomer string
)

var listCmd = &cobra.Command{
	Use:   "list [DATE]",
	Short: "List the time entries of a day",
	Long: `List the time entries of DATE (default: today). DATE accepts today,
yesterday, a weekday name (the most recent one), DD, MM-DD or YYYY-MM-DD.
Entries without a description show the task title from the tracker.`,
	Args: cobra.MaximumNArgs(1),
	RunE: runList,
}

func init() {
	listCmd.Flags().BoolVar(&listLinks, "links", false, "Show a link to each entry's task")
	listCmd.Flags().StringVarP(&listCustomer, "customer", "c", "", "Only list entries for this customer")
}

func runList(cmd *cobra.Command, args []string) error {
	day, err := timecalc.ParseDate(strings.Join(args, " "), now())
	if err != nil {
		return err
	}
	tl, err := timeline.Load(env.store, day)
	if err != nil {
		return err
	}

	backends, err := registry.All(env.cfg, backendDeps())
	if err != nil {
		return err
	}
	var cache *descache.Cache
	if c, err := descache.Open(env.cfg.CacheDir, env.log); err != nil {
		env.log.Warn().Err(err).Msg("task description cache unavailable")
	} else {
		cache = c
		defer c.Close()
	}

	ctx, cancel := context.WithTimeout(cmd.Context(), env.cfg.Sync.RequestTimeout)
	defer cancel()
	printList(ctx, cmd.OutOrStdout(), day, tl.Entries(), backends, cache)
	return nil
}

// printList groups the entries of day into a table followed by the day total.
func printList(ctx context.Context, w io.Writer, day time.Time, entries []model.Entry, backends []backend.Backend, cache *descache.Cache) {
	green := color.New(color.FgGreen, color.Bold)
	green.Fprintf(w, "Entries for %s\n", day.Format(time.DateOnly))
	green.Fprint(w, "==========================\n\n")

	headers := []any{"#", "start", "stop", "duration", "project", "type", "task", "customer", "description"}
	if listLinks {
		headers = append(headers, "link")
	}
	tbl := table.New(headers...).WithWriter(w).WithPadding(3)
	tbl.WithHeaderFormatter(green.SprintfFunc())
	tbl.WithFirstColumnFormatter(color.New(color.FgYellow).SprintfFunc())

	total := 0
	for i, e := range entries {
		if listCustomer != "" && e.Customer != listCustomer {
			continue
		}
		minutes := e.Minutes(now())
		total += minutes

		stop := ""
		if e.Stop != nil {
			stop = e.Stop.Format(timecalc.ClockLayout)
		}
		task := e.TaskID
		description := e.Description
		link := ""
		if b, ok := backend.For(backends, e.Type); ok {
			if id, ok := backend.FormattedTaskID(b, e); ok {
				task = id
			}
			if description == "" {
				description = lookupDescription(ctx, b, e, cache)
			}
			if listLinks {
				link, _ = backend.TaskLink(b, e)
			}
		}

		row := []any{i + 1, e.Start.Format(timecalc.ClockLayout), stop, timecalc.FormatHoursMinutes(minutes),
			e.Project, e.Type, task, e.Customer, description}
		if listLinks {
			row = append(row, link)
		}
		tbl.AddRow(row...)
	}
	tbl.Print()

	green.Fprintf(w, "\nTotal: %s\n", timecalc.FormatHoursMinutes(total))
}

func lookupDescription(ctx context.Context, b backend.Backend, e model.Entry, cache *descache.Cache) string {
	var (
		desc string
		ok   bool
	)
	if cache != nil {
		desc, ok = cache.Describe(ctx, b, e)
	} else {
		desc, ok = backend.TaskDescription(ctx, b, e)
	}
	if !ok {
		return ""
	}
	return desc
}
