package cmd

import (
	"encoding/json"
	"fmt"
	"io"
	"sort"
	"strings"

	"github.com/spf13/cobra"

	"github.com/Tiliavir/tracktime/internal/aggregate"
	"github.com/Tiliavir/tracktime/internal/model"
	"github.com/Tiliavir/tracktime/internal/timecalc"
)

var (
	totalsBy     string
	totalsFormat string
)

var totalsCmd = &cobra.Command{
	Use:   "totals [MONTH]",
	Short: "Show the time tracked in a month per task or customer",
	Long: `Show the minutes tracked in MONTH (default: this month). Per task, the
minutes already confirmed by the trackers and the minutes still pending are
shown as well.`,
	Args: cobra.MaximumNArgs(1),
	RunE: runTotals,
}

func init() {
	totalsCmd.Flags().StringVar(&totalsBy, "by", "task", "Group by: task, customer")
	totalsCmd.Flags().StringVar(&totalsFormat, "format", "md", "Output format: md, csv, json")
}

// taskTotal is one row of the per-task report.
type taskTotal struct {
	Type    string `json:"type"`
	Project string `json:"project"`
	TaskID  string `json:"taskid"`
	Minutes int    `json:"minutes"`
	Synced  int    `json:"synced"`
	Pending int    `json:"pending"`
}

type customerTotal struct {
	Customer string `json:"customer"`
	Minutes  int    `json:"minutes"`
}

func runTotals(cmd *cobra.Command, args []string) error {
	period, err := timecalc.ParsePeriod(strings.Join(args, " "), now())
	if err != nil {
		return err
	}
	switch totalsFormat {
	case "md", "csv", "json":
	default:
		return &model.ValidationError{Field: "format", Reason: fmt.Sprintf("unknown format %q", totalsFormat)}
	}

	out := cmd.OutOrStdout()
	switch totalsBy {
	case "task":
		aggregated, err := aggregate.Aggregate(cmd.Context(), env.store, period)
		if err != nil {
			return err
		}
		ledger, err := env.store.LoadLedger(period)
		if err != nil {
			return err
		}
		return printTaskTotals(out, period, taskTotals(aggregated, ledger))
	case "customer":
		byCustomer, err := aggregate.ByCustomer(cmd.Context(), env.store, period)
		if err != nil {
			return err
		}
		return printCustomerTotals(out, period, customerTotals(byCustomer))
	default:
		return &model.ValidationError{Field: "by", Reason: fmt.Sprintf("cannot group by %q, use task or customer", totalsBy)}
	}
}

func taskTotals(aggregated, ledger model.AggregatedTime) []taskTotal {
	rows := make([]taskTotal, 0, len(aggregated))
	for _, k := range aggregated.Keys() {
		pending := aggregated[k] - ledger[k]
		if pending < 0 {
			pending = 0
		}
		rows = append(rows, taskTotal{
			Type:    k.Type,
			Project: k.Project,
			TaskID:  k.TaskID,
			Minutes: aggregated[k],
			Synced:  ledger[k],
			Pending: pending,
		})
	}
	return rows
}

func customerTotals(byCustomer map[string]int) []customerTotal {
	rows := make([]customerTotal, 0, len(byCustomer))
	for c, m := range byCustomer {
		rows = append(rows, customerTotal{Customer: c, Minutes: m})
	}
	sort.Slice(rows, func(i, j int) bool { return rows[i].Customer < rows[j].Customer })
	return rows
}

func printTaskTotals(w io.Writer, period model.Period, rows []taskTotal) error {
	var total int
	for _, r := range rows {
		total += r.Minutes
	}

	switch totalsFormat {
	case "csv":
		fmt.Fprintln(w, "type,project,taskid,minutes,synced,pending")
		for _, r := range rows {
			fmt.Fprintf(w, "%s,%s,%s,%d,%d,%d\n", r.Type, r.Project, r.TaskID, r.Minutes, r.Synced, r.Pending)
		}
	case "json":
		return writeJSON(w, struct {
			Period       string      `json:"period"`
			Tasks        []taskTotal `json:"tasks"`
			TotalMinutes int         `json:"total_minutes"`
		}{period.String(), rows, total})
	default:
		fmt.Fprintf(w, "Month %s\n", period)
		fmt.Fprintln(w, "------------------------------------------------------------")
		for _, r := range rows {
			task := fmt.Sprintf("%s %s %s", r.Type, r.Project, r.TaskID)
			fmt.Fprintf(w, "%-36s%8s  synced %s\n", task, timecalc.FormatHoursMinutes(r.Minutes), timecalc.FormatHoursMinutes(r.Synced))
		}
		fmt.Fprintln(w, "------------------------------------------------------------")
		fmt.Fprintf(w, "%-36s%8s\n", "Total", timecalc.FormatHoursMinutes(total))
	}
	return nil
}

func printCustomerTotals(w io.Writer, period model.Period, rows []customerTotal) error {
	var total int
	for _, r := range rows {
		total += r.Minutes
	}

	switch totalsFormat {
	case "csv":
		fmt.Fprintln(w, "customer,minutes")
		for _, r := range rows {
			fmt.Fprintf(w, "%s,%d\n", r.Customer, r.Minutes)
		}
	case "json":
		return writeJSON(w, struct {
			Period       string          `json:"period"`
			Customers    []customerTotal `json:"customers"`
			TotalMinutes int             `json:"total_minutes"`
		}{period.String(), rows, total})
	default:
		fmt.Fprintf(w, "Month %s\n", period)
		fmt.Fprintln(w, "--------------------------------")
		for _, r := range rows {
			name := r.Customer
			if name == "" {
				name = "(none)"
			}
			fmt.Fprintf(w, "%-20s%s\n", name, timecalc.FormatDuration(r.Minutes))
		}
		fmt.Fprintln(w, "--------------------------------")
		fmt.Fprintf(w, "%-20s%s\n", "Total", timecalc.FormatDuration(total))
	}
	return nil
}

func writeJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
