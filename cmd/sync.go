package cmd

import (
	"context"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/Tiliavir/tracktime/internal/backend"
	"github.com/Tiliavir/tracktime/internal/backend/registry"
	"github.com/Tiliavir/tracktime/internal/model"
	"github.com/Tiliavir/tracktime/internal/reconcile"
	"github.com/Tiliavir/tracktime/internal/timecalc"
)

var syncForce bool

var syncCmd = &cobra.Command{
	Use:   "sync [MONTH]",
	Short: "Push the time tracked in a month to the configured trackers",
	Long: `Push the time tracked per task in MONTH (default: this month) to every
enabled backend. Only time not yet confirmed by a tracker is pushed, so
running sync repeatedly is safe.

MONTH accepts "last month", a month name (December), an abbreviation (Dec),
a month number (01) or a year with month (2019-01).`,
	Args: cobra.MaximumNArgs(1),
	RunE: runSync,
}

func init() {
	syncCmd.Flags().BoolVar(&syncForce, "force", false, "Sync even when sync_time is disabled in the configuration")
}

func runSync(cmd *cobra.Command, args []string) error {
	period, err := timecalc.ParsePeriod(strings.Join(args, " "), now())
	if err != nil {
		return err
	}

	engine, err := newEngine(env.cfg.SyncTime || syncForce)
	if err != nil {
		return err
	}
	res, err := engine.Sync(cmd.Context(), period)
	if err != nil {
		return err
	}
	printSyncResult(cmd.OutOrStdout(), res)
	return nil
}

func backendDeps() backend.Deps {
	return backend.Deps{
		Log:            env.log,
		MaxConcurrency: env.cfg.Sync.MaxConcurrency,
		RequestTimeout: env.cfg.Sync.RequestTimeout,
	}
}

func newEngine(enabled bool) (*reconcile.Engine, error) {
	backends, err := registry.Default(env.cfg, backendDeps())
	if err != nil {
		return nil, err
	}
	return &reconcile.Engine{
		Store:    env.store,
		Backends: backends,
		Prober: reconcile.DialProber{
			Address: env.cfg.Sync.ProbeAddress,
			Timeout: env.cfg.Sync.ProbeTimeout,
		},
		Enabled: enabled,
		Log:     env.log,
	}, nil
}

// syncAfterChange runs a best-effort sync of the month containing day when
// sync_time is enabled. Failures are logged and never returned.
func syncAfterChange(ctx context.Context, out io.Writer, day time.Time) {
	if !env.cfg.SyncTime {
		return
	}
	engine, err := newEngine(true)
	if err != nil {
		env.log.Warn().Err(err).Msg("sync skipped")
		return
	}

	timeout := env.cfg.Sync.ProbeTimeout + time.Duration(len(engine.Backends))*env.cfg.Sync.RequestTimeout
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	res, err := engine.Sync(ctx, model.PeriodOf(day))
	if err != nil {
		env.log.Warn().Err(err).Msg("sync failed")
		return
	}
	printSyncResult(out, res)
}

func printSyncResult(w io.Writer, res *reconcile.Result) {
	switch res.State() {
	case reconcile.Disabled:
		fmt.Fprintln(w, "Time sync disabled in configuration file. Use --force to sync anyway.")
	case reconcile.Skipped:
		fmt.Fprintln(w, "No internet connection. Skipping sync.")
	case reconcile.Cancelled:
		fmt.Fprintf(w, "Sync of %s cancelled; nothing was recorded.\n", res.Period)
	default:
		fmt.Fprintf(w, "Synced %s: %d task(s) updated", res.Period, res.Pushed)
		if res.Failed > 0 {
			fmt.Fprintf(w, ", %d failed (will be retried on the next sync)", res.Failed)
		}
		fmt.Fprintln(w, ".")
	}
}
