// Package reconcile pushes the time aggregated for a period to the enabled
// backends and records what they confirmed in the period's ledger.
//
// A run is idempotent: the ledger only ever holds confirmed totals, so a task
// whose push failed is recomputed and pushed again on the next run while
// confirmed tasks are not pushed twice.
package reconcile

import (
	"context"
	"errors"
	"fmt"
	"net"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/Tiliavir/tracktime/internal/aggregate"
	"github.com/Tiliavir/tracktime/internal/backend"
	"github.com/Tiliavir/tracktime/internal/model"
)

// State is a step of a sync run.
type State string

const (
	Idle                State = "idle"
	Disabled            State = "disabled"
	ProbingConnectivity State = "probing_connectivity"
	Skipped             State = "skipped"
	Aggregating         State = "aggregating"
	LoadingLedger       State = "loading_ledger"
	Dispatching         State = "dispatching"
	Merging             State = "merging"
	Persisting          State = "persisting"
	Done                State = "done"
	Cancelled           State = "cancelled"
)

// ErrUnreachable is recorded when the connectivity probe fails.
var ErrUnreachable = errors.New("network unreachable, skipping sync")

// Store is the persistence the engine needs.
type Store interface {
	aggregate.DayLoader
	LoadLedger(p model.Period) (model.AggregatedTime, error)
	SaveLedger(p model.Period, ledger model.AggregatedTime) error
}

// Prober checks that the trackers can plausibly be reached.
type Prober interface {
	Probe(ctx context.Context) error
}

// DialProber probes connectivity by opening a TCP connection to Address.
type DialProber struct {
	Address string
	Timeout time.Duration
}

func (p DialProber) Probe(ctx context.Context) error {
	d := net.Dialer{Timeout: p.Timeout}
	conn, err := d.DialContext(ctx, "tcp", p.Address)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrUnreachable, err)
	}
	return conn.Close()
}

// Engine runs sync runs. The zero value is not usable; set Store at least.
type Engine struct {
	Store    Store
	Backends []backend.Backend
	// Prober may be nil, in which case the network is assumed reachable.
	Prober Prober
	// Enabled switches syncing on. A disabled engine records Disabled and
	// touches nothing.
	Enabled bool
	Log     zerolog.Logger
}

// Result describes one run.
type Result struct {
	RunID  string
	Period model.Period
	Trace  []State
	// Err records why a run ended early without failing: ErrUnreachable for
	// a skipped run, the context error for a cancelled one.
	Err error
	// Pushed counts tasks whose ledger value rose in this run.
	Pushed int
	// Failed counts failed task pushes.
	Failed int
	// BackendErrors joins every error returned by a backend.
	BackendErrors error
	// Ledger is the ledger after the run.
	Ledger model.AggregatedTime
}

// State returns the state the run ended in.
func (r *Result) State() State {
	if len(r.Trace) == 0 {
		return Idle
	}
	return r.Trace[len(r.Trace)-1]
}

func (r *Result) enter(s State) { r.Trace = append(r.Trace, s) }

// Sync reconciles period. The returned error is non-nil only for storage
// failures; backend failures are logged and reported in the Result.
func (e *Engine) Sync(ctx context.Context, period model.Period) (*Result, error) {
	res := &Result{RunID: uuid.NewString(), Period: period}
	log := e.Log.With().Str("run_id", res.RunID).Str("period", period.String()).Logger()
	ctx = backend.WithRunID(ctx, res.RunID)

	res.enter(Idle)
	if !e.Enabled {
		res.enter(Disabled)
		log.Info().Msg("time sync disabled in configuration")
		return res, nil
	}

	res.enter(ProbingConnectivity)
	if e.Prober != nil {
		if err := e.Prober.Probe(ctx); err != nil {
			res.enter(Skipped)
			res.Err = err
			log.Warn().Err(err).Msg("skipping sync")
			return res, nil
		}
	}

	res.enter(Aggregating)
	aggregated, err := aggregate.Aggregate(ctx, e.Store, period)
	if err != nil {
		if ctx.Err() != nil {
			return e.cancelled(ctx, res, log), nil
		}
		return res, fmt.Errorf("aggregating %s: %w", period, err)
	}

	res.enter(LoadingLedger)
	ledger, err := e.Store.LoadLedger(period)
	if err != nil {
		return res, fmt.Errorf("loading ledger for %s: %w", period, err)
	}

	res.enter(Dispatching)
	var (
		updates []model.AggregatedTime
		errs    []error
	)
	for _, b := range e.Backends {
		if ctx.Err() != nil {
			break
		}
		blog := log.With().Str("backend", b.Name()).Logger()
		blog.Debug().Msg("syncing")

		updated, err := b.Sync(ctx, aggregated, ledger.Clone(), period)
		if len(updated) > 0 {
			updates = append(updates, updated)
		}
		if err != nil {
			errs = append(errs, err)
			var ce *backend.ConfigurationError
			if errors.As(err, &ce) {
				blog.Warn().Err(err).Msg("backend not configured")
				continue
			}
			if pushErrs := backend.PushErrors(err); len(pushErrs) > 0 {
				res.Failed += len(pushErrs)
			} else {
				res.Failed++
				blog.Error().Err(err).Msg("sync failed")
			}
		}
	}
	res.BackendErrors = errors.Join(errs...)

	res.enter(Merging)
	merged := ledger.Clone()
	for _, u := range updates {
		for k, v := range u {
			if v > merged[k] {
				merged[k] = v
			}
		}
	}
	for k, v := range merged {
		if v > ledger[k] {
			res.Pushed++
		}
	}
	res.Ledger = merged

	if ctx.Err() != nil && len(updates) == 0 {
		res.Ledger = ledger
		return e.cancelled(ctx, res, log), nil
	}

	res.enter(Persisting)
	if err := e.Store.SaveLedger(period, merged); err != nil {
		return res, fmt.Errorf("saving ledger for %s: %w", period, err)
	}

	res.enter(Done)
	if ctx.Err() != nil {
		res.Err = ctx.Err()
	}
	log.Info().Int("pushed", res.Pushed).Int("failed", res.Failed).Msg("sync finished")
	return res, nil
}

func (e *Engine) cancelled(ctx context.Context, res *Result, log zerolog.Logger) *Result {
	res.enter(Cancelled)
	res.Err = ctx.Err()
	log.Warn().Err(res.Err).Msg("sync cancelled")
	return res
}
