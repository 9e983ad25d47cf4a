package backend

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/rs/zerolog"
	"github.com/sourcegraph/conc/pool"

	"github.com/Tiliavir/tracktime/internal/model"
)

const (
	DefaultMaxConcurrency = 16
	DefaultRequestTimeout = 30 * time.Second
)

type runIDKey struct{}

// WithRunID tags ctx with the id of the sync run so dispatch log lines can be
// correlated with the engine's.
func WithRunID(ctx context.Context, id string) context.Context {
	return context.WithValue(ctx, runIDKey{}, id)
}

// RunID returns the run id stored by WithRunID, or "".
func RunID(ctx context.Context) string {
	id, _ := ctx.Value(runIDKey{}).(string)
	return id
}

// PushFunc sends one task's time to the tracker. total is the full aggregated
// value for the period, delta the part not yet confirmed. A nil error means
// the tracker confirmed the push.
type PushFunc func(ctx context.Context, key model.TaskKey, total, delta int) error

// Dispatcher runs pushes on a bounded pool of goroutines.
type Dispatcher struct {
	Backend        string
	MaxConcurrency int
	RequestTimeout time.Duration
	Log            zerolog.Logger
}

// NewDispatcher returns a dispatcher for the named backend using the limits in
// deps.
func NewDispatcher(name string, deps Deps) Dispatcher {
	return Dispatcher{
		Backend:        name,
		MaxConcurrency: deps.MaxConcurrency,
		RequestTimeout: deps.RequestTimeout,
		Log:            deps.Log.With().Str("backend", name).Logger(),
	}
}

// Dispatch pushes the delta of every task in aggregated accepted by owns.
// Tasks without a delta are skipped without calling push. It returns once
// every push has finished, with the confirmed ledger values and the joined
// *PushError of every failure.
func (d Dispatcher) Dispatch(ctx context.Context, aggregated, ledger model.AggregatedTime, owns func(model.TaskKey) bool, push PushFunc) (model.AggregatedTime, error) {
	identity := func(k model.TaskKey) (model.TaskKey, bool) { return k, owns(k) }
	return d.DispatchGrouped(ctx, aggregated, ledger, identity, push)
}

// issue is the set of task keys naming the same remote item.
type issue struct {
	key     model.TaskKey
	members []model.TaskKey
	total   int
	synced  int
}

// DispatchGrouped is Dispatch for trackers where several task keys can name
// the same remote item. canonical maps an owned key to the item's key; keys
// it rejects are skipped. Each item is pushed once with the summed total and
// delta of its members, and a confirmed push advances every member.
func (d Dispatcher) DispatchGrouped(ctx context.Context, aggregated, ledger model.AggregatedTime, canonical func(model.TaskKey) (model.TaskKey, bool), push PushFunc) (model.AggregatedTime, error) {
	limit := d.MaxConcurrency
	if limit <= 0 {
		limit = DefaultMaxConcurrency
	}
	timeout := d.RequestTimeout
	if timeout <= 0 {
		timeout = DefaultRequestTimeout
	}

	log := d.Log
	if id := RunID(ctx); id != "" {
		log = log.With().Str("run_id", id).Logger()
	}

	var issues []*issue
	byKey := map[model.TaskKey]*issue{}
	for _, key := range aggregated.Keys() {
		ck, ok := canonical(key)
		if !ok {
			continue
		}
		is, seen := byKey[ck]
		if !seen {
			is = &issue{key: ck}
			byKey[ck] = is
			issues = append(issues, is)
		}
		is.members = append(is.members, key)
		is.total += aggregated[key]
		is.synced += ledger[key]
	}

	var (
		mu      sync.Mutex
		updated = model.AggregatedTime{}
		errs    []error
	)

	p := pool.New().WithMaxGoroutines(limit)
	for _, is := range issues {
		key, total := is.key, is.total
		delta := total - is.synced
		switch {
		case delta == 0:
			continue
		case delta < 0:
			log.Warn().
				Str("task", key.String()).
				Int("aggregated", total).
				Int("synced", is.synced).
				Msg("synced time exceeds tracked time, not pushing")
			continue
		}

		p.Go(func() {
			if err := ctx.Err(); err != nil {
				mu.Lock()
				errs = append(errs, &PushError{Backend: d.Backend, Key: key, Err: err})
				mu.Unlock()
				return
			}

			reqCtx, cancel := context.WithTimeout(ctx, timeout)
			defer cancel()

			err := push(reqCtx, key, total, delta)

			mu.Lock()
			defer mu.Unlock()
			if err != nil {
				pe := &PushError{Backend: d.Backend, Key: key, Err: err}
				errs = append(errs, pe)
				log.Error().Err(err).Str("task", key.String()).Int("delta", delta).Msg("push failed")
				return
			}
			for _, m := range is.members {
				updated[m] = aggregated[m]
			}
			log.Info().Str("task", key.String()).Int("delta", delta).Int("total", total).Msg("pushed")
		})
	}
	p.Wait()

	return updated, errors.Join(errs...)
}

// OwnsTypes returns a filter accepting keys whose type is in b.Types().
func OwnsTypes(b Backend) func(model.TaskKey) bool {
	return func(k model.TaskKey) bool { return Owns(b, k.Type) }
}
