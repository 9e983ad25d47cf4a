package reconcile_test

import (
	"context"
	"errors"
	"net"
	"sync"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Tiliavir/tracktime/internal/backend"
	"github.com/Tiliavir/tracktime/internal/model"
	"github.com/Tiliavir/tracktime/internal/reconcile"
)

var period = model.Period{Year: 2026, Month: time.March}

// memStore keeps day records and ledgers in memory.
type memStore struct {
	mu      sync.Mutex
	days    map[string][]model.Entry
	ledgers map[model.Period]model.AggregatedTime
	saves   int
	saveErr error
}

func newMemStore() *memStore {
	return &memStore{days: map[string][]model.Entry{}, ledgers: map[model.Period]model.AggregatedTime{}}
}

func (s *memStore) add(day int, from, to string, key model.TaskKey) {
	d := time.Date(period.Year, period.Month, day, 0, 0, 0, 0, time.Local)
	at := func(clock string) time.Time {
		c, _ := time.Parse("15:04", clock)
		return d.Add(time.Duration(c.Hour())*time.Hour + time.Duration(c.Minute())*time.Minute)
	}
	e := model.Entry{Start: at(from), Type: key.Type, Project: key.Project, TaskID: key.TaskID}
	_ = e.SetStop(at(to))
	s.days[d.Format(time.DateOnly)] = append(s.days[d.Format(time.DateOnly)], e)
}

func (s *memStore) LoadDay(day time.Time) ([]model.Entry, error) {
	return s.days[day.Format(time.DateOnly)], nil
}

func (s *memStore) LoadLedger(p model.Period) (model.AggregatedTime, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.ledgers[p].Clone(), nil
}

func (s *memStore) SaveLedger(p model.Period, ledger model.AggregatedTime) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.saveErr != nil {
		return s.saveErr
	}
	s.saves++
	s.ledgers[p] = ledger.Clone()
	return nil
}

type push struct {
	key          model.TaskKey
	total, delta int
}

// recorder is a backend that pushes through the shared dispatcher and
// records every call. Keys listed in fail are rejected.
type recorder struct {
	name  string
	types []string

	mu     sync.Mutex
	pushes []push
	fail   map[model.TaskKey]bool
	onPush func()

	dispatcher backend.Dispatcher
}

func newRecorder(name string, types ...string) *recorder {
	return &recorder{
		name:       name,
		types:      types,
		fail:       map[model.TaskKey]bool{},
		dispatcher: backend.NewDispatcher(name, backend.Deps{Log: zerolog.Nop(), MaxConcurrency: 4}),
	}
}

func (r *recorder) Name() string    { return r.name }
func (r *recorder) Types() []string { return r.types }

func (r *recorder) Sync(ctx context.Context, aggregated, ledger model.AggregatedTime, _ model.Period) (model.AggregatedTime, error) {
	return r.dispatcher.Dispatch(ctx, aggregated, ledger, backend.OwnsTypes(r), func(_ context.Context, key model.TaskKey, total, delta int) error {
		r.mu.Lock()
		defer r.mu.Unlock()
		r.pushes = append(r.pushes, push{key, total, delta})
		if r.onPush != nil {
			r.onPush()
		}
		if r.fail[key] {
			return errors.New("tracker rejected the push")
		}
		return nil
	})
}

func (r *recorder) reset() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.pushes = nil
}

// constant is a backend that reports fixed ledger values without pushing.
type constant struct {
	values model.AggregatedTime
	err    error
}

func (c constant) Name() string    { return "constant" }
func (c constant) Types() []string { return []string{"gitlab"} }
func (c constant) Sync(context.Context, model.AggregatedTime, model.AggregatedTime, model.Period) (model.AggregatedTime, error) {
	return c.values.Clone(), c.err
}

type probe struct{ err error }

func (p probe) Probe(context.Context) error { return p.err }

var (
	taskX = model.TaskKey{Type: "gitlab", Project: "org/repo", TaskID: "#1"}
	taskY = model.TaskKey{Type: "gitlab", Project: "org/repo", TaskID: "#2"}
	taskZ = model.TaskKey{Type: "jira", Project: "OPS", TaskID: "7"}
)

func engine(store *memStore, backends ...backend.Backend) *reconcile.Engine {
	return &reconcile.Engine{
		Store:    store,
		Backends: backends,
		Prober:   probe{},
		Enabled:  true,
		Log:      zerolog.Nop(),
	}
}

func TestSyncIsIdempotent(t *testing.T) {
	store := newMemStore()
	store.add(2, "09:00", "11:00", taskX)
	store.add(3, "09:00", "09:30", taskY)
	store.add(3, "10:00", "10:45", taskZ)
	gitlab := newRecorder("gitlab", "gitlab")
	jira := newRecorder("jira", "jira")
	e := engine(store, gitlab, jira)

	res, err := e.Sync(context.Background(), period)
	require.NoError(t, err)
	assert.Equal(t, []reconcile.State{
		reconcile.Idle, reconcile.ProbingConnectivity, reconcile.Aggregating, reconcile.LoadingLedger,
		reconcile.Dispatching, reconcile.Merging, reconcile.Persisting, reconcile.Done,
	}, res.Trace)
	assert.Equal(t, 3, res.Pushed)
	assert.Zero(t, res.Failed)
	assert.NotEmpty(t, res.RunID)
	assert.Equal(t, model.AggregatedTime{taskX: 120, taskY: 30, taskZ: 45}, store.ledgers[period])
	assert.Len(t, gitlab.pushes, 2)
	assert.Equal(t, []push{{taskZ, 45, 45}}, jira.pushes)

	gitlab.reset()
	jira.reset()
	res, err = e.Sync(context.Background(), period)
	require.NoError(t, err)
	assert.Zero(t, res.Pushed)
	assert.Empty(t, gitlab.pushes, "second run must not push again")
	assert.Empty(t, jira.pushes)
	assert.Equal(t, 2, store.saves)
}

func TestSyncPushesOnlyTheDelta(t *testing.T) {
	store := newMemStore()
	store.add(2, "09:00", "11:00", taskX)
	store.ledgers[period] = model.AggregatedTime{taskX: 80}
	gitlab := newRecorder("gitlab", "gitlab")

	res, err := engine(store, gitlab).Sync(context.Background(), period)
	require.NoError(t, err)
	assert.Equal(t, []push{{taskX, 120, 40}}, gitlab.pushes)
	assert.Equal(t, 120, store.ledgers[period][taskX])
	assert.Equal(t, 1, res.Pushed)
}

func TestSyncFailedPushIsRetried(t *testing.T) {
	store := newMemStore()
	store.add(2, "09:00", "11:00", taskX)
	store.add(3, "09:00", "09:30", taskY)
	store.ledgers[period] = model.AggregatedTime{taskX: 80}
	gitlab := newRecorder("gitlab", "gitlab")
	gitlab.fail[taskX] = true
	e := engine(store, gitlab)

	res, err := e.Sync(context.Background(), period)
	require.NoError(t, err, "backend failures never fail the run")
	assert.Equal(t, reconcile.Done, res.State())
	assert.Equal(t, 1, res.Failed)
	assert.Equal(t, 1, res.Pushed)
	require.Error(t, res.BackendErrors)
	pushErrs := backend.PushErrors(res.BackendErrors)
	require.Len(t, pushErrs, 1)
	assert.Equal(t, taskX, pushErrs[0].Key)
	assert.Equal(t, model.AggregatedTime{taskX: 80, taskY: 30}, store.ledgers[period])

	gitlab.reset()
	delete(gitlab.fail, taskX)
	res, err = e.Sync(context.Background(), period)
	require.NoError(t, err)
	assert.Equal(t, []push{{taskX, 120, 40}}, gitlab.pushes, "only the failed task is pushed again")
	assert.Equal(t, model.AggregatedTime{taskX: 120, taskY: 30}, store.ledgers[period])
	assert.NoError(t, res.BackendErrors)
}

func TestSyncMergeNeverLowersTheLedger(t *testing.T) {
	store := newMemStore()
	store.add(2, "09:00", "11:00", taskX)
	store.ledgers[period] = model.AggregatedTime{taskX: 100, taskY: 50}
	low := constant{values: model.AggregatedTime{taskX: 60, taskY: 70}}

	res, err := engine(store, low).Sync(context.Background(), period)
	require.NoError(t, err)
	assert.Equal(t, model.AggregatedTime{taskX: 100, taskY: 70}, store.ledgers[period])
	assert.Equal(t, 1, res.Pushed)
}

func TestSyncConfigurationErrorIsNotAFailure(t *testing.T) {
	store := newMemStore()
	store.add(2, "09:00", "11:00", taskX)
	unconfigured := constant{err: &backend.ConfigurationError{Backend: "constant", Setting: "constant.api_key"}}

	res, err := engine(store, unconfigured).Sync(context.Background(), period)
	require.NoError(t, err)
	assert.Zero(t, res.Failed)
	var ce *backend.ConfigurationError
	assert.ErrorAs(t, res.BackendErrors, &ce)
	assert.Equal(t, reconcile.Done, res.State())
}

func TestSyncSkippedWhenUnreachable(t *testing.T) {
	store := newMemStore()
	store.add(2, "09:00", "11:00", taskX)
	gitlab := newRecorder("gitlab", "gitlab")
	e := engine(store, gitlab)
	e.Prober = probe{err: reconcile.ErrUnreachable}

	res, err := e.Sync(context.Background(), period)
	require.NoError(t, err)
	assert.Equal(t, []reconcile.State{reconcile.Idle, reconcile.ProbingConnectivity, reconcile.Skipped}, res.Trace)
	assert.ErrorIs(t, res.Err, reconcile.ErrUnreachable)
	assert.Empty(t, gitlab.pushes)
	assert.Zero(t, store.saves)
}

func TestSyncDisabled(t *testing.T) {
	store := newMemStore()
	store.add(2, "09:00", "11:00", taskX)
	gitlab := newRecorder("gitlab", "gitlab")
	e := engine(store, gitlab)
	e.Enabled = false

	res, err := e.Sync(context.Background(), period)
	require.NoError(t, err)
	assert.Equal(t, reconcile.Disabled, res.State())
	assert.Empty(t, gitlab.pushes)
	assert.Zero(t, store.saves)
}

func TestSyncCancelledBeforeStart(t *testing.T) {
	store := newMemStore()
	store.add(2, "09:00", "11:00", taskX)
	gitlab := newRecorder("gitlab", "gitlab")
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	res, err := engine(store, gitlab).Sync(ctx, period)
	require.NoError(t, err)
	assert.Equal(t, reconcile.Cancelled, res.State())
	assert.ErrorIs(t, res.Err, context.Canceled)
	assert.Empty(t, gitlab.pushes)
	assert.Zero(t, store.saves, "nothing confirmed, nothing persisted")
}

func TestSyncCancelledKeepsConfirmedPushes(t *testing.T) {
	store := newMemStore()
	store.add(2, "09:00", "11:00", taskX)
	store.add(3, "09:00", "09:30", taskY)
	store.add(3, "10:00", "10:45", taskZ)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	gitlab := newRecorder("gitlab", "gitlab")
	gitlab.dispatcher.MaxConcurrency = 1
	gitlab.onPush = cancel
	jira := newRecorder("jira", "jira")

	res, err := engine(store, gitlab, jira).Sync(ctx, period)
	require.NoError(t, err)
	assert.Equal(t, reconcile.Done, res.State())
	assert.ErrorIs(t, res.Err, context.Canceled)
	assert.Len(t, gitlab.pushes, 1, "tasks queued after cancellation are not pushed")
	assert.Empty(t, jira.pushes, "backends after cancellation are not run")
	assert.Equal(t, 1, store.saves)
	assert.Len(t, store.ledgers[period], 1)
}

func TestSyncStorageFailure(t *testing.T) {
	store := newMemStore()
	store.add(2, "09:00", "11:00", taskX)
	store.saveErr = errors.New("disk full")

	res, err := engine(store, newRecorder("gitlab", "gitlab")).Sync(context.Background(), period)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "disk full")
	assert.Equal(t, reconcile.Persisting, res.State())
}

func TestDialProber(t *testing.T) {
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	addr := ln.Addr().String()

	p := reconcile.DialProber{Address: addr, Timeout: time.Second}
	require.NoError(t, p.Probe(context.Background()))

	require.NoError(t, ln.Close())
	err = p.Probe(context.Background())
	assert.ErrorIs(t, err, reconcile.ErrUnreachable)
}
