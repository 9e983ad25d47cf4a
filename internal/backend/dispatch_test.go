package backend_test

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Tiliavir/tracktime/internal/backend"
	"github.com/Tiliavir/tracktime/internal/model"
)

var (
	taskX = model.TaskKey{Type: "gitlab", Project: "org/repo", TaskID: "#1"}
	taskY = model.TaskKey{Type: "gitlab", Project: "org/repo", TaskID: "#2"}
	other = model.TaskKey{Type: "jira", Project: "PROJ", TaskID: "-1"}
)

func ownsGitLab(k model.TaskKey) bool { return k.Type == "gitlab" }

func newDispatcher(limit int) backend.Dispatcher {
	return backend.Dispatcher{
		Backend:        "gitlab",
		MaxConcurrency: limit,
		RequestTimeout: 2 * time.Second,
		Log:            zerolog.Nop(),
	}
}

func TestDispatchSkipsZeroDelta(t *testing.T) {
	var calls atomic.Int32
	aggregated := model.AggregatedTime{taskX: 60, taskY: 30, other: 10}
	ledger := model.AggregatedTime{taskX: 60, taskY: 45}

	updated, err := newDispatcher(4).Dispatch(context.Background(), aggregated, ledger, ownsGitLab,
		func(context.Context, model.TaskKey, int, int) error {
			calls.Add(1)
			return nil
		})

	require.NoError(t, err)
	assert.Empty(t, updated)
	assert.Zero(t, calls.Load(), "zero and negative deltas must not be pushed")
}

func TestDispatchSetsFullTotal(t *testing.T) {
	aggregated := model.AggregatedTime{taskX: 120}
	ledger := model.AggregatedTime{taskX: 80}

	var gotDelta, gotTotal int
	updated, err := newDispatcher(4).Dispatch(context.Background(), aggregated, ledger, ownsGitLab,
		func(_ context.Context, _ model.TaskKey, total, delta int) error {
			gotTotal, gotDelta = total, delta
			return nil
		})

	require.NoError(t, err)
	assert.Equal(t, 40, gotDelta)
	assert.Equal(t, 120, gotTotal)
	assert.Equal(t, model.AggregatedTime{taskX: 120}, updated)
}

func TestDispatchPartialFailure(t *testing.T) {
	aggregated := model.AggregatedTime{taskX: 50, taskY: 70}
	ledger := model.AggregatedTime{}
	boom := errors.New("boom")

	updated, err := newDispatcher(4).Dispatch(context.Background(), aggregated, ledger, ownsGitLab,
		func(_ context.Context, key model.TaskKey, _, _ int) error {
			if key == taskX {
				return boom
			}
			return nil
		})

	require.Error(t, err)
	assert.ErrorIs(t, err, boom)
	assert.Equal(t, model.AggregatedTime{taskY: 70}, updated)

	pushErrs := backend.PushErrors(err)
	require.Len(t, pushErrs, 1)
	assert.Equal(t, taskX, pushErrs[0].Key)
	assert.Equal(t, "gitlab", pushErrs[0].Backend)
}

func TestDispatchRespectsLimit(t *testing.T) {
	aggregated := model.AggregatedTime{}
	for i := 0; i < 20; i++ {
		aggregated[model.TaskKey{Type: "gitlab", Project: "p", TaskID: string(rune('a' + i))}] = 10
	}

	var inFlight, peak atomic.Int32
	updated, err := newDispatcher(3).Dispatch(context.Background(), aggregated, model.AggregatedTime{}, ownsGitLab,
		func(context.Context, model.TaskKey, int, int) error {
			n := inFlight.Add(1)
			for {
				p := peak.Load()
				if n <= p || peak.CompareAndSwap(p, n) {
					break
				}
			}
			time.Sleep(5 * time.Millisecond)
			inFlight.Add(-1)
			return nil
		})

	require.NoError(t, err)
	assert.Len(t, updated, 20)
	assert.LessOrEqual(t, peak.Load(), int32(3))
}

func TestDispatchRunsConcurrently(t *testing.T) {
	aggregated := model.AggregatedTime{}
	for i := 0; i < 4; i++ {
		aggregated[model.TaskKey{Type: "gitlab", Project: "p", TaskID: string(rune('a' + i))}] = 10
	}

	// Every push waits until all four have started, which only happens when
	// they run at the same time.
	var wg sync.WaitGroup
	wg.Add(4)
	allStarted := make(chan struct{})
	go func() {
		wg.Wait()
		close(allStarted)
	}()

	updated, err := newDispatcher(4).Dispatch(context.Background(), aggregated, model.AggregatedTime{}, ownsGitLab,
		func(ctx context.Context, _ model.TaskKey, _, _ int) error {
			wg.Done()
			select {
			case <-allStarted:
				return nil
			case <-ctx.Done():
				return ctx.Err()
			}
		})

	require.NoError(t, err)
	assert.Len(t, updated, 4)
}

func TestDispatchRequestTimeout(t *testing.T) {
	d := newDispatcher(2)
	d.RequestTimeout = 20 * time.Millisecond

	updated, err := d.Dispatch(context.Background(), model.AggregatedTime{taskX: 5}, model.AggregatedTime{}, ownsGitLab,
		func(ctx context.Context, _ model.TaskKey, _, _ int) error {
			<-ctx.Done()
			return ctx.Err()
		})

	assert.ErrorIs(t, err, context.DeadlineExceeded)
	assert.Empty(t, updated)
}

func TestDispatchCancelledRun(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	var calls atomic.Int32
	updated, err := newDispatcher(2).Dispatch(ctx, model.AggregatedTime{taskX: 5, taskY: 6}, model.AggregatedTime{}, ownsGitLab,
		func(context.Context, model.TaskKey, int, int) error {
			calls.Add(1)
			return nil
		})

	assert.ErrorIs(t, err, context.Canceled)
	assert.Empty(t, updated)
	assert.Zero(t, calls.Load())
}

func TestDispatchGroupedSumsAliases(t *testing.T) {
	alias := model.TaskKey{Type: "gitlab", Project: "repo", TaskID: "1"}
	canonical := func(k model.TaskKey) (model.TaskKey, bool) {
		if !ownsGitLab(k) {
			return k, false
		}
		return taskX, true
	}

	var (
		mu    sync.Mutex
		calls []int
	)
	push := func(_ context.Context, key model.TaskKey, total, delta int) error {
		assert.Equal(t, taskX, key)
		mu.Lock()
		calls = append(calls, total, delta)
		mu.Unlock()
		return nil
	}

	updated, err := newDispatcher(4).DispatchGrouped(context.Background(),
		model.AggregatedTime{taskX: 60, alias: 30, other: 10},
		model.AggregatedTime{taskX: 60},
		canonical, push)

	require.NoError(t, err)
	assert.Equal(t, []int{90, 30}, calls, "one push with the summed total")
	assert.Equal(t, model.AggregatedTime{taskX: 60, alias: 30}, updated)
}

func TestDispatchGroupedFailureKeepsEveryAlias(t *testing.T) {
	alias := model.TaskKey{Type: "gitlab", Project: "repo", TaskID: "1"}
	canonical := func(k model.TaskKey) (model.TaskKey, bool) { return taskX, ownsGitLab(k) }

	updated, err := newDispatcher(4).DispatchGrouped(context.Background(),
		model.AggregatedTime{taskX: 60, alias: 30},
		model.AggregatedTime{},
		canonical,
		func(context.Context, model.TaskKey, int, int) error { return errors.New("boom") })

	require.Error(t, err)
	assert.Empty(t, updated)
	require.Len(t, backend.PushErrors(err), 1)
}
