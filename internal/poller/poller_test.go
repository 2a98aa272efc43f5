package poller

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeTicker struct {
	ch      chan time.Time
	stopped atomic.Bool
}

func newFakeTicker() *fakeTicker {
	return &fakeTicker{ch: make(chan time.Time)}
}

func (f *fakeTicker) factory(time.Duration) (<-chan time.Time, func()) {
	return f.ch, func() { f.stopped.Store(true) }
}

// fire delivers a tick if the poller is still listening.
func (f *fakeTicker) fire() bool {
	select {
	case f.ch <- time.Now():
		return true
	case <-time.After(20 * time.Millisecond):
		return false
	}
}

// waitIdle blocks until no fetch is outstanding.
func waitIdle[T any](t *testing.T, p *Poller[T]) {
	t.Helper()
	require.Eventually(t, func() bool { return !p.inFlight.Load() }, time.Second, time.Millisecond)
}

type status string

func terminal(s status) bool { return s == "completed" || s == "failed" || s == "stopped" }

func TestStateStrings(t *testing.T) {
	assert.Equal(t, "idle", StateIdle.String())
	assert.Equal(t, "polling", StatePolling.String())
	assert.Equal(t, "terminal", StateTerminal.String())
}

func TestRapidTicksNeverOverlap(t *testing.T) {
	var current, maxSeen atomic.Int32
	release := make(chan struct{})

	fetch := func(ctx context.Context) (status, error) {
		n := current.Add(1)
		defer current.Add(-1)
		for {
			m := maxSeen.Load()
			if n <= m || maxSeen.CompareAndSwap(m, n) {
				break
			}
		}
		select {
		case <-release:
		case <-ctx.Done():
		}
		return "running", nil
	}

	ft := newFakeTicker()
	p := New(fetch, terminal, time.Second, WithTicker[status](ft.factory))

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- p.Run(ctx) }()

	require.Eventually(t, func() bool { return current.Load() == 1 }, time.Second, time.Millisecond)
	for i := 0; i < 50; i++ {
		require.True(t, ft.fire())
	}

	assert.Equal(t, int32(1), maxSeen.Load())
	assert.Equal(t, int64(1), p.Fetches())
	assert.Equal(t, int64(50), p.Skipped())

	close(release)
	cancel()
	require.NoError(t, <-done)
}

func TestStopsFetchingAfterTerminal(t *testing.T) {
	var calls atomic.Int32
	fetch := func(context.Context) (status, error) {
		if calls.Add(1) >= 3 {
			return "completed", nil
		}
		return "running", nil
	}

	ft := newFakeTicker()
	p := New(fetch, terminal, time.Second, WithTicker[status](ft.factory))

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go func() { _ = p.Run(ctx) }()

	require.Eventually(t, func() bool { return calls.Load() == 1 }, time.Second, time.Millisecond)
	for calls.Load() < 3 {
		ft.fire()
		time.Sleep(time.Millisecond)
	}
	require.Eventually(t, func() bool { return p.State() == StateTerminal }, time.Second, time.Millisecond)

	for i := 0; i < 10; i++ {
		ft.fire()
	}
	assert.Equal(t, int32(3), calls.Load())
	assert.Eventually(t, func() bool { return ft.stopped.Load() }, time.Second, time.Millisecond)

	latest, ok := p.Latest()
	require.True(t, ok)
	assert.Equal(t, status("completed"), latest.Value)
}

func TestManualRefetchAfterTerminal(t *testing.T) {
	var calls atomic.Int32
	fetch := func(context.Context) (status, error) {
		calls.Add(1)
		return "stopped", nil
	}

	ft := newFakeTicker()
	p := New(fetch, terminal, time.Second, WithTicker[status](ft.factory))

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go func() { _ = p.Run(ctx) }()

	first := <-p.Updates()
	assert.False(t, first.Manual)
	require.Eventually(t, func() bool { return p.State() == StateTerminal }, time.Second, time.Millisecond)
	waitIdle(t, p)

	p.Refetch()
	second := <-p.Updates()
	assert.True(t, second.Manual)
	assert.Equal(t, int32(2), calls.Load())
	assert.Equal(t, StateTerminal, p.State())
}

func TestManualRefetchDuringFetchRunsAfterIt(t *testing.T) {
	release := make(chan struct{})
	var ticked, manual atomic.Int32
	fetch := func(context.Context) (status, error) {
		ticked.Add(1)
		<-release
		return "completed", nil
	}
	manualFetch := func(context.Context) (status, error) {
		manual.Add(1)
		return "stopped", nil
	}

	ft := newFakeTicker()
	p := New(fetch, terminal, time.Second,
		WithTicker[status](ft.factory),
		WithManualFetch[status](manualFetch))

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go func() { _ = p.Run(ctx) }()

	require.Eventually(t, func() bool { return ticked.Load() == 1 }, time.Second, time.Millisecond)
	p.Refetch()
	require.Eventually(t, func() bool { return len(p.refetch) == 0 }, time.Second, time.Millisecond)
	assert.Zero(t, manual.Load(), "no second fetch while one is in flight")

	close(release)
	require.Eventually(t, func() bool {
		latest, ok := p.Latest()
		return ok && latest.Manual
	}, time.Second, time.Millisecond)

	latest, _ := p.Latest()
	assert.Equal(t, status("stopped"), latest.Value)
	assert.Equal(t, int32(1), ticked.Load())
	assert.Equal(t, int32(1), manual.Load())
	assert.Equal(t, int64(2), p.Fetches())
	assert.Zero(t, p.Skipped())
}

func TestFetchErrorsKeepPolling(t *testing.T) {
	var calls atomic.Int32
	fetch := func(context.Context) (status, error) {
		if calls.Add(1) == 1 {
			return "", errors.New("502 bad gateway")
		}
		return "failed", nil
	}

	ft := newFakeTicker()
	p := New(fetch, terminal, time.Second, WithTicker[status](ft.factory))

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go func() { _ = p.Run(ctx) }()

	u := <-p.Updates()
	require.Error(t, u.Err)
	assert.Equal(t, StatePolling, p.State())
	waitIdle(t, p)

	require.True(t, ft.fire())
	u = <-p.Updates()
	require.NoError(t, u.Err)
	assert.Equal(t, status("failed"), u.Value)
}

func TestRunTwice(t *testing.T) {
	block := make(chan struct{})
	p := New(func(ctx context.Context) (status, error) {
		<-block
		return "running", nil
	}, terminal, time.Second, WithTicker[status](newFakeTicker().factory))

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- p.Run(ctx) }()

	require.Eventually(t, func() bool { return p.State() == StatePolling }, time.Second, time.Millisecond)
	assert.ErrorIs(t, p.Run(ctx), ErrAlreadyRunning)

	close(block)
	cancel()
	require.NoError(t, <-done)

	_, open := <-p.Updates()
	for open {
		_, open = <-p.Updates()
	}
}
