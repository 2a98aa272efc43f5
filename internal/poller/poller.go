// Package poller re-fetches the state of one task at a fixed interval until
// the state is terminal.
//
// At most one fetch per poller is in flight at any time. A tick that arrives
// while a fetch is outstanding is skipped, not queued. Once a terminal value
// is observed no further automatic fetch is issued; manual refetches remain
// available until the poller's context ends. A manual refetch requested
// while a fetch is in flight runs once that fetch has finished.
package poller

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/phrazzld/apply-orchestrator/internal/redact"
)

// State is the scheduler state.
type State int32

const (
	StateIdle State = iota
	StatePolling
	StateTerminal
)

func (s State) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StatePolling:
		return "polling"
	case StateTerminal:
		return "terminal"
	default:
		return "invalid"
	}
}

// DefaultInterval is the automatic refetch cadence.
const DefaultInterval = 2 * time.Second

// ErrAlreadyRunning is returned by Run when called twice.
var ErrAlreadyRunning = errors.New("poller already running")

// Update is one fetch result.
type Update[T any] struct {
	Value  T
	Err    error
	Manual bool
	At     time.Time
}

// TickerFunc builds the tick source. It returns the channel and a stop func.
type TickerFunc func(d time.Duration) (<-chan time.Time, func())

func realTicker(d time.Duration) (<-chan time.Time, func()) {
	t := time.NewTicker(d)
	return t.C, t.Stop
}

// Option customises a Poller.
type Option[T any] func(*Poller[T])

// WithTicker replaces the tick source.
func WithTicker[T any](f TickerFunc) Option[T] {
	return func(p *Poller[T]) { p.newTicker = f }
}

// WithManualFetch sets the fetch used for manual refetches. By default
// manual refetches use the same fetch as ticks.
func WithManualFetch[T any](fetch func(ctx context.Context) (T, error)) Option[T] {
	return func(p *Poller[T]) { p.manualFetch = fetch }
}

// WithLogger sets the logger.
func WithLogger[T any](l *slog.Logger) Option[T] {
	return func(p *Poller[T]) { p.logger = l }
}

// Poller drives fetches for one task.
type Poller[T any] struct {
	fetch       func(ctx context.Context) (T, error)
	manualFetch func(ctx context.Context) (T, error)
	isTerminal  func(T) bool
	interval    time.Duration
	newTicker   TickerFunc
	logger      *slog.Logger

	state    atomic.Int32
	running  atomic.Bool
	inFlight atomic.Bool
	skipped  atomic.Int64
	fetches  atomic.Int64

	refetch   chan struct{}
	fetchDone chan struct{}
	updates   chan Update[T]
	wg        sync.WaitGroup

	// pendingManual is owned by the Run goroutine.
	pendingManual bool

	mu     sync.Mutex
	latest *Update[T]
}

// New creates a Poller. A non-positive interval means DefaultInterval.
func New[T any](fetch func(ctx context.Context) (T, error), isTerminal func(T) bool, interval time.Duration, opts ...Option[T]) *Poller[T] {
	if interval <= 0 {
		interval = DefaultInterval
	}
	p := &Poller[T]{
		fetch:      fetch,
		isTerminal: isTerminal,
		interval:   interval,
		newTicker:  realTicker,
		logger:     slog.Default(),
		refetch:    make(chan struct{}, 1),
		fetchDone:  make(chan struct{}, 1),
		updates:    make(chan Update[T], 1),
	}
	for _, opt := range opts {
		opt(p)
	}
	if p.manualFetch == nil {
		p.manualFetch = p.fetch
	}
	p.logger = p.logger.With("component", "poller")
	return p
}

// Updates delivers fetch results. Only the most recent undelivered update is
// kept. The channel is closed when Run returns.
func (p *Poller[T]) Updates() <-chan Update[T] { return p.updates }

// State returns the current scheduler state.
func (p *Poller[T]) State() State { return State(p.state.Load()) }

// Latest returns the most recent update, if any.
func (p *Poller[T]) Latest() (Update[T], bool) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.latest == nil {
		return Update[T]{}, false
	}
	return *p.latest, true
}

// Skipped reports how many ticks were coalesced into an outstanding fetch.
func (p *Poller[T]) Skipped() int64 { return p.skipped.Load() }

// Fetches reports how many fetches were issued.
func (p *Poller[T]) Fetches() int64 { return p.fetches.Load() }

// Refetch asks for an out-of-cycle fetch. It never blocks; requests made
// while one is already pending collapse into it. If a fetch is in flight the
// refetch is deferred until it finishes, never dropped.
func (p *Poller[T]) Refetch() {
	select {
	case p.refetch <- struct{}{}:
	default:
	}
}

// Run polls until ctx ends. The first fetch is issued immediately.
func (p *Poller[T]) Run(ctx context.Context) error {
	if !p.running.CompareAndSwap(false, true) {
		return ErrAlreadyRunning
	}
	defer func() {
		p.wg.Wait()
		close(p.updates)
	}()

	p.state.CompareAndSwap(int32(StateIdle), int32(StatePolling))
	ticks, stop := p.newTicker(p.interval)
	defer func() {
		if stop != nil {
			stop()
		}
	}()

	p.tick(ctx, false)
	for {
		if stop != nil && p.State() == StateTerminal {
			stop()
			stop = nil
			ticks = nil
		}
		select {
		case <-ctx.Done():
			return nil
		case <-ticks:
			p.tick(ctx, false)
		case <-p.refetch:
			p.tick(ctx, true)
		case <-p.fetchDone:
			if p.pendingManual {
				p.pendingManual = false
				p.tick(ctx, true)
			}
		}
	}
}

func (p *Poller[T]) tick(ctx context.Context, manual bool) {
	if !manual && p.State() == StateTerminal {
		return
	}
	if !p.inFlight.CompareAndSwap(false, true) {
		if manual {
			p.pendingManual = true
			return
		}
		p.skipped.Add(1)
		return
	}
	fetch := p.fetch
	if manual {
		fetch = p.manualFetch
	}
	p.fetches.Add(1)
	p.wg.Add(1)
	go func() {
		defer p.wg.Done()
		defer func() {
			p.inFlight.Store(false)
			select {
			case p.fetchDone <- struct{}{}:
			default:
			}
		}()

		v, err := fetch(ctx)
		if err != nil && ctx.Err() != nil {
			return
		}
		if err != nil {
			p.logger.Warn("fetch failed", "manual", manual, "error", redact.Error(err))
		} else if p.isTerminal(v) {
			p.state.Store(int32(StateTerminal))
		}
		p.publish(Update[T]{Value: v, Err: err, Manual: manual, At: time.Now()})
	}()
}

func (p *Poller[T]) publish(u Update[T]) {
	p.mu.Lock()
	p.latest = &u
	p.mu.Unlock()

	select {
	case p.updates <- u:
		return
	default:
	}
	select {
	case <-p.updates:
	default:
	}
	select {
	case p.updates <- u:
	default:
	}
}
