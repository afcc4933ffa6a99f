package sync

import (
	"context"
	"errors"
	gosync "sync"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/semaphore"

	"github.com/dgnsrekt/outingsync/internal/api"
)

// Tick intervals are fixed per resource.
const (
	CommentInterval  = 4 * time.Second
	ActivityInterval = 5 * time.Second
)

// Outcome is what a single tick did.
type Outcome string

const (
	OutcomeApplied   Outcome = "applied"
	OutcomeSkipped   Outcome = "skipped"
	OutcomeBusy      Outcome = "busy"
	OutcomeDiscarded Outcome = "discarded"
	OutcomeFailed    Outcome = "failed"
)

// TickResult is the typed result of one tick.
type TickResult struct {
	Loop    string
	Outcome Outcome
	Reason  string
	Merge   MergeResult
	Err     *SyncError
}

// Observer receives every tick result, e.g. a metrics collector.
type Observer interface {
	ObserveTick(res TickResult)
}

// Guard skips ticks while Active reports true.
type Guard struct {
	Reason string
	Active func() bool
}

// LoopConfig holds the options for NewLoop.
type LoopConfig[T any] struct {
	Name     string
	Interval time.Duration
	Timeout  time.Duration
	Fetcher  Fetcher[T]
	Merger   Merger[T]
	Guards   []Guard

	// OnApplied runs after a batch was merged into live state.
	OnApplied func(res TickResult)
	Observer  Observer
	Logger    *zap.Logger
}

// Loop polls one resource on a fixed interval and hands every batch to its
// Merger. At most one request is in flight; a tick that finds the previous
// request still pending does nothing. Stop only stops the timer: a request
// already in flight runs to completion and its result is dropped.
type Loop[T any] struct {
	cfg   LoopConfig[T]
	sem   *semaphore.Weighted
	stats *Stats

	mu         gosync.Mutex
	running    bool
	generation uint64
	stop       chan struct{}

	ticker   gosync.WaitGroup
	inflight gosync.WaitGroup
}

// NewLoop validates cfg and returns a stopped loop.
func NewLoop[T any](cfg LoopConfig[T]) (*Loop[T], error) {
	if cfg.Fetcher == nil {
		return nil, errors.New("loop requires a fetcher")
	}
	if cfg.Merger == nil {
		return nil, errors.New("loop requires a merger")
	}
	if cfg.Interval <= 0 {
		return nil, errors.New("loop interval must be positive")
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = api.DefaultTimeout
	}
	if cfg.Logger == nil {
		cfg.Logger = zap.NewNop()
	}
	cfg.Logger = cfg.Logger.With(zap.String("loop", cfg.Name))

	return &Loop[T]{
		cfg:   cfg,
		sem:   semaphore.NewWeighted(1),
		stats: newStats(),
	}, nil
}

func (l *Loop[T]) Name() string { return l.cfg.Name }

// Stats returns the loop's diagnostic counters.
func (l *Loop[T]) Stats() *Stats { return l.stats }

// Running reports whether the timer is active.
func (l *Loop[T]) Running() bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.running
}

// Start arms the timer and fires one tick immediately. It returns false if
// the loop was already running.
func (l *Loop[T]) Start() bool {
	l.mu.Lock()
	if l.running {
		l.mu.Unlock()
		return false
	}
	l.running = true
	l.generation++
	gen := l.generation
	stop := make(chan struct{})
	l.stop = stop
	l.mu.Unlock()

	l.cfg.Logger.Debug("loop started", zap.Duration("interval", l.cfg.Interval))

	l.ticker.Add(1)
	go l.run(gen, stop)
	return true
}

// Stop disarms the timer. In-flight requests are not cancelled but their
// results are discarded.
func (l *Loop[T]) Stop() {
	l.mu.Lock()
	if !l.running {
		l.mu.Unlock()
		return
	}
	l.running = false
	close(l.stop)
	l.mu.Unlock()

	l.ticker.Wait()
	l.cfg.Logger.Debug("loop stopped")
}

// Drain blocks until every fetch started by the timer has returned. Call it
// after Stop.
func (l *Loop[T]) Drain() {
	l.inflight.Wait()
}

// Tick runs one tick synchronously, regardless of whether the timer is
// running.
func (l *Loop[T]) Tick(ctx context.Context) TickResult {
	return l.tick(ctx, 0)
}

func (l *Loop[T]) run(gen uint64, stop <-chan struct{}) {
	defer l.ticker.Done()

	l.fire(gen)

	ticker := time.NewTicker(l.cfg.Interval)
	defer ticker.Stop()

	for {
		select {
		case <-stop:
			return
		case <-ticker.C:
			l.fire(gen)
		}
	}
}

func (l *Loop[T]) fire(gen uint64) {
	l.inflight.Add(1)
	go func() {
		defer l.inflight.Done()
		// The request outlives Stop on purpose; only the timer is cancelled.
		l.tick(context.Background(), gen)
	}()
}

// current reports whether results of generation gen may still touch state.
// Generation 0 is a manual tick and always applies. Caller holds mu.
func (l *Loop[T]) current(gen uint64) bool {
	return gen == 0 || (l.running && l.generation == gen)
}

func (l *Loop[T]) tick(ctx context.Context, gen uint64) TickResult {
	res := TickResult{Loop: l.cfg.Name}

	if reason := l.blocked(); reason != "" {
		res.Outcome = OutcomeSkipped
		res.Reason = reason
		l.record(res)
		return res
	}

	if !l.sem.TryAcquire(1) {
		res.Outcome = OutcomeBusy
		l.record(res)
		return res
	}
	res = l.poll(ctx, gen, res)
	// OnApplied may block on notifiers; it must not hold the in-flight slot.
	l.sem.Release(1)

	l.record(res)
	if res.Outcome == OutcomeApplied && l.cfg.OnApplied != nil {
		l.cfg.OnApplied(res)
	}
	return res
}

// poll fetches and merges one batch. Caller holds the semaphore.
func (l *Loop[T]) poll(ctx context.Context, gen uint64, res TickResult) TickResult {
	since := l.cfg.Merger.Cursor()

	reqCtx, cancel := context.WithTimeout(ctx, l.cfg.Timeout)
	defer cancel()

	batch, err := l.cfg.Fetcher.Fetch(reqCtx, since)

	l.mu.Lock()
	if !l.current(gen) {
		l.mu.Unlock()
		res.Outcome = OutcomeDiscarded
		return res
	}
	if err != nil {
		l.mu.Unlock()
		res.Outcome = OutcomeFailed
		res.Err = Classify(err)
		l.cfg.Logger.Debug("poll failed",
			zap.String("kind", string(res.Err.Kind)),
			zap.Int("status", res.Err.Status),
			zap.Error(err),
		)
		return res
	}
	res.Merge = l.cfg.Merger.Merge(batch)
	l.mu.Unlock()

	res.Outcome = OutcomeApplied
	if res.Merge.Changed() {
		l.cfg.Logger.Debug("merged batch",
			zap.Int("fetched", len(batch)),
			zap.Int("added", res.Merge.Added),
			zap.Int("replaced", res.Merge.Replaced),
			zap.String("cursor", res.Merge.After.String()),
		)
	}
	return res
}

func (l *Loop[T]) blocked() string {
	for _, g := range l.cfg.Guards {
		if g.Active != nil && g.Active() {
			return g.Reason
		}
	}
	return ""
}

func (l *Loop[T]) record(res TickResult) {
	l.stats.record(res)
	if l.cfg.Observer != nil {
		l.cfg.Observer.ObserveTick(res)
	}
}
