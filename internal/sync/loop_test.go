package sync

import (
	"context"
	"errors"
	gosync "sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/dgnsrekt/outingsync/internal/api"
)

type recordingObserver struct {
	mu      gosync.Mutex
	results []TickResult
}

func (o *recordingObserver) ObserveTick(res TickResult) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.results = append(o.results, res)
}

func newTestLoop(t *testing.T, f *fakeFetcher, r *Reconciler[testItem], guards ...Guard) *Loop[testItem] {
	t.Helper()
	l, err := NewLoop(LoopConfig[testItem]{
		Name:     "comments",
		Interval: time.Hour,
		Timeout:  time.Second,
		Fetcher:  f,
		Merger:   r,
		Guards:   guards,
	})
	if err != nil {
		t.Fatalf("creating loop: %v", err)
	}
	return l
}

func TestNewLoopValidates(t *testing.T) {
	r := NewReconciler[testItem](self, Cursor{})
	if _, err := NewLoop(LoopConfig[testItem]{Interval: time.Second, Merger: r}); err == nil {
		t.Error("expected error without fetcher")
	}
	if _, err := NewLoop(LoopConfig[testItem]{Fetcher: &fakeFetcher{}, Merger: r}); err == nil {
		t.Error("expected error without interval")
	}
}

func TestTickUsesCursor(t *testing.T) {
	f := &fakeFetcher{batches: [][]testItem{
		{item(1, 2, "Alex", "hi", 5)},
		{item(1, 2, "Alex", "hi", 5), item(2, self, "Me", "hey", 10)},
	}}
	r := NewReconciler[testItem](self, Cursor{})
	l := newTestLoop(t, f, r)

	res := l.Tick(context.Background())
	if res.Outcome != OutcomeApplied || res.Merge.Added != 1 {
		t.Fatalf("unexpected first tick: %+v", res)
	}
	l.Tick(context.Background())

	if len(f.calls) != 2 {
		t.Fatalf("expected 2 fetches, got %d", len(f.calls))
	}
	if !f.calls[0].IsZero() {
		t.Errorf("first fetch should use zero cursor, got %s", f.calls[0])
	}
	if f.calls[1].String() != "2024-01-01T00:00:05Z" {
		t.Errorf("second fetch should use 00:00:05, got %s", f.calls[1])
	}
	if r.Cursor().String() != "2024-01-01T00:00:10Z" {
		t.Errorf("expected cursor 00:00:10, got %s", r.Cursor())
	}
}

func TestTickSkippedByGuard(t *testing.T) {
	var modal atomic.Bool
	modal.Store(true)

	f := &fakeFetcher{}
	l := newTestLoop(t, f, NewReconciler[testItem](self, Cursor{}), Guard{Reason: "modal", Active: modal.Load})

	res := l.Tick(context.Background())
	if res.Outcome != OutcomeSkipped || res.Reason != "modal" {
		t.Errorf("expected skipped tick, got %+v", res)
	}
	if f.callCount() != 0 {
		t.Errorf("skipped tick must not fetch, got %d calls", f.callCount())
	}

	modal.Store(false)
	if res := l.Tick(context.Background()); res.Outcome != OutcomeApplied {
		t.Errorf("expected applied tick after guard cleared, got %+v", res)
	}
}

func TestTickFailureIsRecorded(t *testing.T) {
	f := &fakeFetcher{err: &api.StatusError{Code: 500}}
	obs := &recordingObserver{}
	r := NewReconciler[testItem](self, CursorAt(at(5)))

	l, err := NewLoop(LoopConfig[testItem]{
		Name:     "comments",
		Interval: time.Hour,
		Fetcher:  f,
		Merger:   r,
		Observer: obs,
	})
	if err != nil {
		t.Fatal(err)
	}

	res := l.Tick(context.Background())
	if res.Outcome != OutcomeFailed {
		t.Fatalf("expected failed tick, got %+v", res)
	}
	if res.Err.Kind != KindStatus || res.Err.Status != 500 {
		t.Errorf("expected status 500 error, got %+v", res.Err)
	}
	if l.Stats().Failures() != 1 {
		t.Errorf("expected one failure counted, got %d", l.Stats().Failures())
	}
	if snap := l.Stats().Snapshot(); snap.ByKind[KindStatus] != 1 || snap.LastError == "" {
		t.Errorf("unexpected snapshot %+v", snap)
	}
	if !r.Cursor().Equal(CursorAt(at(5))) {
		t.Errorf("failure must not move cursor, got %s", r.Cursor())
	}
	if len(obs.results) != 1 {
		t.Errorf("expected observer to see one result, got %d", len(obs.results))
	}
}

func TestTickWhileInFlightIsNoop(t *testing.T) {
	f := &fakeFetcher{
		block:   make(chan struct{}),
		entered: make(chan struct{}, 1),
	}
	l := newTestLoop(t, f, NewReconciler[testItem](self, Cursor{}))

	done := make(chan TickResult)
	go func() { done <- l.Tick(context.Background()) }()
	<-f.entered

	if res := l.Tick(context.Background()); res.Outcome != OutcomeBusy {
		t.Errorf("expected busy tick, got %+v", res)
	}
	if f.callCount() != 1 {
		t.Errorf("expected a single request in flight, got %d", f.callCount())
	}

	close(f.block)
	if res := <-done; res.Outcome != OutcomeApplied {
		t.Errorf("expected first tick to apply, got %+v", res)
	}
}

func TestSlowOnAppliedDoesNotBlockNextTick(t *testing.T) {
	f := &fakeFetcher{batches: [][]testItem{{item(1, 2, "Alex", "hi", 5)}}}
	r := NewReconciler[testItem](self, Cursor{})

	var calls atomic.Int32
	entered := make(chan struct{})
	release := make(chan struct{})
	l, err := NewLoop(LoopConfig[testItem]{
		Name:     "comments",
		Interval: time.Hour,
		Timeout:  time.Second,
		Fetcher:  f,
		Merger:   r,
		OnApplied: func(TickResult) {
			if calls.Add(1) == 1 {
				close(entered)
				<-release
			}
		},
	})
	if err != nil {
		t.Fatalf("creating loop: %v", err)
	}

	done := make(chan TickResult)
	go func() { done <- l.Tick(context.Background()) }()
	<-entered

	if res := l.Tick(context.Background()); res.Outcome != OutcomeApplied {
		t.Errorf("expected tick to run while the previous callback blocks, got %+v", res)
	}
	if f.callCount() != 2 {
		t.Errorf("expected 2 fetches, got %d", f.callCount())
	}

	close(release)
	if res := <-done; res.Outcome != OutcomeApplied {
		t.Errorf("expected first tick to apply, got %+v", res)
	}
}

func TestStartFetchesImmediately(t *testing.T) {
	f := &fakeFetcher{batches: [][]testItem{{item(1, 2, "Alex", "hi", 5)}}}
	r := NewReconciler[testItem](self, Cursor{})
	l := newTestLoop(t, f, r)

	if !l.Start() {
		t.Fatal("expected start to succeed")
	}
	if l.Start() {
		t.Error("second start should report false")
	}

	waitFor(t, func() bool { return r.Len() == 1 })
	l.Stop()
	l.Drain()

	if f.callCount() != 1 {
		t.Errorf("expected exactly one immediate fetch, got %d", f.callCount())
	}
	if l.Running() {
		t.Error("loop should be stopped")
	}
}

func TestResultAfterStopIsDiscarded(t *testing.T) {
	f := &fakeFetcher{
		batches: [][]testItem{{item(1, 2, "Alex", "hi", 5)}},
		block:   make(chan struct{}),
		entered: make(chan struct{}, 1),
	}
	r := NewReconciler[testItem](self, Cursor{})
	l := newTestLoop(t, f, r)

	var applied atomic.Int32
	l.cfg.OnApplied = func(TickResult) { applied.Add(1) }

	l.Start()
	<-f.entered
	l.Stop()

	close(f.block)
	l.Drain()

	if r.Len() != 0 || !r.Cursor().IsZero() {
		t.Errorf("stale result touched state: len=%d cursor=%s", r.Len(), r.Cursor())
	}
	if applied.Load() != 0 {
		t.Error("OnApplied must not run for a discarded result")
	}
	if snap := l.Stats().Snapshot(); snap.Discarded != 1 {
		t.Errorf("expected one discarded tick, got %+v", snap)
	}
}

func TestResultAfterRestartIsDiscarded(t *testing.T) {
	f := &fakeFetcher{
		batches: [][]testItem{{item(1, 2, "Alex", "hi", 5)}},
		block:   make(chan struct{}),
		entered: make(chan struct{}, 2),
	}
	r := NewReconciler[testItem](self, Cursor{})
	l := newTestLoop(t, f, r)

	l.Start()
	<-f.entered
	l.Stop()
	l.Start()

	close(f.block)
	waitFor(t, func() bool { return l.Stats().Snapshot().Discarded == 1 })

	l.Stop()
	l.Drain()

	if r.Len() != 0 {
		t.Errorf("result of the previous generation was applied")
	}
}

func TestClassify(t *testing.T) {
	cases := []struct {
		err  error
		kind ErrorKind
	}{
		{&api.StatusError{Code: 500}, KindStatus},
		{&api.StatusError{Code: 401}, KindAuth},
		{api.ErrNoCredential, KindAuth},
		{api.ErrMalformed, KindDecode},
		{context.DeadlineExceeded, KindTimeout},
		{errBoom, KindTransport},
	}

	for _, tc := range cases {
		if got := Classify(tc.err); got.Kind != tc.kind {
			t.Errorf("Classify(%v) = %s, want %s", tc.err, got.Kind, tc.kind)
		}
	}

	if Classify(nil) != nil {
		t.Error("Classify(nil) should be nil")
	}

	wrapped := Classify(errBoom)
	if !errors.Is(wrapped, errBoom) {
		t.Error("SyncError should unwrap to the cause")
	}
}

func waitFor(t *testing.T, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatal("condition not met before deadline")
}
