package sync

import (
	gosync "sync"
	"sync/atomic"
	"time"
)

// Stats counts tick outcomes for one loop.
type Stats struct {
	ticks     atomic.Int64
	applied   atomic.Int64
	skipped   atomic.Int64
	busy      atomic.Int64
	discarded atomic.Int64
	failures  atomic.Int64

	mu        gosync.Mutex
	byKind    map[ErrorKind]int64
	lastError string
	lastOK    time.Time
}

// StatsSnapshot is a point-in-time copy of Stats.
type StatsSnapshot struct {
	Ticks     int64               `json:"ticks"`
	Applied   int64               `json:"applied"`
	Skipped   int64               `json:"skipped"`
	Busy      int64               `json:"busy"`
	Discarded int64               `json:"discarded"`
	Failures  int64               `json:"failures"`
	ByKind    map[ErrorKind]int64 `json:"failures_by_kind,omitempty"`
	LastError string              `json:"last_error,omitempty"`
	LastOK    time.Time           `json:"last_ok,omitzero"`
}

func newStats() *Stats {
	return &Stats{byKind: make(map[ErrorKind]int64)}
}

func (s *Stats) record(res TickResult) {
	s.ticks.Add(1)

	switch res.Outcome {
	case OutcomeApplied:
		s.applied.Add(1)
		s.mu.Lock()
		s.lastOK = time.Now()
		s.mu.Unlock()
	case OutcomeSkipped:
		s.skipped.Add(1)
	case OutcomeBusy:
		s.busy.Add(1)
	case OutcomeDiscarded:
		s.discarded.Add(1)
	case OutcomeFailed:
		s.failures.Add(1)
		if res.Err != nil {
			s.mu.Lock()
			s.byKind[res.Err.Kind]++
			s.lastError = res.Err.Error()
			s.mu.Unlock()
		}
	}
}

func (s *Stats) Failures() int64 { return s.failures.Load() }

func (s *Stats) Applied() int64 { return s.applied.Load() }

// Snapshot returns a copy safe to serialise.
func (s *Stats) Snapshot() StatsSnapshot {
	snap := StatsSnapshot{
		Ticks:     s.ticks.Load(),
		Applied:   s.applied.Load(),
		Skipped:   s.skipped.Load(),
		Busy:      s.busy.Load(),
		Discarded: s.discarded.Load(),
		Failures:  s.failures.Load(),
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if len(s.byKind) > 0 {
		snap.ByKind = make(map[ErrorKind]int64, len(s.byKind))
		for k, v := range s.byKind {
			snap.ByKind[k] = v
		}
	}
	snap.LastError = s.lastError
	snap.LastOK = s.lastOK
	return snap
}
