package activity

import (
	"fmt"
	gosync "sync"
	"sync/atomic"

	"go.uber.org/zap"

	"github.com/dgnsrekt/outingsync/internal/api"
	"github.com/dgnsrekt/outingsync/internal/session"
	"github.com/dgnsrekt/outingsync/internal/sync"
)

// KindActivity is the notice kind for phase changes.
const KindActivity = "activity"

// Snapshot is an activity with its decoded phase.
type Snapshot struct {
	api.Activity
	Phase Phase `json:"phase"`
}

// NewSnapshot decodes a backend activity.
func NewSnapshot(a api.Activity) (Snapshot, error) {
	phase, err := PhaseFromFlags(a.Collecting, a.Voting, a.Finalized, a.Completed)
	if err != nil {
		return Snapshot{}, err
	}
	return Snapshot{Activity: a, Phase: phase}, nil
}

// Tracker holds the latest activity snapshot. Server snapshots are applied
// last-write-wins by updated_at and never move the phase backward.
type Tracker struct {
	mu gosync.Mutex
	// current is what the user sees; server is the newest applied server
	// snapshot. They differ only while a local edit is in flight.
	current Snapshot
	server  Snapshot
	loaded  bool
	cursor  sync.Cursor
	// version counts applied server snapshots; local edits compare against it
	// before rolling back.
	version  uint64
	self     int64
	rejected atomic.Int64
	logger   *zap.Logger
}

// NewTracker creates an empty tracker for the local user self.
func NewTracker(self int64, logger *zap.Logger) *Tracker {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Tracker{self: self, logger: logger}
}

// Merge applies fetched snapshots. It implements sync.Merger.
func (t *Tracker) Merge(batch []api.Activity) sync.MergeResult {
	t.mu.Lock()
	defer t.mu.Unlock()

	result := sync.MergeResult{Before: t.cursor, After: t.cursor}
	for _, a := range batch {
		prev, had := t.server, t.loaded
		next, err := t.acceptLocked(a)
		if err != nil {
			t.rejected.Add(1)
			t.logger.Warn("ignoring activity snapshot", zap.Int64("id", a.ID), zap.Error(err))
			continue
		}
		if next == nil {
			continue
		}

		if had {
			result.Replaced++
		} else {
			result.Added++
		}
		result.IDs = append(result.IDs, next.ID)
		if had && prev.Phase != next.Phase && next.User.ID != t.self {
			result.Notice = &sync.Notice{
				Kind:   KindActivity,
				Count:  1,
				Author: session.FirstName(next.User.Name),
				Detail: next.Phase.String(),
			}
		}
	}
	result.After = t.cursor
	return result
}

// Fold applies the snapshot returned by a confirmed write. It is subject to
// the same ordering rules as Merge but never notifies.
func (t *Tracker) Fold(a api.Activity) (Snapshot, error) {
	t.mu.Lock()
	defer t.mu.Unlock()

	if _, err := t.acceptLocked(a); err != nil {
		t.rejected.Add(1)
		return t.current, err
	}
	return t.current, nil
}

// acceptLocked applies a if it is newer than the held server snapshot and a
// legal successor of it. It returns nil, nil for stale snapshots. A snapshot
// with the same updated_at as the held one is stale, including when both are
// zero.
func (t *Tracker) acceptLocked(a api.Activity) (*Snapshot, error) {
	if a.ID == 0 {
		return nil, fmt.Errorf("%w: snapshot has no id", api.ErrMalformed)
	}
	if t.loaded && a.ID != t.server.ID {
		return nil, fmt.Errorf("snapshot for activity %d, tracking %d", a.ID, t.server.ID)
	}
	if t.loaded && !a.UpdatedAt.After(t.server.UpdatedAt) {
		return nil, nil
	}

	next, err := NewSnapshot(a)
	if err != nil {
		return nil, err
	}
	if t.loaded && !CanTransition(t.server.Phase, next.Phase) {
		return nil, fmt.Errorf("%w: %s to %s", ErrIllegalTransition, t.server.Phase, next.Phase)
	}

	t.server = next
	t.current = next
	t.loaded = true
	t.cursor = t.cursor.Advance(a.UpdatedAt)
	t.version++
	return &next, nil
}

// applyLocal installs an optimistic snapshot and returns the server version
// it was based on.
func (t *Tracker) applyLocal(s Snapshot) uint64 {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.current = s
	return t.version
}

// rollback drops a local edit unless a server snapshot arrived after version.
func (t *Tracker) rollback(version uint64) bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.version != version {
		return false
	}
	t.current = t.server
	return true
}

// Base returns the newest server snapshot, ignoring local edits.
func (t *Tracker) Base() (Snapshot, bool) {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.server, t.loaded
}

// Cursor is the updated_at of the newest applied server snapshot.
func (t *Tracker) Cursor() sync.Cursor {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.cursor
}

// Snapshot returns the current snapshot and whether one was loaded.
func (t *Tracker) Snapshot() (Snapshot, bool) {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.current, t.loaded
}

// Phase returns the current phase, or "" before the first snapshot.
func (t *Tracker) Phase() Phase {
	t.mu.Lock()
	defer t.mu.Unlock()
	if !t.loaded {
		return ""
	}
	return t.current.Phase
}

// Rejected counts snapshots ignored for impossible flags or transitions.
func (t *Tracker) Rejected() int64 {
	return t.rejected.Load()
}

var _ sync.Merger[api.Activity] = (*Tracker)(nil)
