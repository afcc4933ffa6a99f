package sync

import (
	"fmt"
	gosync "sync"
	"time"

	"github.com/google/uuid"

	"github.com/dgnsrekt/outingsync/internal/session"
)

// DefaultPendingWindow is how far apart a pending local item and its server
// echo may be in time and still be considered the same write.
const DefaultPendingWindow = 60 * time.Second

// KindComment is the default notice kind.
const KindComment = "comment"

// entry is one slot of local state. Pending slots carry a local id and an
// item whose ItemID is still 0.
type entry[T Item] struct {
	item    T
	localID string
}

func (e entry[T]) pending() bool {
	return e.localID != ""
}

// Reconciler holds the local item set for one resource and merges fetched
// batches into it. Every id appears at most once; existing entries are never
// reordered, and only removed by Remove or Discard.
type Reconciler[T Item] struct {
	mu      gosync.Mutex
	entries []entry[T]
	known   map[int64]int // id -> index in entries
	cursor  Cursor
	self    int64
	window  time.Duration
	kind    string
	now     func() time.Time
}

// ReconcilerOption customises a Reconciler.
type ReconcilerOption func(*reconcilerOptions)

type reconcilerOptions struct {
	window time.Duration
	kind   string
	now    func() time.Time
}

// WithPendingWindow sets the echo matching window for pending items.
func WithPendingWindow(d time.Duration) ReconcilerOption {
	return func(o *reconcilerOptions) { o.window = d }
}

// WithNoticeKind sets the Kind stamped on notices, e.g. "comment".
func WithNoticeKind(kind string) ReconcilerOption {
	return func(o *reconcilerOptions) { o.kind = kind }
}

// WithClock overrides the time source used to stamp pending items.
func WithClock(now func() time.Time) ReconcilerOption {
	return func(o *reconcilerOptions) { o.now = now }
}

// NewReconciler creates an empty item set for the local user self, starting
// at cursor start.
func NewReconciler[T Item](self int64, start Cursor, opts ...ReconcilerOption) *Reconciler[T] {
	o := reconcilerOptions{
		window: DefaultPendingWindow,
		kind:   KindComment,
		now:    time.Now,
	}
	for _, opt := range opts {
		opt(&o)
	}

	return &Reconciler[T]{
		known:  make(map[int64]int),
		cursor: start,
		self:   self,
		window: o.window,
		kind:   o.kind,
		now:    o.now,
	}
}

// Merge folds a fetched batch into local state. Items whose id is already
// held (or repeated within the batch) are dropped; the rest are appended in
// batch order, or replace the pending item they echo. The cursor advances to
// the newest accepted item and never moves backward.
func (r *Reconciler[T]) Merge(batch []T) MergeResult {
	r.mu.Lock()
	defer r.mu.Unlock()

	result := MergeResult{Before: r.cursor, After: r.cursor}
	if len(batch) == 0 {
		return result
	}

	var fresh []T
	for _, item := range batch {
		id := item.ItemID()
		if id == 0 {
			continue
		}
		if _, ok := r.known[id]; ok {
			continue
		}

		if idx, ok := r.matchPending(item); ok {
			r.entries[idx] = entry[T]{item: item}
			r.known[id] = idx
			result.Replaced++
		} else {
			r.entries = append(r.entries, entry[T]{item: item})
			r.known[id] = len(r.entries) - 1
			result.Added++
		}
		r.cursor = r.cursor.Advance(item.ItemTime())
		result.IDs = append(result.IDs, id)
		fresh = append(fresh, item)
	}

	result.After = r.cursor
	result.Notice = r.noticeFor(fresh)
	return result
}

// noticeFor applies the notification policy: items from the local user never
// notify, and the notice names the most recent other author.
func (r *Reconciler[T]) noticeFor(fresh []T) *Notice {
	var (
		count  int
		latest T
	)
	for _, item := range fresh {
		if item.ItemAuthorID() == r.self {
			continue
		}
		if count == 0 || !item.ItemTime().Before(latest.ItemTime()) {
			latest = item
		}
		count++
	}
	if count == 0 {
		return nil
	}

	return &Notice{
		Kind:   r.kind,
		Count:  count,
		Author: session.FirstName(latest.ItemAuthorName()),
	}
}

// matchPending finds the pending slot a server item echoes: same author,
// same content, created within the pending window.
func (r *Reconciler[T]) matchPending(item T) (int, bool) {
	for i, e := range r.entries {
		if !e.pending() {
			continue
		}
		if e.item.ItemAuthorID() != item.ItemAuthorID() {
			continue
		}
		if e.item.ItemContent() != item.ItemContent() {
			continue
		}
		if absDuration(e.item.ItemTime().Sub(item.ItemTime())) > r.window {
			continue
		}
		return i, true
	}
	return 0, false
}

// AddPending appends a provisional local item and returns its local id.
func (r *Reconciler[T]) AddPending(item T) string {
	r.mu.Lock()
	defer r.mu.Unlock()

	localID := uuid.New().String()
	r.entries = append(r.entries, entry[T]{item: item, localID: localID})
	return localID
}

// Confirm folds a server-confirmed write into local state. If the poller
// already merged the same id, the pending slot (if any) is dropped and
// Confirm reports false. Otherwise the item takes the pending slot, or is
// appended when localID is empty, and the cursor advances to its time.
func (r *Reconciler[T]) Confirm(localID string, item T) (bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	id := item.ItemID()
	if id == 0 {
		return false, fmt.Errorf("confirming item without id")
	}

	slot := -1
	if localID != "" {
		slot = r.indexOfLocal(localID)
		if slot < 0 {
			if _, ok := r.known[id]; !ok {
				return false, fmt.Errorf("%w: %s", ErrUnknownPending, localID)
			}
		}
	}

	if _, ok := r.known[id]; ok {
		if slot >= 0 {
			r.removeAt(slot)
		}
		return false, nil
	}

	if slot >= 0 {
		r.entries[slot] = entry[T]{item: item}
		r.known[id] = slot
	} else {
		r.entries = append(r.entries, entry[T]{item: item})
		r.known[id] = len(r.entries) - 1
	}
	r.cursor = r.cursor.Advance(item.ItemTime())
	return true, nil
}

// Discard drops a pending item after its write failed.
func (r *Reconciler[T]) Discard(localID string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()

	idx := r.indexOfLocal(localID)
	if idx < 0 {
		return false
	}
	r.removeAt(idx)
	return true
}

// Remove drops a confirmed item after an explicit user delete.
func (r *Reconciler[T]) Remove(id int64) bool {
	r.mu.Lock()
	defer r.mu.Unlock()

	idx, ok := r.known[id]
	if !ok {
		return false
	}
	r.removeAt(idx)
	return true
}

// Has reports whether an item with id is held.
func (r *Reconciler[T]) Has(id int64) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	_, ok := r.known[id]
	return ok
}

// Items returns a copy of local state in display order.
func (r *Reconciler[T]) Items() []T {
	r.mu.Lock()
	defer r.mu.Unlock()

	items := make([]T, len(r.entries))
	for i, e := range r.entries {
		items[i] = e.item
	}
	return items
}

// Pending returns the number of unconfirmed local items.
func (r *Reconciler[T]) Pending() int {
	r.mu.Lock()
	defer r.mu.Unlock()

	n := 0
	for _, e := range r.entries {
		if e.pending() {
			n++
		}
	}
	return n
}

func (r *Reconciler[T]) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.entries)
}

func (r *Reconciler[T]) Cursor() Cursor {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.cursor
}

// Now is the clock used for pending items.
func (r *Reconciler[T]) Now() time.Time {
	return r.now()
}

func (r *Reconciler[T]) indexOfLocal(localID string) int {
	for i, e := range r.entries {
		if e.localID == localID {
			return i
		}
	}
	return -1
}

// removeAt deletes slot idx and reindexes the ids after it. Caller holds mu.
func (r *Reconciler[T]) removeAt(idx int) {
	if id := r.entries[idx].item.ItemID(); id != 0 && !r.entries[idx].pending() {
		delete(r.known, id)
	}
	r.entries = append(r.entries[:idx], r.entries[idx+1:]...)
	for i := idx; i < len(r.entries); i++ {
		if !r.entries[i].pending() {
			r.known[r.entries[i].item.ItemID()] = i
		}
	}
}

func absDuration(d time.Duration) time.Duration {
	if d < 0 {
		return -d
	}
	return d
}
