package sync

import (
	"context"
	"time"
)

// Item is anything the Reconciler can hold: it has a backend identity, an
// author and a creation time. ItemID returns 0 for local items the backend
// has not confirmed yet.
type Item interface {
	ItemID() int64
	ItemAuthorID() int64
	ItemAuthorName() string
	ItemTime() time.Time
	ItemContent() string
}

// Fetcher issues one bounded read scoped by the current cursor.
type Fetcher[T any] interface {
	Fetch(ctx context.Context, since Cursor) ([]T, error)
}

// FetchFunc adapts a function to Fetcher.
type FetchFunc[T any] func(ctx context.Context, since Cursor) ([]T, error)

func (f FetchFunc[T]) Fetch(ctx context.Context, since Cursor) ([]T, error) {
	return f(ctx, since)
}

// Merger folds a fetched batch into local state and owns the cursor.
type Merger[T any] interface {
	Merge(batch []T) MergeResult
	Cursor() Cursor
}

// Notice is a one-shot UI notification for changes that came from others.
// Kind is the item kind ("comment", "activity"); Detail carries kind-specific
// context such as the new phase.
type Notice struct {
	Kind   string `json:"kind"`
	Count  int    `json:"count"`
	Author string `json:"author,omitempty"`
	Detail string `json:"detail,omitempty"`
}

// MergeResult describes what one merge changed.
type MergeResult struct {
	Added    int `json:"added"`
	Replaced int `json:"replaced"`
	// IDs lists the accepted items, added or replaced, in batch order.
	IDs    []int64 `json:"ids,omitempty"`
	Before Cursor  `json:"before"`
	After  Cursor  `json:"after"`
	Notice *Notice `json:"notice,omitempty"`
}

// Changed reports whether the merge touched local state.
func (r MergeResult) Changed() bool {
	return r.Added > 0 || r.Replaced > 0
}
