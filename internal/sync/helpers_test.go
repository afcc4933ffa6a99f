package sync

import (
	"context"
	"errors"
	gosync "sync"
	"time"
)

type testItem struct {
	id      int64
	author  int64
	name    string
	content string
	at      time.Time
}

func (i testItem) ItemID() int64          { return i.id }
func (i testItem) ItemAuthorID() int64    { return i.author }
func (i testItem) ItemAuthorName() string { return i.name }
func (i testItem) ItemTime() time.Time    { return i.at }
func (i testItem) ItemContent() string    { return i.content }

var t0 = time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)

func at(sec int) time.Time {
	return t0.Add(time.Duration(sec) * time.Second)
}

func item(id, author int64, name, content string, sec int) testItem {
	return testItem{id: id, author: author, name: name, content: content, at: at(sec)}
}

// fakeFetcher serves queued batches and records every since cursor.
type fakeFetcher struct {
	mu      gosync.Mutex
	batches [][]testItem
	err     error
	calls   []Cursor
	block   chan struct{}
	entered chan struct{}
}

func (f *fakeFetcher) Fetch(ctx context.Context, since Cursor) ([]testItem, error) {
	f.mu.Lock()
	f.calls = append(f.calls, since)
	block := f.block
	entered := f.entered
	f.mu.Unlock()

	if entered != nil {
		entered <- struct{}{}
	}
	if block != nil {
		<-block
	}

	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err != nil {
		return nil, f.err
	}
	if len(f.batches) == 0 {
		return nil, nil
	}
	batch := f.batches[0]
	f.batches = f.batches[1:]
	return batch, nil
}

func (f *fakeFetcher) callCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.calls)
}

type fakePoster struct {
	mu    gosync.Mutex
	item  testItem
	err   error
	posts []string
}

func (p *fakePoster) Post(ctx context.Context, content string) (testItem, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.posts = append(p.posts, content)
	if p.err != nil {
		return testItem{}, p.err
	}
	return p.item, nil
}

type recordingAlerter struct {
	mu     gosync.Mutex
	titles []string
}

func (a *recordingAlerter) Alert(ctx context.Context, title, message string) error {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.titles = append(a.titles, title)
	return nil
}

func (a *recordingAlerter) count() int {
	a.mu.Lock()
	defer a.mu.Unlock()
	return len(a.titles)
}

var errBoom = errors.New("boom")
