package sync

import (
	"errors"
	"testing"
)

const self = 1

func TestMergeScenario(t *testing.T) {
	r := NewReconciler[testItem](self, Cursor{})

	first := r.Merge([]testItem{item(1, 2, "Alex Doe", "hi", 5)})
	if first.Added != 1 {
		t.Fatalf("expected 1 added, got %d", first.Added)
	}
	if r.Cursor().String() != "2024-01-01T00:00:05Z" {
		t.Errorf("expected cursor at 00:00:05, got %s", r.Cursor())
	}
	if first.Notice == nil || first.Notice.Count != 1 || first.Notice.Author != "Alex" {
		t.Errorf("expected notice for Alex, got %+v", first.Notice)
	}

	second := r.Merge([]testItem{
		item(1, 2, "Alex Doe", "hi", 5),
		item(2, self, "Me", "hey", 10),
	})
	if second.Added != 1 {
		t.Errorf("expected only id 2 to be added, got %d", second.Added)
	}
	if second.Notice != nil {
		t.Errorf("own comment must not notify, got %+v", second.Notice)
	}
	if r.Cursor().String() != "2024-01-01T00:00:10Z" {
		t.Errorf("expected cursor at 00:00:10, got %s", r.Cursor())
	}
	if r.Len() != 2 {
		t.Errorf("expected 2 items, got %d", r.Len())
	}
}

func TestMergeDeduplicatesWithinBatch(t *testing.T) {
	r := NewReconciler[testItem](self, Cursor{})

	res := r.Merge([]testItem{
		item(3, 2, "Bo", "a", 1),
		item(3, 2, "Bo", "a", 1),
		item(0, 2, "Bo", "no id", 2),
	})
	if res.Added != 1 || r.Len() != 1 {
		t.Errorf("expected a single item, got added=%d len=%d", res.Added, r.Len())
	}
}

func TestMergeNeverMovesCursorBackward(t *testing.T) {
	r := NewReconciler[testItem](self, CursorAt(at(30)))

	res := r.Merge([]testItem{item(9, 2, "Bo", "late", 20)})
	if res.Added != 1 {
		t.Fatalf("item should still be added, got %d", res.Added)
	}
	if !r.Cursor().Equal(CursorAt(at(30))) {
		t.Errorf("cursor moved backward to %s", r.Cursor())
	}

	empty := r.Merge(nil)
	if empty.Changed() || !empty.After.Equal(CursorAt(at(30))) {
		t.Errorf("empty batch must be a no-op, got %+v", empty)
	}
}

func TestMergePreservesOrder(t *testing.T) {
	r := NewReconciler[testItem](self, Cursor{})
	r.Merge([]testItem{item(5, 2, "A", "x", 1), item(4, 2, "A", "y", 2)})
	r.Merge([]testItem{item(6, 2, "A", "z", 3)})

	var ids []int64
	for _, it := range r.Items() {
		ids = append(ids, it.ItemID())
	}
	want := []int64{5, 4, 6}
	for i := range want {
		if ids[i] != want[i] {
			t.Fatalf("expected order %v, got %v", want, ids)
		}
	}
}

func TestNoticeNamesMostRecentAuthor(t *testing.T) {
	r := NewReconciler[testItem](self, Cursor{})

	res := r.Merge([]testItem{
		item(1, 2, "Alex Doe", "one", 1),
		item(2, 3, "Sam Roe", "two", 3),
		item(3, self, "Me", "mine", 4),
		item(4, 2, "Alex Doe", "three", 2),
	})
	if res.Notice == nil {
		t.Fatal("expected a notice")
	}
	if res.Notice.Count != 3 {
		t.Errorf("expected 3 items from others, got %d", res.Notice.Count)
	}
	if res.Notice.Author != "Sam" {
		t.Errorf("expected latest author Sam, got %s", res.Notice.Author)
	}
	if res.Notice.Kind != KindComment {
		t.Errorf("expected kind %s, got %s", KindComment, res.Notice.Kind)
	}
}

func TestPendingReplacedByEcho(t *testing.T) {
	r := NewReconciler[testItem](self, Cursor{})
	r.Merge([]testItem{item(1, 2, "Bo", "first", 1)})

	localID := r.AddPending(testItem{author: self, name: "Me", content: "hello", at: at(9)})
	if r.Pending() != 1 {
		t.Fatalf("expected one pending item, got %d", r.Pending())
	}

	res := r.Merge([]testItem{item(5, 2, "Bo", "hi", 9), item(42, self, "Me", "hello", 10)})
	if res.Replaced != 1 || res.Added != 1 {
		t.Errorf("expected one add and the echo to replace pending, got %+v", res)
	}
	if len(res.IDs) != 2 || res.IDs[0] != 5 || res.IDs[1] != 42 {
		t.Errorf("expected accepted ids [5 42], got %v", res.IDs)
	}
	if r.Pending() != 0 || r.Len() != 3 {
		t.Errorf("expected 3 confirmed items, got len=%d pending=%d", r.Len(), r.Pending())
	}
	if items := r.Items(); items[1].ItemID() != 42 {
		t.Errorf("echo should keep the pending slot, got %+v", items)
	}

	if ok, err := r.Confirm(localID, item(42, self, "Me", "hello", 10)); ok || err != nil {
		t.Errorf("confirm after echo should be a no-op, got %v %v", ok, err)
	}
	if r.Len() != 3 {
		t.Errorf("expected no duplicate after confirm, got %d", r.Len())
	}
}

func TestPendingOutsideWindowIsNotMatched(t *testing.T) {
	r := NewReconciler[testItem](self, Cursor{})
	r.AddPending(testItem{author: self, content: "hello", at: at(0)})

	res := r.Merge([]testItem{item(42, self, "Me", "hello", 120)})
	if res.Added != 1 || res.Replaced != 0 {
		t.Errorf("echo outside window should append, got %+v", res)
	}
	if r.Pending() != 1 {
		t.Errorf("pending item should remain, got %d", r.Pending())
	}
}

func TestConfirmRaceWithPoller(t *testing.T) {
	r := NewReconciler[testItem](self, Cursor{})
	hello := item(42, self, "Me", "hello", 10)

	// Poller wins: the item arrives before the POST returns.
	r.Merge([]testItem{hello})
	inserted, err := r.Confirm("", hello)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if inserted {
		t.Error("confirm must not insert an id the poller merged")
	}

	// POST wins: the later poll is deduped.
	r2 := NewReconciler[testItem](self, Cursor{})
	if ok, _ := r2.Confirm("", hello); !ok {
		t.Fatal("first confirm should insert")
	}
	if !r2.Cursor().Equal(CursorAt(at(10))) {
		t.Errorf("confirm should advance cursor, got %s", r2.Cursor())
	}
	if res := r2.Merge([]testItem{hello}); res.Changed() {
		t.Errorf("poll after confirm should be deduped, got %+v", res)
	}

	for _, rec := range []*Reconciler[testItem]{r, r2} {
		if rec.Len() != 1 {
			t.Errorf("expected exactly one item with id 42, got %d", rec.Len())
		}
	}
}

func TestConfirmUnknownPending(t *testing.T) {
	r := NewReconciler[testItem](self, Cursor{})
	_, err := r.Confirm("missing", item(7, self, "Me", "x", 1))
	if !errors.Is(err, ErrUnknownPending) {
		t.Errorf("expected ErrUnknownPending, got %v", err)
	}
}

func TestRemoveReindexes(t *testing.T) {
	r := NewReconciler[testItem](self, Cursor{})
	r.Merge([]testItem{item(1, 2, "A", "a", 1), item(2, 2, "A", "b", 2), item(3, 2, "A", "c", 3)})

	if !r.Remove(1) {
		t.Fatal("expected remove to succeed")
	}
	if r.Has(1) || !r.Has(3) {
		t.Error("index not updated after remove")
	}
	if !r.Remove(3) || r.Len() != 1 {
		t.Errorf("expected one item left, got %d", r.Len())
	}
	if r.Remove(99) {
		t.Error("removing unknown id should report false")
	}
}

func TestDiscardPending(t *testing.T) {
	r := NewReconciler[testItem](self, Cursor{})
	localID := r.AddPending(testItem{author: self, content: "x", at: at(1)})

	if !r.Discard(localID) || r.Len() != 0 {
		t.Error("discard should drop the pending item")
	}
	if r.Discard(localID) {
		t.Error("second discard should report false")
	}
}
