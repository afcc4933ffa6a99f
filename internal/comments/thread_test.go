package comments

import (
	"context"
	"errors"
	gosync "sync"
	"testing"
	"time"

	"github.com/dgnsrekt/outingsync/internal/api"
	"github.com/dgnsrekt/outingsync/internal/session"
	"github.com/dgnsrekt/outingsync/internal/sync"
)

var t0 = time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)

// mockClient serves a fixed comment list filtered by since.
type mockClient struct {
	mu        gosync.Mutex
	comments  []api.Comment
	sinces    []string
	createErr error
	created   api.Comment
}

func (m *mockClient) ListComments(ctx context.Context, activityID int64, since string) ([]api.Comment, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.sinces = append(m.sinces, since)

	cursor, err := sync.ParseCursor(since)
	if err != nil {
		return nil, err
	}
	var out []api.Comment
	for _, c := range m.comments {
		if cursor.IsZero() || c.CreatedAt.After(cursor.Time()) {
			out = append(out, c)
		}
	}
	return out, nil
}

func (m *mockClient) CreateComment(ctx context.Context, activityID int64, content string) (*api.Comment, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.createErr != nil {
		return nil, m.createErr
	}
	c := m.created
	c.Content = content
	m.comments = append(m.comments, c)
	return &c, nil
}

func (m *mockClient) GetActivity(ctx context.Context, activityID int64) (*api.Activity, error) {
	return nil, errors.New("not implemented")
}

func (m *mockClient) UpdateActivity(ctx context.Context, activityID int64, patch api.ActivityPatch) (*api.Activity, error) {
	return nil, errors.New("not implemented")
}

func comment(id, user int64, name, content string, sec int) api.Comment {
	return api.Comment{
		ID:        id,
		Content:   content,
		CreatedAt: t0.Add(time.Duration(sec) * time.Second),
		User:      api.User{ID: user, Name: name},
	}
}

func TestThreadRefreshAndSubmit(t *testing.T) {
	client := &mockClient{
		comments: []api.Comment{comment(1, 2, "Alex Doe", "hi", 5)},
		created:  comment(42, 1, "Me", "", 10),
	}
	sess := session.New("token", 1, "Me")

	thread, err := NewThread(client, 7, sess, Options{})
	if err != nil {
		t.Fatalf("creating thread: %v", err)
	}

	res := thread.Refresh(context.Background())
	if res.Merge.Notice == nil || res.Merge.Notice.Author != "Alex" {
		t.Errorf("expected notice from Alex, got %+v", res.Merge.Notice)
	}

	thread.Draft().Set("hello")
	sub, err := thread.Submit(context.Background())
	if err != nil {
		t.Fatalf("submit: %v", err)
	}
	if !sub.Inserted || sub.Item.ID != 42 {
		t.Errorf("unexpected submit result %+v", sub)
	}

	// The next poll sees our own comment; it must not duplicate or notify.
	res = thread.Refresh(context.Background())
	if res.Merge.Changed() || res.Merge.Notice != nil {
		t.Errorf("echo of own comment changed state: %+v", res.Merge)
	}

	if len(thread.Items()) != 2 {
		t.Errorf("expected 2 comments, got %d", len(thread.Items()))
	}
	if last := client.sinces[len(client.sinces)-1]; last != "2024-01-01T00:00:10Z" {
		t.Errorf("expected since 00:00:10, got %q", last)
	}
}

func TestThreadSubmitFailure(t *testing.T) {
	client := &mockClient{createErr: &api.StatusError{Code: 500}}
	thread, err := NewThread(client, 7, session.New("token", 1, "Me"), Options{ShowProvisional: true})
	if err != nil {
		t.Fatal(err)
	}

	thread.Draft().Set("hello")
	if _, err := thread.Submit(context.Background()); err == nil {
		t.Fatal("expected error")
	}
	if thread.Draft().Text() != "hello" {
		t.Errorf("draft should be restored, got %q", thread.Draft().Text())
	}
	if len(thread.Items()) != 0 || thread.Pending() != 0 {
		t.Error("failed submission must leave no items behind")
	}
}
