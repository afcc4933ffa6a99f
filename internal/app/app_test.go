package app

import (
	"context"
	"net/http"
	"net/http/httptest"
	gosync "sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/dgnsrekt/outingsync/internal/activity"
	"github.com/dgnsrekt/outingsync/internal/api"
	"github.com/dgnsrekt/outingsync/internal/config"
	"github.com/dgnsrekt/outingsync/internal/fakeapi"
	"github.com/dgnsrekt/outingsync/internal/session"
	"github.com/dgnsrekt/outingsync/internal/sync"
)

const activityID = 7

type recordingNotifier struct {
	mu     gosync.Mutex
	toasts []sync.Notice
	alerts []string
}

func (n *recordingNotifier) Toast(_ context.Context, notice sync.Notice) error {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.toasts = append(n.toasts, notice)
	return nil
}

func (n *recordingNotifier) Alert(_ context.Context, title, _ string) error {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.alerts = append(n.alerts, title)
	return nil
}

func (n *recordingNotifier) counts() (int, int) {
	n.mu.Lock()
	defer n.mu.Unlock()
	return len(n.toasts), len(n.alerts)
}

type recordingPublisher struct {
	mu       gosync.Mutex
	topics   []string
	comments []CommentsEvent
}

func (p *recordingPublisher) Publish(topic string, payload any) int {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.topics = append(p.topics, topic)
	if ev, ok := payload.(CommentsEvent); ok {
		p.comments = append(p.comments, ev)
	}
	return 1
}

// commentIDs returns the ids carried by each published comments event.
func (p *recordingPublisher) commentIDs() [][]int64 {
	p.mu.Lock()
	defer p.mu.Unlock()
	out := make([][]int64, 0, len(p.comments))
	for _, ev := range p.comments {
		ids := make([]int64, 0, len(ev.Items))
		for _, c := range ev.Items {
			ids = append(ids, c.ID)
		}
		out = append(out, ids)
	}
	return out
}

func (p *recordingPublisher) count(topic string) int {
	p.mu.Lock()
	defer p.mu.Unlock()
	n := 0
	for _, t := range p.topics {
		if t == topic {
			n++
		}
	}
	return n
}

type harness struct {
	app       *App
	notifier  *recordingNotifier
	publisher *recordingPublisher
	url       string
	requests  map[string]*atomic.Int64

	// holdPosts, when set, delays comment POST responses until it is closed.
	// The backend stores the comment before the hold.
	holdMu    gosync.Mutex
	holdPosts chan struct{}
	posted    atomic.Int64
}

func (h *harness) calls(path string) int64 {
	return h.requests[path].Load()
}

func (h *harness) hold() chan struct{} {
	h.holdMu.Lock()
	defer h.holdMu.Unlock()
	h.holdPosts = make(chan struct{})
	return h.holdPosts
}

func (h *harness) held() chan struct{} {
	h.holdMu.Lock()
	defer h.holdMu.Unlock()
	return h.holdPosts
}

// activate foregrounds the app and waits until both immediate ticks finished.
func (h *harness) activate(t *testing.T) {
	t.Helper()
	h.app.SetLifecycle(sync.Active)
	require.Eventually(t, func() bool {
		return h.app.CommentsLoop().Stats().Snapshot().Ticks >= 1 &&
			h.app.ActivityLoop().Stats().Snapshot().Ticks >= 1
	}, 2*time.Second, 5*time.Millisecond)
}

func newHarness(t *testing.T, failRate float64, token string, opts ...func(*Options)) *harness {
	t.Helper()
	logger := zap.NewNop()

	cfg := &config.FakeAPIConfig{
		Users: []config.FakeUser{
			{Token: "dev-token", ID: 1, Name: "Dev User"},
			{Token: "alex-token", ID: 2, Name: "Alex Doe"},
		},
		ActivityID: activityID,
		Title:      "Picnic",
		FailRate:   failRate,
	}
	srv := fakeapi.NewServer(fakeapi.NewStore(nil), cfg, logger)
	srv.Seed()
	router := fakeapi.NewRouter(srv, logger)

	h := &harness{
		notifier:  &recordingNotifier{},
		publisher: &recordingPublisher{},
		requests: map[string]*atomic.Int64{
			"/activities/7":          {},
			"/activities/7/comments": {},
		},
	}
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method == http.MethodGet {
			if c, ok := h.requests[r.URL.Path]; ok {
				c.Add(1)
			}
		}
		release := h.held()
		if r.Method != http.MethodPost || release == nil {
			router.ServeHTTP(w, r)
			return
		}
		rec := httptest.NewRecorder()
		router.ServeHTTP(rec, r)
		h.posted.Add(1)
		<-release
		for k, v := range rec.Header() {
			w.Header()[k] = v
		}
		w.WriteHeader(rec.Code)
		_, _ = w.Write(rec.Body.Bytes())
	}))
	t.Cleanup(ts.Close)
	h.url = ts.URL

	options := Options{
		ActivityID: activityID,
		Session:    session.New(token, 1, "Dev User"),
		Timeout:    2 * time.Second,
		Notifier:   h.notifier,
		Publisher:  h.publisher,
		Logger:     logger,
	}
	for _, opt := range opts {
		opt(&options)
	}
	a, err := New(api.NewClient(ts.URL, "", 100, 2*time.Second, logger), options)
	require.NoError(t, err)
	t.Cleanup(a.Close)
	h.app = a

	return h
}

func polled(h *harness) func() bool {
	return func() bool {
		return h.calls("/activities/7/comments") == 1 && h.calls("/activities/7") == 1
	}
}

func TestGateControlsPolling(t *testing.T) {
	h := newHarness(t, 0, "dev-token")

	time.Sleep(50 * time.Millisecond)
	require.Zero(t, h.calls("/activities/7/comments"), "no requests while backgrounded")
	require.Zero(t, h.calls("/activities/7"), "no requests while backgrounded")

	h.app.SetLifecycle(sync.Active)
	require.Eventually(t, polled(h), 2*time.Second, 5*time.Millisecond)

	// the next scheduled tick is seconds away
	time.Sleep(100 * time.Millisecond)
	assert.EqualValues(t, 1, h.calls("/activities/7/comments"), "exactly one immediate comment fetch")

	h.app.SetLifecycle(sync.Background)
	assert.False(t, h.app.CommentsLoop().Running())
	assert.False(t, h.app.ActivityLoop().Running())
}

func TestGateReopenFetchesOnce(t *testing.T) {
	h := newHarness(t, 0, "dev-token")

	h.app.SetLifecycle(sync.Active)
	require.Eventually(t, polled(h), 2*time.Second, 5*time.Millisecond)

	h.app.SetLifecycle(sync.Background)
	h.app.CommentsLoop().Drain()
	h.app.ActivityLoop().Drain()
	comments, act := h.calls("/activities/7/comments"), h.calls("/activities/7")

	time.Sleep(150 * time.Millisecond)
	require.Equal(t, comments, h.calls("/activities/7/comments"), "no comment requests while backgrounded")
	require.Equal(t, act, h.calls("/activities/7"), "no activity requests while backgrounded")

	h.app.SetLifecycle(sync.Active)
	require.Eventually(t, func() bool {
		return h.calls("/activities/7/comments") == comments+1 && h.calls("/activities/7") == act+1
	}, 2*time.Second, 5*time.Millisecond, "one immediate request per loop on return")

	time.Sleep(100 * time.Millisecond)
	assert.Equal(t, comments+1, h.calls("/activities/7/comments"))
	assert.Equal(t, act+1, h.calls("/activities/7"))
}

func TestGateNeedsCredential(t *testing.T) {
	h := newHarness(t, 0, "")

	h.app.SetLifecycle(sync.Active)
	time.Sleep(50 * time.Millisecond)
	require.False(t, h.app.Gate().Open(), "gate must stay closed without a credential")
	require.Zero(t, h.calls("/activities/7/comments"))

	h.app.SetToken("dev-token")
	require.Eventually(t, polled(h), 2*time.Second, 5*time.Millisecond)

	h.app.SetToken("")
	assert.False(t, h.app.CommentsLoop().Running(), "credential loss stops the loops")
}

func TestRefreshWhileBackgrounded(t *testing.T) {
	h := newHarness(t, 0, "dev-token")

	comments, act := h.app.Refresh(context.Background())
	assert.Equal(t, sync.OutcomeSkipped, comments.Outcome)
	assert.Equal(t, "gate closed", comments.Reason)
	assert.Equal(t, sync.OutcomeSkipped, act.Outcome)
	assert.Equal(t, "gate closed", act.Reason)
	assert.Zero(t, h.calls("/activities/7/comments"))
	assert.Zero(t, h.calls("/activities/7"))

	_, loaded := h.app.Activity()
	assert.False(t, loaded, "local state must not change while backgrounded")
}

func TestSubmitThenPollKeepsOneCopy(t *testing.T) {
	h := newHarness(t, 0, "dev-token")
	h.activate(t)
	ctx := context.Background()

	h.app.SetDraft("hello")
	res, err := h.app.Submit(ctx)
	require.NoError(t, err)
	require.Equal(t, sync.Confirmed, res.State)
	require.NotZero(t, res.Item.ID)

	comments, _ := h.app.Refresh(ctx)
	assert.Equal(t, sync.OutcomeApplied, comments.Outcome)
	assert.Zero(t, comments.Merge.Added, "poll must not add the confirmed comment again")
	assert.Len(t, h.app.Comments(), 1)
	assert.Empty(t, h.app.Draft())

	toasts, _ := h.notifier.counts()
	assert.Zero(t, toasts, "own comments must not toast")
}

func TestSubmitFailureRestoresDraft(t *testing.T) {
	h := newHarness(t, 1, "dev-token")

	h.app.SetDraft("see you there")
	res, err := h.app.Submit(context.Background())
	require.Error(t, err)

	assert.Equal(t, sync.Failed, res.State)
	assert.Equal(t, "see you there", h.app.Draft(), "draft restored verbatim")
	assert.Empty(t, h.app.Comments())

	_, alerts := h.notifier.counts()
	assert.Equal(t, 1, alerts)
}

func TestOthersCommentsToast(t *testing.T) {
	h := newHarness(t, 0, "dev-token")
	h.activate(t)
	ctx := context.Background()

	alex := api.NewClient(h.url, "alex-token", 100, 2*time.Second, zap.NewNop())
	var ids []int64
	for _, text := range []string{"first", "second"} {
		c, err := alex.CreateComment(ctx, activityID, text)
		require.NoError(t, err)
		ids = append(ids, c.ID)
	}

	h.app.Refresh(ctx)

	h.notifier.mu.Lock()
	toasts := append([]sync.Notice(nil), h.notifier.toasts...)
	h.notifier.mu.Unlock()
	require.Len(t, toasts, 1)
	assert.Equal(t, 2, toasts[0].Count)
	assert.Equal(t, "Alex", toasts[0].Author)
	assert.Equal(t, [][]int64{ids}, h.publisher.commentIDs())

	// nothing new on the next poll
	h.app.Refresh(ctx)
	n, _ := h.notifier.counts()
	assert.Equal(t, 1, n)
}

func TestEchoOfPendingCommentIsPublished(t *testing.T) {
	h := newHarness(t, 0, "dev-token", func(o *Options) { o.ShowProvisional = true })
	h.activate(t)
	ctx := context.Background()

	release := h.hold()
	h.app.SetDraft("hello")
	done := make(chan sync.SubmitResult[api.Comment], 1)
	go func() {
		res, _ := h.app.Submit(ctx)
		done <- res
	}()
	require.Eventually(t, func() bool {
		return h.posted.Load() == 1 && h.app.Thread().Pending() == 1
	}, 2*time.Second, 5*time.Millisecond)

	alex := api.NewClient(h.url, "alex-token", 100, 2*time.Second, zap.NewNop())
	other, err := alex.CreateComment(ctx, activityID, "on my way")
	require.NoError(t, err)

	comments, _ := h.app.Refresh(ctx)
	require.Equal(t, sync.OutcomeApplied, comments.Outcome)
	assert.Equal(t, 1, comments.Merge.Added)
	assert.Equal(t, 1, comments.Merge.Replaced)

	published := h.publisher.commentIDs()
	require.Len(t, published, 1)
	require.Len(t, published[0], 2, "the echo and the new comment are both published")
	assert.Equal(t, other.ID, published[0][1])

	close(release)
	res := <-done
	assert.Equal(t, sync.Confirmed, res.State)
	assert.False(t, res.Inserted, "the poller already merged the echo")
	assert.Equal(t, published[0][0], res.Item.ID)
	assert.Len(t, h.publisher.commentIDs(), 1, "confirmed echo is not published twice")
	assert.Len(t, h.app.Comments(), 2)
}

func TestModalSkipsTicks(t *testing.T) {
	h := newHarness(t, 0, "dev-token")

	h.app.SetModal(true)
	h.activate(t)
	comments, act := h.app.Refresh(context.Background())
	assert.Equal(t, sync.OutcomeSkipped, comments.Outcome)
	assert.Equal(t, "modal open", comments.Reason)
	assert.Equal(t, sync.OutcomeSkipped, act.Outcome)
	assert.Zero(t, h.calls("/activities/7/comments"), "skipped tick must not hit the network")

	h.app.SetModal(false)
	comments, _ = h.app.Refresh(context.Background())
	assert.Equal(t, sync.OutcomeApplied, comments.Outcome)
}

func TestEditActivityToVoting(t *testing.T) {
	h := newHarness(t, 0, "dev-token")
	h.activate(t)
	ctx := context.Background()
	require.Eventually(t, func() bool { _, ok := h.app.Activity(); return ok }, 2*time.Second, 5*time.Millisecond)

	f, tr := false, true
	snap, err := h.app.EditActivity(ctx, api.ActivityPatch{Collecting: &f, Voting: &tr})
	require.NoError(t, err)
	assert.Equal(t, activity.Voting, snap.Phase)
	require.Eventually(t, func() bool { return h.publisher.count(TopicActivity) >= 2 },
		2*time.Second, 5*time.Millisecond, "events for load and edit")

	// moving back to collecting is refused locally
	_, err = h.app.EditActivity(ctx, api.ActivityPatch{Collecting: &tr, Voting: &f})
	assert.ErrorIs(t, err, activity.ErrIllegalTransition)
}

func TestVotingViewPausesActivityPolling(t *testing.T) {
	h := newHarness(t, 0, "dev-token")
	h.activate(t)
	ctx := context.Background()
	require.Eventually(t, func() bool { _, ok := h.app.Activity(); return ok }, 2*time.Second, 5*time.Millisecond)

	f, tr := false, true
	_, err := h.app.EditActivity(ctx, api.ActivityPatch{Collecting: &f, Voting: &tr})
	require.NoError(t, err)

	h.app.SetVotingView(true)
	alex := api.NewClient(h.url, "alex-token", 100, 2*time.Second, zap.NewNop())
	_, err = alex.UpdateActivity(ctx, activityID, api.ActivityPatch{Voting: &f, Finalized: &tr})
	require.NoError(t, err)

	comments, act := h.app.Refresh(ctx)
	assert.Equal(t, sync.OutcomeApplied, comments.Outcome, "comments keep polling")
	assert.Equal(t, sync.OutcomeSkipped, act.Outcome)
	assert.Equal(t, "voting view open", act.Reason)
	assert.Equal(t, activity.Voting, h.app.Tracker().Phase())

	h.app.SetVotingView(false)
	_, act = h.app.Refresh(ctx)
	assert.Equal(t, sync.OutcomeApplied, act.Outcome)
	assert.Equal(t, activity.Finalized, h.app.Tracker().Phase(), "phase set by another user arrives")
}

func TestEditActivityFailureRollsBack(t *testing.T) {
	h := newHarness(t, 1, "dev-token")
	h.activate(t)
	ctx := context.Background()
	require.Eventually(t, func() bool { _, ok := h.app.Activity(); return ok }, 2*time.Second, 5*time.Millisecond)

	title := "Beach day"
	snap, err := h.app.EditActivity(ctx, api.ActivityPatch{Title: &title})
	require.Error(t, err)
	assert.Equal(t, "Picnic", snap.Title, "edit rolled back")

	_, alerts := h.notifier.counts()
	assert.Equal(t, 1, alerts)
}

func TestNewRejectsBadActivity(t *testing.T) {
	_, err := New(api.NewClient("http://localhost", "", 1, time.Second, zap.NewNop()), Options{})
	assert.Error(t, err)
}
