// Package app owns the local state of one activity: its comment thread and
// its snapshot, the loops that keep them in sync, and the gate that decides
// when those loops run.
package app

import (
	"context"
	"errors"
	"fmt"
	"sync/atomic"
	"time"

	"go.uber.org/zap"

	"github.com/dgnsrekt/outingsync/internal/activity"
	"github.com/dgnsrekt/outingsync/internal/api"
	"github.com/dgnsrekt/outingsync/internal/comments"
	"github.com/dgnsrekt/outingsync/internal/notify"
	"github.com/dgnsrekt/outingsync/internal/session"
	"github.com/dgnsrekt/outingsync/internal/sync"
)

// ActivityLoopName identifies the activity loop in logs and metrics.
const ActivityLoopName = "activity"

// Event topics published by the controller.
const (
	TopicComments = "comments"
	TopicActivity = "activity"
)

const toastTimeout = 5 * time.Second

// Backend is the API client plus credential swapping.
type Backend interface {
	api.Client
	SetToken(token string)
}

// Observer receives loop and write outcomes, e.g. a metrics collector.
type Observer interface {
	sync.Observer
	sync.WriteObserver
}

// Options configures an App.
type Options struct {
	ActivityID      int64
	Session         session.Session
	Timeout         time.Duration
	ShowProvisional bool

	// Notifier receives toasts and write-failure alerts.
	Notifier notify.Notifier
	// Publisher receives state events for live UI connections.
	Publisher notify.Publisher
	Observer  Observer
	Logger    *zap.Logger
}

// CommentsEvent is published after new comments were merged.
type CommentsEvent struct {
	Merge sync.MergeResult `json:"merge"`
	Items []api.Comment    `json:"items"`
}

// App is the sync controller for one activity.
type App struct {
	activityID int64
	backend    Backend
	notifier   notify.Notifier
	publisher  notify.Publisher
	logger     *zap.Logger

	thread       *comments.Thread
	tracker      *activity.Tracker
	editor       *activity.Editor
	activityLoop *sync.Loop[api.Activity]
	gate         *sync.Gate

	modal      atomic.Bool
	votingView atomic.Bool
}

// New builds both loops for opts.ActivityID and attaches them to a closed
// gate. The backend's credential is taken from opts.Session.
func New(backend Backend, opts Options) (*App, error) {
	if opts.ActivityID < 1 {
		return nil, errors.New("activity id must be positive")
	}
	if opts.Logger == nil {
		opts.Logger = zap.NewNop()
	}
	if opts.Notifier == nil {
		opts.Notifier = &notify.NoopNotifier{}
	}

	a := &App{
		activityID: opts.ActivityID,
		backend:    backend,
		notifier:   opts.Notifier,
		publisher:  opts.Publisher,
		logger:     opts.Logger,
		gate:       sync.NewGate(opts.Logger),
	}

	var observer sync.Observer
	var writeObserver sync.WriteObserver
	if opts.Observer != nil {
		observer, writeObserver = opts.Observer, opts.Observer
	}

	// Manual refreshes pass through the same guards as timer ticks.
	gateGuard := sync.Guard{Reason: "gate closed", Active: func() bool { return !a.gate.Open() }}
	modalGuard := sync.Guard{Reason: "modal open", Active: a.modal.Load}

	thread, err := comments.NewThread(backend, opts.ActivityID, opts.Session, comments.Options{
		Timeout:         opts.Timeout,
		ShowProvisional: opts.ShowProvisional,
		Guards:          []sync.Guard{gateGuard, modalGuard},
		Alerter:         opts.Notifier,
		Observer:        observer,
		WriteObserver:   writeObserver,
		OnApplied:       a.commentsApplied,
		Logger:          opts.Logger,
	})
	if err != nil {
		return nil, err
	}
	a.thread = thread

	a.tracker = activity.NewTracker(opts.Session.UserID, opts.Logger)
	a.editor = activity.NewEditor(opts.ActivityID, backend, a.tracker, opts.Notifier, opts.Timeout, opts.Logger)
	if writeObserver != nil {
		a.editor.SetObserver(writeObserver)
	}

	id := opts.ActivityID
	a.activityLoop, err = sync.NewLoop(sync.LoopConfig[api.Activity]{
		Name:     ActivityLoopName,
		Interval: sync.ActivityInterval,
		Timeout:  opts.Timeout,
		Fetcher: sync.FetchFunc[api.Activity](func(ctx context.Context, _ sync.Cursor) ([]api.Activity, error) {
			act, err := backend.GetActivity(ctx, id)
			if err != nil {
				return nil, err
			}
			return []api.Activity{*act}, nil
		}),
		Merger: a.tracker,
		Guards: []sync.Guard{
			gateGuard,
			modalGuard,
			{Reason: "voting view open", Active: a.votingView.Load},
		},
		OnApplied: a.activityApplied,
		Observer:  observer,
		Logger:    opts.Logger.With(zap.Int64("activity_id", id)),
	})
	if err != nil {
		return nil, fmt.Errorf("creating activity loop: %w", err)
	}

	a.gate.Attach(a.thread.Loop())
	a.gate.Attach(a.activityLoop)
	a.SetToken(opts.Session.Token)

	return a, nil
}

func (a *App) ActivityID() int64 { return a.activityID }

// Thread is the synced comment thread.
func (a *App) Thread() *comments.Thread { return a.thread }

// Tracker is the synced activity snapshot.
func (a *App) Tracker() *activity.Tracker { return a.tracker }

// Gate decides when the loops run.
func (a *App) Gate() *sync.Gate { return a.gate }

// CommentsLoop and ActivityLoop expose the pollers for diagnostics.
func (a *App) CommentsLoop() *sync.Loop[api.Comment] { return a.thread.Loop() }

func (a *App) ActivityLoop() *sync.Loop[api.Activity] { return a.activityLoop }

// SetLifecycle forwards a foreground/background transition to the gate.
func (a *App) SetLifecycle(l sync.Lifecycle) {
	a.gate.SetLifecycle(l)
}

// SetToken swaps the credential. An empty token closes the gate.
func (a *App) SetToken(token string) {
	a.backend.SetToken(token)
	a.gate.SetCredential(session.New(token, 0, "").Valid())
}

// SetModal marks a blocking modal as open or closed. Both loops skip their
// ticks while it is open.
func (a *App) SetModal(open bool) {
	a.modal.Store(open)
}

func (a *App) ModalOpen() bool { return a.modal.Load() }

// SetVotingView marks the voting view as shown or hidden. The activity loop
// skips its ticks while the view is shown so the snapshot does not change
// under the user's interaction; polling resumes when it is hidden.
func (a *App) SetVotingView(open bool) {
	a.votingView.Store(open)
}

func (a *App) VotingViewOpen() bool { return a.votingView.Load() }

// Comments returns the thread in display order.
func (a *App) Comments() []api.Comment { return a.thread.Items() }

// SetDraft replaces the comment draft.
func (a *App) SetDraft(text string) { a.thread.Draft().Set(text) }

func (a *App) Draft() string { return a.thread.Draft().Text() }

// Submit posts the current draft. Confirmed comments are published the same
// way polled ones are.
func (a *App) Submit(ctx context.Context) (sync.SubmitResult[api.Comment], error) {
	res, err := a.thread.Submit(ctx)
	if err == nil && res.Inserted {
		a.publish(TopicComments, CommentsEvent{Items: []api.Comment{res.Item}})
	}
	return res, err
}

// Activity returns the displayed snapshot.
func (a *App) Activity() (activity.Snapshot, bool) { return a.tracker.Snapshot() }

// EditActivity applies patch optimistically and publishes the result, which
// is the rolled-back snapshot when the edit failed.
func (a *App) EditActivity(ctx context.Context, patch api.ActivityPatch) (activity.Snapshot, error) {
	snap, err := a.editor.Edit(ctx, patch)
	if current, ok := a.tracker.Snapshot(); ok && !errors.Is(err, activity.ErrEditInProgress) {
		a.publish(TopicActivity, current)
	}
	return snap, err
}

// Refresh polls both resources once, outside the timers. Ticks are skipped
// while the gate is closed.
func (a *App) Refresh(ctx context.Context) (sync.TickResult, sync.TickResult) {
	return a.thread.Refresh(ctx), a.activityLoop.Tick(ctx)
}

// Close stops both loops and waits for in-flight requests to settle.
func (a *App) Close() {
	a.gate.Close()
	a.thread.Loop().Drain()
	a.activityLoop.Drain()
}

func (a *App) commentsApplied(res sync.TickResult) {
	if !res.Merge.Changed() {
		return
	}
	accepted := make(map[int64]bool, len(res.Merge.IDs))
	for _, id := range res.Merge.IDs {
		accepted[id] = true
	}
	var items []api.Comment
	for _, c := range a.thread.Items() {
		if accepted[c.ID] {
			items = append(items, c)
		}
	}
	a.publish(TopicComments, CommentsEvent{Merge: res.Merge, Items: items})
	a.toast(res.Merge.Notice)
}

func (a *App) activityApplied(res sync.TickResult) {
	if !res.Merge.Changed() {
		return
	}
	if snap, ok := a.tracker.Snapshot(); ok {
		a.publish(TopicActivity, snap)
	}
	a.toast(res.Merge.Notice)
}

func (a *App) toast(n *sync.Notice) {
	if n == nil {
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), toastTimeout)
	defer cancel()
	if err := a.notifier.Toast(ctx, *n); err != nil {
		a.logger.Debug("toast failed", zap.String("kind", n.Kind), zap.Error(err))
	}
}

func (a *App) publish(topic string, payload any) {
	if a.publisher != nil {
		a.publisher.Publish(topic, payload)
	}
}
