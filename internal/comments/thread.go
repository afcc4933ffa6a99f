// Package comments wires the generic sync engine to one activity's comment
// thread.
package comments

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/dgnsrekt/outingsync/internal/api"
	"github.com/dgnsrekt/outingsync/internal/session"
	"github.com/dgnsrekt/outingsync/internal/sync"
)

// LoopName identifies the comment loop in logs and metrics.
const LoopName = "comments"

// Options configures a Thread.
type Options struct {
	Timeout         time.Duration
	ShowProvisional bool
	Guards          []sync.Guard
	Alerter         sync.Alerter
	Observer        sync.Observer
	WriteObserver   sync.WriteObserver
	OnApplied       func(sync.TickResult)
	Logger          *zap.Logger
}

// Thread is the synced comment thread of one activity.
type Thread struct {
	activityID int64
	reconciler *sync.Reconciler[api.Comment]
	loop       *sync.Loop[api.Comment]
	writer     *sync.Writer[api.Comment]
}

// NewThread builds the reconciler, loop and writer for activityID.
func NewThread(client api.Client, activityID int64, sess session.Session, opts Options) (*Thread, error) {
	if opts.Logger == nil {
		opts.Logger = zap.NewNop()
	}
	logger := opts.Logger.With(zap.Int64("activity_id", activityID))

	reconciler := sync.NewReconciler[api.Comment](sess.UserID, sync.Cursor{},
		sync.WithNoticeKind(sync.KindComment))

	fetcher := sync.FetchFunc[api.Comment](func(ctx context.Context, since sync.Cursor) ([]api.Comment, error) {
		return client.ListComments(ctx, activityID, since.String())
	})

	loop, err := sync.NewLoop(sync.LoopConfig[api.Comment]{
		Name:      LoopName,
		Interval:  sync.CommentInterval,
		Timeout:   opts.Timeout,
		Fetcher:   fetcher,
		Merger:    reconciler,
		Guards:    opts.Guards,
		OnApplied: opts.OnApplied,
		Observer:  opts.Observer,
		Logger:    logger,
	})
	if err != nil {
		return nil, fmt.Errorf("creating comment loop: %w", err)
	}

	poster := sync.PostFunc[api.Comment](func(ctx context.Context, content string) (api.Comment, error) {
		c, err := client.CreateComment(ctx, activityID, content)
		if err != nil {
			return api.Comment{}, err
		}
		return *c, nil
	})

	writer, err := sync.NewWriter(sync.WriterConfig[api.Comment]{
		Kind:            sync.KindComment,
		Poster:          poster,
		Reconciler:      reconciler,
		Alerter:         opts.Alerter,
		Timeout:         opts.Timeout,
		ShowProvisional: opts.ShowProvisional,
		Provisional: func(content string, at time.Time) api.Comment {
			return api.Comment{
				Content:   content,
				CreatedAt: at,
				User:      api.User{ID: sess.UserID, Name: sess.Name},
			}
		},
		Observer: opts.WriteObserver,
		Logger:   logger,
	})
	if err != nil {
		return nil, fmt.Errorf("creating comment writer: %w", err)
	}

	return &Thread{
		activityID: activityID,
		reconciler: reconciler,
		loop:       loop,
		writer:     writer,
	}, nil
}

func (t *Thread) ActivityID() int64 { return t.activityID }

// Loop is the comment poller, to be attached to a gate.
func (t *Thread) Loop() *sync.Loop[api.Comment] { return t.loop }

func (t *Thread) Draft() *sync.Draft { return t.writer.Draft() }

// Items returns the thread in display order.
func (t *Thread) Items() []api.Comment { return t.reconciler.Items() }

func (t *Thread) Cursor() sync.Cursor { return t.reconciler.Cursor() }

func (t *Thread) Pending() int { return t.reconciler.Pending() }

// Submit posts the current draft.
func (t *Thread) Submit(ctx context.Context) (sync.SubmitResult[api.Comment], error) {
	return t.writer.Submit(ctx)
}

// Remove drops a comment the user deleted.
func (t *Thread) Remove(id int64) bool { return t.reconciler.Remove(id) }

// Refresh runs one poll now, outside the timer.
func (t *Thread) Refresh(ctx context.Context) sync.TickResult {
	return t.loop.Tick(ctx)
}
