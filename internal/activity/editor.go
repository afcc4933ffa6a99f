package activity

import (
	"context"
	"errors"
	"fmt"
	gosync "sync"
	"time"

	"go.uber.org/zap"

	"github.com/dgnsrekt/outingsync/internal/api"
	"github.com/dgnsrekt/outingsync/internal/sync"
)

// Updater sends a partial activity update.
type Updater interface {
	UpdateActivity(ctx context.Context, activityID int64, patch api.ActivityPatch) (*api.Activity, error)
}

// Editor applies user edits to the tracked activity optimistically and rolls
// them back if the backend rejects them.
type Editor struct {
	id       int64
	updater  Updater
	tracker  *Tracker
	alerter  sync.Alerter
	observer sync.WriteObserver
	timeout  time.Duration
	logger   *zap.Logger

	busy gosync.Mutex
}

// NewEditor creates an editor for activity id.
func NewEditor(id int64, updater Updater, tracker *Tracker, alerter sync.Alerter, timeout time.Duration, logger *zap.Logger) *Editor {
	if timeout <= 0 {
		timeout = api.DefaultTimeout
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Editor{
		id:      id,
		updater: updater,
		tracker: tracker,
		alerter: alerter,
		timeout: timeout,
		logger:  logger,
	}
}

// SetObserver attaches a write observer. Call before first use.
func (e *Editor) SetObserver(o sync.WriteObserver) {
	e.observer = o
}

// Edit shows patch immediately, sends it, and folds in the server's answer.
// On failure the edit is rolled back, unless a newer server snapshot already
// replaced it, and one alert is raised.
func (e *Editor) Edit(ctx context.Context, patch api.ActivityPatch) (Snapshot, error) {
	if patch.Empty() {
		return Snapshot{}, ErrEmptyPatch
	}
	if !e.busy.TryLock() {
		return Snapshot{}, ErrEditInProgress
	}
	defer e.busy.Unlock()

	base, ok := e.tracker.Base()
	if !ok {
		return Snapshot{}, ErrNoSnapshot
	}

	next, err := NewSnapshot(patch.Apply(base.Activity))
	if err != nil {
		return base, err
	}
	if !CanTransition(base.Phase, next.Phase) {
		return base, fmt.Errorf("%w: %s to %s", ErrIllegalTransition, base.Phase, next.Phase)
	}

	version := e.tracker.applyLocal(next)

	reqCtx, cancel := context.WithTimeout(ctx, e.timeout)
	updated, err := e.updater.UpdateActivity(reqCtx, e.id, patch)
	cancel()

	if err == nil {
		var snap Snapshot
		snap, err = e.tracker.Fold(*updated)
		if err == nil {
			e.observe(sync.Confirmed)
			return snap, nil
		}
	}

	rolledBack := e.tracker.rollback(version)
	serr := sync.Classify(err)
	e.logger.Warn("activity edit failed",
		zap.Int64("activity_id", e.id),
		zap.String("error_kind", string(serr.Kind)),
		zap.Bool("rolled_back", rolledBack),
		zap.Error(err),
	)

	if e.alerter != nil {
		if aerr := e.alerter.Alert(ctx, "Could not update activity", alertMessage(err)); aerr != nil {
			e.logger.Debug("alert failed", zap.Error(aerr))
		}
	}
	e.observe(sync.Failed)

	current, _ := e.tracker.Snapshot()
	return current, serr
}

func (e *Editor) observe(s sync.WriteState) {
	if e.observer != nil {
		e.observer.ObserveWrite(KindActivity, s)
	}
}

func alertMessage(err error) string {
	switch {
	case errors.Is(err, api.ErrUnauthorized):
		return "You are not allowed to change this activity."
	case errors.Is(err, ErrIllegalTransition), errors.Is(err, ErrImpossibleFlags):
		return "The server returned an invalid activity state. Your change was undone."
	default:
		return "Your change was not saved and has been undone."
	}
}
