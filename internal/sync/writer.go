package sync

import (
	"context"
	"errors"
	"fmt"
	"strings"
	gosync "sync"
	"time"

	"go.uber.org/zap"

	"github.com/dgnsrekt/outingsync/internal/api"
)

// WriteState is the state of the current submission.
type WriteState string

const (
	Composing  WriteState = "composing"
	Submitting WriteState = "submitting"
	Confirmed  WriteState = "confirmed"
	Failed     WriteState = "failed"
)

// Draft is the user's input buffer.
type Draft struct {
	mu   gosync.Mutex
	text string
}

func (d *Draft) Set(text string) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.text = text
}

func (d *Draft) Text() string {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.text
}

// takeNonBlank clears and returns the draft unless it is blank, in which
// case the draft is left as it is.
func (d *Draft) takeNonBlank() (string, bool) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if strings.TrimSpace(d.text) == "" {
		return "", false
	}
	text := d.text
	d.text = ""
	return text, true
}

// Restore puts text back after a failed submission. If the user typed
// something new meanwhile, the restored text is placed above it.
func (d *Draft) Restore(text string) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.text == "" {
		d.text = text
		return
	}
	d.text = text + "\n" + d.text
}

// Poster sends one write to the backend and returns the canonical item.
type Poster[T Item] interface {
	Post(ctx context.Context, content string) (T, error)
}

// PostFunc adapts a function to Poster.
type PostFunc[T Item] func(ctx context.Context, content string) (T, error)

func (f PostFunc[T]) Post(ctx context.Context, content string) (T, error) {
	return f(ctx, content)
}

// Alerter surfaces a blocking error to the user.
type Alerter interface {
	Alert(ctx context.Context, title, message string) error
}

// WriteObserver receives the result of every submission.
type WriteObserver interface {
	ObserveWrite(kind string, result WriteState)
}

// WriterConfig holds the options for NewWriter.
type WriterConfig[T Item] struct {
	Kind       string
	Poster     Poster[T]
	Reconciler *Reconciler[T]
	Alerter    Alerter
	Timeout    time.Duration

	// ShowProvisional inserts a pending item before the POST completes.
	// Provisional builds it from the draft text.
	ShowProvisional bool
	Provisional     func(content string, at time.Time) T

	Observer WriteObserver
	Logger   *zap.Logger
}

// SubmitResult describes one finished submission.
type SubmitResult[T Item] struct {
	State WriteState
	Item  T
	// Inserted is false when the poller had already merged the item.
	Inserted bool
	Err      *SyncError
}

// Writer submits the draft optimistically and folds the confirmed item into
// the Reconciler. A failed submission restores the draft and raises one alert.
type Writer[T Item] struct {
	cfg   WriterConfig[T]
	draft *Draft

	mu    gosync.Mutex
	state WriteState
}

// NewWriter validates cfg and returns a writer in Composing state.
func NewWriter[T Item](cfg WriterConfig[T]) (*Writer[T], error) {
	if cfg.Poster == nil {
		return nil, errors.New("writer requires a poster")
	}
	if cfg.Reconciler == nil {
		return nil, errors.New("writer requires a reconciler")
	}
	if cfg.ShowProvisional && cfg.Provisional == nil {
		return nil, errors.New("provisional display requires a Provisional builder")
	}
	if cfg.Kind == "" {
		cfg.Kind = KindComment
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = api.DefaultTimeout
	}
	if cfg.Logger == nil {
		cfg.Logger = zap.NewNop()
	}

	return &Writer[T]{
		cfg:   cfg,
		draft: &Draft{},
		state: Composing,
	}, nil
}

func (w *Writer[T]) Draft() *Draft { return w.draft }

func (w *Writer[T]) State() WriteState {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.state
}

// Submit sends the current draft. The draft is cleared as soon as the
// submission starts. An empty draft is rejected with ErrEmptyDraft and a
// second call while one is in flight with ErrSubmitInProgress; neither alerts.
func (w *Writer[T]) Submit(ctx context.Context) (SubmitResult[T], error) {
	var result SubmitResult[T]

	w.mu.Lock()
	if w.state == Submitting {
		w.mu.Unlock()
		return result, ErrSubmitInProgress
	}
	content, ok := w.draft.takeNonBlank()
	if !ok {
		w.mu.Unlock()
		return result, ErrEmptyDraft
	}
	w.state = Submitting
	w.mu.Unlock()

	var localID string
	if w.cfg.ShowProvisional {
		localID = w.cfg.Reconciler.AddPending(w.cfg.Provisional(content, w.cfg.Reconciler.Now()))
	}

	reqCtx, cancel := context.WithTimeout(ctx, w.cfg.Timeout)
	item, err := w.cfg.Poster.Post(reqCtx, content)
	cancel()

	if err != nil {
		return w.fail(ctx, localID, content, err), err
	}

	inserted, err := w.cfg.Reconciler.Confirm(localID, item)
	if err != nil {
		// The pending slot vanished; treat the write as confirmed anyway.
		w.cfg.Logger.Warn("confirming write", zap.Error(err))
		inserted, _ = w.cfg.Reconciler.Confirm("", item)
	}

	w.setState(Confirmed)
	w.observe(Confirmed)
	w.cfg.Logger.Debug("write confirmed",
		zap.String("kind", w.cfg.Kind),
		zap.Int64("id", item.ItemID()),
		zap.Bool("inserted", inserted),
	)

	result.State = Confirmed
	result.Item = item
	result.Inserted = inserted
	return result, nil
}

func (w *Writer[T]) fail(ctx context.Context, localID, content string, err error) SubmitResult[T] {
	if localID != "" {
		w.cfg.Reconciler.Discard(localID)
	}
	w.draft.Restore(content)

	serr := Classify(err)
	w.cfg.Logger.Warn("write failed",
		zap.String("kind", w.cfg.Kind),
		zap.String("error_kind", string(serr.Kind)),
		zap.Error(err),
	)

	if w.cfg.Alerter != nil {
		title := fmt.Sprintf("Could not post %s", w.cfg.Kind)
		message := fmt.Sprintf("Your %s was not sent and is back in the input box.", w.cfg.Kind)
		if aerr := w.cfg.Alerter.Alert(ctx, title, message); aerr != nil {
			w.cfg.Logger.Debug("alert failed", zap.Error(aerr))
		}
	}

	w.observe(Failed)
	w.setState(Composing)

	return SubmitResult[T]{State: Failed, Err: serr}
}

func (w *Writer[T]) setState(s WriteState) {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.state = s
}

func (w *Writer[T]) observe(s WriteState) {
	if w.cfg.Observer != nil {
		w.cfg.Observer.ObserveWrite(w.cfg.Kind, s)
	}
}
