package sync

import (
	"context"
	"errors"
	"fmt"
	"net"

	"github.com/dgnsrekt/outingsync/internal/api"
)

var (
	ErrEmptyDraft       = errors.New("draft is empty")
	ErrSubmitInProgress = errors.New("a submission is already in flight")
	ErrUnknownPending   = errors.New("unknown pending item")
)

// ErrorKind classifies a failed tick.
type ErrorKind string

const (
	KindTransport ErrorKind = "transport"
	KindTimeout   ErrorKind = "timeout"
	KindStatus    ErrorKind = "status"
	KindDecode    ErrorKind = "decode"
	KindAuth      ErrorKind = "auth"
)

// SyncError is the typed failure of one tick or write.
type SyncError struct {
	Kind   ErrorKind
	Status int
	Err    error
}

func (e *SyncError) Error() string {
	if e.Status != 0 {
		return fmt.Sprintf("sync %s error (status %d): %v", e.Kind, e.Status, e.Err)
	}
	return fmt.Sprintf("sync %s error: %v", e.Kind, e.Err)
}

func (e *SyncError) Unwrap() error {
	return e.Err
}

// Classify wraps err in a SyncError with the matching Kind. It returns nil for
// a nil err and passes an existing SyncError through.
func Classify(err error) *SyncError {
	if err == nil {
		return nil
	}

	var se *SyncError
	if errors.As(err, &se) {
		return se
	}

	var status *api.StatusError
	switch {
	case errors.Is(err, api.ErrNoCredential), errors.Is(err, api.ErrUnauthorized):
		code := 0
		if errors.As(err, &status) {
			code = status.Code
		}
		return &SyncError{Kind: KindAuth, Status: code, Err: err}
	case errors.As(err, &status):
		return &SyncError{Kind: KindStatus, Status: status.Code, Err: err}
	case errors.Is(err, api.ErrMalformed):
		return &SyncError{Kind: KindDecode, Err: err}
	case errors.Is(err, context.DeadlineExceeded), isNetTimeout(err):
		return &SyncError{Kind: KindTimeout, Err: err}
	default:
		return &SyncError{Kind: KindTransport, Err: err}
	}
}

func isNetTimeout(err error) bool {
	var ne net.Error
	return errors.As(err, &ne) && ne.Timeout()
}
