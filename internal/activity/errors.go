package activity

import "errors"

var (
	ErrImpossibleFlags   = errors.New("impossible phase flag combination")
	ErrIllegalTransition = errors.New("illegal phase transition")
	ErrEmptyPatch        = errors.New("patch changes nothing")
	ErrNoSnapshot        = errors.New("activity not loaded yet")
	ErrEditInProgress    = errors.New("an edit is already in flight")
)
