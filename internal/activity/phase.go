// Package activity tracks the activity snapshot: its lifecycle phase and the
// user's optimistic edits to it.
package activity

import (
	"fmt"
)

// Phase is where an activity is in its planning lifecycle.
type Phase string

const (
	Collecting Phase = "collecting"
	Voting     Phase = "voting"
	Finalized  Phase = "finalized"
	Completed  Phase = "completed"
)

func (p Phase) String() string { return string(p) }

// Valid reports whether p is one of the known phases.
func (p Phase) Valid() bool {
	switch p {
	case Collecting, Voting, Finalized, Completed:
		return true
	}
	return false
}

var transitions = map[Phase][]Phase{
	Collecting: {Voting, Finalized},
	Voting:     {Finalized},
	Finalized:  {Completed},
	Completed:  nil,
}

// CanTransition reports whether an activity may move from one phase to
// another. Staying in the same phase is always allowed.
func CanTransition(from, to Phase) bool {
	if from == to {
		return from.Valid()
	}
	for _, next := range transitions[from] {
		if next == to {
			return true
		}
	}
	return false
}

// PhaseFromFlags decodes the backend's phase flags. No flag set means the
// activity is still collecting. Completed activities may keep the finalized
// flag. Any other combination is impossible and rejected.
func PhaseFromFlags(collecting, voting, finalized, completed bool) (Phase, error) {
	set := 0
	for _, f := range []bool{collecting, voting, finalized, completed} {
		if f {
			set++
		}
	}

	switch {
	case set == 0:
		return Collecting, nil
	case completed && (set == 1 || (set == 2 && finalized)):
		return Completed, nil
	case set > 1:
		return "", fmt.Errorf("%w: collecting=%t voting=%t finalized=%t completed=%t",
			ErrImpossibleFlags, collecting, voting, finalized, completed)
	case collecting:
		return Collecting, nil
	case voting:
		return Voting, nil
	default:
		return Finalized, nil
	}
}

// Flags encodes p back into the backend's flag set.
func (p Phase) Flags() (collecting, voting, finalized, completed bool) {
	switch p {
	case Collecting:
		return true, false, false, false
	case Voting:
		return false, true, false, false
	case Finalized:
		return false, false, true, false
	case Completed:
		return false, false, false, true
	}
	return false, false, false, false
}
