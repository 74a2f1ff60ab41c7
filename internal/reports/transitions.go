package reports

import (
	"errors"
	"fmt"

	"github.com/sitdb/sitdb/internal/platform/httpx"
)

// ErrInvalidTransition is returned when a status change is not allowed from
// the report's current status.
var ErrInvalidTransition = errors.New("invalid status transition")

// TransitionError describes a rejected status change.
type TransitionError struct {
	From Status
	To   Status
}

func (e *TransitionError) Error() string {
	if e.From == e.To {
		return fmt.Sprintf("Status laporan sudah %s", e.To)
	}
	return fmt.Sprintf("Status tidak dapat diubah dari %s ke %s", e.From, e.To)
}

func (e *TransitionError) Unwrap() []error {
	return []error{ErrInvalidTransition, httpx.ErrConflict}
}

var transitions = map[Status][]Status{
	StatusPending:    {StatusVerified, StatusInProgress, StatusRejected},
	StatusVerified:   {StatusInProgress, StatusResolved, StatusRejected},
	StatusInProgress: {StatusResolved, StatusRejected},
	StatusResolved:   nil,
	StatusRejected:   nil,
}

// CanTransition reports whether the lifecycle allows moving from one status
// to another. Terminal statuses allow nothing.
func CanTransition(from, to Status) bool {
	for _, next := range transitions[from] {
		if next == to {
			return true
		}
	}
	return false
}

// checkTransition applies the lifecycle table. In permissive mode any move
// to a non-initial status is accepted, including from terminal states.
func checkTransition(from, to Status, strict bool) error {
	if !strict {
		if to == StatusPending {
			return &TransitionError{From: from, To: to}
		}
		return nil
	}
	if !CanTransition(from, to) {
		return &TransitionError{From: from, To: to}
	}
	return nil
}
