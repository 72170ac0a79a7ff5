package jobs

import (
	"errors"

	"github.com/lalithlochan/clipforge/internal/db"
)

// ErrInvalidTransition is returned when an update would move a job
// backwards or out of a terminal state.
var ErrInvalidTransition = errors.New("invalid status transition")

// CanTransition reports whether a job may move from one status to another.
//
//	queued     -> processing | failed
//	processing -> processing | completed | failed
//
// completed and failed are terminal. queued -> failed only happens when
// dispatch to a provider is exhausted.
func CanTransition(from, to string) bool {
	switch from {
	case db.StatusQueued:
		return to == db.StatusProcessing || to == db.StatusFailed
	case db.StatusProcessing:
		return to == db.StatusProcessing || to == db.StatusCompleted || to == db.StatusFailed
	default:
		return false
	}
}

// ValidStatus reports whether s is one of the four job statuses.
func ValidStatus(s string) bool {
	switch s {
	case db.StatusQueued, db.StatusProcessing, db.StatusCompleted, db.StatusFailed:
		return true
	}
	return false
}
