package domain

import (
	"errors"
	"fmt"
	"strings"
)

var (
	// ErrEventNotFound is returned when an update or read targets an
	// event that does not exist.
	ErrEventNotFound = errors.New("event not found")

	// ErrMissingIdentity is returned when a toggle or save is attempted
	// without a participant name.
	ErrMissingIdentity = errors.New("participant name is required")

	// ErrNoPendingChanges is returned when a save is attempted with an
	// empty pending set.
	ErrNoPendingChanges = errors.New("no pending changes to save")
)

// PartialSaveError reports a save batch in which some per-date writes
// committed and others failed. The failed dates remain pending so the
// participant can retry.
type PartialSaveError struct {
	Saved  []Date
	Failed []Date
	Err    error
}

func (e *PartialSaveError) Error() string {
	failed := make([]string, 0, len(e.Failed))
	for _, d := range e.Failed {
		failed = append(failed, d.String())
	}
	return fmt.Sprintf("saved %d of %d dates, failed: %s: %v",
		len(e.Saved), len(e.Saved)+len(e.Failed), strings.Join(failed, ", "), e.Err)
}

func (e *PartialSaveError) Unwrap() error {
	return e.Err
}
