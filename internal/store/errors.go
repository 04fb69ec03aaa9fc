package store

import (
	"errors"
	"fmt"
)

// ErrNotFound is returned when no record exists for a given event ID.
var ErrNotFound = errors.New("event not found")

// ValidationError reports a single malformed event or recurrence rule.
// It always applies to one record; the rest of the store is unaffected.
type ValidationError struct {
	ID  string
	Err error
}

func (e *ValidationError) Error() string {
	if e.ID == "" {
		return fmt.Sprintf("invalid event: %v", e.Err)
	}
	return fmt.Sprintf("invalid event %s: %v", e.ID, e.Err)
}

func (e *ValidationError) Unwrap() error { return e.Err }

// IOError reports that the backing directory or a record file is
// inaccessible. Fatal at startup; recoverable with a warning mid-run.
type IOError struct {
	Op   string
	Path string
	Err  error
}

func (e *IOError) Error() string {
	return fmt.Sprintf("store %s %s: %v", e.Op, e.Path, e.Err)
}

func (e *IOError) Unwrap() error { return e.Err }
