package checkout

import (
	"errors"
	"fmt"
)

// ErrSnapshotFinalized is returned when mutating a snapshot that already
// carries an order id. Clear it first.
var ErrSnapshotFinalized = errors.New("checkout snapshot is finalized")

// PersistenceDecodeError describes a stored record that could not be used.
// It is logged during hydration and never returned to callers.
type PersistenceDecodeError struct {
	Key    string
	Reason string
	Err    error
}

func (e *PersistenceDecodeError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("checkout record %s: %s: %v", e.Key, e.Reason, e.Err)
	}
	return fmt.Sprintf("checkout record %s: %s", e.Key, e.Reason)
}

func (e *PersistenceDecodeError) Unwrap() error {
	return e.Err
}
