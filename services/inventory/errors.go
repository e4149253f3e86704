package inventory

import (
	"errors"
	"fmt"
)

var (
	// ErrMalformedSnapshot reports a snapshot missing mandatory fields or carrying wrongly typed values.
	ErrMalformedSnapshot = errors.New("malformed snapshot")
	// ErrNoData reports an empty or unparseable snapshot body.
	ErrNoData = fmt.Errorf("%w: no data provided", ErrMalformedSnapshot)
	// ErrNotFound reports a lookup for an asset id that does not exist.
	ErrNotFound = errors.New("asset not found")
	// ErrCorrelationUnavailable reports that the external event store could not be queried.
	ErrCorrelationUnavailable = errors.New("log correlation unavailable")
)

// PersistenceError wraps a catalog failure during reconciliation. The
// transaction it belongs to has been rolled back.
type PersistenceError struct {
	Op  string
	Err error
}

func (e *PersistenceError) Error() string {
	return fmt.Sprintf("%s: %v", e.Op, e.Err)
}

func (e *PersistenceError) Unwrap() error { return e.Err }

var (
	errDuplicateUUID = errors.New("uuid already assigned to another asset")
	errDuplicateDisk = errors.New("asset already has a disk summary")
)
