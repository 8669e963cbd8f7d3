package listora

import (
	"errors"
	"fmt"
)

type ErrorCode int

const (
	Unknown ErrorCode = iota
	// LockAcquisitionFailure: the resource lock could not be acquired within
	// the orchestration's time budget.
	LockAcquisitionFailure
	// RowCountMismatch: the live row count diverged from the count captured
	// before the write attempt. Retryable at the orchestration level.
	RowCountMismatch
	// DuplicateKey: a new row's key-column value collides with an existing
	// row. Terminal; a logical conflict, not a transient race.
	DuplicateKey
	// BackendIOError: the remote store failed outside the retryable classes.
	BackendIOError
	// RollbackFailure: restoring the pre-write snapshot failed; the original
	// write error is still the one surfaced to the caller.
	RollbackFailure
)

// Listora custom error.
type Error struct {
	Code     ErrorCode
	Err      error
	UserData any
}

func (e Error) Error() string {
	return fmt.Errorf("error code: %d, user data: %v, details: %w", e.Code, e.UserData, e.Err).Error()
}

func (e Error) Unwrap() error {
	return e.Err
}

// CodeOf extracts the ErrorCode from err, or Unknown when err is not a
// listora.Error (wrapped or not).
func CodeOf(err error) ErrorCode {
	var le Error
	if errors.As(err, &le) {
		return le.Code
	}
	return Unknown
}
