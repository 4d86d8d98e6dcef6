package scheduler

import (
	"context"
	"errors"
	"fmt"
)

var (
	// ErrUnknownTaskType is a configuration error: no handler exists for the kind.
	ErrUnknownTaskType = errors.New("unknown task type")
	// ErrResourceDeclaration rejects tasks whose requirements can never be honored.
	ErrResourceDeclaration = errors.New("invalid resource declaration")
	// ErrDependencyNeverSatisfied marks tasks blocked by a dependency that ended
	// without completing.
	ErrDependencyNeverSatisfied = errors.New("dependency never satisfied")

	ErrTaskNotFound  = errors.New("task not found")
	ErrDuplicateTask = errors.New("task already exists")
)

// TransientError marks a handler failure as worth retrying.
// Unclassified errors are treated the same way.
type TransientError struct{ Err error }

func (e *TransientError) Error() string { return fmt.Sprintf("transient: %v", e.Err) }
func (e *TransientError) Unwrap() error { return e.Err }

// PermanentError marks a handler failure as not retryable.
type PermanentError struct{ Err error }

func (e *PermanentError) Error() string { return fmt.Sprintf("permanent: %v", e.Err) }
func (e *PermanentError) Unwrap() error { return e.Err }

// Transient wraps err as retry-eligible.
func Transient(err error) error {
	if err == nil {
		return nil
	}
	return &TransientError{Err: err}
}

// Permanent wraps err so the executor fails the task without retrying.
//
// Example:
//
//	return nil, scheduler.Permanent(fmt.Errorf("video %s removed upstream", id))
func Permanent(err error) error {
	if err == nil {
		return nil
	}
	return &PermanentError{Err: err}
}

// IsPermanent reports whether err must not be retried.
func IsPermanent(err error) bool {
	if err == nil {
		return false
	}
	var pe *PermanentError
	if errors.As(err, &pe) {
		return true
	}
	return errors.Is(err, ErrUnknownTaskType) ||
		errors.Is(err, ErrResourceDeclaration) ||
		errors.Is(err, ErrDependencyNeverSatisfied)
}

// isCancellation reports errors caused by the caller rather than the handler's
// downstream.
func isCancellation(err error) bool {
	return errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded)
}
