package logging

import (
	"errors"
	"fmt"
)

// OperationError annotates an error with the operation and attempt that produced it.
type OperationError struct {
	Operation string
	AttemptID string
	Err       error
}

// Error implements the error interface.
func (e *OperationError) Error() string {
	if e == nil || e.Err == nil {
		return ""
	}
	if e.AttemptID != "" {
		return fmt.Sprintf("%s (attempt_id=%s): %v", e.Operation, e.AttemptID, e.Err)
	}
	return fmt.Sprintf("%s: %v", e.Operation, e.Err)
}

// Unwrap returns the underlying error for errors.Is/As support.
func (e *OperationError) Unwrap() error {
	if e == nil {
		return nil
	}
	return e.Err
}

// NewOperationError wraps an error with structured context about where it occurred.
// A nil err yields a nil error.
func NewOperationError(operation, attemptID string, err error) error {
	if err == nil {
		return nil
	}
	return &OperationError{Operation: operation, AttemptID: attemptID, Err: err}
}

// Cause strips every OperationError layer and returns the innermost message,
// which is what gets shown to the user verbatim.
func Cause(err error) string {
	if err == nil {
		return ""
	}
	for {
		var opErr *OperationError
		if !errors.As(err, &opErr) || opErr.Err == nil {
			return err.Error()
		}
		err = opErr.Err
	}
}
