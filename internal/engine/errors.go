package engine

import (
	"errors"
	"fmt"
)

// ErrorCode categorizes engine errors.
type ErrorCode string

const (
	// ErrCodeNotFound indicates a referenced event does not exist.
	ErrCodeNotFound ErrorCode = "NOT_FOUND"

	// ErrCodeNonDeterministic indicates two replays of the same selection
	// diverged.
	ErrCodeNonDeterministic ErrorCode = "NON_DETERMINISTIC"
)

// Error is a structured engine error.
type Error struct {
	Code    ErrorCode
	Message string

	// EventID identifies the event involved, if any.
	EventID string

	// Details contains additional context.
	Details map[string]string
}

// Error implements the error interface.
func (e *Error) Error() string {
	if e.EventID != "" {
		return fmt.Sprintf("%s: %s (event=%s)", e.Code, e.Message, e.EventID)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

// IsNotFound returns true if err is (or wraps) a NOT_FOUND *Error.
func IsNotFound(err error) bool {
	var e *Error
	return errors.As(err, &e) && e.Code == ErrCodeNotFound
}

// IsNonDeterministic returns true if err is (or wraps) a NON_DETERMINISTIC *Error.
func IsNonDeterministic(err error) bool {
	var e *Error
	return errors.As(err, &e) && e.Code == ErrCodeNonDeterministic
}

// NewNotFoundError creates an Error for a missing event.
func NewNotFoundError(eventID string) *Error {
	return &Error{
		Code:    ErrCodeNotFound,
		Message: "event not found",
		EventID: eventID,
	}
}

// NewNonDeterministicError creates an Error for a diverging replay.
func NewNonDeterministicError(index int, eventID, first, second string) *Error {
	return &Error{
		Code:    ErrCodeNonDeterministic,
		Message: fmt.Sprintf("replays diverge at step %d", index),
		EventID: eventID,
		Details: map[string]string{
			"index":  fmt.Sprintf("%d", index),
			"first":  first,
			"second": second,
		},
	}
}
