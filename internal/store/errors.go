package store

import (
	"errors"
	"fmt"
)

// Error codes carried by store errors.
const (
	// ErrCodeConflict: an event with the same id but different content exists.
	ErrCodeConflict = "CONFLICT"

	// ErrCodeInvalid: the event cannot be stored (missing id, unencodable payload).
	ErrCodeInvalid = "INVALID"

	// ErrCodeUnavailable: the backing database failed.
	ErrCodeUnavailable = "STORE_UNAVAILABLE"
)

// AppendError reports a rejected append. The log itself is unchanged.
type AppendError struct {
	Code    string `json:"code"`
	EventID string `json:"eventId"`
	Message string `json:"message"`
}

// Error implements the error interface.
func (e *AppendError) Error() string {
	return fmt.Sprintf("%s: %s (event=%s)", e.Code, e.Message, e.EventID)
}

// IsConflict returns true if err is (or wraps) a CONFLICT *AppendError.
func IsConflict(err error) bool {
	var ae *AppendError
	return errors.As(err, &ae) && ae.Code == ErrCodeConflict
}

// UnavailableError wraps a database failure. It is fatal for the request that
// hit it.
type UnavailableError struct {
	// Op names the store operation, e.g. "events by stream".
	Op  string
	Err error
}

// Error implements the error interface.
func (e *UnavailableError) Error() string {
	return fmt.Sprintf("%s: %s: %v", ErrCodeUnavailable, e.Op, e.Err)
}

// Unwrap returns the underlying driver error.
func (e *UnavailableError) Unwrap() error {
	return e.Err
}

// IsUnavailable returns true if err is (or wraps) an *UnavailableError.
func IsUnavailable(err error) bool {
	var ue *UnavailableError
	return errors.As(err, &ue)
}

func unavailable(op string, err error) error {
	return &UnavailableError{Op: op, Err: err}
}
