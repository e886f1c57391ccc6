package event

import (
	"errors"
	"fmt"
)

// ErrCodeMalformedEvent identifies normalization failures in error lists and CLI output.
const ErrCodeMalformedEvent = "MALFORMED_EVENT"

// MalformedEventError reports a raw event that failed normalization.
//
// Malformed events are recovered locally: the containing request drops the
// event, logs a warning and itemizes the failure in its result.
type MalformedEventError struct {
	// EventID is the raw id, possibly empty when the id itself is missing.
	EventID string

	// Field names the offending field ("id", "type", "timestamp", "data").
	Field string

	// Reason is a short human-readable cause.
	Reason string
}

// Error implements the error interface.
func (e *MalformedEventError) Error() string {
	if e.EventID != "" {
		return fmt.Sprintf("%s: %s %s (event=%s)", ErrCodeMalformedEvent, e.Field, e.Reason, e.EventID)
	}
	return fmt.Sprintf("%s: %s %s", ErrCodeMalformedEvent, e.Field, e.Reason)
}

// IsMalformed returns true if err is (or wraps) a *MalformedEventError.
func IsMalformed(err error) bool {
	var me *MalformedEventError
	return errors.As(err, &me)
}
