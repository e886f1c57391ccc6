package state

import (
	"errors"
	"fmt"
)

// ErrCodeReconstruction identifies transition failures in error lists and CLI output.
const ErrCodeReconstruction = "RECONSTRUCTION_ERROR"

// ReconstructionError records a transition that failed on a structurally valid
// event, usually because the payload references an entity the state does not
// contain.
type ReconstructionError struct {
	// EventIndex is the position of the event in the folded sequence.
	EventIndex int `json:"eventIndex"`

	// EventID identifies the failing event.
	EventID string `json:"eventId"`

	// EventType is the failing event's type.
	EventType string `json:"eventType"`

	// Message is the transition's error text.
	Message string `json:"message"`
}

// Error implements the error interface.
func (e *ReconstructionError) Error() string {
	return fmt.Sprintf("%s: %s (index=%d, event=%s)", ErrCodeReconstruction, e.Message, e.EventIndex, e.EventID)
}

// IsReconstructionError returns true if err is (or wraps) a *ReconstructionError.
func IsReconstructionError(err error) bool {
	var re *ReconstructionError
	return errors.As(err, &re)
}
