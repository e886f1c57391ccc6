package replay

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/roach88/chronicle/internal/event"
	"github.com/roach88/chronicle/internal/state"
)

// Mode selects batch or step-wise replay.
type Mode string

const (
	ModeBatch       Mode = "batch"
	ModeInteractive Mode = "interactive"
)

// ParseMode maps "batch"/"interactive" to a Mode. Empty is batch.
func ParseMode(s string) (Mode, error) {
	switch m := Mode(s); m {
	case "":
		return ModeBatch, nil
	case ModeBatch, ModeInteractive:
		return m, nil
	default:
		return "", fmt.Errorf("unknown replay mode %q (want batch or interactive)", s)
	}
}

// Request selects and filters the events of one replay.
//
// Exactly one selector must be set: CorrelationID, Until, EventIDs or Events.
type Request struct {
	// CorrelationID is a stream key "kind:id". A bare id means a workflow.
	CorrelationID string `json:"correlationId,omitempty" yaml:"correlationId,omitempty"`

	// Until selects every event with timestamp <= Until.
	Until *time.Time `json:"until,omitempty" yaml:"until,omitempty"`

	// EventIDs selects events by id.
	EventIDs []string `json:"eventIds,omitempty" yaml:"eventIds,omitempty"`

	// Events supplies the events inline, bypassing the store. Events without a
	// sequence are numbered by position; the batch is replayed in sequence
	// order.
	Events []event.Raw `json:"events,omitempty" yaml:"events,omitempty"`

	Filter Filter `json:"filter,omitempty" yaml:"filter,omitempty"`

	Mode Mode `json:"mode,omitempty" yaml:"mode,omitempty"`

	// Policy overrides the mode's failure policy: skip for batch, halt for
	// interactive.
	Policy state.Policy `json:"policy,omitempty" yaml:"policy,omitempty"`

	// MaxDuration bounds processing time. Zero means no limit.
	MaxDuration time.Duration `json:"maxDuration,omitempty" yaml:"maxDuration,omitempty"`
}

// ErrInvalidRequest is wrapped by every request validation failure.
var ErrInvalidRequest = errors.New("invalid replay request")

// Validate checks the selector, mode, policy and filter.
func (r Request) Validate() error {
	n := 0
	if r.CorrelationID != "" {
		n++
		if _, err := r.StreamKey(); err != nil {
			return fmt.Errorf("%w: %v", ErrInvalidRequest, err)
		}
	}
	if r.Until != nil {
		n++
	}
	if len(r.EventIDs) > 0 {
		n++
	}
	if r.Events != nil {
		n++
	}
	switch {
	case n == 0:
		return fmt.Errorf("%w: one of correlationId, until, eventIds or events is required", ErrInvalidRequest)
	case n > 1:
		return fmt.Errorf("%w: correlationId, until, eventIds and events are mutually exclusive", ErrInvalidRequest)
	}
	if _, err := ParseMode(string(r.Mode)); err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidRequest, err)
	}
	if r.Policy != "" {
		if _, err := state.ParsePolicy(string(r.Policy)); err != nil {
			return fmt.Errorf("%w: %v", ErrInvalidRequest, err)
		}
	}
	if r.MaxDuration < 0 {
		return fmt.Errorf("%w: negative maxDuration", ErrInvalidRequest)
	}
	if err := r.Filter.validate(); err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidRequest, err)
	}
	return nil
}

// StreamKey parses CorrelationID.
func (r Request) StreamKey() (event.StreamKey, error) {
	if !strings.Contains(r.CorrelationID, ":") {
		return event.StreamKey{Kind: event.StreamWorkflow, ID: r.CorrelationID}, nil
	}
	return event.ParseStreamKey(r.CorrelationID)
}

// EffectiveMode returns Mode with the batch default applied.
func (r Request) EffectiveMode() Mode {
	if r.Mode == "" {
		return ModeBatch
	}
	return r.Mode
}

// EffectivePolicy returns Policy, defaulting by mode.
func (r Request) EffectivePolicy() state.Policy {
	if r.Policy != "" {
		return r.Policy
	}
	if r.EffectiveMode() == ModeInteractive {
		return state.PolicyHalt
	}
	return state.PolicySkip
}
