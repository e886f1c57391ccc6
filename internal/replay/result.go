package replay

import (
	"time"

	"github.com/roach88/chronicle/internal/diff"
	"github.com/roach88/chronicle/internal/event"
	"github.com/roach88/chronicle/internal/state"
	"github.com/roach88/chronicle/internal/store"
)

// Status is the replay life-cycle position.
type Status string

const (
	StatusIdle      Status = "idle"
	StatusLoading   Status = "loading"
	StatusReplaying Status = "replaying"
	StatusPaused    Status = "paused"
	StatusCompleted Status = "completed"
	StatusFailed    Status = "failed"
)

// Terminal reports whether no further command can change the session.
func (s Status) Terminal() bool {
	return s == StatusCompleted || s == StatusFailed
}

// Step is one folded event with the states around it.
type Step struct {
	// Index is the event's position in the replayed (filtered) sequence.
	Index         int         `json:"index"`
	Event         event.Event `json:"event"`
	PreviousState state.State `json:"previousState"`
	NewState      state.State `json:"newState"`
	Diff          diff.Diff   `json:"diff"`

	// Fingerprint identifies NewState.
	Fingerprint string `json:"fingerprint"`

	// Skipped is true when the transition failed and the state was kept.
	Skipped bool `json:"skipped"`
}

// Error kinds in ErrorEntry.Kind.
const (
	KindMalformed        = event.ErrCodeMalformedEvent
	KindReconstruction   = state.ErrCodeReconstruction
	KindStoreUnavailable = store.ErrCodeUnavailable
)

// ErrorEntry is one itemized problem in a result.
type ErrorEntry struct {
	Kind string `json:"kind"`

	// EventIndex is the position in the fetched sequence for malformed
	// events and in the replayed sequence for reconstruction errors. -1 when
	// no event is involved.
	EventIndex int    `json:"eventIndex"`
	EventID    string `json:"eventId"`
	Message    string `json:"message"`
}

// Summary is replay metadata.
type Summary struct {
	// TotalEvents is the number of events fetched.
	TotalEvents int `json:"totalEvents"`

	// Loaded is the number of events that passed normalization and filtering.
	Loaded int `json:"loaded"`

	Filtered  int `json:"filtered"`
	Malformed int `json:"malformed"`
	Processed int `json:"processed"`
	Skipped   int `json:"skipped"`

	StartedAt time.Time     `json:"startedAt"`
	Duration  time.Duration `json:"duration"`

	Truncated bool `json:"truncated"`
	Cancelled bool `json:"cancelled"`
	Halted    bool `json:"halted"`

	FinalFingerprint string `json:"finalFingerprint"`
}

// Result is the assembled outcome of a replay.
type Result struct {
	Status     Status       `json:"status"`
	Mode       Mode         `json:"mode"`
	Steps      []Step       `json:"steps"`
	FinalState state.State  `json:"finalState"`
	Errors     []ErrorEntry `json:"errors"`
	Summary    Summary      `json:"summary"`
}

// ErrorsOfKind returns the entries with the given kind.
func (r Result) ErrorsOfKind(kind string) []ErrorEntry {
	out := []ErrorEntry{}
	for _, e := range r.Errors {
		if e.Kind == kind {
			out = append(out, e)
		}
	}
	return out
}

// State is an immutable view of a session after a command.
type State struct {
	Status Status `json:"status"`
	Mode   Mode   `json:"mode"`

	// Cursor is the index of the next event to fold.
	Cursor int `json:"cursor"`
	Total  int `json:"total"`

	// Current is the reconstructed state as of Cursor.
	Current state.State `json:"current"`

	// LastStep is the most recently folded step, nil before the first.
	LastStep *Step `json:"lastStep,omitempty"`

	Errors    int  `json:"errors"`
	Halted    bool `json:"halted"`
	Cancelled bool `json:"cancelled"`
	Truncated bool `json:"truncated"`
}

// Done reports whether every event has been folded.
func (s State) Done() bool {
	return s.Cursor >= s.Total
}
