package testutil

import (
	"fmt"
	"time"

	"github.com/roach88/chronicle/internal/event"
)

// EventBuilder assembles normalized events for tests.
type EventBuilder struct {
	raw event.Raw
}

// NewEvent starts an event with the required fields set.
func NewEvent(id string, typ event.Type, ts time.Time) *EventBuilder {
	return &EventBuilder{raw: event.Raw{
		ID:        id,
		Type:      string(typ),
		Timestamp: event.FormatTimestamp(ts),
		Tags:      map[string]string{},
		Context:   map[string]string{},
		Data:      map[string]any{},
		Source:    "test",
	}}
}

// Seq sets the store sequence number.
func (b *EventBuilder) Seq(n int64) *EventBuilder {
	b.raw.Seq = n
	return b
}

// Workflow sets the workflow context and tag.
func (b *EventBuilder) Workflow(id string) *EventBuilder {
	return b.context("workflowId", id)
}

// Issue sets the issue context and tag.
func (b *EventBuilder) Issue(id string) *EventBuilder {
	return b.context("issueId", id)
}

// User sets the user context and tag.
func (b *EventBuilder) User(id string) *EventBuilder {
	return b.context("userId", id)
}

// Session sets the session context and tag.
func (b *EventBuilder) Session(id string) *EventBuilder {
	return b.context("sessionId", id)
}

func (b *EventBuilder) context(key, id string) *EventBuilder {
	b.raw.Context[key] = id
	b.raw.Tags[key] = id
	return b
}

// Tag sets an arbitrary tag.
func (b *EventBuilder) Tag(key, value string) *EventBuilder {
	b.raw.Tags[key] = value
	return b
}

// Severity sets the severity.
func (b *EventBuilder) Severity(s event.Severity) *EventBuilder {
	b.raw.Severity = string(s)
	return b
}

// Data sets a payload field. Numeric values are converted to float64.
func (b *EventBuilder) Data(key string, value any) *EventBuilder {
	b.raw.Data[key] = value
	return b
}

// Message sets the payload "message" field.
func (b *EventBuilder) Message(msg string) *EventBuilder {
	return b.Data("message", msg)
}

// Source sets the originating subsystem.
func (b *EventBuilder) Source(s string) *EventBuilder {
	b.raw.Source = s
	return b
}

// Raw returns the raw form of the event.
func (b *EventBuilder) Raw() event.Raw {
	return b.raw
}

// Build normalizes the event. Panics if the builder produced a malformed event.
func (b *EventBuilder) Build() event.Event {
	e, err := event.Normalize(b.raw)
	if err != nil {
		panic(fmt.Sprintf("testutil: %v", err))
	}
	return e
}

// Sequence builds events of the given types, one per clock tick, with ids
// "<prefix>-1", "<prefix>-2", ... and seq numbers starting at 1. Each event is
// passed through decorate (which may be nil) before building.
func Sequence(clock *DeterministicClock, prefix string, types []event.Type, decorate func(i int, b *EventBuilder)) []event.Event {
	out := make([]event.Event, 0, len(types))
	for i, typ := range types {
		b := NewEvent(fmt.Sprintf("%s-%d", prefix, i+1), typ, clock.Next()).Seq(int64(i + 1))
		if decorate != nil {
			decorate(i, b)
		}
		out = append(out, b.Build())
	}
	return out
}
