package anomaly

import (
	"fmt"
	"sort"

	"github.com/roach88/chronicle/internal/event"
)

// SequenceDetector flags ordering violations within causal streams:
//   - a timestamp that goes backwards in store order (high)
//   - workflow activity after the run reached a terminal state (medium)
type SequenceDetector struct{}

// Name implements Detector.
func (SequenceDetector) Name() string { return "sequence" }

var terminalRunStatuses = map[string]bool{
	"completed": true,
	"failed":    true,
	"cancelled": true,
}

// Detect implements Detector.
func (SequenceDetector) Detect(events []event.Event) []Anomaly {
	streams := map[string][]event.Event{}
	for _, e := range storeOrder(events) {
		key := e.StreamKey()
		if key.IsZero() {
			continue
		}
		streams[key.String()] = append(streams[key.String()], e)
	}
	keys := make([]string, 0, len(streams))
	for k := range streams {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	var out []Anomaly
	for _, k := range keys {
		stream := streams[k]
		for i := 1; i < len(stream); i++ {
			prev, cur := stream[i-1], stream[i]
			if cur.Timestamp.Before(prev.Timestamp) {
				out = append(out, Anomaly{
					Kind:     KindSequence,
					Severity: SeverityHigh,
					Description: fmt.Sprintf("stream %s: %s is stored after %s but occurred %s earlier",
						k, cur.ID, prev.ID, prev.Timestamp.Sub(cur.Timestamp)),
					EventIDs:  []string{prev.ID, cur.ID},
					EventType: cur.Type,
				})
			}
		}
		out = append(out, afterTerminal(k, stream)...)
	}
	return out
}

func afterTerminal(key string, stream []event.Event) []Anomaly {
	var out []Anomaly
	var terminal *event.Event
	var late []string
	flush := func() {
		if terminal != nil && len(late) > 0 {
			out = append(out, Anomaly{
				Kind:     KindSequence,
				Severity: SeverityMedium,
				Description: fmt.Sprintf("stream %s: %d events after terminal %s (%s)",
					key, len(late), terminal.Type, terminal.ID),
				EventIDs:  append([]string{terminal.ID}, late...),
				EventType: terminal.Type,
			})
		}
		late = nil
	}
	for i := range stream {
		e := stream[i]
		isRun := e.Type.Aggregate() == "workflow" && e.Type.Action() == "run"
		switch {
		case isRun && e.Type.Status() == "started":
			flush()
			terminal = nil
		case isRun && terminalRunStatuses[e.Type.Status()]:
			flush()
			terminal = &stream[i]
		case terminal != nil:
			late = append(late, e.ID)
		}
	}
	flush()
	return out
}
