// Package timeline groups events for visualization and positions each event
// within its group's time window.
package timeline

import (
	"sort"
	"time"

	"github.com/roach88/chronicle/internal/event"
)

// GroupKind names the context field a group is keyed by.
type GroupKind string

const (
	GroupWorkflow GroupKind = "workflow"
	GroupIssue    GroupKind = "issue"
	GroupUser     GroupKind = "user"
	GroupGeneral  GroupKind = "general"
)

// GeneralGroupID is the id of the group holding events with no context.
const GeneralGroupID = "general"

// Group is one lane of the timeline.
type Group struct {
	ID         string    `json:"id"`
	Kind       GroupKind `json:"kind"`
	Start      time.Time `json:"start"`
	End        time.Time `json:"end"`
	EventCount int       `json:"eventCount"`
	EventIDs   []string  `json:"eventIds"`
}

// Key returns "kind:id", the group's unique key.
func (g Group) Key() string {
	return string(g.Kind) + ":" + g.ID
}

// PositionedEvent is an event placed on its group's lane.
type PositionedEvent struct {
	Event    event.Event `json:"event"`
	GroupID  string      `json:"groupId"`
	Kind     GroupKind   `json:"groupKind"`
	Position float64     `json:"position"`
}

// Metadata summarizes the whole timeline.
type Metadata struct {
	TotalEvents    int                    `json:"totalEvents"`
	GroupCount     int                    `json:"groupCount"`
	Start          time.Time              `json:"start"`
	End            time.Time              `json:"end"`
	SeverityCounts map[event.Severity]int `json:"severityCounts"`
	TypeCounts     map[event.Type]int     `json:"typeCounts"`
}

// Timeline is the result of Build.
type Timeline struct {
	Groups   []Group           `json:"groups"`
	Events   []PositionedEvent `json:"events"`
	Metadata Metadata          `json:"metadata"`
}

// GroupOf returns the group an event belongs to: its workflow, else its
// issue, else its user, else the general group.
func GroupOf(e event.Event) (GroupKind, string) {
	switch {
	case e.Context.WorkflowID != "":
		return GroupWorkflow, e.Context.WorkflowID
	case e.Context.IssueID != "":
		return GroupIssue, e.Context.IssueID
	case e.Context.UserID != "":
		return GroupUser, e.Context.UserID
	default:
		return GroupGeneral, GeneralGroupID
	}
}

// Build lays out events.
//
// Groups are sorted by id, then kind, so identical input renders
// identically. Positioned events keep input order. An event's position is
// (ts - groupStart) / (groupEnd - groupStart); a group whose window has zero
// width places every event at 0.
func Build(events []event.Event) Timeline {
	tl := Timeline{
		Groups: []Group{},
		Events: make([]PositionedEvent, 0, len(events)),
		Metadata: Metadata{
			TotalEvents:    len(events),
			SeverityCounts: map[event.Severity]int{},
			TypeCounts:     map[event.Type]int{},
		},
	}

	byKey := map[string]*Group{}
	for _, e := range events {
		kind, id := GroupOf(e)
		g := Group{ID: id, Kind: kind}
		key := g.Key()
		existing, ok := byKey[key]
		if !ok {
			g.Start, g.End = e.Timestamp, e.Timestamp
			g.EventIDs = []string{}
			existing = &g
			byKey[key] = existing
		}
		if e.Timestamp.Before(existing.Start) {
			existing.Start = e.Timestamp
		}
		if e.Timestamp.After(existing.End) {
			existing.End = e.Timestamp
		}
		existing.EventCount++
		existing.EventIDs = append(existing.EventIDs, e.ID)

		tl.Metadata.SeverityCounts[e.Severity]++
		tl.Metadata.TypeCounts[e.Type]++
		if tl.Metadata.Start.IsZero() || e.Timestamp.Before(tl.Metadata.Start) {
			tl.Metadata.Start = e.Timestamp
		}
		if e.Timestamp.After(tl.Metadata.End) {
			tl.Metadata.End = e.Timestamp
		}
	}

	for _, g := range byKey {
		tl.Groups = append(tl.Groups, *g)
	}
	sort.Slice(tl.Groups, func(i, j int) bool {
		if tl.Groups[i].ID != tl.Groups[j].ID {
			return tl.Groups[i].ID < tl.Groups[j].ID
		}
		return tl.Groups[i].Kind < tl.Groups[j].Kind
	})
	tl.Metadata.GroupCount = len(tl.Groups)

	for _, e := range events {
		kind, id := GroupOf(e)
		g := byKey[string(kind)+":"+id]
		tl.Events = append(tl.Events, PositionedEvent{
			Event:    e,
			GroupID:  id,
			Kind:     kind,
			Position: position(e.Timestamp, g.Start, g.End),
		})
	}
	return tl
}

func position(ts, start, end time.Time) float64 {
	width := end.Sub(start)
	if width <= 0 {
		return 0
	}
	return float64(ts.Sub(start)) / float64(width)
}

// Lookup returns the group with the given kind and id.
func (tl Timeline) Lookup(kind GroupKind, id string) (Group, bool) {
	for _, g := range tl.Groups {
		if g.Kind == kind && g.ID == id {
			return g, true
		}
	}
	return Group{}, false
}
