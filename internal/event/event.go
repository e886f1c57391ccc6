package event

import (
	"strings"
	"time"
)

// Type is a dotted AGGREGATE.ACTION.STATUS event type.
type Type string

// Aggregate returns the first segment of the type ("workflow" for "workflow.step.failed").
func (t Type) Aggregate() string {
	return t.segment(0)
}

// Action returns the second segment of the type, or "" if absent.
func (t Type) Action() string {
	return t.segment(1)
}

// Status returns the last segment of a three-part type, or "" if the type has
// fewer than three segments.
func (t Type) Status() string {
	parts := strings.Split(string(t), ".")
	if len(parts) < 3 {
		return ""
	}
	return parts[len(parts)-1]
}

func (t Type) segment(i int) string {
	parts := strings.Split(string(t), ".")
	if i >= len(parts) {
		return ""
	}
	return parts[i]
}

// Matches reports whether the type matches pattern. A pattern is either an
// exact type or a prefix ending in ".*" ("workflow.*" matches
// "workflow.step.failed"). The single pattern "*" matches everything.
func (t Type) Matches(pattern string) bool {
	if pattern == "*" {
		return true
	}
	if prefix, ok := strings.CutSuffix(pattern, ".*"); ok {
		return string(t) == prefix || strings.HasPrefix(string(t), prefix+".")
	}
	return string(t) == pattern
}

// Severity is the importance level of an event.
type Severity string

const (
	SeverityDebug    Severity = "debug"
	SeverityInfo     Severity = "info"
	SeverityWarn     Severity = "warn"
	SeverityError    Severity = "error"
	SeverityCritical Severity = "critical"
)

// Rank orders severities from debug (0) to critical (4).
// Unrecognised values rank as info.
func (s Severity) Rank() int {
	switch s {
	case SeverityDebug:
		return 0
	case SeverityWarn:
		return 2
	case SeverityError:
		return 3
	case SeverityCritical:
		return 4
	default:
		return 1
	}
}

// AtLeast reports whether s is at least as severe as floor.
func (s Severity) AtLeast(floor Severity) bool {
	return s.Rank() >= floor.Rank()
}

// ParseSeverity maps a raw severity string to a Severity.
// Empty and unrecognised values become SeverityInfo.
func ParseSeverity(s string) Severity {
	switch sev := Severity(strings.ToLower(strings.TrimSpace(s))); sev {
	case SeverityDebug, SeverityInfo, SeverityWarn, SeverityError, SeverityCritical:
		return sev
	case "warning":
		return SeverityWarn
	case "fatal":
		return SeverityCritical
	default:
		return SeverityInfo
	}
}

// Context holds the tags promoted to typed fields for correlation.
type Context struct {
	IssueID    string `json:"issueId"`
	WorkflowID string `json:"workflowId"`
	UserID     string `json:"userId"`
	SessionID  string `json:"sessionId"`
}

// IsZero reports whether no context field is populated.
func (c Context) IsZero() bool {
	return c == Context{}
}

// Event is a normalized, immutable audit event.
//
// Tags and Data are never nil on events produced by Normalize. Callers must
// treat both maps as read-only.
type Event struct {
	ID        string            `json:"id"`
	Seq       int64             `json:"seq"`
	Type      Type              `json:"type"`
	Timestamp time.Time         `json:"timestamp"`
	Tags      map[string]string `json:"tags"`
	Context   Context           `json:"context"`
	Severity  Severity          `json:"severity"`
	Data      map[string]any    `json:"data"`
	Source    string            `json:"source"`
}

// Message returns the "message" field of the payload, or "".
func (e Event) Message() string {
	s, _ := e.Data["message"].(string)
	return s
}

// StreamKey returns the causal stream this event belongs to: its workflow if
// set, else its issue. Events with neither have the zero key.
func (e Event) StreamKey() StreamKey {
	switch {
	case e.Context.WorkflowID != "":
		return StreamKey{Kind: StreamWorkflow, ID: e.Context.WorkflowID}
	case e.Context.IssueID != "":
		return StreamKey{Kind: StreamIssue, ID: e.Context.IssueID}
	default:
		return StreamKey{}
	}
}

// Before orders events by timestamp, then by store sequence, then by id.
func (e Event) Before(o Event) bool {
	if !e.Timestamp.Equal(o.Timestamp) {
		return e.Timestamp.Before(o.Timestamp)
	}
	if e.Seq != o.Seq {
		return e.Seq < o.Seq
	}
	return e.ID < o.ID
}
