package event

import (
	"fmt"
	"math"
	"strings"
	"time"
)

// Raw is an event as it arrives from the store, a fixture file or a producer,
// before any validation. Timestamp is kept as text so that missing or
// unparseable values can be reported instead of silently zeroed.
type Raw struct {
	ID        string            `json:"id" yaml:"id"`
	Seq       int64             `json:"seq,omitempty" yaml:"seq,omitempty"`
	Type      string            `json:"type" yaml:"type"`
	Timestamp string            `json:"timestamp" yaml:"timestamp"`
	Tags      map[string]string `json:"tags,omitempty" yaml:"tags,omitempty"`
	Context   map[string]string `json:"context,omitempty" yaml:"context,omitempty"`
	Severity  string            `json:"severity,omitempty" yaml:"severity,omitempty"`
	Data      map[string]any    `json:"data,omitempty" yaml:"data,omitempty"`
	Source    string            `json:"source,omitempty" yaml:"source,omitempty"`
}

// contextAliases lists the tag keys promoted into each Context field, in
// lookup order.
var contextAliases = map[string][]string{
	"issueId":    {"issueId", "issue_id", "issue"},
	"workflowId": {"workflowId", "workflow_id", "workflow"},
	"userId":     {"userId", "user_id", "user", "actor"},
	"sessionId":  {"sessionId", "session_id", "session"},
}

// Normalize validates a raw event and converts it into an Event.
//
// It rejects events missing id, type or timestamp with a *MalformedEventError.
// It performs no business interpretation: unknown types and severities are
// accepted, tags are copied verbatim, and context fields are promoted from the
// raw context map first and the tags second.
func Normalize(raw Raw) (Event, error) {
	id := strings.TrimSpace(raw.ID)
	if id == "" {
		return Event{}, &MalformedEventError{EventID: raw.ID, Field: "id", Reason: "missing"}
	}
	typ := strings.TrimSpace(raw.Type)
	if typ == "" {
		return Event{}, &MalformedEventError{EventID: id, Field: "type", Reason: "missing"}
	}
	if strings.TrimSpace(raw.Timestamp) == "" {
		return Event{}, &MalformedEventError{EventID: id, Field: "timestamp", Reason: "missing"}
	}
	ts, err := ParseTimestamp(raw.Timestamp)
	if err != nil {
		return Event{}, &MalformedEventError{EventID: id, Field: "timestamp", Reason: err.Error()}
	}

	tags := make(map[string]string, len(raw.Tags))
	for k, v := range raw.Tags {
		tags[k] = v
	}

	data, err := plainObject(raw.Data)
	if err != nil {
		return Event{}, &MalformedEventError{EventID: id, Field: "data", Reason: err.Error()}
	}

	return Event{
		ID:        id,
		Seq:       raw.Seq,
		Type:      Type(typ),
		Timestamp: ts,
		Tags:      tags,
		Context:   promoteContext(raw.Context, tags),
		Severity:  ParseSeverity(raw.Severity),
		Data:      data,
		Source:    raw.Source,
	}, nil
}

// ToRaw converts an event back into its raw form. Normalize(e.ToRaw()) == e.
func (e Event) ToRaw() Raw {
	ctx := map[string]string{}
	if e.Context.IssueID != "" {
		ctx["issueId"] = e.Context.IssueID
	}
	if e.Context.WorkflowID != "" {
		ctx["workflowId"] = e.Context.WorkflowID
	}
	if e.Context.UserID != "" {
		ctx["userId"] = e.Context.UserID
	}
	if e.Context.SessionID != "" {
		ctx["sessionId"] = e.Context.SessionID
	}
	return Raw{
		ID:        e.ID,
		Seq:       e.Seq,
		Type:      string(e.Type),
		Timestamp: FormatTimestamp(e.Timestamp),
		Tags:      e.Tags,
		Context:   ctx,
		Severity:  string(e.Severity),
		Data:      e.Data,
		Source:    e.Source,
	}
}

// ParseTimestamp accepts RFC 3339 (with or without fractional seconds) and
// returns the instant in UTC.
func ParseTimestamp(s string) (time.Time, error) {
	s = strings.TrimSpace(s)
	for _, layout := range []string{time.RFC3339Nano, time.RFC3339, "2006-01-02T15:04:05.999999999"} {
		if t, err := time.Parse(layout, s); err == nil {
			return t.UTC(), nil
		}
	}
	return time.Time{}, fmt.Errorf("unparseable timestamp %q", s)
}

// FormatTimestamp renders t in the canonical wire form (RFC 3339, UTC, nanoseconds).
func FormatTimestamp(t time.Time) string {
	return t.UTC().Format(time.RFC3339Nano)
}

func promoteContext(raw, tags map[string]string) Context {
	pick := func(field string) string {
		if v := raw[field]; v != "" {
			return v
		}
		for _, alias := range contextAliases[field] {
			if v := tags[alias]; v != "" {
				return v
			}
		}
		return ""
	}
	return Context{
		IssueID:    pick("issueId"),
		WorkflowID: pick("workflowId"),
		UserID:     pick("userId"),
		SessionID:  pick("sessionId"),
	}
}

// plainObject deep-copies a payload into JSON-native values.
func plainObject(in map[string]any) (map[string]any, error) {
	out := make(map[string]any, len(in))
	for k, v := range in {
		pv, err := plainValue(v)
		if err != nil {
			return nil, fmt.Errorf("%s: %w", k, err)
		}
		out[k] = pv
	}
	return out, nil
}

// plainValue converts v into one of the JSON-native Go types.
func plainValue(v any) (any, error) {
	switch val := v.(type) {
	case nil, string, bool:
		return val, nil
	case float64:
		if math.IsNaN(val) || math.IsInf(val, 0) {
			return nil, fmt.Errorf("non-finite number")
		}
		return val, nil
	case float32:
		return plainValue(float64(val))
	case int:
		return float64(val), nil
	case int8:
		return float64(val), nil
	case int16:
		return float64(val), nil
	case int32:
		return float64(val), nil
	case int64:
		return float64(val), nil
	case uint:
		return float64(val), nil
	case uint8:
		return float64(val), nil
	case uint16:
		return float64(val), nil
	case uint32:
		return float64(val), nil
	case uint64:
		return float64(val), nil
	case time.Time:
		return FormatTimestamp(val), nil
	case map[string]any:
		return plainObject(val)
	case map[any]any:
		m := make(map[string]any, len(val))
		for k, elem := range val {
			pv, err := plainValue(elem)
			if err != nil {
				return nil, fmt.Errorf("%v: %w", k, err)
			}
			m[fmt.Sprint(k)] = pv
		}
		return m, nil
	case []any:
		arr := make([]any, len(val))
		for i, elem := range val {
			pv, err := plainValue(elem)
			if err != nil {
				return nil, fmt.Errorf("[%d]: %w", i, err)
			}
			arr[i] = pv
		}
		return arr, nil
	case []string:
		arr := make([]any, len(val))
		for i, s := range val {
			arr[i] = s
		}
		return arr, nil
	default:
		return nil, fmt.Errorf("unsupported payload type %T", v)
	}
}
