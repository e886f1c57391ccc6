package store

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/roach88/chronicle/internal/canon"
	"github.com/roach88/chronicle/internal/event"
)

// Row is the column-level representation of an event shared by the SQL
// adapters.
type Row struct {
	Seq         int64
	ID          string
	Type        string
	TsNanos     int64
	Timestamp   string
	Severity    string
	Source      string
	WorkflowID  string
	IssueID     string
	UserID      string
	SessionID   string
	Tags        string
	Data        string
	ContentHash string
}

// EncodeRow converts a normalized event into its row form. Seq is left zero;
// the database assigns it.
func EncodeRow(e event.Event) (Row, error) {
	if e.ID == "" {
		return Row{}, &AppendError{Code: ErrCodeInvalid, Message: "event id missing"}
	}
	hash, err := ContentHash(e)
	if err != nil {
		return Row{}, &AppendError{Code: ErrCodeInvalid, EventID: e.ID, Message: err.Error()}
	}
	tags, err := json.Marshal(nonNilTags(e.Tags))
	if err != nil {
		return Row{}, &AppendError{Code: ErrCodeInvalid, EventID: e.ID, Message: fmt.Sprintf("encode tags: %v", err)}
	}
	data, err := canon.Marshal(nonNilData(e.Data))
	if err != nil {
		return Row{}, &AppendError{Code: ErrCodeInvalid, EventID: e.ID, Message: fmt.Sprintf("encode data: %v", err)}
	}
	severity := e.Severity
	if severity == "" {
		severity = event.SeverityInfo
	}
	return Row{
		ID:          e.ID,
		Type:        string(e.Type),
		TsNanos:     e.Timestamp.UnixNano(),
		Timestamp:   event.FormatTimestamp(e.Timestamp),
		Severity:    string(severity),
		Source:      e.Source,
		WorkflowID:  e.Context.WorkflowID,
		IssueID:     e.Context.IssueID,
		UserID:      e.Context.UserID,
		SessionID:   e.Context.SessionID,
		Tags:        string(tags),
		Data:        string(data),
		ContentHash: hash,
	}, nil
}

// ContentHash fingerprints everything about an event except its store
// sequence. Two appends under one id are the same event iff hashes match.
func ContentHash(e event.Event) (string, error) {
	raw := e.ToRaw()
	raw.Seq = 0
	if raw.Severity == "" {
		raw.Severity = string(event.SeverityInfo)
	}
	return canon.Fingerprint(canon.DomainEvent, raw)
}

// Raw decodes the row into a raw event. Undecodable tag or data columns are
// passed through as empty maps so the caller's normalization still sees the
// event; the id, type and timestamp columns are never rewritten.
func (r Row) Raw() event.Raw {
	tags := map[string]string{}
	if r.Tags != "" {
		_ = json.Unmarshal([]byte(r.Tags), &tags)
	}
	data := map[string]any{}
	if r.Data != "" {
		_ = json.Unmarshal([]byte(r.Data), &data)
	}
	ctx := map[string]string{}
	if r.WorkflowID != "" {
		ctx["workflowId"] = r.WorkflowID
	}
	if r.IssueID != "" {
		ctx["issueId"] = r.IssueID
	}
	if r.UserID != "" {
		ctx["userId"] = r.UserID
	}
	if r.SessionID != "" {
		ctx["sessionId"] = r.SessionID
	}
	return event.Raw{
		ID:        r.ID,
		Seq:       r.Seq,
		Type:      r.Type,
		Timestamp: r.Timestamp,
		Tags:      tags,
		Context:   ctx,
		Severity:  r.Severity,
		Data:      data,
		Source:    r.Source,
	}
}

// StreamColumn returns the column holding the context field a stream kind is
// keyed by.
func StreamColumn(kind event.StreamKind) (string, error) {
	switch kind {
	case event.StreamWorkflow:
		return "workflow_id", nil
	case event.StreamIssue:
		return "issue_id", nil
	case event.StreamUser:
		return "user_id", nil
	case event.StreamSession:
		return "session_id", nil
	default:
		return "", fmt.Errorf("unknown stream kind %q", kind)
	}
}

// Columns is the select list matching Scanner.Scan order in ScanRow.
const Columns = "seq, id, type, ts_ns, timestamp, severity, source, workflow_id, issue_id, user_id, session_id, tags, data, content_hash"

// Scanner is satisfied by *sql.Row and *sql.Rows.
type Scanner interface {
	Scan(dest ...any) error
}

// ScanRow reads one row selected with Columns.
func ScanRow(sc Scanner) (Row, error) {
	var r Row
	err := sc.Scan(&r.Seq, &r.ID, &r.Type, &r.TsNanos, &r.Timestamp, &r.Severity, &r.Source,
		&r.WorkflowID, &r.IssueID, &r.UserID, &r.SessionID, &r.Tags, &r.Data, &r.ContentHash)
	return r, err
}

// StreamInfo summarizes one stream in the log.
type StreamInfo struct {
	Key        event.StreamKey `json:"key"`
	EventCount int             `json:"eventCount"`
	First      time.Time       `json:"first"`
	Last       time.Time       `json:"last"`
	LastSeq    int64           `json:"lastSeq"`
}

func nonNilTags(m map[string]string) map[string]string {
	if m == nil {
		return map[string]string{}
	}
	return m
}

func nonNilData(m map[string]any) map[string]any {
	if m == nil {
		return map[string]any{}
	}
	return m
}
