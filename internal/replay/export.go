package replay

import (
	"bytes"
	"encoding/csv"
	"encoding/json"
	"fmt"
	"slices"
	"strconv"
	"strings"

	"github.com/roach88/chronicle/internal/correlate"
	"github.com/roach88/chronicle/internal/diff"
	"github.com/roach88/chronicle/internal/event"
)

// Format is an export encoding.
type Format string

const (
	FormatJSON Format = "json"
	FormatCSV  Format = "csv"
)

// ParseFormat maps "json"/"csv" to a Format.
func ParseFormat(s string) (Format, error) {
	switch f := Format(strings.ToLower(s)); f {
	case FormatJSON, FormatCSV:
		return f, nil
	default:
		return "", fmt.Errorf("unknown export format %q (want json or csv)", s)
	}
}

// Envelope kinds.
const (
	KindResult       = "replay.result"
	KindCorrelations = "correlations"
)

const exportVersion = 1

type envelope struct {
	Kind    string          `json:"kind"`
	Version int             `json:"version"`
	Payload json.RawMessage `json:"result"`
}

// Export encodes a Result or a []correlate.Correlation.
//
// JSON is lossless: ImportResult and ImportCorrelations invert it. CSV has
// one row per step or per related event.
func Export(v any, format Format) ([]byte, error) {
	var kind string
	switch v.(type) {
	case Result, *Result:
		kind = KindResult
	case []correlate.Correlation:
		kind = KindCorrelations
	default:
		return nil, fmt.Errorf("cannot export %T", v)
	}
	if r, ok := v.(*Result); ok {
		v = *r
	}

	switch format {
	case FormatJSON:
		payload, err := json.Marshal(v)
		if err != nil {
			return nil, fmt.Errorf("encode %s: %w", kind, err)
		}
		out, err := json.MarshalIndent(envelope{Kind: kind, Version: exportVersion, Payload: payload}, "", "  ")
		if err != nil {
			return nil, fmt.Errorf("encode envelope: %w", err)
		}
		return append(out, '\n'), nil
	case FormatCSV:
		if kind == KindResult {
			return resultCSV(v.(Result))
		}
		return correlationsCSV(v.([]correlate.Correlation))
	default:
		return nil, fmt.Errorf("unknown export format %q", format)
	}
}

// ImportResult decodes a JSON export of a Result.
func ImportResult(data []byte) (Result, error) {
	var r Result
	if err := decodeEnvelope(data, KindResult, &r); err != nil {
		return Result{}, err
	}
	return r, nil
}

// ImportCorrelations decodes a JSON export of correlations.
func ImportCorrelations(data []byte) ([]correlate.Correlation, error) {
	var cs []correlate.Correlation
	if err := decodeEnvelope(data, KindCorrelations, &cs); err != nil {
		return nil, err
	}
	return cs, nil
}

func decodeEnvelope(data []byte, kind string, into any) error {
	var env envelope
	if err := json.Unmarshal(data, &env); err != nil {
		return fmt.Errorf("decode export: %w", err)
	}
	if env.Kind != kind {
		return fmt.Errorf("export holds %q, not %q", env.Kind, kind)
	}
	if env.Version != exportVersion {
		return fmt.Errorf("unsupported export version %d", env.Version)
	}
	if err := json.Unmarshal(env.Payload, into); err != nil {
		return fmt.Errorf("decode %s: %w", kind, err)
	}
	return nil
}

var resultHeader = []string{"index", "event_id", "seq", "type", "timestamp", "severity", "skipped", "changes"}

func resultCSV(r Result) ([]byte, error) {
	var buf bytes.Buffer
	w := csv.NewWriter(&buf)
	if err := w.Write(resultHeader); err != nil {
		return nil, err
	}
	for _, st := range r.Steps {
		rec := []string{
			strconv.Itoa(st.Index),
			st.Event.ID,
			strconv.FormatInt(st.Event.Seq, 10),
			string(st.Event.Type),
			event.FormatTimestamp(st.Event.Timestamp),
			string(st.Event.Severity),
			strconv.FormatBool(st.Skipped),
			changeList(st.Diff),
		}
		if err := w.Write(rec); err != nil {
			return nil, err
		}
	}
	w.Flush()
	if err := w.Error(); err != nil {
		return nil, fmt.Errorf("write csv: %w", err)
	}
	return buf.Bytes(), nil
}

// changeList renders a diff as "+path;~path;-path".
func changeList(d diff.Diff) string {
	changes := d.Changes()
	parts := make([]string, len(changes))
	for i, c := range changes {
		switch c.Op {
		case diff.OpAdded:
			parts[i] = "+" + c.Path
		case diff.OpModified:
			parts[i] = "~" + c.Path
		default:
			parts[i] = "-" + c.Path
		}
	}
	return strings.Join(parts, ";")
}

var correlationHeader = []string{
	"root_event_id", "dimension", "key", "confidence",
	"related_id", "related_seq", "related_type", "related_timestamp", "related_severity", "message",
}

func correlationsCSV(cs []correlate.Correlation) ([]byte, error) {
	var buf bytes.Buffer
	w := csv.NewWriter(&buf)
	if err := w.Write(correlationHeader); err != nil {
		return nil, err
	}
	for _, c := range cs {
		head := []string{c.RootEventID, string(c.Dimension), c.Key, strconv.FormatFloat(c.Confidence, 'f', 2, 64)}
		if len(c.Related) == 0 {
			if err := w.Write(append(head, "", "", "", "", "", "")); err != nil {
				return nil, err
			}
			continue
		}
		for _, rel := range c.Related {
			rec := append(slices.Clone(head),
				rel.ID,
				strconv.FormatInt(rel.Seq, 10),
				string(rel.Type),
				event.FormatTimestamp(rel.Timestamp),
				string(rel.Severity),
				rel.Message,
			)
			if err := w.Write(rec); err != nil {
				return nil, err
			}
		}
	}
	w.Flush()
	if err := w.Error(); err != nil {
		return nil, fmt.Errorf("write csv: %w", err)
	}
	return buf.Bytes(), nil
}
