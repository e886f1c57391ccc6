package engine

import (
	"context"

	"go.opentelemetry.io/otel/attribute"

	"github.com/roach88/chronicle/internal/event"
	"github.com/roach88/chronicle/internal/store"
	"github.com/roach88/chronicle/internal/telemetry"
)

// IngestOptions controls Ingest.
type IngestOptions struct {
	// Validate checks every raw event against the JSON Schema before
	// normalization.
	Validate bool
}

// Rejection describes one event Ingest did not store.
type Rejection struct {
	Index   int    `json:"index"`
	EventID string `json:"eventId"`
	Code    string `json:"code"`
	Message string `json:"message"`
}

// IngestReport summarizes one Ingest call.
type IngestReport struct {
	Received   int         `json:"received"`
	Appended   int         `json:"appended"`
	Duplicates int         `json:"duplicates"`
	Rejected   []Rejection `json:"rejected"`
	LastSeq    int64       `json:"lastSeq"`
}

// Ingest normalizes raws and appends them in order.
//
// Events without an id get one from the configured generator. Invalid,
// malformed and conflicting events are itemized in the report and do not
// stop the batch. A store failure aborts the batch and is returned together
// with the partial report.
func (e *Engine) Ingest(ctx context.Context, raws []event.Raw, opts IngestOptions) (rep IngestReport, err error) {
	ctx, span := e.tel.Start(ctx, "engine.ingest", attribute.Int("events", len(raws)))
	defer func() { telemetry.EndSpan(span, err) }()

	rep = IngestReport{Received: len(raws), Rejected: []Rejection{}}

	base, err := e.store.LastSeq(ctx)
	if err != nil {
		return rep, err
	}
	rep.LastSeq = base
	seen := make(map[int64]bool, len(raws))

	for i, raw := range raws {
		if raw.ID == "" {
			raw.ID = e.ids.Generate()
		}
		if opts.Validate {
			if verr := event.ValidateRaw(raw); verr != nil {
				rep.reject(i, raw.ID, "SCHEMA_VIOLATION", verr.Error())
				continue
			}
		}
		ev, nerr := event.Normalize(raw)
		if nerr != nil {
			e.logger.Warn("rejecting malformed event", "event_id", raw.ID, "index", i, "error", nerr)
			rep.reject(i, raw.ID, event.ErrCodeMalformedEvent, nerr.Error())
			continue
		}

		seq, aerr := e.store.Append(ctx, ev)
		switch {
		case aerr == nil:
		case store.IsConflict(aerr):
			e.logger.Warn("rejecting conflicting event", "event_id", ev.ID, "index", i)
			rep.reject(i, ev.ID, store.ErrCodeConflict, aerr.Error())
			continue
		case store.IsUnavailable(aerr):
			return rep, aerr
		default:
			rep.reject(i, ev.ID, store.ErrCodeInvalid, aerr.Error())
			continue
		}

		if seq <= base || seen[seq] {
			rep.Duplicates++
		} else {
			rep.Appended++
			seen[seq] = true
		}
		if seq > rep.LastSeq {
			rep.LastSeq = seq
		}
	}

	e.logger.Info("ingest complete",
		"received", rep.Received,
		"appended", rep.Appended,
		"duplicates", rep.Duplicates,
		"rejected", len(rep.Rejected))
	return rep, nil
}

func (r *IngestReport) reject(index int, id, code, msg string) {
	r.Rejected = append(r.Rejected, Rejection{Index: index, EventID: id, Code: code, Message: msg})
}
