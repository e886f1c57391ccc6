package engine

import (
	"context"
	"encoding/json"
	"time"

	"go.opentelemetry.io/otel/attribute"

	"github.com/roach88/chronicle/internal/cache"
	"github.com/roach88/chronicle/internal/correlate"
	"github.com/roach88/chronicle/internal/event"
	"github.com/roach88/chronicle/internal/telemetry"
)

// Correlate returns the correlations rooted at the stored event rootID,
// bounded by the engine's correlation limit. See CorrelateWithin.
func (e *Engine) Correlate(ctx context.Context, rootID string) ([]correlate.Correlation, error) {
	return e.CorrelateWithin(ctx, rootID, 0)
}

// CorrelateWithin returns the correlations rooted at the stored event rootID.
//
// The batch is the root's workflow, issue and user streams plus every event
// within the correlation window of the root. d bounds the correlation phase;
// zero selects the engine default. Dimensions not reached in time come back
// with Truncated set and are not cached. Complete results are cached for the
// correlation TTL; cache failures only cost a recomputation.
func (e *Engine) CorrelateWithin(ctx context.Context, rootID string, d time.Duration) (cs []correlate.Correlation, err error) {
	ctx, span := e.tel.Start(ctx, "engine.correlate", attribute.String("root", rootID))
	defer func() { telemetry.EndSpan(span, err) }()

	key := cache.CorrelationKey(rootID)
	if b, ok, cerr := e.cache.Get(ctx, key); cerr != nil {
		e.logger.Warn("correlation cache read failed", "root", rootID, "error", cerr)
	} else if ok {
		var cached []correlate.Correlation
		if jerr := json.Unmarshal(b, &cached); jerr == nil {
			span.SetAttributes(attribute.Bool("cached", true))
			return cached, nil
		}
		e.logger.Debug("discarding undecodable correlation cache entry", "root", rootID)
	}

	raw, ok, err := e.store.EventByID(ctx, rootID)
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, NewNotFoundError(rootID)
	}
	root, err := event.Normalize(raw)
	if err != nil {
		return nil, err
	}

	batch, err := e.correlationBatch(ctx, root)
	if err != nil {
		return nil, err
	}
	if d <= 0 {
		d = e.maxCorr
	}
	cctx, cancel := bounded(ctx, d)
	defer cancel()
	cs = e.correlator.Correlate(cctx, root, batch)
	if expired(cctx) {
		span.SetAttributes(attribute.Bool("truncated", true))
		return cs, nil
	}

	if b, jerr := json.Marshal(cs); jerr == nil {
		if serr := e.cache.Set(ctx, key, b, e.corrTTL); serr != nil {
			e.logger.Warn("correlation cache write failed", "root", rootID, "error", serr)
		}
	}
	return cs, nil
}

func (e *Engine) correlationBatch(ctx context.Context, root event.Event) ([]event.Event, error) {
	var raws []event.Raw
	for _, k := range []event.StreamKey{
		{Kind: event.StreamWorkflow, ID: root.Context.WorkflowID},
		{Kind: event.StreamIssue, ID: root.Context.IssueID},
		{Kind: event.StreamUser, ID: root.Context.UserID},
	} {
		if k.ID == "" {
			continue
		}
		rs, err := e.store.EventsByStream(ctx, k)
		if err != nil {
			return nil, err
		}
		raws = append(raws, rs...)
	}

	w := e.correlator.Window()
	rs, err := e.store.EventsBetween(ctx, root.Timestamp.Add(-w), root.Timestamp.Add(w))
	if err != nil {
		return nil, err
	}
	raws = append(raws, rs...)

	seen := make(map[string]bool, len(raws))
	batch := make([]event.Event, 0, len(raws))
	for _, raw := range raws {
		if seen[raw.ID] {
			continue
		}
		seen[raw.ID] = true
		ev, err := event.Normalize(raw)
		if err != nil {
			e.logger.Warn("skipping malformed event", "event_id", raw.ID, "error", err)
			continue
		}
		batch = append(batch, ev)
	}
	return batch, nil
}
