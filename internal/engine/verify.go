package engine

import (
	"context"
	"fmt"

	"github.com/roach88/chronicle/internal/event"
	"github.com/roach88/chronicle/internal/replay"
	"github.com/roach88/chronicle/internal/state"
)

// VerifyReport is the outcome of a determinism check.
type VerifyReport struct {
	Steps            int    `json:"steps"`
	FinalFingerprint string `json:"finalFingerprint"`
	Deterministic    bool   `json:"deterministic"`
}

// Verify replays req twice in batch mode and compares the fingerprint of
// every step. A divergence returns the report with a NON_DETERMINISTIC error.
func (e *Engine) Verify(ctx context.Context, req replay.Request) (VerifyReport, error) {
	req.Mode = replay.ModeBatch

	first, err := e.ctrl.Replay(ctx, req)
	if err != nil {
		return VerifyReport{}, err
	}
	second, err := e.ctrl.Replay(ctx, req)
	if err != nil {
		return VerifyReport{}, err
	}

	rep := VerifyReport{
		Steps:            len(first.Steps),
		FinalFingerprint: first.Summary.FinalFingerprint,
	}
	if len(first.Steps) != len(second.Steps) {
		return rep, &Error{
			Code:    ErrCodeNonDeterministic,
			Message: fmt.Sprintf("replays produced %d and %d steps", len(first.Steps), len(second.Steps)),
		}
	}
	for i := range first.Steps {
		a, b := first.Steps[i], second.Steps[i]
		if a.Fingerprint != b.Fingerprint {
			e.logger.Error("replay diverged", "index", i, "event_id", a.Event.ID)
			return rep, NewNonDeterministicError(i, a.Event.ID, a.Fingerprint, b.Fingerprint)
		}
	}
	if first.Summary.FinalFingerprint != second.Summary.FinalFingerprint {
		return rep, NewNonDeterministicError(len(first.Steps), "", first.Summary.FinalFingerprint, second.Summary.FinalFingerprint)
	}
	rep.Deterministic = true
	return rep, nil
}

// StreamState is the reconstructed state of one stream.
type StreamState struct {
	Key         event.StreamKey             `json:"key"`
	Events      int                         `json:"events"`
	State       state.State                 `json:"state"`
	Fingerprint string                      `json:"fingerprint"`
	Errors      []state.ReconstructionError `json:"errors"`

	// ResumedAt is the index of the cached snapshot the fold started from.
	ResumedAt int `json:"resumedAt"`
}

// StreamState reconstructs the current state of one stream, resuming from
// the nearest cached snapshot.
func (e *Engine) StreamState(ctx context.Context, key event.StreamKey) (StreamState, error) {
	raws, err := e.store.EventsByStream(ctx, key)
	if err != nil {
		return StreamState{}, err
	}
	events := make([]event.Event, 0, len(raws))
	for _, raw := range raws {
		ev, err := event.Normalize(raw)
		if err != nil {
			e.logger.Warn("skipping malformed event", "event_id", raw.ID, "error", err)
			continue
		}
		events = append(events, ev)
	}

	res := e.recon.ReconstructStream(ctx, key.String(), events)
	fp, err := res.Final.Fingerprint()
	if err != nil {
		return StreamState{}, err
	}
	errs := res.Errors
	if errs == nil {
		errs = []state.ReconstructionError{}
	}
	return StreamState{
		Key:         key,
		Events:      len(events),
		State:       res.Final,
		Fingerprint: fp,
		Errors:      errs,
		ResumedAt:   res.Offset,
	}, nil
}
