package state

import (
	"context"
	"fmt"
	"log/slog"
	"slices"

	"github.com/roach88/chronicle/internal/event"
)

// Policy selects what the Reconstructor does when a transition fails.
type Policy string

const (
	// PolicySkip records the error, leaves the state unchanged and continues.
	// Default for batch analysis.
	PolicySkip Policy = "skip"

	// PolicyHalt records the error and stops with the state as of the last
	// good event. Default for interactive stepping.
	PolicyHalt Policy = "halt"
)

// ParsePolicy maps "skip"/"halt" to a Policy.
func ParsePolicy(s string) (Policy, error) {
	switch p := Policy(s); p {
	case PolicySkip, PolicyHalt:
		return p, nil
	default:
		return "", fmt.Errorf("unknown error policy %q (want skip or halt)", s)
	}
}

// DefaultSnapshotInterval is the event count between cached snapshots.
const DefaultSnapshotInterval = 10

// Result is the outcome of folding a sequence of events.
type Result struct {
	// Final is the state after the last applied event.
	Final State

	// Snapshots[i] is the state after events[Offset+i]. A skipped event
	// repeats the previous snapshot.
	Snapshots []State

	// Offset is the index of the first folded event; non-zero when the fold
	// resumed from a cached snapshot.
	Offset int

	// Errors lists every failed transition in event order.
	Errors []ReconstructionError

	// Halted is true when PolicyHalt stopped the fold early.
	Halted bool
}

// Processed returns the number of events covered by Snapshots.
func (r Result) Processed() int {
	return len(r.Snapshots)
}

// Reconstructor folds ordered events into State.
//
// A Reconstructor holds no per-fold state and is safe for concurrent use.
type Reconstructor struct {
	registry *Registry
	policy   Policy
	interval int
	cache    *SnapshotCache
	logger   *slog.Logger
}

// Option configures a Reconstructor.
type Option func(*Reconstructor)

// WithRegistry sets the transition registry. Default: DefaultRegistry().
func WithRegistry(r *Registry) Option {
	return func(rc *Reconstructor) { rc.registry = r }
}

// WithPolicy sets the failure policy. Default: PolicySkip.
func WithPolicy(p Policy) Option {
	return func(rc *Reconstructor) { rc.policy = p }
}

// WithSnapshotInterval sets the snapshot cache granularity in events.
func WithSnapshotInterval(n int) Option {
	return func(rc *Reconstructor) {
		if n > 0 {
			rc.interval = n
		}
	}
}

// WithSnapshotCache enables snapshot caching for ReconstructStream.
func WithSnapshotCache(c *SnapshotCache) Option {
	return func(rc *Reconstructor) { rc.cache = c }
}

// WithLogger sets the logger. Default: slog.Default().
func WithLogger(l *slog.Logger) Option {
	return func(rc *Reconstructor) { rc.logger = l }
}

// NewReconstructor creates a Reconstructor.
func NewReconstructor(opts ...Option) *Reconstructor {
	rc := &Reconstructor{
		registry: DefaultRegistry(),
		policy:   PolicySkip,
		interval: DefaultSnapshotInterval,
	}
	for _, opt := range opts {
		opt(rc)
	}
	if rc.logger == nil {
		rc.logger = slog.Default()
	}
	return rc
}

// Policy returns the configured failure policy.
func (rc *Reconstructor) Policy() Policy {
	return rc.policy
}

// SnapshotInterval returns the snapshot granularity.
func (rc *Reconstructor) SnapshotInterval() int {
	return rc.interval
}

// Apply folds a single event into s and returns the resulting state.
//
// s is never modified. Unregistered types return s itself. On failure the
// returned state is s and the error describes the failed transition; index is
// the event's position, used only for error reporting.
func (rc *Reconstructor) Apply(s State, e event.Event, index int) (State, *ReconstructionError) {
	fn, ok := rc.registry.Lookup(e.Type)
	if !ok {
		return s, nil
	}
	next, err := safeTransition(fn, s.Clone(), e)
	if err != nil {
		return s, &ReconstructionError{
			EventIndex: index,
			EventID:    e.ID,
			EventType:  string(e.Type),
			Message:    err.Error(),
		}
	}
	if next == nil {
		return s, &ReconstructionError{
			EventIndex: index,
			EventID:    e.ID,
			EventType:  string(e.Type),
			Message:    "transition returned nil state",
		}
	}
	return next, nil
}

// safeTransition converts a panicking transition into an error.
func safeTransition(fn TransitionFunc, s State, e event.Event) (out State, err error) {
	defer func() {
		if r := recover(); r != nil {
			out, err = nil, fmt.Errorf("transition panicked: %v", r)
		}
	}()
	return fn(s, e)
}

// Reconstruct folds events into initial in order.
//
// With no events it returns initial unchanged. The fold is pure: identical
// inputs always produce identical results.
func (rc *Reconstructor) Reconstruct(initial State, events []event.Event) Result {
	return rc.fold(initial, events, 0)
}

func (rc *Reconstructor) fold(initial State, events []event.Event, offset int) Result {
	res := Result{
		Final:     initial,
		Snapshots: make([]State, 0, len(events)),
		Offset:    offset,
		Errors:    []ReconstructionError{},
	}
	cur := initial
	for i, e := range events {
		next, rerr := rc.Apply(cur, e, offset+i)
		if rerr != nil {
			res.Errors = append(res.Errors, *rerr)
			rc.logger.Warn("transition failed",
				"event_id", e.ID,
				"event_type", string(e.Type),
				"index", offset+i,
				"error", rerr.Message)
			if rc.policy == PolicyHalt {
				res.Halted = true
				break
			}
		}
		cur = next
		res.Snapshots = append(res.Snapshots, cur)
	}
	res.Final = cur
	return res
}

// ReconstructStream folds the full ordered history of one stream, resuming
// from the nearest cached snapshot and caching a snapshot every interval
// events.
//
// streamID must address a stream whose history is append-only: a cached
// snapshot at index k is only reused when events[k-1] has the id recorded with
// it. Without a cache this is Reconstruct(New(), events).
func (rc *Reconstructor) ReconstructStream(ctx context.Context, streamID string, events []event.Event) Result {
	if rc.cache == nil || streamID == "" {
		return rc.Reconstruct(New(), events)
	}

	start, prefix := rc.nearestSnapshot(ctx, streamID, events)
	res := rc.fold(prefix.State, events[start:], start)

	// Errors raised before the snapshot belong to this history too.
	if len(prefix.Errors) > 0 {
		res.Errors = append(slices.Clone(prefix.Errors), res.Errors...)
	}

	for i, snap := range res.Snapshots {
		idx := start + i + 1
		if idx%rc.interval != 0 {
			continue
		}
		entry := Snapshot{
			State:       snap,
			LastEventID: events[idx-1].ID,
			Errors:      errorsBefore(res.Errors, idx),
		}
		if err := rc.cache.Put(ctx, streamID, idx, entry); err != nil {
			rc.logger.Warn("snapshot cache write failed", "stream", streamID, "index", idx, "error", err)
		}
	}
	return res
}

// errorsBefore returns the errors raised by the first n events.
func errorsBefore(errs []ReconstructionError, n int) []ReconstructionError {
	var out []ReconstructionError
	for _, e := range errs {
		if e.EventIndex < n {
			out = append(out, e)
		}
	}
	return out
}

// nearestSnapshot finds the highest cached snapshot index at or below
// len(events). It returns 0 and an empty snapshot of New() when nothing
// usable is cached.
func (rc *Reconstructor) nearestSnapshot(ctx context.Context, streamID string, events []event.Event) (int, Snapshot) {
	for idx := (len(events) / rc.interval) * rc.interval; idx > 0; idx -= rc.interval {
		snap, ok, err := rc.cache.Get(ctx, streamID, idx)
		if err != nil {
			rc.logger.Warn("snapshot cache read failed", "stream", streamID, "index", idx, "error", err)
			break
		}
		if !ok {
			continue
		}
		if snap.LastEventID != events[idx-1].ID {
			rc.logger.Debug("snapshot cache entry stale", "stream", streamID, "index", idx)
			continue
		}
		return idx, snap
	}
	return 0, Snapshot{State: New()}
}
