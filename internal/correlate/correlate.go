// Package correlate discovers events related to a root event along the
// workflow, issue, user and performance dimensions and scores each
// relationship.
//
// Relationships are computed fresh on every request from an index over the
// fetched batch. Nothing is persisted: an event may relate to the root and the
// root to it, and the graph is never materialized.
package correlate

import (
	"context"
	"log/slog"
	"sort"
	"strings"
	"time"

	"github.com/roach88/chronicle/internal/event"
)

// Dimension is the axis along which events are related.
type Dimension string

const (
	DimensionWorkflow    Dimension = "workflow"
	DimensionIssue       Dimension = "issue"
	DimensionUser        Dimension = "user"
	DimensionPerformance Dimension = "performance"
)

// Defaults for Options.
const (
	DefaultWindow     = 5 * time.Minute
	DefaultMaxRelated = 500
)

// RelatedEvent is a compact reference to an event related to the root.
type RelatedEvent struct {
	ID        string         `json:"id"`
	Seq       int64          `json:"seq"`
	Type      event.Type     `json:"type"`
	Timestamp time.Time      `json:"timestamp"`
	Severity  event.Severity `json:"severity"`
	Context   event.Context  `json:"context"`
	Message   string         `json:"message"`
}

// Analysis holds human-readable findings for one correlation.
type Analysis struct {
	Patterns        []string `json:"patterns"`
	Insights        []string `json:"insights"`
	Recommendations []string `json:"recommendations"`
}

// Correlation relates a root event to other events along one dimension.
type Correlation struct {
	RootEventID string         `json:"rootEventId"`
	Dimension   Dimension      `json:"dimension"`
	Key         string         `json:"key"`
	Related     []RelatedEvent `json:"related"`
	Confidence  float64        `json:"confidence"`
	Analysis    Analysis       `json:"analysis"`

	// Total is the number of related events found before capping.
	Total int `json:"total"`

	// Truncated is set when Related was capped or the request ran out of time.
	Truncated bool `json:"truncated"`
}

// Options configure an Engine.
type Options struct {
	// Window is the half-width of the performance search around the root.
	Window time.Duration

	// MaxRelated caps the related events reported per correlation; the
	// events closest in time to the root are kept.
	MaxRelated int

	Scorer Scorer
	Logger *slog.Logger
}

// Engine computes correlations. It holds no per-request state and is safe
// for concurrent use.
type Engine struct {
	window     time.Duration
	maxRelated int
	scorer     Scorer
	logger     *slog.Logger
}

// New creates an Engine, filling unset options with defaults.
func New(opts Options) *Engine {
	e := &Engine{
		window:     opts.Window,
		maxRelated: opts.MaxRelated,
		scorer:     opts.Scorer,
		logger:     opts.Logger,
	}
	if e.window <= 0 {
		e.window = DefaultWindow
	}
	if e.maxRelated <= 0 {
		e.maxRelated = DefaultMaxRelated
	}
	if e.scorer == nil {
		e.scorer = HeuristicScorer{}
	}
	if e.logger == nil {
		e.logger = slog.Default()
	}
	return e
}

// Window returns the performance search half-width.
func (e *Engine) Window() time.Duration {
	return e.window
}

// Correlate returns one correlation per context dimension the root
// populates (workflow, issue, user, in that order) followed by the
// performance correlation, which is always present.
//
// batch is the candidate set; it may contain the root, duplicates and
// unrelated events. If ctx is done before every dimension is computed, the
// remaining dimensions are returned empty and marked truncated.
func (e *Engine) Correlate(ctx context.Context, root event.Event, batch []event.Event) []Correlation {
	idx := newIndex(root, batch)

	type plan struct {
		dim Dimension
		key string
		ids []int
	}
	var plans []plan
	if w := root.Context.WorkflowID; w != "" {
		plans = append(plans, plan{DimensionWorkflow, w, idx.byWorkflow[w]})
	}
	if i := root.Context.IssueID; i != "" {
		plans = append(plans, plan{DimensionIssue, i, idx.byIssue[i]})
	}
	if u := root.Context.UserID; u != "" {
		plans = append(plans, plan{DimensionUser, u, idx.byUser[u]})
	}
	plans = append(plans, plan{DimensionPerformance, "±" + e.window.String(), idx.performance(root.Timestamp, e.window)})

	out := make([]Correlation, 0, len(plans))
	for _, p := range plans {
		if err := interrupted(ctx); err != nil {
			e.logger.Warn("correlation interrupted", "root", root.ID, "dimension", string(p.dim), "error", err)
			out = append(out, Correlation{
				RootEventID: root.ID,
				Dimension:   p.dim,
				Key:         p.key,
				Related:     []RelatedEvent{},
				Confidence:  e.scorer.Score(root, p.dim, nil),
				Analysis:    emptyAnalysis(),
				Truncated:   true,
			})
			continue
		}
		out = append(out, e.build(root, p.dim, p.key, idx.resolve(p.ids)))
	}
	return out
}

func (e *Engine) build(root event.Event, dim Dimension, key string, related []event.Event) Correlation {
	c := Correlation{
		RootEventID: root.ID,
		Dimension:   dim,
		Key:         key,
		Confidence:  clamp(e.scorer.Score(root, dim, related)),
		Analysis:    analyze(root, dim, related),
		Total:       len(related),
	}

	kept := related
	if len(kept) > e.maxRelated {
		kept = closest(root, related, e.maxRelated)
		c.Truncated = true
	}
	c.Related = make([]RelatedEvent, len(kept))
	for i, ev := range kept {
		c.Related[i] = toRelated(ev)
	}
	return c
}

func toRelated(e event.Event) RelatedEvent {
	return RelatedEvent{
		ID:        e.ID,
		Seq:       e.Seq,
		Type:      e.Type,
		Timestamp: e.Timestamp,
		Severity:  e.Severity,
		Context:   e.Context,
		Message:   e.Message(),
	}
}

// closest keeps the n events nearest in time to root, returned in event order.
func closest(root event.Event, events []event.Event, n int) []event.Event {
	ranked := make([]event.Event, len(events))
	copy(ranked, events)
	sort.SliceStable(ranked, func(i, j int) bool {
		di, dj := absDuration(ranked[i].Timestamp.Sub(root.Timestamp)), absDuration(ranked[j].Timestamp.Sub(root.Timestamp))
		if di != dj {
			return di < dj
		}
		return ranked[i].Before(ranked[j])
	})
	kept := ranked[:n]
	sort.SliceStable(kept, func(i, j int) bool { return kept[i].Before(kept[j]) })
	return kept
}

func absDuration(d time.Duration) time.Duration {
	if d < 0 {
		return -d
	}
	return d
}

// IsPerformanceSignal reports whether e indicates a slowdown, timeout or
// error: a failed/timeout/error status, a type mentioning timeout or slow, or
// a severity of error or above.
func IsPerformanceSignal(e event.Event) bool {
	switch e.Type.Status() {
	case "failed", "timeout", "timedout", "error":
		return true
	}
	t := string(e.Type)
	if strings.Contains(t, "timeout") || strings.Contains(t, "slow") {
		return true
	}
	return e.Severity.AtLeast(event.SeverityError)
}

func clamp(f float64) float64 {
	switch {
	case f < 0:
		return 0
	case f > 1:
		return 1
	default:
		return f
	}
}

// interrupted reports why ctx should stop work. A deadline that has passed
// counts even before the context's timer fires.
func interrupted(ctx context.Context) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if d, ok := ctx.Deadline(); ok && !time.Now().Before(d) {
		return context.DeadlineExceeded
	}
	return nil
}
