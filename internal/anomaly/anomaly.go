// Package anomaly flags statistically unusual patterns in a bounded event
// window.
//
// Detection is deterministic: the same events always yield the same anomalies
// in the same order. Nothing depends on the wall clock beyond the timestamps
// carried by the events.
package anomaly

import (
	"context"
	"log/slog"
	"sort"
	"time"

	"github.com/roach88/chronicle/internal/event"
)

// Kind classifies an anomaly.
type Kind string

const (
	KindTiming    Kind = "timing"
	KindFrequency Kind = "frequency"
	KindSequence  Kind = "sequence"
	KindContent   Kind = "content"
)

// Severity ranks anomalies.
type Severity string

const (
	SeverityLow      Severity = "low"
	SeverityMedium   Severity = "medium"
	SeverityHigh     Severity = "high"
	SeverityCritical Severity = "critical"
)

// Rank orders severities from low (0) to critical (3).
func (s Severity) Rank() int {
	switch s {
	case SeverityCritical:
		return 3
	case SeverityHigh:
		return 2
	case SeverityMedium:
		return 1
	default:
		return 0
	}
}

// Anomaly is one flagged pattern.
type Anomaly struct {
	Kind        Kind       `json:"type"`
	Severity    Severity   `json:"severity"`
	Description string     `json:"description"`
	EventIDs    []string   `json:"eventIds"`
	EventType   event.Type `json:"eventType,omitempty"`
	Detector    string     `json:"detector"`
}

// Detector is an extension point. Every detector receives the same input and
// must be deterministic.
type Detector interface {
	Name() string
	Detect(events []event.Event) []Anomaly
}

// DefaultMaxEventsPerType bounds timing analysis to the most recent events of
// each type.
const DefaultMaxEventsPerType = 1000

// Options configure an Analyzer.
type Options struct {
	// MaxEventsPerType caps the events per type considered by the timing
	// detector. Zero means DefaultMaxEventsPerType.
	MaxEventsPerType int

	// Detectors replaces the built-in detector set when non-nil.
	Detectors []Detector

	Logger *slog.Logger
}

// Analyzer runs a fixed set of detectors.
type Analyzer struct {
	detectors []Detector
	logger    *slog.Logger
}

// DefaultDetectors returns the built-in detectors in run order.
func DefaultDetectors(maxEventsPerType int) []Detector {
	return []Detector{
		NewTimingDetector(maxEventsPerType),
		FrequencyDetector{},
		SequenceDetector{},
		ContentDetector{},
	}
}

// NewAnalyzer creates an Analyzer.
func NewAnalyzer(opts Options) *Analyzer {
	a := &Analyzer{detectors: opts.Detectors, logger: opts.Logger}
	if a.detectors == nil {
		a.detectors = DefaultDetectors(opts.MaxEventsPerType)
	}
	if a.logger == nil {
		a.logger = slog.Default()
	}
	return a
}

// Report is the result of Analyze.
type Report struct {
	Anomalies      []Anomaly `json:"anomalies"`
	EventsAnalyzed int       `json:"eventsAnalyzed"`

	// Truncated is set when the context ended before every detector ran.
	Truncated bool `json:"truncated"`
}

// Analyze runs every detector over events, checking ctx between detectors.
// Anomalies are sorted by severity, highest first; ties keep detector order.
func (a *Analyzer) Analyze(ctx context.Context, events []event.Event) Report {
	r := Report{Anomalies: []Anomaly{}, EventsAnalyzed: len(events)}
	for _, d := range a.detectors {
		if err := interrupted(ctx); err != nil {
			a.logger.Warn("anomaly detection interrupted", "detector", d.Name(), "error", err)
			r.Truncated = true
			break
		}
		found := d.Detect(events)
		for i := range found {
			found[i].Detector = d.Name()
			if found[i].EventIDs == nil {
				found[i].EventIDs = []string{}
			}
		}
		r.Anomalies = append(r.Anomalies, found...)
	}
	SortBySeverity(r.Anomalies)
	return r
}

// Detect runs the default detectors and returns the sorted anomalies.
func Detect(events []event.Event) []Anomaly {
	return NewAnalyzer(Options{}).Analyze(context.Background(), events).Anomalies
}

// SortBySeverity stable-sorts anomalies from critical to low.
func SortBySeverity(as []Anomaly) {
	sort.SliceStable(as, func(i, j int) bool {
		return as[i].Severity.Rank() > as[j].Severity.Rank()
	})
}

// storeOrder returns events sorted by store sequence when every event has
// one, else in input order.
func storeOrder(events []event.Event) []event.Event {
	out := make([]event.Event, len(events))
	copy(out, events)
	for _, e := range out {
		if e.Seq == 0 {
			return out
		}
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].Seq < out[j].Seq })
	return out
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
