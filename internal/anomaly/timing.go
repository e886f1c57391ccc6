package anomaly

import (
	"fmt"
	"math"
	"sort"

	"github.com/roach88/chronicle/internal/event"
)

// Timing thresholds.
const (
	minTimingGroup      = 5
	timingSigmas        = 2.0
	highOutlierFraction = 0.2
)

// TimingDetector flags inter-arrival intervals more than 2σ from the mean
// within each event type.
type TimingDetector struct {
	maxEventsPerType int
}

// NewTimingDetector creates a timing detector that looks at no more than the
// most recent n events of each type.
func NewTimingDetector(n int) TimingDetector {
	if n <= 0 {
		n = DefaultMaxEventsPerType
	}
	return TimingDetector{maxEventsPerType: n}
}

// Name implements Detector.
func (TimingDetector) Name() string { return "timing" }

// Detect implements Detector.
//
// Events are grouped by type; groups with fewer than five events are skipped.
// Each group yields at most one anomaly, whose severity is high when more
// than 20% of its intervals are outliers and medium otherwise.
func (d TimingDetector) Detect(events []event.Event) []Anomaly {
	groups := map[event.Type][]event.Event{}
	for _, e := range events {
		groups[e.Type] = append(groups[e.Type], e)
	}
	types := make([]event.Type, 0, len(groups))
	for t := range groups {
		types = append(types, t)
	}
	sort.Slice(types, func(i, j int) bool { return types[i] < types[j] })

	var out []Anomaly
	for _, t := range types {
		group := groups[t]
		sort.SliceStable(group, func(i, j int) bool { return group[i].Before(group[j]) })
		if len(group) > d.maxEventsPerType {
			group = group[len(group)-d.maxEventsPerType:]
		}
		if len(group) < minTimingGroup {
			continue
		}
		if a, ok := timingAnomaly(t, group); ok {
			out = append(out, a)
		}
	}
	return out
}

func timingAnomaly(t event.Type, group []event.Event) (Anomaly, bool) {
	intervals := make([]float64, len(group)-1)
	for i := 1; i < len(group); i++ {
		intervals[i-1] = group[i].Timestamp.Sub(group[i-1].Timestamp).Seconds()
	}
	mean, sigma := meanStddev(intervals)
	if sigma == 0 {
		return Anomaly{}, false
	}

	var ids []string
	for i, x := range intervals {
		if math.Abs(x-mean) > timingSigmas*sigma {
			ids = append(ids, group[i+1].ID)
		}
	}
	if len(ids) == 0 {
		return Anomaly{}, false
	}

	sev := SeverityMedium
	if float64(len(ids))/float64(len(intervals)) > highOutlierFraction {
		sev = SeverityHigh
	}
	return Anomaly{
		Kind:     KindTiming,
		Severity: sev,
		Description: fmt.Sprintf("%d of %d intervals between %s events deviate more than 2σ from the mean of %.1fs (σ=%.1fs)",
			len(ids), len(intervals), t, mean, sigma),
		EventIDs:  ids,
		EventType: t,
	}, true
}

// meanStddev returns the mean and population standard deviation of xs.
func meanStddev(xs []float64) (float64, float64) {
	if len(xs) == 0 {
		return 0, 0
	}
	var sum float64
	for _, x := range xs {
		sum += x
	}
	mean := sum / float64(len(xs))
	var sq float64
	for _, x := range xs {
		sq += (x - mean) * (x - mean)
	}
	return mean, math.Sqrt(sq / float64(len(xs)))
}
