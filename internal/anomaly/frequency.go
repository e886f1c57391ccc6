package anomaly

import (
	"fmt"
	"math"
	"sort"
	"time"

	"github.com/roach88/chronicle/internal/event"
)

const (
	minFrequencyBuckets = 5
	frequencySigmas     = 3.0
)

// FrequencyDetector flags one-minute buckets whose event count exceeds the
// mean bucket count by more than 3σ. Buckets run from the first to the last
// event's minute, empty minutes included.
type FrequencyDetector struct{}

// Name implements Detector.
func (FrequencyDetector) Name() string { return "frequency" }

// Detect implements Detector.
func (FrequencyDetector) Detect(events []event.Event) []Anomaly {
	if len(events) == 0 {
		return nil
	}
	counts := map[int64][]string{}
	first, last := int64(math.MaxInt64), int64(math.MinInt64)
	for _, e := range events {
		m := e.Timestamp.Truncate(time.Minute).Unix() / 60
		counts[m] = append(counts[m], e.ID)
		if m < first {
			first = m
		}
		if m > last {
			last = m
		}
	}
	n := float64(last - first + 1)
	if n < minFrequencyBuckets {
		return nil
	}

	// Empty buckets contribute zero to both sums.
	var sumsq float64
	for _, ids := range counts {
		sumsq += float64(len(ids) * len(ids))
	}
	mean := float64(len(events)) / n
	variance := sumsq/n - mean*mean
	if variance <= 0 {
		return nil
	}
	threshold := mean + frequencySigmas*math.Sqrt(variance)

	minutes := make([]int64, 0, len(counts))
	for m := range counts {
		minutes = append(minutes, m)
	}
	sort.Slice(minutes, func(i, j int) bool { return minutes[i] < minutes[j] })

	var out []Anomaly
	for _, m := range minutes {
		ids := counts[m]
		if float64(len(ids)) <= threshold {
			continue
		}
		out = append(out, Anomaly{
			Kind:     KindFrequency,
			Severity: SeverityMedium,
			Description: fmt.Sprintf("%d events in the minute starting %s, above the burst threshold of %.1f per minute",
				len(ids), time.Unix(m*60, 0).UTC().Format(time.RFC3339), threshold),
			EventIDs: append([]string(nil), ids...),
		})
	}
	return out
}
