package correlate

import (
	"sort"
	"time"

	"github.com/roach88/chronicle/internal/event"
)

// index is a per-request arena over the candidate batch. Relationships are
// expressed as positions into events, never as pointers between events.
type index struct {
	events     []event.Event
	byWorkflow map[string][]int
	byIssue    map[string][]int
	byUser     map[string][]int
	byTime     []int
}

// newIndex deduplicates batch by id, drops the root and orders the rest by
// (timestamp, seq, id).
func newIndex(root event.Event, batch []event.Event) *index {
	seen := map[string]bool{root.ID: true}
	events := make([]event.Event, 0, len(batch))
	for _, e := range batch {
		if seen[e.ID] {
			continue
		}
		seen[e.ID] = true
		events = append(events, e)
	}
	sort.SliceStable(events, func(i, j int) bool { return events[i].Before(events[j]) })

	idx := &index{
		events:     events,
		byWorkflow: map[string][]int{},
		byIssue:    map[string][]int{},
		byUser:     map[string][]int{},
		byTime:     make([]int, len(events)),
	}
	for i, e := range events {
		idx.byTime[i] = i
		if w := e.Context.WorkflowID; w != "" {
			idx.byWorkflow[w] = append(idx.byWorkflow[w], i)
		}
		if is := e.Context.IssueID; is != "" {
			idx.byIssue[is] = append(idx.byIssue[is], i)
		}
		if u := e.Context.UserID; u != "" {
			idx.byUser[u] = append(idx.byUser[u], i)
		}
	}
	return idx
}

// performance returns positions of performance signals within
// [center-window, center+window].
func (idx *index) performance(center time.Time, window time.Duration) []int {
	lo, hi := center.Add(-window), center.Add(window)
	start := sort.Search(len(idx.byTime), func(i int) bool {
		return !idx.events[idx.byTime[i]].Timestamp.Before(lo)
	})
	var out []int
	for i := start; i < len(idx.byTime); i++ {
		e := idx.events[idx.byTime[i]]
		if e.Timestamp.After(hi) {
			break
		}
		if IsPerformanceSignal(e) {
			out = append(out, idx.byTime[i])
		}
	}
	return out
}

func (idx *index) resolve(positions []int) []event.Event {
	out := make([]event.Event, len(positions))
	for i, p := range positions {
		out[i] = idx.events[p]
	}
	return out
}
