package correlate

import "github.com/roach88/chronicle/internal/event"

// Scorer assigns a confidence in [0,1] to a correlation.
//
// Implementations must be monotone: adding a related event that shares
// context with the root never lowers the score.
type Scorer interface {
	Score(root event.Event, dim Dimension, related []event.Event) float64
}

// HeuristicScorer is a weighted accumulation, not a statistical model:
// 0.5 base, +0.2 if anything is related, +0.2 if a related event shares the
// root's workflow, +0.1 if one shares its issue, capped at 1.
type HeuristicScorer struct{}

// Score implements Scorer.
func (HeuristicScorer) Score(root event.Event, _ Dimension, related []event.Event) float64 {
	// Tenths, so that sums compare exactly.
	tenths := 5
	if len(related) > 0 {
		tenths += 2
	}
	var sharesWorkflow, sharesIssue bool
	for _, e := range related {
		if root.Context.WorkflowID != "" && e.Context.WorkflowID == root.Context.WorkflowID {
			sharesWorkflow = true
		}
		if root.Context.IssueID != "" && e.Context.IssueID == root.Context.IssueID {
			sharesIssue = true
		}
	}
	if sharesWorkflow {
		tenths += 2
	}
	if sharesIssue {
		tenths++
	}
	if tenths > 10 {
		tenths = 10
	}
	return float64(tenths) / 10
}
