package correlate

import (
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/roach88/chronicle/internal/event"
)

func emptyAnalysis() Analysis {
	return Analysis{Patterns: []string{}, Insights: []string{}, Recommendations: []string{}}
}

// analyze derives findings for one dimension from its related events alone.
func analyze(root event.Event, dim Dimension, related []event.Event) Analysis {
	a := emptyAnalysis()
	if len(related) == 0 {
		a.Insights = append(a.Insights, fmt.Sprintf("no %s events related to %s", dim, root.ID))
		return a
	}

	failures := filter(related, func(e event.Event) bool { return e.Type.Status() == "failed" })
	errs := filter(related, func(e event.Event) bool { return e.Severity.AtLeast(event.SeverityError) })
	first, last := related[0].Timestamp, related[len(related)-1].Timestamp

	a.Insights = append(a.Insights, fmt.Sprintf("%d related events spanning %s", len(related), last.Sub(first).Round(time.Second)))
	if len(errs) > 0 {
		a.Insights = append(a.Insights, fmt.Sprintf("%d of %d related events are error or critical", len(errs), len(related)))
	}

	switch dim {
	case DimensionWorkflow:
		analyzeWorkflow(&a, related, failures)
	case DimensionIssue:
		analyzeIssue(&a, related, errs)
	case DimensionUser:
		analyzeUser(&a, related, errs)
	case DimensionPerformance:
		analyzePerformance(&a, root, related)
	}
	return a
}

func analyzeWorkflow(a *Analysis, related, failures []event.Event) {
	var failedSteps []string
	for _, e := range failures {
		if e.Type.Action() == "step" {
			if step, _ := e.Data["step"].(string); step != "" {
				failedSteps = append(failedSteps, step)
			}
		}
	}
	if len(failures) > 0 {
		a.Patterns = append(a.Patterns, "workflow contains failed steps")
	}
	for _, e := range related {
		switch e.Type.Status() {
		case "cancelled":
			a.Patterns = appendOnce(a.Patterns, "workflow was cancelled")
		case "started":
			if e.Type.Action() == "run" && countType(related, e.Type) > 1 {
				a.Patterns = appendOnce(a.Patterns, "workflow was restarted")
			}
		}
	}
	for _, step := range uniqueSorted(failedSteps) {
		a.Recommendations = append(a.Recommendations, fmt.Sprintf("inspect the logs of failed step %q", step))
	}
	if len(failures) > 0 && len(failedSteps) == 0 {
		a.Recommendations = append(a.Recommendations, "replay the workflow stream to locate the failing transition")
	}
}

func analyzeIssue(a *Analysis, related, errs []event.Event) {
	workflows := distinct(related, func(e event.Event) string { return e.Context.WorkflowID })
	users := distinct(related, func(e event.Event) string { return e.Context.UserID })
	if len(workflows) > 1 {
		a.Patterns = append(a.Patterns, fmt.Sprintf("issue touched by %d workflows", len(workflows)))
	}
	if len(users) > 0 {
		a.Insights = append(a.Insights, fmt.Sprintf("%d distinct users acted on the issue", len(users)))
	}
	if countStatus(related, "reopened") > 0 {
		a.Patterns = append(a.Patterns, "issue was reopened")
	}
	if len(errs) > 0 {
		a.Recommendations = append(a.Recommendations, "review error events linked to the issue before retrying its workflows")
	}
}

func analyzeUser(a *Analysis, related, errs []event.Event) {
	workflows := distinct(related, func(e event.Event) string { return e.Context.WorkflowID })
	if len(workflows) > 1 {
		a.Patterns = append(a.Patterns, fmt.Sprintf("user active across %d workflows", len(workflows)))
	}
	if len(errs)*2 > len(related) {
		a.Patterns = append(a.Patterns, "majority of user activity ends in errors")
		a.Recommendations = append(a.Recommendations, "check the user's permissions and integration credentials")
	}
}

func analyzePerformance(a *Analysis, root event.Event, related []event.Event) {
	timeouts := filter(related, func(e event.Event) bool {
		return e.Type.Status() == "timeout" || e.Type.Status() == "timedout" || strings.Contains(string(e.Type), "timeout")
	})
	slow := filter(related, func(e event.Event) bool { return strings.Contains(string(e.Type), "slow") })
	if len(timeouts) > 0 {
		a.Patterns = append(a.Patterns, fmt.Sprintf("%d timeouts near the root event", len(timeouts)))
	}
	if len(slow) > 0 {
		a.Patterns = append(a.Patterns, fmt.Sprintf("%d slowdowns near the root event", len(slow)))
	}
	before := filter(related, func(e event.Event) bool { return e.Timestamp.Before(root.Timestamp) })
	if len(before) > 0 {
		a.Insights = append(a.Insights, fmt.Sprintf("%d signals precede the root event", len(before)))
	}
	sources := distinct(related, func(e event.Event) string { return e.Source })
	if len(sources) > 1 {
		a.Patterns = append(a.Patterns, fmt.Sprintf("signals come from %d subsystems", len(sources)))
	}
	if len(related) >= 3 {
		a.Recommendations = append(a.Recommendations, "investigate shared resource contention in the surrounding window")
	}
	if len(timeouts) > 0 {
		a.Recommendations = append(a.Recommendations, "review timeout budgets of the affected integrations")
	}
}

func filter(events []event.Event, keep func(event.Event) bool) []event.Event {
	var out []event.Event
	for _, e := range events {
		if keep(e) {
			out = append(out, e)
		}
	}
	return out
}

func distinct(events []event.Event, key func(event.Event) string) []string {
	var vals []string
	for _, e := range events {
		if k := key(e); k != "" {
			vals = append(vals, k)
		}
	}
	return uniqueSorted(vals)
}

func uniqueSorted(vals []string) []string {
	seen := map[string]bool{}
	var out []string
	for _, v := range vals {
		if !seen[v] {
			seen[v] = true
			out = append(out, v)
		}
	}
	sort.Strings(out)
	return out
}

func countType(events []event.Event, t event.Type) int {
	n := 0
	for _, e := range events {
		if e.Type == t {
			n++
		}
	}
	return n
}

func countStatus(events []event.Event, status string) int {
	n := 0
	for _, e := range events {
		if e.Type.Status() == status {
			n++
		}
	}
	return n
}

func appendOnce(list []string, s string) []string {
	for _, v := range list {
		if v == s {
			return list
		}
	}
	return append(list, s)
}
