package anomaly

import (
	"fmt"
	"strings"

	"github.com/roach88/chronicle/internal/event"
)

// ContentDetector flags events whose content is inconsistent with their
// classification: error-level events without a message, and types that do
// not follow the AGGREGATE.ACTION.STATUS taxonomy.
type ContentDetector struct{}

// Name implements Detector.
func (ContentDetector) Name() string { return "content" }

// Detect implements Detector.
func (ContentDetector) Detect(events []event.Event) []Anomaly {
	var silent, malformedType []string
	for _, e := range events {
		if e.Severity.AtLeast(event.SeverityError) && strings.TrimSpace(e.Message()) == "" {
			silent = append(silent, e.ID)
		}
		if strings.Count(string(e.Type), ".") != 2 {
			malformedType = append(malformedType, e.ID)
		}
	}

	var out []Anomaly
	if len(silent) > 0 {
		out = append(out, Anomaly{
			Kind:        KindContent,
			Severity:    SeverityLow,
			Description: fmt.Sprintf("%d error-level events carry no message", len(silent)),
			EventIDs:    silent,
		})
	}
	if len(malformedType) > 0 {
		out = append(out, Anomaly{
			Kind:        KindContent,
			Severity:    SeverityLow,
			Description: fmt.Sprintf("%d events have types outside the aggregate.action.status taxonomy", len(malformedType)),
			EventIDs:    malformedType,
		})
	}
	return out
}
