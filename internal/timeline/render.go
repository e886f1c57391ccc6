package timeline

import (
	"fmt"
	"io"
	"time"
)

const clockLayout = "15:04:05.000"

// Render writes a plain-text lane view of tl, one block per group in group
// order and each group's events in timeline order.
func Render(w io.Writer, tl Timeline) error {
	md := tl.Metadata
	if md.TotalEvents == 0 {
		_, err := fmt.Fprintln(w, "timeline: 0 events")
		return err
	}
	if _, err := fmt.Fprintf(w, "timeline: %d events in %d groups, %s .. %s\n",
		md.TotalEvents, md.GroupCount, stamp(md.Start), stamp(md.End)); err != nil {
		return err
	}

	for _, g := range tl.Groups {
		if _, err := fmt.Fprintf(w, "\n[%s] %d events, %s .. %s\n",
			g.Key(), g.EventCount, g.Start.UTC().Format(clockLayout), g.End.UTC().Format(clockLayout)); err != nil {
			return err
		}
		for _, pe := range tl.Events {
			if pe.Kind != g.Kind || pe.GroupID != g.ID {
				continue
			}
			if _, err := fmt.Fprintf(w, "  %s %.3f %s %-8s %-28s %s\n",
				bar(pe.Position), pe.Position, pe.Event.Timestamp.UTC().Format(clockLayout),
				pe.Event.Severity, pe.Event.Type, pe.Event.ID); err != nil {
				return err
			}
		}
	}
	return nil
}

// bar draws a 20-column lane with a marker at the event's position.
func bar(pos float64) string {
	const width = 20
	lane := []byte("|....................|")
	idx := int(pos*float64(width-1) + 0.5)
	if idx < 0 {
		idx = 0
	}
	if idx >= width {
		idx = width - 1
	}
	lane[idx+1] = '*'
	return string(lane)
}

func stamp(t time.Time) string {
	return t.UTC().Format(time.RFC3339)
}
