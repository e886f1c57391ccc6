package cli

import (
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/roach88/chronicle/internal/event"
	"github.com/roach88/chronicle/internal/fixture"
	"github.com/roach88/chronicle/internal/replay"
	"github.com/roach88/chronicle/internal/state"
)

// SelectorOptions holds the flags that select and filter events, shared by
// every command that replays or analyzes a slice of the log.
type SelectorOptions struct {
	CorrelationID string
	Until         string
	EventIDs      []string
	Files         []string

	Types        []string
	ExcludeTypes []string
	Actors       []string
	MinSeverity  string
	Since        string
	To           string
	Where        string

	Policy      string
	MaxDuration time.Duration
}

func (s *SelectorOptions) bind(cmd *cobra.Command) {
	f := cmd.Flags()
	f.StringVar(&s.CorrelationID, "correlation-id", "", "replay one stream (kind:id, bare id = workflow)")
	f.StringVar(&s.Until, "until", "", "replay every event up to this RFC 3339 timestamp")
	f.StringSliceVar(&s.EventIDs, "events", nil, "replay these event ids")
	f.StringSliceVar(&s.Files, "file", nil, "replay events from fixture files instead of the store")

	f.StringSliceVar(&s.Types, "type", nil, "keep only these event types (exact or prefix.*)")
	f.StringSliceVar(&s.ExcludeTypes, "exclude-type", nil, "drop these event types")
	f.StringSliceVar(&s.Actors, "actor", nil, "keep events from these users or sources")
	f.StringVar(&s.MinSeverity, "min-severity", "", "drop events below this severity")
	f.StringVar(&s.Since, "since", "", "drop events before this timestamp")
	f.StringVar(&s.To, "to", "", "drop events after this timestamp")
	f.StringVar(&s.Where, "where", "", "CEL predicate over event")

	f.StringVar(&s.Policy, "policy", "", "reconstruction failure policy (skip|halt)")
	f.DurationVar(&s.MaxDuration, "max-duration", 0, "stop processing after this long")
}

// request builds the replay request. Fixture files are read here.
func (s *SelectorOptions) request(mode replay.Mode) (replay.Request, error) {
	req := replay.Request{
		CorrelationID: s.CorrelationID,
		EventIDs:      s.EventIDs,
		Mode:          mode,
		MaxDuration:   s.MaxDuration,
		Filter: replay.Filter{
			EventTypes:   s.Types,
			ExcludeTypes: s.ExcludeTypes,
			Actors:       s.Actors,
			MinSeverity:  event.Severity(s.MinSeverity),
			Expression:   s.Where,
		},
	}

	var err error
	if req.Until, err = parseTime("until", s.Until); err != nil {
		return replay.Request{}, err
	}
	if req.Filter.Since, err = parseTime("since", s.Since); err != nil {
		return replay.Request{}, err
	}
	if req.Filter.Until, err = parseTime("to", s.To); err != nil {
		return replay.Request{}, err
	}
	if s.Policy != "" {
		if req.Policy, err = state.ParsePolicy(s.Policy); err != nil {
			return replay.Request{}, fmt.Errorf("%w: %v", replay.ErrInvalidRequest, err)
		}
	}
	if len(s.Files) > 0 {
		if req.Events, err = fixture.LoadEvents(s.Files...); err != nil {
			return replay.Request{}, fmt.Errorf("%w: %v", replay.ErrInvalidRequest, err)
		}
	}
	if err := req.Validate(); err != nil {
		return replay.Request{}, err
	}
	return req, nil
}

func parseTime(flag, s string) (*time.Time, error) {
	if s == "" {
		return nil, nil
	}
	t, err := event.ParseTimestamp(s)
	if err != nil {
		return nil, fmt.Errorf("%w: --%s: %v", replay.ErrInvalidRequest, flag, err)
	}
	return &t, nil
}
