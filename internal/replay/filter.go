package replay

import (
	"fmt"
	"slices"
	"sync"
	"time"

	"github.com/google/cel-go/cel"

	"github.com/roach88/chronicle/internal/event"
)

// Filter narrows the selected events. Zero-valued fields do not filter.
type Filter struct {
	// EventTypes keeps only matching types. Entries are exact types or
	// "prefix.*" patterns.
	EventTypes []string `json:"eventTypes,omitempty" yaml:"eventTypes,omitempty"`

	// ExcludeTypes drops matching types; applied after EventTypes.
	ExcludeTypes []string `json:"excludeTypes,omitempty" yaml:"excludeTypes,omitempty"`

	// Actors keeps events whose userId or source is listed.
	Actors []string `json:"actorFilter,omitempty" yaml:"actorFilter,omitempty"`

	// MinSeverity drops events below the given severity.
	MinSeverity event.Severity `json:"minSeverity,omitempty" yaml:"minSeverity,omitempty"`

	// Since and Until bound the timestamp, both inclusive.
	Since *time.Time `json:"since,omitempty" yaml:"since,omitempty"`
	Until *time.Time `json:"until,omitempty" yaml:"until,omitempty"`

	// Expression is a CEL predicate over the variable "event", a map with the
	// keys id, seq, type, timestamp, severity, source, tags, context and data.
	// Results other than true do not match.
	//
	//	event.type.startsWith("workflow.") && event.data.attempt > 2.0
	Expression string `json:"expression,omitempty" yaml:"expression,omitempty"`
}

// IsZero reports whether the filter keeps every event.
func (f Filter) IsZero() bool {
	return len(f.EventTypes) == 0 && len(f.ExcludeTypes) == 0 && len(f.Actors) == 0 &&
		f.MinSeverity == "" && f.Since == nil && f.Until == nil && f.Expression == ""
}

func (f Filter) validate() error {
	if f.MinSeverity != "" && event.ParseSeverity(string(f.MinSeverity)) != f.MinSeverity {
		return fmt.Errorf("unknown severity %q", f.MinSeverity)
	}
	if f.Since != nil && f.Until != nil && f.Until.Before(*f.Since) {
		return fmt.Errorf("filter window ends before it starts")
	}
	if f.Expression != "" {
		if _, err := compileExpression(f.Expression); err != nil {
			return err
		}
	}
	return nil
}

// Matcher is a compiled Filter.
type Matcher struct {
	f   Filter
	prg cel.Program
}

// Compile prepares f for matching.
func (f Filter) Compile() (*Matcher, error) {
	if err := f.validate(); err != nil {
		return nil, err
	}
	m := &Matcher{f: f}
	if f.Expression != "" {
		prg, err := compileExpression(f.Expression)
		if err != nil {
			return nil, err
		}
		m.prg = prg
	}
	return m, nil
}

// Match reports whether e passes every filter clause. An expression that
// fails to evaluate for e (for example a missing data key) does not match.
func (m *Matcher) Match(e event.Event) bool {
	f := m.f
	if len(f.EventTypes) > 0 && !matchesAny(e.Type, f.EventTypes) {
		return false
	}
	if matchesAny(e.Type, f.ExcludeTypes) {
		return false
	}
	if len(f.Actors) > 0 && !slices.Contains(f.Actors, e.Context.UserID) && !slices.Contains(f.Actors, e.Source) {
		return false
	}
	if f.MinSeverity != "" && !e.Severity.AtLeast(f.MinSeverity) {
		return false
	}
	if f.Since != nil && e.Timestamp.Before(*f.Since) {
		return false
	}
	if f.Until != nil && e.Timestamp.After(*f.Until) {
		return false
	}
	if m.prg != nil {
		out, _, err := m.prg.Eval(map[string]any{"event": activation(e)})
		if err != nil {
			return false
		}
		ok, isBool := out.Value().(bool)
		return isBool && ok
	}
	return true
}

func matchesAny(t event.Type, patterns []string) bool {
	for _, p := range patterns {
		if t.Matches(p) {
			return true
		}
	}
	return false
}

var celEnv = sync.OnceValues(func() (*cel.Env, error) {
	env, err := cel.NewEnv(
		cel.Variable("event", cel.MapType(cel.StringType, cel.DynType)),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create CEL env: %w", err)
	}
	return env, nil
})

func compileExpression(expr string) (cel.Program, error) {
	env, err := celEnv()
	if err != nil {
		return nil, err
	}
	ast, issues := env.Compile(expr)
	if issues != nil && issues.Err() != nil {
		return nil, fmt.Errorf("CEL compile error: %w", issues.Err())
	}
	prg, err := env.Program(ast)
	if err != nil {
		return nil, fmt.Errorf("CEL program error: %w", err)
	}
	return prg, nil
}

// activation exposes an event to CEL.
func activation(e event.Event) map[string]any {
	return map[string]any{
		"id":        e.ID,
		"seq":       e.Seq,
		"type":      string(e.Type),
		"timestamp": e.Timestamp,
		"severity":  string(e.Severity),
		"source":    e.Source,
		"tags":      e.Tags,
		"context": map[string]string{
			"issueId":    e.Context.IssueID,
			"workflowId": e.Context.WorkflowID,
			"userId":     e.Context.UserID,
			"sessionId":  e.Context.SessionID,
		},
		"data": e.Data,
	}
}
