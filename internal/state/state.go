// Package state folds ordered events into point-in-time application state.
//
// State is a JSON-native document (maps, lists, strings, float64 numbers,
// bools, nil) so that snapshots can be diffed structurally, fingerprinted via
// canonical JSON, cached as bytes and exported without a schema.
//
// Each event type maps to a pure TransitionFunc held in a Registry. Types with
// no registered transition leave the state unchanged, which keeps historical
// replays working when new event types are introduced.
package state

import (
	"strings"

	"github.com/roach88/chronicle/internal/canon"
)

// Top-level state sections.
const (
	KeyIssues      = "issues"
	KeyWorkflows   = "workflows"
	KeyAIDecisions = "aiDecisions"
	KeyCodeChanges = "codeChanges"
	KeyApprovals   = "approvals"
	KeyErrors      = "errors"
)

// State is a materialized snapshot. Values are JSON-native.
//
// A State handed out by the Reconstructor is never mutated afterwards; callers
// that need to change one must Clone it first.
type State map[string]any

// New returns the empty initial state.
func New() State {
	return State{
		KeyIssues:      map[string]any{},
		KeyWorkflows:   map[string]any{},
		KeyAIDecisions: map[string]any{},
		KeyCodeChanges: map[string]any{
			"commits":      float64(0),
			"filesChanged": float64(0),
			"linesAdded":   float64(0),
			"linesRemoved": float64(0),
		},
		KeyApprovals: []any{},
		KeyErrors:    []any{},
	}
}

// Clone returns a deep copy of s.
func (s State) Clone() State {
	if s == nil {
		return nil
	}
	return State(cloneMap(s))
}

// Lookup resolves a dotted path ("workflows.W1.status") against s.
func (s State) Lookup(path string) (any, bool) {
	var cur any = map[string]any(s)
	if path == "" {
		return cur, true
	}
	for _, part := range strings.Split(path, ".") {
		m, ok := cur.(map[string]any)
		if !ok {
			return nil, false
		}
		cur, ok = m[part]
		if !ok {
			return nil, false
		}
	}
	return cur, true
}

// Fingerprint returns the content hash of s's canonical JSON form.
func (s State) Fingerprint() (string, error) {
	return canon.Fingerprint(canon.DomainState, map[string]any(s))
}

// Equal reports whether s and o have identical canonical forms.
func (s State) Equal(o State) bool {
	a, err := canon.Marshal(map[string]any(s))
	if err != nil {
		return false
	}
	b, err := canon.Marshal(map[string]any(o))
	if err != nil {
		return false
	}
	return string(a) == string(b)
}

func cloneMap(m map[string]any) map[string]any {
	out := make(map[string]any, len(m))
	for k, v := range m {
		out[k] = cloneValue(v)
	}
	return out
}

func cloneValue(v any) any {
	switch val := v.(type) {
	case map[string]any:
		return cloneMap(val)
	case State:
		return State(cloneMap(val))
	case []any:
		out := make([]any, len(val))
		for i, elem := range val {
			out[i] = cloneValue(elem)
		}
		return out
	default:
		return val
	}
}
