package state

import (
	"sort"
	"sync"

	"github.com/roach88/chronicle/internal/event"
)

// TransitionFunc applies one event to a state.
//
// The state passed in is a private copy: the function may modify it in place
// and return it. Returning an error leaves the caller's state untouched.
// Transitions must be pure: no clocks, randomness or I/O.
type TransitionFunc func(s State, e event.Event) (State, error)

// Registry maps event types to transitions.
//
// Thread-safety: safe for concurrent use. Registration is expected at startup;
// lookups happen on every replayed event.
type Registry struct {
	mu  sync.RWMutex
	fns map[event.Type]TransitionFunc
}

// NewRegistry creates an empty registry.
func NewRegistry() *Registry {
	return &Registry{fns: make(map[event.Type]TransitionFunc)}
}

// Register binds fn to typ, replacing any previous binding.
func (r *Registry) Register(typ event.Type, fn TransitionFunc) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.fns[typ] = fn
}

// Lookup returns the transition for typ.
func (r *Registry) Lookup(typ event.Type) (TransitionFunc, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	fn, ok := r.fns[typ]
	return fn, ok
}

// Types returns the registered event types in sorted order.
func (r *Registry) Types() []event.Type {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]event.Type, 0, len(r.fns))
	for t := range r.fns {
		out = append(out, t)
	}
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out
}

var (
	defaultOnce     sync.Once
	defaultRegistry *Registry
)

// DefaultRegistry returns the registry with the built-in audit transitions.
// Callers that add their own types should start from NewBuiltinRegistry
// instead of mutating the shared default.
func DefaultRegistry() *Registry {
	defaultOnce.Do(func() {
		defaultRegistry = NewBuiltinRegistry()
	})
	return defaultRegistry
}

// NewBuiltinRegistry returns a fresh registry holding the built-in transitions.
func NewBuiltinRegistry() *Registry {
	r := NewRegistry()
	for typ, fn := range builtinTransitions {
		r.Register(typ, fn)
	}
	return r
}
