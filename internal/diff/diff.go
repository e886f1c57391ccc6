// Package diff computes structural differences between two state snapshots.
//
// Objects are compared key by key and recursed into when both sides hold an
// object. Every other value, lists included, is compared as a whole: a list
// that changed in any way is reported as one modification of the list's
// path. Paths join object keys with ".".
package diff

import (
	"reflect"
	"sort"
	"strings"
)

// Modification is an old/new value pair for a changed path.
type Modification struct {
	Old any `json:"old"`
	New any `json:"new"`
}

// Diff maps field paths to their change. The maps are never nil.
type Diff struct {
	Added    map[string]any          `json:"added"`
	Modified map[string]Modification `json:"modified"`
	Deleted  map[string]any          `json:"deleted"`
}

// New returns an empty Diff.
func New() Diff {
	return Diff{
		Added:    map[string]any{},
		Modified: map[string]Modification{},
		Deleted:  map[string]any{},
	}
}

// Compute returns the difference from before to after.
//
// Swapping the arguments swaps Added and Deleted and swaps Old/New of every
// modification.
func Compute(before, after map[string]any) Diff {
	d := New()
	walk(&d, "", before, after)
	return d
}

func walk(d *Diff, prefix string, before, after map[string]any) {
	for k, ov := range before {
		path := join(prefix, k)
		nv, ok := after[k]
		if !ok {
			d.Deleted[path] = ov
			continue
		}
		om, oIsMap := asMap(ov)
		nm, nIsMap := asMap(nv)
		if oIsMap && nIsMap {
			walk(d, path, om, nm)
			continue
		}
		if !equal(ov, nv) {
			d.Modified[path] = Modification{Old: ov, New: nv}
		}
	}
	for k, nv := range after {
		if _, ok := before[k]; !ok {
			d.Added[join(prefix, k)] = nv
		}
	}
}

func asMap(v any) (map[string]any, bool) {
	if m, ok := v.(map[string]any); ok {
		return m, true
	}
	rv := reflect.ValueOf(v)
	if rv.Kind() == reflect.Map && rv.Type().Key().Kind() == reflect.String && rv.Type().Elem().Kind() == reflect.Interface {
		return rv.Convert(reflect.TypeOf(map[string]any{})).Interface().(map[string]any), true
	}
	return nil, false
}

func equal(a, b any) bool {
	return reflect.DeepEqual(a, b)
}

func join(prefix, key string) string {
	if prefix == "" {
		return key
	}
	return prefix + "." + key
}

// IsEmpty reports whether the diff records no change.
func (d Diff) IsEmpty() bool {
	return len(d.Added) == 0 && len(d.Modified) == 0 && len(d.Deleted) == 0
}

// Len returns the number of changed paths.
func (d Diff) Len() int {
	return len(d.Added) + len(d.Modified) + len(d.Deleted)
}

// Reverse returns the diff with before and after swapped.
func (d Diff) Reverse() Diff {
	r := New()
	for k, v := range d.Added {
		r.Deleted[k] = v
	}
	for k, v := range d.Deleted {
		r.Added[k] = v
	}
	for k, m := range d.Modified {
		r.Modified[k] = Modification{Old: m.New, New: m.Old}
	}
	return r
}

// Change is one entry of a flattened diff.
type Change struct {
	Op   string `json:"op"`
	Path string `json:"path"`
	Old  any    `json:"old,omitempty"`
	New  any    `json:"new,omitempty"`
}

// Change operations.
const (
	OpAdded    = "added"
	OpModified = "modified"
	OpDeleted  = "deleted"
)

// Changes flattens d into a list sorted by path, then operation.
func (d Diff) Changes() []Change {
	out := make([]Change, 0, d.Len())
	for k, v := range d.Added {
		out = append(out, Change{Op: OpAdded, Path: k, New: v})
	}
	for k, m := range d.Modified {
		out = append(out, Change{Op: OpModified, Path: k, Old: m.Old, New: m.New})
	}
	for k, v := range d.Deleted {
		out = append(out, Change{Op: OpDeleted, Path: k, Old: v})
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Path != out[j].Path {
			return out[i].Path < out[j].Path
		}
		return out[i].Op < out[j].Op
	})
	return out
}

// Paths returns every changed path in sorted order.
func (d Diff) Paths() []string {
	changes := d.Changes()
	out := make([]string, len(changes))
	for i, c := range changes {
		out[i] = c.Path
	}
	return out
}

// Summary renders the diff as "+added ~modified -deleted" path lines.
func (d Diff) Summary() string {
	var b strings.Builder
	for _, c := range d.Changes() {
		switch c.Op {
		case OpAdded:
			b.WriteString("+ ")
		case OpModified:
			b.WriteString("~ ")
		case OpDeleted:
			b.WriteString("- ")
		}
		b.WriteString(c.Path)
		b.WriteByte('\n')
	}
	return b.String()
}
