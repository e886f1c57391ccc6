package diff

import (
	"fmt"
	"testing"

	"github.com/leanovate/gopter"
	"github.com/leanovate/gopter/gen"
	"github.com/leanovate/gopter/prop"
	"github.com/roach88/chronicle/internal/state"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCompute_Identical(t *testing.T) {
	d := Compute(state.New(), state.New())
	assert.True(t, d.IsEmpty())
	assert.NotNil(t, d.Added)
	assert.NotNil(t, d.Modified)
	assert.NotNil(t, d.Deleted)
}

func TestCompute_NestedChanges(t *testing.T) {
	before := map[string]any{
		"workflows": map[string]any{
			"W1": map[string]any{"status": "running", "steps": map[string]any{"build": "running"}},
			"W2": map[string]any{"status": "running"},
		},
		"counter":   float64(1),
		"approvals": []any{"A1"},
	}
	after := map[string]any{
		"workflows": map[string]any{
			"W1": map[string]any{"status": "completed", "steps": map[string]any{"build": "running", "test": "running"}},
			"W3": map[string]any{"status": "running"},
		},
		"counter":   float64(1),
		"approvals": []any{"A1", "A2"},
	}

	d := Compute(before, after)

	assert.Equal(t, map[string]any{
		"workflows.W1.steps.test": "running",
		"workflows.W3":            map[string]any{"status": "running"},
	}, d.Added)
	assert.Equal(t, map[string]Modification{
		"workflows.W1.status": {Old: "running", New: "completed"},
		"approvals":           {Old: []any{"A1"}, New: []any{"A1", "A2"}},
	}, d.Modified)
	assert.Equal(t, map[string]any{
		"workflows.W2": map[string]any{"status": "running"},
	}, d.Deleted)
	assert.Equal(t, 5, d.Len())
}

func TestCompute_ListsAreWholeValues(t *testing.T) {
	d := Compute(
		map[string]any{"errors": []any{map[string]any{"id": "e1"}}},
		map[string]any{"errors": []any{map[string]any{"id": "e2"}}},
	)
	require.Len(t, d.Modified, 1)
	assert.Contains(t, d.Modified, "errors")
	assert.Empty(t, d.Added)
}

func TestCompute_TypeChange(t *testing.T) {
	d := Compute(
		map[string]any{"x": map[string]any{"a": "b"}},
		map[string]any{"x": "flat"},
	)
	assert.Equal(t, map[string]Modification{
		"x": {Old: map[string]any{"a": "b"}, New: "flat"},
	}, d.Modified)
}

func TestCompute_StateValuesNested(t *testing.T) {
	d := Compute(
		map[string]any{"s": state.State{"a": "1"}},
		map[string]any{"s": state.State{"a": "2"}},
	)
	assert.Equal(t, map[string]Modification{"s.a": {Old: "1", New: "2"}}, d.Modified)
}

func TestReverse(t *testing.T) {
	a := map[string]any{"x": "1", "y": "2"}
	b := map[string]any{"y": "3", "z": "4"}

	assert.Equal(t, Compute(b, a), Compute(a, b).Reverse())
}

func TestChangesAndSummary(t *testing.T) {
	d := Compute(
		map[string]any{"a": "1", "b": "2"},
		map[string]any{"b": "3", "c": "4"},
	)

	assert.Equal(t, []Change{
		{Op: OpDeleted, Path: "a", Old: "1"},
		{Op: OpModified, Path: "b", Old: "2", New: "3"},
		{Op: OpAdded, Path: "c", New: "4"},
	}, d.Changes())
	assert.Equal(t, []string{"a", "b", "c"}, d.Paths())
	assert.Equal(t, "- a\n~ b\n+ c\n", d.Summary())
}

// docFromPicks builds a small nested document whose shape depends on picks,
// mixing scalars, lists and sub-objects.
func docFromPicks(picks []int) map[string]any {
	doc := map[string]any{}
	for i, p := range picks {
		key := fmt.Sprintf("k%d", p%7)
		switch i % 4 {
		case 0:
			doc[key] = float64(p)
		case 1:
			doc[key] = []any{fmt.Sprint(p)}
		case 2:
			sub, _ := doc["nested"].(map[string]any)
			if sub == nil {
				sub = map[string]any{}
				doc["nested"] = sub
			}
			sub[key] = p%2 == 0
		default:
			doc[key] = map[string]any{"v": fmt.Sprint(p % 3)}
		}
	}
	return doc
}

func TestCompute_SymmetryProperty(t *testing.T) {
	parameters := gopter.DefaultTestParameters()
	parameters.MinSuccessfulTests = 200
	properties := gopter.NewProperties(parameters)

	properties.Property("added and deleted swap, modified pairs swap", prop.ForAll(
		func(a, b []int) bool {
			docA, docB := docFromPicks(a), docFromPicks(b)
			ab := Compute(docA, docB)
			ba := Compute(docB, docA)

			if !assert.ObjectsAreEqual(ab.Added, ba.Deleted) || !assert.ObjectsAreEqual(ab.Deleted, ba.Added) {
				return false
			}
			if len(ab.Modified) != len(ba.Modified) {
				return false
			}
			for path, m := range ab.Modified {
				r, ok := ba.Modified[path]
				if !ok || !assert.ObjectsAreEqual(m.Old, r.New) || !assert.ObjectsAreEqual(m.New, r.Old) {
					return false
				}
			}
			return true
		},
		gen.SliceOf(gen.IntRange(0, 40)),
		gen.SliceOf(gen.IntRange(0, 40)),
	))

	properties.Property("a document never differs from itself", prop.ForAll(
		func(a []int) bool {
			return Compute(docFromPicks(a), docFromPicks(a)).IsEmpty()
		},
		gen.SliceOf(gen.IntRange(0, 40)),
	))

	properties.TestingRun(t)
}
