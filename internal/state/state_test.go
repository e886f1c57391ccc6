package state

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNew_Shape(t *testing.T) {
	s := New()

	assert.Equal(t, map[string]any{}, s[KeyIssues])
	assert.Equal(t, map[string]any{}, s[KeyWorkflows])
	assert.Equal(t, map[string]any{}, s[KeyAIDecisions])
	assert.Equal(t, []any{}, s[KeyApprovals])
	assert.Equal(t, []any{}, s[KeyErrors])

	commits, ok := s.Lookup("codeChanges.commits")
	require.True(t, ok)
	assert.Equal(t, float64(0), commits)
}

func TestClone_IsDeep(t *testing.T) {
	s := New()
	s[KeyWorkflows].(map[string]any)["W1"] = map[string]any{"status": "running"}
	s[KeyApprovals] = []any{map[string]any{"id": "A1"}}

	c := s.Clone()
	c[KeyWorkflows].(map[string]any)["W1"].(map[string]any)["status"] = "failed"
	c[KeyApprovals].([]any)[0].(map[string]any)["id"] = "A2"

	status, _ := s.Lookup("workflows.W1.status")
	assert.Equal(t, "running", status)
	assert.Equal(t, "A1", s[KeyApprovals].([]any)[0].(map[string]any)["id"])
	assert.Nil(t, State(nil).Clone())
}

func TestLookup(t *testing.T) {
	s := New()
	s[KeyIssues].(map[string]any)["I1"] = map[string]any{"status": "open"}

	v, ok := s.Lookup("issues.I1.status")
	require.True(t, ok)
	assert.Equal(t, "open", v)

	_, ok = s.Lookup("issues.I2.status")
	assert.False(t, ok)

	_, ok = s.Lookup("approvals.0")
	assert.False(t, ok, "lists are not indexable by path")

	root, ok := s.Lookup("")
	require.True(t, ok)
	assert.IsType(t, map[string]any{}, root)
}

func TestFingerprintAndEqual(t *testing.T) {
	a := New()
	b := New()
	require.True(t, a.Equal(b))

	fa, err := a.Fingerprint()
	require.NoError(t, err)
	fb, err := b.Fingerprint()
	require.NoError(t, err)
	assert.Equal(t, fa, fb)

	b[KeyErrors] = []any{"x"}
	assert.False(t, a.Equal(b))
}

func TestReconstructionError(t *testing.T) {
	err := &ReconstructionError{EventIndex: 3, EventID: "e3", Message: "unknown workflow W9"}
	assert.Equal(t, "RECONSTRUCTION_ERROR: unknown workflow W9 (index=3, event=e3)", err.Error())
	assert.True(t, IsReconstructionError(err))
	assert.False(t, IsReconstructionError(assert.AnError))
}

func TestParsePolicy(t *testing.T) {
	p, err := ParsePolicy("halt")
	require.NoError(t, err)
	assert.Equal(t, PolicyHalt, p)

	_, err = ParsePolicy("retry")
	assert.Error(t, err)
}

func TestRegistry(t *testing.T) {
	r := NewRegistry()
	_, ok := r.Lookup("a.b.c")
	assert.False(t, ok)

	r.Register("b.x.y", issueCreated)
	r.Register("a.x.y", issueCreated)
	assert.Equal(t, []string{"a.x.y", "b.x.y"}, typeStrings(r))

	builtin := NewBuiltinRegistry()
	_, ok = builtin.Lookup(TypeWorkflowStarted)
	assert.True(t, ok)
	assert.Len(t, builtin.Types(), len(builtinTransitions))
	assert.Same(t, DefaultRegistry(), DefaultRegistry())
}

func typeStrings(r *Registry) []string {
	var out []string
	for _, t := range r.Types() {
		out = append(out, string(t))
	}
	return out
}
