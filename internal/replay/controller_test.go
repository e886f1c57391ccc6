package replay

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/leanovate/gopter"
	"github.com/leanovate/gopter/gen"
	"github.com/leanovate/gopter/prop"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/chronicle/internal/event"
	"github.com/roach88/chronicle/internal/state"
	"github.com/roach88/chronicle/internal/store"
	"github.com/roach88/chronicle/internal/testutil"
)

var fixedNow = time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)

func quietLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func newTestController(src Source) *Controller {
	return NewController(src, Options{
		Logger: quietLogger(),
		Now:    func() time.Time { return fixedNow },
	})
}

func at(sec int) time.Time {
	return testutil.Epoch.Add(time.Duration(sec) * time.Second)
}

// lifecycle is a clean issue → workflow → change → completion history.
func lifecycle() []event.Raw {
	return []event.Raw{
		testutil.NewEvent("e1", state.TypeIssueCreated, at(0)).Issue("I1").Data("title", "flaky deploy").Raw(),
		testutil.NewEvent("e2", state.TypeWorkflowStarted, at(60)).Workflow("W1").Issue("I1").Raw(),
		testutil.NewEvent("e3", state.TypeCodeChangeApplied, at(120)).Workflow("W1").Data("linesAdded", 10).Raw(),
		testutil.NewEvent("e4", state.TypeWorkflowCompleted, at(180)).Workflow("W2").Raw(),
		testutil.NewEvent("e5", state.TypeWorkflowCompleted, at(240)).Workflow("W1").Raw(),
	}
}

type fakeSource struct {
	events   []event.Raw
	err      error
	lastKey  event.StreamKey
	lastIDs  []string
	lastTime time.Time
}

func (f *fakeSource) EventsByStream(_ context.Context, key event.StreamKey) ([]event.Raw, error) {
	f.lastKey = key
	return f.events, f.err
}

func (f *fakeSource) EventsUntil(_ context.Context, t time.Time) ([]event.Raw, error) {
	f.lastTime = t
	return f.events, f.err
}

func (f *fakeSource) EventsByIDs(_ context.Context, ids []string) ([]event.Raw, error) {
	f.lastIDs = ids
	return f.events, f.err
}

func TestReplay_Batch(t *testing.T) {
	c := newTestController(nil)

	res, err := c.Replay(context.Background(), Request{Events: lifecycle()})
	require.NoError(t, err)

	assert.Equal(t, StatusCompleted, res.Status)
	assert.Equal(t, ModeBatch, res.Mode)
	require.Len(t, res.Steps, 5)

	status, ok := res.FinalState.Lookup("workflows.W1.status")
	require.True(t, ok)
	assert.Equal(t, "completed", status)
	commits, _ := res.FinalState.Lookup("codeChanges.commits")
	assert.Equal(t, float64(1), commits)

	// e4 references an unknown workflow: skipped under the batch default.
	require.Len(t, res.Errors, 1)
	assert.Equal(t, KindReconstruction, res.Errors[0].Kind)
	assert.Equal(t, "e4", res.Errors[0].EventID)
	assert.Equal(t, 3, res.Errors[0].EventIndex)
	assert.True(t, res.Steps[3].Skipped)
	assert.True(t, res.Steps[3].Diff.IsEmpty())
	assert.Equal(t, res.Steps[2].Fingerprint, res.Steps[3].Fingerprint)

	assert.Equal(t, 5, res.Summary.TotalEvents)
	assert.Equal(t, 5, res.Summary.Processed)
	assert.Equal(t, 1, res.Summary.Skipped)
	assert.Equal(t, fixedNow, res.Summary.StartedAt)
	assert.Equal(t, res.Steps[4].Fingerprint, res.Summary.FinalFingerprint)
	assert.False(t, res.Summary.Cancelled)
	assert.False(t, res.Summary.Truncated)
	assert.False(t, res.Summary.Halted)
}

func TestReplay_StepsChainStates(t *testing.T) {
	res, err := newTestController(nil).Replay(context.Background(), Request{Events: lifecycle()})
	require.NoError(t, err)

	assert.True(t, res.Steps[0].PreviousState.Equal(state.New()))
	for i := 1; i < len(res.Steps); i++ {
		assert.True(t, res.Steps[i].PreviousState.Equal(res.Steps[i-1].NewState), "step %d", i)
	}
	assert.Equal(t, []string{"issues.I1"}, res.Steps[0].Diff.Paths())
	assert.Equal(t, []string{"workflows.W1.finishedAt", "workflows.W1.status"}, res.Steps[4].Diff.Paths())
}

func TestReplay_EmptyLoad(t *testing.T) {
	res, err := newTestController(nil).Replay(context.Background(), Request{Events: []event.Raw{}})
	require.NoError(t, err)

	assert.Equal(t, StatusCompleted, res.Status)
	assert.Empty(t, res.Steps)
	assert.NotNil(t, res.Errors)
	assert.True(t, res.FinalState.Equal(state.New()))
	assert.Equal(t, 0, res.Summary.TotalEvents)
}

func TestReplay_MalformedResilience(t *testing.T) {
	raws := lifecycle()
	bad := testutil.NewEvent("bad", state.TypeCodeChangeApplied, at(130)).Raw()
	bad.Timestamp = ""
	withBad := append(append(append([]event.Raw{}, raws[:3]...), bad), raws[3:]...)

	c := newTestController(nil)
	clean, err := c.Replay(context.Background(), Request{Events: raws})
	require.NoError(t, err)
	res, err := c.Replay(context.Background(), Request{Events: withBad})
	require.NoError(t, err)

	assert.Equal(t, StatusCompleted, res.Status)
	malformed := res.ErrorsOfKind(KindMalformed)
	require.Len(t, malformed, 1)
	assert.Equal(t, "bad", malformed[0].EventID)
	assert.Equal(t, 3, malformed[0].EventIndex)
	assert.Contains(t, malformed[0].Message, "timestamp")
	assert.Equal(t, 1, res.Summary.Malformed)
	assert.Equal(t, 6, res.Summary.TotalEvents)
	assert.Len(t, res.Steps, 5)
	assert.True(t, res.FinalState.Equal(clean.FinalState))
}

func TestReplay_MatchesReconstructor(t *testing.T) {
	raws := lifecycle()
	events := make([]event.Event, len(raws))
	for i, r := range raws {
		e, err := event.Normalize(r)
		require.NoError(t, err)
		events[i] = e
	}
	want := state.NewReconstructor(state.WithLogger(quietLogger())).Reconstruct(state.New(), events)

	res, err := newTestController(nil).Replay(context.Background(), Request{Events: raws})
	require.NoError(t, err)
	assert.True(t, want.Final.Equal(res.FinalState))
}

func TestReplay_BatchHalt(t *testing.T) {
	res, err := newTestController(nil).Replay(context.Background(), Request{
		Events: lifecycle(),
		Policy: state.PolicyHalt,
	})
	require.NoError(t, err)

	assert.Equal(t, StatusCompleted, res.Status)
	assert.True(t, res.Summary.Halted)
	require.Len(t, res.Steps, 4)
	assert.True(t, res.Steps[3].Skipped)
	status, _ := res.FinalState.Lookup("workflows.W1.status")
	assert.Equal(t, "running", status)
}

func TestReplay_StoreUnavailable(t *testing.T) {
	src := &fakeSource{err: errors.New("disk I/O error")}

	res, err := newTestController(src).Replay(context.Background(), Request{CorrelationID: "W1"})
	require.Error(t, err)
	assert.True(t, store.IsUnavailable(err))

	assert.Equal(t, StatusFailed, res.Status)
	require.Len(t, res.ErrorsOfKind(KindStoreUnavailable), 1)
	assert.Empty(t, res.Steps)
	assert.True(t, res.FinalState.Equal(state.New()))
}

func TestReplay_StoreUnavailableRecordsDuration(t *testing.T) {
	src := &fakeSource{err: errors.New("disk I/O error")}
	clock := testutil.NewDeterministicClock(fixedNow, time.Second)
	c := NewController(src, Options{Logger: quietLogger(), Now: clock.Next})

	res, err := c.Replay(context.Background(), Request{CorrelationID: "W1"})
	require.Error(t, err)

	assert.Equal(t, StatusFailed, res.Status)
	assert.Equal(t, fixedNow, res.Summary.StartedAt)
	assert.Equal(t, time.Second, res.Summary.Duration)
}

func TestReplay_CancelledBeforeFirstEvent(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	res, err := newTestController(nil).Replay(ctx, Request{Events: lifecycle()})
	require.NoError(t, err)

	assert.Equal(t, StatusCompleted, res.Status)
	assert.True(t, res.Summary.Cancelled)
	assert.False(t, res.Summary.Truncated)
	assert.Empty(t, res.Steps)
}

func TestReplay_DeadlineTruncates(t *testing.T) {
	ctx, cancel := context.WithDeadline(context.Background(), time.Now().Add(-time.Second))
	defer cancel()

	res, err := newTestController(nil).Replay(ctx, Request{Events: lifecycle()})
	require.NoError(t, err)

	assert.Equal(t, StatusCompleted, res.Status)
	assert.True(t, res.Summary.Truncated)
	assert.False(t, res.Summary.Cancelled)
}

func TestReplay_SelectsFromSource(t *testing.T) {
	ctx := context.Background()

	t.Run("bare correlation id is a workflow", func(t *testing.T) {
		src := &fakeSource{events: lifecycle()}
		_, err := newTestController(src).Replay(ctx, Request{CorrelationID: "W1"})
		require.NoError(t, err)
		assert.Equal(t, event.StreamKey{Kind: event.StreamWorkflow, ID: "W1"}, src.lastKey)
	})

	t.Run("typed correlation id", func(t *testing.T) {
		src := &fakeSource{events: lifecycle()}
		_, err := newTestController(src).Replay(ctx, Request{CorrelationID: "issue:I1"})
		require.NoError(t, err)
		assert.Equal(t, event.StreamKey{Kind: event.StreamIssue, ID: "I1"}, src.lastKey)
	})

	t.Run("until", func(t *testing.T) {
		src := &fakeSource{events: lifecycle()}
		until := at(90)
		_, err := newTestController(src).Replay(ctx, Request{Until: &until})
		require.NoError(t, err)
		assert.Equal(t, until, src.lastTime)
	})

	t.Run("ids", func(t *testing.T) {
		src := &fakeSource{events: lifecycle()[:2]}
		res, err := newTestController(src).Replay(ctx, Request{EventIDs: []string{"e1", "e2"}})
		require.NoError(t, err)
		assert.Equal(t, []string{"e1", "e2"}, src.lastIDs)
		assert.Len(t, res.Steps, 2)
	})
}

func TestReplay_FilterCounts(t *testing.T) {
	res, err := newTestController(nil).Replay(context.Background(), Request{
		Events: lifecycle(),
		Filter: Filter{ExcludeTypes: []string{"code.*"}},
	})
	require.NoError(t, err)

	assert.Equal(t, 1, res.Summary.Filtered)
	assert.Equal(t, 4, res.Summary.Loaded)
	assert.Len(t, res.Steps, 4)
	commits, _ := res.FinalState.Lookup("codeChanges.commits")
	assert.Equal(t, float64(0), commits)
}

func TestReplay_InlineSeqAssigned(t *testing.T) {
	res, err := newTestController(nil).Replay(context.Background(), Request{Events: lifecycle()})
	require.NoError(t, err)

	for i, st := range res.Steps {
		assert.Equal(t, int64(i+1), st.Event.Seq)
	}
}

func TestReplay_InlineOrderedBySeq(t *testing.T) {
	raws := lifecycle()
	for i := range raws {
		raws[i].Seq = int64(i + 1)
	}
	reversed := make([]event.Raw, len(raws))
	for i, raw := range raws {
		reversed[len(raws)-1-i] = raw
	}

	res, err := newTestController(nil).Replay(context.Background(), Request{Events: reversed})
	require.NoError(t, err)

	require.Len(t, res.Steps, 5)
	for i, st := range res.Steps {
		assert.Equal(t, fmt.Sprintf("e%d", i+1), st.Event.ID)
		assert.Equal(t, int64(i+1), st.Event.Seq)
	}
	want, err := newTestController(nil).Replay(context.Background(), Request{Events: lifecycle()})
	require.NoError(t, err)
	assert.Equal(t, want.FinalState, res.FinalState)
}

func TestReplay_InvalidRequest(t *testing.T) {
	_, err := newTestController(nil).Replay(context.Background(), Request{})
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrInvalidRequest)
}

func TestReplay_Idempotent(t *testing.T) {
	c := newTestController(nil)
	req := Request{Events: lifecycle()}

	first, err := c.Replay(context.Background(), req)
	require.NoError(t, err)
	second, err := c.Replay(context.Background(), req)
	require.NoError(t, err)

	assert.Equal(t, first, second)
}

func TestReplay_DeterminismProperty(t *testing.T) {
	parameters := gopter.DefaultTestParameters()
	parameters.MinSuccessfulTests = 50
	properties := gopter.NewProperties(parameters)

	c := newTestController(nil)
	properties.Property("replaying a change history twice gives the same fingerprint and totals", prop.ForAll(
		func(lines []int) bool {
			raws := make([]event.Raw, len(lines))
			total := 0
			for i, n := range lines {
				raws[i] = testutil.NewEvent(fmt.Sprintf("c%d", i), state.TypeCodeChangeApplied, at(i)).
					Data("linesAdded", n).Raw()
				total += n
			}
			a, err := c.Replay(context.Background(), Request{Events: raws})
			if err != nil {
				return false
			}
			b, err := c.Replay(context.Background(), Request{Events: raws})
			if err != nil {
				return false
			}
			added, _ := a.FinalState.Lookup("codeChanges.linesAdded")
			return a.Summary.FinalFingerprint == b.Summary.FinalFingerprint &&
				added == float64(total) &&
				len(a.Steps) == len(lines)
		},
		gen.SliceOf(gen.IntRange(0, 500)),
	))

	properties.TestingRun(t)
}

func TestRequest_Validate(t *testing.T) {
	until := at(0)
	tests := []struct {
		name string
		req  Request
		ok   bool
	}{
		{"correlation id", Request{CorrelationID: "W1"}, true},
		{"inline empty", Request{Events: []event.Raw{}}, true},
		{"no selector", Request{}, false},
		{"two selectors", Request{CorrelationID: "W1", Until: &until}, false},
		{"bad stream kind", Request{CorrelationID: "team:x"}, false},
		{"bad mode", Request{CorrelationID: "W1", Mode: "turbo"}, false},
		{"bad policy", Request{CorrelationID: "W1", Policy: "retry"}, false},
		{"negative duration", Request{CorrelationID: "W1", MaxDuration: -time.Second}, false},
		{"bad expression", Request{CorrelationID: "W1", Filter: Filter{Expression: "event.type =="}}, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.req.Validate()
			if tt.ok {
				assert.NoError(t, err)
			} else {
				assert.ErrorIs(t, err, ErrInvalidRequest)
			}
		})
	}
}

func TestRequest_EffectivePolicy(t *testing.T) {
	assert.Equal(t, state.PolicySkip, Request{}.EffectivePolicy())
	assert.Equal(t, state.PolicyHalt, Request{Mode: ModeInteractive}.EffectivePolicy())
	assert.Equal(t, state.PolicySkip, Request{Mode: ModeInteractive, Policy: state.PolicySkip}.EffectivePolicy())
}
