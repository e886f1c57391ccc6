package replay

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/chronicle/internal/event"
	"github.com/roach88/chronicle/internal/state"
)

func startInteractive(t *testing.T, events []event.Raw) *Session {
	t.Helper()
	s, err := newTestController(nil).Start(context.Background(), Request{Events: events, Mode: ModeInteractive})
	require.NoError(t, err)
	return s
}

func TestSession_InteractiveStartsPaused(t *testing.T) {
	s := startInteractive(t, lifecycle())

	st := s.Inspect()
	assert.Equal(t, StatusPaused, st.Status)
	assert.Equal(t, 0, st.Cursor)
	assert.Equal(t, 5, st.Total)
	assert.Nil(t, st.LastStep)
	assert.True(t, st.Current.Equal(state.New()))
}

func TestSession_Step(t *testing.T) {
	s := startInteractive(t, lifecycle())
	ctx := context.Background()

	st, err := s.Step(ctx, 2)
	require.NoError(t, err)
	assert.Equal(t, StatusPaused, st.Status)
	assert.Equal(t, 2, st.Cursor)
	require.NotNil(t, st.LastStep)
	assert.Equal(t, "e2", st.LastStep.Event.ID)

	st, err = s.Step(ctx, 0)
	require.NoError(t, err)
	assert.Equal(t, 3, st.Cursor, "n < 1 steps once")
}

func TestSession_HaltPausesOnFailure(t *testing.T) {
	s := startInteractive(t, lifecycle())
	ctx := context.Background()

	st, err := s.Resume(ctx)
	require.NoError(t, err)
	assert.Equal(t, StatusPaused, st.Status)
	assert.True(t, st.Halted)
	assert.Equal(t, 4, st.Cursor, "cursor moves past the failed event")
	assert.Equal(t, 1, st.Errors)
	require.NotNil(t, st.LastStep)
	assert.True(t, st.LastStep.Skipped)
	assert.True(t, st.LastStep.NewState.Equal(st.LastStep.PreviousState))

	st, err = s.Resume(ctx)
	require.NoError(t, err)
	assert.Equal(t, StatusCompleted, st.Status)
	assert.Equal(t, 5, st.Cursor)

	res := s.Result()
	assert.Len(t, res.Steps, 5)
	assert.Equal(t, StatusCompleted, res.Status)
	status, _ := res.FinalState.Lookup("workflows.W1.status")
	assert.Equal(t, "completed", status)
}

func TestSession_JumpBackAndForward(t *testing.T) {
	s := startInteractive(t, lifecycle())
	ctx := context.Background()

	_, err := s.Step(ctx, 3)
	require.NoError(t, err)
	afterTwo := s.Result().Steps[1].NewState

	st, err := s.Jump(ctx, 2)
	require.NoError(t, err)
	assert.Equal(t, 2, st.Cursor)
	assert.Equal(t, StatusPaused, st.Status)
	assert.True(t, st.Current.Equal(afterTwo))
	assert.Len(t, s.Result().Steps, 2)

	st, err = s.Jump(ctx, 0)
	require.NoError(t, err)
	assert.True(t, st.Current.Equal(state.New()))
	assert.Nil(t, st.LastStep)

	// Forward jumps stop at the halt-policy failure of event 3.
	st, err = s.Jump(ctx, 5)
	require.NoError(t, err)
	assert.Equal(t, 4, st.Cursor)
	assert.True(t, st.Halted)

	// Rewinding past the failure drops its error.
	st, err = s.Jump(ctx, 3)
	require.NoError(t, err)
	assert.Equal(t, 0, st.Errors)
	assert.False(t, st.Halted)

	_, err = s.Jump(ctx, 6)
	assert.Error(t, err)
}

func TestSession_JumpIsDeterministic(t *testing.T) {
	s := startInteractive(t, lifecycle())
	ctx := context.Background()

	_, err := s.Step(ctx, 3)
	require.NoError(t, err)
	first := s.Inspect().Current

	_, err = s.Jump(ctx, 0)
	require.NoError(t, err)
	st, err := s.Jump(ctx, 3)
	require.NoError(t, err)

	assert.True(t, st.Current.Equal(first))
}

func TestSession_Cancel(t *testing.T) {
	s := startInteractive(t, lifecycle())
	ctx := context.Background()

	_, err := s.Step(ctx, 2)
	require.NoError(t, err)

	st := s.Cancel()
	assert.Equal(t, StatusCompleted, st.Status)
	assert.True(t, st.Cancelled)

	res := s.Result()
	assert.True(t, res.Summary.Cancelled)
	assert.Len(t, res.Steps, 2, "partial steps are kept")

	_, err = s.Step(ctx, 1)
	assert.ErrorIs(t, err, ErrFinished)
	_, err = s.Jump(ctx, 0)
	assert.ErrorIs(t, err, ErrFinished)
}

func TestSession_PauseIdleIsNoop(t *testing.T) {
	s := startInteractive(t, lifecycle())

	require.NoError(t, s.Pause())

	st, err := s.Step(context.Background(), 2)
	require.NoError(t, err)
	assert.Equal(t, 2, st.Cursor, "a pause requested while idle does not stop the next command")
}

func TestSession_PauseTakenByQueuedCommand(t *testing.T) {
	s := startInteractive(t, lifecycle())
	ctx := context.Background()

	// Resume has announced itself but not yet taken the lock.
	s.queued.Add(1)
	require.NoError(t, s.Pause())
	s.queued.Add(-1)

	st, err := s.Resume(ctx)
	require.NoError(t, err)
	assert.Equal(t, StatusPaused, st.Status)
	assert.Equal(t, 0, st.Cursor)

	st, err = s.Resume(ctx)
	require.NoError(t, err)
	assert.Equal(t, StatusCompleted, st.Status)
	assert.Equal(t, 5, st.Cursor)
}

func TestSession_BatchRejectsInteractiveCommands(t *testing.T) {
	s, err := newTestController(nil).Start(context.Background(), Request{Events: lifecycle()})
	require.NoError(t, err)
	assert.Equal(t, StatusReplaying, s.Inspect().Status)

	_, err = s.Step(context.Background(), 1)
	assert.ErrorIs(t, err, ErrNotInteractive)
	assert.ErrorIs(t, s.Pause(), ErrNotInteractive)
	_, err = s.Jump(context.Background(), 0)
	assert.ErrorIs(t, err, ErrNotInteractive)

	st, err := s.Resume(context.Background())
	require.NoError(t, err)
	assert.Equal(t, StatusCompleted, st.Status)

	_, err = s.Resume(context.Background())
	assert.ErrorIs(t, err, ErrFinished)
}

func TestSession_InteractiveSkipPolicy(t *testing.T) {
	s, err := newTestController(nil).Start(context.Background(), Request{
		Events: lifecycle(),
		Mode:   ModeInteractive,
		Policy: state.PolicySkip,
	})
	require.NoError(t, err)

	st, err := s.Resume(context.Background())
	require.NoError(t, err)
	assert.Equal(t, StatusCompleted, st.Status)
	assert.False(t, st.Halted)
	assert.Equal(t, 1, st.Errors)
}

func TestSession_InspectDoesNotShareProgress(t *testing.T) {
	s := startInteractive(t, lifecycle())

	before := s.Inspect()
	_, err := s.Step(context.Background(), 1)
	require.NoError(t, err)

	assert.Equal(t, 0, before.Cursor)
	assert.Equal(t, 1, s.Inspect().Cursor)
}
