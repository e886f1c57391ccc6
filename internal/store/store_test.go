package store

import (
	"context"
	"fmt"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/chronicle/internal/event"
	"github.com/roach88/chronicle/internal/testutil"
)

func createTestStore(t *testing.T) *SQLiteStore {
	t.Helper()
	dbPath := filepath.Join(t.TempDir(), "test.db")
	st, err := Open(dbPath)
	require.NoError(t, err, "failed to open store")
	t.Cleanup(func() { st.Close() })
	return st
}

func at(sec int) time.Time {
	return testutil.Epoch.Add(time.Duration(sec) * time.Second)
}

func TestOpen_AppliesPragmas(t *testing.T) {
	st := createTestStore(t)

	require.NoError(t, st.verifyPragma("journal_mode", "wal"))
	require.NoError(t, st.verifyPragma("synchronous", "1"))
	require.NoError(t, st.verifyPragma("busy_timeout", "5000"))
	require.NoError(t, st.verifyPragma("user_version", fmt.Sprint(currentSchemaVersion)))
}

func TestOpen_Idempotent(t *testing.T) {
	dbPath := filepath.Join(t.TempDir(), "test.db")
	ctx := context.Background()

	st, err := Open(dbPath)
	require.NoError(t, err)
	_, err = st.Append(ctx, testutil.NewEvent("e1", "issue.create.succeeded", at(0)).Issue("I1").Build())
	require.NoError(t, err)
	require.NoError(t, st.Close())

	st, err = Open(dbPath)
	require.NoError(t, err)
	defer st.Close()

	seq, err := st.LastSeq(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(1), seq)
}

func TestAppend_AssignsIncreasingSeq(t *testing.T) {
	st := createTestStore(t)
	ctx := context.Background()

	for i := 0; i < 3; i++ {
		seq, err := st.Append(ctx, testutil.NewEvent(fmt.Sprintf("e%d", i), "workflow.step.started", at(i)).Workflow("W1").Build())
		require.NoError(t, err)
		assert.Equal(t, int64(i+1), seq)
	}
}

func TestAppend_IdenticalEventIsNoop(t *testing.T) {
	st := createTestStore(t)
	ctx := context.Background()
	e := testutil.NewEvent("e1", "issue.create.succeeded", at(0)).Issue("I1").Data("title", "broken build").Build()

	first, err := st.Append(ctx, e)
	require.NoError(t, err)
	second, err := st.Append(ctx, e)
	require.NoError(t, err)

	assert.Equal(t, first, second)
	last, err := st.LastSeq(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(1), last)
}

func TestAppend_ConflictingContent(t *testing.T) {
	st := createTestStore(t)
	ctx := context.Background()

	_, err := st.Append(ctx, testutil.NewEvent("e1", "issue.create.succeeded", at(0)).Data("title", "a").Build())
	require.NoError(t, err)

	_, err = st.Append(ctx, testutil.NewEvent("e1", "issue.create.succeeded", at(0)).Data("title", "b").Build())
	require.Error(t, err)
	assert.True(t, IsConflict(err))
	assert.Contains(t, err.Error(), "CONFLICT")
}

func TestAppend_MissingID(t *testing.T) {
	st := createTestStore(t)

	_, err := st.Append(context.Background(), event.Event{Type: "issue.create.succeeded", Timestamp: at(0)})

	var ae *AppendError
	require.ErrorAs(t, err, &ae)
	assert.Equal(t, ErrCodeInvalid, ae.Code)
}

func TestEvents_AreImmutable(t *testing.T) {
	st := createTestStore(t)
	ctx := context.Background()
	_, err := st.Append(ctx, testutil.NewEvent("e1", "issue.create.succeeded", at(0)).Build())
	require.NoError(t, err)

	_, err = st.db.Exec(`UPDATE events SET type = 'x.y.z' WHERE id = 'e1'`)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "events are immutable")

	_, err = st.db.Exec(`DELETE FROM events WHERE id = 'e1'`)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "events are immutable")
}

func TestEventsByStream_InsertionOrder(t *testing.T) {
	st := createTestStore(t)
	ctx := context.Background()

	// Stored out of timestamp order on purpose: reads follow seq.
	evs := []event.Event{
		testutil.NewEvent("b", "workflow.run.started", at(10)).Workflow("W1").Build(),
		testutil.NewEvent("a", "workflow.step.started", at(5)).Workflow("W1").Build(),
		testutil.NewEvent("c", "workflow.run.started", at(1)).Workflow("W2").Build(),
		testutil.NewEvent("d", "workflow.run.completed", at(20)).Workflow("W1").Build(),
	}
	for _, e := range evs {
		_, err := st.Append(ctx, e)
		require.NoError(t, err)
	}

	got, err := st.EventsByStream(ctx, event.StreamKey{Kind: event.StreamWorkflow, ID: "W1"})
	require.NoError(t, err)
	require.Len(t, got, 3)
	assert.Equal(t, []string{"b", "a", "d"}, ids(got))
	assert.Equal(t, []int64{1, 2, 4}, seqs(got))
}

func TestEventsByStream_Empty(t *testing.T) {
	st := createTestStore(t)

	got, err := st.EventsByStream(context.Background(), event.StreamKey{Kind: event.StreamIssue, ID: "nope"})
	require.NoError(t, err)
	assert.NotNil(t, got)
	assert.Empty(t, got)
}

func TestEventsByStream_UnknownKind(t *testing.T) {
	st := createTestStore(t)

	_, err := st.EventsByStream(context.Background(), event.StreamKey{Kind: "team", ID: "x"})
	require.Error(t, err)
}

func TestEventsUntilAndBetween(t *testing.T) {
	st := createTestStore(t)
	ctx := context.Background()
	for i := 0; i < 5; i++ {
		_, err := st.Append(ctx, testutil.NewEvent(fmt.Sprintf("e%d", i), "code.change.applied", at(i*60)).Build())
		require.NoError(t, err)
	}

	until, err := st.EventsUntil(ctx, at(120))
	require.NoError(t, err)
	assert.Equal(t, []string{"e0", "e1", "e2"}, ids(until))

	between, err := st.EventsBetween(ctx, at(60), at(180))
	require.NoError(t, err)
	assert.Equal(t, []string{"e1", "e2", "e3"}, ids(between))
}

func TestEventsByIDs(t *testing.T) {
	st := createTestStore(t)
	ctx := context.Background()
	for i := 0; i < 4; i++ {
		_, err := st.Append(ctx, testutil.NewEvent(fmt.Sprintf("e%d", i), "code.change.applied", at(i)).Build())
		require.NoError(t, err)
	}

	got, err := st.EventsByIDs(ctx, []string{"e3", "missing", "e1", "e3"})
	require.NoError(t, err)
	assert.Equal(t, []string{"e1", "e3"}, ids(got))
}

func TestEventsByIDs_ChunksLargeSets(t *testing.T) {
	st := createTestStore(t)
	ctx := context.Background()
	want := make([]string, 0, idChunk+20)
	for i := 0; i < idChunk+20; i++ {
		id := fmt.Sprintf("e%04d", i)
		want = append(want, id)
		_, err := st.Append(ctx, testutil.NewEvent(id, "code.change.applied", at(i)).Build())
		require.NoError(t, err)
	}

	got, err := st.EventsByIDs(ctx, want)
	require.NoError(t, err)
	assert.Equal(t, want, ids(got))
}

func TestEventByID_RoundTrip(t *testing.T) {
	st := createTestStore(t)
	ctx := context.Background()
	in := testutil.NewEvent("e1", "ai.decision.requested", at(0).Add(123*time.Millisecond)).
		Workflow("W1").Issue("I1").User("alice").Session("s1").
		Tag("team", "infra").
		Severity(event.SeverityWarn).
		Data("decisionId", "d1").
		Data("confidence", 0.75).
		Source("planner").
		Build()
	seq, err := st.Append(ctx, in)
	require.NoError(t, err)

	raw, ok, err := st.EventByID(ctx, "e1")
	require.NoError(t, err)
	require.True(t, ok)

	out, err := event.Normalize(raw)
	require.NoError(t, err)
	assert.Equal(t, seq, out.Seq)
	assert.Equal(t, in.Type, out.Type)
	assert.True(t, in.Timestamp.Equal(out.Timestamp))
	assert.Equal(t, in.Context, out.Context)
	assert.Equal(t, in.Tags, out.Tags)
	assert.Equal(t, in.Data, out.Data)
	assert.Equal(t, event.SeverityWarn, out.Severity)
	assert.Equal(t, "planner", out.Source)

	_, ok, err = st.EventByID(ctx, "missing")
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestListStreams(t *testing.T) {
	st := createTestStore(t)
	ctx := context.Background()
	evs := []event.Event{
		testutil.NewEvent("e1", "workflow.run.started", at(0)).Workflow("W2").Build(),
		testutil.NewEvent("e2", "workflow.run.started", at(10)).Workflow("W1").Build(),
		testutil.NewEvent("e3", "workflow.run.completed", at(30)).Workflow("W2").Build(),
		testutil.NewEvent("e4", "issue.create.succeeded", at(40)).Issue("I1").Build(),
	}
	for _, e := range evs {
		_, err := st.Append(ctx, e)
		require.NoError(t, err)
	}

	got, err := st.ListStreams(ctx, event.StreamWorkflow)
	require.NoError(t, err)
	require.Len(t, got, 2)
	assert.Equal(t, "workflow:W1", got[0].Key.String())
	assert.Equal(t, 1, got[0].EventCount)
	assert.Equal(t, "workflow:W2", got[1].Key.String())
	assert.Equal(t, 2, got[1].EventCount)
	assert.True(t, got[1].First.Equal(at(0)))
	assert.True(t, got[1].Last.Equal(at(30)))
	assert.Equal(t, int64(3), got[1].LastSeq)
}

func TestClosedStore_IsUnavailable(t *testing.T) {
	st := createTestStore(t)
	require.NoError(t, st.Close())

	_, err := st.EventsUntil(context.Background(), at(0))
	require.Error(t, err)
	assert.True(t, IsUnavailable(err))
	assert.Contains(t, err.Error(), ErrCodeUnavailable)
}

func ids(evs []event.Raw) []string {
	out := make([]string, len(evs))
	for i, e := range evs {
		out[i] = e.ID
	}
	return out
}

func seqs(evs []event.Raw) []int64 {
	out := make([]int64, len(evs))
	for i, e := range evs {
		out[i] = e.Seq
	}
	return out
}
