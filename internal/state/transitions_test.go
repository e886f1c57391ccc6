package state

import (
	"testing"
	"time"

	"github.com/roach88/chronicle/internal/event"
	"github.com/roach88/chronicle/internal/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func at(minute int) time.Time {
	return testutil.Epoch.Add(time.Duration(minute) * time.Minute)
}

func TestTransitions_IssueLifecycle(t *testing.T) {
	events := []event.Event{
		testutil.NewEvent("e1", TypeIssueCreated, at(0)).Issue("I1").User("alice").Data("title", "Fix login").Build(),
		testutil.NewEvent("e2", TypeIssueUpdated, at(1)).Issue("I1").Data("priority", "high").Build(),
		testutil.NewEvent("e3", TypeIssueClosed, at(2)).Issue("I1").Data("resolution", "fixed").Build(),
	}

	res := NewReconstructor().Reconstruct(New(), events)
	require.Empty(t, res.Errors)

	issue, ok := res.Final.Lookup("issues.I1")
	require.True(t, ok)
	assert.Equal(t, map[string]any{
		"id":         "I1",
		"title":      "Fix login",
		"priority":   "high",
		"resolution": "fixed",
		"status":     "closed",
		"createdBy":  "alice",
		"createdAt":  "2025-01-01T09:00:00Z",
		"updatedAt":  "2025-01-01T09:02:00Z",
		"closedAt":   "2025-01-01T09:02:00Z",
	}, issue)
}

func TestTransitions_IssueErrors(t *testing.T) {
	tests := []struct {
		name   string
		events []event.Event
		want   string
	}{
		{
			name:   "create without id",
			events: []event.Event{testutil.NewEvent("e1", TypeIssueCreated, at(0)).Build()},
			want:   "issue id missing",
		},
		{
			name: "duplicate create",
			events: []event.Event{
				testutil.NewEvent("e1", TypeIssueCreated, at(0)).Issue("I1").Build(),
				testutil.NewEvent("e2", TypeIssueCreated, at(1)).Issue("I1").Build(),
			},
			want: "issue I1 already exists",
		},
		{
			name:   "update unknown",
			events: []event.Event{testutil.NewEvent("e1", TypeIssueUpdated, at(0)).Issue("I9").Build()},
			want:   "unknown issue I9",
		},
		{
			name: "close twice",
			events: []event.Event{
				testutil.NewEvent("e1", TypeIssueCreated, at(0)).Issue("I1").Build(),
				testutil.NewEvent("e2", TypeIssueClosed, at(1)).Issue("I1").Build(),
				testutil.NewEvent("e3", TypeIssueClosed, at(2)).Issue("I1").Build(),
			},
			want: "issue I1 already closed",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			res := NewReconstructor().Reconstruct(New(), tt.events)
			require.Len(t, res.Errors, 1)
			assert.Equal(t, tt.want, res.Errors[0].Message)
			assert.Equal(t, len(tt.events)-1, res.Errors[0].EventIndex)
		})
	}
}

func TestTransitions_WorkflowLifecycle(t *testing.T) {
	events := []event.Event{
		testutil.NewEvent("e1", TypeWorkflowStarted, at(0)).Workflow("W1").Issue("I1").Data("name", "deploy").Build(),
		testutil.NewEvent("e2", TypeStepStarted, at(1)).Workflow("W1").Data("step", "build").Build(),
		testutil.NewEvent("e3", TypeStepCompleted, at(2)).Workflow("W1").Data("step", "build").Data("durationMs", 1500).Build(),
		testutil.NewEvent("e4", TypeStepStarted, at(3)).Workflow("W1").Data("step", "test").Build(),
		testutil.NewEvent("e5", TypeStepFailed, at(4)).Workflow("W1").Data("step", "test").Message("3 tests failed").Severity(event.SeverityError).Build(),
		testutil.NewEvent("e6", TypeWorkflowFailed, at(5)).Workflow("W1").Message("step test failed").Severity(event.SeverityError).Build(),
	}

	res := NewReconstructor().Reconstruct(New(), events)
	require.Empty(t, res.Errors)
	require.Len(t, res.Snapshots, 6)

	status, _ := res.Final.Lookup("workflows.W1.status")
	assert.Equal(t, "failed", status)
	issueID, _ := res.Final.Lookup("workflows.W1.issueId")
	assert.Equal(t, "I1", issueID)
	build, _ := res.Final.Lookup("workflows.W1.steps.build")
	assert.Equal(t, map[string]any{
		"name":       "build",
		"status":     "completed",
		"startedAt":  "2025-01-01T09:01:00Z",
		"finishedAt": "2025-01-01T09:02:00Z",
		"durationMs": float64(1500),
	}, build)
	testErr, _ := res.Final.Lookup("workflows.W1.steps.test.error")
	assert.Equal(t, "3 tests failed", testErr)

	errs := res.Final[KeyErrors].([]any)
	require.Len(t, errs, 2)
	assert.Equal(t, "e5", errs[0].(map[string]any)["eventId"])
	assert.Equal(t, "step test failed", errs[1].(map[string]any)["message"])

	// Intermediate snapshot after e2 shows the running step.
	stepStatus, _ := res.Snapshots[1].Lookup("workflows.W1.steps.build.status")
	assert.Equal(t, "running", stepStatus)
}

func TestTransitions_WorkflowErrors(t *testing.T) {
	tests := []struct {
		name   string
		events []event.Event
		want   string
	}{
		{
			name:   "step for unknown workflow",
			events: []event.Event{testutil.NewEvent("e1", TypeStepStarted, at(0)).Workflow("W9").Data("step", "x").Build()},
			want:   "unknown workflow W9",
		},
		{
			name: "step without name",
			events: []event.Event{
				testutil.NewEvent("e1", TypeWorkflowStarted, at(0)).Workflow("W1").Build(),
				testutil.NewEvent("e2", TypeStepStarted, at(1)).Workflow("W1").Build(),
			},
			want: "step name missing",
		},
		{
			name: "complete step never started",
			events: []event.Event{
				testutil.NewEvent("e1", TypeWorkflowStarted, at(0)).Workflow("W1").Build(),
				testutil.NewEvent("e2", TypeStepCompleted, at(1)).Workflow("W1").Data("step", "x").Build(),
			},
			want: "step x of workflow W1 was never started",
		},
		{
			name: "finish twice",
			events: []event.Event{
				testutil.NewEvent("e1", TypeWorkflowStarted, at(0)).Workflow("W1").Build(),
				testutil.NewEvent("e2", TypeWorkflowCompleted, at(1)).Workflow("W1").Build(),
				testutil.NewEvent("e3", TypeWorkflowCancelled, at(2)).Workflow("W1").Build(),
			},
			want: "workflow W1 is completed, not running",
		},
		{
			name: "start while running",
			events: []event.Event{
				testutil.NewEvent("e1", TypeWorkflowStarted, at(0)).Workflow("W1").Build(),
				testutil.NewEvent("e2", TypeWorkflowStarted, at(1)).Workflow("W1").Build(),
			},
			want: "workflow W1 already running",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			res := NewReconstructor().Reconstruct(New(), tt.events)
			require.Len(t, res.Errors, 1)
			assert.Equal(t, tt.want, res.Errors[0].Message)
		})
	}
}

func TestTransitions_Decisions(t *testing.T) {
	events := []event.Event{
		testutil.NewEvent("e1", TypeDecisionRequested, at(0)).Workflow("W1").Data("decisionId", "D1").Data("kind", "merge").Build(),
		testutil.NewEvent("e2", TypeDecisionResolved, at(1)).Data("decisionId", "D1").Data("outcome", "approve").Build(),
		testutil.NewEvent("e3", TypeDecisionResolved, at(2)).Data("decisionId", "D1").Build(),
		testutil.NewEvent("e4", TypeDecisionResolved, at(3)).Data("decisionId", "D2").Build(),
		testutil.NewEvent("e5", TypeDecisionRequested, at(4)).Build(),
	}

	res := NewReconstructor().Reconstruct(New(), events)
	require.Len(t, res.Errors, 3)
	assert.Equal(t, "decision D1 is not pending", res.Errors[0].Message)
	assert.Equal(t, "unknown decision D2", res.Errors[1].Message)
	assert.Equal(t, "decision id missing", res.Errors[2].Message)

	d, _ := res.Final.Lookup("aiDecisions.D1")
	assert.Equal(t, map[string]any{
		"id":          "D1",
		"kind":        "merge",
		"outcome":     "approve",
		"status":      "resolved",
		"workflowId":  "W1",
		"requestedAt": "2025-01-01T09:00:00Z",
		"resolvedAt":  "2025-01-01T09:01:00Z",
	}, d)
}

func TestTransitions_PayloadCannotOverrideLifecycle(t *testing.T) {
	events := []event.Event{
		testutil.NewEvent("e1", TypeIssueCreated, at(0)).Issue("I1").
			Data("status", "closed").Data("createdAt", "yesterday").Data("title", "t").Build(),
		testutil.NewEvent("e2", TypeIssueUpdated, at(1)).Issue("I1").Data("status", "closed").Build(),
		testutil.NewEvent("e3", TypeIssueClosed, at(2)).Issue("I1").Build(),
		testutil.NewEvent("e4", TypeWorkflowStarted, at(3)).Workflow("W1").
			Data("status", "completed").Data("steps", "none").Build(),
		testutil.NewEvent("e5", TypeStepStarted, at(4)).Workflow("W1").Data("step", "build").Build(),
		testutil.NewEvent("e6", TypeWorkflowCompleted, at(5)).Workflow("W1").Build(),
		testutil.NewEvent("e7", TypeDecisionRequested, at(6)).Data("decisionId", "D1").Data("status", "resolved").Build(),
		testutil.NewEvent("e8", TypeDecisionResolved, at(7)).Data("decisionId", "D1").Build(),
	}

	res := NewReconstructor().Reconstruct(New(), events)
	require.Empty(t, res.Errors)

	issueStatus, _ := res.Snapshots[1].Lookup("issues.I1.status")
	assert.Equal(t, "open", issueStatus)
	createdAt, _ := res.Final.Lookup("issues.I1.createdAt")
	assert.Equal(t, "2025-01-01T09:00:00Z", createdAt)
	title, _ := res.Final.Lookup("issues.I1.title")
	assert.Equal(t, "t", title)

	wfStatus, _ := res.Snapshots[3].Lookup("workflows.W1.status")
	assert.Equal(t, "running", wfStatus)
	stepStatus, _ := res.Final.Lookup("workflows.W1.steps.build.status")
	assert.Equal(t, "running", stepStatus)

	dStatus, _ := res.Snapshots[6].Lookup("aiDecisions.D1.status")
	assert.Equal(t, "pending", dStatus)
	dStatus, _ = res.Final.Lookup("aiDecisions.D1.status")
	assert.Equal(t, "resolved", dStatus)
}

func TestTransitions_CodeChanges(t *testing.T) {
	events := []event.Event{
		testutil.NewEvent("e1", TypeCodeChangeApplied, at(0)).Data("filesChanged", 2).Data("linesAdded", 40).Build(),
		testutil.NewEvent("e2", TypeCodeChangeApplied, at(1)).Data("linesAdded", 5).Data("linesRemoved", 7).Build(),
		testutil.NewEvent("e3", TypeCodeChangeApplied, at(2)).Data("linesAdded", -1).Build(),
		testutil.NewEvent("e4", TypeCodeChangeApplied, at(3)).Data("filesChanged", "two").Build(),
	}

	res := NewReconstructor().Reconstruct(New(), events)
	require.Len(t, res.Errors, 2)
	assert.Equal(t, "linesAdded must be non-negative, got -1", res.Errors[0].Message)
	assert.Equal(t, "filesChanged must be a number, got string", res.Errors[1].Message)

	assert.Equal(t, map[string]any{
		"commits":      float64(2),
		"filesChanged": float64(2),
		"linesAdded":   float64(45),
		"linesRemoved": float64(7),
	}, res.Final[KeyCodeChanges])
}

func TestTransitions_Approvals(t *testing.T) {
	events := []event.Event{
		testutil.NewEvent("e1", TypeApprovalGranted, at(0)).User("bob").Workflow("W1").Data("approvalId", "A1").Build(),
		testutil.NewEvent("e2", TypeApprovalGranted, at(1)).User("carol").Build(),
		testutil.NewEvent("e3", TypeApprovalGranted, at(2)).Data("approvalId", "A1").Build(),
		testutil.NewEvent("e4", TypeApprovalRevoked, at(3)).Data("approvalId", "A1").Build(),
		testutil.NewEvent("e5", TypeApprovalRevoked, at(4)).Data("approvalId", "A1").Build(),
	}

	res := NewReconstructor().Reconstruct(New(), events)
	require.Len(t, res.Errors, 2)
	assert.Equal(t, "approval A1 already granted", res.Errors[0].Message)
	assert.Equal(t, "unknown approval A1", res.Errors[1].Message)

	approvals := res.Final[KeyApprovals].([]any)
	require.Len(t, approvals, 1)
	assert.Equal(t, map[string]any{
		"id":        "e2",
		"reviewer":  "carol",
		"grantedAt": "2025-01-01T09:01:00Z",
	}, approvals[0])

	// The snapshot after e1 still shows A1.
	assert.Len(t, res.Snapshots[0][KeyApprovals].([]any), 1)
	assert.Len(t, res.Snapshots[1][KeyApprovals].([]any), 2)
}

func TestTransitions_SystemError(t *testing.T) {
	e := testutil.NewEvent("e1", TypeSystemErrorRaised, at(0)).
		Workflow("W1").
		Severity(event.SeverityCritical).
		Message("disk full").
		Build()

	res := NewReconstructor().Reconstruct(New(), []event.Event{e})
	require.Empty(t, res.Errors)
	assert.Equal(t, []any{map[string]any{
		"eventId":    "e1",
		"type":       "system.error.raised",
		"severity":   "critical",
		"message":    "disk full",
		"workflowId": "W1",
		"at":         "2025-01-01T09:00:00Z",
	}}, res.Final[KeyErrors])
}
