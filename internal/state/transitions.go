package state

import (
	"fmt"

	"github.com/roach88/chronicle/internal/event"
)

// Built-in event types with registered transitions.
const (
	TypeIssueCreated      event.Type = "issue.create.succeeded"
	TypeIssueUpdated      event.Type = "issue.update.succeeded"
	TypeIssueClosed       event.Type = "issue.close.succeeded"
	TypeWorkflowStarted   event.Type = "workflow.run.started"
	TypeWorkflowCompleted event.Type = "workflow.run.completed"
	TypeWorkflowFailed    event.Type = "workflow.run.failed"
	TypeWorkflowCancelled event.Type = "workflow.run.cancelled"
	TypeStepStarted       event.Type = "workflow.step.started"
	TypeStepCompleted     event.Type = "workflow.step.completed"
	TypeStepFailed        event.Type = "workflow.step.failed"
	TypeDecisionRequested event.Type = "ai.decision.requested"
	TypeDecisionResolved  event.Type = "ai.decision.resolved"
	TypeCodeChangeApplied event.Type = "code.change.applied"
	TypeApprovalGranted   event.Type = "approval.review.granted"
	TypeApprovalRevoked   event.Type = "approval.review.revoked"
	TypeSystemErrorRaised event.Type = "system.error.raised"
)

var builtinTransitions = map[event.Type]TransitionFunc{
	TypeIssueCreated:      issueCreated,
	TypeIssueUpdated:      issueUpdated,
	TypeIssueClosed:       issueClosed,
	TypeWorkflowStarted:   workflowStarted,
	TypeWorkflowCompleted: workflowFinished("completed"),
	TypeWorkflowFailed:    workflowFinished("failed"),
	TypeWorkflowCancelled: workflowFinished("cancelled"),
	TypeStepStarted:       stepUpdated("running"),
	TypeStepCompleted:     stepUpdated("completed"),
	TypeStepFailed:        stepUpdated("failed"),
	TypeDecisionRequested: decisionRequested,
	TypeDecisionResolved:  decisionResolved,
	TypeCodeChangeApplied: codeChangeApplied,
	TypeApprovalGranted:   approvalGranted,
	TypeApprovalRevoked:   approvalRevoked,
	TypeSystemErrorRaised: systemErrorRaised,
}

// reservedDataKeys are payload fields that identify an entity or carry its
// lifecycle. They are set only by the transitions and never copied from the
// payload.
var reservedDataKeys = map[string]bool{
	"id":         true,
	"issueId":    true,
	"workflowId": true,
	"decisionId": true,
	"approvalId": true,
	"step":       true,
	"message":    true,

	"status":      true,
	"steps":       true,
	"createdAt":   true,
	"updatedAt":   true,
	"closedAt":    true,
	"startedAt":   true,
	"finishedAt":  true,
	"requestedAt": true,
	"resolvedAt":  true,
	"grantedAt":   true,
}

func issueCreated(s State, e event.Event) (State, error) {
	id := contextOrData(e, e.Context.IssueID, "issueId")
	if id == "" {
		return nil, fmt.Errorf("issue id missing")
	}
	issues := section(s, KeyIssues)
	if _, exists := issues[id]; exists {
		return nil, fmt.Errorf("issue %s already exists", id)
	}
	issue := map[string]any{
		"id":        id,
		"status":    "open",
		"createdAt": ts(e),
		"updatedAt": ts(e),
	}
	if e.Context.UserID != "" {
		issue["createdBy"] = e.Context.UserID
	}
	copyPayload(issue, e)
	issues[id] = issue
	return s, nil
}

func issueUpdated(s State, e event.Event) (State, error) {
	issue, err := existingIssue(s, e)
	if err != nil {
		return nil, err
	}
	copyPayload(issue, e)
	issue["updatedAt"] = ts(e)
	return s, nil
}

func issueClosed(s State, e event.Event) (State, error) {
	issue, err := existingIssue(s, e)
	if err != nil {
		return nil, err
	}
	if issue["status"] == "closed" {
		return nil, fmt.Errorf("issue %v already closed", issue["id"])
	}
	copyPayload(issue, e)
	issue["status"] = "closed"
	issue["closedAt"] = ts(e)
	issue["updatedAt"] = ts(e)
	return s, nil
}

func existingIssue(s State, e event.Event) (map[string]any, error) {
	id := contextOrData(e, e.Context.IssueID, "issueId")
	if id == "" {
		return nil, fmt.Errorf("issue id missing")
	}
	issue, ok := section(s, KeyIssues)[id].(map[string]any)
	if !ok {
		return nil, fmt.Errorf("unknown issue %s", id)
	}
	return issue, nil
}

func workflowStarted(s State, e event.Event) (State, error) {
	id := contextOrData(e, e.Context.WorkflowID, "workflowId")
	if id == "" {
		return nil, fmt.Errorf("workflow id missing")
	}
	workflows := section(s, KeyWorkflows)
	if wf, ok := workflows[id].(map[string]any); ok && wf["status"] == "running" {
		return nil, fmt.Errorf("workflow %s already running", id)
	}
	wf := map[string]any{
		"id":        id,
		"status":    "running",
		"startedAt": ts(e),
		"steps":     map[string]any{},
	}
	if e.Context.IssueID != "" {
		wf["issueId"] = e.Context.IssueID
	}
	copyPayload(wf, e)
	workflows[id] = wf
	return s, nil
}

func workflowFinished(status string) TransitionFunc {
	return func(s State, e event.Event) (State, error) {
		wf, err := existingWorkflow(s, e)
		if err != nil {
			return nil, err
		}
		if wf["status"] != "running" {
			return nil, fmt.Errorf("workflow %v is %v, not running", wf["id"], wf["status"])
		}
		copyPayload(wf, e)
		wf["status"] = status
		wf["finishedAt"] = ts(e)
		if status == "failed" {
			appendError(s, e)
		}
		return s, nil
	}
}

func stepUpdated(status string) TransitionFunc {
	return func(s State, e event.Event) (State, error) {
		wf, err := existingWorkflow(s, e)
		if err != nil {
			return nil, err
		}
		name, _ := e.Data["step"].(string)
		if name == "" {
			return nil, fmt.Errorf("step name missing")
		}
		steps, ok := wf["steps"].(map[string]any)
		if !ok {
			steps = map[string]any{}
			wf["steps"] = steps
		}
		step, ok := steps[name].(map[string]any)
		if !ok {
			if status != "running" {
				return nil, fmt.Errorf("step %s of workflow %v was never started", name, wf["id"])
			}
			step = map[string]any{"name": name}
			steps[name] = step
		}
		copyPayload(step, e)
		step["status"] = status
		if status == "running" {
			step["startedAt"] = ts(e)
		} else {
			step["finishedAt"] = ts(e)
		}
		if status == "failed" {
			if msg := e.Message(); msg != "" {
				step["error"] = msg
			}
			appendError(s, e)
		}
		return s, nil
	}
}

func existingWorkflow(s State, e event.Event) (map[string]any, error) {
	id := contextOrData(e, e.Context.WorkflowID, "workflowId")
	if id == "" {
		return nil, fmt.Errorf("workflow id missing")
	}
	wf, ok := section(s, KeyWorkflows)[id].(map[string]any)
	if !ok {
		return nil, fmt.Errorf("unknown workflow %s", id)
	}
	return wf, nil
}

func decisionRequested(s State, e event.Event) (State, error) {
	id, _ := e.Data["decisionId"].(string)
	if id == "" {
		return nil, fmt.Errorf("decision id missing")
	}
	decisions := section(s, KeyAIDecisions)
	if _, exists := decisions[id]; exists {
		return nil, fmt.Errorf("decision %s already requested", id)
	}
	d := map[string]any{
		"id":          id,
		"status":      "pending",
		"requestedAt": ts(e),
	}
	if e.Context.WorkflowID != "" {
		d["workflowId"] = e.Context.WorkflowID
	}
	copyPayload(d, e)
	decisions[id] = d
	return s, nil
}

func decisionResolved(s State, e event.Event) (State, error) {
	id, _ := e.Data["decisionId"].(string)
	if id == "" {
		return nil, fmt.Errorf("decision id missing")
	}
	d, ok := section(s, KeyAIDecisions)[id].(map[string]any)
	if !ok {
		return nil, fmt.Errorf("unknown decision %s", id)
	}
	if d["status"] != "pending" {
		return nil, fmt.Errorf("decision %s is not pending", id)
	}
	copyPayload(d, e)
	d["status"] = "resolved"
	d["resolvedAt"] = ts(e)
	return s, nil
}

func codeChangeApplied(s State, e event.Event) (State, error) {
	counters := section(s, KeyCodeChanges)
	deltas := map[string]float64{}
	for _, key := range []string{"filesChanged", "linesAdded", "linesRemoved"} {
		raw, present := e.Data[key]
		if !present {
			continue
		}
		n, ok := raw.(float64)
		if !ok {
			return nil, fmt.Errorf("%s must be a number, got %T", key, raw)
		}
		if n < 0 {
			return nil, fmt.Errorf("%s must be non-negative, got %v", key, n)
		}
		deltas[key] = n
	}
	for key, n := range deltas {
		counters[key] = number(counters[key]) + n
	}
	counters["commits"] = number(counters["commits"]) + 1
	return s, nil
}

func approvalGranted(s State, e event.Event) (State, error) {
	id, _ := e.Data["approvalId"].(string)
	if id == "" {
		id = e.ID
	}
	approvals, _ := s[KeyApprovals].([]any)
	for _, a := range approvals {
		if m, ok := a.(map[string]any); ok && m["id"] == id {
			return nil, fmt.Errorf("approval %s already granted", id)
		}
	}
	approval := map[string]any{
		"id":        id,
		"grantedAt": ts(e),
	}
	if e.Context.UserID != "" {
		approval["reviewer"] = e.Context.UserID
	}
	if e.Context.WorkflowID != "" {
		approval["workflowId"] = e.Context.WorkflowID
	}
	if e.Context.IssueID != "" {
		approval["issueId"] = e.Context.IssueID
	}
	copyPayload(approval, e)
	s[KeyApprovals] = append(approvals, approval)
	return s, nil
}

func approvalRevoked(s State, e event.Event) (State, error) {
	id, _ := e.Data["approvalId"].(string)
	if id == "" {
		return nil, fmt.Errorf("approval id missing")
	}
	approvals, _ := s[KeyApprovals].([]any)
	kept := make([]any, 0, len(approvals))
	found := false
	for _, a := range approvals {
		if m, ok := a.(map[string]any); ok && m["id"] == id {
			found = true
			continue
		}
		kept = append(kept, a)
	}
	if !found {
		return nil, fmt.Errorf("unknown approval %s", id)
	}
	s[KeyApprovals] = kept
	return s, nil
}

func systemErrorRaised(s State, e event.Event) (State, error) {
	appendError(s, e)
	return s, nil
}

// appendError records e in the accumulated error list.
func appendError(s State, e event.Event) {
	errs, _ := s[KeyErrors].([]any)
	entry := map[string]any{
		"eventId":  e.ID,
		"type":     string(e.Type),
		"severity": string(e.Severity),
		"at":       ts(e),
	}
	if msg := e.Message(); msg != "" {
		entry["message"] = msg
	}
	if e.Context.WorkflowID != "" {
		entry["workflowId"] = e.Context.WorkflowID
	}
	s[KeyErrors] = append(errs, entry)
}

// section returns the named map section of s, creating it if absent.
func section(s State, key string) map[string]any {
	m, ok := s[key].(map[string]any)
	if !ok {
		m = map[string]any{}
		s[key] = m
	}
	return m
}

// copyPayload copies non-identifying payload fields into an entity record.
func copyPayload(dst map[string]any, e event.Event) {
	for k, v := range e.Data {
		if reservedDataKeys[k] {
			continue
		}
		dst[k] = cloneValue(v)
	}
}

func contextOrData(e event.Event, ctxValue, dataKey string) string {
	if ctxValue != "" {
		return ctxValue
	}
	s, _ := e.Data[dataKey].(string)
	return s
}

func number(v any) float64 {
	n, _ := v.(float64)
	return n
}

func ts(e event.Event) string {
	return event.FormatTimestamp(e.Timestamp)
}
