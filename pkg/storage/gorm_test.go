package storage

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"github.com/fieldline/automation/pkg/core"
)

// newTestStore creates a fresh in-memory SQLite store for each test.
func newTestStore(t *testing.T) *GormStore {
	t.Helper()
	db, err := gorm.Open(sqlite.Open(":memory:"), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	require.NoError(t, err, "open in-memory sqlite")

	s := NewGormStore(db)
	require.NoError(t, s.Migrate(context.Background()), "migrate schema")
	return s
}

func newTestWorkflow(name string, triggerType core.TriggerType) *core.Workflow {
	return &core.Workflow{
		Name:     name,
		IsActive: true,
		Triggers: []core.WorkflowTrigger{
			{TriggerType: triggerType},
		},
		Actions: []core.WorkflowAction{
			{ActionType: core.ActionSendEmail, Order: 1},
		},
	}
}

// ──────────────────────────────────────────────────────────────────────────────
// Jobs and transitions
// ──────────────────────────────────────────────────────────────────────────────

func TestCreateJob_Defaults(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t)

	job := &core.Job{ClientID: "C1"}
	require.NoError(t, s.CreateJob(ctx, job))

	assert.NotEmpty(t, job.ID)
	assert.Equal(t, core.StateDraft, job.Status)
}

func TestGetJob_AbsentReturnsNil(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t)

	job, err := s.GetJob(ctx, "missing")
	require.NoError(t, err)
	assert.Nil(t, job)
}

func TestGetJob_PreloadsLineItems(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t)

	job := &core.Job{
		LineItems: []core.JobLineItem{
			{ID: "LI1", Description: "labour", Quantity: 2, UnitCents: 5000},
		},
	}
	require.NoError(t, s.CreateJob(ctx, job))

	got, err := s.GetJob(ctx, job.ID)
	require.NoError(t, err)
	require.NotNil(t, got)
	require.Len(t, got.LineItems, 1)
	assert.Equal(t, "labour", got.LineItems[0].Description)
}

func TestApplyTransition_WritesJobAndAuditRow(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t)

	job := &core.Job{}
	require.NoError(t, s.CreateJob(ctx, job))

	now := time.Now()
	tr := &core.JobStateTransition{
		JobID:        job.ID,
		FromState:    core.StateDraft,
		ToState:      core.StateScheduled,
		ChangeSource: core.SourceManual,
	}
	updated, err := s.ApplyTransition(ctx, job.ID, core.StateDraft, map[string]any{
		"status":               core.StateScheduled,
		"last_state_change_at": now,
	}, tr)
	require.NoError(t, err)
	assert.Equal(t, core.StateScheduled, updated.Status)
	require.NotNil(t, updated.LastStateChangeAt)

	rows, err := s.GetTransitions(ctx, job.ID)
	require.NoError(t, err)
	require.Len(t, rows, 1)
	assert.Equal(t, core.StateDraft, rows[0].FromState)
	assert.Equal(t, core.StateScheduled, rows[0].ToState)
}

func TestApplyTransition_StaleFromStateFails(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t)

	job := &core.Job{Status: core.StateScheduled}
	require.NoError(t, s.CreateJob(ctx, job))

	tr := &core.JobStateTransition{JobID: job.ID, FromState: core.StateDraft, ToState: core.StateScheduled}
	_, err := s.ApplyTransition(ctx, job.ID, core.StateDraft, map[string]any{
		"status": core.StateScheduled,
	}, tr)

	var invalid *core.InvalidTransitionError
	require.ErrorAs(t, err, &invalid)
	assert.Equal(t, core.StateScheduled, invalid.From)

	// No audit row was written.
	rows, err := s.GetTransitions(ctx, job.ID)
	require.NoError(t, err)
	assert.Empty(t, rows)
}

func TestApplyTransition_MissingJob(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t)

	tr := &core.JobStateTransition{JobID: "missing", FromState: core.StateDraft, ToState: core.StateScheduled}
	_, err := s.ApplyTransition(ctx, "missing", core.StateDraft, map[string]any{
		"status": core.StateScheduled,
	}, tr)
	assert.True(t, errors.Is(err, core.ErrJobNotFound))
}

// ──────────────────────────────────────────────────────────────────────────────
// Workflows
// ──────────────────────────────────────────────────────────────────────────────

func TestCreateWorkflow_AssignsNestedIDs(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t)

	wf := newTestWorkflow("follow up", core.TriggerQuoteSent)
	wf.Triggers[0].Conditions = []core.TriggerCondition{
		{Field: "status", Operator: core.OpEquals, Value: core.JSONValue("sent")},
	}
	require.NoError(t, s.CreateWorkflow(ctx, wf))

	got, err := s.GetWorkflow(ctx, wf.ID)
	require.NoError(t, err)
	require.NotNil(t, got)
	require.Len(t, got.Triggers, 1)
	require.Len(t, got.Triggers[0].Conditions, 1)
	require.Len(t, got.Actions, 1)
	assert.NotEmpty(t, got.Triggers[0].ID)
	assert.NotEmpty(t, got.Actions[0].ID)
}

func TestGetWorkflow_OrdersActions(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t)

	wf := &core.Workflow{
		Name:     "ordered",
		IsActive: true,
		Actions: []core.WorkflowAction{
			{ActionType: core.ActionSendSMS, Order: 2},
			{ActionType: core.ActionSendEmail, Order: 1},
		},
	}
	require.NoError(t, s.CreateWorkflow(ctx, wf))

	got, err := s.GetWorkflow(ctx, wf.ID)
	require.NoError(t, err)
	require.Len(t, got.Actions, 2)
	assert.Equal(t, core.ActionSendEmail, got.Actions[0].ActionType)
	assert.Equal(t, core.ActionSendSMS, got.Actions[1].ActionType)
}

func TestDeleteWorkflow_SoftDeleteHidesFromQueries(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t)

	wf := newTestWorkflow("doomed", core.TriggerQuoteSent)
	require.NoError(t, s.CreateWorkflow(ctx, wf))
	require.NoError(t, s.DeleteWorkflow(ctx, wf.ID))

	got, err := s.GetWorkflow(ctx, wf.ID)
	require.NoError(t, err)
	assert.Nil(t, got)

	matches, err := s.WorkflowsByTriggerType(ctx, core.TriggerQuoteSent)
	require.NoError(t, err)
	assert.Empty(t, matches)
}

func TestDeleteWorkflow_Missing(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t)

	err := s.DeleteWorkflow(ctx, "missing")
	assert.True(t, errors.Is(err, core.ErrWorkflowNotFound))
}

func TestWorkflowsByTriggerType_FiltersInactiveAndTemplates(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t)

	active := newTestWorkflow("active", core.TriggerJobCompleted)
	require.NoError(t, s.CreateWorkflow(ctx, active))

	inactive := newTestWorkflow("inactive", core.TriggerJobCompleted)
	inactive.IsActive = false
	require.NoError(t, s.CreateWorkflow(ctx, inactive))

	tpl := newTestWorkflow("template", core.TriggerJobCompleted)
	tpl.IsTemplate = true
	require.NoError(t, s.CreateWorkflow(ctx, tpl))

	other := newTestWorkflow("other type", core.TriggerQuoteSent)
	require.NoError(t, s.CreateWorkflow(ctx, other))

	matches, err := s.WorkflowsByTriggerType(ctx, core.TriggerJobCompleted)
	require.NoError(t, err)
	require.Len(t, matches, 1)
	assert.Equal(t, active.ID, matches[0].ID)
}

func TestSetWorkflowActive(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t)

	wf := newTestWorkflow("toggle", core.TriggerQuoteSent)
	require.NoError(t, s.CreateWorkflow(ctx, wf))
	require.NoError(t, s.SetWorkflowActive(ctx, wf.ID, false))

	got, err := s.GetWorkflow(ctx, wf.ID)
	require.NoError(t, err)
	assert.False(t, got.IsActive)
}

func TestUpdateWorkflow_ReplacesNestedRows(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t)

	wf := newTestWorkflow("original", core.TriggerQuoteSent)
	require.NoError(t, s.CreateWorkflow(ctx, wf))

	wf.Name = "renamed"
	wf.Triggers = []core.WorkflowTrigger{
		{TriggerType: core.TriggerQuoteApproved},
	}
	wf.Actions = []core.WorkflowAction{
		{ActionType: core.ActionSendSMS, Order: 1},
		{ActionType: core.ActionCreateTask, Order: 2},
	}
	require.NoError(t, s.UpdateWorkflow(ctx, wf))

	got, err := s.GetWorkflow(ctx, wf.ID)
	require.NoError(t, err)
	assert.Equal(t, "renamed", got.Name)
	require.Len(t, got.Triggers, 1)
	assert.Equal(t, core.TriggerQuoteApproved, got.Triggers[0].TriggerType)
	require.Len(t, got.Actions, 2)
}

// ──────────────────────────────────────────────────────────────────────────────
// Logs, rate-limit queries, pending actions
// ──────────────────────────────────────────────────────────────────────────────

func seedLog(t *testing.T, s *GormStore, l core.AutomationLog) core.AutomationLog {
	t.Helper()
	require.NoError(t, s.CreateLog(context.Background(), &l))
	return l
}

func TestListLogs_Filters(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t)

	seedLog(t, s, core.AutomationLog{ExecutionID: "E1", WorkflowID: "W1", ActionType: core.ActionSendEmail, Status: core.LogCompleted, TriggeredByEntityType: "job", TriggeredByEntityID: "J1"})
	seedLog(t, s, core.AutomationLog{ExecutionID: "E2", WorkflowID: "W2", ActionType: core.ActionSendSMS, Status: core.LogFailed, TriggeredByEntityType: "quote", TriggeredByEntityID: "Q1"})

	byWorkflow, err := s.ListLogs(ctx, LogFilter{WorkflowID: "W1"})
	require.NoError(t, err)
	require.Len(t, byWorkflow, 1)
	assert.Equal(t, "E1", byWorkflow[0].ExecutionID)

	byStatus, err := s.ListLogs(ctx, LogFilter{Status: core.LogFailed})
	require.NoError(t, err)
	require.Len(t, byStatus, 1)
	assert.Equal(t, "E2", byStatus[0].ExecutionID)

	byEntity, err := s.ListLogs(ctx, LogFilter{EntityType: "job", EntityID: "J1"})
	require.NoError(t, err)
	require.Len(t, byEntity, 1)
}

func TestExecutionLogs_OrdersByAction(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t)

	seedLog(t, s, core.AutomationLog{ExecutionID: "E1", WorkflowID: "W1", ActionOrder: 2, Status: core.LogCompleted})
	seedLog(t, s, core.AutomationLog{ExecutionID: "E1", WorkflowID: "W1", ActionOrder: 1, Status: core.LogCompleted})

	logs, err := s.ExecutionLogs(ctx, "E1")
	require.NoError(t, err)
	require.Len(t, logs, 2)
	assert.Equal(t, 1, logs[0].ActionOrder)
	assert.Equal(t, 2, logs[1].ActionOrder)
}

func TestCountExecutionsSince_DistinctNonSkipped(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t)

	// Two rows of one execution count once; skipped executions not at all.
	seedLog(t, s, core.AutomationLog{ExecutionID: "E1", WorkflowID: "W1", Status: core.LogCompleted})
	seedLog(t, s, core.AutomationLog{ExecutionID: "E1", WorkflowID: "W1", Status: core.LogFailed})
	seedLog(t, s, core.AutomationLog{ExecutionID: "E2", WorkflowID: "W1", Status: core.LogSkipped})
	seedLog(t, s, core.AutomationLog{ExecutionID: "E3", WorkflowID: "W2", Status: core.LogCompleted})

	n, err := s.CountExecutionsSince(ctx, "W1", time.Now().Add(-time.Hour))
	require.NoError(t, err)
	assert.Equal(t, int64(1), n)
}

func TestHasRecentExecutionFor(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t)

	done := time.Now()
	seedLog(t, s, core.AutomationLog{
		ExecutionID: "E1", WorkflowID: "W1", Status: core.LogCompleted,
		TriggeredByEntityType: "job", TriggeredByEntityID: "J1",
		CompletedAt: &done,
	})

	recent, err := s.HasRecentExecutionFor(ctx, "W1", "job", "J1", done.Add(-time.Minute))
	require.NoError(t, err)
	assert.True(t, recent)

	other, err := s.HasRecentExecutionFor(ctx, "W1", "job", "J2", done.Add(-time.Minute))
	require.NoError(t, err)
	assert.False(t, other)

	// The cooldown is measured from completion, not start. A row that
	// never finished does not hold the cooldown.
	seedLog(t, s, core.AutomationLog{
		ExecutionID: "E2", WorkflowID: "W2", Status: core.LogCompleted,
		TriggeredByEntityType: "job", TriggeredByEntityID: "J1",
	})
	unfinished, err := s.HasRecentExecutionFor(ctx, "W2", "job", "J1", done.Add(-time.Minute))
	require.NoError(t, err)
	assert.False(t, unfinished)
}

func TestPendingActions_DueAndClaim(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t)

	past := &core.PendingAction{ExecutionID: "E1", WorkflowID: "W1", ActionID: "A1", RunAt: time.Now().Add(-time.Minute)}
	future := &core.PendingAction{ExecutionID: "E1", WorkflowID: "W1", ActionID: "A2", RunAt: time.Now().Add(time.Hour)}
	require.NoError(t, s.CreatePendingAction(ctx, past))
	require.NoError(t, s.CreatePendingAction(ctx, future))

	due, err := s.DuePendingActions(ctx, time.Now(), 10)
	require.NoError(t, err)
	require.Len(t, due, 1)
	assert.Equal(t, "A1", due[0].ActionID)

	claimed, err := s.ClaimPendingAction(ctx, past.ID)
	require.NoError(t, err)
	assert.True(t, claimed)

	// A second claim loses.
	again, err := s.ClaimPendingAction(ctx, past.ID)
	require.NoError(t, err)
	assert.False(t, again)

	// Claimed rows are no longer due.
	due, err = s.DuePendingActions(ctx, time.Now(), 10)
	require.NoError(t, err)
	assert.Empty(t, due)
}

func TestCreateTask(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t)

	task := &core.FollowUpTask{Title: "call client", EntityType: "lead", EntityID: "L1"}
	require.NoError(t, s.CreateTask(ctx, task))
	assert.NotEmpty(t, task.ID)
}
