// Package storage provides the persistence layer for jobs, workflows,
// automation logs, and scheduled pending actions.
package storage

import (
	"context"
	"time"

	"github.com/fieldline/automation/pkg/core"
)

// ListOpts filters workflow listings.
type ListOpts struct {
	ActiveOnly    bool
	TemplatesOnly bool
	Category      string
}

// LogFilter filters automation log queries. Zero values are ignored.
type LogFilter struct {
	WorkflowID string
	Status     core.LogStatus
	ActionType core.ActionType
	EntityType string
	EntityID   string
	StartDate  time.Time
	EndDate    time.Time
	Limit      int
}

// Store defines the persistence operations the engine and the state
// machine depend on.
type Store interface {
	// Migrate creates the necessary database tables.
	Migrate(ctx context.Context) error

	// Jobs
	CreateJob(ctx context.Context, job *core.Job) error
	GetJob(ctx context.Context, jobID string) (*core.Job, error)
	// ApplyTransition atomically moves a job from one state to another:
	// the status write, merged field updates, and the audit row commit
	// or roll back together. A stale from-state yields an
	// InvalidTransitionError carrying the actual current state.
	ApplyTransition(ctx context.Context, jobID string, from core.JobState, updates map[string]any, tr *core.JobStateTransition) (*core.Job, error)
	GetTransitions(ctx context.Context, jobID string) ([]core.JobStateTransition, error)

	// Workflows
	CreateWorkflow(ctx context.Context, wf *core.Workflow) error
	UpdateWorkflow(ctx context.Context, wf *core.Workflow) error
	DeleteWorkflow(ctx context.Context, workflowID string) error
	GetWorkflow(ctx context.Context, workflowID string) (*core.Workflow, error)
	ListWorkflows(ctx context.Context, opts ListOpts) ([]core.Workflow, error)
	SetWorkflowActive(ctx context.Context, workflowID string, active bool) error
	// WorkflowsByTriggerType returns active, non-deleted, non-template
	// workflows carrying at least one trigger of the given type, with
	// triggers, conditions, and actions preloaded.
	WorkflowsByTriggerType(ctx context.Context, t core.TriggerType) ([]core.Workflow, error)

	// Automation logs
	CreateLog(ctx context.Context, log *core.AutomationLog) error
	UpdateLog(ctx context.Context, log *core.AutomationLog) error
	ListLogs(ctx context.Context, f LogFilter) ([]core.AutomationLog, error)
	ExecutionLogs(ctx context.Context, executionID string) ([]core.AutomationLog, error)
	// CountExecutionsSince counts distinct non-skipped executions of a
	// workflow started at or after the cutoff.
	CountExecutionsSince(ctx context.Context, workflowID string, since time.Time) (int64, error)
	// HasRecentExecutionFor reports whether a completed execution exists
	// for the (workflow, entity) pair since the cutoff.
	HasRecentExecutionFor(ctx context.Context, workflowID, entityType, entityID string, since time.Time) (bool, error)
	LogsSince(ctx context.Context, since time.Time, workflowID string) ([]core.AutomationLog, error)

	// Pending actions (durable delayed actions)
	CreatePendingAction(ctx context.Context, pa *core.PendingAction) error
	DuePendingActions(ctx context.Context, now time.Time, limit int) ([]core.PendingAction, error)
	// ClaimPendingAction marks a pending row dispatched. Returns false
	// if another dispatcher already claimed it.
	ClaimPendingAction(ctx context.Context, id string) (bool, error)

	// Follow-up tasks
	CreateTask(ctx context.Context, task *core.FollowUpTask) error
}
