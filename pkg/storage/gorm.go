package storage

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/fieldline/automation/pkg/core"
)

// GormStore implements Store using GORM.
type GormStore struct {
	db *gorm.DB
}

// NewGormStore creates a new GORM-backed store.
func NewGormStore(db *gorm.DB) *GormStore {
	return &GormStore{db: db}
}

// DB returns the underlying *gorm.DB.
func (s *GormStore) DB() *gorm.DB {
	return s.db
}

// Migrate creates the necessary tables.
func (s *GormStore) Migrate(ctx context.Context) error {
	return s.db.WithContext(ctx).AutoMigrate(
		&core.Job{},
		&core.JobLineItem{},
		&core.JobStateTransition{},
		&core.Workflow{},
		&core.WorkflowTrigger{},
		&core.TriggerCondition{},
		&core.WorkflowAction{},
		&core.AutomationLog{},
		&core.PendingAction{},
		&core.FollowUpTask{},
	)
}

// ─── Jobs ─────────────────────────────────────────────────────────────────────

// CreateJob inserts a job, defaulting ID and status.
func (s *GormStore) CreateJob(ctx context.Context, job *core.Job) error {
	if job.ID == "" {
		job.ID = uuid.New().String()
	}
	if job.Status == "" {
		job.Status = core.StateDraft
	}
	return s.db.WithContext(ctx).Create(job).Error
}

// GetJob retrieves a job with its line items, or nil if absent.
func (s *GormStore) GetJob(ctx context.Context, jobID string) (*core.Job, error) {
	var job core.Job
	err := s.db.WithContext(ctx).
		Preload("LineItems").
		First(&job, "id = ?", jobID).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &job, nil
}

// ApplyTransition performs the read-validate-write of one state change
// in a single transaction. The status predicate in the UPDATE makes a
// competing transition observe a stale from-state and fail instead of
// silently overwriting.
func (s *GormStore) ApplyTransition(ctx context.Context, jobID string, from core.JobState, updates map[string]any, tr *core.JobStateTransition) (*core.Job, error) {
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		result := tx.Model(&core.Job{}).
			Where("id = ? AND status = ?", jobID, from).
			Updates(updates)
		if result.Error != nil {
			return result.Error
		}
		if result.RowsAffected == 0 {
			var current core.Job
			if err := tx.First(&current, "id = ?", jobID).Error; err != nil {
				if errors.Is(err, gorm.ErrRecordNotFound) {
					return core.ErrJobNotFound
				}
				return err
			}
			return &core.InvalidTransitionError{From: current.Status, To: tr.ToState}
		}

		if tr.ID == "" {
			tr.ID = uuid.New().String()
		}
		return tx.Create(tr).Error
	})
	if err != nil {
		return nil, err
	}
	return s.GetJob(ctx, jobID)
}

// GetTransitions returns the audit log for a job, oldest first.
func (s *GormStore) GetTransitions(ctx context.Context, jobID string) ([]core.JobStateTransition, error) {
	var rows []core.JobStateTransition
	err := s.db.WithContext(ctx).
		Where("job_id = ?", jobID).
		Order("created_at ASC, id ASC").
		Find(&rows).Error
	return rows, err
}

// ─── Workflows ────────────────────────────────────────────────────────────────

// CreateWorkflow inserts a workflow with its nested triggers,
// conditions, and actions, defaulting missing IDs.
func (s *GormStore) CreateWorkflow(ctx context.Context, wf *core.Workflow) error {
	if wf.ID == "" {
		wf.ID = uuid.New().String()
	}
	for i := range wf.Triggers {
		t := &wf.Triggers[i]
		if t.ID == "" {
			t.ID = uuid.New().String()
		}
		t.WorkflowID = wf.ID
		for j := range t.Conditions {
			c := &t.Conditions[j]
			if c.ID == "" {
				c.ID = uuid.New().String()
			}
			c.TriggerID = t.ID
		}
	}
	for i := range wf.Actions {
		a := &wf.Actions[i]
		if a.ID == "" {
			a.ID = uuid.New().String()
		}
		a.WorkflowID = wf.ID
	}
	return s.db.WithContext(ctx).Create(wf).Error
}

// UpdateWorkflow replaces a workflow and its nested rows.
func (s *GormStore) UpdateWorkflow(ctx context.Context, wf *core.Workflow) error {
	return s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var existing core.Workflow
		if err := tx.First(&existing, "id = ?", wf.ID).Error; err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return core.ErrWorkflowNotFound
			}
			return err
		}

		// Replace nested rows wholesale; partial trigger/action edits
		// are not supported at this layer.
		var triggerIDs []string
		if err := tx.Model(&core.WorkflowTrigger{}).
			Where("workflow_id = ?", wf.ID).
			Pluck("id", &triggerIDs).Error; err != nil {
			return err
		}
		if len(triggerIDs) > 0 {
			if err := tx.Where("trigger_id IN ?", triggerIDs).Delete(&core.TriggerCondition{}).Error; err != nil {
				return err
			}
		}
		if err := tx.Where("workflow_id = ?", wf.ID).Delete(&core.WorkflowTrigger{}).Error; err != nil {
			return err
		}
		if err := tx.Where("workflow_id = ?", wf.ID).Delete(&core.WorkflowAction{}).Error; err != nil {
			return err
		}

		for i := range wf.Triggers {
			t := &wf.Triggers[i]
			if t.ID == "" {
				t.ID = uuid.New().String()
			}
			t.WorkflowID = wf.ID
			for j := range t.Conditions {
				c := &t.Conditions[j]
				if c.ID == "" {
					c.ID = uuid.New().String()
				}
				c.TriggerID = t.ID
			}
		}
		for i := range wf.Actions {
			a := &wf.Actions[i]
			if a.ID == "" {
				a.ID = uuid.New().String()
			}
			a.WorkflowID = wf.ID
		}

		return tx.Session(&gorm.Session{FullSaveAssociations: true}).Save(wf).Error
	})
}

// DeleteWorkflow soft-deletes a workflow.
func (s *GormStore) DeleteWorkflow(ctx context.Context, workflowID string) error {
	result := s.db.WithContext(ctx).Delete(&core.Workflow{}, "id = ?", workflowID)
	if result.Error != nil {
		return result.Error
	}
	if result.RowsAffected == 0 {
		return core.ErrWorkflowNotFound
	}
	return nil
}

// GetWorkflow retrieves a workflow with triggers, conditions, and
// actions preloaded, or nil if absent or soft-deleted.
func (s *GormStore) GetWorkflow(ctx context.Context, workflowID string) (*core.Workflow, error) {
	var wf core.Workflow
	err := s.db.WithContext(ctx).
		Preload("Triggers", func(db *gorm.DB) *gorm.DB {
			return db.Order("trigger_order ASC")
		}).
		Preload("Triggers.Conditions").
		Preload("Actions", func(db *gorm.DB) *gorm.DB {
			return db.Order("action_order ASC")
		}).
		First(&wf, "id = ?", workflowID).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &wf, nil
}

// ListWorkflows returns workflows matching the options.
func (s *GormStore) ListWorkflows(ctx context.Context, opts ListOpts) ([]core.Workflow, error) {
	q := s.db.WithContext(ctx).
		Preload("Triggers.Conditions").
		Preload("Triggers").
		Preload("Actions").
		Order("created_at ASC")

	if opts.ActiveOnly {
		q = q.Where("is_active = ?", true)
	}
	if opts.TemplatesOnly {
		q = q.Where("is_template = ?", true)
	} else {
		q = q.Where("is_template = ?", false)
	}
	if opts.Category != "" {
		q = q.Where("template_category = ?", opts.Category)
	}

	var wfs []core.Workflow
	return wfs, q.Find(&wfs).Error
}

// SetWorkflowActive flips the is_active flag.
func (s *GormStore) SetWorkflowActive(ctx context.Context, workflowID string, active bool) error {
	result := s.db.WithContext(ctx).
		Model(&core.Workflow{}).
		Where("id = ?", workflowID).
		Update("is_active", active)
	if result.Error != nil {
		return result.Error
	}
	if result.RowsAffected == 0 {
		return core.ErrWorkflowNotFound
	}
	return nil
}

// WorkflowsByTriggerType returns active, non-template workflows with a
// trigger of the given type. Soft-deleted workflows are excluded by
// the gorm soft-delete scope.
func (s *GormStore) WorkflowsByTriggerType(ctx context.Context, t core.TriggerType) ([]core.Workflow, error) {
	var ids []string
	err := s.db.WithContext(ctx).
		Model(&core.WorkflowTrigger{}).
		Where("trigger_type = ?", t).
		Distinct().
		Pluck("workflow_id", &ids).Error
	if err != nil {
		return nil, err
	}
	if len(ids) == 0 {
		return nil, nil
	}

	var wfs []core.Workflow
	err = s.db.WithContext(ctx).
		Preload("Triggers", func(db *gorm.DB) *gorm.DB {
			return db.Order("trigger_order ASC")
		}).
		Preload("Triggers.Conditions").
		Preload("Actions", func(db *gorm.DB) *gorm.DB {
			return db.Order("action_order ASC")
		}).
		Where("id IN ?", ids).
		Where("is_active = ? AND is_template = ?", true, false).
		Find(&wfs).Error
	return wfs, err
}

// ─── Automation logs ──────────────────────────────────────────────────────────

// CreateLog inserts an automation log row, defaulting its ID.
func (s *GormStore) CreateLog(ctx context.Context, log *core.AutomationLog) error {
	if log.ID == "" {
		log.ID = uuid.New().String()
	}
	if log.StartedAt.IsZero() {
		log.StartedAt = time.Now()
	}
	return s.db.WithContext(ctx).Create(log).Error
}

// UpdateLog persists the terminal fields of a log row.
func (s *GormStore) UpdateLog(ctx context.Context, log *core.AutomationLog) error {
	return s.db.WithContext(ctx).
		Model(&core.AutomationLog{}).
		Where("id = ?", log.ID).
		Updates(map[string]any{
			"status":        log.Status,
			"output_data":   log.OutputData,
			"error_message": log.ErrorMessage,
			"completed_at":  log.CompletedAt,
			"duration_ms":   log.DurationMs,
		}).Error
}

// ListLogs returns log rows matching the filter, newest first.
func (s *GormStore) ListLogs(ctx context.Context, f LogFilter) ([]core.AutomationLog, error) {
	q := s.db.WithContext(ctx).Order("started_at DESC, id DESC")

	if f.WorkflowID != "" {
		q = q.Where("workflow_id = ?", f.WorkflowID)
	}
	if f.Status != "" {
		q = q.Where("status = ?", f.Status)
	}
	if f.ActionType != "" {
		q = q.Where("action_type = ?", f.ActionType)
	}
	if f.EntityType != "" {
		q = q.Where("triggered_by_entity_type = ?", f.EntityType)
	}
	if f.EntityID != "" {
		q = q.Where("triggered_by_entity_id = ?", f.EntityID)
	}
	if !f.StartDate.IsZero() {
		q = q.Where("started_at >= ?", f.StartDate)
	}
	if !f.EndDate.IsZero() {
		q = q.Where("started_at <= ?", f.EndDate)
	}
	if f.Limit > 0 {
		q = q.Limit(f.Limit)
	}

	var logs []core.AutomationLog
	return logs, q.Find(&logs).Error
}

// ExecutionLogs returns the rows of one execution in action order.
func (s *GormStore) ExecutionLogs(ctx context.Context, executionID string) ([]core.AutomationLog, error) {
	var logs []core.AutomationLog
	err := s.db.WithContext(ctx).
		Where("execution_id = ?", executionID).
		Order("action_order ASC, started_at ASC").
		Find(&logs).Error
	return logs, err
}

// CountExecutionsSince counts distinct non-skipped executions of a
// workflow started at or after the cutoff. Skipped executions ran no
// actions, so they do not consume the daily budget.
func (s *GormStore) CountExecutionsSince(ctx context.Context, workflowID string, since time.Time) (int64, error) {
	var n int64
	err := s.db.WithContext(ctx).
		Model(&core.AutomationLog{}).
		Where("workflow_id = ?", workflowID).
		Where("started_at >= ?", since).
		Where("status <> ?", core.LogSkipped).
		Distinct("execution_id").
		Count(&n).Error
	return n, err
}

// HasRecentExecutionFor reports whether an execution for the
// (workflow, entity) pair completed at or after the cutoff.
func (s *GormStore) HasRecentExecutionFor(ctx context.Context, workflowID, entityType, entityID string, since time.Time) (bool, error) {
	var n int64
	err := s.db.WithContext(ctx).
		Model(&core.AutomationLog{}).
		Where("workflow_id = ?", workflowID).
		Where("triggered_by_entity_type = ? AND triggered_by_entity_id = ?", entityType, entityID).
		Where("status = ?", core.LogCompleted).
		Where("completed_at >= ?", since).
		Count(&n).Error
	return n > 0, err
}

// LogsSince returns log rows started at or after the cutoff,
// optionally restricted to one workflow. Used by stats aggregation.
func (s *GormStore) LogsSince(ctx context.Context, since time.Time, workflowID string) ([]core.AutomationLog, error) {
	q := s.db.WithContext(ctx).Where("started_at >= ?", since)
	if workflowID != "" {
		q = q.Where("workflow_id = ?", workflowID)
	}

	var logs []core.AutomationLog
	return logs, q.Order("started_at ASC").Find(&logs).Error
}

// ─── Pending actions ──────────────────────────────────────────────────────────

// CreatePendingAction persists a durably scheduled deferred action.
func (s *GormStore) CreatePendingAction(ctx context.Context, pa *core.PendingAction) error {
	if pa.ID == "" {
		pa.ID = uuid.New().String()
	}
	if pa.Status == "" {
		pa.Status = core.PendingStatusPending
	}
	return s.db.WithContext(ctx).Create(pa).Error
}

// DuePendingActions returns pending rows whose RunAt has passed.
func (s *GormStore) DuePendingActions(ctx context.Context, now time.Time, limit int) ([]core.PendingAction, error) {
	var rows []core.PendingAction
	err := s.db.WithContext(ctx).
		Where("status = ?", core.PendingStatusPending).
		Where("run_at <= ?", now).
		Order("run_at ASC").
		Limit(limit).
		Find(&rows).Error
	return rows, err
}

// ClaimPendingAction marks a pending row dispatched. The status
// predicate makes the claim exclusive under concurrent dispatchers.
func (s *GormStore) ClaimPendingAction(ctx context.Context, id string) (bool, error) {
	result := s.db.WithContext(ctx).
		Model(&core.PendingAction{}).
		Where("id = ? AND status = ?", id, core.PendingStatusPending).
		Update("status", core.PendingStatusDispatched)
	if result.Error != nil {
		return false, fmt.Errorf("claim pending action: %w", result.Error)
	}
	return result.RowsAffected > 0, nil
}

// ─── Follow-up tasks ──────────────────────────────────────────────────────────

// CreateTask inserts a follow-up task, defaulting its ID.
func (s *GormStore) CreateTask(ctx context.Context, task *core.FollowUpTask) error {
	if task.ID == "" {
		task.ID = uuid.New().String()
	}
	return s.db.WithContext(ctx).Create(task).Error
}
