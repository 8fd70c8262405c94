// Package engine orchestrates workflow matching, rate limiting,
// sequential action execution, and per-action logging.
package engine

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"sort"
	"time"

	"github.com/google/uuid"

	"github.com/fieldline/automation/pkg/action"
	"github.com/fieldline/automation/pkg/condition"
	"github.com/fieldline/automation/pkg/core"
	"github.com/fieldline/automation/pkg/storage"
)

// rateWindow is the trailing window for MaxExecutionsPerDay. A
// trailing 24h was chosen over a calendar day: it cannot be gamed by
// bursts around midnight. Counters are best-effort, not a hard cap.
const rateWindow = 24 * time.Hour

// Execution is the outcome of one workflow run.
type Execution struct {
	ID         string               `json:"execution_id"`
	WorkflowID string               `json:"workflow_id"`
	Status     core.LogStatus       `json:"status"`
	Logs       []core.AutomationLog `json:"logs"`
}

// Engine runs workflows against business events.
type Engine struct {
	store  storage.Store
	exec   *action.Executor
	logger *slog.Logger
	now    func() time.Time
}

// Option configures an Engine.
type Option func(*Engine)

// WithLogger sets the engine's logger.
func WithLogger(l *slog.Logger) Option {
	return func(e *Engine) { e.logger = l }
}

// WithClock overrides the engine's clock.
func WithClock(now func() time.Time) Option {
	return func(e *Engine) { e.now = now }
}

// New creates an Engine over the given store and action executor.
func New(store storage.Store, exec *action.Executor, opts ...Option) *Engine {
	e := &Engine{
		store:  store,
		exec:   exec,
		logger: slog.Default(),
		now:    time.Now,
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// HandleEvent matches and executes every workflow subscribed to the
// event. Per-workflow failures are logged and do not stop the rest.
func (e *Engine) HandleEvent(ctx context.Context, event core.BusinessEvent) {
	matched, err := e.MatchWorkflows(ctx, event)
	if err != nil {
		e.logger.Error("workflow matching failed", "event_type", string(event.Type), "error", err)
		return
	}

	for i := range matched {
		wf := matched[i]
		if _, err := e.Execute(ctx, &wf, event); err != nil {
			e.logger.Error("workflow execution failed",
				"workflow_id", wf.ID,
				"event_type", string(event.Type),
				"error", err)
		}
	}
}

// MatchWorkflows selects active, non-deleted workflows with a trigger
// of the event's type whose ANDed conditions pass. A trigger with zero
// conditions always matches.
func (e *Engine) MatchWorkflows(ctx context.Context, event core.BusinessEvent) ([]core.Workflow, error) {
	candidates, err := e.store.WorkflowsByTriggerType(ctx, event.Type)
	if err != nil {
		return nil, fmt.Errorf("load workflows for %s: %w", event.Type, err)
	}

	var matched []core.Workflow
	for _, wf := range candidates {
		for _, trig := range wf.Triggers {
			if trig.TriggerType != event.Type {
				continue
			}
			if condition.Evaluate(trig.Conditions, event) {
				matched = append(matched, wf)
				break
			}
		}
	}
	return matched, nil
}

// Execute runs a workflow's actions in order for one triggering event.
// A rate-limit or cooldown hit produces exactly one skipped log and no
// actions. Hitting a delayed action defers it together with everything
// after it; the scheduler resumes the sequence in order once due.
// Returns a non-nil error only on persistence failure.
func (e *Engine) Execute(ctx context.Context, wf *core.Workflow, event core.BusinessEvent) (*Execution, error) {
	executionID := uuid.New().String()

	skipReason, err := e.skipReason(ctx, wf, event)
	if err != nil {
		return nil, err
	}
	if skipReason != "" {
		log, err := e.writeSkipLog(ctx, executionID, wf, event, core.WorkflowAction{}, skipReason)
		if err != nil {
			return nil, err
		}
		e.logger.Info("workflow skipped", "workflow_id", wf.ID, "reason", skipReason)
		return &Execution{ID: executionID, WorkflowID: wf.ID, Status: core.LogSkipped, Logs: []core.AutomationLog{*log}}, nil
	}

	actions := sortedActions(wf)
	logs, failed, err := e.runSequence(ctx, executionID, wf, actions, 0, false, event)
	if err != nil {
		return nil, err
	}

	exec := &Execution{ID: executionID, WorkflowID: wf.ID, Status: core.LogCompleted, Logs: logs}
	if failed {
		exec.Status = core.LogFailed
	}
	return exec, nil
}

// runSequence executes actions[start:] in order. A failure without
// ContinueOnError skip-logs the rest. A delayed action stops the walk
// and defers itself plus everything after it as one pending row; the
// resumed dispatch picks the sequence back up at that action.
func (e *Engine) runSequence(ctx context.Context, executionID string, wf *core.Workflow, actions []core.WorkflowAction, start int, halted bool, event core.BusinessEvent) ([]core.AutomationLog, bool, error) {
	var logs []core.AutomationLog
	failed := halted

	for i := start; i < len(actions); i++ {
		act := actions[i]
		if halted {
			log, err := e.writeSkipLog(ctx, executionID, wf, event, act, "skipped: earlier action failed")
			if err != nil {
				return nil, false, err
			}
			logs = append(logs, *log)
			continue
		}

		if act.DelayMinutes > 0 {
			if err := e.deferAction(ctx, executionID, wf, act, event); err != nil {
				return nil, false, err
			}
			return logs, failed, nil
		}

		log, actionErr, err := e.runAction(ctx, executionID, wf, act, event)
		if err != nil {
			return nil, false, err
		}
		logs = append(logs, *log)

		if actionErr != nil && !act.ContinueOnError {
			halted = true
			failed = true
		}
	}

	return logs, failed, nil
}

func sortedActions(wf *core.Workflow) []core.WorkflowAction {
	actions := make([]core.WorkflowAction, len(wf.Actions))
	copy(actions, wf.Actions)
	sort.SliceStable(actions, func(i, j int) bool { return actions[i].Order < actions[j].Order })
	return actions
}

// ExecuteManual runs a workflow through the same pipeline for an
// explicitly named entity, bypassing trigger matching.
func (e *Engine) ExecuteManual(ctx context.Context, workflowID, entityType, entityID string, entityData map[string]any) (*Execution, error) {
	wf, err := e.store.GetWorkflow(ctx, workflowID)
	if err != nil {
		return nil, fmt.Errorf("load workflow %s: %w", workflowID, err)
	}
	if wf == nil {
		return nil, core.ErrWorkflowNotFound
	}

	event := core.BusinessEvent{
		EntityType: entityType,
		EntityID:   entityID,
		Payload:    entityData,
		OccurredAt: e.now(),
	}
	if len(wf.Triggers) > 0 {
		event.Type = wf.Triggers[0].TriggerType
	}

	return e.Execute(ctx, wf, event)
}

// skipReason returns a non-empty reason when the execution must be
// skipped: daily budget exhausted or cooldown still active.
func (e *Engine) skipReason(ctx context.Context, wf *core.Workflow, event core.BusinessEvent) (string, error) {
	now := e.now()

	if wf.MaxExecutionsPerDay > 0 {
		n, err := e.store.CountExecutionsSince(ctx, wf.ID, now.Add(-rateWindow))
		if err != nil {
			return "", fmt.Errorf("count executions for %s: %w", wf.ID, err)
		}
		if n >= int64(wf.MaxExecutionsPerDay) {
			return fmt.Sprintf("daily execution limit reached (%d/24h)", wf.MaxExecutionsPerDay), nil
		}
	}

	if wf.CooldownMinutes > 0 && event.EntityID != "" {
		since := now.Add(-time.Duration(wf.CooldownMinutes) * time.Minute)
		recent, err := e.store.HasRecentExecutionFor(ctx, wf.ID, event.EntityType, event.EntityID, since)
		if err != nil {
			return "", fmt.Errorf("check cooldown for %s: %w", wf.ID, err)
		}
		if recent {
			return fmt.Sprintf("cooldown active (%dm) for %s %s", wf.CooldownMinutes, event.EntityType, event.EntityID), nil
		}
	}

	return "", nil
}

// runAction executes one action with full logging. The first error is
// the action's own failure; the second is a persistence failure.
func (e *Engine) runAction(ctx context.Context, executionID string, wf *core.Workflow, act core.WorkflowAction, event core.BusinessEvent) (*core.AutomationLog, error, error) {
	started := e.now()
	input, _ := json.Marshal(event.Payload)

	log := &core.AutomationLog{
		ExecutionID:           executionID,
		WorkflowID:            wf.ID,
		TriggerType:           event.Type,
		ActionType:            act.ActionType,
		ActionID:              act.ID,
		ActionOrder:           act.Order,
		TriggeredByEntityType: event.EntityType,
		TriggeredByEntityID:   event.EntityID,
		Status:                core.LogRunning,
		InputData:             input,
		StartedAt:             started,
	}
	if err := e.store.CreateLog(ctx, log); err != nil {
		return nil, nil, fmt.Errorf("write running log: %w", err)
	}

	output, actionErr := e.exec.Run(ctx, act, event)

	completed := e.now()
	log.CompletedAt = &completed
	log.DurationMs = completed.Sub(started).Milliseconds()

	if actionErr != nil {
		log.Status = core.LogFailed
		log.ErrorMessage = actionErr.Error()
		e.logger.Warn("action failed",
			"workflow_id", wf.ID,
			"action_type", string(act.ActionType),
			"error", actionErr)
	} else {
		log.Status = core.LogCompleted
		if output != nil {
			log.OutputData, _ = json.Marshal(output)
		}
	}

	if err := e.store.UpdateLog(ctx, log); err != nil {
		return nil, nil, fmt.Errorf("finalize log: %w", err)
	}
	return log, actionErr, nil
}

// deferAction persists a pending-action row marking where the
// execution's sequence resumes; the scheduler dispatches it once RunAt
// passes. Nothing blocks in the meantime.
func (e *Engine) deferAction(ctx context.Context, executionID string, wf *core.Workflow, act core.WorkflowAction, event core.BusinessEvent) error {
	snapshot, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("snapshot event: %w", err)
	}

	pa := &core.PendingAction{
		ExecutionID: executionID,
		WorkflowID:  wf.ID,
		ActionID:    act.ID,
		RunAt:       e.now().Add(time.Duration(act.DelayMinutes) * time.Minute),
		Event:       snapshot,
	}
	if err := e.store.CreatePendingAction(ctx, pa); err != nil {
		return fmt.Errorf("schedule delayed action: %w", err)
	}

	e.logger.Debug("action deferred",
		"workflow_id", wf.ID,
		"action_id", act.ID,
		"run_at", pa.RunAt)
	return nil
}

// writeSkipLog records a skipped row for an action (or for the whole
// execution when act is zero).
func (e *Engine) writeSkipLog(ctx context.Context, executionID string, wf *core.Workflow, event core.BusinessEvent, act core.WorkflowAction, reason string) (*core.AutomationLog, error) {
	now := e.now()
	log := &core.AutomationLog{
		ExecutionID:           executionID,
		WorkflowID:            wf.ID,
		TriggerType:           event.Type,
		ActionType:            act.ActionType,
		ActionID:              act.ID,
		ActionOrder:           act.Order,
		TriggeredByEntityType: event.EntityType,
		TriggeredByEntityID:   event.EntityID,
		Status:                core.LogSkipped,
		ErrorMessage:          reason,
		StartedAt:             now,
		CompletedAt:           &now,
	}
	if err := e.store.CreateLog(ctx, log); err != nil {
		return nil, fmt.Errorf("write skip log: %w", err)
	}
	return log, nil
}

// RunPendingAction dispatches one due pending action: it claims the
// row, reloads the workflow, and resumes the execution's sequence from
// the deferred action onward with normal logging and halt semantics.
func (e *Engine) RunPendingAction(ctx context.Context, pa core.PendingAction) error {
	claimed, err := e.store.ClaimPendingAction(ctx, pa.ID)
	if err != nil {
		return err
	}
	if !claimed {
		return nil
	}

	wf, err := e.store.GetWorkflow(ctx, pa.WorkflowID)
	if err != nil {
		return fmt.Errorf("load workflow %s: %w", pa.WorkflowID, err)
	}
	if wf == nil {
		// Workflow deleted since scheduling; nothing left to run.
		e.logger.Info("dropping pending action for deleted workflow", "workflow_id", pa.WorkflowID)
		return nil
	}

	actions := sortedActions(wf)
	start := -1
	for i := range actions {
		if actions[i].ID == pa.ActionID {
			start = i
			break
		}
	}
	if start == -1 {
		e.logger.Info("dropping pending action for removed action", "action_id", pa.ActionID)
		return nil
	}

	var event core.BusinessEvent
	if err := json.Unmarshal(pa.Event, &event); err != nil {
		return fmt.Errorf("decode event snapshot: %w", err)
	}

	// The deferred action runs now regardless of its DelayMinutes;
	// any later delayed action defers the tail again.
	_, actionErr, err := e.runAction(ctx, pa.ExecutionID, wf, actions[start], event)
	if err != nil {
		return err
	}
	halted := actionErr != nil && !actions[start].ContinueOnError

	_, _, err = e.runSequence(ctx, pa.ExecutionID, wf, actions, start+1, halted, event)
	return err
}

// Store exposes the engine's store to the HTTP layer.
func (e *Engine) Store() storage.Store {
	return e.store
}
