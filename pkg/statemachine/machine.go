// Package statemachine validates and persists job status transitions,
// maintains the append-only audit log, and fires automated side
// effects on entering specific states.
package statemachine

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/fieldline/automation/pkg/core"
	"github.com/fieldline/automation/pkg/storage"
)

// transitions is the legal edge table. Completed and cancelled are
// terminal: they have no entry.
var transitions = map[core.JobState][]core.JobState{
	core.StateDraft:      {core.StateScheduled, core.StateCancelled},
	core.StateScheduled:  {core.StateInProgress, core.StateOnHold, core.StateCancelled},
	core.StateInProgress: {core.StateOnHold, core.StateCompleted, core.StateCancelled},
	core.StateOnHold:     {core.StateScheduled, core.StateCancelled},
}

// CanTransition reports whether (from, to) is a legal edge.
func CanTransition(from, to core.JobState) bool {
	for _, t := range transitions[from] {
		if t == to {
			return true
		}
	}
	return false
}

// EntryHook runs after a transition into its registered state has
// committed. Hook failures never roll the transition back; they are
// logged for manual remediation.
type EntryHook func(ctx context.Context, job *core.Job) error

// TransitionRequest carries the caller-supplied transition metadata.
// JobUpdates keys are column names merged into the job row on success;
// status and id are reserved and stripped.
type TransitionRequest struct {
	ChangedBy     string
	ChangedByRole string
	ChangeSource  core.ChangeSource
	Reason        string
	Notes         string
	JobUpdates    map[string]any
}

// Edge is the from/to pair of a performed transition.
type Edge struct {
	From core.JobState `json:"from"`
	To   core.JobState `json:"to"`
}

// TransitionResult is the outcome of a transition attempt. Business
// failures (illegal edge, unmet guards) set Success=false with Errors;
// they are not Go errors.
type TransitionResult struct {
	Success    bool          `json:"success"`
	Job        *core.Job     `json:"job,omitempty"`
	Transition *Edge         `json:"transition,omitempty"`
	Errors     []string      `json:"errors,omitempty"`
}

// AllowedTransition is one currently reachable edge, annotated with
// whatever guards are still unmet.
type AllowedTransition struct {
	ToState      core.JobState `json:"to_state"`
	UnmetReasons []string      `json:"unmet_reasons"`
}

// Machine is the job lifecycle state machine.
type Machine struct {
	store   storage.Store
	tracker core.TimeTracker
	logger  *slog.Logger

	mu    sync.RWMutex
	hooks map[core.JobState][]EntryHook
}

// Option configures a Machine.
type Option func(*Machine)

// WithTimeTracker wires the open-time-entry guard for completion.
func WithTimeTracker(t core.TimeTracker) Option {
	return func(m *Machine) { m.tracker = t }
}

// WithLogger sets the machine's logger.
func WithLogger(l *slog.Logger) Option {
	return func(m *Machine) { m.logger = l }
}

// New creates a Machine over the given store.
func New(store storage.Store, opts ...Option) *Machine {
	m := &Machine{
		store:  store,
		logger: slog.Default(),
		hooks:  make(map[core.JobState][]EntryHook),
	}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

// OnEnter registers a hook to run after transitions into state commit.
func (m *Machine) OnEnter(state core.JobState, hook EntryHook) {
	m.mu.Lock()
	m.hooks[state] = append(m.hooks[state], hook)
	m.mu.Unlock()
}

// Transition attempts to move a job to toState. It returns
// core.ErrJobNotFound if the job is absent and a non-nil error only on
// persistence failure; every business outcome is in the result.
func (m *Machine) Transition(ctx context.Context, jobID string, toState core.JobState, req TransitionRequest) (*TransitionResult, error) {
	if !toState.Valid() {
		return &TransitionResult{
			Success: false,
			Errors:  []string{fmt.Sprintf("unknown state %q", toState)},
		}, nil
	}

	job, err := m.store.GetJob(ctx, jobID)
	if err != nil {
		return nil, fmt.Errorf("load job %s: %w", jobID, err)
	}
	if job == nil {
		return nil, core.ErrJobNotFound
	}

	from := job.Status
	if !CanTransition(from, toState) {
		return &TransitionResult{
			Success: false,
			Errors:  []string{(&core.InvalidTransitionError{From: from, To: toState}).Error()},
		}, nil
	}

	unmet, err := m.guardReasons(ctx, job, toState)
	if err != nil {
		return nil, err
	}
	if len(unmet) > 0 {
		return &TransitionResult{Success: false, Errors: unmet}, nil
	}

	now := time.Now()
	updates := map[string]any{}
	for k, v := range req.JobUpdates {
		updates[k] = v
	}
	delete(updates, "status")
	delete(updates, "id")
	updates["status"] = toState
	updates["last_state_change_at"] = now

	source := req.ChangeSource
	if source == "" {
		source = core.SourceManual
	}
	tr := &core.JobStateTransition{
		JobID:         jobID,
		FromState:     from,
		ToState:       toState,
		ChangedBy:     req.ChangedBy,
		ChangedByRole: req.ChangedByRole,
		ChangeSource:  source,
		Reason:        req.Reason,
		Notes:         req.Notes,
	}

	updated, err := m.store.ApplyTransition(ctx, jobID, from, updates, tr)
	if err != nil {
		var stale *core.InvalidTransitionError
		if errors.As(err, &stale) {
			// A concurrent transition won the race; no mutation happened.
			return &TransitionResult{Success: false, Errors: []string{stale.Error()}}, nil
		}
		if errors.Is(err, core.ErrJobNotFound) {
			return nil, core.ErrJobNotFound
		}
		return nil, fmt.Errorf("apply transition %s -> %s: %w", from, toState, err)
	}

	m.runEntryHooks(ctx, toState, updated)

	return &TransitionResult{
		Success:    true,
		Job:        updated,
		Transition: &Edge{From: from, To: toState},
	}, nil
}

// AllowedTransitions returns the edges reachable from the job's
// current state, each annotated with unmet guard reasons. Terminal
// states yield an empty list.
func (m *Machine) AllowedTransitions(ctx context.Context, jobID string) ([]AllowedTransition, error) {
	job, err := m.store.GetJob(ctx, jobID)
	if err != nil {
		return nil, fmt.Errorf("load job %s: %w", jobID, err)
	}
	if job == nil {
		return nil, core.ErrJobNotFound
	}

	var out []AllowedTransition
	for _, to := range transitions[job.Status] {
		unmet, err := m.guardReasons(ctx, job, to)
		if err != nil {
			return nil, err
		}
		if unmet == nil {
			unmet = []string{}
		}
		out = append(out, AllowedTransition{ToState: to, UnmetReasons: unmet})
	}
	return out, nil
}

// StateHistory returns the audit log for a job, oldest first.
func (m *Machine) StateHistory(ctx context.Context, jobID string) ([]core.JobStateTransition, error) {
	job, err := m.store.GetJob(ctx, jobID)
	if err != nil {
		return nil, fmt.Errorf("load job %s: %w", jobID, err)
	}
	if job == nil {
		return nil, core.ErrJobNotFound
	}
	return m.store.GetTransitions(ctx, jobID)
}

// guardReasons evaluates the target state's preconditions against the
// job. An empty slice means the transition may proceed.
func (m *Machine) guardReasons(ctx context.Context, job *core.Job, to core.JobState) ([]string, error) {
	var reasons []string

	switch to {
	case core.StateInProgress:
		if job.JHARequired && job.JHAAcknowledgedAt == nil {
			reasons = append(reasons, "job hazard analysis has not been acknowledged")
		}
	case core.StateScheduled:
		if job.DepositRequired && (job.DepositStatus == "" || job.DepositStatus == core.DepositUnpaid) {
			reasons = append(reasons, "required deposit has not been paid")
		}
	case core.StateCompleted:
		if m.tracker != nil {
			open, err := m.tracker.OpenEntryCount(ctx, job.ID)
			if err != nil {
				return nil, fmt.Errorf("check open time entries for %s: %w", job.ID, err)
			}
			if open > 0 {
				reasons = append(reasons, fmt.Sprintf("%d open time-tracking entries must be closed", open))
			}
		}
	}
	return reasons, nil
}

// runEntryHooks invokes registered hooks for the entered state. The
// transition is already committed; hook failures are logged only.
func (m *Machine) runEntryHooks(ctx context.Context, state core.JobState, job *core.Job) {
	m.mu.RLock()
	hooks := make([]EntryHook, len(m.hooks[state]))
	copy(hooks, m.hooks[state])
	m.mu.RUnlock()

	for _, hook := range hooks {
		if err := hook(ctx, job); err != nil {
			m.logger.Error("state entry hook failed",
				"job_id", job.ID,
				"state", string(state),
				"error", err)
		}
	}
}

// AutoInvoiceHook returns the completed-state hook that creates a
// draft invoice from the job's line items. It is idempotent: a job
// that already has an invoice is skipped.
func AutoInvoiceHook(invoices core.InvoiceService, logger *slog.Logger) EntryHook {
	if logger == nil {
		logger = slog.Default()
	}
	return func(ctx context.Context, job *core.Job) error {
		exists, err := invoices.HasInvoiceForJob(ctx, job.ID)
		if err != nil {
			return fmt.Errorf("check invoice for job %s: %w", job.ID, err)
		}
		if exists {
			logger.Debug("invoice already exists, skipping auto-invoice", "job_id", job.ID)
			return nil
		}

		invoiceID, err := invoices.CreateDraftFromJob(ctx, job)
		if err != nil {
			return fmt.Errorf("auto-invoice job %s: %w", job.ID, err)
		}
		logger.Info("created draft invoice for completed job", "job_id", job.ID, "invoice_id", invoiceID)
		return nil
	}
}
