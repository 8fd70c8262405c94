package engine

import (
	"context"
	"encoding/json"
	"log/slog"
	"time"

	"github.com/robfig/cron/v3"

	"github.com/fieldline/automation/pkg/core"
)

// cronParser accepts standard 5-field expressions.
var cronParser = cron.NewParser(cron.Minute | cron.Hour | cron.Dom | cron.Month | cron.Dow)

// Scheduler polls due pending actions and fires cron-scheduled
// workflow triggers. One Scheduler per process is enough.
type Scheduler struct {
	engine *Engine
	logger *slog.Logger

	pollInterval    time.Duration
	refreshInterval time.Duration
	batchSize       int
}

// SchedulerOption configures a Scheduler.
type SchedulerOption func(*Scheduler)

// WithPollInterval sets how often due work is checked.
func WithPollInterval(d time.Duration) SchedulerOption {
	return func(s *Scheduler) { s.pollInterval = d }
}

// WithRefreshInterval sets how often cron workflows are reloaded.
func WithRefreshInterval(d time.Duration) SchedulerOption {
	return func(s *Scheduler) { s.refreshInterval = d }
}

// WithBatchSize caps pending actions dispatched per poll.
func WithBatchSize(n int) SchedulerOption {
	return func(s *Scheduler) { s.batchSize = n }
}

// WithSchedulerLogger sets the scheduler's logger.
func WithSchedulerLogger(l *slog.Logger) SchedulerOption {
	return func(s *Scheduler) { s.logger = l }
}

// NewScheduler creates a Scheduler for the engine.
func NewScheduler(e *Engine, opts ...SchedulerOption) *Scheduler {
	s := &Scheduler{
		engine:          e,
		logger:          slog.Default(),
		pollInterval:    time.Second,
		refreshInterval: time.Minute,
		batchSize:       50,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Start runs the polling loop. Blocks until the context is cancelled.
func (s *Scheduler) Start(ctx context.Context) error {
	ticker := time.NewTicker(s.pollInterval)
	defer ticker.Stop()

	var cronWorkflows []core.Workflow
	lastRefresh := time.Time{}
	lastFired := make(map[string]time.Time)

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
			s.DispatchDue(ctx)

			now := s.engine.now()
			if now.Sub(lastRefresh) >= s.refreshInterval {
				wfs, err := s.engine.store.WorkflowsByTriggerType(ctx, core.TriggerScheduled)
				if err != nil {
					s.logger.Error("failed to load scheduled workflows", "error", err)
				} else {
					cronWorkflows = wfs
					lastRefresh = now
				}
			}
			s.fireCronTriggers(ctx, cronWorkflows, lastFired)
		}
	}
}

// DispatchDue runs every pending action whose RunAt has passed.
func (s *Scheduler) DispatchDue(ctx context.Context) {
	due, err := s.engine.store.DuePendingActions(ctx, s.engine.now(), s.batchSize)
	if err != nil {
		s.logger.Error("failed to load due pending actions", "error", err)
		return
	}

	for _, pa := range due {
		if err := s.engine.RunPendingAction(ctx, pa); err != nil {
			s.logger.Error("pending action dispatch failed",
				"pending_id", pa.ID,
				"workflow_id", pa.WorkflowID,
				"error", err)
		}
	}
}

// fireCronTriggers executes each scheduled workflow whose cron
// expression is due, at most once per due instant.
func (s *Scheduler) fireCronTriggers(ctx context.Context, wfs []core.Workflow, lastFired map[string]time.Time) {
	now := s.engine.now()

	for i := range wfs {
		wf := wfs[i]
		for _, trig := range wf.Triggers {
			if trig.TriggerType != core.TriggerScheduled {
				continue
			}

			expr := cronExpr(trig.Config)
			if expr == "" {
				continue
			}
			sched, err := cronParser.Parse(expr)
			if err != nil {
				s.logger.Warn("invalid cron expression",
					"workflow_id", wf.ID,
					"trigger_id", trig.ID,
					"expr", expr)
				continue
			}

			last, seen := lastFired[trig.ID]
			if !seen {
				// First observation: arm for the next due instant
				// instead of firing immediately on startup.
				lastFired[trig.ID] = now
				continue
			}
			next := sched.Next(last)
			if now.Before(next) {
				continue
			}
			lastFired[trig.ID] = now

			event := core.BusinessEvent{
				Type:       core.TriggerScheduled,
				Payload:    map[string]any{"cron": expr, "workflow_id": wf.ID},
				OccurredAt: now,
			}
			if _, err := s.engine.Execute(ctx, &wf, event); err != nil {
				s.logger.Error("cron workflow execution failed",
					"workflow_id", wf.ID,
					"error", err)
			}
		}
	}
}

// cronExpr extracts the cron expression from a trigger's JSON config.
func cronExpr(config []byte) string {
	if len(config) == 0 {
		return ""
	}
	var cfg struct {
		Cron string `json:"cron"`
	}
	if err := json.Unmarshal(config, &cfg); err != nil {
		return ""
	}
	return cfg.Cron
}
