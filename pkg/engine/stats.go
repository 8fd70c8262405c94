package engine

import (
	"context"
	"fmt"
	"sort"
	"time"

	"github.com/fieldline/automation/pkg/core"
)

// Totals aggregates action outcomes over the window.
type Totals struct {
	Total       int64   `json:"total"`
	Successful  int64   `json:"successful"`
	Failed      int64   `json:"failed"`
	Skipped     int64   `json:"skipped"`
	SuccessRate float64 `json:"success_rate"`
}

// DurationStats describes action run times in milliseconds.
type DurationStats struct {
	AvgMs float64 `json:"avg_ms"`
	MinMs int64   `json:"min_ms"`
	MaxMs int64   `json:"max_ms"`
}

// DayBucket is one calendar day of activity.
type DayBucket struct {
	Date       string `json:"date"`
	Total      int64  `json:"total"`
	Successful int64  `json:"successful"`
	Failed     int64  `json:"failed"`
	Skipped    int64  `json:"skipped"`
}

// ActionTypeStats breaks outcomes down per action type.
type ActionTypeStats struct {
	ActionType core.ActionType `json:"action_type"`
	Total      int64           `json:"total"`
	Successful int64           `json:"successful"`
	Failed     int64           `json:"failed"`
}

// WorkflowCount ranks a workflow by executions in the window.
type WorkflowCount struct {
	WorkflowID string `json:"workflow_id"`
	Executions int64  `json:"executions"`
}

// Stats is the read-only aggregation over automation logs.
type Stats struct {
	Days         int               `json:"days"`
	Totals       Totals            `json:"totals"`
	Duration     DurationStats     `json:"duration"`
	PerDay       []DayBucket       `json:"per_day"`
	ByActionType []ActionTypeStats `json:"by_action_type"`
	TopWorkflows []WorkflowCount   `json:"top_workflows"`
}

// topWorkflowLimit caps the ranked workflow list.
const topWorkflowLimit = 5

// Stats aggregates automation logs over the trailing number of days,
// optionally restricted to one workflow.
func (e *Engine) Stats(ctx context.Context, days int, workflowID string) (*Stats, error) {
	if days <= 0 {
		days = 7
	}
	since := e.now().AddDate(0, 0, -days)

	logs, err := e.store.LogsSince(ctx, since, workflowID)
	if err != nil {
		return nil, fmt.Errorf("load logs since %s: %w", since.Format(time.DateOnly), err)
	}

	st := &Stats{Days: days}
	byDay := map[string]*DayBucket{}
	byAction := map[core.ActionType]*ActionTypeStats{}
	executionsPerWorkflow := map[string]map[string]struct{}{}

	var durTotal int64
	var durCount int64

	for _, l := range logs {
		st.Totals.Total++
		day := l.StartedAt.Format(time.DateOnly)
		bucket := byDay[day]
		if bucket == nil {
			bucket = &DayBucket{Date: day}
			byDay[day] = bucket
		}
		bucket.Total++

		switch l.Status {
		case core.LogCompleted:
			st.Totals.Successful++
			bucket.Successful++
		case core.LogFailed:
			st.Totals.Failed++
			bucket.Failed++
		case core.LogSkipped:
			st.Totals.Skipped++
			bucket.Skipped++
		}

		if l.ActionType != "" && l.Status != core.LogSkipped {
			a := byAction[l.ActionType]
			if a == nil {
				a = &ActionTypeStats{ActionType: l.ActionType}
				byAction[l.ActionType] = a
			}
			a.Total++
			if l.Status == core.LogCompleted {
				a.Successful++
			} else if l.Status == core.LogFailed {
				a.Failed++
			}
		}

		if l.Status == core.LogCompleted || l.Status == core.LogFailed {
			durTotal += l.DurationMs
			durCount++
			if durCount == 1 || l.DurationMs < st.Duration.MinMs {
				st.Duration.MinMs = l.DurationMs
			}
			if l.DurationMs > st.Duration.MaxMs {
				st.Duration.MaxMs = l.DurationMs
			}
		}

		execs := executionsPerWorkflow[l.WorkflowID]
		if execs == nil {
			execs = map[string]struct{}{}
			executionsPerWorkflow[l.WorkflowID] = execs
		}
		execs[l.ExecutionID] = struct{}{}
	}

	if finished := st.Totals.Successful + st.Totals.Failed; finished > 0 {
		st.Totals.SuccessRate = float64(st.Totals.Successful) / float64(finished)
	}
	if durCount > 0 {
		st.Duration.AvgMs = float64(durTotal) / float64(durCount)
	}

	for _, b := range byDay {
		st.PerDay = append(st.PerDay, *b)
	}
	sort.Slice(st.PerDay, func(i, j int) bool { return st.PerDay[i].Date < st.PerDay[j].Date })

	for _, a := range byAction {
		st.ByActionType = append(st.ByActionType, *a)
	}
	sort.Slice(st.ByActionType, func(i, j int) bool {
		return st.ByActionType[i].ActionType < st.ByActionType[j].ActionType
	})

	for id, execs := range executionsPerWorkflow {
		st.TopWorkflows = append(st.TopWorkflows, WorkflowCount{WorkflowID: id, Executions: int64(len(execs))})
	}
	sort.Slice(st.TopWorkflows, func(i, j int) bool {
		if st.TopWorkflows[i].Executions != st.TopWorkflows[j].Executions {
			return st.TopWorkflows[i].Executions > st.TopWorkflows[j].Executions
		}
		return st.TopWorkflows[i].WorkflowID < st.TopWorkflows[j].WorkflowID
	})
	if len(st.TopWorkflows) > topWorkflowLimit {
		st.TopWorkflows = st.TopWorkflows[:topWorkflowLimit]
	}

	return st, nil
}
