package engine

import (
	"context"
	"fmt"

	"github.com/fieldline/automation/pkg/core"
	"github.com/fieldline/automation/pkg/storage"
)

// ListTemplates returns the available workflow templates.
func (e *Engine) ListTemplates(ctx context.Context) ([]core.Workflow, error) {
	return e.store.ListWorkflows(ctx, storage.ListOpts{TemplatesOnly: true})
}

// InstantiateTemplate deep-copies a template into a new active
// workflow, including its triggers, conditions, and actions.
func (e *Engine) InstantiateTemplate(ctx context.Context, templateID string) (*core.Workflow, error) {
	tpl, err := e.store.GetWorkflow(ctx, templateID)
	if err != nil {
		return nil, fmt.Errorf("load template %s: %w", templateID, err)
	}
	if tpl == nil || !tpl.IsTemplate {
		return nil, core.ErrTemplateNotFound
	}

	wf := &core.Workflow{
		Name:                tpl.Name,
		Description:         tpl.Description,
		IsActive:            true,
		IsTemplate:          false,
		MaxExecutionsPerDay: tpl.MaxExecutionsPerDay,
		CooldownMinutes:     tpl.CooldownMinutes,
	}

	for _, t := range tpl.Triggers {
		nt := core.WorkflowTrigger{
			TriggerType: t.TriggerType,
			Config:      append([]byte(nil), t.Config...),
			Order:       t.Order,
		}
		for _, c := range t.Conditions {
			nt.Conditions = append(nt.Conditions, core.TriggerCondition{
				Field:    c.Field,
				Operator: c.Operator,
				Value:    append([]byte(nil), c.Value...),
			})
		}
		wf.Triggers = append(wf.Triggers, nt)
	}
	for _, a := range tpl.Actions {
		wf.Actions = append(wf.Actions, core.WorkflowAction{
			ActionType:      a.ActionType,
			Config:          append([]byte(nil), a.Config...),
			DelayMinutes:    a.DelayMinutes,
			Order:           a.Order,
			ContinueOnError: a.ContinueOnError,
		})
	}

	if err := e.store.CreateWorkflow(ctx, wf); err != nil {
		return nil, fmt.Errorf("instantiate template %s: %w", templateID, err)
	}
	return wf, nil
}
