// Package validate enforces input limits on workflows and transition
// requests before they reach storage.
package validate

import (
	"fmt"

	"github.com/fieldline/automation/pkg/core"
)

// Limits applied to incoming workflow definitions.
const (
	MaxWorkflowNameLength   = 255
	MaxActionsPerWorkflow   = 50
	MaxTriggersPerWorkflow  = 20
	MaxConditionsPerTrigger = 20
	MaxConfigSize           = 64 * 1024
)

var validOperators = map[core.Operator]bool{
	core.OpEquals:      true,
	core.OpNotEquals:   true,
	core.OpContains:    true,
	core.OpGreaterThan: true,
	core.OpLessThan:    true,
	core.OpIn:          true,
	core.OpNotIn:       true,
}

var validActionTypes = map[core.ActionType]bool{
	core.ActionSendEmail:        true,
	core.ActionSendSMS:          true,
	core.ActionCreateTask:       true,
	core.ActionUpdateEntity:     true,
	core.ActionCreateInvoice:    true,
	core.ActionCreateJob:        true,
	core.ActionDeleteSource:     true,
	core.ActionSendNotification: true,
	core.ActionWebhook:          true,
	core.ActionDelay:            true,
}

var validTriggerTypes = map[core.TriggerType]bool{
	core.TriggerQuoteSent:       true,
	core.TriggerQuoteApproved:   true,
	core.TriggerQuoteDeclined:   true,
	core.TriggerLeadConverted:   true,
	core.TriggerQuoteConverted:  true,
	core.TriggerJobCreated:      true,
	core.TriggerJobScheduled:    true,
	core.TriggerJobStarted:      true,
	core.TriggerJobCompleted:    true,
	core.TriggerJobCancelled:    true,
	core.TriggerInvoiceCreated:  true,
	core.TriggerInvoiceSent:     true,
	core.TriggerInvoiceOverdue:  true,
	core.TriggerPaymentReceived: true,
	core.TriggerLeadCreated:     true,
	core.TriggerClientCreated:   true,
	core.TriggerScheduled:       true,
}

// TriggerType reports whether t is a known trigger type.
func TriggerType(t core.TriggerType) bool {
	return validTriggerTypes[t]
}

// Workflow checks a workflow definition before persistence. The first
// violation is returned as a *core.ValidationError.
func Workflow(wf *core.Workflow) error {
	if wf.Name == "" {
		return &core.ValidationError{Field: "name", Msg: "is required"}
	}
	if len(wf.Name) > MaxWorkflowNameLength {
		return &core.ValidationError{Field: "name", Msg: fmt.Sprintf("exceeds %d characters", MaxWorkflowNameLength)}
	}
	if wf.MaxExecutionsPerDay < 0 {
		return &core.ValidationError{Field: "max_executions_per_day", Msg: "must not be negative"}
	}
	if wf.CooldownMinutes < 0 {
		return &core.ValidationError{Field: "cooldown_minutes", Msg: "must not be negative"}
	}
	if len(wf.Triggers) > MaxTriggersPerWorkflow {
		return &core.ValidationError{Field: "triggers", Msg: fmt.Sprintf("exceeds %d triggers", MaxTriggersPerWorkflow)}
	}
	if len(wf.Actions) > MaxActionsPerWorkflow {
		return &core.ValidationError{Field: "actions", Msg: fmt.Sprintf("exceeds %d actions", MaxActionsPerWorkflow)}
	}

	for i, t := range wf.Triggers {
		if !validTriggerTypes[t.TriggerType] {
			return &core.ValidationError{
				Field: fmt.Sprintf("triggers[%d].trigger_type", i),
				Msg:   fmt.Sprintf("unknown trigger type %q", t.TriggerType),
			}
		}
		if len(t.Config) > MaxConfigSize {
			return &core.ValidationError{
				Field: fmt.Sprintf("triggers[%d].config", i),
				Msg:   "config too large",
			}
		}
		if len(t.Conditions) > MaxConditionsPerTrigger {
			return &core.ValidationError{
				Field: fmt.Sprintf("triggers[%d].conditions", i),
				Msg:   fmt.Sprintf("exceeds %d conditions", MaxConditionsPerTrigger),
			}
		}
		for j, c := range t.Conditions {
			if c.Field == "" {
				return &core.ValidationError{
					Field: fmt.Sprintf("triggers[%d].conditions[%d].field", i, j),
					Msg:   "is required",
				}
			}
			if !validOperators[c.Operator] {
				return &core.ValidationError{
					Field: fmt.Sprintf("triggers[%d].conditions[%d].operator", i, j),
					Msg:   fmt.Sprintf("unknown operator %q", c.Operator),
				}
			}
		}
	}

	for i, a := range wf.Actions {
		if !validActionTypes[a.ActionType] {
			return &core.ValidationError{
				Field: fmt.Sprintf("actions[%d].action_type", i),
				Msg:   fmt.Sprintf("unknown action type %q", a.ActionType),
			}
		}
		if len(a.Config) > MaxConfigSize {
			return &core.ValidationError{
				Field: fmt.Sprintf("actions[%d].config", i),
				Msg:   "config too large",
			}
		}
		if a.DelayMinutes < 0 {
			return &core.ValidationError{
				Field: fmt.Sprintf("actions[%d].delay_minutes", i),
				Msg:   "must not be negative",
			}
		}
	}

	return nil
}

// TransitionTarget checks a requested target state string.
func TransitionTarget(to string) error {
	if to == "" {
		return &core.ValidationError{Field: "to_state", Msg: "is required"}
	}
	if !core.JobState(to).Valid() {
		return &core.ValidationError{Field: "to_state", Msg: fmt.Sprintf("unknown state %q", to)}
	}
	return nil
}

// ChangeSource checks a change source string, defaulting empty to
// manual.
func ChangeSource(s string) error {
	switch core.ChangeSource(s) {
	case "", core.SourceManual, core.SourceAutomated, core.SourceSystem:
		return nil
	}
	return &core.ValidationError{Field: "change_source", Msg: fmt.Sprintf("unknown source %q", s)}
}
