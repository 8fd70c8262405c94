package validate

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/fieldline/automation/pkg/core"
)

func validWorkflow() *core.Workflow {
	return &core.Workflow{
		Name: "quote follow-up",
		Triggers: []core.WorkflowTrigger{{
			TriggerType: core.TriggerQuoteSent,
			Conditions: []core.TriggerCondition{
				{Field: "status", Operator: core.OpEquals, Value: core.JSONValue("sent")},
			},
		}},
		Actions: []core.WorkflowAction{
			{ActionType: core.ActionSendEmail},
		},
	}
}

func fieldOf(t *testing.T, err error) string {
	t.Helper()
	var verr *core.ValidationError
	require.ErrorAs(t, err, &verr)
	return verr.Field
}

func TestWorkflow_Valid(t *testing.T) {
	assert.NoError(t, Workflow(validWorkflow()))
}

func TestWorkflow_NameRequired(t *testing.T) {
	wf := validWorkflow()
	wf.Name = ""
	assert.Equal(t, "name", fieldOf(t, Workflow(wf)))
}

func TestWorkflow_NameTooLong(t *testing.T) {
	wf := validWorkflow()
	wf.Name = strings.Repeat("x", MaxWorkflowNameLength+1)
	assert.Equal(t, "name", fieldOf(t, Workflow(wf)))
}

func TestWorkflow_NegativeRateSettings(t *testing.T) {
	wf := validWorkflow()
	wf.MaxExecutionsPerDay = -1
	assert.Equal(t, "max_executions_per_day", fieldOf(t, Workflow(wf)))

	wf = validWorkflow()
	wf.CooldownMinutes = -1
	assert.Equal(t, "cooldown_minutes", fieldOf(t, Workflow(wf)))
}

func TestWorkflow_TooManyActions(t *testing.T) {
	wf := validWorkflow()
	wf.Actions = make([]core.WorkflowAction, MaxActionsPerWorkflow+1)
	for i := range wf.Actions {
		wf.Actions[i].ActionType = core.ActionSendEmail
	}
	assert.Equal(t, "actions", fieldOf(t, Workflow(wf)))
}

func TestWorkflow_TooManyTriggers(t *testing.T) {
	wf := validWorkflow()
	wf.Triggers = make([]core.WorkflowTrigger, MaxTriggersPerWorkflow+1)
	for i := range wf.Triggers {
		wf.Triggers[i].TriggerType = core.TriggerQuoteSent
	}
	assert.Equal(t, "triggers", fieldOf(t, Workflow(wf)))
}

func TestWorkflow_UnknownTriggerType(t *testing.T) {
	wf := validWorkflow()
	wf.Triggers[0].TriggerType = "meteor_strike"
	assert.Equal(t, "triggers[0].trigger_type", fieldOf(t, Workflow(wf)))
}

func TestWorkflow_ConditionFieldRequired(t *testing.T) {
	wf := validWorkflow()
	wf.Triggers[0].Conditions[0].Field = ""
	assert.Equal(t, "triggers[0].conditions[0].field", fieldOf(t, Workflow(wf)))
}

func TestWorkflow_UnknownOperator(t *testing.T) {
	wf := validWorkflow()
	wf.Triggers[0].Conditions[0].Operator = "resembles"
	assert.Equal(t, "triggers[0].conditions[0].operator", fieldOf(t, Workflow(wf)))
}

func TestWorkflow_UnknownActionType(t *testing.T) {
	wf := validWorkflow()
	wf.Actions[0].ActionType = "teleport"
	assert.Equal(t, "actions[0].action_type", fieldOf(t, Workflow(wf)))
}

func TestWorkflow_ConfigTooLarge(t *testing.T) {
	wf := validWorkflow()
	wf.Actions[0].Config = make([]byte, MaxConfigSize+1)
	assert.Equal(t, "actions[0].config", fieldOf(t, Workflow(wf)))
}

func TestWorkflow_NegativeDelay(t *testing.T) {
	wf := validWorkflow()
	wf.Actions[0].DelayMinutes = -5
	assert.Equal(t, "actions[0].delay_minutes", fieldOf(t, Workflow(wf)))
}

func TestTransitionTarget(t *testing.T) {
	assert.NoError(t, TransitionTarget("scheduled"))
	assert.Error(t, TransitionTarget(""))
	assert.Error(t, TransitionTarget("warp"))
}

func TestChangeSource(t *testing.T) {
	assert.NoError(t, ChangeSource(""))
	assert.NoError(t, ChangeSource("manual"))
	assert.NoError(t, ChangeSource("automated"))
	assert.NoError(t, ChangeSource("system"))
	assert.Error(t, ChangeSource("ghost"))
}

func TestTriggerType(t *testing.T) {
	assert.True(t, TriggerType(core.TriggerJobCompleted))
	assert.False(t, TriggerType("meteor_strike"))
}
