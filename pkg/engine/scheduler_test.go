package engine

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/fieldline/automation/pkg/core"
)

func TestDispatchDue_RunsDuePendingActions(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	sched := NewScheduler(f.engine, WithBatchSize(10))

	wf := f.createWorkflow(t, &core.Workflow{
		Triggers: []core.WorkflowTrigger{{TriggerType: core.TriggerQuoteSent}},
		Actions: []core.WorkflowAction{
			{
				ActionType:   core.ActionSendEmail,
				Config:       core.JSONValue(map[string]any{"to": "x@y.z"}),
				Order:        1,
				DelayMinutes: 10,
			},
		},
	})

	_, err := f.engine.Execute(ctx, wf, quoteEvent("Q1"))
	require.NoError(t, err)

	// Before the delay elapses nothing is dispatched.
	sched.DispatchDue(ctx)
	assert.Equal(t, 0, f.mailer.sentCount())

	f.clock.Advance(11 * time.Minute)
	sched.DispatchDue(ctx)
	assert.Equal(t, 1, f.mailer.sentCount())

	// A second pass finds nothing left.
	sched.DispatchDue(ctx)
	assert.Equal(t, 1, f.mailer.sentCount())
}

func TestFireCronTriggers_ArmsThenFires(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	sched := NewScheduler(f.engine)

	f.createWorkflow(t, &core.Workflow{
		Name: "every five minutes",
		Triggers: []core.WorkflowTrigger{{
			TriggerType: core.TriggerScheduled,
			Config:      core.JSONValue(map[string]any{"cron": "*/5 * * * *"}),
		}},
		Actions: []core.WorkflowAction{emailAction(1)},
	})

	wfs, err := f.store.WorkflowsByTriggerType(ctx, core.TriggerScheduled)
	require.NoError(t, err)
	require.Len(t, wfs, 1)

	lastFired := make(map[string]time.Time)

	// First observation arms without firing.
	sched.fireCronTriggers(ctx, wfs, lastFired)
	assert.Equal(t, 0, f.mailer.sentCount())

	// Not yet due.
	f.clock.Advance(2 * time.Minute)
	sched.fireCronTriggers(ctx, wfs, lastFired)
	assert.Equal(t, 0, f.mailer.sentCount())

	// Past the next five-minute boundary: fires once.
	f.clock.Advance(4 * time.Minute)
	sched.fireCronTriggers(ctx, wfs, lastFired)
	assert.Equal(t, 1, f.mailer.sentCount())

	// Immediately after firing the trigger is re-armed.
	sched.fireCronTriggers(ctx, wfs, lastFired)
	assert.Equal(t, 1, f.mailer.sentCount())
}

func TestFireCronTriggers_InvalidExpressionIgnored(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	sched := NewScheduler(f.engine)

	f.createWorkflow(t, &core.Workflow{
		Triggers: []core.WorkflowTrigger{{
			TriggerType: core.TriggerScheduled,
			Config:      core.JSONValue(map[string]any{"cron": "not a cron"}),
		}},
		Actions: []core.WorkflowAction{emailAction(1)},
	})

	wfs, err := f.store.WorkflowsByTriggerType(ctx, core.TriggerScheduled)
	require.NoError(t, err)

	lastFired := make(map[string]time.Time)
	sched.fireCronTriggers(ctx, wfs, lastFired)
	f.clock.Advance(time.Hour)
	sched.fireCronTriggers(ctx, wfs, lastFired)
	assert.Equal(t, 0, f.mailer.sentCount())
}

func TestCronExpr(t *testing.T) {
	assert.Equal(t, "0 9 * * 1", cronExpr(core.JSONValue(map[string]any{"cron": "0 9 * * 1"})))
	assert.Equal(t, "", cronExpr(nil))
	assert.Equal(t, "", cronExpr([]byte("{broken")))
	assert.Equal(t, "", cronExpr(core.JSONValue(map[string]any{"other": 1})))
}

func TestScheduler_StartStopsOnContextCancel(t *testing.T) {
	f := newFixture(t)
	sched := NewScheduler(f.engine, WithPollInterval(5*time.Millisecond))

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()

	err := sched.Start(ctx)
	assert.ErrorIs(t, err, context.DeadlineExceeded)
}
