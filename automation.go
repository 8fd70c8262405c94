// Package automation provides a job lifecycle state machine and a
// trigger→condition→action workflow engine reacting to business
// events.
//
// This is the main package users should import. It re-exports the
// public types from the internal pkg/ packages for a clean API
// surface.
//
// Basic usage:
//
//	// Open storage and migrate
//	db, _ := gorm.Open(sqlite.Open("automation.db"), &gorm.Config{})
//	store := automation.NewGormStore(db)
//	store.Migrate(context.Background())
//
//	// Build the engine and the state machine
//	exec := automation.NewExecutor(store, automation.WithEmailSender(mailer))
//	eng := automation.NewEngine(store, exec)
//	machine := automation.NewMachine(store)
//	machine.OnEnter(automation.StateCompleted, automation.AutoInvoiceHook(invoices, nil))
//
//	// Wire the bus so the CRUD layer can emit events
//	events := automation.NewBus()
//	events.Subscribe(func(ctx context.Context, e automation.BusinessEvent) {
//	    eng.HandleEvent(ctx, e)
//	})
//	events.Emit(ctx, automation.TriggerJobCompleted, "job", jobID, payload)
package automation

import (
	"gorm.io/gorm"

	"github.com/fieldline/automation/pkg/action"
	"github.com/fieldline/automation/pkg/bus"
	"github.com/fieldline/automation/pkg/core"
	"github.com/fieldline/automation/pkg/engine"
	"github.com/fieldline/automation/pkg/statemachine"
	"github.com/fieldline/automation/pkg/storage"
)

// Domain model aliases
type (
	// Job is the lifecycle-managed work record.
	Job = core.Job

	// JobState represents a position in the job lifecycle.
	JobState = core.JobState

	// JobStateTransition is one row of the append-only audit log.
	JobStateTransition = core.JobStateTransition

	// ChangeSource records who drove a state transition.
	ChangeSource = core.ChangeSource

	// Workflow is a user-configured automation.
	Workflow = core.Workflow

	// WorkflowTrigger subscribes a workflow to a business event type.
	WorkflowTrigger = core.WorkflowTrigger

	// TriggerCondition is one predicate over the event payload.
	TriggerCondition = core.TriggerCondition

	// WorkflowAction is one effect in a workflow's action sequence.
	WorkflowAction = core.WorkflowAction

	// AutomationLog records one action attempt within one execution.
	AutomationLog = core.AutomationLog

	// PendingAction is a durably scheduled deferred action.
	PendingAction = core.PendingAction

	// BusinessEvent is a transient fact emitted by the CRUD layer.
	BusinessEvent = core.BusinessEvent

	// TriggerType identifies the business event a trigger subscribes to.
	TriggerType = core.TriggerType

	// ActionType identifies the effect a workflow action performs.
	ActionType = core.ActionType

	// Operator is a condition comparison operator.
	Operator = core.Operator

	// LogStatus is the lifecycle of one AutomationLog row.
	LogStatus = core.LogStatus

	// EntityKind is the closed set of business entities.
	EntityKind = core.EntityKind

	// EntityStore is the uniform entity capability.
	EntityStore = core.EntityStore

	// FollowUpTask is the record inserted by the create_task action.
	FollowUpTask = core.FollowUpTask

	// Delivery is the outcome of a delegated send.
	Delivery = core.Delivery

	// EmailMessage is the payload handed to the email sender.
	EmailMessage = core.EmailMessage

	// SMSMessage is the payload handed to the SMS sender.
	SMSMessage = core.SMSMessage

	// Notification is an in-app notification payload.
	Notification = core.Notification

	// WebhookRequest is an outbound webhook call.
	WebhookRequest = core.WebhookRequest

	// Machine is the job lifecycle state machine.
	Machine = statemachine.Machine

	// TransitionRequest carries caller-supplied transition metadata.
	TransitionRequest = statemachine.TransitionRequest

	// TransitionResult is the outcome of a transition attempt.
	TransitionResult = statemachine.TransitionResult

	// Engine runs workflows against business events.
	Engine = engine.Engine

	// Execution is the outcome of one workflow run.
	Execution = engine.Execution

	// Scheduler dispatches delayed actions and cron triggers.
	Scheduler = engine.Scheduler

	// Executor runs single workflow actions.
	Executor = action.Executor

	// Bus dispatches business events to registered handlers.
	Bus = bus.Bus

	// Store defines the persistence operations.
	Store = storage.Store

	// GormStore implements Store using GORM.
	GormStore = storage.GormStore
)

// Job lifecycle states
const (
	StateDraft      = core.StateDraft
	StateScheduled  = core.StateScheduled
	StateInProgress = core.StateInProgress
	StateOnHold     = core.StateOnHold
	StateCompleted  = core.StateCompleted
	StateCancelled  = core.StateCancelled
)

// Change sources
const (
	SourceManual    = core.SourceManual
	SourceAutomated = core.SourceAutomated
	SourceSystem    = core.SourceSystem
)

// Trigger types
const (
	TriggerQuoteSent       = core.TriggerQuoteSent
	TriggerQuoteApproved   = core.TriggerQuoteApproved
	TriggerQuoteDeclined   = core.TriggerQuoteDeclined
	TriggerLeadConverted   = core.TriggerLeadConverted
	TriggerQuoteConverted  = core.TriggerQuoteConverted
	TriggerJobCreated      = core.TriggerJobCreated
	TriggerJobScheduled    = core.TriggerJobScheduled
	TriggerJobStarted      = core.TriggerJobStarted
	TriggerJobCompleted    = core.TriggerJobCompleted
	TriggerJobCancelled    = core.TriggerJobCancelled
	TriggerInvoiceCreated  = core.TriggerInvoiceCreated
	TriggerInvoiceSent     = core.TriggerInvoiceSent
	TriggerInvoiceOverdue  = core.TriggerInvoiceOverdue
	TriggerPaymentReceived = core.TriggerPaymentReceived
	TriggerLeadCreated     = core.TriggerLeadCreated
	TriggerClientCreated   = core.TriggerClientCreated
	TriggerScheduled       = core.TriggerScheduled
)

// Action types
const (
	ActionSendEmail        = core.ActionSendEmail
	ActionSendSMS          = core.ActionSendSMS
	ActionCreateTask       = core.ActionCreateTask
	ActionUpdateEntity     = core.ActionUpdateEntity
	ActionCreateInvoice    = core.ActionCreateInvoice
	ActionCreateJob        = core.ActionCreateJob
	ActionDeleteSource     = core.ActionDeleteSource
	ActionSendNotification = core.ActionSendNotification
	ActionWebhook          = core.ActionWebhook
	ActionDelay            = core.ActionDelay
)

// Log statuses
const (
	LogRunning   = core.LogRunning
	LogCompleted = core.LogCompleted
	LogFailed    = core.LogFailed
	LogSkipped   = core.LogSkipped
)

// Error variables
var (
	ErrJobNotFound       = core.ErrJobNotFound
	ErrWorkflowNotFound  = core.ErrWorkflowNotFound
	ErrTemplateNotFound  = core.ErrTemplateNotFound
	ErrExecutionNotFound = core.ErrExecutionNotFound
)

// NewGormStore creates a new GORM-backed store.
func NewGormStore(db *gorm.DB) *GormStore {
	return storage.NewGormStore(db)
}

// NewMachine creates a job lifecycle state machine.
func NewMachine(s Store, opts ...statemachine.Option) *Machine {
	return statemachine.New(s, opts...)
}

// NewExecutor creates an action executor.
func NewExecutor(s Store, opts ...action.Option) *Executor {
	return action.NewExecutor(s, opts...)
}

// NewEngine creates an automation engine.
func NewEngine(s Store, exec *Executor, opts ...engine.Option) *Engine {
	return engine.New(s, exec, opts...)
}

// NewScheduler creates a scheduler for delayed actions and cron
// triggers.
func NewScheduler(e *Engine, opts ...engine.SchedulerOption) *Scheduler {
	return engine.NewScheduler(e, opts...)
}

// NewBus creates a business event bus.
func NewBus(opts ...bus.Option) *Bus {
	return bus.New(opts...)
}

// AutoInvoiceHook returns the idempotent completed-state auto-invoice
// hook.
var AutoInvoiceHook = statemachine.AutoInvoiceHook

// CanTransition reports whether (from, to) is a legal lifecycle edge.
var CanTransition = statemachine.CanTransition

// JSONValue encodes a value for a condition or config column.
var JSONValue = core.JSONValue

// State machine option re-exports
var (
	WithTimeTracker = statemachine.WithTimeTracker
)

// Executor option re-exports
var (
	WithEntityStore    = action.WithEntityStore
	WithEmailSender    = action.WithEmailSender
	WithSMSSender      = action.WithSMSSender
	WithNotifier       = action.WithNotifier
	WithWebhookCaller  = action.WithWebhookCaller
	WithInvoiceService = action.WithInvoiceService
	WithJobBuilder     = action.WithJobBuilder
	WithSendTimeout    = action.WithSendTimeout
)
