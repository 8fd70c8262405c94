package core

import (
	"encoding/json"
	"time"

	"gorm.io/gorm"
)

// TriggerType identifies the business event a trigger subscribes to.
type TriggerType string

const (
	TriggerQuoteSent       TriggerType = "quote_sent"
	TriggerQuoteApproved   TriggerType = "quote_approved"
	TriggerQuoteDeclined   TriggerType = "quote_declined"
	TriggerLeadConverted   TriggerType = "lead_converted"
	TriggerQuoteConverted  TriggerType = "quote_converted"
	TriggerJobCreated      TriggerType = "job_created"
	TriggerJobScheduled    TriggerType = "job_scheduled"
	TriggerJobStarted      TriggerType = "job_started"
	TriggerJobCompleted    TriggerType = "job_completed"
	TriggerJobCancelled    TriggerType = "job_cancelled"
	TriggerInvoiceCreated  TriggerType = "invoice_created"
	TriggerInvoiceSent     TriggerType = "invoice_sent"
	TriggerInvoiceOverdue  TriggerType = "invoice_overdue"
	TriggerPaymentReceived TriggerType = "payment_received"
	TriggerLeadCreated     TriggerType = "lead_created"
	TriggerClientCreated   TriggerType = "client_created"
	TriggerScheduled       TriggerType = "scheduled"
)

// Operator is a condition comparison operator.
type Operator string

const (
	OpEquals      Operator = "equals"
	OpNotEquals   Operator = "not_equals"
	OpContains    Operator = "contains"
	OpGreaterThan Operator = "greater_than"
	OpLessThan    Operator = "less_than"
	OpIn          Operator = "in"
	OpNotIn       Operator = "not_in"
)

// ActionType identifies the effect a workflow action performs.
type ActionType string

const (
	ActionSendEmail        ActionType = "send_email"
	ActionSendSMS          ActionType = "send_sms"
	ActionCreateTask       ActionType = "create_task"
	ActionUpdateEntity     ActionType = "update_entity"
	ActionCreateInvoice    ActionType = "create_invoice"
	ActionCreateJob        ActionType = "create_job"
	ActionDeleteSource     ActionType = "delete_source"
	ActionSendNotification ActionType = "send_notification"
	ActionWebhook          ActionType = "webhook"
	ActionDelay            ActionType = "delay"
)

// LogStatus is the lifecycle of one AutomationLog row.
type LogStatus string

const (
	LogRunning   LogStatus = "running"
	LogCompleted LogStatus = "completed"
	LogFailed    LogStatus = "failed"
	LogSkipped   LogStatus = "skipped"
)

// Workflow is a user-configured trigger→condition→action automation.
type Workflow struct {
	ID                  string         `gorm:"primaryKey;size:36" json:"id"`
	Name                string         `gorm:"size:255;not null" json:"name"`
	Description         string         `gorm:"type:text" json:"description,omitempty"`
	IsActive            bool           `gorm:"index" json:"is_active"`
	IsTemplate          bool           `gorm:"index;default:false" json:"is_template"`
	TemplateCategory    string         `gorm:"size:100" json:"template_category,omitempty"`
	MaxExecutionsPerDay int            `gorm:"default:0" json:"max_executions_per_day"` // 0 = unlimited
	CooldownMinutes     int            `gorm:"default:0" json:"cooldown_minutes"`       // 0 = no cooldown
	CreatedAt           time.Time      `gorm:"autoCreateTime" json:"created_at"`
	UpdatedAt           time.Time      `gorm:"autoUpdateTime" json:"updated_at"`
	DeletedAt           gorm.DeletedAt `gorm:"index" json:"-"`

	Triggers []WorkflowTrigger `gorm:"foreignKey:WorkflowID" json:"triggers"`
	Actions  []WorkflowAction  `gorm:"foreignKey:WorkflowID" json:"actions"`
}

// WorkflowTrigger subscribes a workflow to a business event type,
// gated by its conditions (ANDed; zero conditions always match).
type WorkflowTrigger struct {
	ID          string          `gorm:"primaryKey;size:36" json:"id"`
	WorkflowID  string          `gorm:"index;size:36;not null" json:"workflow_id"`
	TriggerType TriggerType     `gorm:"index;size:50;not null" json:"trigger_type"`
	Config      json.RawMessage `gorm:"type:bytes" json:"config,omitempty"` // cron expression for scheduled triggers
	Order       int             `gorm:"column:trigger_order;default:0" json:"order"`

	Conditions []TriggerCondition `gorm:"foreignKey:TriggerID" json:"conditions"`
}

// TriggerCondition is one predicate over the event payload.
// Value is JSON-encoded; in/not_in expect a JSON array.
type TriggerCondition struct {
	ID        string          `gorm:"primaryKey;size:36" json:"id"`
	TriggerID string          `gorm:"index;size:36;not null" json:"trigger_id"`
	Field     string          `gorm:"size:255;not null" json:"field"`
	Operator  Operator        `gorm:"size:20;not null" json:"operator"`
	Value     json.RawMessage `gorm:"type:bytes" json:"value"`
}

// WorkflowAction is one effect in a workflow's ordered action sequence.
type WorkflowAction struct {
	ID              string          `gorm:"primaryKey;size:36" json:"id"`
	WorkflowID      string          `gorm:"index;size:36;not null" json:"workflow_id"`
	ActionType      ActionType      `gorm:"size:50;not null" json:"action_type"`
	Config          json.RawMessage `gorm:"type:bytes" json:"config,omitempty"` // shape depends on ActionType
	DelayMinutes    int             `gorm:"default:0" json:"delay_minutes"`
	Order           int             `gorm:"column:action_order;default:0" json:"order"`
	ContinueOnError bool            `gorm:"default:false" json:"continue_on_error"`
}

// AutomationLog records one action attempt within one execution. Rows
// sharing an ExecutionID share a WorkflowID and ascend in action order.
type AutomationLog struct {
	ID                    string          `gorm:"primaryKey;size:36" json:"id"`
	ExecutionID           string          `gorm:"index;size:36;not null" json:"execution_id"`
	WorkflowID            string          `gorm:"index;size:36;not null" json:"workflow_id"`
	TriggerType           TriggerType     `gorm:"size:50" json:"trigger_type,omitempty"`
	ActionType            ActionType      `gorm:"index;size:50" json:"action_type,omitempty"`
	ActionID              string          `gorm:"size:36" json:"action_id,omitempty"`
	ActionOrder           int             `gorm:"default:0" json:"action_order"`
	TriggeredByEntityType string          `gorm:"index;size:50" json:"triggered_by_entity_type,omitempty"`
	TriggeredByEntityID   string          `gorm:"index;size:36" json:"triggered_by_entity_id,omitempty"`
	Status                LogStatus       `gorm:"index;size:20;not null" json:"status"`
	InputData             json.RawMessage `gorm:"type:bytes" json:"input_data,omitempty"`
	OutputData            json.RawMessage `gorm:"type:bytes" json:"output_data,omitempty"`
	ErrorMessage          string          `gorm:"type:text" json:"error_message,omitempty"`
	StartedAt             time.Time       `gorm:"index" json:"started_at"`
	CompletedAt           *time.Time      `json:"completed_at,omitempty"`
	DurationMs            int64           `gorm:"default:0" json:"duration_ms"`
}

// PendingAction is the durable resume point of an execution that hit a
// delayed action (DelayMinutes>0). ActionID names where the sequence
// picks back up; that action and everything after it run at dispatch.
// The scheduler polls due rows; rows survive process restarts. Once
// dispatched it cannot be cancelled.
type PendingAction struct {
	ID          string          `gorm:"primaryKey;size:36" json:"id"`
	ExecutionID string          `gorm:"index;size:36;not null" json:"execution_id"`
	WorkflowID  string          `gorm:"index;size:36;not null" json:"workflow_id"`
	ActionID    string          `gorm:"size:36;not null" json:"action_id"`
	RunAt       time.Time       `gorm:"index;not null" json:"run_at"`
	Event       json.RawMessage `gorm:"type:bytes" json:"event"` // snapshot of the triggering event
	Status      string          `gorm:"index;size:20;default:'pending'" json:"status"` // pending | dispatched
	CreatedAt   time.Time       `gorm:"autoCreateTime" json:"created_at"`
}

// PendingAction statuses.
const (
	PendingStatusPending    = "pending"
	PendingStatusDispatched = "dispatched"
)

// JSONValue encodes v for storage in a TriggerCondition.Value or a
// Config column. Panics on unmarshalable input; values are
// caller-constructed literals.
func JSONValue(v any) []byte {
	b, err := json.Marshal(v)
	if err != nil {
		panic("core: unmarshalable condition value: " + err.Error())
	}
	return b
}
