package core

import (
	"context"
)

// Delivery is the outcome of a delegated send (email, SMS,
// notification, webhook).
type Delivery struct {
	Delivered bool   `json:"delivered"`
	Detail    string `json:"detail,omitempty"`
}

// EmailMessage is the payload handed to the email sender.
type EmailMessage struct {
	To      string `json:"to"`
	Subject string `json:"subject"`
	Body    string `json:"body"`
}

// SMSMessage is the payload handed to the SMS sender.
type SMSMessage struct {
	To   string `json:"to"`
	Body string `json:"body"`
}

// Notification is an in-app notification payload.
type Notification struct {
	UserID  string `json:"user_id"`
	Title   string `json:"title"`
	Message string `json:"message"`
}

// WebhookRequest is an outbound webhook call.
type WebhookRequest struct {
	URL     string         `json:"url"`
	Method  string         `json:"method"`
	Payload map[string]any `json:"payload"`
}

// EmailSender delivers email. Implementations live outside the core.
type EmailSender interface {
	SendEmail(ctx context.Context, msg EmailMessage) (Delivery, error)
}

// SMSSender delivers SMS.
type SMSSender interface {
	SendSMS(ctx context.Context, msg SMSMessage) (Delivery, error)
}

// Notifier delivers in-app notifications.
type Notifier interface {
	Notify(ctx context.Context, n Notification) (Delivery, error)
}

// WebhookCaller performs outbound webhook calls.
type WebhookCaller interface {
	Call(ctx context.Context, req WebhookRequest) (Delivery, error)
}

// InvoiceService is the external invoicing collaborator. HasInvoiceForJob
// backs the idempotence check of the completed-state hook: at most one
// invoice ever references a given job.
type InvoiceService interface {
	HasInvoiceForJob(ctx context.Context, jobID string) (bool, error)
	CreateDraftFromJob(ctx context.Context, job *Job) (invoiceID string, err error)
	CreateForEntity(ctx context.Context, kind EntityKind, entityID string) (invoiceID string, err error)
}

// JobBuilder is the external quote-conversion collaborator used by the
// create_job action.
type JobBuilder interface {
	CreateFromQuote(ctx context.Context, quoteID string) (jobID string, err error)
}

// TimeTracker reports open time-tracking entries for a job's crew. A
// job cannot complete while entries remain open.
type TimeTracker interface {
	OpenEntryCount(ctx context.Context, jobID string) (int, error)
}
