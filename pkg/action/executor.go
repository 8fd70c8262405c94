// Package action executes single workflow actions against external
// delegate services.
package action

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/fieldline/automation/pkg/core"
	"github.com/fieldline/automation/pkg/storage"
)

// DefaultSendTimeout bounds every externally-delegated call. A timeout
// marks the action failed with errorMessage "timeout" instead of
// hanging the execution.
const DefaultSendTimeout = 30 * time.Second

// ErrTimeout is the terminal error recorded when a delegated call
// exceeds its deadline.
var ErrTimeout = errors.New("timeout")

// Executor runs one workflow action at a time. All collaborators are
// injected; a nil delegate makes the corresponding action type fail
// with a configuration error rather than panic.
type Executor struct {
	store    storage.Store
	entities core.EntityStore
	email    core.EmailSender
	sms      core.SMSSender
	notifier core.Notifier
	webhooks core.WebhookCaller
	invoices core.InvoiceService
	jobs     core.JobBuilder

	sendTimeout time.Duration
	logger      *slog.Logger
}

// Option configures an Executor.
type Option func(*Executor)

// WithEntityStore sets the entity capability used by update_entity and
// delete_source.
func WithEntityStore(es core.EntityStore) Option {
	return func(e *Executor) { e.entities = es }
}

// WithEmailSender sets the email delegate.
func WithEmailSender(s core.EmailSender) Option {
	return func(e *Executor) { e.email = s }
}

// WithSMSSender sets the SMS delegate.
func WithSMSSender(s core.SMSSender) Option {
	return func(e *Executor) { e.sms = s }
}

// WithNotifier sets the in-app notification delegate.
func WithNotifier(n core.Notifier) Option {
	return func(e *Executor) { e.notifier = n }
}

// WithWebhookCaller sets the outbound webhook delegate.
func WithWebhookCaller(w core.WebhookCaller) Option {
	return func(e *Executor) { e.webhooks = w }
}

// WithInvoiceService sets the invoicing delegate.
func WithInvoiceService(s core.InvoiceService) Option {
	return func(e *Executor) { e.invoices = s }
}

// WithJobBuilder sets the quote-conversion delegate.
func WithJobBuilder(b core.JobBuilder) Option {
	return func(e *Executor) { e.jobs = b }
}

// WithSendTimeout overrides the per-call deadline for delegated sends.
func WithSendTimeout(d time.Duration) Option {
	return func(e *Executor) { e.sendTimeout = d }
}

// WithLogger sets the executor's logger.
func WithLogger(l *slog.Logger) Option {
	return func(e *Executor) { e.logger = l }
}

// NewExecutor creates an Executor over the given store.
func NewExecutor(store storage.Store, opts ...Option) *Executor {
	e := &Executor{
		store:       store,
		sendTimeout: DefaultSendTimeout,
		logger:      slog.Default(),
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// Run executes one action for the triggering event and returns its
// output data. The error is terminal for this action; the caller
// decides whether the execution continues.
func (e *Executor) Run(ctx context.Context, act core.WorkflowAction, event core.BusinessEvent) (map[string]any, error) {
	cfg := map[string]any{}
	if len(act.Config) > 0 {
		if err := json.Unmarshal(act.Config, &cfg); err != nil {
			return nil, fmt.Errorf("invalid action config: %w", err)
		}
	}

	switch act.ActionType {
	case core.ActionSendEmail:
		return e.sendEmail(ctx, cfg, event)
	case core.ActionSendSMS:
		return e.sendSMS(ctx, cfg, event)
	case core.ActionSendNotification:
		return e.sendNotification(ctx, cfg)
	case core.ActionWebhook:
		return e.callWebhook(ctx, cfg, event)
	case core.ActionCreateTask:
		return e.createTask(ctx, cfg, event)
	case core.ActionUpdateEntity:
		return e.updateEntity(ctx, cfg, event)
	case core.ActionCreateInvoice:
		return e.createInvoice(ctx, cfg, event)
	case core.ActionCreateJob:
		return e.createJob(ctx, cfg, event)
	case core.ActionDeleteSource:
		return e.deleteSource(ctx, event)
	case core.ActionDelay:
		return e.delay(ctx, cfg)
	}
	return nil, fmt.Errorf("unsupported action type %q", act.ActionType)
}

// send wraps a delegated call with the per-call deadline and maps a
// deadline hit to ErrTimeout.
func (e *Executor) send(ctx context.Context, fn func(context.Context) (core.Delivery, error)) (core.Delivery, error) {
	sendCtx, cancel := context.WithTimeout(ctx, e.sendTimeout)
	defer cancel()

	d, err := fn(sendCtx)
	if err != nil {
		if errors.Is(err, context.DeadlineExceeded) || errors.Is(sendCtx.Err(), context.DeadlineExceeded) {
			return core.Delivery{}, ErrTimeout
		}
		return core.Delivery{}, err
	}
	return d, nil
}

func (e *Executor) sendEmail(ctx context.Context, cfg map[string]any, event core.BusinessEvent) (map[string]any, error) {
	if e.email == nil {
		return nil, errors.New("no email sender configured")
	}

	msg := core.EmailMessage{
		To:      cfgString(cfg, "to"),
		Subject: cfgString(cfg, "subject"),
		Body:    cfgString(cfg, "body"),
	}
	if msg.To == "" {
		msg.To, _ = event.Payload["email"].(string)
	}
	if msg.To == "" {
		return nil, errors.New("no recipient for send_email")
	}

	d, err := e.send(ctx, func(c context.Context) (core.Delivery, error) {
		return e.email.SendEmail(c, msg)
	})
	if err != nil {
		return nil, err
	}
	return map[string]any{"delivered": d.Delivered, "to": msg.To}, nil
}

func (e *Executor) sendSMS(ctx context.Context, cfg map[string]any, event core.BusinessEvent) (map[string]any, error) {
	if e.sms == nil {
		return nil, errors.New("no sms sender configured")
	}

	msg := core.SMSMessage{
		To:   cfgString(cfg, "to"),
		Body: cfgString(cfg, "body"),
	}
	if msg.To == "" {
		msg.To, _ = event.Payload["phone"].(string)
	}
	if msg.To == "" {
		return nil, errors.New("no recipient for send_sms")
	}

	d, err := e.send(ctx, func(c context.Context) (core.Delivery, error) {
		return e.sms.SendSMS(c, msg)
	})
	if err != nil {
		return nil, err
	}
	return map[string]any{"delivered": d.Delivered, "to": msg.To}, nil
}

func (e *Executor) sendNotification(ctx context.Context, cfg map[string]any) (map[string]any, error) {
	if e.notifier == nil {
		return nil, errors.New("no notifier configured")
	}

	n := core.Notification{
		UserID:  cfgString(cfg, "user_id"),
		Title:   cfgString(cfg, "title"),
		Message: cfgString(cfg, "message"),
	}

	d, err := e.send(ctx, func(c context.Context) (core.Delivery, error) {
		return e.notifier.Notify(c, n)
	})
	if err != nil {
		return nil, err
	}
	return map[string]any{"delivered": d.Delivered}, nil
}

func (e *Executor) callWebhook(ctx context.Context, cfg map[string]any, event core.BusinessEvent) (map[string]any, error) {
	if e.webhooks == nil {
		return nil, errors.New("no webhook caller configured")
	}

	url := cfgString(cfg, "url")
	if url == "" {
		return nil, errors.New("no url for webhook")
	}
	method := cfgString(cfg, "method")
	if method == "" {
		method = "POST"
	}

	req := core.WebhookRequest{
		URL:     url,
		Method:  method,
		Payload: event.Payload,
	}
	d, err := e.send(ctx, func(c context.Context) (core.Delivery, error) {
		return e.webhooks.Call(c, req)
	})
	if err != nil {
		return nil, err
	}
	return map[string]any{"delivered": d.Delivered, "url": url}, nil
}

func (e *Executor) createTask(ctx context.Context, cfg map[string]any, event core.BusinessEvent) (map[string]any, error) {
	task := &core.FollowUpTask{
		Title:       cfgString(cfg, "title"),
		Description: cfgString(cfg, "description"),
		AssignedTo:  cfgString(cfg, "assigned_to"),
		EntityType:  event.EntityType,
		EntityID:    event.EntityID,
	}
	if task.Title == "" {
		task.Title = "Follow up: " + string(event.Type)
	}
	if days, ok := cfgNumber(cfg, "due_in_days"); ok && days > 0 {
		due := time.Now().AddDate(0, 0, int(days))
		task.DueAt = &due
	}

	if err := e.store.CreateTask(ctx, task); err != nil {
		return nil, fmt.Errorf("create task: %w", err)
	}
	return map[string]any{"task_id": task.ID}, nil
}

func (e *Executor) updateEntity(ctx context.Context, cfg map[string]any, event core.BusinessEvent) (map[string]any, error) {
	if e.entities == nil {
		return nil, errors.New("no entity store configured")
	}

	kind, err := core.ParseEntityKind(event.EntityType)
	if err != nil {
		return nil, err
	}
	field := cfgString(cfg, "field")
	if field == "" {
		return nil, errors.New("no field for update_entity")
	}
	value := cfg["value"]

	// Load first so a vanished entity fails the action instead of
	// patching into the void.
	if _, err := e.entities.Load(ctx, kind, event.EntityID); err != nil {
		return nil, fmt.Errorf("load %s %s: %w", kind, event.EntityID, err)
	}
	if err := e.entities.Patch(ctx, kind, event.EntityID, field, value); err != nil {
		return nil, fmt.Errorf("patch %s %s: %w", kind, event.EntityID, err)
	}
	return map[string]any{"field": field, "entity_id": event.EntityID}, nil
}

func (e *Executor) createInvoice(ctx context.Context, cfg map[string]any, event core.BusinessEvent) (map[string]any, error) {
	if e.invoices == nil {
		return nil, errors.New("no invoice service configured")
	}

	entityID := cfgString(cfg, "entity_id")
	entityType := cfgString(cfg, "entity_type")
	if entityID == "" {
		entityID = event.EntityID
		entityType = event.EntityType
	}
	kind, err := core.ParseEntityKind(entityType)
	if err != nil {
		return nil, err
	}

	invoiceID, err := e.invoices.CreateForEntity(ctx, kind, entityID)
	if err != nil {
		return nil, fmt.Errorf("create invoice: %w", err)
	}
	return map[string]any{"invoice_id": invoiceID}, nil
}

func (e *Executor) createJob(ctx context.Context, cfg map[string]any, event core.BusinessEvent) (map[string]any, error) {
	if e.jobs == nil {
		return nil, errors.New("no job builder configured")
	}

	quoteID := cfgString(cfg, "quote_id")
	if quoteID == "" && event.EntityType == string(core.EntityQuote) {
		quoteID = event.EntityID
	}
	if quoteID == "" {
		return nil, errors.New("no quote to convert for create_job")
	}

	jobID, err := e.jobs.CreateFromQuote(ctx, quoteID)
	if err != nil {
		return nil, fmt.Errorf("create job from quote %s: %w", quoteID, err)
	}
	return map[string]any{"job_id": jobID}, nil
}

// deleteSource removes the triggering entity. Order it last: any later
// action referencing the entity would fail.
func (e *Executor) deleteSource(ctx context.Context, event core.BusinessEvent) (map[string]any, error) {
	if e.entities == nil {
		return nil, errors.New("no entity store configured")
	}

	kind, err := core.ParseEntityKind(event.EntityType)
	if err != nil {
		return nil, err
	}
	if err := e.entities.Delete(ctx, kind, event.EntityID); err != nil {
		return nil, fmt.Errorf("delete %s %s: %w", kind, event.EntityID, err)
	}
	return map[string]any{"deleted": event.EntityID}, nil
}

// delay waits in place with no side effect.
func (e *Executor) delay(ctx context.Context, cfg map[string]any) (map[string]any, error) {
	minutes, _ := cfgNumber(cfg, "minutes")
	seconds, _ := cfgNumber(cfg, "seconds")
	d := time.Duration(minutes)*time.Minute + time.Duration(seconds)*time.Second
	if d <= 0 {
		return map[string]any{"waited_ms": 0}, nil
	}

	select {
	case <-time.After(d):
		return map[string]any{"waited_ms": d.Milliseconds()}, nil
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

func cfgString(cfg map[string]any, key string) string {
	s, _ := cfg[key].(string)
	return s
}

func cfgNumber(cfg map[string]any, key string) (float64, bool) {
	switch n := cfg[key].(type) {
	case float64:
		return n, true
	case int:
		return float64(n), true
	}
	return 0, false
}
