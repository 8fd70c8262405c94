// Package bus is the single ingress point from external entity
// mutations into the automation core.
package bus

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/fieldline/automation/pkg/core"
)

// Handler consumes one business event. Handlers run on their own
// goroutine per event; errors and panics are logged, never returned to
// the emitter.
type Handler func(ctx context.Context, event core.BusinessEvent)

// Bus dispatches business events to registered handlers. Emit is
// fire-and-forget: the caller never blocks on workflow completion and
// never sees a failure from inside the engine.
type Bus struct {
	logger *slog.Logger

	mu       sync.RWMutex
	handlers []Handler
	wg       sync.WaitGroup
}

// Option configures a Bus.
type Option func(*Bus)

// WithLogger sets the bus's logger.
func WithLogger(l *slog.Logger) Option {
	return func(b *Bus) { b.logger = l }
}

// New creates an event bus.
func New(opts ...Option) *Bus {
	b := &Bus{logger: slog.Default()}
	for _, opt := range opts {
		opt(b)
	}
	return b
}

// Subscribe registers a handler for every emitted event. Register all
// handlers before the first Emit.
func (b *Bus) Subscribe(h Handler) {
	b.mu.Lock()
	b.handlers = append(b.handlers, h)
	b.mu.Unlock()
}

// Emit dispatches a business event asynchronously to every handler.
// The returned event has OccurredAt stamped.
func (b *Bus) Emit(ctx context.Context, eventType core.TriggerType, entityType, entityID string, payload map[string]any) core.BusinessEvent {
	event := core.BusinessEvent{
		Type:       eventType,
		EntityType: entityType,
		EntityID:   entityID,
		Payload:    payload,
		OccurredAt: time.Now(),
	}

	b.mu.RLock()
	handlers := make([]Handler, len(b.handlers))
	copy(handlers, b.handlers)
	b.mu.RUnlock()

	for _, h := range handlers {
		b.wg.Add(1)
		go func(h Handler) {
			defer b.wg.Done()
			defer func() {
				if r := recover(); r != nil {
					b.logger.Error("event handler panicked",
						"event_type", string(event.Type),
						"entity_id", event.EntityID,
						"panic", fmt.Sprintf("%v", r))
				}
			}()
			h(ctx, event)
		}(h)
	}
	return event
}

// Wait blocks until all in-flight handlers finish. Intended for
// shutdown and tests.
func (b *Bus) Wait() {
	b.wg.Wait()
}
