package messaging

import (
	"context"
	"fmt"
	"sync"
	"time"

	"canvas-backend/application/ports"
	"canvas-backend/domain/events"

	"go.uber.org/zap"
)

// AllEvents subscribes a handler to every event type
const AllEvents = "*"

// Handler reacts to one domain event
type Handler func(ctx context.Context, event events.DomainEvent) error

// Dispatcher delivers events to in-process handlers, then forwards the batch
// to an optional downstream publisher such as EventBridge. Local handler
// failures are logged and never block the downstream publish.
type Dispatcher struct {
	mu       sync.RWMutex
	handlers map[string][]Handler

	next   ports.EventPublisher
	logger *zap.Logger
}

// NewDispatcher creates a dispatcher; next may be nil
func NewDispatcher(next ports.EventPublisher, logger *zap.Logger) *Dispatcher {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Dispatcher{
		handlers: make(map[string][]Handler),
		next:     next,
		logger:   logger,
	}
}

// Subscribe registers handler for eventType, or for every type with AllEvents
func (d *Dispatcher) Subscribe(eventType string, handler Handler) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.handlers[eventType] = append(d.handlers[eventType], handler)
}

// PublishBatch implements ports.EventPublisher
func (d *Dispatcher) PublishBatch(ctx context.Context, evts []events.DomainEvent) error {
	if len(evts) == 0 {
		return nil
	}

	d.dispatchLocal(ctx, evts)

	if d.next == nil {
		return nil
	}
	return d.next.PublishBatch(ctx, evts)
}

func (d *Dispatcher) dispatchLocal(ctx context.Context, evts []events.DomainEvent) {
	startTime := time.Now()
	failureCount := 0

	for _, event := range evts {
		for _, h := range d.handlersFor(event.GetEventType()) {
			if err := safeCall(ctx, h, event); err != nil {
				failureCount++
				d.logger.Warn("Failed to dispatch event locally",
					zap.String("eventType", event.GetEventType()),
					zap.String("canvasID", event.GetAggregateID()),
					zap.Error(err))
			}
		}
	}

	d.logger.Debug("Events dispatched locally",
		zap.Int("total", len(evts)),
		zap.Int("failed", failureCount),
		zap.Duration("duration", time.Since(startTime)))
}

func (d *Dispatcher) handlersFor(eventType string) []Handler {
	d.mu.RLock()
	defer d.mu.RUnlock()

	specific := d.handlers[eventType]
	wildcard := d.handlers[AllEvents]
	out := make([]Handler, 0, len(specific)+len(wildcard))
	out = append(out, specific...)
	return append(out, wildcard...)
}

func safeCall(ctx context.Context, h Handler, event events.DomainEvent) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("handler panic: %v", r)
		}
	}()
	return h(ctx, event)
}
