package ports

import (
	"context"

	"canvas-backend/domain/events"
)

// EventPublisher delivers domain events to the outside world
type EventPublisher interface {
	PublishBatch(ctx context.Context, evts []events.DomainEvent) error
}
