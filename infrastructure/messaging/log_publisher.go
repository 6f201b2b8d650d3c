package messaging

import (
	"context"

	"canvas-backend/domain/events"

	"go.uber.org/zap"
)

// LogPublisher writes events to the log instead of a bus. Used when no event
// bus is configured.
type LogPublisher struct {
	logger *zap.Logger
}

// NewLogPublisher creates a logging publisher
func NewLogPublisher(logger *zap.Logger) *LogPublisher {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &LogPublisher{logger: logger}
}

func (p *LogPublisher) PublishBatch(ctx context.Context, evts []events.DomainEvent) error {
	for _, e := range evts {
		p.logger.Debug("Canvas event",
			zap.String("eventType", e.GetEventType()),
			zap.String("canvasID", e.GetAggregateID()),
			zap.Time("timestamp", e.GetTimestamp()),
		)
	}
	return nil
}
