package services

import (
	"context"
	"time"

	"canvas-backend/application/ports"
	"canvas-backend/domain/events"

	"go.uber.org/zap"
)

// GraphObserver receives everything the orchestrator wants the outside world
// to know about. It is injected at construction; nothing is registered late.
type GraphObserver interface {
	// OnEvents is called after the mutations the events describe are visible
	OnEvents(ctx context.Context, evts ...events.DomainEvent)

	// OnGeneration is called after every generation service call
	OnGeneration(operation string, duration time.Duration, err error)

	// OnRaceLost is called when a trigger found its node already claimed
	OnRaceLost(canvasID, nodeID string)
}

// NopObserver ignores everything
type NopObserver struct{}

func (NopObserver) OnEvents(context.Context, ...events.DomainEvent) {}
func (NopObserver) OnGeneration(string, time.Duration, error)       {}
func (NopObserver) OnRaceLost(string, string)                       {}

// CanvasObserver publishes domain events and feeds metrics sinks
type CanvasObserver struct {
	publisher ports.EventPublisher
	metrics   []ports.CanvasMetrics
	logger    *zap.Logger
}

// NewCanvasObserver creates an observer; publisher may be nil
func NewCanvasObserver(publisher ports.EventPublisher, logger *zap.Logger, metrics ...ports.CanvasMetrics) *CanvasObserver {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &CanvasObserver{
		publisher: publisher,
		metrics:   metrics,
		logger:    logger,
	}
}

// OnEvents records metrics for each event, then publishes the batch.
// Publishing failures are logged and never reach the caller.
func (o *CanvasObserver) OnEvents(ctx context.Context, evts ...events.DomainEvent) {
	if len(evts) == 0 {
		return
	}

	for _, evt := range evts {
		o.record(evt)
	}

	if o.publisher == nil {
		return
	}
	if err := o.publisher.PublishBatch(ctx, evts); err != nil {
		o.logger.Error("Failed to publish canvas events",
			zap.Int("count", len(evts)),
			zap.Error(err),
		)
	}
}

func (o *CanvasObserver) OnGeneration(operation string, duration time.Duration, err error) {
	for _, m := range o.metrics {
		m.Generation(operation, duration, err)
	}
}

func (o *CanvasObserver) OnRaceLost(canvasID, nodeID string) {
	for _, m := range o.metrics {
		m.RaceLost()
	}
}

// OverlapResolved adapts the observer to the layout engine's overlap hook
func (o *CanvasObserver) OverlapResolved(_ int, fallback bool) {
	for _, m := range o.metrics {
		m.OverlapResolved(fallback)
	}
}

func (o *CanvasObserver) record(evt events.DomainEvent) {
	for _, m := range o.metrics {
		switch e := evt.(type) {
		case events.NodesAdded:
			for kind, n := range e.Kinds {
				m.NodesCreated(kind, n)
			}
		case events.NodeExpanded:
			m.Expansion(e.ChildCount)
		case events.EdgesReconciled:
			m.DuplicateEdgesDropped(e.Dropped)
		}
	}
}
