package websocket

import (
	"context"
	"errors"

	"canvas-backend/domain/events"
)

// Stream message types that are not domain events
const (
	TypeConnectionEstablished = "stream.connected"
	TypeSnapshot              = "canvas.snapshot"
)

// ErrHubSaturated is returned when the broadcast queue is full
var ErrHubSaturated = errors.New("stream hub saturated, message dropped")

// Publish forwards a domain event to the subscribers of its canvas. It has
// the signature of a dispatcher handler and never blocks the caller.
func (h *Hub) Publish(ctx context.Context, event events.DomainEvent) error {
	canvasID := event.GetAggregateID()
	if h.GetConnectionCount(canvasID) == 0 {
		return nil
	}
	return h.SendToCanvas(canvasID, event.GetEventType(), event)
}
