package eventbridge

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"canvas-backend/domain/events"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/eventbridge"
	"github.com/aws/aws-sdk-go-v2/service/eventbridge/types"
	"github.com/aws/smithy-go"
	"go.uber.org/zap"
)

// EventBridge limits PutEvents to 10 entries per call
const batchSize = 10

// API is the subset of the EventBridge client the publisher uses
type API interface {
	PutEvents(ctx context.Context, params *eventbridge.PutEventsInput, optFns ...func(*eventbridge.Options)) (*eventbridge.PutEventsOutput, error)
}

// Publisher implements ports.EventPublisher on AWS EventBridge
type Publisher struct {
	client       API
	eventBusName string
	source       string
	maxRetries   int
	backoff      time.Duration
	logger       *zap.Logger
}

// NewPublisher creates a new EventBridge publisher
func NewPublisher(client API, eventBusName string, logger *zap.Logger) *Publisher {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Publisher{
		client:       client,
		eventBusName: eventBusName,
		source:       events.SourceCanvas,
		maxRetries:   3,
		backoff:      100 * time.Millisecond,
		logger:       logger,
	}
}

// PublishBatch sends events in chunks of ten
func (p *Publisher) PublishBatch(ctx context.Context, domainEvents []events.DomainEvent) error {
	for i := 0; i < len(domainEvents); i += batchSize {
		end := i + batchSize
		if end > len(domainEvents) {
			end = len(domainEvents)
		}

		entries := p.entries(domainEvents[i:end])
		if err := p.publishWithRetry(ctx, entries); err != nil {
			return err
		}
	}
	return nil
}

func (p *Publisher) entries(domainEvents []events.DomainEvent) []types.PutEventsRequestEntry {
	entries := make([]types.PutEventsRequestEntry, 0, len(domainEvents))
	for _, event := range domainEvents {
		eventData, err := json.Marshal(event)
		if err != nil {
			p.logger.Error("Failed to marshal event",
				zap.Error(err),
				zap.String("eventType", event.GetEventType()),
			)
			continue
		}

		entries = append(entries, types.PutEventsRequestEntry{
			EventBusName: aws.String(p.eventBusName),
			Source:       aws.String(p.source),
			DetailType:   aws.String(event.GetEventType()),
			Detail:       aws.String(string(eventData)),
			Time:         aws.Time(event.GetTimestamp()),
			Resources:    []string{fmt.Sprintf("canvas:%s", event.GetAggregateID())},
		})
	}
	return entries
}

// publishWithRetry sends entries, resending only the entries EventBridge
// rejected, with exponential backoff between attempts
func (p *Publisher) publishWithRetry(ctx context.Context, entries []types.PutEventsRequestEntry) error {
	backoff := p.backoff

	for attempt := 1; len(entries) > 0; attempt++ {
		failed, err := p.publish(ctx, entries)
		if err == nil && len(failed) == 0 {
			return nil
		}
		if err != nil && !isRetryable(err) {
			return fmt.Errorf("failed to publish events to EventBridge: %w", err)
		}
		if attempt >= p.maxRetries {
			if err != nil {
				return fmt.Errorf("failed to publish events after %d attempts: %w", attempt, err)
			}
			return fmt.Errorf("%d events failed to publish after %d attempts", len(failed), attempt)
		}
		if err == nil {
			entries = failed
		}

		p.logger.Warn("Retrying event publication",
			zap.Int("attempt", attempt),
			zap.Int("entries", len(entries)),
			zap.Duration("backoff", backoff),
			zap.Error(err),
		)

		select {
		case <-time.After(backoff):
			backoff *= 2
		case <-ctx.Done():
			return ctx.Err()
		}
	}
	return nil
}

// publish makes one PutEvents call and returns the entries that failed
func (p *Publisher) publish(ctx context.Context, entries []types.PutEventsRequestEntry) ([]types.PutEventsRequestEntry, error) {
	result, err := p.client.PutEvents(ctx, &eventbridge.PutEventsInput{Entries: entries})
	if err != nil {
		return nil, err
	}

	if result.FailedEntryCount == 0 {
		p.logger.Debug("Events published to EventBridge",
			zap.Int("count", len(entries)),
			zap.String("eventBus", p.eventBusName),
		)
		return nil, nil
	}

	var failed []types.PutEventsRequestEntry
	for i, entry := range result.Entries {
		if entry.ErrorCode == nil || i >= len(entries) {
			continue
		}
		p.logger.Error("Failed to publish event",
			zap.String("eventType", aws.ToString(entries[i].DetailType)),
			zap.String("errorCode", *entry.ErrorCode),
			zap.String("errorMessage", aws.ToString(entry.ErrorMessage)),
		)
		failed = append(failed, entries[i])
	}
	return failed, nil
}

// isRetryable reports whether err is a transient service-side failure
func isRetryable(err error) bool {
	var apiErr smithy.APIError
	if errors.As(err, &apiErr) {
		switch apiErr.ErrorCode() {
		case "ThrottlingException", "InternalException", "ServiceUnavailableException":
			return true
		}
		return apiErr.ErrorFault() == smithy.FaultServer
	}
	return false
}
