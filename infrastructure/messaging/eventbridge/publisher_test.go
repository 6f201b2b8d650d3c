package eventbridge

import (
	"context"
	"errors"
	"testing"
	"time"

	"canvas-backend/domain/events"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/eventbridge"
	"github.com/aws/aws-sdk-go-v2/service/eventbridge/types"
	"github.com/aws/smithy-go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

type MockAPI struct {
	mock.Mock
}

func (m *MockAPI) PutEvents(ctx context.Context, params *eventbridge.PutEventsInput, optFns ...func(*eventbridge.Options)) (*eventbridge.PutEventsOutput, error) {
	args := m.Called(ctx, params)
	out, _ := args.Get(0).(*eventbridge.PutEventsOutput)
	return out, args.Error(1)
}

func resets(n int) []events.DomainEvent {
	out := make([]events.DomainEvent, n)
	for i := range out {
		out[i] = events.NewCanvasReset("canvas-1", uint64(i))
	}
	return out
}

func withSize(n int) interface{} {
	return mock.MatchedBy(func(in *eventbridge.PutEventsInput) bool { return len(in.Entries) == n })
}

func newTestPublisher(api API) *Publisher {
	p := NewPublisher(api, "canvas-bus", zap.NewNop())
	p.backoff = time.Millisecond
	return p
}

func TestPublisher_BatchesOfTen(t *testing.T) {
	api := &MockAPI{}
	api.On("PutEvents", mock.Anything, withSize(10)).Return(&eventbridge.PutEventsOutput{}, nil).Twice()
	api.On("PutEvents", mock.Anything, withSize(3)).Return(&eventbridge.PutEventsOutput{}, nil).Once()

	require.NoError(t, newTestPublisher(api).PublishBatch(context.Background(), resets(23)))
	api.AssertExpectations(t)

	entry := api.Calls[0].Arguments.Get(1).(*eventbridge.PutEventsInput).Entries[0]
	assert.Equal(t, "canvas-bus", aws.ToString(entry.EventBusName))
	assert.Equal(t, events.SourceCanvas, aws.ToString(entry.Source))
	assert.Equal(t, events.TypeCanvasReset, aws.ToString(entry.DetailType))
	assert.Contains(t, aws.ToString(entry.Detail), `"canvasId":"canvas-1"`)
}

func TestPublisher_ResendsOnlyFailedEntries(t *testing.T) {
	api := &MockAPI{}
	api.On("PutEvents", mock.Anything, withSize(3)).Return(&eventbridge.PutEventsOutput{
		FailedEntryCount: 1,
		Entries: []types.PutEventsResultEntry{
			{EventId: aws.String("1")},
			{ErrorCode: aws.String("ThrottlingException"), ErrorMessage: aws.String("slow down")},
			{EventId: aws.String("3")},
		},
	}, nil).Once()
	api.On("PutEvents", mock.Anything, withSize(1)).Return(&eventbridge.PutEventsOutput{}, nil).Once()

	require.NoError(t, newTestPublisher(api).PublishBatch(context.Background(), resets(3)))
	api.AssertExpectations(t)
}

func TestPublisher_RetriesTransientErrors(t *testing.T) {
	throttled := &smithy.GenericAPIError{Code: "ThrottlingException", Message: "rate", Fault: smithy.FaultClient}

	api := &MockAPI{}
	api.On("PutEvents", mock.Anything, mock.Anything).Return(nil, throttled).Times(3)

	err := newTestPublisher(api).PublishBatch(context.Background(), resets(1))
	assert.ErrorIs(t, err, throttled)
	api.AssertNumberOfCalls(t, "PutEvents", 3)
}

func TestPublisher_DoesNotRetryPermanentErrors(t *testing.T) {
	denied := &smithy.GenericAPIError{Code: "AccessDeniedException", Message: "no", Fault: smithy.FaultClient}

	api := &MockAPI{}
	api.On("PutEvents", mock.Anything, mock.Anything).Return(nil, denied).Once()

	err := newTestPublisher(api).PublishBatch(context.Background(), resets(1))
	assert.ErrorIs(t, err, denied)
	api.AssertNumberOfCalls(t, "PutEvents", 1)
}

func TestIsRetryable(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want bool
	}{
		{"throttling", &smithy.GenericAPIError{Code: "ThrottlingException"}, true},
		{"server fault", &smithy.GenericAPIError{Code: "Weird", Fault: smithy.FaultServer}, true},
		{"client fault", &smithy.GenericAPIError{Code: "ValidationException", Fault: smithy.FaultClient}, false},
		{"plain error", errors.New("dial tcp: timeout"), false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, isRetryable(tt.err))
		})
	}
}
