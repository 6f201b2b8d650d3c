package services

import (
	"context"
	"errors"
	"testing"
	"time"

	"canvas-backend/application/ports"
	"canvas-backend/infrastructure/persistence/memory"
	pkgerrors "canvas-backend/pkg/errors"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func TestOperationRunner_CompletesOperation(t *testing.T) {
	store := memory.NewInMemoryOperationStore(time.Hour)
	runner := NewOperationRunner(store, 2, time.Second, zap.NewNop())

	op, err := runner.Submit(context.Background(), "c1", "n1", OpFollowUp, func(ctx context.Context) (interface{}, error) {
		return "done", nil
	})
	require.NoError(t, err)
	assert.Equal(t, ports.OperationStatusPending, op.Status)

	runner.Wait()

	got, err := runner.Get(context.Background(), op.OperationID)
	require.NoError(t, err)
	assert.Equal(t, ports.OperationStatusCompleted, got.Status)
	assert.Equal(t, "done", got.Result)
	assert.Equal(t, "c1", got.CanvasID)
	require.NotNil(t, got.CompletedAt)
}

func TestOperationRunner_RecordsFailure(t *testing.T) {
	store := memory.NewInMemoryOperationStore(time.Hour)
	runner := NewOperationRunner(store, 2, time.Second, zap.NewNop())

	op, err := runner.Submit(context.Background(), "c1", "", OpSynthesize, func(ctx context.Context) (interface{}, error) {
		return nil, errors.New("boom")
	})
	require.NoError(t, err)
	runner.Wait()

	got, err := runner.Get(context.Background(), op.OperationID)
	require.NoError(t, err)
	assert.Equal(t, ports.OperationStatusFailed, got.Status)
	assert.Equal(t, "boom", got.Error)
}

func TestOperationRunner_OutlivesSubmittingContext(t *testing.T) {
	store := memory.NewInMemoryOperationStore(time.Hour)
	runner := NewOperationRunner(store, 1, time.Second, zap.NewNop())

	ctx, cancel := context.WithCancel(context.Background())
	release := make(chan struct{})
	op, err := runner.Submit(ctx, "c1", "n1", OpFollowUp, func(ctx context.Context) (interface{}, error) {
		<-release
		return nil, ctx.Err()
	})
	require.NoError(t, err)

	cancel()
	close(release)
	runner.Wait()

	got, err := runner.Get(context.Background(), op.OperationID)
	require.NoError(t, err)
	assert.Equal(t, ports.OperationStatusCompleted, got.Status)
}

func TestOperationRunner_RejectsWhenSaturated(t *testing.T) {
	store := memory.NewInMemoryOperationStore(time.Hour)
	runner := NewOperationRunner(store, 1, time.Second, zap.NewNop())

	release := make(chan struct{})
	_, err := runner.Submit(context.Background(), "c1", "n1", OpFollowUp, func(ctx context.Context) (interface{}, error) {
		<-release
		return nil, nil
	})
	require.NoError(t, err)

	_, err = runner.Submit(context.Background(), "c1", "n2", OpFollowUp, func(ctx context.Context) (interface{}, error) {
		return nil, nil
	})
	assert.True(t, pkgerrors.IsType(err, pkgerrors.ErrorTypeUnavailable))

	close(release)
	runner.Wait()
}

func TestOperationRunner_GetUnknown(t *testing.T) {
	runner := NewOperationRunner(memory.NewInMemoryOperationStore(time.Hour), 1, 0, nil)

	_, err := runner.Get(context.Background(), "nope")
	assert.True(t, pkgerrors.IsNotFound(err))
}
