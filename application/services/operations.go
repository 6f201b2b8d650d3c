package services

import (
	"context"
	"time"

	"canvas-backend/application/ports"
	pkgerrors "canvas-backend/pkg/errors"

	"github.com/google/uuid"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

// OperationRunner runs generation requests in the background and records
// their outcome in an OperationStore, so HTTP callers can poll instead of
// holding a connection open for the whole generation call.
type OperationRunner struct {
	store   ports.OperationStore
	group   *errgroup.Group
	timeout time.Duration
	logger  *zap.Logger
}

// NewOperationRunner creates a runner executing at most limit operations at once
func NewOperationRunner(store ports.OperationStore, limit int, timeout time.Duration, logger *zap.Logger) *OperationRunner {
	if logger == nil {
		logger = zap.NewNop()
	}
	g := &errgroup.Group{}
	if limit > 0 {
		g.SetLimit(limit)
	}
	return &OperationRunner{
		store:   store,
		group:   g,
		timeout: timeout,
		logger:  logger,
	}
}

// Submit records a pending operation and starts fn. It fails with an
// UNAVAILABLE error when the runner is saturated.
func (r *OperationRunner) Submit(ctx context.Context, canvasID, nodeID, kind string, fn func(ctx context.Context) (interface{}, error)) (*ports.OperationResult, error) {
	op := &ports.OperationResult{
		OperationID: uuid.New().String(),
		CanvasID:    canvasID,
		NodeID:      nodeID,
		Kind:        kind,
		Status:      ports.OperationStatusPending,
		StartedAt:   time.Now().UTC(),
	}
	if err := r.store.Store(ctx, op); err != nil {
		return nil, err
	}

	// the operation outlives the request that submitted it
	runCtx := context.WithoutCancel(ctx)
	started := r.group.TryGo(func() error {
		r.run(runCtx, *op, fn)
		return nil
	})
	if !started {
		failed := r.finish(*op, nil, pkgerrors.NewUnavailableError("generation workers"))
		_ = r.store.Update(ctx, op.OperationID, &failed)
		return nil, pkgerrors.NewUnavailableError("generation workers")
	}

	return op, nil
}

// Get returns the current state of an operation
func (r *OperationRunner) Get(ctx context.Context, operationID string) (*ports.OperationResult, error) {
	op, err := r.store.Get(ctx, operationID)
	if err != nil {
		return nil, pkgerrors.NewNotFoundError("operation " + operationID).WithCause(err)
	}
	return op, nil
}

// Wait blocks until every submitted operation has finished
func (r *OperationRunner) Wait() {
	_ = r.group.Wait()
}

func (r *OperationRunner) run(ctx context.Context, op ports.OperationResult, fn func(ctx context.Context) (interface{}, error)) {
	if r.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, r.timeout)
		defer cancel()
	}

	result, err := fn(ctx)
	done := r.finish(op, result, err)
	if err != nil {
		r.logger.Warn("Background operation failed",
			zap.String("operationID", op.OperationID),
			zap.String("kind", op.Kind),
			zap.Error(err),
		)
	}

	if uerr := r.store.Update(ctx, op.OperationID, &done); uerr != nil {
		r.logger.Error("Failed to record operation result",
			zap.String("operationID", op.OperationID),
			zap.Error(uerr),
		)
	}
}

func (r *OperationRunner) finish(op ports.OperationResult, result interface{}, err error) ports.OperationResult {
	now := time.Now().UTC()
	op.CompletedAt = &now
	if err != nil {
		op.Status = ports.OperationStatusFailed
		op.Error = err.Error()
		return op
	}
	op.Status = ports.OperationStatusCompleted
	op.Result = result
	return op
}
