package memory

import (
	"context"
	"fmt"
	"sync"
	"time"

	"canvas-backend/application/ports"
)

// InMemoryOperationStore provides an in-memory implementation of OperationStore
type InMemoryOperationStore struct {
	mu         sync.RWMutex
	operations map[string]*ports.OperationResult
	ttl        time.Duration
}

// NewInMemoryOperationStore creates a new in-memory operation store.
// Call StartCleanup to evict expired operations periodically.
func NewInMemoryOperationStore(ttl time.Duration) *InMemoryOperationStore {
	return &InMemoryOperationStore{
		operations: make(map[string]*ports.OperationResult),
		ttl:        ttl,
	}
}

// Store saves an operation result
func (s *InMemoryOperationStore) Store(ctx context.Context, result *ports.OperationResult) error {
	if result == nil || result.OperationID == "" {
		return fmt.Errorf("invalid operation result")
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	stored := *result
	s.operations[result.OperationID] = &stored
	return nil
}

// Get retrieves a copy of an operation result by ID
func (s *InMemoryOperationStore) Get(ctx context.Context, operationID string) (*ports.OperationResult, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	result, exists := s.operations[operationID]
	if !exists {
		return nil, fmt.Errorf("operation not found: %s", operationID)
	}

	if s.isExpired(result) {
		return nil, fmt.Errorf("operation expired: %s", operationID)
	}

	out := *result
	return &out, nil
}

// Update updates an existing operation result
func (s *InMemoryOperationStore) Update(ctx context.Context, operationID string, result *ports.OperationResult) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.operations[operationID]; !exists {
		return fmt.Errorf("operation not found: %s", operationID)
	}

	stored := *result
	s.operations[operationID] = &stored
	return nil
}

// CleanupExpired removes operations older than the given duration
func (s *InMemoryOperationStore) CleanupExpired(ctx context.Context, olderThan time.Duration) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	now := time.Now()
	for id, op := range s.operations {
		if now.Sub(op.StartedAt) > olderThan {
			delete(s.operations, id)
		}
	}
	return nil
}

// StartCleanup evicts expired operations every interval until ctx is done
func (s *InMemoryOperationStore) StartCleanup(ctx context.Context, interval time.Duration) {
	go func() {
		ticker := time.NewTicker(interval)
		defer ticker.Stop()

		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				_ = s.CleanupExpired(ctx, s.ttl)
			}
		}
	}()
}

// isExpired checks if an operation has expired
func (s *InMemoryOperationStore) isExpired(result *ports.OperationResult) bool {
	return time.Since(result.StartedAt) > s.ttl
}
