package services

import (
	"canvas-backend/domain/core/entities"

	"go.uber.org/zap"
)

// ReconcileEdges keeps the first edge for every (source, target) pair in
// first-seen order and reports how many duplicates were dropped. It never
// looks at node state.
func ReconcileEdges(edges []entities.Edge) ([]entities.Edge, int) {
	if len(edges) == 0 {
		return edges, 0
	}

	seen := make(map[entities.EdgeKey]struct{}, len(edges))
	kept := make([]entities.Edge, 0, len(edges))
	for _, e := range edges {
		key := e.Key()
		if _, dup := seen[key]; dup {
			continue
		}
		seen[key] = struct{}{}
		kept = append(kept, e)
	}
	return kept, len(edges) - len(kept)
}

// DuplicateHook is called with the number of edges dropped in one pass
type DuplicateHook func(dropped int)

// EdgeReconciler runs ReconcileEdges and reports dropped duplicates
type EdgeReconciler struct {
	logger      *zap.Logger
	onDuplicate DuplicateHook
}

// NewEdgeReconciler creates a reconciler; hook may be nil
func NewEdgeReconciler(logger *zap.Logger, hook DuplicateHook) *EdgeReconciler {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &EdgeReconciler{logger: logger, onDuplicate: hook}
}

// Reconcile deduplicates edges, logging when anything was dropped
func (r *EdgeReconciler) Reconcile(edges []entities.Edge) []entities.Edge {
	kept, dropped := ReconcileEdges(edges)
	if dropped > 0 {
		r.logger.Warn("Dropped duplicate edges",
			zap.Int("dropped", dropped),
			zap.Int("remaining", len(kept)),
		)
		if r.onDuplicate != nil {
			r.onDuplicate(dropped)
		}
	}
	return kept
}
