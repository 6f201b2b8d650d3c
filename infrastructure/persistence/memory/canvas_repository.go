package memory

import (
	"context"
	"fmt"
	"slices"
	"sort"
	"sync"

	"canvas-backend/application/ports"
	"canvas-backend/domain/core/entities"
	pkgerrors "canvas-backend/pkg/errors"
)

type resourceKey struct {
	canvasID string
	nodeID   string
	kind     ports.ResourceKind
	index    int
}

// CanvasRepository is an in-memory ports.CanvasRepository, used for local
// development and tests
type CanvasRepository struct {
	mu        sync.RWMutex
	canvases  map[string]ports.CanvasRecord
	artifacts map[string][]ports.Artifact
	resources map[resourceKey]ports.NodeResource
}

// NewCanvasRepository creates an empty repository
func NewCanvasRepository() *CanvasRepository {
	return &CanvasRepository{
		canvases:  make(map[string]ports.CanvasRecord),
		artifacts: make(map[string][]ports.Artifact),
		resources: make(map[resourceKey]ports.NodeResource),
	}
}

func (r *CanvasRepository) SaveCanvas(ctx context.Context, record ports.CanvasRecord) error {
	if record.ID == "" {
		return pkgerrors.NewValidationError("canvas ID cannot be empty")
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	existing, ok := r.canvases[record.ID]
	if existing.Revision != record.Revision {
		return pkgerrors.NewConflictError(fmt.Sprintf(
			"canvas %s is at revision %d, save was based on %d", record.ID, existing.Revision, record.Revision))
	}
	if ok && record.CreatedAt.IsZero() {
		record.CreatedAt = existing.CreatedAt
	}
	record.Revision++
	r.canvases[record.ID] = copyRecord(record)
	return nil
}

func (r *CanvasRepository) LoadCanvas(ctx context.Context, canvasID string) (ports.CanvasRecord, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	record, ok := r.canvases[canvasID]
	if !ok {
		return ports.CanvasRecord{}, pkgerrors.NewNotFoundError("canvas " + canvasID)
	}
	return copyRecord(record), nil
}

func (r *CanvasRepository) DeleteCanvas(ctx context.Context, canvasID string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	delete(r.canvases, canvasID)
	delete(r.artifacts, canvasID)
	for k := range r.resources {
		if k.canvasID == canvasID {
			delete(r.resources, k)
		}
	}
	return nil
}

func (r *CanvasRepository) ListCanvases(ctx context.Context) ([]ports.CanvasSummary, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	out := make([]ports.CanvasSummary, 0, len(r.canvases))
	for _, c := range r.canvases {
		out = append(out, ports.CanvasSummary{
			ID:        c.ID,
			Title:     c.Title,
			NodeCount: len(c.Nodes),
			UpdatedAt: c.UpdatedAt,
		})
	}
	sort.Slice(out, func(i, j int) bool {
		return out[i].UpdatedAt.After(out[j].UpdatedAt)
	})
	return out, nil
}

func (r *CanvasRepository) SaveArtifact(ctx context.Context, artifact ports.Artifact) error {
	if artifact.ID == "" || artifact.CanvasID == "" {
		return pkgerrors.NewValidationError("artifact ID and canvas ID are required")
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	artifact.SourceNodeIDs = slices.Clone(artifact.SourceNodeIDs)
	list := r.artifacts[artifact.CanvasID]
	for i, a := range list {
		if a.ID == artifact.ID {
			list[i] = artifact
			return nil
		}
	}
	r.artifacts[artifact.CanvasID] = append(list, artifact)
	return nil
}

func (r *CanvasRepository) ListArtifacts(ctx context.Context, canvasID string) ([]ports.Artifact, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	list := r.artifacts[canvasID]
	out := make([]ports.Artifact, len(list))
	for i, a := range list {
		a.SourceNodeIDs = slices.Clone(a.SourceNodeIDs)
		out[i] = a
	}
	return out, nil
}

func (r *CanvasRepository) PutNodeResource(ctx context.Context, resource ports.NodeResource) error {
	if !resource.Kind.IsValid() {
		return pkgerrors.NewValidationError("unknown resource kind " + string(resource.Kind))
	}
	if resource.Index < 0 {
		return pkgerrors.NewValidationError("resource index cannot be negative")
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	r.resources[resourceKey{resource.CanvasID, resource.NodeID, resource.Kind, resource.Index}] = resource
	return nil
}

func (r *CanvasRepository) ListNodeResources(ctx context.Context, canvasID, nodeID string, kind ports.ResourceKind) ([]ports.NodeResource, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	var out []ports.NodeResource
	for k, v := range r.resources {
		if k.canvasID == canvasID && k.nodeID == nodeID && k.kind == kind {
			out = append(out, v)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Index < out[j].Index })
	return out, nil
}

func copyRecord(record ports.CanvasRecord) ports.CanvasRecord {
	nodes := make([]entities.Node, len(record.Nodes))
	for i, n := range record.Nodes {
		nodes[i] = n.Clone()
	}
	record.Nodes = nodes
	record.Edges = slices.Clone(record.Edges)
	return record
}
