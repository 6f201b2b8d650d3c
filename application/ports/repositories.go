package ports

import (
	"context"
	"time"

	"canvas-backend/domain/core/entities"
)

// CanvasRecord is the persisted form of a canvas session
type CanvasRecord struct {
	ID        string          `json:"id"`
	Title     string          `json:"title"`
	Nodes     []entities.Node `json:"nodes"`
	Edges     []entities.Edge `json:"edges"`
	Epoch     uint64          `json:"epoch"`
	Revision  uint64          `json:"revision"`
	CreatedAt time.Time       `json:"createdAt"`
	UpdatedAt time.Time       `json:"updatedAt"`
}

// CanvasSummary is a listing entry without the graph body
type CanvasSummary struct {
	ID        string    `json:"id"`
	Title     string    `json:"title"`
	NodeCount int       `json:"nodeCount"`
	UpdatedAt time.Time `json:"updatedAt"`
}

// Artifact is a document synthesized from selected nodes
type Artifact struct {
	ID            string    `json:"id"`
	CanvasID      string    `json:"canvasId"`
	Title         string    `json:"title"`
	Content       string    `json:"content"`
	SourceNodeIDs []string  `json:"sourceNodeIds"`
	Placeholder   bool      `json:"placeholder,omitempty"`
	CreatedAt     time.Time `json:"createdAt"`
}

// ResourceKind identifies a node sub-resource collection
type ResourceKind string

const (
	ResourceContentEdit ResourceKind = "content"
	ResourceAttachment  ResourceKind = "attachment"
	ResourceSource      ResourceKind = "source"
)

// IsValid checks if the resource kind is known
func (k ResourceKind) IsValid() bool {
	switch k {
	case ResourceContentEdit, ResourceAttachment, ResourceSource:
		return true
	default:
		return false
	}
}

// NodeResource is a sub-resource of a node keyed by (canvasID, nodeID, kind, index)
type NodeResource struct {
	CanvasID  string       `json:"canvasId"`
	NodeID    string       `json:"nodeId"`
	Kind      ResourceKind `json:"kind"`
	Index     int          `json:"index"`
	Value     string       `json:"value"`
	UpdatedAt time.Time    `json:"updatedAt"`
}

// CanvasRepository persists canvases and their satellite records.
// This is a port in hexagonal architecture - the domain doesn't know about the implementation
type CanvasRepository interface {
	// SaveCanvas creates or replaces a canvas. record.Revision is the
	// revision the caller loaded, zero for a canvas never saved. The save
	// fails with a CONFLICT AppError when the stored revision differs, and
	// otherwise stores record.Revision+1.
	SaveCanvas(ctx context.Context, record CanvasRecord) error

	// LoadCanvas returns a NOT_FOUND AppError for unknown IDs
	LoadCanvas(ctx context.Context, canvasID string) (CanvasRecord, error)

	// DeleteCanvas removes a canvas and everything keyed under it
	DeleteCanvas(ctx context.Context, canvasID string) error

	// ListCanvases returns summaries ordered by most recently updated
	ListCanvases(ctx context.Context) ([]CanvasSummary, error)

	SaveArtifact(ctx context.Context, artifact Artifact) error
	ListArtifacts(ctx context.Context, canvasID string) ([]Artifact, error)

	// PutNodeResource creates or replaces the resource at its index
	PutNodeResource(ctx context.Context, resource NodeResource) error

	// ListNodeResources returns one node's resources of a kind ordered by index
	ListNodeResources(ctx context.Context, canvasID, nodeID string, kind ResourceKind) ([]NodeResource, error)
}
