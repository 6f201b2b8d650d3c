package entities

import (
	"github.com/google/uuid"
)

// EdgeType represents the type of relationship between nodes
type EdgeType string

const (
	// EdgeTypeHierarchical connects a node to a generated or custom follow-up
	EdgeTypeHierarchical EdgeType = "hierarchical"

	// EdgeTypeTopic connects a node to an exploratory topic annotation
	EdgeTypeTopic EdgeType = "topic"
)

// IsValid checks if the edge type is valid
func (e EdgeType) IsValid() bool {
	switch e {
	case EdgeTypeHierarchical, EdgeTypeTopic:
		return true
	default:
		return false
	}
}

// String returns the string representation of the edge type
func (e EdgeType) String() string {
	return string(e)
}

// Edge is a directed connection from a parent node to a child node
type Edge struct {
	ID     string   `json:"id"`
	Source string   `json:"source"`
	Target string   `json:"target"`
	Type   EdgeType `json:"type,omitempty"`
}

// EdgeKey identifies an edge by its ordered endpoint pair
type EdgeKey struct {
	Source string
	Target string
}

// NewEdge creates an edge with a fresh ID
func NewEdge(source, target string, edgeType EdgeType) Edge {
	return Edge{
		ID:     uuid.New().String(),
		Source: source,
		Target: target,
		Type:   edgeType,
	}
}

// Key returns the (source, target) pair used for deduplication
func (e Edge) Key() EdgeKey {
	return EdgeKey{Source: e.Source, Target: e.Target}
}
