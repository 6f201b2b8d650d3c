package events

import (
	"canvas-backend/domain/core/entities"
)

// NodesAdded is emitted after a batch of nodes and edges becomes visible
type NodesAdded struct {
	BaseEvent
	CanvasID string         `json:"canvasId"`
	ParentID string         `json:"parentId,omitempty"`
	NodeIDs  []string       `json:"nodeIds"`
	EdgeIDs  []string       `json:"edgeIds"`
	Kinds    map[string]int `json:"kinds"`
}

// NewNodesAdded creates a NodesAdded event for one applied batch
func NewNodesAdded(canvasID, parentID string, nodes []entities.Node, edges []entities.Edge) NodesAdded {
	evt := NodesAdded{
		BaseEvent: newBase(canvasID, TypeNodesAdded),
		CanvasID:  canvasID,
		ParentID:  parentID,
		NodeIDs:   make([]string, 0, len(nodes)),
		EdgeIDs:   make([]string, 0, len(edges)),
		Kinds:     make(map[string]int),
	}
	for _, n := range nodes {
		evt.NodeIDs = append(evt.NodeIDs, n.ID)
		evt.Kinds[string(n.Kind())]++
	}
	for _, e := range edges {
		evt.EdgeIDs = append(evt.EdgeIDs, e.ID)
	}
	return evt
}

// NodeAnswered is emitted when a node receives its generated answer
type NodeAnswered struct {
	BaseEvent
	CanvasID    string `json:"canvasId"`
	NodeID      string `json:"nodeId"`
	Placeholder bool   `json:"placeholder"`
}

// NewNodeAnswered creates a NodeAnswered event
func NewNodeAnswered(canvasID, nodeID string, placeholder bool) NodeAnswered {
	return NodeAnswered{
		BaseEvent:   newBase(canvasID, TypeNodeAnswered),
		CanvasID:    canvasID,
		NodeID:      nodeID,
		Placeholder: placeholder,
	}
}

// NodeExpanded is emitted when a node transitions to the expanded state
type NodeExpanded struct {
	BaseEvent
	CanvasID   string   `json:"canvasId"`
	NodeID     string   `json:"nodeId"`
	ChildIDs   []string `json:"childIds"`
	ChildCount int      `json:"childCount"`
}

// NewNodeExpanded creates a NodeExpanded event
func NewNodeExpanded(canvasID, nodeID string, childIDs []string) NodeExpanded {
	return NodeExpanded{
		BaseEvent:  newBase(canvasID, TypeNodeExpanded),
		CanvasID:   canvasID,
		NodeID:     nodeID,
		ChildIDs:   childIDs,
		ChildCount: len(childIDs),
	}
}

// TopicExplored is emitted when a topic annotation is attached to a node
type TopicExplored struct {
	BaseEvent
	CanvasID     string `json:"canvasId"`
	SourceNodeID string `json:"sourceNodeId"`
	TopicNodeID  string `json:"topicNodeId"`
	Topic        string `json:"topic"`
}

// NewTopicExplored creates a TopicExplored event
func NewTopicExplored(canvasID, sourceNodeID, topicNodeID, topic string) TopicExplored {
	return TopicExplored{
		BaseEvent:    newBase(canvasID, TypeTopicExplored),
		CanvasID:     canvasID,
		SourceNodeID: sourceNodeID,
		TopicNodeID:  topicNodeID,
		Topic:        topic,
	}
}

// EdgesReconciled is emitted when duplicate edges were dropped
type EdgesReconciled struct {
	BaseEvent
	CanvasID string `json:"canvasId"`
	Dropped  int    `json:"dropped"`
}

// NewEdgesReconciled creates an EdgesReconciled event
func NewEdgesReconciled(canvasID string, dropped int) EdgesReconciled {
	return EdgesReconciled{
		BaseEvent: newBase(canvasID, TypeEdgesReconciled),
		CanvasID:  canvasID,
		Dropped:   dropped,
	}
}

// CanvasReset is emitted when a canvas is cleared
type CanvasReset struct {
	BaseEvent
	CanvasID string `json:"canvasId"`
	Epoch    uint64 `json:"epoch"`
}

// NewCanvasReset creates a CanvasReset event
func NewCanvasReset(canvasID string, epoch uint64) CanvasReset {
	return CanvasReset{
		BaseEvent: newBase(canvasID, TypeCanvasReset),
		CanvasID:  canvasID,
		Epoch:     epoch,
	}
}

// ArtifactCreated is emitted when a synthesis artifact is stored
type ArtifactCreated struct {
	BaseEvent
	CanvasID      string   `json:"canvasId"`
	ArtifactID    string   `json:"artifactId"`
	Title         string   `json:"title"`
	SourceNodeIDs []string `json:"sourceNodeIds"`
}

// NewArtifactCreated creates an ArtifactCreated event
func NewArtifactCreated(canvasID, artifactID, title string, sourceNodeIDs []string) ArtifactCreated {
	return ArtifactCreated{
		BaseEvent:     newBase(canvasID, TypeArtifactCreated),
		CanvasID:      canvasID,
		ArtifactID:    artifactID,
		Title:         title,
		SourceNodeIDs: sourceNodeIDs,
	}
}
