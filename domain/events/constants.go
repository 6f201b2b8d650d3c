package events

// Event sources - These define where events originate from
const (
	// SourceCanvas is the canvas service source
	SourceCanvas = "canvas.backend"
)

// Event types - These define the types of events in the system
const (
	// Node events
	TypeNodesAdded    = "canvas.nodes_added"
	TypeNodeAnswered  = "canvas.node_answered"
	TypeNodeExpanded  = "canvas.node_expanded"
	TypeTopicExplored = "canvas.topic_explored"

	// Edge events
	TypeEdgesReconciled = "canvas.edges_reconciled"

	// Canvas events
	TypeCanvasReset     = "canvas.reset"
	TypeArtifactCreated = "canvas.artifact_created"
)

// Event detail keys - Common keys used in event details
const (
	DetailNodeID    = "nodeId"
	DetailCanvasID  = "canvasId"
	DetailNodeCount = "nodeCount"
	DetailEdgeCount = "edgeCount"
)
