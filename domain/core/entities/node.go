package entities

import (
	"encoding/json"
	"fmt"
	"slices"
	"time"

	"canvas-backend/domain/core/valueobjects"
	pkgerrors "canvas-backend/pkg/errors"

	"github.com/google/uuid"
)

// NodeKind identifies which payload variant a node carries
type NodeKind string

const (
	KindResponse NodeKind = "response"
	KindFollowUp NodeKind = "followUp"
	KindTopic    NodeKind = "topic"
)

// NodeState is the node's position in the generation lifecycle:
// input -> unanswered -> answered -> expanded
type NodeState string

const (
	StateInput      NodeState = "input"
	StateUnanswered NodeState = "unanswered"
	StateAnswered   NodeState = "answered"
	StateExpanded   NodeState = "expanded"
)

// Payload is the kind-specific content of a node.
// Only the three variants in this package implement it.
type Payload interface {
	Kind() NodeKind
	isPayload()
}

// ResponsePayload is the content of a root answer to a user query
type ResponsePayload struct {
	Query   string `json:"query"`
	Content string `json:"content"`
}

// FollowUpPayload is the content of a follow-up question node
type FollowUpPayload struct {
	Question        string   `json:"question"`
	Answer          string   `json:"answer,omitempty"`
	HasBeenAnswered bool     `json:"hasBeenAnswered"`
	ChildQuestions  []string `json:"childQuestions"`
}

// TopicPayload is the content of an exploratory topic annotation
type TopicPayload struct {
	Topic       string `json:"topic"`
	Explanation string `json:"explanation"`
}

func (ResponsePayload) Kind() NodeKind { return KindResponse }
func (FollowUpPayload) Kind() NodeKind { return KindFollowUp }
func (TopicPayload) Kind() NodeKind    { return KindTopic }

func (ResponsePayload) isPayload() {}
func (FollowUpPayload) isPayload() {}
func (TopicPayload) isPayload()    {}

// Node is a positioned unit of content on the canvas.
// Nodes are values: every change produces a new Node.
type Node struct {
	ID           string
	Position     valueobjects.Position
	ParentEdgeID string
	State        NodeState
	Payload      Payload
	CreatedAt    time.Time
}

// NewNodeID returns a fresh, globally unique node ID
func NewNodeID() string {
	return uuid.New().String()
}

// NewNode creates a node after validating its position and payload
func NewNode(id string, position valueobjects.Position, state NodeState, payload Payload) (Node, error) {
	if id == "" {
		return Node{}, pkgerrors.NewValidationError("node ID cannot be empty")
	}
	if !position.Valid() {
		return Node{}, pkgerrors.NewValidationError("node position must be finite")
	}
	if payload == nil {
		return Node{}, pkgerrors.NewValidationError("node payload is required")
	}
	return Node{
		ID:        id,
		Position:  position,
		State:     state,
		Payload:   payload,
		CreatedAt: time.Now().UTC(),
	}, nil
}

// Kind returns the kind of the node's payload
func (n Node) Kind() NodeKind {
	if n.Payload == nil {
		return ""
	}
	return n.Payload.Kind()
}

// IsRoot reports whether the node has no parent edge
func (n Node) IsRoot() bool {
	return n.ParentEdgeID == ""
}

// Answered reports whether the node already carries generated content
func (n Node) Answered() bool {
	return n.State == StateAnswered || n.State == StateExpanded
}

// WithPayload returns a copy of the node with a new payload
func (n Node) WithPayload(p Payload) Node {
	n.Payload = clonePayload(p)
	return n
}

// WithState returns a copy of the node in a new lifecycle state
func (n Node) WithState(s NodeState) Node {
	n.State = s
	return n
}

// Clone returns a deep copy so callers cannot alias slices in a snapshot
func (n Node) Clone() Node {
	n.Payload = clonePayload(n.Payload)
	return n
}

func clonePayload(p Payload) Payload {
	if f, ok := p.(FollowUpPayload); ok {
		f.ChildQuestions = slices.Clone(f.ChildQuestions)
		return f
	}
	return p
}

type nodeJSON struct {
	ID           string                `json:"id"`
	Kind         NodeKind              `json:"kind"`
	Position     valueobjects.Position `json:"position"`
	ParentEdgeID string                `json:"parentEdgeId,omitempty"`
	State        NodeState             `json:"state"`
	CreatedAt    time.Time             `json:"createdAt"`
	Data         json.RawMessage       `json:"data"`
}

// MarshalJSON implements json.Marshaler
func (n Node) MarshalJSON() ([]byte, error) {
	data, err := json.Marshal(n.Payload)
	if err != nil {
		return nil, err
	}
	return json.Marshal(nodeJSON{
		ID:           n.ID,
		Kind:         n.Kind(),
		Position:     n.Position,
		ParentEdgeID: n.ParentEdgeID,
		State:        n.State,
		CreatedAt:    n.CreatedAt,
		Data:         data,
	})
}

// UnmarshalJSON implements json.Unmarshaler, dispatching on kind
func (n *Node) UnmarshalJSON(b []byte) error {
	var raw nodeJSON
	if err := json.Unmarshal(b, &raw); err != nil {
		return err
	}

	payload, err := decodePayload(raw.Kind, raw.Data)
	if err != nil {
		return err
	}

	*n = Node{
		ID:           raw.ID,
		Position:     raw.Position,
		ParentEdgeID: raw.ParentEdgeID,
		State:        raw.State,
		Payload:      payload,
		CreatedAt:    raw.CreatedAt,
	}
	return nil
}

func decodePayload(kind NodeKind, data json.RawMessage) (Payload, error) {
	switch kind {
	case KindResponse:
		var p ResponsePayload
		if err := json.Unmarshal(data, &p); err != nil {
			return nil, err
		}
		return p, nil
	case KindFollowUp:
		var p FollowUpPayload
		if err := json.Unmarshal(data, &p); err != nil {
			return nil, err
		}
		return p, nil
	case KindTopic:
		var p TopicPayload
		if err := json.Unmarshal(data, &p); err != nil {
			return nil, err
		}
		return p, nil
	default:
		return nil, fmt.Errorf("unknown node kind %q", kind)
	}
}
