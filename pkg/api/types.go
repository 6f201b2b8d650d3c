package api

import (
	"time"

	"canvas-backend/domain/core/entities"
)

// CreateCanvasRequest is the body of POST /canvases
type CreateCanvasRequest struct {
	Title string `json:"title,omitempty" validate:"omitempty,max=200"`
}

// AskRequest is the body of POST /canvases/{canvasID}/ask
type AskRequest struct {
	Question string `json:"question" validate:"required,max=4000"`
}

// ExpandRequest is the body of POST /canvases/{canvasID}/nodes/{nodeID}/expand
type ExpandRequest struct {
	FollowUps []string `json:"followUps" validate:"max=20,dive,max=1000"`
}

// TopicRequest is the body of POST /canvases/{canvasID}/nodes/{nodeID}/topics
type TopicRequest struct {
	Term string `json:"term" validate:"required,max=200"`
}

// SubmitInputRequest is the body of POST /canvases/{canvasID}/nodes/{nodeID}/submit
type SubmitInputRequest struct {
	Question string `json:"question" validate:"required,max=4000"`
}

// SynthesizeRequest is the body of POST /canvases/{canvasID}/synthesize
type SynthesizeRequest struct {
	NodeIDs []string `json:"nodeIds" validate:"required,min=1,max=50,dive,required"`
	Prompt  string   `json:"prompt,omitempty" validate:"max=2000"`
}

// PutResourceRequest is the body of PUT /canvases/{canvasID}/nodes/{nodeID}/resources/{kind}
type PutResourceRequest struct {
	Index int    `json:"index" validate:"min=0,max=999"`
	Value string `json:"value" validate:"required,max=100000"`
}

// CanvasResponse is the full state of one canvas
type CanvasResponse struct {
	ID        string          `json:"id"`
	Title     string          `json:"title"`
	Epoch     uint64          `json:"epoch"`
	CreatedAt time.Time       `json:"createdAt"`
	Nodes     []entities.Node `json:"nodes"`
	Edges     []entities.Edge `json:"edges"`
	Generated []string        `json:"generated"`
}

// ContextResponse is the ancestor context of a node
type ContextResponse struct {
	NodeID  string   `json:"nodeId"`
	Path    []string `json:"path"`
	Context []string `json:"context"`
}

// OperationAccepted is returned when a request runs in the background
type OperationAccepted struct {
	OperationID string `json:"operationId"`
	Status      string `json:"status"`
	StatusURL   string `json:"statusUrl"`
}

// HealthResponse reports service health
type HealthResponse struct {
	Status   string `json:"status"`
	Sessions int    `json:"sessions"`
}
