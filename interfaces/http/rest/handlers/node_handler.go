package handlers

import (
	"context"
	"net/http"
	"time"

	"canvas-backend/application/ports"
	"canvas-backend/application/services"
	domainservices "canvas-backend/domain/services"
	"canvas-backend/pkg/api"
	pkgerrors "canvas-backend/pkg/errors"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"
)

// NodeHandler handles requests addressed to a single node of a canvas
type NodeHandler struct {
	base
	orchestrator *services.Orchestrator
	repo         ports.CanvasRepository
}

// NewNodeHandler creates a new node handler
func NewNodeHandler(
	sessions *services.SessionManager,
	orchestrator *services.Orchestrator,
	runner *services.OperationRunner,
	repo ports.CanvasRepository,
	errorHandler *pkgerrors.ErrorHandler,
	logger *zap.Logger,
) *NodeHandler {
	return &NodeHandler{
		base:         newBase(sessions, runner, errorHandler, logger),
		orchestrator: orchestrator,
		repo:         repo,
	}
}

// AnswerFollowUp handles POST /canvases/{canvasID}/nodes/{nodeID}/answer
func (h *NodeHandler) AnswerFollowUp(w http.ResponseWriter, r *http.Request) {
	s := h.session(w, r)
	if s == nil {
		return
	}
	nodeID := chi.URLParam(r, "nodeID")

	h.run(w, r, s.ID, nodeID, services.OpFollowUp, http.StatusOK, func(ctx context.Context) (interface{}, error) {
		return h.orchestrator.AnswerFollowUp(ctx, s, nodeID)
	})
}

// ExpandNode handles POST /canvases/{canvasID}/nodes/{nodeID}/expand
func (h *NodeHandler) ExpandNode(w http.ResponseWriter, r *http.Request) {
	var req api.ExpandRequest
	if err := api.Decode(r, &req); err != nil {
		h.errorHandler.Handle(w, r, err)
		return
	}
	s := h.session(w, r)
	if s == nil {
		return
	}

	result, err := h.orchestrator.ExpandNode(r.Context(), s, chi.URLParam(r, "nodeID"), req.FollowUps)
	if err != nil {
		h.errorHandler.Handle(w, r, err)
		return
	}
	api.Success(w, http.StatusOK, result)
}

// ExploreTopic handles POST /canvases/{canvasID}/nodes/{nodeID}/topics
func (h *NodeHandler) ExploreTopic(w http.ResponseWriter, r *http.Request) {
	var req api.TopicRequest
	if err := api.Decode(r, &req); err != nil {
		h.errorHandler.Handle(w, r, err)
		return
	}
	s := h.session(w, r)
	if s == nil {
		return
	}
	nodeID := chi.URLParam(r, "nodeID")

	h.run(w, r, s.ID, nodeID, services.OpTopic, http.StatusCreated, func(ctx context.Context) (interface{}, error) {
		return h.orchestrator.ExploreTopic(ctx, s, nodeID, req.Term)
	})
}

// CreateCustomInput handles POST /canvases/{canvasID}/nodes/{nodeID}/inputs
func (h *NodeHandler) CreateCustomInput(w http.ResponseWriter, r *http.Request) {
	s := h.session(w, r)
	if s == nil {
		return
	}

	node, err := h.orchestrator.CreateCustomInput(r.Context(), s, chi.URLParam(r, "nodeID"))
	if err != nil {
		h.errorHandler.Handle(w, r, err)
		return
	}
	api.Success(w, http.StatusCreated, node)
}

// SubmitCustomInput handles POST /canvases/{canvasID}/nodes/{nodeID}/submit
func (h *NodeHandler) SubmitCustomInput(w http.ResponseWriter, r *http.Request) {
	var req api.SubmitInputRequest
	if err := api.Decode(r, &req); err != nil {
		h.errorHandler.Handle(w, r, err)
		return
	}
	s := h.session(w, r)
	if s == nil {
		return
	}
	nodeID := chi.URLParam(r, "nodeID")

	h.run(w, r, s.ID, nodeID, services.OpFollowUp, http.StatusOK, func(ctx context.Context) (interface{}, error) {
		return h.orchestrator.SubmitCustomInput(ctx, s, nodeID, req.Question)
	})
}

// GetContext handles GET /canvases/{canvasID}/nodes/{nodeID}/context
func (h *NodeHandler) GetContext(w http.ResponseWriter, r *http.Request) {
	s := h.session(w, r)
	if s == nil {
		return
	}
	nodeID := chi.URLParam(r, "nodeID")

	snap := s.Snapshot()
	if _, ok := snap.Node(nodeID); !ok {
		h.errorHandler.Handle(w, r, pkgerrors.NewNotFoundError("node "+nodeID))
		return
	}

	api.Success(w, http.StatusOK, api.ContextResponse{
		NodeID:  nodeID,
		Path:    domainservices.AncestorPath(nodeID, snap.Nodes, snap.Edges),
		Context: domainservices.BuildAncestorContext(nodeID, snap.Nodes, snap.Edges),
	})
}

// ListResources handles GET /canvases/{canvasID}/nodes/{nodeID}/resources/{kind}
func (h *NodeHandler) ListResources(w http.ResponseWriter, r *http.Request) {
	kind := ports.ResourceKind(chi.URLParam(r, "kind"))
	if !kind.IsValid() {
		h.errorHandler.Handle(w, r, pkgerrors.NewValidationError("unknown resource kind "+string(kind)))
		return
	}

	resources, err := h.repo.ListNodeResources(r.Context(), chi.URLParam(r, "canvasID"), chi.URLParam(r, "nodeID"), kind)
	if err != nil {
		h.errorHandler.Handle(w, r, err)
		return
	}
	if resources == nil {
		resources = []ports.NodeResource{}
	}
	api.Success(w, http.StatusOK, resources)
}

// PutResource handles PUT /canvases/{canvasID}/nodes/{nodeID}/resources/{kind}
func (h *NodeHandler) PutResource(w http.ResponseWriter, r *http.Request) {
	var req api.PutResourceRequest
	if err := api.Decode(r, &req); err != nil {
		h.errorHandler.Handle(w, r, err)
		return
	}
	kind := ports.ResourceKind(chi.URLParam(r, "kind"))
	if !kind.IsValid() {
		h.errorHandler.Handle(w, r, pkgerrors.NewValidationError("unknown resource kind "+string(kind)))
		return
	}
	s := h.session(w, r)
	if s == nil {
		return
	}
	nodeID := chi.URLParam(r, "nodeID")
	if !s.Store().HasNode(nodeID) {
		h.errorHandler.Handle(w, r, pkgerrors.NewNotFoundError("node "+nodeID))
		return
	}

	resource := ports.NodeResource{
		CanvasID:  s.ID,
		NodeID:    nodeID,
		Kind:      kind,
		Index:     req.Index,
		Value:     req.Value,
		UpdatedAt: time.Now().UTC(),
	}
	if err := h.repo.PutNodeResource(r.Context(), resource); err != nil {
		h.errorHandler.Handle(w, r, err)
		return
	}
	api.Success(w, http.StatusOK, resource)
}
