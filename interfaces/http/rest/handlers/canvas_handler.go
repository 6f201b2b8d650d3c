package handlers

import (
	"context"
	"net/http"

	"canvas-backend/application/ports"
	"canvas-backend/application/services"
	"canvas-backend/domain/core/entities"
	domainservices "canvas-backend/domain/services"
	"canvas-backend/pkg/api"
	pkgerrors "canvas-backend/pkg/errors"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"
)

// CanvasHandler handles canvas-level requests
type CanvasHandler struct {
	base
	orchestrator *services.Orchestrator
	repo         ports.CanvasRepository
	analytics    *domainservices.CanvasAnalytics
}

// NewCanvasHandler creates a new canvas handler
func NewCanvasHandler(
	sessions *services.SessionManager,
	orchestrator *services.Orchestrator,
	runner *services.OperationRunner,
	repo ports.CanvasRepository,
	errorHandler *pkgerrors.ErrorHandler,
	logger *zap.Logger,
) *CanvasHandler {
	return &CanvasHandler{
		base:         newBase(sessions, runner, errorHandler, logger),
		orchestrator: orchestrator,
		repo:         repo,
		analytics:    domainservices.NewCanvasAnalytics(),
	}
}

// CreateCanvas handles POST /canvases
func (h *CanvasHandler) CreateCanvas(w http.ResponseWriter, r *http.Request) {
	var req api.CreateCanvasRequest
	if err := api.Decode(r, &req); err != nil {
		h.errorHandler.Handle(w, r, err)
		return
	}

	s := h.sessions.Create(r.Context(), req.Title)
	w.Header().Set("Location", "/api/v1/canvases/"+s.ID)
	api.Success(w, http.StatusCreated, canvasResponse(s))
}

// ListCanvases handles GET /canvases
func (h *CanvasHandler) ListCanvases(w http.ResponseWriter, r *http.Request) {
	summaries, err := h.sessions.List(r.Context())
	if err != nil {
		h.errorHandler.Handle(w, r, err)
		return
	}
	if summaries == nil {
		summaries = []ports.CanvasSummary{}
	}
	api.Success(w, http.StatusOK, summaries)
}

// GetCanvas handles GET /canvases/{canvasID}
func (h *CanvasHandler) GetCanvas(w http.ResponseWriter, r *http.Request) {
	s := h.session(w, r)
	if s == nil {
		return
	}
	api.Success(w, http.StatusOK, canvasResponse(s))
}

// DeleteCanvas handles DELETE /canvases/{canvasID}
func (h *CanvasHandler) DeleteCanvas(w http.ResponseWriter, r *http.Request) {
	if err := h.sessions.Delete(r.Context(), chi.URLParam(r, "canvasID")); err != nil {
		h.errorHandler.Handle(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// SaveCanvas handles POST /canvases/{canvasID}/save
func (h *CanvasHandler) SaveCanvas(w http.ResponseWriter, r *http.Request) {
	s := h.session(w, r)
	if s == nil {
		return
	}
	if err := h.sessions.Save(r.Context(), s); err != nil {
		h.errorHandler.Handle(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// ResetCanvas handles POST /canvases/{canvasID}/reset
func (h *CanvasHandler) ResetCanvas(w http.ResponseWriter, r *http.Request) {
	s := h.session(w, r)
	if s == nil {
		return
	}
	h.orchestrator.Reset(r.Context(), s)
	w.WriteHeader(http.StatusNoContent)
}

// Ask handles POST /canvases/{canvasID}/ask
func (h *CanvasHandler) Ask(w http.ResponseWriter, r *http.Request) {
	var req api.AskRequest
	if err := api.Decode(r, &req); err != nil {
		h.errorHandler.Handle(w, r, err)
		return
	}
	s := h.session(w, r)
	if s == nil {
		return
	}

	h.run(w, r, s.ID, "", services.OpQuery, http.StatusOK, func(ctx context.Context) (interface{}, error) {
		return h.orchestrator.Ask(ctx, s, req.Question)
	})
}

// Synthesize handles POST /canvases/{canvasID}/synthesize
func (h *CanvasHandler) Synthesize(w http.ResponseWriter, r *http.Request) {
	var req api.SynthesizeRequest
	if err := api.Decode(r, &req); err != nil {
		h.errorHandler.Handle(w, r, err)
		return
	}
	s := h.session(w, r)
	if s == nil {
		return
	}

	h.run(w, r, s.ID, "", services.OpSynthesize, http.StatusCreated, func(ctx context.Context) (interface{}, error) {
		return h.orchestrator.Synthesize(ctx, s, req.NodeIDs, req.Prompt)
	})
}

// ListArtifacts handles GET /canvases/{canvasID}/artifacts
func (h *CanvasHandler) ListArtifacts(w http.ResponseWriter, r *http.Request) {
	artifacts, err := h.repo.ListArtifacts(r.Context(), chi.URLParam(r, "canvasID"))
	if err != nil {
		h.errorHandler.Handle(w, r, err)
		return
	}
	if artifacts == nil {
		artifacts = []ports.Artifact{}
	}
	api.Success(w, http.StatusOK, artifacts)
}

// GetStats handles GET /canvases/{canvasID}/stats
func (h *CanvasHandler) GetStats(w http.ResponseWriter, r *http.Request) {
	s := h.session(w, r)
	if s == nil {
		return
	}
	snap := s.Snapshot()
	api.Success(w, http.StatusOK, h.analytics.Stats(snap.Nodes, snap.Edges))
}

func canvasResponse(s *services.Session) api.CanvasResponse {
	snap := s.Snapshot()
	nodes, edges := snap.Nodes, snap.Edges
	if nodes == nil {
		nodes = []entities.Node{}
	}
	if edges == nil {
		edges = []entities.Edge{}
	}
	return api.CanvasResponse{
		ID:        s.ID,
		Title:     s.Title,
		Epoch:     snap.Epoch,
		CreatedAt: s.CreatedAt,
		Nodes:     nodes,
		Edges:     edges,
		Generated: s.Tracker().IDs(),
	}
}
