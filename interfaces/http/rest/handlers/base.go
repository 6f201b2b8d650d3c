// Package handlers implements the HTTP endpoints of the canvas service
package handlers

import (
	"context"
	"net/http"
	"strconv"

	"canvas-backend/application/services"
	"canvas-backend/pkg/api"
	pkgerrors "canvas-backend/pkg/errors"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"
)

// operationFunc is one unit of work that can run inline or in the background
type operationFunc func(ctx context.Context) (interface{}, error)

// base holds what every canvas endpoint needs
type base struct {
	sessions     *services.SessionManager
	runner       *services.OperationRunner
	errorHandler *pkgerrors.ErrorHandler
	logger       *zap.Logger
}

func newBase(sessions *services.SessionManager, runner *services.OperationRunner, errorHandler *pkgerrors.ErrorHandler, logger *zap.Logger) base {
	if logger == nil {
		logger = zap.NewNop()
	}
	if errorHandler == nil {
		errorHandler = pkgerrors.NewErrorHandler(logger, false)
	}
	return base{
		sessions:     sessions,
		runner:       runner,
		errorHandler: errorHandler,
		logger:       logger,
	}
}

// session resolves the {canvasID} URL parameter, loading the canvas if it
// is not live yet. On failure it writes the error response and returns nil.
func (b base) session(w http.ResponseWriter, r *http.Request) *services.Session {
	canvasID := chi.URLParam(r, "canvasID")
	if canvasID == "" {
		b.errorHandler.Handle(w, r, pkgerrors.NewValidationError("canvas ID is required"))
		return nil
	}
	s, err := b.sessions.Get(r.Context(), canvasID)
	if err != nil {
		b.errorHandler.Handle(w, r, err)
		return nil
	}
	return s
}

// run executes fn inline, or in the background when ?async=true and a
// runner is configured. Background runs answer 202 with a status URL.
func (b base) run(w http.ResponseWriter, r *http.Request, canvasID, nodeID, kind string, status int, fn operationFunc) {
	if b.runner != nil && wantsAsync(r) {
		op, err := b.runner.Submit(r.Context(), canvasID, nodeID, kind, fn)
		if err != nil {
			b.errorHandler.Handle(w, r, err)
			return
		}
		b.logger.Debug("Operation queued",
			zap.String("operationID", op.OperationID),
			zap.String("canvasID", canvasID),
			zap.String("kind", kind),
		)
		w.Header().Set("Location", operationURL(op.OperationID))
		api.Success(w, http.StatusAccepted, api.OperationAccepted{
			OperationID: op.OperationID,
			Status:      string(op.Status),
			StatusURL:   operationURL(op.OperationID),
		})
		return
	}

	result, err := fn(r.Context())
	if err != nil {
		b.errorHandler.Handle(w, r, err)
		return
	}
	api.Success(w, status, result)
}

func wantsAsync(r *http.Request) bool {
	async, _ := strconv.ParseBool(r.URL.Query().Get("async"))
	return async
}

func operationURL(operationID string) string {
	return "/api/v1/operations/" + operationID
}
