package handlers

import (
	"net/http"

	"canvas-backend/application/services"
	"canvas-backend/pkg/api"
	pkgerrors "canvas-backend/pkg/errors"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"
)

// OperationHandler handles operation status endpoints
type OperationHandler struct {
	runner       *services.OperationRunner
	errorHandler *pkgerrors.ErrorHandler
	logger       *zap.Logger
}

// NewOperationHandler creates a new operation handler
func NewOperationHandler(runner *services.OperationRunner, errorHandler *pkgerrors.ErrorHandler, logger *zap.Logger) *OperationHandler {
	if logger == nil {
		logger = zap.NewNop()
	}
	if errorHandler == nil {
		errorHandler = pkgerrors.NewErrorHandler(logger, false)
	}
	return &OperationHandler{
		runner:       runner,
		errorHandler: errorHandler,
		logger:       logger,
	}
}

// GetOperationStatus handles GET /operations/{operationID}
func (h *OperationHandler) GetOperationStatus(w http.ResponseWriter, r *http.Request) {
	operationID := chi.URLParam(r, "operationID")
	if operationID == "" {
		h.errorHandler.Handle(w, r, pkgerrors.NewValidationError("operation ID is required"))
		return
	}
	if h.runner == nil {
		h.errorHandler.Handle(w, r, pkgerrors.NewNotFoundError("operation "+operationID))
		return
	}

	op, err := h.runner.Get(r.Context(), operationID)
	if err != nil {
		h.logger.Debug("Failed to get operation status",
			zap.String("operationID", operationID),
			zap.Error(err),
		)
		h.errorHandler.Handle(w, r, err)
		return
	}

	api.Success(w, http.StatusOK, op)
}
