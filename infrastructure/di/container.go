package di

import (
	"context"

	"canvas-backend/application/ports"
	"canvas-backend/application/services"
	domainservices "canvas-backend/domain/services"
	"canvas-backend/infrastructure/config"
	"canvas-backend/infrastructure/messaging"
	"canvas-backend/interfaces/http/rest"
	"canvas-backend/interfaces/websocket"
	"canvas-backend/pkg/errors"
	"canvas-backend/pkg/observability"

	"go.uber.org/zap"
)

// Container holds all application dependencies
type Container struct {
	Config         *config.Config
	Logger         *zap.Logger
	ErrorHandler   *errors.ErrorHandler
	AWS            *AWSClients
	Repository     ports.CanvasRepository
	OperationStore ports.OperationStore
	Dispatcher     *messaging.Dispatcher
	Collector      *observability.Collector
	Tracing        *observability.TracerProvider
	Generator      ports.GenerationService
	LayoutWatcher  *config.LayoutWatcher
	Layout         *domainservices.LayoutEngine
	Observer       *services.CanvasObserver
	Orchestrator   *services.Orchestrator
	Sessions       *services.SessionManager
	Runner         *services.OperationRunner
	StreamHub      *websocket.Hub
	Stream         *websocket.Server
	Router         *rest.Router
}

// Shutdown stops background work in dependency order: no new layout
// reloads, then in-flight operations finish, then streams close and traces
// are flushed
func (c *Container) Shutdown(ctx context.Context) error {
	if c.LayoutWatcher != nil {
		c.LayoutWatcher.Stop()
	}

	if c.Runner != nil {
		done := make(chan struct{})
		go func() {
			c.Runner.Wait()
			close(done)
		}()
		select {
		case <-done:
		case <-ctx.Done():
			c.Logger.Warn("Shutdown deadline reached with operations still running")
		}
	}

	if c.StreamHub != nil {
		c.StreamHub.Stop()
	}

	if err := c.Tracing.Shutdown(ctx); err != nil {
		c.Logger.Error("Failed to flush traces", zap.Error(err))
		return err
	}
	return nil
}
