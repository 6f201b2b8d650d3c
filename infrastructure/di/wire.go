//go:build wireinject
// +build wireinject

package di

import (
	"context"

	"canvas-backend/infrastructure/config"

	"github.com/google/wire"
)

// InfrastructureSet provides logging, AWS clients, storage and telemetry
var InfrastructureSet = wire.NewSet(
	ProvideLogger,
	ProvideErrorHandler,
	ProvideAWSClients,
	ProvideCanvasRepository,
	ProvideOperationStore,
	ProvideEventPublisher,
	ProvideDispatcher,
	ProvideCollector,
	ProvideCloudWatchMetrics,
	ProvideTracerProvider,
	ProvideGenerationService,
	ProvideLayoutWatcher,
)

// ApplicationSet provides the canvas engine and its HTTP surface
var ApplicationSet = wire.NewSet(
	ProvideObserver,
	ProvideLayoutEngine,
	ProvideOrchestrator,
	ProvideSessionManager,
	ProvideOperationRunner,
	ProvideCanvasHandler,
	ProvideNodeHandler,
	ProvideOperationHandler,
	ProvideStreamHub,
	ProvideStreamServer,
	ProvideRouter,
)

// SuperSet is the main provider set containing all providers
var SuperSet = wire.NewSet(
	InfrastructureSet,
	ApplicationSet,
	wire.Struct(new(Container), "*"),
)

// InitializeContainer creates a fully wired container
func InitializeContainer(ctx context.Context, cfg *config.Config) (*Container, error) {
	wire.Build(SuperSet)
	return nil, nil // Wire will replace this
}
