package di

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"canvas-backend/application/ports"
	"canvas-backend/application/services"
	"canvas-backend/domain/events"
	domainservices "canvas-backend/domain/services"
	"canvas-backend/infrastructure/config"
	"canvas-backend/infrastructure/generation"
	"canvas-backend/infrastructure/messaging"
	"canvas-backend/infrastructure/messaging/eventbridge"
	"canvas-backend/infrastructure/persistence/dynamodb"
	"canvas-backend/infrastructure/persistence/memory"
	"canvas-backend/interfaces/http/rest"
	"canvas-backend/interfaces/http/rest/handlers"
	"canvas-backend/interfaces/websocket"
	"canvas-backend/pkg/errors"
	"canvas-backend/pkg/observability"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	awscloudwatch "github.com/aws/aws-sdk-go-v2/service/cloudwatch"
	awsdynamodb "github.com/aws/aws-sdk-go-v2/service/dynamodb"
	awseventbridge "github.com/aws/aws-sdk-go-v2/service/eventbridge"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// AWSClients holds the AWS service clients the configuration asks for.
// Clients that are not needed stay nil.
type AWSClients struct {
	DynamoDB    *awsdynamodb.Client
	EventBridge *awseventbridge.Client
	CloudWatch  *awscloudwatch.Client
}

// autosaveEvents end a user-visible mutation; saving on each of them keeps
// the stored canvas at most one step behind the live one
var autosaveEvents = []string{
	events.TypeNodeExpanded,
	events.TypeTopicExplored,
	events.TypeCanvasReset,
}

// ProvideLogger creates a new logger instance
func ProvideLogger(cfg *config.Config) (*zap.Logger, error) {
	var zapCfg zap.Config
	if cfg.IsProduction() || cfg.IsLambda {
		zapCfg = zap.NewProductionConfig()
	} else {
		zapCfg = zap.NewDevelopmentConfig()
	}

	level, err := zapcore.ParseLevel(cfg.LogLevel)
	if err != nil {
		return nil, fmt.Errorf("invalid LOG_LEVEL %q: %w", cfg.LogLevel, err)
	}
	zapCfg.Level = zap.NewAtomicLevelAt(level)

	logger, err := zapCfg.Build()
	if err != nil {
		return nil, err
	}
	return logger.With(zap.String("service", cfg.ServiceName)), nil
}

// ProvideErrorHandler creates the HTTP error handler
func ProvideErrorHandler(cfg *config.Config, logger *zap.Logger) *errors.ErrorHandler {
	return errors.NewErrorHandler(logger, cfg.IsDevelopment())
}

// ProvideAWSClients loads the AWS configuration only when some component
// needs it, so local runs on memory storage need no credentials
func ProvideAWSClients(ctx context.Context, cfg *config.Config, logger *zap.Logger) (*AWSClients, error) {
	needDynamo := cfg.Storage == config.StorageDynamoDB
	needEvents := cfg.EnableEvents && cfg.EventBusName != ""
	needCloudWatch := cfg.EnableCloudWatch
	if !needDynamo && !needEvents && !needCloudWatch {
		return &AWSClients{}, nil
	}

	startTime := time.Now()
	loadCtx, cancel := context.WithTimeout(ctx, 30*time.Second)
	defer cancel()

	awsCfg, err := awsconfig.LoadDefaultConfig(loadCtx, awsconfig.WithRegion(cfg.AWSRegion))
	if err != nil {
		return nil, fmt.Errorf("failed to load AWS config: %w", err)
	}

	// Lambda reuses connections across warm invocations; long-running
	// servers get a larger pool
	transport := &http.Transport{
		MaxIdleConns:        200,
		MaxIdleConnsPerHost: 20,
		IdleConnTimeout:     90 * time.Second,
		TLSHandshakeTimeout: 10 * time.Second,
	}
	if cfg.IsLambda {
		transport.MaxIdleConns = 100
		transport.MaxIdleConnsPerHost = 10
	}
	httpClient := &http.Client{Timeout: 30 * time.Second, Transport: transport}

	clients := &AWSClients{}
	if needDynamo {
		clients.DynamoDB = awsdynamodb.NewFromConfig(awsCfg, func(o *awsdynamodb.Options) {
			o.HTTPClient = httpClient
			o.RetryMaxAttempts = 3
			o.RetryMode = aws.RetryModeAdaptive
		})
	}
	if needEvents {
		clients.EventBridge = awseventbridge.NewFromConfig(awsCfg, func(o *awseventbridge.Options) {
			o.HTTPClient = httpClient
			o.RetryMaxAttempts = 3
		})
	}
	if needCloudWatch {
		clients.CloudWatch = awscloudwatch.NewFromConfig(awsCfg, func(o *awscloudwatch.Options) {
			o.HTTPClient = httpClient
		})
	}

	logger.Info("AWS clients initialized",
		zap.Duration("duration", time.Since(startTime)),
		zap.Bool("dynamodb", needDynamo),
		zap.Bool("eventbridge", needEvents),
		zap.Bool("cloudwatch", needCloudWatch),
	)
	return clients, nil
}

// ProvideCanvasRepository selects the canvas store
func ProvideCanvasRepository(cfg *config.Config, clients *AWSClients, logger *zap.Logger) ports.CanvasRepository {
	if cfg.Storage == config.StorageDynamoDB {
		return dynamodb.NewCanvasRepository(clients.DynamoDB, cfg.DynamoDBTable, cfg.IndexName, logger)
	}
	logger.Warn("Using in-memory canvas storage; canvases are lost on restart")
	return memory.NewCanvasRepository()
}

// ProvideOperationStore creates an operation store for async operation tracking
func ProvideOperationStore(ctx context.Context, cfg *config.Config, clients *AWSClients, logger *zap.Logger) ports.OperationStore {
	if cfg.Storage == config.StorageDynamoDB {
		return dynamodb.NewOperationStore(clients.DynamoDB, cfg.DynamoDBTable, cfg.Operations.TTL, logger)
	}
	store := memory.NewInMemoryOperationStore(cfg.Operations.TTL)
	interval := cfg.Operations.TTL / 2
	if interval <= 0 {
		interval = time.Minute
	}
	store.StartCleanup(ctx, interval)
	return store
}

// ProvideEventPublisher creates the downstream publisher behind the dispatcher
func ProvideEventPublisher(cfg *config.Config, clients *AWSClients, logger *zap.Logger) ports.EventPublisher {
	if !cfg.EnableEvents {
		return nil
	}
	if clients.EventBridge != nil {
		return eventbridge.NewPublisher(clients.EventBridge, cfg.EventBusName, logger)
	}
	return messaging.NewLogPublisher(logger)
}

// ProvideDispatcher creates the in-process event dispatcher
func ProvideDispatcher(publisher ports.EventPublisher, logger *zap.Logger) *messaging.Dispatcher {
	return messaging.NewDispatcher(publisher, logger)
}

// ProvideCollector creates the Prometheus collector, or nil when metrics are off
func ProvideCollector(cfg *config.Config) *observability.Collector {
	if !cfg.EnableMetrics {
		return nil
	}
	return observability.NewCollector(cfg.MetricsNamespace)
}

// ProvideCloudWatchMetrics creates the CloudWatch sink, or nil when it is off
func ProvideCloudWatchMetrics(cfg *config.Config, clients *AWSClients, logger *zap.Logger) *observability.Metrics {
	if clients.CloudWatch == nil {
		return nil
	}
	namespace := fmt.Sprintf("Canvas/%s", cfg.Environment)
	return observability.NewMetrics(namespace, clients.CloudWatch, logger)
}

// ProvideTracerProvider initializes OpenTelemetry, or a no-op provider
func ProvideTracerProvider(ctx context.Context, cfg *config.Config, logger *zap.Logger) (*observability.TracerProvider, error) {
	if !cfg.EnableTracing {
		return observability.NoopTracerProvider(), nil
	}
	tp, err := observability.InitTracing(ctx, cfg.ServiceName, cfg.Environment, cfg.OTLPEndpoint)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize tracing: %w", err)
	}
	logger.Info("Tracing enabled", zap.String("endpoint", cfg.OTLPEndpoint))
	return tp, nil
}

// ProvideObserver creates the graph observer fed by the orchestrator
func ProvideObserver(
	dispatcher *messaging.Dispatcher,
	collector *observability.Collector,
	cloudWatch *observability.Metrics,
	logger *zap.Logger,
) *services.CanvasObserver {
	var sinks []ports.CanvasMetrics
	if collector != nil {
		sinks = append(sinks, collector)
	}
	if cloudWatch != nil {
		sinks = append(sinks, cloudWatch)
	}
	return services.NewCanvasObserver(dispatcher, logger, sinks...)
}

// ProvideGenerationService builds the configured generation provider
func ProvideGenerationService(
	ctx context.Context,
	cfg *config.Config,
	tp *observability.TracerProvider,
	logger *zap.Logger,
) (ports.GenerationService, error) {
	gen := cfg.Generation

	resilience := generation.DefaultResilienceConfig(gen.Provider)
	if gen.RequestsPerSecond > 0 {
		resilience.RequestsPerSecond = gen.RequestsPerSecond
	}
	if gen.Burst > 0 {
		resilience.Burst = gen.Burst
	}

	var tracer trace.Tracer
	if cfg.EnableTracing {
		tracer = tp.Tracer()
	}

	return generation.New(ctx, generation.Config{
		Provider: gen.Provider,
		OpenAI: generation.OpenAIConfig{
			APIKey:      gen.APIKey,
			Model:       gen.Model,
			BaseURL:     gen.BaseURL,
			Temperature: float32(gen.Temperature),
			MaxTokens:   gen.MaxTokens,
		},
		Gemini: generation.GeminiConfig{
			APIKey:      gen.APIKey,
			Model:       gen.Model,
			BaseURL:     gen.BaseURL,
			Temperature: float32(gen.Temperature),
			MaxTokens:   int32(gen.MaxTokens),
		},
		StaticFollowUps: gen.StaticFollowUps,
		Resilience:      resilience,
	}, tracer, logger)
}

// ProvideLayoutWatcher watches the layout file, or returns nil when hot
// reload is off
func ProvideLayoutWatcher(cfg *config.Config, logger *zap.Logger) (*config.LayoutWatcher, error) {
	if !cfg.WatchLayout || cfg.LayoutFile == "" {
		return nil, nil
	}
	return config.NewLayoutWatcher(cfg.LayoutFile, logger)
}

// ProvideLayoutEngine creates the layout engine from the layout file and
// keeps it in step with the watcher when there is one
func ProvideLayoutEngine(
	cfg *config.Config,
	watcher *config.LayoutWatcher,
	observer *services.CanvasObserver,
	logger *zap.Logger,
) (*domainservices.LayoutEngine, error) {
	var layout domainservices.LayoutConfig
	if watcher != nil {
		layout = watcher.Current()
	} else {
		var err error
		if layout, err = config.LoadLayoutFile(cfg.LayoutFile); err != nil {
			return nil, err
		}
	}

	engine := domainservices.NewLayoutEngine(layout, logger,
		domainservices.WithOverlapHook(observer.OverlapResolved))

	if watcher != nil {
		watcher.BindLayoutEngine(engine)
		watcher.Start()
	}
	return engine, nil
}

// ProvideOrchestrator creates the canvas orchestrator
func ProvideOrchestrator(
	cfg *config.Config,
	layout *domainservices.LayoutEngine,
	generator ports.GenerationService,
	repo ports.CanvasRepository,
	observer *services.CanvasObserver,
	logger *zap.Logger,
) *services.Orchestrator {
	return services.NewOrchestrator(layout, generator, repo, observer, logger,
		services.WithGenerationTimeout(cfg.Generation.Timeout))
}

// ProvideSessionManager creates the session manager and, when autosave is
// on, subscribes it to the events that end a mutation
func ProvideSessionManager(
	cfg *config.Config,
	repo ports.CanvasRepository,
	dispatcher *messaging.Dispatcher,
	collector *observability.Collector,
	logger *zap.Logger,
) *services.SessionManager {
	var hooks services.SessionHooks
	if collector != nil {
		hooks = services.SessionHooks{Opened: collector.SessionOpened, Closed: collector.SessionClosed}
	}
	manager := services.NewSessionManager(repo, logger, hooks)

	if cfg.AutoSave {
		for _, eventType := range autosaveEvents {
			dispatcher.Subscribe(eventType, manager.SaveOnEvent)
		}
		logger.Info("Autosave enabled", zap.Strings("events", autosaveEvents))
	}
	return manager
}

// ProvideOperationRunner creates the background operation runner. Lambda
// freezes the process once a response is sent, so there is no runner there
// and ?async=true requests run inline.
func ProvideOperationRunner(cfg *config.Config, store ports.OperationStore, logger *zap.Logger) *services.OperationRunner {
	if cfg.IsLambda {
		logger.Info("Background operations disabled in Lambda")
		return nil
	}
	return services.NewOperationRunner(store, cfg.Operations.Workers, cfg.Operations.Timeout, logger)
}

// ProvideCanvasHandler creates the canvas HTTP handler
func ProvideCanvasHandler(
	sessions *services.SessionManager,
	orchestrator *services.Orchestrator,
	runner *services.OperationRunner,
	repo ports.CanvasRepository,
	errorHandler *errors.ErrorHandler,
	logger *zap.Logger,
) *handlers.CanvasHandler {
	return handlers.NewCanvasHandler(sessions, orchestrator, runner, repo, errorHandler, logger)
}

// ProvideNodeHandler creates the node HTTP handler
func ProvideNodeHandler(
	sessions *services.SessionManager,
	orchestrator *services.Orchestrator,
	runner *services.OperationRunner,
	repo ports.CanvasRepository,
	errorHandler *errors.ErrorHandler,
	logger *zap.Logger,
) *handlers.NodeHandler {
	return handlers.NewNodeHandler(sessions, orchestrator, runner, repo, errorHandler, logger)
}

// ProvideOperationHandler creates the operation status HTTP handler
func ProvideOperationHandler(runner *services.OperationRunner, errorHandler *errors.ErrorHandler, logger *zap.Logger) *handlers.OperationHandler {
	return handlers.NewOperationHandler(runner, errorHandler, logger)
}

// ProvideStreamHub starts the canvas stream hub and subscribes it to every
// domain event, or returns nil when streaming is off
func ProvideStreamHub(cfg *config.Config, dispatcher *messaging.Dispatcher, logger *zap.Logger) *websocket.Hub {
	if !cfg.EnableStream || cfg.IsLambda {
		return nil
	}
	hub := websocket.NewHub(logger)
	go hub.Run()
	dispatcher.Subscribe(messaging.AllEvents, hub.Publish)
	return hub
}

// ProvideStreamServer creates the stream upgrade handler, or nil without a hub
func ProvideStreamServer(
	cfg *config.Config,
	hub *websocket.Hub,
	sessions *services.SessionManager,
	errorHandler *errors.ErrorHandler,
	logger *zap.Logger,
) *websocket.Server {
	if hub == nil {
		return nil
	}
	serverCfg := websocket.DefaultServerConfig()
	serverCfg.AllowedOrigins = cfg.AllowedOrigins
	return websocket.NewServer(hub, sessions, serverCfg, errorHandler, logger)
}

// ProvideRouter creates the HTTP router
func ProvideRouter(
	cfg *config.Config,
	canvases *handlers.CanvasHandler,
	nodes *handlers.NodeHandler,
	operations *handlers.OperationHandler,
	sessions *services.SessionManager,
	stream *websocket.Server,
	collector *observability.Collector,
	tp *observability.TracerProvider,
	logger *zap.Logger,
) *rest.Router {
	options := rest.Options{
		EnableCORS:     cfg.EnableCORS,
		AllowedOrigins: cfg.AllowedOrigins,
	}
	if collector != nil {
		options.Metrics = collector
		options.MetricsHandler = collector.Handler()
	}
	if cfg.EnableTracing {
		options.Tracer = tp.Tracer()
	}
	if stream != nil {
		options.Stream = stream.HandleStream
	}
	return rest.NewRouter(canvases, nodes, operations, sessions, logger, options)
}
