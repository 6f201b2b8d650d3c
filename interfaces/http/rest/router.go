package rest

import (
	"net/http"

	"canvas-backend/application/services"
	"canvas-backend/interfaces/http/rest/handlers"
	"canvas-backend/interfaces/http/rest/middleware"
	"canvas-backend/pkg/api"

	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"
)

// Options configures the router's optional middleware
type Options struct {
	EnableCORS     bool
	AllowedOrigins []string

	// Metrics, when set, records every request and serves /metrics
	Metrics        middleware.HTTPRecorder
	MetricsHandler http.Handler

	// Tracer, when set, starts a server span per request
	Tracer trace.Tracer

	// Stream, when set, serves the canvas event stream
	Stream http.HandlerFunc
}

// Router creates and configures the HTTP router
type Router struct {
	canvases   *handlers.CanvasHandler
	nodes      *handlers.NodeHandler
	operations *handlers.OperationHandler
	sessions   *services.SessionManager
	logger     *zap.Logger
	options    Options
}

// NewRouter creates a new router instance
func NewRouter(
	canvases *handlers.CanvasHandler,
	nodes *handlers.NodeHandler,
	operations *handlers.OperationHandler,
	sessions *services.SessionManager,
	logger *zap.Logger,
	options Options,
) *Router {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Router{
		canvases:   canvases,
		nodes:      nodes,
		operations: operations,
		sessions:   sessions,
		logger:     logger,
		options:    options,
	}
}

// Setup configures all routes and middleware
func (rt *Router) Setup() http.Handler {
	router := chi.NewRouter()

	// Global middleware
	router.Use(chimiddleware.RequestID)
	router.Use(middleware.RequestIDHeader)
	router.Use(chimiddleware.RealIP)
	router.Use(middleware.Logger(rt.logger))
	router.Use(chimiddleware.Recoverer)
	if rt.options.Tracer != nil {
		router.Use(middleware.Tracing(rt.options.Tracer))
	}
	if rt.options.Metrics != nil {
		router.Use(middleware.Metrics(rt.options.Metrics))
	}

	if rt.options.EnableCORS {
		origins := rt.options.AllowedOrigins
		if len(origins) == 0 {
			origins = []string{"*"}
		}
		router.Use(cors.Handler(cors.Options{
			AllowedOrigins: origins,
			AllowedMethods: []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"},
			AllowedHeaders: []string{"Accept", "Content-Type", "X-Request-ID"},
			ExposedHeaders: []string{"X-Request-ID", "Location"},
			MaxAge:         300,
		}))
	}

	router.Get("/health", rt.healthCheck)
	router.Get("/ready", rt.readinessCheck)
	if rt.options.MetricsHandler != nil {
		router.Method(http.MethodGet, "/metrics", rt.options.MetricsHandler)
	}
	router.Get("/api/openapi", api.OpenAPIHandler())
	router.Get("/api/docs", api.DocsHandler("/api/openapi"))

	router.Route("/api/v1", func(r chi.Router) {
		r.Route("/canvases", func(r chi.Router) {
			r.Post("/", rt.canvases.CreateCanvas)
			r.Get("/", rt.canvases.ListCanvases)

			r.Route("/{canvasID}", func(r chi.Router) {
				r.Get("/", rt.canvases.GetCanvas)
				r.Delete("/", rt.canvases.DeleteCanvas)
				r.Post("/save", rt.canvases.SaveCanvas)
				r.Post("/reset", rt.canvases.ResetCanvas)
				r.Post("/ask", rt.canvases.Ask)
				r.Post("/synthesize", rt.canvases.Synthesize)
				r.Get("/artifacts", rt.canvases.ListArtifacts)
				r.Get("/stats", rt.canvases.GetStats)
				if rt.options.Stream != nil {
					r.Get("/stream", rt.options.Stream)
				}

				r.Route("/nodes/{nodeID}", func(r chi.Router) {
					r.Post("/answer", rt.nodes.AnswerFollowUp)
					r.Post("/expand", rt.nodes.ExpandNode)
					r.Post("/topics", rt.nodes.ExploreTopic)
					r.Post("/inputs", rt.nodes.CreateCustomInput)
					r.Post("/submit", rt.nodes.SubmitCustomInput)
					r.Get("/context", rt.nodes.GetContext)
					r.Get("/resources/{kind}", rt.nodes.ListResources)
					r.Put("/resources/{kind}", rt.nodes.PutResource)
				})
			})
		})

		r.Get("/operations/{operationID}", rt.operations.GetOperationStatus)
	})

	return router
}

// healthCheck handles health check requests
func (rt *Router) healthCheck(w http.ResponseWriter, req *http.Request) {
	api.Success(w, http.StatusOK, api.HealthResponse{Status: "healthy", Sessions: rt.sessions.Len()})
}

// readinessCheck reports ready once the router is serving; the stores are
// reached lazily on first use
func (rt *Router) readinessCheck(w http.ResponseWriter, req *http.Request) {
	api.Success(w, http.StatusOK, api.HealthResponse{Status: "ready", Sessions: rt.sessions.Len()})
}
