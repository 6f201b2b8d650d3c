package websocket

import (
	"context"
	"encoding/json"
	"net/http"
	"time"

	"canvas-backend/application/services"
	"canvas-backend/domain/core/entities"
	pkgerrors "canvas-backend/pkg/errors"

	"github.com/go-chi/chi/v5"
	"github.com/gorilla/websocket"
	"go.uber.org/zap"
)

// SessionSource resolves a canvas ID to its live session
type SessionSource interface {
	Get(ctx context.Context, canvasID string) (*services.Session, error)
}

// ServerConfig holds stream server configuration
type ServerConfig struct {
	ReadBufferSize  int
	WriteBufferSize int
	// AllowedOrigins restricts browser origins; empty or "*" allows any
	AllowedOrigins []string
	// MaxConnectionsPerCanvas caps concurrent subscribers of one canvas
	MaxConnectionsPerCanvas int
}

// DefaultServerConfig returns the default stream server configuration
func DefaultServerConfig() ServerConfig {
	return ServerConfig{
		ReadBufferSize:          1024,
		WriteBufferSize:         4096,
		MaxConnectionsPerCanvas: 32,
	}
}

// Server upgrades canvas stream requests and registers them with the hub
type Server struct {
	hub          *Hub
	sessions     SessionSource
	upgrader     websocket.Upgrader
	maxPerCanvas int
	errorHandler *pkgerrors.ErrorHandler
	logger       *zap.Logger
}

// snapshotData is the payload of the first message on every stream
type snapshotData struct {
	Epoch uint64          `json:"epoch"`
	Nodes []entities.Node `json:"nodes"`
	Edges []entities.Edge `json:"edges"`
}

// NewServer creates a new stream server
func NewServer(hub *Hub, sessions SessionSource, config ServerConfig, errorHandler *pkgerrors.ErrorHandler, logger *zap.Logger) *Server {
	if logger == nil {
		logger = zap.NewNop()
	}
	if config.MaxConnectionsPerCanvas < 1 {
		config.MaxConnectionsPerCanvas = DefaultServerConfig().MaxConnectionsPerCanvas
	}

	return &Server{
		hub:      hub,
		sessions: sessions,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  config.ReadBufferSize,
			WriteBufferSize: config.WriteBufferSize,
			CheckOrigin:     originChecker(config.AllowedOrigins),
		},
		maxPerCanvas: config.MaxConnectionsPerCanvas,
		errorHandler: errorHandler,
		logger:       logger,
	}
}

// HandleStream serves GET /api/v1/canvases/{canvasID}/stream. The first
// message is a canvas.snapshot, followed by every domain event of the canvas.
func (s *Server) HandleStream(w http.ResponseWriter, r *http.Request) {
	canvasID := chi.URLParam(r, "canvasID")
	session, err := s.sessions.Get(r.Context(), canvasID)
	if err != nil {
		s.errorHandler.Handle(w, r, err)
		return
	}

	if s.hub.GetConnectionCount(canvasID) >= s.maxPerCanvas {
		s.logger.Warn("Connection limit exceeded for canvas",
			zap.String("canvasID", canvasID),
			zap.Int("limit", s.maxPerCanvas),
		)
		s.errorHandler.Handle(w, r, pkgerrors.NewRateLimitError("too many stream connections for this canvas"))
		return
	}

	conn, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		// the upgrader has already written the error response
		s.logger.Warn("Failed to upgrade connection",
			zap.String("remoteAddr", r.RemoteAddr),
			zap.Error(err),
		)
		return
	}

	client := NewClient(canvasID, s.hub, conn, s.logger)
	client.Start(snapshotMessage(session))

	s.logger.Info("Stream connection established",
		zap.String("canvasID", canvasID),
		zap.String("connectionID", client.GetID()),
		zap.String("remoteAddr", r.RemoteAddr),
	)
}

// GetHub returns the stream hub
func (s *Server) GetHub() *Hub {
	return s.hub
}

func snapshotMessage(session *services.Session) []byte {
	snap := session.Snapshot()
	data, err := json.Marshal(snapshotData{Epoch: snap.Epoch, Nodes: snap.Nodes, Edges: snap.Edges})
	if err != nil {
		return nil
	}
	msg, err := json.Marshal(BroadcastMessage{
		CanvasID:  session.ID,
		Type:      TypeSnapshot,
		Data:      data,
		Timestamp: time.Now().Unix(),
	})
	if err != nil {
		return nil
	}
	return msg
}

func originChecker(allowed []string) func(r *http.Request) bool {
	set := make(map[string]bool, len(allowed))
	for _, origin := range allowed {
		if origin == "*" {
			return func(*http.Request) bool { return true }
		}
		set[origin] = true
	}
	if len(set) == 0 {
		return func(*http.Request) bool { return true }
	}
	return func(r *http.Request) bool {
		origin := r.Header.Get("Origin")
		return origin == "" || set[origin]
	}
}
