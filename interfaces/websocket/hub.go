package websocket

import (
	"context"
	"encoding/json"
	"sync"
	"time"

	"go.uber.org/zap"
)

// Hub maintains active stream connections grouped by canvas and fans canvas
// events out to them
type Hub struct {
	// canvasID -> set of clients
	connections map[string]map[*Client]bool
	mu          sync.RWMutex

	register   chan *Client
	unregister chan *Client
	broadcast  chan *BroadcastMessage

	ctx    context.Context
	cancel context.CancelFunc
	done   chan struct{}
	logger *zap.Logger

	metrics *HubMetrics
}

// HubMetrics tracks stream metrics
type HubMetrics struct {
	ActiveConnections int64
	MessagesSent      int64
	MessagesDropped   int64
	mu                sync.RWMutex
}

// BroadcastMessage is one event addressed to every subscriber of a canvas
type BroadcastMessage struct {
	CanvasID  string          `json:"canvasId"`
	Type      string          `json:"type"`
	Data      json.RawMessage `json:"data"`
	Timestamp int64           `json:"timestamp"`
}

// NewHub creates a new hub; call Run to start it
func NewHub(logger *zap.Logger) *Hub {
	if logger == nil {
		logger = zap.NewNop()
	}
	ctx, cancel := context.WithCancel(context.Background())

	return &Hub{
		connections: make(map[string]map[*Client]bool),
		register:    make(chan *Client, 100),
		unregister:  make(chan *Client, 100),
		broadcast:   make(chan *BroadcastMessage, 1000),
		ctx:         ctx,
		cancel:      cancel,
		done:        make(chan struct{}),
		logger:      logger,
		metrics:     &HubMetrics{},
	}
}

// Run is the hub's event loop. It returns after Stop.
func (h *Hub) Run() {
	defer close(h.done)

	ticker := time.NewTicker(30 * time.Second)
	defer ticker.Stop()

	for {
		select {
		case <-h.ctx.Done():
			h.logger.Info("Hub shutting down")
			h.closeAllConnections()
			return

		case client := <-h.register:
			h.registerClient(client)

		case client := <-h.unregister:
			h.unregisterClient(client)

		case message := <-h.broadcast:
			h.broadcastToCanvas(message)

		case <-ticker.C:
			h.logger.Debug("Stream hub status",
				zap.Int("canvases", h.canvasCount()),
				zap.Int64("connections", h.GetMetrics().ActiveConnections),
			)
		}
	}
}

// Stop shuts the hub down and waits for Run to close every connection
func (h *Hub) Stop() {
	h.cancel()
	<-h.done
}

// SendToCanvas queues data for every subscriber of canvasID. The message is
// dropped when the hub is saturated.
func (h *Hub) SendToCanvas(canvasID, messageType string, data interface{}) error {
	jsonData, err := json.Marshal(data)
	if err != nil {
		return err
	}

	message := &BroadcastMessage{
		CanvasID:  canvasID,
		Type:      messageType,
		Data:      jsonData,
		Timestamp: time.Now().Unix(),
	}

	select {
	case h.broadcast <- message:
		return nil
	default:
		h.countDropped(1)
		return ErrHubSaturated
	}
}

func (h *Hub) registerClient(client *Client) {
	h.mu.Lock()
	defer h.mu.Unlock()

	if h.connections[client.canvasID] == nil {
		h.connections[client.canvasID] = make(map[*Client]bool)
	}
	h.connections[client.canvasID][client] = true

	h.metrics.mu.Lock()
	h.metrics.ActiveConnections++
	h.metrics.mu.Unlock()

	h.logger.Info("Client registered",
		zap.String("canvasID", client.canvasID),
		zap.String("connectionID", client.id),
		zap.Int("canvasConnections", len(h.connections[client.canvasID])),
	)
}

func (h *Hub) unregisterClient(client *Client) {
	h.mu.Lock()
	defer h.mu.Unlock()

	clients, ok := h.connections[client.canvasID]
	if !ok {
		return
	}
	if _, ok := clients[client]; !ok {
		return
	}

	delete(clients, client)
	close(client.send)
	if len(clients) == 0 {
		delete(h.connections, client.canvasID)
	}

	h.metrics.mu.Lock()
	h.metrics.ActiveConnections--
	h.metrics.mu.Unlock()

	h.logger.Info("Client unregistered",
		zap.String("canvasID", client.canvasID),
		zap.String("connectionID", client.id),
		zap.Int("remainingConnections", len(clients)),
	)
}

func (h *Hub) broadcastToCanvas(message *BroadcastMessage) {
	h.mu.RLock()
	defer h.mu.RUnlock()

	clients := h.connections[message.CanvasID]
	if len(clients) == 0 {
		return
	}

	// Marshal once for all clients
	data, err := json.Marshal(message)
	if err != nil {
		h.logger.Error("Failed to marshal broadcast message",
			zap.String("messageType", message.Type),
			zap.Error(err),
		)
		return
	}

	sent, dropped := 0, 0
	for client := range clients {
		select {
		case client.send <- data:
			sent++
		default:
			// slow consumer: disconnect, the client reloads the canvas on reconnect
			dropped++
			h.logger.Warn("Closing slow client",
				zap.String("canvasID", client.canvasID),
				zap.String("connectionID", client.id),
			)
			go h.evict(client)
		}
	}

	h.metrics.mu.Lock()
	h.metrics.MessagesSent += int64(sent)
	h.metrics.MessagesDropped += int64(dropped)
	h.metrics.mu.Unlock()
}

// evict hands a client back to Run for removal and closes its socket. After
// Stop, Run no longer drains unregister and closeAllConnections owns cleanup.
func (h *Hub) evict(c *Client) {
	select {
	case h.unregister <- c:
	case <-h.ctx.Done():
	}
	c.conn.Close()
}

func (h *Hub) closeAllConnections() {
	h.mu.Lock()
	defer h.mu.Unlock()

	for canvasID, clients := range h.connections {
		for client := range clients {
			close(client.send)
			client.conn.Close()
		}
		delete(h.connections, canvasID)
	}
	h.metrics.mu.Lock()
	h.metrics.ActiveConnections = 0
	h.metrics.mu.Unlock()
}

func (h *Hub) countDropped(n int64) {
	h.metrics.mu.Lock()
	h.metrics.MessagesDropped += n
	h.metrics.mu.Unlock()
}

func (h *Hub) canvasCount() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.connections)
}

// GetMetrics returns a copy of the current hub metrics
func (h *Hub) GetMetrics() HubMetrics {
	h.metrics.mu.RLock()
	defer h.metrics.mu.RUnlock()
	return HubMetrics{
		ActiveConnections: h.metrics.ActiveConnections,
		MessagesSent:      h.metrics.MessagesSent,
		MessagesDropped:   h.metrics.MessagesDropped,
	}
}

// GetConnectionCount returns the number of active connections for a canvas
func (h *Hub) GetConnectionCount(canvasID string) int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.connections[canvasID])
}
