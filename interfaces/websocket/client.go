package websocket

import (
	"bytes"
	"encoding/json"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"go.uber.org/zap"
)

const (
	// Time allowed to write a message to the peer
	writeWait = 10 * time.Second

	// Time allowed to read the next pong message from the peer
	pongWait = 60 * time.Second

	// Send pings to peer with this period (must be less than pongWait)
	pingPeriod = (pongWait * 9) / 10

	// Clients only send pongs and small control messages
	maxMessageSize = 4 * 1024

	sendBufferSize = 256
)

// Client is one stream connection subscribed to a canvas
type Client struct {
	id       string
	canvasID string
	hub      *Hub
	conn     *websocket.Conn
	send     chan []byte
	logger   *zap.Logger
}

// NewClient creates a client for conn subscribed to canvasID
func NewClient(canvasID string, hub *Hub, conn *websocket.Conn, logger *zap.Logger) *Client {
	id := uuid.New().String()
	return &Client{
		id:       id,
		canvasID: canvasID,
		hub:      hub,
		conn:     conn,
		send:     make(chan []byte, sendBufferSize),
		logger: logger.With(
			zap.String("canvasID", canvasID),
			zap.String("connectionID", id),
		),
	}
}

// Start queues the initial messages, registers with the hub and starts the
// read and write pumps
func (c *Client) Start(initial ...[]byte) {
	c.queue(c.connectionEstablished())
	for _, msg := range initial {
		c.queue(msg)
	}

	c.hub.register <- c

	go c.writePump()
	go c.readPump()
}

// readPump discards client messages and detects disconnects
func (c *Client) readPump() {
	defer func() {
		select {
		case c.hub.unregister <- c:
		case <-c.hub.ctx.Done():
		}
		c.conn.Close()
		c.logger.Debug("Read pump stopped")
	}()

	c.conn.SetReadLimit(maxMessageSize)
	_ = c.conn.SetReadDeadline(time.Now().Add(pongWait))
	c.conn.SetPongHandler(func(string) error {
		return c.conn.SetReadDeadline(time.Now().Add(pongWait))
	})

	for {
		messageType, message, err := c.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure) {
				c.logger.Warn("Stream read error", zap.Error(err))
			}
			return
		}
		if messageType == websocket.TextMessage {
			c.logger.Debug("Ignoring client message", zap.ByteString("message", bytes.TrimSpace(message)))
		}
	}
}

// writePump pumps messages from the hub to the connection
func (c *Client) writePump() {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		c.conn.Close()
		c.logger.Debug("Write pump stopped")
	}()

	for {
		select {
		case message, ok := <-c.send:
			_ = c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if !ok {
				// The hub closed the channel
				_ = c.conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}
			if err := c.conn.WriteMessage(websocket.TextMessage, message); err != nil {
				c.logger.Warn("Failed to write message", zap.Error(err))
				return
			}

		case <-ticker.C:
			_ = c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				c.logger.Debug("Failed to send ping", zap.Error(err))
				return
			}
		}
	}
}

func (c *Client) queue(message []byte) {
	if message == nil {
		return
	}
	select {
	case c.send <- message:
	default:
		c.logger.Warn("Send buffer full before start, message dropped")
	}
}

func (c *Client) connectionEstablished() []byte {
	data, err := json.Marshal(BroadcastMessage{
		CanvasID:  c.canvasID,
		Type:      TypeConnectionEstablished,
		Data:      json.RawMessage(`{"connectionId":"` + c.id + `"}`),
		Timestamp: time.Now().Unix(),
	})
	if err != nil {
		return nil
	}
	return data
}

// GetID returns the client's connection ID
func (c *Client) GetID() string {
	return c.id
}
