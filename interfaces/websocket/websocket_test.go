package websocket

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"canvas-backend/application/services"
	"canvas-backend/domain/events"
	pkgerrors "canvas-backend/pkg/errors"

	"github.com/go-chi/chi/v5"
	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

type fakeSessions map[string]*services.Session

func (f fakeSessions) Get(ctx context.Context, canvasID string) (*services.Session, error) {
	if s, ok := f[canvasID]; ok {
		return s, nil
	}
	return nil, pkgerrors.NewNotFoundError("canvas " + canvasID)
}

func startStream(t *testing.T, cfg ServerConfig) (*Hub, *httptest.Server) {
	t.Helper()
	hub := NewHub(zap.NewNop())
	go hub.Run()

	sessions := fakeSessions{"c1": services.NewSession("c1", "Entropy")}
	srv := NewServer(hub, sessions, cfg, pkgerrors.NewErrorHandler(zap.NewNop(), false), zap.NewNop())

	router := chi.NewRouter()
	router.Get("/canvases/{canvasID}/stream", srv.HandleStream)
	ts := httptest.NewServer(router)

	t.Cleanup(func() {
		ts.Close()
		hub.Stop()
	})
	return hub, ts
}

func streamURL(ts *httptest.Server, canvasID string) string {
	return "ws" + strings.TrimPrefix(ts.URL, "http") + "/canvases/" + canvasID + "/stream"
}

func readMessage(t *testing.T, conn *websocket.Conn) BroadcastMessage {
	t.Helper()
	require.NoError(t, conn.SetReadDeadline(time.Now().Add(2*time.Second)))
	var msg BroadcastMessage
	require.NoError(t, conn.ReadJSON(&msg))
	return msg
}

func TestStream_SnapshotThenEvents(t *testing.T) {
	hub, ts := startStream(t, DefaultServerConfig())

	conn, _, err := websocket.DefaultDialer.Dial(streamURL(ts, "c1"), nil)
	require.NoError(t, err)
	defer conn.Close()

	assert.Equal(t, TypeConnectionEstablished, readMessage(t, conn).Type)

	snapshot := readMessage(t, conn)
	assert.Equal(t, TypeSnapshot, snapshot.Type)
	assert.Equal(t, "c1", snapshot.CanvasID)
	var data snapshotData
	require.NoError(t, json.Unmarshal(snapshot.Data, &data))
	assert.Empty(t, data.Nodes)

	require.Eventually(t, func() bool { return hub.GetConnectionCount("c1") == 1 }, time.Second, 10*time.Millisecond)

	require.NoError(t, hub.Publish(context.Background(), events.NewNodeExpanded("other", "n0", nil)))
	require.NoError(t, hub.Publish(context.Background(), events.NewNodeExpanded("c1", "n1", []string{"a", "b"})))

	msg := readMessage(t, conn)
	assert.Equal(t, events.TypeNodeExpanded, msg.Type)
	assert.Equal(t, "c1", msg.CanvasID)
	var expanded events.NodeExpanded
	require.NoError(t, json.Unmarshal(msg.Data, &expanded))
	assert.Equal(t, "n1", expanded.NodeID)
	assert.Equal(t, 2, expanded.ChildCount)
}

func TestStream_UnknownCanvas(t *testing.T) {
	_, ts := startStream(t, DefaultServerConfig())

	resp, err := http.Get(ts.URL + "/canvases/missing/stream")
	require.NoError(t, err)
	defer resp.Body.Close()
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
}

func TestStream_ConnectionLimit(t *testing.T) {
	cfg := DefaultServerConfig()
	cfg.MaxConnectionsPerCanvas = 1
	hub, ts := startStream(t, cfg)

	first, _, err := websocket.DefaultDialer.Dial(streamURL(ts, "c1"), nil)
	require.NoError(t, err)
	defer first.Close()
	require.Eventually(t, func() bool { return hub.GetConnectionCount("c1") == 1 }, time.Second, 10*time.Millisecond)

	_, resp, err := websocket.DefaultDialer.Dial(streamURL(ts, "c1"), nil)
	require.ErrorIs(t, err, websocket.ErrBadHandshake)
	assert.Equal(t, http.StatusTooManyRequests, resp.StatusCode)
}

func TestStream_DisconnectUnregisters(t *testing.T) {
	hub, ts := startStream(t, DefaultServerConfig())

	conn, _, err := websocket.DefaultDialer.Dial(streamURL(ts, "c1"), nil)
	require.NoError(t, err)
	require.Eventually(t, func() bool { return hub.GetConnectionCount("c1") == 1 }, time.Second, 10*time.Millisecond)

	require.NoError(t, conn.Close())
	assert.Eventually(t, func() bool { return hub.GetConnectionCount("c1") == 0 }, 2*time.Second, 10*time.Millisecond)
	assert.Equal(t, int64(0), hub.GetMetrics().ActiveConnections)
}

func TestHub_EvictAfterStopDoesNotBlock(t *testing.T) {
	hub, ts := startStream(t, DefaultServerConfig())

	conn, _, err := websocket.DefaultDialer.Dial(streamURL(ts, "c1"), nil)
	require.NoError(t, err)
	defer conn.Close()
	require.Eventually(t, func() bool { return hub.GetConnectionCount("c1") == 1 }, time.Second, 10*time.Millisecond)

	hub.mu.RLock()
	var client *Client
	for c := range hub.connections["c1"] {
		client = c
	}
	hub.mu.RUnlock()
	require.NotNil(t, client)

	hub.Stop()
	for len(hub.unregister) < cap(hub.unregister) {
		hub.unregister <- &Client{canvasID: "filler"}
	}

	done := make(chan struct{})
	go func() {
		hub.evict(client)
		close(done)
	}()
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("evict blocked on a stopped hub")
	}
}

func TestHub_PublishWithoutSubscribersIsNoop(t *testing.T) {
	hub := NewHub(nil)
	assert.NoError(t, hub.Publish(context.Background(), events.NewCanvasReset("c1", 2)))
	assert.Empty(t, hub.broadcast)
}

func TestHub_SendToCanvasDropsWhenSaturated(t *testing.T) {
	hub := NewHub(nil)
	for i := 0; i < cap(hub.broadcast); i++ {
		require.NoError(t, hub.SendToCanvas("c1", "test", i))
	}

	assert.ErrorIs(t, hub.SendToCanvas("c1", "test", "overflow"), ErrHubSaturated)
	assert.Equal(t, int64(1), hub.GetMetrics().MessagesDropped)
}

func TestOriginChecker(t *testing.T) {
	tests := []struct {
		name    string
		allowed []string
		origin  string
		want    bool
	}{
		{"no list allows all", nil, "https://evil.example", true},
		{"wildcard allows all", []string{"*"}, "https://evil.example", true},
		{"listed origin", []string{"https://app.example"}, "https://app.example", true},
		{"unlisted origin", []string{"https://app.example"}, "https://evil.example", false},
		{"non-browser client", []string{"https://app.example"}, "", true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			r := httptest.NewRequest(http.MethodGet, "/", nil)
			if tt.origin != "" {
				r.Header.Set("Origin", tt.origin)
			}
			assert.Equal(t, tt.want, originChecker(tt.allowed)(r))
		})
	}
}
