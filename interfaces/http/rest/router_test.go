package rest

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"canvas-backend/application/ports"
	"canvas-backend/application/services"
	domainservices "canvas-backend/domain/services"
	"canvas-backend/infrastructure/generation"
	"canvas-backend/infrastructure/persistence/memory"
	"canvas-backend/interfaces/http/rest/handlers"
	"canvas-backend/pkg/api"
	pkgerrors "canvas-backend/pkg/errors"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

type recordedRequest struct {
	method, route string
	status        int
}

type fakeRecorder struct {
	mu       sync.Mutex
	requests []recordedRequest
}

func (f *fakeRecorder) RecordHTTPRequest(method, route string, status int, _ time.Duration) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.requests = append(f.requests, recordedRequest{method, route, status})
}

type testServer struct {
	handler  http.Handler
	repo     *memory.CanvasRepository
	runner   *services.OperationRunner
	recorder *fakeRecorder
}

func newTestServer(t *testing.T) *testServer {
	t.Helper()
	logger := zap.NewNop()

	repo := memory.NewCanvasRepository()
	layout := domainservices.NewLayoutEngine(domainservices.DefaultLayoutConfig(), logger)
	orchestrator := services.NewOrchestrator(layout, generation.NewStaticService(2), repo, nil, logger)
	sessions := services.NewSessionManager(repo, logger, services.SessionHooks{})
	runner := services.NewOperationRunner(memory.NewInMemoryOperationStore(time.Hour), 4, time.Minute, logger)
	errorHandler := pkgerrors.NewErrorHandler(logger, false)
	recorder := &fakeRecorder{}

	router := NewRouter(
		handlers.NewCanvasHandler(sessions, orchestrator, runner, repo, errorHandler, logger),
		handlers.NewNodeHandler(sessions, orchestrator, runner, repo, errorHandler, logger),
		handlers.NewOperationHandler(runner, errorHandler, logger),
		sessions,
		logger,
		Options{EnableCORS: true, Metrics: recorder},
	)
	return &testServer{handler: router.Setup(), repo: repo, runner: runner, recorder: recorder}
}

func (s *testServer) do(t *testing.T, method, path string, body interface{}) *httptest.ResponseRecorder {
	t.Helper()
	var reader *bytes.Reader
	if body != nil {
		raw, err := json.Marshal(body)
		require.NoError(t, err)
		reader = bytes.NewReader(raw)
	} else {
		reader = bytes.NewReader(nil)
	}
	req := httptest.NewRequest(method, path, reader)
	req.Header.Set("Content-Type", "application/json")
	rec := httptest.NewRecorder()
	s.handler.ServeHTTP(rec, req)
	return rec
}

func decode[T any](t *testing.T, rec *httptest.ResponseRecorder) T {
	t.Helper()
	var v T
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &v), rec.Body.String())
	return v
}

type nodeView struct {
	ID    string `json:"id"`
	Kind  string `json:"kind"`
	State string `json:"state"`
}

type expansionView struct {
	NodeID   string     `json:"nodeId"`
	Children []nodeView `json:"children"`
	Skipped  bool       `json:"skipped"`
}

type canvasView struct {
	ID        string     `json:"id"`
	Title     string     `json:"title"`
	Nodes     []nodeView `json:"nodes"`
	Generated []string   `json:"generated"`
}

func (s *testServer) createCanvas(t *testing.T) string {
	t.Helper()
	rec := s.do(t, http.MethodPost, "/api/v1/canvases", api.CreateCanvasRequest{Title: "Physics"})
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	return decode[canvasView](t, rec).ID
}

func TestRouter_Health(t *testing.T) {
	srv := newTestServer(t)

	for _, path := range []string{"/health", "/ready"} {
		rec := srv.do(t, http.MethodGet, path, nil)
		assert.Equal(t, http.StatusOK, rec.Code, path)
		assert.NotEmpty(t, rec.Header().Get("X-Request-ID"))
	}
}

func TestRouter_OpenAPI(t *testing.T) {
	srv := newTestServer(t)

	req := httptest.NewRequest(http.MethodGet, "/api/openapi", nil)
	req.Header.Set("Accept", "application/json")
	rec := httptest.NewRecorder()
	srv.handler.ServeHTTP(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)
	doc := decode[map[string]interface{}](t, rec)
	assert.Equal(t, "3.0.3", doc["openapi"])
	assert.Contains(t, doc["paths"], "/api/v1/canvases/{canvasID}/ask")
}

func TestRouter_CanvasLifecycle(t *testing.T) {
	srv := newTestServer(t)
	id := srv.createCanvas(t)

	rec := srv.do(t, http.MethodGet, "/api/v1/canvases/"+id, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	canvas := decode[canvasView](t, rec)
	assert.Equal(t, "Physics", canvas.Title)
	assert.Empty(t, canvas.Nodes)
	assert.NotNil(t, canvas.Generated)

	rec = srv.do(t, http.MethodPost, "/api/v1/canvases/"+id+"/ask", api.AskRequest{Question: "What is entropy?"})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	result := decode[expansionView](t, rec)
	assert.Len(t, result.Children, 2)

	rec = srv.do(t, http.MethodGet, "/api/v1/canvases/"+id+"/stats", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	stats := decode[domainservices.CanvasStats](t, rec)
	assert.Equal(t, 3, stats.NodeCount)
	assert.Equal(t, 1, stats.MaxDepth)
	assert.Equal(t, 2, stats.Pending)

	rec = srv.do(t, http.MethodPost, "/api/v1/canvases/"+id+"/save", nil)
	require.Equal(t, http.StatusNoContent, rec.Code)

	stored, err := srv.repo.LoadCanvas(context.Background(), id)
	require.NoError(t, err)
	assert.Len(t, stored.Nodes, 3)

	rec = srv.do(t, http.MethodGet, "/api/v1/canvases", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	summaries := decode[[]ports.CanvasSummary](t, rec)
	require.Len(t, summaries, 1)
	assert.Equal(t, 3, summaries[0].NodeCount)

	rec = srv.do(t, http.MethodPost, "/api/v1/canvases/"+id+"/reset", nil)
	require.Equal(t, http.StatusNoContent, rec.Code)
	canvas = decode[canvasView](t, srv.do(t, http.MethodGet, "/api/v1/canvases/"+id, nil))
	assert.Empty(t, canvas.Nodes)

	rec = srv.do(t, http.MethodDelete, "/api/v1/canvases/"+id, nil)
	require.Equal(t, http.StatusNoContent, rec.Code)
	rec = srv.do(t, http.MethodGet, "/api/v1/canvases/"+id, nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestRouter_NodeOperations(t *testing.T) {
	srv := newTestServer(t)
	id := srv.createCanvas(t)
	base := "/api/v1/canvases/" + id

	root := decode[expansionView](t, srv.do(t, http.MethodPost, base+"/ask", api.AskRequest{Question: "What is entropy?"}))
	require.Len(t, root.Children, 2)
	child := root.Children[0].ID

	rec := srv.do(t, http.MethodPost, base+"/nodes/"+child+"/answer", nil)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	answered := decode[expansionView](t, rec)
	assert.False(t, answered.Skipped)
	assert.Len(t, answered.Children, 2)

	rec = srv.do(t, http.MethodPost, base+"/nodes/"+child+"/answer", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.True(t, decode[expansionView](t, rec).Skipped, "a node generates at most once")

	rec = srv.do(t, http.MethodPost, base+"/nodes/"+child+"/topics", api.TopicRequest{Term: "heat death"})
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())

	rec = srv.do(t, http.MethodPost, base+"/nodes/"+root.NodeID+"/inputs", nil)
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	input := decode[nodeView](t, rec)
	assert.Equal(t, "input", input.State)

	rec = srv.do(t, http.MethodPost, base+"/nodes/"+input.ID+"/submit", api.SubmitInputRequest{Question: "Is entropy reversible?"})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	assert.Len(t, decode[expansionView](t, rec).Children, 2)

	rec = srv.do(t, http.MethodGet, base+"/nodes/"+child+"/context", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	ctxView := decode[api.ContextResponse](t, rec)
	assert.Equal(t, []string{root.NodeID, child}, ctxView.Path)
	assert.Len(t, ctxView.Context, 2)

	rec = srv.do(t, http.MethodPost, base+"/synthesize", api.SynthesizeRequest{NodeIDs: []string{child}, Prompt: "Summarize"})
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	rec = srv.do(t, http.MethodGet, base+"/artifacts", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Len(t, decode[[]ports.Artifact](t, rec), 1)
}

func TestRouter_ExpandNode(t *testing.T) {
	srv := newTestServer(t)
	id := srv.createCanvas(t)
	base := "/api/v1/canvases/" + id

	root := decode[expansionView](t, srv.do(t, http.MethodPost, base+"/ask", api.AskRequest{Question: "Why?"}))

	// the root was expanded by ask
	rec := srv.do(t, http.MethodPost, base+"/nodes/"+root.NodeID+"/expand", api.ExpandRequest{FollowUps: []string{"More?"}})
	require.Equal(t, http.StatusOK, rec.Code)
	assert.True(t, decode[expansionView](t, rec).Skipped)

	// an unanswered follow-up cannot be expanded
	rec = srv.do(t, http.MethodPost, base+"/nodes/"+root.Children[0].ID+"/expand", api.ExpandRequest{FollowUps: []string{"More?"}})
	assert.Equal(t, http.StatusConflict, rec.Code)
}

func TestRouter_Resources(t *testing.T) {
	srv := newTestServer(t)
	id := srv.createCanvas(t)
	base := "/api/v1/canvases/" + id

	root := decode[expansionView](t, srv.do(t, http.MethodPost, base+"/ask", api.AskRequest{Question: "Why?"}))
	resources := base + "/nodes/" + root.NodeID + "/resources/"

	for i, value := range []string{"first", "second"} {
		rec := srv.do(t, http.MethodPut, resources+"source", api.PutResourceRequest{Index: i, Value: value})
		require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	}

	rec := srv.do(t, http.MethodGet, resources+"source", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	listed := decode[[]ports.NodeResource](t, rec)
	require.Len(t, listed, 2)
	assert.Equal(t, "first", listed[0].Value)

	rec = srv.do(t, http.MethodGet, resources+"bogus", nil)
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = srv.do(t, http.MethodPut, base+"/nodes/missing/resources/source", api.PutResourceRequest{Value: "x"})
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestRouter_AsyncOperation(t *testing.T) {
	srv := newTestServer(t)
	id := srv.createCanvas(t)

	rec := srv.do(t, http.MethodPost, "/api/v1/canvases/"+id+"/ask?async=true", api.AskRequest{Question: "What is entropy?"})
	require.Equal(t, http.StatusAccepted, rec.Code, rec.Body.String())
	accepted := decode[api.OperationAccepted](t, rec)
	assert.Equal(t, string(ports.OperationStatusPending), accepted.Status)
	assert.Equal(t, accepted.StatusURL, rec.Header().Get("Location"))

	srv.runner.Wait()

	rec = srv.do(t, http.MethodGet, accepted.StatusURL, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	op := decode[ports.OperationResult](t, rec)
	assert.Equal(t, ports.OperationStatusCompleted, op.Status)
	assert.Equal(t, services.OpQuery, op.Kind)

	rec = srv.do(t, http.MethodGet, "/api/v1/operations/unknown", nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestRouter_Errors(t *testing.T) {
	srv := newTestServer(t)
	id := srv.createCanvas(t)

	tests := []struct {
		name   string
		method string
		path   string
		body   interface{}
		status int
		errTyp string
	}{
		{"unknown canvas", http.MethodGet, "/api/v1/canvases/nope", nil, http.StatusNotFound, "NOT_FOUND"},
		{"missing question", http.MethodPost, "/api/v1/canvases/" + id + "/ask", map[string]string{}, http.StatusBadRequest, "VALIDATION"},
		{"unknown field", http.MethodPost, "/api/v1/canvases/" + id + "/ask", map[string]string{"q": "x"}, http.StatusBadRequest, "VALIDATION"},
		{"unknown node", http.MethodPost, "/api/v1/canvases/" + id + "/nodes/nope/answer", nil, http.StatusNotFound, "NOT_FOUND"},
		{"empty selection", http.MethodPost, "/api/v1/canvases/" + id + "/synthesize", api.SynthesizeRequest{}, http.StatusBadRequest, "VALIDATION"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := srv.do(t, tt.method, tt.path, tt.body)
			require.Equal(t, tt.status, rec.Code, rec.Body.String())
			resp := decode[pkgerrors.ErrorResponse](t, rec)
			assert.True(t, resp.Error)
			assert.Equal(t, tt.errTyp, resp.Type)
			assert.NotEmpty(t, resp.RequestID)
		})
	}
}

func TestRouter_RecordsRoutePatterns(t *testing.T) {
	srv := newTestServer(t)
	id := srv.createCanvas(t)
	srv.do(t, http.MethodGet, "/api/v1/canvases/"+id, nil)
	srv.do(t, http.MethodGet, "/nowhere", nil)

	srv.recorder.mu.Lock()
	defer srv.recorder.mu.Unlock()
	require.Len(t, srv.recorder.requests, 3)
	assert.Equal(t, http.MethodPost, srv.recorder.requests[0].method)
	assert.Equal(t, http.StatusCreated, srv.recorder.requests[0].status)
	assert.True(t, strings.HasPrefix(srv.recorder.requests[0].route, "/api/v1/canvases"))
	assert.Contains(t, srv.recorder.requests[1].route, "{canvasID}")
	assert.NotContains(t, srv.recorder.requests[1].route, id, "IDs never become label values")
	assert.Equal(t, http.StatusNotFound, srv.recorder.requests[2].status)
}
