package generation

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func newGeminiServer(t *testing.T, finishReason, text string) *httptest.Server {
	t.Helper()
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.True(t, strings.HasSuffix(r.URL.Path, "models/gemini-test:generateContent"), r.URL.Path)

		var body map[string]interface{}
		assert.NoError(t, json.NewDecoder(r.Body).Decode(&body))
		config, _ := body["generationConfig"].(map[string]interface{})
		assert.Equal(t, "application/json", config["responseMimeType"])

		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(map[string]interface{}{
			"candidates": []map[string]interface{}{{
				"finishReason": finishReason,
				"content": map[string]interface{}{
					"role":  "model",
					"parts": []map[string]string{{"text": text}},
				},
			}},
		})
	}))
	t.Cleanup(server.Close)
	return server
}

func TestGeminiCompleter_Topic(t *testing.T) {
	server := newGeminiServer(t, "STOP", `{"explanation":"Typed conduits."}`)

	completer, err := NewGeminiCompleter(context.Background(), GeminiConfig{
		APIKey:     "test-key",
		Model:      "gemini-test",
		BaseURL:    server.URL + "/",
		HTTPClient: server.Client(),
	}, zap.NewNop())
	require.NoError(t, err)

	explanation, err := NewService(completer, zap.NewNop()).Topic(context.Background(), "channels", nil)
	require.NoError(t, err)
	assert.Equal(t, "Typed conduits.", explanation.Explanation)
}

func TestGeminiCompleter_BlockedReply(t *testing.T) {
	server := newGeminiServer(t, "SAFETY", "")

	completer, err := NewGeminiCompleter(context.Background(), GeminiConfig{
		APIKey:     "test-key",
		Model:      "gemini-test",
		BaseURL:    server.URL + "/",
		HTTPClient: server.Client(),
	}, zap.NewNop())
	require.NoError(t, err)

	_, err = completer.Complete(context.Background(), "s", "u")
	assert.Error(t, err)
}

func TestGeminiCompleter_RequiresKey(t *testing.T) {
	_, err := NewGeminiCompleter(context.Background(), GeminiConfig{}, nil)
	assert.Error(t, err)
}
