package generation

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func newOpenAIServer(t *testing.T, status int, content string) (*httptest.Server, *map[string]interface{}) {
	t.Helper()
	received := map[string]interface{}{}

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/v1/chat/completions", r.URL.Path)
		assert.Equal(t, "Bearer test-key", r.Header.Get("Authorization"))
		assert.NoError(t, json.NewDecoder(r.Body).Decode(&received))

		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(status)
		if status != http.StatusOK {
			_, _ = w.Write([]byte(`{"error":{"message":"rate limited","type":"rate_limit","code":"rate_limit_exceeded"}}`))
			return
		}
		_ = json.NewEncoder(w).Encode(map[string]interface{}{
			"id":     "chatcmpl-1",
			"object": "chat.completion",
			"model":  "gpt-4o-mini",
			"choices": []map[string]interface{}{{
				"index":         0,
				"finish_reason": "stop",
				"message":       map[string]string{"role": "assistant", "content": content},
			}},
			"usage": map[string]int{"prompt_tokens": 10, "completion_tokens": 5, "total_tokens": 15},
		})
	}))
	t.Cleanup(server.Close)
	return server, &received
}

func TestOpenAICompleter_JSONMode(t *testing.T) {
	server, received := newOpenAIServer(t, http.StatusOK, `{"answer":"Go is a language.","followUps":["Who made it?"]}`)

	completer, err := NewOpenAICompleter(OpenAIConfig{APIKey: "test-key", BaseURL: server.URL + "/v1"}, zap.NewNop())
	require.NoError(t, err)
	svc := NewService(completer, zap.NewNop())

	answer, err := svc.Query(context.Background(), "What is Go?")
	require.NoError(t, err)
	assert.Equal(t, "Go is a language.", answer.Answer)
	assert.Equal(t, []string{"Who made it?"}, answer.FollowUps)

	body := *received
	assert.Equal(t, "gpt-4o-mini", body["model"])
	assert.Equal(t, map[string]interface{}{"type": "json_object"}, body["response_format"])
	messages := body["messages"].([]interface{})
	require.Len(t, messages, 2)
	assert.Equal(t, "system", messages[0].(map[string]interface{})["role"])
	assert.Equal(t, "Question: What is Go?", messages[1].(map[string]interface{})["content"])
}

func TestOpenAICompleter_APIError(t *testing.T) {
	server, _ := newOpenAIServer(t, http.StatusTooManyRequests, "")

	completer, err := NewOpenAICompleter(OpenAIConfig{APIKey: "test-key", BaseURL: server.URL + "/v1"}, zap.NewNop())
	require.NoError(t, err)

	_, err = completer.Complete(context.Background(), "s", "u")
	assert.Error(t, err)
}

func TestOpenAICompleter_RequiresKey(t *testing.T) {
	_, err := NewOpenAICompleter(OpenAIConfig{}, nil)
	assert.Error(t, err)
}
