package llm

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/pario-ai/gherkit/pkg/models"
)

func TestOpenAIClientComplete(t *testing.T) {
	var got map[string]any
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/v1/chat/completions", r.URL.Path)
		assert.Equal(t, "Bearer sk-test", r.Header.Get("Authorization"))
		require.NoError(t, json.NewDecoder(r.Body).Decode(&got))

		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{
  "id": "chatcmpl-1",
  "object": "chat.completion",
  "model": "gpt-4o",
  "choices": [{"index": 0, "message": {"role": "assistant", "content": "{\"action_plan\": []}"}, "finish_reason": "stop"}],
  "usage": {"prompt_tokens": 12, "completion_tokens": 5, "total_tokens": 17}
}`))
	}))
	defer srv.Close()

	c, err := NewOpenAIClient("sk-test", srv.URL+"/v1", 5*time.Second)
	require.NoError(t, err)

	resp, err := c.Complete(context.Background(), Request{
		Model:       "gpt-4o",
		Messages:    []Message{{Role: RoleSystem, Content: "Return JSON."}, {Role: RoleUser, Content: "plan"}},
		Temperature: 0.3,
		MaxTokens:   2000,
		JSON:        true,
	})
	require.NoError(t, err)
	assert.Equal(t, `{"action_plan": []}`, resp.Content)
	assert.Equal(t, 17, resp.Usage.TotalTokens)

	assert.Equal(t, "gpt-4o", got["model"])
	assert.Equal(t, map[string]any{"type": "json_object"}, got["response_format"])
	assert.Len(t, got["messages"], 2)
}

func TestOpenAIClientErrors(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusUnauthorized)
		_, _ = w.Write([]byte(`{"error": {"message": "Incorrect API key provided", "type": "invalid_request_error", "code": "invalid_api_key"}}`))
	}))
	defer srv.Close()

	c, err := NewOpenAIClient("sk-bad", srv.URL+"/v1", time.Second)
	require.NoError(t, err)

	_, err = c.Complete(context.Background(), Request{Model: "gpt-4o", Messages: []Message{{Role: RoleUser, Content: "hi"}}})
	var te *models.LLMTransportError
	require.ErrorAs(t, err, &te)
	assert.Equal(t, "gpt-4o", te.Model)

	_, err = NewOpenAIClient("", "", 0)
	assert.Error(t, err)
}
