package completion

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/ollama/ollama/api"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ent0n29/mugate/internal/reliability"
)

func TestOllamaClientComplete(t *testing.T) {
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/api/generate", r.URL.Path)
		var req api.GenerateRequest
		require.NoError(t, json.NewDecoder(r.Body).Decode(&req))
		assert.Equal(t, "qwen2.5:14b-instruct", req.Model)
		require.NotNil(t, req.Stream)
		assert.False(t, *req.Stream)
		assert.Equal(t, 0.7, req.Options["temperature"])
		assert.Equal(t, 0.9, req.Options["top_p"])
		assert.Contains(t, req.Prompt, "User: hello")
		_, _ = w.Write([]byte(`{"model":"qwen2.5:14b-instruct","response":"hi there","done":true}` + "\n"))
	}))
	defer ts.Close()

	c := NewOllamaClient(ts.URL, "qwen2.5:14b-instruct", time.Second)
	reply, err := c.Complete(context.Background(), "User: hello\nMu:", DefaultParams())
	require.NoError(t, err)
	assert.Equal(t, "hi there", reply)
}

func TestOllamaClientStatusError(t *testing.T) {
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNotFound)
		_, _ = w.Write([]byte("{}\n"))
	}))
	defer ts.Close()

	_, err := NewOllamaClient(ts.URL, "missing", time.Second).Complete(context.Background(), "x", DefaultParams())
	require.Error(t, err)
	var statusErr *reliability.StatusError
	require.ErrorAs(t, err, &statusErr)
	assert.Equal(t, http.StatusNotFound, statusErr.Code)
	assert.Equal(t, "http_4xx", reliability.Classify(err))
}

func TestOllamaClientBodyError(t *testing.T) {
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{"error":"out of memory"}`))
	}))
	defer ts.Close()

	_, err := NewOllamaClient(ts.URL, "m", time.Second).Complete(context.Background(), "x", DefaultParams())
	assert.ErrorContains(t, err, "out of memory")
}

func TestOllamaClientUnreachable(t *testing.T) {
	ts := httptest.NewServer(http.NotFoundHandler())
	url := ts.URL
	ts.Close()

	_, err := NewOllamaClient(url, "m", time.Second).Complete(context.Background(), "x", DefaultParams())
	require.Error(t, err)
	assert.Equal(t, "unavailable", reliability.Classify(err))
}

func TestMockClientEchoesLastUserLine(t *testing.T) {
	reply, err := NewMockClient().Complete(context.Background(), "persona\nUser: old\nMu: x\n\nUser: hello\nMu:", DefaultParams())
	require.NoError(t, err)
	assert.Equal(t, "I heard you: hello", reply)
}

func TestNewClientProviders(t *testing.T) {
	_, err := NewClient(Config{Provider: "nope"})
	assert.Error(t, err)

	c, err := NewClient(Config{Provider: "mock"})
	require.NoError(t, err)
	assert.IsType(t, &MockClient{}, c)

	c, err = NewClient(Config{Provider: "openai", BaseURL: "http://localhost:11434/v1", Model: "qwen2.5"})
	require.NoError(t, err)
	assert.IsType(t, &OpenAIClient{}, c)
}

func TestOpenAIClientComplete(t *testing.T) {
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/v1/chat/completions", r.URL.Path)
		var body map[string]any
		require.NoError(t, json.NewDecoder(r.Body).Decode(&body))
		assert.Equal(t, "qwen2.5", body["model"])
		assert.Equal(t, 0.7, body["temperature"])
		msgs, _ := body["messages"].([]any)
		require.Len(t, msgs, 1)
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"id":"c1","object":"chat.completion","created":1,"model":"qwen2.5",
			"choices":[{"index":0,"finish_reason":"stop","message":{"role":"assistant","content":"hi there"}}]}`))
	}))
	defer ts.Close()

	c := NewOpenAIClient(ts.URL+"/v1", "test-key", "qwen2.5", time.Second)
	reply, err := c.Complete(context.Background(), "User: hello\nMu:", DefaultParams())
	require.NoError(t, err)
	assert.Equal(t, "hi there", reply)
}

func TestOpenAIClientServerError(t *testing.T) {
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusInternalServerError)
		_, _ = w.Write([]byte(`{"error":{"message":"boom","type":"server_error"}}`))
	}))
	defer ts.Close()

	_, err := NewOpenAIClient(ts.URL+"/v1", "test-key", "m", time.Second).Complete(context.Background(), "x", DefaultParams())
	require.Error(t, err)
	assert.Equal(t, "http_5xx", reliability.Classify(err))
}
