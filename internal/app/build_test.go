package app

import (
	"context"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/ent0n29/mugate/internal/chat"
	"github.com/ent0n29/mugate/internal/config"
	"github.com/ent0n29/mugate/internal/embedding"
	"github.com/ent0n29/mugate/internal/observability"
	"github.com/ent0n29/mugate/internal/vectorstore"
)

func mockConfig() config.Config {
	return config.Config{
		MetricsNamespace:      "test",
		DefaultSessionID:      "default-user",
		HistoryWindow:         10,
		AssistantName:         "Mu",
		EmbedProvider:         "mock",
		CompletionProvider:    "mock",
		CompletionTemperature: 0.7,
		CompletionTopP:        0.9,
		VectorBackend:         "chromem",
		VectorTimeout:         time.Second,
		MemoryCollection:      "mu-memory",
		MemoryDim:             32,
		MemoryMetric:          "cosine",
		MemoryTopK:            15,
		PersistTimeout:        time.Second,
	}
}

func TestBuildWithMockBackends(t *testing.T) {
	metrics := observability.NewMetricsWith(prometheus.NewRegistry(), "test")
	res, err := Build(context.Background(), mockConfig(), metrics, nil)
	if err != nil {
		t.Fatalf("Build() error = %v", err)
	}
	t.Cleanup(func() {
		if err := res.Cleanup(); err != nil {
			t.Errorf("Cleanup() error = %v", err)
		}
	})

	ctx := context.Background()
	first, err := res.Pipeline.Handle(ctx, chat.Request{Message: "my favourite colour is teal", SessionID: "a"})
	if err != nil {
		t.Fatalf("Handle() error = %v", err)
	}
	if first.Reply != "I heard you: my favourite colour is teal" {
		t.Fatalf("reply = %q", first.Reply)
	}
	if got := len(res.History.Get("a")); got != 1 {
		t.Fatalf("history length = %d, want 1", got)
	}

	// A second session recalls the first session's stored turn.
	hits, err := res.Memory.Search(ctx, res.Backends.Collection, mustEmbed(t, "favourite colour"), 15, vectorstore.SearchParams{Exact: true})
	if err != nil {
		t.Fatalf("Search() error = %v", err)
	}
	if len(hits) != 1 || hits[0].SessionID != "a" {
		t.Fatalf("hits = %+v, want the stored turn from session a", hits)
	}
	if res.Backends.OllamaStarted != "" {
		t.Fatalf("OllamaStarted = %q, want empty with mock providers", res.Backends.OllamaStarted)
	}
}

func TestBuildRejectsUnknownProviders(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*config.Config)
	}{
		{name: "embedding", mutate: func(c *config.Config) { c.EmbedProvider = "nope" }},
		{name: "completion", mutate: func(c *config.Config) { c.CompletionProvider = "nope" }},
		{name: "vector", mutate: func(c *config.Config) { c.VectorBackend = "nope" }},
		{name: "metric", mutate: func(c *config.Config) { c.MemoryMetric = "manhattan" }},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := mockConfig()
			tt.mutate(&cfg)
			metrics := observability.NewMetricsWith(prometheus.NewRegistry(), "test")
			if _, err := Build(context.Background(), cfg, metrics, nil); err == nil {
				t.Fatalf("Build() error = nil, want error")
			}
		})
	}
}

func TestJanitorInterval(t *testing.T) {
	tests := []struct {
		ttl  time.Duration
		want time.Duration
	}{
		{ttl: 0, want: 0},
		{ttl: 2 * time.Second, want: time.Second},
		{ttl: 2 * time.Minute, want: 30 * time.Second},
		{ttl: time.Hour, want: time.Minute},
	}
	for _, tt := range tests {
		if got := JanitorInterval(tt.ttl); got != tt.want {
			t.Fatalf("JanitorInterval(%s) = %s, want %s", tt.ttl, got, tt.want)
		}
	}
}

func TestAutoStartOllamaSkips(t *testing.T) {
	cfg := mockConfig()
	cfg.OllamaAutoStart = true
	if cmd, _ := maybeAutoStartOllama(cfg); cmd != nil {
		t.Fatalf("started ollama for mock providers")
	}

	cfg.EmbedProvider = "ollama"
	cfg.OllamaURL = "http://gpu-box.internal:11434"
	if cmd, _ := maybeAutoStartOllama(cfg); cmd != nil {
		t.Fatalf("started ollama for a remote host")
	}

	cfg.OllamaURL = "http://127.0.0.1:11434"
	cfg.OllamaBin = "definitely-not-an-ollama-binary"
	if cmd, _ := maybeAutoStartOllama(cfg); cmd != nil {
		t.Fatalf("started a missing binary")
	}

	if err := stopProcessBestEffort(nil); err != nil {
		t.Fatalf("stopProcessBestEffort(nil) = %v", err)
	}
}

func mustEmbed(t *testing.T, text string) []float32 {
	t.Helper()
	r := embedding.NewMockClient(32).Embed(context.Background(), text)
	if !r.OK() {
		t.Fatalf("Embed(%q) error = %v", text, r.Err)
	}
	return r.Vector
}
