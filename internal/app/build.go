package app

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/ent0n29/mugate/internal/chat"
	"github.com/ent0n29/mugate/internal/completion"
	"github.com/ent0n29/mugate/internal/config"
	"github.com/ent0n29/mugate/internal/embedding"
	"github.com/ent0n29/mugate/internal/httpapi"
	"github.com/ent0n29/mugate/internal/logging"
	"github.com/ent0n29/mugate/internal/observability"
	"github.com/ent0n29/mugate/internal/policy"
	"github.com/ent0n29/mugate/internal/prompt"
	"github.com/ent0n29/mugate/internal/session"
	"github.com/ent0n29/mugate/internal/vectorstore"
)

// BackendInfo describes the resolved external dependencies for startup logs.
type BackendInfo struct {
	Embedding  string
	Completion string
	Vector     string
	Collection string
	// OllamaStarted is the address of an Ollama server launched by this process, if any.
	OllamaStarted string
}

type BuildResult struct {
	Config   config.Config
	API      *httpapi.Server
	Pipeline *chat.Pipeline
	History  *session.History
	Memory   vectorstore.Store
	Metrics  *observability.Metrics
	Backends BackendInfo

	// Cleanup should be called on shutdown to release external resources (DB pool, child processes).
	Cleanup func() error
}

// Build wires the gateway from cfg. metrics may be nil, in which case
// instruments are registered on the default Prometheus registry.
func Build(ctx context.Context, cfg config.Config, metrics *observability.Metrics, logger *slog.Logger) (*BuildResult, error) {
	if logger == nil {
		logger = logging.Discard()
	}
	if metrics == nil {
		metrics = observability.NewMetrics(cfg.MetricsNamespace)
	}
	log := logging.Component(logger, "app")

	ollamaCmd, ollamaAddr := maybeAutoStartOllama(cfg)
	if ollamaCmd != nil {
		log.Info("started local ollama", "addr", ollamaAddr)
	}

	embedder, err := embedding.NewClient(embedding.Config{
		Provider:  cfg.EmbedProvider,
		Model:     cfg.EmbedModel,
		Dimension: cfg.MemoryDim,
		Timeout:   cfg.EmbedTimeout,
		OllamaURL: cfg.OllamaURL,
		BaseURL:   cfg.OpenAIBaseURL,
		APIKey:    cfg.OpenAIAPIKey,
	})
	if err != nil {
		_ = stopProcessBestEffort(ollamaCmd)
		return nil, fmt.Errorf("embedding client init failed: %w", err)
	}

	completer, err := completion.NewClient(completion.Config{
		Provider:  cfg.CompletionProvider,
		Model:     cfg.CompletionModel,
		Timeout:   cfg.CompletionTimeout,
		OllamaURL: cfg.OllamaURL,
		BaseURL:   cfg.OpenAIBaseURL,
		APIKey:    cfg.OpenAIAPIKey,
	})
	if err != nil {
		_ = stopProcessBestEffort(ollamaCmd)
		return nil, fmt.Errorf("completion client init failed: %w", err)
	}

	memory, err := vectorstore.NewStore(ctx, vectorstore.Config{
		Backend:     cfg.VectorBackend,
		QdrantURL:   cfg.QdrantURL,
		DatabaseURL: cfg.DatabaseURL,
		ChromemPath: cfg.ChromemPath,
		Timeout:     cfg.VectorTimeout,
	})
	if err != nil {
		_ = stopProcessBestEffort(ollamaCmd)
		return nil, fmt.Errorf("vector store init failed: %w", err)
	}

	metric, err := vectorstore.ParseMetric(cfg.MemoryMetric)
	if err != nil {
		_ = memory.Close()
		_ = stopProcessBestEffort(ollamaCmd)
		return nil, err
	}
	collection := vectorstore.Collection{Name: cfg.MemoryCollection, Dimension: cfg.MemoryDim, Metric: metric}
	// An unreachable store only degrades retrieval, so startup continues.
	ensureCtx, cancel := context.WithTimeout(ctx, cfg.VectorTimeout)
	if err := memory.EnsureCollection(ensureCtx, collection); err != nil {
		log.Warn("memory collection init failed; continuing without guaranteed memory", "collection", collection.Name, "err", err)
	}
	cancel()

	history := session.NewHistory(cfg.HistoryWindow, cfg.SessionTTL)
	history.SetExpireHook(func(string) {
		metrics.SessionEvents.WithLabelValues("expired").Inc()
		metrics.ActiveSessions.Set(float64(history.Count()))
	})

	var redactor *policy.Redactor
	if cfg.MemoryRedactPII {
		redactor = policy.NewPIIRedactor()
	}

	pipeline := chat.NewPipeline(chat.Options{
		Embedder:       embedder,
		Memory:         memory,
		Completer:      completer,
		History:        history,
		Persona:        prompt.DefaultPersona(cfg.AssistantName),
		Collection:     collection.Name,
		TopK:           cfg.MemoryTopK,
		Search:         vectorstore.SearchParams{Exact: cfg.MemorySearchExact, HNSWEf: cfg.MemoryHNSWEf},
		Params:         completion.Params{Temperature: cfg.CompletionTemperature, TopP: cfg.CompletionTopP},
		PersistTimeout: cfg.PersistTimeout,
		Redactor:       redactor,
		Metrics:        metrics,
		Logger:         logger,
	})

	api := httpapi.New(cfg, pipeline, history, metrics, logger)

	cleanup := func() error {
		var errs []string
		if err := memory.Close(); err != nil {
			errs = append(errs, err.Error())
		}
		if err := stopProcessBestEffort(ollamaCmd); err != nil {
			errs = append(errs, err.Error())
		}
		if len(errs) > 0 {
			return fmt.Errorf("%s", strings.Join(errs, "; "))
		}
		return nil
	}

	return &BuildResult{
		Config:   cfg,
		API:      api,
		Pipeline: pipeline,
		History:  history,
		Memory:   memory,
		Metrics:  metrics,
		Backends: BackendInfo{
			Embedding:     fmt.Sprintf("%s (%s)", cfg.EmbedProvider, cfg.EmbedModel),
			Completion:    fmt.Sprintf("%s (%s)", cfg.CompletionProvider, cfg.CompletionModel),
			Vector:        cfg.VectorBackend,
			Collection:    collection.Name,
			OllamaStarted: ollamaAddr,
		},
		Cleanup: cleanup,
	}, nil
}

// JanitorInterval picks how often idle sessions are swept for a given TTL.
func JanitorInterval(ttl time.Duration) time.Duration {
	if ttl <= 0 {
		return 0
	}
	interval := ttl / 4
	if interval < time.Second {
		interval = time.Second
	}
	if interval > time.Minute {
		interval = time.Minute
	}
	return interval
}
