package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"
)

// Config contains all runtime settings for the chat gateway.
type Config struct {
	BindAddr         string
	ShutdownTimeout  time.Duration
	MetricsNamespace string
	LogLevel         string
	LogFormat        string
	AllowAnyOrigin   bool
	TLSCertFile      string
	TLSKeyFile       string

	DefaultSessionID string
	HistoryWindow    int
	SessionTTL       time.Duration
	AssistantName    string

	EmbedProvider string
	EmbedModel    string
	EmbedTimeout  time.Duration

	CompletionProvider    string
	CompletionModel       string
	CompletionTimeout     time.Duration
	CompletionTemperature float64
	CompletionTopP        float64

	OllamaURL       string
	OllamaAutoStart bool
	OllamaBin       string
	OpenAIBaseURL   string
	OpenAIAPIKey    string

	VectorBackend     string
	VectorTimeout     time.Duration
	QdrantURL         string
	DatabaseURL       string
	ChromemPath       string
	MemoryCollection  string
	MemoryDim         int
	MemoryMetric      string
	MemoryTopK        int
	MemorySearchExact bool
	MemoryHNSWEf      int
	MemoryRedactPII   bool
	PersistTimeout    time.Duration
}

// Load reads environment variables and applies safe defaults.
func Load() (Config, error) {
	cfg := Config{
		BindAddr:         envOrDefault("APP_BIND_ADDR", ":3000"),
		MetricsNamespace: envOrDefault("APP_METRICS_NAMESPACE", "mugate"),
		LogLevel:         envOrDefault("APP_LOG_LEVEL", "info"),
		LogFormat:        envOrDefault("APP_LOG_FORMAT", "text"),
		TLSCertFile:      stringsTrimSpace("APP_TLS_CERT_FILE"),
		TLSKeyFile:       stringsTrimSpace("APP_TLS_KEY_FILE"),
		ShutdownTimeout:  15 * time.Second,

		DefaultSessionID: envOrDefault("DEFAULT_SESSION_ID", "default-user"),
		HistoryWindow:    10,
		// 0 disables idle-session eviction.
		SessionTTL:    0,
		AssistantName: envOrDefault("ASSISTANT_NAME", "Mu"),

		EmbedProvider: envOrDefault("EMBED_PROVIDER", "ollama"),
		EmbedModel:    envOrDefault("EMBED_MODEL", "all-minilm"),
		EmbedTimeout:  15 * time.Second,

		CompletionProvider:    envOrDefault("COMPLETION_PROVIDER", "ollama"),
		CompletionModel:       envOrDefault("COMPLETION_MODEL", "qwen2.5:14b-instruct"),
		CompletionTimeout:     120 * time.Second,
		CompletionTemperature: 0.7,
		CompletionTopP:        0.9,

		OllamaURL:     envOrDefault("OLLAMA_URL", "http://127.0.0.1:11434"),
		OllamaBin:     envOrDefault("OLLAMA_BIN", "ollama"),
		OpenAIBaseURL: stringsTrimSpace("OPENAI_BASE_URL"),
		OpenAIAPIKey:  stringsTrimSpace("OPENAI_API_KEY"),

		VectorBackend:     envOrDefault("VECTOR_BACKEND", "qdrant"),
		VectorTimeout:     15 * time.Second,
		QdrantURL:         envOrDefault("QDRANT_URL", "http://localhost:6333"),
		DatabaseURL:       stringsTrimSpace("DATABASE_URL"),
		ChromemPath:       stringsTrimSpace("CHROMEM_PATH"),
		MemoryCollection:  envOrDefault("MEMORY_COLLECTION", "mu-memory"),
		MemoryDim:         384,
		MemoryMetric:      envOrDefault("MEMORY_METRIC", "cosine"),
		MemoryTopK:        15,
		MemorySearchExact: true,
		MemoryHNSWEf:      512,
		PersistTimeout:    30 * time.Second,
	}

	var err error
	if cfg.ShutdownTimeout, err = durationFromEnv("APP_SHUTDOWN_TIMEOUT", cfg.ShutdownTimeout); err != nil {
		return Config{}, err
	}
	if cfg.AllowAnyOrigin, err = boolFromEnv("APP_ALLOW_ANY_ORIGIN", cfg.AllowAnyOrigin); err != nil {
		return Config{}, err
	}
	if cfg.HistoryWindow, err = intFromEnv("HISTORY_WINDOW", cfg.HistoryWindow); err != nil {
		return Config{}, err
	}
	if cfg.SessionTTL, err = durationFromEnv("SESSION_TTL", cfg.SessionTTL); err != nil {
		return Config{}, err
	}
	if cfg.EmbedTimeout, err = durationFromEnv("EMBED_TIMEOUT", cfg.EmbedTimeout); err != nil {
		return Config{}, err
	}
	if cfg.CompletionTimeout, err = durationFromEnv("COMPLETION_TIMEOUT", cfg.CompletionTimeout); err != nil {
		return Config{}, err
	}
	if cfg.CompletionTemperature, err = floatFromEnv("COMPLETION_TEMPERATURE", cfg.CompletionTemperature); err != nil {
		return Config{}, err
	}
	if cfg.CompletionTopP, err = floatFromEnv("COMPLETION_TOP_P", cfg.CompletionTopP); err != nil {
		return Config{}, err
	}
	if cfg.VectorTimeout, err = durationFromEnv("VECTOR_TIMEOUT", cfg.VectorTimeout); err != nil {
		return Config{}, err
	}
	if cfg.MemoryDim, err = intFromEnv("MEMORY_DIM", cfg.MemoryDim); err != nil {
		return Config{}, err
	}
	if cfg.MemoryTopK, err = intFromEnv("MEMORY_TOP_K", cfg.MemoryTopK); err != nil {
		return Config{}, err
	}
	if cfg.MemorySearchExact, err = boolFromEnv("MEMORY_SEARCH_EXACT", cfg.MemorySearchExact); err != nil {
		return Config{}, err
	}
	if cfg.MemoryHNSWEf, err = intFromEnv("MEMORY_HNSW_EF", cfg.MemoryHNSWEf); err != nil {
		return Config{}, err
	}
	if cfg.OllamaAutoStart, err = boolFromEnv("OLLAMA_AUTOSTART", cfg.OllamaAutoStart); err != nil {
		return Config{}, err
	}
	if cfg.MemoryRedactPII, err = boolFromEnv("MEMORY_REDACT_PII", cfg.MemoryRedactPII); err != nil {
		return Config{}, err
	}
	if cfg.PersistTimeout, err = durationFromEnv("PERSIST_TIMEOUT", cfg.PersistTimeout); err != nil {
		return Config{}, err
	}

	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// Validate checks ranges and cross-field constraints.
func (c Config) Validate() error {
	if c.HistoryWindow <= 0 {
		return fmt.Errorf("HISTORY_WINDOW must be positive")
	}
	if c.SessionTTL < 0 {
		return fmt.Errorf("SESSION_TTL must be >= 0")
	}
	if c.SessionTTL > 0 && c.SessionTTL < 5*time.Second {
		return fmt.Errorf("SESSION_TTL must be at least 5s when enabled")
	}
	if c.MemoryDim <= 0 {
		return fmt.Errorf("MEMORY_DIM must be positive")
	}
	if c.MemoryTopK <= 0 {
		return fmt.Errorf("MEMORY_TOP_K must be positive")
	}
	if c.MemoryHNSWEf < 0 {
		return fmt.Errorf("MEMORY_HNSW_EF must be >= 0")
	}
	if c.CompletionTemperature < 0 || c.CompletionTemperature > 2 {
		return fmt.Errorf("COMPLETION_TEMPERATURE must be within [0,2]")
	}
	if c.CompletionTopP <= 0 || c.CompletionTopP > 1 {
		return fmt.Errorf("COMPLETION_TOP_P must be within (0,1]")
	}
	for key, d := range map[string]time.Duration{
		"EMBED_TIMEOUT":      c.EmbedTimeout,
		"COMPLETION_TIMEOUT": c.CompletionTimeout,
		"VECTOR_TIMEOUT":     c.VectorTimeout,
		"PERSIST_TIMEOUT":    c.PersistTimeout,
	} {
		if d <= 0 {
			return fmt.Errorf("%s must be positive", key)
		}
	}
	switch strings.ToLower(c.MemoryMetric) {
	case "cosine", "dot", "euclid":
	default:
		return fmt.Errorf("MEMORY_METRIC must be one of cosine|dot|euclid, got %q", c.MemoryMetric)
	}
	if strings.EqualFold(c.VectorBackend, "pgvector") && c.DatabaseURL == "" {
		return fmt.Errorf("VECTOR_BACKEND=pgvector requires DATABASE_URL")
	}
	if (c.TLSCertFile == "") != (c.TLSKeyFile == "") {
		return fmt.Errorf("APP_TLS_CERT_FILE and APP_TLS_KEY_FILE must be set together")
	}
	if strings.TrimSpace(c.DefaultSessionID) == "" {
		return fmt.Errorf("DEFAULT_SESSION_ID must not be blank")
	}
	return nil
}

func envOrDefault(key, fallback string) string {
	v := strings.TrimSpace(os.Getenv(key))
	if v == "" {
		return fallback
	}
	return v
}

func stringsTrimSpace(key string) string {
	return strings.TrimSpace(os.Getenv(key))
}

func durationFromEnv(key string, fallback time.Duration) (time.Duration, error) {
	v := stringsTrimSpace(key)
	if v == "" {
		return fallback, nil
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		return 0, fmt.Errorf("%s parse error: %w", key, err)
	}
	return d, nil
}

func intFromEnv(key string, fallback int) (int, error) {
	v := stringsTrimSpace(key)
	if v == "" {
		return fallback, nil
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return 0, fmt.Errorf("%s parse error: %w", key, err)
	}
	return n, nil
}

func floatFromEnv(key string, fallback float64) (float64, error) {
	v := stringsTrimSpace(key)
	if v == "" {
		return fallback, nil
	}
	f, err := strconv.ParseFloat(v, 64)
	if err != nil {
		return 0, fmt.Errorf("%s parse error: %w", key, err)
	}
	return f, nil
}

func boolFromEnv(key string, fallback bool) (bool, error) {
	v := strings.ToLower(stringsTrimSpace(key))
	if v == "" {
		return fallback, nil
	}
	switch v {
	case "1", "true", "t", "yes", "y", "on":
		return true, nil
	case "0", "false", "f", "no", "n", "off":
		return false, nil
	default:
		return false, fmt.Errorf("%s parse error: expected bool", key)
	}
}
