package vectorstore

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"
)

// Config selects and configures a backend.
type Config struct {
	Backend     string
	QdrantURL   string
	DatabaseURL string
	ChromemPath string
	Timeout     time.Duration
}

// NewStore builds the configured backend. Construction only fails on
// misconfiguration or, for pgvector, when the pool cannot be created.
func NewStore(ctx context.Context, cfg Config) (Store, error) {
	switch strings.ToLower(strings.TrimSpace(cfg.Backend)) {
	case "", "qdrant":
		if strings.TrimSpace(cfg.QdrantURL) == "" {
			return nil, errors.New("qdrant url is required for qdrant backend")
		}
		return NewQdrantStore(cfg.QdrantURL, cfg.Timeout), nil
	case "pgvector", "postgres":
		if strings.TrimSpace(cfg.DatabaseURL) == "" {
			return nil, errors.New("database url is required for pgvector backend")
		}
		return NewPgvectorStore(ctx, cfg.DatabaseURL)
	case "chromem":
		return NewChromemStore(cfg.ChromemPath)
	default:
		return nil, fmt.Errorf("unsupported vector backend %q", cfg.Backend)
	}
}
