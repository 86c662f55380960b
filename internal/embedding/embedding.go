// Package embedding turns text into fixed-length vectors through an external
// embedding service. Failures are returned as values so callers can degrade
// to "no vector" instead of aborting.
package embedding

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"
)

var (
	ErrEmptyText         = errors.New("embedding: empty text")
	ErrEmptyVector       = errors.New("embedding: backend returned no vector")
	ErrDimensionMismatch = errors.New("embedding: dimension mismatch")
)

// Result is either a vector or the reason none is available.
type Result struct {
	Vector []float32
	Err    error
}

func (r Result) OK() bool { return r.Err == nil && len(r.Vector) > 0 }

func failed(err error) Result { return Result{Err: err} }

// Client embeds a single text.
type Client interface {
	Embed(ctx context.Context, text string) Result
}

// Config controls client construction.
type Config struct {
	Provider  string
	Model     string
	Dimension int
	Timeout   time.Duration
	OllamaURL string
	BaseURL   string
	APIKey    string
}

func NewClient(cfg Config) (Client, error) {
	provider := strings.ToLower(strings.TrimSpace(cfg.Provider))
	if provider == "" {
		provider = "ollama"
	}

	var inner Client
	switch provider {
	case "ollama":
		if strings.TrimSpace(cfg.OllamaURL) == "" {
			return nil, errors.New("ollama url is required for ollama embeddings")
		}
		inner = NewOllamaClient(cfg.OllamaURL, cfg.Model, cfg.Timeout)
	case "openai":
		inner = NewOpenAIClient(cfg.BaseURL, cfg.APIKey, cfg.Model, cfg.Timeout)
	case "mock":
		inner = NewMockClient(cfg.Dimension)
	default:
		return nil, fmt.Errorf("unsupported embedding provider %q", cfg.Provider)
	}
	return WithDimension(inner, cfg.Dimension), nil
}

// WithDimension rejects vectors whose length differs from dim. dim <= 0 disables the check.
func WithDimension(c Client, dim int) Client {
	if dim <= 0 {
		return c
	}
	return &dimensionGuard{inner: c, dim: dim}
}

type dimensionGuard struct {
	inner Client
	dim   int
}

func (g *dimensionGuard) Embed(ctx context.Context, text string) Result {
	res := g.inner.Embed(ctx, text)
	if res.Err != nil {
		return res
	}
	if len(res.Vector) != g.dim {
		return failed(fmt.Errorf("%w: got %d, want %d", ErrDimensionMismatch, len(res.Vector), g.dim))
	}
	return res
}

func toFloat32(in []float64) []float32 {
	out := make([]float32, len(in))
	for i, v := range in {
		out[i] = float32(v)
	}
	return out
}
