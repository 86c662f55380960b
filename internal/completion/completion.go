// Package completion sends an assembled prompt to a language-model backend
// and returns the generated text.
package completion

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"
)

// Params are the sampling options forwarded to the backend.
type Params struct {
	Temperature float64 `json:"temperature"`
	TopP        float64 `json:"top_p"`
}

// DefaultParams mirror the reference deployment.
func DefaultParams() Params {
	return Params{Temperature: 0.7, TopP: 0.9}
}

// Client produces a completion for prompt. Errors are fatal to the request.
type Client interface {
	Complete(ctx context.Context, prompt string, p Params) (string, error)
}

// Config controls client construction.
type Config struct {
	Provider  string
	Model     string
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

	switch provider {
	case "ollama":
		if strings.TrimSpace(cfg.OllamaURL) == "" {
			return nil, errors.New("ollama url is required for ollama completions")
		}
		return NewOllamaClient(cfg.OllamaURL, cfg.Model, cfg.Timeout), nil
	case "openai":
		return NewOpenAIClient(cfg.BaseURL, cfg.APIKey, cfg.Model, cfg.Timeout), nil
	case "mock":
		return NewMockClient(), nil
	default:
		return nil, fmt.Errorf("unsupported completion provider %q", cfg.Provider)
	}
}
