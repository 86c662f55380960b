package embedding

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/ollama/ollama/api"

	"github.com/ent0n29/mugate/internal/reliability"
)

// OllamaClient calls Ollama's embeddings endpoint through the official API client.
type OllamaClient struct {
	api    *api.Client
	model  string
	urlErr error
}

func NewOllamaClient(baseURL, model string, timeout time.Duration) *OllamaClient {
	if timeout <= 0 {
		timeout = 15 * time.Second
	}
	base, err := url.Parse(strings.TrimSpace(baseURL))
	if err != nil {
		return &OllamaClient{model: model, urlErr: fmt.Errorf("parse ollama url: %w", err)}
	}
	return &OllamaClient{
		api:   api.NewClient(base, &http.Client{Timeout: timeout}),
		model: model,
	}
}

func (c *OllamaClient) Embed(ctx context.Context, text string) Result {
	if strings.TrimSpace(text) == "" {
		return failed(ErrEmptyText)
	}
	if c.urlErr != nil {
		return failed(c.urlErr)
	}

	out, err := c.api.Embeddings(ctx, &api.EmbeddingRequest{Model: c.model, Prompt: text})
	if err != nil {
		var statusErr api.StatusError
		if errors.As(err, &statusErr) {
			return failed(&reliability.StatusError{Service: "ollama embeddings", Code: statusErr.StatusCode, Body: statusErr.ErrorMessage})
		}
		return failed(fmt.Errorf("ollama embeddings: %w", err))
	}
	if len(out.Embedding) == 0 {
		return failed(ErrEmptyVector)
	}
	return Result{Vector: toFloat32(out.Embedding)}
}
