package embedding

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/openai/openai-go"
	"github.com/openai/openai-go/option"

	"github.com/ent0n29/mugate/internal/reliability"
)

// OpenAIClient calls an OpenAI-compatible /v1/embeddings endpoint.
type OpenAIClient struct {
	client  openai.Client
	model   string
	timeout time.Duration
}

func NewOpenAIClient(baseURL, apiKey, model string, timeout time.Duration) *OpenAIClient {
	var opts []option.RequestOption
	if strings.TrimSpace(baseURL) != "" {
		opts = append(opts, option.WithBaseURL(baseURL))
	}
	if strings.TrimSpace(apiKey) != "" {
		opts = append(opts, option.WithAPIKey(apiKey))
	}
	// Single attempt; the pipeline degrades instead of retrying.
	opts = append(opts, option.WithMaxRetries(0))
	if timeout <= 0 {
		timeout = 15 * time.Second
	}
	return &OpenAIClient{
		client:  openai.NewClient(opts...),
		model:   model,
		timeout: timeout,
	}
}

func (c *OpenAIClient) Embed(ctx context.Context, text string) Result {
	if strings.TrimSpace(text) == "" {
		return failed(ErrEmptyText)
	}
	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	resp, err := c.client.Embeddings.New(ctx, openai.EmbeddingNewParams{
		Input: openai.EmbeddingNewParamsInputUnion{OfString: openai.String(text)},
		Model: openai.EmbeddingModel(c.model),
	})
	if err != nil {
		var apiErr *openai.Error
		if errors.As(err, &apiErr) {
			err = &reliability.StatusError{Service: "openai", Code: apiErr.StatusCode, Body: apiErr.Message}
		}
		return failed(fmt.Errorf("openai embeddings: %w", err))
	}
	if len(resp.Data) == 0 || len(resp.Data[0].Embedding) == 0 {
		return failed(ErrEmptyVector)
	}
	return Result{Vector: toFloat32(resp.Data[0].Embedding)}
}
