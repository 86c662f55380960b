package completion

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

// OllamaClient asks Ollama's generate endpoint for a single non-streamed reply.
type OllamaClient struct {
	api    *api.Client
	model  string
	urlErr error
}

func NewOllamaClient(baseURL, model string, timeout time.Duration) *OllamaClient {
	if timeout <= 0 {
		timeout = 120 * time.Second
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

func (c *OllamaClient) Complete(ctx context.Context, prompt string, p Params) (string, error) {
	if c.urlErr != nil {
		return "", c.urlErr
	}
	stream := false
	req := &api.GenerateRequest{
		Model:  c.model,
		Prompt: prompt,
		Stream: &stream,
		Options: map[string]any{
			"temperature": p.Temperature,
			"top_p":       p.TopP,
		},
	}

	var out strings.Builder
	err := c.api.Generate(ctx, req, func(res api.GenerateResponse) error {
		out.WriteString(res.Response)
		return nil
	})
	if err != nil {
		return "", ollamaError("ollama generate", err)
	}
	return out.String(), nil
}

func ollamaError(service string, err error) error {
	var statusErr api.StatusError
	if errors.As(err, &statusErr) {
		return &reliability.StatusError{Service: service, Code: statusErr.StatusCode, Body: statusErr.ErrorMessage}
	}
	return fmt.Errorf("%s: %w", service, err)
}
