package vectorstore

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/ent0n29/mugate/internal/reliability"
)

// QdrantStore talks to Qdrant over its REST API.
type QdrantStore struct {
	baseURL string
	client  *http.Client
}

func NewQdrantStore(baseURL string, timeout time.Duration) *QdrantStore {
	if timeout <= 0 {
		timeout = 15 * time.Second
	}
	return &QdrantStore{
		baseURL: strings.TrimRight(strings.TrimSpace(baseURL), "/"),
		client: &http.Client{
			Timeout: timeout,
		},
	}
}

type qdrantEnvelope struct {
	Result json.RawMessage `json:"result"`
	Status json.RawMessage `json:"status"`
}

type qdrantPoint struct {
	ID      string        `json:"id"`
	Vector  []float32     `json:"vector"`
	Payload qdrantPayload `json:"payload"`
}

type qdrantPayload struct {
	Text      string `json:"text"`
	Timestamp string `json:"timestamp,omitempty"`
	SessionID string `json:"sessionId,omitempty"`
}

type qdrantScored struct {
	ID      json.RawMessage `json:"id"`
	Score   float32         `json:"score"`
	Payload qdrantPayload   `json:"payload"`
}

func qdrantDistance(m Metric) (string, error) {
	switch m {
	case MetricCosine, "":
		return "Cosine", nil
	case MetricDot:
		return "Dot", nil
	case MetricEuclid:
		return "Euclid", nil
	default:
		return "", fmt.Errorf("%w: %q", ErrUnsupportedMetric, m)
	}
}

func (s *QdrantStore) EnsureCollection(ctx context.Context, c Collection) error {
	distance, err := qdrantDistance(c.Metric)
	if err != nil {
		return err
	}
	path := "/collections/" + url.PathEscape(c.Name)

	status, _, err := s.do(ctx, http.MethodGet, path, nil)
	if err != nil {
		return fmt.Errorf("get collection: %w", err)
	}
	if status == http.StatusOK {
		return nil
	}

	body := map[string]any{
		"vectors": map[string]any{
			"size":     c.Dimension,
			"distance": distance,
		},
	}
	status, raw, err := s.do(ctx, http.MethodPut, path, body)
	if err != nil {
		return fmt.Errorf("create collection: %w", err)
	}
	switch {
	case status >= 200 && status < 300:
		return nil
	case status == http.StatusConflict || strings.Contains(strings.ToLower(string(raw)), "already exists"):
		// Lost a create race with another process.
		return nil
	default:
		return &reliability.StatusError{Service: "qdrant", Code: status, Body: excerpt(raw)}
	}
}

func (s *QdrantStore) Search(ctx context.Context, collection string, vector []float32, k int, p SearchParams) ([]Hit, error) {
	if len(vector) == 0 || k <= 0 {
		return nil, nil
	}

	params := map[string]any{"exact": p.Exact}
	if p.HNSWEf > 0 {
		params["hnsw_ef"] = p.HNSWEf
	}
	body := map[string]any{
		"vector":       vector,
		"limit":        k,
		"with_payload": true,
		"params":       params,
	}

	status, raw, err := s.do(ctx, http.MethodPost, "/collections/"+url.PathEscape(collection)+"/points/search", body)
	if err != nil {
		return nil, fmt.Errorf("search points: %w", err)
	}
	if status < 200 || status >= 300 {
		return nil, &reliability.StatusError{Service: "qdrant", Code: status, Body: excerpt(raw)}
	}

	var env qdrantEnvelope
	if err := json.Unmarshal(raw, &env); err != nil {
		return nil, fmt.Errorf("decode search response: %w", err)
	}
	var scored []qdrantScored
	if len(env.Result) > 0 && string(env.Result) != "null" {
		if err := json.Unmarshal(env.Result, &scored); err != nil {
			return nil, fmt.Errorf("decode search result: %w", err)
		}
	}

	hits := make([]Hit, 0, len(scored))
	for _, r := range scored {
		ts, _ := time.Parse(time.RFC3339Nano, r.Payload.Timestamp)
		hits = append(hits, Hit{
			ID:        pointID(r.ID),
			Text:      r.Payload.Text,
			Score:     r.Score,
			SessionID: r.Payload.SessionID,
			Timestamp: ts,
		})
	}
	if len(hits) > k {
		hits = hits[:k]
	}
	return hits, nil
}

func (s *QdrantStore) Upsert(ctx context.Context, collection string, pt Point) error {
	body := map[string]any{
		"points": []qdrantPoint{{
			ID:     pt.ID,
			Vector: pt.Vector,
			Payload: qdrantPayload{
				Text:      pt.Payload.Text,
				Timestamp: pt.Payload.Timestamp.UTC().Format(time.RFC3339Nano),
				SessionID: pt.Payload.SessionID,
			},
		}},
	}
	status, raw, err := s.do(ctx, http.MethodPut, "/collections/"+url.PathEscape(collection)+"/points?wait=true", body)
	if err != nil {
		return fmt.Errorf("upsert point: %w", err)
	}
	if status < 200 || status >= 300 {
		return &reliability.StatusError{Service: "qdrant", Code: status, Body: excerpt(raw)}
	}
	return nil
}

func (s *QdrantStore) Close() error {
	s.client.CloseIdleConnections()
	return nil
}

// do sends body as JSON and returns the status with up to 1MiB of response.
func (s *QdrantStore) do(ctx context.Context, method, path string, body any) (int, []byte, error) {
	var reader io.Reader
	if body != nil {
		payload, err := json.Marshal(body)
		if err != nil {
			return 0, nil, fmt.Errorf("marshal request: %w", err)
		}
		reader = bytes.NewReader(payload)
	}

	req, err := http.NewRequestWithContext(ctx, method, s.baseURL+path, reader)
	if err != nil {
		return 0, nil, fmt.Errorf("create request: %w", err)
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	res, err := s.client.Do(req)
	if err != nil {
		return 0, nil, fmt.Errorf("send request: %w", err)
	}
	defer res.Body.Close()

	raw, err := io.ReadAll(io.LimitReader(res.Body, 1<<20))
	if err != nil {
		return res.StatusCode, nil, fmt.Errorf("read response: %w", err)
	}
	return res.StatusCode, raw, nil
}

func pointID(raw json.RawMessage) string {
	var s string
	if err := json.Unmarshal(raw, &s); err == nil {
		return s
	}
	return strings.TrimSpace(string(raw))
}

func excerpt(raw []byte) string {
	s := strings.TrimSpace(string(raw))
	if len(s) > 200 {
		s = s[:200] + "..."
	}
	return s
}
