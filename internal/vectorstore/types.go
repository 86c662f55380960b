// Package vectorstore persists memory records as vectors and retrieves the
// nearest ones. Backends: Qdrant (REST), PostgreSQL with pgvector, and an
// embedded chromem-go database.
package vectorstore

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"
)

// Metric is the similarity function of a collection.
type Metric string

const (
	MetricCosine Metric = "cosine"
	MetricDot    Metric = "dot"
	MetricEuclid Metric = "euclid"
)

func ParseMetric(s string) (Metric, error) {
	switch m := Metric(strings.ToLower(strings.TrimSpace(s))); m {
	case MetricCosine, MetricDot, MetricEuclid:
		return m, nil
	case "":
		return MetricCosine, nil
	default:
		return "", fmt.Errorf("unknown similarity metric %q", s)
	}
}

var (
	ErrDimensionMismatch = errors.New("vectorstore: vector dimension does not match collection")
	ErrUnknownCollection = errors.New("vectorstore: unknown collection")
	ErrUnsupportedMetric = errors.New("vectorstore: metric not supported by backend")
)

// Collection describes a logical namespace of fixed-size vectors.
type Collection struct {
	Name      string
	Dimension int
	Metric    Metric
}

// Payload is stored next to each vector and returned with search hits.
type Payload struct {
	Text      string    `json:"text"`
	Timestamp time.Time `json:"timestamp"`
	SessionID string    `json:"sessionId"`
}

// Point is one memory record.
type Point struct {
	ID      string
	Vector  []float32
	Payload Payload
}

// Hit is a search result; higher Score means more similar.
type Hit struct {
	ID        string
	Text      string
	Score     float32
	SessionID string
	Timestamp time.Time
}

// SearchParams trades recall for speed. Exact forces a full scan; otherwise
// HNSWEf sets the HNSW candidate breadth (0 keeps the backend default).
type SearchParams struct {
	Exact  bool
	HNSWEf int
}

// Store is the vector database boundary used by the chat pipeline.
type Store interface {
	// EnsureCollection creates c when missing. An existing collection is not an error.
	EnsureCollection(ctx context.Context, c Collection) error
	// Search returns at most k hits ordered by descending score. A nil vector yields no hits.
	Search(ctx context.Context, collection string, vector []float32, k int, p SearchParams) ([]Hit, error)
	// Upsert inserts or overwrites the point with the same id.
	Upsert(ctx context.Context, collection string, pt Point) error
	Close() error
}

// Texts extracts hit texts preserving order.
func Texts(hits []Hit) []string {
	out := make([]string, 0, len(hits))
	for _, h := range hits {
		if strings.TrimSpace(h.Text) == "" {
			continue
		}
		out = append(out, h.Text)
	}
	return out
}
