package vectorstore

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	chromem "github.com/philippgille/chromem-go"
)

var errNoEmbedder = errors.New("chromem: documents must carry precomputed embeddings")

// ChromemStore is an embedded vector store backed by chromem-go. It always
// searches exhaustively, so SearchParams are ignored. Only cosine is supported.
type ChromemStore struct {
	db   *chromem.DB
	mu   sync.RWMutex
	dims map[string]int
}

// NewChromemStore opens a persistent database at dir, or an in-memory one
// when dir is empty.
func NewChromemStore(dir string) (*ChromemStore, error) {
	var (
		db  *chromem.DB
		err error
	)
	if dir == "" {
		db = chromem.NewDB()
	} else {
		db, err = chromem.NewPersistentDB(dir, false)
		if err != nil {
			return nil, fmt.Errorf("create persistent DB: %w", err)
		}
	}
	return &ChromemStore{db: db, dims: make(map[string]int)}, nil
}

func noEmbedding(context.Context, string) ([]float32, error) {
	return nil, errNoEmbedder
}

func (s *ChromemStore) EnsureCollection(_ context.Context, c Collection) error {
	if c.Metric != "" && c.Metric != MetricCosine {
		return fmt.Errorf("%w: chromem only supports cosine, got %q", ErrUnsupportedMetric, c.Metric)
	}
	if _, err := s.db.GetOrCreateCollection(c.Name, map[string]string{"metric": string(MetricCosine)}, noEmbedding); err != nil {
		return fmt.Errorf("get or create collection: %w", err)
	}
	s.mu.Lock()
	s.dims[c.Name] = c.Dimension
	s.mu.Unlock()
	return nil
}

func (s *ChromemStore) collection(name string) (*chromem.Collection, int, error) {
	col := s.db.GetCollection(name, noEmbedding)
	if col == nil {
		return nil, 0, fmt.Errorf("%w: %q", ErrUnknownCollection, name)
	}
	s.mu.RLock()
	dim := s.dims[name]
	s.mu.RUnlock()
	return col, dim, nil
}

func (s *ChromemStore) Search(ctx context.Context, collection string, vector []float32, k int, _ SearchParams) ([]Hit, error) {
	if len(vector) == 0 || k <= 0 {
		return nil, nil
	}
	col, dim, err := s.collection(collection)
	if err != nil {
		return nil, err
	}
	if dim > 0 && len(vector) != dim {
		return nil, fmt.Errorf("%w: got %d, want %d", ErrDimensionMismatch, len(vector), dim)
	}

	// chromem-go rejects nResults larger than the collection.
	n := min(k, col.Count())
	if n == 0 {
		return nil, nil
	}
	results, err := col.QueryEmbedding(ctx, vector, n, nil, nil)
	if err != nil {
		return nil, fmt.Errorf("query collection: %w", err)
	}

	hits := make([]Hit, 0, len(results))
	for _, r := range results {
		ts, _ := time.Parse(time.RFC3339Nano, r.Metadata["timestamp"])
		hits = append(hits, Hit{
			ID:        r.ID,
			Text:      r.Content,
			Score:     r.Similarity,
			SessionID: r.Metadata["session_id"],
			Timestamp: ts,
		})
	}
	return hits, nil
}

func (s *ChromemStore) Upsert(ctx context.Context, collection string, pt Point) error {
	col, dim, err := s.collection(collection)
	if err != nil {
		return err
	}
	if dim > 0 && len(pt.Vector) != dim {
		return fmt.Errorf("%w: got %d, want %d", ErrDimensionMismatch, len(pt.Vector), dim)
	}

	// chromem-go normalizes in place; keep the caller's slice intact.
	vec := make([]float32, len(pt.Vector))
	copy(vec, pt.Vector)

	doc := chromem.Document{
		ID:        pt.ID,
		Content:   pt.Payload.Text,
		Embedding: vec,
		Metadata: map[string]string{
			"timestamp":  pt.Payload.Timestamp.UTC().Format(time.RFC3339Nano),
			"session_id": pt.Payload.SessionID,
		},
	}
	if err := col.AddDocument(ctx, doc); err != nil {
		return fmt.Errorf("add document: %w", err)
	}
	return nil
}

func (s *ChromemStore) Close() error {
	return nil
}
