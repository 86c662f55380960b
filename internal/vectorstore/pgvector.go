package vectorstore

import (
	"context"
	"fmt"
	"strconv"
	"strings"
	"sync"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// PgvectorStore keeps one table per collection in PostgreSQL with the
// pgvector extension.
type PgvectorStore struct {
	pool *pgxpool.Pool

	mu      sync.RWMutex
	metrics map[string]Metric
}

func NewPgvectorStore(ctx context.Context, databaseURL string) (*PgvectorStore, error) {
	pool, err := pgxpool.New(ctx, databaseURL)
	if err != nil {
		return nil, fmt.Errorf("connect postgres: %w", err)
	}
	return &PgvectorStore{pool: pool, metrics: make(map[string]Metric)}, nil
}

type pgOps struct {
	opclass  string
	operator string
}

func pgvectorOps(m Metric) (pgOps, error) {
	switch m {
	case MetricCosine, "":
		return pgOps{opclass: "vector_cosine_ops", operator: "<=>"}, nil
	case MetricDot:
		return pgOps{opclass: "vector_ip_ops", operator: "<#>"}, nil
	case MetricEuclid:
		return pgOps{opclass: "vector_l2_ops", operator: "<->"}, nil
	default:
		return pgOps{}, fmt.Errorf("%w: %q", ErrUnsupportedMetric, m)
	}
}

// distanceToScore converts a pgvector distance into a higher-is-better score.
func distanceToScore(m Metric, d float64) float32 {
	switch m {
	case MetricDot:
		// <#> returns the negated inner product.
		return float32(-d)
	case MetricEuclid:
		return float32(1 / (1 + d))
	default:
		return float32(1 - d)
	}
}

func (s *PgvectorStore) EnsureCollection(ctx context.Context, c Collection) error {
	ops, err := pgvectorOps(c.Metric)
	if err != nil {
		return err
	}
	if c.Dimension <= 0 {
		return fmt.Errorf("collection %q: dimension must be positive", c.Name)
	}
	table := pgx.Identifier{c.Name}.Sanitize()
	index := pgx.Identifier{c.Name + "_embedding_idx"}.Sanitize()

	stmts := []string{
		`CREATE EXTENSION IF NOT EXISTS vector;`,
		fmt.Sprintf(`CREATE TABLE IF NOT EXISTS %s (
			id TEXT PRIMARY KEY,
			embedding vector(%d) NOT NULL,
			text TEXT NOT NULL,
			session_id TEXT NOT NULL,
			created_at TIMESTAMPTZ NOT NULL DEFAULT now()
		);`, table, c.Dimension),
		fmt.Sprintf(`CREATE INDEX IF NOT EXISTS %s ON %s USING hnsw (embedding %s);`, index, table, ops.opclass),
	}
	for _, stmt := range stmts {
		if _, err := s.pool.Exec(ctx, stmt); err != nil {
			return fmt.Errorf("init collection failed on %q: %w", firstLine(stmt), err)
		}
	}

	s.mu.Lock()
	s.metrics[c.Name] = c.Metric
	s.mu.Unlock()
	return nil
}

func (s *PgvectorStore) metricFor(collection string) Metric {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if m, ok := s.metrics[collection]; ok {
		return m
	}
	return MetricCosine
}

func (s *PgvectorStore) Search(ctx context.Context, collection string, vector []float32, k int, p SearchParams) ([]Hit, error) {
	if len(vector) == 0 || k <= 0 {
		return nil, nil
	}
	metric := s.metricFor(collection)
	ops, err := pgvectorOps(metric)
	if err != nil {
		return nil, err
	}

	tx, err := s.pool.BeginTx(ctx, pgx.TxOptions{AccessMode: pgx.ReadOnly})
	if err != nil {
		return nil, fmt.Errorf("begin search: %w", err)
	}
	defer func() { _ = tx.Rollback(ctx) }()

	for _, stmt := range searchSettings(p) {
		if _, err := tx.Exec(ctx, stmt); err != nil {
			return nil, fmt.Errorf("apply search settings: %w", err)
		}
	}

	query := fmt.Sprintf(
		`SELECT id, text, session_id, created_at, embedding %s $1::vector AS distance
		 FROM %s ORDER BY distance LIMIT $2`,
		ops.operator, pgx.Identifier{collection}.Sanitize(),
	)
	rows, err := tx.Query(ctx, query, vectorLiteral(vector), k)
	if err != nil {
		return nil, fmt.Errorf("query nearest: %w", err)
	}
	defer rows.Close()

	hits := make([]Hit, 0, k)
	for rows.Next() {
		var (
			h        Hit
			distance float64
		)
		if err := rows.Scan(&h.ID, &h.Text, &h.SessionID, &h.Timestamp, &distance); err != nil {
			return nil, fmt.Errorf("scan nearest row: %w", err)
		}
		h.Score = distanceToScore(metric, distance)
		hits = append(hits, h)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate nearest rows: %w", err)
	}
	return hits, nil
}

// searchSettings scopes planner knobs to the search transaction.
func searchSettings(p SearchParams) []string {
	if p.Exact {
		return []string{`SET LOCAL enable_indexscan = off;`}
	}
	if p.HNSWEf > 0 {
		ef := p.HNSWEf
		if ef > 1000 {
			ef = 1000
		}
		return []string{fmt.Sprintf(`SET LOCAL hnsw.ef_search = %d;`, ef)}
	}
	return nil
}

func (s *PgvectorStore) Upsert(ctx context.Context, collection string, pt Point) error {
	query := fmt.Sprintf(
		`INSERT INTO %s (id, embedding, text, session_id, created_at)
		 VALUES ($1, $2::vector, $3, $4, $5)
		 ON CONFLICT (id) DO UPDATE SET
			embedding = EXCLUDED.embedding,
			text = EXCLUDED.text,
			session_id = EXCLUDED.session_id,
			created_at = EXCLUDED.created_at`,
		pgx.Identifier{collection}.Sanitize(),
	)
	_, err := s.pool.Exec(ctx, query,
		pt.ID,
		vectorLiteral(pt.Vector),
		pt.Payload.Text,
		pt.Payload.SessionID,
		pt.Payload.Timestamp,
	)
	if err != nil {
		return fmt.Errorf("upsert point: %w", err)
	}
	return nil
}

func (s *PgvectorStore) Close() error {
	s.pool.Close()
	return nil
}

// vectorLiteral renders v in pgvector's text input format.
func vectorLiteral(v []float32) string {
	var b strings.Builder
	b.Grow(len(v) * 10)
	b.WriteByte('[')
	for i, f := range v {
		if i > 0 {
			b.WriteByte(',')
		}
		b.WriteString(strconv.FormatFloat(float64(f), 'g', -1, 32))
	}
	b.WriteByte(']')
	return b.String()
}

func firstLine(s string) string {
	s = strings.TrimSpace(s)
	if i := strings.IndexByte(s, '\n'); i >= 0 {
		return s[:i]
	}
	return s
}
