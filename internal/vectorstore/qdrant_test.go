package vectorstore

import (
	"context"
	"encoding/json"
	"math"
	"net/http"
	"net/http/httptest"
	"sort"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// fakeQdrant implements the subset of the Qdrant REST API the store uses.
type fakeQdrant struct {
	mu          sync.Mutex
	collections map[string]map[string]qdrantPoint
	creates     int
	lastSearch  map[string]any
}

func newFakeQdrant() *fakeQdrant {
	return &fakeQdrant{collections: make(map[string]map[string]qdrantPoint)}
}

func (f *fakeQdrant) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	f.mu.Lock()
	defer f.mu.Unlock()

	parts := strings.Split(strings.Trim(r.URL.Path, "/"), "/")
	if len(parts) < 2 || parts[0] != "collections" {
		http.NotFound(w, r)
		return
	}
	name := parts[1]

	switch {
	case len(parts) == 2 && r.Method == http.MethodGet:
		if _, ok := f.collections[name]; !ok {
			w.WriteHeader(http.StatusNotFound)
			_, _ = w.Write([]byte(`{"status":{"error":"Not found: Collection doesn't exist!"}}`))
			return
		}
		_, _ = w.Write([]byte(`{"result":{"status":"green"},"status":"ok"}`))
	case len(parts) == 2 && r.Method == http.MethodPut:
		if _, ok := f.collections[name]; ok {
			w.WriteHeader(http.StatusConflict)
			_, _ = w.Write([]byte(`{"status":{"error":"Wrong input: Collection ` + "`" + name + "`" + ` already exists!"}}`))
			return
		}
		f.creates++
		f.collections[name] = make(map[string]qdrantPoint)
		_, _ = w.Write([]byte(`{"result":true,"status":"ok"}`))
	case len(parts) == 3 && parts[2] == "points" && r.Method == http.MethodPut:
		col, ok := f.collections[name]
		if !ok {
			http.NotFound(w, r)
			return
		}
		var body struct {
			Points []qdrantPoint `json:"points"`
		}
		if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
			http.Error(w, err.Error(), http.StatusBadRequest)
			return
		}
		for _, p := range body.Points {
			col[p.ID] = p
		}
		_, _ = w.Write([]byte(`{"result":{"status":"completed"},"status":"ok"}`))
	case len(parts) == 4 && parts[3] == "search" && r.Method == http.MethodPost:
		col, ok := f.collections[name]
		if !ok {
			http.NotFound(w, r)
			return
		}
		var body struct {
			Vector []float32 `json:"vector"`
			Limit  int       `json:"limit"`
		}
		raw := map[string]any{}
		dec := json.NewDecoder(r.Body)
		if err := dec.Decode(&raw); err != nil {
			http.Error(w, err.Error(), http.StatusBadRequest)
			return
		}
		f.lastSearch = raw
		b, _ := json.Marshal(raw)
		_ = json.Unmarshal(b, &body)

		type scored struct {
			ID      string        `json:"id"`
			Score   float32       `json:"score"`
			Payload qdrantPayload `json:"payload"`
		}
		var out []scored
		for _, p := range col {
			out = append(out, scored{ID: p.ID, Score: cosine(body.Vector, p.Vector), Payload: p.Payload})
		}
		sort.Slice(out, func(i, j int) bool { return out[i].Score > out[j].Score })
		if len(out) > body.Limit {
			out = out[:body.Limit]
		}
		_ = json.NewEncoder(w).Encode(map[string]any{"result": out, "status": "ok"})
	default:
		http.NotFound(w, r)
	}
}

func cosine(a, b []float32) float32 {
	if len(a) != len(b) {
		return 0
	}
	var dot, na, nb float64
	for i := range a {
		dot += float64(a[i]) * float64(b[i])
		na += float64(a[i]) * float64(a[i])
		nb += float64(b[i]) * float64(b[i])
	}
	if na == 0 || nb == 0 {
		return 0
	}
	return float32(dot / (math.Sqrt(na) * math.Sqrt(nb)))
}

var memoryCollection = Collection{Name: "mu-memory", Dimension: 3, Metric: MetricCosine}

func TestQdrantEnsureCollectionIdempotent(t *testing.T) {
	fake := newFakeQdrant()
	ts := httptest.NewServer(fake)
	defer ts.Close()
	s := NewQdrantStore(ts.URL, time.Second)
	ctx := context.Background()

	require.NoError(t, s.EnsureCollection(ctx, memoryCollection))
	require.NoError(t, s.Upsert(ctx, "mu-memory", Point{ID: "p1", Vector: []float32{1, 0, 0}, Payload: Payload{Text: "kept"}}))
	require.NoError(t, s.EnsureCollection(ctx, memoryCollection))

	assert.Equal(t, 1, fake.creates)
	hits, err := s.Search(ctx, "mu-memory", []float32{1, 0, 0}, 15, SearchParams{Exact: true})
	require.NoError(t, err)
	require.Len(t, hits, 1)
	assert.Equal(t, "kept", hits[0].Text)
}

func TestQdrantEnsureCollectionConflictIsSuccess(t *testing.T) {
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method == http.MethodGet {
			w.WriteHeader(http.StatusNotFound)
			return
		}
		w.WriteHeader(http.StatusBadRequest)
		_, _ = w.Write([]byte(`{"status":{"error":"Wrong input: Collection mu-memory already exists!"}}`))
	}))
	defer ts.Close()

	assert.NoError(t, NewQdrantStore(ts.URL, time.Second).EnsureCollection(context.Background(), memoryCollection))
}

func TestQdrantEnsureCollectionFailure(t *testing.T) {
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer ts.Close()

	assert.Error(t, NewQdrantStore(ts.URL, time.Second).EnsureCollection(context.Background(), memoryCollection))
}

func TestQdrantSearchRanksAndSendsParams(t *testing.T) {
	fake := newFakeQdrant()
	ts := httptest.NewServer(fake)
	defer ts.Close()
	s := NewQdrantStore(ts.URL, time.Second)
	ctx := context.Background()
	require.NoError(t, s.EnsureCollection(ctx, memoryCollection))

	now := time.Now().UTC().Truncate(time.Millisecond)
	points := []Point{
		{ID: "far", Vector: []float32{0, 1, 0}, Payload: Payload{Text: "far", Timestamp: now, SessionID: "s1"}},
		{ID: "near", Vector: []float32{0.9, 0.1, 0}, Payload: Payload{Text: "near", Timestamp: now, SessionID: "s1"}},
		{ID: "same", Vector: []float32{1, 0, 0}, Payload: Payload{Text: "same", Timestamp: now, SessionID: "s2"}},
	}
	for _, p := range points {
		require.NoError(t, s.Upsert(ctx, "mu-memory", p))
	}

	hits, err := s.Search(ctx, "mu-memory", []float32{1, 0, 0}, 2, SearchParams{Exact: true, HNSWEf: 512})
	require.NoError(t, err)
	require.Len(t, hits, 2)
	assert.Equal(t, []string{"same", "near"}, Texts(hits))
	assert.Equal(t, "s2", hits[0].SessionID)
	assert.True(t, hits[0].Timestamp.Equal(now))
	assert.GreaterOrEqual(t, hits[0].Score, hits[1].Score)

	params, _ := fake.lastSearch["params"].(map[string]any)
	assert.Equal(t, true, params["exact"])
	assert.Equal(t, float64(512), params["hnsw_ef"])
	assert.Equal(t, true, fake.lastSearch["with_payload"])
	assert.Equal(t, float64(2), fake.lastSearch["limit"])
}

func TestQdrantSearchWithoutVectorIsEmpty(t *testing.T) {
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		t.Errorf("unexpected request %s %s", r.Method, r.URL.Path)
	}))
	defer ts.Close()

	hits, err := NewQdrantStore(ts.URL, time.Second).Search(context.Background(), "mu-memory", nil, 15, SearchParams{})
	require.NoError(t, err)
	assert.Empty(t, hits)
}

func TestQdrantUpsertOverwritesByID(t *testing.T) {
	fake := newFakeQdrant()
	ts := httptest.NewServer(fake)
	defer ts.Close()
	s := NewQdrantStore(ts.URL, time.Second)
	ctx := context.Background()
	require.NoError(t, s.EnsureCollection(ctx, memoryCollection))

	require.NoError(t, s.Upsert(ctx, "mu-memory", Point{ID: "p", Vector: []float32{1, 0, 0}, Payload: Payload{Text: "v1"}}))
	require.NoError(t, s.Upsert(ctx, "mu-memory", Point{ID: "p", Vector: []float32{1, 0, 0}, Payload: Payload{Text: "v2"}}))

	hits, err := s.Search(ctx, "mu-memory", []float32{1, 0, 0}, 15, SearchParams{})
	require.NoError(t, err)
	require.Len(t, hits, 1)
	assert.Equal(t, "v2", hits[0].Text)
}

func TestQdrantUpsertUnknownCollectionFails(t *testing.T) {
	ts := httptest.NewServer(newFakeQdrant())
	defer ts.Close()

	err := NewQdrantStore(ts.URL, time.Second).Upsert(context.Background(), "missing", Point{ID: "p", Vector: []float32{1}})
	assert.Error(t, err)
}

func TestPointIDAcceptsNumbers(t *testing.T) {
	assert.Equal(t, "1712345678901", pointID(json.RawMessage(`1712345678901`)))
	assert.Equal(t, "abc", pointID(json.RawMessage(`"abc"`)))
}
