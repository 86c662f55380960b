package embedding

import (
	"context"
	"hash/fnv"
	"math"
	"strings"
)

// MockClient produces deterministic unit vectors from word hashes, so equal
// texts map to equal vectors and texts sharing words land close together.
type MockClient struct {
	dim int
}

func NewMockClient(dim int) *MockClient {
	if dim <= 0 {
		dim = 384
	}
	return &MockClient{dim: dim}
}

func (c *MockClient) Embed(ctx context.Context, text string) Result {
	if err := ctx.Err(); err != nil {
		return failed(err)
	}
	words := strings.Fields(strings.ToLower(text))
	if len(words) == 0 {
		return failed(ErrEmptyText)
	}

	vec := make([]float32, c.dim)
	for _, w := range words {
		h := fnv.New32a()
		_, _ = h.Write([]byte(w))
		vec[h.Sum32()%uint32(c.dim)] += 1
	}

	var norm float64
	for _, v := range vec {
		norm += float64(v) * float64(v)
	}
	norm = math.Sqrt(norm)
	for i := range vec {
		vec[i] = float32(float64(vec[i]) / norm)
	}
	return Result{Vector: vec}
}
