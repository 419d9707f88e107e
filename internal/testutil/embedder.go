package testutil

import (
	"context"
	"crypto/sha256"
	"encoding/binary"
	"math"
	"strings"
)

// MockEmbedder produces deterministic embeddings derived from the input
// text, so similarity relationships are stable across test runs without
// any network calls. Identical texts get identical vectors; texts sharing
// words get correlated vectors.
type MockEmbedder struct {
	dimension int
}

// NewMockEmbedder creates a deterministic embedder of the given dimension.
func NewMockEmbedder(dimension int) *MockEmbedder {
	return &MockEmbedder{dimension: dimension}
}

// Dimension implements embed.Embedder.
func (m *MockEmbedder) Dimension() int { return m.dimension }

// Embed implements embed.Embedder.
func (m *MockEmbedder) Embed(_ context.Context, text string) ([]float32, error) {
	if strings.TrimSpace(text) == "" {
		return make([]float32, m.dimension), nil
	}
	return m.vectorFor(text), nil
}

// EmbedBatch implements embed.Embedder.
func (m *MockEmbedder) EmbedBatch(ctx context.Context, texts []string) ([][]float32, error) {
	vectors := make([][]float32, len(texts))
	for i, text := range texts {
		v, err := m.Embed(ctx, text)
		if err != nil {
			return nil, err
		}
		vectors[i] = v
	}
	return vectors, nil
}

// vectorFor sums per-word hash vectors and normalizes, so overlapping
// vocabulary yields higher cosine similarity.
func (m *MockEmbedder) vectorFor(text string) []float32 {
	acc := make([]float64, m.dimension)
	for _, word := range strings.Fields(strings.ToLower(text)) {
		sum := sha256.Sum256([]byte(word))
		for i := range m.dimension {
			// Cycle through the digest to fill the dimension.
			off := (i * 4) % (len(sum) - 4)
			bits := binary.BigEndian.Uint32(sum[off : off+4])
			val := float64(bits)/float64(math.MaxUint32)*2 - 1
			acc[i] += val
		}
	}

	var norm float64
	for _, v := range acc {
		norm += v * v
	}
	norm = math.Sqrt(norm)
	if norm == 0 {
		norm = 1
	}

	vec := make([]float32, m.dimension)
	for i, v := range acc {
		vec[i] = float32(v / norm)
	}
	return vec
}
