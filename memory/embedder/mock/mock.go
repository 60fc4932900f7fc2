package mock

import (
	"context"
	"hash/fnv"
	"math"

	"github.com/becomeliminal/nim-memory/memory/relevance"
)

// MockEmbedder is a deterministic embedder for tests and local tooling.
// Each distinct lower-cased word is hashed to one dimension and a sign
// (feature hashing), so texts sharing words get a positive cosine
// similarity and disjoint texts score near zero.
type MockEmbedder struct {
	dimensions int
}

// New creates a new mock embedder with the given dimensions.
// Non-positive values fall back to 384.
func New(dimensions int) *MockEmbedder {
	if dimensions <= 0 {
		dimensions = 384
	}
	return &MockEmbedder{dimensions: dimensions}
}

// Embed creates a deterministic, unit-length embedding from text.
// Text without words yields the zero vector.
func (m *MockEmbedder) Embed(ctx context.Context, text string) ([]float32, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	embedding := make([]float32, m.dimensions)
	for word := range relevance.Tokenize(text) {
		h := fnv.New64a()
		h.Write([]byte(word))
		sum := h.Sum64()

		idx := int(sum % uint64(m.dimensions))
		if sum&(1<<63) != 0 {
			embedding[idx]--
		} else {
			embedding[idx]++
		}
	}

	return normalize(embedding), nil
}

// Dimensions returns the embedding size.
func (m *MockEmbedder) Dimensions() int {
	return m.dimensions
}

// normalize converts embedding to unit vector.
func normalize(vec []float32) []float32 {
	var norm float32
	for _, v := range vec {
		norm += v * v
	}

	if norm == 0 {
		return vec
	}

	norm = float32(math.Sqrt(float64(norm)))
	normalized := make([]float32, len(vec))
	for i, v := range vec {
		normalized[i] = v / norm
	}

	return normalized
}
