package memory

import (
	"encoding/json"
	"fmt"
	"math"
	"slices"
)

// NormalizeMetadata returns a deep copy of metadata in the form a JSON
// round trip produces. A nil map stays nil.
func NormalizeMetadata(metadata map[string]any) (map[string]any, error) {
	if metadata == nil {
		return nil, nil
	}
	raw, err := json.Marshal(metadata)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrNotJSON, err)
	}
	out := make(map[string]any, len(metadata))
	if err := json.Unmarshal(raw, &out); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrNotJSON, err)
	}
	return out, nil
}

// CloneMetadata deep-copies an already normalized metadata map.
func CloneMetadata(metadata map[string]any) map[string]any {
	if metadata == nil {
		return nil
	}
	out := make(map[string]any, len(metadata))
	for k, v := range metadata {
		out[k] = cloneValue(v)
	}
	return out
}

func cloneValue(v any) any {
	switch t := v.(type) {
	case map[string]any:
		return CloneMetadata(t)
	case []any:
		out := make([]any, len(t))
		for i, e := range t {
			out[i] = cloneValue(e)
		}
		return out
	default:
		return v
	}
}

// ValidateEmbedding rejects embeddings with NaN or infinite components.
// Both backends call it before writing, so they accept the same input.
func ValidateEmbedding(embedding []float32) error {
	for i, v := range embedding {
		f := float64(v)
		if math.IsNaN(f) || math.IsInf(f, 0) {
			return fmt.Errorf("%w: component %d is %v", ErrNonFiniteEmbedding, i, v)
		}
	}
	return nil
}

// CloneEmbedding copies an embedding. Empty embeddings become nil.
func CloneEmbedding(embedding []float32) []float32 {
	if len(embedding) == 0 {
		return nil
	}
	return slices.Clone(embedding)
}

// Clone returns an independent copy of the record.
func (r *Record) Clone() *Record {
	c := *r
	c.Metadata = CloneMetadata(r.Metadata)
	c.Embedding = CloneEmbedding(r.Embedding)
	return &c
}
