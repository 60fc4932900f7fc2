package memory

import (
	"context"
	"time"
)

// Record is one stored unit of memory inside a collection.
//
// Records are returned by value: mutating a returned Record (including its
// Metadata map or Embedding slice) never affects the stored copy.
type Record struct {
	// ID is caller-supplied and unique only within its collection.
	ID string `json:"id"`

	// Text is the UTF-8 content. It may be empty.
	Text string `json:"text"`

	// Metadata is opaque to the store. Values are normalized to their JSON
	// decoding (float64, string, bool, nil, []any, map[string]any).
	Metadata map[string]any `json:"metadata"`

	// Embedding is optional. The store does not enforce a dimensionality
	// across the records of a collection.
	Embedding []float32 `json:"embedding,omitempty"`

	// Timestamp is the write time, set by the store.
	Timestamp time.Time `json:"timestamp"`
}

// HasEmbedding reports whether the record carries a non-empty embedding.
func (r *Record) HasEmbedding() bool {
	return len(r.Embedding) > 0
}

// ResultItem is a Record projected with the relevance score computed for a
// single query. Scores from cosine similarity lie in [-1, 1], scores from
// text similarity in [0, 1]; both trend toward 1.0 for more relevant records.
type ResultItem struct {
	Record
	Relevance float64 `json:"relevance"`
}

// CollectionInfo describes a collection.
type CollectionInfo struct {
	Name      string         `json:"name"`
	CreatedAt time.Time      `json:"created_at"`
	Metadata  map[string]any `json:"metadata,omitempty"`
}

// BatchItem is one record to ingest with BatchSave.
type BatchItem struct {
	ID        string         `json:"id"`
	Text      string         `json:"text"`
	Metadata  map[string]any `json:"metadata,omitempty"`
	Embedding []float32      `json:"embedding,omitempty"`
}

// BatchResult reports the outcome for a single BatchItem.
type BatchResult struct {
	ID    string `json:"id"`
	Saved bool   `json:"saved"`
}

// Store is the contract every memory backend implements.
// Implementations: inmemory.Store (ephemeral, process-local),
// redis.Store (persistent, shared between processes).
//
// Operational failures never panic or surface as errors: mutating calls
// report false, lookups report not-found, queries return an empty slice.
// Implementations log the underlying cause.
type Store interface {
	// SaveInformation upserts a record, creating the collection if absent.
	SaveInformation(ctx context.Context, collection, id, text string, metadata map[string]any, embedding []float32) bool

	// GetInformation looks up a record by exact id.
	GetInformation(ctx context.Context, collection, id string) (*Record, bool)

	// GetRelevant scores every record in the collection against the query,
	// using cosine similarity when both the query embedding and the record
	// embedding are present and text similarity otherwise. Results scoring
	// below minScore are dropped; at most limit results are returned
	// (limit <= 0 means no cap), highest score first.
	GetRelevant(ctx context.Context, collection, query string, limit int, minScore float64, queryEmbedding []float32) []ResultItem

	// RemoveInformation deletes a record. It returns true if one existed.
	RemoveInformation(ctx context.Context, collection, id string) bool

	// CreateCollection returns true if the collection was newly created and
	// false if it already existed.
	CreateCollection(ctx context.Context, collection string, metadata map[string]any) bool

	// RemoveCollection deletes the collection and every record inside it.
	RemoveCollection(ctx context.Context, collection string) bool

	DoesCollectionExist(ctx context.Context, collection string) bool

	// GetCollections returns collection names in no particular order.
	GetCollections(ctx context.Context) []string

	GetCollectionInfo(ctx context.Context, collection string) (*CollectionInfo, bool)

	// GetInformationCount returns 0 for a collection that does not exist.
	GetInformationCount(ctx context.Context, collection string) int

	// SearchByVector ranks records by cosine similarity only. Records
	// without an embedding are skipped.
	SearchByVector(ctx context.Context, collection string, embedding []float32, limit int, minScore float64) []ResultItem

	// BatchSaveInformation saves each item in order and returns true if at
	// least one item was saved. Use BatchSave to learn which.
	BatchSaveInformation(ctx context.Context, collection string, items []BatchItem) bool

	// BatchSave saves each item in order and reports the outcome per item.
	BatchSave(ctx context.Context, collection string, items []BatchItem) []BatchResult

	// Close releases resources.
	Close() error
}

// Embedder converts text to vector embeddings.
// The Store never calls an Embedder; SimpleManager does.
type Embedder interface {
	// Embed converts a single text to embedding vector.
	Embed(ctx context.Context, text string) ([]float32, error)

	// Dimensions returns embedding vector size.
	Dimensions() int
}

// Saver is the single-record write used by SaveEach.
type Saver interface {
	SaveInformation(ctx context.Context, collection, id, text string, metadata map[string]any, embedding []float32) bool
}

// SaveEach applies SaveInformation to every item in sequence. Backends use
// it to implement BatchSave.
func SaveEach(ctx context.Context, s Saver, collection string, items []BatchItem) []BatchResult {
	results := make([]BatchResult, len(items))
	for i, item := range items {
		results[i] = BatchResult{
			ID:    item.ID,
			Saved: s.SaveInformation(ctx, collection, item.ID, item.Text, item.Metadata, item.Embedding),
		}
	}
	return results
}

// AnySaved reports whether at least one batch item was saved.
func AnySaved(results []BatchResult) bool {
	for _, r := range results {
		if r.Saved {
			return true
		}
	}
	return false
}

// FailedCount returns how many batch items were not saved.
func FailedCount(results []BatchResult) int {
	failed := 0
	for _, r := range results {
		if !r.Saved {
			failed++
		}
	}
	return failed
}
