// Package inmemory implements the ephemeral memory.Store backend.
//
// All collections live in a map owned by one Store and guarded by one
// RWMutex: writers block readers for the duration of a save or remove.
// Point lookups and writes are O(1); relevance and vector queries are a
// linear scan of the collection.
package inmemory

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/becomeliminal/nim-memory/memory"
	"github.com/becomeliminal/nim-memory/memory/relevance"
)

type collection struct {
	createdAt time.Time
	metadata  map[string]any
	records   map[string]*memory.Record
}

// Store is a process-local memory.Store. Its lifetime is bound to the
// process; nothing is persisted.
type Store struct {
	mu          sync.RWMutex
	collections map[string]*collection

	logger *memory.Logger
	now    func() time.Time
}

// Option configures a Store.
type Option func(*Store)

// WithLogger sets the logger.
func WithLogger(l *memory.Logger) Option {
	return func(s *Store) {
		s.logger = l
	}
}

// WithClock sets the timestamp source for records and collections.
func WithClock(now func() time.Time) Option {
	return func(s *Store) {
		s.now = now
	}
}

// New creates an empty Store.
func New(opts ...Option) *Store {
	s := &Store{
		collections: make(map[string]*collection),
		logger:      memory.NoopLogger(),
		now:         time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}
	s.logger = s.logger.WithComponent("inmemory")
	return s
}

var _ memory.Store = (*Store)(nil)

// getOrCreate must be called with the write lock held.
func (s *Store) getOrCreate(name string) *collection {
	col, ok := s.collections[name]
	if !ok {
		col = &collection{
			createdAt: s.now(),
			records:   make(map[string]*memory.Record),
		}
		s.collections[name] = col
	}
	return col
}

// SaveInformation upserts a record, creating the collection if needed.
func (s *Store) SaveInformation(ctx context.Context, collectionName, id, text string, metadata map[string]any, embedding []float32) bool {
	if collectionName == "" {
		s.logger.LogSave(ctx, collectionName, id, memory.ErrEmptyCollection)
		return false
	}
	if err := memory.ValidateEmbedding(embedding); err != nil {
		s.logger.LogSave(ctx, collectionName, id, err)
		return false
	}
	meta, err := memory.NormalizeMetadata(metadata)
	if err != nil {
		s.logger.LogSave(ctx, collectionName, id, err)
		return false
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	col := s.getOrCreate(collectionName)
	col.records[id] = &memory.Record{
		ID:        id,
		Text:      text,
		Metadata:  meta,
		Embedding: memory.CloneEmbedding(embedding),
		Timestamp: s.now(),
	}
	s.logger.LogSave(ctx, collectionName, id, nil)
	return true
}

// GetInformation returns a copy of the record.
func (s *Store) GetInformation(ctx context.Context, collectionName, id string) (*memory.Record, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	col, ok := s.collections[collectionName]
	if !ok {
		return nil, false
	}
	rec, ok := col.records[id]
	if !ok {
		return nil, false
	}
	return rec.Clone(), true
}

// snapshot copies the records of a collection under the read lock so that
// scoring runs without holding it.
func (s *Store) snapshot(collectionName string) ([]*memory.Record, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	col, ok := s.collections[collectionName]
	if !ok {
		return nil, false
	}
	records := make([]*memory.Record, 0, len(col.records))
	for _, rec := range col.records {
		records = append(records, rec.Clone())
	}
	return records, true
}

// GetRelevant ranks the collection against query.
func (s *Store) GetRelevant(ctx context.Context, collectionName, query string, limit int, minScore float64, queryEmbedding []float32) []memory.ResultItem {
	records, ok := s.snapshot(collectionName)
	if !ok {
		return []memory.ResultItem{}
	}
	results := relevance.Relevant(records, query, queryEmbedding, limit, minScore)
	s.logger.LogQuery(ctx, collectionName, "relevant", len(records), len(results), nil)
	return results
}

// SearchByVector ranks records with an embedding by cosine similarity.
func (s *Store) SearchByVector(ctx context.Context, collectionName string, embedding []float32, limit int, minScore float64) []memory.ResultItem {
	records, ok := s.snapshot(collectionName)
	if !ok {
		return []memory.ResultItem{}
	}
	results := relevance.ByVector(records, embedding, limit, minScore)
	s.logger.LogQuery(ctx, collectionName, "vector", len(records), len(results), nil)
	return results
}

// RemoveInformation deletes a record.
func (s *Store) RemoveInformation(ctx context.Context, collectionName, id string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	col, ok := s.collections[collectionName]
	if !ok {
		return false
	}
	_, existed := col.records[id]
	delete(col.records, id)
	s.logger.LogRemove(ctx, collectionName, id, existed, nil)
	return existed
}

// CreateCollection creates an empty collection.
func (s *Store) CreateCollection(ctx context.Context, collectionName string, metadata map[string]any) bool {
	if collectionName == "" {
		return false
	}
	meta, err := memory.NormalizeMetadata(metadata)
	if err != nil {
		s.logger.ErrorContext(ctx, "create collection failed", "collection", collectionName, "error", err)
		return false
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.collections[collectionName]; exists {
		return false
	}
	s.collections[collectionName] = &collection{
		createdAt: s.now(),
		metadata:  meta,
		records:   make(map[string]*memory.Record),
	}
	return true
}

// RemoveCollection deletes a collection and all of its records.
func (s *Store) RemoveCollection(ctx context.Context, collectionName string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	col, ok := s.collections[collectionName]
	if !ok {
		return false
	}
	delete(s.collections, collectionName)
	s.logger.DebugContext(ctx, "collection removed", "collection", collectionName, "records", len(col.records))
	return true
}

// DoesCollectionExist reports whether the collection exists.
func (s *Store) DoesCollectionExist(ctx context.Context, collectionName string) bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	_, ok := s.collections[collectionName]
	return ok
}

// GetCollections returns the collection names, sorted.
func (s *Store) GetCollections(ctx context.Context) []string {
	s.mu.RLock()
	defer s.mu.RUnlock()

	names := make([]string, 0, len(s.collections))
	for name := range s.collections {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// GetCollectionInfo describes a collection.
func (s *Store) GetCollectionInfo(ctx context.Context, collectionName string) (*memory.CollectionInfo, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	col, ok := s.collections[collectionName]
	if !ok {
		return nil, false
	}
	return &memory.CollectionInfo{
		Name:      collectionName,
		CreatedAt: col.createdAt,
		Metadata:  memory.CloneMetadata(col.metadata),
	}, true
}

// GetInformationCount returns the number of records in the collection.
func (s *Store) GetInformationCount(ctx context.Context, collectionName string) int {
	s.mu.RLock()
	defer s.mu.RUnlock()

	col, ok := s.collections[collectionName]
	if !ok {
		return 0
	}
	return len(col.records)
}

// BatchSave saves every item in sequence.
func (s *Store) BatchSave(ctx context.Context, collectionName string, items []memory.BatchItem) []memory.BatchResult {
	results := memory.SaveEach(ctx, s, collectionName, items)
	s.logger.LogBatch(ctx, collectionName, len(results), memory.FailedCount(results))
	return results
}

// BatchSaveInformation returns true if at least one item was saved.
func (s *Store) BatchSaveInformation(ctx context.Context, collectionName string, items []memory.BatchItem) bool {
	return memory.AnySaved(s.BatchSave(ctx, collectionName, items))
}

// Close is a no-op; everything lives in process memory.
func (s *Store) Close() error {
	return nil
}
