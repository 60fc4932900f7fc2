// Package storetest runs the memory.Store contract against any backend.
package storetest

import (
	"context"
	"math"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/becomeliminal/nim-memory/memory"
)

// Factory returns a fresh, empty store for one subtest.
type Factory func(t *testing.T) memory.Store

// Run executes every contract test against stores built by newStore.
func Run(t *testing.T, newStore Factory) {
	tests := []struct {
		name string
		fn   func(t *testing.T, s memory.Store)
	}{
		{"RoundTrip", testRoundTrip},
		{"Overwrite", testOverwrite},
		{"CollectionIsolation", testCollectionIsolation},
		{"ImplicitCollection", testImplicitCollection},
		{"TextRanking", testTextRanking},
		{"VectorSearch", testVectorSearch},
		{"MixedScoring", testMixedScoring},
		{"ThresholdFiltering", testThresholdFiltering},
		{"LimitAndTies", testLimitAndTies},
		{"DimensionMismatch", testDimensionMismatch},
		{"EmptyState", testEmptyState},
		{"RemoveInformation", testRemoveInformation},
		{"RemoveCollection", testRemoveCollection},
		{"CreateCollection", testCreateCollection},
		{"BatchSave", testBatchSave},
		{"ReturnedCopies", testReturnedCopies},
		{"RejectsBadInput", testRejectsBadInput},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s := newStore(t)
			t.Cleanup(func() { _ = s.Close() })
			tt.fn(t, s)
		})
	}
}

func testRoundTrip(t *testing.T, s memory.Store) {
	ctx := context.Background()
	metadata := map[string]any{
		"source": "chat",
		"score":  4.5,
		"pinned": true,
		"tags":   []any{"a", "b"},
		"nested": map[string]any{"depth": 2.0, "none": nil},
	}

	before := time.Now().Add(-time.Second)
	require.True(t, s.SaveInformation(ctx, "notes", "n1", "remember the milk", metadata, []float32{0.25, -1.5, 3}))
	after := time.Now().Add(time.Second)

	rec, ok := s.GetInformation(ctx, "notes", "n1")
	require.True(t, ok)
	assert.Equal(t, "n1", rec.ID)
	assert.Equal(t, "remember the milk", rec.Text)
	assert.Equal(t, metadata, rec.Metadata)
	assert.Equal(t, []float32{0.25, -1.5, 3}, rec.Embedding)
	assert.True(t, rec.Timestamp.After(before), "timestamp %v not after %v", rec.Timestamp, before)
	assert.True(t, rec.Timestamp.Before(after), "timestamp %v not before %v", rec.Timestamp, after)

	require.True(t, s.SaveInformation(ctx, "notes", "empty", "", nil, nil))
	rec, ok = s.GetInformation(ctx, "notes", "empty")
	require.True(t, ok)
	assert.Empty(t, rec.Text)
	assert.Empty(t, rec.Metadata)
	assert.False(t, rec.HasEmbedding())
}

func testOverwrite(t *testing.T, s memory.Store) {
	ctx := context.Background()
	require.True(t, s.SaveInformation(ctx, "notes", "x", "first", nil, nil))
	require.True(t, s.SaveInformation(ctx, "notes", "y", "other", nil, nil))
	require.Equal(t, 2, s.GetInformationCount(ctx, "notes"))

	require.True(t, s.SaveInformation(ctx, "notes", "x", "second", map[string]any{"v": 2.0}, nil))
	assert.Equal(t, 2, s.GetInformationCount(ctx, "notes"))

	rec, ok := s.GetInformation(ctx, "notes", "x")
	require.True(t, ok)
	assert.Equal(t, "second", rec.Text)
	assert.Equal(t, map[string]any{"v": 2.0}, rec.Metadata)
}

func testCollectionIsolation(t *testing.T, s memory.Store) {
	ctx := context.Background()
	require.True(t, s.SaveInformation(ctx, "A", "x", "only in A", nil, nil))

	_, ok := s.GetInformation(ctx, "B", "x")
	assert.False(t, ok)

	require.True(t, s.SaveInformation(ctx, "B", "x", "only in B", nil, nil))
	a, ok := s.GetInformation(ctx, "A", "x")
	require.True(t, ok)
	assert.Equal(t, "only in A", a.Text)
	assert.Equal(t, 1, s.GetInformationCount(ctx, "A"))
	assert.Equal(t, 1, s.GetInformationCount(ctx, "B"))
}

func testImplicitCollection(t *testing.T, s memory.Store) {
	ctx := context.Background()
	assert.False(t, s.DoesCollectionExist(ctx, "implicit"))
	require.True(t, s.SaveInformation(ctx, "implicit", "a", "text", nil, nil))
	assert.True(t, s.DoesCollectionExist(ctx, "implicit"))
	assert.Contains(t, s.GetCollections(ctx), "implicit")

	info, ok := s.GetCollectionInfo(ctx, "implicit")
	require.True(t, ok)
	assert.Equal(t, "implicit", info.Name)
	assert.False(t, info.CreatedAt.IsZero())
}

func testTextRanking(t *testing.T, s memory.Store) {
	ctx := context.Background()
	require.True(t, s.SaveInformation(ctx, "docs", "a", "the cat sat", nil, nil))
	require.True(t, s.SaveInformation(ctx, "docs", "b", "a dog ran", nil, nil))

	results := s.GetRelevant(ctx, "docs", "cat", 2, 0.0, nil)
	require.Len(t, results, 2)
	assert.Equal(t, "a", results[0].ID)
	assert.Equal(t, "b", results[1].ID)
	assert.Greater(t, results[0].Relevance, results[1].Relevance)
	assert.Equal(t, "the cat sat", results[0].Text)
}

func testVectorSearch(t *testing.T, s memory.Store) {
	ctx := context.Background()
	require.True(t, s.SaveInformation(ctx, "docs", "v1", "first", nil, []float32{1, 0}))
	require.True(t, s.SaveInformation(ctx, "docs", "v2", "second", nil, []float32{0, 1}))
	require.True(t, s.SaveInformation(ctx, "docs", "plain", "first", nil, nil))

	results := s.SearchByVector(ctx, "docs", []float32{1, 0}, 2, 0.0)
	require.Len(t, results, 2)
	assert.Equal(t, "v1", results[0].ID)
	assert.InDelta(t, 1.0, results[0].Relevance, 1e-9)
	assert.Equal(t, "v2", results[1].ID)
	assert.InDelta(t, 0.0, results[1].Relevance, 1e-9)

	all := s.SearchByVector(ctx, "docs", []float32{1, 0}, 0, -1)
	assert.Len(t, all, 2, "records without embedding are skipped")
}

func testMixedScoring(t *testing.T, s memory.Store) {
	ctx := context.Background()
	require.True(t, s.SaveInformation(ctx, "mixed", "vec", "zzz", nil, []float32{1, 0}))
	require.True(t, s.SaveInformation(ctx, "mixed", "txt", "cat nap", nil, nil))

	results := s.GetRelevant(ctx, "mixed", "cat", 10, 0, []float32{1, 0})
	require.Len(t, results, 2)
	assert.Equal(t, "vec", results[0].ID)
	assert.InDelta(t, 1.0, results[0].Relevance, 1e-9)
	assert.Equal(t, "txt", results[1].ID)
	assert.InDelta(t, 0.5, results[1].Relevance, 1e-9)
}

func testThresholdFiltering(t *testing.T, s memory.Store) {
	ctx := context.Background()
	require.True(t, s.SaveInformation(ctx, "docs", "exact", "red apple", nil, nil))
	require.True(t, s.SaveInformation(ctx, "docs", "half", "red pear", nil, nil))
	require.True(t, s.SaveInformation(ctx, "docs", "none", "blue sky", nil, nil))

	results := s.GetRelevant(ctx, "docs", "red apple", 10, 0.9, nil)
	require.Len(t, results, 1)
	assert.Equal(t, "exact", results[0].ID)
	for _, r := range results {
		assert.GreaterOrEqual(t, r.Relevance, 0.9)
	}
}

func testLimitAndTies(t *testing.T, s memory.Store) {
	ctx := context.Background()
	for _, id := range []string{"d", "b", "a", "c"} {
		require.True(t, s.SaveInformation(ctx, "ties", id, "same words", nil, nil))
	}

	first := s.GetRelevant(ctx, "ties", "same words", 3, 0, nil)
	require.Len(t, first, 3)
	for i := 0; i < 5; i++ {
		again := s.GetRelevant(ctx, "ties", "same words", 3, 0, nil)
		require.Len(t, again, 3)
		for j := range first {
			assert.Equal(t, first[j].ID, again[j].ID)
		}
	}
	assert.Equal(t, "a", first[0].ID)
	assert.Len(t, s.GetRelevant(ctx, "ties", "same words", 0, 0, nil), 4)
}

func testDimensionMismatch(t *testing.T, s memory.Store) {
	ctx := context.Background()
	require.True(t, s.SaveInformation(ctx, "dims", "two", "", nil, []float32{1, 0}))
	require.True(t, s.SaveInformation(ctx, "dims", "three", "", nil, []float32{1, 0, 0}))

	results := s.SearchByVector(ctx, "dims", []float32{1, 0}, 10, 0)
	require.Len(t, results, 2)
	assert.Equal(t, "two", results[0].ID)
	assert.Equal(t, "three", results[1].ID)
	assert.Zero(t, results[1].Relevance)
}

func testEmptyState(t *testing.T, s memory.Store) {
	ctx := context.Background()
	relevant := s.GetRelevant(ctx, "missing", "anything", 5, 0, nil)
	assert.NotNil(t, relevant)
	assert.Empty(t, relevant)

	byVector := s.SearchByVector(ctx, "missing", []float32{1}, 5, 0)
	assert.NotNil(t, byVector)
	assert.Empty(t, byVector)

	assert.Zero(t, s.GetInformationCount(ctx, "missing"))
	assert.False(t, s.DoesCollectionExist(ctx, "missing"))
	_, ok := s.GetInformation(ctx, "missing", "id")
	assert.False(t, ok)
	_, ok = s.GetCollectionInfo(ctx, "missing")
	assert.False(t, ok)
	assert.Empty(t, s.GetCollections(ctx))
}

func testRemoveInformation(t *testing.T, s memory.Store) {
	ctx := context.Background()
	require.True(t, s.SaveInformation(ctx, "docs", "a", "the cat sat", nil, nil))

	assert.True(t, s.RemoveInformation(ctx, "docs", "a"))
	assert.False(t, s.RemoveInformation(ctx, "docs", "a"))
	assert.False(t, s.RemoveInformation(ctx, "missing", "a"))

	_, ok := s.GetInformation(ctx, "docs", "a")
	assert.False(t, ok)
	assert.Zero(t, s.GetInformationCount(ctx, "docs"))
	assert.Empty(t, s.GetRelevant(ctx, "docs", "cat", 10, 0, nil))
}

func testRemoveCollection(t *testing.T, s memory.Store) {
	ctx := context.Background()
	require.True(t, s.SaveInformation(ctx, "docs", "a", "the cat sat", nil, nil))
	require.True(t, s.SaveInformation(ctx, "docs", "b", "a dog ran", nil, []float32{1}))
	require.True(t, s.SaveInformation(ctx, "keep", "a", "kept", nil, nil))

	assert.True(t, s.RemoveCollection(ctx, "docs"))
	assert.False(t, s.RemoveCollection(ctx, "docs"))

	assert.NotContains(t, s.GetCollections(ctx), "docs")
	assert.Contains(t, s.GetCollections(ctx), "keep")
	_, ok := s.GetInformation(ctx, "docs", "a")
	assert.False(t, ok)
	assert.Zero(t, s.GetInformationCount(ctx, "docs"))

	require.True(t, s.SaveInformation(ctx, "docs", "c", "fresh", nil, nil))
	assert.Equal(t, 1, s.GetInformationCount(ctx, "docs"))
	_, ok = s.GetInformation(ctx, "docs", "b")
	assert.False(t, ok)
}

func testCreateCollection(t *testing.T, s memory.Store) {
	ctx := context.Background()
	assert.True(t, s.CreateCollection(ctx, "explicit", map[string]any{"owner": "ops"}))
	assert.False(t, s.CreateCollection(ctx, "explicit", map[string]any{"owner": "other"}))
	assert.True(t, s.DoesCollectionExist(ctx, "explicit"))
	assert.Zero(t, s.GetInformationCount(ctx, "explicit"))

	info, ok := s.GetCollectionInfo(ctx, "explicit")
	require.True(t, ok)
	assert.Equal(t, map[string]any{"owner": "ops"}, info.Metadata)

	require.True(t, s.SaveInformation(ctx, "explicit", "a", "text", nil, nil))
	info, ok = s.GetCollectionInfo(ctx, "explicit")
	require.True(t, ok)
	assert.Equal(t, map[string]any{"owner": "ops"}, info.Metadata, "saves keep collection metadata")

	assert.ElementsMatch(t, []string{"explicit"}, s.GetCollections(ctx))
}

func testBatchSave(t *testing.T, s memory.Store) {
	ctx := context.Background()
	items := []memory.BatchItem{
		{ID: "a", Text: "alpha"},
		{ID: "bad", Text: "beta", Metadata: map[string]any{"fn": func() {}}},
		{ID: "c", Text: "gamma", Embedding: []float32{1, 2}},
	}

	results := s.BatchSave(ctx, "batch", items)
	require.Len(t, results, 3)
	assert.Equal(t, memory.BatchResult{ID: "a", Saved: true}, results[0])
	assert.Equal(t, memory.BatchResult{ID: "bad", Saved: false}, results[1])
	assert.Equal(t, memory.BatchResult{ID: "c", Saved: true}, results[2])
	assert.Equal(t, 2, s.GetInformationCount(ctx, "batch"))

	partial := []memory.BatchItem{
		{ID: "bad2", Metadata: map[string]any{"ch": make(chan int)}},
		{ID: "d", Text: "delta"},
	}
	assert.True(t, s.BatchSaveInformation(ctx, "batch", partial))

	allBad := []memory.BatchItem{{ID: "x", Metadata: map[string]any{"fn": func() {}}}}
	assert.False(t, s.BatchSaveInformation(ctx, "batch", allBad))
	assert.False(t, s.BatchSaveInformation(ctx, "batch", nil))
	assert.Equal(t, 3, s.GetInformationCount(ctx, "batch"))
}

func testReturnedCopies(t *testing.T, s memory.Store) {
	ctx := context.Background()
	metadata := map[string]any{"k": "v"}
	embedding := []float32{1, 2}
	require.True(t, s.SaveInformation(ctx, "copies", "a", "text", metadata, embedding))

	metadata["k"] = "changed"
	embedding[0] = 99

	rec, ok := s.GetInformation(ctx, "copies", "a")
	require.True(t, ok)
	assert.Equal(t, "v", rec.Metadata["k"])
	assert.Equal(t, float32(1), rec.Embedding[0])

	rec.Metadata["k"] = "mutated"
	rec.Embedding[0] = 42
	again, ok := s.GetInformation(ctx, "copies", "a")
	require.True(t, ok)
	assert.Equal(t, "v", again.Metadata["k"])
	assert.Equal(t, float32(1), again.Embedding[0])
}

func testRejectsBadInput(t *testing.T, s memory.Store) {
	ctx := context.Background()
	assert.False(t, s.SaveInformation(ctx, "", "a", "text", nil, nil))
	assert.False(t, s.CreateCollection(ctx, "", nil))
	assert.False(t, s.SaveInformation(ctx, "docs", "a", "text", map[string]any{"fn": func() {}}, nil))
	assert.False(t, s.DoesCollectionExist(ctx, "docs"), "failed save must not create the collection")

	nan := float32(math.NaN())
	inf := float32(math.Inf(1))
	assert.False(t, s.SaveInformation(ctx, "vecs", "nan", "text", nil, []float32{1, nan}))
	assert.False(t, s.SaveInformation(ctx, "vecs", "inf", "text", nil, []float32{-inf, 0}))
	assert.False(t, s.DoesCollectionExist(ctx, "vecs"))
	assert.True(t, s.SaveInformation(ctx, "vecs", "ok", "text", nil, []float32{1, 0}))
	assert.Equal(t, 1, s.GetInformationCount(ctx, "vecs"))
}
