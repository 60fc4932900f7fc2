package mock

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/becomeliminal/nim-memory/memory/relevance"
)

func TestMockEmbedder_Deterministic(t *testing.T) {
	e := New(64)
	ctx := context.Background()

	a, err := e.Embed(ctx, "send money to alice")
	require.NoError(t, err)
	b, err := e.Embed(ctx, "send money to alice")
	require.NoError(t, err)

	assert.Equal(t, a, b)
	assert.Len(t, a, 64)
	assert.Equal(t, 64, e.Dimensions())
	assert.InDelta(t, 1.0, relevance.CosineSimilarity(a, b), 1e-6)
}

func TestMockEmbedder_SharedWordsAreCloser(t *testing.T) {
	e := New(512)
	ctx := context.Background()

	query, _ := e.Embed(ctx, "cat food")
	near, _ := e.Embed(ctx, "the CAT likes food")
	far, _ := e.Embed(ctx, "quarterly revenue report")

	assert.Greater(t, relevance.CosineSimilarity(query, near), relevance.CosineSimilarity(query, far))
}

func TestMockEmbedder_IgnoresPunctuation(t *testing.T) {
	e := New(64)
	ctx := context.Background()

	plain, err := e.Embed(ctx, "cat food")
	require.NoError(t, err)
	punctuated, err := e.Embed(ctx, "Cat, food!")
	require.NoError(t, err)

	assert.Equal(t, plain, punctuated)
}

func TestMockEmbedder_EmptyText(t *testing.T) {
	e := New(0)
	assert.Equal(t, 384, e.Dimensions())

	v, err := e.Embed(context.Background(), "   ")
	require.NoError(t, err)
	assert.Len(t, v, 384)
	for _, x := range v {
		assert.Zero(t, x)
	}
}

func TestMockEmbedder_CanceledContext(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err := New(8).Embed(ctx, "text")
	assert.ErrorIs(t, err, context.Canceled)
}
