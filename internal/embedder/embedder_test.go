package embedder

import (
	"context"
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLocalProviderDeterministic(t *testing.T) {
	provider, err := NewLocalProvider(nil)
	require.NoError(t, err)
	defer provider.Close()

	ctx := context.Background()
	first, err := provider.Embed(ctx, Request{Text: "tomato, basil"})
	require.NoError(t, err)
	second, err := provider.Embed(ctx, Request{Text: "tomato, basil"})
	require.NoError(t, err)

	assert.Equal(t, first.Vector, second.Vector)
	assert.Equal(t, LocalDimension, first.Dimension)
	assert.Len(t, first.Vector, LocalDimension)
	assert.Equal(t, ProviderLocal, first.Provider)

	other, err := provider.Embed(ctx, Request{Text: "chocolate"})
	require.NoError(t, err)
	assert.NotEqual(t, first.Vector, other.Vector)
}

func TestLocalProviderNormalized(t *testing.T) {
	provider, err := NewLocalProvider(nil)
	require.NoError(t, err)
	defer provider.Close()

	emb, err := provider.Embed(context.Background(), Request{Text: "tomato"})
	require.NoError(t, err)

	var norm float64
	for _, v := range emb.Vector {
		norm += float64(v) * float64(v)
	}
	assert.InDelta(t, 1.0, math.Sqrt(norm), 1e-5)
}

func TestEmbedEmptyText(t *testing.T) {
	provider, err := NewLocalProvider(nil)
	require.NoError(t, err)
	defer provider.Close()

	_, err = provider.Embed(context.Background(), Request{Text: ""})
	assert.ErrorIs(t, err, ErrEmptyText)
}

func TestEmbedBatch(t *testing.T) {
	provider, err := NewLocalProvider(nil)
	require.NoError(t, err)
	defer provider.Close()

	resp, err := provider.EmbedBatch(context.Background(), BatchRequest{
		Texts: []string{"tomato", "basil", "onion"},
	})
	require.NoError(t, err)
	require.Len(t, resp.Embeddings, 3)
	assert.Equal(t, ProviderLocal, resp.Provider)

	// Batch order follows input order
	single, err := provider.Embed(context.Background(), Request{Text: "basil"})
	require.NoError(t, err)
	assert.Equal(t, single.Vector, resp.Embeddings[1].Vector)
}

func TestEmbedBatchEmpty(t *testing.T) {
	provider, err := NewLocalProvider(nil)
	require.NoError(t, err)
	defer provider.Close()

	_, err = provider.EmbedBatch(context.Background(), BatchRequest{})
	assert.ErrorIs(t, err, ErrInvalidInput)

	_, err = provider.EmbedBatch(context.Background(), BatchRequest{Texts: []string{"a", ""}})
	assert.ErrorIs(t, err, ErrInvalidInput)
}

func TestCacheDeepCopy(t *testing.T) {
	cache := NewCache(10)

	original := &Embedding{
		Vector:    []float32{1, 2, 3},
		Dimension: 3,
		Provider:  ProviderLocal,
		Hash:      "h",
	}
	cache.Set("h", original)

	got, ok := cache.Get("h")
	require.True(t, ok)
	got.Vector[0] = 99

	// Caller mutation must not reach the cached value
	again, ok := cache.Get("h")
	require.True(t, ok)
	assert.Equal(t, float32(1), again.Vector[0])
}

func TestCacheEviction(t *testing.T) {
	cache := NewCache(2)

	cache.Set("a", &Embedding{Hash: "a"})
	cache.Set("b", &Embedding{Hash: "b"})
	cache.Set("c", &Embedding{Hash: "c"})

	assert.Equal(t, 2, cache.Size())
	_, ok := cache.Get("a")
	assert.False(t, ok)
}

func TestComputeHash(t *testing.T) {
	assert.Equal(t, ComputeHash("tomato"), ComputeHash("tomato"))
	assert.NotEqual(t, ComputeHash("tomato"), ComputeHash("basil"))
	assert.Len(t, ComputeHash("tomato"), 64)
}

func TestNormalizeVector(t *testing.T) {
	normalized := NormalizeVector([]float32{3, 4})
	assert.InDelta(t, 0.6, normalized[0], 1e-6)
	assert.InDelta(t, 0.8, normalized[1], 1e-6)

	// Zero vector passes through unchanged
	zero := []float32{0, 0}
	assert.Equal(t, zero, NormalizeVector(zero))
}

func TestFactory(t *testing.T) {
	emb, err := New(Config{Provider: ProviderLocal})
	require.NoError(t, err)
	assert.Equal(t, ProviderLocal, emb.Provider())
	assert.Equal(t, LocalDimension, emb.Dimension())
	assert.NoError(t, emb.Close())

	_, err = New(Config{Provider: "nope"})
	assert.ErrorIs(t, err, ErrUnsupportedModel)
}

func TestDetectProvider(t *testing.T) {
	t.Setenv(EnvProvider, "")
	t.Setenv(EnvOpenAIAPIKey, "")
	t.Setenv(EnvOllamaHost, "")
	assert.Equal(t, ProviderLocal, DetectProvider())

	t.Setenv(EnvOllamaHost, "http://localhost:11434")
	assert.Equal(t, ProviderOllama, DetectProvider())

	t.Setenv(EnvOpenAIAPIKey, "sk-test")
	assert.Equal(t, ProviderOpenAI, DetectProvider())

	t.Setenv(EnvProvider, "LOCAL")
	assert.Equal(t, ProviderLocal, DetectProvider())
}
