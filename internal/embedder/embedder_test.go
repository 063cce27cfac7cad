package embedder

import (
	"context"
	"errors"
	"fmt"
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestComputeHash(t *testing.T) {
	a := ComputeHash("m", "Iron Sword")
	assert.Len(t, a, 16)
	assert.Equal(t, a, ComputeHash("m", "Iron Sword"))
	assert.NotEqual(t, a, ComputeHash("m", "Iron Shield"))
	assert.NotEqual(t, a, ComputeHash("other", "Iron Sword"), "model is part of the key")
}

func TestValidateRequest(t *testing.T) {
	assert.ErrorIs(t, ValidateRequest(EmbeddingRequest{}), ErrEmptyText)
	assert.NoError(t, ValidateRequest(EmbeddingRequest{Text: "x"}))

	err := ValidateBatchRequest(BatchEmbeddingRequest{})
	assert.ErrorIs(t, err, ErrInvalidInput)

	err = ValidateBatchRequest(BatchEmbeddingRequest{Texts: []string{"a", ""}})
	require.ErrorIs(t, err, ErrInvalidInput)
	assert.Contains(t, err.Error(), "index 1")
}

func TestCache(t *testing.T) {
	t.Run("get returns copy", func(t *testing.T) {
		c := NewCache(4)
		c.Set("k", &Embedding{Vector: []float32{1, 2}, Dimension: 2})

		got, ok := c.Get("k")
		require.True(t, ok)
		got.Vector[0] = 99

		again, _ := c.Get("k")
		assert.Equal(t, float32(1), again.Vector[0])
	})

	t.Run("evicts oldest", func(t *testing.T) {
		c := NewCache(2)
		for i := 0; i < 3; i++ {
			c.Set(fmt.Sprintf("k%d", i), &Embedding{})
		}
		assert.Equal(t, 2, c.Size())
		_, ok := c.Get("k0")
		assert.False(t, ok)

		c.Clear()
		assert.Zero(t, c.Size())
	})

	t.Run("nil cache is a no-op", func(t *testing.T) {
		var c *Cache
		c.Set("k", &Embedding{})
		_, ok := c.Get("k")
		assert.False(t, ok)
		assert.Zero(t, c.Size())
	})
}

func TestLocalProvider(t *testing.T) {
	ctx := context.Background()

	t.Run("deterministic and normalized", func(t *testing.T) {
		p, err := NewLocalProvider(64, nil)
		require.NoError(t, err)

		a, err := p.GenerateEmbedding(ctx, EmbeddingRequest{Text: "Iron Sword"})
		require.NoError(t, err)
		b, err := p.GenerateEmbedding(ctx, EmbeddingRequest{Text: "Iron Sword"})
		require.NoError(t, err)

		assert.Equal(t, a.Vector, b.Vector)
		assert.Len(t, a.Vector, 64)
		assert.InDelta(t, 1.0, norm(a.Vector), 1e-5)
	})

	t.Run("shared vocabulary is closer", func(t *testing.T) {
		p, _ := NewLocalProvider(256, nil)
		resp, err := p.GenerateBatch(ctx, BatchEmbeddingRequest{
			Texts: []string{"iron sword blade", "iron sword hilt", "goblin shaman staff"},
		})
		require.NoError(t, err)
		require.Len(t, resp.Embeddings, 3)

		near := dot(resp.Embeddings[0].Vector, resp.Embeddings[1].Vector)
		far := dot(resp.Embeddings[0].Vector, resp.Embeddings[2].Vector)
		assert.Greater(t, near, far)
	})

	t.Run("default dimension and identity", func(t *testing.T) {
		p, _ := NewLocalProvider(0, NewCache(8))
		assert.Equal(t, LocalDimension, p.Dimension())
		assert.Equal(t, "local/"+DefaultLocalModel, p.ProviderID())
		assert.NoError(t, p.Validate(ctx))
		assert.NoError(t, p.Close())
	})

	t.Run("cached result", func(t *testing.T) {
		cache := NewCache(8)
		p, _ := NewLocalProvider(16, cache)
		_, err := p.GenerateEmbedding(ctx, EmbeddingRequest{Text: "cached"})
		require.NoError(t, err)
		assert.Equal(t, 1, cache.Size())
	})

	t.Run("cancelled context", func(t *testing.T) {
		p, _ := NewLocalProvider(16, nil)
		cctx, cancel := context.WithCancel(ctx)
		cancel()
		_, err := p.GenerateBatch(cctx, BatchEmbeddingRequest{Texts: []string{"a"}})
		assert.True(t, errors.Is(err, context.Canceled))
		assert.ErrorIs(t, p.Validate(cctx), context.Canceled)
	})
}

func TestNormalizeVector(t *testing.T) {
	v := NormalizeVector([]float32{3, 4})
	assert.InDelta(t, 0.6, v[0], 1e-6)
	assert.InDelta(t, 0.8, v[1], 1e-6)

	zero := []float32{0, 0}
	assert.Equal(t, zero, NormalizeVector(zero))
}

func norm(v []float32) float64 {
	var s float64
	for _, x := range v {
		s += float64(x) * float64(x)
	}
	return math.Sqrt(s)
}

func dot(a, b []float32) float64 {
	var s float64
	for i := range a {
		s += float64(a[i]) * float64(b[i])
	}
	return s
}
