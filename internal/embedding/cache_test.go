package embedding

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// stubEmbedder counts upstream calls and returns a fixed-dimension vector
// derived from the text length.
type stubEmbedder struct {
	calls    atomic.Int32
	err      error
	failText string
	release  chan struct{}
}

func (s *stubEmbedder) Embed(ctx context.Context, texts []string) ([][]float32, error) {
	s.calls.Add(1)
	if s.release != nil {
		<-s.release
	}
	if s.err != nil {
		return nil, s.err
	}
	for _, t := range texts {
		if s.failText != "" && t == s.failText {
			return nil, errors.New("embeddings down")
		}
	}
	out := make([][]float32, len(texts))
	for i, t := range texts {
		out[i] = []float32{float32(len(t)), 1, 0}
	}
	return out, nil
}

func newTestCache(t *testing.T, inner Embedder, size int) *CachedEmbedder {
	t.Helper()
	c, err := NewCachedEmbedder(inner, size, zerolog.Nop(), nil)
	require.NoError(t, err)
	return c
}

func TestCachedEmbedder_Embed(t *testing.T) {
	t.Run("first request misses, second hits", func(t *testing.T) {
		inner := &stubEmbedder{}
		c := newTestCache(t, inner, 16)

		v1, err := c.Embed(context.Background(), []string{"some text"})
		require.NoError(t, err)
		require.Len(t, v1, 1)
		assert.Equal(t, int32(1), inner.calls.Load())

		v2, err := c.Embed(context.Background(), []string{"some text"})
		require.NoError(t, err)
		assert.Equal(t, v1[0], v2[0])
		// The cached vector is served without an upstream call.
		assert.Equal(t, int32(1), inner.calls.Load())
		assert.Equal(t, 1, c.Len())
	})

	t.Run("batch preserves input order", func(t *testing.T) {
		inner := &stubEmbedder{}
		c := newTestCache(t, inner, 16)

		vectors, err := c.Embed(context.Background(), []string{"a", "bbbb", "cc"})
		require.NoError(t, err)
		require.Len(t, vectors, 3)
		assert.Equal(t, float32(1), vectors[0][0])
		assert.Equal(t, float32(4), vectors[1][0])
		assert.Equal(t, float32(2), vectors[2][0])
	})

	t.Run("mixed hit and miss", func(t *testing.T) {
		inner := &stubEmbedder{}
		c := newTestCache(t, inner, 16)

		_, err := c.Embed(context.Background(), []string{"warm"})
		require.NoError(t, err)
		before := inner.calls.Load()

		vectors, err := c.Embed(context.Background(), []string{"warm", "cold"})
		require.NoError(t, err)
		require.Len(t, vectors, 2)
		// Only the cold text went upstream.
		assert.Equal(t, before+1, inner.calls.Load())
	})

	t.Run("upstream failure leaves a nil entry", func(t *testing.T) {
		inner := &stubEmbedder{err: errors.New("embeddings down")}
		c := newTestCache(t, inner, 16)

		vectors, err := c.Embed(context.Background(), []string{"text"})
		require.NoError(t, err)
		require.Len(t, vectors, 1)
		assert.Nil(t, vectors[0])
		assert.Zero(t, c.Len())
	})

	t.Run("one failed text does not discard the batch", func(t *testing.T) {
		inner := &stubEmbedder{failText: "broken"}
		c := newTestCache(t, inner, 16)

		vectors, err := c.Embed(context.Background(), []string{"fine", "broken", "also fine"})
		require.NoError(t, err)
		require.Len(t, vectors, 3)
		assert.NotNil(t, vectors[0])
		assert.Nil(t, vectors[1])
		assert.NotNil(t, vectors[2])
		// The successful texts are cached, the failed one is not.
		assert.Equal(t, 2, c.Len())
	})

	t.Run("failures are not cached", func(t *testing.T) {
		inner := &stubEmbedder{err: errors.New("embeddings down")}
		c := newTestCache(t, inner, 16)

		vectors, err := c.Embed(context.Background(), []string{"text"})
		require.NoError(t, err)
		assert.Nil(t, vectors[0])

		inner.err = nil
		vectors, err = c.Embed(context.Background(), []string{"text"})
		require.NoError(t, err)
		require.Len(t, vectors, 1)
		assert.NotNil(t, vectors[0])
		assert.Equal(t, 1, c.Len())
	})

	t.Run("cancellation is returned as an error", func(t *testing.T) {
		inner := &stubEmbedder{}
		c := newTestCache(t, inner, 16)

		ctx, cancel := context.WithCancel(context.Background())
		cancel()
		_, err := c.Embed(ctx, []string{"text"})
		require.ErrorIs(t, err, context.Canceled)
	})

	t.Run("concurrent identical requests are coalesced", func(t *testing.T) {
		inner := &stubEmbedder{release: make(chan struct{})}
		c := newTestCache(t, inner, 16)

		const goroutines = 8
		var wg sync.WaitGroup
		results := make([][]float32, goroutines)
		errs := make([]error, goroutines)
		for i := 0; i < goroutines; i++ {
			wg.Add(1)
			go func(i int) {
				defer wg.Done()
				v, err := c.Embed(context.Background(), []string{"shared text"})
				if err == nil {
					results[i] = v[0]
				}
				errs[i] = err
			}(i)
		}
		close(inner.release)
		wg.Wait()

		for i := 0; i < goroutines; i++ {
			require.NoError(t, errs[i])
			assert.Equal(t, results[0], results[i])
		}
		// Coalescing keeps the upstream call count well below fan-in.
		assert.Less(t, inner.calls.Load(), int32(goroutines))
	})

	t.Run("empty input", func(t *testing.T) {
		c := newTestCache(t, &stubEmbedder{}, 16)
		vectors, err := c.Embed(context.Background(), nil)
		require.NoError(t, err)
		assert.Nil(t, vectors)
	})

	t.Run("eviction at capacity", func(t *testing.T) {
		c := newTestCache(t, &stubEmbedder{}, 2)
		_, err := c.Embed(context.Background(), []string{"one", "twoo", "three"})
		require.NoError(t, err)
		assert.Equal(t, 2, c.Len())
	})
}

func TestCachedEmbedder_WithClient(t *testing.T) {
	base := &stubEmbedder{}
	c := newTestCache(t, base, 16)

	t.Run("nil or same client returns the receiver", func(t *testing.T) {
		assert.Same(t, c, c.WithClient(nil))
		assert.Same(t, c, c.WithClient(base))
	})

	t.Run("view shares the cache", func(t *testing.T) {
		_, err := c.Embed(context.Background(), []string{"shared entry"})
		require.NoError(t, err)

		scoped := &stubEmbedder{}
		view := c.WithClient(scoped)
		_, err = view.Embed(context.Background(), []string{"shared entry"})
		require.NoError(t, err)
		// The warm entry is served from the shared cache.
		assert.Zero(t, scoped.calls.Load())

		_, err = view.Embed(context.Background(), []string{"new entry"})
		require.NoError(t, err)
		// The miss goes through the view's client, not the base one.
		assert.Equal(t, int32(1), scoped.calls.Load())

		// And the base view now sees the entry the scoped view filled.
		before := base.calls.Load()
		_, err = c.Embed(context.Background(), []string{"new entry"})
		require.NoError(t, err)
		assert.Equal(t, before, base.calls.Load())
	})
}
