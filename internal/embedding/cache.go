// Package embedding caches text embeddings process-wide and builds the
// per-request vector index used for semantic recommendation scoring.
package embedding

import (
	"context"
	"fmt"
	"strconv"

	"github.com/cespare/xxhash/v2"
	lru "github.com/hashicorp/golang-lru/v2"
	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"
	"golang.org/x/sync/singleflight"

	"github.com/paperlens/analysis-service/internal/observability"
)

// DefaultCacheSize is the default embedding cache capacity.
const DefaultCacheSize = 4096

// embedConcurrency bounds parallel embedding requests for cache misses.
const embedConcurrency = 8

// Embedder computes embeddings for a batch of texts.
type Embedder interface {
	Embed(ctx context.Context, texts []string) ([][]float32, error)
}

// CachedEmbedder wraps an Embedder with a process-wide LRU cache keyed by a
// content hash of the source text. Concurrent requests for the same text are
// coalesced into a single upstream call. The cache and coalescing group are
// shared by every view returned from WithClient, so a per-request credential
// never bypasses the cache.
type CachedEmbedder struct {
	inner   Embedder
	cache   *lru.Cache[string, []float32]
	group   *singleflight.Group
	logger  zerolog.Logger
	metrics *observability.Metrics
}

// NewCachedEmbedder creates a caching embedder over inner. A size at or
// below zero falls back to DefaultCacheSize.
func NewCachedEmbedder(inner Embedder, size int, logger zerolog.Logger, metrics *observability.Metrics) (*CachedEmbedder, error) {
	if size <= 0 {
		size = DefaultCacheSize
	}
	cache, err := lru.New[string, []float32](size)
	if err != nil {
		return nil, fmt.Errorf("embedding cache: %w", err)
	}
	return &CachedEmbedder{
		inner:   inner,
		cache:   cache,
		group:   &singleflight.Group{},
		logger:  logger.With().Str("component", "embedding").Logger(),
		metrics: metrics,
	}, nil
}

// WithClient returns a view of the cache that sends upstream requests
// through client instead of the configured embedder. The cache and
// coalescing group are shared with the receiver.
func (c *CachedEmbedder) WithClient(client Embedder) *CachedEmbedder {
	if client == nil || client == c.inner {
		return c
	}
	clone := *c
	clone.inner = client
	return &clone
}

// Len reports the number of cached vectors.
func (c *CachedEmbedder) Len() int {
	return c.cache.Len()
}

// Embed returns one vector per input text, in input order. Cached texts are
// served without an upstream call; misses are fetched concurrently, each
// coalesced across goroutines by content hash. A text whose upstream call
// failed keeps a nil entry, so one bad text never discards the rest of the
// batch. The only error returned is cancellation.
func (c *CachedEmbedder) Embed(ctx context.Context, texts []string) ([][]float32, error) {
	if len(texts) == 0 {
		return nil, nil
	}

	vectors := make([][]float32, len(texts))
	var misses []int

	for i, text := range texts {
		key := contentKey(text)
		if v, ok := c.cache.Get(key); ok {
			if c.metrics != nil {
				c.metrics.RecordEmbeddingCacheHit()
			}
			vectors[i] = v
			continue
		}
		if c.metrics != nil {
			c.metrics.RecordEmbeddingCacheMiss()
		}
		misses = append(misses, i)
	}
	if len(misses) == 0 {
		return vectors, nil
	}

	var g errgroup.Group
	g.SetLimit(embedConcurrency)
	for _, i := range misses {
		g.Go(func() error {
			v, err := c.embedOne(ctx, texts[i])
			if err != nil {
				c.logger.Warn().Err(err).Msg("embedding failed for one text")
				return nil
			}
			vectors[i] = v
			return nil
		})
	}
	_ = g.Wait()

	if err := ctx.Err(); err != nil {
		return nil, err
	}
	return vectors, nil
}

// embedOne fetches one text's vector through the coalescing group and
// stores it in the cache on success.
func (c *CachedEmbedder) embedOne(ctx context.Context, text string) ([]float32, error) {
	key := contentKey(text)

	result, err, _ := c.group.Do(key, func() (interface{}, error) {
		// Another goroutine may have filled the cache while this call
		// waited its turn in the group.
		if v, ok := c.cache.Get(key); ok {
			return v, nil
		}

		if c.metrics != nil {
			c.metrics.RecordEmbeddingRequest()
		}
		batch, err := c.inner.Embed(ctx, []string{text})
		if err != nil {
			if c.metrics != nil {
				c.metrics.RecordEmbeddingFailure()
			}
			return nil, err
		}
		if len(batch) != 1 {
			if c.metrics != nil {
				c.metrics.RecordEmbeddingFailure()
			}
			return nil, fmt.Errorf("embedding: expected 1 vector, got %d", len(batch))
		}

		c.cache.Add(key, batch[0])
		return batch[0], nil
	})
	if err != nil {
		return nil, err
	}
	return result.([]float32), nil
}

// contentKey hashes the source text into the cache key.
func contentKey(text string) string {
	return strconv.FormatUint(xxhash.Sum64String(text), 16)
}
