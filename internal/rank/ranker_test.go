package rank

import (
	"math"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/paperlens/analysis-service/internal/domain"
	"github.com/paperlens/analysis-service/internal/embedding"
)

func candidate(id string, citations int) *domain.Paper {
	return &domain.Paper{
		CanonicalID:   id,
		Title:         "Paper " + id,
		CitationCount: citations,
	}
}

// buildGraph roots a graph at rootID with the given direct neighbors.
func buildGraph(rootID string, neighborIDs ...string) *domain.Graph {
	g := domain.NewGraph(rootID)
	g.AddNode(&domain.GraphNode{ID: rootID})
	for _, id := range neighborIDs {
		g.AddNode(&domain.GraphNode{ID: id})
		g.AddEdge(id, rootID, domain.RelationCites)
	}
	return g
}

// indexWith stores unit vectors whose angle to the root encodes the wanted
// normalized similarity: similarity s maps to cosine 2s-1.
func indexWith(t *testing.T, rootID string, similarities map[string]float64) *embedding.Index {
	t.Helper()
	idx := embedding.NewIndex()
	require.NoError(t, idx.Add(rootID, []float32{1, 0}))
	for id, s := range similarities {
		cos := 2*s - 1
		sin := 1 - cos*cos
		if sin < 0 {
			sin = 0
		}
		require.NoError(t, idx.Add(id, []float32{float32(cos), float32(math.Sqrt(sin))}))
	}
	return idx
}

func newTestRanker(cfg Config) *Ranker {
	return New(cfg, zerolog.Nop(), nil)
}

func TestRanker_Rank(t *testing.T) {
	const rootID = "doi:10.1/root"

	t.Run("neighbor with low similarity beats non-neighbor with high similarity", func(t *testing.T) {
		graph := buildGraph(rootID, "doi:10.1/neighbor")
		idx := indexWith(t, rootID, map[string]float64{
			"doi:10.1/neighbor": 0.1,
			"doi:10.1/stranger": 0.9,
		})

		r := newTestRanker(Config{})
		ranked := r.Rank(graph, idx, []*domain.Paper{
			candidate("doi:10.1/stranger", 100),
			candidate("doi:10.1/neighbor", 5),
		})

		require.Len(t, ranked, 2)
		assert.Equal(t, "doi:10.1/neighbor", ranked[0].CanonicalID)
		assert.InDelta(t, 0.55, ranked[0].Combined, 0.01)
		assert.Equal(t, "doi:10.1/stranger", ranked[1].CanonicalID)
		assert.InDelta(t, 0.45, ranked[1].Combined, 0.01)
	})

	t.Run("root paper never recommends itself", func(t *testing.T) {
		graph := buildGraph(rootID, "doi:10.1/a")
		r := newTestRanker(Config{})

		ranked := r.Rank(graph, nil, []*domain.Paper{
			candidate(rootID, 1000),
			candidate("doi:10.1/a", 10),
		})
		require.Len(t, ranked, 1)
		assert.Equal(t, "doi:10.1/a", ranked[0].CanonicalID)
	})

	t.Run("sorted by combined score descending", func(t *testing.T) {
		graph := buildGraph(rootID, "doi:10.1/b")
		idx := indexWith(t, rootID, map[string]float64{
			"doi:10.1/a": 0.4,
			"doi:10.1/b": 0.2,
			"doi:10.1/c": 0.8,
		})

		r := newTestRanker(Config{})
		ranked := r.Rank(graph, idx, []*domain.Paper{
			candidate("doi:10.1/a", 0),
			candidate("doi:10.1/b", 0),
			candidate("doi:10.1/c", 0),
		})

		require.Len(t, ranked, 3)
		// b: 0.5*1 + 0.5*0.2 = 0.6; c: 0.4; a: 0.2.
		assert.Equal(t, "doi:10.1/b", ranked[0].CanonicalID)
		assert.Equal(t, "doi:10.1/c", ranked[1].CanonicalID)
		assert.Equal(t, "doi:10.1/a", ranked[2].CanonicalID)
		for i := 1; i < len(ranked); i++ {
			assert.GreaterOrEqual(t, ranked[i-1].Combined, ranked[i].Combined)
		}
	})

	t.Run("equal combined scores break ties by citation count", func(t *testing.T) {
		graph := buildGraph(rootID, "doi:10.1/low", "doi:10.1/high")
		r := newTestRanker(Config{})

		ranked := r.Rank(graph, nil, []*domain.Paper{
			candidate("doi:10.1/low", 5),
			candidate("doi:10.1/high", 500),
		})
		require.Len(t, ranked, 2)
		assert.Equal(t, "doi:10.1/high", ranked[0].CanonicalID)
		assert.Equal(t, "doi:10.1/low", ranked[1].CanonicalID)
	})

	t.Run("equal scores and citations break ties by identifier", func(t *testing.T) {
		graph := buildGraph(rootID, "doi:10.1/zzz", "doi:10.1/aaa")
		r := newTestRanker(Config{})

		ranked := r.Rank(graph, nil, []*domain.Paper{
			candidate("doi:10.1/zzz", 10),
			candidate("doi:10.1/aaa", 10),
		})
		require.Len(t, ranked, 2)
		assert.Equal(t, "doi:10.1/aaa", ranked[0].CanonicalID)
	})

	t.Run("candidate missing from the index keeps graph score only", func(t *testing.T) {
		graph := buildGraph(rootID, "doi:10.1/unembedded")
		idx := indexWith(t, rootID, nil)

		r := newTestRanker(Config{})
		ranked := r.Rank(graph, idx, []*domain.Paper{candidate("doi:10.1/unembedded", 1)})
		require.Len(t, ranked, 1)
		assert.Equal(t, 1.0, ranked[0].GraphScore)
		assert.Equal(t, 0.0, ranked[0].SemanticScore)
		assert.InDelta(t, 0.5, ranked[0].Combined, 1e-9)
	})

	t.Run("duplicate candidates are scored once", func(t *testing.T) {
		graph := buildGraph(rootID, "doi:10.1/a")
		r := newTestRanker(Config{})

		ranked := r.Rank(graph, nil, []*domain.Paper{
			candidate("doi:10.1/a", 1),
			candidate("doi:10.1/a", 1),
		})
		assert.Len(t, ranked, 1)
	})

	t.Run("custom weights change the blend", func(t *testing.T) {
		graph := buildGraph(rootID, "doi:10.1/neighbor")
		idx := indexWith(t, rootID, map[string]float64{
			"doi:10.1/neighbor": 0.0,
			"doi:10.1/stranger": 1.0,
		})

		r := newTestRanker(Config{GraphWeight: 0.2, SemanticWeight: 0.8})
		ranked := r.Rank(graph, idx, []*domain.Paper{
			candidate("doi:10.1/neighbor", 0),
			candidate("doi:10.1/stranger", 0),
		})
		require.Len(t, ranked, 2)
		// Stranger: 0.8; neighbor: 0.2.
		assert.Equal(t, "doi:10.1/stranger", ranked[0].CanonicalID)
	})

	t.Run("caps at the configured maximum", func(t *testing.T) {
		graph := buildGraph(rootID)
		r := newTestRanker(Config{MaxResults: 2})

		ranked := r.Rank(graph, nil, []*domain.Paper{
			candidate("doi:10.1/a", 3),
			candidate("doi:10.1/b", 2),
			candidate("doi:10.1/c", 1),
		})
		assert.Len(t, ranked, 2)
	})

	t.Run("nil graph yields nothing", func(t *testing.T) {
		r := newTestRanker(Config{})
		assert.Nil(t, r.Rank(nil, nil, []*domain.Paper{candidate("doi:10.1/a", 1)}))
	})

	t.Run("nil and identifierless candidates are skipped", func(t *testing.T) {
		graph := buildGraph(rootID)
		r := newTestRanker(Config{})
		ranked := r.Rank(graph, nil, []*domain.Paper{nil, {Title: "No ID"}})
		assert.Empty(t, ranked)
	})
}

func TestRanker_WithLimit(t *testing.T) {
	base := newTestRanker(Config{MaxResults: 10})

	t.Run("override caps the list", func(t *testing.T) {
		graph := buildGraph("doi:10.1/root")
		ranked := base.WithLimit(1).Rank(graph, nil, []*domain.Paper{
			candidate("doi:10.1/a", 2),
			candidate("doi:10.1/b", 1),
		})
		assert.Len(t, ranked, 1)
	})

	t.Run("non-positive override keeps the configured cap", func(t *testing.T) {
		assert.Same(t, base, base.WithLimit(0))
		assert.Same(t, base, base.WithLimit(-3))
		assert.Same(t, base, base.WithLimit(10))
	})
}
