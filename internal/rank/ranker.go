// Package rank orders recommendation candidates by a weighted blend of
// citation-graph proximity and semantic similarity.
package rank

import (
	"sort"

	"github.com/rs/zerolog"

	"github.com/paperlens/analysis-service/internal/domain"
	"github.com/paperlens/analysis-service/internal/embedding"
	"github.com/paperlens/analysis-service/internal/observability"
)

// Default blend weights and result cap.
const (
	DefaultGraphWeight    = 0.5
	DefaultSemanticWeight = 0.5
	DefaultMaxResults     = 10
)

// Config holds ranker settings.
type Config struct {
	// GraphWeight scales the graph-proximity sub-score.
	GraphWeight float64

	// SemanticWeight scales the semantic-similarity sub-score.
	SemanticWeight float64

	// MaxResults caps the returned recommendation list.
	MaxResults int
}

// Ranker scores candidates against a root paper. A candidate's graph score
// is 1 when it is a direct citing or cited neighbor of the root, 0
// otherwise; its semantic score is the normalized cosine similarity of its
// embedding to the root's. A candidate missing from the index keeps a
// semantic score of 0 and still competes on graph proximity.
type Ranker struct {
	cfg     Config
	logger  zerolog.Logger
	metrics *observability.Metrics
}

// New creates a ranker. Zero weights fall back to the equal default blend.
func New(cfg Config, logger zerolog.Logger, metrics *observability.Metrics) *Ranker {
	if cfg.GraphWeight == 0 && cfg.SemanticWeight == 0 {
		cfg.GraphWeight = DefaultGraphWeight
		cfg.SemanticWeight = DefaultSemanticWeight
	}
	if cfg.MaxResults <= 0 {
		cfg.MaxResults = DefaultMaxResults
	}
	return &Ranker{
		cfg:     cfg,
		logger:  logger.With().Str("component", "rank").Logger(),
		metrics: metrics,
	}
}

// WithLimit returns a copy of the ranker with a per-request result cap.
// A limit at or below zero keeps the configured cap.
func (r *Ranker) WithLimit(n int) *Ranker {
	if n <= 0 || n == r.cfg.MaxResults {
		return r
	}
	clone := *r
	clone.cfg.MaxResults = n
	return &clone
}

// Rank scores the candidate pool and returns it sorted by combined score
// descending, with ties broken by citation count descending and then by
// identifier ascending. The root paper never appears in its own list.
// Candidates sharing an identifier are scored once.
func (r *Ranker) Rank(graph *domain.Graph, index *embedding.Index, candidates []*domain.Paper) []domain.RankedCandidate {
	if graph == nil {
		return nil
	}

	neighbors := graph.Neighbors()
	semantic := make(map[string]float64)
	if index != nil {
		for _, m := range index.Nearest(graph.Root, index.Len()) {
			semantic[m.ID] = m.Score
		}
	}

	seen := make(map[string]bool, len(candidates))
	ranked := make([]domain.RankedCandidate, 0, len(candidates))

	for _, p := range candidates {
		if p == nil || p.CanonicalID == "" || p.CanonicalID == graph.Root {
			continue
		}
		if seen[p.CanonicalID] {
			continue
		}
		seen[p.CanonicalID] = true

		graphScore := 0.0
		if neighbors[p.CanonicalID] {
			graphScore = 1.0
		}
		semanticScore := semantic[p.CanonicalID]

		ranked = append(ranked, domain.RankedCandidate{
			CanonicalID:   p.CanonicalID,
			Combined:      r.cfg.GraphWeight*graphScore + r.cfg.SemanticWeight*semanticScore,
			GraphScore:    graphScore,
			SemanticScore: semanticScore,
			CitationCount: p.CitationCount,
			Paper:         p,
		})
	}

	sort.SliceStable(ranked, func(i, j int) bool {
		if ranked[i].Combined != ranked[j].Combined {
			return ranked[i].Combined > ranked[j].Combined
		}
		if ranked[i].CitationCount != ranked[j].CitationCount {
			return ranked[i].CitationCount > ranked[j].CitationCount
		}
		return ranked[i].CanonicalID < ranked[j].CanonicalID
	})

	if len(ranked) > r.cfg.MaxResults {
		ranked = ranked[:r.cfg.MaxResults]
	}

	if r.metrics != nil {
		r.metrics.RecordRecommendations(len(ranked))
	}
	r.logger.Debug().Int("candidates", len(candidates)).Int("ranked", len(ranked)).Msg("candidates ranked")

	return ranked
}
