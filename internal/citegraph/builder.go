// Package citegraph builds the one-hop citation neighborhood around a
// resolved paper.
package citegraph

import (
	"context"
	"fmt"
	"sort"

	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"

	"github.com/paperlens/analysis-service/internal/domain"
	"github.com/paperlens/analysis-service/internal/observability"
	"github.com/paperlens/analysis-service/internal/papersources"
)

// DefaultNeighborLimit is the default cap on neighbors fetched per direction.
const DefaultNeighborLimit = 100

// Config holds graph builder settings.
type Config struct {
	// NeighborLimit caps citing and cited neighbors independently, so a
	// finished graph holds at most 2*NeighborLimit+1 nodes.
	NeighborLimit int
}

// Result is a built citation neighborhood together with the full neighbor
// records, which seed the recommendation candidate pool.
type Result struct {
	// Graph is the one-hop neighborhood rooted at the paper.
	Graph *domain.Graph

	// Neighbors holds the fetched neighbor papers, deduplicated by
	// identifier and sorted by identifier. The root is excluded.
	Neighbors []*domain.Paper
}

// Builder fetches the citing and cited neighborhoods of a paper and
// assembles them into a domain.Graph. Both directions are fetched
// concurrently; a failure in one direction degrades the graph instead of
// failing the build.
type Builder struct {
	source  papersources.CitationSource
	cfg     Config
	logger  zerolog.Logger
	metrics *observability.Metrics
}

// NewBuilder creates a graph builder over the given citation source.
func NewBuilder(source papersources.CitationSource, cfg Config, logger zerolog.Logger, metrics *observability.Metrics) *Builder {
	if cfg.NeighborLimit <= 0 {
		cfg.NeighborLimit = DefaultNeighborLimit
	}
	return &Builder{
		source:  source,
		cfg:     cfg,
		logger:  logger.With().Str("component", "citegraph").Logger(),
		metrics: metrics,
	}
}

// Build assembles the one-hop neighborhood rooted at the given paper.
// Edges are emitted from the root's point of view: an outgoing reference
// becomes root-[cites]->neighbor, an incoming citation becomes
// root-[cited_by]->neighbor. Self-citations are recorded with the SelfLoop
// flag set.
// Returns an error only when both directions failed; a one-sided failure
// produces a partial graph.
func (b *Builder) Build(ctx context.Context, root *domain.Paper) (*Result, error) {
	if root == nil || !root.HasIdentifier() {
		return nil, fmt.Errorf("root paper has no identifier")
	}

	log := observability.WithPaperContext(b.logger, root.CanonicalID)

	var citing, cited []*domain.Paper
	var citingErr, citedErr error

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		citing, citingErr = b.source.Citing(gctx, root.CanonicalID, b.cfg.NeighborLimit)
		return nil
	})
	g.Go(func() error {
		cited, citedErr = b.source.Cited(gctx, root.CanonicalID, b.cfg.NeighborLimit)
		return nil
	})
	_ = g.Wait()

	if ctx.Err() != nil {
		return nil, ctx.Err()
	}
	if citingErr != nil && citedErr != nil {
		return nil, fmt.Errorf("citation fetch failed in both directions: %w", citingErr)
	}
	if citingErr != nil {
		log.Warn().Err(citingErr).Msg("citing fetch failed, building graph from references only")
	}
	if citedErr != nil {
		log.Warn().Err(citedErr).Msg("cited fetch failed, building graph from citations only")
	}

	graph := domain.NewGraph(root.CanonicalID)
	graph.AddNode(paperNode(root))

	neighborByID := make(map[string]*domain.Paper)

	for _, p := range truncate(citing, b.cfg.NeighborLimit) {
		if p == nil || !p.HasIdentifier() {
			continue
		}
		graph.AddNode(paperNode(p))
		graph.AddEdge(root.CanonicalID, p.CanonicalID, domain.RelationCitedBy)
		if p.CanonicalID != root.CanonicalID {
			neighborByID[p.CanonicalID] = p
		}
	}
	for _, p := range truncate(cited, b.cfg.NeighborLimit) {
		if p == nil || !p.HasIdentifier() {
			continue
		}
		graph.AddNode(paperNode(p))
		graph.AddEdge(root.CanonicalID, p.CanonicalID, domain.RelationCites)
		if p.CanonicalID != root.CanonicalID {
			neighborByID[p.CanonicalID] = p
		}
	}

	if b.metrics != nil {
		b.metrics.RecordGraphBuilt(len(graph.Nodes))
	}
	log.Debug().
		Int("nodes", len(graph.Nodes)).
		Int("edges", len(graph.Edges)).
		Msg("citation graph built")

	return &Result{
		Graph:     graph,
		Neighbors: sortedNeighbors(neighborByID),
	}, nil
}

// sortedNeighbors flattens the neighbor map in identifier order so that
// downstream ranking sees a stable candidate sequence.
func sortedNeighbors(byID map[string]*domain.Paper) []*domain.Paper {
	ids := make([]string, 0, len(byID))
	for id := range byID {
		ids = append(ids, id)
	}
	sort.Strings(ids)

	out := make([]*domain.Paper, 0, len(ids))
	for _, id := range ids {
		out = append(out, byID[id])
	}
	return out
}

// truncate bounds a neighbor list at the configured limit in case a
// provider over-returns.
func truncate(papers []*domain.Paper, limit int) []*domain.Paper {
	if len(papers) > limit {
		return papers[:limit]
	}
	return papers
}

// paperNode projects a paper onto its graph node snapshot.
func paperNode(p *domain.Paper) *domain.GraphNode {
	return &domain.GraphNode{
		ID:            p.CanonicalID,
		Title:         p.Title,
		Year:          p.PublicationYear,
		Abstract:      p.Abstract,
		CitationCount: p.CitationCount,
	}
}
