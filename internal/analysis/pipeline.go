// Package analysis orchestrates the full paper analysis pipeline: reference
// verification, citation graph construction, semantic recommendation
// ranking, and author team aggregation.
package analysis

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"
	"golang.org/x/sync/semaphore"

	"github.com/paperlens/analysis-service/internal/authors"
	"github.com/paperlens/analysis-service/internal/citegraph"
	"github.com/paperlens/analysis-service/internal/domain"
	"github.com/paperlens/analysis-service/internal/embedding"
	"github.com/paperlens/analysis-service/internal/llm"
	"github.com/paperlens/analysis-service/internal/observability"
	"github.com/paperlens/analysis-service/internal/rank"
	"github.com/paperlens/analysis-service/internal/refparse"
	"github.com/paperlens/analysis-service/internal/resolver"
	"github.com/paperlens/analysis-service/internal/verify"
)

// Defaults for the pipeline.
const (
	DefaultMaxInFlight     = 8
	DefaultAnalysisTimeout = 5 * time.Minute
	// maxBodyKeywords caps the keyword query derived from the body text.
	maxBodyKeywords = 6
)

// Config holds pipeline settings.
type Config struct {
	// MaxInFlight bounds concurrent per-reference resolution calls.
	MaxInFlight int64

	// AnalysisTimeout is the overall deadline for one analysis run.
	AnalysisTimeout time.Duration
}

// Request is one analysis job: the normalized text spans of a document.
type Request struct {
	// Title is the paper title span. Required; the analysis fails
	// terminally when it cannot be resolved to a known paper.
	Title string

	// AuthorBlock is the raw author list span.
	AuthorBlock string

	// ReferenceText is the raw reference list span.
	ReferenceText string

	// BodyText is the body of the document; keywords extracted from it
	// seed the recommendation candidate search.
	BodyText string

	// MaxRecommendations overrides the configured recommendation cap when
	// positive.
	MaxRecommendations int

	// EmbeddingsKey is a request-scoped embeddings API credential. It is
	// used for this request only and never logged or persisted.
	EmbeddingsKey string
}

// GraphPayload is the serializable form of the citation neighborhood.
type GraphPayload struct {
	Nodes []*domain.GraphNode `json:"nodes"`
	Edges []domain.GraphEdge  `json:"edges"`
}

// Result is the full response for one analysis request. Failures below the
// request level appear as unresolved items and warnings, never as an
// overall error.
type Result struct {
	AnalysisID      string                   `json:"analysis_id"`
	Paper           *domain.Paper            `json:"paper"`
	References      []domain.ParsedReference `json:"references"`
	Verdicts        []domain.Verdict         `json:"verdicts"`
	Recommendations []domain.RankedCandidate `json:"recommendations"`
	Graph           GraphPayload             `json:"graph"`
	Team            *authors.Team            `json:"team"`
	Warnings        []string                 `json:"warnings,omitempty"`
}

// Pipeline wires the analysis stages together. Per-reference resolution,
// citation graph construction, and author aggregation run concurrently;
// results are collected and sorted so output order never depends on
// completion order.
type Pipeline struct {
	resolver    *resolver.Resolver
	scorer      *verify.Scorer
	builder     *citegraph.Builder
	embedder    *embedding.CachedEmbedder
	embedClient *llm.EmbeddingsClient
	ranker      *rank.Ranker
	authors     *authors.Aggregator
	cfg         Config
	logger      zerolog.Logger
	metrics     *observability.Metrics
}

// New creates a pipeline from its stage components.
func New(
	res *resolver.Resolver,
	scorer *verify.Scorer,
	builder *citegraph.Builder,
	embedder *embedding.CachedEmbedder,
	embedClient *llm.EmbeddingsClient,
	ranker *rank.Ranker,
	aggregator *authors.Aggregator,
	cfg Config,
	logger zerolog.Logger,
	metrics *observability.Metrics,
) *Pipeline {
	if cfg.MaxInFlight <= 0 {
		cfg.MaxInFlight = DefaultMaxInFlight
	}
	if cfg.AnalysisTimeout <= 0 {
		cfg.AnalysisTimeout = DefaultAnalysisTimeout
	}
	return &Pipeline{
		resolver:    res,
		scorer:      scorer,
		builder:     builder,
		embedder:    embedder,
		embedClient: embedClient,
		ranker:      ranker,
		authors:     aggregator,
		cfg:         cfg,
		logger:      logger.With().Str("component", "analysis").Logger(),
		metrics:     metrics,
	}
}

// Analyze runs the full pipeline for one document. The only terminal
// failures are an unresolvable primary paper, invalid input, and
// cancellation; every other failure degrades its own item.
func (p *Pipeline) Analyze(ctx context.Context, req Request) (*Result, error) {
	if strings.TrimSpace(req.Title) == "" {
		return nil, domain.NewValidationError("title", "must not be empty")
	}

	analysisID := uuid.NewString()
	ctx = observability.WithAnalysisID(ctx, analysisID)
	ctx, cancel := context.WithTimeout(ctx, p.cfg.AnalysisTimeout)
	defer cancel()

	log := observability.WithAnalysisContext(p.logger, observability.RequestIDFromContext(ctx), analysisID)
	start := time.Now()
	if p.metrics != nil {
		p.metrics.RecordAnalysisStarted()
	}

	result, err := p.analyze(ctx, req, analysisID, log)
	if p.metrics != nil {
		if err != nil {
			p.metrics.RecordAnalysisFailed(time.Since(start).Seconds())
		} else {
			p.metrics.RecordAnalysisCompleted(time.Since(start).Seconds())
		}
	}
	if err != nil {
		log.Warn().Err(err).Msg("analysis failed")
		return nil, err
	}
	log.Info().
		Dur("duration", time.Since(start)).
		Int("references", len(result.References)).
		Int("recommendations", len(result.Recommendations)).
		Msg("analysis completed")
	return result, nil
}

func (p *Pipeline) analyze(ctx context.Context, req Request, analysisID string, log zerolog.Logger) (*Result, error) {
	root, err := p.resolveRoot(ctx, req)
	if err != nil {
		return nil, err
	}
	log.Debug().Str("paper_id", root.CanonicalID).Msg("primary paper resolved")

	refs := refparse.Parse(req.ReferenceText)
	if p.metrics != nil {
		p.metrics.RecordReferencesParsed(len(refs), countLowConfidence(refs))
	}

	var (
		verdicts      []domain.Verdict
		graphResult   *citegraph.Result
		graphErr      error
		team          *authors.Team
		keywordPapers []*domain.Paper
		warnings      []string
	)

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		var err error
		verdicts, err = p.verifyAll(gctx, refs)
		return err
	})
	g.Go(func() error {
		graphResult, graphErr = p.builder.Build(gctx, root)
		return nil
	})
	g.Go(func() error {
		var err error
		team, err = p.authors.Aggregate(gctx, authorList(root, req.AuthorBlock), root.Title)
		return err
	})
	g.Go(func() error {
		keywordPapers = p.searchByKeywords(gctx, req.BodyText, root)
		return nil
	})
	if err := g.Wait(); err != nil {
		return nil, err
	}

	if graphErr != nil {
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		warnings = append(warnings, "citation graph unavailable: "+graphErr.Error())
		graphResult = emptyGraph(root)
	}

	pool := candidatePool(root, graphResult.Neighbors, keywordPapers, verdicts)

	index, embedWarning := p.buildIndex(ctx, req.EmbeddingsKey, root, pool)
	if embedWarning != "" {
		warnings = append(warnings, embedWarning)
	}

	recommendations := p.ranker.WithLimit(req.MaxRecommendations).Rank(graphResult.Graph, index, pool)

	return &Result{
		AnalysisID:      analysisID,
		Paper:           root,
		References:      refs,
		Verdicts:        verdicts,
		Recommendations: recommendations,
		Graph:           graphPayload(graphResult.Graph),
		Team:            team,
		Warnings:        warnings,
	}, nil
}

// resolveRoot finds the metadata record for the document's own paper. This
// is the one resolution the pipeline cannot degrade around.
func (p *Pipeline) resolveRoot(ctx context.Context, req Request) (*domain.Paper, error) {
	candidates, err := p.resolver.Search(ctx, req.Title, 0)
	if err != nil {
		return nil, fmt.Errorf("primary paper resolution: %w", err)
	}
	if len(candidates) == 0 {
		return nil, domain.NewNotFoundError("paper", req.Title)
	}

	rootRef := domain.ParsedReference{
		Raw:        strings.TrimSpace(req.AuthorBlock + " " + req.Title),
		TitleGuess: req.Title,
		Surnames:   blockSurnames(req.AuthorBlock),
	}
	verdict := p.scorer.Verify(rootRef, candidates, p.resolver.Priority)
	if verdict.Best == nil || verdict.Classification == domain.ClassificationUnverifiable {
		return nil, domain.NewNotFoundError("paper", req.Title)
	}
	return verdict.Best, nil
}

// verifyAll resolves and scores every parsed reference with a bounded
// fan-out. A provider failure degrades that reference to unverifiable; the
// only error returned is cancellation.
func (p *Pipeline) verifyAll(ctx context.Context, refs []domain.ParsedReference) ([]domain.Verdict, error) {
	verdicts := make([]domain.Verdict, len(refs))

	g, gctx := errgroup.WithContext(ctx)
	sem := semaphore.NewWeighted(p.cfg.MaxInFlight)
	for i, ref := range refs {
		g.Go(func() error {
			if err := sem.Acquire(gctx, 1); err != nil {
				return err
			}
			defer sem.Release(1)

			verdict, err := p.verifyOne(gctx, ref)
			if err != nil {
				return err
			}
			verdicts[i] = verdict
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	return verdicts, nil
}

// verifyOne resolves one reference and scores its candidates. Returns an
// error only on cancellation.
func (p *Pipeline) verifyOne(ctx context.Context, ref domain.ParsedReference) (domain.Verdict, error) {
	log := observability.WithReferenceContext(p.logger, ref.Index)

	candidates, err := p.resolver.Resolve(ctx, ref)
	if err != nil {
		if ctx.Err() != nil {
			return domain.Verdict{}, ctx.Err()
		}
		log.Warn().Err(err).Msg("reference resolution failed")
		verdict := domain.Verdict{
			ReferenceIndex: ref.Index,
			Classification: domain.ClassificationUnverifiable,
			FailureReason:  "metadata providers unavailable",
		}
		if p.metrics != nil {
			p.metrics.RecordVerdict(string(verdict.Classification))
		}
		return verdict, nil
	}

	verdict := p.scorer.Verify(ref, candidates, p.resolver.Priority)
	if p.metrics != nil {
		p.metrics.RecordVerdict(string(verdict.Classification))
	}
	return verdict, nil
}

// VerifyReference parses and verifies a single reference string. Used by
// the standalone verification endpoint.
func (p *Pipeline) VerifyReference(ctx context.Context, text string) (domain.ParsedReference, domain.Verdict, error) {
	ref := refparse.ParseOne(text)
	if ref.Raw == "" {
		return domain.ParsedReference{}, domain.Verdict{}, domain.NewValidationError("reference", "must not be empty")
	}
	verdict, err := p.verifyOne(ctx, ref)
	if err != nil {
		return domain.ParsedReference{}, domain.Verdict{}, err
	}
	return ref, verdict, nil
}

// searchByKeywords seeds extra recommendation candidates from a keyword
// query over the document body. Every provider is queried, since recall
// matters more than precision here. Failures leave the pool to graph
// neighbors.
func (p *Pipeline) searchByKeywords(ctx context.Context, bodyText string, root *domain.Paper) []*domain.Paper {
	keywords := refparse.Keywords(bodyText, maxBodyKeywords)
	if len(keywords) == 0 {
		return nil
	}

	papers, err := p.resolver.SearchBroad(ctx, strings.Join(keywords, " "), 0)
	if err != nil {
		p.logger.Warn().Err(err).Msg("keyword candidate search failed")
		return nil
	}
	out := papers[:0:0]
	for _, paper := range papers {
		if paper != nil && paper.CanonicalID != root.CanonicalID {
			out = append(out, paper)
		}
	}
	return out
}

// buildIndex embeds the root paper and candidate pool. An embedding outage
// returns a nil index and a warning; ranking then falls back to graph
// proximity alone.
func (p *Pipeline) buildIndex(ctx context.Context, requestKey string, root *domain.Paper, pool []*domain.Paper) (*embedding.Index, string) {
	embedder := p.embedder
	if requestKey != "" && p.embedClient != nil {
		embedder = p.embedder.WithClient(p.embedClient.WithAPIKey(requestKey))
	}

	papers := make([]*domain.Paper, 0, len(pool)+1)
	texts := make([]string, 0, len(pool)+1)
	for _, paper := range append([]*domain.Paper{root}, pool...) {
		if text := paper.EmbeddingText(); text != "" {
			papers = append(papers, paper)
			texts = append(texts, text)
		}
	}
	if len(texts) == 0 {
		return nil, ""
	}

	vectors, err := embedder.Embed(ctx, texts)
	if err != nil {
		p.logger.Warn().Err(err).Msg("embedding failed, ranking on graph proximity only")
		return nil, "semantic scores unavailable: embedding service failed"
	}

	index := embedding.NewIndex()
	failed := 0
	for i, paper := range papers {
		if vectors[i] == nil {
			failed++
			p.logger.Warn().Str("paper_id", paper.CanonicalID).Msg("paper could not be embedded, scoring it on graph proximity only")
			continue
		}
		if err := index.Add(paper.CanonicalID, vectors[i]); err != nil {
			p.logger.Debug().Err(err).Str("paper_id", paper.CanonicalID).Msg("vector rejected by index")
		}
	}
	if index.Len() == 0 {
		return nil, "semantic scores unavailable: embedding service failed"
	}
	if !index.Has(root.CanonicalID) {
		return nil, "semantic scores unavailable: root paper could not be embedded"
	}
	if failed > 0 {
		return index, fmt.Sprintf("semantic scores unavailable for %d of %d papers", failed, len(papers))
	}
	return index, ""
}

// candidatePool merges graph neighbors, keyword search results, and verified
// reference matches into one deduplicated candidate list. The root paper is
// excluded; order is stable so ranking input is deterministic.
func candidatePool(root *domain.Paper, neighbors, keywordPapers []*domain.Paper, verdicts []domain.Verdict) []*domain.Paper {
	seen := map[string]bool{root.CanonicalID: true}
	var pool []*domain.Paper

	add := func(paper *domain.Paper) {
		if paper == nil || paper.CanonicalID == "" || seen[paper.CanonicalID] {
			return
		}
		seen[paper.CanonicalID] = true
		pool = append(pool, paper)
	}

	for _, paper := range neighbors {
		add(paper)
	}
	for _, paper := range keywordPapers {
		add(paper)
	}
	for _, verdict := range verdicts {
		if verdict.Classification != domain.ClassificationUnverifiable {
			add(verdict.Best)
		}
	}
	return pool
}

// authorList prefers the resolved paper's author records and falls back to
// splitting the raw author block.
func authorList(root *domain.Paper, authorBlock string) []domain.Author {
	if len(root.Authors) > 0 {
		return root.Authors
	}
	var list []domain.Author
	for _, name := range splitAuthorBlock(authorBlock) {
		list = append(list, domain.Author{Name: name})
	}
	return list
}

// splitAuthorBlock breaks a raw author line on the usual separators.
func splitAuthorBlock(block string) []string {
	block = strings.ReplaceAll(block, " and ", ",")
	block = strings.ReplaceAll(block, "&", ",")
	var names []string
	for _, part := range strings.FieldsFunc(block, func(r rune) bool {
		return r == ',' || r == ';' || r == '\n'
	}) {
		if name := strings.TrimSpace(part); name != "" {
			names = append(names, name)
		}
	}
	return names
}

// blockSurnames extracts lowercase surname tokens from the author block for
// root verification scoring.
func blockSurnames(block string) []string {
	var surnames []string
	for _, name := range splitAuthorBlock(block) {
		if s := verify.Surname(name); s != "" {
			surnames = append(surnames, s)
		}
	}
	return surnames
}

// emptyGraph builds a root-only neighborhood for degraded responses.
func emptyGraph(root *domain.Paper) *citegraph.Result {
	graph := domain.NewGraph(root.CanonicalID)
	graph.AddNode(&domain.GraphNode{
		ID:            root.CanonicalID,
		Title:         root.Title,
		Year:          root.PublicationYear,
		Abstract:      root.Abstract,
		CitationCount: root.CitationCount,
	})
	return &citegraph.Result{Graph: graph}
}

// graphPayload flattens a graph into its serializable node/edge lists, with
// nodes in identifier order.
func graphPayload(graph *domain.Graph) GraphPayload {
	payload := GraphPayload{
		Nodes: make([]*domain.GraphNode, 0, len(graph.Nodes)),
		Edges: graph.Edges,
	}
	for _, id := range graph.NodeIDs() {
		payload.Nodes = append(payload.Nodes, graph.Nodes[id])
	}
	if payload.Edges == nil {
		payload.Edges = []domain.GraphEdge{}
	}
	return payload
}

func countLowConfidence(refs []domain.ParsedReference) int {
	n := 0
	for _, ref := range refs {
		if ref.LowConfidence {
			n++
		}
	}
	return n
}
