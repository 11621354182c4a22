// Package resolver turns parsed references into candidate metadata records
// by querying the registered paper sources in priority order.
package resolver

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/rs/zerolog"

	"github.com/paperlens/analysis-service/internal/domain"
	"github.com/paperlens/analysis-service/internal/observability"
	"github.com/paperlens/analysis-service/internal/papersources"
	"github.com/paperlens/analysis-service/internal/refparse"
	"github.com/paperlens/analysis-service/internal/verify"
)

// DefaultMaxCandidates is the default number of candidates kept per reference.
const DefaultMaxCandidates = 5

// authorDupThreshold is the minimum author-list overlap for two same-title
// records to count as one paper.
const authorDupThreshold = 0.5

// Config holds resolver settings.
type Config struct {
	// MaxCandidates caps the candidate list returned per query.
	// Defaults to DefaultMaxCandidates.
	MaxCandidates int
}

// Resolver queries sources sequentially in registry priority order and falls
// back to the next source when a query fails or returns nothing. Transport
// retries and rate limiting live in the shared HTTP client; the resolver
// only decides when to move on to the next provider.
type Resolver struct {
	registry *papersources.Registry
	cfg      Config
	logger   zerolog.Logger
	metrics  *observability.Metrics
}

// New creates a resolver over the given source registry.
func New(registry *papersources.Registry, cfg Config, logger zerolog.Logger, metrics *observability.Metrics) *Resolver {
	if cfg.MaxCandidates <= 0 {
		cfg.MaxCandidates = DefaultMaxCandidates
	}
	return &Resolver{
		registry: registry,
		cfg:      cfg,
		logger:   logger.With().Str("component", "resolver").Logger(),
		metrics:  metrics,
	}
}

// Priority exposes the registry priority for verdict tie-breaking.
func (r *Resolver) Priority(st domain.SourceType) int {
	return r.registry.Priority(st)
}

// Resolve finds candidate records for one parsed reference. The search
// query is derived from the title guess when available, the raw text
// otherwise. Returns an empty slice, not an error, when every provider
// answered but none had a match; returns an error only when all providers
// failed.
func (r *Resolver) Resolve(ctx context.Context, ref domain.ParsedReference) ([]*domain.Paper, error) {
	query := refparse.SearchQuery(ref.TitleGuess, ref.Raw)
	if query == "" {
		return nil, nil
	}
	return r.Search(ctx, query, ref.Year)
}

// Search runs the provider fallback sequence for a free-form query. Results
// are deduplicated across providers by canonical identifier and by
// normalized title plus first-author surname, keeping the record from the
// higher-priority provider.
func (r *Resolver) Search(ctx context.Context, query string, year int) ([]*domain.Paper, error) {
	sources := r.registry.Ordered()
	if len(sources) == 0 {
		return nil, fmt.Errorf("no enabled paper sources")
	}

	params := papersources.SearchParams{
		Query:      query,
		Year:       year,
		MaxResults: r.cfg.MaxCandidates,
	}

	var lastErr error
	for _, source := range sources {
		log := observability.WithSourceContext(r.logger, string(source.SourceType()), query)

		result, err := source.Search(ctx, params)
		if err != nil {
			if ctx.Err() != nil {
				return nil, ctx.Err()
			}
			if r.metrics != nil {
				r.metrics.RecordSourceRequestFailed(string(source.SourceType()), "search", errorType(err))
			}
			log.Warn().Err(err).Msg("provider search failed, trying next source")
			lastErr = err
			continue
		}

		if r.metrics != nil {
			r.metrics.RecordSourceRequest(string(source.SourceType()), "search", result.SearchDuration.Seconds())
		}

		candidates := dedupe(result.Papers, r.cfg.MaxCandidates)
		if len(candidates) > 0 {
			log.Debug().Int("candidates", len(candidates)).Msg("resolved candidates")
			return candidates, nil
		}
		log.Debug().Msg("provider returned no candidates, trying next source")
	}

	if lastErr != nil {
		return nil, fmt.Errorf("all providers failed: %w", lastErr)
	}
	return nil, nil
}

// SearchBroad queries every enabled provider concurrently and merges their
// results, deduplicated across providers with the higher-priority provider's
// record kept. Used to seed the recommendation candidate pool, where recall
// matters more than the single best match. Returns an error only when every
// provider failed.
func (r *Resolver) SearchBroad(ctx context.Context, query string, year int) ([]*domain.Paper, error) {
	params := papersources.SearchParams{
		Query:      query,
		Year:       year,
		MaxResults: r.cfg.MaxCandidates,
	}

	results := r.registry.SearchAll(ctx, params)
	if len(results) == 0 {
		return nil, fmt.Errorf("no enabled paper sources")
	}

	bySource := make(map[domain.SourceType][]*domain.Paper, len(results))
	var lastErr error
	failed := 0
	for _, res := range results {
		if res.Error != nil {
			if ctx.Err() != nil {
				return nil, ctx.Err()
			}
			if r.metrics != nil {
				r.metrics.RecordSourceRequestFailed(string(res.Source), "search", errorType(res.Error))
			}
			r.logger.Warn().Err(res.Error).Str("source", string(res.Source)).Msg("broad search failed for one provider")
			lastErr = res.Error
			failed++
			continue
		}
		if r.metrics != nil {
			r.metrics.RecordSourceRequest(string(res.Source), "search", res.Result.SearchDuration.Seconds())
		}
		bySource[res.Source] = res.Result.Papers
	}
	if failed == len(results) {
		return nil, fmt.Errorf("all providers failed: %w", lastErr)
	}

	// Concatenate in registry priority order so the dedupe below keeps the
	// higher-priority provider's record.
	var merged []*domain.Paper
	for _, source := range r.registry.Ordered() {
		merged = append(merged, bySource[source.SourceType()]...)
	}
	return dedupe(merged, 2*r.cfg.MaxCandidates), nil
}

// GetByID fetches a paper by identifier, walking providers in priority
// order until one has the record.
func (r *Resolver) GetByID(ctx context.Context, id string) (*domain.Paper, error) {
	sources := r.registry.Ordered()
	if len(sources) == 0 {
		return nil, fmt.Errorf("no enabled paper sources")
	}

	var lastErr error
	for _, source := range sources {
		paper, err := source.GetByID(ctx, id)
		if err != nil {
			if ctx.Err() != nil {
				return nil, ctx.Err()
			}
			lastErr = err
			continue
		}
		return paper, nil
	}
	return nil, lastErr
}

// dedupe removes candidates that repeat an already-seen canonical
// identifier, normalized title + first-author key, or normalized title with
// a substantially overlapping author list. Input order is preserved and the
// result is capped at limit.
func dedupe(papers []*domain.Paper, limit int) []*domain.Paper {
	seenID := make(map[string]bool, len(papers))
	seenKey := make(map[string]bool, len(papers))
	out := make([]*domain.Paper, 0, len(papers))

	for _, p := range papers {
		if p == nil || !p.HasIdentifier() {
			continue
		}
		if seenID[p.CanonicalID] {
			continue
		}
		key := dedupeKey(p)
		if key != "" && seenKey[key] {
			continue
		}
		if isAuthorDuplicate(p, out) {
			continue
		}
		seenID[p.CanonicalID] = true
		if key != "" {
			seenKey[key] = true
		}
		out = append(out, p)
		if len(out) == limit {
			break
		}
	}
	return out
}

// dedupeKey builds the cross-provider duplicate key: normalized title plus
// the first author's normalized surname.
func dedupeKey(p *domain.Paper) string {
	title := normalizeTitle(p.Title)
	if title == "" {
		return ""
	}
	return title + "|" + verify.NormalizeName(p.FirstAuthorSurname())
}

// isAuthorDuplicate reports whether a candidate repeats a kept record's
// normalized title with an author list that mostly matches. This catches
// cross-provider duplicates whose first-author keys disagree, usually from
// author-order or initials differences.
func isAuthorDuplicate(p *domain.Paper, kept []*domain.Paper) bool {
	if len(p.Authors) == 0 {
		return false
	}
	title := normalizeTitle(p.Title)
	if title == "" {
		return false
	}
	for _, k := range kept {
		if normalizeTitle(k.Title) == title && verify.AuthorOverlap(p.Authors, k.Authors) >= authorDupThreshold {
			return true
		}
	}
	return false
}

// normalizeTitle lowercases a title and strips everything but letters,
// digits, and single spaces.
func normalizeTitle(title string) string {
	title = strings.ToLower(title)
	var sb strings.Builder
	sb.Grow(len(title))
	prevSpace := true
	for _, r := range title {
		switch {
		case r >= 'a' && r <= 'z' || r >= '0' && r <= '9':
			sb.WriteRune(r)
			prevSpace = false
		default:
			if !prevSpace {
				sb.WriteByte(' ')
				prevSpace = true
			}
		}
	}
	return strings.TrimRight(sb.String(), " ")
}

// errorType maps an error to a coarse label for metrics.
func errorType(err error) string {
	switch {
	case err == nil:
		return "none"
	case errors.Is(err, domain.ErrRateLimited):
		return "rate_limited"
	case errors.Is(err, context.DeadlineExceeded) || errors.Is(err, context.Canceled):
		return "timeout"
	default:
		return "error"
	}
}
