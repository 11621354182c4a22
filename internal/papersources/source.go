// Package papersources provides interfaces and types for academic paper source clients.
//
// This package defines the foundational abstractions that all paper source implementations
// must follow. Each metadata provider (OpenAlex, Semantic Scholar) implements the
// PaperSource interface, allowing the analysis pipeline to resolve references against
// multiple providers with a unified API. Providers that expose citation links or author
// statistics additionally implement CitationSource and AuthorSource.
//
// Example usage:
//
//	source := openalex.New(cfg, httpClient)
//	params := papersources.SearchParams{
//		Query:      "attention is all you need",
//		MaxResults: 5,
//	}
//	result, err := source.Search(ctx, params)
package papersources

import (
	"context"
	"time"

	"github.com/paperlens/analysis-service/internal/domain"
)

// SearchParams defines the parameters for searching academic papers.
type SearchParams struct {
	// Query is the search query string (required). Typically a title guess
	// extracted from a parsed reference, or a keyword query.
	Query string

	// Year filters results to papers published in this year when the
	// provider supports it. A value of 0 applies no year filter.
	Year int

	// MaxResults limits the number of papers returned in a single request.
	// Sources may have their own maximum limits that override this value.
	// A value of 0 uses the source's default limit.
	MaxResults int
}

// SearchResult contains the results from a paper source search operation.
type SearchResult struct {
	// Papers contains the papers returned by the search, in
	// provider-reported relevance order. May be empty.
	Papers []*domain.Paper

	// TotalResults is the total number of papers matching the query,
	// regardless of limits. Provider-reported and may be an estimate.
	TotalResults int

	// Source identifies which paper source provided these results.
	Source domain.SourceType

	// SearchDuration is the time taken to execute the search,
	// including network latency and response parsing.
	SearchDuration time.Duration
}

// PaperSource defines the interface that all paper source clients must implement.
type PaperSource interface {
	// Search queries the paper source for papers matching the given parameters.
	// The context should be used for cancellation and deadline propagation.
	//
	// Implementations should:
	//   - Respect context cancellation
	//   - Apply rate limiting as needed
	//   - Transform source-specific responses to domain.Paper
	//   - Include appropriate error wrapping with source context
	Search(ctx context.Context, params SearchParams) (*SearchResult, error)

	// GetByID retrieves a specific paper by its source-specific identifier.
	// The id format is source-specific (e.g., DOI, OpenAlex work ID).
	//
	// Returns domain.ErrNotFound if the paper does not exist.
	GetByID(ctx context.Context, id string) (*domain.Paper, error)

	// SourceType returns the type identifier for this paper source.
	// Used for attribution, deduplication, and routing.
	SourceType() domain.SourceType

	// Name returns a human-readable name for this paper source.
	// Used for logging, metrics, and display purposes.
	Name() string

	// IsEnabled returns whether this paper source is currently enabled
	// and available for queries. A source may be disabled due to
	// configuration, missing API keys, or temporary outages.
	IsEnabled() bool
}

// CitationSource is implemented by providers that expose one-hop citation
// links for a paper.
type CitationSource interface {
	// Citing returns up to limit papers that cite the given paper.
	Citing(ctx context.Context, id string, limit int) ([]*domain.Paper, error)

	// Cited returns up to limit papers referenced by the given paper.
	Cited(ctx context.Context, id string, limit int) ([]*domain.Paper, error)
}

// AuthorSource is implemented by providers that expose author-level
// publication and citation statistics.
type AuthorSource interface {
	// FindAuthor searches for an author by display name and returns the
	// best-matching candidates in provider relevance order.
	//
	// Returns domain.ErrNotFound if no author matches.
	FindAuthor(ctx context.Context, name string) ([]*domain.AuthorRecord, error)

	// AuthorWorks returns up to limit recent works for an author ID.
	AuthorWorks(ctx context.Context, authorID string, limit int) ([]*domain.Paper, error)
}
