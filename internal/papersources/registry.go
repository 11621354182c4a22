package papersources

import (
	"context"
	"sync"

	"github.com/paperlens/analysis-service/internal/domain"
)

// SourceResult holds the result of a search from one source.
type SourceResult struct {
	// Source identifies which paper source provided the result.
	Source domain.SourceType

	// Result contains the search results if the search succeeded.
	// Will be nil if Error is non-nil.
	Result *SearchResult

	// Error contains the error if the search failed.
	// Will be nil if Result is non-nil.
	Error error
}

// Registry manages paper sources and coordinates searches across them.
// Registration order defines provider priority: the first registered source
// is the primary provider for resolution fallback and tie-breaking.
// It is thread-safe.
type Registry struct {
	mu      sync.RWMutex
	order   []domain.SourceType
	sources map[domain.SourceType]PaperSource
}

// NewRegistry creates a new source registry with an empty source map.
func NewRegistry() *Registry {
	return &Registry{
		sources: make(map[domain.SourceType]PaperSource),
	}
}

// Register adds a source to the registry.
// If a source with the same type already exists, it is replaced and keeps
// its original priority position.
func (r *Registry) Register(source PaperSource) {
	r.mu.Lock()
	defer r.mu.Unlock()

	st := source.SourceType()
	if _, exists := r.sources[st]; !exists {
		r.order = append(r.order, st)
	}
	r.sources[st] = source
}

// Get returns a source by type, or nil if not found.
func (r *Registry) Get(sourceType domain.SourceType) PaperSource {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.sources[sourceType]
}

// Ordered returns all enabled sources in priority order. The resolver walks
// this slice for its primary-then-fallback query sequence.
func (r *Registry) Ordered() []PaperSource {
	r.mu.RLock()
	defer r.mu.RUnlock()

	sources := make([]PaperSource, 0, len(r.order))
	for _, st := range r.order {
		if source := r.sources[st]; source != nil && source.IsEnabled() {
			sources = append(sources, source)
		}
	}
	return sources
}

// Priority returns the position of a source type in the priority order, with
// lower values meaning higher priority. Unknown sources sort last.
func (r *Registry) Priority(sourceType domain.SourceType) int {
	r.mu.RLock()
	defer r.mu.RUnlock()

	for i, st := range r.order {
		if st == sourceType {
			return i
		}
	}
	return len(r.order)
}

// SearchAll searches all enabled sources concurrently.
// Returns results for each source (including errors). Errors are not filtered;
// the caller is responsible for handling them appropriately.
// The search respects context cancellation - if the context is canceled,
// ongoing searches will be interrupted and their errors returned.
func (r *Registry) SearchAll(ctx context.Context, params SearchParams) []SourceResult {
	sources := r.Ordered()
	if len(sources) == 0 {
		return nil
	}

	resultChan := make(chan SourceResult, len(sources))
	var wg sync.WaitGroup

	for _, source := range sources {
		wg.Add(1)
		go func(s PaperSource) {
			defer wg.Done()

			result, err := s.Search(ctx, params)
			resultChan <- SourceResult{
				Source: s.SourceType(),
				Result: result,
				Error:  err,
			}
		}(source)
	}

	go func() {
		wg.Wait()
		close(resultChan)
	}()

	results := make([]SourceResult, 0, len(sources))
	for result := range resultChan {
		results = append(results, result)
	}

	return results
}
