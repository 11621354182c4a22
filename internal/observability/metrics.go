package observability

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics contains all Prometheus metrics for the paper analysis service.
// Metrics are organized by subsystem: analyses, references, sources,
// embeddings, graph, and authors. All counters and histograms are registered
// via promauto for automatic registration with the default Prometheus registry.
type Metrics struct {
	// AnalysesStarted counts the total number of analysis requests initiated.
	AnalysesStarted prometheus.Counter

	// AnalysesCompleted counts the total number of analyses that finished successfully.
	AnalysesCompleted prometheus.Counter

	// AnalysesFailed counts the total number of analyses that ended in failure.
	AnalysesFailed prometheus.Counter

	// AnalysisDuration observes the end-to-end duration of analyses in seconds.
	AnalysisDuration prometheus.Histogram

	// ReferencesParsed counts the total number of references segmented from input.
	ReferencesParsed prometheus.Counter

	// ReferencesLowConfidence counts references emitted without structured hints.
	ReferencesLowConfidence prometheus.Counter

	// Verdicts counts verification outcomes, labeled by classification.
	Verdicts *prometheus.CounterVec

	// SourceRequestsTotal counts HTTP requests to paper source APIs, labeled by source and endpoint.
	SourceRequestsTotal *prometheus.CounterVec

	// SourceRequestsFailed counts failed HTTP requests to paper source APIs, labeled by source, endpoint, and error type.
	SourceRequestsFailed *prometheus.CounterVec

	// SourceRequestDuration observes HTTP request duration to paper source APIs in seconds.
	SourceRequestDuration *prometheus.HistogramVec

	// SourceRateLimited counts rate-limited responses from paper source APIs, labeled by source.
	SourceRateLimited *prometheus.CounterVec

	// EmbeddingRequests counts embedding computations requested.
	EmbeddingRequests prometheus.Counter

	// EmbeddingFailures counts embedding computations that failed.
	EmbeddingFailures prometheus.Counter

	// EmbeddingCacheHits counts embedding cache hits.
	EmbeddingCacheHits prometheus.Counter

	// EmbeddingCacheMisses counts embedding cache misses.
	EmbeddingCacheMisses prometheus.Counter

	// GraphNodes observes the node count of built citation graphs.
	GraphNodes prometheus.Histogram

	// RecommendationsReturned observes the number of ranked candidates per analysis.
	RecommendationsReturned prometheus.Histogram

	// AuthorLookups counts author statistics lookups, labeled by outcome.
	AuthorLookups *prometheus.CounterVec
}

// NewMetrics creates a new Metrics instance with all metrics initialized.
// The namespace is used as a prefix for all metric names.
func NewMetrics(namespace string) *Metrics {
	return &Metrics{
		// Analyses
		AnalysesStarted: promauto.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "analyses_started_total",
			Help:      "Total number of analysis requests started",
		}),
		AnalysesCompleted: promauto.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "analyses_completed_total",
			Help:      "Total number of analysis requests completed successfully",
		}),
		AnalysesFailed: promauto.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "analyses_failed_total",
			Help:      "Total number of analysis requests that failed",
		}),
		AnalysisDuration: promauto.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "analysis_duration_seconds",
			Help:      "Duration of analysis requests in seconds",
			Buckets:   []float64{0.5, 1, 2.5, 5, 10, 30, 60, 120, 300},
		}),

		// References
		ReferencesParsed: promauto.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "references_parsed_total",
			Help:      "Total number of references segmented from reference lists",
		}),
		ReferencesLowConfidence: promauto.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "references_low_confidence_total",
			Help:      "Total number of references emitted without structured hints",
		}),
		Verdicts: promauto.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "verdicts_total",
			Help:      "Total number of verification verdicts by classification",
		}, []string{"classification"}),

		// Paper sources
		SourceRequestsTotal: promauto.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "source_requests_total",
			Help:      "Total number of requests to paper source APIs",
		}, []string{"source", "endpoint"}),
		SourceRequestsFailed: promauto.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "source_requests_failed_total",
			Help:      "Total number of failed requests to paper source APIs",
		}, []string{"source", "endpoint", "error_type"}),
		SourceRequestDuration: promauto.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "source_request_duration_seconds",
			Help:      "Duration of requests to paper source APIs in seconds",
			Buckets:   []float64{0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10, 30},
		}, []string{"source", "endpoint"}),
		SourceRateLimited: promauto.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "source_rate_limited_total",
			Help:      "Total number of rate-limited responses from paper source APIs",
		}, []string{"source"}),

		// Embeddings
		EmbeddingRequests: promauto.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "embedding_requests_total",
			Help:      "Total number of embedding computations requested",
		}),
		EmbeddingFailures: promauto.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "embedding_failures_total",
			Help:      "Total number of embedding computations that failed",
		}),
		EmbeddingCacheHits: promauto.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "embedding_cache_hits_total",
			Help:      "Total number of embedding cache hits",
		}),
		EmbeddingCacheMisses: promauto.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "embedding_cache_misses_total",
			Help:      "Total number of embedding cache misses",
		}),

		// Graph and ranking
		GraphNodes: promauto.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "graph_nodes",
			Help:      "Node count of built citation graphs",
			Buckets:   []float64{1, 5, 10, 25, 50, 101, 201},
		}),
		RecommendationsReturned: promauto.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "recommendations_returned",
			Help:      "Number of ranked candidates returned per analysis",
			Buckets:   []float64{0, 1, 5, 10, 20, 50},
		}),

		// Authors
		AuthorLookups: promauto.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "author_lookups_total",
			Help:      "Total number of author statistics lookups by outcome",
		}, []string{"outcome"}),
	}
}

// RecordAnalysisStarted records the start of an analysis request.
func (m *Metrics) RecordAnalysisStarted() {
	m.AnalysesStarted.Inc()
}

// RecordAnalysisCompleted records a successfully finished analysis and its duration.
func (m *Metrics) RecordAnalysisCompleted(durationSeconds float64) {
	m.AnalysesCompleted.Inc()
	m.AnalysisDuration.Observe(durationSeconds)
}

// RecordAnalysisFailed records a failed analysis and its duration.
func (m *Metrics) RecordAnalysisFailed(durationSeconds float64) {
	m.AnalysesFailed.Inc()
	m.AnalysisDuration.Observe(durationSeconds)
}

// RecordReferencesParsed records the outcome of reference segmentation.
func (m *Metrics) RecordReferencesParsed(total, lowConfidence int) {
	m.ReferencesParsed.Add(float64(total))
	m.ReferencesLowConfidence.Add(float64(lowConfidence))
}

// RecordVerdict records a verification verdict by classification.
func (m *Metrics) RecordVerdict(classification string) {
	m.Verdicts.WithLabelValues(classification).Inc()
}

// RecordSourceRequest records a completed request to a paper source API.
func (m *Metrics) RecordSourceRequest(source, endpoint string, durationSeconds float64) {
	m.SourceRequestsTotal.WithLabelValues(source, endpoint).Inc()
	m.SourceRequestDuration.WithLabelValues(source, endpoint).Observe(durationSeconds)
}

// RecordSourceRequestFailed records a failed request to a paper source API.
func (m *Metrics) RecordSourceRequestFailed(source, endpoint, errorType string) {
	m.SourceRequestsFailed.WithLabelValues(source, endpoint, errorType).Inc()
}

// RecordRateLimited records a rate-limited response from a paper source API.
func (m *Metrics) RecordRateLimited(source string) {
	m.SourceRateLimited.WithLabelValues(source).Inc()
}

// RecordEmbeddingRequest records an embedding computation sent to the provider.
func (m *Metrics) RecordEmbeddingRequest() {
	m.EmbeddingRequests.Inc()
}

// RecordEmbeddingFailure records an embedding computation that failed.
func (m *Metrics) RecordEmbeddingFailure() {
	m.EmbeddingFailures.Inc()
}

// RecordEmbeddingCacheHit records an embedding served from cache.
func (m *Metrics) RecordEmbeddingCacheHit() {
	m.EmbeddingCacheHits.Inc()
}

// RecordEmbeddingCacheMiss records an embedding not found in cache.
func (m *Metrics) RecordEmbeddingCacheMiss() {
	m.EmbeddingCacheMisses.Inc()
}

// RecordGraphBuilt records the node count of a built citation graph.
func (m *Metrics) RecordGraphBuilt(nodes int) {
	m.GraphNodes.Observe(float64(nodes))
}

// RecordRecommendations records the number of ranked candidates returned.
func (m *Metrics) RecordRecommendations(count int) {
	m.RecommendationsReturned.Observe(float64(count))
}

// RecordAuthorLookup records an author statistics lookup by outcome.
func (m *Metrics) RecordAuthorLookup(outcome string) {
	m.AuthorLookups.WithLabelValues(outcome).Inc()
}
