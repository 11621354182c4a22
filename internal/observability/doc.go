// Package observability provides logging and metrics support for the paper
// analysis service.
//
// # Overview
//
// The observability package provides:
//
//   - Structured logging with zerolog
//   - Prometheus metrics for analyses, references, sources, and embeddings
//   - Context helpers for propagating observability data
//
// # Logging
//
// Create a logger from configuration:
//
//	cfg := observability.LoggingConfig{
//	    Level:     "info",
//	    Format:    "json",
//	    Output:    "stdout",
//	    AddSource: true,
//	}
//
//	logger := observability.NewLogger(cfg)
//	logger.Info().Str("request_id", reqID).Msg("analysis started")
//
// Add analysis context to logger:
//
//	logger = observability.WithAnalysisContext(logger, requestID, analysisID)
//
// # Metrics
//
// Initialize metrics:
//
//	metrics := observability.NewMetrics("paperlens")
//
// Record metrics:
//
//	metrics.RecordAnalysisStarted()
//	metrics.RecordVerdict("verified")
//	metrics.RecordSourceRequest("openalex", "search", 0.4)
//
// # Context Helpers
//
// Store and retrieve request context:
//
//	ctx = observability.WithRequestID(ctx, requestID)
//	ctx = observability.WithAnalysisID(ctx, analysisID)
//
//	reqID := observability.RequestIDFromContext(ctx)
//	analysisID := observability.AnalysisIDFromContext(ctx)
//
// # Standard Fields
//
// Common fields used across the service:
//
//   - request_id: HTTP request identifier
//   - analysis_id: Analysis run identifier
//   - source: Paper source (openalex, semantic_scholar)
//   - query: Resolution query sent to a source
//   - paper_id: Canonical paper identifier
//   - reference_index: Position of a reference in the parsed list
//
// # Thread Safety
//
// All components are safe for concurrent use from multiple goroutines.
package observability
