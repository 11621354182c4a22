package observability

import (
	"context"
)

// Context keys for observability data.
type contextKey string

const (
	requestIDKey  contextKey = "request_id"
	analysisIDKey contextKey = "analysis_id"
)

// WithRequestID adds a request ID to the context.
func WithRequestID(ctx context.Context, requestID string) context.Context {
	return context.WithValue(ctx, requestIDKey, requestID)
}

// RequestIDFromContext retrieves the request ID from context.
// Returns empty string if not present.
func RequestIDFromContext(ctx context.Context) string {
	if v := ctx.Value(requestIDKey); v != nil {
		if id, ok := v.(string); ok {
			return id
		}
	}
	return ""
}

// WithAnalysisID adds an analysis ID to the context.
func WithAnalysisID(ctx context.Context, analysisID string) context.Context {
	return context.WithValue(ctx, analysisIDKey, analysisID)
}

// AnalysisIDFromContext retrieves the analysis ID from context.
// Returns empty string if not present.
func AnalysisIDFromContext(ctx context.Context) string {
	if v := ctx.Value(analysisIDKey); v != nil {
		if id, ok := v.(string); ok {
			return id
		}
	}
	return ""
}

// AnalysisContext contains all the context data for one analysis request.
type AnalysisContext struct {
	RequestID  string
	AnalysisID string
}

// WithAnalysisContextFull adds all analysis context to the context.
func WithAnalysisContextFull(ctx context.Context, ac AnalysisContext) context.Context {
	if ac.RequestID != "" {
		ctx = WithRequestID(ctx, ac.RequestID)
	}
	if ac.AnalysisID != "" {
		ctx = WithAnalysisID(ctx, ac.AnalysisID)
	}
	return ctx
}

// AnalysisContextFromContext extracts all analysis context from the context.
func AnalysisContextFromContext(ctx context.Context) AnalysisContext {
	return AnalysisContext{
		RequestID:  RequestIDFromContext(ctx),
		AnalysisID: AnalysisIDFromContext(ctx),
	}
}
