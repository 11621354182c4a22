package httpserver

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"

	"github.com/go-playground/validator/v10"

	"github.com/paperlens/analysis-service/internal/analysis"
	"github.com/paperlens/analysis-service/internal/domain"
)

// maxRequestBodySize limits request bodies to 1MB.
const maxRequestBodySize = 1 << 20

// embeddingsKeyHeader carries an optional request-scoped embeddings API
// credential. The value is handed to the pipeline for the duration of the
// request and is never logged or persisted.
const embeddingsKeyHeader = "X-Embeddings-Key"

// analyzeRequest is the request body for POST /api/v1/analyses.
type analyzeRequest struct {
	Title              string `json:"title" validate:"required,max=2000"`
	AuthorBlock        string `json:"author_block" validate:"max=10000"`
	ReferenceText      string `json:"reference_text"`
	BodyText           string `json:"body_text"`
	MaxRecommendations int    `json:"max_recommendations" validate:"gte=0,lte=100"`
}

// verifyRequest is the request body for POST /api/v1/references/verify.
type verifyRequest struct {
	Reference string `json:"reference" validate:"required,max=10000"`
}

// verifyResponse pairs the parsed reference with its verdict.
type verifyResponse struct {
	Reference domain.ParsedReference `json:"reference"`
	Verdict   domain.Verdict         `json:"verdict"`
}

// createAnalysis handles POST /api/v1/analyses.
func (s *Server) createAnalysis(w http.ResponseWriter, r *http.Request) {
	var req analyzeRequest
	if !s.decodeRequest(w, r, &req) {
		return
	}

	result, err := s.pipeline.Analyze(r.Context(), analysis.Request{
		Title:              req.Title,
		AuthorBlock:        req.AuthorBlock,
		ReferenceText:      req.ReferenceText,
		BodyText:           req.BodyText,
		MaxRecommendations: req.MaxRecommendations,
		EmbeddingsKey:      r.Header.Get(embeddingsKeyHeader),
	})
	if err != nil {
		s.writePipelineError(w, r, err)
		return
	}

	writeJSON(w, http.StatusOK, result)
}

// verifyReference handles POST /api/v1/references/verify. It runs the
// parse-resolve-score path for a single reference string.
func (s *Server) verifyReference(w http.ResponseWriter, r *http.Request) {
	var req verifyRequest
	if !s.decodeRequest(w, r, &req) {
		return
	}

	ref, verdict, err := s.pipeline.VerifyReference(r.Context(), req.Reference)
	if err != nil {
		s.writePipelineError(w, r, err)
		return
	}

	writeJSON(w, http.StatusOK, verifyResponse{Reference: ref, Verdict: verdict})
}

// decodeRequest reads, unmarshals, and validates a JSON request body. It
// writes the error response itself and reports whether the handler should
// continue.
func (s *Server) decodeRequest(w http.ResponseWriter, r *http.Request, dst interface{}) bool {
	body, err := io.ReadAll(io.LimitReader(r.Body, maxRequestBodySize))
	if err != nil {
		writeError(w, http.StatusBadRequest, "failed to read request body")
		return false
	}
	if err := json.Unmarshal(body, dst); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON in request body")
		return false
	}
	if err := s.validate.Struct(dst); err != nil {
		writeError(w, http.StatusBadRequest, validationMessage(err))
		return false
	}
	return true
}

// validationMessage renders the first field violation as a client-facing
// message.
func validationMessage(err error) string {
	var fieldErrs validator.ValidationErrors
	if errors.As(err, &fieldErrs) && len(fieldErrs) > 0 {
		fe := fieldErrs[0]
		switch fe.Tag() {
		case "required":
			return fe.Field() + " is required"
		case "max":
			return fe.Field() + " exceeds maximum length"
		default:
			return fe.Field() + " is invalid"
		}
	}
	return "invalid request"
}

// writePipelineError maps pipeline errors to HTTP status codes.
func (s *Server) writePipelineError(w http.ResponseWriter, r *http.Request, err error) {
	var validationErr *domain.ValidationError
	switch {
	case errors.As(err, &validationErr):
		writeError(w, http.StatusBadRequest, validationErr.Error())
	case errors.Is(err, domain.ErrNotFound):
		writeError(w, http.StatusNotFound, err.Error())
	case errors.Is(err, domain.ErrRateLimited):
		writeError(w, http.StatusTooManyRequests, err.Error())
	case errors.Is(err, context.DeadlineExceeded):
		writeError(w, http.StatusGatewayTimeout, "analysis deadline exceeded")
	case errors.Is(err, context.Canceled):
		// Client went away; the status code is for the access log only.
		writeError(w, http.StatusBadRequest, "request cancelled")
	case errors.Is(err, domain.ErrServiceUnavailable):
		writeError(w, http.StatusBadGateway, "upstream metadata providers unavailable")
	default:
		s.logger.Error().Err(err).Str("path", r.URL.Path).Msg("request failed")
		writeError(w, http.StatusInternalServerError, "internal server error")
	}
}
