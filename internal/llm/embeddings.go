// Package llm provides the client for the external embeddings API.
package llm

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/cenkalti/backoff/v4"
)

// Default values for the embeddings client.
const (
	DefaultBaseURL    = "https://api.openai.com/v1"
	DefaultModel      = "text-embedding-3-small"
	DefaultTimeout    = 30 * time.Second
	DefaultMaxRetries = 3
	DefaultRetryDelay = 2 * time.Second
)

// EmbeddingsConfig holds the parameters for the embeddings client.
type EmbeddingsConfig struct {
	// APIKey authenticates against the embeddings API.
	APIKey string

	// BaseURL is the API base URL for an OpenAI-compatible embeddings
	// endpoint. Defaults to DefaultBaseURL.
	BaseURL string

	// Model is the embedding model identifier.
	Model string

	// Timeout is the per-request timeout.
	Timeout time.Duration

	// MaxRetries is the number of retries for transient failures.
	MaxRetries int

	// RetryDelay is the initial backoff interval.
	RetryDelay time.Duration
}

// embeddingsRequest is the OpenAI-compatible embeddings request body.
type embeddingsRequest struct {
	Model string   `json:"model"`
	Input []string `json:"input"`
}

// embeddingsResponse is the OpenAI-compatible embeddings response body.
type embeddingsResponse struct {
	Data  []embeddingData `json:"data"`
	Model string          `json:"model"`
	Usage embeddingsUsage `json:"usage"`
}

// embeddingData is one embedding vector in the response.
type embeddingData struct {
	Index     int       `json:"index"`
	Embedding []float32 `json:"embedding"`
}

// embeddingsUsage contains token accounting for the request.
type embeddingsUsage struct {
	PromptTokens int `json:"prompt_tokens"`
	TotalTokens  int `json:"total_tokens"`
}

// apiErrorResponse is the error envelope returned by the API.
type apiErrorResponse struct {
	Error apiErrorDetail `json:"error"`
}

type apiErrorDetail struct {
	Message string `json:"message"`
	Type    string `json:"type"`
	Code    string `json:"code"`
}

// EmbeddingsClient computes deterministic text embeddings through an
// OpenAI-compatible embeddings API. It is safe for concurrent use; the
// zero retry schedule and HTTP client are shared across goroutines.
type EmbeddingsClient struct {
	httpClient *http.Client
	cfg        EmbeddingsConfig
}

// NewEmbeddingsClient creates an embeddings client. Zero-valued fields in
// cfg fall back to the package defaults.
func NewEmbeddingsClient(cfg EmbeddingsConfig) *EmbeddingsClient {
	if cfg.BaseURL == "" {
		cfg.BaseURL = DefaultBaseURL
	}
	if cfg.Model == "" {
		cfg.Model = DefaultModel
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = DefaultTimeout
	}
	if cfg.MaxRetries < 0 {
		cfg.MaxRetries = 0
	}
	if cfg.RetryDelay <= 0 {
		cfg.RetryDelay = DefaultRetryDelay
	}

	return &EmbeddingsClient{
		httpClient: &http.Client{
			Timeout: cfg.Timeout,
			Transport: &http.Transport{
				MaxIdleConns:        10,
				MaxIdleConnsPerHost: 10,
				IdleConnTimeout:     90 * time.Second,
			},
		},
		cfg: cfg,
	}
}

// WithAPIKey returns a shallow copy of the client that authenticates with
// the given key. The HTTP client and retry schedule are shared; the key is
// held only for the lifetime of the copy and never logged or persisted.
func (c *EmbeddingsClient) WithAPIKey(key string) *EmbeddingsClient {
	if key == "" || key == c.cfg.APIKey {
		return c
	}
	clone := *c
	clone.cfg.APIKey = key
	return &clone
}

// Model returns the configured embedding model identifier.
func (c *EmbeddingsClient) Model() string {
	return c.cfg.Model
}

// Embed computes embeddings for a batch of texts. The returned slice is
// ordered to match the input. Transient API failures (429, 5xx, network
// errors) are retried with exponential backoff up to MaxRetries times.
func (c *EmbeddingsClient) Embed(ctx context.Context, texts []string) ([][]float32, error) {
	if len(texts) == 0 {
		return nil, nil
	}
	if c.cfg.APIKey == "" {
		return nil, fmt.Errorf("embeddings: no API key configured")
	}

	var result [][]float32

	operation := func() error {
		vectors, err := c.doRequest(ctx, texts)
		if err != nil {
			if isTransientError(err) {
				return err
			}
			return backoff.Permanent(err)
		}
		result = vectors
		return nil
	}

	policy := backoff.WithContext(
		backoff.WithMaxRetries(backoff.NewExponentialBackOff(
			backoff.WithInitialInterval(c.cfg.RetryDelay),
		), uint64(c.cfg.MaxRetries)),
		ctx,
	)

	if err := backoff.Retry(operation, policy); err != nil {
		return nil, err
	}
	return result, nil
}

// doRequest performs a single embeddings API request.
func (c *EmbeddingsClient) doRequest(ctx context.Context, texts []string) ([][]float32, error) {
	body, err := json.Marshal(embeddingsRequest{
		Model: c.cfg.Model,
		Input: texts,
	})
	if err != nil {
		return nil, fmt.Errorf("embeddings: failed to marshal request: %w", err)
	}

	endpoint := c.cfg.BaseURL + "/embeddings"
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("embeddings: failed to create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+c.cfg.APIKey)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
			return nil, err
		}
		// No HTTP response; treat as transient.
		return nil, &APIError{Provider: "embeddings", StatusCode: 0, Message: err.Error()}
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(io.LimitReader(resp.Body, 50<<20))
	if err != nil {
		return nil, fmt.Errorf("embeddings: failed to read response body: %w", err)
	}

	if resp.StatusCode != http.StatusOK {
		return nil, parseAPIError(resp.StatusCode, respBody)
	}

	var embResp embeddingsResponse
	if err := json.Unmarshal(respBody, &embResp); err != nil {
		return nil, fmt.Errorf("embeddings: failed to unmarshal response: %w", err)
	}

	if len(embResp.Data) != len(texts) {
		return nil, fmt.Errorf("embeddings: expected %d vectors, got %d", len(texts), len(embResp.Data))
	}

	// The API may return entries out of order; the index field is
	// authoritative.
	vectors := make([][]float32, len(texts))
	for _, d := range embResp.Data {
		if d.Index < 0 || d.Index >= len(vectors) {
			return nil, fmt.Errorf("embeddings: vector index %d out of range", d.Index)
		}
		vectors[d.Index] = d.Embedding
	}
	for i, v := range vectors {
		if len(v) == 0 {
			return nil, fmt.Errorf("embeddings: empty vector at index %d", i)
		}
	}
	return vectors, nil
}

// parseAPIError parses an API error from the response status code and body.
func parseAPIError(statusCode int, body []byte) *APIError {
	apiErr := &APIError{
		Provider:   "embeddings",
		StatusCode: statusCode,
		Message:    string(body),
	}

	var errResp apiErrorResponse
	if err := json.Unmarshal(body, &errResp); err == nil && errResp.Error.Message != "" {
		apiErr.Message = errResp.Error.Message
		apiErr.Type = errResp.Error.Type
		apiErr.Code = errResp.Error.Code
	}

	return apiErr
}
