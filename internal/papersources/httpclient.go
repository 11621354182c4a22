package papersources

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"time"

	"github.com/paperlens/analysis-service/internal/domain"
)

// HTTPClientConfig configures the shared provider transport.
type HTTPClientConfig struct {
	// Source names the provider behind this client. It is carried into
	// the typed errors the client returns.
	Source string

	// Timeout is the per-request timeout.
	Timeout time.Duration

	// RateLimit is the sustained requests per second.
	RateLimit float64

	// BurstSize is the token bucket burst capacity.
	BurstSize int

	// MaxRetries is the number of retry attempts after the first request.
	MaxRetries int

	// RetryDelay is the base delay between retries, overridden by a
	// Retry-After response header.
	RetryDelay time.Duration

	// UserAgent is the User-Agent header sent with requests.
	UserAgent string

	// APIKey is an optional API key for authentication.
	APIKey string

	// APIKeyHeader is the header name for the API key (e.g., "x-api-key").
	APIKeyHeader string
}

// HTTPClient is the transport shared by the provider clients. It applies the
// provider's rate limit before every attempt and retries transient failures.
// It is safe for concurrent use.
type HTTPClient struct {
	client      *http.Client
	rateLimiter *RateLimiter
	config      HTTPClientConfig
}

// NewHTTPClient creates a provider transport with rate limiting and retries.
func NewHTTPClient(cfg HTTPClientConfig) *HTTPClient {
	if cfg.Source == "" {
		cfg.Source = "provider"
	}
	if cfg.Timeout == 0 {
		cfg.Timeout = 30 * time.Second
	}
	if cfg.RateLimit == 0 {
		cfg.RateLimit = 10
	}
	if cfg.BurstSize == 0 {
		cfg.BurstSize = 10
	}
	if cfg.MaxRetries == 0 {
		cfg.MaxRetries = 3
	}
	if cfg.RetryDelay == 0 {
		cfg.RetryDelay = time.Second
	}
	if cfg.UserAgent == "" {
		cfg.UserAgent = "PaperLens-AnalysisService/1.0"
	}

	return &HTTPClient{
		client: &http.Client{
			Timeout: cfg.Timeout,
		},
		rateLimiter: NewRateLimiter(cfg.RateLimit, cfg.BurstSize),
		config:      cfg,
	}
}

// Do executes a request with rate limiting and bounded retries. Network
// errors, 429 responses, and 5xx responses are retried; a Retry-After
// header, in delta-seconds or HTTP-date form, overrides the configured
// retry delay. When the provider still answers 429 on the final attempt the
// returned error unwraps to domain.ErrRateLimited; a final 5xx unwraps to
// domain.ErrServiceUnavailable.
//
// Request bodies are rewound from GetBody before each retry; a request with
// a body but no GetBody cannot be retried.
func (c *HTTPClient) Do(req *http.Request) (*http.Response, error) {
	if req.Header.Get("User-Agent") == "" {
		req.Header.Set("User-Agent", c.config.UserAgent)
	}
	if c.config.APIKey != "" && c.config.APIKeyHeader != "" {
		req.Header.Set(c.config.APIKeyHeader, c.config.APIKey)
	}

	for attempt := 0; ; attempt++ {
		if err := c.rateLimiter.Wait(req.Context()); err != nil {
			return nil, fmt.Errorf("rate limiter wait: %w", err)
		}

		resp, err := c.client.Do(req)
		var delay time.Duration
		switch {
		case err != nil:
			if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
				return nil, err
			}
			if attempt >= c.config.MaxRetries {
				return nil, fmt.Errorf("request failed: %w", err)
			}
			delay = c.config.RetryDelay

		case retryableStatus(resp.StatusCode):
			delay = retryAfter(resp, c.config.RetryDelay)
			drain(resp)
			if attempt >= c.config.MaxRetries {
				return nil, c.exhausted(resp.StatusCode, delay, attempt+1)
			}

		default:
			return resp, nil
		}

		if err := sleepCtx(req.Context(), delay); err != nil {
			return nil, err
		}
		if err := rewindBody(req); err != nil {
			return nil, fmt.Errorf("cannot retry request: %w", err)
		}
	}
}

// exhausted converts the final retryable status into a typed error. The 429
// case carries the provider's requested backoff so callers can surface it.
func (c *HTTPClient) exhausted(status int, delay time.Duration, attempts int) error {
	if status == http.StatusTooManyRequests {
		return domain.NewRateLimitError(c.config.Source, delay)
	}
	return domain.NewExternalAPIError(c.config.Source, status,
		fmt.Sprintf("retries exhausted after %d attempts", attempts), domain.ErrServiceUnavailable)
}

// retryableStatus reports whether the status warrants another attempt.
func retryableStatus(status int) bool {
	return status == http.StatusTooManyRequests || (status >= 500 && status < 600)
}

// retryAfter reads the Retry-After header, falling back to the configured
// delay when the header is absent or unparseable.
func retryAfter(resp *http.Response, fallback time.Duration) time.Duration {
	header := resp.Header.Get("Retry-After")
	if header == "" {
		return fallback
	}

	if seconds, err := strconv.ParseInt(header, 10, 64); err == nil {
		if seconds > 0 {
			return time.Duration(seconds) * time.Second
		}
		return fallback
	}

	if at, err := http.ParseTime(header); err == nil {
		if delay := time.Until(at); delay > 0 {
			return delay
		}
	}
	return fallback
}

// drain discards and closes the response body so the connection can be
// reused for the retry.
func drain(resp *http.Response) {
	if resp.Body != nil {
		_, _ = io.Copy(io.Discard, resp.Body)
		resp.Body.Close()
	}
}

// sleepCtx waits for the delay unless the context ends first.
func sleepCtx(ctx context.Context, delay time.Duration) error {
	timer := time.NewTimer(delay)
	defer timer.Stop()

	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}

// rewindBody restores the request body before a retry.
func rewindBody(req *http.Request) error {
	if req.Body == nil || req.GetBody == nil {
		return nil
	}
	body, err := req.GetBody()
	if err != nil {
		return fmt.Errorf("get body for retry: %w", err)
	}
	req.Body = body
	return nil
}
