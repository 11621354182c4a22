// Package papersources provides clients for the external scholarly metadata
// providers and the shared rate-limited transport they go through.
package papersources

import (
	"context"

	"golang.org/x/time/rate"
)

// RateLimiter is the token bucket shared by every request to one provider.
// OpenAlex's polite pool sustains around 10 requests per second; Semantic
// Scholar allows roughly 1 request per second without an API key. The
// underlying rate.Limiter is goroutine-safe.
type RateLimiter struct {
	limiter *rate.Limiter
}

// NewRateLimiter creates a limiter sustaining ratePerSecond with the given
// burst capacity.
func NewRateLimiter(ratePerSecond float64, burst int) *RateLimiter {
	return &RateLimiter{
		limiter: rate.NewLimiter(rate.Limit(ratePerSecond), burst),
	}
}

// Wait blocks until the next request is allowed or the context ends.
func (r *RateLimiter) Wait(ctx context.Context) error {
	return r.limiter.Wait(ctx)
}
