package notifier

import (
	"context"
	"time"

	"golang.org/x/time/rate"

	"seriesbell/internal/observability/metrics"
)

// RateLimiter is a token bucket in front of an outgoing Discord endpoint.
type RateLimiter struct {
	name    string
	limiter *rate.Limiter
}

// NewRateLimiter creates a limiter allowing burst requests at once, then
// refilling at requestsPerSecond. name labels the wait-time metric.
//
//	limiter := NewRateLimiter("discord-webhook", 0.5, 3)
func NewRateLimiter(name string, requestsPerSecond float64, burst int) *RateLimiter {
	return &RateLimiter{
		name:    name,
		limiter: rate.NewLimiter(rate.Limit(requestsPerSecond), burst),
	}
}

// Allow blocks until a token is available or ctx ends.
func (r *RateLimiter) Allow(ctx context.Context) error {
	start := time.Now()
	if err := r.limiter.Wait(ctx); err != nil {
		return err
	}
	if waited := time.Since(start); waited > time.Millisecond {
		metrics.RecordRateLimitWait(r.name, waited)
	}
	return nil
}
