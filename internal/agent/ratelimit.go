package agent

import (
	"context"

	"golang.org/x/time/rate"
)

// RateLimiter is a token bucket for throttling LLM API calls.
type RateLimiter struct {
	limiter *rate.Limiter
}

func NewRateLimiter(maxBurst int, ratePerMinute float64) *RateLimiter {
	if maxBurst <= 0 {
		maxBurst = 10
	}
	if ratePerMinute <= 0 {
		ratePerMinute = 30 // 30 requests per minute default
	}
	return &RateLimiter{
		limiter: rate.NewLimiter(rate.Limit(ratePerMinute/60.0), maxBurst),
	}
}

// Wait blocks until a call may proceed or ctx is done.
func (rl *RateLimiter) Wait(ctx context.Context) error {
	return rl.limiter.Wait(ctx)
}
