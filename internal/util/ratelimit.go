package util

import (
	"context"
	"time"

	"golang.org/x/time/rate"
)

// RateLimiter spaces gatherer requests at a steady per-minute rate. It is
// safe for concurrent use by gatherer workers.
type RateLimiter struct {
	lim *rate.Limiter
}

// NewRateLimiter allows perMinute operations per minute with no bursting.
func NewRateLimiter(perMinute int) *RateLimiter {
	return NewRateLimiterBurst(perMinute, 1)
}

// NewRateLimiterBurst allows perMinute operations per minute and up to burst
// back-to-back operations after an idle period. The bucket starts full.
func NewRateLimiterBurst(perMinute, burst int) *RateLimiter {
	perSecond := rate.Limit(float64(max(perMinute, 1)) / 60)
	return &RateLimiter{lim: rate.NewLimiter(perSecond, max(burst, 1))}
}

// Wait blocks until a token is available or ctx is done, returning ctx.Err()
// in the latter case. A cancelled wait gives its token back.
func (rl *RateLimiter) Wait(ctx context.Context) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	r := rl.lim.Reserve()
	delay := r.Delay()
	if delay == 0 {
		return nil
	}
	timer := time.NewTimer(delay)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		r.Cancel()
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
