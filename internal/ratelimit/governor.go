// Package ratelimit paces outbound requests to the tag authority.
//
// A Governor is a token bucket: the first Burst calls to Wait return at once,
// after which permitted calls are spaced at least Interval apart. One Governor
// is created per run and shared by every worker of that run.
package ratelimit

import (
	"context"
	"fmt"
	"sync/atomic"
	"time"

	"golang.org/x/time/rate"
)

// DefaultInterval keeps request pressure well under Danbooru's burst pool.
const DefaultInterval = time.Second

// Governor enforces a minimum spacing between permitted calls.
type Governor struct {
	limiter   *rate.Limiter
	interval  time.Duration
	burst     int
	permitted atomic.Int64
}

// New creates a Governor allowing burst immediate calls and then one call
// per interval. A burst below 1 is treated as 1. A non-positive interval
// disables pacing.
func New(interval time.Duration, burst int) *Governor {
	if burst < 1 {
		burst = 1
	}

	limit := rate.Inf
	if interval > 0 {
		limit = rate.Every(interval)
	}

	return &Governor{
		limiter:  rate.NewLimiter(limit, burst),
		interval: interval,
		burst:    burst,
	}
}

// Wait blocks until the caller may issue one request.
//
// It returns an error only when ctx is cancelled (or its deadline cannot be
// met) before a slot opens; in that case no slot is consumed.
func (g *Governor) Wait(ctx context.Context) error {
	if err := g.limiter.Wait(ctx); err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return ctxErr
		}
		return fmt.Errorf("rate governor wait: %w", err)
	}
	g.permitted.Add(1)
	return nil
}

// Permitted returns how many calls Wait has let through.
func (g *Governor) Permitted() int64 {
	return g.permitted.Load()
}

// Interval returns the configured spacing.
func (g *Governor) Interval() time.Duration {
	return g.interval
}

// Burst returns the number of calls allowed without waiting.
func (g *Governor) Burst() int {
	return g.burst
}
