package service

import (
	"context"
	"math"
	"time"
)

// CounterStore is an atomic increment-and-expire counter. The first
// increment of an empty or expired key starts a window of the given length.
type CounterStore interface {
	Incr(ctx context.Context, key string, window time.Duration) (count int64, ttl time.Duration, err error)
}

// RateLimitResult is the outcome of one rate-limit check.
type RateLimitResult struct {
	Allowed      bool
	Limit        int
	Remaining    int
	ResetSeconds int
}

// RateLimiter is a fixed-window limiter keyed by identity:resource.
type RateLimiter struct {
	store  CounterStore
	limit  int
	window time.Duration
}

// NewRateLimiter creates a limiter allowing limit calls per window.
func NewRateLimiter(store CounterStore, limit int, window time.Duration) *RateLimiter {
	return &RateLimiter{store: store, limit: limit, window: window}
}

// Limit returns the per-window budget.
func (r *RateLimiter) Limit() int { return r.limit }

// Check consumes one unit of the identity's budget for resource.
func (r *RateLimiter) Check(ctx context.Context, identity, resource string) (RateLimitResult, error) {
	count, ttl, err := r.store.Incr(ctx, identity+":"+resource, r.window)
	if err != nil {
		return RateLimitResult{}, err
	}

	remaining := r.limit - int(count)
	if remaining < 0 {
		remaining = 0
	}
	return RateLimitResult{
		Allowed:      count <= int64(r.limit),
		Limit:        r.limit,
		Remaining:    remaining,
		ResetSeconds: int(math.Ceil(ttl.Seconds())),
	}, nil
}
