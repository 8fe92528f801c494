// Package ratelimit implements fixed-window request counting per client key.
//
// A key's window opens on its first request and lasts for the configured
// duration; every request inside it is counted, including rejected ones.
// Windows of different keys are independent.
package ratelimit

import (
	"context"
	"time"
)

// Result is the decision for a single request.
type Result struct {
	Allowed   bool
	Limit     int
	Remaining int
	ResetAt   time.Time
}

// RetryAfter returns how long the caller should wait before the window resets.
func (r Result) RetryAfter(now time.Time) time.Duration {
	d := r.ResetAt.Sub(now)
	if d < 0 {
		return 0
	}
	return d
}

// Store counts requests per key and decides whether each one is admitted.
// Implementations must be safe for concurrent use.
type Store interface {
	Take(ctx context.Context, key string) (Result, error)
}

// Policy describes the limit a Store enforces.
type Policy struct {
	Limit  int
	Window time.Duration
}

func (p Policy) result(count int, resetAt time.Time) Result {
	remaining := p.Limit - count
	if remaining < 0 {
		remaining = 0
	}
	return Result{
		Allowed:   count <= p.Limit,
		Limit:     p.Limit,
		Remaining: remaining,
		ResetAt:   resetAt,
	}
}
