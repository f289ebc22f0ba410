// Package ratelimit throttles public endpoints per client IP with a sliding
// window. Counters live in process memory or in Redis when several server
// instances share one limit.
package ratelimit

import (
	"context"
	"time"
)

// Result is the outcome of one Allow call.
type Result struct {
	Allowed   bool
	Limit     int
	Remaining int
	ResetAt   time.Time
	// RetryAfter is the number of seconds to wait when not allowed.
	RetryAfter int
}

// Store counts requests per key over a sliding window.
type Store interface {
	Allow(ctx context.Context, key string, limit int, window time.Duration) (Result, error)
}

// ExceededResponse is the 429 body.
type ExceededResponse struct {
	Error      string `json:"error"`
	Message    string `json:"message"`
	RetryAfter int    `json:"retry_after"`
}

func retryAfterSeconds(until time.Duration) int {
	secs := int(until.Round(time.Second) / time.Second)
	if secs < 1 {
		return 1
	}
	return secs
}
