// Package ratelimit provides fixed-window attempt counters shared by every
// caller of the LLM gateway.
package ratelimit

import (
	"context"
	"time"
)

// Limiter counts attempts per key inside a fixed window.
//
// The first Hit on a key opens a window of length decay; later hits inside the
// window increment the same counter, and the counter starts over once the
// window has expired. TooManyAttempts reports count >= max, so with max=N the
// call after the N-th hit is rejected. A max <= 0 disables the check.
type Limiter interface {
	TooManyAttempts(ctx context.Context, key string, max int) (bool, error)
	Hit(ctx context.Context, key string, decay time.Duration) error
}
