package ratelimiter

import (
	"context"
	"time"
)

// Store holds per-key limiter state. Take must check and record a request
// atomically for its key.
type Store interface {
	// Take evaluates limits for key at now and, when allowed, records the
	// request.
	Take(ctx context.Context, key string, limits Limits, now time.Time) (Result, error)
	// Peek evaluates limits without recording anything.
	Peek(ctx context.Context, key string, limits Limits, now time.Time) (Result, error)
	// Reset forgets all state for key.
	Reset(ctx context.Context, key string) error
}
