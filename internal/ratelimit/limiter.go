// Package ratelimit holds the fixed-window limiters that guard the public
// auth endpoints.
package ratelimit

import (
	"context"
	"time"
)

// Limiter decides whether the request identified by key may proceed. When it
// may not, retryAfter says how long until the window resets.
type Limiter interface {
	Allow(ctx context.Context, key string, now time.Time) (allowed bool, retryAfter time.Duration, err error)
}
