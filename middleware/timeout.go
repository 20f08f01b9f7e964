package middleware

import (
	"context"
	"time"
)

// Timeout returns middleware that enforces a fixed deadline on every
// attempt. A non-positive d disables it. Per-stage deadlines are applied
// by the retry policy; this is the outer bound for all stages.
func Timeout(d time.Duration) Middleware {
	return func(ctx context.Context, _ *Invocation, next Handler) error {
		if d <= 0 {
			return next(ctx)
		}
		ctx, cancel := context.WithTimeout(ctx, d)
		defer cancel()
		return next(ctx)
	}
}
