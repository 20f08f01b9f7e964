package middleware

import (
	"context"

	"golang.org/x/time/rate"

	"github.com/xraph/caseflow"
)

// RateLimit returns middleware that waits for a token from the limiter
// registered for the attempt's stage. Stages without a limiter pass
// straight through. A wait cut short by the context is reported as a
// transient failure.
func RateLimit(limits map[string]*rate.Limiter) Middleware {
	return func(ctx context.Context, inv *Invocation, next Handler) error {
		if l, ok := limits[inv.Stage]; ok && l != nil {
			if err := l.Wait(ctx); err != nil {
				return caseflow.Transient(err)
			}
		}
		return next(ctx)
	}
}
