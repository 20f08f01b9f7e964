package middleware

import (
	"context"
	"fmt"
	"log/slog"
	"runtime/debug"
)

// Recover returns middleware that recovers from panics in the handler chain.
// Panics are converted to errors and logged with a stack trace. The
// resulting error is unclassified, so it is not retried.
func Recover(logger *slog.Logger) Middleware {
	return func(ctx context.Context, inv *Invocation, next Handler) (retErr error) {
		defer func() {
			if r := recover(); r != nil {
				stack := string(debug.Stack())
				logger.Error("stage panicked",
					slog.String("case_id", inv.CaseID),
					slog.String("stage", inv.Stage),
					slog.Any("panic", r),
					slog.String("stack", stack),
				)
				retErr = fmt.Errorf("panic in stage %s: %v", inv.Stage, r)
			}
		}()
		return next(ctx)
	}
}
