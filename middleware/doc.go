// Package middleware provides composable middleware around stage attempts.
//
// A [Middleware] is a function that wraps one attempt of a stage. Middleware
// are composed into a chain using [Chain] and applied to every attempt the
// retry policy makes. They are applied right-to-left: the first middleware
// in the slice is the outermost wrapper.
//
//	// recover → logging → handler
//	chain := middleware.Chain(middleware.Recover(logger), middleware.Logging(logger))
//
// # Built-in Middleware
//
//   - [Logging]: logs case, stage, attempt, duration and outcome
//   - [Recover]: catches panics and converts them to errors
//   - [Timeout]: cancels the attempt context after a fixed duration
//   - [Tracing]: wraps the attempt in an OpenTelemetry span
//   - [Metrics]: records per-stage duration and outcome counters
//   - [RateLimit]: waits for a per-stage token before calling out
//
// # Writing Custom Middleware
//
//	func MyMiddleware() middleware.Middleware {
//	    return func(ctx context.Context, inv *middleware.Invocation, next middleware.Handler) error {
//	        // pre-processing
//	        err := next(ctx)
//	        // post-processing
//	        return err
//	    }
//	}
//
// Middleware MUST call next to continue the chain unless intentionally
// short-circuiting (e.g., circuit breaker, rate limiting).
package middleware
