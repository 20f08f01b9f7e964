package orchestrator

import (
	"log/slog"
	"time"

	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/trace"
	"golang.org/x/time/rate"

	"github.com/xraph/caseflow"
	"github.com/xraph/caseflow/cache"
	"github.com/xraph/caseflow/ext"
	mw "github.com/xraph/caseflow/middleware"
	"github.com/xraph/caseflow/retry"
)

// Option configures an Orchestrator.
type Option func(*Orchestrator)

// WithLogger sets the logger. Defaults to slog.Default().
func WithLogger(l *slog.Logger) Option {
	return func(o *Orchestrator) { o.logger = l }
}

// WithConfig replaces the engine-wide defaults.
func WithConfig(cfg caseflow.Config) Option {
	return func(o *Orchestrator) { o.cfg = cfg }
}

// WithRetryPolicy sets the policy for stages registered without one.
// Defaults to retry.FromConfig of the active Config.
func WithRetryPolicy(p retry.Policy) Option {
	return func(o *Orchestrator) { o.policy = &p }
}

// WithMiddleware appends middleware after the default stack
// (recover, tracing, metrics, logging).
func WithMiddleware(m ...mw.Middleware) Option {
	return func(o *Orchestrator) { o.mws = append(o.mws, m...) }
}

// WithStageRateLimit throttles attempts of one stage to rps per second
// with the given burst. Attempts wait for a token before running.
func WithStageRateLimit(stage string, rps float64, burst int) Option {
	return func(o *Orchestrator) {
		if o.limits == nil {
			o.limits = make(map[string]*rate.Limiter)
		}
		o.limits[stage] = rate.NewLimiter(rate.Limit(rps), burst)
	}
}

// WithExtension registers a lifecycle extension.
func WithExtension(e ext.Extension) Option {
	return func(o *Orchestrator) { o.pending = append(o.pending, e) }
}

// WithResultCache stores the final state of completed runs in c for ttl.
func WithResultCache(c cache.Cache, ttl time.Duration) Option {
	return func(o *Orchestrator) {
		o.cache = c
		o.cacheTTL = ttl
	}
}

// WithSleeper overrides how backoff delays are waited out.
func WithSleeper(s retry.Sleeper) Option {
	return func(o *Orchestrator) { o.sleeper = s }
}

// WithTracerProvider sets the TracerProvider used by the tracing
// middleware. If not set, the global provider is used.
func WithTracerProvider(tp trace.TracerProvider) Option {
	return func(o *Orchestrator) { o.tracerProvider = tp }
}

// WithMeterProvider sets the MeterProvider used by the metrics middleware
// and the observability extension. If not set, the global provider is used.
func WithMeterProvider(mp metric.MeterProvider) Option {
	return func(o *Orchestrator) { o.meterProvider = mp }
}
