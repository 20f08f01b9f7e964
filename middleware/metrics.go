package middleware

import (
	"context"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

// meterName is the instrumentation scope name for caseflow metrics.
const meterName = "github.com/xraph/caseflow"

// Metrics returns middleware that records per-attempt metrics using the
// global OTel MeterProvider. If no MeterProvider is configured, noop
// instruments are used and this middleware becomes a pass-through.
//
// Instruments:
//   - caseflow.stage.duration (Float64Histogram): attempt time in seconds,
//     with attributes: stage, status ("ok" or "error")
//   - caseflow.stage.attempts (Int64Counter): total attempts,
//     with attributes: stage, status ("ok" or "error")
func Metrics() Middleware {
	meter := otel.Meter(meterName)
	return MetricsWithMeter(meter)
}

// MetricsWithMeter returns metrics middleware using the provided meter.
// This variant allows injecting a specific MeterProvider for testing.
func MetricsWithMeter(meter metric.Meter) Middleware {
	// OTel returns noop instruments alongside any construction error.
	duration, _ := meter.Float64Histogram(
		"caseflow.stage.duration",
		metric.WithDescription("Duration of stage attempts in seconds"),
		metric.WithUnit("s"),
	)

	attempts, _ := meter.Int64Counter(
		"caseflow.stage.attempts",
		metric.WithDescription("Total number of stage attempts"),
		metric.WithUnit("{attempt}"),
	)

	return func(ctx context.Context, inv *Invocation, next Handler) error {
		start := time.Now()
		err := next(ctx)
		elapsed := time.Since(start).Seconds()

		status := "ok"
		if err != nil {
			status = "error"
		}

		attrs := metric.WithAttributes(
			attribute.String("stage", inv.Stage),
			attribute.String("status", status),
		)

		duration.Record(ctx, elapsed, attrs)
		attempts.Add(ctx, 1, attrs)

		return err
	}
}
