package middleware

import (
	"context"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/xraph/caseflow"
)

// tracerName is the instrumentation scope name for caseflow tracing.
const tracerName = "github.com/xraph/caseflow"

// Tracing returns middleware that wraps each stage attempt in an
// OpenTelemetry span. If no TracerProvider is configured globally, the
// default noop tracer is used and this middleware becomes a pass-through.
//
// Span attributes include: caseflow.case_id, caseflow.stage and
// caseflow.attempt. On error, the span status is set to codes.Error and
// caseflow.error_kind records the failure classification.
func Tracing() Middleware {
	tracer := otel.Tracer(tracerName)
	return TracingWithTracer(tracer)
}

// TracingWithTracer returns tracing middleware using the provided tracer.
// This variant allows injecting a specific TracerProvider for testing or
// when multiple providers are in use.
func TracingWithTracer(tracer trace.Tracer) Middleware {
	return func(ctx context.Context, inv *Invocation, next Handler) error {
		ctx, span := tracer.Start(ctx, "caseflow.stage.execute",
			trace.WithAttributes(
				attribute.String("caseflow.case_id", inv.CaseID),
				attribute.String("caseflow.stage", inv.Stage),
				attribute.Int("caseflow.attempt", inv.Attempt),
			),
			trace.WithSpanKind(trace.SpanKindInternal),
		)
		defer span.End()

		err := next(ctx)
		if err != nil {
			span.RecordError(err)
			span.SetAttributes(attribute.String("caseflow.error_kind", string(caseflow.KindOf(err))))
			span.SetStatus(codes.Error, err.Error())
		} else {
			span.SetStatus(codes.Ok, "")
		}

		return err
	}
}
