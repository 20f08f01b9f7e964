package observability

import (
	"context"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"

	"github.com/xraph/caseflow/ext"
	"github.com/xraph/caseflow/state"
)

// Compile-time interface checks.
var (
	_ ext.Extension      = (*MetricsExtension)(nil)
	_ ext.RunStarted     = (*MetricsExtension)(nil)
	_ ext.RunCompleted   = (*MetricsExtension)(nil)
	_ ext.RunFailed      = (*MetricsExtension)(nil)
	_ ext.RunPaused      = (*MetricsExtension)(nil)
	_ ext.StageCompleted = (*MetricsExtension)(nil)
	_ ext.StageFailed    = (*MetricsExtension)(nil)
	_ ext.StageRetrying  = (*MetricsExtension)(nil)
)

const meterName = "github.com/xraph/caseflow/observability"

// MetricsExtension records system-wide lifecycle metrics.
//
// Instruments:
//   - caseflow.run.started (attribute resumed)
//   - caseflow.run.finished (attribute status: completed, failed or paused)
//   - caseflow.run.duration in seconds, for completed runs
//   - caseflow.stage.completed, caseflow.stage.failed (attribute fatal)
//     and caseflow.stage.retried, all with attribute stage
type MetricsExtension struct {
	runStarted     metric.Int64Counter
	runFinished    metric.Int64Counter
	runDuration    metric.Float64Histogram
	stageCompleted metric.Int64Counter
	stageFailed    metric.Int64Counter
	stageRetried   metric.Int64Counter
}

// NewMetricsExtension creates a MetricsExtension on the global MeterProvider.
func NewMetricsExtension() *MetricsExtension {
	return NewMetricsExtensionWithMeter(otel.Meter(meterName))
}

// NewMetricsExtensionWithMeter creates a MetricsExtension with the provided meter.
func NewMetricsExtensionWithMeter(meter metric.Meter) *MetricsExtension {
	// OTel returns noop instruments alongside any construction error.
	m := &MetricsExtension{}
	m.runStarted, _ = meter.Int64Counter("caseflow.run.started",
		metric.WithDescription("Runs entered by the driver"), metric.WithUnit("{run}"))
	m.runFinished, _ = meter.Int64Counter("caseflow.run.finished",
		metric.WithDescription("Runs that stopped, by final status"), metric.WithUnit("{run}"))
	m.runDuration, _ = meter.Float64Histogram("caseflow.run.duration",
		metric.WithDescription("Wall time of completed runs in seconds"), metric.WithUnit("s"))
	m.stageCompleted, _ = meter.Int64Counter("caseflow.stage.completed",
		metric.WithDescription("Stages that produced output"), metric.WithUnit("{stage}"))
	m.stageFailed, _ = meter.Int64Counter("caseflow.stage.failed",
		metric.WithDescription("Stages that failed after retries"), metric.WithUnit("{stage}"))
	m.stageRetried, _ = meter.Int64Counter("caseflow.stage.retried",
		metric.WithDescription("Stage attempts that will be retried"), metric.WithUnit("{attempt}"))
	return m
}

// Name implements ext.Extension.
func (m *MetricsExtension) Name() string { return "observability-metrics" }

// ── Run lifecycle hooks ─────────────────────────────

// OnRunStarted implements ext.RunStarted.
func (m *MetricsExtension) OnRunStarted(ctx context.Context, _ *state.WorkflowState, resumed bool) error {
	m.runStarted.Add(ctx, 1, metric.WithAttributes(attribute.Bool("resumed", resumed)))
	return nil
}

// OnRunCompleted implements ext.RunCompleted.
func (m *MetricsExtension) OnRunCompleted(ctx context.Context, _ *state.WorkflowState, elapsed time.Duration) error {
	m.finished(ctx, state.StatusCompleted)
	m.runDuration.Record(ctx, elapsed.Seconds())
	return nil
}

// OnRunFailed implements ext.RunFailed.
func (m *MetricsExtension) OnRunFailed(ctx context.Context, _ *state.WorkflowState, _ error) error {
	m.finished(ctx, state.StatusFailed)
	return nil
}

// OnRunPaused implements ext.RunPaused.
func (m *MetricsExtension) OnRunPaused(ctx context.Context, _ *state.WorkflowState) error {
	m.finished(ctx, state.StatusPaused)
	return nil
}

func (m *MetricsExtension) finished(ctx context.Context, s state.Status) {
	m.runFinished.Add(ctx, 1, metric.WithAttributes(attribute.String("status", string(s))))
}

// ── Stage lifecycle hooks ───────────────────────────

// OnStageCompleted implements ext.StageCompleted.
func (m *MetricsExtension) OnStageCompleted(ctx context.Context, _, stage string, _ time.Duration) error {
	m.stageCompleted.Add(ctx, 1, metric.WithAttributes(attribute.String("stage", stage)))
	return nil
}

// OnStageFailed implements ext.StageFailed.
func (m *MetricsExtension) OnStageFailed(ctx context.Context, _, stage string, _ error, fatal bool) error {
	m.stageFailed.Add(ctx, 1, metric.WithAttributes(
		attribute.String("stage", stage),
		attribute.Bool("fatal", fatal),
	))
	return nil
}

// OnStageRetrying implements ext.StageRetrying.
func (m *MetricsExtension) OnStageRetrying(ctx context.Context, _, stage string, _ int, _ time.Duration) error {
	m.stageRetried.Add(ctx, 1, metric.WithAttributes(attribute.String("stage", stage)))
	return nil
}
