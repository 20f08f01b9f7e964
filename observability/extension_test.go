package observability_test

import (
	"context"
	"errors"
	"log/slog"
	"testing"
	"time"

	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
	"go.opentelemetry.io/otel/sdk/metric/metricdata"

	"github.com/xraph/caseflow/ext"
	"github.com/xraph/caseflow/observability"
	"github.com/xraph/caseflow/state"
)

func newTestExtension() (*observability.MetricsExtension, *sdkmetric.ManualReader) {
	reader := sdkmetric.NewManualReader()
	mp := sdkmetric.NewMeterProvider(sdkmetric.WithReader(reader))
	return observability.NewMetricsExtensionWithMeter(mp.Meter("test")), reader
}

// counterTotal sums every data point of the named Int64 counter.
func counterTotal(t *testing.T, reader *sdkmetric.ManualReader, name string) int64 {
	t.Helper()
	var rm metricdata.ResourceMetrics
	if err := reader.Collect(context.Background(), &rm); err != nil {
		t.Fatalf("failed to collect metrics: %v", err)
	}
	for _, sm := range rm.ScopeMetrics {
		for _, m := range sm.Metrics {
			if m.Name != name {
				continue
			}
			sum, ok := m.Data.(metricdata.Sum[int64])
			if !ok {
				t.Fatalf("%s: expected Sum[int64], got %T", name, m.Data)
			}
			var total int64
			for _, dp := range sum.DataPoints {
				total += dp.Value
			}
			return total
		}
	}
	return 0
}

func newTestState() *state.WorkflowState {
	return state.New("2024-0042", nil, "collect")
}

func TestMetricsExtension_Name(t *testing.T) {
	e, _ := newTestExtension()
	if e.Name() != "observability-metrics" {
		t.Errorf("expected name %q, got %q", "observability-metrics", e.Name())
	}
}

func TestMetricsExtension_RunLifecycle(t *testing.T) {
	e, reader := newTestExtension()
	ctx := context.Background()
	st := newTestState()

	if err := e.OnRunStarted(ctx, st, false); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	_ = e.OnRunPaused(ctx, st)
	_ = e.OnRunStarted(ctx, st, true)
	_ = e.OnRunCompleted(ctx, st, 2*time.Second)

	if got := counterTotal(t, reader, "caseflow.run.started"); got != 2 {
		t.Errorf("run.started: want 2, got %d", got)
	}
	if got := counterTotal(t, reader, "caseflow.run.finished"); got != 2 {
		t.Errorf("run.finished: want 2, got %d", got)
	}
}

func TestMetricsExtension_StageHooks(t *testing.T) {
	e, reader := newTestExtension()
	ctx := context.Background()

	_ = e.OnStageRetrying(ctx, "c", "rights", 1, time.Second)
	_ = e.OnStageRetrying(ctx, "c", "rights", 2, 2*time.Second)
	_ = e.OnStageFailed(ctx, "c", "rights", errors.New("down"), false)
	_ = e.OnStageCompleted(ctx, "c", "location", time.Second)

	if got := counterTotal(t, reader, "caseflow.stage.retried"); got != 2 {
		t.Errorf("stage.retried: want 2, got %d", got)
	}
	if got := counterTotal(t, reader, "caseflow.stage.failed"); got != 1 {
		t.Errorf("stage.failed: want 1, got %d", got)
	}
	if got := counterTotal(t, reader, "caseflow.stage.completed"); got != 1 {
		t.Errorf("stage.completed: want 1, got %d", got)
	}
}

func TestMetricsExtension_ViaRegistry(t *testing.T) {
	e, reader := newTestExtension()

	reg := ext.NewRegistry(slog.Default())
	reg.Register(e)

	ctx := context.Background()
	st := newTestState()
	reg.EmitRunStarted(ctx, st, false)
	reg.EmitRunFailed(ctx, st, errors.New("fatal"))

	if got := counterTotal(t, reader, "caseflow.run.finished"); got != 1 {
		t.Errorf("run.finished: want 1, got %d", got)
	}
}
