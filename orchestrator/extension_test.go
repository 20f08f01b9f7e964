package orchestrator_test

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
	"go.opentelemetry.io/otel/sdk/metric/metricdata"

	"github.com/xraph/caseflow"
	mw "github.com/xraph/caseflow/middleware"
	"github.com/xraph/caseflow/orchestrator"
	"github.com/xraph/caseflow/stage"
	"github.com/xraph/caseflow/state"
)

type eventLog struct {
	mu     sync.Mutex
	events []string
}

func (e *eventLog) add(s string) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.events = append(e.events, s)
	return nil
}

func (e *eventLog) list() []string {
	e.mu.Lock()
	defer e.mu.Unlock()
	return append([]string(nil), e.events...)
}

func (e *eventLog) Name() string { return "event-log" }

func (e *eventLog) OnRunStarted(_ context.Context, _ *state.WorkflowState, resumed bool) error {
	if resumed {
		return e.add("run.resumed")
	}
	return e.add("run.started")
}

func (e *eventLog) OnRunCompleted(context.Context, *state.WorkflowState, time.Duration) error {
	return e.add("run.completed")
}

func (e *eventLog) OnRunFailed(context.Context, *state.WorkflowState, error) error {
	return e.add("run.failed")
}

func (e *eventLog) OnStageCompleted(_ context.Context, _, stage string, _ time.Duration) error {
	return e.add("stage.completed:" + stage)
}

func (e *eventLog) OnStageFailed(_ context.Context, _, stage string, _ error, fatal bool) error {
	if fatal {
		return e.add("stage.fatal:" + stage)
	}
	return e.add("stage.tolerated:" + stage)
}

func (e *eventLog) OnStageRetrying(_ context.Context, _, stage string, _ int, _ time.Duration) error {
	return e.add("stage.retrying:" + stage)
}

func TestExtensionEvents(t *testing.T) {
	var a, b counter
	reg := stage.NewRegistry()
	require.NoError(t, reg.Register("a", a.fn(nil), true))
	require.NoError(t, reg.Register("b", b.failing(caseflow.Transient(errors.New("503"))), false))

	log := &eventLog{}
	o := newOrchestrator(t, reg, linear(t, reg, "a", "b"), newMemory(), orchestrator.WithExtension(log))

	_, err := o.Run(context.Background(), "case-ext", nil)
	require.NoError(t, err)

	assert.Equal(t, []string{
		"run.started",
		"stage.completed:a",
		"stage.retrying:b",
		"stage.retrying:b",
		"stage.tolerated:b",
		"run.completed",
	}, log.list())

	// Metrics extension is always registered ahead of user extensions.
	exts := o.Extensions().Extensions()
	require.Len(t, exts, 2)
	assert.Equal(t, "event-log", exts[1].Name())
}

func TestMeterProviderReceivesRunMetrics(t *testing.T) {
	reader := sdkmetric.NewManualReader()
	mp := sdkmetric.NewMeterProvider(sdkmetric.WithReader(reader))

	var a counter
	reg := stage.NewRegistry()
	require.NoError(t, reg.Register("a", a.fn(nil), true))
	o := newOrchestrator(t, reg, linear(t, reg, "a"), newMemory(), orchestrator.WithMeterProvider(mp))

	_, err := o.Run(context.Background(), "case-metrics", nil)
	require.NoError(t, err)

	var rm metricdata.ResourceMetrics
	require.NoError(t, reader.Collect(context.Background(), &rm))
	names := map[string]bool{}
	for _, sm := range rm.ScopeMetrics {
		for _, m := range sm.Metrics {
			names[m.Name] = true
		}
	}
	for _, want := range []string{"caseflow.run.started", "caseflow.run.finished", "caseflow.stage.completed", "caseflow.stage.attempts"} {
		assert.True(t, names[want], "missing metric %s", want)
	}
}

func TestUserMiddlewareSeesEveryAttempt(t *testing.T) {
	var a counter
	reg := stage.NewRegistry()
	require.NoError(t, reg.Register("a", a.failing(caseflow.Timeout(errors.New("slow"))), false))

	var (
		mu       sync.Mutex
		attempts []int
	)
	record := func(ctx context.Context, inv *mw.Invocation, next mw.Handler) error {
		mu.Lock()
		attempts = append(attempts, inv.Attempt)
		mu.Unlock()
		assert.Equal(t, "case-mw", inv.CaseID)
		return next(ctx)
	}
	o := newOrchestrator(t, reg, linear(t, reg, "a"), newMemory(), orchestrator.WithMiddleware(record))

	_, err := o.Run(context.Background(), "case-mw", nil)
	require.NoError(t, err)
	assert.Equal(t, []int{1, 2, 3}, attempts)
}
