package orchestrator

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/trace"
	"golang.org/x/time/rate"

	"github.com/xraph/caseflow"
	"github.com/xraph/caseflow/cache"
	"github.com/xraph/caseflow/checkpoint"
	"github.com/xraph/caseflow/ext"
	"github.com/xraph/caseflow/graph"
	mw "github.com/xraph/caseflow/middleware"
	"github.com/xraph/caseflow/observability"
	"github.com/xraph/caseflow/retry"
	"github.com/xraph/caseflow/stage"
	"github.com/xraph/caseflow/state"
)

const instrumentationName = "github.com/xraph/caseflow"

// Orchestrator runs cases through a stage graph. It is safe for
// concurrent use across different case IDs; a case has at most one
// active run at a time.
type Orchestrator struct {
	reg   *stage.Registry
	graph *graph.Graph
	store checkpoint.Store

	cfg     caseflow.Config
	policy  *retry.Policy
	logger  *slog.Logger
	sleeper retry.Sleeper

	exts    *ext.Registry
	pending []ext.Extension

	mws    []mw.Middleware
	limits map[string]*rate.Limiter
	chain  mw.Middleware

	cache    cache.Cache
	cacheTTL time.Duration

	tracerProvider trace.TracerProvider
	meterProvider  metric.MeterProvider

	mu     sync.Mutex
	active map[string]*run
}

// run is the cancellation handle of one active driver.
type run struct {
	cancelled atomic.Bool
}

func (r *run) stopped() bool { return r.cancelled.Load() }

// New creates an Orchestrator over a validated graph.
func New(reg *stage.Registry, g *graph.Graph, store checkpoint.Store, opts ...Option) (*Orchestrator, error) {
	if store == nil {
		return nil, caseflow.ErrNoStore
	}
	if reg == nil || g == nil {
		return nil, fmt.Errorf("%w: registry and graph are required", caseflow.ErrInvalidGraph)
	}

	o := &Orchestrator{
		reg:     reg,
		graph:   g,
		store:   store,
		cfg:     caseflow.DefaultConfig(),
		logger:  slog.Default(),
		sleeper: retry.DefaultSleeper,
		active:  make(map[string]*run),
	}
	for _, opt := range opts {
		opt(o)
	}
	if err := o.cfg.Validate(); err != nil {
		return nil, err
	}
	if o.policy == nil {
		p := retry.FromConfig(o.cfg)
		o.policy = &p
	}

	o.exts = ext.NewRegistry(o.logger)
	if o.meterProvider != nil {
		o.exts.Register(observability.NewMetricsExtensionWithMeter(
			o.meterProvider.Meter(instrumentationName + "/observability")))
	} else {
		o.exts.Register(observability.NewMetricsExtension())
	}
	for _, e := range o.pending {
		o.exts.Register(e)
	}

	o.chain = o.buildChain()
	return o, nil
}

// buildChain assembles recover → tracing → metrics → logging → rate
// limit → user middleware.
func (o *Orchestrator) buildChain() mw.Middleware {
	var tracing, metrics mw.Middleware
	if o.tracerProvider != nil {
		tracing = mw.TracingWithTracer(o.tracerProvider.Tracer(instrumentationName))
	} else {
		tracing = mw.Tracing()
	}
	if o.meterProvider != nil {
		metrics = mw.MetricsWithMeter(o.meterProvider.Meter(instrumentationName))
	} else {
		metrics = mw.Metrics()
	}

	all := []mw.Middleware{
		mw.Recover(o.logger),
		tracing,
		metrics,
		mw.Logging(o.logger),
	}
	if len(o.limits) > 0 {
		all = append(all, mw.RateLimit(o.limits))
	}
	all = append(all, o.mws...)
	return mw.Chain(all...)
}

// Extensions returns the extension registry.
func (o *Orchestrator) Extensions() *ext.Registry { return o.exts }

// Config returns the active configuration.
func (o *Orchestrator) Config() caseflow.Config { return o.cfg }

// Active reports whether caseID has a driver running in this process.
func (o *Orchestrator) Active(caseID string) bool {
	o.mu.Lock()
	defer o.mu.Unlock()
	_, ok := o.active[caseID]
	return ok
}

func (o *Orchestrator) acquire(caseID string) (*run, error) {
	o.mu.Lock()
	defer o.mu.Unlock()
	if _, busy := o.active[caseID]; busy {
		return nil, fmt.Errorf("%w: %s", caseflow.ErrRunActive, caseID)
	}
	r := &run{}
	o.active[caseID] = r
	return r, nil
}

func (o *Orchestrator) release(caseID string) {
	o.mu.Lock()
	delete(o.active, caseID)
	o.mu.Unlock()
}

// ──────────────────────────────────────────────────
// Public operations
// ──────────────────────────────────────────────────

// Run starts a fresh run for caseID at the graph's entry node and drives
// it until it completes, fails or is paused.
func (o *Orchestrator) Run(ctx context.Context, caseID string, input map[string]any) (*state.WorkflowState, error) {
	drive, err := o.Start(caseID, input)
	if err != nil {
		return nil, err
	}
	return drive(ctx)
}

// DriveFunc drives a run claimed by Start or StartResume. It must be
// called exactly once; the case stays active until it returns.
type DriveFunc func(ctx context.Context) (*state.WorkflowState, error)

// Start claims caseID and returns the function that drives the fresh run.
// The case is marked active before Start returns, so a concurrent Run,
// Resume or Start for it fails with caseflow.ErrRunActive.
func (o *Orchestrator) Start(caseID string, input map[string]any) (DriveFunc, error) {
	if caseID == "" {
		return nil, caseflow.PermanentInput(fmt.Errorf("%w: empty case id", caseflow.ErrInvalidState))
	}
	r, err := o.acquire(caseID)
	if err != nil {
		return nil, err
	}
	return func(ctx context.Context) (*state.WorkflowState, error) {
		defer o.release(caseID)

		st := state.New(caseID, input, o.graph.Entry())
		o.logger.Info("run started",
			slog.String("case_id", caseID),
			slog.String("entry", o.graph.Entry()),
		)
		o.checkpoint(ctx, st)
		return o.drive(ctx, r, st, false)
	}, nil
}

// Resume re-enters the driver loop from the latest checkpoint. A terminal
// case is returned as stored without executing anything.
func (o *Orchestrator) Resume(ctx context.Context, caseID string) (*state.WorkflowState, error) {
	drive, err := o.StartResume(caseID)
	if err != nil {
		return nil, err
	}
	return drive(ctx)
}

// StartResume is Resume split like Start: the case is claimed
// synchronously and the returned function loads the checkpoint and drives.
func (o *Orchestrator) StartResume(caseID string) (DriveFunc, error) {
	r, err := o.acquire(caseID)
	if err != nil {
		return nil, err
	}
	return func(ctx context.Context) (*state.WorkflowState, error) {
		defer o.release(caseID)
		return o.resume(ctx, r, caseID)
	}, nil
}

func (o *Orchestrator) resume(ctx context.Context, r *run, caseID string) (*state.WorkflowState, error) {
	cp, err := o.store.Latest(ctx, caseID)
	if err != nil {
		return nil, fmt.Errorf("resume %s: %w", caseID, err)
	}
	st := cp.State.Clone()
	if st.Status.IsTerminal() {
		return st, nil
	}

	if st.NextStage == "" {
		st.NextStage = st.CurrentStage
	}
	if st.NextStage == "" {
		return nil, fmt.Errorf("%w: checkpoint %d for %s has no stage to resume", caseflow.ErrInvalidState, cp.Seq, caseID)
	}
	o.logger.Info("run resumed",
		slog.String("case_id", caseID),
		slog.String("next_stage", st.NextStage),
		slog.Uint64("seq", cp.Seq),
	)
	return o.drive(ctx, r, st, true)
}

// Cancel asks the active run for caseID to pause. The in-flight attempt
// is allowed to finish; the driver then checkpoints a paused state.
func (o *Orchestrator) Cancel(_ context.Context, caseID string) error {
	o.mu.Lock()
	r, ok := o.active[caseID]
	o.mu.Unlock()
	if !ok {
		return fmt.Errorf("%w: %s", caseflow.ErrRunNotActive, caseID)
	}
	r.cancelled.Store(true)
	o.logger.Info("cancel requested", slog.String("case_id", caseID))
	return nil
}

// Status is a read-only view of a case's latest checkpoint.
type Status struct {
	CaseID         string             `json:"case_id"`
	CurrentStage   string             `json:"current_stage"`
	NextStage      string             `json:"next_stage,omitempty"`
	Status         state.Status       `json:"status"`
	Errors         []state.StageError `json:"errors"`
	RetryCount     int                `json:"retry_count"`
	CollectRetries int                `json:"collect_retries"`
	Seq            uint64             `json:"seq"`
	UpdatedAt      time.Time          `json:"updated_at"`
	Active         bool               `json:"active"`
}

// GetStatus reads the latest checkpoint for caseID without blocking on
// the active run. It returns caseflow.ErrCheckpointNotFound for unknown
// cases.
func (o *Orchestrator) GetStatus(ctx context.Context, caseID string) (*Status, error) {
	cp, err := o.store.Latest(ctx, caseID)
	if err != nil {
		return nil, err
	}
	st := cp.State
	return &Status{
		CaseID:         caseID,
		CurrentStage:   st.CurrentStage,
		NextStage:      st.NextStage,
		Status:         st.Status,
		Errors:         append([]state.StageError{}, st.Errors...),
		RetryCount:     st.RetryCount,
		CollectRetries: st.CollectRetries,
		Seq:            cp.Seq,
		UpdatedAt:      st.UpdatedAt,
		Active:         o.Active(caseID),
	}, nil
}

// Timeline returns every checkpoint summary for caseID in order.
func (o *Orchestrator) Timeline(ctx context.Context, caseID string) ([]checkpoint.TimelineEntry, error) {
	return checkpoint.Timeline(ctx, o.store, caseID)
}
