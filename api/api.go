package api

import (
	"context"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/xraph/caseflow/cache"
	"github.com/xraph/caseflow/id"
	"github.com/xraph/caseflow/orchestrator"
	"github.com/xraph/caseflow/stream"
)

// API wires the HTTP handlers for analysis runs and cached results.
type API struct {
	orch    *orchestrator.Orchestrator
	results cache.Cache
	logger  *slog.Logger
	events  *stream.Broker

	mu        sync.RWMutex
	runs      map[string]*trackedRun // keyed by run ID
	retention time.Duration

	wg sync.WaitGroup
}

type trackedRun struct {
	caseID   string
	finished time.Time // zero while the run is in flight
}

// DefaultRunRetention is how long a finished run ID stays resolvable.
const DefaultRunRetention = time.Hour

// Option configures an API.
type Option func(*API)

// WithRunRetention sets how long finished run IDs remain resolvable
// through /analyze/{runId}. Zero forgets a run as soon as it finishes.
func WithRunRetention(d time.Duration) Option {
	return func(a *API) { a.retention = d }
}

// WithEvents enables GET /analyze/{runId}/events, streaming lifecycle
// events from b. The broker must also be registered as an orchestrator
// extension.
func WithEvents(b *stream.Broker) Option {
	return func(a *API) { a.events = b }
}

// New creates an API over orch. results may be nil, in which case
// GET /cases/{case_id} always reports a miss.
func New(orch *orchestrator.Orchestrator, results cache.Cache, logger *slog.Logger, opts ...Option) *API {
	if logger == nil {
		logger = slog.Default()
	}
	a := &API{
		orch:    orch,
		results: results,
		logger:    logger,
		runs:      make(map[string]*trackedRun),
		retention: DefaultRunRetention,
	}
	for _, opt := range opts {
		opt(a)
	}
	return a
}

// Handler returns the fully assembled http.Handler with all routes.
func (a *API) Handler() http.Handler {
	mux := http.NewServeMux()
	a.RegisterRoutes(mux)
	return mux
}

// RegisterRoutes registers every caseflow route on mux.
func (a *API) RegisterRoutes(mux *http.ServeMux) {
	a.registerAnalyzeRoutes(mux)
	a.registerCaseRoutes(mux)
	mux.HandleFunc("GET /health", a.health)
}

func (a *API) registerAnalyzeRoutes(mux *http.ServeMux) {
	mux.HandleFunc("POST /analyze", a.analyze)
	mux.HandleFunc("POST /analyze/async", a.analyzeAsync)
	mux.HandleFunc("GET /analyze/{runId}", a.getRun)
	mux.HandleFunc("POST /analyze/{runId}/cancel", a.cancelRun)
	mux.HandleFunc("POST /analyze/{runId}/resume", a.resumeRun)
	if a.events != nil {
		mux.HandleFunc("GET /analyze/{runId}/events", a.streamEvents)
	}
}

func (a *API) registerCaseRoutes(mux *http.ServeMux) {
	mux.HandleFunc("GET /cases/{caseId}", a.getCase)
}

// CancelAll asks every active run started through the API to pause.
func (a *API) CancelAll(ctx context.Context) {
	a.mu.RLock()
	cases := make(map[string]struct{}, len(a.runs))
	for _, tr := range a.runs {
		if tr.finished.IsZero() {
			cases[tr.caseID] = struct{}{}
		}
	}
	a.mu.RUnlock()

	for caseID := range cases {
		if err := a.orch.Cancel(ctx, caseID); err == nil {
			a.logger.Info("run cancelled for shutdown", slog.String("case_id", caseID))
		}
	}
}

// Wait blocks until every background run started through the API has
// returned. Callers use it during shutdown after cancelling runs.
func (a *API) Wait() { a.wg.Wait() }

// TrackedRuns reports how many run IDs are currently resolvable.
func (a *API) TrackedRuns() int {
	a.mu.RLock()
	defer a.mu.RUnlock()
	return len(a.runs)
}

func (a *API) track(caseID string) id.RunID {
	runID := id.NewRunID()
	a.mu.Lock()
	a.pruneLocked()
	a.runs[runID.String()] = &trackedRun{caseID: caseID}
	a.mu.Unlock()
	return runID
}

// finish marks runID done; it is dropped once the retention has passed.
func (a *API) finish(runID id.RunID) {
	a.mu.Lock()
	defer a.mu.Unlock()
	tr, ok := a.runs[runID.String()]
	if !ok {
		return
	}
	if a.retention <= 0 {
		delete(a.runs, runID.String())
		return
	}
	tr.finished = time.Now()
	a.pruneLocked()
}

func (a *API) pruneLocked() {
	cutoff := time.Now().Add(-a.retention)
	for key, tr := range a.runs {
		if !tr.finished.IsZero() && !tr.finished.After(cutoff) {
			delete(a.runs, key)
		}
	}
}

func (a *API) caseFor(runID id.RunID) (string, bool) {
	a.mu.RLock()
	defer a.mu.RUnlock()
	tr, ok := a.runs[runID.String()]
	if !ok {
		return "", false
	}
	return tr.caseID, true
}
