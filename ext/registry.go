package ext

import (
	"context"
	"log/slog"
	"time"

	"github.com/xraph/caseflow/state"
)

// Named entry types pair a hook implementation with the extension name
// captured at registration time.
type runStartedEntry struct {
	name string
	hook RunStarted
}

type runCompletedEntry struct {
	name string
	hook RunCompleted
}

type runFailedEntry struct {
	name string
	hook RunFailed
}

type runPausedEntry struct {
	name string
	hook RunPaused
}

type stageCompletedEntry struct {
	name string
	hook StageCompleted
}

type stageFailedEntry struct {
	name string
	hook StageFailed
}

type stageRetryingEntry struct {
	name string
	hook StageRetrying
}

// Registry holds registered extensions and dispatches lifecycle events
// to them. Register everything before the first run; emitting is safe
// from concurrent goroutines afterwards.
type Registry struct {
	extensions []Extension
	logger     *slog.Logger

	runStarted     []runStartedEntry
	runCompleted   []runCompletedEntry
	runFailed      []runFailedEntry
	runPaused      []runPausedEntry
	stageCompleted []stageCompletedEntry
	stageFailed    []stageFailedEntry
	stageRetrying  []stageRetryingEntry
}

// NewRegistry creates an extension registry with the given logger.
func NewRegistry(logger *slog.Logger) *Registry {
	if logger == nil {
		logger = slog.Default()
	}
	return &Registry{logger: logger}
}

// Register adds an extension and type-asserts it into all applicable
// hook caches. Extensions are notified in registration order.
func (r *Registry) Register(e Extension) {
	r.extensions = append(r.extensions, e)
	name := e.Name()

	if h, ok := e.(RunStarted); ok {
		r.runStarted = append(r.runStarted, runStartedEntry{name, h})
	}
	if h, ok := e.(RunCompleted); ok {
		r.runCompleted = append(r.runCompleted, runCompletedEntry{name, h})
	}
	if h, ok := e.(RunFailed); ok {
		r.runFailed = append(r.runFailed, runFailedEntry{name, h})
	}
	if h, ok := e.(RunPaused); ok {
		r.runPaused = append(r.runPaused, runPausedEntry{name, h})
	}
	if h, ok := e.(StageCompleted); ok {
		r.stageCompleted = append(r.stageCompleted, stageCompletedEntry{name, h})
	}
	if h, ok := e.(StageFailed); ok {
		r.stageFailed = append(r.stageFailed, stageFailedEntry{name, h})
	}
	if h, ok := e.(StageRetrying); ok {
		r.stageRetrying = append(r.stageRetrying, stageRetryingEntry{name, h})
	}
}

// Extensions returns all registered extensions.
func (r *Registry) Extensions() []Extension { return r.extensions }

// EmitRunStarted notifies all extensions that implement RunStarted.
func (r *Registry) EmitRunStarted(ctx context.Context, st *state.WorkflowState, resumed bool) {
	for _, e := range r.runStarted {
		if err := e.hook.OnRunStarted(ctx, st, resumed); err != nil {
			r.logHookError("OnRunStarted", e.name, err)
		}
	}
}

// EmitRunCompleted notifies all extensions that implement RunCompleted.
func (r *Registry) EmitRunCompleted(ctx context.Context, st *state.WorkflowState, elapsed time.Duration) {
	for _, e := range r.runCompleted {
		if err := e.hook.OnRunCompleted(ctx, st, elapsed); err != nil {
			r.logHookError("OnRunCompleted", e.name, err)
		}
	}
}

// EmitRunFailed notifies all extensions that implement RunFailed.
func (r *Registry) EmitRunFailed(ctx context.Context, st *state.WorkflowState, runErr error) {
	for _, e := range r.runFailed {
		if err := e.hook.OnRunFailed(ctx, st, runErr); err != nil {
			r.logHookError("OnRunFailed", e.name, err)
		}
	}
}

// EmitRunPaused notifies all extensions that implement RunPaused.
func (r *Registry) EmitRunPaused(ctx context.Context, st *state.WorkflowState) {
	for _, e := range r.runPaused {
		if err := e.hook.OnRunPaused(ctx, st); err != nil {
			r.logHookError("OnRunPaused", e.name, err)
		}
	}
}

// EmitStageCompleted notifies all extensions that implement StageCompleted.
func (r *Registry) EmitStageCompleted(ctx context.Context, caseID, stage string, elapsed time.Duration) {
	for _, e := range r.stageCompleted {
		if err := e.hook.OnStageCompleted(ctx, caseID, stage, elapsed); err != nil {
			r.logHookError("OnStageCompleted", e.name, err)
		}
	}
}

// EmitStageFailed notifies all extensions that implement StageFailed.
func (r *Registry) EmitStageFailed(ctx context.Context, caseID, stage string, stageErr error, fatal bool) {
	for _, e := range r.stageFailed {
		if err := e.hook.OnStageFailed(ctx, caseID, stage, stageErr, fatal); err != nil {
			r.logHookError("OnStageFailed", e.name, err)
		}
	}
}

// EmitStageRetrying notifies all extensions that implement StageRetrying.
func (r *Registry) EmitStageRetrying(ctx context.Context, caseID, stage string, attempt int, delay time.Duration) {
	for _, e := range r.stageRetrying {
		if err := e.hook.OnStageRetrying(ctx, caseID, stage, attempt, delay); err != nil {
			r.logHookError("OnStageRetrying", e.name, err)
		}
	}
}

// logHookError logs a warning when a lifecycle hook returns an error.
// Hook errors never reach the driver.
func (r *Registry) logHookError(hook, extName string, err error) {
	r.logger.Warn("extension hook error",
		slog.String("hook", hook),
		slog.String("extension", extName),
		slog.String("error", err.Error()),
	)
}
