package ext

import (
	"context"
	"time"

	"github.com/xraph/caseflow/state"
)

// Extension is the base interface all extensions must implement.
type Extension interface {
	// Name returns a unique human-readable name for the extension.
	Name() string
}

// ──────────────────────────────────────────────────
// Run lifecycle hooks
// ──────────────────────────────────────────────────

// RunStarted is called when the driver enters the loop for a case, both
// for fresh runs and resumed ones.
type RunStarted interface {
	OnRunStarted(ctx context.Context, st *state.WorkflowState, resumed bool) error
}

// RunCompleted is called after a run reaches the terminal node.
type RunCompleted interface {
	OnRunCompleted(ctx context.Context, st *state.WorkflowState, elapsed time.Duration) error
}

// RunFailed is called when a run ends in the failed status.
type RunFailed interface {
	OnRunFailed(ctx context.Context, st *state.WorkflowState, err error) error
}

// RunPaused is called when a cancelled run has been checkpointed.
type RunPaused interface {
	OnRunPaused(ctx context.Context, st *state.WorkflowState) error
}

// ──────────────────────────────────────────────────
// Stage lifecycle hooks
// ──────────────────────────────────────────────────

// StageCompleted is called after a stage returns output.
type StageCompleted interface {
	OnStageCompleted(ctx context.Context, caseID, stage string, elapsed time.Duration) error
}

// StageFailed is called when a stage fails after its retries. fatal
// reports whether the failure ends the run.
type StageFailed interface {
	OnStageFailed(ctx context.Context, caseID, stage string, err error, fatal bool) error
}

// StageRetrying is called when an attempt failed and another will follow
// after delay.
type StageRetrying interface {
	OnStageRetrying(ctx context.Context, caseID, stage string, attempt int, delay time.Duration) error
}
