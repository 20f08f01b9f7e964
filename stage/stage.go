// Package stage defines named units of pipeline work and the registry
// that holds them.
package stage

import (
	"context"
	"time"

	"github.com/xraph/caseflow/retry"
	"github.com/xraph/caseflow/state"
)

// Result is what a stage returns on success. Output is stored verbatim
// under the stage's name in WorkflowState.StageOutputs.
type Result struct {
	Output state.Payload
}

// Func executes one stage attempt against a read-only copy of the state.
// Implementations classify failures with caseflow.Transient,
// caseflow.PermanentInput and friends; unclassified errors are not retried.
type Func func(ctx context.Context, st *state.WorkflowState) (Result, error)

// Definition binds a stage name to its function and failure policy.
type Definition struct {
	Name string

	Execute Func

	// FatalOnFailure ends the run when the stage fails after retries.
	// Otherwise a sentinel payload is recorded and the run continues.
	FatalOnFailure bool

	// Retry overrides the orchestrator's default policy when non-nil.
	Retry *retry.Policy

	// Timeout overrides the per-attempt deadline when non-zero.
	Timeout time.Duration
}

// Option adjusts a Definition at registration time.
type Option func(*Definition)

// WithRetry sets a per-stage retry policy.
func WithRetry(p retry.Policy) Option {
	return func(d *Definition) { d.Retry = &p }
}

// WithFatal changes whether a failure after retries ends the run.
func WithFatal(fatal bool) Option {
	return func(d *Definition) { d.FatalOnFailure = fatal }
}

// WithTimeout sets a per-stage attempt deadline.
func WithTimeout(t time.Duration) Option {
	return func(d *Definition) { d.Timeout = t }
}

// PolicyOr returns the stage's retry policy, falling back to def. A
// stage Timeout replaces the policy's AttemptTimeout.
func (d *Definition) PolicyOr(def retry.Policy) retry.Policy {
	p := def
	if d.Retry != nil {
		p = *d.Retry
	}
	if d.Timeout > 0 {
		p.AttemptTimeout = d.Timeout
	}
	return p
}
