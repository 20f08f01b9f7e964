package orchestrator

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/xraph/caseflow"
	"github.com/xraph/caseflow/router"
	"github.com/xraph/caseflow/state"
)

// drive owns st until the run completes, fails or pauses.
func (o *Orchestrator) drive(ctx context.Context, r *run, st *state.WorkflowState, resumed bool) (*state.WorkflowState, error) {
	start := time.Now()
	st.Status = state.StatusRunning
	o.exts.EmitRunStarted(ctx, st.Clone(), resumed)

	for steps := 0; ; steps++ {
		node := st.NextStage
		if node == router.Terminal {
			return o.complete(ctx, st, start), nil
		}
		if r.stopped() || ctx.Err() != nil {
			return o.pause(ctx, st)
		}
		if steps >= o.cfg.MaxSteps {
			err := fmt.Errorf("%w: step limit %d reached at %s", caseflow.ErrInvalidState, o.cfg.MaxSteps, node)
			st.AppendError(node, err.Error(), caseflow.KindRoutingAmbiguous)
			return o.fail(ctx, st, err), nil
		}

		n, ok := o.graph.Node(node)
		if !ok {
			err := fmt.Errorf("%w: unknown node %q", caseflow.ErrRoutingAmbiguous, node)
			st.AppendError(node, err.Error(), caseflow.KindRoutingAmbiguous)
			return o.fail(ctx, st, err), nil
		}

		st.Enter(node)
		var results []stageResult
		if n.IsGroup() {
			results = o.runGroup(ctx, r, st, n.Members)
		} else {
			results = []stageResult{o.runStage(ctx, r, st.Clone(), node)}
		}

		interrupted, fatalErr := o.merge(ctx, st, results)
		if fatalErr != nil {
			return o.fail(ctx, st, fatalErr), nil
		}
		if interrupted {
			st.Advance(node)
			return o.pause(ctx, st)
		}

		next, err := o.route(st, node)
		if err != nil {
			return o.fail(ctx, st, err), nil
		}
		st.Advance(next)
		o.checkpoint(ctx, st)
	}
}

// route asks node's router for the successor and applies bookkeeping for
// re-collection loops. A failure has already been appended to st.Errors
// when an error is returned.
func (o *Orchestrator) route(st *state.WorkflowState, node string) (string, error) {
	fn, ok := o.graph.Route(node)
	if !ok {
		err := fmt.Errorf("%w: node %q has no route", caseflow.ErrRoutingAmbiguous, node)
		st.AppendError(node, err.Error(), caseflow.KindRoutingAmbiguous)
		return "", err
	}

	d := fn(st)
	switch {
	case d.Fail:
		kind := d.Kind
		if kind == "" {
			kind = caseflow.KindRoutingAmbiguous
		}
		st.AppendError(node, d.Reason, kind)
		if kind == caseflow.KindRoutingAmbiguous {
			return "", fmt.Errorf("%w: %s", caseflow.ErrRoutingAmbiguous, d.Reason)
		}
		return "", caseflow.NewError(kind, errors.New(d.Reason))

	case d.Recollect:
		st.AppendError(node, d.Reason, caseflow.KindPermanentInput)
		st.CollectRetries++
		o.logger.Warn("routing back for re-collection",
			slog.String("case_id", st.CaseID),
			slog.String("stage", d.Next),
			slog.Int("collect_retries", st.CollectRetries),
			slog.String("reason", d.Reason),
		)
	}

	if d.Next != router.Terminal {
		if _, ok := o.graph.Node(d.Next); !ok {
			err := fmt.Errorf("%w: router for %s selected unknown node %q", caseflow.ErrRoutingAmbiguous, node, d.Next)
			st.AppendError(node, err.Error(), caseflow.KindRoutingAmbiguous)
			return "", err
		}
	}
	return d.Next, nil
}

func (o *Orchestrator) complete(ctx context.Context, st *state.WorkflowState, start time.Time) *state.WorkflowState {
	st.Finish(state.StatusCompleted)
	o.checkpoint(ctx, st)

	if o.cache != nil {
		if err := o.cache.Put(context.WithoutCancel(ctx), st, o.cacheTTL); err != nil {
			o.logger.Warn("result cache put failed",
				slog.String("case_id", st.CaseID),
				slog.String("error", err.Error()),
			)
		}
	}

	elapsed := time.Since(start)
	o.logger.Info("run completed",
		slog.String("case_id", st.CaseID),
		slog.Int("errors", len(st.Errors)),
		slog.Duration("elapsed", elapsed),
	)
	o.exts.EmitRunCompleted(ctx, st.Clone(), elapsed)
	return st
}

func (o *Orchestrator) fail(ctx context.Context, st *state.WorkflowState, cause error) *state.WorkflowState {
	st.Finish(state.StatusFailed)
	o.checkpoint(ctx, st)

	o.logger.Error("run failed",
		slog.String("case_id", st.CaseID),
		slog.String("stage", st.CurrentStage),
		slog.String("error", cause.Error()),
	)
	o.exts.EmitRunFailed(ctx, st.Clone(), cause)
	return st
}

// pause checkpoints a resumable state. A cancelled ctx is reported to the
// caller alongside the paused state; an explicit Cancel is not an error.
func (o *Orchestrator) pause(ctx context.Context, st *state.WorkflowState) (*state.WorkflowState, error) {
	st.Finish(state.StatusPaused)
	o.checkpoint(ctx, st)

	o.logger.Info("run paused",
		slog.String("case_id", st.CaseID),
		slog.String("next_stage", st.NextStage),
	)
	o.exts.EmitRunPaused(context.WithoutCancel(ctx), st.Clone())

	if err := ctx.Err(); err != nil {
		return st, fmt.Errorf("%w: %w", caseflow.ErrCancelled, err)
	}
	return st, nil
}

// checkpoint persists st. Failures only cost resumability, so they are
// logged and the run continues.
func (o *Orchestrator) checkpoint(ctx context.Context, st *state.WorkflowState) {
	if _, err := o.store.Save(context.WithoutCancel(ctx), st.CaseID, st); err != nil {
		o.logger.Warn("checkpoint save failed",
			slog.String("case_id", st.CaseID),
			slog.String("stage", st.CurrentStage),
			slog.String("status", string(st.Status)),
			slog.String("error", err.Error()),
		)
	}
}
