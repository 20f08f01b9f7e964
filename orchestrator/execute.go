package orchestrator

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/xraph/caseflow"
	mw "github.com/xraph/caseflow/middleware"
	"github.com/xraph/caseflow/retry"
	"github.com/xraph/caseflow/state"
)

// stageResult is the resolved outcome of one stage within a node.
type stageResult struct {
	name    string
	output  state.Payload
	err     error
	fatal   bool
	retries int
	elapsed time.Duration

	// interrupted is set when cancellation stopped the stage between
	// attempts, or before it was launched. Nothing is recorded for it.
	interrupted bool
}

// runStage executes one stage under its retry policy and the middleware
// chain. snapshot is a private copy; each attempt receives a fresh clone.
func (o *Orchestrator) runStage(ctx context.Context, r *run, snapshot *state.WorkflowState, name string) stageResult {
	res := stageResult{name: name}

	def, ok := o.reg.Get(name)
	if !ok {
		res.err = fmt.Errorf("%w: %q", caseflow.ErrStageNotFound, name)
		res.fatal = true
		return res
	}
	res.fatal = def.FatalOnFailure
	policy := def.PolicyOr(*o.policy)
	caseID := snapshot.CaseID

	var output state.Payload
	attempt := func(actx context.Context, n int) error {
		inv := &mw.Invocation{CaseID: caseID, Stage: name, Attempt: n}
		return o.chain(actx, inv, func(hctx context.Context) error {
			out, err := def.Execute(hctx, snapshot.Clone())
			if err != nil {
				return err
			}
			output = out.Output
			return nil
		})
	}

	start := time.Now()
	attempts, err := policy.Run(ctx, attempt,
		retry.WithStop(r.stopped),
		retry.WithSleeper(o.sleeper),
		retry.WithLogger(o.logger.With(slog.String("case_id", caseID))),
		retry.WithStage(name),
		retry.WithOnRetry(func(a retry.Attempt) {
			o.exts.EmitStageRetrying(ctx, caseID, name, a.Number, a.Delay)
		}),
	)
	res.elapsed = time.Since(start)

	if err == nil {
		res.retries = len(attempts)
		res.output = output
		if res.output == nil {
			res.output = state.Payload{}
		}
		return res
	}

	res.retries = max(len(attempts)-1, 0)
	if errors.Is(err, caseflow.ErrCancelled) || ctx.Err() != nil {
		res.interrupted = true
		return res
	}
	res.err = err
	return res
}

// runGroup launches every member concurrently and waits for all of them.
// A failing member never cancels its siblings. Members not yet launched
// when cancellation is observed are reported as interrupted.
func (o *Orchestrator) runGroup(ctx context.Context, r *run, st *state.WorkflowState, members []string) []stageResult {
	results := make([]stageResult, len(members))
	snapshot := st.Clone()

	var g errgroup.Group
	if o.cfg.MaxParallel > 0 {
		g.SetLimit(o.cfg.MaxParallel)
	}
	for i, name := range members {
		if r.stopped() || ctx.Err() != nil {
			results[i] = stageResult{name: name, interrupted: true}
			continue
		}
		g.Go(func() error {
			results[i] = o.runStage(ctx, r, snapshot.Clone(), name)
			return nil
		})
	}
	_ = g.Wait()
	return results
}

// merge folds results into st in declared order. It reports whether any
// stage was interrupted and returns the first fatal failure.
func (o *Orchestrator) merge(ctx context.Context, st *state.WorkflowState, results []stageResult) (bool, error) {
	var (
		interrupted bool
		fatalErr    error
	)
	for _, res := range results {
		st.RetryCount = max(st.RetryCount, res.retries)

		switch {
		case res.interrupted:
			interrupted = true

		case res.err == nil:
			st.SetOutput(res.name, res.output)
			o.exts.EmitStageCompleted(ctx, st.CaseID, res.name, res.elapsed)

		case res.fatal:
			st.AppendError(res.name, res.err.Error(), caseflow.KindFatalStage)
			o.exts.EmitStageFailed(ctx, st.CaseID, res.name, res.err, true)
			if fatalErr == nil {
				fatalErr = fmt.Errorf("fatal stage %s: %w", res.name, res.err)
			}

		default:
			st.MarkTolerated(res.name, res.err.Error())
			o.exts.EmitStageFailed(ctx, st.CaseID, res.name, res.err, false)
			o.logger.Warn("stage failed, continuing",
				slog.String("case_id", st.CaseID),
				slog.String("stage", res.name),
				slog.String("error", res.err.Error()),
			)
		}
	}
	return interrupted, fatalErr
}
