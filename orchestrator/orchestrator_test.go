package orchestrator_test

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"

	"github.com/xraph/caseflow"
	"github.com/xraph/caseflow/cache"
	"github.com/xraph/caseflow/graph"
	"github.com/xraph/caseflow/orchestrator"
	"github.com/xraph/caseflow/retry"
	"github.com/xraph/caseflow/router"
	"github.com/xraph/caseflow/stage"
	"github.com/xraph/caseflow/state"
)

func TestNew_RequiresStore(t *testing.T) {
	reg := stage.NewRegistry()
	var a counter
	require.NoError(t, reg.Register("a", a.fn(nil), true))
	g := linear(t, reg, "a")

	_, err := orchestrator.New(reg, g, nil)
	assert.ErrorIs(t, err, caseflow.ErrNoStore)

	bad := caseflow.DefaultConfig()
	bad.MaxRetries = 0
	_, err = orchestrator.New(reg, g, newMemory(), orchestrator.WithConfig(bad))
	assert.Error(t, err)
}

func TestRun_Completes(t *testing.T) {
	var a, b, c counter
	reg := stage.NewRegistry()
	require.NoError(t, reg.Register("a", a.fn(state.Payload{"n": 1}), true))
	require.NoError(t, reg.Register("b", b.fn(state.Payload{"n": 2}), false))
	require.NoError(t, reg.Register("c", c.fn(nil), true))

	results := cache.NewMemory()
	store := newMemory()
	o := newOrchestrator(t, reg, linear(t, reg, "a", "b", "c"), store,
		orchestrator.WithResultCache(results, time.Hour))

	st, err := o.Run(context.Background(), "2024-0042", map[string]any{"budget": 1})
	require.NoError(t, err)
	assert.Equal(t, state.StatusCompleted, st.Status)
	assert.Empty(t, st.Errors)
	assert.Equal(t, "c", st.CurrentStage)
	assert.Empty(t, st.NextStage)
	assert.Equal(t, 1, a.n())
	assert.Equal(t, 1, b.n())
	assert.Equal(t, 1, c.n())
	assert.Equal(t, 2, st.StageOutputs["b"]["n"])
	assert.NotNil(t, st.StageOutputs["c"])

	cached, err := results.Get(context.Background(), "2024-0042")
	require.NoError(t, err)
	assert.Equal(t, state.StatusCompleted, cached.Status)

	status, err := o.GetStatus(context.Background(), "2024-0042")
	require.NoError(t, err)
	assert.Equal(t, state.StatusCompleted, status.Status)
	assert.False(t, status.Active)
}

func TestRun_EmptyCaseID(t *testing.T) {
	var a counter
	reg := stage.NewRegistry()
	require.NoError(t, reg.Register("a", a.fn(nil), true))
	o := newOrchestrator(t, reg, linear(t, reg, "a"), newMemory())

	_, err := o.Run(context.Background(), "", nil)
	assert.Equal(t, caseflow.KindPermanentInput, caseflow.KindOf(err))
}

func TestRun_CheckpointsAreMonotonic(t *testing.T) {
	var a, b, c counter
	reg := stage.NewRegistry()
	require.NoError(t, reg.Register("a", a.fn(nil), true))
	require.NoError(t, reg.Register("b", b.fn(nil), true))
	require.NoError(t, reg.Register("c", c.fn(nil), true))
	store := newMemory()
	o := newOrchestrator(t, reg, linear(t, reg, "a", "b", "c"), store)

	_, err := o.Run(context.Background(), "case-mono", nil)
	require.NoError(t, err)

	cps, err := store.List(context.Background(), "case-mono")
	require.NoError(t, err)
	require.GreaterOrEqual(t, len(cps), 4)
	for i := 1; i < len(cps); i++ {
		assert.Greater(t, cps[i].Seq, cps[i-1].Seq)
	}
	latest, err := store.Latest(context.Background(), "case-mono")
	require.NoError(t, err)
	assert.Equal(t, cps[len(cps)-1].Seq, latest.Seq)
	assert.Equal(t, state.StatusCompleted, latest.Status)

	tl, err := o.Timeline(context.Background(), "case-mono")
	require.NoError(t, err)
	assert.Len(t, tl, len(cps))
}

func TestRetryBound(t *testing.T) {
	var a, b, c counter
	reg := stage.NewRegistry()
	require.NoError(t, reg.Register("a", a.fn(nil), true))
	policy := retry.Default()
	policy.MaxRetries = 4
	require.NoError(t, reg.Register("b", b.failing(caseflow.Transient(errors.New("503"))), false, stage.WithRetry(policy)))
	require.NoError(t, reg.Register("c", c.fn(nil), true))

	sleeper := &retry.RecordingSleeper{}
	o := newOrchestrator(t, reg, linear(t, reg, "a", "b", "c"), newMemory(), orchestrator.WithSleeper(sleeper))

	st, err := o.Run(context.Background(), "case-retry", nil)
	require.NoError(t, err)

	assert.Equal(t, 4, b.n())
	delays := sleeper.Delays()
	require.Len(t, delays, 3)
	for i := 1; i < len(delays); i++ {
		assert.Greater(t, delays[i], delays[i-1])
	}
	assert.Equal(t, []time.Duration{time.Second, 2 * time.Second, 4 * time.Second}, delays)

	assert.Equal(t, state.StatusCompleted, st.Status)
	require.Len(t, st.ErrorsFor("b"), 1)
	assert.Equal(t, caseflow.KindToleratedStage, st.ErrorsFor("b")[0].Kind)
	assert.True(t, state.IsSentinel(st.StageOutputs["b"]))
	assert.Equal(t, 1, c.n())
}

func TestFatalHalts(t *testing.T) {
	var a, b, c counter
	reg := stage.NewRegistry()
	require.NoError(t, reg.Register("a", a.fn(nil), true))
	require.NoError(t, reg.Register("b", b.failing(caseflow.Transient(errors.New("503"))), true))
	require.NoError(t, reg.Register("c", c.fn(nil), true))

	o := newOrchestrator(t, reg, linear(t, reg, "a", "b", "c"), newMemory())

	st, err := o.Run(context.Background(), "case-fatal", nil)
	require.NoError(t, err)
	assert.Equal(t, state.StatusFailed, st.Status)
	assert.Equal(t, 3, b.n())
	assert.Equal(t, 0, c.n())
	require.Len(t, st.Errors, 1)
	assert.Equal(t, "b", st.Errors[0].Stage)
	assert.Equal(t, caseflow.KindFatalStage, st.Errors[0].Kind)
	assert.Contains(t, st.Errors[0].Message, "503")
}

func TestNonRetryableFailsFast(t *testing.T) {
	var a counter
	reg := stage.NewRegistry()
	require.NoError(t, reg.Register("a", a.failing(caseflow.PermanentInput(errors.New("bad case number"))), true))

	o := newOrchestrator(t, reg, linear(t, reg, "a"), newMemory())
	st, err := o.Run(context.Background(), "case-perm", nil)
	require.NoError(t, err)
	assert.Equal(t, 1, a.n())
	assert.Equal(t, state.StatusFailed, st.Status)
}

func TestParallelIsolation(t *testing.T) {
	defer goleak.VerifyNone(t)

	var collect, x, after counter
	var yDone atomic.Bool
	reg := stage.NewRegistry()
	require.NoError(t, reg.Register("collect", collect.fn(nil), true))
	require.NoError(t, reg.Register("x", x.failing(caseflow.PermanentInput(errors.New("x broke"))), true))
	require.NoError(t, reg.Register("y", func(ctx context.Context, _ *state.WorkflowState) (stage.Result, error) {
		select {
		case <-time.After(50 * time.Millisecond):
		case <-ctx.Done():
			return stage.Result{}, ctx.Err()
		}
		yDone.Store(true)
		return stage.Result{Output: state.Payload{"y": "ok"}}, nil
	}, false))
	require.NoError(t, reg.Register("after", after.fn(nil), true))

	g, err := graph.NewBuilder("collect").
		Stage("collect").
		Parallel("group", "x", "y").
		Stage("after").
		Edge("collect", "group").
		Edge("group", "after").
		Edge("after", router.Terminal).
		Build(reg)
	require.NoError(t, err)

	o := newOrchestrator(t, reg, g, newMemory())
	st, err := o.Run(context.Background(), "case-par", nil)
	require.NoError(t, err)

	assert.True(t, yDone.Load(), "sibling must run to completion")
	assert.Equal(t, "ok", st.StageOutputs["y"]["y"])
	assert.Equal(t, state.StatusFailed, st.Status)
	assert.Equal(t, 0, after.n())
	require.Len(t, st.ErrorsFor("x"), 1)
	assert.Equal(t, caseflow.KindFatalStage, st.ErrorsFor("x")[0].Kind)
}

func TestParallelMembersRunConcurrently(t *testing.T) {
	defer goleak.VerifyNone(t)

	reg := stage.NewRegistry()
	var collect counter
	require.NoError(t, reg.Register("collect", collect.fn(nil), true))

	var running, peak atomic.Int32
	member := func(context.Context, *state.WorkflowState) (stage.Result, error) {
		n := running.Add(1)
		for {
			p := peak.Load()
			if n <= p || peak.CompareAndSwap(p, n) {
				break
			}
		}
		time.Sleep(30 * time.Millisecond)
		running.Add(-1)
		return stage.Result{Output: state.Payload{"ok": true}}, nil
	}
	require.NoError(t, reg.Register("rights", member, false))
	require.NoError(t, reg.Register("location", member, false))

	g, err := graph.NewBuilder("collect").
		Stage("collect").
		Parallel("analysis", "rights", "location").
		Edge("collect", "analysis").
		Edge("analysis", router.Terminal).
		Build(reg)
	require.NoError(t, err)

	st, err := newOrchestrator(t, reg, g, newMemory()).Run(context.Background(), "case-conc", nil)
	require.NoError(t, err)
	assert.Equal(t, state.StatusCompleted, st.Status)
	assert.Equal(t, int32(2), peak.Load())
	assert.Contains(t, st.StageOutputs, "rights")
	assert.Contains(t, st.StageOutputs, "location")
}

// TestScenarioC1 runs collect -> {rights, location} -> risk -> strategy ->
// report where collect is incomplete twice before returning full data.
func TestScenarioC1(t *testing.T) {
	reg := stage.NewRegistry()

	var collectCalls atomic.Int32
	require.NoError(t, reg.Register("collect", func(context.Context, *state.WorkflowState) (stage.Result, error) {
		n := collectCalls.Add(1)
		out := state.Payload{"documents": []any{"registry"}, "property": map[string]any{"address": "Seoul"}}
		if n >= 3 {
			out["auction_info"] = map[string]any{"round": 1}
		}
		return stage.Result{Output: out}, nil
	}, true))

	var rights, location, risk, strategy, report counter
	require.NoError(t, reg.Register("rights", rights.fn(state.Payload{"risk": "low"}), false))
	require.NoError(t, reg.Register("location", location.fn(state.Payload{"score": 80}), false))
	require.NoError(t, reg.Register("risk", risk.fn(state.Payload{"risk_grade": "A"}), false))
	require.NoError(t, reg.Register("strategy", strategy.fn(state.Payload{"bid": 100}), false))
	require.NoError(t, reg.Register("report", report.fn(state.Payload{"summary": "ok"}), true))

	g, err := graph.NewBuilder("collect").
		Stage("collect").
		Parallel("analysis", "rights", "location").
		Stage("risk").
		Stage("strategy").
		Stage("report").
		Route("collect", router.Completeness("collect", "analysis", []string{"documents", "property", "auction_info"}, 2)).
		Edge("analysis", "risk").
		Edge("risk", "strategy").
		Edge("strategy", "report").
		Edge("report", router.Terminal).
		Build(reg)
	require.NoError(t, err)

	o := newOrchestrator(t, reg, g, newMemory())
	st, err := o.Run(context.Background(), "C-1", nil)
	require.NoError(t, err)

	assert.Equal(t, int32(3), collectCalls.Load())
	assert.Equal(t, state.StatusCompleted, st.Status)
	assert.Equal(t, 2, st.CollectRetries)
	collectErrs := st.ErrorsFor("collect")
	require.Len(t, collectErrs, 2)
	for _, e := range collectErrs {
		assert.Contains(t, e.Message, "auction_info")
	}
	assert.Len(t, st.Errors, 2)
	for _, c := range []*counter{&rights, &location, &risk, &strategy, &report} {
		assert.Equal(t, 1, c.n())
	}
}

func TestCompletenessExhaustedFails(t *testing.T) {
	reg := stage.NewRegistry()
	var collect, next counter
	require.NoError(t, reg.Register("collect", collect.fn(state.Payload{"documents": []any{}}), true))
	require.NoError(t, reg.Register("next", next.fn(nil), true))

	g, err := graph.NewBuilder("collect").
		Stage("collect").
		Stage("next").
		Route("collect", router.Completeness("collect", "next", []string{"documents", "property"}, 2)).
		Edge("next", router.Terminal).
		Build(reg)
	require.NoError(t, err)

	st, err := newOrchestrator(t, reg, g, newMemory()).Run(context.Background(), "case-incomplete", nil)
	require.NoError(t, err)
	assert.Equal(t, state.StatusFailed, st.Status)
	assert.Equal(t, 3, collect.n())
	assert.Equal(t, 0, next.n())
	errs := st.ErrorsFor("collect")
	require.Len(t, errs, 3)
	assert.Equal(t, caseflow.KindPermanentInput, errs[2].Kind)
}

func TestRoutingAmbiguousFails(t *testing.T) {
	reg := stage.NewRegistry()
	var risk, review, report counter
	require.NoError(t, reg.Register("risk", risk.failing(errors.New("model offline")), false))
	require.NoError(t, reg.Register("red_team", review.fn(nil), false))
	require.NoError(t, reg.Register("report", report.fn(nil), true))

	g, err := graph.NewBuilder("risk").
		Stage("risk").
		Stage("red_team").
		Stage("report").
		Route("risk", router.RiskGate("risk", "risk_grade", []string{"C", "D"}, "force_red_team_review", "red_team", "report")).
		Edge("red_team", "report").
		Edge("report", router.Terminal).
		Build(reg)
	require.NoError(t, err)

	st, err := newOrchestrator(t, reg, g, newMemory()).Run(context.Background(), "case-ambiguous", nil)
	require.NoError(t, err)
	assert.Equal(t, state.StatusFailed, st.Status)
	assert.Equal(t, 0, review.n())
	assert.Equal(t, 0, report.n())
	require.Len(t, st.Errors, 2)
	assert.Equal(t, caseflow.KindToleratedStage, st.Errors[0].Kind)
	assert.Equal(t, caseflow.KindRoutingAmbiguous, st.Errors[1].Kind)
}

func TestMaxStepsGuard(t *testing.T) {
	reg := stage.NewRegistry()
	var loop counter
	require.NoError(t, reg.Register("loop", loop.fn(nil), false))
	g, err := graph.NewBuilder("loop").Stage("loop").Edge("loop", "loop").Build(reg)
	require.NoError(t, err)

	cfg := testConfig()
	cfg.MaxSteps = 5
	o := newOrchestrator(t, reg, g, newMemory(), orchestrator.WithConfig(cfg))

	st, err := o.Run(context.Background(), "case-loop", nil)
	require.NoError(t, err)
	assert.Equal(t, state.StatusFailed, st.Status)
	assert.Equal(t, 5, loop.n())
	assert.Contains(t, st.Errors[0].Message, "step limit")
}

func TestIdempotentResume(t *testing.T) {
	for _, fatal := range []bool{false, true} {
		var a, b counter
		reg := stage.NewRegistry()
		require.NoError(t, reg.Register("a", a.fn(nil), true))
		require.NoError(t, reg.Register("b", b.failing(errors.New("boom")), fatal))
		store := newMemory()
		o := newOrchestrator(t, reg, linear(t, reg, "a", "b"), store)

		first, err := o.Run(context.Background(), "case-idem", nil)
		require.NoError(t, err)
		require.True(t, first.Status.IsTerminal())

		before, err := store.List(context.Background(), "case-idem")
		require.NoError(t, err)

		again, err := o.Resume(context.Background(), "case-idem")
		require.NoError(t, err)
		assert.Equal(t, first.Status, again.Status)
		assert.Equal(t, first.StageOutputs, again.StageOutputs)
		assert.Equal(t, len(first.Errors), len(again.Errors))
		assert.Equal(t, 1, a.n())
		assert.Equal(t, 1, b.n())

		after, err := store.List(context.Background(), "case-idem")
		require.NoError(t, err)
		assert.Len(t, after, len(before))
	}
}

func TestResume_NotFound(t *testing.T) {
	reg := stage.NewRegistry()
	var a counter
	require.NoError(t, reg.Register("a", a.fn(nil), true))
	o := newOrchestrator(t, reg, linear(t, reg, "a"), newMemory())

	_, err := o.Resume(context.Background(), "nope")
	assert.ErrorIs(t, err, caseflow.ErrCheckpointNotFound)

	_, err = o.GetStatus(context.Background(), "nope")
	assert.ErrorIs(t, err, caseflow.ErrCheckpointNotFound)
}

func TestCancelPauseResume(t *testing.T) {
	defer goleak.VerifyNone(t)

	var a, c counter
	b := newGate()
	reg := stage.NewRegistry()
	require.NoError(t, reg.Register("a", a.fn(nil), true))
	require.NoError(t, reg.Register("b", b.fn, true))
	require.NoError(t, reg.Register("c", c.fn(nil), true))
	store := newMemory()
	o := newOrchestrator(t, reg, linear(t, reg, "a", "b", "c"), store)

	ctx := context.Background()
	done := make(chan *state.WorkflowState, 1)
	go func() {
		st, err := o.Run(ctx, "case-cancel", nil)
		assert.NoError(t, err)
		done <- st
	}()

	b.waitStarted(t)
	assert.True(t, o.Active("case-cancel"))

	_, err := o.Run(ctx, "case-cancel", nil)
	assert.ErrorIs(t, err, caseflow.ErrRunActive)

	require.NoError(t, o.Cancel(ctx, "case-cancel"))
	close(b.release)

	st := <-done
	assert.Equal(t, state.StatusPaused, st.Status)
	assert.Equal(t, "c", st.NextStage)
	assert.Equal(t, 0, c.n())
	assert.False(t, o.Active("case-cancel"))

	status, err := o.GetStatus(ctx, "case-cancel")
	require.NoError(t, err)
	assert.Equal(t, state.StatusPaused, status.Status)
	assert.Equal(t, "c", status.NextStage)

	resumed, err := o.Resume(ctx, "case-cancel")
	require.NoError(t, err)
	assert.Equal(t, state.StatusCompleted, resumed.Status)
	assert.Equal(t, 1, a.n())
	assert.Equal(t, 1, c.n())
	assert.Equal(t, true, resumed.StageOutputs["b"]["gated"])
}

func TestCancelBetweenRetries(t *testing.T) {
	var a counter
	reg := stage.NewRegistry()
	require.NoError(t, reg.Register("a", a.failing(caseflow.Transient(errors.New("503"))), true))

	var o *orchestrator.Orchestrator
	sleeper := sleeperFunc(func(ctx context.Context, _ time.Duration) error {
		require.NoError(t, o.Cancel(ctx, "case-retry-cancel"))
		return nil
	})
	o = newOrchestrator(t, reg, linear(t, reg, "a"), newMemory(), orchestrator.WithSleeper(sleeper))

	st, err := o.Run(context.Background(), "case-retry-cancel", nil)
	require.NoError(t, err)
	assert.Equal(t, 1, a.n())
	assert.Equal(t, state.StatusPaused, st.Status)
	assert.Equal(t, "a", st.NextStage)
	assert.Empty(t, st.Errors)
}

func TestCancel_NotActive(t *testing.T) {
	reg := stage.NewRegistry()
	var a counter
	require.NoError(t, reg.Register("a", a.fn(nil), true))
	o := newOrchestrator(t, reg, linear(t, reg, "a"), newMemory())

	assert.ErrorIs(t, o.Cancel(context.Background(), "idle"), caseflow.ErrRunNotActive)
}

func TestContextCancelPauses(t *testing.T) {
	defer goleak.VerifyNone(t)

	var a counter
	b := newGate()
	reg := stage.NewRegistry()
	require.NoError(t, reg.Register("a", a.fn(nil), true))
	require.NoError(t, reg.Register("b", b.fn, true))
	store := newMemory()
	o := newOrchestrator(t, reg, linear(t, reg, "a", "b"), store)

	ctx, cancel := context.WithCancel(context.Background())
	go func() {
		b.waitStarted(t)
		cancel()
	}()

	st, err := o.Run(ctx, "case-ctx", nil)
	assert.ErrorIs(t, err, caseflow.ErrCancelled)
	assert.ErrorIs(t, err, context.Canceled)
	require.NotNil(t, st)
	assert.Equal(t, state.StatusPaused, st.Status)
	assert.Equal(t, "b", st.NextStage)
	assert.Empty(t, st.Errors)

	latest, err := store.Latest(context.Background(), "case-ctx")
	require.NoError(t, err)
	assert.Equal(t, state.StatusPaused, latest.Status)
}

func TestCheckpointFailureIsNotFatal(t *testing.T) {
	var a, b counter
	reg := stage.NewRegistry()
	require.NoError(t, reg.Register("a", a.fn(nil), true))
	require.NoError(t, reg.Register("b", b.fn(nil), true))
	store := &failingStore{Store: newMemory()}
	o := newOrchestrator(t, reg, linear(t, reg, "a", "b"), store)

	st, err := o.Run(context.Background(), "case-nosave", nil)
	require.NoError(t, err)
	assert.Equal(t, state.StatusCompleted, st.Status)
	assert.Greater(t, store.saves.Load(), int32(2))
}

func TestStageReceivesCopy(t *testing.T) {
	reg := stage.NewRegistry()
	require.NoError(t, reg.Register("a", func(_ context.Context, st *state.WorkflowState) (stage.Result, error) {
		st.Status = state.StatusFailed
		st.CaseID = "hijacked"
		return stage.Result{Output: state.Payload{"ok": true}}, nil
	}, true))
	o := newOrchestrator(t, reg, linear(t, reg, "a"), newMemory())

	st, err := o.Run(context.Background(), "case-copy", nil)
	require.NoError(t, err)
	assert.Equal(t, "case-copy", st.CaseID)
	assert.Equal(t, state.StatusCompleted, st.Status)
}

func TestStagePanicIsRecovered(t *testing.T) {
	reg := stage.NewRegistry()
	require.NoError(t, reg.Register("a", func(context.Context, *state.WorkflowState) (stage.Result, error) {
		panic("nil map")
	}, false))
	var b counter
	require.NoError(t, reg.Register("b", b.fn(nil), true))
	o := newOrchestrator(t, reg, linear(t, reg, "a", "b"), newMemory())

	st, err := o.Run(context.Background(), "case-panic", nil)
	require.NoError(t, err)
	assert.Equal(t, state.StatusCompleted, st.Status)
	require.Len(t, st.ErrorsFor("a"), 1)
	assert.Contains(t, st.ErrorsFor("a")[0].Message, "panic in stage a")
}

type sleeperFunc func(ctx context.Context, d time.Duration) error

func (f sleeperFunc) Sleep(ctx context.Context, d time.Duration) error { return f(ctx, d) }

func TestStart_ClaimsCaseBeforeDriving(t *testing.T) {
	var a counter
	reg := stage.NewRegistry()
	require.NoError(t, reg.Register("a", a.fn(state.Payload{"ok": true}), true))
	o := newOrchestrator(t, reg, linear(t, reg, "a"), newMemory())
	ctx := context.Background()

	drive, err := o.Start("case-start", nil)
	require.NoError(t, err)
	assert.True(t, o.Active("case-start"))
	assert.Equal(t, 0, a.n())

	_, err = o.Start("case-start", nil)
	assert.ErrorIs(t, err, caseflow.ErrRunActive)
	_, err = o.StartResume("case-start")
	assert.ErrorIs(t, err, caseflow.ErrRunActive)
	_, err = o.Run(ctx, "case-start", nil)
	assert.ErrorIs(t, err, caseflow.ErrRunActive)

	st, err := drive(ctx)
	require.NoError(t, err)
	assert.Equal(t, state.StatusCompleted, st.Status)
	assert.False(t, o.Active("case-start"))

	resume, err := o.StartResume("case-start")
	require.NoError(t, err)
	assert.True(t, o.Active("case-start"))
	again, err := resume(ctx)
	require.NoError(t, err)
	assert.Equal(t, state.StatusCompleted, again.Status)
	assert.False(t, o.Active("case-start"))
	assert.Equal(t, 1, a.n())

	_, err = o.Start("", nil)
	assert.Equal(t, caseflow.KindPermanentInput, caseflow.KindOf(err))
}
