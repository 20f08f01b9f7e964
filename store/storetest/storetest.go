// Package storetest holds the behavioural suite every checkpoint backend
// must pass. Backend test files call Run with a constructor for a fresh,
// empty store.
package storetest

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/xraph/caseflow"
	"github.com/xraph/caseflow/checkpoint"
	"github.com/xraph/caseflow/state"
	"github.com/xraph/caseflow/store"
)

// Factory returns an empty store. Cleanup is the caller's responsibility
// (typically via t.Cleanup).
type Factory func(t *testing.T) store.Store

// Run executes the conformance suite against the store built by newStore.
func Run(t *testing.T, newStore Factory) {
	t.Helper()

	t.Run("Lifecycle", func(t *testing.T) { testLifecycle(t, newStore(t)) })
	t.Run("LatestNotFound", func(t *testing.T) { testLatestNotFound(t, newStore(t)) })
	t.Run("MonotonicSequence", func(t *testing.T) { testMonotonic(t, newStore(t)) })
	t.Run("SnapshotImmutable", func(t *testing.T) { testImmutable(t, newStore(t)) })
	t.Run("CasesIsolated", func(t *testing.T) { testIsolation(t, newStore(t)) })
	t.Run("Clear", func(t *testing.T) { testClear(t, newStore(t)) })
	t.Run("SequenceSurvivesClear", func(t *testing.T) { testSequenceSurvivesClear(t, newStore(t)) })
	t.Run("AwkwardCaseIDs", func(t *testing.T) { testAwkwardCaseIDs(t, newStore(t)) })
	t.Run("NextPending", func(t *testing.T) { testNextPending(t, newStore(t)) })
	t.Run("ConcurrentCases", func(t *testing.T) { testConcurrentCases(t, newStore(t)) })
}

func newState(caseID string) *state.WorkflowState {
	st := state.New(caseID, map[string]any{"user_settings": map[string]any{"force_red_team_review": false}}, "collect")
	st.CurrentStage = "collect"
	return st
}

func testLifecycle(t *testing.T, s store.Store) {
	ctx := context.Background()
	require.NoError(t, s.Migrate(ctx))
	require.NoError(t, s.Ping(ctx))
}

func testLatestNotFound(t *testing.T, s store.Store) {
	_, err := s.Latest(context.Background(), "missing")
	assert.ErrorIs(t, err, caseflow.ErrCheckpointNotFound)

	cps, err := s.List(context.Background(), "missing")
	require.NoError(t, err)
	assert.Empty(t, cps)
}

func testMonotonic(t *testing.T, s store.Store) {
	ctx := context.Background()
	st := newState("case-mono")

	stages := []string{"collect", "analysis", "valuation", "risk"}
	var ids []string
	for _, stage := range stages {
		st.CurrentStage = stage
		cpID, err := s.Save(ctx, st.CaseID, st)
		require.NoError(t, err)
		assert.False(t, cpID.IsNil())
		ids = append(ids, cpID.String())
	}

	cps, err := s.List(ctx, st.CaseID)
	require.NoError(t, err)
	require.Len(t, cps, len(stages))
	for i, cp := range cps {
		assert.Equal(t, stages[i], cp.Stage)
		assert.Equal(t, ids[i], cp.ID.String())
		if i > 0 {
			assert.Greater(t, cp.Seq, cps[i-1].Seq)
		}
	}

	latest, err := s.Latest(ctx, st.CaseID)
	require.NoError(t, err)
	assert.Equal(t, "risk", latest.Stage)
	assert.Equal(t, cps[len(cps)-1].Seq, latest.Seq)
}

func testImmutable(t *testing.T, s store.Store) {
	ctx := context.Background()
	st := newState("case-immut")
	st.SetOutput("collect", state.Payload{"documents": []any{"a"}})

	_, err := s.Save(ctx, st.CaseID, st)
	require.NoError(t, err)

	st.SetOutput("collect", state.Payload{"documents": []any{"b"}})
	st.AppendError("collect", "later", caseflow.KindTransient)

	got, err := s.Latest(ctx, st.CaseID)
	require.NoError(t, err)
	assert.Empty(t, got.State.Errors)
	assert.Equal(t, "a", fmt.Sprint(got.State.StageOutputs["collect"]["documents"].([]any)[0]))

	got.State.CaseID = "mutated"
	again, err := s.Latest(ctx, st.CaseID)
	require.NoError(t, err)
	assert.Equal(t, "case-immut", again.State.CaseID)
}

func testIsolation(t *testing.T, s store.Store) {
	ctx := context.Background()
	a, b := newState("case-a"), newState("case-b")
	b.CurrentStage = "report"

	_, err := s.Save(ctx, a.CaseID, a)
	require.NoError(t, err)
	_, err = s.Save(ctx, b.CaseID, b)
	require.NoError(t, err)

	la, err := s.Latest(ctx, "case-a")
	require.NoError(t, err)
	assert.Equal(t, "collect", la.Stage)

	cps, err := s.List(ctx, "case-b")
	require.NoError(t, err)
	require.Len(t, cps, 1)
	assert.Equal(t, "report", cps[0].Stage)
}

func testClear(t *testing.T, s store.Store) {
	ctx := context.Background()
	st := newState("case-clear")
	_, err := s.Save(ctx, st.CaseID, st)
	require.NoError(t, err)
	keep := newState("case-keep")
	_, err = s.Save(ctx, keep.CaseID, keep)
	require.NoError(t, err)

	require.NoError(t, s.Clear(ctx, st.CaseID))

	_, err = s.Latest(ctx, st.CaseID)
	assert.True(t, errors.Is(err, caseflow.ErrCheckpointNotFound))
	_, err = s.Latest(ctx, keep.CaseID)
	assert.NoError(t, err)
}

// Sequence numbers are never reused, even after Clear.
func testSequenceSurvivesClear(t *testing.T, s store.Store) {
	ctx := context.Background()
	st := newState("case-reseq")
	for range 2 {
		_, err := s.Save(ctx, st.CaseID, st)
		require.NoError(t, err)
	}
	before, err := s.Latest(ctx, st.CaseID)
	require.NoError(t, err)

	require.NoError(t, s.Clear(ctx, st.CaseID))
	_, err = s.Save(ctx, st.CaseID, st)
	require.NoError(t, err)

	after, err := s.Latest(ctx, st.CaseID)
	require.NoError(t, err)
	assert.Greater(t, after.Seq, before.Seq)

	cps, err := s.List(ctx, st.CaseID)
	require.NoError(t, err)
	assert.Len(t, cps, 1)
}

func testAwkwardCaseIDs(t *testing.T, s store.Store) {
	ctx := context.Background()
	keep := newState("case-keep")
	keep.CurrentStage = "report"
	_, err := s.Save(ctx, keep.CaseID, keep)
	require.NoError(t, err)

	ids := []string{".", "..", "a/b", "a"}
	for _, caseID := range ids {
		st := newState(caseID)
		st.CurrentStage = "stage-" + caseID
		_, err := s.Save(ctx, caseID, st)
		require.NoError(t, err, caseID)
	}
	for _, caseID := range ids {
		cps, err := s.List(ctx, caseID)
		require.NoError(t, err, caseID)
		require.Len(t, cps, 1, caseID)
		assert.Equal(t, caseID, cps[0].State.CaseID)
		assert.Equal(t, "stage-"+caseID, cps[0].Stage)
	}

	require.NoError(t, s.Clear(ctx, "."))
	require.NoError(t, s.Clear(ctx, ".."))

	for _, caseID := range []string{".", ".."} {
		_, err = s.Latest(ctx, caseID)
		assert.ErrorIs(t, err, caseflow.ErrCheckpointNotFound, caseID)
	}
	for _, caseID := range []string{"a/b", "a"} {
		_, err = s.Latest(ctx, caseID)
		assert.NoError(t, err, caseID)
	}
	got, err := s.Latest(ctx, keep.CaseID)
	require.NoError(t, err)
	assert.Equal(t, "report", got.Stage)
}

func testNextPending(t *testing.T, s store.Store) {
	ctx := context.Background()
	st := newState("case-next")
	st.Advance("analysis")
	st.Finish(state.StatusPaused)
	_, err := s.Save(ctx, st.CaseID, st)
	require.NoError(t, err)

	next, err := checkpoint.NextPending(ctx, s, st.CaseID)
	require.NoError(t, err)
	assert.Equal(t, "analysis", next)

	st.Finish(state.StatusCompleted)
	_, err = s.Save(ctx, st.CaseID, st)
	require.NoError(t, err)

	next, err = checkpoint.NextPending(ctx, s, st.CaseID)
	require.NoError(t, err)
	assert.Empty(t, next)

	tl, err := checkpoint.Timeline(ctx, s, st.CaseID)
	require.NoError(t, err)
	require.Len(t, tl, 2)
	assert.Equal(t, state.StatusPaused, tl[0].Status)
	assert.Equal(t, state.StatusCompleted, tl[1].Status)
}

func testConcurrentCases(t *testing.T, s store.Store) {
	ctx := context.Background()
	const cases, perCase = 4, 5

	var wg sync.WaitGroup
	errs := make(chan error, cases*perCase)
	for c := 0; c < cases; c++ {
		wg.Add(1)
		go func(c int) {
			defer wg.Done()
			st := newState(fmt.Sprintf("case-conc-%d", c))
			for i := 0; i < perCase; i++ {
				if _, err := s.Save(ctx, st.CaseID, st); err != nil {
					errs <- err
				}
			}
		}(c)
	}
	wg.Wait()
	close(errs)
	for err := range errs {
		require.NoError(t, err)
	}

	for c := 0; c < cases; c++ {
		cps, err := s.List(ctx, fmt.Sprintf("case-conc-%d", c))
		require.NoError(t, err)
		require.Len(t, cps, perCase)
		for i := 1; i < len(cps); i++ {
			assert.Greater(t, cps[i].Seq, cps[i-1].Seq)
		}
	}
}
