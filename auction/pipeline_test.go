package auction_test

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"sync/atomic"
	"testing"

	"github.com/spf13/afero"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/xraph/caseflow"
	"github.com/xraph/caseflow/auction"
	"github.com/xraph/caseflow/auction/local"
	"github.com/xraph/caseflow/orchestrator"
	"github.com/xraph/caseflow/retry"
	"github.com/xraph/caseflow/stage"
	"github.com/xraph/caseflow/state"
	"github.com/xraph/caseflow/store/memory"
)

const safeCase = `
documents:
  - right: mortgage
property:
  address: Seoul Mapo-gu
  type: apartment
  appraisal_value: 500000000
auction_info:
  round: 1
`

const riskyCase = `
documents:
  - right: lien
  - right: senior_lease
  - right: statutory_superficies
property:
  address: Gangwon Wonju-si
  type: land
  appraisal_value: 300000000
auction_info:
  round: 3
`

const incompleteCase = `
documents:
  - right: mortgage
property:
  address: Seoul
  appraisal_value: 100
`

func setup(t *testing.T, agents func(auction.Agents) auction.Agents) (*orchestrator.Orchestrator, afero.Fs) {
	t.Helper()
	fs := afero.NewMemMapFs()
	for name, body := range map[string]string{"safe": safeCase, "risky": riskyCase, "incomplete": incompleteCase} {
		require.NoError(t, afero.WriteFile(fs, "cases/"+name+".yaml", []byte(body), 0o644))
	}

	a := local.New(fs, local.DefaultConfig()).Bundle()
	if agents != nil {
		a = agents(a)
	}
	reg := stage.NewRegistry()
	require.NoError(t, auction.Register(reg, a))

	cfg := caseflow.DefaultConfig()
	g, err := auction.Graph(reg, cfg)
	require.NoError(t, err)

	o, err := orchestrator.New(reg, g, memory.New(),
		orchestrator.WithConfig(cfg),
		orchestrator.WithLogger(slog.New(slog.NewTextHandler(io.Discard, nil))),
		orchestrator.WithSleeper(&retry.RecordingSleeper{}),
	)
	require.NoError(t, err)
	return o, fs
}

func TestRegister_MissingAgent(t *testing.T) {
	a := local.New(afero.NewMemMapFs(), local.DefaultConfig()).Bundle()
	a.RedTeam = nil

	err := auction.Register(stage.NewRegistry(), a)
	assert.ErrorIs(t, err, auction.ErrMissingAgent)
	assert.Contains(t, err.Error(), "red_team")
}

func TestRegister_Fatality(t *testing.T) {
	reg := stage.NewRegistry()
	require.NoError(t, auction.Register(reg, local.New(afero.NewMemMapFs(), local.DefaultConfig()).Bundle()))

	for name, fatal := range map[string]bool{
		auction.StageCollect:   true,
		auction.StageRights:    false,
		auction.StageLocation:  false,
		auction.StageValuation: false,
		auction.StageRisk:      false,
		auction.StageStrategy:  false,
		auction.StageRedTeam:   false,
		auction.StageReport:    true,
	} {
		def, ok := reg.Get(name)
		require.True(t, ok, name)
		assert.Equal(t, fatal, def.FatalOnFailure, name)
	}
}

func TestPipeline_LowRiskSkipsReview(t *testing.T) {
	o, fs := setup(t, nil)

	st, err := o.Run(context.Background(), "safe", nil)
	require.NoError(t, err)
	require.Equal(t, state.StatusCompleted, st.Status, "errors: %v", st.Errors)
	assert.Empty(t, st.Errors)
	assert.NotContains(t, st.StageOutputs, auction.StageRedTeam)
	assert.Contains(t, []any{"A", "B"}, st.StageOutputs[auction.StageRisk][auction.RiskGradeKey])

	ok, err := afero.Exists(fs, "reports/safe.md")
	require.NoError(t, err)
	assert.True(t, ok)
}

func TestPipeline_HighRiskGoesToReview(t *testing.T) {
	o, _ := setup(t, nil)

	st, err := o.Run(context.Background(), "risky", nil)
	require.NoError(t, err)
	require.Equal(t, state.StatusCompleted, st.Status)
	assert.Contains(t, []any{"C", "D"}, st.StageOutputs[auction.StageRisk][auction.RiskGradeKey])
	require.Contains(t, st.StageOutputs, auction.StageRedTeam)
	assert.NotEmpty(t, st.StageOutputs[auction.StageRedTeam]["issues"])
}

func TestPipeline_ForcedReview(t *testing.T) {
	o, _ := setup(t, nil)

	st, err := o.Run(context.Background(), "safe", map[string]any{
		"user_settings": map[string]any{auction.ForceReviewKey: true, "target_roi": 0.2},
	})
	require.NoError(t, err)
	assert.Equal(t, state.StatusCompleted, st.Status)
	assert.Contains(t, st.StageOutputs, auction.StageRedTeam)
	assert.Equal(t, 0.2, st.StageOutputs[auction.StageStrategy]["target_roi"])
}

func TestPipeline_IncompleteCollectFails(t *testing.T) {
	o, _ := setup(t, nil)

	st, err := o.Run(context.Background(), "incomplete", nil)
	require.NoError(t, err)
	assert.Equal(t, state.StatusFailed, st.Status)
	assert.Equal(t, 2, st.CollectRetries)
	errs := st.ErrorsFor(auction.StageCollect)
	require.Len(t, errs, 3)
	assert.Contains(t, errs[0].Message, "auction_info")
	assert.NotContains(t, st.StageOutputs, auction.StageRights)
}

func TestPipeline_UnknownCaseFails(t *testing.T) {
	o, _ := setup(t, nil)

	st, err := o.Run(context.Background(), "nope", nil)
	require.NoError(t, err)
	assert.Equal(t, state.StatusFailed, st.Status)
	require.Len(t, st.Errors, 1)
	assert.Equal(t, caseflow.KindFatalStage, st.Errors[0].Kind)
}

func TestPipeline_ToleratedAnalysisFailure(t *testing.T) {
	var valuated atomic.Bool
	o, _ := setup(t, func(a auction.Agents) auction.Agents {
		a.Rights = auction.RightsFunc(func(context.Context, string, []any) (state.Payload, error) {
			return nil, errors.New("registry office unavailable")
		})
		inner := a.Valuator
		a.Valuator = auction.ValuatorFunc(func(ctx context.Context, property, rights state.Payload) (state.Payload, error) {
			assert.Nil(t, rights)
			valuated.Store(true)
			return inner.Valuate(ctx, property, rights)
		})
		return a
	})

	st, err := o.Run(context.Background(), "safe", nil)
	require.NoError(t, err)
	assert.Equal(t, state.StatusCompleted, st.Status)
	assert.True(t, valuated.Load())
	assert.True(t, state.IsSentinel(st.StageOutputs[auction.StageRights]))
	require.Len(t, st.ErrorsFor(auction.StageRights), 1)
	assert.Contains(t, st.StageOutputs, auction.StageLocation)
}

func TestPipeline_ToleratedRiskFailure(t *testing.T) {
	failingRisk := func(a auction.Agents) auction.Agents {
		a.Risk = auction.RiskFunc(func(context.Context, state.Payload, state.Payload, state.Payload) (state.Payload, error) {
			return nil, errors.New("scoring model unavailable")
		})
		return a
	}

	tests := []struct {
		name  string
		input map[string]any
	}{
		{"unforced", nil},
		{"forced", map[string]any{"user_settings": map[string]any{auction.ForceReviewKey: true}}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			o, _ := setup(t, failingRisk)

			st, err := o.Run(context.Background(), "safe", tt.input)
			require.NoError(t, err)
			require.Equal(t, state.StatusCompleted, st.Status, "errors: %v", st.Errors)
			assert.True(t, state.IsSentinel(st.StageOutputs[auction.StageRisk]))
			require.Len(t, st.ErrorsFor(auction.StageRisk), 1)
			assert.Contains(t, st.StageOutputs, auction.StageStrategy)
			require.Contains(t, st.StageOutputs, auction.StageRedTeam)
			assert.Contains(t, st.StageOutputs[auction.StageRedTeam]["issues"], "risk grade unavailable")
			assert.Contains(t, st.StageOutputs, auction.StageReport)
		})
	}
}

func TestGraph_DeclaresRouteTargets(t *testing.T) {
	reg := stage.NewRegistry()
	require.NoError(t, auction.Register(reg, local.New(afero.NewMemMapFs(), local.DefaultConfig()).Bundle()))
	g, err := auction.Graph(reg, caseflow.DefaultConfig())
	require.NoError(t, err)

	for _, name := range g.Nodes() {
		assert.NotEmpty(t, g.Targets(name), name)
	}
	assert.Equal(t, []string{auction.StageCollect, auction.GroupAnalysis}, g.Targets(auction.StageCollect))
	assert.Equal(t, []string{auction.StageRedTeam, auction.StageReport}, g.Targets(auction.StageStrategy))
	assert.Contains(t, g.Mermaid(), "strategy -.-> red_team")
}
