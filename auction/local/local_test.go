package local_test

import (
	"context"
	"testing"

	"github.com/spf13/afero"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/xraph/caseflow"
	"github.com/xraph/caseflow/auction/local"
	"github.com/xraph/caseflow/state"
)

const safeCase = `
documents:
  - right: mortgage
  - right: seizure
property:
  address: Seoul Gangnam-gu
  type: apartment
  appraisal_value: 800000000
auction_info:
  round: 1
  minimum_bid: 640000000
`

func TestCollect(t *testing.T) {
	fs := afero.NewMemMapFs()
	require.NoError(t, afero.WriteFile(fs, "cases/2024-0042.yaml", []byte(safeCase), 0o644))
	a := local.New(fs, local.DefaultConfig())

	out, err := a.Collect(context.Background(), "2024-0042")
	require.NoError(t, err)
	assert.Len(t, out["documents"], 2)
	assert.Equal(t, "Seoul Gangnam-gu", out.Map("property").String("address"))
	assert.True(t, out.Has("auction_info"))

	_, err = a.Collect(context.Background(), "missing")
	assert.ErrorIs(t, err, caseflow.ErrCaseNotFound)
	assert.Equal(t, caseflow.KindPermanentInput, caseflow.KindOf(err))

	_, err = a.Collect(context.Background(), "../etc/passwd")
	assert.Equal(t, caseflow.KindPermanentInput, caseflow.KindOf(err))
}

func TestCollect_PartialCase(t *testing.T) {
	fs := afero.NewMemMapFs()
	require.NoError(t, afero.WriteFile(fs, "cases/p.yaml", []byte("property:\n  address: Busan\n"), 0o644))

	out, err := local.New(fs, local.DefaultConfig()).Collect(context.Background(), "p")
	require.NoError(t, err)
	assert.False(t, out.Has("documents"))
	assert.False(t, out.Has("auction_info"))
}

func TestAssess_Grades(t *testing.T) {
	a := local.New(afero.NewMemMapFs(), local.DefaultConfig())
	ctx := context.Background()

	low, err := a.Assess(ctx,
		state.Payload{"risk_score": 0.0},
		state.Payload{"discount": 0.0},
		state.Payload{"score": 85.0},
	)
	require.NoError(t, err)
	assert.Equal(t, "A", low["risk_grade"])

	high, err := a.Assess(ctx,
		state.Payload{"risk_score": 100.0},
		state.Payload{"discount": 0.3},
		state.Payload{"score": 50.0},
	)
	require.NoError(t, err)
	assert.Equal(t, "D", high["risk_grade"])
}

func TestValuate_RequiresAppraisal(t *testing.T) {
	a := local.New(afero.NewMemMapFs(), local.DefaultConfig())

	_, err := a.Valuate(context.Background(), state.Payload{"address": "x"}, nil)
	assert.Equal(t, caseflow.KindPermanentInput, caseflow.KindOf(err))

	out, err := a.Valuate(context.Background(),
		state.Payload{"appraisal_value": 1000},
		state.Payload{"risky_rights": []any{"lien"}},
	)
	require.NoError(t, err)
	assert.Equal(t, 900.0, out["estimated_value"])
}

func TestGenerate_WritesReport(t *testing.T) {
	fs := afero.NewMemMapFs()
	a := local.New(fs, local.DefaultConfig())

	out, err := a.Generate(context.Background(), "2024-0042", map[string]state.Payload{
		"risk": {"risk_grade": "B"},
	})
	require.NoError(t, err)
	assert.Equal(t, "reports/2024-0042.md", out["report_path"])

	raw, err := afero.ReadFile(fs, "reports/2024-0042.md")
	require.NoError(t, err)
	assert.Contains(t, string(raw), "- risk_grade: B")
	assert.Contains(t, string(raw), "## red_team\n\nunavailable")
}
