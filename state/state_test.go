package state_test

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/xraph/caseflow"
	"github.com/xraph/caseflow/state"
)

func TestNew(t *testing.T) {
	st := state.New("2024-1", map[string]any{"k": "v"}, "collect")

	assert.Equal(t, state.SchemaVersion, st.SchemaVersion)
	assert.Equal(t, state.StatusRunning, st.Status)
	assert.Equal(t, "collect", st.NextStage)
	assert.Empty(t, st.CurrentStage)
	assert.NotNil(t, st.Errors)
	assert.NotNil(t, st.StageOutputs)
}

func TestCloneIsDeep(t *testing.T) {
	st := state.New("2024-1", map[string]any{"user_settings": map[string]any{"budget": 10}}, "collect")
	st.SetOutput("collect", state.Payload{
		"property": map[string]any{"address": "Seoul"},
		"documents": []any{"a", "b"},
	})
	st.AppendError("collect", "missing", caseflow.KindPermanentInput)

	c := st.Clone()
	c.StageOutputs["collect"]["property"].(map[string]any)["address"] = "Busan"
	c.StageOutputs["collect"]["documents"].([]any)[0] = "z"
	c.InputConfig["user_settings"].(map[string]any)["budget"] = 99
	c.Errors[0].Message = "changed"
	c.StageOutputs["rights"] = state.Payload{}

	out, _ := st.Output("collect")
	assert.Equal(t, "Seoul", out.Map("property")["address"])
	assert.Equal(t, "a", out["documents"].([]any)[0])
	assert.Equal(t, 10, st.InputConfig["user_settings"].(map[string]any)["budget"])
	assert.Equal(t, "missing", st.Errors[0].Message)
	_, ok := st.Output("rights")
	assert.False(t, ok)
}

func TestSentinel(t *testing.T) {
	p := state.Sentinel("timeout")
	assert.True(t, state.IsSentinel(p))
	assert.Equal(t, "timeout", p.String("error"))

	assert.False(t, state.IsSentinel(nil))
	assert.False(t, state.IsSentinel(state.Payload{"status": "failed"}))
	assert.False(t, state.IsSentinel(state.Payload{"status": "ok", "error": nil}))
}

func TestMarkTolerated(t *testing.T) {
	st := state.New("c", nil, "rights")
	st.MarkTolerated("rights", "upstream down")

	out, ok := st.Output("rights")
	require.True(t, ok)
	assert.True(t, state.IsSentinel(out))
	require.Len(t, st.Errors, 1)
	assert.Equal(t, caseflow.KindToleratedStage, st.Errors[0].Kind)
	assert.Len(t, st.ErrorsFor("rights"), 1)
	assert.Empty(t, st.ErrorsFor("location"))
}

func TestAdvanceAndFinish(t *testing.T) {
	st := state.New("c", nil, "collect")
	st.Enter("collect")
	st.RetryCount = 2
	st.Advance("analysis")
	assert.Equal(t, 2, st.RetryCount)
	assert.Equal(t, "analysis", st.NextStage)

	st.Enter("analysis")
	assert.Equal(t, 0, st.RetryCount)
	assert.Equal(t, "analysis", st.CurrentStage)

	st.Finish(state.StatusPaused)
	assert.Equal(t, "analysis", st.NextStage)
	assert.False(t, st.Status.IsTerminal())

	st.Finish(state.StatusCompleted)
	assert.Empty(t, st.NextStage)
	assert.True(t, st.Status.IsTerminal())
}

func TestInputBool(t *testing.T) {
	st := state.New("c", map[string]any{
		"user_settings": map[string]any{"force_red_team_review": true},
	}, "collect")
	assert.True(t, st.InputBool("force_red_team_review"))
	assert.False(t, st.InputBool("missing"))

	st = state.New("c", map[string]any{"force_red_team_review": true}, "collect")
	assert.True(t, st.InputBool("force_red_team_review"))
}
