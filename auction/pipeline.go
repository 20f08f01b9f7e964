package auction

import (
	"context"
	"errors"
	"fmt"

	"github.com/xraph/caseflow"
	"github.com/xraph/caseflow/graph"
	"github.com/xraph/caseflow/router"
	"github.com/xraph/caseflow/stage"
	"github.com/xraph/caseflow/state"
)

// Stage and group names.
const (
	StageCollect   = "collect"
	StageRights    = "rights"
	StageLocation  = "location"
	StageValuation = "valuation"
	StageRisk      = "risk"
	StageStrategy  = "strategy"
	StageRedTeam   = "red_team"
	StageReport    = "report"

	GroupAnalysis = "analysis"
)

const (
	// RiskGradeKey is read from the risk output by the review gate.
	RiskGradeKey = "risk_grade"

	// ForceReviewKey in input_config sends any case to red-team review.
	ForceReviewKey = "force_red_team_review"

	// SettingsKey holds the user's bid settings inside input_config.
	SettingsKey = "user_settings"
)

var (
	// RequiredCollectKeys must all be present in the collect output
	// before the case moves on to analysis.
	RequiredCollectKeys = []string{"documents", "property", "auction_info"}

	// HighRiskGrades route to red-team review.
	HighRiskGrades = []string{"C", "D"}
)

// ErrMissingAgent is returned by Register when Agents is incomplete.
var ErrMissingAgent = errors.New("auction: missing agent")

// Register adds every pipeline stage to reg. collect and report are
// fatal; the rest are tolerated.
func Register(reg *stage.Registry, a Agents) error {
	type entry struct {
		name  string
		set   bool
		fn    stage.Func
		fatal bool
	}
	entries := []entry{
		{StageCollect, a.Collector != nil, collect(a.Collector), true},
		{StageRights, a.Rights != nil, rights(a.Rights), false},
		{StageLocation, a.Location != nil, location(a.Location), false},
		{StageValuation, a.Valuator != nil, valuation(a.Valuator), false},
		{StageRisk, a.Risk != nil, risk(a.Risk), false},
		{StageStrategy, a.Strategy != nil, strategy(a.Strategy), false},
		{StageRedTeam, a.RedTeam != nil, redTeam(a.RedTeam), false},
		{StageReport, a.Reporter != nil, report(a.Reporter), true},
	}
	for _, e := range entries {
		if !e.set {
			return fmt.Errorf("%w: %s", ErrMissingAgent, e.name)
		}
		if err := reg.Register(e.name, e.fn, e.fatal); err != nil {
			return err
		}
	}
	return nil
}

// Routes returns the pipeline's routing table. maxRecollect caps how many
// times an incomplete collection is sent back to the collector.
func Routes(maxRecollect int) map[string]router.Func {
	return map[string]router.Func{
		StageCollect:   router.Completeness(StageCollect, GroupAnalysis, RequiredCollectKeys, maxRecollect),
		GroupAnalysis:  router.Always(StageValuation),
		StageValuation: router.Always(StageRisk),
		StageRisk:      router.Always(StageStrategy),
		StageStrategy:  router.RiskGate(StageRisk, RiskGradeKey, HighRiskGrades, ForceReviewKey, StageRedTeam, StageReport),
		StageRedTeam:   router.Always(StageReport),
		StageReport:    router.Always(router.Terminal),
	}
}

// RouteTargets lists the successors each route in Routes may pick.
func RouteTargets() map[string][]string {
	return map[string][]string{
		StageCollect:   {StageCollect, GroupAnalysis},
		GroupAnalysis:  {StageValuation},
		StageValuation: {StageRisk},
		StageRisk:      {StageStrategy},
		StageStrategy:  {StageRedTeam, StageReport},
		StageRedTeam:   {StageReport},
		StageReport:    {router.Terminal},
	}
}

// Graph builds the default pipeline over reg, which must already hold the
// stages added by Register.
func Graph(reg *stage.Registry, cfg caseflow.Config) (*graph.Graph, error) {
	b := graph.NewBuilder(StageCollect).
		Stage(StageCollect).
		Parallel(GroupAnalysis, StageRights, StageLocation).
		Stage(StageValuation).
		Stage(StageRisk).
		Stage(StageStrategy).
		Stage(StageRedTeam).
		Stage(StageReport)
	targets := RouteTargets()
	for from, fn := range Routes(cfg.MaxRecollect) {
		b.Route(from, fn, targets[from]...)
	}
	return b.Build(reg)
}

// upstream returns a usable output of stage, or nil when the stage has
// not run or failed tolerably.
func upstream(st *state.WorkflowState, stage string) state.Payload {
	out, ok := st.Output(stage)
	if !ok || state.IsSentinel(out) {
		return nil
	}
	return out
}

func collected(st *state.WorkflowState) (state.Payload, error) {
	out := upstream(st, StageCollect)
	if out == nil {
		return nil, caseflow.PermanentInput(errors.New("no collected data"))
	}
	return out, nil
}

func collect(c Collector) stage.Func {
	return func(ctx context.Context, st *state.WorkflowState) (stage.Result, error) {
		out, err := c.Collect(ctx, st.CaseID)
		return stage.Result{Output: out}, err
	}
}

func rights(r RightsAnalyzer) stage.Func {
	return func(ctx context.Context, st *state.WorkflowState) (stage.Result, error) {
		data, err := collected(st)
		if err != nil {
			return stage.Result{}, err
		}
		docs, ok := data["documents"].([]any)
		if !ok {
			return stage.Result{}, caseflow.PermanentInput(errors.New("collected data has no documents list"))
		}
		out, err := r.Analyze(ctx, st.CaseID, docs)
		return stage.Result{Output: out}, err
	}
}

func location(l LocationAnalyzer) stage.Func {
	return func(ctx context.Context, st *state.WorkflowState) (stage.Result, error) {
		data, err := collected(st)
		if err != nil {
			return stage.Result{}, err
		}
		property := data.Map("property")
		address := property.String("address")
		if address == "" {
			return stage.Result{}, caseflow.PermanentInput(errors.New("collected property has no address"))
		}
		out, err := l.Analyze(ctx, address, property.String("type"))
		return stage.Result{Output: out}, err
	}
}

func valuation(v Valuator) stage.Func {
	return func(ctx context.Context, st *state.WorkflowState) (stage.Result, error) {
		data, err := collected(st)
		if err != nil {
			return stage.Result{}, err
		}
		out, err := v.Valuate(ctx, data.Map("property"), upstream(st, StageRights))
		return stage.Result{Output: out}, err
	}
}

func risk(r RiskAssessor) stage.Func {
	return func(ctx context.Context, st *state.WorkflowState) (stage.Result, error) {
		out, err := r.Assess(ctx,
			upstream(st, StageRights),
			upstream(st, StageValuation),
			upstream(st, StageLocation),
		)
		return stage.Result{Output: out}, err
	}
}

func strategy(s BidStrategist) stage.Func {
	return func(ctx context.Context, st *state.WorkflowState) (stage.Result, error) {
		settings, _ := st.InputConfig[SettingsKey].(map[string]any)
		out, err := s.Strategy(ctx,
			upstream(st, StageValuation),
			upstream(st, StageRights),
			upstream(st, StageRisk),
			settings,
		)
		return stage.Result{Output: out}, err
	}
}

func redTeam(r RedTeam) stage.Func {
	return func(ctx context.Context, st *state.WorkflowState) (stage.Result, error) {
		out, err := r.Review(ctx,
			upstream(st, StageRights),
			upstream(st, StageValuation),
			upstream(st, StageRisk),
			upstream(st, StageStrategy),
		)
		return stage.Result{Output: out}, err
	}
}

func report(r Reporter) stage.Func {
	return func(ctx context.Context, st *state.WorkflowState) (stage.Result, error) {
		outputs := make(map[string]state.Payload, len(st.StageOutputs))
		for name := range st.StageOutputs {
			if p := upstream(st, name); p != nil {
				outputs[name] = p
			}
		}
		out, err := r.Generate(ctx, st.CaseID, outputs)
		return stage.Result{Output: out}, err
	}
}
