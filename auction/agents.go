package auction

import (
	"context"

	"github.com/xraph/caseflow/state"
)

// Collector fetches the raw case file: documents, property and auction
// details.
type Collector interface {
	Collect(ctx context.Context, caseID string) (state.Payload, error)
}

// RightsAnalyzer analyses registered rights over the collected documents.
type RightsAnalyzer interface {
	Analyze(ctx context.Context, caseID string, documents []any) (state.Payload, error)
}

// LocationAnalyzer scores the property's surroundings.
type LocationAnalyzer interface {
	Analyze(ctx context.Context, address, propertyType string) (state.Payload, error)
}

// Valuator estimates the property's market value.
type Valuator interface {
	Valuate(ctx context.Context, property, rights state.Payload) (state.Payload, error)
}

// RiskAssessor grades the case. Its output carries a "risk_grade" key.
type RiskAssessor interface {
	Assess(ctx context.Context, rights, valuation, location state.Payload) (state.Payload, error)
}

// BidStrategist drafts bid scenarios from the analysis so far.
type BidStrategist interface {
	Strategy(ctx context.Context, valuation, rights, risk state.Payload, settings map[string]any) (state.Payload, error)
}

// RedTeam challenges the strategy of high-risk cases.
type RedTeam interface {
	Review(ctx context.Context, rights, valuation, risk, strategy state.Payload) (state.Payload, error)
}

// Reporter renders the final report from every usable stage output.
type Reporter interface {
	Generate(ctx context.Context, caseID string, outputs map[string]state.Payload) (state.Payload, error)
}

// Agents bundles the collaborators the pipeline calls into. Every field
// is required.
type Agents struct {
	Collector Collector
	Rights    RightsAnalyzer
	Location  LocationAnalyzer
	Valuator  Valuator
	Risk      RiskAssessor
	Strategy  BidStrategist
	RedTeam   RedTeam
	Reporter  Reporter
}

// CollectorFunc adapts a function to Collector.
type CollectorFunc func(ctx context.Context, caseID string) (state.Payload, error)

func (f CollectorFunc) Collect(ctx context.Context, caseID string) (state.Payload, error) {
	return f(ctx, caseID)
}

// RightsFunc adapts a function to RightsAnalyzer.
type RightsFunc func(ctx context.Context, caseID string, documents []any) (state.Payload, error)

func (f RightsFunc) Analyze(ctx context.Context, caseID string, documents []any) (state.Payload, error) {
	return f(ctx, caseID, documents)
}

// LocationFunc adapts a function to LocationAnalyzer.
type LocationFunc func(ctx context.Context, address, propertyType string) (state.Payload, error)

func (f LocationFunc) Analyze(ctx context.Context, address, propertyType string) (state.Payload, error) {
	return f(ctx, address, propertyType)
}

// ValuatorFunc adapts a function to Valuator.
type ValuatorFunc func(ctx context.Context, property, rights state.Payload) (state.Payload, error)

func (f ValuatorFunc) Valuate(ctx context.Context, property, rights state.Payload) (state.Payload, error) {
	return f(ctx, property, rights)
}

// RiskFunc adapts a function to RiskAssessor.
type RiskFunc func(ctx context.Context, rights, valuation, location state.Payload) (state.Payload, error)

func (f RiskFunc) Assess(ctx context.Context, rights, valuation, location state.Payload) (state.Payload, error) {
	return f(ctx, rights, valuation, location)
}

// StrategyFunc adapts a function to BidStrategist.
type StrategyFunc func(ctx context.Context, valuation, rights, risk state.Payload, settings map[string]any) (state.Payload, error)

func (f StrategyFunc) Strategy(ctx context.Context, valuation, rights, risk state.Payload, settings map[string]any) (state.Payload, error) {
	return f(ctx, valuation, rights, risk, settings)
}

// RedTeamFunc adapts a function to RedTeam.
type RedTeamFunc func(ctx context.Context, rights, valuation, risk, strategy state.Payload) (state.Payload, error)

func (f RedTeamFunc) Review(ctx context.Context, rights, valuation, risk, strategy state.Payload) (state.Payload, error) {
	return f(ctx, rights, valuation, risk, strategy)
}

// ReporterFunc adapts a function to Reporter.
type ReporterFunc func(ctx context.Context, caseID string, outputs map[string]state.Payload) (state.Payload, error)

func (f ReporterFunc) Generate(ctx context.Context, caseID string, outputs map[string]state.Payload) (state.Payload, error) {
	return f(ctx, caseID, outputs)
}
