// Package local provides an offline, deterministic agent set for the
// auction pipeline. Case files are YAML documents read from a filesystem;
// every analysis step is a small scoring heuristic and the report is
// rendered as Markdown next to the case files.
package local

import (
	"context"
	"errors"
	"fmt"
	"math"
	"path"
	"slices"
	"strings"

	"github.com/spf13/afero"
	"gopkg.in/yaml.v3"

	"github.com/xraph/caseflow"
	"github.com/xraph/caseflow/auction"
	"github.com/xraph/caseflow/state"
)

// Weights of the risk categories, in percent of the total score.
const (
	weightRights   = 0.40
	weightMarket   = 0.20
	weightProperty = 0.20
	weightEviction = 0.20
)

// Config controls where cases are read from and reports are written to.
type Config struct {
	// CaseDir holds one <case_id>.yaml file per case.
	CaseDir string

	// ReportDir receives <case_id>.md reports.
	ReportDir string
}

// DefaultConfig reads from ./cases and writes to ./reports.
func DefaultConfig() Config {
	return Config{CaseDir: "cases", ReportDir: "reports"}
}

var (
	_ auction.Collector     = (*Agents)(nil)
	_ auction.Valuator      = (*Agents)(nil)
	_ auction.RiskAssessor  = (*Agents)(nil)
	_ auction.BidStrategist = (*Agents)(nil)
	_ auction.RedTeam       = (*Agents)(nil)
	_ auction.Reporter      = (*Agents)(nil)
)

// Agents implements every auction collaborator on top of fs.
type Agents struct {
	fs  afero.Fs
	cfg Config
}

// New creates an agent set over fs.
func New(fs afero.Fs, cfg Config) *Agents {
	return &Agents{fs: fs, cfg: cfg}
}

// Bundle returns a with every role filled in.
func (a *Agents) Bundle() auction.Agents {
	return auction.Agents{
		Collector: a,
		Rights:    auction.RightsFunc(a.analyzeRights),
		Location:  auction.LocationFunc(a.analyzeLocation),
		Valuator:  a,
		Risk:      a,
		Strategy:  a,
		RedTeam:   a,
		Reporter:  a,
	}
}

// caseFile is the on-disk layout of a case.
type caseFile struct {
	Documents   []map[string]any `yaml:"documents"`
	Property    map[string]any   `yaml:"property"`
	AuctionInfo map[string]any   `yaml:"auction_info"`
}

// Collect reads <CaseDir>/<caseID>.yaml. Absent sections are left out of
// the payload so the completeness check can ask for them again.
func (a *Agents) Collect(_ context.Context, caseID string) (state.Payload, error) {
	if strings.ContainsAny(caseID, `/\`) || strings.Contains(caseID, "..") {
		return nil, caseflow.PermanentInput(fmt.Errorf("invalid case id %q", caseID))
	}
	name := path.Join(a.cfg.CaseDir, caseID+".yaml")
	raw, err := afero.ReadFile(a.fs, name)
	if err != nil {
		if errors.Is(err, afero.ErrFileNotFound) {
			return nil, caseflow.PermanentInput(fmt.Errorf("case %s: %w", caseID, caseflow.ErrCaseNotFound))
		}
		return nil, caseflow.Transient(fmt.Errorf("read %s: %w", name, err))
	}

	var cf caseFile
	if err := yaml.Unmarshal(raw, &cf); err != nil {
		return nil, caseflow.PermanentInput(fmt.Errorf("parse %s: %w", name, err))
	}

	out := state.Payload{}
	if cf.Documents != nil {
		docs := make([]any, len(cf.Documents))
		for i, d := range cf.Documents {
			docs[i] = d
		}
		out["documents"] = docs
	}
	if cf.Property != nil {
		out["property"] = cf.Property
	}
	if cf.AuctionInfo != nil {
		out["auction_info"] = cf.AuctionInfo
	}
	return out, nil
}

// riskyRights are right types that survive the sale or block eviction.
var riskyRights = []string{"lien", "superficies", "senior_lease", "provisional_registration", "statutory_superficies"}

func (a *Agents) analyzeRights(_ context.Context, _ string, documents []any) (state.Payload, error) {
	var (
		rights []any
		risky  []any
	)
	for _, d := range documents {
		doc, ok := d.(map[string]any)
		if !ok {
			continue
		}
		kind := state.Payload(doc).String("right")
		if kind == "" {
			continue
		}
		rights = append(rights, kind)
		if slices.Contains(riskyRights, kind) {
			risky = append(risky, kind)
		}
	}
	score := math.Min(100, float64(len(risky))*35)
	return state.Payload{
		"rights":       rights,
		"risky_rights": risky,
		"risk_score":   score,
	}, nil
}

func (a *Agents) analyzeLocation(_ context.Context, address, propertyType string) (state.Payload, error) {
	score := 50.0
	switch {
	case strings.Contains(address, "Seoul"):
		score = 85
	case strings.Contains(address, "Gyeonggi"), strings.Contains(address, "Busan"):
		score = 70
	}
	if propertyType == "land" {
		score -= 10
	}
	return state.Payload{"address": address, "type": propertyType, "score": score}, nil
}

// Valuate discounts the appraisal for every risky right found.
func (a *Agents) Valuate(_ context.Context, property, rights state.Payload) (state.Payload, error) {
	appraisal, ok := number(property["appraisal_value"])
	if !ok || appraisal <= 0 {
		return nil, caseflow.PermanentInput(errors.New("property has no appraisal_value"))
	}
	discount := 0.0
	if rights != nil {
		if risky, ok := rights["risky_rights"].([]any); ok {
			discount = math.Min(0.5, 0.1*float64(len(risky)))
		}
	}
	return state.Payload{
		"appraisal_value": appraisal,
		"estimated_value": math.Round(appraisal * (1 - discount)),
		"discount":        discount,
	}, nil
}

// Assess combines category scores into a grade from A (safe) to D.
func (a *Agents) Assess(_ context.Context, rights, valuation, location state.Payload) (state.Payload, error) {
	rightsScore := 50.0
	if rights != nil {
		rightsScore, _ = number(rights["risk_score"])
	}
	marketScore := 50.0
	if location != nil {
		if s, ok := number(location["score"]); ok {
			marketScore = 100 - s
		}
	}
	propertyScore := 50.0
	if valuation != nil {
		if d, ok := number(valuation["discount"]); ok {
			propertyScore = d * 200
		}
	}
	evictionScore := rightsScore

	total := rightsScore*weightRights + marketScore*weightMarket +
		propertyScore*weightProperty + evictionScore*weightEviction
	return state.Payload{
		auction.RiskGradeKey: grade(total),
		"total_score":        math.Round(total*10) / 10,
	}, nil
}

func grade(score float64) string {
	switch {
	case score < 25:
		return "A"
	case score < 50:
		return "B"
	case score < 70:
		return "C"
	default:
		return "D"
	}
}

// Strategy proposes conservative, recommended and aggressive bids that
// keep the target return on the estimated value.
func (a *Agents) Strategy(_ context.Context, valuation, _ state.Payload, risk state.Payload, settings map[string]any) (state.Payload, error) {
	if valuation == nil {
		return nil, caseflow.PermanentInput(errors.New("no valuation to bid against"))
	}
	value, _ := number(valuation["estimated_value"])
	roi := 0.15
	if v, ok := number(settings["target_roi"]); ok && v > 0 {
		roi = v
	}
	if risk != nil && slices.Contains(auction.HighRiskGrades, risk.String(auction.RiskGradeKey)) {
		roi += 0.05
	}
	recommended := math.Round(value / (1 + roi))
	return state.Payload{
		"recommended_bid":  recommended,
		"conservative_bid": math.Round(recommended * 0.9),
		"aggressive_bid":   math.Round(math.Min(value, recommended*1.05)),
		"target_roi":       roi,
	}, nil
}

// Review lists the weak points of the strategy.
func (a *Agents) Review(_ context.Context, rights, _, risk, strategy state.Payload) (state.Payload, error) {
	var issues []any
	if rights != nil {
		if risky, ok := rights["risky_rights"].([]any); ok {
			for _, r := range risky {
				issues = append(issues, fmt.Sprintf("right %v may survive the sale", r))
			}
		}
	}
	if strategy == nil {
		issues = append(issues, "no bid strategy to review")
	}
	if risk == nil {
		issues = append(issues, "risk grade unavailable")
	}
	if risk != nil && risk.String(auction.RiskGradeKey) == "D" {
		issues = append(issues, "grade D cases are not suitable for first-time bidders")
	}
	return state.Payload{"issues": issues, "approved": len(issues) == 0}, nil
}

// Generate writes a Markdown report to <ReportDir>/<caseID>.md.
func (a *Agents) Generate(_ context.Context, caseID string, outputs map[string]state.Payload) (state.Payload, error) {
	var b strings.Builder
	fmt.Fprintf(&b, "# Auction analysis %s\n", caseID)
	for _, name := range []string{auction.StageRights, auction.StageLocation, auction.StageValuation, auction.StageRisk, auction.StageStrategy, auction.StageRedTeam} {
		out, ok := outputs[name]
		if !ok {
			fmt.Fprintf(&b, "\n## %s\n\nunavailable\n", name)
			continue
		}
		fmt.Fprintf(&b, "\n## %s\n\n", name)
		keys := make([]string, 0, len(out))
		for k := range out {
			keys = append(keys, k)
		}
		slices.Sort(keys)
		for _, k := range keys {
			fmt.Fprintf(&b, "- %s: %v\n", k, out[k])
		}
	}

	if err := a.fs.MkdirAll(a.cfg.ReportDir, 0o755); err != nil {
		return nil, caseflow.Transient(fmt.Errorf("create report dir: %w", err))
	}
	name := path.Join(a.cfg.ReportDir, caseID+".md")
	if err := afero.WriteFile(a.fs, name, []byte(b.String()), 0o644); err != nil {
		return nil, caseflow.Transient(fmt.Errorf("write report: %w", err))
	}
	return state.Payload{"report_path": name, "sections": len(outputs)}, nil
}

func number(v any) (float64, bool) {
	switch n := v.(type) {
	case int:
		return float64(n), true
	case int8:
		return float64(n), true
	case int16:
		return float64(n), true
	case int32:
		return float64(n), true
	case int64:
		return float64(n), true
	case uint8:
		return float64(n), true
	case uint16:
		return float64(n), true
	case uint32:
		return float64(n), true
	case uint64:
		return float64(n), true
	case float32:
		return float64(n), true
	case float64:
		return n, true
	}
	return 0, false
}
