// Package router holds the pure functions that choose the next graph node
// from a resolved WorkflowState. Routers never mutate state; the driver
// applies their decisions.
package router

import (
	"fmt"
	"slices"
	"strings"

	"github.com/xraph/caseflow"
	"github.com/xraph/caseflow/state"
)

// Terminal is the pseudo-node that ends a run successfully.
const Terminal = "__end__"

// Decision is a router's verdict.
type Decision struct {
	// Next is the node to run next, or Terminal.
	Next string

	// Recollect marks a loop back to the data collection stage. The driver
	// records Reason in the error log and bumps the re-collection counter.
	Recollect bool

	// Fail ends the run. Reason explains why.
	Fail bool

	// Kind classifies a Fail decision. Empty means routing_ambiguous.
	Kind caseflow.Kind

	Reason string
}

// Func computes the next node from the current state.
type Func func(st *state.WorkflowState) Decision

// Always returns a router with one unconditional edge.
func Always(next string) Func {
	return func(*state.WorkflowState) Decision {
		return Decision{Next: next}
	}
}

// Completeness routes on the presence of required keys in stage's output.
// Missing keys send the pipeline back to stage while the re-collection
// counter is below maxRecollect, and fail it afterwards. A missing or
// sentinel output is ambiguous and fails immediately.
func Completeness(stage, next string, required []string, maxRecollect int) Func {
	return func(st *state.WorkflowState) Decision {
		out, ok := st.Output(stage)
		if !ok || state.IsSentinel(out) {
			return Decision{Fail: true, Reason: fmt.Sprintf("no usable output from %s to check completeness", stage)}
		}

		var missing []string
		for _, key := range required {
			if !out.Has(key) {
				missing = append(missing, key)
			}
		}
		if len(missing) == 0 {
			return Decision{Next: next}
		}

		reason := "missing required data: " + strings.Join(missing, ", ")
		if st.CollectRetries < maxRecollect {
			return Decision{Next: stage, Recollect: true, Reason: reason}
		}
		return Decision{Fail: true, Kind: caseflow.KindPermanentInput, Reason: reason}
	}
}

// RiskGate sends high-risk cases, or cases whose input_config sets
// forceKey, to review and everything else to skip. The grade is read
// from gradeKey in riskStage's output. A forced review wins over the
// grade. A sentinel risk output (the risk stage failed and was tolerated)
// routes to review; a missing output or grade is ambiguous and fails.
func RiskGate(riskStage, gradeKey string, high []string, forceKey, review, skip string) Func {
	return func(st *state.WorkflowState) Decision {
		if forceKey != "" && st.InputBool(forceKey) {
			return Decision{Next: review, Reason: forceKey}
		}

		out, ok := st.Output(riskStage)
		if ok && state.IsSentinel(out) {
			return Decision{Next: review, Reason: "risk grade unavailable from " + riskStage}
		}
		if !ok || !out.Has(gradeKey) {
			return Decision{Fail: true, Reason: fmt.Sprintf("risk grade unavailable from %s", riskStage)}
		}

		grade := strings.ToUpper(out.String(gradeKey))
		if slices.Contains(high, grade) {
			return Decision{Next: review, Reason: "high risk grade " + grade}
		}
		return Decision{Next: skip}
	}
}
