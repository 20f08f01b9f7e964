package api

import (
	"time"

	"github.com/xraph/caseflow/state"
)

// AnalyzeRequest starts an analysis.
type AnalyzeRequest struct {
	CaseID  string         `json:"case_id"`
	Options map[string]any `json:"options,omitempty"`
}

// AnalyzeResponse is the outcome of a synchronous analysis. StageOutputs
// is only populated for completed runs.
type AnalyzeResponse struct {
	CaseID       string                   `json:"case_id"`
	Status       state.Status             `json:"status"`
	StageOutputs map[string]state.Payload `json:"stage_outputs"`
	Errors       []state.StageError       `json:"errors"`
}

// AcceptedResponse acknowledges a background run.
type AcceptedResponse struct {
	RunID  string `json:"run_id"`
	CaseID string `json:"case_id"`
	Status string `json:"status"`
}

// RunStatusResponse reports the latest checkpoint of a background run.
type RunStatusResponse struct {
	RunID          string             `json:"run_id"`
	CaseID         string             `json:"case_id"`
	Status         string             `json:"status"`
	CurrentStage   string             `json:"current_stage"`
	NextStage      string             `json:"next_stage,omitempty"`
	RetryCount     int                `json:"retry_count"`
	CollectRetries int                `json:"collect_retries"`
	Active         bool               `json:"active"`
	Errors         []state.StageError `json:"errors"`
	UpdatedAt      *time.Time         `json:"updated_at,omitempty"`
}

// HealthResponse is returned by GET /health.
type HealthResponse struct {
	Status string `json:"status"`
}

// ErrorResponse is the body of every non-2xx reply.
type ErrorResponse struct {
	Error string `json:"error"`
}

// acceptedStatus is reported for runs whose first checkpoint has not been
// written yet.
const acceptedStatus = "accepted"
