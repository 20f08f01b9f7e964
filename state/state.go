// Package state defines the per-case record that flows through the stage
// graph: inputs, accumulated stage outputs, the append-only error log,
// position in the graph and counters.
//
// Stage functions receive a deep copy produced by Clone. Only the
// orchestrator's driver mutates the live record.
package state

import (
	"time"

	"github.com/xraph/caseflow"
)

// SchemaVersion is stamped on every new WorkflowState and persisted with
// each checkpoint.
const SchemaVersion = 1

// Status is the lifecycle position of a case run.
type Status string

const (
	StatusRunning   Status = "running"
	StatusCompleted Status = "completed"
	StatusFailed    Status = "failed"
	StatusPaused    Status = "paused"
)

// IsTerminal reports whether the status can no longer change.
func (s Status) IsTerminal() bool {
	return s == StatusCompleted || s == StatusFailed
}

// StageError is one entry in the append-only error log.
type StageError struct {
	Stage   string        `json:"stage" msgpack:"stage" bson:"stage"`
	Message string        `json:"message" msgpack:"message" bson:"message"`
	Kind    caseflow.Kind `json:"kind" msgpack:"kind" bson:"kind"`
	At      time.Time     `json:"at" msgpack:"at" bson:"at"`
}

// WorkflowState is the full record of one case's progress.
type WorkflowState struct {
	SchemaVersion  int                `json:"schema_version" msgpack:"schema_version" bson:"schema_version"`
	CaseID         string             `json:"case_id" msgpack:"case_id" bson:"case_id"`
	InputConfig    map[string]any     `json:"input_config" msgpack:"input_config" bson:"input_config"`
	StageOutputs   map[string]Payload `json:"stage_outputs" msgpack:"stage_outputs" bson:"stage_outputs"`
	Errors         []StageError       `json:"errors" msgpack:"errors" bson:"errors"`
	CurrentStage   string             `json:"current_stage" msgpack:"current_stage" bson:"current_stage"`
	NextStage      string             `json:"next_stage" msgpack:"next_stage" bson:"next_stage"`
	Status         Status             `json:"status" msgpack:"status" bson:"status"`
	RetryCount     int                `json:"retry_count" msgpack:"retry_count" bson:"retry_count"`
	CollectRetries int                `json:"collect_retries" msgpack:"collect_retries" bson:"collect_retries"`
	CreatedAt      time.Time          `json:"created_at" msgpack:"created_at" bson:"created_at"`
	UpdatedAt      time.Time          `json:"updated_at" msgpack:"updated_at" bson:"updated_at"`
}

// New creates a running state for caseID positioned at entry.
func New(caseID string, input map[string]any, entry string) *WorkflowState {
	now := time.Now().UTC()
	return &WorkflowState{
		SchemaVersion: SchemaVersion,
		CaseID:        caseID,
		InputConfig:   cloneMap(input),
		StageOutputs:  make(map[string]Payload),
		Errors:        []StageError{},
		NextStage:     entry,
		Status:        StatusRunning,
		CreatedAt:     now,
		UpdatedAt:     now,
	}
}

// Clone returns a deep copy. Nested maps and slices inside payloads are
// copied as well, so a stage cannot reach back into the live state.
func (s *WorkflowState) Clone() *WorkflowState {
	if s == nil {
		return nil
	}
	c := *s
	c.InputConfig = cloneMap(s.InputConfig)
	c.StageOutputs = make(map[string]Payload, len(s.StageOutputs))
	for k, v := range s.StageOutputs {
		c.StageOutputs[k] = Payload(cloneMap(v))
	}
	c.Errors = append([]StageError(nil), s.Errors...)
	if c.Errors == nil {
		c.Errors = []StageError{}
	}
	return &c
}

// Output returns the payload written by stage, if any.
func (s *WorkflowState) Output(stage string) (Payload, bool) {
	p, ok := s.StageOutputs[stage]
	return p, ok
}

// SetOutput records the result of a successful stage run.
func (s *WorkflowState) SetOutput(stage string, p Payload) {
	if s.StageOutputs == nil {
		s.StageOutputs = make(map[string]Payload)
	}
	s.StageOutputs[stage] = Payload(cloneMap(p))
	s.touch()
}

// MarkTolerated writes the sentinel payload for stage and logs the failure.
func (s *WorkflowState) MarkTolerated(stage, msg string) {
	s.SetOutput(stage, Sentinel(msg))
	s.AppendError(stage, msg, caseflow.KindToleratedStage)
}

// AppendError adds an entry to the error log.
func (s *WorkflowState) AppendError(stage, msg string, kind caseflow.Kind) {
	s.Errors = append(s.Errors, StageError{
		Stage:   stage,
		Message: msg,
		Kind:    kind,
		At:      time.Now().UTC(),
	})
	s.touch()
}

// ErrorsFor returns the log entries recorded against stage.
func (s *WorkflowState) ErrorsFor(stage string) []StageError {
	var out []StageError
	for _, e := range s.Errors {
		if e.Stage == stage {
			out = append(out, e)
		}
	}
	return out
}

// Advance records the node the driver will run next.
func (s *WorkflowState) Advance(node string) {
	s.NextStage = node
	s.touch()
}

// Enter marks node as the one being attempted and resets the per-stage
// retry counter.
func (s *WorkflowState) Enter(node string) {
	s.CurrentStage = node
	s.RetryCount = 0
	s.touch()
}

// Finish sets a terminal or paused status.
func (s *WorkflowState) Finish(status Status) {
	s.Status = status
	if status.IsTerminal() {
		s.NextStage = ""
	}
	s.touch()
}

// InputBool reads a boolean flag from input_config, looking first at the
// top level and then inside "user_settings".
func (s *WorkflowState) InputBool(key string) bool {
	if v, ok := s.InputConfig[key].(bool); ok {
		return v
	}
	if settings, ok := s.InputConfig["user_settings"].(map[string]any); ok {
		if v, ok := settings[key].(bool); ok {
			return v
		}
	}
	return false
}

func (s *WorkflowState) touch() { s.UpdatedAt = time.Now().UTC() }
