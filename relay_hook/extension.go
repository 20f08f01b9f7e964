package relayhook

import (
	"context"
	"time"

	"github.com/xraph/caseflow/ext"
	"github.com/xraph/caseflow/state"
)

// Compile-time interface checks.
var (
	_ ext.Extension      = (*Extension)(nil)
	_ ext.RunStarted     = (*Extension)(nil)
	_ ext.RunCompleted   = (*Extension)(nil)
	_ ext.RunFailed      = (*Extension)(nil)
	_ ext.RunPaused      = (*Extension)(nil)
	_ ext.StageCompleted = (*Extension)(nil)
	_ ext.StageFailed    = (*Extension)(nil)
	_ ext.StageRetrying  = (*Extension)(nil)
)

// Extension forwards lifecycle events to a Sender. Send errors are
// returned to the extension registry, which logs them without affecting
// the run.
type Extension struct {
	sender   Sender
	enabled  map[string]bool        // nil = all enabled
	payloads map[string]PayloadFunc // custom payload builders
}

// New creates an Extension that emits lifecycle events through sender.
func New(sender Sender, opts ...Option) *Extension {
	h := &Extension{sender: sender}
	for _, opt := range opts {
		opt(h)
	}
	return h
}

// Name implements ext.Extension.
func (h *Extension) Name() string { return "relay-hook" }

// ── Run lifecycle hooks ─────────────────────────────

// OnRunStarted implements ext.RunStarted.
func (h *Extension) OnRunStarted(ctx context.Context, st *state.WorkflowState, resumed bool) error {
	return h.send(ctx, EventRunStarted, st.CaseID, &runStartedPayload{
		runPayload: *newRunPayload(st),
		Resumed:    resumed,
	})
}

// OnRunCompleted implements ext.RunCompleted.
func (h *Extension) OnRunCompleted(ctx context.Context, st *state.WorkflowState, elapsed time.Duration) error {
	return h.send(ctx, EventRunCompleted, st.CaseID, &runCompletedPayload{
		runPayload: *newRunPayload(st),
		ElapsedMs:  elapsed.Milliseconds(),
	})
}

// OnRunFailed implements ext.RunFailed.
func (h *Extension) OnRunFailed(ctx context.Context, st *state.WorkflowState, runErr error) error {
	return h.send(ctx, EventRunFailed, st.CaseID, &runFailedPayload{
		runPayload: *newRunPayload(st),
		Error:      runErr.Error(),
	})
}

// OnRunPaused implements ext.RunPaused.
func (h *Extension) OnRunPaused(ctx context.Context, st *state.WorkflowState) error {
	return h.send(ctx, EventRunPaused, st.CaseID, newRunPayload(st))
}

// ── Stage lifecycle hooks ───────────────────────────

// OnStageCompleted implements ext.StageCompleted.
func (h *Extension) OnStageCompleted(ctx context.Context, caseID, stage string, elapsed time.Duration) error {
	return h.send(ctx, EventStageCompleted, caseID, &stagePayload{
		CaseID:    caseID,
		Stage:     stage,
		ElapsedMs: elapsed.Milliseconds(),
	})
}

// OnStageFailed implements ext.StageFailed.
func (h *Extension) OnStageFailed(ctx context.Context, caseID, stage string, stageErr error, fatal bool) error {
	return h.send(ctx, EventStageFailed, caseID, &stagePayload{
		CaseID: caseID,
		Stage:  stage,
		Error:  stageErr.Error(),
		Fatal:  fatal,
	})
}

// OnStageRetrying implements ext.StageRetrying.
func (h *Extension) OnStageRetrying(ctx context.Context, caseID, stage string, attempt int, delay time.Duration) error {
	return h.send(ctx, EventStageRetrying, caseID, &stagePayload{
		CaseID:  caseID,
		Stage:   stage,
		Attempt: attempt,
		DelayMs: delay.Milliseconds(),
	})
}

// ── Internal helpers ────────────────────────────────

// send emits an event through the sender if the event type is enabled.
func (h *Extension) send(ctx context.Context, eventType, caseID string, defaultData any) error {
	if h.enabled != nil && !h.enabled[eventType] {
		return nil
	}

	data := defaultData
	if fn, ok := h.payloads[eventType]; ok {
		custom, err := fn(defaultData)
		if err != nil {
			return err
		}
		data = custom
	}

	return h.sender.Send(ctx, &Event{
		Type:      eventType,
		CaseID:    caseID,
		Timestamp: time.Now().UTC(),
		Data:      data,
	})
}

// ── Default payload types ───────────────────────────

type runPayload struct {
	CaseID       string `json:"case_id"`
	Status       string `json:"status"`
	CurrentStage string `json:"current_stage,omitempty"`
	NextStage    string `json:"next_stage,omitempty"`
	Errors       int    `json:"errors"`
}

func newRunPayload(st *state.WorkflowState) *runPayload {
	return &runPayload{
		CaseID:       st.CaseID,
		Status:       string(st.Status),
		CurrentStage: st.CurrentStage,
		NextStage:    st.NextStage,
		Errors:       len(st.Errors),
	}
}

type runStartedPayload struct {
	runPayload
	Resumed bool `json:"resumed"`
}

type runCompletedPayload struct {
	runPayload
	ElapsedMs int64 `json:"elapsed_ms"`
}

type runFailedPayload struct {
	runPayload
	Error string `json:"error"`
}

type stagePayload struct {
	CaseID    string `json:"case_id"`
	Stage     string `json:"stage"`
	ElapsedMs int64  `json:"elapsed_ms,omitempty"`
	Error     string `json:"error,omitempty"`
	Fatal     bool   `json:"fatal,omitempty"`
	Attempt   int    `json:"attempt,omitempty"`
	DelayMs   int64  `json:"delay_ms,omitempty"`
}
