package audithook

import (
	"context"
	"fmt"
	"log/slog"
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

// Recorder is the interface audit backends implement.
type Recorder interface {
	// Record persists a fully-formed audit event.
	Record(ctx context.Context, event *AuditEvent) error
}

// AuditEvent is one entry in the audit trail.
type AuditEvent struct {
	Action   string `json:"action"`
	Resource string `json:"resource"`
	Category string `json:"category"`

	ResourceID string         `json:"resource_id,omitempty"`
	Metadata   map[string]any `json:"metadata,omitempty"`
	Outcome    string         `json:"outcome"`
	Severity   string         `json:"severity"`
	Reason     string         `json:"reason,omitempty"`
}

// RecorderFunc is an adapter to use a plain function as a Recorder.
type RecorderFunc func(ctx context.Context, event *AuditEvent) error

func (f RecorderFunc) Record(ctx context.Context, event *AuditEvent) error {
	return f(ctx, event)
}

// SlogRecorder writes audit events to logger at a level matching their
// severity.
func SlogRecorder(logger *slog.Logger) Recorder {
	return RecorderFunc(func(ctx context.Context, evt *AuditEvent) error {
		level := slog.LevelInfo
		switch evt.Severity {
		case SeverityWarning:
			level = slog.LevelWarn
		case SeverityCritical:
			level = slog.LevelError
		}
		attrs := []slog.Attr{
			slog.String("action", evt.Action),
			slog.String("case_id", evt.ResourceID),
			slog.String("outcome", evt.Outcome),
		}
		if evt.Reason != "" {
			attrs = append(attrs, slog.String("reason", evt.Reason))
		}
		for k, v := range evt.Metadata {
			if k != "error" {
				attrs = append(attrs, slog.Any(k, v))
			}
		}
		logger.LogAttrs(ctx, level, "audit", attrs...)
		return nil
	})
}

// Severity constants.
const (
	SeverityInfo     = "info"
	SeverityWarning  = "warning"
	SeverityCritical = "critical"
)

// Outcome constants.
const (
	OutcomeSuccess = "success"
	OutcomeFailure = "failure"
)

// Extension bridges lifecycle events to an audit trail backend.
type Extension struct {
	recorder Recorder
	enabled  map[string]bool // nil = all enabled
	logger   *slog.Logger
}

// New creates an Extension that emits audit events through the provided Recorder.
func New(r Recorder, opts ...Option) *Extension {
	e := &Extension{
		recorder: r,
		logger:   slog.Default(),
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// Name implements ext.Extension.
func (e *Extension) Name() string { return "audit-hook" }

// ── Run lifecycle hooks ─────────────────────────────

// OnRunStarted implements ext.RunStarted.
func (e *Extension) OnRunStarted(ctx context.Context, st *state.WorkflowState, resumed bool) error {
	return e.record(ctx, ActionRunStarted, SeverityInfo, OutcomeSuccess,
		st.CaseID, CategoryRun, nil,
		"resumed", resumed,
		"next_stage", st.NextStage,
	)
}

// OnRunCompleted implements ext.RunCompleted.
func (e *Extension) OnRunCompleted(ctx context.Context, st *state.WorkflowState, elapsed time.Duration) error {
	return e.record(ctx, ActionRunCompleted, SeverityInfo, OutcomeSuccess,
		st.CaseID, CategoryRun, nil,
		"elapsed_ms", elapsed.Milliseconds(),
		"errors", len(st.Errors),
	)
}

// OnRunFailed implements ext.RunFailed.
func (e *Extension) OnRunFailed(ctx context.Context, st *state.WorkflowState, runErr error) error {
	return e.record(ctx, ActionRunFailed, SeverityCritical, OutcomeFailure,
		st.CaseID, CategoryRun, runErr,
		"current_stage", st.CurrentStage,
	)
}

// OnRunPaused implements ext.RunPaused.
func (e *Extension) OnRunPaused(ctx context.Context, st *state.WorkflowState) error {
	return e.record(ctx, ActionRunPaused, SeverityWarning, OutcomeSuccess,
		st.CaseID, CategoryRun, nil,
		"next_stage", st.NextStage,
	)
}

// ── Stage lifecycle hooks ───────────────────────────

// OnStageCompleted implements ext.StageCompleted.
func (e *Extension) OnStageCompleted(ctx context.Context, caseID, stage string, elapsed time.Duration) error {
	return e.record(ctx, ActionStageCompleted, SeverityInfo, OutcomeSuccess,
		caseID, CategoryStage, nil,
		"stage", stage,
		"elapsed_ms", elapsed.Milliseconds(),
	)
}

// OnStageFailed implements ext.StageFailed.
func (e *Extension) OnStageFailed(ctx context.Context, caseID, stage string, stageErr error, fatal bool) error {
	severity := SeverityWarning
	if fatal {
		severity = SeverityCritical
	}
	return e.record(ctx, ActionStageFailed, severity, OutcomeFailure,
		caseID, CategoryStage, stageErr,
		"stage", stage,
		"fatal", fatal,
	)
}

// OnStageRetrying implements ext.StageRetrying.
func (e *Extension) OnStageRetrying(ctx context.Context, caseID, stage string, attempt int, delay time.Duration) error {
	return e.record(ctx, ActionStageRetrying, SeverityWarning, OutcomeFailure,
		caseID, CategoryStage, nil,
		"stage", stage,
		"attempt", attempt,
		"delay_ms", delay.Milliseconds(),
	)
}

// ── Internal helpers ────────────────────────────────

// record builds and sends an audit event if the action is enabled.
// The kvPairs argument is a list of key-value pairs added to Metadata.
func (e *Extension) record(
	ctx context.Context,
	action, severity, outcome string,
	caseID, category string,
	err error,
	kvPairs ...any,
) error {
	if e.enabled != nil && !e.enabled[action] {
		return nil
	}

	meta := make(map[string]any, len(kvPairs)/2+1)
	for i := 0; i+1 < len(kvPairs); i += 2 {
		key, ok := kvPairs[i].(string)
		if !ok {
			key = fmt.Sprintf("%v", kvPairs[i])
		}
		meta[key] = kvPairs[i+1]
	}

	var reason string
	if err != nil {
		reason = err.Error()
		meta["error"] = err.Error()
	}

	evt := &AuditEvent{
		Action:     action,
		Resource:   ResourceCase,
		Category:   category,
		ResourceID: caseID,
		Metadata:   meta,
		Outcome:    outcome,
		Severity:   severity,
		Reason:     reason,
	}

	if recErr := e.recorder.Record(ctx, evt); recErr != nil {
		e.logger.Warn("audit_hook: failed to record audit event",
			"action", action,
			"case_id", caseID,
			"error", recErr,
		)
	}
	return nil
}
