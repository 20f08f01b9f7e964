package audithook

// Audit event actions. Each constant corresponds to one ext lifecycle hook
// and becomes the Action field of the audit event.
const (
	ActionRunStarted     = "run.started"
	ActionRunCompleted   = "run.completed"
	ActionRunFailed      = "run.failed"
	ActionRunPaused      = "run.paused"
	ActionStageCompleted = "stage.completed"
	ActionStageFailed    = "stage.failed"
	ActionStageRetrying  = "stage.retrying"
)

// Audit event categories group related actions.
const (
	CategoryRun   = "caseflow.run"
	CategoryStage = "caseflow.stage"
)

// ResourceCase is the Resource of every event; ResourceID is the case ID.
const ResourceCase = "auction_case"

// AllActions returns every action this extension can emit.
func AllActions() []string {
	return []string{
		ActionRunStarted,
		ActionRunCompleted,
		ActionRunFailed,
		ActionRunPaused,
		ActionStageCompleted,
		ActionStageFailed,
		ActionStageRetrying,
	}
}
