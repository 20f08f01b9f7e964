// Package ext defines the extension system for caseflow.
//
// # Implementing an Extension
//
//	type Notifier struct{}
//
//	func (n *Notifier) Name() string { return "notifier" }
//
//	func (n *Notifier) OnRunFailed(ctx context.Context, st *state.WorkflowState, err error) error {
//	    return page(ctx, st.CaseID, err)
//	}
//
// # Run Hooks
//
//   - [RunStarted]: the driver entered the loop (fresh or resumed)
//   - [RunCompleted]: the terminal node was reached
//   - [RunFailed]: a fatal stage or routing failure ended the run
//   - [RunPaused]: a cancelled run was checkpointed as paused
//
// # Stage Hooks
//
//   - [StageCompleted]: a stage produced output
//   - [StageFailed]: a stage failed after retries
//   - [StageRetrying]: an attempt failed and will be retried
//
// The [Registry] fans out each event to every registered extension that
// implements the corresponding hook interface.
package ext
