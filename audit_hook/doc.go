// Package audithook is a caseflow extension that bridges run and stage
// lifecycle events to an audit trail backend.
//
// Every hook emits a structured event through the [Recorder] interface.
// Severity follows the outcome: info for normal progress, warning for
// retries, tolerated stage failures and pauses, critical for fatal stage
// failures and failed runs. [SlogRecorder] writes events to a structured
// logger; other backends plug in through [RecorderFunc].
//
// # Selective filtering
//
//	audithook.New(recorder,
//	    audithook.WithActions(
//	        audithook.ActionStageFailed,
//	        audithook.ActionRunFailed,
//	    ),
//	)
package audithook
