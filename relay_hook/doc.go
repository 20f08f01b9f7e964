// Package relayhook forwards caseflow lifecycle events to an external
// channel. When registered as an extension, it emits typed events
// (caseflow.run.completed, caseflow.stage.failed, etc.) at every
// lifecycle point through a [Sender].
//
// Usage:
//
//	client := redis.NewClient(&redis.Options{Addr: "localhost:6379"})
//	hook := relayhook.New(relayhook.NewRedisSender(client, "caseflow:events"))
//	orchestrator.New(reg, g, store, orchestrator.WithExtension(hook))
//
// To restrict which events are emitted:
//
//	hook := relayhook.New(sender,
//	    relayhook.WithEvents(
//	        relayhook.EventRunCompleted,
//	        relayhook.EventRunFailed,
//	    ),
//	)
package relayhook
