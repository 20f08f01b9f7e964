// Package orchestrator drives a case through a stage graph.
//
// One driver goroutine owns a case's WorkflowState for the duration of a
// Run or Resume. Each iteration resolves one graph node (a single stage
// under its retry policy, or every member of a parallel group), merges
// the results, asks the node's router for the successor and writes a
// checkpoint. The loop ends at the terminal node, on a fatal failure or
// when cancellation is observed between attempts.
//
//	orch, err := orchestrator.New(reg, g, memory.New(),
//	    orchestrator.WithLogger(logger),
//	    orchestrator.WithResultCache(cache.NewMemory(), time.Hour),
//	)
//	st, err := orch.Run(ctx, "2024-0042", map[string]any{"user_settings": settings})
//
// Failed runs are not Go errors: Run returns the final state with status
// failed and the accumulated error log. A non-nil error means the run
// could not be started or resumed, or ctx was cancelled and the run was
// paused.
package orchestrator
