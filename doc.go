// Package caseflow provides a library-first orchestration engine for
// multi-stage case analysis pipelines. It runs a static graph of named
// stages over a single case, with per-stage retry, tolerated and fatal
// failure policies, parallel fan-out and fan-in, conditional routing on
// stage outputs, and checkpointed state that can be inspected and resumed.
//
// Caseflow is designed as a library, not a service. Register stages as
// ordinary Go functions, build a graph, pick a checkpoint store and run.
//
// # Quick Start
//
//	reg := stage.NewRegistry()
//	auction.Register(reg, agents, caseflow.DefaultConfig())
//	g, _ := auction.Graph(reg, caseflow.DefaultConfig())
//	orch, _ := orchestrator.New(reg, g, memory.New())
//	st, err := orch.Run(ctx, "2024-12345", map[string]any{"user_settings": settings})
//
// # Architecture
//
// Every component depends only on the components below it: state, retry
// policy, checkpoint store, stage registry, router and graph, and finally
// the orchestrator that drives a case through the graph. A single
// checkpoint contract is implemented by the memory, file, sqlite,
// postgres, redis and mongo backends under store/.
//
// Run and checkpoint identifiers use TypeID: type-prefixed, K-sortable,
// UUIDv7-based identifiers.
package caseflow
