package orchestrator_test

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/xraph/caseflow"
	"github.com/xraph/caseflow/checkpoint"
	"github.com/xraph/caseflow/graph"
	"github.com/xraph/caseflow/id"
	"github.com/xraph/caseflow/orchestrator"
	"github.com/xraph/caseflow/retry"
	"github.com/xraph/caseflow/router"
	"github.com/xraph/caseflow/stage"
	"github.com/xraph/caseflow/state"
	"github.com/xraph/caseflow/store/memory"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

// counter is a stage that counts invocations and returns a fixed output.
type counter struct {
	calls atomic.Int32
}

func (c *counter) fn(output state.Payload) stage.Func {
	return func(context.Context, *state.WorkflowState) (stage.Result, error) {
		c.calls.Add(1)
		return stage.Result{Output: output}, nil
	}
}

func (c *counter) failing(err error) stage.Func {
	return func(context.Context, *state.WorkflowState) (stage.Result, error) {
		c.calls.Add(1)
		return stage.Result{}, err
	}
}

func (c *counter) n() int { return int(c.calls.Load()) }

// gate is a stage that blocks until released.
type gate struct {
	started chan struct{}
	release chan struct{}
	once    sync.Once
}

func newGate() *gate {
	return &gate{started: make(chan struct{}), release: make(chan struct{})}
}

func (g *gate) fn(ctx context.Context, _ *state.WorkflowState) (stage.Result, error) {
	g.once.Do(func() { close(g.started) })
	select {
	case <-g.release:
		return stage.Result{Output: state.Payload{"gated": true}}, nil
	case <-ctx.Done():
		return stage.Result{}, ctx.Err()
	}
}

func (g *gate) waitStarted(t *testing.T) {
	t.Helper()
	select {
	case <-g.started:
	case <-time.After(5 * time.Second):
		t.Fatal("stage never started")
	}
}

// linear builds entry -> ... -> last -> terminal over registered stages.
func linear(t *testing.T, reg *stage.Registry, names ...string) *graph.Graph {
	t.Helper()
	b := graph.NewBuilder(names[0])
	for i, n := range names {
		b.Stage(n)
		next := router.Terminal
		if i+1 < len(names) {
			next = names[i+1]
		}
		b.Edge(n, next)
	}
	g, err := b.Build(reg)
	require.NoError(t, err)
	return g
}

func testConfig() caseflow.Config {
	cfg := caseflow.DefaultConfig()
	cfg.AttemptTimeout = 5 * time.Second
	return cfg
}

func newOrchestrator(t *testing.T, reg *stage.Registry, g *graph.Graph, store checkpoint.Store, opts ...orchestrator.Option) *orchestrator.Orchestrator {
	t.Helper()
	base := []orchestrator.Option{
		orchestrator.WithLogger(testLogger()),
		orchestrator.WithConfig(testConfig()),
		orchestrator.WithSleeper(&retry.RecordingSleeper{}),
	}
	o, err := orchestrator.New(reg, g, store, append(base, opts...)...)
	require.NoError(t, err)
	return o
}

// failingStore wraps a store and rejects every Save.
type failingStore struct {
	checkpoint.Store
	saves atomic.Int32
}

func (f *failingStore) Save(context.Context, string, *state.WorkflowState) (id.CheckpointID, error) {
	f.saves.Add(1)
	return id.CheckpointID{}, errors.New("disk full")
}

func newMemory() *memory.Store { return memory.New() }
