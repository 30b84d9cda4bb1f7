package workflow

import (
	"context"
	"sync"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/hugo-lorenzo-mato/flowrun/internal/adapters/state"
	"github.com/hugo-lorenzo-mato/flowrun/internal/adapters/steps"
	"github.com/hugo-lorenzo-mato/flowrun/internal/core"
	"github.com/hugo-lorenzo-mato/flowrun/internal/logging"
)

func trigger(id, label string) core.Node {
	return core.Node{ID: id, Type: core.NodeTypeTrigger, Data: core.NodeData{Label: label}}
}

func action(id, label, slug string, cfg map[string]any) core.Node {
	return core.Node{ID: id, Type: core.NodeTypeAction, Data: core.NodeData{Label: label, ActionSlug: slug, Config: cfg}}
}

func condition(id, label string, cfg map[string]any) core.Node {
	return core.Node{ID: id, Type: core.NodeTypeCondition, Data: core.NodeData{Label: label, Config: cfg}}
}

func edge(src, dst string) core.Edge {
	return core.Edge{ID: src + "-" + dst, Source: src, Target: dst}
}

func branch(src, dst, handle string) core.Edge {
	return core.Edge{ID: src + "-" + dst, Source: src, Target: dst, SourceHandle: handle}
}

// recordingStep succeeds with its resolved config and remembers every call.
type recordingStep struct {
	mu    sync.Mutex
	calls []steps.Input
}

func (r *recordingStep) step(slug string) steps.Step {
	return steps.Step{
		Slug: slug,
		Run: func(_ context.Context, in steps.Input) (core.StepResult, error) {
			r.mu.Lock()
			r.calls = append(r.calls, in)
			r.mu.Unlock()
			return core.Succeeded(in.Config), nil
		},
	}
}

func (r *recordingStep) nodes() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]string, len(r.calls))
	for i, c := range r.calls {
		out[i] = c.Node.ID
	}
	return out
}

func failingStep(slug, msg string) steps.Step {
	return steps.Step{
		Slug: slug,
		Run: func(context.Context, steps.Input) (core.StepResult, error) {
			return core.Failed(msg), nil
		},
	}
}

type harness struct {
	engine   *Engine
	store    *state.MemoryStore
	registry *steps.Registry
	logger   *logging.Logger
}

func newHarness(t *testing.T, cfg EngineConfig, dcfg DispatcherConfig, extra ...steps.Step) *harness {
	t.Helper()
	logger := logging.NewNop()
	registry := steps.NewBuiltinRegistry(steps.BuiltinOptions{Logger: logger})
	for _, s := range extra {
		require.NoError(t, registry.Register(s))
	}
	store := state.NewMemoryStore()
	dispatcher := NewDispatcher(registry, nil, logger, dcfg)
	return &harness{
		engine:   NewEngine(dispatcher, store, cfg, logger),
		store:    store,
		registry: registry,
		logger:   logger,
	}
}

func (h *harness) detail(t *testing.T, execID string) *core.ExecutionDetail {
	t.Helper()
	d, err := h.store.GetExecution(context.Background(), execID)
	require.NoError(t, err)
	return d
}

func stepByNode(d *core.ExecutionDetail, nodeID string) *core.StepLog {
	for _, s := range d.Steps {
		if s.NodeID == nodeID {
			return s
		}
	}
	return nil
}

func sequential() EngineConfig { return EngineConfig{MaxParallel: 1} }
