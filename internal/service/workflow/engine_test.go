package workflow

import (
	"context"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hugo-lorenzo-mato/flowrun/internal/adapters/steps"
	"github.com/hugo-lorenzo-mato/flowrun/internal/core"
	"github.com/hugo-lorenzo-mato/flowrun/internal/events"
)

func TestEngine_TriggerThenHTTPAction(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"ok":true,"email":"` + r.URL.Query().Get("email") + `"}`))
	}))
	defer srv.Close()

	h := newHarness(t, sequential(), DispatcherConfig{})
	nodes := []core.Node{
		trigger("t", "Start"),
		action("a", "Notify", steps.SlugHTTP, map[string]any{
			"url":   srv.URL,
			"query": map[string]any{"email": "{{Start.email}}"},
		}),
	}

	report, err := h.engine.Run(context.Background(), nodes, []core.Edge{edge("t", "a")}, core.RunContext{
		WorkflowID: "wf-a",
		Input:      map[string]any{"email": "a@b.com"},
	})
	require.NoError(t, err)
	assert.Equal(t, core.StatusSuccess, report.Status)
	assert.Empty(t, report.Error)

	d := h.detail(t, report.ExecutionID)
	assert.Equal(t, core.StatusSuccess, d.Execution.Status)
	require.Len(t, d.Steps, 2)
	for _, s := range d.Steps {
		assert.Equal(t, core.StatusSuccess, s.Status, s.NodeID)
	}

	out := report.Output.(map[string]any)
	assert.Equal(t, map[string]any{"ok": true, "email": "a@b.com"}, out["json"])
}

func TestEngine_FalseConditionSkipsTrueBranch(t *testing.T) {
	rec := &recordingStep{}
	h := newHarness(t, sequential(), DispatcherConfig{}, rec.step("test.record"))
	nodes := []core.Node{
		trigger("t", "Start"),
		condition("c", "IsPro", map[string]any{"left": "{{Start.plan}}", "operator": "eq", "right": "pro"}),
		action("x", "Upsell", "test.record", nil),
	}
	edges := []core.Edge{edge("t", "c"), branch("c", "x", "true")}

	report, err := h.engine.Run(context.Background(), nodes, edges, core.RunContext{
		Input: map[string]any{"plan": "free"},
	})
	require.NoError(t, err)

	assert.Equal(t, core.StatusSuccess, report.Status)
	assert.Equal(t, core.SkipBranchNotTaken, report.Skipped["x"])
	assert.Empty(t, rec.nodes())

	d := h.detail(t, report.ExecutionID)
	require.Len(t, d.Steps, 3)
	x := stepByNode(d, "x")
	require.NotNil(t, x)
	assert.Equal(t, core.StatusSkipped, x.Status)
	assert.Equal(t, core.SkipBranchNotTaken, x.SkipReason)
	assert.Equal(t, core.StatusSuccess, stepByNode(d, "c").Status)
}

func TestEngine_ConditionRoutesBothBranches(t *testing.T) {
	rec := &recordingStep{}
	h := newHarness(t, sequential(), DispatcherConfig{}, rec.step("test.record"))
	nodes := []core.Node{
		trigger("t", "Start"),
		condition("c", "Big", map[string]any{"left": "{{Start.amount}}", "operator": "gt", "right": 100}),
		action("yes", "", "test.record", nil),
		action("no", "", "test.record", nil),
		action("after", "", "test.record", nil),
	}
	edges := []core.Edge{
		edge("t", "c"),
		branch("c", "yes", "true"),
		{ID: "c-no", Source: "c", Target: "no", Label: "false"},
		edge("yes", "after"),
	}

	report, err := h.engine.Run(context.Background(), nodes, edges, core.RunContext{
		Input: map[string]any{"amount": 250},
	})
	require.NoError(t, err)
	assert.Equal(t, core.StatusSuccess, report.Status)
	assert.Equal(t, []string{"yes", "after"}, rec.nodes())
	assert.Equal(t, map[string]core.SkipReason{"no": core.SkipBranchNotTaken}, report.Skipped)
}

func TestEngine_FailureSkipsDownstream(t *testing.T) {
	rec := &recordingStep{}
	h := newHarness(t, sequential(), DispatcherConfig{},
		failingStep("test.fail", "boom"), rec.step("test.record"))
	nodes := []core.Node{
		trigger("t", "Start"),
		action("a1", "First", "test.fail", nil),
		action("a2", "Second", "test.record", nil),
		action("a3", "Third", "test.record", nil),
	}
	edges := []core.Edge{edge("t", "a1"), edge("a1", "a2"), edge("a2", "a3")}

	report, err := h.engine.Run(context.Background(), nodes, edges, core.RunContext{})
	require.NoError(t, err)

	assert.Equal(t, core.StatusError, report.Status)
	assert.Equal(t, "boom", report.Error)
	assert.Empty(t, rec.nodes())

	d := h.detail(t, report.ExecutionID)
	assert.Equal(t, core.StatusError, d.Execution.Status)
	assert.Equal(t, "boom", d.Execution.Error)
	assert.Equal(t, core.StatusError, stepByNode(d, "a1").Status)
	assert.Equal(t, "boom", stepByNode(d, "a1").Error)
	for _, id := range []string{"a2", "a3"} {
		s := stepByNode(d, id)
		require.NotNil(t, s, id)
		assert.Equal(t, core.StatusSkipped, s.Status)
		assert.Equal(t, core.SkipAncestorFailed, s.SkipReason)
	}
	// The trigger is the last successful node in topological order.
	assert.Equal(t, map[string]any{}, report.Output)
}

func TestEngine_SiblingsContinueAfterFailure(t *testing.T) {
	rec := &recordingStep{}
	h := newHarness(t, sequential(), DispatcherConfig{},
		failingStep("test.fail", "down"), rec.step("test.record"))
	nodes := []core.Node{
		trigger("t", ""),
		action("bad", "", "test.fail", nil),
		action("good", "", "test.record", nil),
		action("join", "", "test.record", nil),
	}
	edges := []core.Edge{edge("t", "bad"), edge("t", "good"), edge("bad", "join"), edge("good", "join")}

	report, err := h.engine.Run(context.Background(), nodes, edges, core.RunContext{})
	require.NoError(t, err)

	assert.Equal(t, core.StatusError, report.Status)
	assert.Equal(t, "down", report.Error)
	assert.Equal(t, []string{"good", "join"}, rec.nodes())
	assert.Empty(t, report.Skipped)
}

func TestEngine_ReferencesFlowBetweenNodes(t *testing.T) {
	rec := &recordingStep{}
	h := newHarness(t, sequential(), DispatcherConfig{}, rec.step("test.record"))
	nodes := []core.Node{
		trigger("t", "Start"),
		action("fetch", "Fetch", "test.record", map[string]any{"user": map[string]any{"email": "{{Start.email}}"}}),
		action("send", "Send", "test.record", map[string]any{
			"to":      "{{Fetch.user.email}}",
			"missing": "{{Fetch.user.phone}}",
			"subject": "Hello {{Start.name}}",
			"raw":     "{{fetch.user}}",
		}),
	}
	edges := []core.Edge{edge("t", "fetch"), edge("fetch", "send")}

	report, err := h.engine.Run(context.Background(), nodes, edges, core.RunContext{
		Input: map[string]any{"email": "a@b.com", "name": "Ada"},
	})
	require.NoError(t, err)
	require.Equal(t, core.StatusSuccess, report.Status)

	cfg := report.Results["send"].Data.(map[string]any)
	assert.Equal(t, "a@b.com", cfg["to"])
	assert.Equal(t, "", cfg["missing"])
	assert.Equal(t, "Hello Ada", cfg["subject"])
	assert.Equal(t, map[string]any{"email": "a@b.com"}, cfg["raw"])
}

func TestEngine_UnresolvedReferenceFailsNode(t *testing.T) {
	rec := &recordingStep{}
	h := newHarness(t, sequential(), DispatcherConfig{}, rec.step("test.record"))
	nodes := []core.Node{
		trigger("t", "Start"),
		action("a", "Use", "test.record", map[string]any{"value": "{{Ghost.id}}"}),
	}

	report, err := h.engine.Run(context.Background(), nodes, []core.Edge{edge("t", "a")}, core.RunContext{})
	require.NoError(t, err)

	assert.Equal(t, core.StatusError, report.Status)
	assert.Contains(t, report.Error, "{{Ghost.id}}")
	assert.Empty(t, rec.nodes())

	s := stepByNode(h.detail(t, report.ExecutionID), "a")
	require.NotNil(t, s)
	assert.Equal(t, core.StatusError, s.Status)
	assert.Equal(t, "{{Ghost.id}}", s.Input["value"])
}

func TestEngine_UnknownActionFailsNode(t *testing.T) {
	h := newHarness(t, sequential(), DispatcherConfig{})
	nodes := []core.Node{trigger("t", ""), action("a", "", "crm.create_ticket", nil)}

	report, err := h.engine.Run(context.Background(), nodes, []core.Edge{edge("t", "a")}, core.RunContext{})
	require.NoError(t, err)
	assert.Equal(t, core.StatusError, report.Status)
	assert.Equal(t, `unknown action "crm.create_ticket"`, report.Error)
}

func TestEngine_CycleRejectedBeforeAnyRecord(t *testing.T) {
	h := newHarness(t, sequential(), DispatcherConfig{})
	nodes := []core.Node{trigger("t", ""), action("a", "", "log.message", nil), action("b", "", "log.message", nil)}
	edges := []core.Edge{edge("t", "a"), edge("a", "b"), edge("b", "a")}

	report, err := h.engine.Run(context.Background(), nodes, edges, core.RunContext{WorkflowID: "wf"})
	require.Error(t, err)
	assert.Nil(t, report)
	assert.True(t, core.HasCode(err, core.CodeGraphCycle))

	list, err := h.store.ListExecutions(context.Background(), "", 0)
	require.NoError(t, err)
	assert.Empty(t, list)
}

func TestEngine_SequentialFollowsTopologicalOrder(t *testing.T) {
	rec := &recordingStep{}
	h := newHarness(t, sequential(), DispatcherConfig{}, rec.step("test.record"))
	nodes := []core.Node{
		action("d", "", "test.record", nil),
		trigger("t", ""),
		action("b", "", "test.record", nil),
		action("c", "", "test.record", nil),
	}
	edges := []core.Edge{edge("t", "b"), edge("t", "c"), edge("b", "d"), edge("c", "d")}

	report, err := h.engine.Run(context.Background(), nodes, edges, core.RunContext{})
	require.NoError(t, err)
	require.Equal(t, core.StatusSuccess, report.Status)
	assert.Equal(t, []string{"b", "c", "d"}, rec.nodes())

	d := h.detail(t, report.ExecutionID)
	ids := make([]string, len(d.Steps))
	for i, s := range d.Steps {
		ids[i] = s.NodeID
	}
	assert.Equal(t, []string{"t", "b", "c", "d"}, ids)
}

func TestEngine_ParallelFanOut(t *testing.T) {
	var current, peak int32
	slow := steps.Step{
		Slug: "test.slow",
		Run: func(ctx context.Context, _ steps.Input) (core.StepResult, error) {
			n := atomic.AddInt32(&current, 1)
			for {
				p := atomic.LoadInt32(&peak)
				if n <= p || atomic.CompareAndSwapInt32(&peak, p, n) {
					break
				}
			}
			time.Sleep(50 * time.Millisecond)
			atomic.AddInt32(&current, -1)
			return core.Succeeded(nil), nil
		},
	}
	h := newHarness(t, EngineConfig{MaxParallel: 3}, DispatcherConfig{}, slow)
	nodes := []core.Node{
		trigger("t", ""),
		action("a", "", "test.slow", nil),
		action("b", "", "test.slow", nil),
		action("c", "", "test.slow", nil),
		action("d", "", "test.slow", nil),
	}
	edges := []core.Edge{edge("t", "a"), edge("t", "b"), edge("t", "c"), edge("t", "d")}

	report, err := h.engine.Run(context.Background(), nodes, edges, core.RunContext{})
	require.NoError(t, err)
	assert.Equal(t, core.StatusSuccess, report.Status)
	assert.Len(t, report.Results, 5)
	assert.GreaterOrEqual(t, atomic.LoadInt32(&peak), int32(2))
	assert.LessOrEqual(t, atomic.LoadInt32(&peak), int32(3))
}

func TestEngine_NodeTimeoutAbandonsStep(t *testing.T) {
	release := make(chan struct{})
	t.Cleanup(func() { close(release) })
	hung := steps.Step{
		Slug: "test.hung",
		Run: func(context.Context, steps.Input) (core.StepResult, error) {
			<-release
			return core.Succeeded(nil), nil
		},
	}
	h := newHarness(t, sequential(), DispatcherConfig{NodeTimeout: 30 * time.Millisecond}, hung)
	nodes := []core.Node{trigger("t", ""), action("a", "", "test.hung", nil)}

	report, err := h.engine.Run(context.Background(), nodes, []core.Edge{edge("t", "a")}, core.RunContext{})
	require.NoError(t, err)
	assert.Equal(t, core.StatusError, report.Status)
	assert.Contains(t, report.Error, "timed out")

	d := h.detail(t, report.ExecutionID)
	assert.Equal(t, core.StatusError, d.Execution.Status)
	for _, s := range d.Steps {
		assert.NotEqual(t, core.StatusRunning, s.Status)
	}
}

func TestEngine_CustomConditionEvaluator(t *testing.T) {
	rec := &recordingStep{}
	h := newHarness(t, sequential(), DispatcherConfig{}, rec.step("test.record"))
	h.engine.WithEvaluator(ConditionFunc(func(core.Node, core.ResultMap) (bool, error) {
		return false, nil
	}))
	nodes := []core.Node{
		trigger("t", ""),
		condition("c", "", map[string]any{"value": true}),
		action("yes", "", "test.record", nil),
		action("no", "", "test.record", nil),
	}
	edges := []core.Edge{edge("t", "c"), branch("c", "yes", "true"), branch("c", "no", "false")}

	report, err := h.engine.Run(context.Background(), nodes, edges, core.RunContext{})
	require.NoError(t, err)
	assert.Equal(t, []string{"no"}, rec.nodes())
	assert.Equal(t, core.SkipBranchNotTaken, report.Skipped["yes"])
}

func TestEngine_ConditionEvaluationErrorFailsNode(t *testing.T) {
	h := newHarness(t, sequential(), DispatcherConfig{})
	h.engine.WithEvaluator(ConditionFunc(func(n core.Node, _ core.ResultMap) (bool, error) {
		return false, core.ErrCondition(n.Name(), "cannot decide")
	}))
	nodes := []core.Node{trigger("t", ""), condition("c", "Check", nil), action("x", "", "log.message", nil)}
	edges := []core.Edge{edge("t", "c"), branch("c", "x", "true")}

	report, err := h.engine.Run(context.Background(), nodes, edges, core.RunContext{})
	require.NoError(t, err)
	assert.Equal(t, core.StatusError, report.Status)
	assert.Equal(t, "condition Check: cannot decide", report.Error)
	assert.Equal(t, core.SkipAncestorFailed, report.Skipped["x"])
}

func TestEngine_PublishesEvents(t *testing.T) {
	bus := events.New(100)
	defer bus.Close()
	ch := bus.Subscribe()

	h := newHarness(t, sequential(), DispatcherConfig{}, failingStep("test.fail", "nope"))
	h.engine.WithEvents(bus)
	nodes := []core.Node{trigger("t", ""), action("a", "", "test.fail", nil), action("b", "", "log.message", nil)}
	edges := []core.Edge{edge("t", "a"), edge("a", "b")}

	report, err := h.engine.Run(context.Background(), nodes, edges, core.RunContext{WorkflowID: "wf-e"})
	require.NoError(t, err)

	var types []string
	for len(ch) > 0 {
		ev := <-ch
		assert.Equal(t, report.ExecutionID, ev.ExecutionID())
		assert.Equal(t, "wf-e", ev.WorkflowID())
		types = append(types, ev.EventType())
	}
	assert.Equal(t, []string{
		events.TypeExecutionStarted,
		events.TypeStepStarted, events.TypeStepCompleted,
		events.TypeStepStarted, events.TypeStepCompleted,
		events.TypeStepSkipped,
		events.TypeExecutionFailed,
	}, types)
}

func TestEngine_RunTimeoutStillCompletes(t *testing.T) {
	release := make(chan struct{})
	t.Cleanup(func() { close(release) })
	hung := steps.Step{
		Slug: "test.hung",
		Run: func(context.Context, steps.Input) (core.StepResult, error) {
			<-release
			return core.Succeeded(nil), nil
		},
	}
	h := newHarness(t, EngineConfig{MaxParallel: 1, RunTimeout: 30 * time.Millisecond}, DispatcherConfig{}, hung)
	nodes := []core.Node{trigger("t", ""), action("a", "", "test.hung", nil), action("b", "", "log.message", nil)}
	edges := []core.Edge{edge("t", "a"), edge("a", "b")}

	report, err := h.engine.Run(context.Background(), nodes, edges, core.RunContext{})
	require.NoError(t, err)
	assert.Equal(t, core.StatusError, report.Status)
	assert.Contains(t, report.Error, "timed out")
	assert.Equal(t, core.SkipCancelled, report.Skipped["b"])

	d := h.detail(t, report.ExecutionID)
	assert.True(t, d.Execution.Status.IsTerminal())
	require.NotNil(t, d.Execution.CompletedAt)
}

func TestEngine_BranchSkipReachesDiamondOnce(t *testing.T) {
	rec := &recordingStep{}
	h := newHarness(t, EngineConfig{MaxParallel: 4}, DispatcherConfig{}, rec.step("test.record"))
	nodes := []core.Node{
		trigger("t", ""),
		condition("c", "", map[string]any{"left": "a", "operator": "eq", "right": "b"}),
		action("x", "", "test.record", nil),
		action("y", "", "test.record", nil),
		action("z", "", "test.record", nil),
	}
	edges := []core.Edge{
		edge("t", "c"),
		branch("c", "x", "true"),
		edge("x", "y"),
		edge("x", "z"),
		edge("y", "z"),
	}

	report, err := h.engine.Run(context.Background(), nodes, edges, core.RunContext{})
	require.NoError(t, err)
	assert.Equal(t, core.StatusSuccess, report.Status)
	assert.Empty(t, rec.nodes())
	assert.Equal(t, map[string]core.SkipReason{
		"x": core.SkipBranchNotTaken,
		"y": core.SkipBranchNotTaken,
		"z": core.SkipBranchNotTaken,
	}, report.Skipped)

	d := h.detail(t, report.ExecutionID)
	counts := map[string]int{}
	for _, s := range d.Steps {
		counts[s.NodeID]++
		if s.Status == core.StatusSkipped {
			assert.Equal(t, core.SkipBranchNotTaken, s.SkipReason, s.NodeID)
		}
	}
	for _, id := range []string{"x", "y", "z"} {
		assert.Equal(t, 1, counts[id], id)
		assert.Equal(t, core.StatusSkipped, stepByNode(d, id).Status, id)
	}
}

func TestEngine_SeveralTriggersFeedOneAction(t *testing.T) {
	rec := &recordingStep{}
	h := newHarness(t, sequential(), DispatcherConfig{}, rec.step("test.record"))
	nodes := []core.Node{
		trigger("t1", "Web"),
		trigger("t2", "Api"),
		action("a", "", "test.record", map[string]any{"web": "{{Web.k}}", "api": "{{Api.k}}"}),
	}
	edges := []core.Edge{edge("t1", "a"), edge("t2", "a")}

	report, err := h.engine.Run(context.Background(), nodes, edges, core.RunContext{
		Input: map[string]any{"k": "v"},
	})
	require.NoError(t, err)
	assert.Equal(t, core.StatusSuccess, report.Status)
	assert.Equal(t, []string{"a"}, rec.nodes())
	assert.Equal(t, map[string]any{"web": "v", "api": "v"}, report.Output)
	assert.Len(t, h.detail(t, report.ExecutionID).Steps, 3)
}
