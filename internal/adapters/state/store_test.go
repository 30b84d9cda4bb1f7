package state

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hugo-lorenzo-mato/flowrun/internal/core"
)

// stepClock advances by one millisecond on every call so start order is
// observable in timestamps.
func stepClock() func() time.Time {
	t := time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC)
	return func() time.Time {
		t = t.Add(time.Millisecond)
		return t
	}
}

func newStores(t *testing.T) map[string]Store {
	t.Helper()

	sqlite, err := NewSQLiteStore(filepath.Join(t.TempDir(), "state.db"), WithClock(stepClock()))
	require.NoError(t, err)
	t.Cleanup(func() { _ = sqlite.Close() })

	mem := NewMemoryStore()
	mem.now = stepClock()

	return map[string]Store{"sqlite": sqlite, "memory": mem}
}

func TestStore_ExecutionLifecycle(t *testing.T) {
	for name, store := range newStores(t) {
		t.Run(name, func(t *testing.T) {
			ctx := context.Background()
			run := core.RunContext{WorkflowID: "wf-1", UserID: "u-1", Input: map[string]any{"email": "a@b.com"}}

			execID, err := store.BeginExecution(ctx, run)
			require.NoError(t, err)
			require.NotEmpty(t, execID)

			trigger := core.Node{ID: "t", Type: core.NodeTypeTrigger, Data: core.NodeData{Label: "Start"}}
			action := core.Node{ID: "a", Type: core.NodeTypeAction}
			skipped := core.Node{ID: "s", Type: core.NodeTypeAction, Data: core.NodeData{Label: "Later"}}

			s1, err := store.BeginStep(ctx, execID, trigger, map[string]any{})
			require.NoError(t, err)
			require.NoError(t, store.CompleteStep(ctx, s1, core.Succeeded(map[string]any{"email": "a@b.com"})))

			s2, err := store.BeginStep(ctx, execID, action, map[string]any{"to": "a@b.com"})
			require.NoError(t, err)
			require.NoError(t, store.CompleteStep(ctx, s2, core.Failed("boom")))

			require.NoError(t, store.SkipStep(ctx, execID, skipped, core.SkipAncestorFailed))
			require.NoError(t, store.CompleteExecution(ctx, execID, core.StatusError, map[string]any{"email": "a@b.com"}, "boom"))

			detail, err := store.GetExecution(ctx, execID)
			require.NoError(t, err)

			exec := detail.Execution
			assert.Equal(t, core.WorkflowID("wf-1"), exec.WorkflowID)
			assert.Equal(t, "u-1", exec.UserID)
			assert.Equal(t, core.StatusError, exec.Status)
			assert.Equal(t, "boom", exec.Error)
			assert.Equal(t, map[string]any{"email": "a@b.com"}, exec.Input)
			assert.Equal(t, map[string]any{"email": "a@b.com"}, exec.Output)
			require.NotNil(t, exec.CompletedAt)
			assert.Positive(t, exec.Duration)

			require.Len(t, detail.Steps, 3)
			assert.Equal(t, []string{"t", "a", "s"}, []string{detail.Steps[0].NodeID, detail.Steps[1].NodeID, detail.Steps[2].NodeID})

			first := detail.Steps[0]
			assert.Equal(t, "Start", first.NodeName)
			assert.Equal(t, core.StatusSuccess, first.Status)
			assert.Equal(t, map[string]any{"email": "a@b.com"}, first.Output)
			assert.Equal(t, time.Millisecond, first.Duration)

			second := detail.Steps[1]
			assert.Equal(t, "a", second.NodeName)
			assert.Equal(t, core.StatusError, second.Status)
			assert.Equal(t, "boom", second.Error)
			assert.Equal(t, map[string]any{"to": "a@b.com"}, second.Input)

			third := detail.Steps[2]
			assert.Equal(t, core.StatusSkipped, third.Status)
			assert.Equal(t, core.SkipAncestorFailed, third.SkipReason)
			assert.Equal(t, "Later", third.NodeName)

			for _, s := range detail.Steps {
				assert.NotEqual(t, core.StatusRunning, s.Status)
				assert.True(t, !s.StartedAt.After(*s.CompletedAt))
			}
		})
	}
}

func TestStore_NumbersReadBackAsJSON(t *testing.T) {
	for name, store := range newStores(t) {
		t.Run(name, func(t *testing.T) {
			ctx := context.Background()
			execID, err := store.BeginExecution(ctx, core.RunContext{WorkflowID: "wf"})
			require.NoError(t, err)
			require.NoError(t, store.CompleteExecution(ctx, execID, core.StatusSuccess, map[string]any{"status": 200}, ""))

			detail, err := store.GetExecution(ctx, execID)
			require.NoError(t, err)
			assert.Equal(t, map[string]any{"status": float64(200)}, detail.Execution.Output)
			assert.Empty(t, detail.Execution.Error)
		})
	}
}

func TestStore_ListExecutions(t *testing.T) {
	for name, store := range newStores(t) {
		t.Run(name, func(t *testing.T) {
			ctx := context.Background()
			var ids []string
			for _, wf := range []core.WorkflowID{"wf-a", "wf-b", "wf-a"} {
				id, err := store.BeginExecution(ctx, core.RunContext{WorkflowID: wf})
				require.NoError(t, err)
				ids = append(ids, id)
			}

			all, err := store.ListExecutions(ctx, "", 0)
			require.NoError(t, err)
			require.Len(t, all, 3)
			assert.Equal(t, ids[2], all[0].ID, "newest first")

			onlyA, err := store.ListExecutions(ctx, "wf-a", 0)
			require.NoError(t, err)
			require.Len(t, onlyA, 2)
			assert.Equal(t, ids[2], onlyA[0].ID)
			assert.Equal(t, ids[0], onlyA[1].ID)

			limited, err := store.ListExecutions(ctx, "", 1)
			require.NoError(t, err)
			assert.Len(t, limited, 1)
		})
	}
}

func TestStore_NotFound(t *testing.T) {
	for name, store := range newStores(t) {
		t.Run(name, func(t *testing.T) {
			ctx := context.Background()
			_, err := store.GetExecution(ctx, "missing")
			assert.True(t, core.IsCategory(err, core.ErrCatNotFound))

			err = store.CompleteExecution(ctx, "missing", core.StatusSuccess, nil, "")
			assert.True(t, core.IsCategory(err, core.ErrCatNotFound))

			err = store.CompleteStep(ctx, "missing", core.Succeeded(nil))
			assert.True(t, core.IsCategory(err, core.ErrCatNotFound))

			_, err = store.GetWorkflow(ctx, "missing")
			assert.True(t, core.IsCategory(err, core.ErrCatNotFound))

			err = store.DeleteWorkflow(ctx, "missing")
			assert.True(t, core.IsCategory(err, core.ErrCatNotFound))
		})
	}
}

func TestStore_CloseInterrupted(t *testing.T) {
	for name, store := range newStores(t) {
		t.Run(name, func(t *testing.T) {
			ctx := context.Background()

			done, err := store.BeginExecution(ctx, core.RunContext{WorkflowID: "wf"})
			require.NoError(t, err)
			require.NoError(t, store.CompleteExecution(ctx, done, core.StatusSuccess, nil, ""))

			hung, err := store.BeginExecution(ctx, core.RunContext{WorkflowID: "wf"})
			require.NoError(t, err)
			_, err = store.BeginStep(ctx, hung, core.Node{ID: "a", Type: core.NodeTypeAction}, nil)
			require.NoError(t, err)

			n, err := store.CloseInterrupted(ctx, "interrupted")
			require.NoError(t, err)
			assert.Equal(t, 1, n)

			detail, err := store.GetExecution(ctx, hung)
			require.NoError(t, err)
			assert.Equal(t, core.StatusError, detail.Execution.Status)
			assert.Equal(t, "interrupted", detail.Execution.Error)
			require.Len(t, detail.Steps, 1)
			assert.Equal(t, core.StatusError, detail.Steps[0].Status)

			untouched, err := store.GetExecution(ctx, done)
			require.NoError(t, err)
			assert.Equal(t, core.StatusSuccess, untouched.Execution.Status)

			n, err = store.CloseInterrupted(ctx, "interrupted")
			require.NoError(t, err)
			assert.Zero(t, n)
		})
	}
}

func TestStore_Workflows(t *testing.T) {
	for name, store := range newStores(t) {
		t.Run(name, func(t *testing.T) {
			ctx := context.Background()
			wf := &core.Workflow{
				Name: "Signup",
				Nodes: []core.Node{
					{ID: "t", Type: core.NodeTypeTrigger, Data: core.NodeData{Label: "Start"}},
					{ID: "a", Type: core.NodeTypeAction, Data: core.NodeData{ActionSlug: "log.message", Config: map[string]any{"message": "hi"}}},
				},
				Edges: []core.Edge{{ID: "e1", Source: "t", Target: "a"}},
			}
			require.NoError(t, store.SaveWorkflow(ctx, wf))
			require.NotEmpty(t, wf.ID)
			created := wf.CreatedAt

			got, err := store.GetWorkflow(ctx, wf.ID)
			require.NoError(t, err)
			assert.Equal(t, "Signup", got.Name)
			require.Len(t, got.Nodes, 2)
			assert.Equal(t, "log.message", got.Nodes[1].Data.ActionSlug)
			assert.Equal(t, "hi", got.Nodes[1].Data.Config["message"])
			assert.Equal(t, wf.Edges, got.Edges)

			wf.Name = "Signup v2"
			require.NoError(t, store.SaveWorkflow(ctx, wf))
			require.NoError(t, store.SaveWorkflow(ctx, &core.Workflow{ID: "other", Name: "Another"}))

			list, err := store.ListWorkflows(ctx)
			require.NoError(t, err)
			require.Len(t, list, 2)
			assert.Equal(t, "Another", list[0].Name)
			assert.Equal(t, "Signup v2", list[1].Name)
			assert.True(t, list[1].CreatedAt.Equal(created))
			assert.True(t, list[1].UpdatedAt.After(created))

			require.NoError(t, store.DeleteWorkflow(ctx, wf.ID))
			_, err = store.GetWorkflow(ctx, wf.ID)
			assert.True(t, core.IsCategory(err, core.ErrCatNotFound))
		})
	}
}

func TestSQLiteStore_ReopenKeepsData(t *testing.T) {
	path := filepath.Join(t.TempDir(), "nested", "state.db")
	ctx := context.Background()

	store, err := NewSQLiteStore(path)
	require.NoError(t, err)
	id, err := store.BeginExecution(ctx, core.RunContext{WorkflowID: "wf"})
	require.NoError(t, err)
	require.NoError(t, store.Close())

	reopened, err := NewSQLiteStore(path)
	require.NoError(t, err)
	defer reopened.Close()

	detail, err := reopened.GetExecution(ctx, id)
	require.NoError(t, err)
	assert.Equal(t, core.StatusRunning, detail.Execution.Status)
	assert.Equal(t, path, reopened.Path())
}

func TestNewStore(t *testing.T) {
	mem, err := NewStore(MemoryPath)
	require.NoError(t, err)
	assert.IsType(t, &MemoryStore{}, mem)
	assert.NoError(t, CloseStore(mem))

	disk, err := NewStore(filepath.Join(t.TempDir(), "state.sqlite"))
	require.NoError(t, err)
	sqlite, ok := disk.(*SQLiteStore)
	require.True(t, ok)
	assert.Equal(t, ".db", filepath.Ext(sqlite.Path()))
	assert.NoError(t, CloseStore(disk))
}
