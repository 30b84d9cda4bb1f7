package catalog

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hugo-lorenzo-mato/flowrun/internal/adapters/state"
	"github.com/hugo-lorenzo-mato/flowrun/internal/core"
)

const welcomeYAML = `
name: Welcome
description: greets new users
nodes:
  - id: n1
    type: trigger
    data:
      label: Start
  - id: n2
    type: action
    data:
      label: Greet
      actionSlug: log.message
      config:
        message: "hello {{Start.name}}"
    position: {x: 10, y: 20}
edges:
  - id: e1
    source: n1
    target: n2
`

const branchJSON = `{
  "id": "branching",
  "nodes": [
    {"id": "t", "type": "trigger", "data": {"label": "T"}},
    {"id": "c", "type": "condition", "data": {"label": "C", "config": {"left": 1, "operator": "eq", "right": 1}}},
    {"id": "y", "type": "transform", "data": {"label": "Y"}}
  ],
  "edges": [
    {"id": "e1", "source": "t", "target": "c"},
    {"id": "e2", "source": "c", "target": "y", "sourceHandle": "true"}
  ]
}`

const cyclicYAML = `
nodes:
  - {id: a, type: action, data: {label: A}}
  - {id: b, type: action, data: {label: B}}
edges:
  - {id: e1, source: a, target: b}
  - {id: e2, source: b, target: a}
`

func writeFile(t *testing.T, dir, name, content string) string {
	t.Helper()
	path := filepath.Join(dir, name)
	require.NoError(t, os.WriteFile(path, []byte(content), 0o600))
	return path
}

func TestParse_YAML(t *testing.T) {
	wf, err := Parse([]byte(welcomeYAML), "welcome")
	require.NoError(t, err)

	assert.Equal(t, core.WorkflowID("welcome"), wf.ID)
	assert.Equal(t, "Welcome", wf.Name)
	require.Len(t, wf.Nodes, 2)
	assert.Equal(t, core.NodeTypeAction, wf.Nodes[1].Type)
	assert.Equal(t, "log.message", wf.Nodes[1].Data.ActionSlug)
	assert.Equal(t, "hello {{Start.name}}", wf.Nodes[1].Data.Config["message"])
	require.Len(t, wf.Edges, 1)
	assert.Equal(t, "n2", wf.Edges[0].Target)
}

func TestParse_JSON(t *testing.T) {
	wf, err := Parse([]byte(branchJSON), "ignored")
	require.NoError(t, err)

	assert.Equal(t, core.WorkflowID("branching"), wf.ID)
	assert.Equal(t, "ignored", wf.Name)
	assert.Equal(t, core.BranchTrue, wf.Edges[1].Branch())
}

func TestParse_Invalid(t *testing.T) {
	_, err := Parse([]byte("nodes: [unterminated"), "bad")
	require.Error(t, err)
	assert.True(t, core.HasCode(err, "INVALID_WORKFLOW_FILE"))
}

func TestIsWorkflowFile(t *testing.T) {
	assert.True(t, IsWorkflowFile("a.yaml"))
	assert.True(t, IsWorkflowFile("a.YML"))
	assert.True(t, IsWorkflowFile("dir/a.json"))
	assert.False(t, IsWorkflowFile("a.txt"))
	assert.False(t, IsWorkflowFile("a.yaml.swp"))
}

func TestLoader_ImportFile(t *testing.T) {
	dir := t.TempDir()
	store := state.NewMemoryStore()
	loader := NewLoader(store, nil)

	path := writeFile(t, dir, "welcome.yaml", welcomeYAML)
	wf, err := loader.ImportFile(context.Background(), path)
	require.NoError(t, err)

	stored, err := store.GetWorkflow(context.Background(), wf.ID)
	require.NoError(t, err)
	assert.Equal(t, "Welcome", stored.Name)
	assert.Len(t, stored.Nodes, 2)
}

func TestLoader_RejectsInvalidGraph(t *testing.T) {
	dir := t.TempDir()
	store := state.NewMemoryStore()
	loader := NewLoader(store, nil)

	path := writeFile(t, dir, "cycle.yaml", cyclicYAML)
	_, err := loader.ImportFile(context.Background(), path)
	require.Error(t, err)
	assert.True(t, core.HasCode(err, "GRAPH_CYCLE"))

	list, err := store.ListWorkflows(context.Background())
	require.NoError(t, err)
	assert.Empty(t, list)
}

func TestLoader_ImportDir(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, dir, "welcome.yaml", welcomeYAML)
	writeFile(t, dir, "branching.json", branchJSON)
	writeFile(t, dir, "cycle.yml", cyclicYAML)
	writeFile(t, dir, "notes.txt", "not a workflow")
	require.NoError(t, os.Mkdir(filepath.Join(dir, "nested.yaml"), 0o755))

	store := state.NewMemoryStore()
	result, err := NewLoader(store, nil).ImportDir(context.Background(), dir)
	require.NoError(t, err)

	assert.Equal(t, []core.WorkflowID{"branching", "welcome"}, result.Imported)
	require.Len(t, result.Failed, 1)
	assert.Contains(t, result.Failed, filepath.Join(dir, "cycle.yml"))

	list, err := store.ListWorkflows(context.Background())
	require.NoError(t, err)
	assert.Len(t, list, 2)
}

func TestLoader_ImportDirMissing(t *testing.T) {
	_, err := NewLoader(state.NewMemoryStore(), nil).ImportDir(context.Background(), filepath.Join(t.TempDir(), "missing"))
	assert.Error(t, err)
}
