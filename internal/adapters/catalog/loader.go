// Package catalog imports workflow definitions from YAML or JSON files.
package catalog

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/hugo-lorenzo-mato/flowrun/internal/core"
	"github.com/hugo-lorenzo-mato/flowrun/internal/fsutil"
	"github.com/hugo-lorenzo-mato/flowrun/internal/logging"
	"github.com/hugo-lorenzo-mato/flowrun/internal/service"
)

// IsWorkflowFile reports whether path has a workflow file extension.
func IsWorkflowFile(path string) bool {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".yaml", ".yml", ".json":
		return true
	}
	return false
}

// Parse decodes a workflow definition. JSON documents are valid YAML, so both
// formats go through the same decoder. name fills in a missing id and name.
func Parse(data []byte, name string) (*core.Workflow, error) {
	var wf core.Workflow
	if err := yaml.Unmarshal(data, &wf); err != nil {
		return nil, core.ErrValidation("INVALID_WORKFLOW_FILE", fmt.Sprintf("parsing %s: %v", name, err)).WithCause(err)
	}
	if wf.ID == "" {
		wf.ID = core.WorkflowID(name)
	}
	if wf.Name == "" {
		wf.Name = name
	}
	return &wf, nil
}

// MaxFileBytes caps the size of a workflow file.
const MaxFileBytes = 4 << 20

// ParseFile reads and decodes a workflow file. The file name without its
// extension is the default id.
func ParseFile(path string) (*core.Workflow, error) {
	data, err := fsutil.ReadFileScopedLimit(path, MaxFileBytes)
	if err != nil {
		return nil, fmt.Errorf("reading workflow file: %w", err)
	}
	base := filepath.Base(path)
	return Parse(data, strings.TrimSuffix(base, filepath.Ext(base)))
}

// ImportResult summarises a directory import.
type ImportResult struct {
	Imported []core.WorkflowID
	Failed   map[string]error
}

// Loader validates workflow files and saves them to a store.
type Loader struct {
	store  core.WorkflowStore
	logger *logging.Logger
}

// NewLoader creates a loader saving into store.
func NewLoader(store core.WorkflowStore, logger *logging.Logger) *Loader {
	if logger == nil {
		logger = logging.NewNop()
	}
	return &Loader{store: store, logger: logger}
}

// ImportFile parses path, validates its graph and saves it. Invalid graphs
// are never stored.
func (l *Loader) ImportFile(ctx context.Context, path string) (*core.Workflow, error) {
	wf, err := ParseFile(path)
	if err != nil {
		return nil, err
	}
	if _, err := service.ValidateGraph(wf.Nodes, wf.Edges); err != nil {
		return nil, err
	}
	if err := l.store.SaveWorkflow(ctx, wf); err != nil {
		return nil, fmt.Errorf("saving workflow %s: %w", wf.ID, err)
	}
	l.logger.Info("catalog: imported workflow", "workflow_id", wf.ID, "file", path)
	return wf, nil
}

// ImportDir imports every workflow file directly under dir. A bad file does
// not stop the others; its error is reported in the result.
func (l *Loader) ImportDir(ctx context.Context, dir string) (*ImportResult, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, fmt.Errorf("reading workflows dir: %w", err)
	}

	names := make([]string, 0, len(entries))
	for _, e := range entries {
		if !e.IsDir() && IsWorkflowFile(e.Name()) {
			names = append(names, e.Name())
		}
	}
	sort.Strings(names)

	result := &ImportResult{Failed: make(map[string]error)}
	for _, name := range names {
		if err := ctx.Err(); err != nil {
			return result, err
		}
		path := filepath.Join(dir, name)
		wf, err := l.ImportFile(ctx, path)
		if err != nil {
			l.logger.Warn("catalog: skipping workflow file", "file", path, "error", err)
			result.Failed[path] = err
			continue
		}
		result.Imported = append(result.Imported, wf.ID)
	}
	return result, nil
}
