package state

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/hugo-lorenzo-mato/flowrun/internal/core"
)

// MemoryStore is an in-process recorder and workflow store. Values are
// passed through the JSON codec on write so reads match the SQLite store.
type MemoryStore struct {
	mu         sync.RWMutex
	executions map[string]*core.Execution
	order      []string // execution ids in creation order
	steps      map[string][]*core.StepLog
	stepIndex  map[string]*core.StepLog
	workflows  map[core.WorkflowID]*core.Workflow
	now        func() time.Time
}

// NewMemoryStore creates an empty store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		executions: make(map[string]*core.Execution),
		steps:      make(map[string][]*core.StepLog),
		stepIndex:  make(map[string]*core.StepLog),
		workflows:  make(map[core.WorkflowID]*core.Workflow),
		now:        time.Now,
	}
}

// BeginExecution implements core.ExecutionRecorder.
func (m *MemoryStore) BeginExecution(_ context.Context, run core.RunContext) (string, error) {
	input, err := roundTripMap(run.Input)
	if err != nil {
		return "", fmt.Errorf("marshaling execution input: %w", err)
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	id := uuid.NewString()
	m.executions[id] = &core.Execution{
		ID:         id,
		WorkflowID: run.WorkflowID,
		UserID:     run.UserID,
		Status:     core.StatusRunning,
		Input:      input,
		StartedAt:  m.now().UTC(),
	}
	m.order = append(m.order, id)
	return id, nil
}

// BeginStep implements core.ExecutionRecorder.
func (m *MemoryStore) BeginStep(_ context.Context, executionID string, node core.Node, input map[string]any) (string, error) {
	in, err := roundTripMap(input)
	if err != nil {
		return "", fmt.Errorf("marshaling step input: %w", err)
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	if _, ok := m.executions[executionID]; !ok {
		return "", core.ErrNotFound("execution", executionID)
	}
	step := &core.StepLog{
		ID:          uuid.NewString(),
		ExecutionID: executionID,
		NodeID:      node.ID,
		NodeName:    node.Name(),
		NodeType:    node.Type,
		Status:      core.StatusRunning,
		Input:       in,
		StartedAt:   m.now().UTC(),
	}
	m.steps[executionID] = append(m.steps[executionID], step)
	m.stepIndex[step.ID] = step
	return step.ID, nil
}

// CompleteStep implements core.ExecutionRecorder.
func (m *MemoryStore) CompleteStep(_ context.Context, stepLogID string, result core.StepResult) error {
	out, err := roundTrip(result.Data)
	if err != nil {
		return fmt.Errorf("marshaling step output: %w", err)
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	step, ok := m.stepIndex[stepLogID]
	if !ok {
		return core.ErrNotFound("step log", stepLogID)
	}
	completed := m.now().UTC()
	step.Status = core.StatusSuccess
	if !result.Success {
		step.Status = core.StatusError
	}
	step.Output = out
	step.Error = result.Error
	step.CompletedAt = &completed
	step.Duration = completed.Sub(step.StartedAt)
	return nil
}

// SkipStep implements core.ExecutionRecorder.
func (m *MemoryStore) SkipStep(_ context.Context, executionID string, node core.Node, reason core.SkipReason) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if _, ok := m.executions[executionID]; !ok {
		return core.ErrNotFound("execution", executionID)
	}
	now := m.now().UTC()
	step := &core.StepLog{
		ID:          uuid.NewString(),
		ExecutionID: executionID,
		NodeID:      node.ID,
		NodeName:    node.Name(),
		NodeType:    node.Type,
		Status:      core.StatusSkipped,
		SkipReason:  reason,
		StartedAt:   now,
		CompletedAt: &now,
	}
	m.steps[executionID] = append(m.steps[executionID], step)
	m.stepIndex[step.ID] = step
	return nil
}

// CompleteExecution implements core.ExecutionRecorder.
func (m *MemoryStore) CompleteExecution(_ context.Context, executionID string, status core.ExecutionStatus, output any, errMsg string) error {
	out, err := roundTrip(output)
	if err != nil {
		return fmt.Errorf("marshaling execution output: %w", err)
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	exec, ok := m.executions[executionID]
	if !ok {
		return core.ErrNotFound("execution", executionID)
	}
	completed := m.now().UTC()
	exec.Status = status
	exec.Output = out
	exec.Error = errMsg
	exec.CompletedAt = &completed
	exec.Duration = completed.Sub(exec.StartedAt)
	return nil
}

// CloseInterrupted implements core.InterruptedRunCloser.
func (m *MemoryStore) CloseInterrupted(_ context.Context, message string) (int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	now := m.now().UTC()
	closed := 0
	for id, exec := range m.executions {
		if exec.Status != core.StatusRunning {
			continue
		}
		for _, step := range m.steps[id] {
			if step.Status == core.StatusRunning {
				step.Status = core.StatusError
				step.Error = message
				step.CompletedAt = &now
			}
		}
		exec.Status = core.StatusError
		exec.Error = message
		exec.CompletedAt = &now
		closed++
	}
	return closed, nil
}

// GetExecution implements core.ExecutionRecorder.
func (m *MemoryStore) GetExecution(_ context.Context, executionID string) (*core.ExecutionDetail, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	exec, ok := m.executions[executionID]
	if !ok {
		return nil, core.ErrNotFound("execution", executionID)
	}
	execCopy := *exec

	steps := make([]*core.StepLog, 0, len(m.steps[executionID]))
	for _, s := range m.steps[executionID] {
		c := *s
		steps = append(steps, &c)
	}
	sortSteps(steps)
	return &core.ExecutionDetail{Execution: &execCopy, Steps: steps}, nil
}

// ListExecutions implements core.ExecutionRecorder.
func (m *MemoryStore) ListExecutions(_ context.Context, workflowID core.WorkflowID, limit int) ([]*core.Execution, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	out := make([]*core.Execution, 0)
	for i := len(m.order) - 1; i >= 0; i-- {
		exec := m.executions[m.order[i]]
		if workflowID != "" && exec.WorkflowID != workflowID {
			continue
		}
		c := *exec
		out = append(out, &c)
		if limit > 0 && len(out) == limit {
			break
		}
	}
	return out, nil
}

// SaveWorkflow implements core.WorkflowStore.
func (m *MemoryStore) SaveWorkflow(_ context.Context, wf *core.Workflow) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if wf.ID == "" {
		wf.ID = core.WorkflowID(uuid.NewString())
	}
	now := m.now().UTC()
	if existing, ok := m.workflows[wf.ID]; ok && wf.CreatedAt.IsZero() {
		wf.CreatedAt = existing.CreatedAt
	}
	if wf.CreatedAt.IsZero() {
		wf.CreatedAt = now
	}
	wf.UpdatedAt = now

	c := *wf
	m.workflows[wf.ID] = &c
	return nil
}

// GetWorkflow implements core.WorkflowStore.
func (m *MemoryStore) GetWorkflow(_ context.Context, id core.WorkflowID) (*core.Workflow, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	wf, ok := m.workflows[id]
	if !ok {
		return nil, core.ErrNotFound("workflow", string(id))
	}
	c := *wf
	return &c, nil
}

// ListWorkflows implements core.WorkflowStore.
func (m *MemoryStore) ListWorkflows(_ context.Context) ([]*core.Workflow, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	out := make([]*core.Workflow, 0, len(m.workflows))
	for _, wf := range m.workflows {
		c := *wf
		out = append(out, &c)
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Name != out[j].Name {
			return out[i].Name < out[j].Name
		}
		return out[i].ID < out[j].ID
	})
	return out, nil
}

// DeleteWorkflow implements core.WorkflowStore.
func (m *MemoryStore) DeleteWorkflow(_ context.Context, id core.WorkflowID) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if _, ok := m.workflows[id]; !ok {
		return core.ErrNotFound("workflow", string(id))
	}
	delete(m.workflows, id)
	return nil
}
