package core

import "time"

// ExecutionStatus is the state of a run or of a single node within it.
type ExecutionStatus string

const (
	StatusPending ExecutionStatus = "pending"
	StatusRunning ExecutionStatus = "running"
	StatusSuccess ExecutionStatus = "success"
	StatusError   ExecutionStatus = "error"
	StatusSkipped ExecutionStatus = "skipped"
)

// IsTerminal reports whether no further transition is possible.
func (s ExecutionStatus) IsTerminal() bool {
	return s == StatusSuccess || s == StatusError || s == StatusSkipped
}

// SkipReason explains why a node never ran.
type SkipReason string

const (
	SkipBranchNotTaken SkipReason = "branch_not_taken"
	SkipAncestorFailed SkipReason = "ancestor_failed"
	// SkipCancelled marks nodes that were still pending when the run was
	// cancelled or timed out.
	SkipCancelled SkipReason = "cancelled"
)

// Execution is the durable record of one run.
type Execution struct {
	ID          string          `json:"id"`
	WorkflowID  WorkflowID      `json:"workflowId"`
	UserID      string          `json:"userId,omitempty"`
	Status      ExecutionStatus `json:"status"`
	Input       map[string]any  `json:"input,omitempty"`
	Output      any             `json:"output,omitempty"`
	Error       string          `json:"error,omitempty"`
	StartedAt   time.Time       `json:"startedAt"`
	CompletedAt *time.Time      `json:"completedAt,omitempty"`
	Duration    time.Duration   `json:"duration"`
}

// StepLog is the durable record of one node within a run.
type StepLog struct {
	ID          string          `json:"id"`
	ExecutionID string          `json:"executionId"`
	NodeID      string          `json:"nodeId"`
	NodeName    string          `json:"nodeName"`
	NodeType    NodeType        `json:"nodeType"`
	Status      ExecutionStatus `json:"status"`
	Input       map[string]any  `json:"input,omitempty"`
	Output      any             `json:"output,omitempty"`
	Error       string          `json:"error,omitempty"`
	SkipReason  SkipReason      `json:"skipReason,omitempty"`
	StartedAt   time.Time       `json:"startedAt"`
	CompletedAt *time.Time      `json:"completedAt,omitempty"`
	Duration    time.Duration   `json:"duration"`
}

// ExecutionDetail is an execution with its step logs ordered by start time.
type ExecutionDetail struct {
	Execution *Execution `json:"execution"`
	Steps     []*StepLog `json:"steps"`
}

// StepResult is the uniform envelope every step outcome is normalised into.
type StepResult struct {
	Success bool   `json:"success"`
	Data    any    `json:"data,omitempty"`
	Error   string `json:"error,omitempty"`
}

// Succeeded builds a successful result.
func Succeeded(data any) StepResult {
	return StepResult{Success: true, Data: data}
}

// Failed builds a failed result.
func Failed(msg string) StepResult {
	return StepResult{Success: false, Error: msg}
}

// RunContext identifies the run a graph is interpreted for.
type RunContext struct {
	ExecutionID string
	WorkflowID  WorkflowID
	UserID      string
	Input       map[string]any
}

// ResultMap maps node ids and labels to the node's output.
type ResultMap map[string]any

// Put stores an output under the node id and, when set, its label.
func (m ResultMap) Put(node Node, output any) {
	m[node.ID] = output
	if node.Data.Label != "" {
		m[node.Data.Label] = output
	}
}

// Remove deletes the entries Put stored for node.
func (m ResultMap) Remove(node Node) {
	delete(m, node.ID)
	if node.Data.Label != "" {
		delete(m, node.Data.Label)
	}
}

// Lookup returns the output stored under key.
func (m ResultMap) Lookup(key string) (any, bool) {
	v, ok := m[key]
	return v, ok
}
