package core

import "context"

// ExecutionRecorder persists executions and step logs. It is the only writer
// to those records after creation.
type ExecutionRecorder interface {
	// BeginExecution creates a running execution and returns its id.
	BeginExecution(ctx context.Context, run RunContext) (string, error)

	// BeginStep creates a running step log for node and returns its id.
	BeginStep(ctx context.Context, executionID string, node Node, input map[string]any) (string, error)

	// CompleteStep closes a step log with the result of the node.
	CompleteStep(ctx context.Context, stepLogID string, result StepResult) error

	// SkipStep records a skip marker for a node that never ran.
	SkipStep(ctx context.Context, executionID string, node Node, reason SkipReason) error

	// CompleteExecution moves an execution to its terminal state.
	CompleteExecution(ctx context.Context, executionID string, status ExecutionStatus, output any, errMsg string) error

	// GetExecution returns the execution and its step logs ordered by start time.
	GetExecution(ctx context.Context, executionID string) (*ExecutionDetail, error)

	// ListExecutions returns executions of a workflow, newest first.
	// An empty workflow id lists all executions.
	ListExecutions(ctx context.Context, workflowID WorkflowID, limit int) ([]*Execution, error)
}

// WorkflowStore persists workflow definitions.
type WorkflowStore interface {
	SaveWorkflow(ctx context.Context, wf *Workflow) error
	GetWorkflow(ctx context.Context, id WorkflowID) (*Workflow, error)
	ListWorkflows(ctx context.Context) ([]*Workflow, error)
	DeleteWorkflow(ctx context.Context, id WorkflowID) error
}

// CredentialFetcher resolves an integration reference to secret values.
type CredentialFetcher interface {
	FetchCredentials(ctx context.Context, integrationRef string) (map[string]string, error)
}

// CredentialFetcherFunc adapts a function to CredentialFetcher.
type CredentialFetcherFunc func(ctx context.Context, integrationRef string) (map[string]string, error)

// FetchCredentials calls f.
func (f CredentialFetcherFunc) FetchCredentials(ctx context.Context, ref string) (map[string]string, error) {
	return f(ctx, ref)
}

// InterruptedRunCloser is implemented by recorders that can close executions
// left running by a previous process. Running step logs of those executions
// are closed as well.
type InterruptedRunCloser interface {
	CloseInterrupted(ctx context.Context, message string) (int, error)
}
