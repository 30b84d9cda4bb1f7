package events

import "time"

// Event type constants for execution events.
const (
	TypeExecutionStarted   = "execution_started"
	TypeStepStarted        = "step_started"
	TypeStepCompleted      = "step_completed"
	TypeStepSkipped        = "step_skipped"
	TypeExecutionCompleted = "execution_completed"
	TypeExecutionFailed    = "execution_failed"
)

// ExecutionStartedEvent is emitted once the execution record exists.
type ExecutionStartedEvent struct {
	BaseEvent
	NodeCount int `json:"node_count"`
}

// NewExecutionStartedEvent creates a new execution started event.
func NewExecutionStartedEvent(workflowID, executionID string, nodeCount int) ExecutionStartedEvent {
	return ExecutionStartedEvent{
		BaseEvent: NewBaseEvent(TypeExecutionStarted, workflowID, executionID),
		NodeCount: nodeCount,
	}
}

// StepStartedEvent is emitted when a node is dispatched.
type StepStartedEvent struct {
	BaseEvent
	NodeID   string `json:"node_id"`
	NodeName string `json:"node_name"`
	NodeType string `json:"node_type"`
}

// NewStepStartedEvent creates a new step started event.
func NewStepStartedEvent(workflowID, executionID, nodeID, nodeName, nodeType string) StepStartedEvent {
	return StepStartedEvent{
		BaseEvent: NewBaseEvent(TypeStepStarted, workflowID, executionID),
		NodeID:    nodeID,
		NodeName:  nodeName,
		NodeType:  nodeType,
	}
}

// StepCompletedEvent is emitted when a node reaches success or error.
type StepCompletedEvent struct {
	BaseEvent
	NodeID   string        `json:"node_id"`
	NodeName string        `json:"node_name"`
	Status   string        `json:"status"`
	Error    string        `json:"error,omitempty"`
	Duration time.Duration `json:"duration"`
}

// NewStepCompletedEvent creates a new step completed event.
func NewStepCompletedEvent(workflowID, executionID, nodeID, nodeName, status, errMsg string, duration time.Duration) StepCompletedEvent {
	return StepCompletedEvent{
		BaseEvent: NewBaseEvent(TypeStepCompleted, workflowID, executionID),
		NodeID:    nodeID,
		NodeName:  nodeName,
		Status:    status,
		Error:     errMsg,
		Duration:  duration,
	}
}

// StepSkippedEvent is emitted when a node is skipped.
type StepSkippedEvent struct {
	BaseEvent
	NodeID   string `json:"node_id"`
	NodeName string `json:"node_name"`
	Reason   string `json:"reason"`
}

// NewStepSkippedEvent creates a new step skipped event.
func NewStepSkippedEvent(workflowID, executionID, nodeID, nodeName, reason string) StepSkippedEvent {
	return StepSkippedEvent{
		BaseEvent: NewBaseEvent(TypeStepSkipped, workflowID, executionID),
		NodeID:    nodeID,
		NodeName:  nodeName,
		Reason:    reason,
	}
}

// ExecutionCompletedEvent is emitted when a run ends in success.
// This is a PRIORITY event - never dropped.
type ExecutionCompletedEvent struct {
	BaseEvent
	Duration  time.Duration `json:"duration"`
	Succeeded int           `json:"succeeded"`
	Skipped   int           `json:"skipped"`
}

// NewExecutionCompletedEvent creates a new execution completed event.
func NewExecutionCompletedEvent(workflowID, executionID string, duration time.Duration, succeeded, skipped int) ExecutionCompletedEvent {
	return ExecutionCompletedEvent{
		BaseEvent: NewBaseEvent(TypeExecutionCompleted, workflowID, executionID),
		Duration:  duration,
		Succeeded: succeeded,
		Skipped:   skipped,
	}
}

// ExecutionFailedEvent is emitted when a run ends in error.
// This is a PRIORITY event - never dropped.
type ExecutionFailedEvent struct {
	BaseEvent
	Error    string        `json:"error"`
	Duration time.Duration `json:"duration"`
	Failed   int           `json:"failed"`
}

// NewExecutionFailedEvent creates a new execution failed event.
func NewExecutionFailedEvent(workflowID, executionID, errMsg string, duration time.Duration, failed int) ExecutionFailedEvent {
	return ExecutionFailedEvent{
		BaseEvent: NewBaseEvent(TypeExecutionFailed, workflowID, executionID),
		Error:     errMsg,
		Duration:  duration,
		Failed:    failed,
	}
}
