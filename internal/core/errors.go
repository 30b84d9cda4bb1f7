package core

import (
	"errors"
	"fmt"
)

// ErrorCategory classifies errors for handling decisions.
type ErrorCategory string

const (
	ErrCatValidation ErrorCategory = "validation" // Invalid input or graph
	ErrCatReference  ErrorCategory = "reference"  // Unresolvable placeholder
	ErrCatExecution  ErrorCategory = "execution"  // Step failure
	ErrCatCredential ErrorCategory = "credential" // Credential lookup failure
	ErrCatTimeout    ErrorCategory = "timeout"    // Operation timed out
	ErrCatState      ErrorCategory = "state"      // Persistence failure/conflict
	ErrCatNotFound   ErrorCategory = "not_found"  // Resource not found
	ErrCatConflict   ErrorCategory = "conflict"   // Concurrent modification
	ErrCatInternal   ErrorCategory = "internal"   // Unexpected internal error
)

// DomainError represents a structured error from the domain layer.
type DomainError struct {
	Category  ErrorCategory
	Code      string
	Message   string
	Retryable bool
	Cause     error
	Details   map[string]interface{}
}

// Error implements the error interface.
func (e *DomainError) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("[%s] %s: %s (%v)", e.Category, e.Code, e.Message, e.Cause)
	}
	return fmt.Sprintf("[%s] %s: %s", e.Category, e.Code, e.Message)
}

// Unwrap returns the underlying cause.
func (e *DomainError) Unwrap() error {
	return e.Cause
}

// Is checks if this error matches a target.
func (e *DomainError) Is(target error) bool {
	t, ok := target.(*DomainError)
	if !ok {
		return false
	}
	return e.Category == t.Category && e.Code == t.Code
}

// WithCause wraps an underlying error.
func (e *DomainError) WithCause(cause error) *DomainError {
	e.Cause = cause
	return e
}

// WithDetail adds contextual information.
func (e *DomainError) WithDetail(key string, value interface{}) *DomainError {
	if e.Details == nil {
		e.Details = make(map[string]interface{})
	}
	e.Details[key] = value
	return e
}

// ErrValidation creates a validation error.
func ErrValidation(code, message string) *DomainError {
	return &DomainError{
		Category: ErrCatValidation,
		Code:     code,
		Message:  message,
	}
}

// ErrGraph creates a structural graph error. A graph error refuses the run
// before any node executes.
func ErrGraph(code, message string) *DomainError {
	return ErrValidation(code, message)
}

// ErrUnresolvedReference creates an error for a placeholder whose node is not
// present in the result map.
func ErrUnresolvedReference(placeholder string) *DomainError {
	return &DomainError{
		Category: ErrCatReference,
		Code:     CodeUnresolvedReference,
		Message:  fmt.Sprintf("unresolved reference %s", placeholder),
		Details: map[string]interface{}{
			"placeholder": placeholder,
		},
	}
}

// ErrUnknownAction creates an error for an action slug with no registered step.
func ErrUnknownAction(slug string) *DomainError {
	return &DomainError{
		Category: ErrCatValidation,
		Code:     CodeUnknownAction,
		Message:  fmt.Sprintf("unknown action %q", slug),
		Details: map[string]interface{}{
			"action_slug": slug,
		},
	}
}

// ErrStepExecution creates a step failure error.
func ErrStepExecution(message string) *DomainError {
	return &DomainError{
		Category:  ErrCatExecution,
		Code:      CodeStepFailed,
		Message:   message,
		Retryable: true,
	}
}

// ErrCredential creates a credential lookup error.
func ErrCredential(ref, message string) *DomainError {
	return &DomainError{
		Category: ErrCatCredential,
		Code:     CodeCredentialFailed,
		Message:  fmt.Sprintf("integration %s: %s", ref, message),
		Details: map[string]interface{}{
			"integration": ref,
		},
	}
}

// ErrCondition creates an error for a condition whose outcome cannot be decided.
func ErrCondition(node, message string) *DomainError {
	return &DomainError{
		Category: ErrCatExecution,
		Code:     CodeConditionFailed,
		Message:  fmt.Sprintf("condition %s: %s", node, message),
		Details: map[string]interface{}{
			"node": node,
		},
	}
}

// ErrTimeout creates a timeout error.
func ErrTimeout(message string) *DomainError {
	return &DomainError{
		Category: ErrCatTimeout,
		Code:     "TIMEOUT",
		Message:  message,
	}
}

// ErrState creates a state error.
func ErrState(code, message string) *DomainError {
	return &DomainError{
		Category: ErrCatState,
		Code:     code,
		Message:  message,
	}
}

// ErrNotFound creates a not found error.
func ErrNotFound(resource, id string) *DomainError {
	return &DomainError{
		Category: ErrCatNotFound,
		Code:     "NOT_FOUND",
		Message:  fmt.Sprintf("%s not found: %s", resource, id),
	}
}

// IsRetryable checks if an error is retryable.
func IsRetryable(err error) bool {
	var domErr *DomainError
	if errors.As(err, &domErr) {
		return domErr.Retryable
	}
	return false
}

// GetCategory extracts the error category.
func GetCategory(err error) ErrorCategory {
	var domErr *DomainError
	if errors.As(err, &domErr) {
		return domErr.Category
	}
	return ErrCatInternal
}

// IsCategory checks if an error belongs to a category.
func IsCategory(err error, cat ErrorCategory) bool {
	return GetCategory(err) == cat
}

// HasCode reports whether err is a DomainError carrying code.
func HasCode(err error, code string) bool {
	var domErr *DomainError
	if errors.As(err, &domErr) {
		return domErr.Code == code
	}
	return false
}

// ErrorMessage returns the human-readable message of err without the
// category and code prefix a DomainError adds.
func ErrorMessage(err error) string {
	if err == nil {
		return ""
	}
	var domErr *DomainError
	if errors.As(err, &domErr) && domErr.Message != "" {
		return domErr.Message
	}
	return err.Error()
}

// Predefined error codes
const (
	// Graph validation
	CodeGraphEmpty      = "GRAPH_EMPTY"
	CodeDuplicateNode   = "DUPLICATE_NODE"
	CodeDuplicateLabel  = "DUPLICATE_LABEL"
	CodeUnknownEdgeNode = "UNKNOWN_EDGE_NODE"
	CodeGraphCycle      = "GRAPH_CYCLE"
	CodeNoEntryNode     = "NO_ENTRY_NODE"
	CodeInvalidNodeType = "INVALID_NODE_TYPE"

	// Per-node execution
	CodeUnresolvedReference = "UNRESOLVED_REFERENCE"
	CodeUnknownAction       = "UNKNOWN_ACTION"
	CodeStepFailed          = "STEP_FAILED"
	CodeCredentialFailed    = "CREDENTIAL_FAILED"
	CodeConditionFailed     = "CONDITION_FAILED"

	// Persistence
	CodeExecutionNotFound = "EXECUTION_NOT_FOUND"
	CodeWorkflowNotFound  = "WORKFLOW_NOT_FOUND"
	CodeStateCorrupted    = "STATE_CORRUPTED"
)
