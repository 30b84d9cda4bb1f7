package api

import (
	"errors"
	"io"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
	json "github.com/goccy/go-json"

	"github.com/hugo-lorenzo-mato/flowrun/internal/core"
)

const (
	defaultListLimit = 50
	maxListLimit     = 500
)

// StartExecutionRequest is the optional body of an execution request.
type StartExecutionRequest struct {
	Input  map[string]any `json:"input,omitempty"`
	UserID string         `json:"userId,omitempty"`
}

// StartExecutionResponse acknowledges an execution running in the background.
type StartExecutionResponse struct {
	ExecutionID string               `json:"executionId"`
	WorkflowID  core.WorkflowID      `json:"workflowId"`
	Status      core.ExecutionStatus `json:"status"`
}

// handleStartExecution starts a stored workflow and returns before it finishes.
func (s *Server) handleStartExecution(w http.ResponseWriter, r *http.Request) {
	wf, ok := s.loadWorkflow(w, r)
	if !ok {
		return
	}

	var req StartExecutionRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil && !errors.Is(err, io.EOF) {
		respondError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	userID := req.UserID
	if userID == "" {
		userID = wf.UserID
	}

	id, err := s.runner.Start(r.Context(), wf, req.Input, userID)
	if err != nil {
		s.respondDomainError(w, err, "failed to start execution")
		return
	}

	w.Header().Set("Location", "/api/v1/executions/"+id)
	respondJSON(w, http.StatusAccepted, StartExecutionResponse{
		ExecutionID: id,
		WorkflowID:  wf.ID,
		Status:      core.StatusRunning,
	})
}

// handleListWorkflowExecutions lists executions of one workflow, newest first.
func (s *Server) handleListWorkflowExecutions(w http.ResponseWriter, r *http.Request) {
	s.listExecutions(w, r, core.WorkflowID(chi.URLParam(r, "workflowID")))
}

// handleListExecutions lists executions of every workflow, newest first.
func (s *Server) handleListExecutions(w http.ResponseWriter, r *http.Request) {
	s.listExecutions(w, r, core.WorkflowID(r.URL.Query().Get("workflow_id")))
}

func (s *Server) listExecutions(w http.ResponseWriter, r *http.Request, workflowID core.WorkflowID) {
	limit, err := parseLimit(r.URL.Query().Get("limit"))
	if err != nil {
		respondError(w, http.StatusBadRequest, err.Error())
		return
	}

	list, err := s.executions.ListExecutions(r.Context(), workflowID, limit)
	if err != nil {
		s.respondDomainError(w, err, "failed to list executions")
		return
	}
	if list == nil {
		list = []*core.Execution{}
	}
	respondJSON(w, http.StatusOK, list)
}

// handleGetExecution returns an execution with its step logs.
func (s *Server) handleGetExecution(w http.ResponseWriter, r *http.Request) {
	detail, err := s.executions.GetExecution(r.Context(), chi.URLParam(r, "executionID"))
	if err != nil {
		s.respondDomainError(w, err, "failed to load execution")
		return
	}
	if detail.Steps == nil {
		detail.Steps = []*core.StepLog{}
	}
	respondJSON(w, http.StatusOK, detail)
}

// handleCancelExecution stops a background execution.
func (s *Server) handleCancelExecution(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "executionID")
	if s.runner.Cancel(id) {
		respondJSON(w, http.StatusAccepted, map[string]string{
			"executionId": id,
			"status":      "cancelling",
		})
		return
	}

	if _, err := s.executions.GetExecution(r.Context(), id); err != nil {
		s.respondDomainError(w, err, "failed to load execution")
		return
	}
	respondError(w, http.StatusConflict, "execution is not running")
}

func parseLimit(raw string) (int, error) {
	if raw == "" {
		return defaultListLimit, nil
	}
	n, err := strconv.Atoi(raw)
	if err != nil || n < 1 {
		return 0, errors.New("limit must be a positive integer")
	}
	if n > maxListLimit {
		n = maxListLimit
	}
	return n, nil
}
