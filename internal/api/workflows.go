package api

import (
	"errors"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	json "github.com/goccy/go-json"

	"github.com/hugo-lorenzo-mato/flowrun/internal/core"
)

// WorkflowSummary is the list representation of a stored workflow.
type WorkflowSummary struct {
	ID          core.WorkflowID `json:"id"`
	Name        string          `json:"name"`
	Description string          `json:"description,omitempty"`
	NodeCount   int             `json:"nodeCount"`
	EdgeCount   int             `json:"edgeCount"`
	CreatedAt   time.Time       `json:"createdAt"`
	UpdatedAt   time.Time       `json:"updatedAt"`
}

// ValidationResponse reports whether a workflow graph can run.
type ValidationResponse struct {
	Valid    bool       `json:"valid"`
	Error    string     `json:"error,omitempty"`
	Code     string     `json:"code,omitempty"`
	Order    []string   `json:"order,omitempty"`
	Levels   [][]string `json:"levels,omitempty"`
	Entries  []string   `json:"entries,omitempty"`
	Warnings []string   `json:"warnings,omitempty"`
}

// handleListWorkflows lists stored workflows.
func (s *Server) handleListWorkflows(w http.ResponseWriter, r *http.Request) {
	list, err := s.workflows.ListWorkflows(r.Context())
	if err != nil {
		s.respondDomainError(w, err, "failed to list workflows")
		return
	}

	out := make([]WorkflowSummary, 0, len(list))
	for _, wf := range list {
		out = append(out, WorkflowSummary{
			ID:          wf.ID,
			Name:        wf.Name,
			Description: wf.Description,
			NodeCount:   len(wf.Nodes),
			EdgeCount:   len(wf.Edges),
			CreatedAt:   wf.CreatedAt,
			UpdatedAt:   wf.UpdatedAt,
		})
	}
	respondJSON(w, http.StatusOK, out)
}

// handleCreateWorkflow stores a new workflow after validating its graph.
func (s *Server) handleCreateWorkflow(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	var wf core.Workflow
	if err := json.NewDecoder(r.Body).Decode(&wf); err != nil {
		respondError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if wf.Name == "" {
		respondError(w, http.StatusBadRequest, "name is required")
		return
	}

	if wf.ID != "" {
		if _, err := s.workflows.GetWorkflow(ctx, wf.ID); err == nil {
			respondError(w, http.StatusConflict, "workflow already exists")
			return
		} else if !core.IsCategory(err, core.ErrCatNotFound) {
			s.respondDomainError(w, err, "failed to create workflow")
			return
		}
	}

	if _, err := s.runner.Validate(&wf); err != nil {
		s.respondDomainError(w, err, "invalid workflow")
		return
	}
	if err := s.workflows.SaveWorkflow(ctx, &wf); err != nil {
		s.respondDomainError(w, err, "failed to create workflow")
		return
	}

	s.logger.Info("api: workflow created", "workflow_id", wf.ID)
	respondJSON(w, http.StatusCreated, wf)
}

// handleGetWorkflow returns a stored workflow.
func (s *Server) handleGetWorkflow(w http.ResponseWriter, r *http.Request) {
	wf, ok := s.loadWorkflow(w, r)
	if !ok {
		return
	}
	respondJSON(w, http.StatusOK, wf)
}

// handleUpdateWorkflow replaces the graph and metadata of a stored workflow.
func (s *Server) handleUpdateWorkflow(w http.ResponseWriter, r *http.Request) {
	existing, ok := s.loadWorkflow(w, r)
	if !ok {
		return
	}

	var wf core.Workflow
	if err := json.NewDecoder(r.Body).Decode(&wf); err != nil {
		respondError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	wf.ID = existing.ID
	wf.CreatedAt = existing.CreatedAt
	if wf.Name == "" {
		wf.Name = existing.Name
	}

	if _, err := s.runner.Validate(&wf); err != nil {
		s.respondDomainError(w, err, "invalid workflow")
		return
	}
	if err := s.workflows.SaveWorkflow(r.Context(), &wf); err != nil {
		s.respondDomainError(w, err, "failed to update workflow")
		return
	}
	respondJSON(w, http.StatusOK, wf)
}

// handleDeleteWorkflow removes a stored workflow. Past executions are kept.
func (s *Server) handleDeleteWorkflow(w http.ResponseWriter, r *http.Request) {
	id := core.WorkflowID(chi.URLParam(r, "workflowID"))
	if err := s.workflows.DeleteWorkflow(r.Context(), id); err != nil {
		s.respondDomainError(w, err, "failed to delete workflow")
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// handleValidateWorkflow checks the stored graph without running it.
func (s *Server) handleValidateWorkflow(w http.ResponseWriter, r *http.Request) {
	wf, ok := s.loadWorkflow(w, r)
	if !ok {
		return
	}

	plan, err := s.runner.Validate(wf)
	if err != nil {
		var domErr *core.DomainError
		if !errors.As(err, &domErr) {
			s.respondDomainError(w, err, "failed to validate workflow")
			return
		}
		respondJSON(w, http.StatusUnprocessableEntity, ValidationResponse{
			Valid: false,
			Error: domErr.Message,
			Code:  domErr.Code,
		})
		return
	}

	resp := ValidationResponse{
		Valid:   true,
		Order:   plan.Order,
		Levels:  plan.Levels,
		Entries: plan.Entries,
	}
	if err := s.runner.CheckActions(wf); err != nil {
		resp.Warnings = append(resp.Warnings, core.ErrorMessage(err))
	}
	respondJSON(w, http.StatusOK, resp)
}

// loadWorkflow fetches the workflow named in the path, writing the error
// response itself when it cannot.
func (s *Server) loadWorkflow(w http.ResponseWriter, r *http.Request) (*core.Workflow, bool) {
	id := chi.URLParam(r, "workflowID")
	if id == "" {
		respondError(w, http.StatusBadRequest, "workflow ID is required")
		return nil, false
	}

	wf, err := s.workflows.GetWorkflow(r.Context(), core.WorkflowID(id))
	if err != nil {
		s.respondDomainError(w, err, "failed to load workflow")
		return nil, false
	}
	return wf, true
}
