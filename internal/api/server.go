// Package api provides the HTTP REST API of the workflow engine.
package api

import (
	"context"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	json "github.com/goccy/go-json"
	"github.com/rs/cors"

	"github.com/hugo-lorenzo-mato/flowrun/internal/core"
	"github.com/hugo-lorenzo-mato/flowrun/internal/events"
	"github.com/hugo-lorenzo-mato/flowrun/internal/logging"
	"github.com/hugo-lorenzo-mato/flowrun/internal/service/workflow"
)

// Server provides HTTP REST API endpoints for workflows and executions.
type Server struct {
	router     chi.Router
	workflows  core.WorkflowStore
	executions core.ExecutionRecorder
	runner     *workflow.Runner
	eventBus   *events.EventBus
	logger     *logging.Logger

	allowedOrigins []string
	corsEnabled    bool
}

// ServerOption configures the server.
type ServerOption func(*Server)

// WithLogger sets the server logger.
func WithLogger(logger *logging.Logger) ServerOption {
	return func(s *Server) {
		s.logger = logger
	}
}

// WithCORS enables CORS for the given origins. An empty list allows any origin.
func WithCORS(origins []string) ServerOption {
	return func(s *Server) {
		s.corsEnabled = true
		s.allowedOrigins = origins
	}
}

// WithEventBus enables the SSE endpoint.
func WithEventBus(bus *events.EventBus) ServerOption {
	return func(s *Server) {
		s.eventBus = bus
	}
}

// NewServer creates a new API server.
func NewServer(workflows core.WorkflowStore, executions core.ExecutionRecorder, runner *workflow.Runner, opts ...ServerOption) *Server {
	s := &Server{
		workflows:  workflows,
		executions: executions,
		runner:     runner,
		logger:     logging.NewNop(),
	}

	for _, opt := range opts {
		opt(s)
	}

	s.router = s.setupRouter()
	return s
}

// Handler returns the HTTP handler for the server.
func (s *Server) Handler() http.Handler {
	return s.router
}

// setupRouter configures Chi router with all routes and middleware.
func (s *Server) setupRouter() chi.Router {
	r := chi.NewRouter()

	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Recoverer)
	r.Use(s.loggingMiddleware)

	if s.corsEnabled {
		origins := s.allowedOrigins
		if len(origins) == 0 {
			origins = []string{"*"}
		}
		corsHandler := cors.New(cors.Options{
			AllowedOrigins:   origins,
			AllowedMethods:   []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"},
			AllowedHeaders:   []string{"Accept", "Content-Type", "X-Requested-With"},
			AllowCredentials: false,
			MaxAge:           300,
		})
		r.Use(corsHandler.Handler)
	}

	r.Get("/health", s.handleHealth)

	r.Route("/api/v1", func(r chi.Router) {
		// SSE streams stay open, so only the request/response routes get a timeout
		r.Group(func(r chi.Router) {
			r.Use(middleware.Timeout(60 * time.Second))

			r.Route("/workflows", func(r chi.Router) {
				r.Get("/", s.handleListWorkflows)
				r.Post("/", s.handleCreateWorkflow)

				r.Route("/{workflowID}", func(r chi.Router) {
					r.Get("/", s.handleGetWorkflow)
					r.Put("/", s.handleUpdateWorkflow)
					r.Delete("/", s.handleDeleteWorkflow)
					r.Post("/validate", s.handleValidateWorkflow)
					r.Post("/executions", s.handleStartExecution)
					r.Get("/executions", s.handleListWorkflowExecutions)
				})
			})

			r.Route("/executions", func(r chi.Router) {
				r.Get("/", s.handleListExecutions)
				r.Get("/{executionID}", s.handleGetExecution)
				r.Post("/{executionID}/cancel", s.handleCancelExecution)
			})
		})

		r.Get("/events", s.handleSSE)
	})

	return r
}

// loggingMiddleware logs HTTP requests.
func (s *Server) loggingMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)

		defer func() {
			s.logger.Info("http request",
				"method", r.Method,
				"path", r.URL.Path,
				"status", ww.Status(),
				"duration", time.Since(start),
				"bytes", ww.BytesWritten(),
			)
		}()

		next.ServeHTTP(ww, r)
	})
}

// ErrorResponse is the body of every error response.
type ErrorResponse struct {
	Error string `json:"error"`
	Code  string `json:"code,omitempty"`
}

// respondJSON sends a JSON response.
func respondJSON(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if data != nil {
		_ = json.NewEncoder(w).Encode(data)
	}
}

// respondError sends a JSON error response.
func respondError(w http.ResponseWriter, status int, message string) {
	respondJSON(w, status, ErrorResponse{Error: message})
}

// handleHealth returns server health status.
func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	body := map[string]interface{}{
		"status": "healthy",
		"time":   time.Now().UTC().Format(time.RFC3339),
	}
	if s.runner != nil {
		body["active_executions"] = s.runner.Active()
	}
	respondJSON(w, http.StatusOK, body)
}

// ListenAndServe starts the HTTP server and shuts it down when ctx is done.
func (s *Server) ListenAndServe(ctx context.Context, addr string) error {
	srv := &http.Server{
		Addr:              addr,
		Handler:           s.router,
		ReadHeaderTimeout: 10 * time.Second,
	}

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = srv.Shutdown(shutdownCtx)
	}()

	s.logger.Info("starting API server", "addr", addr)
	if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		return err
	}
	return nil
}
