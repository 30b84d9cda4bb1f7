package workflow

import (
	"context"
	"sync"

	"github.com/hugo-lorenzo-mato/flowrun/internal/core"
	"github.com/hugo-lorenzo-mato/flowrun/internal/logging"
	"github.com/hugo-lorenzo-mato/flowrun/internal/service"
)

// InterruptedMessage is the error recorded on executions that were running
// when the previous process stopped.
const InterruptedMessage = "interrupted"

// Runner starts executions without waiting for them to finish.
type Runner struct {
	engine    *Engine
	recorder  core.ExecutionRecorder
	workflows core.WorkflowStore
	logger    *logging.Logger

	wg     sync.WaitGroup
	mu     sync.Mutex
	active map[string]context.CancelFunc
}

// NewRunner creates a runner. workflows may be nil when runs are only
// started from in-memory definitions.
func NewRunner(engine *Engine, recorder core.ExecutionRecorder, workflows core.WorkflowStore, logger *logging.Logger) *Runner {
	if logger == nil {
		logger = logging.NewNop()
	}
	return &Runner{
		engine:    engine,
		recorder:  recorder,
		workflows: workflows,
		logger:    logger,
		active:    make(map[string]context.CancelFunc),
	}
}

// Start validates wf, creates its execution and returns the execution id.
// The graph is interpreted in the background; ctx only bounds the setup and
// cancelling it does not stop the run. A graph error creates no execution.
func (r *Runner) Start(ctx context.Context, wf *core.Workflow, input map[string]any, userID string) (string, error) {
	if _, err := r.engine.Validate(wf.Nodes, wf.Edges); err != nil {
		return "", err
	}

	run := core.RunContext{WorkflowID: wf.ID, UserID: userID, Input: input}
	id, err := r.recorder.BeginExecution(ctx, run)
	if err != nil {
		return "", err
	}
	run.ExecutionID = id

	runCtx, cancel := context.WithCancel(context.WithoutCancel(ctx))
	r.mu.Lock()
	r.active[id] = cancel
	r.mu.Unlock()

	nodes, edges := wf.Nodes, wf.Edges
	r.wg.Add(1)
	go func() {
		defer r.wg.Done()
		defer func() {
			r.mu.Lock()
			delete(r.active, id)
			r.mu.Unlock()
			cancel()
		}()

		if _, err := r.engine.Run(runCtx, nodes, edges, run); err != nil {
			// Validation already passed, so only recording can fail here.
			r.logger.Error("runner: execution aborted", "execution_id", id, "error", err)
			_ = r.recorder.CompleteExecution(context.WithoutCancel(runCtx), id, core.StatusError, nil, core.ErrorMessage(err))
		}
	}()

	r.logger.Info("runner: execution started", "workflow_id", wf.ID, "execution_id", id)
	return id, nil
}

// StartByID loads a stored workflow and starts it.
func (r *Runner) StartByID(ctx context.Context, id core.WorkflowID, input map[string]any, userID string) (string, error) {
	wf, err := r.load(ctx, id)
	if err != nil {
		return "", err
	}
	if userID == "" {
		userID = wf.UserID
	}
	return r.Start(ctx, wf, input, userID)
}

// RunSync interprets wf to completion in the calling goroutine.
func (r *Runner) RunSync(ctx context.Context, wf *core.Workflow, input map[string]any, userID string) (*RunReport, error) {
	return r.engine.Run(ctx, wf.Nodes, wf.Edges, core.RunContext{
		WorkflowID: wf.ID,
		UserID:     userID,
		Input:      input,
	})
}

// Validate checks the graph of wf without creating an execution.
func (r *Runner) Validate(wf *core.Workflow) (*service.GraphPlan, error) {
	return r.engine.Validate(wf.Nodes, wf.Edges)
}

// CheckActions reports the first node of wf whose action is not registered.
func (r *Runner) CheckActions(wf *core.Workflow) error {
	return r.engine.CheckActions(wf.Nodes)
}

func (r *Runner) load(ctx context.Context, id core.WorkflowID) (*core.Workflow, error) {
	if r.workflows == nil {
		return nil, core.ErrNotFound("workflow", string(id))
	}
	return r.workflows.GetWorkflow(ctx, id)
}

// Cancel stops a background execution. Nodes already dispatched are
// abandoned and recorded as failed.
func (r *Runner) Cancel(executionID string) bool {
	r.mu.Lock()
	cancel, ok := r.active[executionID]
	r.mu.Unlock()
	if ok {
		cancel()
	}
	return ok
}

// Active returns the number of executions still running in the background.
func (r *Runner) Active() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.active)
}

// Wait blocks until every background execution finished or ctx is done.
func (r *Runner) Wait(ctx context.Context) error {
	done := make(chan struct{})
	go func() {
		r.wg.Wait()
		close(done)
	}()
	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// RecoverInterrupted closes executions left running by a previous process.
// Runs are not resumed.
func (r *Runner) RecoverInterrupted(ctx context.Context) (int, error) {
	closer, ok := r.recorder.(core.InterruptedRunCloser)
	if !ok {
		return 0, nil
	}
	n, err := closer.CloseInterrupted(ctx, InterruptedMessage)
	if err != nil {
		return 0, err
	}
	if n > 0 {
		r.logger.Warn("runner: closed interrupted executions", "count", n)
	}
	return n, nil
}
