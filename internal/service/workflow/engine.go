package workflow

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"time"

	json "github.com/goccy/go-json"

	"github.com/hugo-lorenzo-mato/flowrun/internal/core"
	"github.com/hugo-lorenzo-mato/flowrun/internal/events"
	"github.com/hugo-lorenzo-mato/flowrun/internal/logging"
	"github.com/hugo-lorenzo-mato/flowrun/internal/service"
	"github.com/hugo-lorenzo-mato/flowrun/internal/service/reference"
)

// EngineConfig holds scheduling limits.
type EngineConfig struct {
	// MaxParallel bounds concurrently running nodes. 1 runs nodes strictly
	// in topological order.
	MaxParallel int
	// RunTimeout bounds a whole run. Zero disables it.
	RunTimeout time.Duration
}

// DefaultEngineConfig returns the default scheduling limits.
func DefaultEngineConfig() EngineConfig {
	return EngineConfig{MaxParallel: 4}
}

// RunReport is the outcome of one run.
type RunReport struct {
	ExecutionID string
	Status      core.ExecutionStatus
	Output      any
	Error       string
	Results     map[string]core.StepResult // by node id, nodes that ran
	Skipped     map[string]core.SkipReason // by node id, nodes that never ran
	Duration    time.Duration
}

// Engine interprets a workflow graph to completion.
type Engine struct {
	dispatcher *Dispatcher
	recorder   core.ExecutionRecorder
	evaluator  ConditionEvaluator
	events     events.Publisher
	logger     *logging.Logger
	config     EngineConfig
}

// NewEngine creates an engine.
func NewEngine(dispatcher *Dispatcher, recorder core.ExecutionRecorder, cfg EngineConfig, logger *logging.Logger) *Engine {
	if logger == nil {
		logger = logging.NewNop()
	}
	if cfg.MaxParallel < 1 {
		cfg.MaxParallel = 1
	}
	return &Engine{
		dispatcher: dispatcher,
		recorder:   recorder,
		evaluator:  DefaultConditionEvaluator(),
		logger:     logger,
		config:     cfg,
	}
}

// WithEvaluator replaces the condition evaluator.
func (e *Engine) WithEvaluator(evaluator ConditionEvaluator) *Engine {
	e.evaluator = evaluator
	return e
}

// WithEvents publishes execution events to p.
func (e *Engine) WithEvents(p events.Publisher) *Engine {
	e.events = p
	return e
}

// Validate checks the graph without running it.
func (e *Engine) Validate(nodes []core.Node, edges []core.Edge) (*service.GraphPlan, error) {
	return service.ValidateGraph(nodes, edges)
}

// CheckActions reports the first node whose action is not registered.
// Run does not require it: such nodes fail individually.
func (e *Engine) CheckActions(nodes []core.Node) error {
	return e.dispatcher.CheckActions(nodes)
}

// Run validates the graph and interprets it to completion. A graph error is
// returned before anything is recorded. When run.ExecutionID is empty a new
// execution is created, otherwise the existing one is driven to completion.
func (e *Engine) Run(ctx context.Context, nodes []core.Node, edges []core.Edge, run core.RunContext) (*RunReport, error) {
	plan, err := service.ValidateGraph(nodes, edges)
	if err != nil {
		return nil, err
	}

	// Records must land even when ctx is cancelled mid-run.
	recCtx := context.WithoutCancel(ctx)

	if run.ExecutionID == "" {
		id, err := e.recorder.BeginExecution(recCtx, run)
		if err != nil {
			return nil, err
		}
		run.ExecutionID = id
	}

	return e.execute(ctx, recCtx, plan, run), nil
}

func (e *Engine) execute(ctx, recCtx context.Context, plan *service.GraphPlan, run core.RunContext) *RunReport {
	if e.config.RunTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, e.config.RunTimeout)
		defer cancel()
	}

	logger := e.logger.WithWorkflow(string(run.WorkflowID)).WithExecution(run.ExecutionID)
	logger.Info("engine: execution started", "nodes", len(plan.Order), "max_parallel", e.config.MaxParallel)
	e.publish(events.NewExecutionStartedEvent(string(run.WorkflowID), run.ExecutionID, len(plan.Order)), false)

	s := newScheduler(e, plan, run, recCtx, logger)
	start := time.Now()
	s.loop(ctx)
	report := s.finish(time.Since(start))

	if err := e.recorder.CompleteExecution(recCtx, run.ExecutionID, report.Status, report.Output, report.Error); err != nil {
		logger.Error("engine: failed to complete execution", "error", err)
	}

	failed := 0
	for _, r := range report.Results {
		if !r.Success {
			failed++
		}
	}
	if report.Status == core.StatusSuccess {
		logger.Info("engine: execution completed",
			"status", report.Status,
			"duration", report.Duration,
			"skipped", len(report.Skipped),
		)
		e.publish(events.NewExecutionCompletedEvent(string(run.WorkflowID), run.ExecutionID,
			report.Duration, len(report.Results), len(report.Skipped)), true)
	} else {
		logger.Warn("engine: execution failed",
			"status", report.Status,
			"duration", report.Duration,
			"failed", failed,
			"error", report.Error,
		)
		e.publish(events.NewExecutionFailedEvent(string(run.WorkflowID), run.ExecutionID,
			report.Error, report.Duration, failed), true)
	}
	return report
}

func (e *Engine) publish(ev events.Event, priority bool) {
	if e.events == nil {
		return
	}
	if priority {
		e.events.PublishPriority(ev)
		return
	}
	e.events.Publish(ev)
}

// nodeState tracks one node within a run.
type nodeState struct {
	status core.ExecutionStatus
	reason core.SkipReason
	branch string // taken branch of a successful condition node
}

type completion struct {
	nodeID    string
	stepLogID string
	started   time.Time
	result    core.StepResult
}

// decision is the readiness outcome for a node whose sources are terminal.
type decision int

const (
	decideRun decision = iota
	decideSkipFailed
	decideSkipBranch
)

// scheduler owns the state of one run. Only the goroutine running loop
// touches its fields; workers report back over a channel.
type scheduler struct {
	engine    *Engine
	plan      *service.GraphPlan
	run       core.RunContext
	recCtx    context.Context
	logger    *logging.Logger
	position  map[string]int
	remaining map[string]int
	states    map[string]*nodeState
	results   core.ResultMap
	report    *RunReport
	ready     []string
	firstErr  string
}

func newScheduler(e *Engine, plan *service.GraphPlan, run core.RunContext, recCtx context.Context, logger *logging.Logger) *scheduler {
	s := &scheduler{
		engine:    e,
		plan:      plan,
		run:       run,
		recCtx:    recCtx,
		logger:    logger,
		position:  make(map[string]int, len(plan.Order)),
		remaining: make(map[string]int, len(plan.Order)),
		states:    make(map[string]*nodeState, len(plan.Order)),
		results:   core.ResultMap{},
		report: &RunReport{
			ExecutionID: run.ExecutionID,
			Results:     make(map[string]core.StepResult),
			Skipped:     make(map[string]core.SkipReason),
		},
	}
	for i, id := range plan.Order {
		s.position[id] = i
		s.remaining[id] = len(plan.Incoming[id])
		s.states[id] = &nodeState{status: core.StatusPending}
	}
	return s
}

func (s *scheduler) loop(ctx context.Context) {
	s.enqueue(s.plan.Entries...)

	done := make(chan completion, len(s.plan.Order))
	inFlight := 0
	for len(s.ready) > 0 || inFlight > 0 {
		for len(s.ready) > 0 && inFlight < s.engine.config.MaxParallel {
			id := s.ready[0]
			s.ready = s.ready[1:]
			if s.launch(ctx, id, done) {
				inFlight++
			}
		}
		if inFlight == 0 {
			continue
		}
		c := <-done
		inFlight--
		s.collect(c)
	}
}

// enqueue adds nodes to the ready set, kept in topological order.
func (s *scheduler) enqueue(ids ...string) {
	s.ready = append(s.ready, ids...)
	sort.SliceStable(s.ready, func(i, j int) bool {
		return s.position[s.ready[i]] < s.position[s.ready[j]]
	})
}

// launch decides a ready node. It returns true when a worker was started.
func (s *scheduler) launch(ctx context.Context, id string, done chan<- completion) bool {
	node := s.plan.Node(id)

	if err := ctx.Err(); err != nil {
		s.abort(err)
		s.skip(node, core.SkipCancelled)
		return false
	}

	switch s.decide(id) {
	case decideSkipFailed:
		s.skip(node, core.SkipAncestorFailed)
		return false
	case decideSkipBranch:
		s.skip(node, core.SkipBranchNotTaken)
		return false
	}

	input, resolveErr := reference.ResolveConfig(node.Data.Config, s.results)
	recorded := input
	if resolveErr != nil {
		recorded = node.Data.Config
	}

	s.states[id].status = core.StatusRunning
	started := time.Now()
	stepLogID, err := s.engine.recorder.BeginStep(s.recCtx, s.run.ExecutionID, node, recorded)
	if err != nil {
		s.logger.Error("engine: failed to record step start", "node_id", id, "error", err)
	}

	if resolveErr != nil {
		s.complete(node, stepLogID, started, core.Failed(core.ErrorMessage(resolveErr)))
		return false
	}

	s.logger.Debug("engine: dispatching node", "node_id", id, "node", node.Name(), "action", SlugFor(node))
	s.engine.publish(events.NewStepStartedEvent(string(s.run.WorkflowID), s.run.ExecutionID,
		id, node.Name(), string(node.Type)), false)

	dispatcher := s.engine.dispatcher
	run := s.run
	go func() {
		res := dispatcher.Dispatch(ctx, node, input, run)
		done <- completion{nodeID: id, stepLogID: stepLogID, started: started, result: res}
	}()
	return true
}

// decide classifies the incoming edges of a node whose sources are all
// terminal. Any active edge runs the node; otherwise a failed edge skips it
// as ancestor_failed, and only excluded edges skip it as branch_not_taken.
func (s *scheduler) decide(id string) decision {
	incoming := s.plan.Incoming[id]
	if len(incoming) == 0 {
		return decideRun
	}

	failed := false
	for _, edge := range incoming {
		src := s.states[edge.Source]
		switch src.status {
		case core.StatusSuccess:
			if s.plan.Node(edge.Source).Type != core.NodeTypeCondition || edge.Branch() == src.branch {
				return decideRun
			}
		case core.StatusError:
			failed = true
		case core.StatusSkipped:
			if src.reason == core.SkipAncestorFailed || src.reason == core.SkipCancelled {
				failed = true
			}
		}
	}
	if failed {
		return decideSkipFailed
	}
	return decideSkipBranch
}

// collect applies a finished worker's result.
func (s *scheduler) collect(c completion) {
	node := s.plan.Node(c.nodeID)
	res := c.result

	if res.Success {
		data, err := normalize(res.Data)
		if err != nil {
			res = core.Failed(fmt.Sprintf("output is not serializable: %v", err))
			s.complete(node, c.stepLogID, c.started, res)
			return
		}
		res.Data = data
	}

	if res.Success {
		s.results.Put(node, res.Data)
		if node.Type == core.NodeTypeCondition {
			ok, err := s.engine.evaluator.Evaluate(node, s.results)
			if err != nil {
				s.results.Remove(node)
				res = core.StepResult{Success: false, Data: res.Data, Error: core.ErrorMessage(err)}
			} else {
				s.states[node.ID].branch = branchOf(ok)
			}
		}
	}

	s.complete(node, c.stepLogID, c.started, res)
}

// normalize gives a node output the shape it has once read back from a
// stored step log, so live references and replayed ones agree.
func normalize(v any) (any, error) {
	if v == nil {
		return nil, nil
	}
	data, err := json.Marshal(v)
	if err != nil {
		return nil, err
	}
	var out any
	if err := json.Unmarshal(data, &out); err != nil {
		return nil, err
	}
	return out, nil
}

// abort marks the run failed once its context is done, even when no node
// reported an error.
func (s *scheduler) abort(err error) {
	if s.firstErr != "" {
		return
	}
	if errors.Is(err, context.DeadlineExceeded) {
		s.firstErr = "execution timed out"
		return
	}
	s.firstErr = "execution cancelled"
}

func branchOf(ok bool) string {
	if ok {
		return core.BranchTrue
	}
	return core.BranchFalse
}

func (s *scheduler) complete(node core.Node, stepLogID string, started time.Time, res core.StepResult) {
	state := s.states[node.ID]
	if res.Success {
		state.status = core.StatusSuccess
	} else {
		state.status = core.StatusError
		if s.firstErr == "" {
			s.firstErr = res.Error
			if s.firstErr == "" {
				s.firstErr = "node " + node.Name() + " failed"
			}
		}
	}
	s.report.Results[node.ID] = res

	if stepLogID != "" {
		if err := s.engine.recorder.CompleteStep(s.recCtx, stepLogID, res); err != nil {
			s.logger.Error("engine: failed to record step completion", "node_id", node.ID, "error", err)
		}
	}

	duration := time.Since(started)
	if res.Success {
		s.logger.Info("engine: node completed", "node_id", node.ID, "node", node.Name(),
			"status", state.status, "duration", duration, "branch", state.branch)
	} else {
		s.logger.Warn("engine: node failed", "node_id", node.ID, "node", node.Name(),
			"status", state.status, "duration", duration, "error", res.Error)
	}
	s.engine.publish(events.NewStepCompletedEvent(string(s.run.WorkflowID), s.run.ExecutionID,
		node.ID, node.Name(), string(state.status), res.Error, duration), false)

	s.settle(node.ID)
}

func (s *scheduler) skip(node core.Node, reason core.SkipReason) {
	state := s.states[node.ID]
	state.status = core.StatusSkipped
	state.reason = reason
	s.report.Skipped[node.ID] = reason

	if err := s.engine.recorder.SkipStep(s.recCtx, s.run.ExecutionID, node, reason); err != nil {
		s.logger.Error("engine: failed to record skip", "node_id", node.ID, "error", err)
	}
	s.logger.Info("engine: node skipped", "node_id", node.ID, "node", node.Name(),
		"status", core.StatusSkipped, "reason", reason)
	s.engine.publish(events.NewStepSkippedEvent(string(s.run.WorkflowID), s.run.ExecutionID,
		node.ID, node.Name(), string(reason)), false)

	s.settle(node.ID)
}

// settle releases the targets of a node that reached a terminal state.
func (s *scheduler) settle(id string) {
	var next []string
	for _, edge := range s.plan.Outgoing[id] {
		s.remaining[edge.Target]--
		if s.remaining[edge.Target] == 0 {
			next = append(next, edge.Target)
		}
	}
	if len(next) > 0 {
		s.enqueue(next...)
	}
}

func (s *scheduler) finish(duration time.Duration) *RunReport {
	r := s.report
	r.Duration = duration
	r.Status = core.StatusSuccess
	if s.firstErr != "" {
		r.Status = core.StatusError
		r.Error = s.firstErr
	}
	for i := len(s.plan.Order) - 1; i >= 0; i-- {
		id := s.plan.Order[i]
		if s.states[id].status == core.StatusSuccess {
			r.Output = r.Results[id].Data
			break
		}
	}
	return r
}
