// Package workflow interprets validated workflow graphs.
//
// The Engine schedules nodes in dependency order, the Dispatcher invokes the
// step registered for each node, and the Runner starts executions in the
// background for callers that must not wait for a run to finish.
package workflow

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"dario.cat/mergo"

	"github.com/hugo-lorenzo-mato/flowrun/internal/adapters/steps"
	"github.com/hugo-lorenzo-mato/flowrun/internal/core"
	"github.com/hugo-lorenzo-mato/flowrun/internal/logging"
	"github.com/hugo-lorenzo-mato/flowrun/internal/service"
)

// DispatcherConfig holds dispatcher limits.
type DispatcherConfig struct {
	// NodeTimeout bounds a single node including retries. Zero disables it.
	NodeTimeout time.Duration
	// RetryBaseDelay is the first backoff delay for steps that declare retries.
	RetryBaseDelay time.Duration
}

// DefaultDispatcherConfig returns the default dispatcher limits.
func DefaultDispatcherConfig() DispatcherConfig {
	return DispatcherConfig{
		NodeTimeout:    5 * time.Minute,
		RetryBaseDelay: 500 * time.Millisecond,
	}
}

// Dispatcher invokes the step registered for a node and normalises every
// outcome into a core.StepResult.
type Dispatcher struct {
	registry    *steps.Registry
	credentials core.CredentialFetcher
	logger      *logging.Logger
	config      DispatcherConfig
}

// NewDispatcher creates a dispatcher. credentials may be nil when no node
// names an integration.
func NewDispatcher(registry *steps.Registry, credentials core.CredentialFetcher, logger *logging.Logger, cfg DispatcherConfig) *Dispatcher {
	if logger == nil {
		logger = logging.NewNop()
	}
	return &Dispatcher{
		registry:    registry,
		credentials: credentials,
		logger:      logger,
		config:      cfg,
	}
}

// SlugFor returns the action slug used to dispatch node.
func SlugFor(node core.Node) string {
	if node.Data.ActionSlug != "" {
		return node.Data.ActionSlug
	}
	return steps.DefaultSlug(node.Type)
}

// CheckActions reports the first node whose action slug is not registered.
func (d *Dispatcher) CheckActions(nodes []core.Node) error {
	for _, n := range nodes {
		if _, err := d.registry.Get(SlugFor(n)); err != nil {
			return err
		}
	}
	return nil
}

// Dispatch runs node with its resolved input. It never returns an error:
// unknown actions, credential failures, step errors, panics and timeouts all
// become a failed StepResult.
func (d *Dispatcher) Dispatch(ctx context.Context, node core.Node, input map[string]any, run core.RunContext) core.StepResult {
	logger := d.logger.WithExecution(run.ExecutionID).WithNode(node.ID, node.Name())

	slug := SlugFor(node)
	step, err := d.registry.Get(slug)
	if err != nil {
		return d.failure(err, nil)
	}

	ref := integrationRef(node, input)
	creds, err := d.fetchCredentials(ctx, ref)
	if err != nil {
		logger.Warn("dispatcher: credential lookup failed", "integration", ref, "error", err)
		return d.failure(err, nil)
	}

	cfg, err := mergeDefaults(step.Defaults, input)
	if err != nil {
		return d.failure(fmt.Errorf("merging defaults for %s: %w", slug, err), nil)
	}

	if d.config.NodeTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, d.config.NodeTimeout)
		defer cancel()
	}

	ctx = logging.NewContext(ctx, logger)
	in := steps.Input{Node: node, Config: cfg, Credentials: creds, Run: run}
	opts := []service.RetryPolicyOption{service.WithMaxRetries(step.MaxRetries)}
	if d.config.RetryBaseDelay > 0 {
		opts = append(opts, service.WithBaseDelay(d.config.RetryBaseDelay))
	}
	policy := service.NewRetryPolicy(opts...)

	var last core.StepResult
	err = policy.Execute(ctx, func(ctx context.Context, attempt int) (bool, error) {
		res, err := d.invoke(ctx, step, in)
		if err != nil {
			last = core.StepResult{}
			return retryable(ctx, err), err
		}
		last = res
		if !res.Success {
			msg := res.Error
			if msg == "" {
				msg = fmt.Sprintf("step %s reported failure", slug)
			}
			return true, core.ErrStepExecution(msg)
		}
		return false, nil
	}, func(attempt int, err error, delay time.Duration) {
		logger.Warn("dispatcher: retrying step",
			"action", slug,
			"attempt", attempt,
			"delay", delay,
			"error", err,
		)
	})
	if err != nil {
		return d.failure(err, last.Data)
	}

	logger.Debug("dispatcher: step succeeded", "action", slug)
	return last
}

// integrationRef reads the integration from the resolved input so it may be
// a reference; nodes dispatched without input fall back to their raw config.
func integrationRef(node core.Node, input map[string]any) string {
	if v, ok := input["integrationId"]; ok {
		ref, _ := v.(string)
		return strings.TrimSpace(ref)
	}
	return node.IntegrationRef()
}

func (d *Dispatcher) fetchCredentials(ctx context.Context, ref string) (map[string]string, error) {
	if ref == "" {
		return map[string]string{}, nil
	}
	if d.credentials == nil {
		return nil, core.ErrCredential(ref, "no credential fetcher configured")
	}

	creds, err := d.credentials.FetchCredentials(ctx, ref)
	if err != nil {
		var domErr *core.DomainError
		if errors.As(err, &domErr) && domErr.Category == core.ErrCatCredential {
			return nil, err
		}
		return nil, core.ErrCredential(ref, err.Error()).WithCause(err)
	}

	values := make([]string, 0, len(creds))
	for _, v := range creds {
		values = append(values, v)
	}
	d.logger.Sanitizer().AddSecret(values...)
	return creds, nil
}

type invocation struct {
	result core.StepResult
	err    error
}

// errStepPanic marks a recovered panic; panics are never retried.
var errStepPanic = errors.New("step panicked")

// invoke runs one attempt. The step runs in its own goroutine so a step that
// ignores ctx is abandoned once ctx is done.
func (d *Dispatcher) invoke(ctx context.Context, step steps.Step, in steps.Input) (core.StepResult, error) {
	done := make(chan invocation, 1)
	go func() {
		defer func() {
			if r := recover(); r != nil {
				done <- invocation{err: fmt.Errorf("%w: %s: %v", errStepPanic, step.Slug, r)}
			}
		}()
		res, err := step.Run(ctx, in)
		done <- invocation{result: res, err: err}
	}()

	select {
	case inv := <-done:
		return inv.result, inv.err
	case <-ctx.Done():
		if errors.Is(ctx.Err(), context.DeadlineExceeded) {
			return core.StepResult{}, core.ErrTimeout(fmt.Sprintf("step %s timed out", step.Slug)).WithCause(ctx.Err())
		}
		return core.StepResult{}, ctx.Err()
	}
}

func retryable(ctx context.Context, err error) bool {
	if ctx.Err() != nil || errors.Is(err, errStepPanic) {
		return false
	}
	var domErr *core.DomainError
	if errors.As(err, &domErr) {
		return domErr.Retryable
	}
	return true
}

// failure builds a failed result whose message is free of known secrets.
func (d *Dispatcher) failure(err error, data any) core.StepResult {
	var exhausted *service.RetryExhaustedError
	if errors.As(err, &exhausted) && exhausted.LastErr != nil {
		err = exhausted.LastErr
	}
	msg := core.ErrorMessage(err)
	if errors.Is(err, context.DeadlineExceeded) && !core.IsCategory(err, core.ErrCatTimeout) {
		msg = "execution timed out"
	}
	return core.StepResult{Success: false, Data: data, Error: d.logger.Sanitize(msg)}
}

// mergeDefaults returns a fresh config with input merged over defaults.
// Neither argument is modified.
func mergeDefaults(defaults, input map[string]any) (map[string]any, error) {
	if len(defaults) == 0 {
		cfg := copyMap(input)
		if cfg == nil {
			cfg = map[string]any{}
		}
		return cfg, nil
	}
	cfg := copyMap(defaults)
	if len(input) == 0 {
		return cfg, nil
	}
	if err := mergo.Merge(&cfg, copyMap(input), mergo.WithOverride); err != nil {
		return nil, err
	}
	return cfg, nil
}

func copyMap(m map[string]any) map[string]any {
	if m == nil {
		return nil
	}
	out := make(map[string]any, len(m))
	for k, v := range m {
		out[k] = copyValue(v)
	}
	return out
}

func copyValue(v any) any {
	switch t := v.(type) {
	case map[string]any:
		return copyMap(t)
	case []any:
		out := make([]any, len(t))
		for i, item := range t {
			out[i] = copyValue(item)
		}
		return out
	default:
		return v
	}
}
