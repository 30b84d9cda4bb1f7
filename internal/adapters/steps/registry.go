// Package steps holds the step registry and the built-in step catalog.
//
// A registry is constructed explicitly at process start and handed to the
// dispatcher; nothing registers itself at import time.
package steps

import (
	"context"
	"fmt"
	"sort"
	"sync"

	"github.com/hugo-lorenzo-mato/flowrun/internal/core"
)

// Input is the bounded object a step implementation receives.
type Input struct {
	Node        core.Node
	Config      map[string]any    // resolved config merged over step defaults
	Credentials map[string]string // empty unless the node names an integration
	Run         core.RunContext
}

// String returns the config value at key, or "" when absent or not a string.
func (in Input) String(key string) string {
	if v, ok := in.Config[key]; ok && v != nil {
		switch t := v.(type) {
		case string:
			return t
		default:
			return fmt.Sprint(t)
		}
	}
	return ""
}

// Func is a step implementation. It may report failure either by returning
// an error or a StepResult with Success false.
type Func func(ctx context.Context, in Input) (core.StepResult, error)

// Step is a registered action.
type Step struct {
	Slug        string
	Description string
	// MaxRetries is the number of additional attempts after a failure.
	// Side-effecting steps keep the default of zero.
	MaxRetries int
	// Defaults are merged under the node's resolved config.
	Defaults map[string]any
	Run      Func
}

// Registry maps action slugs to steps.
type Registry struct {
	steps map[string]Step
	mu    sync.RWMutex
}

// NewRegistry creates an empty registry.
func NewRegistry() *Registry {
	return &Registry{
		steps: make(map[string]Step),
	}
}

// Register adds a step. Registering the same slug twice is an error.
func (r *Registry) Register(step Step) error {
	if step.Slug == "" {
		return fmt.Errorf("step slug must not be empty")
	}
	if step.Run == nil {
		return fmt.Errorf("step %s has no implementation", step.Slug)
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if _, exists := r.steps[step.Slug]; exists {
		return fmt.Errorf("step %s already registered", step.Slug)
	}
	r.steps[step.Slug] = step
	return nil
}

// MustRegister is Register for process start-up wiring.
func (r *Registry) MustRegister(steps ...Step) *Registry {
	for _, s := range steps {
		if err := r.Register(s); err != nil {
			panic(err)
		}
	}
	return r
}

// Get returns the step for slug or an UnknownActionError.
func (r *Registry) Get(slug string) (Step, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	step, ok := r.steps[slug]
	if !ok {
		return Step{}, core.ErrUnknownAction(slug)
	}
	return step, nil
}

// List returns the registered slugs in sorted order.
func (r *Registry) List() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()

	names := make([]string, 0, len(r.steps))
	for name := range r.steps {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Describe returns slug to description for every registered step.
func (r *Registry) Describe() map[string]string {
	r.mu.RLock()
	defer r.mu.RUnlock()

	out := make(map[string]string, len(r.steps))
	for slug, s := range r.steps {
		out[slug] = s.Description
	}
	return out
}
