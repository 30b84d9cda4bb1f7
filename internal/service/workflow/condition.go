package workflow

import (
	"fmt"

	"github.com/hugo-lorenzo-mato/flowrun/internal/adapters/steps"
	"github.com/hugo-lorenzo-mato/flowrun/internal/core"
)

// ConditionEvaluator decides which branch of a condition node is taken.
// It is called once, after the condition node itself succeeded.
type ConditionEvaluator interface {
	Evaluate(node core.Node, results core.ResultMap) (bool, error)
}

// ConditionFunc adapts a function to ConditionEvaluator.
type ConditionFunc func(node core.Node, results core.ResultMap) (bool, error)

// Evaluate calls f.
func (f ConditionFunc) Evaluate(node core.Node, results core.ResultMap) (bool, error) {
	return f(node, results)
}

// ResultFieldEvaluator reads the outcome from a field of the condition
// node's own output. A bare boolean output is used as is.
type ResultFieldEvaluator struct {
	Field string
}

// DefaultConditionEvaluator reads the "result" field written by the built-in
// condition step.
func DefaultConditionEvaluator() ResultFieldEvaluator {
	return ResultFieldEvaluator{Field: "result"}
}

// Evaluate implements ConditionEvaluator.
func (e ResultFieldEvaluator) Evaluate(node core.Node, results core.ResultMap) (bool, error) {
	out, ok := results.Lookup(node.ID)
	if !ok {
		return false, core.ErrCondition(node.Name(), "no output recorded")
	}

	field := e.Field
	if field == "" {
		field = "result"
	}

	switch v := out.(type) {
	case bool:
		return v, nil
	case map[string]any:
		value, ok := v[field]
		if !ok {
			return false, core.ErrCondition(node.Name(), fmt.Sprintf("output has no %q field", field))
		}
		if b, ok := value.(bool); ok {
			return b, nil
		}
		return steps.Truthy(value), nil
	default:
		return false, core.ErrCondition(node.Name(), fmt.Sprintf("unsupported output type %T", out))
	}
}
