package steps

import (
	"context"
	"fmt"
	"reflect"
	"strconv"
	"strings"

	"github.com/hugo-lorenzo-mato/flowrun/internal/core"
)

// ConditionStep compares the resolved "left" and "right" values with
// "operator" and outputs {"result": bool}. The scheduler's default condition
// evaluator reads that field to choose a branch.
func ConditionStep() Step {
	return Step{
		Slug:        SlugCondition,
		Description: "Compares two values; outputs {result: bool}",
		Defaults:    map[string]any{"operator": "truthy"},
		Run: func(_ context.Context, in Input) (core.StepResult, error) {
			op := strings.ToLower(strings.TrimSpace(in.String("operator")))
			left := in.Config["left"]
			if _, ok := in.Config["left"]; !ok {
				left = in.Config["value"]
			}
			right := in.Config["right"]

			result, err := Compare(op, left, right)
			if err != nil {
				return core.Failed(err.Error()), nil
			}
			return core.Succeeded(map[string]any{
				"result":   result,
				"operator": op,
				"left":     left,
				"right":    right,
			}), nil
		},
	}
}

// Compare applies a comparison operator.
func Compare(op string, left, right any) (bool, error) {
	switch op {
	case "eq", "==", "equals":
		return equal(left, right), nil
	case "neq", "!=", "not_equals":
		return !equal(left, right), nil
	case "gt", ">", "gte", ">=", "lt", "<", "lte", "<=":
		l, lok := toFloat(left)
		r, rok := toFloat(right)
		if !lok || !rok {
			return false, fmt.Errorf("operator %s needs numeric operands, got %v and %v", op, left, right)
		}
		switch op {
		case "gt", ">":
			return l > r, nil
		case "gte", ">=":
			return l >= r, nil
		case "lt", "<":
			return l < r, nil
		default:
			return l <= r, nil
		}
	case "contains":
		return contains(left, right), nil
	case "not_contains":
		return !contains(left, right), nil
	case "exists":
		return !isEmpty(left), nil
	case "empty":
		return isEmpty(left), nil
	case "truthy", "":
		return Truthy(left), nil
	default:
		return false, fmt.Errorf("unknown operator %q", op)
	}
}

// Truthy interprets v as a boolean.
func Truthy(v any) bool {
	switch t := v.(type) {
	case nil:
		return false
	case bool:
		return t
	case string:
		s := strings.ToLower(strings.TrimSpace(t))
		return s != "" && s != "false" && s != "0" && s != "no"
	}
	if f, ok := toFloat(v); ok {
		return f != 0
	}
	return !isEmpty(v)
}

func equal(left, right any) bool {
	if l, ok := toFloat(left); ok {
		if r, ok := toFloat(right); ok {
			return l == r
		}
	}
	if ls, ok := left.(string); ok {
		if rs, ok := right.(string); ok {
			return ls == rs
		}
	}
	if lb, ok := left.(bool); ok {
		return lb == Truthy(right)
	}
	return reflect.DeepEqual(left, right)
}

func contains(left, right any) bool {
	switch t := left.(type) {
	case string:
		return strings.Contains(t, fmt.Sprint(right))
	case []any:
		for _, item := range t {
			if equal(item, right) {
				return true
			}
		}
	case map[string]any:
		_, ok := t[fmt.Sprint(right)]
		return ok
	}
	return false
}

func isEmpty(v any) bool {
	switch t := v.(type) {
	case nil:
		return true
	case string:
		return t == ""
	case []any:
		return len(t) == 0
	case map[string]any:
		return len(t) == 0
	}
	return false
}

func toFloat(v any) (float64, bool) {
	switch t := v.(type) {
	case float64:
		return t, true
	case float32:
		return float64(t), true
	case int:
		return float64(t), true
	case int64:
		return float64(t), true
	case int32:
		return float64(t), true
	case uint:
		return float64(t), true
	case uint64:
		return float64(t), true
	case string:
		f, err := strconv.ParseFloat(strings.TrimSpace(t), 64)
		return f, err == nil
	}
	return 0, false
}
