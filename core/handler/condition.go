package handler

import (
	"context"
	"fmt"

	"github.com/dipeo/dipeo-core/core"
	"github.com/dipeo/dipeo-core/core/compiler"
	"github.com/dipeo/dipeo-core/core/registry"
)

// Condition evaluates node.Config["condition"] against the merged input
// variables and tags its output Envelope with Meta["branch"] set to
// "true" or "false", the signal core/scheduler.scheduler.go's
// joinSatisfied reads to decide which of the two outgoing edges fires
// (spec.md §4.6, conditional join semantics).
func Condition(ctx context.Context, n *compiler.ExecutableNode, inputs map[string]core.Envelope, services *registry.Registry) (core.Envelope, error) {
	expr, _ := n.Config["condition"].(string)
	vars := mergedVars(inputs)

	result, err := evalCondition(expr, vars)
	if err != nil {
		return core.Envelope{}, &core.NodeExecutionError{NodeID: n.ID, Cause: err}
	}

	branch := "false"
	if result {
		branch = "true"
	}
	return core.NewEnvelope(n.ID, result).WithMeta("branch", branch), nil
}

func mergedVars(inputs map[string]core.Envelope) map[string]any {
	vars := make(map[string]any, len(inputs))
	for handle, env := range inputs {
		vars[handle] = env.Body
	}
	if def, ok := vars["default"]; ok {
		if m, ok := def.(map[string]any); ok {
			for k, v := range m {
				vars[k] = v
			}
		}
	}
	return vars
}

// evalCondition supports the small comparison-expression grammar spec.md's
// worked examples use ("x>0", "x == 1", ...): a single variable name, a
// comparison operator, and a numeric or string literal. A richer
// expression language is a handler implementation detail spec.md §1 places
// out of scope; this is the minimal evaluator needed to make condition
// nodes exercisable.
func evalCondition(expr string, vars map[string]any) (bool, error) {
	name, op, literal, err := parseComparison(expr)
	if err != nil {
		return false, err
	}
	left, ok := vars[name]
	if !ok {
		return false, fmt.Errorf("condition references unknown variable %q", name)
	}
	return compareValues(left, op, literal)
}
