// Package subdiagram implements spec.md §4.9 (C9 Sub-diagram Executor): a
// sub_diagram node loads another core.Diagram (inline or by name), runs it
// through a fresh core/usecase.ExecuteDiagramUseCase, and maps its terminal
// output back into one Envelope for the parent node. It is grounded on
// _examples/original_source/dipeo/application/execution/handlers/sub_diagram/
// single_executor.py and base_executor.py: unique sub-execution-id, empty
// initial variables by default so the child diagram does not inherit the
// parent's state, and endpoint-output preference when mapping results.
package subdiagram

import (
	"context"
	"fmt"

	"github.com/google/uuid"

	"github.com/dipeo/dipeo-core/core"
	"github.com/dipeo/dipeo-core/core/compiler"
	"github.com/dipeo/dipeo-core/core/usecase"
)

// Loader resolves a sub_diagram node's configuration into a runnable
// core.Diagram, whether the node embeds diagram_data inline or names a
// diagram to look up by name/format.
type Loader interface {
	Load(ctx context.Context, name, format string, inlineData map[string]any) (core.Diagram, error)
}

// newSubExecutionID mirrors the Python _create_execution_id helper's
// "<parent>_sub_<8 hex chars>" shape, using uuid's randomness instead of
// Python's uuid4().hex[:8].
func newSubExecutionID(parentExecutionID, tag string) string {
	return fmt.Sprintf("%s_%s_%s", parentExecutionID, tag, uuid.New().String()[:8])
}

func diagramLabel(node *compiler.ExecutableNode) string {
	if name, ok := node.Config["diagram_name"].(string); ok && name != "" {
		return name
	}
	return "inline"
}

func inlineDiagramData(node *compiler.ExecutableNode) map[string]any {
	if d, ok := node.Config["diagram_data"].(map[string]any); ok && len(d) > 0 {
		return d
	}
	return nil
}

func loadErrorEnvelope(node *compiler.ExecutableNode, err error) core.Envelope {
	return core.NewEnvelope(node.ID, map[string]any{"error": err.Error()}).
		AsError("sub_diagram_load_error", err.Error())
}

func executionErrorEnvelope(node *compiler.ExecutableNode, subExecutionID string, state *core.ExecutionState, runErr error) core.Envelope {
	msg := state.Error
	if msg == "" && runErr != nil {
		msg = runErr.Error()
	}
	return core.NewEnvelope(node.ID, map[string]any{"error": msg}).
		WithMeta("sub_execution_id", subExecutionID).
		WithMeta("execution_status", string(state.Status)).
		AsError("sub_diagram_execution_error", msg)
}

// extractEndpointOutputs collects the output of every node the compiler
// marked IsTerminal (spec.md §4.5's endpoint nodes) that actually produced
// one.
func extractEndpointOutputs(diagram *compiler.ExecutableDiagram, state *core.ExecutionState) map[core.NodeID]core.Envelope {
	out := make(map[core.NodeID]core.Envelope)
	for _, n := range diagram.Nodes {
		if !n.IsTerminal {
			continue
		}
		if env, ok := state.NodeOutputs[n.ID]; ok {
			out[n.ID] = env
		}
	}
	return out
}

// mapOutput picks the sub-diagram's result body: a single endpoint's
// output wins outright, multiple endpoints are returned keyed by node ID,
// and a diagram with no endpoint nodes falls back to the last node the
// engine actually ran. Preferring ExecutedNodes' insertion order over the
// original's lexicographic max-key fallback is a deliberate improvement,
// since node IDs carry no ordering guarantee.
func mapOutput(diagram *compiler.ExecutableDiagram, state *core.ExecutionState) any {
	endpoints := extractEndpointOutputs(diagram, state)
	switch len(endpoints) {
	case 0:
		if len(state.ExecutedNodes) == 0 {
			return nil
		}
		last := state.ExecutedNodes[len(state.ExecutedNodes)-1]
		if env, ok := state.NodeOutputs[last]; ok {
			return env.Body
		}
		return nil
	case 1:
		for _, env := range endpoints {
			return env.Body
		}
	}
	result := make(map[string]any, len(endpoints))
	for id, env := range endpoints {
		result[string(id)] = env.Body
	}
	return result
}

// ExecuteSingle runs node's configured diagram as a single nested
// execution and returns one Envelope carrying its mapped output. Loader
// and use-case errors are captured into an error envelope rather than
// returned as a Go error, matching the original handler's try/except
// around the whole sub-execution.
func ExecuteSingle(ctx context.Context, uc *usecase.ExecuteDiagramUseCase, loader Loader, node *compiler.ExecutableNode, parentExecutionID string) core.Envelope {
	name, _ := node.Config["diagram_name"].(string)
	format, _ := node.Config["diagram_format"].(string)

	diagram, err := loader.Load(ctx, name, format, inlineDiagramData(node))
	if err != nil {
		return loadErrorEnvelope(node, err)
	}

	subExecutionID := newSubExecutionID(parentExecutionID, "sub")

	opts := usecase.ExecutionOptions{
		Variables: map[string]any{},
		Metadata: map[string]any{
			"is_sub_diagram":      true,
			"parent_execution_id": parentExecutionID,
		},
		ParentExecutionID: parentExecutionID,
		IsSubDiagram:      true,
	}

	state, runErr := uc.Execute(ctx, subExecutionID, diagram, opts, nil)
	if runErr != nil || state.Status == core.ExecFailed || state.Status == core.ExecAborted {
		return executionErrorEnvelope(node, subExecutionID, state, runErr)
	}

	compiled, compileErr := compiler.Compile(diagram)
	if compileErr != nil {
		// Execute already compiled diagram successfully; this can only
		// fail if Compile is non-deterministic, which it is documented
		// not to be.
		return loadErrorEnvelope(node, compileErr)
	}

	return core.NewEnvelope(node.ID, mapOutput(compiled, state)).
		WithMeta("sub_execution_id", subExecutionID).
		WithMeta("execution_status", string(state.Status)).
		WithMeta("diagram", diagramLabel(node))
}
