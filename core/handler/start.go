// Package handler implements spec.md §3's node handler contract — one
// file per NodeType, each a dispatch.Handler. None of these are excluded
// by spec.md §1's Non-goals (only the LLM provider SDKs, HTTP client, and
// file-system adapter *implementations* are out of scope as external
// collaborators; the handlers that call into them are in scope). Handlers
// are pure with respect to their arguments and side-effectful only through
// services, per spec.md §4.7's handler contract.
package handler

import (
	"context"

	"github.com/dipeo/dipeo-core/core"
	"github.com/dipeo/dipeo-core/core/compiler"
	"github.com/dipeo/dipeo-core/core/registry"
)

// Start produces the diagram's initial Envelope from the start node's
// "variables" config entry or, when that is absent, from the execution's
// top-level Variables, which the engine registers under
// registry.ExecutionCtx (spec.md §3, "top-level variables").
func Start(ctx context.Context, n *compiler.ExecutableNode, inputs map[string]core.Envelope, services *registry.Registry) (core.Envelope, error) {
	vars, _ := n.Config["variables"].(map[string]any)
	if vars == nil && services != nil {
		if stateAny, ok := registry.ResolveOK(services, registry.ExecutionCtx); ok {
			if state, ok := stateAny.(*core.ExecutionState); ok {
				vars = state.Variables
			}
		}
	}
	if vars == nil {
		vars = map[string]any{}
	}
	return core.NewEnvelope(n.ID, vars), nil
}

// Endpoint passes its single input through unchanged; it exists purely to
// mark a terminal point in the graph (n.IsTerminal) for sub-diagram output
// mapping and for the CLI's `results` command.
func Endpoint(ctx context.Context, n *compiler.ExecutableNode, inputs map[string]core.Envelope, services *registry.Registry) (core.Envelope, error) {
	if env, ok := inputs["default"]; ok {
		return core.NewEnvelope(n.ID, env.Body), nil
	}
	merged := make(map[string]any, len(inputs))
	for handle, env := range inputs {
		merged[handle] = env.Body
	}
	return core.NewEnvelope(n.ID, merged), nil
}
