package handler

import (
	"context"
	"time"

	"github.com/dipeo/dipeo-core/core"
	"github.com/dipeo/dipeo-core/core/compiler"
	"github.com/dipeo/dipeo-core/core/event"
	"github.com/dipeo/dipeo-core/core/registry"
)

// UserResponse publishes an InteractivePrompt event carrying
// node.Config["prompt"] so an external UI can surface it, then resolves
// immediately to node.Config["default"]. Actually blocking on a human
// reply would require the GraphQL/SSE transport spec.md §1 places out of
// scope, so this handler's contract is "announce and continue" rather
// than "announce and wait" — a diagram author who needs a true pause
// point routes through a sub_diagram boundary instead.
func UserResponse(ctx context.Context, n *compiler.ExecutableNode, inputs map[string]core.Envelope, services *registry.Registry) (core.Envelope, error) {
	prompt, _ := n.Config["prompt"].(string)
	defaultValue := n.Config["default"]

	if busAny, ok := registry.ResolveOK(services, registry.EventBus); ok {
		if bus, ok := busAny.(*event.Bus); ok {
			execCtxAny, _ := registry.ResolveOK(services, registry.ExecutionCtx)
			var executionID string
			if state, ok := execCtxAny.(*core.ExecutionState); ok {
				executionID = state.ID
			}
			bus.Publish(ctx, event.Event{
				Type:      event.InteractivePrompt,
				Scope:     event.Scope{ExecutionID: executionID, NodeID: n.ID},
				Payload:   event.InteractivePromptPayload{Prompt: prompt, Default: defaultValue},
				Timestamp: time.Now(),
			})
		}
	}

	return core.NewEnvelope(n.ID, defaultValue), nil
}
