package handler

import (
	"context"
	"fmt"

	"github.com/dipeo/dipeo-core/core"
	"github.com/dipeo/dipeo-core/core/compiler"
	"github.com/dipeo/dipeo-core/core/dispatch"
	"github.com/dipeo/dipeo-core/core/registry"
	"github.com/dipeo/dipeo-core/core/subdiagram"
	"github.com/dipeo/dipeo-core/core/usecase"
)

// SubDiagram dispatches to core/subdiagram's single or batch execution
// flow depending on node.Config["batch"], resolving the diagram Loader
// from registry.DiagramPort and the re-entrant use case from
// registry.ExecutionOrchestrator.
func SubDiagram(ctx context.Context, n *compiler.ExecutableNode, inputs map[string]core.Envelope, services *registry.Registry) (core.Envelope, error) {
	loaderAny, err := dispatch.ResolveRequired(services, registry.DiagramPort, n.ID)
	if err != nil {
		return core.Envelope{}, err
	}
	loader, ok := loaderAny.(subdiagram.Loader)
	if !ok {
		return core.Envelope{}, &core.NodeExecutionError{NodeID: n.ID, Cause: &core.ServiceResolutionError{Key: registry.DiagramPort.Name()}}
	}

	ucAny, err := dispatch.ResolveRequired(services, registry.ExecutionOrchestrator, n.ID)
	if err != nil {
		return core.Envelope{}, err
	}
	uc, ok := ucAny.(*usecase.ExecuteDiagramUseCase)
	if !ok {
		return core.Envelope{}, &core.NodeExecutionError{NodeID: n.ID, Cause: fmt.Errorf("execution_orchestrator is not a *usecase.ExecuteDiagramUseCase")}
	}

	parentExecutionID := ""
	if stateAny, ok := registry.ResolveOK(services, registry.ExecutionCtx); ok {
		if state, ok := stateAny.(*core.ExecutionState); ok {
			parentExecutionID = state.ID
		}
	}

	isBatch, _ := n.Config["batch"].(bool)
	if isBatch {
		env := subdiagram.ExecuteBatch(ctx, uc, loader, n, inputs, parentExecutionID)
		return env, nil
	}

	env := subdiagram.ExecuteSingle(ctx, uc, loader, n, parentExecutionID)
	return env, nil
}
