package handler

import (
	"context"

	"github.com/dipeo/dipeo-core/core"
	"github.com/dipeo/dipeo-core/core/compiler"
	"github.com/dipeo/dipeo-core/core/dispatch"
	"github.com/dipeo/dipeo-core/core/registry"
)

// CodeJob runs node.Config["code"] in node.Config["language"] against the
// merged input variables via the registered CodeRunner, mirroring
// spec.md's worked example 1 ("code_job(return x+1)").
func CodeJob(ctx context.Context, n *compiler.ExecutableNode, inputs map[string]core.Envelope, services *registry.Registry) (core.Envelope, error) {
	runner, err := dispatch.ResolveRequired(services, registry.CodeRunner, n.ID)
	if err != nil {
		return core.Envelope{}, err
	}
	cr, ok := runner.(CodeRunner)
	if !ok {
		return core.Envelope{}, &core.NodeExecutionError{NodeID: n.ID, Cause: &core.ServiceResolutionError{Key: registry.CodeRunner.Name()}}
	}

	code, _ := n.Config["code"].(string)
	language, _ := n.Config["language"].(string)
	if language == "" {
		language = "python"
	}

	result, runErr := cr.Run(ctx, language, code, mergedVars(inputs))
	if runErr != nil {
		return core.Envelope{}, &core.NodeExecutionError{NodeID: n.ID, Cause: runErr}
	}
	return core.NewEnvelope(n.ID, result), nil
}
