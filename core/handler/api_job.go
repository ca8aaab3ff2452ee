package handler

import (
	"context"

	"github.com/dipeo/dipeo-core/core"
	"github.com/dipeo/dipeo-core/core/compiler"
	"github.com/dipeo/dipeo-core/core/dispatch"
	"github.com/dipeo/dipeo-core/core/registry"
)

// APIJob performs node.Config's {method, url, headers} HTTP call through
// the registered APIInvoker, passing the merged inputs as the request
// body when the node declares one.
func APIJob(ctx context.Context, n *compiler.ExecutableNode, inputs map[string]core.Envelope, services *registry.Registry) (core.Envelope, error) {
	invoker, err := dispatch.ResolveRequired(services, registry.APIInvoker, n.ID)
	if err != nil {
		return core.Envelope{}, err
	}
	inv, ok := invoker.(APIInvoker)
	if !ok {
		return core.Envelope{}, &core.NodeExecutionError{NodeID: n.ID, Cause: &core.ServiceResolutionError{Key: registry.APIInvoker.Name()}}
	}

	method, _ := n.Config["method"].(string)
	if method == "" {
		method = "GET"
	}
	url, _ := n.Config["url"].(string)
	headers := map[string]string{}
	if h, ok := n.Config["headers"].(map[string]string); ok {
		headers = h
	}

	var body any
	if env, ok := inputs["default"]; ok {
		body = env.Body
	}

	status, respBody, callErr := inv.Invoke(ctx, method, url, headers, body)
	if callErr != nil {
		return core.Envelope{}, &core.NodeExecutionError{NodeID: n.ID, Cause: callErr}
	}
	return core.NewEnvelope(n.ID, respBody).WithMeta("status_code", status), nil
}
