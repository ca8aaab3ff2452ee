package handler

import (
	"context"
	"fmt"

	"github.com/dipeo/dipeo-core/core"
	"github.com/dipeo/dipeo-core/core/compiler"
	"github.com/dipeo/dipeo-core/core/llm"
	"github.com/dipeo/dipeo-core/core/registry"
)

// PersonJob resolves the llm.Provider the compiler's bind phase bound
// against diagram.Persons metadata (node.ResolvedService/ResolvedModel/
// ResolvedAPIKey), builds a message list from node.Config["system_prompt"]
// and node.Config["prompt"], and returns the provider's text response. A
// richer prompt/templating language and multi-turn memory are handler
// implementation detail spec.md §1 places out of scope; this wires the one
// contract the spec does require: per-node token usage, surfaced in
// Meta["llm_usage"] for core/observe's metrics accumulation.
func PersonJob(ctx context.Context, n *compiler.ExecutableNode, inputs map[string]core.Envelope, services *registry.Registry) (core.Envelope, error) {
	provider, err := resolveProvider(services, n)
	if err != nil {
		return core.Envelope{}, err
	}

	vars := mergedVars(inputs)
	messages := buildMessages(n, vars)

	out, err := provider.Chat(ctx, messages, nil)
	if err != nil {
		return core.Envelope{}, &core.NodeExecutionError{NodeID: n.ID, Cause: err}
	}

	env := core.NewEnvelope(n.ID, out.Text).WithMeta("llm_usage", core.LLMUsage{
		PromptTokens:     out.Usage.PromptTokens,
		CompletionTokens: out.Usage.CompletionTokens,
		TotalTokens:      out.Usage.TotalTokens,
	})
	if len(out.ToolCalls) > 0 {
		env = env.WithMeta("tool_calls", out.ToolCalls)
	}
	return env, nil
}

func resolveProvider(services *registry.Registry, n *compiler.ExecutableNode) (llm.Provider, error) {
	if resolverAny, ok := registry.ResolveOK(services, registry.ProviderRegistry); ok {
		if resolver, ok := resolverAny.(ProviderResolver); ok {
			provider, err := resolver.Resolve(n.ResolvedService, n.ResolvedModel, n.ResolvedAPIKey)
			if err != nil {
				return nil, &core.NodeExecutionError{NodeID: n.ID, Cause: err}
			}
			return provider, nil
		}
	}
	if providerAny, ok := registry.ResolveOK(services, registry.LLMService); ok {
		if provider, ok := providerAny.(llm.Provider); ok {
			return provider, nil
		}
	}
	return nil, &core.NodeExecutionError{NodeID: n.ID, Cause: &core.ServiceResolutionError{Key: registry.ProviderRegistry.Name()}}
}

func buildMessages(n *compiler.ExecutableNode, vars map[string]any) []llm.Message {
	var messages []llm.Message
	if system, _ := n.Config["system_prompt"].(string); system != "" {
		messages = append(messages, llm.Message{Role: llm.RoleSystem, Content: system})
	}

	prompt, _ := n.Config["prompt"].(string)
	if prompt == "" {
		if def, ok := vars["default"]; ok {
			prompt = fmt.Sprintf("%v", def)
		}
	}
	messages = append(messages, llm.Message{Role: llm.RoleUser, Content: prompt})
	return messages
}
