// Package llm adapts the teacher's graph/model ChatModel providers to the
// person_job handler's needs: the same Message/ToolSpec/ToolCall shapes,
// generalized to also report per-call core.LLMUsage so handler output
// envelopes can feed core/observe's metrics accumulation
// (spec.md §4, person_job "token usage tracked per node and per
// execution").
package llm

import (
	"context"

	"github.com/dipeo/dipeo-core/core"
)

// Provider is the unified interface every LLM adapter implements, adapted
// from graph/model.ChatModel with Usage added to ChatOut.
type Provider interface {
	Chat(ctx context.Context, messages []Message, tools []ToolSpec) (ChatOut, error)
}

// Message mirrors graph/model.Message.
type Message struct {
	Role    string
	Content string
}

// Standard role constants, identical to graph/model's.
const (
	RoleSystem    = "system"
	RoleUser      = "user"
	RoleAssistant = "assistant"
)

// ToolSpec mirrors graph/model.ToolSpec.
type ToolSpec struct {
	Name        string
	Description string
	Schema      map[string]any
}

// ToolCall mirrors graph/model.ToolCall.
type ToolCall struct {
	Name  string
	Input map[string]any
}

// ChatOut mirrors graph/model.ChatOut with Usage added so adapters report
// real provider token counts instead of the handler estimating them.
type ChatOut struct {
	Text      string
	ToolCalls []ToolCall
	Usage     core.LLMUsage
}
