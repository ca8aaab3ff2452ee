package llm

import (
	"context"
	"errors"
	"fmt"

	anthropicsdk "github.com/anthropics/anthropic-sdk-go"
	"github.com/anthropics/anthropic-sdk-go/option"
	"github.com/dipeo/dipeo-core/core"
)

// AnthropicProvider implements Provider for Anthropic's Claude API, adapted
// from graph/model/anthropic.ChatModel with per-call token usage read off
// the SDK response instead of discarded.
type AnthropicProvider struct {
	apiKey    string
	modelName string
	client    anthropicClient
}

type anthropicClient interface {
	createMessage(ctx context.Context, systemPrompt string, messages []Message, tools []ToolSpec) (ChatOut, error)
}

// NewAnthropicProvider constructs an AnthropicProvider. An empty modelName
// falls back to a default Claude model.
func NewAnthropicProvider(apiKey, modelName string) *AnthropicProvider {
	if modelName == "" {
		modelName = "claude-sonnet-4-5-20250929"
	}
	return &AnthropicProvider{
		apiKey:    apiKey,
		modelName: modelName,
		client:    &anthropicDefaultClient{apiKey: apiKey, modelName: modelName},
	}
}

func (p *AnthropicProvider) Chat(ctx context.Context, messages []Message, tools []ToolSpec) (ChatOut, error) {
	if ctx.Err() != nil {
		return ChatOut{}, ctx.Err()
	}

	systemPrompt, conversationMessages := extractSystemPrompt(messages)

	out, err := p.client.createMessage(ctx, systemPrompt, conversationMessages, tools)
	if err != nil {
		var anthropicErr *anthropicError
		if errors.As(err, &anthropicErr) {
			return ChatOut{}, anthropicErr
		}
		return ChatOut{}, err
	}
	return out, nil
}

// extractSystemPrompt separates system messages from conversation messages,
// since Anthropic expects the system prompt as a separate parameter.
func extractSystemPrompt(messages []Message) (string, []Message) {
	var systemPrompt string
	var conversationMessages []Message

	for _, msg := range messages {
		if msg.Role == RoleSystem {
			if systemPrompt != "" {
				systemPrompt += "\n\n"
			}
			systemPrompt += msg.Content
		} else {
			conversationMessages = append(conversationMessages, msg)
		}
	}

	return systemPrompt, conversationMessages
}

type anthropicDefaultClient struct {
	apiKey    string
	modelName string
}

func (c *anthropicDefaultClient) createMessage(ctx context.Context, systemPrompt string, messages []Message, tools []ToolSpec) (ChatOut, error) {
	if c.apiKey == "" {
		return ChatOut{}, errors.New("anthropic API key is required")
	}

	client := anthropicsdk.NewClient(option.WithAPIKey(c.apiKey))

	params := anthropicsdk.MessageNewParams{
		Model:     anthropicsdk.Model(c.modelName),
		Messages:  convertAnthropicMessages(messages),
		MaxTokens: 4096,
	}

	if systemPrompt != "" {
		params.System = []anthropicsdk.TextBlockParam{{Text: systemPrompt}}
	}

	if len(tools) > 0 {
		params.Tools = convertAnthropicTools(tools)
	}

	resp, err := client.Messages.New(ctx, params)
	if err != nil {
		return ChatOut{}, fmt.Errorf("anthropic API error: %w", err)
	}

	return convertAnthropicResponse(resp), nil
}

func convertAnthropicMessages(messages []Message) []anthropicsdk.MessageParam {
	result := make([]anthropicsdk.MessageParam, len(messages))
	for i, msg := range messages {
		switch msg.Role {
		case RoleAssistant:
			result[i] = anthropicsdk.NewAssistantMessage(anthropicsdk.NewTextBlock(msg.Content))
		default:
			result[i] = anthropicsdk.NewUserMessage(anthropicsdk.NewTextBlock(msg.Content))
		}
	}
	return result
}

func convertAnthropicTools(tools []ToolSpec) []anthropicsdk.ToolUnionParam {
	result := make([]anthropicsdk.ToolUnionParam, len(tools))
	for i, tool := range tools {
		var properties any
		var required []string
		if tool.Schema != nil {
			if props, ok := tool.Schema["properties"]; ok {
				properties = props
			}
			if req, ok := tool.Schema["required"].([]string); ok {
				required = req
			} else if req, ok := tool.Schema["required"].([]any); ok {
				required = make([]string, len(req))
				for j, v := range req {
					if s, ok := v.(string); ok {
						required[j] = s
					}
				}
			}
		}

		result[i] = anthropicsdk.ToolUnionParam{
			OfTool: &anthropicsdk.ToolParam{
				Name:        tool.Name,
				Description: anthropicsdk.String(tool.Description),
				InputSchema: anthropicsdk.ToolInputSchemaParam{Properties: properties, Required: required},
			},
		}
	}
	return result
}

func convertAnthropicResponse(resp *anthropicsdk.Message) ChatOut {
	out := ChatOut{
		Usage: core.LLMUsage{
			PromptTokens:     int(resp.Usage.InputTokens),
			CompletionTokens: int(resp.Usage.OutputTokens),
			TotalTokens:      int(resp.Usage.InputTokens + resp.Usage.OutputTokens),
		},
	}

	for _, block := range resp.Content {
		switch b := block.AsAny().(type) {
		case anthropicsdk.TextBlock:
			if out.Text != "" {
				out.Text += "\n"
			}
			out.Text += b.Text
		case anthropicsdk.ToolUseBlock:
			out.ToolCalls = append(out.ToolCalls, ToolCall{
				Name:  b.Name,
				Input: convertAnthropicToolInput(b.Input),
			})
		}
	}

	return out
}

func convertAnthropicToolInput(input any) map[string]any {
	if input == nil {
		return nil
	}
	if m, ok := input.(map[string]any); ok {
		return m
	}
	return map[string]any{"_raw": input}
}

type anthropicError struct {
	Type    string
	Message string
}

func (e *anthropicError) Error() string {
	return e.Type + ": " + e.Message
}
