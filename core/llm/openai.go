package llm

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/dipeo/dipeo-core/core"
	openaisdk "github.com/openai/openai-go"
	"github.com/openai/openai-go/option"
	"github.com/openai/openai-go/shared"
)

// OpenAIProvider implements Provider for OpenAI's API, adapted from
// graph/model/openai.ChatModel's retry loop and format conversion, with
// real token usage read off the response and tool-call arguments actually
// JSON-decoded (the teacher's parseToolInput left this as a TODO).
type OpenAIProvider struct {
	apiKey     string
	modelName  string
	client     openaiClient
	maxRetries int
	retryDelay time.Duration
}

type openaiClient interface {
	createChatCompletion(ctx context.Context, messages []Message, tools []ToolSpec) (ChatOut, error)
}

// NewOpenAIProvider constructs an OpenAIProvider with 3 retries and a
// 1-second base retry delay. An empty modelName falls back to a default.
func NewOpenAIProvider(apiKey, modelName string) *OpenAIProvider {
	if modelName == "" {
		modelName = "gpt-4o"
	}
	return &OpenAIProvider{
		apiKey:     apiKey,
		modelName:  modelName,
		client:     &openaiDefaultClient{apiKey: apiKey, modelName: modelName},
		maxRetries: 3,
		retryDelay: time.Second,
	}
}

func (p *OpenAIProvider) Chat(ctx context.Context, messages []Message, tools []ToolSpec) (ChatOut, error) {
	if ctx.Err() != nil {
		return ChatOut{}, ctx.Err()
	}

	var lastErr error
	for attempt := 0; attempt <= p.maxRetries; attempt++ {
		out, err := p.client.createChatCompletion(ctx, messages, tools)
		if err == nil {
			return out, nil
		}

		lastErr = err

		if !isTransientError(err) {
			return ChatOut{}, err
		}
		if attempt >= p.maxRetries {
			break
		}

		delay := p.retryDelay
		if isRateLimitError(err) {
			delay = p.retryDelay * time.Duration(attempt+1)
		}

		select {
		case <-time.After(delay):
		case <-ctx.Done():
			return ChatOut{}, ctx.Err()
		}
	}

	return ChatOut{}, fmt.Errorf("openai API failed after %d retries: %w", p.maxRetries, lastErr)
}

func isTransientError(err error) bool {
	if err == nil {
		return false
	}

	var rateLimitErr *rateLimitError
	if errors.As(err, &rateLimitErr) {
		return true
	}

	msgLower := strings.ToLower(err.Error())
	transientPatterns := []string{"timeout", "network", "connection", "temporary", "503", "502", "500"}
	for _, pattern := range transientPatterns {
		if strings.Contains(msgLower, pattern) {
			return true
		}
	}
	return false
}

func isRateLimitError(err error) bool {
	var rateLimitErr *rateLimitError
	return errors.As(err, &rateLimitErr)
}

type rateLimitError struct {
	message string
}

func (e *rateLimitError) Error() string {
	return e.message
}

type openaiDefaultClient struct {
	apiKey    string
	modelName string
}

func (c *openaiDefaultClient) createChatCompletion(ctx context.Context, messages []Message, tools []ToolSpec) (ChatOut, error) {
	if c.apiKey == "" {
		return ChatOut{}, errors.New("openai API key is required")
	}

	client := openaisdk.NewClient(option.WithAPIKey(c.apiKey))

	params := openaisdk.ChatCompletionNewParams{
		Model:    openaisdk.ChatModel(c.modelName),
		Messages: convertOpenAIMessages(messages),
	}

	if len(tools) > 0 {
		params.Tools = convertOpenAITools(tools)
	}

	resp, err := client.Chat.Completions.New(ctx, params)
	if err != nil {
		return ChatOut{}, fmt.Errorf("openai API error: %w", err)
	}

	return convertOpenAIResponse(resp), nil
}

func convertOpenAIMessages(messages []Message) []openaisdk.ChatCompletionMessageParamUnion {
	result := make([]openaisdk.ChatCompletionMessageParamUnion, len(messages))
	for i, msg := range messages {
		switch msg.Role {
		case RoleSystem:
			result[i] = openaisdk.SystemMessage(msg.Content)
		case RoleAssistant:
			result[i] = openaisdk.AssistantMessage(msg.Content)
		default:
			result[i] = openaisdk.UserMessage(msg.Content)
		}
	}
	return result
}

func convertOpenAITools(tools []ToolSpec) []openaisdk.ChatCompletionToolParam {
	result := make([]openaisdk.ChatCompletionToolParam, len(tools))
	for i, tool := range tools {
		result[i] = openaisdk.ChatCompletionToolParam{
			Function: shared.FunctionDefinitionParam{
				Name:        tool.Name,
				Description: openaisdk.String(tool.Description),
				Parameters:  shared.FunctionParameters(tool.Schema),
			},
		}
	}
	return result
}

func convertOpenAIResponse(resp *openaisdk.ChatCompletion) ChatOut {
	out := ChatOut{
		Usage: core.LLMUsage{
			PromptTokens:     int(resp.Usage.PromptTokens),
			CompletionTokens: int(resp.Usage.CompletionTokens),
			TotalTokens:      int(resp.Usage.TotalTokens),
		},
	}

	if len(resp.Choices) == 0 {
		return out
	}

	choice := resp.Choices[0]
	msg := choice.Message
	out.Text = msg.Content

	if len(msg.ToolCalls) > 0 {
		out.ToolCalls = make([]ToolCall, len(msg.ToolCalls))
		for i, tc := range msg.ToolCalls {
			out.ToolCalls[i] = ToolCall{
				Name:  tc.Function.Name,
				Input: parseToolInput(tc.Function.Arguments),
			}
		}
	}

	return out
}

// parseToolInput decodes a tool call's JSON arguments string into a map,
// falling back to a raw wrapper when the arguments aren't valid JSON.
func parseToolInput(jsonStr string) map[string]any {
	if jsonStr == "" {
		return nil
	}

	var result map[string]any
	if err := json.Unmarshal([]byte(jsonStr), &result); err != nil {
		return map[string]any{"_raw": jsonStr}
	}
	return result
}
