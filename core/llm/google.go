package llm

import (
	"context"
	"errors"
	"fmt"

	"github.com/dipeo/dipeo-core/core"
	"github.com/google/generative-ai-go/genai"
	"google.golang.org/api/option"
)

// GoogleProvider implements Provider for Google's Gemini API, adapted from
// graph/model/google.ChatModel.
type GoogleProvider struct {
	apiKey    string
	modelName string
	client    googleClient
}

type googleClient interface {
	generateContent(ctx context.Context, messages []Message, tools []ToolSpec) (ChatOut, error)
}

// NewGoogleProvider constructs a GoogleProvider. An empty modelName falls
// back to a default Gemini model.
func NewGoogleProvider(apiKey, modelName string) *GoogleProvider {
	if modelName == "" {
		modelName = "gemini-2.5-flash"
	}
	return &GoogleProvider{
		apiKey:    apiKey,
		modelName: modelName,
		client:    &googleDefaultClient{apiKey: apiKey, modelName: modelName},
	}
}

func (p *GoogleProvider) Chat(ctx context.Context, messages []Message, tools []ToolSpec) (ChatOut, error) {
	if ctx.Err() != nil {
		return ChatOut{}, ctx.Err()
	}

	out, err := p.client.generateContent(ctx, messages, tools)
	if err != nil {
		var safetyErr *SafetyFilterError
		if errors.As(err, &safetyErr) {
			return ChatOut{}, safetyErr
		}
		return ChatOut{}, err
	}
	return out, nil
}

// SafetyFilterError represents a Google safety filter block. Use errors.As
// to detect and branch on it distinctly from other provider failures.
type SafetyFilterError struct {
	reason   string
	category string
}

func (e *SafetyFilterError) Error() string {
	return "content blocked by safety filter: " + e.category
}

func (e *SafetyFilterError) Category() string { return e.category }
func (e *SafetyFilterError) Reason() string   { return e.reason }

type googleDefaultClient struct {
	apiKey    string
	modelName string
}

func (c *googleDefaultClient) generateContent(ctx context.Context, messages []Message, tools []ToolSpec) (ChatOut, error) {
	if c.apiKey == "" {
		return ChatOut{}, errors.New("google API key is required")
	}

	client, err := genai.NewClient(ctx, option.WithAPIKey(c.apiKey))
	if err != nil {
		return ChatOut{}, fmt.Errorf("failed to create google client: %w", err)
	}
	defer client.Close()

	genModel := client.GenerativeModel(c.modelName)
	if len(tools) > 0 {
		genModel.Tools = convertGoogleTools(tools)
	}

	resp, err := genModel.GenerateContent(ctx, convertGoogleMessages(messages)...)
	if err != nil {
		return ChatOut{}, fmt.Errorf("google API error: %w", err)
	}

	return convertGoogleResponse(resp), nil
}

func convertGoogleMessages(messages []Message) []genai.Part {
	var parts []genai.Part
	for _, msg := range messages {
		if msg.Content != "" {
			parts = append(parts, genai.Text(msg.Content))
		}
	}
	return parts
}

func convertGoogleTools(tools []ToolSpec) []*genai.Tool {
	declarations := make([]*genai.FunctionDeclaration, len(tools))
	for i, tool := range tools {
		declarations[i] = &genai.FunctionDeclaration{
			Name:        tool.Name,
			Description: tool.Description,
			Parameters:  convertGoogleSchema(tool.Schema),
		}
	}
	return []*genai.Tool{{FunctionDeclarations: declarations}}
}

func convertGoogleSchema(schema map[string]any) *genai.Schema {
	if schema == nil {
		return nil
	}

	result := &genai.Schema{Type: genai.TypeObject}

	if props, ok := schema["properties"].(map[string]any); ok {
		properties := make(map[string]*genai.Schema)
		for key, val := range props {
			if propMap, ok := val.(map[string]any); ok {
				propSchema := &genai.Schema{}
				if typeStr, ok := propMap["type"].(string); ok {
					propSchema.Type = convertGoogleTypeString(typeStr)
				}
				if desc, ok := propMap["description"].(string); ok {
					propSchema.Description = desc
				}
				properties[key] = propSchema
			}
		}
		result.Properties = properties
	}

	if required, ok := schema["required"].([]string); ok {
		result.Required = required
	} else if required, ok := schema["required"].([]any); ok {
		requiredStrs := make([]string, len(required))
		for i, v := range required {
			if s, ok := v.(string); ok {
				requiredStrs[i] = s
			}
		}
		result.Required = requiredStrs
	}

	return result
}

func convertGoogleTypeString(typeStr string) genai.Type {
	switch typeStr {
	case "string":
		return genai.TypeString
	case "number":
		return genai.TypeNumber
	case "integer":
		return genai.TypeInteger
	case "boolean":
		return genai.TypeBoolean
	case "array":
		return genai.TypeArray
	case "object":
		return genai.TypeObject
	default:
		return genai.TypeUnspecified
	}
}

func convertGoogleResponse(resp *genai.GenerateContentResponse) ChatOut {
	out := ChatOut{}

	if resp.UsageMetadata != nil {
		out.Usage = core.LLMUsage{
			PromptTokens:     int(resp.UsageMetadata.PromptTokenCount),
			CompletionTokens: int(resp.UsageMetadata.CandidatesTokenCount),
			TotalTokens:      int(resp.UsageMetadata.TotalTokenCount),
		}
	}

	if len(resp.Candidates) == 0 {
		return out
	}

	candidate := resp.Candidates[0]
	if candidate.Content == nil {
		return out
	}

	for _, part := range candidate.Content.Parts {
		switch p := part.(type) {
		case genai.Text:
			if out.Text != "" {
				out.Text += "\n"
			}
			out.Text += string(p)
		case genai.FunctionCall:
			out.ToolCalls = append(out.ToolCalls, ToolCall{Name: p.Name, Input: p.Args})
		}
	}

	return out
}
