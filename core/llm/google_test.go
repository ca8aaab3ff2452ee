package llm

import (
	"context"
	"errors"
	"testing"

	"github.com/google/generative-ai-go/genai"
)

type mockGoogleClient struct {
	out       ChatOut
	err       error
	callCount int
}

func (m *mockGoogleClient) generateContent(ctx context.Context, messages []Message, tools []ToolSpec) (ChatOut, error) {
	m.callCount++
	return m.out, m.err
}

func TestNewGoogleProviderUsesDefaultModelWhenEmpty(t *testing.T) {
	p := NewGoogleProvider("test-key", "")
	if p.modelName == "" {
		t.Fatal("expected a default model name")
	}
}

func TestGoogleProviderChatReturnsClientResponse(t *testing.T) {
	client := &mockGoogleClient{out: ChatOut{Text: "Bonjour"}}
	p := &GoogleProvider{client: client}

	out, err := p.Chat(context.Background(), []Message{{Role: RoleUser, Content: "Hi"}}, nil)
	if err != nil {
		t.Fatalf("expected no error, got %v", err)
	}
	if out.Text != "Bonjour" {
		t.Errorf("expected response text, got %q", out.Text)
	}
}

func TestGoogleProviderChatPropagatesSafetyFilterError(t *testing.T) {
	safetyErr := &SafetyFilterError{reason: "blocked", category: "HARM_CATEGORY_HATE_SPEECH"}
	client := &mockGoogleClient{err: safetyErr}
	p := &GoogleProvider{client: client}

	_, err := p.Chat(context.Background(), []Message{{Role: RoleUser, Content: "Hi"}}, nil)
	var gotSafetyErr *SafetyFilterError
	if !errors.As(err, &gotSafetyErr) {
		t.Fatalf("expected a *SafetyFilterError, got %v", err)
	}
	if gotSafetyErr.Category() != "HARM_CATEGORY_HATE_SPEECH" {
		t.Errorf("unexpected category: %q", gotSafetyErr.Category())
	}
}

func TestConvertGoogleTypeStringMapsKnownTypes(t *testing.T) {
	cases := map[string]genai.Type{
		"string": genai.TypeString, "number": genai.TypeNumber, "integer": genai.TypeInteger,
		"boolean": genai.TypeBoolean, "array": genai.TypeArray, "object": genai.TypeObject,
		"unknown": genai.TypeUnspecified,
	}
	for typeStr, want := range cases {
		if got := convertGoogleTypeString(typeStr); got != want {
			t.Errorf("convertGoogleTypeString(%q) = %v, want %v", typeStr, got, want)
		}
	}
}
