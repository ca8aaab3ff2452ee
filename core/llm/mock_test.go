package llm

import (
	"context"
	"errors"
	"testing"
)

func TestMockProviderReturnsConfiguredResponse(t *testing.T) {
	mock := &MockProvider{Responses: []ChatOut{{Text: "Hello, world!"}}}
	messages := []Message{{Role: RoleUser, Content: "Hi"}}

	out, err := mock.Chat(context.Background(), messages, nil)
	if err != nil {
		t.Fatalf("expected no error, got %v", err)
	}
	if out.Text != "Hello, world!" {
		t.Errorf("expected Text = %q, got %q", "Hello, world!", out.Text)
	}
}

func TestMockProviderRepeatsLastResponseWhenExhausted(t *testing.T) {
	mock := &MockProvider{Responses: []ChatOut{{Text: "First"}, {Text: "Second"}}}
	messages := []Message{{Role: RoleUser, Content: "Test"}}

	for _, want := range []string{"First", "Second", "Second"} {
		out, err := mock.Chat(context.Background(), messages, nil)
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if out.Text != want {
			t.Errorf("expected %q, got %q", want, out.Text)
		}
	}
}

func TestMockProviderErrorTakesPrecedenceOverResponses(t *testing.T) {
	wantErr := errors.New("simulated API error")
	mock := &MockProvider{Err: wantErr, Responses: []ChatOut{{Text: "should not be returned"}}}

	_, err := mock.Chat(context.Background(), []Message{{Role: RoleUser, Content: "Test"}}, nil)
	if !errors.Is(err, wantErr) {
		t.Fatalf("expected %v, got %v", wantErr, err)
	}
}

func TestMockProviderRecordsCallHistory(t *testing.T) {
	mock := &MockProvider{Responses: []ChatOut{{Text: "OK"}}}
	tools := []ToolSpec{{Name: "search", Description: "Search"}}

	_, _ = mock.Chat(context.Background(), []Message{{Role: RoleUser, Content: "First"}}, nil)
	_, _ = mock.Chat(context.Background(), []Message{{Role: RoleUser, Content: "Second"}}, tools)

	if len(mock.Calls) != 2 {
		t.Fatalf("expected 2 calls recorded, got %d", len(mock.Calls))
	}
	if mock.Calls[1].Messages[0].Content != "Second" {
		t.Errorf("call 1: expected content %q, got %q", "Second", mock.Calls[1].Messages[0].Content)
	}
	if len(mock.Calls[1].Tools) != 1 {
		t.Errorf("call 1: expected 1 tool, got %d", len(mock.Calls[1].Tools))
	}
}

func TestMockProviderReset(t *testing.T) {
	mock := &MockProvider{Responses: []ChatOut{{Text: "First"}, {Text: "Second"}}}
	messages := []Message{{Role: RoleUser, Content: "Test"}}

	_, _ = mock.Chat(context.Background(), messages, nil)
	_, _ = mock.Chat(context.Background(), messages, nil)
	if mock.CallCount() != 2 {
		t.Fatalf("expected 2 calls before reset, got %d", mock.CallCount())
	}

	mock.Reset()
	if mock.CallCount() != 0 {
		t.Errorf("expected 0 calls after reset, got %d", mock.CallCount())
	}

	out, _ := mock.Chat(context.Background(), messages, nil)
	if out.Text != "First" {
		t.Errorf("expected %q after reset, got %q", "First", out.Text)
	}
}

func TestMockProviderConcurrentCallsAreSafe(t *testing.T) {
	mock := &MockProvider{Responses: []ChatOut{{Text: "OK"}}}
	messages := []Message{{Role: RoleUser, Content: "Test"}}

	const goroutines = 10
	done := make(chan bool, goroutines)
	for i := 0; i < goroutines; i++ {
		go func() {
			_, _ = mock.Chat(context.Background(), messages, nil)
			done <- true
		}()
	}
	for i := 0; i < goroutines; i++ {
		<-done
	}

	if mock.CallCount() != goroutines {
		t.Errorf("expected %d calls, got %d", goroutines, mock.CallCount())
	}
}
