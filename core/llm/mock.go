package llm

import (
	"context"
	"sync"
)

// MockProvider is a test double for Provider, adapted from
// graph/model.MockChatModel: configurable canned responses, call history,
// and error injection, without touching a real provider API.
type MockProvider struct {
	// Responses returned in order; the last one repeats once exhausted.
	Responses []ChatOut

	// Err, if set, is returned instead of a response.
	Err error

	// Calls records every invocation for test assertions.
	Calls []MockCall

	mu        sync.Mutex
	callIndex int
}

// MockCall records a single Chat invocation.
type MockCall struct {
	Messages []Message
	Tools    []ToolSpec
}

func (m *MockProvider) Chat(ctx context.Context, messages []Message, tools []ToolSpec) (ChatOut, error) {
	if ctx.Err() != nil {
		return ChatOut{}, ctx.Err()
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	m.Calls = append(m.Calls, MockCall{Messages: messages, Tools: tools})

	if m.Err != nil {
		return ChatOut{}, m.Err
	}
	if len(m.Responses) == 0 {
		return ChatOut{}, nil
	}

	idx := m.callIndex
	if idx >= len(m.Responses) {
		idx = len(m.Responses) - 1
	} else {
		m.callIndex++
	}

	return m.Responses[idx], nil
}

// Reset clears call history and the response index.
func (m *MockProvider) Reset() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.Calls = nil
	m.callIndex = 0
}

// CallCount reports how many times Chat has been called.
func (m *MockProvider) CallCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.Calls)
}
