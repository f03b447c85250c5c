package llm

import (
	"context"
	"sync"
)

// MockClient is a test double for Completer.
type MockClient struct {
	mu sync.Mutex
	// Results are returned in order; DefaultResult is used once they run out.
	Results       []string
	DefaultResult string
	PromptErr     error
	PromptHistory []string
}

// NewMockClient creates a new MockClient with sensible defaults.
func NewMockClient() *MockClient {
	return &MockClient{DefaultResult: "Mock LLM response"}
}

func (m *MockClient) Complete(_ context.Context, prompt string) (string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.PromptHistory = append(m.PromptHistory, prompt)
	if m.PromptErr != nil {
		return "", m.PromptErr
	}
	if len(m.Results) > 0 {
		r := m.Results[0]
		m.Results = m.Results[1:]
		return r, nil
	}
	return m.DefaultResult, nil
}

// GetPromptHistory returns all prompts sent to this mock.
func (m *MockClient) GetPromptHistory() []string {
	m.mu.Lock()
	defer m.mu.Unlock()
	result := make([]string, len(m.PromptHistory))
	copy(result, m.PromptHistory)
	return result
}
