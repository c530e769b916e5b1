package sigil

import (
	"context"
	"fmt"
	"sync"
)

// MockProvider simulates a model for testing. It plays back scripted
// completions in order, repeating the last one when the script runs out,
// and records every request it receives.
type MockProvider struct {
	name      string
	script    []string
	calls     int
	requests  []*Request
	available bool
	mu        sync.Mutex
}

// NewMockProvider creates a mock that always answers with the given text.
func NewMockProvider(response string) *MockProvider {
	return NewMockProviderScript(response)
}

// NewMockProviderScript creates a mock that answers with each response in
// turn, repeating the final one once the script is exhausted.
func NewMockProviderScript(responses ...string) *MockProvider {
	return &MockProvider{
		name:      "mock",
		script:    responses,
		available: true,
	}
}

// Call implements Provider.
func (m *MockProvider) Call(_ context.Context, req *Request) (*Completion, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if !m.available {
		return nil, fmt.Errorf("provider %s is unavailable", m.name)
	}
	m.requests = append(m.requests, req)
	idx := m.calls
	m.calls++
	if idx >= len(m.script) {
		idx = len(m.script) - 1
	}
	if idx < 0 {
		return &Completion{}, nil
	}
	return &Completion{
		Text:  m.script[idx],
		Usage: TokenUsage{Prompt: 10, Completion: 5, Total: 15},
	}, nil
}

// Name implements Provider.
func (m *MockProvider) Name() string { return m.name }

// SetAvailable toggles availability (for testing transport failures).
func (m *MockProvider) SetAvailable(available bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.available = available
}

// Calls returns how many requests the mock has served.
func (m *MockProvider) Calls() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.calls
}

// Request returns the i-th request received, or nil if out of range.
func (m *MockProvider) Request(i int) *Request {
	m.mu.Lock()
	defer m.mu.Unlock()
	if i < 0 || i >= len(m.requests) {
		return nil
	}
	return m.requests[i]
}

// LastRequest returns the most recent request received, or nil.
func (m *MockProvider) LastRequest() *Request {
	m.mu.Lock()
	defer m.mu.Unlock()
	if len(m.requests) == 0 {
		return nil
	}
	return m.requests[len(m.requests)-1]
}

// NewMockProviderWithCallback creates a mock that delegates response
// generation to a callback.
func NewMockProviderWithCallback(callback func(req *Request) (*Completion, error)) Provider {
	return &mockProviderCallback{callback: callback}
}

type mockProviderCallback struct {
	callback func(*Request) (*Completion, error)
}

func (m *mockProviderCallback) Call(_ context.Context, req *Request) (*Completion, error) {
	return m.callback(req)
}

func (m *mockProviderCallback) Name() string { return "mock-callback" }
