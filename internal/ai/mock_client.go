package ai

import (
	"context"
	"sync"
)

// MockClient is a mock generation client for testing. It records every call
// so tests can assert how often the model boundary was crossed.
type MockClient struct {
	GenerateFunc func(ctx context.Context, spec PromptSpec, opts Options) (*Result, error)

	mu    sync.Mutex
	calls []PromptSpec
}

func NewMockClient() *MockClient {
	return &MockClient{}
}

func (m *MockClient) Generate(ctx context.Context, spec PromptSpec, opts Options) (*Result, error) {
	m.mu.Lock()
	m.calls = append(m.calls, spec)
	m.mu.Unlock()

	if m.GenerateFunc != nil {
		return m.GenerateFunc(ctx, spec, opts)
	}

	// Default mock behavior: echo a short plain-text reply
	return &Result{Text: "ok", Tier: TierFast}, nil
}

// Calls returns a copy of the specs seen so far.
func (m *MockClient) Calls() []PromptSpec {
	m.mu.Lock()
	defer m.mu.Unlock()

	out := make([]PromptSpec, len(m.calls))
	copy(out, m.calls)
	return out
}

// CallCount returns how many times Generate was invoked.
func (m *MockClient) CallCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.calls)
}
