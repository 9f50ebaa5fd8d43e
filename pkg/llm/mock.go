package llm

import (
	"context"
	"sync"
	"sync/atomic"
)

// MockLLMClient is a configurable mock for testing LLM functionality.
// Set the function fields to control behavior in tests.
type MockLLMClient struct {
	// GenerateResponseFunc is called when GenerateResponse is invoked.
	// If nil, returns empty result and nil error.
	GenerateResponseFunc func(ctx context.Context, prompt string, systemMessage string, temperature float64, maxTokens int) (*GenerateResponseResult, error)

	// GenerateWithImageFunc is called when GenerateWithImage is invoked.
	// If nil, returns empty result and nil error.
	GenerateWithImageFunc func(ctx context.Context, prompt string, image *ImageInput, systemMessage string, temperature float64, maxTokens int) (*GenerateResponseResult, error)

	// Model is returned by GetModel. Defaults to "mock-model".
	Model string

	// Endpoint is returned by GetEndpoint. Defaults to "http://mock-endpoint".
	Endpoint string

	// Call tracking for verification
	GenerateResponseCalls  atomic.Int64
	GenerateWithImageCalls atomic.Int64

	mu      sync.Mutex
	prompts []string
}

// NewMockLLMClient creates a new mock with sensible defaults.
func NewMockLLMClient() *MockLLMClient {
	return &MockLLMClient{
		Model:    "mock-model",
		Endpoint: "http://mock-endpoint",
	}
}

// GenerateResponse implements LLMClient.
func (m *MockLLMClient) GenerateResponse(ctx context.Context, prompt string, systemMessage string, temperature float64, maxTokens int) (*GenerateResponseResult, error) {
	m.GenerateResponseCalls.Add(1)
	m.record(prompt)
	if m.GenerateResponseFunc != nil {
		return m.GenerateResponseFunc(ctx, prompt, systemMessage, temperature, maxTokens)
	}
	return &GenerateResponseResult{}, nil
}

// GenerateWithImage implements LLMClient.
func (m *MockLLMClient) GenerateWithImage(ctx context.Context, prompt string, image *ImageInput, systemMessage string, temperature float64, maxTokens int) (*GenerateResponseResult, error) {
	m.GenerateWithImageCalls.Add(1)
	m.record(prompt)
	if m.GenerateWithImageFunc != nil {
		return m.GenerateWithImageFunc(ctx, prompt, image, systemMessage, temperature, maxTokens)
	}
	return &GenerateResponseResult{}, nil
}

// TotalCalls returns the number of model calls of either kind.
func (m *MockLLMClient) TotalCalls() int64 {
	return m.GenerateResponseCalls.Load() + m.GenerateWithImageCalls.Load()
}

// Prompts returns the user prompts seen so far, in call order.
func (m *MockLLMClient) Prompts() []string {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]string, len(m.prompts))
	copy(out, m.prompts)
	return out
}

func (m *MockLLMClient) record(prompt string) {
	m.mu.Lock()
	m.prompts = append(m.prompts, prompt)
	m.mu.Unlock()
}

// GetModel implements LLMClient.
func (m *MockLLMClient) GetModel() string {
	if m.Model == "" {
		return "mock-model"
	}
	return m.Model
}

// GetEndpoint implements LLMClient.
func (m *MockLLMClient) GetEndpoint() string {
	if m.Endpoint == "" {
		return "http://mock-endpoint"
	}
	return m.Endpoint
}

// Reset clears call tracking counters.
func (m *MockLLMClient) Reset() {
	m.GenerateResponseCalls.Store(0)
	m.GenerateWithImageCalls.Store(0)
	m.mu.Lock()
	m.prompts = nil
	m.mu.Unlock()
}

// Ensure MockLLMClient implements LLMClient at compile time.
var _ LLMClient = (*MockLLMClient)(nil)
