package llm

import (
	"context"
)

// LLMClient is the model transport used by the pipeline stages.
// Use this interface for dependency injection to enable mocking in tests.
type LLMClient interface {
	// GenerateResponse generates a chat completion for a text-only prompt.
	GenerateResponse(ctx context.Context, prompt string, systemMessage string, temperature float64, maxTokens int) (*GenerateResponseResult, error)

	// GenerateWithImage generates a chat completion for a prompt with an inline image.
	GenerateWithImage(ctx context.Context, prompt string, image *ImageInput, systemMessage string, temperature float64, maxTokens int) (*GenerateResponseResult, error)

	// GetModel returns the configured model name.
	GetModel() string

	// GetEndpoint returns the configured endpoint.
	GetEndpoint() string
}

// Ensure Client implements LLMClient at compile time.
var _ LLMClient = (*Client)(nil)
