package llm

import (
	"context"
)

type contextKey string

const (
	llmContextKey contextKey = "llm_context"
)

// Keys used in the LLM logging context.
const (
	ContextKeyRequestID = "request_id"
	ContextKeyStage     = "stage"
)

// WithContext returns a context with LLM logging context attached.
// The context map is merged with any existing context.
func WithContext(ctx context.Context, values map[string]any) context.Context {
	existing := GetContext(ctx)
	if existing == nil {
		existing = make(map[string]any)
	}
	// Merge new values into existing
	for k, v := range values {
		existing[k] = v
	}
	return context.WithValue(ctx, llmContextKey, existing)
}

// GetContext retrieves the LLM logging context from context, if present.
func GetContext(ctx context.Context) map[string]any {
	if c, ok := ctx.Value(llmContextKey).(map[string]any); ok {
		// Return a copy to prevent mutation
		copy := make(map[string]any, len(c))
		for k, v := range c {
			copy[k] = v
		}
		return copy
	}
	return nil
}

// WithStage tags the context with the pipeline request id and stage name.
func WithStage(ctx context.Context, requestID, stage string) context.Context {
	values := map[string]any{ContextKeyStage: stage}
	if requestID != "" {
		values[ContextKeyRequestID] = requestID
	}
	return WithContext(ctx, values)
}

// RequestIDFromContext returns the request id recorded by WithStage, if any.
func RequestIDFromContext(ctx context.Context) string {
	if c, ok := ctx.Value(llmContextKey).(map[string]any); ok {
		if id, ok := c[ContextKeyRequestID].(string); ok {
			return id
		}
	}
	return ""
}
