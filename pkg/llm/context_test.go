package llm

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestWithContext_Merges(t *testing.T) {
	ctx := WithContext(context.Background(), map[string]any{"a": 1})
	ctx = WithContext(ctx, map[string]any{"b": 2})

	got := GetContext(ctx)
	assert.Equal(t, map[string]any{"a": 1, "b": 2}, got)
}

func TestGetContext_ReturnsCopy(t *testing.T) {
	ctx := WithContext(context.Background(), map[string]any{"a": 1})

	got := GetContext(ctx)
	got["a"] = 99

	assert.Equal(t, 1, GetContext(ctx)["a"])
	assert.Nil(t, GetContext(context.Background()))
}

func TestWithStage(t *testing.T) {
	ctx := WithStage(context.Background(), "req-1", "verification")

	assert.Equal(t, "req-1", RequestIDFromContext(ctx))
	assert.Equal(t, "verification", GetContext(ctx)[ContextKeyStage])

	// A later stage keeps the request id.
	ctx = WithStage(ctx, "", "layout_refinement")
	assert.Equal(t, "req-1", RequestIDFromContext(ctx))
	assert.Equal(t, "layout_refinement", GetContext(ctx)[ContextKeyStage])

	assert.Empty(t, RequestIDFromContext(context.Background()))
}
