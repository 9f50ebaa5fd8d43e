package pipeline

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/ekaya-inc/ekaya-canvas/pkg/diagram"
	"github.com/ekaya-inc/ekaya-canvas/pkg/llm"
	"github.com/ekaya-inc/ekaya-canvas/pkg/models"
)

var testValidator = diagram.MustSchemaValidator()

var testSettings = ModelSettings{Temperature: 0.2, MaxTokens: 1000, Timeout: 2 * time.Second}

func testRunContext() *RunContext {
	return &RunContext{
		RequestID:  "req-test",
		Theme:      models.ThemeLight,
		SourceKind: models.SourceText,
		SourceText: "Meeting notes: 1) Budget review 2) Hiring plan",
		Caller:     models.Caller{ID: "user-1"},
	}
}

// boxes returns n labelled boxes as candidate JSON: a rectangle and a
// text element per box, truncated to n items.
func boxesJSON(n int) string {
	items := make([]string, 0, n)
	for i := 0; len(items) < n; i++ {
		y := i * 120
		items = append(items, fmt.Sprintf(`{"type":"rectangle","x":0,"y":%d,"width":200,"height":80,"backgroundColor":"#a5d8ff","fillStyle":"solid"}`, y))
		if len(items) < n {
			items = append(items, fmt.Sprintf(`{"type":"text","x":20,"y":%d,"text":"Item %d"}`, y+30, i+1))
		}
	}
	return "[" + strings.Join(items, ",") + "]"
}

func boxes(t *testing.T, n int) []models.DiagramElement {
	t.Helper()
	elements, rejected, err := testValidator.ValidateArray(json.RawMessage(boxesJSON(n)))
	require.NoError(t, err)
	require.Empty(t, rejected)
	require.Len(t, elements, n)
	return elements
}

func respondWith(content string) func(context.Context, string, string, float64, int) (*llm.GenerateResponseResult, error) {
	return func(context.Context, string, string, float64, int) (*llm.GenerateResponseResult, error) {
		return &llm.GenerateResponseResult{Content: content, FinishReason: "stop"}, nil
	}
}

func failWith(err error) func(context.Context, string, string, float64, int) (*llm.GenerateResponseResult, error) {
	return func(context.Context, string, string, float64, int) (*llm.GenerateResponseResult, error) {
		return nil, err
	}
}
