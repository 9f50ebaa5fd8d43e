package tools

import (
	"context"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"

	"github.com/ekaya-inc/ekaya-canvas/pkg/llm"
)

// BreakerState exposes the model endpoint's circuit state.
type BreakerState interface {
	State() llm.CircuitState
	ConsecutiveFailures() int
}

// HealthToolDeps contains dependencies for the health tool.
type HealthToolDeps struct {
	Version string
	Model   string
	// Breaker may be nil when the model client is not guarded.
	Breaker BreakerState
}

type healthResult struct {
	Status        string `json:"status"`
	Service       string `json:"service"`
	Version       string `json:"version"`
	Model         string `json:"model,omitempty"`
	ModelEndpoint string `json:"model_endpoint"`
	// ModelFailures is the current run of failed model calls.
	ModelFailures int    `json:"model_consecutive_failures"`
}

// RegisterHealthTool adds the health tool. Status is "degraded" while the
// model endpoint's circuit is open, since generation would fail fast.
func RegisterHealthTool(s *server.MCPServer, deps *HealthToolDeps) {
	tool := mcp.NewTool(
		"health",
		mcp.WithDescription("Returns server health, version and model endpoint state"),
		mcp.WithReadOnlyHintAnnotation(true),
	)

	s.AddTool(tool, func(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		result := healthResult{
			Status:        "ok",
			Service:       "ekaya-canvas",
			Version:       deps.Version,
			Model:         deps.Model,
			ModelEndpoint: "unknown",
		}
		if deps.Breaker != nil {
			state := deps.Breaker.State()
			result.ModelEndpoint = state.String()
			result.ModelFailures = deps.Breaker.ConsecutiveFailures()
			if state == llm.CircuitOpen {
				result.Status = "degraded"
			}
		}
		return jsonResult(result)
	})
}
