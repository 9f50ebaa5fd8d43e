package mcp

import (
	"context"
	"sync"
	"time"

	mcplib "github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"
	"go.uber.org/zap"

	"github.com/ekaya-inc/ekaya-canvas/pkg/auth"
	"github.com/ekaya-inc/ekaya-canvas/pkg/llm"
	"github.com/ekaya-inc/ekaya-canvas/pkg/logging"
)

// ToolCallLogger logs every MCP tool call with its caller, outcome and
// duration. Arguments are not logged; they may hold user source material.
type ToolCallLogger struct {
	logger *zap.Logger

	// startTimes tracks when tool calls begin, keyed by JSON-RPC id.
	startTimes sync.Map
}

// NewToolCallLogger creates a ToolCallLogger.
func NewToolCallLogger(logger *zap.Logger) *ToolCallLogger {
	return &ToolCallLogger{logger: logger.Named("mcp-tools")}
}

// Hooks returns mcp-go Hooks that feed this logger.
func (l *ToolCallLogger) Hooks() *server.Hooks {
	hooks := &server.Hooks{}
	hooks.AddBeforeCallTool(l.beforeCallTool)
	hooks.AddAfterCallTool(l.afterCallTool)
	hooks.AddOnError(l.onError)
	return hooks
}

func (l *ToolCallLogger) beforeCallTool(_ context.Context, id any, _ *mcplib.CallToolRequest) {
	l.startTimes.Store(id, time.Now())
}

func (l *ToolCallLogger) afterCallTool(ctx context.Context, id any, req *mcplib.CallToolRequest, result *mcplib.CallToolResult) {
	fields := l.fields(ctx, id, req)
	if result != nil && result.IsError {
		l.logger.Info("MCP tool returned error result", fields...)
		return
	}
	l.logger.Info("MCP tool call", fields...)
}

func (l *ToolCallLogger) onError(ctx context.Context, id any, method mcplib.MCPMethod, message any, err error) {
	if method != mcplib.MethodToolsCall {
		return
	}
	req, ok := message.(*mcplib.CallToolRequest)
	if !ok {
		return
	}
	fields := append(l.fields(ctx, id, req), zap.String("error", logging.SanitizeError(err)))
	l.logger.Error("MCP tool call failed", fields...)
}

func (l *ToolCallLogger) fields(ctx context.Context, id any, req *mcplib.CallToolRequest) []zap.Field {
	start := time.Now()
	if v, ok := l.startTimes.LoadAndDelete(id); ok {
		start = v.(time.Time)
	}

	fields := []zap.Field{
		zap.String("tool", req.Params.Name),
		zap.Duration("duration", time.Since(start)),
	}
	if userID := auth.GetUserIDFromContext(ctx); userID != "" {
		fields = append(fields, zap.String("user_id", userID))
	}
	if requestID := llm.RequestIDFromContext(ctx); requestID != "" {
		fields = append(fields, zap.String("request_id", requestID))
	}
	return fields
}
