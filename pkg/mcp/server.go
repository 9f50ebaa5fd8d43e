// Package mcp exposes diagram generation as MCP tools over streamable HTTP.
package mcp

import (
	"net/http"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"
	"go.uber.org/zap"

	"github.com/ekaya-inc/ekaya-canvas/pkg/middleware"
)

// Authenticator guards the MCP endpoint.
type Authenticator interface {
	RequireAuth(next http.Handler) http.Handler
}

// Server wraps the mcp-go MCPServer.
type Server struct {
	mcp    *server.MCPServer
	logger *zap.Logger
}

// NewServer creates a new MCP server instance. Tool calls are logged
// through ToolCallLogger hooks and handler panics are recovered.
func NewServer(name, version string, logger *zap.Logger) *Server {
	calls := NewToolCallLogger(logger)
	mcpServer := server.NewMCPServer(
		name,
		version,
		server.WithToolCapabilities(true),
		server.WithRecovery(),
		server.WithHooks(calls.Hooks()),
	)

	return &Server{
		mcp:    mcpServer,
		logger: logger,
	}
}

// MCP returns the underlying MCPServer for tool registration.
func (s *Server) MCP() *server.MCPServer {
	return s.mcp
}

// NewStreamableHTTPServer creates a stateless HTTP transport for this
// server. Every request carries its own credentials, so no session is kept.
func (s *Server) NewStreamableHTTPServer() *server.StreamableHTTPServer {
	return server.NewStreamableHTTPServer(
		s.mcp,
		server.WithStateLess(true),
	)
}

// Handler returns the full /mcp handler: authentication first, then
// JSON-RPC logging, then the transport with the request body capped at
// maxBodyBytes. Uploads arrive base64-encoded inside the JSON-RPC body,
// so the cap matches the REST upload limit.
func (s *Server) Handler(authn Authenticator, maxBodyBytes int64) http.Handler {
	var transport http.Handler = s.NewStreamableHTTPServer()
	if maxBodyBytes > 0 {
		transport = http.MaxBytesHandler(transport, maxBodyBytes)
	}
	return authn.RequireAuth(middleware.MCPRequestLogger(s.logger)(transport))
}

// RegisterTool is a convenience wrapper for registering a tool.
func (s *Server) RegisterTool(tool mcp.Tool, handler server.ToolHandlerFunc) {
	s.mcp.AddTool(tool, handler)
}
