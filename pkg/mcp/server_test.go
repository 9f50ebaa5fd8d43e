package mcp

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/golang-jwt/jwt/v5"
	"github.com/mark3labs/mcp-go/mcp"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"

	"github.com/ekaya-inc/ekaya-canvas/pkg/auth"
)

func TestNewServer(t *testing.T) {
	logger := zap.NewNop()
	s := NewServer("test-server", "1.0.0", logger)

	if s == nil || s.mcp == nil {
		t.Fatal("expected non-nil server")
	}
	if s.MCP() != s.mcp {
		t.Error("expected MCP() to return the internal mcp server")
	}
}

func callTool(t *testing.T, s *Server, ctx context.Context, name string) *httptest.ResponseRecorder {
	t.Helper()
	body, _ := json.Marshal(map[string]any{
		"jsonrpc": "2.0",
		"method":  "tools/call",
		"params":  map[string]any{"name": name},
		"id":      1,
	})
	req := httptest.NewRequest(http.MethodPost, "/mcp", bytes.NewReader(body)).WithContext(ctx)
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/json, text/event-stream")

	rec := httptest.NewRecorder()
	s.NewStreamableHTTPServer().ServeHTTP(rec, req)
	return rec
}

// TestServer_HTTPContextPropagation verifies that claims placed on the HTTP
// request context reach tool handlers.
func TestServer_HTTPContextPropagation(t *testing.T) {
	s := NewServer("test-server", "1.0.0", zap.NewNop())

	var received *auth.Claims
	s.RegisterTool(mcp.NewTool("whoami"), func(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		received, _ = auth.GetClaims(ctx)
		return mcp.NewToolResultText("ok"), nil
	})

	claims := &auth.Claims{RegisteredClaims: jwt.RegisteredClaims{Subject: "user-7"}}
	callTool(t, s, auth.WithClaims(context.Background(), claims, "tok"), "whoami")

	if received == nil {
		t.Fatal("expected tool handler to receive claims from HTTP context, but got nil")
	}
	if received.Subject != "user-7" {
		t.Errorf("expected subject 'user-7', got %q", received.Subject)
	}
}

func TestServer_LogsToolCalls(t *testing.T) {
	core, logs := observer.New(zapcore.InfoLevel)
	s := NewServer("test-server", "1.0.0", zap.New(core))

	s.RegisterTool(mcp.NewTool("fails"), func(context.Context, mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		result := mcp.NewToolResultText(`{"error":true}`)
		result.IsError = true
		return result, nil
	})

	claims := &auth.Claims{RegisteredClaims: jwt.RegisteredClaims{Subject: "user-7"}}
	callTool(t, s, auth.WithClaims(context.Background(), claims, "tok"), "fails")

	entries := logs.FilterMessage("MCP tool returned error result").All()
	if len(entries) != 1 {
		t.Fatalf("expected 1 log entry, got %d", len(entries))
	}
	fields := entries[0].ContextMap()
	if fields["tool"] != "fails" {
		t.Errorf("expected tool 'fails', got %v", fields["tool"])
	}
	if fields["user_id"] != "user-7" {
		t.Errorf("expected user_id 'user-7', got %v", fields["user_id"])
	}
}

type fakeAuthenticator struct {
	claims *auth.Claims
}

func (a fakeAuthenticator) RequireAuth(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if a.claims == nil {
			w.WriteHeader(http.StatusUnauthorized)
			return
		}
		next.ServeHTTP(w, r.WithContext(auth.WithClaims(r.Context(), a.claims, "tok")))
	})
}

func TestServer_Handler(t *testing.T) {
	newRequest := func(body string) *http.Request {
		req := httptest.NewRequest(http.MethodPost, "/mcp", bytes.NewReader([]byte(body)))
		req.Header.Set("Content-Type", "application/json")
		req.Header.Set("Accept", "application/json, text/event-stream")
		return req
	}
	whoami := `{"jsonrpc":"2.0","method":"tools/call","params":{"name":"whoami"},"id":1}`

	t.Run("rejected before transport", func(t *testing.T) {
		s := NewServer("test-server", "1.0.0", zap.NewNop())
		called := false
		s.RegisterTool(mcp.NewTool("whoami"), func(context.Context, mcp.CallToolRequest) (*mcp.CallToolResult, error) {
			called = true
			return mcp.NewToolResultText("ok"), nil
		})

		rec := httptest.NewRecorder()
		s.Handler(fakeAuthenticator{}, 1<<20).ServeHTTP(rec, newRequest(whoami))

		if rec.Code != http.StatusUnauthorized {
			t.Errorf("expected 401, got %d", rec.Code)
		}
		if called {
			t.Error("tool must not run for an unauthenticated request")
		}
	})

	t.Run("authenticated call reaches tool", func(t *testing.T) {
		s := NewServer("test-server", "1.0.0", zap.NewNop())
		var subject string
		s.RegisterTool(mcp.NewTool("whoami"), func(ctx context.Context, _ mcp.CallToolRequest) (*mcp.CallToolResult, error) {
			if claims, ok := auth.GetClaims(ctx); ok {
				subject = claims.Subject
			}
			return mcp.NewToolResultText("ok"), nil
		})

		authn := fakeAuthenticator{claims: &auth.Claims{RegisteredClaims: jwt.RegisteredClaims{Subject: "user-9"}}}
		rec := httptest.NewRecorder()
		s.Handler(authn, 1<<20).ServeHTTP(rec, newRequest(whoami))

		if rec.Code != http.StatusOK {
			t.Fatalf("expected 200, got %d: %s", rec.Code, rec.Body.String())
		}
		if subject != "user-9" {
			t.Errorf("expected subject 'user-9', got %q", subject)
		}
	})

	t.Run("oversized body never reaches tool", func(t *testing.T) {
		s := NewServer("test-server", "1.0.0", zap.NewNop())
		called := false
		s.RegisterTool(mcp.NewTool("whoami"), func(context.Context, mcp.CallToolRequest) (*mcp.CallToolResult, error) {
			called = true
			return mcp.NewToolResultText("ok"), nil
		})

		authn := fakeAuthenticator{claims: &auth.Claims{RegisteredClaims: jwt.RegisteredClaims{Subject: "user-9"}}}
		rec := httptest.NewRecorder()
		s.Handler(authn, 16).ServeHTTP(rec, newRequest(whoami))

		if called {
			t.Error("tool must not run when the body exceeds the cap")
		}
	})
}
