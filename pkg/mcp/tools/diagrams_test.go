package tools

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"testing"

	"github.com/golang-jwt/jwt/v5"
	"github.com/mark3labs/mcp-go/server"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/ekaya-inc/ekaya-canvas/pkg/apperrors"
	"github.com/ekaya-inc/ekaya-canvas/pkg/auth"
	"github.com/ekaya-inc/ekaya-canvas/pkg/config"
	"github.com/ekaya-inc/ekaya-canvas/pkg/models"
	"github.com/ekaya-inc/ekaya-canvas/pkg/services"
)

type fakeGenerator struct {
	got    *models.GenerationRequest
	result *models.PipelineResult
	status *models.QuotaStatus
	err    error
}

func (f *fakeGenerator) Generate(_ context.Context, req *models.GenerationRequest) (*models.PipelineResult, error) {
	f.got = req
	if f.err != nil {
		return nil, f.err
	}
	return f.result, nil
}

func (f *fakeGenerator) Usage(context.Context, models.Caller) (*models.QuotaStatus, error) {
	if f.err != nil {
		return nil, f.err
	}
	return f.status, nil
}

type toolResponse struct {
	Result struct {
		IsError bool `json:"isError"`
		Content []struct {
			Type string `json:"type"`
			Text string `json:"text"`
		} `json:"content"`
	} `json:"result"`
	Error *struct {
		Code    int    `json:"code"`
		Message string `json:"message"`
	} `json:"error"`
}

func newDiagramServer(gen *fakeGenerator) *server.MCPServer {
	s := server.NewMCPServer("test", "1.0.0", server.WithToolCapabilities(true))
	RegisterDiagramTools(s, &DiagramToolDeps{
		Normalizer:      services.NewInputNormalizer(config.LimitsConfig{MaxTextChars: 1000, MaxImageBytes: 4096}, zap.NewNop()),
		Generator:       gen,
		PrivilegedRoles: []string{"pro"},
		Logger:          zap.NewNop(),
	})
	return s
}

func asUser(subject string, roles ...string) context.Context {
	claims := &auth.Claims{RegisteredClaims: jwt.RegisteredClaims{Subject: subject}, Roles: roles}
	return auth.WithClaims(context.Background(), claims, "tok")
}

func call(t *testing.T, s *server.MCPServer, ctx context.Context, tool string, args map[string]any) toolResponse {
	t.Helper()
	msg, err := json.Marshal(map[string]any{
		"jsonrpc": "2.0",
		"id":      1,
		"method":  "tools/call",
		"params":  map[string]any{"name": tool, "arguments": args},
	})
	require.NoError(t, err)

	out, err := json.Marshal(s.HandleMessage(ctx, msg))
	require.NoError(t, err)

	var resp toolResponse
	require.NoError(t, json.Unmarshal(out, &resp))
	return resp
}

func errorPayload(t *testing.T, resp toolResponse) ErrorResponse {
	t.Helper()
	require.True(t, resp.Result.IsError, "expected a tool error result")
	require.NotEmpty(t, resp.Result.Content)
	var payload ErrorResponse
	require.NoError(t, json.Unmarshal([]byte(resp.Result.Content[0].Text), &payload))
	return payload
}

func TestGenerateDiagramTool_Text(t *testing.T) {
	remaining, limit := 2, 3
	gen := &fakeGenerator{result: &models.PipelineResult{
		Elements:      []models.DiagramElement{{ID: "a", Type: models.ElementText, Text: "Budget review"}},
		RemainingUses: &remaining,
		DailyLimit:    &limit,
	}}
	s := newDiagramServer(gen)

	resp := call(t, s, asUser("user-1"), "generate_diagram", map[string]any{
		"text":           "Budget review",
		"theme":          "dark",
		"expand_content": true,
	})

	require.Nil(t, resp.Error)
	require.False(t, resp.Result.IsError)
	require.NotNil(t, gen.got)
	assert.Equal(t, models.ThemeDark, gen.got.Theme)
	assert.True(t, gen.got.ExpandContent)
	assert.Equal(t, "user-1", gen.got.Caller.ID)

	var result models.PipelineResult
	require.NoError(t, json.Unmarshal([]byte(resp.Result.Content[0].Text), &result))
	assert.Len(t, result.Elements, 1)
	assert.Equal(t, 2, *result.RemainingUses)
}

func TestGenerateDiagramTool_File(t *testing.T) {
	gen := &fakeGenerator{result: &models.PipelineResult{}}
	s := newDiagramServer(gen)

	resp := call(t, s, asUser("user-1", "pro"), "generate_diagram", map[string]any{
		"file_base64": base64.StdEncoding.EncodeToString([]byte("- one\n- two")),
		"file_name":   "notes.txt",
	})

	require.False(t, resp.Result.IsError)
	assert.Equal(t, "- one\n- two", gen.got.Text)
	assert.True(t, gen.got.Caller.IsPrivileged)
	assert.Equal(t, models.ThemeLight, gen.got.Theme)
}

func TestGenerateDiagramTool_Errors(t *testing.T) {
	tests := []struct {
		name     string
		ctx      context.Context
		args     map[string]any
		genErr   error
		wantCode string
	}{
		{"unauthenticated", context.Background(), map[string]any{"text": "x"}, nil, "unauthorized"},
		{"no input", asUser("u"), map[string]any{}, nil, "invalid_input"},
		{"bad base64", asUser("u"), map[string]any{"file_base64": "%%%"}, nil, "invalid_input"},
		{"unsupported file", asUser("u"), map[string]any{"file_base64": base64.StdEncoding.EncodeToString([]byte("PK\x03\x04\x14\x00"))}, nil, "unsupported_file_type"},
		{"quota", asUser("u"), map[string]any{"text": "x"}, &apperrors.QuotaExceededError{DailyLimit: 3}, "quota_exceeded"},
		{"generation", asUser("u"), map[string]any{"text": "x"}, apperrors.NewGenerationError(apperrors.GenerationKindTimeout, "slow", nil), "generation_failed"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s := newDiagramServer(&fakeGenerator{err: tt.genErr, result: &models.PipelineResult{}})
			payload := errorPayload(t, call(t, s, tt.ctx, "generate_diagram", tt.args))
			assert.Equal(t, tt.wantCode, payload.Code)
			assert.True(t, payload.Error)
		})
	}
}

func TestGenerateDiagramTool_QuotaDetails(t *testing.T) {
	s := newDiagramServer(&fakeGenerator{err: &apperrors.QuotaExceededError{DailyLimit: 3}})

	payload := errorPayload(t, call(t, s, asUser("u"), "generate_diagram", map[string]any{"text": "x"}))

	details, ok := payload.Details.(map[string]any)
	require.True(t, ok)
	assert.Equal(t, float64(0), details["remainingUses"])
	assert.Equal(t, float64(3), details["dailyLimit"])
}

func TestGenerateDiagramTool_SystemFailureIsProtocolError(t *testing.T) {
	s := newDiagramServer(&fakeGenerator{err: errors.New("boom")})

	resp := call(t, s, asUser("u"), "generate_diagram", map[string]any{"text": "x"})

	assert.True(t, resp.Error != nil || resp.Result.IsError, "system failures must surface as errors")
}

func TestDiagramUsageTool(t *testing.T) {
	remaining, limit := 1, 3
	s := newDiagramServer(&fakeGenerator{status: &models.QuotaStatus{RemainingUses: &remaining, DailyLimit: &limit}})

	resp := call(t, s, asUser("user-1"), "diagram_usage", nil)

	require.False(t, resp.Result.IsError)
	assert.JSONEq(t, `{"remainingUses":1,"dailyLimit":3,"isPro":false}`, resp.Result.Content[0].Text)
}

func TestErrorResultFor_UnknownError(t *testing.T) {
	assert.Nil(t, ErrorResultFor(fmt.Errorf("wrapped: %w", errors.New("disk full"))))
	assert.NotNil(t, ErrorResultFor(fmt.Errorf("wrapped: %w", apperrors.ErrUnsupportedFileType)))
}
