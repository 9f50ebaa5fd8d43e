package tools

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"
	"go.uber.org/zap"

	"github.com/ekaya-inc/ekaya-canvas/pkg/auth"
	"github.com/ekaya-inc/ekaya-canvas/pkg/models"
	"github.com/ekaya-inc/ekaya-canvas/pkg/services"
)

// Normalizer classifies raw tool input.
type Normalizer interface {
	Normalize(ctx context.Context, in services.RawInput) (*services.NormalizedInput, error)
}

// DiagramToolDeps contains dependencies for the diagram tools.
type DiagramToolDeps struct {
	Normalizer      Normalizer
	Generator       services.DiagramGenerator
	PrivilegedRoles []string
	Logger          *zap.Logger
}

// RegisterDiagramTools adds generate_diagram and diagram_usage.
func RegisterDiagramTools(s *server.MCPServer, deps *DiagramToolDeps) {
	registerGenerateDiagramTool(s, deps)
	registerDiagramUsageTool(s, deps)
}

func registerGenerateDiagramTool(s *server.MCPServer, deps *DiagramToolDeps) {
	tool := mcp.NewTool(
		"generate_diagram",
		mcp.WithDescription(
			"Turns notes into a hand-drawn style diagram. Provide either text or a base64 file "+
				"(PDF, PNG, JPEG, GIF, WebP or plain text). Returns the diagram as a JSON array of "+
				"drawing elements. Counts against the caller's daily quota unless they are on a paid plan.",
		),
		mcp.WithString("text",
			mcp.Description("Source notes to diagram. Ignored when file_base64 is given."),
		),
		mcp.WithString("file_base64",
			mcp.Description("Base64-encoded file to diagram instead of text"),
		),
		mcp.WithString("file_name",
			mcp.Description("Original file name, used only for diagnostics"),
		),
		mcp.WithString("theme",
			mcp.Description("Color palette"),
			mcp.Enum(string(models.ThemeLight), string(models.ThemeDark)),
		),
		mcp.WithBoolean("expand_content",
			mcp.Description("Allow the model to add supporting content not present in the source"),
		),
		mcp.WithReadOnlyHintAnnotation(false),
		mcp.WithDestructiveHintAnnotation(false),
		mcp.WithOpenWorldHintAnnotation(true),
	)

	s.AddTool(tool, func(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		caller, err := auth.CallerFromContext(ctx, deps.PrivilegedRoles)
		if err != nil {
			return NewErrorResult("unauthorized", "authentication required"), nil
		}

		raw := services.RawInput{
			Text:     req.GetString("text", ""),
			FileName: req.GetString("file_name", ""),
		}
		if encoded := req.GetString("file_base64", ""); encoded != "" {
			raw.File, err = base64.StdEncoding.DecodeString(encoded)
			if err != nil {
				return NewErrorResult("invalid_input", "file_base64 is not valid base64"), nil
			}
		}

		in, err := deps.Normalizer.Normalize(ctx, raw)
		if err != nil {
			if result := ErrorResultFor(err); result != nil {
				return result, nil
			}
			return nil, fmt.Errorf("normalize input: %w", err)
		}

		theme := models.ParseTheme(req.GetString("theme", ""))
		result, err := deps.Generator.Generate(ctx, in.Request(caller, theme, req.GetBool("expand_content", false)))
		if err != nil {
			if toolErr := ErrorResultFor(err); toolErr != nil {
				return toolErr, nil
			}
			return nil, fmt.Errorf("generate diagram: %w", err)
		}

		if in.Truncated {
			deps.Logger.Info("Generated diagram from truncated source",
				zap.String("user_id", caller.ID),
				zap.Int("original_chars", in.OriginalChars))
		}
		return jsonResult(result)
	})
}

func registerDiagramUsageTool(s *server.MCPServer, deps *DiagramToolDeps) {
	tool := mcp.NewTool(
		"diagram_usage",
		mcp.WithDescription("Reports how many diagrams the caller can still generate today"),
		mcp.WithReadOnlyHintAnnotation(true),
	)

	s.AddTool(tool, func(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		caller, err := auth.CallerFromContext(ctx, deps.PrivilegedRoles)
		if err != nil {
			return NewErrorResult("unauthorized", "authentication required"), nil
		}

		status, err := deps.Generator.Usage(ctx, caller)
		if err != nil {
			return nil, fmt.Errorf("read usage: %w", err)
		}
		return jsonResult(status)
	})
}

func jsonResult(v any) (*mcp.CallToolResult, error) {
	b, err := json.Marshal(v)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal result: %w", err)
	}
	return mcp.NewToolResultText(string(b)), nil
}
