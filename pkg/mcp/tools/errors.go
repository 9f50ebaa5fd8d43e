package tools

import (
	"encoding/json"
	"errors"
	"fmt"

	"github.com/mark3labs/mcp-go/mcp"

	"github.com/ekaya-inc/ekaya-canvas/pkg/apperrors"
)

// ErrorResponse represents a structured error in tool results. Errors the
// client can act on are returned as tool results so the model sees them.
type ErrorResponse struct {
	Error   bool   `json:"error"`
	Code    string `json:"code"`
	Message string `json:"message"`
	Details any    `json:"details,omitempty"`
}

// NewErrorResult creates a tool result containing a structured error.
// Use this for recoverable/actionable errors (bad arguments, quota
// exhaustion). System failures still return Go errors.
func NewErrorResult(code, message string) *mcp.CallToolResult {
	return NewErrorResultWithDetails(code, message, nil)
}

// NewErrorResultWithDetails creates an error result with additional context.
func NewErrorResultWithDetails(code, message string, details any) *mcp.CallToolResult {
	resp := ErrorResponse{
		Error:   true,
		Code:    code,
		Message: message,
		Details: details,
	}
	jsonBytes, _ := json.Marshal(resp)
	result := mcp.NewToolResultText(string(jsonBytes))
	result.IsError = true
	return result
}

// ErrorResultFor converts a pipeline error into a tool error result. It
// returns nil for errors that are not part of the diagram error contract.
func ErrorResultFor(err error) *mcp.CallToolResult {
	var quotaErr *apperrors.QuotaExceededError
	var inputErr *apperrors.InputError

	switch {
	case errors.As(err, &quotaErr):
		return NewErrorResultWithDetails("quota_exceeded",
			fmt.Sprintf("daily limit of %d diagrams reached; try again after midnight UTC", quotaErr.DailyLimit),
			map[string]int{"remainingUses": 0, "dailyLimit": quotaErr.DailyLimit})
	case errors.Is(err, apperrors.ErrUnauthenticated):
		return NewErrorResult("unauthorized", "authentication required")
	case errors.As(err, &inputErr):
		return NewErrorResult("invalid_input", inputErr.Reason)
	case errors.Is(err, apperrors.ErrUnsupportedFileType):
		return NewErrorResult("unsupported_file_type", "upload a PDF, an image (PNG, JPEG, GIF, WebP) or plain text")
	case errors.Is(err, apperrors.ErrGenerationFailed):
		kind := apperrors.GenerationKindOf(err)
		if kind == "" {
			kind = apperrors.GenerationKindService
		}
		return NewErrorResultWithDetails("generation_failed", "diagram generation failed; retrying may succeed",
			map[string]string{"kind": string(kind)})
	}
	return nil
}
