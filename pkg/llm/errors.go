package llm

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"regexp"
	"strconv"
	"strings"

	"github.com/sashabaranov/go-openai"
)

// ErrorType classifies what went wrong talking to the model endpoint.
type ErrorType string

const (
	ErrorTypeNone        ErrorType = ""
	ErrorTypeEndpoint    ErrorType = "endpoint"
	ErrorTypeAuth        ErrorType = "auth"
	ErrorTypeModel       ErrorType = "model"
	ErrorTypeTimeout     ErrorType = "timeout"
	ErrorTypeRateLimited ErrorType = "rate_limited"
	ErrorTypeUnknown     ErrorType = "unknown"
)

// Error represents a structured LLM error with classification.
type Error struct {
	Type       ErrorType // Classification of the error
	Message    string    // Human-readable message
	Retryable  bool      // Whether the operation can be retried
	Cause      error     // Underlying error
	StatusCode int       // HTTP status code if applicable
	Model      string    // Model name if known
	Endpoint   string    // Endpoint URL if known
}

// Error implements the error interface.
func (e *Error) Error() string {
	var parts []string
	parts = append(parts, string(e.Type))

	if e.StatusCode > 0 {
		parts = append(parts, fmt.Sprintf("HTTP %d", e.StatusCode))
	}
	if e.Model != "" {
		parts = append(parts, fmt.Sprintf("model=%s", e.Model))
	}
	if host := endpointHost(e.Endpoint); host != "" {
		parts = append(parts, fmt.Sprintf("endpoint=%s", host))
	}

	parts = append(parts, e.Message)

	if e.Cause != nil {
		return fmt.Sprintf("%s: %v", strings.Join(parts, " "), e.Cause)
	}
	return strings.Join(parts, " ")
}

// Unwrap returns the underlying cause for errors.Is/As.
func (e *Error) Unwrap() error {
	return e.Cause
}

// IsRetryable implements the retry.RetryableError interface.
// This allows the retry package to check retryability without importing llm.
func (e *Error) IsRetryable() bool {
	return e.Retryable
}

// endpointHost reduces an endpoint URL to its host so paths and query
// strings (which sometimes carry keys) are never logged.
func endpointHost(endpoint string) string {
	if endpoint == "" {
		return ""
	}
	u, err := url.Parse(endpoint)
	if err != nil || u.Host == "" {
		return ""
	}
	return u.Host
}

// NewError creates a new structured LLM error.
func NewError(errType ErrorType, message string, retryable bool, cause error) *Error {
	return &Error{
		Type:      errType,
		Message:   message,
		Retryable: retryable,
		Cause:     cause,
	}
}

// NewErrorWithContext creates a new structured LLM error with additional context.
func NewErrorWithContext(errType ErrorType, message string, retryable bool, cause error, model, endpoint string, statusCode int) *Error {
	return &Error{
		Type:       errType,
		Message:    message,
		Retryable:  retryable,
		Cause:      cause,
		Model:      model,
		Endpoint:   endpoint,
		StatusCode: statusCode,
	}
}

// ClassifyError categorizes an error and returns a structured Error.
// This consolidates error classification logic for consistent handling.
func ClassifyError(err error) *Error {
	if err == nil {
		return nil
	}

	// Check if already an *Error
	var llmErr *Error
	if errors.As(err, &llmErr) {
		return llmErr
	}

	if errors.Is(err, context.Canceled) {
		return NewError(ErrorTypeTimeout, "request cancelled", false, err)
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return NewError(ErrorTypeTimeout, "request timeout", true, err)
	}

	// Prefer the structured status code from go-openai when available
	statusCode := 0
	var apiErr *openai.APIError
	var reqErr *openai.RequestError
	switch {
	case errors.As(err, &apiErr):
		statusCode = apiErr.HTTPStatusCode
	case errors.As(err, &reqErr):
		statusCode = reqErr.HTTPStatusCode
	}

	errStr := err.Error()
	lower := strings.ToLower(errStr)

	if statusCode == 0 {
		statusCode = extractStatusCode(errStr)
	}

	newErr := func(errType ErrorType, message string, retryable bool) *Error {
		e := NewError(errType, message, retryable, err)
		e.StatusCode = statusCode
		return e
	}

	switch {
	// Authentication errors (not retryable)
	case statusCode == 401 || strings.Contains(lower, "unauthorized") ||
		strings.Contains(lower, "invalid api key") || strings.Contains(lower, "incorrect api key"):
		return newErr(ErrorTypeAuth, "authentication failed", false)

	// Model not found (not retryable without config change)
	case strings.Contains(lower, "model") && (strings.Contains(lower, "not found") ||
		strings.Contains(lower, "does not exist")):
		return newErr(ErrorTypeModel, "model not found", false)

	// Endpoint not found (not retryable without config change)
	case statusCode == 404:
		return newErr(ErrorTypeEndpoint, "endpoint not found", false)

	// Connection errors (may be retryable)
	case strings.Contains(lower, "connection refused") || strings.Contains(lower, "no such host"):
		return newErr(ErrorTypeEndpoint, "connection failed", true)

	// A cancelled caller is gone; retrying helps nobody
	case strings.Contains(lower, "context canceled"):
		return newErr(ErrorTypeTimeout, "request cancelled", false)

	// Timeout and deadline exceeded (retryable)
	case strings.Contains(lower, "timeout") || strings.Contains(lower, "deadline exceeded"):
		return newErr(ErrorTypeTimeout, "request timeout", true)

	// Rate limiting (retryable after backoff)
	case statusCode == 429 || strings.Contains(lower, "rate limit") || strings.Contains(lower, "too many requests"):
		return newErr(ErrorTypeRateLimited, "rate limited", true)

	// 5xx server errors (retryable)
	case statusCode >= 500 && statusCode <= 504:
		return newErr(ErrorTypeEndpoint, "server error", true)
	}

	// Unknown error
	return newErr(ErrorTypeUnknown, "llm error", false)
}

// statusCodePattern only accepts a code that follows an HTTP-ish marker so
// that "processed 503 records" or a port number is not mistaken for one.
var statusCodePattern = regexp.MustCompile(`(?i)\b(?:http|status(?: code)?|code)\s*:?\s*([1-5]\d{2})\b`)

func extractStatusCode(errStr string) int {
	m := statusCodePattern.FindStringSubmatch(errStr)
	if len(m) < 2 {
		return 0
	}
	code, err := strconv.Atoi(m[1])
	if err != nil {
		return 0
	}
	return code
}

// GetErrorType extracts the ErrorType from an error.
func GetErrorType(err error) ErrorType {
	var llmErr *Error
	if errors.As(err, &llmErr) {
		return llmErr.Type
	}
	return ErrorTypeUnknown
}

// IsTimeout reports whether err is a timeout or deadline failure.
func IsTimeout(err error) bool {
	if errors.Is(err, context.DeadlineExceeded) {
		return true
	}
	return GetErrorType(err) == ErrorTypeTimeout
}
