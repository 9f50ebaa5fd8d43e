package apperrors

import (
	"errors"
	"fmt"
)

var (
	ErrNotFound            = errors.New("not found")
	ErrInvalidInput        = errors.New("invalid input")
	ErrUnsupportedFileType = errors.New("unsupported file type")
	ErrUnauthenticated     = errors.New("unauthenticated")
	ErrQuotaExceeded       = errors.New("daily generation limit reached")
	ErrGenerationFailed    = errors.New("diagram generation failed")
)

// InputError describes why a request was rejected before reaching the model.
type InputError struct {
	Reason string
	Cause  error
}

func (e *InputError) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("invalid input: %s: %v", e.Reason, e.Cause)
	}
	return "invalid input: " + e.Reason
}

func (e *InputError) Unwrap() error { return e.Cause }

// Is reports ErrInvalidInput so callers can match with errors.Is.
func (e *InputError) Is(target error) bool {
	return target == ErrInvalidInput
}

// NewInputError creates an InputError.
func NewInputError(reason string, cause error) *InputError {
	return &InputError{Reason: reason, Cause: cause}
}

// QuotaExceededError is returned when a non-privileged caller has used
// every generation for the current UTC day.
type QuotaExceededError struct {
	DailyLimit int
}

func (e *QuotaExceededError) Error() string {
	return fmt.Sprintf("daily generation limit reached (%d per day)", e.DailyLimit)
}

// Is reports ErrQuotaExceeded so callers can match with errors.Is.
func (e *QuotaExceededError) Is(target error) bool {
	return target == ErrQuotaExceeded
}

// GenerationKind classifies a fatal failure of the structure generation stage.
type GenerationKind string

const (
	GenerationKindService           GenerationKind = "service"
	GenerationKindTimeout           GenerationKind = "timeout"
	GenerationKindMalformedResponse GenerationKind = "malformed_response"
)

// GenerationError is the only model-stage failure that aborts a pipeline run.
type GenerationError struct {
	Kind    GenerationKind
	Message string
	Cause   error
}

func (e *GenerationError) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("generation failed (%s): %s: %v", e.Kind, e.Message, e.Cause)
	}
	return fmt.Sprintf("generation failed (%s): %s", e.Kind, e.Message)
}

func (e *GenerationError) Unwrap() error { return e.Cause }

// Is reports ErrGenerationFailed so callers can match with errors.Is.
func (e *GenerationError) Is(target error) bool {
	return target == ErrGenerationFailed
}

// NewGenerationError creates a GenerationError.
func NewGenerationError(kind GenerationKind, message string, cause error) *GenerationError {
	return &GenerationError{Kind: kind, Message: message, Cause: cause}
}

// GenerationKindOf returns the kind of a GenerationError in err's chain,
// or an empty kind if there is none.
func GenerationKindOf(err error) GenerationKind {
	var genErr *GenerationError
	if errors.As(err, &genErr) {
		return genErr.Kind
	}
	return ""
}
