package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"mime"
	"net/http"
	"strings"

	"go.uber.org/zap"

	"github.com/ekaya-inc/ekaya-canvas/pkg/apperrors"
	"github.com/ekaya-inc/ekaya-canvas/pkg/auth"
	"github.com/ekaya-inc/ekaya-canvas/pkg/jsonutil"
	"github.com/ekaya-inc/ekaya-canvas/pkg/llm"
	"github.com/ekaya-inc/ekaya-canvas/pkg/logging"
	"github.com/ekaya-inc/ekaya-canvas/pkg/models"
	"github.com/ekaya-inc/ekaya-canvas/pkg/services"
)

// multipartMemory is how much of a multipart body is held in memory before
// spilling to temp files.
const multipartMemory = 8 << 20

// Normalizer classifies raw request payloads.
type Normalizer interface {
	Normalize(ctx context.Context, in services.RawInput) (*services.NormalizedInput, error)
}

// generateRequest is the JSON body of POST /api/diagrams/generate.
type generateRequest struct {
	Text          string          `json:"text"`
	Theme         string          `json:"theme"`
	ExpandContent json.RawMessage `json:"expandContent"`
}

// generateForm is a parsed request regardless of its content type.
type generateForm struct {
	raw    services.RawInput
	theme  models.Theme
	expand bool
}

// DiagramHandler serves diagram generation and quota reporting.
type DiagramHandler struct {
	normalizer      Normalizer
	generator       services.DiagramGenerator
	privilegedRoles []string
	maxUploadBytes  int64
	logger          *zap.Logger
}

// NewDiagramHandler creates a DiagramHandler.
func NewDiagramHandler(
	normalizer Normalizer,
	generator services.DiagramGenerator,
	privilegedRoles []string,
	maxUploadBytes int64,
	logger *zap.Logger,
) *DiagramHandler {
	return &DiagramHandler{
		normalizer:      normalizer,
		generator:       generator,
		privilegedRoles: privilegedRoles,
		maxUploadBytes:  maxUploadBytes,
		logger:          logger,
	}
}

// RegisterRoutes registers the diagram routes behind authentication.
func (h *DiagramHandler) RegisterRoutes(mux *http.ServeMux, authMiddleware *auth.Middleware) {
	mux.HandleFunc("POST /api/diagrams/generate", authMiddleware.RequireAuth(h.Generate))
	mux.HandleFunc("GET /api/diagrams/usage", authMiddleware.RequireAuth(h.Usage))
}

// Generate handles POST /api/diagrams/generate.
func (h *DiagramHandler) Generate(w http.ResponseWriter, r *http.Request) {
	caller, err := auth.CallerFromContext(r.Context(), h.privilegedRoles)
	if err != nil {
		h.writeError(w, r, apperrors.ErrUnauthenticated)
		return
	}

	r.Body = http.MaxBytesReader(w, r.Body, h.maxUploadBytes)
	form, err := h.parseGenerateRequest(r)
	if err != nil {
		h.writeError(w, r, err)
		return
	}

	in, err := h.normalizer.Normalize(r.Context(), form.raw)
	if err != nil {
		h.writeError(w, r, err)
		return
	}

	result, err := h.generator.Generate(r.Context(), in.Request(caller, form.theme, form.expand))
	if err != nil {
		h.writeError(w, r, err)
		return
	}

	if err := WriteJSON(w, http.StatusOK, result); err != nil {
		h.logger.Error("Failed to encode diagram response", zap.Error(err))
	}
}

// Usage handles GET /api/diagrams/usage.
func (h *DiagramHandler) Usage(w http.ResponseWriter, r *http.Request) {
	caller, err := auth.CallerFromContext(r.Context(), h.privilegedRoles)
	if err != nil {
		h.writeError(w, r, apperrors.ErrUnauthenticated)
		return
	}

	status, err := h.generator.Usage(r.Context(), caller)
	if err != nil {
		h.writeError(w, r, err)
		return
	}

	if err := WriteJSON(w, http.StatusOK, status); err != nil {
		h.logger.Error("Failed to encode usage response", zap.Error(err))
	}
}

func (h *DiagramHandler) parseGenerateRequest(r *http.Request) (*generateForm, error) {
	mediaType, _, err := mime.ParseMediaType(r.Header.Get("Content-Type"))
	if err != nil {
		mediaType = "application/json"
	}

	switch mediaType {
	case "multipart/form-data":
		return parseMultipart(r)
	case "application/x-www-form-urlencoded":
		if err := r.ParseForm(); err != nil {
			return nil, bodyError(err)
		}
		return formFields(r.PostFormValue("text"), r.PostFormValue("theme"), r.PostFormValue("expandContent"))
	default:
		var body generateRequest
		if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
			if errors.Is(err, io.EOF) {
				return nil, apperrors.NewInputError("no text or file provided", nil)
			}
			return nil, bodyError(err)
		}
		expand, err := jsonutil.FlexibleBool(body.ExpandContent)
		if err != nil {
			return nil, apperrors.NewInputError("expandContent must be a boolean", err)
		}
		return &generateForm{
			raw:    services.RawInput{Text: body.Text},
			theme:  models.ParseTheme(body.Theme),
			expand: expand,
		}, nil
	}
}

func parseMultipart(r *http.Request) (*generateForm, error) {
	if err := r.ParseMultipartForm(multipartMemory); err != nil {
		return nil, bodyError(err)
	}
	form, err := formFields(r.FormValue("text"), r.FormValue("theme"), r.FormValue("expandContent"))
	if err != nil {
		return nil, err
	}

	file, header, err := r.FormFile("file")
	switch {
	case errors.Is(err, http.ErrMissingFile):
		return form, nil
	case err != nil:
		return nil, bodyError(err)
	}
	defer file.Close()

	data, err := io.ReadAll(file)
	if err != nil {
		return nil, bodyError(err)
	}
	form.raw.File = data
	form.raw.FileName = header.Filename
	form.raw.DeclaredMimeType = header.Header.Get("Content-Type")
	return form, nil
}

func formFields(text, theme, expandContent string) (*generateForm, error) {
	expand, err := jsonutil.ParseBoolString(expandContent)
	if err != nil {
		return nil, apperrors.NewInputError("expandContent must be a boolean", err)
	}
	return &generateForm{
		raw:    services.RawInput{Text: text},
		theme:  models.ParseTheme(theme),
		expand: expand,
	}, nil
}

func bodyError(err error) error {
	var tooLarge *http.MaxBytesError
	if errors.As(err, &tooLarge) {
		return apperrors.NewInputError(fmt.Sprintf("request body exceeds %d bytes", tooLarge.Limit), nil)
	}
	return apperrors.NewInputError("could not read request body", err)
}

// writeError maps pipeline errors onto the HTTP contract.
func (h *DiagramHandler) writeError(w http.ResponseWriter, r *http.Request, err error) {
	status, body := errorBody(err)

	fields := []zap.Field{
		zap.String("path", r.URL.Path),
		zap.Int("status", status),
		zap.String("error", logging.SanitizeError(err)),
	}
	if id := llm.RequestIDFromContext(r.Context()); id != "" {
		fields = append(fields, zap.String("request_id", id))
	}
	if status >= http.StatusInternalServerError {
		h.logger.Error("Diagram request failed", fields...)
	} else {
		h.logger.Debug("Diagram request rejected", fields...)
	}

	if encErr := WriteJSON(w, status, body); encErr != nil {
		h.logger.Error("Failed to encode error response", zap.Error(encErr))
	}
}

func errorBody(err error) (int, ErrorBody) {
	var quotaErr *apperrors.QuotaExceededError
	var inputErr *apperrors.InputError

	switch {
	case errors.As(err, &quotaErr):
		zero, limit := 0, quotaErr.DailyLimit
		return http.StatusForbidden, ErrorBody{
			Error:         fmt.Sprintf("Daily limit of %d diagrams reached. Try again tomorrow.", limit),
			Code:          "quota_exceeded",
			RemainingUses: &zero,
			DailyLimit:    &limit,
		}
	case errors.Is(err, apperrors.ErrUnauthenticated):
		return http.StatusUnauthorized, ErrorBody{Error: "Authentication required", Code: "unauthorized"}
	case errors.As(err, &inputErr):
		return http.StatusBadRequest, ErrorBody{Error: capitalize(inputErr.Reason), Code: "invalid_input"}
	case errors.Is(err, apperrors.ErrUnsupportedFileType):
		return http.StatusBadRequest, ErrorBody{
			Error: "Unsupported file type. Upload a PDF, an image (PNG, JPEG, GIF, WebP) or plain text.",
			Code:  "unsupported_file_type",
		}
	case errors.Is(err, apperrors.ErrGenerationFailed):
		switch apperrors.GenerationKindOf(err) {
		case apperrors.GenerationKindTimeout:
			return http.StatusInternalServerError, ErrorBody{Error: "Diagram generation timed out. Please try again.", Code: "generation_timeout"}
		case apperrors.GenerationKindMalformedResponse:
			return http.StatusInternalServerError, ErrorBody{Error: "The model did not return a usable diagram. Please try again.", Code: "malformed_response"}
		default:
			return http.StatusInternalServerError, ErrorBody{Error: "Diagram generation failed. Please try again.", Code: "generation_failed"}
		}
	default:
		return http.StatusInternalServerError, ErrorBody{Error: "Internal server error", Code: "internal_error"}
	}
}

func capitalize(s string) string {
	if s == "" {
		return s
	}
	return strings.ToUpper(s[:1]) + s[1:]
}
