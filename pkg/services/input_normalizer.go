package services

import (
	"bytes"
	"context"
	"encoding/base64"
	"fmt"
	"io"
	"net/http"
	"strings"
	"unicode/utf8"

	pdf "github.com/ledongthuc/pdf"
	"go.uber.org/zap"

	"github.com/ekaya-inc/ekaya-canvas/pkg/apperrors"
	"github.com/ekaya-inc/ekaya-canvas/pkg/config"
	"github.com/ekaya-inc/ekaya-canvas/pkg/models"
)

// RawInput is an unvalidated generation payload: free text, an uploaded
// file, or both (the file wins).
type RawInput struct {
	Text             string
	File             []byte
	FileName         string
	DeclaredMimeType string
}

// NormalizedInput is RawInput classified and bounded.
type NormalizedInput struct {
	SourceKind    models.SourceKind
	Text          string
	ImageBase64   string
	ImageMimeType string
	Truncated     bool
	OriginalChars int
}

// Request builds the immutable generation request for this input.
func (n *NormalizedInput) Request(caller models.Caller, theme models.Theme, expand bool) *models.GenerationRequest {
	return &models.GenerationRequest{
		SourceKind:    n.SourceKind,
		Text:          n.Text,
		ImageBase64:   n.ImageBase64,
		ImageMimeType: n.ImageMimeType,
		Theme:         theme,
		ExpandContent: expand,
		Caller:        caller,
	}
}

var pdfMagic = []byte("%PDF-")

var supportedImageTypes = map[string]bool{
	"image/png":  true,
	"image/jpeg": true,
	"image/gif":  true,
	"image/webp": true,
}

// InputNormalizer classifies and bounds raw payloads. It never calls the network.
type InputNormalizer struct {
	limits config.LimitsConfig
	logger *zap.Logger
}

// NewInputNormalizer creates an InputNormalizer.
func NewInputNormalizer(limits config.LimitsConfig, logger *zap.Logger) *InputNormalizer {
	return &InputNormalizer{
		limits: limits,
		logger: logger.Named("input-normalizer"),
	}
}

// Normalize classifies in by its bytes rather than its declared type.
// PDFs become extracted text, images pass through base64-encoded, and text
// is truncated to the character ceiling.
func (n *InputNormalizer) Normalize(_ context.Context, in RawInput) (*NormalizedInput, error) {
	if len(in.File) > 0 {
		return n.normalizeFile(in)
	}
	if strings.TrimSpace(in.Text) == "" {
		return nil, apperrors.NewInputError("no text or file provided", nil)
	}
	return n.normalizeText(models.SourceText, in.Text)
}

func (n *InputNormalizer) normalizeFile(in RawInput) (*NormalizedInput, error) {
	if bytes.HasPrefix(in.File, pdfMagic) {
		text, err := extractPDFText(in.File)
		if err != nil {
			n.logger.Info("PDF text extraction failed",
				zap.String("file_name", in.FileName),
				zap.Int("bytes", len(in.File)),
				zap.Error(err))
			return nil, apperrors.NewInputError("could not read PDF", err)
		}
		if strings.TrimSpace(text) == "" {
			return nil, apperrors.NewInputError("PDF contains no extractable text", nil)
		}
		return n.normalizeText(models.SourcePDFExtractedText, text)
	}

	sniffed := http.DetectContentType(in.File)
	if mime, _, _ := strings.Cut(sniffed, ";"); supportedImageTypes[mime] {
		return n.normalizeImage(in, mime)
	}

	if strings.HasPrefix(sniffed, "text/plain") && utf8.Valid(in.File) {
		if strings.TrimSpace(string(in.File)) == "" {
			return nil, apperrors.NewInputError("file is empty", nil)
		}
		return n.normalizeText(models.SourceText, string(in.File))
	}

	return nil, fmt.Errorf("%w: %s (declared %q)", apperrors.ErrUnsupportedFileType, sniffed, in.DeclaredMimeType)
}

func (n *InputNormalizer) normalizeImage(in RawInput, mime string) (*NormalizedInput, error) {
	encoded := base64.StdEncoding.EncodeToString(in.File)
	if len(encoded) > n.limits.MaxImageBytes {
		return nil, apperrors.NewInputError(
			fmt.Sprintf("image is too large (%d bytes encoded, limit %d)", len(encoded), n.limits.MaxImageBytes), nil)
	}
	if in.DeclaredMimeType != "" && in.DeclaredMimeType != mime {
		n.logger.Debug("Declared image type differs from content",
			zap.String("declared", in.DeclaredMimeType),
			zap.String("sniffed", mime))
	}
	return &NormalizedInput{
		SourceKind:    models.SourceImage,
		ImageBase64:   encoded,
		ImageMimeType: mime,
	}, nil
}

func (n *InputNormalizer) normalizeText(kind models.SourceKind, text string) (*NormalizedInput, error) {
	text = strings.TrimSpace(strings.ReplaceAll(text, "\r\n", "\n"))
	out := &NormalizedInput{SourceKind: kind, Text: text, OriginalChars: utf8.RuneCountInString(text)}

	if out.OriginalChars > n.limits.MaxTextChars {
		out.Text = truncateRunes(text, n.limits.MaxTextChars)
		out.Truncated = true
		n.logger.Info("Truncated source text",
			zap.String("source_kind", string(kind)),
			zap.Int("original_chars", out.OriginalChars),
			zap.Int("max_chars", n.limits.MaxTextChars))
	}
	return out, nil
}

func truncateRunes(s string, limit int) string {
	count := 0
	for i := range s {
		if count == limit {
			return s[:i]
		}
		count++
	}
	return s
}

// extractPDFText reads the plain text of every page. The PDF library panics
// on some malformed documents; that is reported as an error.
func extractPDFText(data []byte) (text string, err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("malformed pdf: %v", r)
		}
	}()

	r, err := pdf.NewReader(bytes.NewReader(data), int64(len(data)))
	if err != nil {
		return "", fmt.Errorf("pdf reader: %w", err)
	}
	plain, err := r.GetPlainText()
	if err != nil {
		return "", fmt.Errorf("pdf plaintext: %w", err)
	}
	b, err := io.ReadAll(plain)
	if err != nil {
		return "", fmt.Errorf("pdf read: %w", err)
	}
	return string(b), nil
}
