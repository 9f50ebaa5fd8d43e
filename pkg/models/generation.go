package models

import (
	"time"

	"github.com/google/uuid"
)

// SourceKind identifies what kind of content a generation request carries.
type SourceKind string

const (
	SourceText             SourceKind = "text"
	SourcePDFExtractedText SourceKind = "pdf-extracted-text"
	SourceImage            SourceKind = "image"
)

// Theme selects the palette the model is instructed to use.
type Theme string

const (
	ThemeLight Theme = "light"
	ThemeDark  Theme = "dark"
)

// ParseTheme maps a request value to a Theme, defaulting to light.
func ParseTheme(value string) Theme {
	if Theme(value) == ThemeDark {
		return ThemeDark
	}
	return ThemeLight
}

// Caller identifies who is generating and whether the daily quota applies.
type Caller struct {
	ID           string `json:"id"`
	IsPrivileged bool   `json:"is_privileged"`
}

// GenerationRequest is the immutable input to one pipeline run.
type GenerationRequest struct {
	SourceKind    SourceKind
	Text          string // normalized text for text and pdf sources
	ImageBase64   string // base64 payload for image sources
	ImageMimeType string
	Theme         Theme
	ExpandContent bool
	Caller        Caller
}

// HasImage reports whether the request carries an image attachment.
func (r *GenerationRequest) HasImage() bool {
	return r.SourceKind == SourceImage && r.ImageBase64 != ""
}

// UsageRecord is one successful generation by a non-privileged caller.
// Rows are append-only.
type UsageRecord struct {
	ID            uuid.UUID  `json:"id"`
	UserID        string     `json:"user_id"`
	CreatedAt     time.Time  `json:"created_at"`
	// ReservationID is the quota reservation this use settled, if any.
	ReservationID *uuid.UUID `json:"reservation_id,omitempty"`
}

// PipelineResult is the terminal artifact of a generation run.
type PipelineResult struct {
	Elements      []DiagramElement `json:"elements"`
	RemainingUses *int             `json:"remainingUses,omitempty"`
	DailyLimit    *int             `json:"dailyLimit,omitempty"`
}

// QuotaStatus reports a caller's remaining allowance without running the pipeline.
// RemainingUses and DailyLimit are nil for privileged callers (unlimited).
type QuotaStatus struct {
	RemainingUses *int `json:"remainingUses"`
	DailyLimit    *int `json:"dailyLimit"`
	IsPro         bool `json:"isPro"`
}
