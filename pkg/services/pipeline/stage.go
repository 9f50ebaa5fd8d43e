// Package pipeline holds the network-backed stages of diagram generation.
// Each stage is a function of its input elements and an immutable run
// context; it reports success, skip or failure and never applies fallback
// itself. The orchestrator in pkg/services decides what to carry forward.
package pipeline

import (
	"context"

	"github.com/ekaya-inc/ekaya-canvas/pkg/llm"
	"github.com/ekaya-inc/ekaya-canvas/pkg/models"
	"github.com/ekaya-inc/ekaya-canvas/pkg/prompts"
)

// StageName identifies a stage in logs and model request metadata.
type StageName string

const (
	StageGeneration       StageName = "structure_generation"
	StageIconEnhancement  StageName = "icon_enhancement"
	StageVerification     StageName = "verification"
	StageLayoutRefinement StageName = "layout_refinement"
)

// Status is the tag of a StageOutcome.
type Status string

const (
	StatusOK      Status = "ok"
	StatusSkipped Status = "skipped"
	StatusFailed  Status = "failed"
)

// RunContext is the per-request state every stage reads. It is built once
// by the orchestrator and never modified.
type RunContext struct {
	RequestID     string
	Theme         models.Theme
	ExpandContent bool
	Caller        models.Caller
	SourceKind    models.SourceKind
	SourceText    string
	Image         *llm.ImageInput
}

// NewRunContext derives the run context for req.
func NewRunContext(requestID string, req *models.GenerationRequest) *RunContext {
	rc := &RunContext{
		RequestID:     requestID,
		Theme:         req.Theme,
		ExpandContent: req.ExpandContent,
		Caller:        req.Caller,
		SourceKind:    req.SourceKind,
		SourceText:    req.Text,
	}
	if req.HasImage() {
		rc.Image = &llm.ImageInput{Base64: req.ImageBase64, MimeType: req.ImageMimeType}
	}
	return rc
}

// Source returns the content later stages cross-check against.
func (rc *RunContext) Source() prompts.Source {
	return prompts.Source{Text: rc.SourceText, IsImage: rc.Image != nil}
}

// StageInput is what a stage operates on.
type StageInput struct {
	Elements []models.DiagramElement
	Context  *RunContext
}

// StageOutcome is the tagged result of one stage. Elements is set only
// when Status is StatusOK.
type StageOutcome struct {
	Elements []models.DiagramElement
	Status   Status
	Reason   string
	Err      error
}

// Stage is one network-backed pipeline step.
type Stage interface {
	Name() StageName
	Run(ctx context.Context, in StageInput) StageOutcome
}

func succeeded(elements []models.DiagramElement) StageOutcome {
	return StageOutcome{Elements: elements, Status: StatusOK}
}

func skipped(reason string) StageOutcome {
	return StageOutcome{Status: StatusSkipped, Reason: reason}
}

func failed(reason string, err error) StageOutcome {
	return StageOutcome{Status: StatusFailed, Reason: reason, Err: err}
}
