package pipeline

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"go.uber.org/zap"

	"github.com/ekaya-inc/ekaya-canvas/pkg/diagram"
	"github.com/ekaya-inc/ekaya-canvas/pkg/llm"
	"github.com/ekaya-inc/ekaya-canvas/pkg/models"
	"github.com/ekaya-inc/ekaya-canvas/pkg/prompts"
)

// Removal is the model's justification for dropping one input element.
type Removal struct {
	Index  int    `json:"index"`
	Reason string `json:"reason"`
}

type verificationResponse struct {
	Elements json.RawMessage `json:"elements"`
	Removed  []Removal       `json:"removed"`
}

// VerificationStage prunes elements the source does not support. The
// policy depends on the run's expand flag. It may only remove elements.
type VerificationStage struct {
	model       modelCaller
	validator   *diagram.SchemaValidator
	minElements int
	logger      *zap.Logger
}

// NewVerificationStage creates the verification stage. It is skipped for
// documents with fewer than minElements elements.
func NewVerificationStage(client llm.LLMClient, validator *diagram.SchemaValidator, settings ModelSettings, minElements int, logger *zap.Logger) *VerificationStage {
	logger = logger.Named("verification")
	return &VerificationStage{
		model:       modelCaller{client: client, settings: settings, logger: logger},
		validator:   validator,
		minElements: minElements,
		logger:      logger,
	}
}

func (s *VerificationStage) Name() StageName { return StageVerification }

func (s *VerificationStage) Run(ctx context.Context, in StageInput) StageOutcome {
	if len(in.Elements) < s.minElements {
		return skipped(fmt.Sprintf("%d elements, below threshold %d", len(in.Elements), s.minElements))
	}
	rc := in.Context

	encoded, err := diagram.EncodeCandidates(in.Elements)
	if err != nil {
		return failed("encode input", err)
	}

	callCtx, cancel := context.WithTimeout(ctx, s.model.settings.Timeout)
	defer cancel()

	content, err := s.model.call(callCtx, rc, StageVerification,
		prompts.VerificationSystemPrompt(rc.ExpandContent),
		prompts.BuildVerificationPrompt(rc.Source(), encoded, rc.ExpandContent))
	if err != nil {
		return failed("model call", err)
	}

	resp, err := parseVerification(content)
	if err != nil {
		s.logger.Debug("Unusable verification response", zap.String("request_id", rc.RequestID), previewField(content))
		return failed("malformed response", err)
	}

	returned, rejected, err := s.validator.ValidateArray(resp.Elements)
	if err != nil {
		return failed("malformed response", err)
	}
	if len(rejected) > 0 {
		return failed("malformed response",
			fmt.Errorf("%w: element %d: %s", errInvalidCandidate, rejected[0].Index, rejected[0].Reason))
	}
	if len(returned) == 0 {
		return failed("candidate removed every element", errInvalidCandidate)
	}
	if len(returned) > len(in.Elements) {
		return failed("candidate added elements",
			fmt.Errorf("%w: %d elements returned for %d", errInvalidCandidate, len(returned), len(in.Elements)))
	}
	elements, err := keptSubsequence(in.Elements, returned)
	if err != nil {
		return failed("candidate introduced elements", err)
	}

	for _, r := range resp.Removed {
		fields := []zap.Field{
			zap.String("request_id", rc.RequestID),
			zap.Int("index", r.Index),
			zap.String("reason", r.Reason),
		}
		if r.Index >= 0 && r.Index < len(in.Elements) && in.Elements[r.Index].Text != "" {
			fields = append(fields, zap.String("text", in.Elements[r.Index].Text))
		}
		s.logger.Info("Verification removed element", fields...)
	}
	if removed := len(in.Elements) - len(elements); removed != len(resp.Removed) {
		s.logger.Debug("Removal list does not match element count",
			zap.String("request_id", rc.RequestID),
			zap.Int("removed", removed),
			zap.Int("justified", len(resp.Removed)))
	}

	return succeeded(elements)
}

// keptSubsequence maps each returned element onto the input, in order, by
// type and text. Among same-content input elements the one at the returned
// position wins, so dropping an unlabelled shape keeps the right neighbour.
// The result holds clones of the matched input elements: the model can drop
// elements but never add or rewrite one.
func keptSubsequence(input, returned []models.DiagramElement) ([]models.DiagramElement, error) {
	kept := make([]models.DiagramElement, 0, len(returned))
	next := 0
	for i, el := range returned {
		match := -1
		for j := next; j < len(input); j++ {
			if !sameContent(input[j], el) {
				continue
			}
			if match == -1 {
				match = j
			}
			if input[j].X == el.X && input[j].Y == el.Y {
				match = j
				break
			}
		}
		if match == -1 {
			return nil, fmt.Errorf("%w: returned element %d (%s %q) matches no remaining input element",
				errInvalidCandidate, i, el.Type, el.Text)
		}
		kept = append(kept, input[match].Clone())
		next = match + 1
	}
	return kept, nil
}

// parseVerification accepts the {elements, removed} object or a bare
// element array with no justifications.
func parseVerification(content string) (*verificationResponse, error) {
	resp, err := llm.ParseJSONResponse[verificationResponse](content)
	if err == nil && isArray(resp.Elements) {
		return &resp, nil
	}

	raw, arrErr := llm.ExtractJSONArray(content)
	if arrErr != nil {
		if err == nil {
			return nil, fmt.Errorf("%w: response has no elements array", errInvalidCandidate)
		}
		return nil, fmt.Errorf("parse verification response: %w", err)
	}
	return &verificationResponse{Elements: raw}, nil
}

func isArray(raw json.RawMessage) bool {
	trimmed := strings.TrimSpace(string(raw))
	return strings.HasPrefix(trimmed, "[")
}
