package pipeline

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"github.com/ekaya-inc/ekaya-canvas/pkg/diagram"
	"github.com/ekaya-inc/ekaya-canvas/pkg/llm"
	"github.com/ekaya-inc/ekaya-canvas/pkg/models"
	"github.com/ekaya-inc/ekaya-canvas/pkg/prompts"
)

// LayoutRefinementStage asks the model to fix overlaps and spacing. The
// element count is frozen: a candidate of any other length is discarded
// whole. Only geometry is taken from the candidate.
type LayoutRefinementStage struct {
	model       modelCaller
	validator   *diagram.SchemaValidator
	minElements int
	logger      *zap.Logger
}

// NewLayoutRefinementStage creates the layout refinement stage. It is
// skipped for documents with fewer than minElements elements.
func NewLayoutRefinementStage(client llm.LLMClient, validator *diagram.SchemaValidator, settings ModelSettings, minElements int, logger *zap.Logger) *LayoutRefinementStage {
	logger = logger.Named("layout-refinement")
	return &LayoutRefinementStage{
		model:       modelCaller{client: client, settings: settings, logger: logger},
		validator:   validator,
		minElements: minElements,
		logger:      logger,
	}
}

func (s *LayoutRefinementStage) Name() StageName { return StageLayoutRefinement }

func (s *LayoutRefinementStage) Run(ctx context.Context, in StageInput) StageOutcome {
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

	content, err := s.model.call(callCtx, rc, StageLayoutRefinement,
		prompts.RefinementSystemPrompt(rc.Theme),
		prompts.BuildRefinementPrompt(encoded, len(in.Elements)))
	if err != nil {
		return failed("model call", err)
	}

	candidate, err := decodeStrict(s.validator, content)
	if err != nil {
		s.logger.Debug("Unusable refinement response", zap.String("request_id", rc.RequestID), previewField(content))
		return failed("malformed response", err)
	}
	if len(candidate) != len(in.Elements) {
		return failed("element count changed",
			fmt.Errorf("%w: %d elements returned for %d", errInvalidCandidate, len(candidate), len(in.Elements)))
	}

	out := make([]models.DiagramElement, len(in.Elements))
	for i, original := range in.Elements {
		if !sameContent(original, candidate[i]) {
			return failed("candidate altered elements",
				fmt.Errorf("%w: element %d changed from %s %q to %s %q", errInvalidCandidate,
					i, original.Type, original.Text, candidate[i].Type, candidate[i].Text))
		}
		out[i] = withGeometry(original, candidate[i])
	}

	return succeeded(out)
}

// withGeometry returns a copy of original placed where refined is.
func withGeometry(original, refined models.DiagramElement) models.DiagramElement {
	out := original.Clone()
	out.X = refined.X
	out.Y = refined.Y
	out.Width = refined.Width
	out.Height = refined.Height
	if original.Type.IsLinear() && len(refined.Points) >= 2 {
		out.Points = append([]models.Point(nil), refined.Points...)
	}
	return out
}
