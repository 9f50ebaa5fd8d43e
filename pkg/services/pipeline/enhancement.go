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

// IconEnhancementStage asks the model to add small icon shapes inside the
// existing large shapes. Existing elements are never changed: the output is
// the input followed by the model's additions.
type IconEnhancementStage struct {
	model        modelCaller
	validator    *diagram.SchemaValidator
	minElements  int
	maxAdditions int
	logger       *zap.Logger
}

// NewIconEnhancementStage creates the icon enhancement stage. It is skipped
// for documents with fewer than minElements elements.
func NewIconEnhancementStage(client llm.LLMClient, validator *diagram.SchemaValidator, settings ModelSettings, minElements, maxAdditions int, logger *zap.Logger) *IconEnhancementStage {
	logger = logger.Named("icon-enhancement")
	return &IconEnhancementStage{
		model:        modelCaller{client: client, settings: settings, logger: logger},
		validator:    validator,
		minElements:  minElements,
		maxAdditions: maxAdditions,
		logger:       logger,
	}
}

func (s *IconEnhancementStage) Name() StageName { return StageIconEnhancement }

func (s *IconEnhancementStage) Run(ctx context.Context, in StageInput) StageOutcome {
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

	content, err := s.model.call(callCtx, rc, StageIconEnhancement,
		prompts.EnhancementSystemPrompt(rc.Theme, s.maxAdditions),
		prompts.BuildEnhancementPrompt(rc.Source(), encoded, s.maxAdditions))
	if err != nil {
		return failed("model call", err)
	}

	candidate, err := decodeStrict(s.validator, content)
	if err != nil {
		s.logger.Debug("Unusable enhancement response", zap.String("request_id", rc.RequestID), previewField(content))
		return failed("malformed response", err)
	}

	switch {
	case len(candidate) < len(in.Elements):
		return failed("candidate removed elements",
			fmt.Errorf("%w: %d elements returned for %d", errInvalidCandidate, len(candidate), len(in.Elements)))
	case len(candidate) > len(in.Elements)+s.maxAdditions:
		return failed("too many additions",
			fmt.Errorf("%w: %d added, limit %d", errInvalidCandidate, len(candidate)-len(in.Elements), s.maxAdditions))
	}
	for i, original := range in.Elements {
		if !sameContent(original, candidate[i]) {
			return failed("candidate altered existing elements",
				fmt.Errorf("%w: element %d changed from %s %q to %s %q", errInvalidCandidate,
					i, original.Type, original.Text, candidate[i].Type, candidate[i].Text))
		}
	}

	additions := candidate[len(in.Elements):]
	out := make([]models.DiagramElement, 0, len(candidate))
	out = append(out, models.CloneElements(in.Elements)...)
	out = append(out, additions...)

	s.logger.Info("Added icon elements",
		zap.String("request_id", rc.RequestID),
		zap.Int("added", len(additions)))

	return succeeded(out)
}

// sameContent reports whether b is still the element a: same kind and label.
func sameContent(a, b models.DiagramElement) bool {
	return a.Type == b.Type && a.Text == b.Text
}
