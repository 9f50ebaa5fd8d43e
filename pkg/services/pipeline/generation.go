package pipeline

import (
	"context"
	"errors"
	"time"

	"go.uber.org/zap"

	"github.com/ekaya-inc/ekaya-canvas/pkg/apperrors"
	"github.com/ekaya-inc/ekaya-canvas/pkg/diagram"
	"github.com/ekaya-inc/ekaya-canvas/pkg/llm"
	"github.com/ekaya-inc/ekaya-canvas/pkg/logging"
	"github.com/ekaya-inc/ekaya-canvas/pkg/prompts"
	"github.com/ekaya-inc/ekaya-canvas/pkg/retry"
)

// GenerationStage produces the initial candidate document. It is the only
// stage whose failure ends the run; Err is then an *apperrors.GenerationError.
type GenerationStage struct {
	model     modelCaller
	validator *diagram.SchemaValidator
	retry     *retry.Config
	logger    *zap.Logger
}

// NewGenerationStage creates the structure generation stage. settings.Timeout
// bounds the whole stage, retries included.
func NewGenerationStage(client llm.LLMClient, validator *diagram.SchemaValidator, settings ModelSettings, logger *zap.Logger) *GenerationStage {
	logger = logger.Named("structure-generation")
	return &GenerationStage{
		model:     modelCaller{client: client, settings: settings, logger: logger},
		validator: validator,
		retry:     retry.ModelConfig(),
		logger:    logger,
	}
}

func (s *GenerationStage) Name() StageName { return StageGeneration }

func (s *GenerationStage) Run(ctx context.Context, in StageInput) StageOutcome {
	rc := in.Context

	system := prompts.GenerationSystemPrompt(rc.Theme, rc.ExpandContent)
	prompt := prompts.ImageCaptionInstruction()
	if rc.Image == nil {
		prompt = prompts.BuildGenerationUserPrompt(rc.SourceText)
	}

	callCtx, cancel := context.WithTimeout(ctx, s.model.settings.Timeout)
	defer cancel()

	cfg := *s.retry
	cfg.OnRetry = func(attempt int, err error, delay time.Duration) {
		s.logger.Warn("Generation call failed, retrying",
			zap.String("request_id", rc.RequestID),
			zap.Int("attempt", attempt),
			zap.Duration("delay", delay),
			zap.String("error_type", string(llm.GetErrorType(err))),
			zap.String("error", logging.SanitizeError(err)))
	}

	var content string
	err := retry.DoIfRetryable(callCtx, &cfg, func() error {
		var callErr error
		content, callErr = s.model.call(callCtx, rc, StageGeneration, system, prompt)
		return callErr
	})
	if err != nil {
		kind := apperrors.GenerationKindService
		msg := "the diagram service is unavailable"
		if errors.Is(callCtx.Err(), context.DeadlineExceeded) || llm.IsTimeout(err) {
			kind = apperrors.GenerationKindTimeout
			msg = "the diagram service did not respond in time"
		}
		return failed(string(kind), &apperrors.GenerationError{Kind: kind, Message: msg, Cause: err})
	}

	raw, err := llm.ExtractJSONArray(content)
	if err != nil {
		s.logger.Warn("Generation response has no JSON array",
			zap.String("request_id", rc.RequestID),
			previewField(content),
			zap.Error(err))
		return failed(string(apperrors.GenerationKindMalformedResponse), &apperrors.GenerationError{
			Kind:    apperrors.GenerationKindMalformedResponse,
			Message: "the model response did not contain a diagram",
			Cause:   err,
		})
	}

	elements, rejected, err := s.validator.ValidateArray(raw)
	if err != nil {
		return failed(string(apperrors.GenerationKindMalformedResponse), &apperrors.GenerationError{
			Kind:    apperrors.GenerationKindMalformedResponse,
			Message: "the model response was not an element array",
			Cause:   err,
		})
	}
	for _, r := range rejected {
		s.logger.Warn("Dropped invalid element",
			zap.String("request_id", rc.RequestID),
			zap.Int("index", r.Index),
			zap.String("reason", r.Reason))
	}
	if len(elements) == 0 {
		return failed(string(apperrors.GenerationKindMalformedResponse), &apperrors.GenerationError{
			Kind:    apperrors.GenerationKindMalformedResponse,
			Message: "the model response contained no valid elements",
		})
	}

	s.logger.Info("Generated diagram structure",
		zap.String("request_id", rc.RequestID),
		zap.Int("elements", len(elements)),
		zap.Int("rejected", len(rejected)))

	return succeeded(elements)
}
