package pipeline

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/ekaya-inc/ekaya-canvas/pkg/diagram"
	"github.com/ekaya-inc/ekaya-canvas/pkg/llm"
	"github.com/ekaya-inc/ekaya-canvas/pkg/logging"
	"github.com/ekaya-inc/ekaya-canvas/pkg/models"
)

// ModelSettings are the per-stage model call parameters.
type ModelSettings struct {
	Temperature float64
	MaxTokens   int
	Timeout     time.Duration
}

// errInvalidCandidate marks a model response that parsed but broke a
// stage's structural rule.
var errInvalidCandidate = errors.New("invalid candidate")

// modelCaller is the model access shared by all stages.
type modelCaller struct {
	client   llm.LLMClient
	settings ModelSettings
	logger   *zap.Logger
}

// call sends one request, attaching the source image when the run has one.
// The caller bounds ctx.
func (m *modelCaller) call(ctx context.Context, rc *RunContext, stage StageName, system, prompt string) (string, error) {
	ctx = llm.WithStage(ctx, rc.RequestID, string(stage))

	var (
		res *llm.GenerateResponseResult
		err error
	)
	if rc.Image != nil {
		res, err = m.client.GenerateWithImage(ctx, prompt, rc.Image, system, m.settings.Temperature, m.settings.MaxTokens)
	} else {
		res, err = m.client.GenerateResponse(ctx, prompt, system, m.settings.Temperature, m.settings.MaxTokens)
	}
	if err != nil {
		return "", err
	}
	if res.WasTruncated() {
		m.logger.Warn("Model response hit max_tokens",
			zap.String("request_id", rc.RequestID),
			zap.String("stage", string(stage)),
			zap.Int("max_tokens", m.settings.MaxTokens))
	}
	return res.Content, nil
}

// decodeStrict parses a later-stage response. The input to these stages was
// already valid, so any rejected element invalidates the whole candidate.
func decodeStrict(validator *diagram.SchemaValidator, content string) ([]models.DiagramElement, error) {
	raw, err := llm.ExtractJSONArray(content)
	if err != nil {
		return nil, fmt.Errorf("extract array: %w", err)
	}
	elements, rejected, err := validator.ValidateArray(raw)
	if err != nil {
		return nil, err
	}
	if len(rejected) > 0 {
		return nil, fmt.Errorf("%w: element %d: %s", errInvalidCandidate, rejected[0].Index, rejected[0].Reason)
	}
	return elements, nil
}

func previewField(content string) zap.Field {
	return zap.String("response_preview", logging.SanitizeModelOutput(content))
}
