package services

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/ekaya-inc/ekaya-canvas/pkg/apperrors"
	"github.com/ekaya-inc/ekaya-canvas/pkg/diagram"
	"github.com/ekaya-inc/ekaya-canvas/pkg/llm"
	"github.com/ekaya-inc/ekaya-canvas/pkg/logging"
	"github.com/ekaya-inc/ekaya-canvas/pkg/models"
	"github.com/ekaya-inc/ekaya-canvas/pkg/services/pipeline"
)

// DiagramGenerator runs the generation pipeline for one request.
type DiagramGenerator interface {
	Generate(ctx context.Context, req *models.GenerationRequest) (*models.PipelineResult, error)
	Usage(ctx context.Context, caller models.Caller) (*models.QuotaStatus, error)
}

// DiagramService orchestrates the pipeline: quota gate, the mandatory
// generation stage, the best-effort stages, then the pure passes. Fallback
// for best-effort stages is decided here, not in the stages.
type DiagramService struct {
	quota       *QuotaService
	generation  pipeline.Stage
	bestEffort  []pipeline.Stage
	newEnricher func() *diagram.Enricher
	warnRatio   float64
	logger      *zap.Logger
}

// NewDiagramService creates a DiagramService. bestEffort stages run in the
// given order after generation.
func NewDiagramService(
	quota *QuotaService,
	generation pipeline.Stage,
	bestEffort []pipeline.Stage,
	warnRatio float64,
	logger *zap.Logger,
) *DiagramService {
	return &DiagramService{
		quota:       quota,
		generation:  generation,
		bestEffort:  bestEffort,
		newEnricher: diagram.NewEnricher,
		warnRatio:   warnRatio,
		logger:      logger.Named("diagram-pipeline"),
	}
}

var _ DiagramGenerator = (*DiagramService)(nil)

// Usage reports the caller's quota.
func (s *DiagramService) Usage(ctx context.Context, caller models.Caller) (*models.QuotaStatus, error) {
	return s.quota.Status(ctx, caller)
}

// Generate runs stages 2 to 9 on an already normalized request. Usage is
// recorded only when a document is returned.
func (s *DiagramService) Generate(ctx context.Context, req *models.GenerationRequest) (*models.PipelineResult, error) {
	requestID := llm.RequestIDFromContext(ctx)
	if requestID == "" {
		requestID = uuid.NewString()
	}
	logger := s.logger.With(zap.String("request_id", requestID), zap.String("user_id", req.Caller.ID))
	start := time.Now()

	reservation, err := s.quota.Reserve(ctx, req.Caller)
	if err != nil {
		return nil, err
	}

	rc := pipeline.NewRunContext(requestID, req)
	elements, err := s.runStages(ctx, rc, logger)
	if err != nil {
		s.quota.Release(ctx, reservation)
		return nil, err
	}

	elements = diagram.ApplyTypographyDefaults(elements)
	elements = s.newEnricher().Enrich(elements)
	s.audit(rc, elements, logger)

	result := &models.PipelineResult{Elements: elements}
	if !reservation.Unlimited {
		remaining, err := s.quota.Commit(ctx, reservation)
		if err != nil {
			logger.Error("Failed to record usage for successful generation",
				zap.String("error", logging.SanitizeError(err)))
			fallback := reservation.Remaining
			remaining = &fallback
		}
		limit := reservation.Limit
		result.RemainingUses = remaining
		result.DailyLimit = &limit
	}

	logger.Info("Diagram generated",
		zap.String("source_kind", string(req.SourceKind)),
		zap.Int("elements", len(elements)),
		zap.Duration("elapsed", time.Since(start)))

	return result, nil
}

// runStages runs generation and then each best-effort stage, carrying the
// previous output forward whenever a stage skips or fails.
func (s *DiagramService) runStages(ctx context.Context, rc *pipeline.RunContext, logger *zap.Logger) ([]models.DiagramElement, error) {
	out := s.generation.Run(ctx, pipeline.StageInput{Context: rc})
	if out.Status != pipeline.StatusOK {
		logger.Error("Structure generation failed",
			zap.String("stage", string(s.generation.Name())),
			zap.String("reason", out.Reason),
			zap.String("error", logging.SanitizeError(out.Err)))
		var genErr *apperrors.GenerationError
		if errors.As(out.Err, &genErr) {
			return nil, genErr
		}
		return nil, &apperrors.GenerationError{Kind: apperrors.GenerationKindService, Message: out.Reason, Cause: out.Err}
	}
	elements := out.Elements

	for _, stage := range s.bestEffort {
		out := stage.Run(ctx, pipeline.StageInput{Elements: elements, Context: rc})
		switch out.Status {
		case pipeline.StatusOK:
			logger.Debug("Stage applied",
				zap.String("stage", string(stage.Name())),
				zap.Int("before", len(elements)),
				zap.Int("after", len(out.Elements)))
			elements = out.Elements
		case pipeline.StatusSkipped:
			logger.Debug("Stage skipped",
				zap.String("stage", string(stage.Name())),
				zap.String("reason", out.Reason))
		default:
			logger.Warn("Stage failed, keeping previous output",
				zap.String("stage", string(stage.Name())),
				zap.String("reason", out.Reason),
				zap.String("error", logging.SanitizeError(out.Err)))
		}
	}
	return elements, nil
}

func (s *DiagramService) audit(rc *pipeline.RunContext, elements []models.DiagramElement, logger *zap.Logger) {
	if rc.SourceText == "" {
		return
	}
	cov := diagram.AuditCompleteness(rc.SourceText, elements, s.warnRatio)
	fields := []zap.Field{
		zap.Int("source_items", cov.SourceItems),
		zap.Int("text_elements", cov.TextElements),
		zap.Int("shapes", cov.Shapes),
		zap.Float64("coverage", cov.Ratio),
	}
	if cov.BelowThreshold {
		logger.Warn("Diagram may be missing source content", fields...)
		return
	}
	logger.Info("Completeness audit", fields...)
}
