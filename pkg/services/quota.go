package services

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/ekaya-inc/ekaya-canvas/pkg/apperrors"
	"github.com/ekaya-inc/ekaya-canvas/pkg/config"
	"github.com/ekaya-inc/ekaya-canvas/pkg/models"
	"github.com/ekaya-inc/ekaya-canvas/pkg/repositories"
)

// Clock supplies the current time.
type Clock interface {
	Now() time.Time
}

type systemClock struct{}

func (systemClock) Now() time.Time { return time.Now() }

// SystemClock is the wall clock.
var SystemClock Clock = systemClock{}

// startOfUTCDay returns midnight UTC of t's UTC date.
func startOfUTCDay(t time.Time) time.Time {
	y, m, d := t.UTC().Date()
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}

// Reservation holds one provisional use for the duration of a pipeline run.
// Unlimited reservations belong to privileged callers and touch no storage.
type Reservation struct {
	ID        uuid.UUID
	Caller    models.Caller
	Unlimited bool
	DayStart  time.Time
	Limit     int
	// Remaining is what the caller has left once this use is committed.
	Remaining int
}

func (r *Reservation) day() string {
	return r.DayStart.Format(time.DateOnly)
}

// QuotaService enforces the free-tier daily limit. Used counts always come
// from persisted usage records; reservations cover requests still running.
type QuotaService struct {
	usage        repositories.UsageRepository
	reservations repositories.ReservationStore
	cfg          config.QuotaConfig
	clock        Clock
	logger       *zap.Logger
}

// NewQuotaService creates a QuotaService.
func NewQuotaService(
	usage repositories.UsageRepository,
	reservations repositories.ReservationStore,
	cfg config.QuotaConfig,
	clock Clock,
	logger *zap.Logger,
) *QuotaService {
	if clock == nil {
		clock = SystemClock
	}
	return &QuotaService{
		usage:        usage,
		reservations: reservations,
		cfg:          cfg,
		clock:        clock,
		logger:       logger.Named("quota"),
	}
}

// DailyLimit returns the configured free-tier limit.
func (s *QuotaService) DailyLimit() int {
	return s.cfg.FreeDailyLimit
}

// Status reports the caller's allowance without reserving anything.
func (s *QuotaService) Status(ctx context.Context, caller models.Caller) (*models.QuotaStatus, error) {
	if caller.IsPrivileged {
		return &models.QuotaStatus{IsPro: true}, nil
	}

	dayStart := startOfUTCDay(s.clock.Now())
	remaining, err := s.remaining(ctx, caller.ID, dayStart)
	if err != nil {
		return nil, err
	}
	limit := s.cfg.FreeDailyLimit
	return &models.QuotaStatus{RemainingUses: &remaining, DailyLimit: &limit}, nil
}

func (s *QuotaService) remaining(ctx context.Context, userID string, dayStart time.Time) (int, error) {
	pending, err := s.reservations.InFlight(ctx, userID, dayStart.Format(time.DateOnly))
	if err != nil {
		return 0, fmt.Errorf("count reservations: %w", err)
	}
	used, err := s.usage.CountSince(ctx, userID, dayStart, pending)
	if err != nil {
		return 0, fmt.Errorf("count usage: %w", err)
	}
	return max(0, s.cfg.FreeDailyLimit-used-len(pending)), nil
}

// Reserve claims one use for caller or fails with *apperrors.QuotaExceededError.
// The reservation is taken before usage is counted, so two concurrent
// requests cannot both claim the last use. Records written for reservations
// that are still held are counted through the reservation only.
func (s *QuotaService) Reserve(ctx context.Context, caller models.Caller) (*Reservation, error) {
	if caller.IsPrivileged {
		return &Reservation{Caller: caller, Unlimited: true}, nil
	}

	r := &Reservation{
		ID:       uuid.New(),
		Caller:   caller,
		DayStart: startOfUTCDay(s.clock.Now()),
		Limit:    s.cfg.FreeDailyLimit,
	}

	pending, err := s.reservations.Acquire(ctx, caller.ID, r.day(), r.ID, s.cfg.ReservationTTL)
	if err != nil {
		return nil, fmt.Errorf("reserve quota: %w", err)
	}

	used, err := s.usage.CountSince(ctx, caller.ID, r.DayStart, pending)
	if err != nil {
		s.release(ctx, r)
		return nil, fmt.Errorf("count usage: %w", err)
	}

	if used+len(pending) > r.Limit {
		s.release(ctx, r)
		s.logger.Info("Daily limit reached",
			zap.String("user_id", caller.ID),
			zap.Int("used", used),
			zap.Int("in_flight", len(pending)-1),
			zap.Int("limit", r.Limit))
		return nil, &apperrors.QuotaExceededError{DailyLimit: r.Limit}
	}

	r.Remaining = r.Limit - used - len(pending)
	return r, nil
}

// Commit records the use and then releases the reservation. It returns the
// caller's remaining uses, or nil for unlimited callers. The record is
// written even if ctx is cancelled.
func (s *QuotaService) Commit(ctx context.Context, r *Reservation) (*int, error) {
	if r.Unlimited {
		return nil, nil
	}

	insertCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), storeTimeout)
	defer cancel()

	reservationID := r.ID
	rec := &models.UsageRecord{
		UserID:        r.Caller.ID,
		CreatedAt:     s.clock.Now().UTC(),
		ReservationID: &reservationID,
	}
	err := s.usage.Insert(insertCtx, rec)
	s.release(ctx, r)
	if err != nil {
		return nil, fmt.Errorf("record usage: %w", err)
	}

	remaining, err := s.remaining(ctx, r.Caller.ID, r.DayStart)
	if err != nil {
		s.logger.Warn("Failed to recount remaining uses",
			zap.String("user_id", r.Caller.ID),
			zap.Error(err))
		remaining = r.Remaining
	}
	return &remaining, nil
}

// Release gives the reservation back without recording usage.
func (s *QuotaService) Release(ctx context.Context, r *Reservation) {
	if r == nil || r.Unlimited {
		return
	}
	s.release(ctx, r)
}

// storeTimeout bounds quota writes that outlive the request context.
const storeTimeout = 5 * time.Second

func (s *QuotaService) release(ctx context.Context, r *Reservation) {
	// The request context may already be cancelled; the reservation must still go.
	ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), storeTimeout)
	defer cancel()

	if err := s.reservations.Release(ctx, r.Caller.ID, r.day(), r.ID); err != nil {
		s.logger.Error("Failed to release quota reservation",
			zap.String("user_id", r.Caller.ID),
			zap.Error(err))
	}
}
