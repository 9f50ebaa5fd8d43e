package repositories

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/ekaya-inc/ekaya-canvas/pkg/database"
	"github.com/ekaya-inc/ekaya-canvas/pkg/models"
)

// UsageRepository defines the interface for usage record data access.
// Records are append-only.
type UsageRepository interface {
	// CountSince returns how many records userID has with created_at >= since,
	// leaving out records written for any reservation in pending. Callers
	// count pending reservations separately, so a use whose record lands
	// before its reservation is released is still counted once.
	CountSince(ctx context.Context, userID string, since time.Time, pending []uuid.UUID) (int, error)
	// Insert writes one record, assigning an id and timestamp if unset.
	Insert(ctx context.Context, rec *models.UsageRecord) error
}

// usageRepository implements UsageRepository using PostgreSQL.
type usageRepository struct {
	db *database.DB
}

// NewUsageRepository creates a new usage repository.
func NewUsageRepository(db *database.DB) UsageRepository {
	return &usageRepository{db: db}
}

func (r *usageRepository) CountSince(ctx context.Context, userID string, since time.Time, pending []uuid.UUID) (int, error) {
	query := `
		SELECT COUNT(*)
		FROM canvas_usage_records
		WHERE user_id = $1 AND created_at >= $2
		  AND (reservation_id IS NULL OR reservation_id <> ALL($3::uuid[]))`

	if pending == nil {
		pending = []uuid.UUID{}
	}

	var count int
	if err := r.db.QueryRow(ctx, query, userID, since, pending).Scan(&count); err != nil {
		return 0, fmt.Errorf("failed to count usage records: %w", err)
	}
	return count, nil
}

func (r *usageRepository) Insert(ctx context.Context, rec *models.UsageRecord) error {
	if rec.ID == uuid.Nil {
		rec.ID = uuid.New()
	}
	if rec.CreatedAt.IsZero() {
		rec.CreatedAt = time.Now().UTC()
	}

	query := `
		INSERT INTO canvas_usage_records (id, user_id, created_at, reservation_id)
		VALUES ($1, $2, $3, $4)`

	if _, err := r.db.Exec(ctx, query, rec.ID, rec.UserID, rec.CreatedAt, rec.ReservationID); err != nil {
		return fmt.Errorf("failed to insert usage record: %w", err)
	}
	return nil
}
