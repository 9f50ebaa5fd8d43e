package services

import (
	"context"
	"errors"
	"slices"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/ekaya-inc/ekaya-canvas/pkg/models"
)

// fakeUsageRepo keeps usage records in memory and filters them by time.
type fakeUsageRepo struct {
	mu        sync.Mutex
	records   []models.UsageRecord
	insertErr error
	countErr  error
	// afterInsert runs once a record is stored, outside the lock.
	afterInsert func(ctx context.Context)
}

func (f *fakeUsageRepo) CountSince(_ context.Context, userID string, since time.Time, pending []uuid.UUID) (int, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.countErr != nil {
		return 0, f.countErr
	}
	n := 0
	for _, r := range f.records {
		if r.UserID != userID || r.CreatedAt.Before(since) {
			continue
		}
		if r.ReservationID != nil && slices.Contains(pending, *r.ReservationID) {
			continue
		}
		n++
	}
	return n, nil
}

func (f *fakeUsageRepo) Insert(ctx context.Context, rec *models.UsageRecord) error {
	f.mu.Lock()
	if f.insertErr != nil {
		f.mu.Unlock()
		return f.insertErr
	}
	if rec.ID == uuid.Nil {
		rec.ID = uuid.New()
	}
	f.records = append(f.records, *rec)
	hook := f.afterInsert
	f.mu.Unlock()

	if hook != nil {
		hook(ctx)
	}
	return nil
}

func (f *fakeUsageRepo) add(userID string, at time.Time) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.records = append(f.records, models.UsageRecord{ID: uuid.New(), UserID: userID, CreatedAt: at})
}

func (f *fakeUsageRepo) count() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.records)
}

type fixedClock struct{ t time.Time }

func (c fixedClock) Now() time.Time { return c.t }

var errDatabaseDown = errors.New("database is down")
