package repositories

import (
	"bytes"
	"context"
	"fmt"
	"slices"
	"strconv"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
)

// ReservationStore tracks in-flight generations per caller per UTC day.
// A reservation is taken before the pipeline runs and released when it
// finishes, so concurrent requests see each other before any usage row
// exists. Reservations are identified so a usage row written for one can
// be told apart from the reservation itself while both briefly exist.
type ReservationStore interface {
	// Acquire atomically adds reservation id and returns every live
	// reservation for the caller and day, including id. The reservation
	// expires after ttl if never released.
	Acquire(ctx context.Context, userID, day string, id uuid.UUID, ttl time.Duration) ([]uuid.UUID, error)
	// Release removes reservation id. Releasing an unknown id is a no-op.
	Release(ctx context.Context, userID, day string, id uuid.UUID) error
	// InFlight returns the live reservations without changing them.
	InFlight(ctx context.Context, userID, day string) ([]uuid.UUID, error)
}

const reservationKeyPrefix = "canvas:quota:inflight:"

func reservationKey(userID, day string) string {
	return reservationKeyPrefix + day + ":" + userID
}

// redisReservationStore implements ReservationStore using a Redis sorted
// set per caller and day. Members are reservation ids scored by their
// expiry in unix milliseconds.
type redisReservationStore struct {
	client *redis.Client
	now    func() time.Time
}

// NewRedisReservationStore creates a Redis-backed reservation store.
func NewRedisReservationStore(client *redis.Client) ReservationStore {
	return &redisReservationStore{client: client, now: time.Now}
}

func (s *redisReservationStore) Acquire(ctx context.Context, userID, day string, id uuid.UUID, ttl time.Duration) ([]uuid.UUID, error) {
	key := reservationKey(userID, day)
	now := s.now()

	var members *redis.StringSliceCmd
	_, err := s.client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.ZRemRangeByScore(ctx, key, "-inf", strconv.FormatInt(now.UnixMilli(), 10))
		pipe.ZAdd(ctx, key, redis.Z{Score: float64(now.Add(ttl).UnixMilli()), Member: id.String()})
		pipe.Expire(ctx, key, ttl)
		members = pipe.ZRange(ctx, key, 0, -1)
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("redis acquire reservation: %w", err)
	}
	return parseReservationIDs(members.Val())
}

func (s *redisReservationStore) Release(ctx context.Context, userID, day string, id uuid.UUID) error {
	if err := s.client.ZRem(ctx, reservationKey(userID, day), id.String()).Err(); err != nil {
		return fmt.Errorf("redis release reservation: %w", err)
	}
	return nil
}

func (s *redisReservationStore) InFlight(ctx context.Context, userID, day string) ([]uuid.UUID, error) {
	members, err := s.client.ZRangeByScore(ctx, reservationKey(userID, day), &redis.ZRangeBy{
		Min: "(" + strconv.FormatInt(s.now().UnixMilli(), 10),
		Max: "+inf",
	}).Result()
	if err != nil {
		return nil, fmt.Errorf("redis get reservations: %w", err)
	}
	return parseReservationIDs(members)
}

func parseReservationIDs(members []string) ([]uuid.UUID, error) {
	ids := make([]uuid.UUID, 0, len(members))
	for _, m := range members {
		id, err := uuid.Parse(m)
		if err != nil {
			return nil, fmt.Errorf("parse reservation id %q: %w", m, err)
		}
		ids = append(ids, id)
	}
	return ids, nil
}

// memoryReservationStore implements ReservationStore in process memory for
// single-instance deployments without Redis.
type memoryReservationStore struct {
	mu   sync.Mutex
	data map[string]map[uuid.UUID]time.Time
	now  func() time.Time
}

// NewMemoryReservationStore creates an in-process reservation store.
func NewMemoryReservationStore() ReservationStore {
	return &memoryReservationStore{
		data: make(map[string]map[uuid.UUID]time.Time),
		now:  time.Now,
	}
}

// live drops expired reservations under key and returns the rest in a
// stable order. Caller holds mu.
func (s *memoryReservationStore) live(key string) []uuid.UUID {
	now := s.now()
	ids := make([]uuid.UUID, 0, len(s.data[key]))
	for id, expiresAt := range s.data[key] {
		if !now.Before(expiresAt) {
			delete(s.data[key], id)
			continue
		}
		ids = append(ids, id)
	}
	if len(s.data[key]) == 0 {
		delete(s.data, key)
	}
	slices.SortFunc(ids, func(a, b uuid.UUID) int { return bytes.Compare(a[:], b[:]) })
	return ids
}

func (s *memoryReservationStore) Acquire(_ context.Context, userID, day string, id uuid.UUID, ttl time.Duration) ([]uuid.UUID, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	key := reservationKey(userID, day)
	if s.data[key] == nil {
		s.data[key] = make(map[uuid.UUID]time.Time)
	}
	s.data[key][id] = s.now().Add(ttl)
	return s.live(key), nil
}

func (s *memoryReservationStore) Release(_ context.Context, userID, day string, id uuid.UUID) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	key := reservationKey(userID, day)
	delete(s.data[key], id)
	if len(s.data[key]) == 0 {
		delete(s.data, key)
	}
	return nil
}

func (s *memoryReservationStore) InFlight(_ context.Context, userID, day string) ([]uuid.UUID, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.live(reservationKey(userID, day)), nil
}
