package llm

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestBreaker(threshold int, resetAfter time.Duration) (*CircuitBreaker, *time.Time) {
	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	cb := NewCircuitBreaker(CircuitBreakerConfig{Threshold: threshold, ResetAfter: resetAfter})
	cb.now = func() time.Time { return now }
	return cb, &now
}

func TestCircuitBreaker_InitialState(t *testing.T) {
	cb, _ := newTestBreaker(5, 30*time.Second)

	assert.Equal(t, CircuitClosed, cb.State())
	assert.Equal(t, 0, cb.ConsecutiveFailures())
	assert.NoError(t, cb.Allow())
}

func TestCircuitBreaker_DefaultsApplied(t *testing.T) {
	cb := NewCircuitBreaker(CircuitBreakerConfig{})
	assert.Equal(t, 5, cb.threshold)
	assert.Equal(t, 30*time.Second, cb.resetAfter)
}

func TestCircuitBreaker_TripsAfterThreshold(t *testing.T) {
	cb, _ := newTestBreaker(3, 30*time.Second)

	cb.RecordFailure()
	cb.RecordFailure()
	assert.Equal(t, CircuitClosed, cb.State())

	cb.RecordFailure()
	assert.Equal(t, CircuitOpen, cb.State())

	err := cb.Allow()
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrCircuitOpen)
}

func TestCircuitBreaker_SuccessResetsCount(t *testing.T) {
	cb, _ := newTestBreaker(3, 30*time.Second)

	cb.RecordFailure()
	cb.RecordFailure()
	cb.RecordSuccess()
	cb.RecordFailure()

	assert.Equal(t, CircuitClosed, cb.State())
	assert.Equal(t, 1, cb.ConsecutiveFailures())
}

func TestCircuitBreaker_HalfOpenProbe(t *testing.T) {
	cb, now := newTestBreaker(1, 10*time.Second)

	cb.RecordFailure()
	require.ErrorIs(t, cb.Allow(), ErrCircuitOpen)

	*now = now.Add(11 * time.Second)
	require.NoError(t, cb.Allow())
	assert.Equal(t, CircuitHalfOpen, cb.State())

	// Only one probe at a time.
	assert.ErrorIs(t, cb.Allow(), ErrCircuitOpen)

	cb.RecordSuccess()
	assert.Equal(t, CircuitClosed, cb.State())
	assert.NoError(t, cb.Allow())
}

func TestCircuitBreaker_HalfOpenFailureReopens(t *testing.T) {
	cb, now := newTestBreaker(1, 10*time.Second)

	cb.RecordFailure()
	*now = now.Add(11 * time.Second)
	require.NoError(t, cb.Allow())

	cb.RecordFailure()
	assert.Equal(t, CircuitOpen, cb.State())
	assert.ErrorIs(t, cb.Allow(), ErrCircuitOpen)
}

func TestCircuitState_String(t *testing.T) {
	assert.Equal(t, "closed", CircuitClosed.String())
	assert.Equal(t, "open", CircuitOpen.String())
	assert.Equal(t, "half-open", CircuitHalfOpen.String())
	assert.Equal(t, "unknown", CircuitState(42).String())
}

func TestGuardedClient_FailsFastWhenOpen(t *testing.T) {
	mock := NewMockLLMClient()
	mock.GenerateResponseFunc = func(ctx context.Context, prompt, system string, temperature float64, maxTokens int) (*GenerateResponseResult, error) {
		return nil, NewError(ErrorTypeEndpoint, "server error", true, errors.New("502"))
	}
	cb, _ := newTestBreaker(2, time.Minute)
	client := NewGuardedClient(mock, cb)

	for i := 0; i < 2; i++ {
		_, err := client.GenerateResponse(context.Background(), "p", "s", 0, 10)
		require.Error(t, err)
	}
	require.Equal(t, CircuitOpen, cb.State())

	_, err := client.GenerateResponse(context.Background(), "p", "s", 0, 10)
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrCircuitOpen)
	assert.Equal(t, int64(2), mock.GenerateResponseCalls.Load())
}

func TestGuardedClient_CancelledCallerDoesNotTrip(t *testing.T) {
	mock := NewMockLLMClient()
	mock.GenerateWithImageFunc = func(ctx context.Context, prompt string, image *ImageInput, system string, temperature float64, maxTokens int) (*GenerateResponseResult, error) {
		return nil, ctx.Err()
	}
	cb, _ := newTestBreaker(1, time.Minute)
	client := NewGuardedClient(mock, cb)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := client.GenerateWithImage(ctx, "p", &ImageInput{Base64: "AAAA", MimeType: "image/png"}, "s", 0, 10)
	require.Error(t, err)
	assert.Equal(t, CircuitClosed, cb.State())
}
