package database

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/ekaya-inc/ekaya-canvas/pkg/config"
)

func TestNewRedisClient_NotConfigured(t *testing.T) {
	client, err := NewRedisClient(context.Background(), &config.RedisConfig{}, zap.NewNop())
	require.NoError(t, err)
	assert.Nil(t, client)
}

func TestNewRedisClient_GivesUpWhenContextEnds(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	client, err := NewRedisClient(ctx, &config.RedisConfig{Host: "redis.invalid", Port: 6379}, zap.NewNop())
	require.Error(t, err)
	assert.Nil(t, client)
	assert.Contains(t, err.Error(), "failed to connect to Redis")
}
