//go:build integration

package testhelpers

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestTestDB_MigrationsApplied(t *testing.T) {
	testDB := GetTestDB(t)

	var exists bool
	err := testDB.DB.QueryRow(context.Background(),
		"SELECT EXISTS (SELECT 1 FROM information_schema.tables WHERE table_name = 'canvas_usage_records')").
		Scan(&exists)
	require.NoError(t, err)
	assert.True(t, exists)
}

func TestTestRedis_Ping(t *testing.T) {
	client := GetTestRedis(t)
	assert.NoError(t, client.Ping(context.Background()).Err())
}
