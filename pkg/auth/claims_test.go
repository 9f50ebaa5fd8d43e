package auth

import (
	"context"
	"testing"

	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ekaya-inc/ekaya-canvas/pkg/models"
)

var privileged = []string{"pro", "admin"}

func TestClaims_HasAnyRole(t *testing.T) {
	tests := []struct {
		name   string
		claims *Claims
		want   bool
	}{
		{"nil claims", nil, false},
		{"no roles", &Claims{}, false},
		{"free role", &Claims{Roles: []string{"user"}}, false},
		{"pro role", &Claims{Roles: []string{"user", "pro"}}, true},
		{"pro plan", &Claims{Plan: "pro"}, true},
		{"free plan", &Claims{Plan: "free"}, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, tt.claims.HasAnyRole(privileged))
		})
	}
}

func TestCallerFromContext(t *testing.T) {
	t.Run("no claims", func(t *testing.T) {
		_, err := CallerFromContext(context.Background(), privileged)
		require.ErrorIs(t, err, ErrNoCaller)
	})

	t.Run("empty subject", func(t *testing.T) {
		ctx := WithClaims(context.Background(), &Claims{}, "tok")
		_, err := CallerFromContext(ctx, privileged)
		require.ErrorIs(t, err, ErrNoCaller)
	})

	t.Run("free user", func(t *testing.T) {
		claims := &Claims{RegisteredClaims: jwt.RegisteredClaims{Subject: "user-1"}}
		ctx := WithClaims(context.Background(), claims, "tok")

		caller, err := CallerFromContext(ctx, privileged)
		require.NoError(t, err)
		assert.Equal(t, models.Caller{ID: "user-1"}, caller)

		token, ok := GetToken(ctx)
		assert.True(t, ok)
		assert.Equal(t, "tok", token)
		assert.Equal(t, "user-1", GetUserIDFromContext(ctx))
	})

	t.Run("privileged user", func(t *testing.T) {
		claims := &Claims{RegisteredClaims: jwt.RegisteredClaims{Subject: "user-2"}, Roles: []string{"admin"}}
		ctx := WithClaims(context.Background(), claims, "tok")

		caller, err := CallerFromContext(ctx, privileged)
		require.NoError(t, err)
		assert.True(t, caller.IsPrivileged)
	})
}
