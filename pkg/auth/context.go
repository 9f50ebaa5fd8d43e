package auth

import (
	"context"
	"errors"

	"github.com/ekaya-inc/ekaya-canvas/pkg/models"
)

// ErrNoCaller is returned when the context holds no authenticated subject.
var ErrNoCaller = errors.New("authentication required: no claims in context")

// GetUserIDFromContext extracts the user ID from JWT claims in the context.
// Returns empty string if not authenticated or claims are missing.
func GetUserIDFromContext(ctx context.Context) string {
	claims, ok := GetClaims(ctx)
	if !ok || claims == nil {
		return ""
	}
	return claims.Subject
}

// CallerFromContext resolves the authenticated caller. A caller holding any
// of privilegedRoles is exempt from the daily quota.
func CallerFromContext(ctx context.Context, privilegedRoles []string) (models.Caller, error) {
	claims, ok := GetClaims(ctx)
	if !ok || claims == nil || claims.Subject == "" {
		return models.Caller{}, ErrNoCaller
	}
	return models.Caller{
		ID:           claims.Subject,
		IsPrivileged: claims.HasAnyRole(privilegedRoles),
	}, nil
}
