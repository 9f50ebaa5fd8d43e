// Package testhelpers provides utilities for testing ekaya-canvas components.
package testhelpers

import (
	"encoding/base64"
	"encoding/json"
	"fmt"
)

// GenerateTestJWT creates an unsigned test JWT (alg: none) for use when
// verification is disabled. Roles are carried in the "roles" claim.
func GenerateTestJWT(sub, email string, roles ...string) string {
	header := base64.RawURLEncoding.EncodeToString([]byte(`{"alg":"none","typ":"JWT"}`))

	claims := map[string]any{"sub": sub, "aud": "canvas"}
	if email != "" {
		claims["email"] = email
	}
	if len(roles) > 0 {
		claims["roles"] = roles
	}
	payload, _ := json.Marshal(claims)

	return fmt.Sprintf("%s.%s.", header, base64.RawURLEncoding.EncodeToString(payload))
}

// GenerateTestJWTWithBearer returns token with "Bearer " prefix for Authorization header.
func GenerateTestJWTWithBearer(sub, email string, roles ...string) string {
	return "Bearer " + GenerateTestJWT(sub, email, roles...)
}
