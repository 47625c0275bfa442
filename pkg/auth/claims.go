// Package auth provides JWT-based authentication for sitecrew-engine.
// The engine trusts the identity provider: it validates tokens against the
// provider's JWKS endpoints and never re-derives identity or roles itself.
package auth

import (
	"context"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
)

// contextKey is a custom type for context keys to avoid collisions.
type contextKey string

const (
	// ClaimsKey is the context key for storing JWT claims.
	ClaimsKey contextKey = "claims"
)

// Role names issued by the identity provider.
const (
	RoleOwner      = "owner"
	RoleContractor = "contractor"
	RoleAdmin      = "admin"
)

// Claims represents the JWT claims structure from the identity provider.
// It embeds RegisteredClaims for standard JWT fields (sub, iss, exp, etc.)
// and adds the marketplace roles.
type Claims struct {
	jwt.RegisteredClaims
	Email string   `json:"email,omitempty"`
	Roles []string `json:"roles,omitempty"`
}

// HasRole reports whether the claims carry the given role.
func (c *Claims) HasRole(role string) bool {
	for _, r := range c.Roles {
		if r == role {
			return true
		}
	}
	return false
}

// GetClaims retrieves JWT claims from the request context.
// Returns nil and false if claims are not present.
func GetClaims(ctx context.Context) (*Claims, bool) {
	claims, ok := ctx.Value(ClaimsKey).(*Claims)
	return claims, ok
}

// SetClaims stores JWT claims in the context. Exposed for tests and the
// middleware.
func SetClaims(ctx context.Context, claims *Claims) context.Context {
	return context.WithValue(ctx, ClaimsKey, claims)
}

// ActorFromContext extracts the acting user's ID and roles from context.
// Returns uuid.Nil and nil roles when the caller is unknown.
func ActorFromContext(ctx context.Context) (uuid.UUID, []string) {
	claims, ok := GetClaims(ctx)
	if !ok || claims == nil {
		return uuid.Nil, nil
	}
	actorID, err := uuid.Parse(claims.Subject)
	if err != nil {
		return uuid.Nil, nil
	}
	return actorID, claims.Roles
}
