// Package auth issues and validates the bearer tokens that guard the work API.
package auth

import (
	"context"
	"slices"
	"time"
)

// Scopes granted by operator tokens.
const (
	ScopeSubmit = "work:submit"
	ScopeCancel = "work:cancel"
	ScopeRead   = "work:read"
)

// AllScopes lists every scope, in the order tokens carry them by default.
var AllScopes = []string{ScopeSubmit, ScopeCancel, ScopeRead}

// TokenService issues and validates signed operator tokens.
type TokenService interface {
	// Issue signs a token for subject granting scopes. Nil scopes grant
	// AllScopes.
	Issue(ctx context.Context, subject string, scopes []string) (string, error)

	// Validate checks the signature and time claims of a token.
	Validate(ctx context.Context, token string) (*Claims, error)
}

// Claims is the validated content of a token.
type Claims struct {
	Subject   string    `json:"sub"`
	Scopes    []string  `json:"scopes"`
	IssuedAt  time.Time `json:"iat"`
	ExpiresAt time.Time `json:"exp"`
	ID        string    `json:"jti"`
}

// HasScope reports whether the token grants scope.
func (c *Claims) HasScope(scope string) bool {
	return c != nil && slices.Contains(c.Scopes, scope)
}
