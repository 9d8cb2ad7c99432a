package auth

import (
	"context"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/phrazzld/taskrelay/internal/config"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const testSecret = "test-secret-that-is-long-enough-for-testing"

func fixedClock(t time.Time) func() time.Time {
	return func() time.Time { return t }
}

func TestNewTokenService(t *testing.T) {
	t.Parallel()

	_, err := NewTokenService(config.AuthConfig{JWTSecret: "short"})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "at least 32 characters")

	svc, err := NewTokenService(config.AuthConfig{JWTSecret: testSecret})
	require.NoError(t, err)
	assert.Equal(t, DefaultTokenLifetime, svc.(*hmacTokenService).lifetime)
}

func TestIssueAndValidate(t *testing.T) {
	t.Parallel()

	issuedAt := time.Date(2025, 1, 1, 12, 0, 0, 0, time.UTC)
	svc, err := newTokenService(testSecret, time.Hour, fixedClock(issuedAt))
	require.NoError(t, err)
	ctx := context.Background()

	t.Run("default scopes", func(t *testing.T) {
		token, err := svc.Issue(ctx, "ops", nil)
		require.NoError(t, err)

		claims, err := svc.Validate(ctx, token)
		require.NoError(t, err)
		assert.Equal(t, "ops", claims.Subject)
		assert.Equal(t, AllScopes, claims.Scopes)
		assert.Equal(t, issuedAt.Unix(), claims.IssuedAt.Unix())
		assert.Equal(t, issuedAt.Add(time.Hour).Unix(), claims.ExpiresAt.Unix())
		assert.NotEmpty(t, claims.ID)
	})

	t.Run("narrow scopes", func(t *testing.T) {
		token, err := svc.Issue(ctx, "dashboard", []string{ScopeRead})
		require.NoError(t, err)

		claims, err := svc.Validate(ctx, token)
		require.NoError(t, err)
		assert.True(t, claims.HasScope(ScopeRead))
		assert.False(t, claims.HasScope(ScopeCancel))
	})

	t.Run("rejects unknown scope", func(t *testing.T) {
		_, err := svc.Issue(ctx, "ops", []string{"work:everything"})
		require.Error(t, err)
	})

	t.Run("rejects empty subject", func(t *testing.T) {
		_, err := svc.Issue(ctx, "", nil)
		require.Error(t, err)
	})
}

func TestValidate_Errors(t *testing.T) {
	t.Parallel()

	issuedAt := time.Date(2025, 1, 1, 12, 0, 0, 0, time.UTC)
	ctx := context.Background()

	signer, err := newTokenService(testSecret, time.Hour, fixedClock(issuedAt))
	require.NoError(t, err)
	token, err := signer.Issue(ctx, "ops", nil)
	require.NoError(t, err)

	tests := []struct {
		name    string
		secret  string
		now     time.Time
		token   string
		wantErr error
	}{
		{
			name:    "expired beyond skew",
			secret:  testSecret,
			now:     issuedAt.Add(time.Hour + 5*time.Minute),
			token:   token,
			wantErr: ErrExpiredToken,
		},
		{
			name:    "wrong secret",
			secret:  "wrong-secret-that-is-long-enough-for-testing",
			now:     issuedAt,
			token:   token,
			wantErr: ErrInvalidToken,
		},
		{
			name:    "malformed",
			secret:  testSecret,
			now:     issuedAt,
			token:   "not-a-token",
			wantErr: ErrInvalidToken,
		},
		{
			name:    "not yet valid",
			secret:  testSecret,
			now:     issuedAt,
			token:   signRaw(t, jwt.MapClaims{"iss": issuer, "sub": "ops", "nbf": issuedAt.Add(time.Hour).Unix()}),
			wantErr: ErrTokenNotYetValid,
		},
		{
			name:    "foreign issuer",
			secret:  testSecret,
			now:     issuedAt,
			token:   signRaw(t, jwt.MapClaims{"iss": "someone-else", "sub": "ops"}),
			wantErr: ErrInvalidToken,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			svc, err := newTokenService(tt.secret, time.Hour, fixedClock(tt.now))
			require.NoError(t, err)

			claims, err := svc.Validate(ctx, tt.token)
			assert.Nil(t, claims)
			assert.ErrorIs(t, err, tt.wantErr)
		})
	}
}

func signRaw(t *testing.T, claims jwt.MapClaims) string {
	t.Helper()
	token, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString([]byte(testSecret))
	require.NoError(t, err)
	return token
}

func TestClaims_HasScope(t *testing.T) {
	var nilClaims *Claims
	assert.False(t, nilClaims.HasScope(ScopeRead))
	assert.True(t, (&Claims{Scopes: []string{ScopeCancel}}).HasScope(ScopeCancel))
}
