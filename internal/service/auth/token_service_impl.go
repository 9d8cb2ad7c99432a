package auth

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
	"github.com/phrazzld/taskrelay/internal/config"
	"github.com/phrazzld/taskrelay/internal/platform/logger"
)

const (
	// MinSecretLength is the shortest accepted HMAC secret.
	MinSecretLength = 32

	// DefaultTokenLifetime applies when the configuration leaves it unset.
	DefaultTokenLifetime = 24 * time.Hour

	issuer = "taskrelay"
)

// hmacTokenService signs tokens with HMAC-SHA256.
type hmacTokenService struct {
	signingKey []byte
	lifetime   time.Duration
	timeFunc   func() time.Time
	clockSkew  time.Duration
}

type tokenClaims struct {
	Scope string `json:"scope"`
	jwt.RegisteredClaims
}

var _ TokenService = (*hmacTokenService)(nil)

// NewTokenService creates an HMAC token service from the auth configuration.
func NewTokenService(cfg config.AuthConfig) (TokenService, error) {
	return newTokenService(cfg.JWTSecret, cfg.TokenLifetime, time.Now)
}

func newTokenService(secret string, lifetime time.Duration, now func() time.Time) (*hmacTokenService, error) {
	if len(secret) < MinSecretLength {
		return nil, fmt.Errorf("jwt secret must be at least %d characters", MinSecretLength)
	}
	if lifetime <= 0 {
		lifetime = DefaultTokenLifetime
	}
	return &hmacTokenService{
		signingKey: []byte(secret),
		lifetime:   lifetime,
		timeFunc:   now,
		clockSkew:  2 * time.Minute,
	}, nil
}

// Issue signs a token for subject.
func (s *hmacTokenService) Issue(ctx context.Context, subject string, scopes []string) (string, error) {
	if subject == "" {
		return "", errors.New("token subject is required")
	}
	if scopes == nil {
		scopes = AllScopes
	}
	for _, scope := range scopes {
		if !slices.Contains(AllScopes, scope) {
			return "", fmt.Errorf("unknown scope %q", scope)
		}
	}

	now := s.timeFunc()
	claims := tokenClaims{
		Scope: strings.Join(scopes, " "),
		RegisteredClaims: jwt.RegisteredClaims{
			Issuer:    issuer,
			Subject:   subject,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(s.lifetime)),
			ID:        uuid.New().String(),
		},
	}

	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(s.signingKey)
	if err != nil {
		logger.FromContextOrDefault(ctx).Error("failed to sign token",
			"error", err,
			"subject", subject,
			"signing_method", jwt.SigningMethodHS256.Name)
		return "", fmt.Errorf("failed to sign token with HMAC-SHA256: %w", err)
	}
	return signed, nil
}

// Validate parses the token and maps library errors onto the package errors.
func (s *hmacTokenService) Validate(ctx context.Context, tokenString string) (*Claims, error) {
	log := logger.FromContextOrDefault(ctx)
	now := s.timeFunc()

	token, err := jwt.ParseWithClaims(
		tokenString,
		&tokenClaims{},
		func(token *jwt.Token) (any, error) {
			if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
				return nil, fmt.Errorf("unexpected signing method: %v", token.Header["alg"])
			}
			return s.signingKey, nil
		},
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Name}),
		jwt.WithIssuer(issuer),
		jwt.WithLeeway(s.clockSkew),
		jwt.WithTimeFunc(func() time.Time { return now }),
	)
	if err != nil {
		switch {
		case errors.Is(err, jwt.ErrTokenExpired):
			log.Debug("token validation failed: token expired", "error", err)
			return nil, ErrExpiredToken
		case errors.Is(err, jwt.ErrTokenNotValidYet):
			log.Debug("token validation failed: token not yet valid", "error", err)
			return nil, ErrTokenNotYetValid
		default:
			log.Debug("token validation failed",
				"error", err,
				"error_type", fmt.Sprintf("%T", err))
			return nil, ErrInvalidToken
		}
	}

	claims, ok := token.Claims.(*tokenClaims)
	if !ok || !token.Valid {
		log.Debug("token validation failed: invalid claims")
		return nil, ErrInvalidToken
	}

	return &Claims{
		Subject:   claims.Subject,
		Scopes:    strings.Fields(claims.Scope),
		IssuedAt:  claims.IssuedAt.Time,
		ExpiresAt: claims.ExpiresAt.Time,
		ID:        claims.ID,
	}, nil
}
