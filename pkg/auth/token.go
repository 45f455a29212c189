package auth

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"

	"github.com/angelmondragon/invoice-review/pkg/config"
)

// clockSkew tolerates drift between the minting host and the API.
const clockSkew = 30 * time.Second

var signingMethod = jwt.SigningMethodHS256

// ErrTokenExpired lets callers tell a stale review session from a forged token.
var ErrTokenExpired = errors.New("access token expired")

func checkConfig(cfg config.JWTConfig) error {
	switch {
	case cfg.Secret == "":
		return fmt.Errorf("jwt secret is required")
	case cfg.Issuer == "":
		return fmt.Errorf("jwt issuer is required")
	}
	return nil
}

// MintAccessToken signs a reviewer token valid for cfg.TTL() from now. An
// empty JTI starts a fresh review session.
func MintAccessToken(cfg config.JWTConfig, now time.Time, payload AccessTokenPayload) (string, error) {
	if err := checkConfig(cfg); err != nil {
		return "", err
	}
	if cfg.ExpirationMinutes <= 0 {
		return "", fmt.Errorf("jwt expiration minutes must be positive")
	}
	if !payload.Role.IsValid() {
		return "", fmt.Errorf("invalid reviewer role %q", payload.Role)
	}

	sessionID := strings.TrimSpace(payload.JTI)
	if sessionID == "" {
		sessionID = uuid.NewString()
	}
	reviewer := strings.TrimSpace(payload.Reviewer)

	signed, err := jwt.NewWithClaims(signingMethod, AccessTokenClaims{
		Reviewer: reviewer,
		Role:     payload.Role,
		RegisteredClaims: jwt.RegisteredClaims{
			Issuer:    cfg.Issuer,
			Subject:   reviewer,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(cfg.TTL())),
			ID:        sessionID,
		},
	}).SignedString([]byte(cfg.Secret))
	if err != nil {
		return "", fmt.Errorf("signing jwt: %w", err)
	}
	return signed, nil
}

// ParseAccessToken verifies signature, issuer and expiry, then checks that
// the role is known and a session id is present.
func ParseAccessToken(cfg config.JWTConfig, tokenString string) (*AccessTokenClaims, error) {
	if err := checkConfig(cfg); err != nil {
		return nil, err
	}

	claims := &AccessTokenClaims{}
	_, err := jwt.ParseWithClaims(tokenString, claims,
		func(*jwt.Token) (any, error) { return []byte(cfg.Secret), nil },
		jwt.WithValidMethods([]string{signingMethod.Alg()}),
		jwt.WithIssuer(cfg.Issuer),
		jwt.WithExpirationRequired(),
		jwt.WithLeeway(clockSkew),
	)
	switch {
	case errors.Is(err, jwt.ErrTokenExpired):
		return nil, fmt.Errorf("%w: %v", ErrTokenExpired, err)
	case err != nil:
		return nil, err
	case !claims.Role.IsValid():
		return nil, fmt.Errorf("invalid reviewer role %q", claims.Role)
	case strings.TrimSpace(claims.ID) == "":
		return nil, fmt.Errorf("token missing jti")
	}
	return claims, nil
}
