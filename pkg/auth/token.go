package auth

import (
	"fmt"
	"strings"
	"time"

	"github.com/autevo/filmtechos-backend/pkg/config"
	"github.com/golang-jwt/jwt/v5"
)

var jwtSigningMethod = jwt.SigningMethodHS256

// MintSessionToken issues a signed session token. Production tokens are minted by the
// identity provider with the same template; this is used by tooling and tests.
func MintSessionToken(cfg config.AuthConfig, now time.Time, ttl time.Duration, payload SessionPayload) (string, error) {
	if cfg.SessionSecret == "" {
		return "", fmt.Errorf("session secret is required")
	}
	if cfg.Issuer == "" {
		return "", fmt.Errorf("session issuer is required")
	}
	if strings.TrimSpace(payload.ExternalID) == "" {
		return "", fmt.Errorf("subject is required")
	}
	if ttl <= 0 {
		return "", fmt.Errorf("session ttl must be positive")
	}
	if payload.Role != "" && !payload.Role.IsValid() {
		return "", fmt.Errorf("invalid user role %q", payload.Role)
	}

	claims := SessionClaims{
		TenantID:   payload.TenantID,
		UserID:     payload.UserID,
		Role:       payload.Role,
		SystemRole: payload.SystemRole,
		RegisteredClaims: jwt.RegisteredClaims{
			Issuer:    cfg.Issuer,
			Subject:   payload.ExternalID,
			IssuedAt:  jwt.NewNumericDate(now),
			NotBefore: jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(ttl)),
		},
	}

	signed, err := jwt.NewWithClaims(jwtSigningMethod, claims).SignedString([]byte(cfg.SessionSecret))
	if err != nil {
		return "", fmt.Errorf("signing session token: %w", err)
	}
	return signed, nil
}

// ParseSessionToken validates the token and returns typed claims.
func ParseSessionToken(cfg config.AuthConfig, tokenString string) (*SessionClaims, error) {
	if cfg.SessionSecret == "" {
		return nil, fmt.Errorf("session secret is required")
	}

	claims := &SessionClaims{}
	_, err := jwt.ParseWithClaims(
		tokenString,
		claims,
		func(token *jwt.Token) (interface{}, error) {
			if token.Method != jwtSigningMethod {
				return nil, fmt.Errorf("unexpected signing method %s", token.Header["alg"])
			}
			return []byte(cfg.SessionSecret), nil
		},
		jwt.WithValidMethods([]string{jwtSigningMethod.Alg()}),
		jwt.WithIssuer(cfg.Issuer),
		jwt.WithLeeway(cfg.ClockSkew),
		jwt.WithExpirationRequired(),
	)
	if err != nil {
		return nil, err
	}
	if strings.TrimSpace(claims.Subject) == "" {
		return nil, fmt.Errorf("session subject missing")
	}
	if claims.Role != "" && !claims.Role.IsValid() {
		return nil, fmt.Errorf("invalid role claim %q", claims.Role)
	}
	return claims, nil
}

// ActorFromClaims converts the token claims into an actor. Missing tenant claims are
// left zero for the caller to resolve.
func ActorFromClaims(claims *SessionClaims) Actor {
	if claims == nil {
		return Actor{}
	}
	actor := Actor{
		ExternalID: claims.Subject,
		Role:       claims.Role,
		SystemRole: claims.SystemRole,
	}
	if claims.TenantID != nil {
		actor.TenantID = *claims.TenantID
	}
	if claims.UserID != nil {
		actor.UserID = *claims.UserID
	}
	return actor
}
