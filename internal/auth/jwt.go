// JWT access-token issuance and verification. Tokens carry {sub, role,
// iat, exp}; the access token is short-lived and stateless (no
// server-side record) — revocation happens at the refresh-token layer
// in refresh.go, which the client must use to mint a new access token.
package auth

import (
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"

	"github.com/apexbridge-tech/bugspotter/internal/apperrors"
	"github.com/apexbridge-tech/bugspotter/internal/models"
)

// Claims is the JWT payload for a dashboard user session.
type Claims struct {
	Role models.Role `json:"role"`
	jwt.RegisteredClaims
}

// JWTConfig holds HMAC signing configuration. Expiry is called each time
// a token is issued; cmd/server supplies a func returning the
// JWT_EXPIRES_IN duration parsed once at startup, so
// InstanceSettings.JWTAccessExpirySeconds does not affect token lifetime.
type JWTConfig struct {
	SecretKey string
	Issuer    string
	Expiry    func() time.Duration
}

// JWTManager issues and validates access tokens.
type JWTManager struct {
	config JWTConfig
}

// NewJWTManager creates a JWT manager. If config.Issuer is empty it
// defaults to "bugspotter".
func NewJWTManager(config JWTConfig) *JWTManager {
	if config.Issuer == "" {
		config.Issuer = "bugspotter"
	}
	if config.Expiry == nil {
		config.Expiry = func() time.Duration { return time.Hour }
	}
	return &JWTManager{config: config}
}

// GenerateToken signs a new access token for userID with the given role.
func (m *JWTManager) GenerateToken(userID string, role models.Role) (string, time.Time, error) {
	now := time.Now()
	expiresAt := now.Add(m.config.Expiry())

	claims := &Claims{
		Role: role,
		RegisteredClaims: jwt.RegisteredClaims{
			Issuer:    m.config.Issuer,
			Subject:   userID,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(expiresAt),
			NotBefore: jwt.NewNumericDate(now),
		},
	}

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	signed, err := token.SignedString([]byte(m.config.SecretKey))
	if err != nil {
		return "", time.Time{}, fmt.Errorf("sign access token: %w", err)
	}
	return signed, expiresAt, nil
}

// ValidateToken verifies signature, algorithm, and expiry, returning the
// claims on success.
func (m *JWTManager) ValidateToken(tokenString string) (*Claims, error) {
	token, err := jwt.ParseWithClaims(tokenString, &Claims{}, func(token *jwt.Token) (interface{}, error) {
		if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method: %v", token.Header["alg"])
		}
		return []byte(m.config.SecretKey), nil
	})
	if err != nil {
		return nil, apperrors.NewAuthenticationError("invalid or expired token")
	}

	claims, ok := token.Claims.(*Claims)
	if !ok || !token.Valid {
		return nil, apperrors.NewAuthenticationError("invalid token")
	}
	return claims, nil
}
