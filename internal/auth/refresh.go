// Server-side refresh-token allowlist, backed by Redis. Each user has a
// set (cache.RefreshAllowKey) of SHA256 hashes of their currently-valid
// refresh tokens; issuing adds a hash, logout/rotation removes one,
// and a full revoke drops the set. The plaintext token never touches
// Redis or the database — only its hash does.
package auth

import (
	"context"
	"crypto/rand"
	"crypto/sha256"
	"encoding/base64"
	"fmt"
	"time"

	"github.com/apexbridge-tech/bugspotter/internal/cache"
)

const refreshTokenBytes = 32

// RefreshStore manages the refresh-token allowlist.
type RefreshStore struct {
	cache *cache.Cache
}

// NewRefreshStore creates a refresh-token store over the shared cache.
func NewRefreshStore(c *cache.Cache) *RefreshStore {
	return &RefreshStore{cache: c}
}

// hashRefreshToken returns the storage form of a plaintext refresh token.
func hashRefreshToken(token string) string {
	sum := sha256.Sum256([]byte(token))
	return base64.URLEncoding.EncodeToString(sum[:])
}

// Issue generates a new refresh token, adds its hash to userID's
// allowlist with the given ttl, and returns the plaintext token (to be
// set as the HTTP-only refresh cookie).
func (s *RefreshStore) Issue(ctx context.Context, userID string, ttl time.Duration) (string, error) {
	buf := make([]byte, refreshTokenBytes)
	if _, err := rand.Read(buf); err != nil {
		return "", fmt.Errorf("generate refresh token: %w", err)
	}
	token := base64.URLEncoding.EncodeToString(buf)

	if err := s.cache.SetAdd(ctx, cache.RefreshAllowKey(userID), hashRefreshToken(token), ttl); err != nil {
		return "", fmt.Errorf("store refresh token: %w", err)
	}
	return token, nil
}

// Validate reports whether token is currently on userID's allowlist.
func (s *RefreshStore) Validate(ctx context.Context, userID, token string) (bool, error) {
	return s.cache.SetIsMember(ctx, cache.RefreshAllowKey(userID), hashRefreshToken(token))
}

// Revoke removes a single refresh token from the allowlist (logout, or
// rotation after a successful refresh).
func (s *RefreshStore) Revoke(ctx context.Context, userID, token string) error {
	return s.cache.SetRemove(ctx, cache.RefreshAllowKey(userID), hashRefreshToken(token))
}

// RevokeAll drops every refresh token for userID, forcing re-login on
// all devices (password change, admin-initiated session revocation).
func (s *RefreshStore) RevokeAll(ctx context.Context, userID string) error {
	return s.cache.Delete(ctx, cache.RefreshAllowKey(userID))
}
