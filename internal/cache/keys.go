package cache

import "fmt"

// Key prefixes for different resource types.
const (
	PrefixRefreshAllow = "refresh"
	PrefixProject      = "project"
	PrefixUser         = "user"
	PrefixRateLimit    = "ratelimit"
	PrefixSettings     = "settings"
)

// RefreshAllowKey is the per-user set of currently-valid refresh token
// hashes. Presence of a hash in this set is what makes a refresh token
// usable; logout and rotation remove it.
func RefreshAllowKey(userID string) string {
	return fmt.Sprintf("%s:user:%s", PrefixRefreshAllow, userID)
}

// ProjectByAPIKeyKey is the cache key for a project looked up by API key.
// db.ProjectRepository.FindByAPIKey neither reads nor writes it; every
// lookup queries the database.
func ProjectByAPIKeyKey(apiKey string) string {
	return fmt.Sprintf("%s:apikey:%s", PrefixProject, apiKey)
}

// UserKey caches a user row by id.
func UserKey(userID string) string {
	return fmt.Sprintf("%s:%s", PrefixUser, userID)
}

// RateLimitKey is the token-bucket state key for a given subject (a
// project id for ingestion, a user id for dashboard endpoints).
func RateLimitKey(subject string) string {
	return fmt.Sprintf("%s:%s", PrefixRateLimit, subject)
}

// SettingsKey caches the InstanceSettings singleton.
func SettingsKey() string {
	return fmt.Sprintf("%s:instance", PrefixSettings)
}

// RetentionLockKey is a Redis key name for a retention-run lock. The
// retention scheduler does not use it: it prevents overlapping runs with
// the Postgres advisory lock db.RetentionLockKey.
func RetentionLockKey() string {
	return "retention:scheduler:lock"
}
