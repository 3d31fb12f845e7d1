// Package config loads BugSpotter's process configuration once at startup
// into an explicit Config struct. There is no package-level singleton:
// every component that needs configuration receives it through its
// constructor, so tests can build isolated instances side by side.
package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

// Config is the fully resolved process configuration. It is loaded by
// Load, which reads environment variables (optionally populated from a
// .env file), then applies an optional YAML overlay for values that are
// cumbersome to express as environment variables.
type Config struct {
	Port    string
	NodeEnv string

	DatabaseURL           string
	DBPoolMin             int
	DBPoolMax             int
	DBConnectionTimeoutMs int
	DBIdleTimeoutMs       int

	JWTSecret            string
	JWTExpiresIn         string
	JWTRefreshExpiresIn  string

	StorageBackend   string
	StorageBaseDir   string
	StorageBaseURL   string
	S3Endpoint       string
	S3Region         string
	S3Bucket         string
	AWSAccessKeyID   string
	AWSSecretKey     string
	S3ForcePathStyle bool
	S3SSE            string
	S3SSEKMSKeyID    string
	S3StorageClass   string

	RedisURL string

	CORSOrigins []string

	RateLimitMax        int
	RateLimitTimeWindow int

	// SessionIdleTimeoutMinutes logs a dashboard user out after this many
	// minutes of no authenticated requests.
	SessionIdleTimeoutMinutes int

	LogLevel  string
	LogPretty bool

	// QueueBackpressureThreshold is the default waiting-job ceiling for
	// the ingestion-adjacent queues (screenshots, replays) above which
	// ingestion returns 503 QueueBackpressure.
	QueueBackpressureThreshold int

	// RetentionScheduleHour/Minute is the instance-local time the
	// retention scheduler fires (default 02:00).
	RetentionScheduleHour   int
	RetentionScheduleMinute int

	// NATSUrl, when set, enables the NATS publish-only notification sink.
	NATSUrl string

	// OIDC*, when OIDCProviderURL is set, configure the single external
	// OIDC identity provider BugSpotter links dashboard logins to.
	OIDCProviderURL  string
	OIDCClientID     string
	OIDCClientSecret string
	OIDCRedirectURI  string

	// SAML*, when SAMLMetadataURL or SAMLMetadataXMLPath is set, configure
	// the single external SAML identity provider. The SP signing
	// certificate/key are read from the given file paths.
	SAMLEntityID          string
	SAMLACSURL            string
	SAMLMetadataURL       string
	SAMLMetadataXMLPath   string
	SAMLCertPath          string
	SAMLKeyPath           string
	SAMLEmailAttribute    string
	SAMLUsernameAttribute string
}

// yamlOverlay mirrors the subset of Config that is more natural to express
// as a static file: CORS origin lists and other static instance defaults.
type yamlOverlay struct {
	CORSOrigins []string `yaml:"cors_origins"`
}

// Load reads configuration from the environment, optionally loading a
// .env file first (ignored if absent — local development convenience
// only), then applies a YAML overlay if yamlPath is non-empty. It
// validates eagerly: an invalid configuration is returned as an error,
// and the caller (cmd/server) must exit(1) on it per the spec's startup
// failure contract.
func Load(yamlPath string) (*Config, error) {
	_ = godotenv.Load() // best-effort; absence of .env is not an error

	cfg := &Config{
		Port:                  getEnv("PORT", "8080"),
		NodeEnv:               getEnv("NODE_ENV", "development"),
		DatabaseURL:           os.Getenv("DATABASE_URL"),
		DBPoolMin:             getEnvInt("DB_POOL_MIN", 2),
		DBPoolMax:             getEnvInt("DB_POOL_MAX", 10),
		DBConnectionTimeoutMs: getEnvInt("DB_CONNECTION_TIMEOUT_MS", 5000),
		DBIdleTimeoutMs:       getEnvInt("DB_IDLE_TIMEOUT_MS", 30000),
		JWTSecret:             os.Getenv("JWT_SECRET"),
		JWTExpiresIn:          getEnv("JWT_EXPIRES_IN", "1h"),
		JWTRefreshExpiresIn:   getEnv("JWT_REFRESH_EXPIRES_IN", "168h"),
		StorageBackend:        getEnv("STORAGE_BACKEND", "local"),
		StorageBaseDir:        getEnv("STORAGE_BASE_DIR", "./data/storage"),
		StorageBaseURL:        getEnv("STORAGE_BASE_URL", "http://localhost:8080/storage"),
		S3Endpoint:            os.Getenv("S3_ENDPOINT"),
		S3Region:              os.Getenv("S3_REGION"),
		S3Bucket:              os.Getenv("S3_BUCKET"),
		AWSAccessKeyID:        os.Getenv("AWS_ACCESS_KEY_ID"),
		AWSSecretKey:          os.Getenv("AWS_SECRET_ACCESS_KEY"),
		S3ForcePathStyle:      getEnv("S3_FORCE_PATH_STYLE", "false") == "true",
		S3SSE:                 os.Getenv("S3_SSE"),
		S3SSEKMSKeyID:         os.Getenv("S3_SSE_KMS_KEY_ID"),
		S3StorageClass:        getEnv("S3_STORAGE_CLASS", "STANDARD"),
		RedisURL:              getEnv("REDIS_URL", "redis://localhost:6379"),
		CORSOrigins:           splitCSV(getEnv("CORS_ORIGINS", "")),
		RateLimitMax:          getEnvInt("RATE_LIMIT_MAX", 100),
		RateLimitTimeWindow:   getEnvInt("RATE_LIMIT_TIME_WINDOW", 60),
		SessionIdleTimeoutMinutes: getEnvInt("SESSION_IDLE_TIMEOUT_MINUTES", 30),
		LogLevel:              getEnv("LOG_LEVEL", "info"),
		LogPretty:             getEnv("NODE_ENV", "development") != "production",
		QueueBackpressureThreshold: getEnvInt("QUEUE_BACKPRESSURE_THRESHOLD", 500),
		RetentionScheduleHour:      getEnvInt("RETENTION_SCHEDULE_HOUR", 2),
		RetentionScheduleMinute:    getEnvInt("RETENTION_SCHEDULE_MINUTE", 0),
		NATSUrl:                    os.Getenv("NATS_URL"),
		OIDCProviderURL:            os.Getenv("OIDC_PROVIDER_URL"),
		OIDCClientID:               os.Getenv("OIDC_CLIENT_ID"),
		OIDCClientSecret:           os.Getenv("OIDC_CLIENT_SECRET"),
		OIDCRedirectURI:            os.Getenv("OIDC_REDIRECT_URI"),
		SAMLEntityID:               os.Getenv("SAML_ENTITY_ID"),
		SAMLACSURL:                 os.Getenv("SAML_ACS_URL"),
		SAMLMetadataURL:            os.Getenv("SAML_METADATA_URL"),
		SAMLMetadataXMLPath:        os.Getenv("SAML_METADATA_XML_PATH"),
		SAMLCertPath:               os.Getenv("SAML_CERT_PATH"),
		SAMLKeyPath:                os.Getenv("SAML_KEY_PATH"),
		SAMLEmailAttribute:         os.Getenv("SAML_EMAIL_ATTRIBUTE"),
		SAMLUsernameAttribute:      os.Getenv("SAML_USERNAME_ATTRIBUTE"),
	}

	if yamlPath != "" {
		if err := applyYAMLOverlay(cfg, yamlPath); err != nil {
			return nil, fmt.Errorf("config: yaml overlay: %w", err)
		}
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func applyYAMLOverlay(cfg *Config, path string) error {
	data, err := os.ReadFile(path)
	if os.IsNotExist(err) {
		return nil
	}
	if err != nil {
		return err
	}
	var overlay yamlOverlay
	if err := yaml.Unmarshal(data, &overlay); err != nil {
		return err
	}
	if len(overlay.CORSOrigins) > 0 {
		cfg.CORSOrigins = overlay.CORSOrigins
	}
	return nil
}

// Validate checks the invariants the spec requires at startup. An error
// here is a startup failure (exit code 1).
func (c *Config) Validate() error {
	if c.DatabaseURL == "" {
		return fmt.Errorf("config: DATABASE_URL is required")
	}
	if len(c.JWTSecret) < 32 {
		return fmt.Errorf("config: JWT_SECRET must be at least 32 bytes")
	}
	switch c.StorageBackend {
	case "local":
	case "s3":
		if c.S3Bucket == "" || c.S3Region == "" {
			return fmt.Errorf("config: S3_BUCKET and S3_REGION are required when STORAGE_BACKEND=s3")
		}
	default:
		return fmt.Errorf("config: STORAGE_BACKEND must be one of local, s3")
	}
	if c.DBPoolMin < 0 || c.DBPoolMax < c.DBPoolMin {
		return fmt.Errorf("config: invalid DB pool bounds (min=%d max=%d)", c.DBPoolMin, c.DBPoolMax)
	}
	return nil
}

func getEnv(key, defaultValue string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return defaultValue
}

func getEnvInt(key string, defaultValue int) int {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			return n
		}
	}
	return defaultValue
}

func splitCSV(v string) []string {
	if v == "" {
		return nil
	}
	parts := strings.Split(v, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		p = strings.TrimSpace(p)
		if p != "" {
			out = append(out, p)
		}
	}
	return out
}
