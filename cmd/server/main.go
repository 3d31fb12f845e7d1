package main

import (
	"context"
	"crypto/rsa"
	"crypto/x509"
	"encoding/pem"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/apexbridge-tech/bugspotter/internal/audit"
	"github.com/apexbridge-tech/bugspotter/internal/auth"
	"github.com/apexbridge-tech/bugspotter/internal/cache"
	"github.com/apexbridge-tech/bugspotter/internal/config"
	"github.com/apexbridge-tech/bugspotter/internal/db"
	"github.com/apexbridge-tech/bugspotter/internal/handlers"
	"github.com/apexbridge-tech/bugspotter/internal/logger"
	"github.com/apexbridge-tech/bugspotter/internal/middleware"
	"github.com/apexbridge-tech/bugspotter/internal/notify"
	"github.com/apexbridge-tech/bugspotter/internal/queue"
	"github.com/apexbridge-tech/bugspotter/internal/retention"
	"github.com/apexbridge-tech/bugspotter/internal/storage"
	"github.com/apexbridge-tech/bugspotter/internal/validator"
	"github.com/apexbridge-tech/bugspotter/internal/workers"
)

func main() {
	startedAt := time.Now()

	cfg, err := config.Load(os.Getenv("CONFIG_YAML_PATH"))
	if err != nil {
		fmt.Fprintf(os.Stderr, "config: %v\n", err)
		os.Exit(1)
	}

	logger.Initialize(cfg.LogLevel, cfg.LogPretty)
	log := logger.GetLogger()

	validator.Register()

	database, err := db.NewDatabase(db.Config{
		DatabaseURL:         cfg.DatabaseURL,
		PoolMin:             cfg.DBPoolMin,
		PoolMax:             cfg.DBPoolMax,
		ConnectionTimeoutMs: cfg.DBConnectionTimeoutMs,
		IdleTimeoutMs:       cfg.DBIdleTimeoutMs,
	})
	if err != nil {
		log.Fatal().Err(err).Msg("failed to connect to database")
	}
	defer database.Close()

	if err := database.Migrate(); err != nil {
		log.Fatal().Err(err).Msg("failed to run migrations")
	}

	redisCache, err := cache.NewCache(cache.Config{URL: cfg.RedisURL, Enabled: true})
	if err != nil {
		log.Fatal().Err(err).Msg("failed to connect to redis")
	}
	defer redisCache.Close()

	store, err := newStorage(cfg)
	if err != nil {
		log.Fatal().Err(err).Msg("failed to initialize object storage")
	}

	queues := queue.New(redisCache.Client())

	auditPipeline := audit.New(database.AuditLogs)
	defer auditPipeline.Stop()

	jwtManager := auth.NewJWTManager(auth.JWTConfig{
		SecretKey: cfg.JWTSecret,
		Issuer:    "bugspotter",
		Expiry:    jwtExpiry(cfg.JWTExpiresIn),
	})
	refreshStore := auth.NewRefreshStore(redisCache)

	oidcAuth, err := newOIDC(cfg)
	if err != nil {
		log.Fatal().Err(err).Msg("failed to initialize oidc authenticator")
	}
	samlAuth, err := newSAML(cfg)
	if err != nil {
		log.Fatal().Err(err).Msg("failed to initialize saml authenticator")
	}

	retentionEngine := retention.NewEngine(database, store)
	retentionSpec := fmt.Sprintf("%d %d * * *", cfg.RetentionScheduleMinute, cfg.RetentionScheduleHour)
	scheduler, err := retention.NewScheduler(retentionEngine, database, retentionSpec)
	if err != nil {
		log.Fatal().Err(err).Msg("failed to build retention scheduler")
	}
	scheduler.Start()
	defer scheduler.Stop()

	notifySink, closeSink := newNotifySink(cfg)
	if closeSink != nil {
		defer closeSink()
	}

	pool := queue.NewWorkerPool(queues)
	pool.Register(queue.Screenshots, 4, workers.NewScreenshotWorker(store, database.BugReports).Handle)
	pool.Register(queue.Replays, 4, workers.NewReplayWorker(store, database.Sessions, database.BugReports).Handle)
	pool.Register(queue.Notifications, 2, workers.NewNotificationWorker(notifySink).Handle)
	pool.Start()
	defer pool.Stop()

	rateLimiter := middleware.NewProjectRateLimiter(func() (int, time.Duration) {
		settings, err := database.Settings.Get(context.Background())
		if err != nil {
			return cfg.RateLimitMax, time.Duration(cfg.RateLimitTimeWindow) * time.Second
		}
		return settings.RateLimitMax, time.Duration(settings.RateLimitWindowSeconds) * time.Second
	})

	corsOrigins := func() []string {
		settings, err := database.Settings.Get(context.Background())
		if err != nil || len(settings.CORSOrigins) == 0 {
			return cfg.CORSOrigins
		}
		return settings.CORSOrigins
	}

	router := handlers.NewRouter(handlers.Dependencies{
		DB:                         database,
		Storage:                    store,
		Queues:                     queues,
		RetentionEngine:            retentionEngine,
		AuditPipeline:              auditPipeline,
		JWTManager:                 jwtManager,
		RefreshStore:               refreshStore,
		OIDC:                       oidcAuth,
		SAML:                       samlAuth,
		ProjectRateLimiter:         rateLimiter,
		CookieSecure:               cfg.NodeEnv == "production",
		CORSOrigins:                corsOrigins,
		QueueBackpressureThreshold: cfg.QueueBackpressureThreshold,
		SessionIdleTimeout:         time.Duration(cfg.SessionIdleTimeoutMinutes) * time.Minute,
		StartedAt:                  startedAt,
	})

	if cfg.NodeEnv == "production" {
		gin.SetMode(gin.ReleaseMode)
	}

	srv := &http.Server{
		Addr:              fmt.Sprintf(":%s", cfg.Port),
		Handler:           router,
		ReadTimeout:       15 * time.Second,
		ReadHeaderTimeout: 5 * time.Second,
		WriteTimeout:      30 * time.Second,
		IdleTimeout:       120 * time.Second,
		MaxHeaderBytes:    1 << 20,
	}

	go func() {
		log.Info().Str("port", cfg.Port).Msg("bugspotter api listening")
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatal().Err(err).Msg("http server failed")
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	sig := <-quit
	log.Info().Str("signal", sig.String()).Msg("shutting down")

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	if err := srv.Shutdown(ctx); err != nil {
		log.Error().Err(err).Msg("http server forced to shutdown")
	}
}

func jwtExpiry(raw string) func() time.Duration {
	d, err := time.ParseDuration(raw)
	if err != nil {
		d = time.Hour
	}
	return func() time.Duration { return d }
}

// newNotifySink builds the notifications queue's delivery sink: NATS when
// configured, otherwise a log sink. The returned close func is nil for the
// log sink, which owns no resources.
func newNotifySink(cfg *config.Config) (notify.Sink, func()) {
	if cfg.NATSUrl == "" {
		return notify.NewLogSink(), nil
	}
	sink, err := notify.NewNATSSink(cfg.NATSUrl)
	if err != nil {
		logger.GetLogger().Warn().Err(err).Msg("notify: falling back to log sink, nats unavailable")
		return notify.NewLogSink(), nil
	}
	return sink, sink.Close
}

func newStorage(cfg *config.Config) (storage.Storage, error) {
	switch cfg.StorageBackend {
	case "s3":
		return storage.NewS3Storage(context.Background(), storage.S3Config{
			Bucket:          cfg.S3Bucket,
			Region:          cfg.S3Region,
			Endpoint:        cfg.S3Endpoint,
			AccessKeyID:     cfg.AWSAccessKeyID,
			SecretAccessKey: cfg.AWSSecretKey,
			ForcePathStyle:  cfg.S3ForcePathStyle,
			SSE:             cfg.S3SSE,
			SSEKMSKeyID:     cfg.S3SSEKMSKeyID,
			StorageClass:    cfg.S3StorageClass,
		})
	default:
		return storage.NewLocalStorage(cfg.StorageBaseDir, cfg.StorageBaseURL)
	}
}

// newOIDC builds the OIDC authenticator when configured; BugSpotter
// supports at most one external OIDC provider instance-wide.
func newOIDC(cfg *config.Config) (*auth.OIDCAuthenticator, error) {
	if cfg.OIDCProviderURL == "" {
		return nil, nil
	}
	return auth.NewOIDCAuthenticator(context.Background(), auth.OIDCConfig{
		ProviderURL:  cfg.OIDCProviderURL,
		ClientID:     cfg.OIDCClientID,
		ClientSecret: cfg.OIDCClientSecret,
		RedirectURI:  cfg.OIDCRedirectURI,
		Scopes:       []string{"openid", "email", "profile"},
	})
}

// newSAML builds the SAML authenticator when configured, reading the SP
// signing certificate and key from disk.
func newSAML(cfg *config.Config) (*auth.SAMLAuthenticator, error) {
	if cfg.SAMLMetadataURL == "" && cfg.SAMLMetadataXMLPath == "" {
		return nil, nil
	}

	var metadataXML []byte
	if cfg.SAMLMetadataXMLPath != "" {
		data, err := os.ReadFile(cfg.SAMLMetadataXMLPath)
		if err != nil {
			return nil, fmt.Errorf("saml: read metadata xml: %w", err)
		}
		metadataXML = data
	}

	cert, key, err := loadSAMLKeyPair(cfg.SAMLCertPath, cfg.SAMLKeyPath)
	if err != nil {
		return nil, err
	}

	return auth.NewSAMLAuthenticator(auth.SAMLConfig{
		EntityID:          cfg.SAMLEntityID,
		ACSURL:            cfg.SAMLACSURL,
		MetadataURL:       cfg.SAMLMetadataURL,
		MetadataXML:       metadataXML,
		Certificate:       cert,
		PrivateKey:        key,
		EmailAttribute:    cfg.SAMLEmailAttribute,
		UsernameAttribute: cfg.SAMLUsernameAttribute,
	})
}

func loadSAMLKeyPair(certPath, keyPath string) (*x509.Certificate, *rsa.PrivateKey, error) {
	certPEM, err := os.ReadFile(certPath)
	if err != nil {
		return nil, nil, fmt.Errorf("saml: read cert: %w", err)
	}
	certBlock, _ := pem.Decode(certPEM)
	if certBlock == nil {
		return nil, nil, fmt.Errorf("saml: invalid cert pem at %s", certPath)
	}
	cert, err := x509.ParseCertificate(certBlock.Bytes)
	if err != nil {
		return nil, nil, fmt.Errorf("saml: parse cert: %w", err)
	}

	keyPEM, err := os.ReadFile(keyPath)
	if err != nil {
		return nil, nil, fmt.Errorf("saml: read key: %w", err)
	}
	keyBlock, _ := pem.Decode(keyPEM)
	if keyBlock == nil {
		return nil, nil, fmt.Errorf("saml: invalid key pem at %s", keyPath)
	}
	key, err := x509.ParsePKCS1PrivateKey(keyBlock.Bytes)
	if err != nil {
		return nil, nil, fmt.Errorf("saml: parse key: %w", err)
	}

	return cert, key, nil
}
