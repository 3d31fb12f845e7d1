package handlers

import (
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/apexbridge-tech/bugspotter/internal/audit"
	"github.com/apexbridge-tech/bugspotter/internal/auth"
	"github.com/apexbridge-tech/bugspotter/internal/db"
	"github.com/apexbridge-tech/bugspotter/internal/middleware"
	"github.com/apexbridge-tech/bugspotter/internal/queue"
	"github.com/apexbridge-tech/bugspotter/internal/retention"
	"github.com/apexbridge-tech/bugspotter/internal/storage"
)

// chain composes gin middleware into a single handler, stopping at the
// first one that aborts the context.
func chain(mws ...gin.HandlerFunc) gin.HandlerFunc {
	return func(c *gin.Context) {
		for _, mw := range mws {
			mw(c)
			if c.IsAborted() {
				return
			}
		}
	}
}

// Dependencies bundles everything the router needs to construct every
// resource handler. cmd/server builds one of these at startup and passes
// it to NewRouter.
type Dependencies struct {
	DB            *db.Database
	Storage       storage.Storage
	Queues        *queue.Queues
	RetentionEngine *retention.Engine
	AuditPipeline *audit.Pipeline
	JWTManager    *auth.JWTManager
	RefreshStore  *auth.RefreshStore
	OIDC          *auth.OIDCAuthenticator
	SAML          *auth.SAMLAuthenticator
	ProjectRateLimiter *middleware.ProjectRateLimiter
	CookieSecure  bool
	CORSOrigins   func() []string
	QueueBackpressureThreshold int
	SessionIdleTimeout time.Duration
	StartedAt     time.Time
}

// NewRouter builds the full gin.Engine: global middleware, then every
// resource's RegisterRoutes under /api/v1, following the same
// per-file-owns-its-routes convention each handler uses.
func NewRouter(deps Dependencies) *gin.Engine {
	router := gin.New()
	router.Use(gin.Recovery())
	router.Use(middleware.RequestID())
	router.Use(middleware.StructuredLogger())
	router.Use(middleware.CORS(deps.CORSOrigins))
	router.Use(middleware.SecurityHeaders())
	router.Use(middleware.DefaultSizeLimiter())
	router.Use(middleware.Gzip(5))
	router.Use(middleware.NewAuditLogger(deps.AuditPipeline, false).Middleware())
	router.Use(middleware.CSRFProtection())

	sessionManager := middleware.NewSessionManager(deps.SessionIdleTimeout)
	userMW := chain(auth.RequireUser(deps.JWTManager, deps.DB.Users), sessionManager.IdleTimeoutMiddleware())
	apiKeyMW := deps.apiKeyMiddleware()
	adminMW := middleware.RequireAdmin()
	projectRateLimit := deps.ProjectRateLimiter.Middleware()

	api := router.Group("/api/v1")

	NewSetupHandler(deps.DB).RegisterRoutes(api)
	NewAuthHandler(deps.DB.Users, deps.JWTManager, deps.RefreshStore, deps.OIDC, deps.SAML, deps.CookieSecure).RegisterRoutes(api)

	NewReportsHandler(deps.DB.BugReports, deps.DB.Sessions, deps.DB.Projects, deps.Storage, deps.Queues, deps.QueueBackpressureThreshold).
		RegisterRoutes(api, apiKeyMW, projectRateLimit, userMW)
	NewProjectsHandler(deps.DB.Projects, deps.DB.BugReports, deps.Storage).RegisterRoutes(api, userMW)
	NewSessionsHandler(deps.DB.Sessions, deps.DB.BugReports, deps.DB.Projects).RegisterRoutes(api, userMW)
	NewTicketsHandler(deps.DB.Tickets, deps.DB.BugReports, deps.DB.Projects, deps.Queues).RegisterRoutes(api, userMW)

	NewUsersHandler(deps.DB.Users).RegisterRoutes(api, userMW, adminMW)
	NewAuditLogsHandler(deps.DB.AuditLogs).RegisterRoutes(api, userMW, adminMW)
	NewRetentionHandler(deps.DB.RetentionPolicies, deps.RetentionEngine).RegisterRoutes(api, userMW, adminMW)
	NewSettingsHandler(deps.DB.Settings).RegisterRoutes(api, userMW, adminMW)

	NewHealthHandler(deps.DB, deps.Storage, deps.Queues, deps.StartedAt).RegisterRoutes(router, api, userMW, adminMW)

	// Raw Prometheus exposition, scraped by the instance's metrics
	// collector; the JSON summary at /api/v1/admin/metrics is for the
	// dashboard, this is for Prometheus itself.
	router.GET("/metrics", gin.WrapH(promhttp.Handler()))

	return router
}

// apiKeyMiddleware builds the project API-key middleware over the shared
// project repository.
func (d Dependencies) apiKeyMiddleware() gin.HandlerFunc {
	return auth.RequireProjectAPIKey(d.DB.Projects)
}
