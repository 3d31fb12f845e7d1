package handlers

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/apexbridge-tech/bugspotter/internal/apperrors"
	"github.com/apexbridge-tech/bugspotter/internal/db"
	"github.com/apexbridge-tech/bugspotter/internal/queue"
	"github.com/apexbridge-tech/bugspotter/internal/storage"
)

const storageProbeKey = ".health-check-probe"

// HealthHandler serves the liveness/readiness probes and the admin
// operational metrics endpoint.
type HealthHandler struct {
	db        *db.Database
	storage   storage.Storage
	queues    *queue.Queues
	startedAt time.Time
}

// NewHealthHandler builds the health handler. startedAt is process start
// time, used to report uptime.
func NewHealthHandler(database *db.Database, store storage.Storage, queues *queue.Queues, startedAt time.Time) *HealthHandler {
	return &HealthHandler{db: database, storage: store, queues: queues, startedAt: startedAt}
}

// RegisterRoutes mounts /health (liveness, no dependency checks) and
// /ready (checks every backing service) at the router root, plus an
// admin-only metrics endpoint under the API group.
func (h *HealthHandler) RegisterRoutes(root *gin.Engine, apiGroup *gin.RouterGroup, userMW, adminMW gin.HandlerFunc) {
	root.GET("/health", h.Liveness)
	root.GET("/ready", h.Readiness)
	apiGroup.GET("/admin/metrics", userMW, adminMW, h.Metrics)
}

// Liveness always returns 200 once the process is serving requests.
func (h *HealthHandler) Liveness(c *gin.Context) {
	respondOK(c, http.StatusOK, gin.H{"status": "ok"})
}

// Readiness checks the database, object storage, and queue backend in
// turn and fails fast on the first unreachable dependency.
func (h *HealthHandler) Readiness(c *gin.Context) {
	if err := h.db.Ping(c.Request.Context()); err != nil {
		respondError(c, apperrors.NewStorageConnectionError(err))
		return
	}

	// HeadObject on an absent key returns (nil, nil) when the backend is
	// reachable; only a genuine connectivity failure returns an error.
	if _, err := h.storage.HeadObject(c.Request.Context(), storageProbeKey); err != nil {
		respondError(c, err)
		return
	}

	if !h.queues.HealthCheck(c.Request.Context()) {
		respondError(c, apperrors.NewQueueUnavailableError(nil))
		return
	}

	respondOK(c, http.StatusOK, gin.H{"status": "ready"})
}

// Metrics reports queue depths and process uptime for operators.
func (h *HealthHandler) Metrics(c *gin.Context) {
	metrics := gin.H{"uptimeSeconds": int64(time.Since(h.startedAt).Seconds())}
	for _, q := range []string{queue.Screenshots, queue.Replays, queue.Integrations, queue.Notifications} {
		m, err := h.queues.GetQueueMetrics(c.Request.Context(), q)
		if err != nil {
			respondError(c, err)
			return
		}
		metrics[q] = m
	}
	respondOK(c, http.StatusOK, metrics)
}
