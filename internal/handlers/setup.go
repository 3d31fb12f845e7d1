package handlers

import (
	"context"
	"encoding/json"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/apexbridge-tech/bugspotter/internal/apperrors"
	"github.com/apexbridge-tech/bugspotter/internal/db"
	"github.com/apexbridge-tech/bugspotter/internal/logger"
	"github.com/apexbridge-tech/bugspotter/internal/models"
	"github.com/apexbridge-tech/bugspotter/internal/storage"
)

// SetupHandler serves the first-run wizard that seeds InstanceSettings
// and the initial admin account in one transaction.
type SetupHandler struct {
	db *db.Database
}

// NewSetupHandler builds the setup handler.
func NewSetupHandler(database *db.Database) *SetupHandler {
	return &SetupHandler{db: database}
}

// RegisterRoutes mounts the setup endpoints. These run before any
// credential exists, so neither RequireUser nor RequireProjectAPIKey guard
// them.
func (h *SetupHandler) RegisterRoutes(router *gin.RouterGroup) {
	router.GET("/setup/status", h.GetStatus)
	router.POST("/setup/initialize", h.Initialize)
}

// GetStatus reports whether the instance has completed setup.
func (h *SetupHandler) GetStatus(c *gin.Context) {
	settings, err := h.db.Settings.Get(c.Request.Context())
	if err != nil {
		respondError(c, err)
		return
	}
	respondOK(c, http.StatusOK, models.SetupStatus{Initialized: settings != nil && settings.Initialized})
}

// Initialize probes the requested storage backend, then writes the
// instance settings and admin user atomically. A second call after setup
// has completed fails with AlreadyInitializedError.
func (h *SetupHandler) Initialize(c *gin.Context) {
	var req models.SetupRequest
	if !bindJSON(c, &req) {
		return
	}

	if _, err := probeStorage(c.Request.Context(), req.Storage); err != nil {
		respondError(c, err)
		return
	}

	creds, err := storageCredentialsJSON(req.Storage)
	if err != nil {
		respondError(c, err)
		return
	}

	var admin *models.User
	err = h.db.Transaction(c.Request.Context(), func(tx *db.Database) error {
		settings := models.InstanceSettings{
			InstanceName:       req.InstanceName,
			InstanceURL:        req.InstanceURL,
			SupportEmail:       req.SupportEmail,
			StorageBackend:     req.Storage.Backend,
			StorageCredentials: creds,
			JWTAccessExpirySeconds:  3600,
			JWTRefreshExpirySeconds: 30 * 24 * 3600,
			RateLimitMax:           100,
			RateLimitWindowSeconds: 60,
			CORSOrigins:            []string{req.InstanceURL},
			RetentionDays:          90,
			MaxReportsPerProject:   0,
			SessionReplayEnabled:   true,
		}
		if err := tx.Settings.Initialize(c.Request.Context(), settings); err != nil {
			return err
		}

		user, err := tx.Users.Create(c.Request.Context(), models.UserCreate{
			Email:    req.AdminEmail,
			Name:     req.AdminName,
			Password: req.AdminPassword,
			Role:     models.RoleAdmin,
		})
		if err != nil {
			return err
		}
		admin = user
		return nil
	})
	if err != nil {
		respondError(c, err)
		return
	}

	logger.Security().Info().Str("adminEmail", admin.Email).Msg("instance setup completed")
	respondOK(c, http.StatusCreated, admin)
}

// probeStorage constructs the requested backend and reports any
// construction error. For local storage the constructor creates the
// directory and writes and removes a probe file; nothing is read back.
// For S3 it only builds the client and sends no request, so wrong
// credentials or a missing bucket are not detected here.
func probeStorage(ctx context.Context, s models.StorageSetup) (storage.Storage, error) {
	switch s.Backend {
	case "local":
		baseDir := s.BaseDir
		if baseDir == "" {
			baseDir = "./data/storage"
		}
		store, err := storage.NewLocalStorage(baseDir, s.BaseURL)
		if err != nil {
			return nil, apperrors.NewStorageConnectionError(err)
		}
		return store, nil
	case "s3":
		store, err := storage.NewS3Storage(ctx, storage.S3Config{
			Endpoint:        s.S3Endpoint,
			Region:          s.S3Region,
			Bucket:          s.S3Bucket,
			AccessKeyID:     s.S3AccessKey,
			SecretAccessKey: s.S3SecretKey,
			ForcePathStyle:  s.ForcePathStyle,
		})
		if err != nil {
			return nil, apperrors.NewStorageConnectionError(err)
		}
		return store, nil
	default:
		return nil, apperrors.NewValidationError("unsupported storage backend: " + s.Backend)
	}
}

func storageCredentialsJSON(s models.StorageSetup) (models.RawJSON, error) {
	var raw []byte
	var err error
	switch s.Backend {
	case "s3":
		raw, err = json.Marshal(map[string]interface{}{
			"endpoint":       s.S3Endpoint,
			"region":         s.S3Region,
			"bucket":         s.S3Bucket,
			"accessKey":      s.S3AccessKey,
			"secretKey":      s.S3SecretKey,
			"forcePathStyle": s.ForcePathStyle,
		})
	default:
		raw, err = json.Marshal(map[string]interface{}{
			"baseDir": s.BaseDir,
			"baseUrl": s.BaseURL,
		})
	}
	if err != nil {
		return nil, apperrors.NewValidationError("invalid storage configuration")
	}
	return models.RawJSON(raw), nil
}
