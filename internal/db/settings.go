package db

import (
	"context"
	"database/sql"
	"encoding/json"

	"github.com/apexbridge-tech/bugspotter/internal/apperrors"
	"github.com/apexbridge-tech/bugspotter/internal/models"
)

// SettingsRepository manages the process-wide InstanceSettings singleton
// row, seeded once by the setup wizard.
type SettingsRepository struct {
	q Queryer
}

const settingsColumns = `instance_name, instance_url, support_email, storage_backend, storage_credentials, jwt_access_expiry_seconds, jwt_refresh_expiry_seconds, rate_limit_max, rate_limit_window_seconds, cors_origins, retention_days, max_reports_per_project, session_replay_enabled, initialized`

func scanSettings(row interface{ Scan(...interface{}) error }) (*models.InstanceSettings, error) {
	s := &models.InstanceSettings{}
	err := row.Scan(&s.InstanceName, &s.InstanceURL, &s.SupportEmail, &s.StorageBackend,
		&s.StorageCredentials, &s.JWTAccessExpirySeconds, &s.JWTRefreshExpirySeconds,
		&s.RateLimitMax, &s.RateLimitWindowSeconds, &s.CORSOriginsRaw, &s.RetentionDays,
		&s.MaxReportsPerProject, &s.SessionReplayEnabled, &s.Initialized)
	if err != nil {
		return nil, err
	}
	if !s.CORSOriginsRaw.IsNull() {
		_ = json.Unmarshal(s.CORSOriginsRaw, &s.CORSOrigins)
	}
	return s, nil
}

// Get returns the singleton settings row, or nil before setup has run.
func (r *SettingsRepository) Get(ctx context.Context) (*models.InstanceSettings, error) {
	var s *models.InstanceSettings
	err := withReadRetry(ctx, func() error {
		row := r.q.QueryRowContext(ctx, "SELECT "+settingsColumns+" FROM instance_settings WHERE id = 1")
		var scanErr error
		s, scanErr = scanSettings(row)
		return scanErr
	})
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, apperrors.NewInternalError("db-settings-get", err)
	}
	return s, nil
}

// Initialize seeds the singleton row. It fails with AlreadyInitializedError
// if setup has already run, enforced by a unique row id=1 plus an explicit
// existence check so the error is typed rather than a raw constraint
// violation.
func (r *SettingsRepository) Initialize(ctx context.Context, s models.InstanceSettings) error {
	existing, err := r.Get(ctx)
	if err != nil {
		return err
	}
	if existing != nil && existing.Initialized {
		return apperrors.NewAlreadyInitializedError()
	}

	corsRaw, err := json.Marshal(s.CORSOrigins)
	if err != nil {
		return apperrors.NewValidationError("invalid cors origins")
	}
	s.Initialized = true

	_, err = r.q.ExecContext(ctx, `
		INSERT INTO instance_settings (id, instance_name, instance_url, support_email, storage_backend, storage_credentials, jwt_access_expiry_seconds, jwt_refresh_expiry_seconds, rate_limit_max, rate_limit_window_seconds, cors_origins, retention_days, max_reports_per_project, session_replay_enabled, initialized)
		VALUES (1, $1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13)
		ON CONFLICT (id) DO UPDATE SET
			instance_name = EXCLUDED.instance_name,
			instance_url = EXCLUDED.instance_url,
			support_email = EXCLUDED.support_email,
			storage_backend = EXCLUDED.storage_backend,
			storage_credentials = EXCLUDED.storage_credentials,
			jwt_access_expiry_seconds = EXCLUDED.jwt_access_expiry_seconds,
			jwt_refresh_expiry_seconds = EXCLUDED.jwt_refresh_expiry_seconds,
			rate_limit_max = EXCLUDED.rate_limit_max,
			rate_limit_window_seconds = EXCLUDED.rate_limit_window_seconds,
			cors_origins = EXCLUDED.cors_origins,
			retention_days = EXCLUDED.retention_days,
			max_reports_per_project = EXCLUDED.max_reports_per_project,
			session_replay_enabled = EXCLUDED.session_replay_enabled,
			initialized = EXCLUDED.initialized
	`, s.InstanceName, s.InstanceURL, s.SupportEmail, s.StorageBackend, []byte(s.StorageCredentials),
		s.JWTAccessExpirySeconds, s.JWTRefreshExpirySeconds, s.RateLimitMax, s.RateLimitWindowSeconds,
		corsRaw, s.RetentionDays, s.MaxReportsPerProject, s.SessionReplayEnabled, s.Initialized)
	if err != nil {
		return mapWriteError(err)
	}
	return nil
}

// Update applies changes to the singleton row post-setup (admin-only).
func (r *SettingsRepository) Update(ctx context.Context, s models.InstanceSettings) error {
	corsRaw, err := json.Marshal(s.CORSOrigins)
	if err != nil {
		return apperrors.NewValidationError("invalid cors origins")
	}
	res, err := r.q.ExecContext(ctx, `
		UPDATE instance_settings SET
			instance_name=$1, instance_url=$2, support_email=$3, rate_limit_max=$4,
			rate_limit_window_seconds=$5, cors_origins=$6, retention_days=$7,
			max_reports_per_project=$8, session_replay_enabled=$9
		WHERE id = 1
	`, s.InstanceName, s.InstanceURL, s.SupportEmail, s.RateLimitMax,
		s.RateLimitWindowSeconds, corsRaw, s.RetentionDays, s.MaxReportsPerProject, s.SessionReplayEnabled)
	if err != nil {
		return mapWriteError(err)
	}
	n, _ := res.RowsAffected()
	if n == 0 {
		return apperrors.NewNotFoundError("instance settings")
	}
	return nil
}
