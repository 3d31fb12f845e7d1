package models

// InstanceSettings is the process-wide singleton configuration row, seeded
// by the setup wizard (C10) and editable only by admins thereafter.
type InstanceSettings struct {
	InstanceName           string   `json:"instanceName" db:"instance_name"`
	InstanceURL             string   `json:"instanceUrl" db:"instance_url"`
	SupportEmail           string   `json:"supportEmail" db:"support_email"`
	StorageBackend          string   `json:"storageBackend" db:"storage_backend"`
	StorageCredentials      RawJSON  `json:"-" db:"storage_credentials"`
	JWTAccessExpirySeconds  int      `json:"jwtAccessExpirySeconds" db:"jwt_access_expiry_seconds"`
	JWTRefreshExpirySeconds int      `json:"jwtRefreshExpirySeconds" db:"jwt_refresh_expiry_seconds"`
	RateLimitMax            int      `json:"rateLimitMax" db:"rate_limit_max"`
	RateLimitWindowSeconds  int      `json:"rateLimitWindowSeconds" db:"rate_limit_window_seconds"`
	CORSOrigins             []string `json:"corsOrigins" db:"-"`
	CORSOriginsRaw          RawJSON  `json:"-" db:"cors_origins"`
	RetentionDays           int      `json:"retentionDays" db:"retention_days"`
	MaxReportsPerProject    int      `json:"maxReportsPerProject" db:"max_reports_per_project"`
	SessionReplayEnabled    bool     `json:"sessionReplayEnabled" db:"session_replay_enabled"`
	Initialized             bool     `json:"initialized" db:"initialized"`
}

// SetupRequest is the payload for POST /api/v1/setup/initialize.
type SetupRequest struct {
	InstanceName  string          `json:"instanceName" binding:"required,min=1,max=200"`
	InstanceURL   string          `json:"instanceUrl" binding:"required,url"`
	SupportEmail  string          `json:"supportEmail" binding:"required,email"`
	AdminEmail    string          `json:"adminEmail" binding:"required,email"`
	AdminName     string          `json:"adminName" binding:"required,min=1,max=200"`
	AdminPassword string          `json:"adminPassword" binding:"required,min=8,password"`
	Storage       StorageSetup    `json:"storage" binding:"required"`
}

// StorageSetup carries the storage backend selection made during setup.
// Before settings are written the backend is constructed: a local
// directory gets a write-and-remove probe, an S3 configuration is not
// contacted.
type StorageSetup struct {
	Backend      string `json:"backend" binding:"required,oneof=local s3"`
	BaseDir      string `json:"baseDir"`
	BaseURL      string `json:"baseUrl"`
	S3Endpoint   string `json:"s3Endpoint"`
	S3Region     string `json:"s3Region"`
	S3Bucket     string `json:"s3Bucket"`
	S3AccessKey  string `json:"s3AccessKey"`
	S3SecretKey  string `json:"s3SecretKey"`
	ForcePathStyle bool `json:"forcePathStyle"`
}

// SetupStatus is the response to GET /api/v1/setup/status.
type SetupStatus struct {
	Initialized bool `json:"initialized"`
}
