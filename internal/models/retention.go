package models

// ComplianceRegion is a regulatory jurisdiction affecting minimum retention.
type ComplianceRegion string

const (
	RegionNone ComplianceRegion = "none"
	RegionEU   ComplianceRegion = "eu"
	RegionUS   ComplianceRegion = "us"
	RegionKZ   ComplianceRegion = "kz"
	RegionUK   ComplianceRegion = "uk"
	RegionCA   ComplianceRegion = "ca"
)

// Tier is a commercial plan determining the retention ceiling.
type Tier string

const (
	TierFree         Tier = "free"
	TierProfessional Tier = "professional"
	TierEnterprise   Tier = "enterprise"
)

// RetentionPolicy is a per-project override of the global retention
// defaults. Every duration must sit between the compliance floor for
// (Region, DataClassification) and the ceiling for Tier; see
// internal/retention for the resolution algorithm.
type RetentionPolicy struct {
	ProjectID               string           `json:"projectId" db:"project_id"`
	BugReportRetentionDays  int              `json:"bugReportRetentionDays" db:"bug_report_retention_days"`
	ScreenshotRetentionDays int              `json:"screenshotRetentionDays" db:"screenshot_retention_days"`
	ReplayRetentionDays     int              `json:"replayRetentionDays" db:"replay_retention_days"`
	AttachmentRetentionDays int              `json:"attachmentRetentionDays" db:"attachment_retention_days"`
	ArchivedRetentionDays   int              `json:"archivedRetentionDays" db:"archived_retention_days"`
	ArchiveBeforeDelete     bool             `json:"archiveBeforeDelete" db:"archive_before_delete"`
	DataClassification      RetentionClass   `json:"dataClassification" db:"data_classification"`
	ComplianceRegion        ComplianceRegion `json:"complianceRegion" db:"compliance_region"`
	Tier                    Tier             `json:"tier" db:"tier"`
}

// RetentionPolicyUpsert is the payload for creating/replacing a project's
// retention policy.
type RetentionPolicyUpsert struct {
	BugReportRetentionDays  int              `json:"bugReportRetentionDays" binding:"required,min=1"`
	ScreenshotRetentionDays int              `json:"screenshotRetentionDays" binding:"required,min=1"`
	ReplayRetentionDays     int              `json:"replayRetentionDays" binding:"required,min=1"`
	AttachmentRetentionDays int              `json:"attachmentRetentionDays" binding:"required,min=1"`
	ArchivedRetentionDays   int              `json:"archivedRetentionDays" binding:"required,min=1"`
	ArchiveBeforeDelete     bool             `json:"archiveBeforeDelete"`
	DataClassification      RetentionClass   `json:"dataClassification" binding:"required"`
	ComplianceRegion        ComplianceRegion `json:"complianceRegion" binding:"required"`
	Tier                    Tier             `json:"tier" binding:"required"`
}

// RetentionPreview is the read-only result of previewRetentionPolicy.
type RetentionPreview struct {
	TotalReports       int64    `json:"totalReports"`
	AffectedProjects   []string `json:"affectedProjects"`
	TotalStorageBytes  int64    `json:"totalStorageBytes"`
}

// RetentionApplyOptions configures applyRetentionPolicies.
type RetentionApplyOptions struct {
	DryRun       bool    `json:"dryRun"`
	Confirm      bool    `json:"confirm"`
	BatchSize    int     `json:"batchSize"`
	MaxErrorRate float64 `json:"maxErrorRate"`
	ProjectID    string  `json:"projectId"`
}

// RetentionApplyResult summarizes a completed (or aborted) apply run.
type RetentionApplyResult struct {
	TotalDeleted      int64    `json:"totalDeleted"`
	StorageFreedBytes int64    `json:"storageFreedBytes"`
	ProjectsProcessed int      `json:"projectsProcessed"`
	DurationMs        int64    `json:"durationMs"`
	Errors            []string `json:"errors"`
	Aborted           bool     `json:"aborted"`
}

// LegalHoldRequest toggles the legal hold flag on a set of reports.
type LegalHoldRequest struct {
	ReportIDs []string `json:"reportIds" binding:"required,min=1"`
	Hold      bool     `json:"hold"`
}

// RestoreRequest clears deleted_at for soft-deleted reports.
type RestoreRequest struct {
	ReportIDs []string `json:"reportIds" binding:"required,min=1"`
}

// ArchivedBugReport is the cold-storage row a BugReport is moved to when
// archiveBeforeDelete is set and its retention window elapses.
type ArchivedBugReport struct {
	ID             string         `json:"id" db:"id"`
	ProjectID      string         `json:"projectId" db:"project_id"`
	Title          string         `json:"title" db:"title"`
	Description    *string        `json:"description,omitempty" db:"description"`
	Metadata       RawJSON        `json:"metadata" db:"metadata"`
	RetentionClass RetentionClass `json:"retentionClass" db:"retention_class"`
	ArchivedAt     string         `json:"archivedAt" db:"archived_at"`
	OriginalCreatedAt string      `json:"originalCreatedAt" db:"original_created_at"`
}
