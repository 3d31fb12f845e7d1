// Package retention resolves each project's effective retention policy
// against compliance floors and tier ceilings, and runs the engine that
// previews and applies it: archiving or deleting expired bug reports,
// honoring legal holds, and restoring soft-deleted rows. A scheduler
// drives the nightly apply pass under a database advisory lock so only
// one replica runs it at a time.
package retention

import (
	"fmt"

	"github.com/apexbridge-tech/bugspotter/internal/apperrors"
	"github.com/apexbridge-tech/bugspotter/internal/models"
)

// complianceFloors[region][classification] is the minimum number of days
// a record of that classification must be kept in that region, in days.
// Zero means the region imposes no floor for that classification.
var complianceFloors = map[models.ComplianceRegion]map[models.RetentionClass]int{
	models.RegionNone: {models.ClassGeneral: 0, models.ClassPII: 0, models.ClassFinancial: 0, models.ClassHealthcare: 0},
	models.RegionEU:   {models.ClassGeneral: 0, models.ClassPII: 0, models.ClassFinancial: 365, models.ClassHealthcare: 0},
	models.RegionUS:   {models.ClassGeneral: 0, models.ClassPII: 0, models.ClassFinancial: 2555, models.ClassHealthcare: 2555},
	models.RegionKZ:   {models.ClassGeneral: 0, models.ClassPII: 0, models.ClassFinancial: 1825, models.ClassHealthcare: 3650},
	models.RegionUK:   {models.ClassGeneral: 0, models.ClassPII: 0, models.ClassFinancial: 2190, models.ClassHealthcare: 0},
	models.RegionCA:   {models.ClassGeneral: 0, models.ClassPII: 0, models.ClassFinancial: 2190, models.ClassHealthcare: 3650},
}

// regionsRequiringTrueDeletion must overwrite/shred archived binaries
// rather than performing a logical-only delete.
var regionsRequiringTrueDeletion = map[models.ComplianceRegion]bool{
	models.RegionEU: true,
	models.RegionKZ: true,
}

// regionsRequiringDeletionCertificate must emit a signed AuditLog record
// with counts and region for every batch apply.
var regionsRequiringDeletionCertificate = map[models.ComplianceRegion]bool{
	models.RegionEU: true,
	models.RegionUS: true,
	models.RegionKZ: true,
}

// tierCeilings is the maximum retention days a tier may configure; -1
// means unbounded. tierFloors is the minimum a tier may configure,
// independent of any compliance floor.
var tierCeilings = map[models.Tier]int{
	models.TierFree:         90,
	models.TierProfessional: 365,
	models.TierEnterprise:   -1,
}

var tierFloors = map[models.Tier]int{
	models.TierFree:         7,
	models.TierProfessional: 7,
	models.TierEnterprise:   1,
}

// complianceMin returns the compliance floor in days for a
// (region, classification) pair, defaulting to zero for any
// combination not explicitly listed (classification carries no floor
// in that region).
func complianceMin(region models.ComplianceRegion, class models.RetentionClass) int {
	byClass, ok := complianceFloors[region]
	if !ok {
		return 0
	}
	return byClass[class]
}

// tierMax returns the tier ceiling in days, or -1 for unbounded.
func tierMax(tier models.Tier) int {
	c, ok := tierCeilings[tier]
	if !ok {
		return -1
	}
	return c
}

// tierMin returns the tier floor in days.
func tierMin(tier models.Tier) int {
	f, ok := tierFloors[tier]
	if !ok {
		return 1
	}
	return f
}

// RequiresTrueDeletion reports whether a region's archival path must
// overwrite/shred storage rather than perform a logical-only delete.
func RequiresTrueDeletion(region models.ComplianceRegion) bool {
	return regionsRequiringTrueDeletion[region]
}

// RequiresDeletionCertificate reports whether a region requires a
// signed AuditLog record per batch apply.
func RequiresDeletionCertificate(region models.ComplianceRegion) bool {
	return regionsRequiringDeletionCertificate[region]
}

// ResolvedPolicy is the effective, already-clamped retention policy for
// one project, ready to drive cutoff calculations.
type ResolvedPolicy struct {
	ProjectID               string
	BugReportRetentionDays  int
	ScreenshotRetentionDays int
	ReplayRetentionDays     int
	AttachmentRetentionDays int
	ArchivedRetentionDays   int
	ArchiveBeforeDelete     bool
	DataClassification      models.RetentionClass
	ComplianceRegion        models.ComplianceRegion
	Tier                    models.Tier
}

// resolveDuration clamps one configured duration against the compliance
// floor and tier ceiling, per spec's step 4: d' = max(d, F), then, if
// the tier ceiling C is bounded, d' = min(d', C) — but never below F.
// bypassCeiling skips the tier-ceiling clamp (admin override); the
// compliance floor can never be bypassed.
func resolveDuration(label string, configured, floor, ceiling int, bypassCeiling bool) (int, error) {
	d := configured
	if d < floor {
		d = floor
	}
	if ceiling >= 0 && !bypassCeiling {
		if d > ceiling {
			d = ceiling
		}
		if d < floor {
			return 0, apperrors.NewComplianceViolationError(
				fmt.Sprintf("%s: tier ceiling %dd is below compliance floor %dd", label, ceiling, floor))
		}
	}
	return d, nil
}

// Resolve computes the effective policy for a project: every configured
// duration is clamped to sit between the compliance floor for
// (region, classification) and the tier ceiling, in that precedence —
// compliance floors can never be bypassed, even by an admin.
// isAdmin lets the tier ceiling (not the floor) be bypassed, per spec.
func Resolve(policy *models.RetentionPolicy, isAdmin bool) (*ResolvedPolicy, error) {
	floor := complianceMin(policy.ComplianceRegion, policy.DataClassification)
	tFloor := tierMin(policy.Tier)
	if tFloor > floor {
		floor = tFloor
	}
	ceiling := tierMax(policy.Tier)

	bugReportDays, err := resolveDuration("bugReportRetentionDays", policy.BugReportRetentionDays, floor, ceiling, isAdmin)
	if err != nil {
		return nil, err
	}
	screenshotDays, err := resolveDuration("screenshotRetentionDays", policy.ScreenshotRetentionDays, floor, ceiling, isAdmin)
	if err != nil {
		return nil, err
	}
	replayDays, err := resolveDuration("replayRetentionDays", policy.ReplayRetentionDays, floor, ceiling, isAdmin)
	if err != nil {
		return nil, err
	}
	attachmentDays, err := resolveDuration("attachmentRetentionDays", policy.AttachmentRetentionDays, floor, ceiling, isAdmin)
	if err != nil {
		return nil, err
	}
	archivedDays, err := resolveDuration("archivedRetentionDays", policy.ArchivedRetentionDays, floor, ceiling, isAdmin)
	if err != nil {
		return nil, err
	}

	return &ResolvedPolicy{
		ProjectID:               policy.ProjectID,
		BugReportRetentionDays:  bugReportDays,
		ScreenshotRetentionDays: screenshotDays,
		ReplayRetentionDays:     replayDays,
		AttachmentRetentionDays: attachmentDays,
		ArchivedRetentionDays:   archivedDays,
		ArchiveBeforeDelete:     policy.ArchiveBeforeDelete,
		DataClassification:      policy.DataClassification,
		ComplianceRegion:        policy.ComplianceRegion,
		Tier:                    policy.Tier,
	}, nil
}

// DefaultPolicy builds the global-default RetentionPolicy applied to a
// project with no explicit override, from instance settings. It carries
// no compliance classification, since InstanceSettings doesn't capture
// one per project — projects wanting a compliance floor must configure
// an explicit policy.
func DefaultPolicy(projectID string, settings *models.InstanceSettings) *models.RetentionPolicy {
	days := settings.RetentionDays
	if days <= 0 {
		days = 90
	}
	return &models.RetentionPolicy{
		ProjectID:               projectID,
		BugReportRetentionDays:  days,
		ScreenshotRetentionDays: days,
		ReplayRetentionDays:     days,
		AttachmentRetentionDays: days,
		ArchivedRetentionDays:   days,
		ArchiveBeforeDelete:     false,
		DataClassification:      models.ClassGeneral,
		ComplianceRegion:        models.RegionNone,
		Tier:                    models.TierFree,
	}
}
