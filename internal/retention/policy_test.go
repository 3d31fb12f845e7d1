package retention

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/apexbridge-tech/bugspotter/internal/models"
)

func TestResolve_FloorRaisesBelowMinimum(t *testing.T) {
	policy := &models.RetentionPolicy{
		ProjectID:               "proj-1",
		BugReportRetentionDays:  30,
		ScreenshotRetentionDays: 30,
		ReplayRetentionDays:     30,
		AttachmentRetentionDays: 30,
		ArchivedRetentionDays:   30,
		DataClassification:      models.ClassFinancial,
		ComplianceRegion:        models.RegionUS,
		Tier:                    models.TierEnterprise,
	}
	resolved, err := Resolve(policy, false)
	require.NoError(t, err)
	require.Equal(t, 2555, resolved.BugReportRetentionDays)
	require.Equal(t, 2555, resolved.ScreenshotRetentionDays)
}

func TestResolve_CeilingLowersAboveMaximum(t *testing.T) {
	policy := &models.RetentionPolicy{
		ProjectID:               "proj-2",
		BugReportRetentionDays:  10000,
		ScreenshotRetentionDays: 10000,
		ReplayRetentionDays:     10000,
		AttachmentRetentionDays: 10000,
		ArchivedRetentionDays:   10000,
		DataClassification:      models.ClassGeneral,
		ComplianceRegion:        models.RegionNone,
		Tier:                    models.TierFree,
	}
	resolved, err := Resolve(policy, false)
	require.NoError(t, err)
	require.Equal(t, 90, resolved.BugReportRetentionDays)
}

func TestResolve_AdminBypassesTierCeilingNotComplianceFloor(t *testing.T) {
	policy := &models.RetentionPolicy{
		ProjectID:               "proj-3",
		BugReportRetentionDays:  10000,
		ScreenshotRetentionDays: 10000,
		ReplayRetentionDays:     10000,
		AttachmentRetentionDays: 10000,
		ArchivedRetentionDays:   10000,
		DataClassification:      models.ClassGeneral,
		ComplianceRegion:        models.RegionNone,
		Tier:                    models.TierFree,
	}
	resolved, err := Resolve(policy, true)
	require.NoError(t, err)
	require.Equal(t, 10000, resolved.BugReportRetentionDays)

	compliancePolicy := &models.RetentionPolicy{
		ProjectID:               "proj-4",
		BugReportRetentionDays:  1,
		ScreenshotRetentionDays: 1,
		ReplayRetentionDays:     1,
		AttachmentRetentionDays: 1,
		ArchivedRetentionDays:   1,
		DataClassification:      models.ClassHealthcare,
		ComplianceRegion:        models.RegionUS,
		Tier:                    models.TierFree,
	}
	resolvedCompliance, err := Resolve(compliancePolicy, true)
	require.NoError(t, err)
	require.Equal(t, 2555, resolvedCompliance.BugReportRetentionDays)
}

func TestResolve_InfeasiblePolicyRejected(t *testing.T) {
	policy := &models.RetentionPolicy{
		ProjectID:               "proj-5",
		BugReportRetentionDays:  30,
		ScreenshotRetentionDays: 30,
		ReplayRetentionDays:     30,
		AttachmentRetentionDays: 30,
		ArchivedRetentionDays:   30,
		DataClassification:      models.ClassHealthcare,
		ComplianceRegion:        models.RegionUS,
		Tier:                    models.TierFree,
	}
	_, err := Resolve(policy, false)
	require.Error(t, err)
}

func TestRequiresTrueDeletionAndCertificate(t *testing.T) {
	require.True(t, RequiresTrueDeletion(models.RegionEU))
	require.True(t, RequiresTrueDeletion(models.RegionKZ))
	require.False(t, RequiresTrueDeletion(models.RegionUS))

	require.True(t, RequiresDeletionCertificate(models.RegionUS))
	require.True(t, RequiresDeletionCertificate(models.RegionEU))
	require.False(t, RequiresDeletionCertificate(models.RegionNone))
}

func TestDefaultPolicy_FallsBackWhenRetentionDaysUnset(t *testing.T) {
	settings := &models.InstanceSettings{RetentionDays: 0}
	policy := DefaultPolicy("proj-6", settings)
	require.Equal(t, 90, policy.BugReportRetentionDays)
	require.Equal(t, models.ClassGeneral, policy.DataClassification)
	require.Equal(t, models.RegionNone, policy.ComplianceRegion)
}
