package service

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/noah-isme/activity-audit-api/internal/dto"
	"github.com/noah-isme/activity-audit-api/internal/models"
	appErrors "github.com/noah-isme/activity-audit-api/pkg/errors"
	"github.com/noah-isme/activity-audit-api/pkg/props"
)

var securityNow = time.Date(2024, 5, 10, 12, 0, 0, 0, time.UTC)

func newSecurityServiceForTest(store *memoryStore, cache securityReportCache) *SecurityService {
	svc := NewSecurityService(store, memoryAlerts{store}, cache, nil, nil, nil, SecurityOptions{BatchSize: 4})
	svc.now = func() time.Time { return securityNow }
	return svc
}

func seedFailedLogins(store *memoryStore, ip string, count int, start time.Time, step time.Duration) []models.ActivityRecord {
	out := make([]models.ActivityRecord, 0, count)
	for i := 0; i < count; i++ {
		out = append(out, store.put(models.ActivityRecord{
			Type:        models.ActivityLoginFailed,
			Description: "sign-in rejected",
			Module:      "auth",
			Properties:  props.Object(props.F("identifier", props.String(fmt.Sprintf("user%d", i%2)))),
			IPAddress:   ip,
			Result:      models.ResultFailure,
			CreatedAt:   start.Add(time.Duration(i) * step),
		}))
	}
	return out
}

func TestSecurityServiceBruteForceDetection(t *testing.T) {
	store := newMemoryStore()
	seedFailedLogins(store, "203.0.113.5", 6, securityNow.Add(-10*time.Minute), time.Minute)
	svc := newSecurityServiceForTest(store, nil)

	report, err := svc.MonitorFailedLogins(context.Background())
	require.NoError(t, err)
	require.Len(t, report.Entries, 1)
	entry := report.Entries[0]
	assert.Equal(t, "203.0.113.5", entry.IPAddress)
	assert.GreaterOrEqual(t, entry.AttemptCount, 5)
	assert.Equal(t, 6, entry.AttemptCount)
	assert.Greater(t, entry.RiskScore, 70)
	assert.True(t, entry.Suspicious)
	assert.Equal(t, 2, entry.DistinctUsers)
	assert.Equal(t, 5, report.Threshold)
}

func TestSecurityServiceBruteForceIgnoresSparseAttempts(t *testing.T) {
	t.Run("below threshold", func(t *testing.T) {
		store := newMemoryStore()
		seedFailedLogins(store, "203.0.113.5", 4, securityNow.Add(-10*time.Minute), time.Minute)
		entries, err := newSecurityServiceForTest(store, nil).CheckSuspiciousIPs(context.Background(), 0)
		require.NoError(t, err)
		assert.Empty(t, entries)
	})

	t.Run("spread across addresses", func(t *testing.T) {
		store := newMemoryStore()
		for i := 0; i < 6; i++ {
			seedFailedLogins(store, fmt.Sprintf("198.51.100.%d", i+1), 1, securityNow.Add(-time.Duration(i+1)*time.Minute), 0)
		}
		entries, err := newSecurityServiceForTest(store, nil).CheckSuspiciousIPs(context.Background(), 0)
		require.NoError(t, err)
		assert.Empty(t, entries)
	})

	t.Run("outside window", func(t *testing.T) {
		store := newMemoryStore()
		seedFailedLogins(store, "203.0.113.5", 6, securityNow.Add(-2*time.Hour), time.Minute)
		entries, err := newSecurityServiceForTest(store, nil).CheckSuspiciousIPs(context.Background(), 0)
		require.NoError(t, err)
		assert.Empty(t, entries)
	})
}

func TestSecurityServiceFailedPasswordLoginsCount(t *testing.T) {
	store := newMemoryStore()
	for i := 0; i < 5; i++ {
		store.put(models.ActivityRecord{Type: models.ActivityLogin, Module: "auth", IPAddress: "192.0.2.7", Result: models.ResultFailure, CreatedAt: securityNow.Add(-time.Duration(i) * time.Minute)})
	}
	store.put(models.ActivityRecord{Type: models.ActivityLogin, Module: "auth", IPAddress: "192.0.2.7", Result: models.ResultSuccess, CreatedAt: securityNow})

	entries, err := newSecurityServiceForTest(store, nil).CheckSuspiciousIPs(context.Background(), 0)
	require.NoError(t, err)
	require.Len(t, entries, 1)
	assert.Equal(t, 5, entries[0].AttemptCount)
}

func TestSecurityServiceSweepBruteForceDeduplicates(t *testing.T) {
	store := newMemoryStore()
	seeded := seedFailedLogins(store, "203.0.113.5", 6, securityNow.Add(-6*time.Minute), time.Minute)
	svc := newSecurityServiceForTest(store, nil)

	raised, err := svc.SweepBruteForce(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1, raised)

	alerts := store.alertsOfKind(models.AlertBruteForce)
	require.Len(t, alerts, 1)
	require.NotNil(t, alerts[0].ActivityID)
	assert.Equal(t, seeded[len(seeded)-1].ID, *alerts[0].ActivityID)

	raised, err = svc.SweepBruteForce(context.Background())
	require.NoError(t, err)
	assert.Zero(t, raised)
}

func TestSecurityServiceAnalyzeFailedLoginBurst(t *testing.T) {
	store := newMemoryStore()
	seedFailedLogins(store, "203.0.113.5", 5, securityNow.Add(-5*time.Minute), time.Minute)
	rec := store.put(models.ActivityRecord{
		Type:      models.ActivityLoginFailed,
		Module:    "auth",
		IPAddress: "203.0.113.5",
		Result:    models.ResultFailure,
		CreatedAt: securityNow,
	})
	svc := newSecurityServiceForTest(store, nil)

	result, err := svc.Analyze(context.Background(), rec)
	require.NoError(t, err)
	assert.Equal(t, 6, result.BaseScore)
	assert.Equal(t, 9, result.RiskLevel)
	assert.Contains(t, result.Signals, "ip_failure_burst")

	kinds := map[models.AlertKind]models.AlertSeverity{}
	for _, alert := range result.Alerts {
		kinds[alert.Kind] = alert.Severity
	}
	assert.Equal(t, models.SeverityCritical, kinds[models.AlertHighRisk])
	assert.Contains(t, kinds, models.AlertBruteForce)

	stored, err := store.GetByID(context.Background(), rec.ID)
	require.NoError(t, err)
	assert.Equal(t, 9, stored.RiskLevel)

	again, err := svc.Analyze(context.Background(), *stored)
	require.NoError(t, err)
	assert.Empty(t, again.Alerts)
}

func TestSecurityServiceAnalyzeRoutineActivity(t *testing.T) {
	store := newMemoryStore()
	actor := "user-2"
	rec := store.put(models.ActivityRecord{
		Type:      models.ActivityAPIAccess,
		ActorID:   &actor,
		Module:    "api",
		IPAddress: "10.0.0.2",
		Result:    models.ResultSuccess,
		CreatedAt: securityNow,
	})

	result, err := newSecurityServiceForTest(store, nil).Analyze(context.Background(), rec)
	require.NoError(t, err)
	assert.Zero(t, result.RiskLevel)
	assert.Empty(t, result.Signals)
	assert.Empty(t, result.Alerts)
	assert.Empty(t, store.alerts)
}

func TestSecurityServiceAnalyzeKeepsHigherWrittenRisk(t *testing.T) {
	store := newMemoryStore()
	rec := store.put(models.ActivityRecord{Type: "reports.view", Module: "reports", Result: models.ResultSuccess, RiskLevel: 4, CreatedAt: securityNow})

	result, err := newSecurityServiceForTest(store, nil).Analyze(context.Background(), rec)
	require.NoError(t, err)
	assert.Equal(t, 1, result.BaseScore)
	assert.Equal(t, 4, result.RiskLevel)
}

func seedWorkingHours(store *memoryStore, actor string, days int, at time.Time) {
	for d := 1; d <= days; d++ {
		for _, hour := range []int{9, 10} {
			day := at.AddDate(0, 0, -d)
			store.put(models.ActivityRecord{
				Type:      "reports.view",
				ActorID:   &actor,
				Module:    "reports",
				IPAddress: "10.0.0.5",
				Result:    models.ResultSuccess,
				CreatedAt: time.Date(day.Year(), day.Month(), day.Day(), hour, 15, 0, 0, time.UTC),
			})
		}
	}
}

func TestSecurityServiceOffHoursAnomaly(t *testing.T) {
	store := newMemoryStore()
	actor := "admin-1"
	night := time.Date(2024, 5, 10, 3, 30, 0, 0, time.UTC)
	seedWorkingHours(store, actor, 13, night)
	rec := store.put(models.ActivityRecord{
		Type:      models.ActivityUserDelete,
		ActorID:   &actor,
		Module:    "users",
		IPAddress: "10.0.0.5",
		Result:    models.ResultSuccess,
		CreatedAt: night.Add(-20 * time.Minute),
	})
	svc := newSecurityServiceForTest(store, nil)
	svc.now = func() time.Time { return night }

	report, err := svc.IdentifyPatterns(context.Background(), actor, time.Hour)
	require.NoError(t, err)
	assert.Equal(t, []int{9, 10}, report.UsualHours)
	assert.Equal(t, 1, report.TotalInWindow)
	require.Len(t, report.Anomalies, 1)
	assert.Equal(t, models.AnomalyOffHours, report.Anomalies[0].Kind)
	assert.Equal(t, rec.ID, report.Anomalies[0].ActivityID)
	assert.Equal(t, 3, report.Anomalies[0].Hour)
	assert.Equal(t, 30, report.AnomalyScore)
	assert.GreaterOrEqual(t, report.HistoricalDays, 12)

	result, err := svc.Analyze(context.Background(), rec)
	require.NoError(t, err)
	assert.Equal(t, 5, result.BaseScore)
	assert.Contains(t, result.Signals, "unusual_hour")
	assert.NotContains(t, result.Signals, "new_ip")
	assert.Equal(t, 30, result.AnomalyScore)
	assert.Equal(t, 8, result.RiskLevel)
	assert.Len(t, store.alertsOfKind(models.AlertAnomaly), 1)
	assert.Len(t, store.alertsOfKind(models.AlertHighRisk), 1)
}

func TestSecurityServiceOffHoursNeedsHistory(t *testing.T) {
	store := newMemoryStore()
	actor := "admin-1"
	night := time.Date(2024, 5, 10, 3, 30, 0, 0, time.UTC)
	seedWorkingHours(store, actor, 3, night)
	store.put(models.ActivityRecord{Type: models.ActivityUserDelete, ActorID: &actor, Module: "users", Result: models.ResultSuccess, CreatedAt: night.Add(-time.Minute)})
	svc := newSecurityServiceForTest(store, nil)
	svc.now = func() time.Time { return night }

	report, err := svc.IdentifyPatterns(context.Background(), actor, time.Hour)
	require.NoError(t, err)
	assert.Empty(t, report.Anomalies)
}

func TestSecurityServiceHighFrequencyAnomaly(t *testing.T) {
	store := newMemoryStore()
	actor := "user-9"
	for d := 1; d <= 10; d++ {
		store.put(models.ActivityRecord{Type: "reports.export", ActorID: &actor, Module: "reports", Result: models.ResultSuccess, CreatedAt: securityNow.AddDate(0, 0, -d)})
	}
	for i := 0; i < 8; i++ {
		store.put(models.ActivityRecord{Type: "reports.export", ActorID: &actor, Module: "reports", Result: models.ResultSuccess, CreatedAt: securityNow.Add(-time.Duration(50-i*5) * time.Minute)})
	}
	svc := newSecurityServiceForTest(store, nil)

	report, err := svc.IdentifyPatterns(context.Background(), actor, time.Hour)
	require.NoError(t, err)
	require.Len(t, report.Anomalies, 1)
	anomaly := report.Anomalies[0]
	assert.Equal(t, models.AnomalyHighFrequency, anomaly.Kind)
	assert.Equal(t, "reports.export", anomaly.ActivityType)
	assert.Equal(t, 8, anomaly.Count)
	assert.NotEmpty(t, anomaly.ActivityID)
	assert.Equal(t, 40, report.AnomalyScore)
	assert.Equal(t, 8, report.TypeCounts["reports.export"])

	raised, err := svc.SweepAnomalies(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1, raised)
	raised, err = svc.SweepAnomalies(context.Background())
	require.NoError(t, err)
	assert.Zero(t, raised)
}

func TestSecurityServiceIdentifyPatternsRequiresActor(t *testing.T) {
	_, err := newSecurityServiceForTest(newMemoryStore(), nil).IdentifyPatterns(context.Background(), " ", time.Hour)
	require.Error(t, err)
}

func TestSecurityServiceGenerateReportUsesCache(t *testing.T) {
	store := newMemoryStore()
	for _, rec := range seedFailedLogins(store, "203.0.113.5", 6, securityNow.Add(-3*time.Hour), time.Minute) {
		require.NoError(t, store.SetRiskLevel(context.Background(), rec.ID, 6))
	}
	admin, user := "admin-1", "user-2"
	store.put(models.ActivityRecord{Type: models.ActivityUserDelete, ActorID: &admin, Module: "users", Result: models.ResultSuccess, RiskLevel: 8, CreatedAt: securityNow.Add(-time.Hour)})
	store.put(models.ActivityRecord{Type: models.ActivityAPIAccess, ActorID: &user, Module: "api", Result: models.ResultSuccess, CreatedAt: securityNow.Add(-2 * time.Hour)})
	store.put(models.ActivityRecord{Type: models.ActivityAPIAccess, ActorID: &user, Module: "api", Result: models.ResultFailure, RiskLevel: 1, CreatedAt: securityNow.Add(-90 * time.Minute)})
	store.put(models.ActivityRecord{Type: models.ActivityAPIAccess, ActorID: &user, Module: "api", Result: models.ResultSuccess, CreatedAt: securityNow.Add(-48 * time.Hour)})

	cache := &memoryCache{}
	svc := newSecurityServiceForTest(store, cache)

	report, hit, err := svc.GenerateSecurityReport(context.Background(), 24*time.Hour)
	require.NoError(t, err)
	assert.False(t, hit)
	assert.Equal(t, 9, report.Summary.TotalActivities)
	assert.Equal(t, 7, report.Summary.SecurityEvents)
	assert.Equal(t, 6, report.Summary.FailedLogins)
	assert.Equal(t, 1, report.Summary.HighRiskEvents)
	require.NotEmpty(t, report.TopRisks)
	assert.Equal(t, models.ActivityUserDelete, report.TopRisks[0].Type)
	require.Len(t, report.SuspiciousIPs, 1)
	require.Len(t, report.UserRiskRanking, 2)
	assert.Equal(t, admin, report.UserRiskRanking[0].ActorID)
	assert.Equal(t, 1, report.UserRiskRanking[1].FailedActions)
	assert.Contains(t, report.Recommendations[0], "Block or rate-limit 1")
	assert.Equal(t, 1, cache.sets)

	scans := store.scanCalls
	cached, hit, err := svc.GenerateSecurityReport(context.Background(), 24*time.Hour)
	require.NoError(t, err)
	assert.True(t, hit)
	assert.Equal(t, report.Summary, cached.Summary)
	assert.Equal(t, scans, store.scanCalls)
}

func TestSecurityServiceQuietReport(t *testing.T) {
	report, _, err := newSecurityServiceForTest(newMemoryStore(), nil).GenerateSecurityReport(context.Background(), time.Hour)
	require.NoError(t, err)
	assert.Equal(t, []string{"No immediate action required"}, report.Recommendations)
	assert.Empty(t, report.TopRisks)
}

func TestSecurityServiceIsHighRisk(t *testing.T) {
	svc := NewSecurityService(newMemoryStore(), nil, nil, nil, nil, nil, SecurityOptions{HighRiskTypes: []string{"exports.download"}})
	cases := map[string]bool{
		models.ActivityLoginFailed:         true,
		models.ActivityPermissionEscalated: true,
		models.ActivityUserDelete:          true,
		"grades.delete":                    true,
		"exports.download":                 true,
		models.ActivityLogin:               false,
		models.ActivityAPIAccess:           false,
	}
	for activityType, want := range cases {
		assert.Equal(t, want, svc.IsHighRisk(activityType), activityType)
	}
}

func TestSecurityServiceListAlerts(t *testing.T) {
	store := newMemoryStore()
	svc := newSecurityServiceForTest(store, nil)
	_, err := svc.RaiseAlert(context.Background(), models.AlertTampering, models.SeverityCritical, "act-1", props.Object())
	require.NoError(t, err)
	dup, err := svc.RaiseAlert(context.Background(), models.AlertTampering, models.SeverityCritical, "act-1", props.Object())
	require.NoError(t, err)
	assert.Nil(t, dup)

	alerts, page, err := svc.ListAlerts(context.Background(), dto.AlertListQuery{Kind: "tampering"})
	require.NoError(t, err)
	assert.Len(t, alerts, 1)
	assert.Equal(t, 1, page.TotalCount)

	_, _, err = svc.ListAlerts(context.Background(), dto.AlertListQuery{Severity: "extreme"})
	require.Error(t, err)
}

func TestSecurityServiceAnalyzeNeedsBaselineForUnusualHour(t *testing.T) {
	store := newMemoryStore()
	actor := "alice"
	for i := 0; i < 25; i++ {
		store.put(models.ActivityRecord{
			Type:      fmt.Sprintf("reports.view.%d", i%10),
			ActorID:   &actor,
			Module:    "reports",
			IPAddress: "10.0.0.5",
			Result:    models.ResultSuccess,
			CreatedAt: securityNow.Add(-10*time.Minute + time.Duration(i)*20*time.Second),
		})
	}
	rec := store.put(models.ActivityRecord{
		Type:      "reports.view.0",
		ActorID:   &actor,
		Module:    "reports",
		IPAddress: "10.0.0.5",
		Result:    models.ResultSuccess,
		CreatedAt: securityNow.Add(-time.Minute),
	})
	svc := newSecurityServiceForTest(store, nil)

	report, err := svc.IdentifyPatterns(context.Background(), actor, time.Hour)
	require.NoError(t, err)
	assert.Zero(t, report.BaselineCount)
	assert.Equal(t, 26, report.TotalInWindow)
	assert.Empty(t, report.UsualHours)

	result, err := svc.Analyze(context.Background(), rec)
	require.NoError(t, err)
	assert.NotContains(t, result.Signals, "unusual_hour")
	assert.Empty(t, result.Signals)
	assert.Equal(t, result.BaseScore, result.RiskLevel)
}

func TestSecurityServiceAnalyzeReadsBoundedHistory(t *testing.T) {
	store := newMemoryStore()
	actor := "busy-admin"
	for i := 0; i < 3000; i++ {
		store.put(models.ActivityRecord{
			Type:      "reports.view",
			ActorID:   &actor,
			Module:    "reports",
			IPAddress: "10.0.0.5",
			Result:    models.ResultSuccess,
			CreatedAt: securityNow.Add(-2*time.Hour - time.Duration(i)*5*time.Minute),
		})
	}
	rec := store.put(models.ActivityRecord{
		Type:      models.ActivityUserDelete,
		ActorID:   &actor,
		Module:    "users",
		IPAddress: "10.0.0.5",
		Result:    models.ResultSuccess,
		CreatedAt: securityNow,
	})
	svc := NewSecurityService(store, memoryAlerts{store}, nil, nil, nil, nil, SecurityOptions{HistorySample: 200})
	svc.now = func() time.Time { return securityNow }

	result, err := svc.Analyze(context.Background(), rec)
	require.NoError(t, err)
	assert.Equal(t, 5, result.BaseScore)
	assert.Zero(t, store.scanCalls)
	assert.Equal(t, 3, store.listCalls)
	assert.LessOrEqual(t, store.rowsRead, 3*200)
}

func TestSecurityServiceGenerateReportRejectsOversizedWindow(t *testing.T) {
	store := newMemoryStore()
	svc := NewSecurityService(store, memoryAlerts{store}, nil, nil, nil, nil, SecurityOptions{MaxReportWindow: 7 * 24 * time.Hour})

	_, _, err := svc.GenerateSecurityReport(context.Background(), 30*24*time.Hour)
	require.Error(t, err)
	assert.True(t, errors.Is(err, appErrors.ErrValidation))
	assert.Zero(t, store.scanCalls)
}

func TestSecurityServiceBruteForceAlertsOncePerIP(t *testing.T) {
	store := newMemoryStore()
	svc := newSecurityServiceForTest(store, nil)
	seeded := seedFailedLogins(store, "203.0.113.5", 20, securityNow.Add(-10*time.Minute), 30*time.Second)

	for _, rec := range seeded {
		_, err := svc.Analyze(context.Background(), rec)
		require.NoError(t, err)
	}
	require.Len(t, store.alertsOfKind(models.AlertBruteForce), 1)

	raised, err := svc.SweepBruteForce(context.Background())
	require.NoError(t, err)
	assert.Zero(t, raised)

	seedFailedLogins(store, "198.51.100.7", 6, securityNow.Add(-5*time.Minute), 30*time.Second)
	raised, err = svc.SweepBruteForce(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1, raised)
	assert.Len(t, store.alertsOfKind(models.AlertBruteForce), 2)
}
