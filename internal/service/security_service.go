package service

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"math"
	"sort"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"go.uber.org/zap"

	"github.com/noah-isme/activity-audit-api/internal/dto"
	"github.com/noah-isme/activity-audit-api/internal/models"
	"github.com/noah-isme/activity-audit-api/pkg/props"
	appErrors "github.com/noah-isme/activity-audit-api/pkg/errors"
)

type securityActivityStore interface {
	activityScanner
	activityLister
	SetRiskLevel(ctx context.Context, id string, level int) error
}

type securityAlertStore interface {
	Create(ctx context.Context, alert *models.SecurityAlert) error
	List(ctx context.Context, filter models.SecurityAlertFilter) ([]models.SecurityAlert, int, error)
	Exists(ctx context.Context, kind models.AlertKind, activityID string) (bool, error)
}

type securityReportCache interface {
	Get(ctx context.Context, key string, dest interface{}) (bool, error)
	Set(ctx context.Context, key string, value interface{}, ttl time.Duration) error
}

// SecurityOptions are analyzer tuning knobs. Zero values take defaults.
type SecurityOptions struct {
	BruteForceWindow    time.Duration
	BruteForceThreshold int
	SuspiciousScore     int
	AnomalyWindow       time.Duration
	AnomalyHistory      time.Duration
	AnomalyMultiplier   float64
	MinHistory          int
	HighRiskTypes       []string
	ReportCacheTTL      time.Duration
	MaxReportWindow     time.Duration
	HistorySample       int
	BatchSize           int
}

func (o SecurityOptions) withDefaults() SecurityOptions {
	if o.BruteForceWindow <= 0 {
		o.BruteForceWindow = 15 * time.Minute
	}
	if o.BruteForceThreshold <= 0 {
		o.BruteForceThreshold = 5
	}
	if o.SuspiciousScore <= 0 {
		o.SuspiciousScore = 70
	}
	if o.AnomalyWindow <= 0 {
		o.AnomalyWindow = time.Hour
	}
	if o.AnomalyHistory <= 0 {
		o.AnomalyHistory = 30 * 24 * time.Hour
	}
	if o.AnomalyMultiplier <= 0 {
		o.AnomalyMultiplier = 3
	}
	if o.MinHistory <= 0 {
		o.MinHistory = 20
	}
	if o.ReportCacheTTL <= 0 {
		o.ReportCacheTTL = 5 * time.Minute
	}
	if o.MaxReportWindow <= 0 {
		o.MaxReportWindow = 90 * 24 * time.Hour
	}
	if o.HistorySample <= 0 || o.HistorySample > maxListSample {
		o.HistorySample = maxListSample
	}
	if o.BatchSize <= 0 {
		o.BatchSize = defaultScanBatch
	}
	return o
}

const (
	highRiskAlertLevel  = 8
	highRiskReportLevel = 7
	minFrequencyCount   = 5
	reportTopN          = 10
)

// SecurityService scores activities, detects brute force and per-actor
// anomalies, raises alerts and builds security reports.
type SecurityService struct {
	activities securityActivityStore
	alerts     securityAlertStore
	cache      securityReportCache
	metrics    *MetricsService
	validator  *validator.Validate
	logger     *zap.Logger
	opts       SecurityOptions
	highRisk   map[string]struct{}
	now        func() time.Time
}

// NewSecurityService constructs the analyzer. cache may be nil.
func NewSecurityService(activities securityActivityStore, alerts securityAlertStore, cache securityReportCache, metrics *MetricsService, validate *validator.Validate, logger *zap.Logger, opts SecurityOptions) *SecurityService {
	if logger == nil {
		logger = zap.NewNop()
	}
	if validate == nil {
		validate = validator.New()
	}
	opts = opts.withDefaults()
	highRisk := map[string]struct{}{
		models.ActivityLoginFailed:         {},
		models.ActivityPermissionEscalated: {},
		models.ActivityRoleAssigned:        {},
		models.ActivitySettingsChange:      {},
		models.ActivityRecordsPurged:       {},
	}
	for _, t := range opts.HighRiskTypes {
		if t = strings.TrimSpace(t); t != "" {
			highRisk[t] = struct{}{}
		}
	}
	return &SecurityService{
		activities: activities,
		alerts:     alerts,
		cache:      cache,
		metrics:    metrics,
		validator:  validate,
		logger:     logger,
		opts:       opts,
		highRisk:   highRisk,
		now:        time.Now,
	}
}

// IsHighRisk reports whether records of activityType are analyzed inline with the write.
func (s *SecurityService) IsHighRisk(activityType string) bool {
	if _, ok := s.highRisk[activityType]; ok {
		return true
	}
	return isDestructiveType(activityType)
}

func isDestructiveType(activityType string) bool {
	return strings.HasSuffix(activityType, ".delete") || strings.HasSuffix(activityType, ".purge")
}

type riskKey struct {
	activityType string
	result       models.ActivityResult
}

var baseRiskTable = map[riskKey]int{
	{models.ActivityLoginFailed, models.ResultFailure}:         6,
	{models.ActivityLogin, models.ResultFailure}:               6,
	{models.ActivityLogin, models.ResultSuccess}:               1,
	{models.ActivityLogout, models.ResultSuccess}:              0,
	{models.ActivityPermissionEscalated, models.ResultSuccess}: 7,
	{models.ActivityPermissionEscalated, models.ResultFailure}: 6,
	{models.ActivityRoleAssigned, models.ResultSuccess}:        5,
	{models.ActivitySettingsChange, models.ResultSuccess}:      3,
	{models.ActivityRecordsPurged, models.ResultSuccess}:       6,
	{models.ActivityAPIAccess, models.ResultSuccess}:           0,
	{models.ActivityAPIAccess, models.ResultClientError}:       1,
	{models.ActivityAPIAccess, models.ResultFailure}:           1,
	{models.ActivitySystem, models.ResultSuccess}:              0,
}

var resultRisk = map[models.ActivityResult]int{
	models.ResultSuccess:     1,
	models.ResultWarning:     2,
	models.ResultClientError: 2,
	models.ResultFailure:     3,
}

func baseRisk(activityType string, result models.ActivityResult) int {
	if score, ok := baseRiskTable[riskKey{activityType, result}]; ok {
		return score
	}
	switch {
	case activityType == models.ActivityLoginFailed:
		return 6
	case isDestructiveType(activityType):
		if result == models.ResultFailure {
			return 4
		}
		return 5
	}
	return resultRisk[result]
}

func isFailedLogin(rec *models.ActivityRecord) bool {
	return rec.Type == models.ActivityLoginFailed || (rec.Type == models.ActivityLogin && rec.Result == models.ResultFailure)
}

// Analyze scores rec against the actor's history and the source IP's recent
// failures, raises alerts for what it finds and stores the new risk level.
// The stored level never drops below the level the record was written with.
func (s *SecurityService) Analyze(ctx context.Context, rec models.ActivityRecord) (*models.AnalysisResult, error) {
	result := &models.AnalysisResult{
		ActivityID: rec.ID,
		BaseScore:  baseRisk(rec.Type, rec.Result),
		Signals:    []string{},
	}
	score := result.BaseScore

	var pattern *models.UserPatternReport
	if actor := rec.ActorValue(); actor != "" {
		history, err := s.sampleActorHistory(ctx, actor, rec.CreatedAt, s.opts.AnomalyWindow)
		if err != nil {
			return nil, fmt.Errorf("load actor history: %w", err)
		}
		pattern = s.buildPattern(actor, history, rec.CreatedAt, s.opts.AnomalyWindow)

		prior := excludeRecord(history, rec.ID)
		if pattern.BaselineCount >= s.opts.MinHistory && !containsInt(pattern.UsualHours, rec.CreatedAt.UTC().Hour()) {
			score += 2
			result.Signals = append(result.Signals, "unusual_hour")
		}
		if rec.IPAddress != "" && len(prior) > 0 && !seenIP(prior, rec.IPAddress) {
			score++
			result.Signals = append(result.Signals, "new_ip")
		}
		for _, anomaly := range pattern.Anomalies {
			if anomaly.ActivityID == rec.ID || (anomaly.Kind == models.AnomalyHighFrequency && anomaly.ActivityType == rec.Type) {
				result.AnomalyScore += anomalyWeight(anomaly)
			}
		}
		if result.AnomalyScore > 100 {
			result.AnomalyScore = 100
		}
		score += result.AnomalyScore / 25
	}

	var ipFailures []models.ActivityRecord
	if rec.IPAddress != "" {
		recent, err := sampleActivities(ctx, s.activities, models.ActivityFilter{
			IPAddress:     rec.IPAddress,
			CreatedFrom:   timePtr(rec.CreatedAt.Add(-s.opts.BruteForceWindow)),
			CreatedBefore: timePtr(rec.CreatedAt),
		}, s.opts.HistorySample)
		if err != nil {
			return nil, fmt.Errorf("load ip history: %w", err)
		}
		for i := range recent {
			if isFailedLogin(&recent[i]) || recent[i].Result == models.ResultFailure {
				ipFailures = append(ipFailures, recent[i])
			}
		}
		switch {
		case len(ipFailures) >= s.opts.BruteForceThreshold:
			score += 3
			result.Signals = append(result.Signals, "ip_failure_burst")
		case len(ipFailures) >= 2:
			score++
			result.Signals = append(result.Signals, "ip_recent_failures")
		}
	}

	result.RiskLevel = clampRisk(score)
	if rec.RiskLevel > result.RiskLevel {
		result.RiskLevel = clampRisk(rec.RiskLevel)
	}

	alerts, err := s.alertsFor(ctx, rec, result, pattern, ipFailures)
	if err != nil {
		return nil, err
	}
	result.Alerts = alerts

	if result.RiskLevel != rec.RiskLevel {
		if err := s.activities.SetRiskLevel(ctx, rec.ID, result.RiskLevel); err != nil && !errors.Is(err, sql.ErrNoRows) {
			return nil, fmt.Errorf("store risk level: %w", err)
		}
	}
	return result, nil
}

// sampleActorHistory loads the actor's recent window and the newest part of the
// baseline before it as two capped reads, so inline scoring costs the same for
// busy and quiet actors.
func (s *SecurityService) sampleActorHistory(ctx context.Context, actor string, at time.Time, window time.Duration) ([]models.ActivityRecord, error) {
	windowStart := at.Add(-window)
	baseline, err := sampleActivities(ctx, s.activities, models.ActivityFilter{
		ActorID:       actor,
		CreatedFrom:   timePtr(at.Add(-s.opts.AnomalyHistory)),
		CreatedBefore: timePtr(windowStart),
	}, s.opts.HistorySample)
	if err != nil {
		return nil, err
	}
	recent, err := sampleActivities(ctx, s.activities, models.ActivityFilter{
		ActorID:       actor,
		CreatedFrom:   timePtr(windowStart),
		CreatedBefore: timePtr(at),
	}, s.opts.HistorySample)
	if err != nil {
		return nil, err
	}
	// Both bounds are inclusive; a record exactly on windowStart belongs to the baseline.
	for len(recent) > 0 && !recent[0].CreatedAt.After(windowStart) {
		recent = recent[1:]
	}
	return append(baseline, recent...), nil
}

func (s *SecurityService) alertsFor(ctx context.Context, rec models.ActivityRecord, result *models.AnalysisResult, pattern *models.UserPatternReport, ipFailures []models.ActivityRecord) ([]models.SecurityAlert, error) {
	var raised []models.SecurityAlert
	severity := severityFor(result.RiskLevel*10, result.AnomalyScore)

	if result.RiskLevel >= highRiskAlertLevel {
		alert, err := s.RaiseAlert(ctx, models.AlertHighRisk, severity, rec.ID, props.Object(
			props.F("type", props.String(rec.Type)),
			props.F("riskLevel", props.Int(result.RiskLevel)),
			props.F("signals", stringList(result.Signals)),
		))
		if err != nil {
			return nil, err
		}
		if alert != nil {
			raised = append(raised, *alert)
		}
	}

	var loginFailures []models.ActivityRecord
	for i := range ipFailures {
		if isFailedLogin(&ipFailures[i]) {
			loginFailures = append(loginFailures, ipFailures[i])
		}
	}
	if len(loginFailures) >= s.opts.BruteForceThreshold && isFailedLogin(&rec) {
		risk := s.ipRisk(aggregateFailures(loginFailures)[rec.IPAddress], s.opts.BruteForceWindow)
		alert, err := s.raiseBruteForce(ctx, rec.IPAddress, severityFor(risk.RiskScore, 0), rec.ID, props.Object(
			props.F("ipAddress", props.String(rec.IPAddress)),
			props.F("attemptCount", props.Int(risk.AttemptCount)),
			props.F("riskScore", props.Int(risk.RiskScore)),
		))
		if err != nil {
			return nil, err
		}
		if alert != nil {
			raised = append(raised, *alert)
		}
	}

	if result.AnomalyScore > 0 && pattern != nil {
		alert, err := s.RaiseAlert(ctx, models.AlertAnomaly, severityFor(0, result.AnomalyScore), rec.ID, props.Object(
			props.F("actorId", props.String(pattern.ActorID)),
			props.F("anomalyScore", props.Int(result.AnomalyScore)),
			props.F("anomalies", anomalyList(pattern.Anomalies)),
		))
		if err != nil {
			return nil, err
		}
		if alert != nil {
			raised = append(raised, *alert)
		}
	}
	return raised, nil
}

// raiseBruteForce raises at most one brute_force alert per IP within the
// brute-force window; later failures from the same burst are folded into it.
func (s *SecurityService) raiseBruteForce(ctx context.Context, ip string, severity models.AlertSeverity, activityID string, details props.Value) (*models.SecurityAlert, error) {
	since := s.now().UTC().Add(-s.opts.BruteForceWindow)
	_, total, err := s.alerts.List(ctx, models.SecurityAlertFilter{
		Kind:      models.AlertBruteForce,
		IPAddress: ip,
		Since:     &since,
		Limit:     1,
	})
	if err != nil {
		return nil, fmt.Errorf("check brute force alerts: %w", err)
	}
	if total > 0 {
		return nil, nil
	}
	return s.RaiseAlert(ctx, models.AlertBruteForce, severity, activityID, details)
}

// RaiseAlert appends an alert unless one of the same kind already exists for
// activityID. It returns nil when the alert was a duplicate.
func (s *SecurityService) RaiseAlert(ctx context.Context, kind models.AlertKind, severity models.AlertSeverity, activityID string, details props.Value) (*models.SecurityAlert, error) {
	if activityID != "" {
		exists, err := s.alerts.Exists(ctx, kind, activityID)
		if err != nil {
			return nil, fmt.Errorf("check existing alert: %w", err)
		}
		if exists {
			return nil, nil
		}
	}
	alert := &models.SecurityAlert{
		Severity:  severity,
		Kind:      kind,
		Details:   details,
		CreatedAt: s.now().UTC(),
	}
	if activityID != "" {
		alert.ActivityID = &activityID
	}
	if err := s.alerts.Create(ctx, alert); err != nil {
		return nil, fmt.Errorf("create alert: %w", err)
	}
	s.metrics.RecordAlert(kind, severity)
	s.logger.Warn("security alert raised",
		zap.String("kind", string(kind)),
		zap.String("severity", string(severity)),
		zap.String("activity_id", activityID),
	)
	return alert, nil
}

// severityFor combines a 0-100 risk figure and a 0-100 anomaly score.
func severityFor(risk, anomaly int) models.AlertSeverity {
	combined := risk
	if anomaly > combined {
		combined = anomaly
	}
	switch {
	case combined >= 90:
		return models.SeverityCritical
	case combined >= 70:
		return models.SeverityHigh
	case combined >= 40:
		return models.SeverityMedium
	default:
		return models.SeverityLow
	}
}

func clampRisk(score int) int {
	if score < models.MinRiskLevel {
		return models.MinRiskLevel
	}
	if score > models.MaxRiskLevel {
		return models.MaxRiskLevel
	}
	return score
}

type ipAggregate struct {
	ip       string
	attempts int
	users    map[string]struct{}
	first    time.Time
	last     time.Time
	lastID   string
}

func aggregateFailures(records []models.ActivityRecord) map[string]*ipAggregate {
	byIP := make(map[string]*ipAggregate)
	for i := range records {
		rec := &records[i]
		if rec.IPAddress == "" {
			continue
		}
		agg, ok := byIP[rec.IPAddress]
		if !ok {
			agg = &ipAggregate{ip: rec.IPAddress, users: map[string]struct{}{}, first: rec.CreatedAt, last: rec.CreatedAt, lastID: rec.ID}
			byIP[rec.IPAddress] = agg
		}
		agg.attempts++
		if user := attemptedUser(rec); user != "" {
			agg.users[user] = struct{}{}
		}
		if rec.CreatedAt.Before(agg.first) {
			agg.first = rec.CreatedAt
		}
		if !rec.CreatedAt.Before(agg.last) {
			agg.last = rec.CreatedAt
			agg.lastID = rec.ID
		}
	}
	return byIP
}

func attemptedUser(rec *models.ActivityRecord) string {
	if identifier, ok := rec.Properties.Get("identifier"); ok && identifier.Kind == props.KindString {
		return identifier.Str
	}
	return rec.ActorValue()
}

// ipRisk scores an aggregate out of 100: volume relative to the threshold up to
// 75, time concentration inside window up to 25, and a bonus for spraying
// several accounts.
func (s *SecurityService) ipRisk(agg *ipAggregate, window time.Duration) models.IPRisk {
	if agg == nil {
		return models.IPRisk{}
	}
	ratio := float64(agg.attempts) / float64(s.opts.BruteForceThreshold)
	volume := math.Min(75, 60*ratio)

	concentration := 25.0
	if window > 0 {
		span := agg.last.Sub(agg.first)
		concentration = 25 * (1 - math.Min(1, float64(span)/float64(window)))
	}

	spray := 0.0
	if len(agg.users) > 1 {
		spray = math.Min(15, float64(len(agg.users)-1)*5)
	}

	score := int(math.Round(math.Min(100, volume+concentration+spray)))
	return models.IPRisk{
		IPAddress:     agg.ip,
		AttemptCount:  agg.attempts,
		DistinctUsers: len(agg.users),
		FirstSeen:     agg.first,
		LastSeen:      agg.last,
		RiskScore:     score,
		Suspicious:    score > s.opts.SuspiciousScore,
	}
}

func (s *SecurityService) failedLogins(ctx context.Context, from, to time.Time) ([]models.ActivityRecord, error) {
	records, err := collectActivities(ctx, s.activities, models.ActivityFilter{
		Types:         []string{models.ActivityLoginFailed, models.ActivityLogin},
		CreatedFrom:   &from,
		CreatedBefore: &to,
	}, s.opts.BatchSize)
	if err != nil {
		return nil, err
	}
	failed := records[:0]
	for i := range records {
		if isFailedLogin(&records[i]) {
			failed = append(failed, records[i])
		}
	}
	return failed, nil
}

// rankIPs keeps IPs at or over the attempt threshold, highest risk first.
func (s *SecurityService) rankIPs(failed []models.ActivityRecord, window time.Duration) ([]models.IPRisk, map[string]string) {
	entries := make([]models.IPRisk, 0)
	lastIDs := make(map[string]string)
	for ip, agg := range aggregateFailures(failed) {
		if agg.attempts < s.opts.BruteForceThreshold {
			continue
		}
		entries = append(entries, s.ipRisk(agg, window))
		lastIDs[ip] = agg.lastID
	}
	sort.Slice(entries, func(i, j int) bool {
		if entries[i].RiskScore != entries[j].RiskScore {
			return entries[i].RiskScore > entries[j].RiskScore
		}
		return entries[i].IPAddress < entries[j].IPAddress
	})
	return entries, lastIDs
}

// CheckSuspiciousIPs ranks IPs with at least the threshold of failed logins in the trailing window.
func (s *SecurityService) CheckSuspiciousIPs(ctx context.Context, window time.Duration) ([]models.IPRisk, error) {
	if window <= 0 {
		window = s.opts.BruteForceWindow
	}
	now := s.now().UTC()
	failed, err := s.failedLogins(ctx, now.Add(-window), now)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load failed logins")
	}
	entries, _ := s.rankIPs(failed, window)
	return entries, nil
}

// MonitorFailedLogins reports brute-force candidates over the configured window.
func (s *SecurityService) MonitorFailedLogins(ctx context.Context) (*models.BruteForceReport, error) {
	entries, err := s.CheckSuspiciousIPs(ctx, s.opts.BruteForceWindow)
	if err != nil {
		return nil, err
	}
	return &models.BruteForceReport{
		Window:      s.opts.BruteForceWindow,
		Threshold:   s.opts.BruteForceThreshold,
		GeneratedAt: s.now().UTC(),
		Entries:     entries,
	}, nil
}

// SweepBruteForce raises one brute_force alert per suspicious IP, attached to
// its latest failed login. It returns the number of new alerts.
func (s *SecurityService) SweepBruteForce(ctx context.Context) (int, error) {
	now := s.now().UTC()
	failed, err := s.failedLogins(ctx, now.Add(-s.opts.BruteForceWindow), now)
	if err != nil {
		return 0, err
	}
	entries, lastIDs := s.rankIPs(failed, s.opts.BruteForceWindow)
	raised := 0
	for _, entry := range entries {
		if !entry.Suspicious {
			continue
		}
		alert, err := s.raiseBruteForce(ctx, entry.IPAddress, severityFor(entry.RiskScore, 0), lastIDs[entry.IPAddress], props.Object(
			props.F("ipAddress", props.String(entry.IPAddress)),
			props.F("attemptCount", props.Int(entry.AttemptCount)),
			props.F("distinctUsers", props.Int(entry.DistinctUsers)),
			props.F("riskScore", props.Int(entry.RiskScore)),
		))
		if err != nil {
			return raised, err
		}
		if alert != nil {
			raised++
		}
	}
	return raised, nil
}

// IdentifyPatterns builds the actor's baseline from its newest records in the
// history horizon and flags anomalies inside the trailing window.
func (s *SecurityService) IdentifyPatterns(ctx context.Context, actorID string, window time.Duration) (*models.UserPatternReport, error) {
	actorID = strings.TrimSpace(actorID)
	if actorID == "" {
		return nil, appErrors.Clone(appErrors.ErrValidation, "actor id is required")
	}
	if window <= 0 {
		window = s.opts.AnomalyWindow
	}
	now := s.now().UTC()
	records, err := s.sampleActorHistory(ctx, actorID, now, window)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load actor history")
	}
	return s.buildPattern(actorID, records, now, window), nil
}

// buildPattern splits records into a baseline before now-window and the recent
// window, then applies the high-frequency and off-hours rules.
func (s *SecurityService) buildPattern(actorID string, records []models.ActivityRecord, now time.Time, window time.Duration) *models.UserPatternReport {
	report := &models.UserPatternReport{
		ActorID:     actorID,
		Window:      window,
		TypeCounts:  map[string]int{},
		UsualHours:  []int{},
		DistinctIPs: []string{},
		Anomalies:   []models.Anomaly{},
	}
	windowStart := now.Add(-window)

	var baselineHours [24]int
	baselineTypes := map[string]int{}
	latestOfType := map[string]string{}
	var recent []models.ActivityRecord
	var earliest time.Time
	baseline := 0
	ips := map[string]struct{}{}

	for i := range records {
		rec := records[i]
		hour := rec.CreatedAt.UTC().Hour()
		report.HourHistogram[hour]++
		if rec.IPAddress != "" {
			ips[rec.IPAddress] = struct{}{}
		}
		if rec.CreatedAt.After(windowStart) {
			recent = append(recent, rec)
			report.TypeCounts[rec.Type]++
			latestOfType[rec.Type] = rec.ID
			continue
		}
		baseline++
		baselineHours[hour]++
		baselineTypes[rec.Type]++
		if earliest.IsZero() || rec.CreatedAt.Before(earliest) {
			earliest = rec.CreatedAt
		}
	}
	report.TotalInWindow = len(recent)
	report.BaselineCount = baseline
	for ip := range ips {
		report.DistinctIPs = append(report.DistinctIPs, ip)
	}
	sort.Strings(report.DistinctIPs)

	if baseline > 0 {
		minCount := int(math.Ceil(float64(baseline) * 0.05))
		for hour, count := range baselineHours {
			if count > 0 && count >= minCount {
				report.UsualHours = append(report.UsualHours, hour)
			}
		}
		report.HistoricalDays = int(math.Ceil(windowStart.Sub(earliest).Hours() / 24))
		if report.HistoricalDays < 1 {
			report.HistoricalDays = 1
		}
	}

	periods := 1.0
	if baseline > 0 && window > 0 {
		periods = math.Max(1, float64(windowStart.Sub(earliest))/float64(window))
	}
	types := make([]string, 0, len(report.TypeCounts))
	for t := range report.TypeCounts {
		types = append(types, t)
	}
	sort.Strings(types)
	for _, t := range types {
		count := report.TypeCounts[t]
		average := float64(baselineTypes[t]) / periods
		if count >= minFrequencyCount && float64(count) > s.opts.AnomalyMultiplier*math.Max(average, 1) {
			report.Anomalies = append(report.Anomalies, models.Anomaly{
				Kind:         models.AnomalyHighFrequency,
				ActivityType: t,
				Count:        count,
				Baseline:     math.Round(average*100) / 100,
				ActivityID:   latestOfType[t],
			})
		}
	}

	if baseline >= s.opts.MinHistory {
		for _, rec := range recent {
			hour := rec.CreatedAt.UTC().Hour()
			if s.IsHighRisk(rec.Type) && !containsInt(report.UsualHours, hour) {
				report.Anomalies = append(report.Anomalies, models.Anomaly{
					Kind:         models.AnomalyOffHours,
					ActivityType: rec.Type,
					Hour:         hour,
					ActivityID:   rec.ID,
				})
			}
		}
	}

	score := 0
	for _, anomaly := range report.Anomalies {
		score += anomalyWeight(anomaly)
	}
	if score > 100 {
		score = 100
	}
	report.AnomalyScore = score
	return report
}

func anomalyWeight(a models.Anomaly) int {
	if a.Kind == models.AnomalyHighFrequency {
		return 40
	}
	return 30
}

// SweepAnomalies checks every actor active in the anomaly window and raises
// anomaly alerts for new findings.
func (s *SecurityService) SweepAnomalies(ctx context.Context) (int, error) {
	now := s.now().UTC()
	actors := map[string]struct{}{}
	err := scanActivities(ctx, s.activities, models.ActivityFilter{
		CreatedFrom:   timePtr(now.Add(-s.opts.AnomalyWindow)),
		CreatedBefore: &now,
	}, s.opts.BatchSize, func(page []models.ActivityRecord) error {
		for i := range page {
			if actor := page[i].ActorValue(); actor != "" {
				actors[actor] = struct{}{}
			}
		}
		return nil
	})
	if err != nil {
		return 0, err
	}

	ordered := make([]string, 0, len(actors))
	for actor := range actors {
		ordered = append(ordered, actor)
	}
	sort.Strings(ordered)

	raised := 0
	for _, actor := range ordered {
		if err := ctx.Err(); err != nil {
			return raised, err
		}
		report, err := s.IdentifyPatterns(ctx, actor, s.opts.AnomalyWindow)
		if err != nil {
			return raised, err
		}
		for _, anomaly := range report.Anomalies {
			alert, err := s.RaiseAlert(ctx, models.AlertAnomaly, severityFor(0, report.AnomalyScore), anomaly.ActivityID, props.Object(
				props.F("actorId", props.String(actor)),
				props.F("anomalyScore", props.Int(report.AnomalyScore)),
				props.F("anomalies", anomalyList([]models.Anomaly{anomaly})),
			))
			if err != nil {
				return raised, err
			}
			if alert != nil {
				raised++
			}
		}
	}
	return raised, nil
}

const (
	securityReportPrefix  = "security:report:"
	securityReportPattern = securityReportPrefix + "*"
)

func securityReportKey(window time.Duration) string {
	return securityReportPrefix + window.String()
}

// GenerateSecurityReport summarises the trailing window. Reports are cached per
// window; the bool result reports a cache hit.
func (s *SecurityService) GenerateSecurityReport(ctx context.Context, window time.Duration) (*models.SecurityReport, bool, error) {
	if window <= 0 {
		window = 24 * time.Hour
	}
	if window > s.opts.MaxReportWindow {
		return nil, false, appErrors.Clone(appErrors.ErrValidation, fmt.Sprintf("report window must not exceed %s", s.opts.MaxReportWindow))
	}
	key := securityReportKey(window)
	if s.cache != nil {
		var cached models.SecurityReport
		if hit, err := s.cache.Get(ctx, key, &cached); err == nil && hit {
			return &cached, true, nil
		}
	}

	now := s.now().UTC()
	start := now.Add(-window)
	report := &models.SecurityReport{
		WindowStart: start,
		WindowEnd:   now,
		GeneratedAt: now,
	}

	var failed []models.ActivityRecord
	risky := make([]models.ActivityRecord, 0, reportTopN)
	users := map[string]*models.UserRisk{}
	riskTotals := map[string]int{}
	visit := func(rec models.ActivityRecord) {
		report.Summary.TotalActivities++
		if s.IsHighRisk(rec.Type) || rec.Type == models.ActivityLogin || rec.Type == models.ActivityLogout {
			report.Summary.SecurityEvents++
		}
		if isFailedLogin(&rec) {
			report.Summary.FailedLogins++
			failed = append(failed, rec)
		}
		if rec.RiskLevel >= highRiskReportLevel {
			report.Summary.HighRiskEvents++
		}
		if rec.RiskLevel > 0 {
			risky = append(risky, rec)
		}
		actor := rec.ActorValue()
		if actor == "" {
			return
		}
		user, ok := users[actor]
		if !ok {
			user = &models.UserRisk{ActorID: actor}
			users[actor] = user
		}
		user.Activities++
		riskTotals[actor] += rec.RiskLevel
		if rec.RiskLevel >= highRiskReportLevel {
			user.HighRisk++
		}
		if rec.RiskLevel > user.MaxRiskLevel {
			user.MaxRiskLevel = rec.RiskLevel
		}
		if rec.Result == models.ResultFailure {
			user.FailedActions++
		}
	}
	err := scanActivities(ctx, s.activities, models.ActivityFilter{CreatedFrom: &start, CreatedBefore: &now}, s.opts.BatchSize, func(page []models.ActivityRecord) error {
		for i := range page {
			visit(page[i])
		}
		risky = topRisks(risky)
		return nil
	})
	if err != nil {
		return nil, false, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load activities for report")
	}
	_, alertTotal, err := s.alerts.List(ctx, models.SecurityAlertFilter{Since: &start, Limit: 1})
	if err != nil {
		return nil, false, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to count alerts")
	}
	report.Summary.AlertsRaised = alertTotal
	report.TopRisks = topRisks(risky)

	ips, _ := s.rankIPs(failed, window)
	report.SuspiciousIPs = make([]models.IPRisk, 0, len(ips))
	for _, entry := range ips {
		if entry.Suspicious {
			report.SuspiciousIPs = append(report.SuspiciousIPs, entry)
		}
	}

	ranking := make([]models.UserRisk, 0, len(users))
	for actor, user := range users {
		user.AverageRisk = math.Round(float64(riskTotals[actor])/float64(user.Activities)*100) / 100
		ranking = append(ranking, *user)
	}
	sort.Slice(ranking, func(i, j int) bool {
		if ranking[i].HighRisk != ranking[j].HighRisk {
			return ranking[i].HighRisk > ranking[j].HighRisk
		}
		if ranking[i].AverageRisk != ranking[j].AverageRisk {
			return ranking[i].AverageRisk > ranking[j].AverageRisk
		}
		return ranking[i].ActorID < ranking[j].ActorID
	})
	if len(ranking) > reportTopN {
		ranking = ranking[:reportTopN]
	}
	report.UserRiskRanking = ranking
	report.Recommendations = s.recommendations(report)

	if s.cache != nil {
		_ = s.cache.Set(ctx, key, report, s.opts.ReportCacheTTL)
	}
	return report, false, nil
}

// topRisks orders records by risk, newest first on ties, and keeps reportTopN.
func topRisks(records []models.ActivityRecord) []models.ActivityRecord {
	sort.SliceStable(records, func(i, j int) bool {
		if records[i].RiskLevel != records[j].RiskLevel {
			return records[i].RiskLevel > records[j].RiskLevel
		}
		return records[i].CreatedAt.After(records[j].CreatedAt)
	})
	if len(records) > reportTopN {
		records = records[:reportTopN]
	}
	return records
}

func (s *SecurityService) recommendations(report *models.SecurityReport) []string {
	out := make([]string, 0, 4)
	if n := len(report.SuspiciousIPs); n > 0 {
		out = append(out, fmt.Sprintf("Block or rate-limit %d IP address(es) with repeated failed logins", n))
	}
	if report.Summary.FailedLogins >= s.opts.BruteForceThreshold {
		out = append(out, fmt.Sprintf("Review authentication activity: %d failed logins in the window", report.Summary.FailedLogins))
	}
	if report.Summary.HighRiskEvents > 0 {
		out = append(out, fmt.Sprintf("Review %d high-risk activities", report.Summary.HighRiskEvents))
	}
	for _, user := range report.UserRiskRanking {
		if user.HighRisk >= 3 {
			out = append(out, fmt.Sprintf("Audit recent actions of actor %s (%d high-risk activities)", user.ActorID, user.HighRisk))
		}
	}
	if len(out) == 0 {
		out = append(out, "No immediate action required")
	}
	return out
}

// ListAlerts returns a page of alerts, newest first.
func (s *SecurityService) ListAlerts(ctx context.Context, query dto.AlertListQuery) ([]models.SecurityAlert, *models.Pagination, error) {
	if err := s.validator.Struct(query); err != nil {
		return nil, nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid alert filter")
	}
	page, size := normalizePage(query.Page, query.PageSize, 50)
	alerts, total, err := s.alerts.List(ctx, models.SecurityAlertFilter{
		Kind:       models.AlertKind(query.Kind),
		Severity:   models.AlertSeverity(query.Severity),
		ActivityID: query.ActivityID,
		Limit:      size,
		Offset:     (page - 1) * size,
	})
	if err != nil {
		return nil, nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to list alerts")
	}
	return alerts, &models.Pagination{Page: page, PageSize: size, TotalCount: total}, nil
}

func excludeRecord(records []models.ActivityRecord, id string) []models.ActivityRecord {
	out := make([]models.ActivityRecord, 0, len(records))
	for _, rec := range records {
		if rec.ID != id {
			out = append(out, rec)
		}
	}
	return out
}

func seenIP(records []models.ActivityRecord, ip string) bool {
	for i := range records {
		if records[i].IPAddress == ip {
			return true
		}
	}
	return false
}

func containsInt(values []int, v int) bool {
	for _, x := range values {
		if x == v {
			return true
		}
	}
	return false
}

func timePtr(t time.Time) *time.Time {
	return &t
}

func stringList(values []string) props.Value {
	items := make([]props.Value, len(values))
	for i, v := range values {
		items[i] = props.String(v)
	}
	return props.List(items...)
}

func anomalyList(anomalies []models.Anomaly) props.Value {
	items := make([]props.Value, 0, len(anomalies))
	for _, a := range anomalies {
		item := props.Object(
			props.F("kind", props.String(string(a.Kind))),
			props.F("activityType", props.String(a.ActivityType)),
		)
		if a.Kind == models.AnomalyHighFrequency {
			item = item.Set("count", props.Int(a.Count)).Set("baseline", props.Number(a.Baseline))
		} else {
			item = item.Set("hour", props.Int(a.Hour))
		}
		if a.ActivityID != "" {
			item = item.Set("activityId", props.String(a.ActivityID))
		}
		items = append(items, item)
	}
	return props.List(items...)
}
