package models

import (
	"time"

	"github.com/noah-isme/activity-audit-api/pkg/props"
)

// AlertSeverity grades a SecurityAlert.
type AlertSeverity string

const (
	SeverityLow      AlertSeverity = "low"
	SeverityMedium   AlertSeverity = "medium"
	SeverityHigh     AlertSeverity = "high"
	SeverityCritical AlertSeverity = "critical"
)

// AlertKind names the condition that raised an alert.
type AlertKind string

const (
	AlertBruteForce AlertKind = "brute_force"
	AlertAnomaly    AlertKind = "anomaly"
	AlertTampering  AlertKind = "tampering"
	AlertHighRisk   AlertKind = "high_risk"
)

// SecurityAlert is append-only.
type SecurityAlert struct {
	ID         string        `db:"id" json:"id"`
	ActivityID *string       `db:"activity_id" json:"activityId,omitempty"`
	Severity   AlertSeverity `db:"severity" json:"severity"`
	Kind       AlertKind     `db:"kind" json:"kind"`
	Details    props.Value   `db:"details" json:"details"`
	CreatedAt  time.Time     `db:"created_at" json:"createdAt"`
}

// SecurityAlertFilter narrows alert listing.
type SecurityAlertFilter struct {
	Kind       AlertKind
	Severity   AlertSeverity
	ActivityID string
	IPAddress  string
	Since      *time.Time
	Limit      int
	Offset     int
}

// AnalysisResult is the output of scoring one record.
type AnalysisResult struct {
	ActivityID   string          `json:"activityId"`
	RiskLevel    int             `json:"riskLevel"`
	BaseScore    int             `json:"baseScore"`
	Signals      []string        `json:"signals"`
	AnomalyScore int             `json:"anomalyScore"`
	Alerts       []SecurityAlert `json:"alerts,omitempty"`
}

// IPRisk describes one IP address with failed login attempts in a window.
type IPRisk struct {
	IPAddress     string    `json:"ipAddress"`
	AttemptCount  int       `json:"attemptCount"`
	DistinctUsers int       `json:"distinctUsers"`
	FirstSeen     time.Time `json:"firstSeen"`
	LastSeen      time.Time `json:"lastSeen"`
	RiskScore     int       `json:"riskScore"`
	Suspicious    bool      `json:"suspicious"`
}

// BruteForceReport lists IPs over the attempt threshold.
type BruteForceReport struct {
	Window      time.Duration `json:"window"`
	Threshold   int           `json:"threshold"`
	GeneratedAt time.Time     `json:"generatedAt"`
	Entries     []IPRisk      `json:"entries"`
}

// AnomalyKind distinguishes the two per-actor anomaly signals.
type AnomalyKind string

const (
	AnomalyHighFrequency AnomalyKind = "high_frequency"
	AnomalyOffHours      AnomalyKind = "off_hours"
)

// Anomaly is one flagged deviation from an actor's baseline.
type Anomaly struct {
	Kind         AnomalyKind `json:"kind"`
	ActivityType string      `json:"activityType"`
	Count        int         `json:"count,omitempty"`
	Baseline     float64     `json:"baseline,omitempty"`
	Hour         int         `json:"hour,omitempty"`
	ActivityID   string      `json:"activityId,omitempty"`
}

// UserPatternReport summarises an actor's behaviour over a window.
type UserPatternReport struct {
	ActorID        string         `json:"actorId"`
	Window         time.Duration  `json:"window"`
	TotalInWindow  int            `json:"totalInWindow"`
	BaselineCount  int            `json:"baselineCount"`
	HourHistogram  [24]int        `json:"hourHistogram"`
	TypeCounts     map[string]int `json:"typeCounts"`
	UsualHours     []int          `json:"usualHours"`
	DistinctIPs    []string       `json:"distinctIps"`
	Anomalies      []Anomaly      `json:"anomalies"`
	AnomalyScore   int            `json:"anomalyScore"`
	HistoricalDays int            `json:"historicalDays"`
}

// SecuritySummary holds headline counts for a report window.
type SecuritySummary struct {
	TotalActivities int `json:"totalActivities"`
	SecurityEvents  int `json:"securityEvents"`
	FailedLogins    int `json:"failedLogins"`
	HighRiskEvents  int `json:"highRiskEvents"`
	AlertsRaised    int `json:"alertsRaised"`
}

// UserRisk ranks an actor by accumulated risk.
type UserRisk struct {
	ActorID       string  `json:"actorId"`
	Activities    int     `json:"activities"`
	HighRisk      int     `json:"highRisk"`
	AverageRisk   float64 `json:"averageRisk"`
	MaxRiskLevel  int     `json:"maxRiskLevel"`
	FailedActions int     `json:"failedActions"`
}

// SecurityReport is the periodic overview.
type SecurityReport struct {
	WindowStart     time.Time        `json:"windowStart"`
	WindowEnd       time.Time        `json:"windowEnd"`
	Summary         SecuritySummary  `json:"summary"`
	TopRisks        []ActivityRecord `json:"topRisks"`
	SuspiciousIPs   []IPRisk         `json:"suspiciousIps"`
	UserRiskRanking []UserRisk       `json:"userRiskRanking"`
	Recommendations []string         `json:"recommendations"`
	GeneratedAt     time.Time        `json:"generatedAt"`
}

// CorruptedRecord identifies a record that failed verification.
type CorruptedRecord struct {
	ID        string    `json:"id"`
	Type      string    `json:"type"`
	CreatedAt time.Time `json:"createdAt"`
	Reason    string    `json:"reason"`
}

// IntegrityReport tallies an audit over every stored record.
type IntegrityReport struct {
	Status            RunStatus         `json:"status"`
	TotalChecked      int               `json:"totalChecked"`
	ValidRecords      int               `json:"validRecords"`
	InvalidRecords    int               `json:"invalidRecords"`
	MissingSignatures int               `json:"missingSignatures"`
	CorruptedRecords  []CorruptedRecord `json:"corruptedRecords"`
	StartedAt         time.Time         `json:"startedAt"`
	CompletedAt       time.Time         `json:"completedAt"`
}

// VerificationResult is the single-record verify outcome with diagnostics.
type VerificationResult struct {
	ActivityID     string   `json:"activityId"`
	Valid          bool     `json:"valid"`
	Reason         string   `json:"reason,omitempty"`
	Version        string   `json:"version,omitempty"`
	TamperedFields []string `json:"tamperedFields,omitempty"`
}
