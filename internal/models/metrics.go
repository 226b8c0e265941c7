package models

import "time"

// SystemMetrics is the JSON snapshot served next to the Prometheus endpoint.
type SystemMetrics struct {
	ActivitiesAppended       uint64    `json:"activitiesAppended"`
	AppendFailures           uint64    `json:"appendFailures"`
	VerificationFailures     uint64    `json:"verificationFailures"`
	AlertsRaised             uint64    `json:"alertsRaised"`
	RecordsArchived          uint64    `json:"recordsArchived"`
	RecordsDeleted           uint64    `json:"recordsDeleted"`
	AnalysisDropped          uint64    `json:"analysisDropped"`
	CacheHitRatio            float64   `json:"cacheHitRatio"`
	CacheHits                uint64    `json:"cacheHits"`
	CacheMisses              uint64    `json:"cacheMisses"`
	RequestsTotal            uint64    `json:"requestsTotal"`
	AverageRequestDurationMs float64   `json:"averageRequestDurationMs"`
	Goroutines               int       `json:"goroutines"`
	GeneratedAt              time.Time `json:"generatedAt"`
}
