package service

import (
	"net/http"
	"runtime"
	"strconv"
	"sync/atomic"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/noah-isme/activity-audit-api/internal/models"
)

// MetricsService encapsulates Prometheus instrumentation for the audit log and
// keeps a few totals for the JSON snapshot endpoint.
type MetricsService struct {
	registry        *prometheus.Registry
	handler         http.Handler
	requestDuration *prometheus.HistogramVec
	requestTotal    *prometheus.CounterVec
	cacheLatency    prometheus.Histogram
	cacheWrite      prometheus.Histogram
	cacheHitRatio   prometheus.Gauge
	cacheHits       prometheus.Counter
	cacheMisses     prometheus.Counter

	appended       *prometheus.CounterVec
	appendFailures prometheus.Counter
	verifications  *prometheus.CounterVec
	alerts         *prometheus.CounterVec
	retention      *prometheus.CounterVec
	retentionRuns  *prometheus.CounterVec
	analysis       *prometheus.CounterVec

	cacheHitCount        uint64
	cacheMissCount       uint64
	requestCount         uint64
	requestDurationTotal uint64
	appendedCount        uint64
	appendFailureCount   uint64
	verifyFailureCount   uint64
	alertCount           uint64
	archivedCount        uint64
	deletedCount         uint64
	analysisDropCount    uint64
}

// NewMetricsService registers the collectors on a private registry.
func NewMetricsService() *MetricsService {
	registry := prometheus.NewRegistry()

	m := &MetricsService{
		registry: registry,
		requestDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "http_request_duration_seconds",
			Help:    "Duration of HTTP requests in seconds",
			Buckets: prometheus.DefBuckets,
		}, []string{"method", "path", "status"}),
		requestTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "http_requests_total",
			Help: "Total number of HTTP requests",
		}, []string{"method", "path", "status"}),
		cacheLatency: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "cache_latency_seconds",
			Help:    "Latency for cache lookups",
			Buckets: prometheus.DefBuckets,
		}),
		cacheWrite: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "cache_write_seconds",
			Help:    "Latency for cache set operations",
			Buckets: prometheus.DefBuckets,
		}),
		cacheHitRatio: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "cache_hit_ratio",
			Help: "Ratio of cache hits to total cache lookups",
		}),
		cacheHits: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "cache_hits_total",
			Help: "Total cache hits",
		}),
		cacheMisses: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "cache_misses_total",
			Help: "Total cache misses",
		}),
		appended: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "audit_activities_appended_total",
			Help: "Activities written to the log",
		}, []string{"module", "result"}),
		appendFailures: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "audit_append_failures_total",
			Help: "Activity writes that failed",
		}),
		verifications: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "audit_signature_verifications_total",
			Help: "Signature checks by outcome (valid, invalid, missing)",
		}, []string{"outcome"}),
		alerts: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "audit_security_alerts_total",
			Help: "Security alerts raised",
		}, []string{"kind", "severity"}),
		retention: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "audit_retention_records_total",
			Help: "Records moved by retention runs",
		}, []string{"action"}),
		retentionRuns: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "audit_retention_runs_total",
			Help: "Retention runs by status",
		}, []string{"type", "status"}),
		analysis: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "audit_analysis_total",
			Help: "Risk analysis executions by mode and outcome",
		}, []string{"mode", "outcome"}),
	}

	goroutines := prometheus.NewGaugeFunc(prometheus.GaugeOpts{
		Name: "goroutines_total",
		Help: "Total number of goroutines",
	}, func() float64 {
		return float64(runtime.NumGoroutine())
	})

	registry.MustRegister(
		m.requestDuration, m.requestTotal,
		m.cacheLatency, m.cacheWrite, m.cacheHitRatio, m.cacheHits, m.cacheMisses,
		m.appended, m.appendFailures, m.verifications, m.alerts, m.retention, m.retentionRuns, m.analysis,
		goroutines,
	)
	m.handler = promhttp.HandlerFor(registry, promhttp.HandlerOpts{})
	return m
}

// Registry exposes the underlying registry for tests.
func (m *MetricsService) Registry() *prometheus.Registry {
	return m.registry
}

// Handler exposes the Prometheus HTTP handler.
func (m *MetricsService) Handler() http.Handler {
	if m == nil {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.WriteHeader(http.StatusServiceUnavailable)
		})
	}
	return m.handler
}

// ObserveHTTPRequest records request metrics and aggregates simple stats for snapshots.
func (m *MetricsService) ObserveHTTPRequest(method, path string, status int, duration time.Duration) {
	if m == nil {
		return
	}
	labelStatus := strconv.Itoa(status)
	m.requestDuration.WithLabelValues(method, path, labelStatus).Observe(duration.Seconds())
	m.requestTotal.WithLabelValues(method, path, labelStatus).Inc()
	atomic.AddUint64(&m.requestCount, 1)
	atomic.AddUint64(&m.requestDurationTotal, uint64(duration.Nanoseconds()))
}

// RecordCacheOperation records cache hit/miss metrics and updates hit ratio.
func (m *MetricsService) RecordCacheOperation(hit bool, duration time.Duration) {
	if m == nil {
		return
	}
	m.cacheLatency.Observe(duration.Seconds())
	if hit {
		m.cacheHits.Inc()
		atomic.AddUint64(&m.cacheHitCount, 1)
	} else {
		m.cacheMisses.Inc()
		atomic.AddUint64(&m.cacheMissCount, 1)
	}
	hits := atomic.LoadUint64(&m.cacheHitCount)
	total := hits + atomic.LoadUint64(&m.cacheMissCount)
	if total > 0 {
		m.cacheHitRatio.Set(float64(hits) / float64(total))
	}
}

// ObserveCacheWrite tracks the duration for cache write operations.
func (m *MetricsService) ObserveCacheWrite(duration time.Duration) {
	if m == nil {
		return
	}
	m.cacheWrite.Observe(duration.Seconds())
}

// RecordAppend counts one append attempt.
func (m *MetricsService) RecordAppend(module string, result models.ActivityResult, err error) {
	if m == nil {
		return
	}
	if err != nil {
		m.appendFailures.Inc()
		atomic.AddUint64(&m.appendFailureCount, 1)
		return
	}
	m.appended.WithLabelValues(module, string(result)).Inc()
	atomic.AddUint64(&m.appendedCount, 1)
}

// RecordVerification counts a signature check. Outcome is valid, invalid or missing.
func (m *MetricsService) RecordVerification(outcome string) {
	if m == nil {
		return
	}
	m.verifications.WithLabelValues(outcome).Inc()
	if outcome != "valid" {
		atomic.AddUint64(&m.verifyFailureCount, 1)
	}
}

// RecordAlert counts a raised alert.
func (m *MetricsService) RecordAlert(kind models.AlertKind, severity models.AlertSeverity) {
	if m == nil {
		return
	}
	m.alerts.WithLabelValues(string(kind), string(severity)).Inc()
	atomic.AddUint64(&m.alertCount, 1)
}

// RecordRetention counts one retention run and the records it moved.
func (m *MetricsService) RecordRetention(runType models.CleanupType, report models.ExecutionReport) {
	if m == nil {
		return
	}
	m.retentionRuns.WithLabelValues(string(runType), string(report.Status)).Inc()
	if report.DryRun {
		return
	}
	if report.RecordsArchived > 0 {
		m.retention.WithLabelValues(string(models.RetentionArchive)).Add(float64(report.RecordsArchived))
		atomic.AddUint64(&m.archivedCount, uint64(report.RecordsArchived))
	}
	if report.RecordsDeleted > 0 {
		m.retention.WithLabelValues(string(models.RetentionDelete)).Add(float64(report.RecordsDeleted))
		atomic.AddUint64(&m.deletedCount, uint64(report.RecordsDeleted))
	}
}

// RecordAnalysis counts an analysis attempt. Mode is sync or deferred.
func (m *MetricsService) RecordAnalysis(mode, outcome string) {
	if m == nil {
		return
	}
	m.analysis.WithLabelValues(mode, outcome).Inc()
	if outcome == "dropped" {
		atomic.AddUint64(&m.analysisDropCount, 1)
	}
}

// Snapshot returns aggregated metrics for the JSON endpoint.
func (m *MetricsService) Snapshot() models.SystemMetrics {
	if m == nil {
		return models.SystemMetrics{}
	}
	hits := atomic.LoadUint64(&m.cacheHitCount)
	misses := atomic.LoadUint64(&m.cacheMissCount)
	requests := atomic.LoadUint64(&m.requestCount)
	reqDuration := atomic.LoadUint64(&m.requestDurationTotal)

	var cacheRatio float64
	if hits+misses > 0 {
		cacheRatio = float64(hits) / float64(hits+misses)
	}

	var avgRequestMs float64
	if requests > 0 {
		avgRequestMs = float64(reqDuration) / float64(requests) / float64(time.Millisecond)
	}

	return models.SystemMetrics{
		ActivitiesAppended:       atomic.LoadUint64(&m.appendedCount),
		AppendFailures:           atomic.LoadUint64(&m.appendFailureCount),
		VerificationFailures:     atomic.LoadUint64(&m.verifyFailureCount),
		AlertsRaised:             atomic.LoadUint64(&m.alertCount),
		RecordsArchived:          atomic.LoadUint64(&m.archivedCount),
		RecordsDeleted:           atomic.LoadUint64(&m.deletedCount),
		AnalysisDropped:          atomic.LoadUint64(&m.analysisDropCount),
		CacheHitRatio:            cacheRatio,
		CacheHits:                hits,
		CacheMisses:              misses,
		RequestsTotal:            requests,
		AverageRequestDurationMs: avgRequestMs,
		Goroutines:               runtime.NumGoroutine(),
		GeneratedAt:              time.Now().UTC(),
	}
}
