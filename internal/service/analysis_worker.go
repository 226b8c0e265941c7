package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/noah-isme/activity-audit-api/internal/models"
	"github.com/noah-isme/activity-audit-api/pkg/jobs"
)

const analyzeJobType = "activity.analyze"

type recordAnalyzer interface {
	Analyze(ctx context.Context, rec models.ActivityRecord) (*models.AnalysisResult, error)
	IsHighRisk(activityType string) bool
}

// AnalysisWorkerConfig sizes the deferred analysis pool.
type AnalysisWorkerConfig struct {
	Workers     int
	BufferSize  int
	MaxRetries  int
	RetryDelay  time.Duration
	SyncTimeout time.Duration
}

// AnalysisWorker routes stored records to the analyzer: high-risk types inline,
// everything else through a bounded in-process queue.
type AnalysisWorker struct {
	analyzer    recordAnalyzer
	queue       *jobs.Queue
	metrics     *MetricsService
	logger      *zap.Logger
	syncTimeout time.Duration
}

// NewAnalysisWorker wires the queue. Call Start before dispatching deferred work.
func NewAnalysisWorker(analyzer recordAnalyzer, metrics *MetricsService, logger *zap.Logger, cfg AnalysisWorkerConfig) *AnalysisWorker {
	if logger == nil {
		logger = zap.NewNop()
	}
	if cfg.SyncTimeout <= 0 {
		cfg.SyncTimeout = 2 * time.Second
	}
	w := &AnalysisWorker{
		analyzer:    analyzer,
		metrics:     metrics,
		logger:      logger,
		syncTimeout: cfg.SyncTimeout,
	}
	w.queue = jobs.NewQueue("activity-analysis", w.handle, jobs.QueueConfig{
		Workers:    cfg.Workers,
		BufferSize: cfg.BufferSize,
		MaxRetries: cfg.MaxRetries,
		RetryDelay: cfg.RetryDelay,
		Logger:     logger,
	})
	return w
}

// Start launches the deferred workers.
func (w *AnalysisWorker) Start(ctx context.Context) {
	w.queue.Start(ctx)
}

// Stop waits for in-flight analyses. Buffered records keep their written risk level.
func (w *AnalysisWorker) Stop() {
	w.queue.Stop()
}

// Stats exposes queue counters.
func (w *AnalysisWorker) Stats() jobs.Stats {
	return w.queue.Stats()
}

// Dispatch never returns an error: a record that cannot be analyzed keeps its
// written risk level.
func (w *AnalysisWorker) Dispatch(ctx context.Context, rec *models.ActivityRecord) {
	if rec == nil || rec.ID == "" {
		return
	}
	if w.analyzer.IsHighRisk(rec.Type) {
		w.analyzeInline(ctx, rec)
		return
	}

	err := w.queue.TryEnqueue(jobs.Job{ID: rec.ID, Type: analyzeJobType, Payload: *rec})
	if err == nil {
		return
	}
	w.metrics.RecordAnalysis("deferred", "dropped")
	if errors.Is(err, jobs.ErrQueueFull) {
		w.logger.Warn("analysis queue full, record left unscored", zap.String("activity_id", rec.ID), zap.String("type", rec.Type))
		return
	}
	w.logger.Warn("analysis queue unavailable", zap.String("activity_id", rec.ID), zap.Error(err))
}

func (w *AnalysisWorker) analyzeInline(ctx context.Context, rec *models.ActivityRecord) {
	ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), w.syncTimeout)
	defer cancel()

	result, err := w.analyzer.Analyze(ctx, *rec)
	if err != nil {
		w.metrics.RecordAnalysis("sync", "failed")
		w.logger.Warn("inline analysis failed", zap.String("activity_id", rec.ID), zap.String("type", rec.Type), zap.Error(err))
		return
	}
	w.metrics.RecordAnalysis("sync", "ok")
	rec.RiskLevel = result.RiskLevel
}

func (w *AnalysisWorker) handle(ctx context.Context, job jobs.Job) error {
	rec, ok := job.Payload.(models.ActivityRecord)
	if !ok {
		w.metrics.RecordAnalysis("deferred", "failed")
		w.logger.Error("unexpected analysis payload", zap.String("job_id", job.ID), zap.String("payload", fmt.Sprintf("%T", job.Payload)))
		return nil
	}
	if _, err := w.analyzer.Analyze(ctx, rec); err != nil {
		w.metrics.RecordAnalysis("deferred", "failed")
		return fmt.Errorf("analyze %s: %w", rec.ID, err)
	}
	w.metrics.RecordAnalysis("deferred", "ok")
	return nil
}
