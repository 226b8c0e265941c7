package service

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/robfig/cron/v3"
	"go.uber.org/zap"

	"github.com/noah-isme/activity-audit-api/internal/models"
	appErrors "github.com/noah-isme/activity-audit-api/pkg/errors"
	"github.com/noah-isme/activity-audit-api/pkg/logger"
)

// Maintenance job names.
const (
	JobRetention       = "retention"
	JobIntegrityAudit  = "integrity-audit"
	JobBruteForceSweep = "brute-force-sweep"
	JobAnomalySweep    = "anomaly-sweep"
)

type retentionRunner interface {
	ExecuteAll(ctx context.Context, executedBy string) ([]models.ExecutionReport, error)
}

type integrityAuditor interface {
	AuditAll(ctx context.Context) (*models.IntegrityReport, error)
}

type securitySweeper interface {
	SweepBruteForce(ctx context.Context) (int, error)
	SweepAnomalies(ctx context.Context) (int, error)
}

// MaintenanceSchedule holds cron expressions per job. Empty expressions leave a job unscheduled.
type MaintenanceSchedule struct {
	Retention       string
	IntegrityAudit  string
	BruteForceSweep string
	AnomalySweep    string
	SystemActor     string
	JobTimeout      time.Duration
}

// JobStatus reports the last outcome of a maintenance job.
type JobStatus struct {
	Name        string     `json:"name"`
	Schedule    string     `json:"schedule,omitempty"`
	Running     bool       `json:"running"`
	LastStarted *time.Time `json:"lastStarted,omitempty"`
	LastSuccess *time.Time `json:"lastSuccess,omitempty"`
	LastError   string     `json:"lastError,omitempty"`
	LastSummary string     `json:"lastSummary,omitempty"`
	NextRun     *time.Time `json:"nextRun,omitempty"`
}

type maintenanceJob struct {
	name     string
	schedule string
	run      func(ctx context.Context) (string, error)
	entry    cron.EntryID
	status   JobStatus
}

// MaintenanceScheduler runs retention, integrity audits and security sweeps on cron schedules.
type MaintenanceScheduler struct {
	cron   *cron.Cron
	logger *zap.Logger
	cfg    MaintenanceSchedule
	now    func() time.Time

	mu   sync.Mutex
	jobs map[string]*maintenanceJob

	ctx    context.Context
	cancel context.CancelFunc
}

// NewMaintenanceScheduler wires the jobs. Any of the services may be nil, which disables their jobs.
func NewMaintenanceScheduler(cfg MaintenanceSchedule, retention retentionRunner, auditor integrityAuditor, sweeper securitySweeper, log *zap.Logger) *MaintenanceScheduler {
	if log == nil {
		log = zap.NewNop()
	}
	if cfg.SystemActor == "" {
		cfg.SystemActor = "system"
	}
	if cfg.JobTimeout <= 0 {
		cfg.JobTimeout = 30 * time.Minute
	}
	cronLogger := logger.NewCronLogger(log)
	ctx, cancel := context.WithCancel(context.Background())
	s := &MaintenanceScheduler{
		cron: cron.New(
			cron.WithLogger(cronLogger),
			cron.WithChain(cron.Recover(cronLogger), cron.SkipIfStillRunning(cronLogger)),
		),
		logger: log.Named("maintenance"),
		cfg:    cfg,
		now:    time.Now,
		jobs:   map[string]*maintenanceJob{},
		ctx:    ctx,
		cancel: cancel,
	}

	if retention != nil {
		s.register(JobRetention, cfg.Retention, func(ctx context.Context) (string, error) {
			reports, err := retention.ExecuteAll(ctx, cfg.SystemActor)
			failed, removed := 0, 0
			for _, r := range reports {
				if r.Status == models.StatusFailed {
					failed++
				}
				removed += r.RecordsDeleted
			}
			return fmt.Sprintf("%d policies run, %d failed, %d records removed", len(reports), failed, removed), err
		})
	}
	if auditor != nil {
		s.register(JobIntegrityAudit, cfg.IntegrityAudit, func(ctx context.Context) (string, error) {
			report, err := auditor.AuditAll(ctx)
			if report == nil {
				return "", err
			}
			return fmt.Sprintf("%d checked, %d invalid, %d missing signatures", report.TotalChecked, report.InvalidRecords, report.MissingSignatures), err
		})
	}
	if sweeper != nil {
		s.register(JobBruteForceSweep, cfg.BruteForceSweep, func(ctx context.Context) (string, error) {
			raised, err := sweeper.SweepBruteForce(ctx)
			return fmt.Sprintf("%d alerts raised", raised), err
		})
		s.register(JobAnomalySweep, cfg.AnomalySweep, func(ctx context.Context) (string, error) {
			raised, err := sweeper.SweepAnomalies(ctx)
			return fmt.Sprintf("%d alerts raised", raised), err
		})
	}
	return s
}

func (s *MaintenanceScheduler) register(name, schedule string, run func(ctx context.Context) (string, error)) {
	s.jobs[name] = &maintenanceJob{
		name:     name,
		schedule: schedule,
		run:      run,
		status:   JobStatus{Name: name, Schedule: schedule},
	}
}

// Start adds every scheduled job to cron and starts it. An invalid expression fails startup.
func (s *MaintenanceScheduler) Start() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, job := range s.jobs {
		if job.schedule == "" {
			continue
		}
		name := job.name
		entry, err := s.cron.AddFunc(job.schedule, func() {
			if _, err := s.execute(s.ctx, name); err != nil {
				s.logger.Warn("scheduled maintenance job failed", zap.String("job", name), zap.Error(err))
			}
		})
		if err != nil {
			return fmt.Errorf("schedule %s (%q): %w", name, job.schedule, err)
		}
		job.entry = entry
		s.logger.Info("scheduled maintenance job", zap.String("job", name), zap.String("schedule", job.schedule))
	}
	s.cron.Start()
	return nil
}

// Stop cancels running jobs and waits for them to return or for ctx to expire.
func (s *MaintenanceScheduler) Stop(ctx context.Context) error {
	s.cancel()
	done := s.cron.Stop()
	select {
	case <-done.Done():
		s.logger.Info("maintenance scheduler stopped")
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// RunNow triggers a job outside its schedule. It fails with a conflict while the job is running.
func (s *MaintenanceScheduler) RunNow(ctx context.Context, name string) (*JobStatus, error) {
	return s.execute(ctx, name)
}

func (s *MaintenanceScheduler) execute(ctx context.Context, name string) (*JobStatus, error) {
	s.mu.Lock()
	job, ok := s.jobs[name]
	if !ok {
		s.mu.Unlock()
		return nil, appErrors.Clone(appErrors.ErrNotFound, "maintenance job not found")
	}
	if job.status.Running {
		s.mu.Unlock()
		return nil, appErrors.Clone(appErrors.ErrConflict, "maintenance job already running")
	}
	started := s.now().UTC()
	job.status.Running = true
	job.status.LastStarted = &started
	s.mu.Unlock()

	runCtx, cancel := context.WithTimeout(ctx, s.cfg.JobTimeout)
	defer cancel()
	summary, err := job.run(runCtx)

	s.mu.Lock()
	defer s.mu.Unlock()
	job.status.Running = false
	job.status.LastSummary = summary
	if err != nil {
		job.status.LastError = err.Error()
	} else {
		finished := s.now().UTC()
		job.status.LastSuccess = &finished
		job.status.LastError = ""
	}
	s.logger.Info("maintenance job finished",
		zap.String("job", name),
		zap.String("summary", summary),
		zap.Duration("duration", s.now().Sub(started)),
		zap.Bool("ok", err == nil),
	)
	status := s.statusLocked(job)
	return &status, err
}

// Jobs lists every registered job sorted by name.
func (s *MaintenanceScheduler) Jobs() []JobStatus {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]JobStatus, 0, len(s.jobs))
	for _, job := range s.jobs {
		out = append(out, s.statusLocked(job))
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out
}

func (s *MaintenanceScheduler) statusLocked(job *maintenanceJob) JobStatus {
	status := job.status
	if job.entry != 0 {
		if next := s.cron.Entry(job.entry).Next; !next.IsZero() {
			status.NextRun = timePtr(next)
		}
	}
	return status
}
