package service

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/go-playground/validator/v10"
	"go.uber.org/zap"

	"github.com/noah-isme/activity-audit-api/internal/dto"
	"github.com/noah-isme/activity-audit-api/internal/models"
	"github.com/noah-isme/activity-audit-api/pkg/integrity"
	"github.com/noah-isme/activity-audit-api/pkg/props"
	appErrors "github.com/noah-isme/activity-audit-api/pkg/errors"
)

const (
	previewSampleSize = 10
	manualRunKey      = "manual"
)

type retentionActivityStore interface {
	activityScanner
	ArchiveAndDelete(ctx context.Context, archived *models.ArchivedRecord) (bool, error)
	Purge(ctx context.Context, id string) (bool, error)
}

type retentionArchiveStore interface {
	GetByID(ctx context.Context, id string) (*models.ArchivedRecord, error)
	List(ctx context.Context, filter models.ArchiveFilter) ([]models.ArchivedRecord, error)
	Count(ctx context.Context, filter models.ArchiveFilter) (int, error)
	Restore(ctx context.Context, archivedID string, rec *models.ActivityRecord) error
	PurgeBefore(ctx context.Context, before time.Time) (int64, error)
}

type retentionPolicyStore interface {
	Create(ctx context.Context, policy *models.RetentionPolicy) error
	Update(ctx context.Context, policy *models.RetentionPolicy) error
	Delete(ctx context.Context, id string) error
	GetByID(ctx context.Context, id string) (*models.RetentionPolicy, error)
	List(ctx context.Context, filter models.RetentionPolicyFilter) ([]models.RetentionPolicy, error)
}

type cleanupLogStore interface {
	Create(ctx context.Context, entry *models.CleanupLog) error
	List(ctx context.Context, filter models.CleanupLogFilter) ([]models.CleanupLog, int, error)
}

type retentionSigner interface {
	Sign(fields integrity.Fields) (string, error)
	Verify(signature string, fields integrity.Fields) bool
}

// retentionAuditor records retention actions in the activity log itself.
type retentionAuditor interface {
	Append(ctx context.Context, draft models.ActivityDraft) (*models.ActivityRecord, error)
}

// reportInvalidator drops cached security reports once records leave or
// return to the live log.
type reportInvalidator interface {
	Invalidate(ctx context.Context, pattern string) error
}

// RetentionService evaluates retention policies, archives or purges aged
// activities, and restores archived ones.
type RetentionService struct {
	activities retentionActivityStore
	archives   retentionArchiveStore
	policies   retentionPolicyStore
	logs       cleanupLogStore
	signer     retentionSigner
	auditor    retentionAuditor
	reports    reportInvalidator
	metrics    *MetricsService
	validator  *validator.Validate
	logger     *zap.Logger
	batchSize  int
	now        func() time.Time

	mu      sync.Mutex
	running map[string]struct{}
}

// NewRetentionService constructs the engine. auditor and reports may be nil.
func NewRetentionService(activities retentionActivityStore, archives retentionArchiveStore, policies retentionPolicyStore, logs cleanupLogStore, signer retentionSigner, auditor retentionAuditor, reports reportInvalidator, metrics *MetricsService, validate *validator.Validate, logger *zap.Logger, batchSize int) *RetentionService {
	if logger == nil {
		logger = zap.NewNop()
	}
	if validate == nil {
		validate = validator.New()
	}
	if batchSize <= 0 {
		batchSize = defaultScanBatch
	}
	return &RetentionService{
		activities: activities,
		archives:   archives,
		policies:   policies,
		logs:       logs,
		signer:     signer,
		auditor:    auditor,
		reports:    reports,
		metrics:    metrics,
		validator:  validate,
		logger:     logger,
		batchSize:  batchSize,
		now:        time.Now,
		running:    map[string]struct{}{},
	}
}

// selection is the matching half of a run: a coarse store filter plus the
// in-memory predicate the store cannot express.
type selection struct {
	filter models.ActivityFilter
	match  func(*models.ActivityRecord) bool
}

func policySelection(policy *models.RetentionPolicy, now time.Time) selection {
	cutoff := policy.Cutoff(now)
	filter := models.ActivityFilter{CreatedBefore: &cutoff}
	if policy.ActivityType != nil {
		filter.Type = *policy.ActivityType
	}
	if policy.Module != nil {
		filter.Module = *policy.Module
	}
	conditions := policy.Conditions
	return selection{filter: filter, match: conditions.Matches}
}

func (s *RetentionService) acquire(key string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, busy := s.running[key]; busy {
		return false
	}
	s.running[key] = struct{}{}
	return true
}

func (s *RetentionService) release(key string) {
	s.mu.Lock()
	delete(s.running, key)
	s.mu.Unlock()
}

type runRequest struct {
	key         string
	policyID    *string
	policyName  string
	action      models.RetentionAction
	cleanupType models.CleanupType
	executedBy  string
	dryRun      bool
	sel         selection
}

// run walks matching records in keyset order. Each archive-then-delete or purge
// is its own atomic step, so an interrupted run leaves a valid store and the
// next run picks up where it stopped.
func (s *RetentionService) run(ctx context.Context, req runRequest) (*models.ExecutionReport, error) {
	if !s.acquire(req.key) {
		return nil, appErrors.Clone(appErrors.ErrConflict, "retention run already in progress")
	}
	defer s.release(req.key)

	started := s.now().UTC()
	report := &models.ExecutionReport{
		Status:     models.StatusCompleted,
		PolicyID:   req.policyID,
		PolicyName: req.policyName,
		Action:     req.action,
		DryRun:     req.dryRun,
		StartedAt:  started,
	}
	reason := "manual cleanup"
	if req.policyID != nil {
		reason = "retention policy " + req.policyName
	}

	err := scanActivities(ctx, s.activities, req.sel.filter, s.batchSize, func(page []models.ActivityRecord) error {
		for i := range page {
			if err := ctx.Err(); err != nil {
				return err
			}
			rec := page[i]
			if !req.sel.match(&rec) {
				continue
			}
			if req.dryRun {
				report.RecordsProcessed++
				if req.action == models.RetentionArchive {
					report.RecordsArchived++
				}
				report.RecordsDeleted++
				continue
			}
			if err := s.apply(ctx, req, rec, reason, report); err != nil {
				return err
			}
		}
		return nil
	})
	report.CompletedAt = s.now().UTC()

	if err != nil {
		report.Status = models.StatusFailed
		report.Error = err.Error()
		s.logger.Error("retention run failed",
			zap.String("run", req.key),
			zap.Int("processed", report.RecordsProcessed),
			zap.Error(err),
		)
	}
	if !req.dryRun {
		if logErr := s.writeCleanupLog(ctx, req, report); logErr != nil && err == nil {
			err = logErr
		}
		s.audit(ctx, req, report)
		if report.RecordsDeleted > 0 {
			s.invalidateReports(ctx)
		}
	}
	s.metrics.RecordRetention(req.cleanupType, *report)

	if err != nil {
		return report, appErrors.Wrap(err, appErrors.ErrPolicyExecution.Code, appErrors.ErrPolicyExecution.Status, fmt.Sprintf("retention run %s failed", req.key))
	}
	return report, nil
}

func (s *RetentionService) apply(ctx context.Context, req runRequest, rec models.ActivityRecord, reason string, report *models.ExecutionReport) error {
	switch req.action {
	case models.RetentionArchive:
		archived := models.NewArchivedRecord(rec, req.executedBy, reason, s.now().UTC())
		moved, err := s.activities.ArchiveAndDelete(ctx, &archived)
		if err != nil {
			return fmt.Errorf("archive %s: %w", rec.ID, err)
		}
		if moved {
			report.RecordsProcessed++
			report.RecordsArchived++
			report.RecordsDeleted++
		}
	case models.RetentionDelete:
		removed, err := s.activities.Purge(ctx, rec.ID)
		if err != nil {
			return fmt.Errorf("purge %s: %w", rec.ID, err)
		}
		if removed {
			report.RecordsProcessed++
			report.RecordsDeleted++
		}
	default:
		return fmt.Errorf("unknown retention action %q", req.action)
	}
	return nil
}

func (s *RetentionService) writeCleanupLog(ctx context.Context, req runRequest, report *models.ExecutionReport) error {
	entry := &models.CleanupLog{
		PolicyID:         req.policyID,
		Type:             req.cleanupType,
		Action:           req.action,
		Status:           report.Status,
		RecordsProcessed: report.RecordsProcessed,
		RecordsArchived:  report.RecordsArchived,
		RecordsDeleted:   report.RecordsDeleted,
		ExecutedBy:       req.executedBy,
		StartedAt:        report.StartedAt,
		CompletedAt:      report.CompletedAt,
	}
	if report.Error != "" {
		msg := report.Error
		entry.ErrorMessage = &msg
	}
	// The log is written even when the run was cancelled.
	if err := s.logs.Create(context.WithoutCancel(ctx), entry); err != nil {
		s.logger.Error("cleanup log not stored", zap.String("run", req.key), zap.Error(err))
		return fmt.Errorf("write cleanup log: %w", err)
	}
	report.CleanupLogID = entry.ID
	return nil
}

func (s *RetentionService) invalidateReports(ctx context.Context) {
	if s.reports == nil {
		return
	}
	if err := s.reports.Invalidate(context.WithoutCancel(ctx), securityReportPattern); err != nil {
		s.logger.Warn("security reports not invalidated", zap.Error(err))
	}
}

func (s *RetentionService) audit(ctx context.Context, req runRequest, report *models.ExecutionReport) {
	if s.auditor == nil || report.RecordsDeleted == 0 {
		return
	}
	actor := req.executedBy
	properties := props.Object(
		props.F("action", props.String(string(req.action))),
		props.F("cleanupType", props.String(string(req.cleanupType))),
		props.F("recordsProcessed", props.Int(report.RecordsProcessed)),
		props.F("recordsArchived", props.Int(report.RecordsArchived)),
		props.F("recordsDeleted", props.Int(report.RecordsDeleted)),
		props.F("cleanupLogId", props.String(report.CleanupLogID)),
	)
	draft := models.ActivityDraft{
		Type:        models.ActivityRecordsPurged,
		Description: fmt.Sprintf("retention %s removed %d activities", req.action, report.RecordsDeleted),
		ActorID:     &actor,
		Module:      "activity",
		Properties:  properties,
		Result:      models.ResultSuccess,
	}
	if req.policyID != nil {
		draft.SubjectType = strPtr("retention_policy")
		draft.SubjectID = req.policyID
	}
	if report.Status == models.StatusFailed {
		draft.Result = models.ResultWarning
	}
	if _, err := s.auditor.Append(context.WithoutCancel(ctx), draft); err != nil {
		s.logger.Warn("retention audit entry not stored", zap.String("run", req.key), zap.Error(err))
	}
}

// Execute runs one policy. Dry runs count would-be changes and write nothing.
func (s *RetentionService) Execute(ctx context.Context, policyID string, dryRun bool, executedBy string) (*models.ExecutionReport, error) {
	policy, err := s.GetPolicy(ctx, policyID)
	if err != nil {
		return nil, err
	}
	return s.executePolicy(ctx, policy, dryRun, executedBy)
}

func (s *RetentionService) executePolicy(ctx context.Context, policy *models.RetentionPolicy, dryRun bool, executedBy string) (*models.ExecutionReport, error) {
	if err := policy.Conditions.Validate(); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "policy conditions are invalid")
	}
	id := policy.ID
	return s.run(ctx, runRequest{
		key:         "policy:" + policy.ID,
		policyID:    &id,
		policyName:  policy.Name,
		action:      policy.Action,
		cleanupType: models.CleanupAutomatic,
		executedBy:  executedBy,
		dryRun:      dryRun,
		sel:         policySelection(policy, s.now().UTC()),
	})
}

// ExecuteAll runs every active policy, highest priority first. A failing policy
// is recorded in its cleanup log and does not stop the others.
func (s *RetentionService) ExecuteAll(ctx context.Context, executedBy string) ([]models.ExecutionReport, error) {
	policies, err := s.policies.List(ctx, models.RetentionPolicyFilter{ActiveOnly: true})
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to list retention policies")
	}
	reports := make([]models.ExecutionReport, 0, len(policies))
	for i := range policies {
		if err := ctx.Err(); err != nil {
			return reports, err
		}
		policy := policies[i]
		report, err := s.executePolicy(ctx, &policy, false, executedBy)
		if report != nil {
			reports = append(reports, *report)
		}
		if err != nil {
			s.logger.Warn("retention policy skipped or failed", zap.String("policy_id", policy.ID), zap.String("policy", policy.Name), zap.Error(err))
		}
	}
	return reports, nil
}

// ManualCleanup archives or deletes records selected by ad-hoc criteria.
func (s *RetentionService) ManualCleanup(ctx context.Context, req dto.ManualCleanupRequest, executedBy string) (*models.ExecutionReport, error) {
	if err := s.validator.Struct(req); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid cleanup criteria")
	}
	criteria := models.CleanupCriteria{
		DateFrom:     req.DateFrom,
		DateTo:       req.DateTo,
		Module:       strings.TrimSpace(req.Module),
		Type:         strings.TrimSpace(req.Type),
		MinRiskLevel: req.MinRiskLevel,
		MaxRiskLevel: req.MaxRiskLevel,
	}
	if criteria.DateFrom != nil && criteria.DateFrom.After(criteria.DateTo) {
		return nil, appErrors.Clone(appErrors.ErrValidation, "dateFrom must not be after dateTo")
	}
	if criteria.MinRiskLevel != nil && criteria.MaxRiskLevel != nil && *criteria.MinRiskLevel > *criteria.MaxRiskLevel {
		return nil, appErrors.Clone(appErrors.ErrValidation, "minRiskLevel must not exceed maxRiskLevel")
	}

	filter := models.ActivityFilter{
		Type:          criteria.Type,
		Module:        criteria.Module,
		MinRiskLevel:  criteria.MinRiskLevel,
		CreatedFrom:   criteria.DateFrom,
		CreatedBefore: &criteria.DateTo,
	}
	maxRisk := criteria.MaxRiskLevel
	return s.run(ctx, runRequest{
		key:         manualRunKey,
		action:      models.RetentionAction(req.Action),
		cleanupType: models.CleanupManual,
		executedBy:  executedBy,
		dryRun:      req.DryRun,
		sel: selection{filter: filter, match: func(rec *models.ActivityRecord) bool {
			return maxRisk == nil || rec.RiskLevel <= *maxRisk
		}},
	})
}

// Preview lists what a policy would touch now without mutating anything.
func (s *RetentionService) Preview(ctx context.Context, policyID string) (*models.PreviewReport, error) {
	policy, err := s.GetPolicy(ctx, policyID)
	if err != nil {
		return nil, err
	}
	now := s.now().UTC()
	sel := policySelection(policy, now)
	report := &models.PreviewReport{
		PolicyID:      policy.ID,
		PolicyName:    policy.Name,
		Action:        policy.Action,
		Cutoff:        policy.Cutoff(now),
		ByType:        map[string]int{},
		ByModule:      map[string]int{},
		SampleRecords: []models.ActivityRecord{},
	}
	err = scanActivities(ctx, s.activities, sel.filter, s.batchSize, func(page []models.ActivityRecord) error {
		for i := range page {
			rec := page[i]
			if !sel.match(&rec) {
				continue
			}
			report.MatchCount++
			report.ByType[rec.Type]++
			report.ByModule[rec.Module]++
			if report.OldestRecord == nil {
				report.OldestRecord = timePtr(rec.CreatedAt)
			}
			report.NewestRecord = timePtr(rec.CreatedAt)
			if len(report.SampleRecords) < previewSampleSize {
				report.SampleRecords = append(report.SampleRecords, rec)
			}
		}
		return nil
	})
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to preview policy")
	}
	return report, nil
}

// Restore moves archived records back into the live log. Each snapshot must
// still verify before it is re-signed under the current key; failures are
// reported per id and never abort the batch.
func (s *RetentionService) Restore(ctx context.Context, req dto.RestoreRequest, restoredBy string) (*models.RestoreReport, error) {
	if err := s.validator.Struct(req); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid restore request")
	}
	ids := uniqueStrings(req.ArchivedIDs)
	report := &models.RestoreReport{Requested: len(ids), Results: make([]models.RestoreOutcome, 0, len(ids))}

	for _, id := range ids {
		outcome := models.RestoreOutcome{ArchivedID: id}
		if err := ctx.Err(); err != nil {
			outcome.Error = appErrors.Clone(appErrors.ErrRestore, "restore interrupted").Error()
		} else if restoredID, err := s.restoreOne(ctx, id); err != nil {
			outcome.Error = err.Error()
		} else {
			outcome.Success = true
			outcome.RestoredID = restoredID
		}
		if outcome.Success {
			report.Restored++
		} else {
			report.Failed++
			s.logger.Warn("archived record not restored", zap.String("archived_id", id), zap.String("error", outcome.Error))
		}
		report.Results = append(report.Results, outcome)
	}
	if report.Restored > 0 {
		s.invalidateReports(ctx)
	}

	if report.Restored > 0 && s.auditor != nil {
		actor := restoredBy
		restored := make([]props.Value, 0, report.Restored)
		for _, outcome := range report.Results {
			if outcome.Success {
				restored = append(restored, props.String(outcome.RestoredID))
			}
		}
		_, err := s.auditor.Append(context.WithoutCancel(ctx), models.ActivityDraft{
			Type:        models.ActivityRecordsRestored,
			Description: fmt.Sprintf("restored %d archived activities", report.Restored),
			ActorID:     &actor,
			Module:      "activity",
			Properties:  props.Object(props.F("restoredIds", props.List(restored...)), props.F("failed", props.Int(report.Failed))),
			Result:      models.ResultSuccess,
		})
		if err != nil {
			s.logger.Warn("restore audit entry not stored", zap.Error(err))
		}
	}
	return report, nil
}

func (s *RetentionService) restoreOne(ctx context.Context, archivedID string) (string, error) {
	archived, err := s.archives.GetByID(ctx, archivedID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return "", appErrors.Clone(appErrors.ErrRestore, "archived record not found")
		}
		return "", appErrors.Wrap(err, appErrors.ErrRestore.Code, appErrors.ErrRestore.Status, "failed to load archived record")
	}
	rec := archived.Snapshot()
	if !s.signer.Verify(rec.SignatureValue(), rec.CanonicalFields()) {
		return "", appErrors.Clone(appErrors.ErrRestore, "archived snapshot failed signature verification")
	}
	signature, err := s.signer.Sign(rec.CanonicalFields())
	if err != nil {
		return "", appErrors.Wrap(err, appErrors.ErrRestore.Code, appErrors.ErrRestore.Status, "failed to re-sign archived record")
	}
	rec.Signature = &signature
	if err := s.archives.Restore(ctx, archivedID, &rec); err != nil {
		return "", appErrors.Wrap(err, appErrors.ErrRestore.Code, appErrors.ErrRestore.Status, "failed to restore archived record")
	}
	return rec.ID, nil
}

// PurgeArchived permanently removes archives older than req.Before.
func (s *RetentionService) PurgeArchived(ctx context.Context, req dto.PurgeArchivedRequest, executedBy string) (*models.PurgeReport, error) {
	if err := s.validator.Struct(req); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid purge request")
	}
	if req.Before.After(s.now()) {
		return nil, appErrors.Clone(appErrors.ErrValidation, "before must not be in the future")
	}
	deleted, err := s.archives.PurgeBefore(ctx, req.Before)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to purge archived activities")
	}
	report := &models.PurgeReport{Before: req.Before, Deleted: deleted}
	s.logger.Info("archived activities purged", zap.Time("before", req.Before), zap.Int64("deleted", deleted), zap.String("executed_by", executedBy))
	if deleted > 0 {
		s.invalidateReports(ctx)
	}
	if deleted > 0 && s.auditor != nil {
		actor := executedBy
		_, err := s.auditor.Append(context.WithoutCancel(ctx), models.ActivityDraft{
			Type:        models.ActivityRecordsPurged,
			Description: fmt.Sprintf("purged %d archived activities", deleted),
			ActorID:     &actor,
			Module:      "activity",
			Properties: props.Object(
				props.F("scope", props.String("archive")),
				props.F("before", props.String(req.Before.UTC().Format(time.RFC3339))),
				props.F("deleted", props.Int(int(deleted))),
			),
			Result: models.ResultSuccess,
		})
		if err != nil {
			s.logger.Warn("purge audit entry not stored", zap.Error(err))
		}
	}
	return report, nil
}

// CreatePolicy stores a new policy.
func (s *RetentionService) CreatePolicy(ctx context.Context, req dto.RetentionPolicyRequest, createdBy string) (*models.RetentionPolicy, error) {
	policy, err := s.policyFromRequest(req)
	if err != nil {
		return nil, err
	}
	policy.CreatedBy = createdBy
	if err := s.policies.Create(ctx, policy); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to create retention policy")
	}
	return policy, nil
}

// UpdatePolicy replaces the editable fields of a policy.
func (s *RetentionService) UpdatePolicy(ctx context.Context, id string, req dto.RetentionPolicyRequest) (*models.RetentionPolicy, error) {
	existing, err := s.GetPolicy(ctx, id)
	if err != nil {
		return nil, err
	}
	policy, err := s.policyFromRequest(req)
	if err != nil {
		return nil, err
	}
	policy.ID = existing.ID
	policy.CreatedBy = existing.CreatedBy
	policy.CreatedAt = existing.CreatedAt
	if req.IsActive == nil {
		policy.IsActive = existing.IsActive
	}
	if err := s.policies.Update(ctx, policy); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "retention policy not found")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to update retention policy")
	}
	return policy, nil
}

// DeletePolicy removes a policy. Its cleanup logs are kept.
func (s *RetentionService) DeletePolicy(ctx context.Context, id string) error {
	if err := s.policies.Delete(ctx, id); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return appErrors.Clone(appErrors.ErrNotFound, "retention policy not found")
		}
		return appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to delete retention policy")
	}
	return nil
}

// GetPolicy loads a policy by id.
func (s *RetentionService) GetPolicy(ctx context.Context, id string) (*models.RetentionPolicy, error) {
	policy, err := s.policies.GetByID(ctx, id)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "retention policy not found")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load retention policy")
	}
	return policy, nil
}

// ListPolicies returns policies in execution order.
func (s *RetentionService) ListPolicies(ctx context.Context, activeOnly bool) ([]models.RetentionPolicy, error) {
	policies, err := s.policies.List(ctx, models.RetentionPolicyFilter{ActiveOnly: activeOnly})
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to list retention policies")
	}
	return policies, nil
}

func (s *RetentionService) policyFromRequest(req dto.RetentionPolicyRequest) (*models.RetentionPolicy, error) {
	if err := s.validator.Struct(req); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid retention policy")
	}
	conditions := make(models.Conditions, 0, len(req.Conditions))
	for _, c := range req.Conditions {
		conditions = append(conditions, models.Condition{
			Field:    strings.TrimSpace(c.Field),
			Operator: models.ConditionOperator(c.Operator),
			Value:    c.Value,
		})
	}
	if err := conditions.Validate(); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, err.Error())
	}
	policy := &models.RetentionPolicy{
		Name:          strings.TrimSpace(req.Name),
		ActivityType:  trimmedOrNil(req.ActivityType),
		Module:        trimmedOrNil(req.Module),
		Conditions:    conditions,
		RetentionDays: req.RetentionDays,
		Action:        models.RetentionAction(req.Action),
		IsActive:      true,
		Priority:      req.Priority,
	}
	if req.IsActive != nil {
		policy.IsActive = *req.IsActive
	}
	return policy, nil
}

// ListCleanupLogs returns execution history, newest first.
func (s *RetentionService) ListCleanupLogs(ctx context.Context, query dto.CleanupLogQuery) ([]models.CleanupLog, *models.Pagination, error) {
	if err := s.validator.Struct(query); err != nil {
		return nil, nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid cleanup log filter")
	}
	page, size := normalizePage(query.Page, query.PageSize, 50)
	logs, total, err := s.logs.List(ctx, models.CleanupLogFilter{
		PolicyID: query.PolicyID,
		Type:     models.CleanupType(query.Type),
		Status:   models.RunStatus(query.Status),
		Limit:    size,
		Offset:   (page - 1) * size,
	})
	if err != nil {
		return nil, nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to list cleanup logs")
	}
	return logs, &models.Pagination{Page: page, PageSize: size, TotalCount: total}, nil
}

// ListArchives returns archived records, most recently archived first.
func (s *RetentionService) ListArchives(ctx context.Context, query dto.ArchiveListQuery) ([]models.ArchivedRecord, *models.Pagination, error) {
	if err := s.validator.Struct(query); err != nil {
		return nil, nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid archive filter")
	}
	page, size := normalizePage(query.Page, query.PageSize, 50)
	filter := models.ArchiveFilter{
		OriginalID: query.OriginalID,
		Type:       query.Type,
		Module:     query.Module,
		Limit:      size,
		Offset:     (page - 1) * size,
	}
	items, err := s.archives.List(ctx, filter)
	if err != nil {
		return nil, nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to list archived activities")
	}
	total, err := s.archives.Count(ctx, filter)
	if err != nil {
		return nil, nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to count archived activities")
	}
	return items, &models.Pagination{Page: page, PageSize: size, TotalCount: total}, nil
}

func uniqueStrings(values []string) []string {
	seen := make(map[string]struct{}, len(values))
	out := make([]string, 0, len(values))
	for _, v := range values {
		v = strings.TrimSpace(v)
		if v == "" {
			continue
		}
		if _, dup := seen[v]; dup {
			continue
		}
		seen[v] = struct{}{}
		out = append(out, v)
	}
	return out
}

func trimmedOrNil(s *string) *string {
	if s == nil {
		return nil
	}
	v := strings.TrimSpace(*s)
	if v == "" {
		return nil
	}
	return &v
}

func strPtr(s string) *string {
	return &s
}
