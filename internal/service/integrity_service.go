package service

import (
	"context"
	"database/sql"
	"errors"
	"sync/atomic"
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
	reasonMissingSignature = "missing signature"
	reasonDigestMismatch   = "signature mismatch"
)

type integrityActivityStore interface {
	activityScanner
	GetByID(ctx context.Context, id string) (*models.ActivityRecord, error)
}

type integrityVerifier interface {
	Check(signature string, fields integrity.Fields) error
}

type tamperAlertRaiser interface {
	RaiseAlert(ctx context.Context, kind models.AlertKind, severity models.AlertSeverity, activityID string, details props.Value) (*models.SecurityAlert, error)
}

// IntegrityService recomputes signatures over stored activities. It never
// mutates records and may run concurrently with writes.
type IntegrityService struct {
	activities integrityActivityStore
	verifier   integrityVerifier
	alerts     tamperAlertRaiser
	metrics    *MetricsService
	validator  *validator.Validate
	logger     *zap.Logger
	batchSize  int
	running    atomic.Bool
	now        func() time.Time
}

// NewIntegrityService constructs the service. alerts may be nil.
func NewIntegrityService(activities integrityActivityStore, verifier integrityVerifier, alerts tamperAlertRaiser, metrics *MetricsService, validate *validator.Validate, logger *zap.Logger, batchSize int) *IntegrityService {
	if logger == nil {
		logger = zap.NewNop()
	}
	if validate == nil {
		validate = validator.New()
	}
	if batchSize <= 0 {
		batchSize = defaultScanBatch
	}
	return &IntegrityService{
		activities: activities,
		verifier:   verifier,
		alerts:     alerts,
		metrics:    metrics,
		validator:  validate,
		logger:     logger,
		batchSize:  batchSize,
		now:        time.Now,
	}
}

// classify returns "" for a valid record or the failure reason.
func (s *IntegrityService) classify(rec *models.ActivityRecord) (string, bool) {
	signature := rec.SignatureValue()
	if signature == "" {
		return reasonMissingSignature, true
	}
	if err := s.verifier.Check(signature, rec.CanonicalFields()); err != nil {
		if errors.Is(err, integrity.ErrMissingSignature) {
			return reasonMissingSignature, true
		}
		return reasonDigestMismatch + ": " + err.Error(), false
	}
	return "", false
}

// AuditAll verifies every record created before the audit started. Records
// written during the run are left for the next one. Only one audit runs at a time.
func (s *IntegrityService) AuditAll(ctx context.Context) (*models.IntegrityReport, error) {
	if !s.running.CompareAndSwap(false, true) {
		return nil, appErrors.Clone(appErrors.ErrConflict, "integrity audit already running")
	}
	defer s.running.Store(false)

	started := s.now().UTC()
	report := &models.IntegrityReport{
		Status:           models.StatusCompleted,
		CorruptedRecords: []models.CorruptedRecord{},
		StartedAt:        started,
	}

	err := scanActivities(ctx, s.activities, models.ActivityFilter{CreatedBefore: &started}, s.batchSize, func(page []models.ActivityRecord) error {
		for i := range page {
			rec := &page[i]
			report.TotalChecked++
			reason, missing := s.classify(rec)
			switch {
			case reason == "":
				report.ValidRecords++
				s.metrics.RecordVerification("valid")
				continue
			case missing:
				report.MissingSignatures++
				s.metrics.RecordVerification("missing")
			default:
				report.InvalidRecords++
				s.metrics.RecordVerification("invalid")
				s.raiseTamperAlert(ctx, rec, reason)
			}
			report.CorruptedRecords = append(report.CorruptedRecords, models.CorruptedRecord{
				ID:        rec.ID,
				Type:      rec.Type,
				CreatedAt: rec.CreatedAt,
				Reason:    reason,
			})
		}
		return nil
	})
	report.CompletedAt = s.now().UTC()
	if err != nil {
		report.Status = models.StatusFailed
		s.logger.Error("integrity audit interrupted", zap.Int("checked", report.TotalChecked), zap.Error(err))
		return report, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "integrity audit interrupted")
	}

	s.logger.Info("integrity audit completed",
		zap.Int("checked", report.TotalChecked),
		zap.Int("valid", report.ValidRecords),
		zap.Int("invalid", report.InvalidRecords),
		zap.Int("missing", report.MissingSignatures),
	)
	return report, nil
}

func (s *IntegrityService) raiseTamperAlert(ctx context.Context, rec *models.ActivityRecord, reason string) {
	if s.alerts == nil {
		return
	}
	_, err := s.alerts.RaiseAlert(ctx, models.AlertTampering, models.SeverityCritical, rec.ID, props.Object(
		props.F("type", props.String(rec.Type)),
		props.F("createdAt", props.String(rec.CreatedAt.UTC().Format(time.RFC3339Nano))),
		props.F("reason", props.String(reason)),
	))
	if err != nil {
		s.logger.Warn("tamper alert not stored", zap.String("activity_id", rec.ID), zap.Error(err))
	}
}

// VerifyRecord checks one stored record.
func (s *IntegrityService) VerifyRecord(ctx context.Context, id string) (*models.VerificationResult, error) {
	rec, err := s.load(ctx, id)
	if err != nil {
		return nil, err
	}
	return s.verification(rec), nil
}

// Diagnose verifies the stored record and lists the signed fields that differ
// from a trusted snapshot, such as one kept by the caller at write time.
func (s *IntegrityService) Diagnose(ctx context.Context, id string, snapshot dto.TamperCheckRequest) (*models.VerificationResult, error) {
	if err := s.validator.Struct(snapshot); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid snapshot")
	}
	rec, err := s.load(ctx, id)
	if err != nil {
		return nil, err
	}
	result := s.verification(rec)
	result.TamperedFields = integrity.TamperedFields(integrity.Fields{
		Type:        snapshot.Type,
		Description: snapshot.Description,
		ActorID:     snapshot.ActorID,
		Module:      snapshot.Module,
		Result:      snapshot.Result,
		CreatedAt:   snapshot.CreatedAt,
		Properties:  snapshot.Properties,
	}, rec.CanonicalFields())
	return result, nil
}

func (s *IntegrityService) verification(rec *models.ActivityRecord) *models.VerificationResult {
	result := &models.VerificationResult{ActivityID: rec.ID, Valid: true}
	if version, _, err := integrity.ParseSignature(rec.SignatureValue()); err == nil {
		result.Version = version
	}
	reason, missing := s.classify(rec)
	switch {
	case reason == "":
		s.metrics.RecordVerification("valid")
	case missing:
		result.Valid = false
		result.Reason = reason
		s.metrics.RecordVerification("missing")
	default:
		result.Valid = false
		result.Reason = reason
		s.metrics.RecordVerification("invalid")
	}
	return result
}

func (s *IntegrityService) load(ctx context.Context, id string) (*models.ActivityRecord, error) {
	rec, err := s.activities.GetByID(ctx, id)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "activity not found")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load activity")
	}
	return rec, nil
}
