package service

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"go.uber.org/zap"

	"github.com/noah-isme/activity-audit-api/internal/dto"
	"github.com/noah-isme/activity-audit-api/internal/models"
	"github.com/noah-isme/activity-audit-api/pkg/integrity"
	"github.com/noah-isme/activity-audit-api/pkg/props"
	"github.com/noah-isme/activity-audit-api/pkg/redact"
	appErrors "github.com/noah-isme/activity-audit-api/pkg/errors"
)

type activityStore interface {
	Insert(ctx context.Context, rec *models.ActivityRecord) error
	GetByID(ctx context.Context, id string) (*models.ActivityRecord, error)
	List(ctx context.Context, filter models.ActivityFilter) ([]models.ActivityRecord, error)
	Count(ctx context.Context, filter models.ActivityFilter) (int, error)
}

type activityRedactor interface {
	Redact(properties props.Value, ipAddress, userAgent string) redact.Fields
	MaskText(s string) string
}

type activitySigner interface {
	Sign(fields integrity.Fields) (string, error)
}

// analysisDispatcher scores a freshly stored record. Synchronous analysis may
// raise rec.RiskLevel in place; failures never reach the caller.
type analysisDispatcher interface {
	Dispatch(ctx context.Context, rec *models.ActivityRecord)
}

// RequestMeta carries the explicit actor and request origin threaded from the
// HTTP boundary into the convenience writers.
type RequestMeta struct {
	ActorID   *string
	IPAddress string
	UserAgent string
}

// ActivityService is the append-only activity store. Records are redacted,
// signed and persisted in one ordered pipeline and can never be changed.
type ActivityService struct {
	store     activityStore
	redactor  activityRedactor
	signer    activitySigner
	analysis  analysisDispatcher
	metrics   *MetricsService
	validator *validator.Validate
	logger    *zap.Logger
	now       func() time.Time
}

// NewActivityService constructs the service. analysis may be nil.
func NewActivityService(store activityStore, redactor activityRedactor, signer activitySigner, analysis analysisDispatcher, metrics *MetricsService, validate *validator.Validate, logger *zap.Logger) *ActivityService {
	if logger == nil {
		logger = zap.NewNop()
	}
	if validate == nil {
		validate = validator.New()
	}
	return &ActivityService{
		store:     store,
		redactor:  redactor,
		signer:    signer,
		analysis:  analysis,
		metrics:   metrics,
		validator: validate,
		logger:    logger,
		now:       time.Now,
	}
}

// Append runs redact, sign and persist for one draft and returns the stored record.
func (s *ActivityService) Append(ctx context.Context, draft models.ActivityDraft) (*models.ActivityRecord, error) {
	if err := normalizeDraft(&draft); err != nil {
		return nil, err
	}

	redacted := s.redactor.Redact(draft.Properties, draft.IPAddress, draft.UserAgent)
	rec := &models.ActivityRecord{
		Type:        draft.Type,
		Description: s.redactor.MaskText(draft.Description),
		ActorID:     draft.ActorID,
		SubjectType: draft.SubjectType,
		SubjectID:   draft.SubjectID,
		Module:      draft.Module,
		Properties:  redacted.Properties,
		IPAddress:   redacted.IPAddress,
		UserAgent:   redacted.UserAgent,
		Result:      draft.Result,
		RiskLevel:   draft.RiskLevel,
		CreatedAt:   s.now().UTC().Truncate(time.Microsecond),
	}

	signature, err := s.signer.Sign(rec.CanonicalFields())
	if err != nil {
		s.metrics.RecordAppend(rec.Module, rec.Result, err)
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to sign activity")
	}
	rec.Signature = &signature

	if err := s.store.Insert(ctx, rec); err != nil {
		s.metrics.RecordAppend(rec.Module, rec.Result, err)
		s.logger.Error("activity append failed", zap.String("type", rec.Type), zap.Error(err))
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to store activity")
	}
	s.metrics.RecordAppend(rec.Module, rec.Result, nil)

	if s.analysis != nil {
		s.analysis.Dispatch(ctx, rec)
	}
	return rec, nil
}

func normalizeDraft(draft *models.ActivityDraft) error {
	draft.Type = strings.TrimSpace(draft.Type)
	draft.Description = strings.TrimSpace(draft.Description)
	draft.Module = strings.TrimSpace(draft.Module)
	if draft.Type == "" {
		return appErrors.Clone(appErrors.ErrValidation, "activity type is required")
	}
	if draft.Description == "" {
		return appErrors.Clone(appErrors.ErrValidation, "activity description is required")
	}
	if draft.Module == "" {
		draft.Module = moduleFromType(draft.Type)
	}
	if draft.Result == "" {
		draft.Result = models.ResultSuccess
	}
	if !draft.Result.Valid() {
		return appErrors.Clone(appErrors.ErrValidation, fmt.Sprintf("unknown activity result %q", draft.Result))
	}
	if draft.RiskLevel < models.MinRiskLevel || draft.RiskLevel > models.MaxRiskLevel {
		return appErrors.Clone(appErrors.ErrValidation, "risk level must be between 0 and 10")
	}
	if draft.Properties.Kind == props.KindNull {
		draft.Properties = props.Object()
	}
	return nil
}

func moduleFromType(activityType string) string {
	if idx := strings.Index(activityType, "."); idx > 0 {
		return activityType[:idx]
	}
	switch activityType {
	case models.ActivityLogin, models.ActivityLoginFailed, models.ActivityLogout:
		return "auth"
	}
	return activityType
}

// Log validates an API payload and appends it.
func (s *ActivityService) Log(ctx context.Context, req dto.LogActivityRequest) (*models.ActivityRecord, error) {
	if err := s.validator.Struct(req); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid activity payload")
	}
	return s.Append(ctx, draftFromRequest(req))
}

// LogBatch performs independent appends. A failure stops the batch and the
// records already written stay committed; they are returned with the error.
func (s *ActivityService) LogBatch(ctx context.Context, req dto.LogBatchRequest) ([]models.ActivityRecord, error) {
	if err := s.validator.Struct(req); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid activity batch")
	}
	written := make([]models.ActivityRecord, 0, len(req.Activities))
	for i, item := range req.Activities {
		rec, err := s.Append(ctx, draftFromRequest(item))
		if err != nil {
			appErr := appErrors.FromError(err)
			return written, appErrors.Wrap(err, appErr.Code, appErr.Status, fmt.Sprintf("activity %d of %d not stored", i+1, len(req.Activities)))
		}
		written = append(written, *rec)
	}
	return written, nil
}

func draftFromRequest(req dto.LogActivityRequest) models.ActivityDraft {
	draft := models.ActivityDraft{
		Type:        req.Type,
		Description: req.Description,
		ActorID:     req.ActorID,
		SubjectType: req.SubjectType,
		SubjectID:   req.SubjectID,
		Module:      req.Module,
		Properties:  req.Properties,
		IPAddress:   req.IPAddress,
		UserAgent:   req.UserAgent,
		Result:      models.ActivityResult(req.Result),
	}
	if req.RiskLevel != nil {
		draft.RiskLevel = *req.RiskLevel
	}
	return draft
}

// Get returns one stored record.
func (s *ActivityService) Get(ctx context.Context, id string) (*models.ActivityRecord, error) {
	rec, err := s.store.GetByID(ctx, id)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "activity not found")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load activity")
	}
	return rec, nil
}

// List returns a page of records, newest first.
func (s *ActivityService) List(ctx context.Context, query dto.ActivityListQuery) ([]models.ActivityRecord, *models.Pagination, error) {
	if err := s.validator.Struct(query); err != nil {
		return nil, nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid activity filter")
	}
	page, size := normalizePage(query.Page, query.PageSize, 50)
	filter := models.ActivityFilter{
		Type:          query.Type,
		Module:        query.Module,
		ActorID:       query.ActorID,
		IPAddress:     query.IPAddress,
		Result:        models.ActivityResult(query.Result),
		MinRiskLevel:  query.MinRisk,
		CreatedFrom:   query.From,
		CreatedBefore: query.To,
		Limit:         size,
		Offset:        (page - 1) * size,
	}
	records, err := s.store.List(ctx, filter)
	if err != nil {
		return nil, nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to list activities")
	}
	total, err := s.store.Count(ctx, filter)
	if err != nil {
		return nil, nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to count activities")
	}
	return records, &models.Pagination{Page: page, PageSize: size, TotalCount: total}, nil
}

// Update always fails: stored activities are immutable.
func (s *ActivityService) Update(ctx context.Context, id string, _ dto.LogActivityRequest) (*models.ActivityRecord, error) {
	s.logger.Warn("blocked activity update", zap.String("activity_id", id))
	return nil, appErrors.Clone(appErrors.ErrImmutableRecord, fmt.Sprintf("audit trail protected: activity %s cannot be modified", id))
}

// Delete always fails. Removal happens only through retention.
func (s *ActivityService) Delete(ctx context.Context, id string) error {
	s.logger.Warn("blocked activity delete", zap.String("activity_id", id))
	return appErrors.Clone(appErrors.ErrImmutableRecord, fmt.Sprintf("audit trail protected: activity %s cannot be deleted", id))
}

// LogLogin records a successful sign-in for userID.
func (s *ActivityService) LogLogin(ctx context.Context, userID string, meta RequestMeta) (*models.ActivityRecord, error) {
	return s.Append(ctx, models.ActivityDraft{
		Type:        models.ActivityLogin,
		Description: "user signed in",
		ActorID:     &userID,
		Module:      "auth",
		Properties:  props.Object(props.F("method", props.String("password"))),
		IPAddress:   meta.IPAddress,
		UserAgent:   meta.UserAgent,
		Result:      models.ResultSuccess,
	})
}

// LogFailedLogin records a rejected sign-in. The attempted identifier is kept
// as a property and masked by redaction when it looks like an email.
func (s *ActivityService) LogFailedLogin(ctx context.Context, identifier, reason string, meta RequestMeta) (*models.ActivityRecord, error) {
	return s.Append(ctx, models.ActivityDraft{
		Type:        models.ActivityLoginFailed,
		Description: "sign-in rejected",
		ActorID:     meta.ActorID,
		Module:      "auth",
		Properties: props.Object(
			props.F("identifier", props.String(identifier)),
			props.F("reason", props.String(reason)),
		),
		IPAddress: meta.IPAddress,
		UserAgent: meta.UserAgent,
		Result:    models.ResultFailure,
	})
}

// LogUserAction records actor performing action on a subject.
func (s *ActivityService) LogUserAction(ctx context.Context, action, description, subjectType, subjectID string, properties props.Value, meta RequestMeta) (*models.ActivityRecord, error) {
	draft := models.ActivityDraft{
		Type:        action,
		Description: description,
		ActorID:     meta.ActorID,
		Properties:  properties,
		IPAddress:   meta.IPAddress,
		UserAgent:   meta.UserAgent,
		Result:      models.ResultSuccess,
	}
	if subjectType != "" {
		draft.SubjectType = &subjectType
	}
	if subjectID != "" {
		draft.SubjectID = &subjectID
	}
	return s.Append(ctx, draft)
}

// LogSystemEvent records an event with no human actor.
func (s *ActivityService) LogSystemEvent(ctx context.Context, event, description string, result models.ActivityResult, properties props.Value) (*models.ActivityRecord, error) {
	return s.Append(ctx, models.ActivityDraft{
		Type:        models.ActivitySystem,
		Description: description,
		Module:      "system",
		Properties:  properties.Set("event", props.String(event)),
		Result:      result,
	})
}

// LogAPIAccess records one served API request.
func (s *ActivityService) LogAPIAccess(ctx context.Context, method, path string, status int, duration time.Duration, meta RequestMeta) (*models.ActivityRecord, error) {
	return s.Append(ctx, models.ActivityDraft{
		Type:        models.ActivityAPIAccess,
		Description: fmt.Sprintf("%s %s", method, path),
		ActorID:     meta.ActorID,
		Module:      "api",
		Properties: props.Object(
			props.F("method", props.String(method)),
			props.F("path", props.String(path)),
			props.F("status", props.Int(status)),
			props.F("durationMs", props.Int(int(duration.Milliseconds()))),
		),
		IPAddress: meta.IPAddress,
		UserAgent: meta.UserAgent,
		Result:    resultFromStatus(status),
	})
}

func resultFromStatus(status int) models.ActivityResult {
	switch {
	case status >= http.StatusInternalServerError:
		return models.ResultFailure
	case status >= http.StatusBadRequest:
		return models.ResultClientError
	default:
		return models.ResultSuccess
	}
}

func normalizePage(page, size, defaultSize int) (int, int) {
	if page <= 0 {
		page = 1
	}
	if size <= 0 {
		size = defaultSize
	}
	return page, size
}
