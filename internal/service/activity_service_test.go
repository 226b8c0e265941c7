package service

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/noah-isme/activity-audit-api/internal/dto"
	"github.com/noah-isme/activity-audit-api/internal/models"
	"github.com/noah-isme/activity-audit-api/pkg/integrity"
	"github.com/noah-isme/activity-audit-api/pkg/props"
	"github.com/noah-isme/activity-audit-api/pkg/redact"
	appErrors "github.com/noah-isme/activity-audit-api/pkg/errors"
)

type stubActivityStore struct {
	records   map[string]models.ActivityRecord
	inserted  []models.ActivityRecord
	insertErr error
	failAfter int
	lastList  models.ActivityFilter
	listErr   error
}

func (s *stubActivityStore) Insert(ctx context.Context, rec *models.ActivityRecord) error {
	if s.insertErr != nil && len(s.inserted) >= s.failAfter {
		return s.insertErr
	}
	if rec.ID == "" {
		rec.ID = fmt.Sprintf("act-%d", len(s.inserted)+1)
	}
	if s.records == nil {
		s.records = map[string]models.ActivityRecord{}
	}
	s.records[rec.ID] = *rec
	s.inserted = append(s.inserted, *rec)
	return nil
}

func (s *stubActivityStore) GetByID(ctx context.Context, id string) (*models.ActivityRecord, error) {
	rec, ok := s.records[id]
	if !ok {
		return nil, sql.ErrNoRows
	}
	return &rec, nil
}

func (s *stubActivityStore) List(ctx context.Context, filter models.ActivityFilter) ([]models.ActivityRecord, error) {
	s.lastList = filter
	if s.listErr != nil {
		return nil, s.listErr
	}
	return s.inserted, nil
}

func (s *stubActivityStore) Count(ctx context.Context, filter models.ActivityFilter) (int, error) {
	return len(s.inserted), nil
}

type stubDispatcher struct {
	dispatched []string
	raiseTo    int
}

func (d *stubDispatcher) Dispatch(ctx context.Context, rec *models.ActivityRecord) {
	d.dispatched = append(d.dispatched, rec.ID)
	if d.raiseTo > rec.RiskLevel {
		rec.RiskLevel = d.raiseTo
	}
}

func newTestSigner(t *testing.T) *integrity.Signer {
	t.Helper()
	signer, err := integrity.NewSigner("v1", "test-signing-secret", nil)
	require.NoError(t, err)
	return signer
}

func newActivityServiceForTest(t *testing.T, store *stubActivityStore, dispatcher analysisDispatcher) (*ActivityService, *integrity.Signer) {
	t.Helper()
	signer := newTestSigner(t)
	svc := NewActivityService(store, redact.New(redact.Options{}), signer, dispatcher, nil, nil, nil)
	svc.now = func() time.Time { return time.Date(2024, 3, 1, 10, 30, 0, 123456789, time.UTC) }
	return svc, signer
}

func TestActivityServiceAppendSignsVerifiableRecord(t *testing.T) {
	store := &stubActivityStore{}
	svc, signer := newActivityServiceForTest(t, store, nil)
	actor := "user-1"

	rec, err := svc.Append(context.Background(), models.ActivityDraft{
		Type:        "users.update",
		Description: "updated profile",
		ActorID:     &actor,
		Properties:  props.Object(props.F("field", props.String("name"))),
		IPAddress:   " 10.0.0.1 ",
	})
	require.NoError(t, err)
	require.NotNil(t, rec.Signature)
	assert.Equal(t, "users", rec.Module)
	assert.Equal(t, models.ResultSuccess, rec.Result)
	assert.Equal(t, "10.0.0.1", rec.IPAddress)
	assert.Equal(t, 123456000, rec.CreatedAt.Nanosecond())
	assert.True(t, signer.Verify(*rec.Signature, rec.CanonicalFields()))
	require.Len(t, store.inserted, 1)
}

func TestActivityServiceTamperSensitivity(t *testing.T) {
	svc, signer := newActivityServiceForTest(t, &stubActivityStore{}, nil)
	rec, err := svc.Append(context.Background(), models.ActivityDraft{Type: "settings.update", Description: "changed locale"})
	require.NoError(t, err)

	tampered := *rec
	tampered.Description = "changed nothing"
	assert.False(t, signer.Verify(*rec.Signature, tampered.CanonicalFields()))

	rescored := *rec
	rescored.RiskLevel = 9
	rescored.IPAddress = "10.9.9.9"
	rescored.UserAgent = "curl"
	assert.True(t, signer.Verify(*rec.Signature, rescored.CanonicalFields()))
}

func TestActivityServiceAppendRedactsBeforeSigning(t *testing.T) {
	svc, signer := newActivityServiceForTest(t, &stubActivityStore{}, nil)
	rec, err := svc.Append(context.Background(), models.ActivityDraft{
		Type:        "users.create",
		Description: "created jane.doe@example.com",
		Properties: props.Object(
			props.F("user_password", props.String("hunter2-super-secret")),
			props.F("role", props.String("ADMIN")),
		),
	})
	require.NoError(t, err)

	password, ok := rec.Properties.Get("user_password")
	require.True(t, ok)
	assert.NotEqual(t, "hunter2-super-secret", password.Str)
	role, _ := rec.Properties.Get("role")
	assert.Equal(t, "ADMIN", role.Str)
	assert.NotContains(t, rec.Description, "jane.doe@example.com")
	assert.True(t, signer.Verify(*rec.Signature, rec.CanonicalFields()))
}

func TestActivityServiceAppendValidation(t *testing.T) {
	svc, _ := newActivityServiceForTest(t, &stubActivityStore{}, nil)
	cases := map[string]models.ActivityDraft{
		"missing type":        {Description: "x"},
		"missing description": {Type: "login"},
		"bad result":          {Type: "login", Description: "x", Result: "maybe"},
		"risk out of range":   {Type: "login", Description: "x", RiskLevel: 11},
	}
	for name, draft := range cases {
		t.Run(name, func(t *testing.T) {
			_, err := svc.Append(context.Background(), draft)
			require.Error(t, err)
			assert.True(t, errors.Is(err, appErrors.ErrValidation))
		})
	}
}

func TestActivityServiceAppendStorageFailurePropagates(t *testing.T) {
	store := &stubActivityStore{insertErr: errors.New("db down")}
	dispatcher := &stubDispatcher{}
	svc, _ := newActivityServiceForTest(t, store, dispatcher)

	_, err := svc.Append(context.Background(), models.ActivityDraft{Type: "login", Description: "x"})
	require.Error(t, err)
	assert.True(t, errors.Is(err, appErrors.ErrInternal))
	assert.Empty(t, dispatcher.dispatched)
}

func TestActivityServiceDispatchesAfterInsert(t *testing.T) {
	dispatcher := &stubDispatcher{raiseTo: 7}
	svc, signer := newActivityServiceForTest(t, &stubActivityStore{}, dispatcher)

	rec, err := svc.LogFailedLogin(context.Background(), "admin@example.com", "bad password", RequestMeta{IPAddress: "203.0.113.9"})
	require.NoError(t, err)
	require.Len(t, dispatcher.dispatched, 1)
	assert.Equal(t, 7, rec.RiskLevel)
	assert.Equal(t, models.ActivityLoginFailed, rec.Type)
	assert.Equal(t, "auth", rec.Module)
	assert.True(t, signer.Verify(*rec.Signature, rec.CanonicalFields()))
}

func TestActivityServiceUpdateAndDeleteAlwaysRejected(t *testing.T) {
	store := &stubActivityStore{}
	svc, _ := newActivityServiceForTest(t, store, nil)
	rec, err := svc.Append(context.Background(), models.ActivityDraft{Type: "login", Description: "signed in"})
	require.NoError(t, err)

	for _, id := range []string{rec.ID, "missing", ""} {
		_, err := svc.Update(context.Background(), id, dto.LogActivityRequest{Type: "login", Description: "edited"})
		require.Error(t, err)
		assert.True(t, errors.Is(err, appErrors.ErrImmutableRecord))

		err = svc.Delete(context.Background(), id)
		require.Error(t, err)
		assert.True(t, errors.Is(err, appErrors.ErrImmutableRecord))
	}
	stored, err := svc.Get(context.Background(), rec.ID)
	require.NoError(t, err)
	assert.Equal(t, "signed in", stored.Description)
}

func TestActivityServiceLogBatchKeepsCommittedOnFailure(t *testing.T) {
	store := &stubActivityStore{insertErr: errors.New("disk full"), failAfter: 1}
	svc, _ := newActivityServiceForTest(t, store, nil)

	written, err := svc.LogBatch(context.Background(), dto.LogBatchRequest{Activities: []dto.LogActivityRequest{
		{Type: "login", Description: "first"},
		{Type: "logout", Description: "second"},
		{Type: "login", Description: "third"},
	}})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "activity 2 of 3")
	require.Len(t, written, 1)
	assert.Equal(t, "first", written[0].Description)
	assert.Len(t, store.inserted, 1)
}

func TestActivityServiceLogRejectsInvalidPayload(t *testing.T) {
	svc, _ := newActivityServiceForTest(t, &stubActivityStore{}, nil)
	_, err := svc.Log(context.Background(), dto.LogActivityRequest{Type: "login", Description: "x", Result: "unknown"})
	require.Error(t, err)
	assert.True(t, errors.Is(err, appErrors.ErrValidation))
}

func TestActivityServiceGetNotFound(t *testing.T) {
	svc, _ := newActivityServiceForTest(t, &stubActivityStore{}, nil)
	_, err := svc.Get(context.Background(), "nope")
	require.Error(t, err)
	assert.True(t, errors.Is(err, appErrors.ErrNotFound))
}

func TestActivityServiceListPagination(t *testing.T) {
	store := &stubActivityStore{}
	svc, _ := newActivityServiceForTest(t, store, nil)
	for i := 0; i < 3; i++ {
		_, err := svc.LogSystemEvent(context.Background(), "tick", "heartbeat", models.ResultSuccess, props.Null())
		require.NoError(t, err)
	}
	minRisk := 2
	records, page, err := svc.List(context.Background(), dto.ActivityListQuery{Module: "system", MinRisk: &minRisk, Page: 2, PageSize: 10})
	require.NoError(t, err)
	assert.Len(t, records, 3)
	assert.Equal(t, 3, page.TotalCount)
	assert.Equal(t, 2, page.Page)
	assert.Equal(t, 10, store.lastList.Offset)
	assert.Equal(t, "system", store.lastList.Module)
	require.NotNil(t, store.lastList.MinRiskLevel)
}

func TestActivityServiceLogAPIAccessResult(t *testing.T) {
	svc, _ := newActivityServiceForTest(t, &stubActivityStore{}, nil)
	cases := map[int]models.ActivityResult{
		200: models.ResultSuccess,
		404: models.ResultClientError,
		503: models.ResultFailure,
	}
	for status, want := range cases {
		rec, err := svc.LogAPIAccess(context.Background(), "GET", "/api/v1/activities", status, 12*time.Millisecond, RequestMeta{})
		require.NoError(t, err)
		assert.Equal(t, want, rec.Result)
		assert.Equal(t, "api", rec.Module)
	}
}

func TestActivityServiceLogSystemEventHasNoActor(t *testing.T) {
	svc, _ := newActivityServiceForTest(t, &stubActivityStore{}, nil)
	rec, err := svc.LogSystemEvent(context.Background(), "retention.run", "retention finished", models.ResultSuccess, props.Object(props.F("policies", props.Int(2))))
	require.NoError(t, err)
	assert.Nil(t, rec.ActorID)
	event, ok := rec.Properties.Get("event")
	require.True(t, ok)
	assert.Equal(t, "retention.run", event.Str)
}

func TestActivityServiceLogLoginThreadsActor(t *testing.T) {
	svc, signer := newActivityServiceForTest(t, &stubActivityStore{}, nil)

	rec, err := svc.LogLogin(context.Background(), "user-9", RequestMeta{IPAddress: "198.51.100.4", UserAgent: "cli/1.0"})
	require.NoError(t, err)
	assert.Equal(t, models.ActivityLogin, rec.Type)
	assert.Equal(t, "user-9", rec.ActorValue())
	assert.Equal(t, "auth", rec.Module)
	assert.Equal(t, models.ResultSuccess, rec.Result)
	assert.True(t, signer.Verify(rec.SignatureValue(), rec.CanonicalFields()))
}

func TestActivityServiceLogUserActionRedactsAndDerivesModule(t *testing.T) {
	svc, _ := newActivityServiceForTest(t, &stubActivityStore{}, nil)
	actor := "admin-1"

	rec, err := svc.LogUserAction(context.Background(), "users.update", "changed credentials", "user", "user-42",
		props.Object(
			props.F("new_password", props.String("correct-horse-battery")),
			props.F("field", props.String("password")),
		),
		RequestMeta{ActorID: &actor})
	require.NoError(t, err)

	assert.Equal(t, "users", rec.Module)
	require.NotNil(t, rec.SubjectType)
	assert.Equal(t, "user", *rec.SubjectType)
	require.NotNil(t, rec.SubjectID)
	assert.Equal(t, "user-42", *rec.SubjectID)

	secret, ok := rec.Properties.Get("new_password")
	require.True(t, ok)
	assert.NotEqual(t, "correct-horse-battery", secret.Str)
	field, ok := rec.Properties.Get("field")
	require.True(t, ok)
	assert.Equal(t, "password", field.Str)
}
