package repository

import (
	"context"
	"database/sql"
	"errors"
	"regexp"
	"testing"
	"time"

	sqlmock "github.com/DATA-DOG/go-sqlmock"
	"github.com/jmoiron/sqlx"
	"github.com/stretchr/testify/require"

	"github.com/noah-isme/activity-audit-api/internal/models"
	"github.com/noah-isme/activity-audit-api/pkg/props"
)

var activityRowColumns = []string{"id", "type", "description", "actor_id", "subject_type", "subject_id", "module", "properties",
	"ip_address", "user_agent", "result", "risk_level", "signature", "created_at"}

func newRepoMock(t *testing.T) (*sqlx.DB, sqlmock.Sqlmock, func()) {
	db, mock, err := sqlmock.New(sqlmock.QueryMatcherOption(sqlmock.QueryMatcherRegexp))
	require.NoError(t, err)
	return sqlx.NewDb(db, "sqlmock"), mock, func() { db.Close() }
}

func TestActivityRepositoryInsertAndGet(t *testing.T) {
	db, mock, cleanup := newRepoMock(t)
	defer cleanup()

	repo := NewActivityRepository(db)
	mock.ExpectExec(regexp.QuoteMeta("INSERT INTO activities")).
		WillReturnResult(sqlmock.NewResult(1, 1))

	sig := "v1:" + "ab"
	rec := &models.ActivityRecord{
		Type:       "users.delete",
		Module:     "users",
		Properties: props.Object(props.F("target", props.String("bob"))),
		Result:     models.ResultSuccess,
		Signature:  &sig,
		CreatedAt:  time.Now().UTC(),
	}
	require.NoError(t, repo.Insert(context.Background(), rec))
	require.NotEmpty(t, rec.ID)

	rows := sqlmock.NewRows(activityRowColumns).
		AddRow(rec.ID, rec.Type, "", "user-1", nil, nil, rec.Module, []byte(`{"target":"bob"}`),
			"10.0.0.1", "curl", "success", 4, sig, rec.CreatedAt)
	mock.ExpectQuery(regexp.QuoteMeta("SELECT id, type, description")).
		WithArgs(rec.ID).
		WillReturnRows(rows)

	found, err := repo.GetByID(context.Background(), rec.ID)
	require.NoError(t, err)
	require.Equal(t, rec.ID, found.ID)
	require.Equal(t, "user-1", found.ActorValue())
	require.Equal(t, models.ResultSuccess, found.Result)
	require.Equal(t, 4, found.RiskLevel)
	require.True(t, rec.Properties.Equal(found.Properties))
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestActivityRepositoryGetMissing(t *testing.T) {
	db, mock, cleanup := newRepoMock(t)
	defer cleanup()

	mock.ExpectQuery(regexp.QuoteMeta("FROM activities WHERE id = $1")).
		WithArgs("missing").
		WillReturnError(sql.ErrNoRows)

	_, err := NewActivityRepository(db).GetByID(context.Background(), "missing")
	require.True(t, errors.Is(err, sql.ErrNoRows))
}

func TestActivityRepositoryListFilters(t *testing.T) {
	db, mock, cleanup := newRepoMock(t)
	defer cleanup()

	repo := NewActivityRepository(db)
	from := time.Now().Add(-time.Hour)
	minRisk := 5
	rows := sqlmock.NewRows(activityRowColumns).
		AddRow("act-1", "login_failed", "", nil, nil, nil, "auth", []byte(`{}`), "10.0.0.9", "", "failure", 7, nil, time.Now())
	mock.ExpectQuery(`FROM activities WHERE type = \$1 AND module = \$2 AND ip_address = \$3 AND risk_level >= \$4 AND created_at >= \$5 ORDER BY created_at DESC, id DESC LIMIT 20 OFFSET 40`).
		WithArgs("login_failed", "auth", "10.0.0.9", 5, from).
		WillReturnRows(rows)

	records, err := repo.List(context.Background(), models.ActivityFilter{
		Type:         "login_failed",
		Module:       "auth",
		IPAddress:    "10.0.0.9",
		MinRiskLevel: &minRisk,
		CreatedFrom:  &from,
		Limit:        20,
		Offset:       40,
	})
	require.NoError(t, err)
	require.Len(t, records, 1)
	require.Nil(t, records[0].Signature)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestActivityRepositoryCountWithTypes(t *testing.T) {
	db, mock, cleanup := newRepoMock(t)
	defer cleanup()

	mock.ExpectQuery(regexp.QuoteMeta("SELECT COUNT(*) FROM activities WHERE type = ANY($1)")).
		WithArgs(sqlmock.AnyArg()).
		WillReturnRows(sqlmock.NewRows([]string{"count"}).AddRow(3))

	total, err := NewActivityRepository(db).Count(context.Background(), models.ActivityFilter{Types: []string{"login_failed", "users.delete"}})
	require.NoError(t, err)
	require.Equal(t, 3, total)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestActivityRepositoryScanUsesKeyset(t *testing.T) {
	db, mock, cleanup := newRepoMock(t)
	defer cleanup()

	repo := NewActivityRepository(db)
	before := time.Now()
	after := before.Add(-time.Hour)

	mock.ExpectQuery(regexp.QuoteMeta("FROM activities WHERE created_at <= $1 ORDER BY created_at ASC, id ASC LIMIT 2")).
		WithArgs(before).
		WillReturnRows(sqlmock.NewRows(activityRowColumns).
			AddRow("a", "login", "", nil, nil, nil, "auth", nil, "", "", "success", 0, nil, after).
			AddRow("b", "login", "", nil, nil, nil, "auth", nil, "", "", "success", 0, nil, after))
	mock.ExpectQuery(regexp.QuoteMeta("FROM activities WHERE created_at <= $1 AND (created_at, id) > ($2, $3) ORDER BY created_at ASC, id ASC LIMIT 2")).
		WithArgs(before, after, "b").
		WillReturnRows(sqlmock.NewRows(activityRowColumns))

	filter := models.ActivityFilter{CreatedBefore: &before}
	cursor := models.ActivityCursor{Limit: 2}
	page, err := repo.Scan(context.Background(), filter, cursor)
	require.NoError(t, err)
	require.Len(t, page, 2)
	require.True(t, page[0].Properties.IsNull())

	cursor.Advance(page[len(page)-1])
	page, err = repo.Scan(context.Background(), filter, cursor)
	require.NoError(t, err)
	require.Empty(t, page)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestActivityRepositorySetRiskLevel(t *testing.T) {
	db, mock, cleanup := newRepoMock(t)
	defer cleanup()

	repo := NewActivityRepository(db)
	mock.ExpectExec(regexp.QuoteMeta("UPDATE activities SET risk_level = $2 WHERE id = $1")).
		WithArgs("act-1", 9).
		WillReturnResult(sqlmock.NewResult(0, 1))
	require.NoError(t, repo.SetRiskLevel(context.Background(), "act-1", 9))

	mock.ExpectExec(regexp.QuoteMeta("UPDATE activities SET risk_level")).
		WithArgs("gone", 1).
		WillReturnResult(sqlmock.NewResult(0, 0))
	require.ErrorIs(t, repo.SetRiskLevel(context.Background(), "gone", 1), sql.ErrNoRows)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestActivityRepositoryArchiveAndDelete(t *testing.T) {
	db, mock, cleanup := newRepoMock(t)
	defer cleanup()

	repo := NewActivityRepository(db)
	archived := models.NewArchivedRecord(models.ActivityRecord{ID: "act-1", Type: "login", CreatedAt: time.Now()}, "system", "policy", time.Now())

	mock.ExpectBegin()
	mock.ExpectExec(regexp.QuoteMeta("INSERT INTO archived_activities")).
		WillReturnResult(sqlmock.NewResult(1, 1))
	mock.ExpectExec(regexp.QuoteMeta("DELETE FROM activities WHERE id = $1")).
		WithArgs("act-1").
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectCommit()

	moved, err := repo.ArchiveAndDelete(context.Background(), &archived)
	require.NoError(t, err)
	require.True(t, moved)
	require.NotEmpty(t, archived.ID)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestActivityRepositoryArchiveAndDeleteAlreadyMoved(t *testing.T) {
	db, mock, cleanup := newRepoMock(t)
	defer cleanup()

	repo := NewActivityRepository(db)
	archived := models.NewArchivedRecord(models.ActivityRecord{ID: "act-1"}, "system", "policy", time.Now())

	mock.ExpectBegin()
	mock.ExpectExec(regexp.QuoteMeta("INSERT INTO archived_activities")).
		WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectExec(regexp.QuoteMeta("DELETE FROM activities WHERE id = $1")).
		WithArgs("act-1").
		WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectRollback()

	moved, err := repo.ArchiveAndDelete(context.Background(), &archived)
	require.NoError(t, err)
	require.False(t, moved)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestActivityRepositoryArchiveInsertFailureRollsBack(t *testing.T) {
	db, mock, cleanup := newRepoMock(t)
	defer cleanup()

	archived := models.NewArchivedRecord(models.ActivityRecord{ID: "act-1"}, "system", "policy", time.Now())
	mock.ExpectBegin()
	mock.ExpectExec(regexp.QuoteMeta("INSERT INTO archived_activities")).
		WillReturnError(errors.New("disk full"))
	mock.ExpectRollback()

	_, err := NewActivityRepository(db).ArchiveAndDelete(context.Background(), &archived)
	require.Error(t, err)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestActivityRepositoryPurge(t *testing.T) {
	db, mock, cleanup := newRepoMock(t)
	defer cleanup()

	repo := NewActivityRepository(db)
	mock.ExpectExec(regexp.QuoteMeta("DELETE FROM activities WHERE id = $1")).
		WithArgs("act-1").
		WillReturnResult(sqlmock.NewResult(0, 1))
	removed, err := repo.Purge(context.Background(), "act-1")
	require.NoError(t, err)
	require.True(t, removed)

	mock.ExpectExec(regexp.QuoteMeta("DELETE FROM activities WHERE id = $1")).
		WithArgs("act-2").
		WillReturnResult(sqlmock.NewResult(0, 0))
	removed, err = repo.Purge(context.Background(), "act-2")
	require.NoError(t, err)
	require.False(t, removed)
	require.NoError(t, mock.ExpectationsWereMet())
}
