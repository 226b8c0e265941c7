package repository

import (
	"context"
	"database/sql"
	"regexp"
	"testing"
	"time"

	sqlmock "github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/require"

	"github.com/noah-isme/activity-audit-api/internal/models"
	"github.com/noah-isme/activity-audit-api/pkg/props"
)

var policyRowColumns = []string{"id", "name", "activity_type", "module", "conditions", "retention_days", "action", "is_active", "priority", "created_by", "created_at", "updated_at"}

func TestRetentionPolicyRepositoryCreateAndList(t *testing.T) {
	db, mock, cleanup := newRepoMock(t)
	defer cleanup()

	repo := NewRetentionPolicyRepository(db)
	mock.ExpectExec(regexp.QuoteMeta("INSERT INTO retention_policies")).
		WillReturnResult(sqlmock.NewResult(1, 1))

	policy := &models.RetentionPolicy{
		Name:          "high risk",
		Conditions:    models.Conditions{{Field: "riskLevel", Operator: models.OpGreaterEqual, Value: props.Int(5)}},
		RetentionDays: 30,
		Action:        models.RetentionArchive,
		IsActive:      true,
		CreatedBy:     "admin-1",
	}
	require.NoError(t, repo.Create(context.Background(), policy))
	require.NotEmpty(t, policy.ID)
	require.False(t, policy.CreatedAt.IsZero())

	now := time.Now()
	mock.ExpectQuery(regexp.QuoteMeta("FROM retention_policies WHERE is_active = TRUE ORDER BY priority DESC, created_at ASC")).
		WillReturnRows(sqlmock.NewRows(policyRowColumns).
			AddRow(policy.ID, policy.Name, nil, "auth", []byte(`[{"field":"riskLevel","operator":">=","value":5}]`), 30, "archive", true, 10, "admin-1", now, now))

	policies, err := repo.List(context.Background(), models.RetentionPolicyFilter{ActiveOnly: true})
	require.NoError(t, err)
	require.Len(t, policies, 1)
	require.Nil(t, policies[0].ActivityType)
	require.Equal(t, "auth", *policies[0].Module)
	require.Len(t, policies[0].Conditions, 1)
	require.Equal(t, models.RetentionArchive, policies[0].Action)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestRetentionPolicyRepositoryUpdateDeleteMissing(t *testing.T) {
	db, mock, cleanup := newRepoMock(t)
	defer cleanup()

	repo := NewRetentionPolicyRepository(db)
	mock.ExpectExec(regexp.QuoteMeta("UPDATE retention_policies SET name")).
		WillReturnResult(sqlmock.NewResult(0, 0))
	require.ErrorIs(t, repo.Update(context.Background(), &models.RetentionPolicy{ID: "p-1"}), sql.ErrNoRows)

	mock.ExpectExec(regexp.QuoteMeta("DELETE FROM retention_policies WHERE id = $1")).
		WithArgs("p-1").
		WillReturnResult(sqlmock.NewResult(0, 1))
	require.NoError(t, repo.Delete(context.Background(), "p-1"))
	require.NoError(t, mock.ExpectationsWereMet())
}
