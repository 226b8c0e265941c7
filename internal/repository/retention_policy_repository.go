package repository

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"

	"github.com/noah-isme/activity-audit-api/internal/models"
)

const policyColumns = `id, name, activity_type, module, conditions, retention_days, action, is_active, priority, created_by, created_at, updated_at`

// RetentionPolicyRepository stores administrator-defined retention rules.
type RetentionPolicyRepository struct {
	db *sqlx.DB
}

// NewRetentionPolicyRepository constructs the repository.
func NewRetentionPolicyRepository(db *sqlx.DB) *RetentionPolicyRepository {
	return &RetentionPolicyRepository{db: db}
}

// Create inserts a policy.
func (r *RetentionPolicyRepository) Create(ctx context.Context, policy *models.RetentionPolicy) error {
	if policy.ID == "" {
		policy.ID = uuid.NewString()
	}
	now := time.Now().UTC()
	if policy.CreatedAt.IsZero() {
		policy.CreatedAt = now
	}
	policy.UpdatedAt = now
	const query = `INSERT INTO retention_policies
	(id, name, activity_type, module, conditions, retention_days, action, is_active, priority, created_by, created_at, updated_at)
	VALUES (:id, :name, :activity_type, :module, :conditions, :retention_days, :action, :is_active, :priority, :created_by, :created_at, :updated_at)`
	if _, err := r.db.NamedExecContext(ctx, query, policy); err != nil {
		return fmt.Errorf("create retention policy: %w", err)
	}
	return nil
}

// Update replaces the editable fields of a policy.
func (r *RetentionPolicyRepository) Update(ctx context.Context, policy *models.RetentionPolicy) error {
	policy.UpdatedAt = time.Now().UTC()
	const query = `UPDATE retention_policies SET name = :name, activity_type = :activity_type, module = :module,
	conditions = :conditions, retention_days = :retention_days, action = :action, is_active = :is_active,
	priority = :priority, updated_at = :updated_at WHERE id = :id`
	res, err := r.db.NamedExecContext(ctx, query, policy)
	if err != nil {
		return fmt.Errorf("update retention policy: %w", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("check policy update rows: %w", err)
	}
	if affected == 0 {
		return sql.ErrNoRows
	}
	return nil
}

// Delete removes a policy. Cleanup logs keep the dangling policy id.
func (r *RetentionPolicyRepository) Delete(ctx context.Context, id string) error {
	res, err := r.db.ExecContext(ctx, `DELETE FROM retention_policies WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("delete retention policy: %w", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("check policy delete rows: %w", err)
	}
	if affected == 0 {
		return sql.ErrNoRows
	}
	return nil
}

// GetByID fetches one policy.
func (r *RetentionPolicyRepository) GetByID(ctx context.Context, id string) (*models.RetentionPolicy, error) {
	query := `SELECT ` + policyColumns + ` FROM retention_policies WHERE id = $1`
	var policy models.RetentionPolicy
	if err := r.db.GetContext(ctx, &policy, query, id); err != nil {
		return nil, err
	}
	return &policy, nil
}

// List returns policies highest priority first.
func (r *RetentionPolicyRepository) List(ctx context.Context, filter models.RetentionPolicyFilter) ([]models.RetentionPolicy, error) {
	query := `SELECT ` + policyColumns + ` FROM retention_policies`
	if filter.ActiveOnly {
		query += ` WHERE is_active = TRUE`
	}
	query += ` ORDER BY priority DESC, created_at ASC`

	var policies []models.RetentionPolicy
	if err := r.db.SelectContext(ctx, &policies, query); err != nil {
		return nil, fmt.Errorf("list retention policies: %w", err)
	}
	return policies, nil
}
