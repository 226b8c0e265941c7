package repository

import (
	"context"
	"fmt"
	"strings"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"

	"github.com/noah-isme/activity-audit-api/internal/models"
)

const cleanupLogColumns = `id, policy_id, type, action, status, records_processed, records_archived, records_deleted,
       error_message, executed_by, started_at, completed_at`

// CleanupLogRepository writes one row per retention run.
type CleanupLogRepository struct {
	db *sqlx.DB
}

// NewCleanupLogRepository constructs the repository.
func NewCleanupLogRepository(db *sqlx.DB) *CleanupLogRepository {
	return &CleanupLogRepository{db: db}
}

// Create appends a cleanup log.
func (r *CleanupLogRepository) Create(ctx context.Context, entry *models.CleanupLog) error {
	if entry.ID == "" {
		entry.ID = uuid.NewString()
	}
	const query = `INSERT INTO cleanup_logs
	(id, policy_id, type, action, status, records_processed, records_archived, records_deleted, error_message, executed_by, started_at, completed_at)
	VALUES (:id, :policy_id, :type, :action, :status, :records_processed, :records_archived, :records_deleted, :error_message, :executed_by, :started_at, :completed_at)`
	if _, err := r.db.NamedExecContext(ctx, query, entry); err != nil {
		return fmt.Errorf("create cleanup log: %w", err)
	}
	return nil
}

// List returns cleanup logs newest first.
func (r *CleanupLogRepository) List(ctx context.Context, filter models.CleanupLogFilter) ([]models.CleanupLog, int, error) {
	args := make([]interface{}, 0, 3)
	conditions := make([]string, 0, 3)
	if filter.PolicyID != "" {
		args = append(args, filter.PolicyID)
		conditions = append(conditions, fmt.Sprintf("policy_id = $%d", len(args)))
	}
	if filter.Type != "" {
		args = append(args, filter.Type)
		conditions = append(conditions, fmt.Sprintf("type = $%d", len(args)))
	}
	if filter.Status != "" {
		args = append(args, filter.Status)
		conditions = append(conditions, fmt.Sprintf("status = $%d", len(args)))
	}
	where := ""
	if len(conditions) > 0 {
		where = " WHERE " + strings.Join(conditions, " AND ")
	}

	var total int
	if err := r.db.GetContext(ctx, &total, `SELECT COUNT(*) FROM cleanup_logs`+where, args...); err != nil {
		return nil, 0, fmt.Errorf("count cleanup logs: %w", err)
	}

	limit := filter.Limit
	if limit <= 0 || limit > 200 {
		limit = 50
	}
	offset := filter.Offset
	if offset < 0 {
		offset = 0
	}
	query := `SELECT ` + cleanupLogColumns + ` FROM cleanup_logs` + where +
		fmt.Sprintf(" ORDER BY started_at DESC LIMIT %d OFFSET %d", limit, offset)

	var logs []models.CleanupLog
	if err := r.db.SelectContext(ctx, &logs, query, args...); err != nil {
		return nil, 0, fmt.Errorf("list cleanup logs: %w", err)
	}
	return logs, total, nil
}
