package repository

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"

	"github.com/jmoiron/sqlx"

	"github.com/noah-isme/activity-audit-api/internal/models"
)

const archivedColumns = `id, original_id, type, description, actor_id, subject_type, subject_id, module, properties,
       ip_address, user_agent, result, risk_level, signature, created_at, archived_at, archived_by, archive_reason`

// ArchiveRepository handles archived activity snapshots.
type ArchiveRepository struct {
	db *sqlx.DB
}

// NewArchiveRepository constructs the repository.
func NewArchiveRepository(db *sqlx.DB) *ArchiveRepository {
	return &ArchiveRepository{db: db}
}

// GetByID retrieves one archived row.
func (r *ArchiveRepository) GetByID(ctx context.Context, id string) (*models.ArchivedRecord, error) {
	query := `SELECT ` + archivedColumns + ` FROM archived_activities WHERE id = $1`
	var item models.ArchivedRecord
	if err := r.db.GetContext(ctx, &item, query, id); err != nil {
		return nil, err
	}
	return &item, nil
}

// List returns archived records newest archive first.
func (r *ArchiveRepository) List(ctx context.Context, filter models.ArchiveFilter) ([]models.ArchivedRecord, error) {
	where, args := buildArchiveWhere(filter)
	builder := strings.Builder{}
	builder.WriteString(`SELECT ` + archivedColumns + ` FROM archived_activities`)
	builder.WriteString(where)
	builder.WriteString(" ORDER BY archived_at DESC, id DESC")

	limit := filter.Limit
	if limit <= 0 || limit > 200 {
		limit = 50
	}
	offset := filter.Offset
	if offset < 0 {
		offset = 0
	}
	builder.WriteString(fmt.Sprintf(" LIMIT %d OFFSET %d", limit, offset))

	var records []models.ArchivedRecord
	if err := r.db.SelectContext(ctx, &records, builder.String(), args...); err != nil {
		return nil, fmt.Errorf("list archived activities: %w", err)
	}
	return records, nil
}

// Count returns the number of archived rows matching filter.
func (r *ArchiveRepository) Count(ctx context.Context, filter models.ArchiveFilter) (int, error) {
	where, args := buildArchiveWhere(filter)
	var total int
	if err := r.db.GetContext(ctx, &total, `SELECT COUNT(*) FROM archived_activities`+where, args...); err != nil {
		return 0, fmt.Errorf("count archived activities: %w", err)
	}
	return total, nil
}

// Restore reinserts rec into the live table and removes the archive row atomically.
func (r *ArchiveRepository) Restore(ctx context.Context, archivedID string, rec *models.ActivityRecord) error {
	tx, err := r.db.BeginTxx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin restore tx: %w", err)
	}
	defer tx.Rollback() //nolint:errcheck

	const insert = `INSERT INTO activities
	(id, type, description, actor_id, subject_type, subject_id, module, properties, ip_address, user_agent, result, risk_level, signature, created_at)
	VALUES (:id, :type, :description, :actor_id, :subject_type, :subject_id, :module, :properties, :ip_address, :user_agent, :result, :risk_level, :signature, :created_at)`
	if _, err := tx.NamedExecContext(ctx, insert, rec); err != nil {
		return fmt.Errorf("reinsert activity: %w", err)
	}

	res, err := tx.ExecContext(ctx, `DELETE FROM archived_activities WHERE id = $1`, archivedID)
	if err != nil {
		return fmt.Errorf("delete restored archive: %w", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("check restore rows: %w", err)
	}
	if affected == 0 {
		return sql.ErrNoRows
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit restore tx: %w", err)
	}
	return nil
}

// PurgeBefore permanently deletes archive rows archived before the cutoff.
func (r *ArchiveRepository) PurgeBefore(ctx context.Context, before time.Time) (int64, error) {
	res, err := r.db.ExecContext(ctx, `DELETE FROM archived_activities WHERE archived_at < $1`, before)
	if err != nil {
		return 0, fmt.Errorf("purge archived activities: %w", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("check archive purge rows: %w", err)
	}
	return affected, nil
}

func buildArchiveWhere(filter models.ArchiveFilter) (string, []interface{}) {
	args := make([]interface{}, 0, 4)
	conditions := make([]string, 0, 4)

	if filter.OriginalID != "" {
		args = append(args, filter.OriginalID)
		conditions = append(conditions, fmt.Sprintf("original_id = $%d", len(args)))
	}
	if filter.Type != "" {
		args = append(args, filter.Type)
		conditions = append(conditions, fmt.Sprintf("type = $%d", len(args)))
	}
	if filter.Module != "" {
		args = append(args, filter.Module)
		conditions = append(conditions, fmt.Sprintf("module = $%d", len(args)))
	}
	if filter.ArchivedBefore != nil {
		args = append(args, *filter.ArchivedBefore)
		conditions = append(conditions, fmt.Sprintf("archived_at < $%d", len(args)))
	}

	if len(conditions) == 0 {
		return "", args
	}
	return " WHERE " + strings.Join(conditions, " AND "), args
}
