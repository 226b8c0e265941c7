package repository

import (
	"context"
	"database/sql"
	"fmt"
	"strings"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
	"github.com/lib/pq"

	"github.com/noah-isme/activity-audit-api/internal/models"
)

const activityColumns = `id, type, description, actor_id, subject_type, subject_id, module, properties,
       ip_address, user_agent, result, risk_level, signature, created_at`

// ActivityRepository persists the append-only activity log.
// There is no generic update: the only writes after insert are the risk level
// setter and the retention paths that move rows out of the table.
type ActivityRepository struct {
	db *sqlx.DB
}

// NewActivityRepository constructs the repository.
func NewActivityRepository(db *sqlx.DB) *ActivityRepository {
	return &ActivityRepository{db: db}
}

// Insert writes a fully built record in a single statement.
func (r *ActivityRepository) Insert(ctx context.Context, rec *models.ActivityRecord) error {
	if rec.ID == "" {
		rec.ID = uuid.NewString()
	}
	const query = `INSERT INTO activities
	(id, type, description, actor_id, subject_type, subject_id, module, properties, ip_address, user_agent, result, risk_level, signature, created_at)
	VALUES (:id, :type, :description, :actor_id, :subject_type, :subject_id, :module, :properties, :ip_address, :user_agent, :result, :risk_level, :signature, :created_at)`
	if _, err := r.db.NamedExecContext(ctx, query, rec); err != nil {
		return fmt.Errorf("insert activity: %w", err)
	}
	return nil
}

// GetByID returns one live record or sql.ErrNoRows.
func (r *ActivityRepository) GetByID(ctx context.Context, id string) (*models.ActivityRecord, error) {
	query := `SELECT ` + activityColumns + ` FROM activities WHERE id = $1`
	var rec models.ActivityRecord
	if err := r.db.GetContext(ctx, &rec, query, id); err != nil {
		return nil, err
	}
	return &rec, nil
}

// List returns newest-first records for the given filter.
func (r *ActivityRepository) List(ctx context.Context, filter models.ActivityFilter) ([]models.ActivityRecord, error) {
	where, args := buildActivityWhere(filter)
	builder := strings.Builder{}
	builder.WriteString(`SELECT ` + activityColumns + ` FROM activities`)
	builder.WriteString(where)
	builder.WriteString(" ORDER BY created_at DESC, id DESC")

	limit := filter.Limit
	if limit <= 0 || limit > 500 {
		limit = 50
	}
	offset := filter.Offset
	if offset < 0 {
		offset = 0
	}
	builder.WriteString(fmt.Sprintf(" LIMIT %d OFFSET %d", limit, offset))

	var records []models.ActivityRecord
	if err := r.db.SelectContext(ctx, &records, builder.String(), args...); err != nil {
		return nil, fmt.Errorf("list activities: %w", err)
	}
	return records, nil
}

// Count returns the number of records matching filter.
func (r *ActivityRepository) Count(ctx context.Context, filter models.ActivityFilter) (int, error) {
	where, args := buildActivityWhere(filter)
	var total int
	if err := r.db.GetContext(ctx, &total, `SELECT COUNT(*) FROM activities`+where, args...); err != nil {
		return 0, fmt.Errorf("count activities: %w", err)
	}
	return total, nil
}

// Scan returns the next ascending keyset page after cursor. Callers loop until
// a short page comes back; rows inserted mid-scan past the caller's upper
// bound are excluded by filter.CreatedBefore.
func (r *ActivityRepository) Scan(ctx context.Context, filter models.ActivityFilter, cursor models.ActivityCursor) ([]models.ActivityRecord, error) {
	where, args := buildActivityWhere(filter)
	if !cursor.AfterCreatedAt.IsZero() {
		args = append(args, cursor.AfterCreatedAt, cursor.AfterID)
		clause := fmt.Sprintf("(created_at, id) > ($%d, $%d)", len(args)-1, len(args))
		if where == "" {
			where = " WHERE " + clause
		} else {
			where += " AND " + clause
		}
	}

	limit := cursor.Limit
	if limit <= 0 {
		limit = 500
	}
	query := `SELECT ` + activityColumns + ` FROM activities` + where +
		fmt.Sprintf(" ORDER BY created_at ASC, id ASC LIMIT %d", limit)

	var records []models.ActivityRecord
	if err := r.db.SelectContext(ctx, &records, query, args...); err != nil {
		return nil, fmt.Errorf("scan activities: %w", err)
	}
	return records, nil
}

// SetRiskLevel records an analyzer score. risk_level is outside the signed fields.
func (r *ActivityRepository) SetRiskLevel(ctx context.Context, id string, level int) error {
	const query = `UPDATE activities SET risk_level = $2 WHERE id = $1`
	res, err := r.db.ExecContext(ctx, query, id, level)
	if err != nil {
		return fmt.Errorf("set activity risk level: %w", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("check risk level rows: %w", err)
	}
	if affected == 0 {
		return sql.ErrNoRows
	}
	return nil
}

// ArchiveAndDelete copies rec into the archive and removes the live row in one
// transaction. A leftover archive copy from an earlier interrupted run is kept
// as is; the live row is still removed.
func (r *ActivityRepository) ArchiveAndDelete(ctx context.Context, archived *models.ArchivedRecord) (bool, error) {
	if archived.ID == "" {
		archived.ID = uuid.NewString()
	}
	tx, err := r.db.BeginTxx(ctx, nil)
	if err != nil {
		return false, fmt.Errorf("begin archive tx: %w", err)
	}
	defer tx.Rollback() //nolint:errcheck

	const insert = `INSERT INTO archived_activities
	(id, original_id, type, description, actor_id, subject_type, subject_id, module, properties, ip_address, user_agent, result, risk_level, signature, created_at, archived_at, archived_by, archive_reason)
	VALUES (:id, :original_id, :type, :description, :actor_id, :subject_type, :subject_id, :module, :properties, :ip_address, :user_agent, :result, :risk_level, :signature, :created_at, :archived_at, :archived_by, :archive_reason)
	ON CONFLICT (original_id) DO NOTHING`
	if _, err := tx.NamedExecContext(ctx, insert, archived); err != nil {
		return false, fmt.Errorf("insert archived activity: %w", err)
	}

	res, err := tx.ExecContext(ctx, `DELETE FROM activities WHERE id = $1`, archived.OriginalID)
	if err != nil {
		return false, fmt.Errorf("delete archived original: %w", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("check archive delete rows: %w", err)
	}
	if affected == 0 {
		// Another run already moved it; drop our copy with the rollback.
		return false, nil
	}

	if err := tx.Commit(); err != nil {
		return false, fmt.Errorf("commit archive tx: %w", err)
	}
	return true, nil
}

// Purge removes a live record without copying it. It reports whether a row was removed.
func (r *ActivityRepository) Purge(ctx context.Context, id string) (bool, error) {
	res, err := r.db.ExecContext(ctx, `DELETE FROM activities WHERE id = $1`, id)
	if err != nil {
		return false, fmt.Errorf("purge activity: %w", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("check purge rows: %w", err)
	}
	return affected > 0, nil
}

func buildActivityWhere(filter models.ActivityFilter) (string, []interface{}) {
	args := make([]interface{}, 0, 8)
	conditions := make([]string, 0, 8)

	if filter.Type != "" {
		args = append(args, filter.Type)
		conditions = append(conditions, fmt.Sprintf("type = $%d", len(args)))
	}
	if len(filter.Types) > 0 {
		args = append(args, pq.Array(filter.Types))
		conditions = append(conditions, fmt.Sprintf("type = ANY($%d)", len(args)))
	}
	if filter.Module != "" {
		args = append(args, filter.Module)
		conditions = append(conditions, fmt.Sprintf("module = $%d", len(args)))
	}
	if filter.ActorID != "" {
		args = append(args, filter.ActorID)
		conditions = append(conditions, fmt.Sprintf("actor_id = $%d", len(args)))
	}
	if filter.IPAddress != "" {
		args = append(args, filter.IPAddress)
		conditions = append(conditions, fmt.Sprintf("ip_address = $%d", len(args)))
	}
	if filter.Result != "" {
		args = append(args, filter.Result)
		conditions = append(conditions, fmt.Sprintf("result = $%d", len(args)))
	}
	if filter.MinRiskLevel != nil {
		args = append(args, *filter.MinRiskLevel)
		conditions = append(conditions, fmt.Sprintf("risk_level >= $%d", len(args)))
	}
	if filter.CreatedFrom != nil {
		args = append(args, *filter.CreatedFrom)
		conditions = append(conditions, fmt.Sprintf("created_at >= $%d", len(args)))
	}
	if filter.CreatedBefore != nil {
		args = append(args, *filter.CreatedBefore)
		conditions = append(conditions, fmt.Sprintf("created_at <= $%d", len(args)))
	}

	if len(conditions) == 0 {
		return "", args
	}
	return " WHERE " + strings.Join(conditions, " AND "), args
}
