package repository

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"

	"github.com/noah-isme/activity-audit-api/internal/models"
)

// SecurityAlertRepository stores analyzer alerts. Alerts are never updated.
type SecurityAlertRepository struct {
	db *sqlx.DB
}

// NewSecurityAlertRepository constructs the repository.
func NewSecurityAlertRepository(db *sqlx.DB) *SecurityAlertRepository {
	return &SecurityAlertRepository{db: db}
}

// Create appends an alert.
func (r *SecurityAlertRepository) Create(ctx context.Context, alert *models.SecurityAlert) error {
	if alert.ID == "" {
		alert.ID = uuid.NewString()
	}
	if alert.CreatedAt.IsZero() {
		alert.CreatedAt = time.Now().UTC()
	}
	const query = `INSERT INTO security_alerts (id, activity_id, severity, kind, details, created_at)
	VALUES (:id, :activity_id, :severity, :kind, :details, :created_at)`
	if _, err := r.db.NamedExecContext(ctx, query, alert); err != nil {
		return fmt.Errorf("create security alert: %w", err)
	}
	return nil
}

// List returns alerts newest first with the total count.
func (r *SecurityAlertRepository) List(ctx context.Context, filter models.SecurityAlertFilter) ([]models.SecurityAlert, int, error) {
	where, args := buildAlertWhere(filter)

	var total int
	if err := r.db.GetContext(ctx, &total, `SELECT COUNT(*) FROM security_alerts`+where, args...); err != nil {
		return nil, 0, fmt.Errorf("count security alerts: %w", err)
	}

	limit := filter.Limit
	if limit <= 0 || limit > 200 {
		limit = 50
	}
	offset := filter.Offset
	if offset < 0 {
		offset = 0
	}
	query := `SELECT id, activity_id, severity, kind, details, created_at FROM security_alerts` + where +
		fmt.Sprintf(" ORDER BY created_at DESC LIMIT %d OFFSET %d", limit, offset)

	var alerts []models.SecurityAlert
	if err := r.db.SelectContext(ctx, &alerts, query, args...); err != nil {
		return nil, 0, fmt.Errorf("list security alerts: %w", err)
	}
	return alerts, total, nil
}

// Exists reports whether an alert of kind was already raised for the activity.
func (r *SecurityAlertRepository) Exists(ctx context.Context, kind models.AlertKind, activityID string) (bool, error) {
	var exists bool
	const query = `SELECT EXISTS(SELECT 1 FROM security_alerts WHERE kind = $1 AND activity_id = $2)`
	if err := r.db.GetContext(ctx, &exists, query, kind, activityID); err != nil {
		return false, fmt.Errorf("check security alert: %w", err)
	}
	return exists, nil
}

func buildAlertWhere(filter models.SecurityAlertFilter) (string, []interface{}) {
	args := make([]interface{}, 0, 4)
	conditions := make([]string, 0, 4)
	if filter.Kind != "" {
		args = append(args, filter.Kind)
		conditions = append(conditions, fmt.Sprintf("kind = $%d", len(args)))
	}
	if filter.Severity != "" {
		args = append(args, filter.Severity)
		conditions = append(conditions, fmt.Sprintf("severity = $%d", len(args)))
	}
	if filter.ActivityID != "" {
		args = append(args, filter.ActivityID)
		conditions = append(conditions, fmt.Sprintf("activity_id = $%d", len(args)))
	}
	if filter.IPAddress != "" {
		args = append(args, filter.IPAddress)
		conditions = append(conditions, fmt.Sprintf("details->>'ipAddress' = $%d", len(args)))
	}
	if filter.Since != nil {
		args = append(args, *filter.Since)
		conditions = append(conditions, fmt.Sprintf("created_at >= $%d", len(args)))
	}
	if len(conditions) == 0 {
		return "", args
	}
	return " WHERE " + strings.Join(conditions, " AND "), args
}
