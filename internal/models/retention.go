package models

import (
	"database/sql/driver"
	"encoding/json"
	"fmt"
	"time"

	"github.com/noah-isme/activity-audit-api/pkg/props"
)

// RetentionAction decides what happens to matched records.
type RetentionAction string

const (
	RetentionArchive RetentionAction = "archive"
	RetentionDelete  RetentionAction = "delete"
)

// Valid reports whether a is a known action.
func (a RetentionAction) Valid() bool {
	return a == RetentionArchive || a == RetentionDelete
}

// ConditionOperator is a comparison used by policy predicates.
type ConditionOperator string

const (
	OpEqual        ConditionOperator = "="
	OpNotEqual     ConditionOperator = "!="
	OpGreater      ConditionOperator = ">"
	OpGreaterEqual ConditionOperator = ">="
	OpLess         ConditionOperator = "<"
	OpLessEqual    ConditionOperator = "<="
	OpIn           ConditionOperator = "in"
)

// Condition is a field/operator/value predicate such as riskLevel >= 5.
type Condition struct {
	Field    string            `json:"field"`
	Operator ConditionOperator `json:"operator"`
	Value    props.Value       `json:"value"`
}

// Conditions is stored as a JSONB array on the policy row.
type Conditions []Condition

// Value implements driver.Valuer.
func (c Conditions) Value() (driver.Value, error) {
	if c == nil {
		return []byte("[]"), nil
	}
	return json.Marshal([]Condition(c))
}

// Scan implements sql.Scanner.
func (c *Conditions) Scan(src interface{}) error {
	var raw []byte
	switch v := src.(type) {
	case nil:
		*c = nil
		return nil
	case []byte:
		raw = v
	case string:
		raw = []byte(v)
	default:
		return fmt.Errorf("conditions: unsupported scan type %T", src)
	}
	if len(raw) == 0 {
		*c = nil
		return nil
	}
	var out []Condition
	if err := json.Unmarshal(raw, &out); err != nil {
		return fmt.Errorf("conditions: %w", err)
	}
	*c = out
	return nil
}

// RetentionPolicy is an administrator-managed rule evaluated by the retention engine.
type RetentionPolicy struct {
	ID            string          `db:"id" json:"id"`
	Name          string          `db:"name" json:"name"`
	ActivityType  *string         `db:"activity_type" json:"activityType,omitempty"`
	Module        *string         `db:"module" json:"module,omitempty"`
	Conditions    Conditions      `db:"conditions" json:"conditions"`
	RetentionDays int             `db:"retention_days" json:"retentionDays"`
	Action        RetentionAction `db:"action" json:"action"`
	IsActive      bool            `db:"is_active" json:"isActive"`
	Priority      int             `db:"priority" json:"priority"`
	CreatedBy     string          `db:"created_by" json:"createdBy"`
	CreatedAt     time.Time       `db:"created_at" json:"createdAt"`
	UpdatedAt     time.Time       `db:"updated_at" json:"updatedAt"`
}

// Cutoff returns the newest createdAt the policy may touch.
func (p *RetentionPolicy) Cutoff(now time.Time) time.Time {
	return now.AddDate(0, 0, -p.RetentionDays)
}

// RetentionPolicyFilter narrows policy listing.
type RetentionPolicyFilter struct {
	ActiveOnly bool
}

// CleanupType distinguishes scheduled and ad-hoc runs.
type CleanupType string

const (
	CleanupAutomatic CleanupType = "automatic"
	CleanupManual    CleanupType = "manual"
)

// RunStatus is the outcome of a retention run or integrity audit.
type RunStatus string

const (
	StatusCompleted RunStatus = "completed"
	StatusFailed    RunStatus = "failed"
)

// CleanupLog records one retention execution. Written once per run.
type CleanupLog struct {
	ID               string          `db:"id" json:"id"`
	PolicyID         *string         `db:"policy_id" json:"policyId,omitempty"`
	Type             CleanupType     `db:"type" json:"type"`
	Action           RetentionAction `db:"action" json:"action"`
	Status           RunStatus       `db:"status" json:"status"`
	RecordsProcessed int             `db:"records_processed" json:"recordsProcessed"`
	RecordsArchived  int             `db:"records_archived" json:"recordsArchived"`
	RecordsDeleted   int             `db:"records_deleted" json:"recordsDeleted"`
	ErrorMessage     *string         `db:"error_message" json:"errorMessage,omitempty"`
	ExecutedBy       string          `db:"executed_by" json:"executedBy"`
	StartedAt        time.Time       `db:"started_at" json:"startedAt"`
	CompletedAt      time.Time       `db:"completed_at" json:"completedAt"`
}

// CleanupLogFilter narrows cleanup log listing.
type CleanupLogFilter struct {
	PolicyID string
	Type     CleanupType
	Status   RunStatus
	Limit    int
	Offset   int
}

// CleanupCriteria selects records for a manual cleanup.
type CleanupCriteria struct {
	DateFrom     *time.Time
	DateTo       time.Time
	Module       string
	Type         string
	MinRiskLevel *int
	MaxRiskLevel *int
}

// ExecutionReport summarises one retention run. Dry runs carry would-be counts.
type ExecutionReport struct {
	Status           RunStatus       `json:"status"`
	PolicyID         *string         `json:"policyId,omitempty"`
	PolicyName       string          `json:"policyName,omitempty"`
	Action           RetentionAction `json:"action"`
	DryRun           bool            `json:"dryRun"`
	RecordsProcessed int             `json:"recordsProcessed"`
	RecordsArchived  int             `json:"recordsArchived"`
	RecordsDeleted   int             `json:"recordsDeleted"`
	Error            string          `json:"error,omitempty"`
	CleanupLogID     string          `json:"cleanupLogId,omitempty"`
	StartedAt        time.Time       `json:"startedAt"`
	CompletedAt      time.Time       `json:"completedAt"`
}

// PreviewReport lists what a policy would touch without mutating anything.
type PreviewReport struct {
	PolicyID      string           `json:"policyId"`
	PolicyName    string           `json:"policyName"`
	Action        RetentionAction  `json:"action"`
	Cutoff        time.Time        `json:"cutoff"`
	MatchCount    int              `json:"matchCount"`
	ByType        map[string]int   `json:"byType"`
	ByModule      map[string]int   `json:"byModule"`
	OldestRecord  *time.Time       `json:"oldestRecord,omitempty"`
	NewestRecord  *time.Time       `json:"newestRecord,omitempty"`
	SampleRecords []ActivityRecord `json:"sampleRecords"`
}

// RestoreOutcome is the per-id result of a restore.
type RestoreOutcome struct {
	ArchivedID string `json:"archivedId"`
	RestoredID string `json:"restoredId,omitempty"`
	Success    bool   `json:"success"`
	Error      string `json:"error,omitempty"`
}

// RestoreReport collects restore outcomes. Failures never abort the batch.
type RestoreReport struct {
	Requested int              `json:"requested"`
	Restored  int              `json:"restored"`
	Failed    int              `json:"failed"`
	Results   []RestoreOutcome `json:"results"`
}

// ArchiveFilter narrows archived record listing.
type ArchiveFilter struct {
	OriginalID     string
	Type           string
	Module         string
	ArchivedBefore *time.Time
	Limit          int
	Offset         int
}

// PurgeReport summarises a purge of archived records.
type PurgeReport struct {
	Before  time.Time `json:"before"`
	Deleted int64     `json:"deleted"`
}
