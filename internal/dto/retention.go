package dto

import (
	"time"

	"github.com/noah-isme/activity-audit-api/pkg/props"
)

// ConditionRequest is one field/operator/value predicate.
type ConditionRequest struct {
	Field    string      `json:"field" validate:"required"`
	Operator string      `json:"operator" validate:"required,oneof== != > >= < <= in"`
	Value    props.Value `json:"value"`
}

// RetentionPolicyRequest creates or replaces a retention policy.
type RetentionPolicyRequest struct {
	Name          string             `json:"name" validate:"required,max=200"`
	ActivityType  *string            `json:"activityType" validate:"omitempty,max=100"`
	Module        *string            `json:"module" validate:"omitempty,max=100"`
	Conditions    []ConditionRequest `json:"conditions" validate:"omitempty,max=20,dive"`
	RetentionDays int                `json:"retentionDays" validate:"required,min=1,max=36500"`
	Action        string             `json:"action" validate:"required,oneof=archive delete"`
	IsActive      *bool              `json:"isActive"`
	Priority      int                `json:"priority" validate:"min=0,max=1000"`
}

// ExecutePolicyRequest toggles dry-run for a policy execution.
type ExecutePolicyRequest struct {
	DryRun bool `json:"dryRun"`
}

// ManualCleanupRequest selects records by criteria outside any policy.
type ManualCleanupRequest struct {
	DateFrom     *time.Time `json:"dateFrom"`
	DateTo       time.Time  `json:"dateTo" validate:"required"`
	Module       string     `json:"module" validate:"omitempty,max=100"`
	Type         string     `json:"type" validate:"omitempty,max=100"`
	MinRiskLevel *int       `json:"minRiskLevel" validate:"omitempty,min=0,max=10"`
	MaxRiskLevel *int       `json:"maxRiskLevel" validate:"omitempty,min=0,max=10"`
	Action       string     `json:"action" validate:"required,oneof=archive delete"`
	DryRun       bool       `json:"dryRun"`
}

// RestoreRequest lists archived record ids to bring back.
type RestoreRequest struct {
	ArchivedIDs []string `json:"archivedIds" validate:"required,min=1,max=500,dive,required"`
}

// PurgeArchivedRequest permanently removes archives older than Before.
type PurgeArchivedRequest struct {
	Before time.Time `json:"before" validate:"required"`
}

// ArchiveListQuery captures archive list filters.
type ArchiveListQuery struct {
	OriginalID string `form:"originalId"`
	Type       string `form:"type"`
	Module     string `form:"module"`
	Page       int    `form:"page" validate:"omitempty,min=1"`
	PageSize   int    `form:"pageSize" validate:"omitempty,min=1,max=200"`
}

// CleanupLogQuery captures cleanup log filters.
type CleanupLogQuery struct {
	PolicyID string `form:"policyId"`
	Type     string `form:"type" validate:"omitempty,oneof=automatic manual"`
	Status   string `form:"status" validate:"omitempty,oneof=completed failed"`
	Page     int    `form:"page" validate:"omitempty,min=1"`
	PageSize int    `form:"pageSize" validate:"omitempty,min=1,max=200"`
}
