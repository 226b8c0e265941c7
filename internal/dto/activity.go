package dto

import (
	"time"

	"github.com/noah-isme/activity-audit-api/pkg/props"
)

// LogActivityRequest is the write API payload. Actor, IP and user agent are
// taken from the authenticated request unless the caller is a trusted service.
type LogActivityRequest struct {
	Type        string      `json:"type" validate:"required,max=100"`
	Description string      `json:"description" validate:"required,max=2000"`
	ActorID     *string     `json:"actorId" validate:"omitempty,max=100"`
	SubjectType *string     `json:"subjectType" validate:"omitempty,max=100"`
	SubjectID   *string     `json:"subjectId" validate:"omitempty,max=100"`
	Module      string      `json:"module" validate:"omitempty,max=100"`
	Properties  props.Value `json:"properties"`
	IPAddress   string      `json:"ipAddress" validate:"omitempty,ip"`
	UserAgent   string      `json:"userAgent" validate:"omitempty,max=512"`
	Result      string      `json:"result" validate:"omitempty,oneof=success failure warning client_error"`
	RiskLevel   *int        `json:"riskLevel" validate:"omitempty,min=0,max=10"`
}

// LogBatchRequest appends several activities independently.
type LogBatchRequest struct {
	Activities []LogActivityRequest `json:"activities" validate:"required,min=1,max=100,dive"`
}

// ActivityListQuery captures list filters from the query string.
type ActivityListQuery struct {
	Type      string     `form:"type"`
	Module    string     `form:"module"`
	ActorID   string     `form:"actorId"`
	IPAddress string     `form:"ipAddress"`
	Result    string     `form:"result" validate:"omitempty,oneof=success failure warning client_error"`
	MinRisk   *int       `form:"minRisk" validate:"omitempty,min=0,max=10"`
	From      *time.Time `form:"from" time_format:"2006-01-02T15:04:05Z07:00"`
	To        *time.Time `form:"to" time_format:"2006-01-02T15:04:05Z07:00"`
	Page      int        `form:"page" validate:"omitempty,min=1"`
	PageSize  int        `form:"pageSize" validate:"omitempty,min=1,max=500"`
}

// TamperCheckRequest carries a trusted snapshot of the signed fields to diff
// against the stored record.
type TamperCheckRequest struct {
	Type        string      `json:"type" validate:"required"`
	Description string      `json:"description"`
	ActorID     *string     `json:"actorId"`
	Module      string      `json:"module"`
	Result      string      `json:"result" validate:"required"`
	CreatedAt   time.Time   `json:"createdAt" validate:"required"`
	Properties  props.Value `json:"properties"`
}
