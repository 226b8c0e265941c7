package models

import (
	"time"

	"github.com/noah-isme/activity-audit-api/pkg/integrity"
	"github.com/noah-isme/activity-audit-api/pkg/props"
)

// ActivityResult is the outcome recorded on an activity.
type ActivityResult string

const (
	ResultSuccess     ActivityResult = "success"
	ResultFailure     ActivityResult = "failure"
	ResultWarning     ActivityResult = "warning"
	ResultClientError ActivityResult = "client_error"
)

// Valid reports whether r is one of the known results.
func (r ActivityResult) Valid() bool {
	switch r {
	case ResultSuccess, ResultFailure, ResultWarning, ResultClientError:
		return true
	default:
		return false
	}
}

// Well-known activity types used by the convenience writers and the analyzer.
const (
	ActivityLogin               = "login"
	ActivityLoginFailed         = "login_failed"
	ActivityLogout              = "logout"
	ActivityAPIAccess           = "api.access"
	ActivitySystem              = "system"
	ActivityPermissionEscalated = "permissions.escalate"
	ActivityRoleAssigned        = "roles.assign"
	ActivityUserDelete          = "users.delete"
	ActivityRoleDelete          = "roles.delete"
	ActivityPermissionDelete    = "permissions.delete"
	ActivitySettingsChange      = "settings.update"
	ActivityRecordsPurged       = "activity.purge"
	ActivityRecordsRestored     = "activity.restore"
)

// Risk level bounds.
const (
	MinRiskLevel = 0
	MaxRiskLevel = 10
)

// ActivityRecord is one immutable audit log entry.
type ActivityRecord struct {
	ID          string         `db:"id" json:"id"`
	Type        string         `db:"type" json:"type"`
	Description string         `db:"description" json:"description"`
	ActorID     *string        `db:"actor_id" json:"actorId,omitempty"`
	SubjectType *string        `db:"subject_type" json:"subjectType,omitempty"`
	SubjectID   *string        `db:"subject_id" json:"subjectId,omitempty"`
	Module      string         `db:"module" json:"module"`
	Properties  props.Value    `db:"properties" json:"properties"`
	IPAddress   string         `db:"ip_address" json:"ipAddress"`
	UserAgent   string         `db:"user_agent" json:"userAgent"`
	Result      ActivityResult `db:"result" json:"result"`
	RiskLevel   int            `db:"risk_level" json:"riskLevel"`
	Signature   *string        `db:"signature" json:"signature,omitempty"`
	CreatedAt   time.Time      `db:"created_at" json:"createdAt"`
}

// CanonicalFields returns the signed subset of the record.
func (r *ActivityRecord) CanonicalFields() integrity.Fields {
	return integrity.Fields{
		Type:        r.Type,
		Description: r.Description,
		ActorID:     r.ActorID,
		Module:      r.Module,
		Result:      string(r.Result),
		CreatedAt:   r.CreatedAt,
		Properties:  r.Properties,
	}
}

// SignatureValue returns the stored signature or an empty string.
func (r *ActivityRecord) SignatureValue() string {
	if r == nil || r.Signature == nil {
		return ""
	}
	return *r.Signature
}

// ActorValue returns the actor id or an empty string for system events.
func (r *ActivityRecord) ActorValue() string {
	if r == nil || r.ActorID == nil {
		return ""
	}
	return *r.ActorID
}

// ActivityDraft is the caller-supplied input for an append.
type ActivityDraft struct {
	Type        string
	Description string
	ActorID     *string
	SubjectType *string
	SubjectID   *string
	Module      string
	Properties  props.Value
	IPAddress   string
	UserAgent   string
	Result      ActivityResult
	RiskLevel   int
}

// ArchivedRecord is a snapshot of an ActivityRecord moved out of the live log.
type ArchivedRecord struct {
	ID            string         `db:"id" json:"id"`
	OriginalID    string         `db:"original_id" json:"originalId"`
	Type          string         `db:"type" json:"type"`
	Description   string         `db:"description" json:"description"`
	ActorID       *string        `db:"actor_id" json:"actorId,omitempty"`
	SubjectType   *string        `db:"subject_type" json:"subjectType,omitempty"`
	SubjectID     *string        `db:"subject_id" json:"subjectId,omitempty"`
	Module        string         `db:"module" json:"module"`
	Properties    props.Value    `db:"properties" json:"properties"`
	IPAddress     string         `db:"ip_address" json:"ipAddress"`
	UserAgent     string         `db:"user_agent" json:"userAgent"`
	Result        ActivityResult `db:"result" json:"result"`
	RiskLevel     int            `db:"risk_level" json:"riskLevel"`
	Signature     *string        `db:"signature" json:"signature,omitempty"`
	CreatedAt     time.Time      `db:"created_at" json:"createdAt"`
	ArchivedAt    time.Time      `db:"archived_at" json:"archivedAt"`
	ArchivedBy    string         `db:"archived_by" json:"archivedBy"`
	ArchiveReason string         `db:"archive_reason" json:"archiveReason"`
}

// NewArchivedRecord copies rec into an archive snapshot.
func NewArchivedRecord(rec ActivityRecord, archivedBy, reason string, at time.Time) ArchivedRecord {
	return ArchivedRecord{
		OriginalID:    rec.ID,
		Type:          rec.Type,
		Description:   rec.Description,
		ActorID:       rec.ActorID,
		SubjectType:   rec.SubjectType,
		SubjectID:     rec.SubjectID,
		Module:        rec.Module,
		Properties:    rec.Properties.Clone(),
		IPAddress:     rec.IPAddress,
		UserAgent:     rec.UserAgent,
		Result:        rec.Result,
		RiskLevel:     rec.RiskLevel,
		Signature:     rec.Signature,
		CreatedAt:     rec.CreatedAt,
		ArchivedAt:    at,
		ArchivedBy:    archivedBy,
		ArchiveReason: reason,
	}
}

// Snapshot rebuilds the live record as it was when archived.
func (a *ArchivedRecord) Snapshot() ActivityRecord {
	return ActivityRecord{
		ID:          a.OriginalID,
		Type:        a.Type,
		Description: a.Description,
		ActorID:     a.ActorID,
		SubjectType: a.SubjectType,
		SubjectID:   a.SubjectID,
		Module:      a.Module,
		Properties:  a.Properties.Clone(),
		IPAddress:   a.IPAddress,
		UserAgent:   a.UserAgent,
		Result:      a.Result,
		RiskLevel:   a.RiskLevel,
		Signature:   a.Signature,
		CreatedAt:   a.CreatedAt,
	}
}

// ActivityFilter narrows activity listing and scanning queries.
type ActivityFilter struct {
	Type          string
	Types         []string
	Module        string
	ActorID       string
	IPAddress     string
	Result        ActivityResult
	MinRiskLevel  *int
	CreatedFrom   *time.Time
	CreatedBefore *time.Time
	Limit         int
	Offset        int
}

// ActivityCursor is a keyset position for ascending scans over (created_at, id).
type ActivityCursor struct {
	AfterCreatedAt time.Time
	AfterID        string
	Limit          int
}

// Advance moves the cursor past rec.
func (c *ActivityCursor) Advance(rec ActivityRecord) {
	c.AfterCreatedAt = rec.CreatedAt
	c.AfterID = rec.ID
}
