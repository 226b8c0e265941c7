package dto

// SecurityWindowQuery selects the look-back window for security endpoints.
type SecurityWindowQuery struct {
	Window string `form:"window"`
}

// AlertListQuery captures alert list filters.
type AlertListQuery struct {
	Kind       string `form:"kind" validate:"omitempty,oneof=brute_force anomaly tampering high_risk"`
	Severity   string `form:"severity" validate:"omitempty,oneof=low medium high critical"`
	ActivityID string `form:"activityId"`
	Page       int    `form:"page" validate:"omitempty,min=1"`
	PageSize   int    `form:"pageSize" validate:"omitempty,min=1,max=200"`
}
