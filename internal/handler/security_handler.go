package handler

import (
	"context"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/noah-isme/activity-audit-api/internal/dto"
	"github.com/noah-isme/activity-audit-api/internal/middleware"
	"github.com/noah-isme/activity-audit-api/internal/models"
	appErrors "github.com/noah-isme/activity-audit-api/pkg/errors"
	"github.com/noah-isme/activity-audit-api/pkg/response"
)

type securityService interface {
	GenerateSecurityReport(ctx context.Context, window time.Duration) (*models.SecurityReport, bool, error)
	CheckSuspiciousIPs(ctx context.Context, window time.Duration) ([]models.IPRisk, error)
	MonitorFailedLogins(ctx context.Context) (*models.BruteForceReport, error)
	IdentifyPatterns(ctx context.Context, actorID string, window time.Duration) (*models.UserPatternReport, error)
	ListAlerts(ctx context.Context, query dto.AlertListQuery) ([]models.SecurityAlert, *models.Pagination, error)
}

// SecurityHandler exposes the security analyzer reports.
type SecurityHandler struct {
	service securityService
}

// NewSecurityHandler builds a new handler.
func NewSecurityHandler(service securityService) *SecurityHandler {
	return &SecurityHandler{service: service}
}

// Report godoc
// @Summary Security overview for a window
// @Tags Security
// @Produce json
// @Param window query string false "Window such as 24h or 7d"
// @Success 200 {object} response.Envelope
// @Router /security/report [get]
func (h *SecurityHandler) Report(c *gin.Context) {
	window, err := parseWindow(c.Query("window"), 0)
	if err != nil {
		response.Error(c, err)
		return
	}
	report, hit, err := h.service.GenerateSecurityReport(c.Request.Context(), window)
	if err != nil {
		response.Error(c, err)
		return
	}
	middleware.SetCacheHit(c, hit)
	response.JSON(c, http.StatusOK, report, nil, middleware.ExtractMeta(c))
}

// SuspiciousIPs godoc
// @Summary Rank IPs by failed login risk
// @Tags Security
// @Produce json
// @Param window query string false "Window such as 15m"
// @Success 200 {object} response.Envelope
// @Router /security/suspicious-ips [get]
func (h *SecurityHandler) SuspiciousIPs(c *gin.Context) {
	window, err := parseWindow(c.Query("window"), 0)
	if err != nil {
		response.Error(c, err)
		return
	}
	entries, err := h.service.CheckSuspiciousIPs(c.Request.Context(), window)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, entries, nil)
}

// BruteForce godoc
// @Summary Brute force candidates over the configured window
// @Tags Security
// @Produce json
// @Success 200 {object} response.Envelope
// @Router /security/brute-force [get]
func (h *SecurityHandler) BruteForce(c *gin.Context) {
	report, err := h.service.MonitorFailedLogins(c.Request.Context())
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, report, nil)
}

// Patterns godoc
// @Summary Behaviour patterns and anomalies for an actor
// @Tags Security
// @Produce json
// @Param actorId path string true "Actor ID"
// @Param window query string false "Window such as 1h"
// @Success 200 {object} response.Envelope
// @Router /security/users/{actorId}/patterns [get]
func (h *SecurityHandler) Patterns(c *gin.Context) {
	window, err := parseWindow(c.Query("window"), 0)
	if err != nil {
		response.Error(c, err)
		return
	}
	report, err := h.service.IdentifyPatterns(c.Request.Context(), c.Param("actorId"), window)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, report, nil)
}

// Alerts godoc
// @Summary List security alerts
// @Tags Security
// @Produce json
// @Param kind query string false "Alert kind"
// @Param severity query string false "Severity"
// @Success 200 {object} response.Envelope
// @Router /security/alerts [get]
func (h *SecurityHandler) Alerts(c *gin.Context) {
	var query dto.AlertListQuery
	if err := c.ShouldBindQuery(&query); err != nil {
		response.Error(c, appErrors.Wrap(err, appErrors.ErrValidation.Code, http.StatusBadRequest, "invalid query parameters"))
		return
	}
	alerts, pagination, err := h.service.ListAlerts(c.Request.Context(), query)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, alerts, pagination)
}
