package handler

import (
	"context"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/noah-isme/activity-audit-api/internal/dto"
	"github.com/noah-isme/activity-audit-api/internal/models"
	appErrors "github.com/noah-isme/activity-audit-api/pkg/errors"
	"github.com/noah-isme/activity-audit-api/pkg/response"
)

type integrityService interface {
	AuditAll(ctx context.Context) (*models.IntegrityReport, error)
	VerifyRecord(ctx context.Context, id string) (*models.VerificationResult, error)
	Diagnose(ctx context.Context, id string, snapshot dto.TamperCheckRequest) (*models.VerificationResult, error)
}

// IntegrityHandler exposes signature verification.
type IntegrityHandler struct {
	service integrityService
}

// NewIntegrityHandler builds a new handler.
func NewIntegrityHandler(service integrityService) *IntegrityHandler {
	return &IntegrityHandler{service: service}
}

// Verify godoc
// @Summary Verify an activity signature
// @Tags Integrity
// @Produce json
// @Param id path string true "Activity ID"
// @Success 200 {object} response.Envelope
// @Router /activities/{id}/verify [get]
func (h *IntegrityHandler) Verify(c *gin.Context) {
	result, err := h.service.VerifyRecord(c.Request.Context(), c.Param("id"))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, result, nil)
}

// TamperCheck godoc
// @Summary Diff an activity against a trusted snapshot
// @Tags Integrity
// @Accept json
// @Produce json
// @Param id path string true "Activity ID"
// @Param payload body dto.TamperCheckRequest true "Trusted snapshot"
// @Success 200 {object} response.Envelope
// @Router /activities/{id}/tamper-check [post]
func (h *IntegrityHandler) TamperCheck(c *gin.Context) {
	var req dto.TamperCheckRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, appErrors.Wrap(err, appErrors.ErrValidation.Code, http.StatusBadRequest, "invalid snapshot payload"))
		return
	}
	result, err := h.service.Diagnose(c.Request.Context(), c.Param("id"), req)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, result, nil)
}

// Audit godoc
// @Summary Verify every stored activity
// @Tags Integrity
// @Produce json
// @Success 200 {object} response.Envelope
// @Router /integrity/audit [post]
func (h *IntegrityHandler) Audit(c *gin.Context) {
	report, err := h.service.AuditAll(c.Request.Context())
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, report, nil)
}
