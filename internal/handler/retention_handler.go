package handler

import (
	"context"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"

	"github.com/noah-isme/activity-audit-api/internal/dto"
	"github.com/noah-isme/activity-audit-api/internal/models"
	appErrors "github.com/noah-isme/activity-audit-api/pkg/errors"
	"github.com/noah-isme/activity-audit-api/pkg/response"
)

type retentionService interface {
	CreatePolicy(ctx context.Context, req dto.RetentionPolicyRequest, createdBy string) (*models.RetentionPolicy, error)
	UpdatePolicy(ctx context.Context, id string, req dto.RetentionPolicyRequest) (*models.RetentionPolicy, error)
	DeletePolicy(ctx context.Context, id string) error
	GetPolicy(ctx context.Context, id string) (*models.RetentionPolicy, error)
	ListPolicies(ctx context.Context, activeOnly bool) ([]models.RetentionPolicy, error)
	Execute(ctx context.Context, policyID string, dryRun bool, executedBy string) (*models.ExecutionReport, error)
	ExecuteAll(ctx context.Context, executedBy string) ([]models.ExecutionReport, error)
	Preview(ctx context.Context, policyID string) (*models.PreviewReport, error)
	ManualCleanup(ctx context.Context, req dto.ManualCleanupRequest, executedBy string) (*models.ExecutionReport, error)
	Restore(ctx context.Context, req dto.RestoreRequest, restoredBy string) (*models.RestoreReport, error)
	PurgeArchived(ctx context.Context, req dto.PurgeArchivedRequest, executedBy string) (*models.PurgeReport, error)
	ListCleanupLogs(ctx context.Context, query dto.CleanupLogQuery) ([]models.CleanupLog, *models.Pagination, error)
	ListArchives(ctx context.Context, query dto.ArchiveListQuery) ([]models.ArchivedRecord, *models.Pagination, error)
}

// RetentionHandler exposes retention policies, cleanup runs and archives.
type RetentionHandler struct {
	service retentionService
}

// NewRetentionHandler builds a new handler.
func NewRetentionHandler(service retentionService) *RetentionHandler {
	return &RetentionHandler{service: service}
}

// ListPolicies godoc
// @Summary List retention policies
// @Tags Retention
// @Produce json
// @Param active query bool false "Only active policies"
// @Success 200 {object} response.Envelope
// @Router /retention/policies [get]
func (h *RetentionHandler) ListPolicies(c *gin.Context) {
	activeOnly, _ := strconv.ParseBool(c.Query("active"))
	policies, err := h.service.ListPolicies(c.Request.Context(), activeOnly)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, policies, nil)
}

// GetPolicy godoc
// @Summary Get a retention policy
// @Tags Retention
// @Produce json
// @Param id path string true "Policy ID"
// @Success 200 {object} response.Envelope
// @Router /retention/policies/{id} [get]
func (h *RetentionHandler) GetPolicy(c *gin.Context) {
	policy, err := h.service.GetPolicy(c.Request.Context(), c.Param("id"))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, policy, nil)
}

// CreatePolicy godoc
// @Summary Create a retention policy
// @Tags Retention
// @Accept json
// @Produce json
// @Param payload body dto.RetentionPolicyRequest true "Policy"
// @Success 201 {object} response.Envelope
// @Router /retention/policies [post]
func (h *RetentionHandler) CreatePolicy(c *gin.Context) {
	var req dto.RetentionPolicyRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, appErrors.Wrap(err, appErrors.ErrValidation.Code, http.StatusBadRequest, "invalid policy payload"))
		return
	}
	policy, err := h.service.CreatePolicy(c.Request.Context(), req, actorFromContext(c))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Created(c, policy)
}

// UpdatePolicy godoc
// @Summary Replace a retention policy
// @Tags Retention
// @Accept json
// @Produce json
// @Param id path string true "Policy ID"
// @Param payload body dto.RetentionPolicyRequest true "Policy"
// @Success 200 {object} response.Envelope
// @Router /retention/policies/{id} [put]
func (h *RetentionHandler) UpdatePolicy(c *gin.Context) {
	var req dto.RetentionPolicyRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, appErrors.Wrap(err, appErrors.ErrValidation.Code, http.StatusBadRequest, "invalid policy payload"))
		return
	}
	policy, err := h.service.UpdatePolicy(c.Request.Context(), c.Param("id"), req)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, policy, nil)
}

// DeletePolicy godoc
// @Summary Delete a retention policy
// @Tags Retention
// @Param id path string true "Policy ID"
// @Success 204
// @Router /retention/policies/{id} [delete]
func (h *RetentionHandler) DeletePolicy(c *gin.Context) {
	if err := h.service.DeletePolicy(c.Request.Context(), c.Param("id")); err != nil {
		response.Error(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}

// Preview godoc
// @Summary Preview what a policy would touch
// @Tags Retention
// @Produce json
// @Param id path string true "Policy ID"
// @Success 200 {object} response.Envelope
// @Router /retention/policies/{id}/preview [get]
func (h *RetentionHandler) Preview(c *gin.Context) {
	preview, err := h.service.Preview(c.Request.Context(), c.Param("id"))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, preview, nil)
}

// Execute godoc
// @Summary Execute a retention policy
// @Tags Retention
// @Accept json
// @Produce json
// @Param id path string true "Policy ID"
// @Param payload body dto.ExecutePolicyRequest false "Execution options"
// @Success 200 {object} response.Envelope
// @Router /retention/policies/{id}/execute [post]
func (h *RetentionHandler) Execute(c *gin.Context) {
	var req dto.ExecutePolicyRequest
	if c.Request.ContentLength > 0 {
		if err := c.ShouldBindJSON(&req); err != nil {
			response.Error(c, appErrors.Wrap(err, appErrors.ErrValidation.Code, http.StatusBadRequest, "invalid execution payload"))
			return
		}
	}
	report, err := h.service.Execute(c.Request.Context(), c.Param("id"), req.DryRun, actorFromContext(c))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, report, nil)
}

// ExecuteAll godoc
// @Summary Execute every active retention policy
// @Tags Retention
// @Produce json
// @Success 200 {object} response.Envelope
// @Router /retention/execute [post]
func (h *RetentionHandler) ExecuteAll(c *gin.Context) {
	reports, err := h.service.ExecuteAll(c.Request.Context(), actorFromContext(c))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, reports, nil)
}

// ManualCleanup godoc
// @Summary Archive or delete activities by criteria
// @Tags Retention
// @Accept json
// @Produce json
// @Param payload body dto.ManualCleanupRequest true "Cleanup criteria"
// @Success 200 {object} response.Envelope
// @Router /retention/cleanup [post]
func (h *RetentionHandler) ManualCleanup(c *gin.Context) {
	var req dto.ManualCleanupRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, appErrors.Wrap(err, appErrors.ErrValidation.Code, http.StatusBadRequest, "invalid cleanup payload"))
		return
	}
	report, err := h.service.ManualCleanup(c.Request.Context(), req, actorFromContext(c))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, report, nil)
}

// Restore godoc
// @Summary Restore archived activities
// @Tags Retention
// @Accept json
// @Produce json
// @Param payload body dto.RestoreRequest true "Archived ids"
// @Success 200 {object} response.Envelope
// @Router /retention/archives/restore [post]
func (h *RetentionHandler) Restore(c *gin.Context) {
	var req dto.RestoreRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, appErrors.Wrap(err, appErrors.ErrValidation.Code, http.StatusBadRequest, "invalid restore payload"))
		return
	}
	report, err := h.service.Restore(c.Request.Context(), req, actorFromContext(c))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, report, nil)
}

// PurgeArchives godoc
// @Summary Permanently remove old archived activities
// @Tags Retention
// @Accept json
// @Produce json
// @Param payload body dto.PurgeArchivedRequest true "Cut-off"
// @Success 200 {object} response.Envelope
// @Router /retention/archives/purge [post]
func (h *RetentionHandler) PurgeArchives(c *gin.Context) {
	var req dto.PurgeArchivedRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, appErrors.Wrap(err, appErrors.ErrValidation.Code, http.StatusBadRequest, "invalid purge payload"))
		return
	}
	report, err := h.service.PurgeArchived(c.Request.Context(), req, actorFromContext(c))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, report, nil)
}

// ListArchives godoc
// @Summary List archived activities
// @Tags Retention
// @Produce json
// @Success 200 {object} response.Envelope
// @Router /retention/archives [get]
func (h *RetentionHandler) ListArchives(c *gin.Context) {
	var query dto.ArchiveListQuery
	if err := c.ShouldBindQuery(&query); err != nil {
		response.Error(c, appErrors.Wrap(err, appErrors.ErrValidation.Code, http.StatusBadRequest, "invalid query parameters"))
		return
	}
	items, pagination, err := h.service.ListArchives(c.Request.Context(), query)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, items, pagination)
}

// ListCleanupLogs godoc
// @Summary List retention run history
// @Tags Retention
// @Produce json
// @Success 200 {object} response.Envelope
// @Router /retention/logs [get]
func (h *RetentionHandler) ListCleanupLogs(c *gin.Context) {
	var query dto.CleanupLogQuery
	if err := c.ShouldBindQuery(&query); err != nil {
		response.Error(c, appErrors.Wrap(err, appErrors.ErrValidation.Code, http.StatusBadRequest, "invalid query parameters"))
		return
	}
	logs, pagination, err := h.service.ListCleanupLogs(c.Request.Context(), query)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, logs, pagination)
}
