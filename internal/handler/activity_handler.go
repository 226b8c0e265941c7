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

type activityService interface {
	Log(ctx context.Context, req dto.LogActivityRequest) (*models.ActivityRecord, error)
	LogBatch(ctx context.Context, req dto.LogBatchRequest) ([]models.ActivityRecord, error)
	Get(ctx context.Context, id string) (*models.ActivityRecord, error)
	List(ctx context.Context, query dto.ActivityListQuery) ([]models.ActivityRecord, *models.Pagination, error)
	Update(ctx context.Context, id string, req dto.LogActivityRequest) (*models.ActivityRecord, error)
	Delete(ctx context.Context, id string) error
}

// ActivityHandler exposes the append-only activity log.
type ActivityHandler struct {
	service activityService
}

// NewActivityHandler builds a new handler.
func NewActivityHandler(service activityService) *ActivityHandler {
	return &ActivityHandler{service: service}
}

// bindOrigin fills actor and origin from the authenticated request. Only
// SERVICE callers may record activity on behalf of someone else.
func bindOrigin(c *gin.Context, req *dto.LogActivityRequest) {
	if trustedService(c) {
		if req.IPAddress == "" {
			req.IPAddress = c.ClientIP()
		}
		return
	}
	meta := requestMeta(c)
	req.ActorID = meta.ActorID
	req.IPAddress = meta.IPAddress
	req.UserAgent = meta.UserAgent
}

// Log godoc
// @Summary Record an activity
// @Tags Activities
// @Accept json
// @Produce json
// @Param payload body dto.LogActivityRequest true "Activity"
// @Success 201 {object} response.Envelope
// @Router /activities [post]
func (h *ActivityHandler) Log(c *gin.Context) {
	var req dto.LogActivityRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, appErrors.Wrap(err, appErrors.ErrValidation.Code, http.StatusBadRequest, "invalid activity payload"))
		return
	}
	bindOrigin(c, &req)
	record, err := h.service.Log(c.Request.Context(), req)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Created(c, record)
}

// LogBatch godoc
// @Summary Record several activities
// @Description Each activity is stored independently; stored records are returned even when a later one fails.
// @Tags Activities
// @Accept json
// @Produce json
// @Param payload body dto.LogBatchRequest true "Activities"
// @Success 201 {object} response.Envelope
// @Router /activities/batch [post]
func (h *ActivityHandler) LogBatch(c *gin.Context) {
	var req dto.LogBatchRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, appErrors.Wrap(err, appErrors.ErrValidation.Code, http.StatusBadRequest, "invalid batch payload"))
		return
	}
	for i := range req.Activities {
		bindOrigin(c, &req.Activities[i])
	}
	records, err := h.service.LogBatch(c.Request.Context(), req)
	if err != nil {
		if len(records) == 0 {
			response.Error(c, err)
			return
		}
		appErr := appErrors.FromError(err)
		response.JSON(c, http.StatusMultiStatus, records, nil, map[string]interface{}{
			"stored": len(records),
			"error":  appErr,
		})
		return
	}
	response.Created(c, records)
}

// List godoc
// @Summary List activities
// @Tags Activities
// @Produce json
// @Param type query string false "Activity type"
// @Param module query string false "Module"
// @Param actorId query string false "Actor"
// @Param result query string false "Result"
// @Param minRisk query int false "Minimum risk level"
// @Param page query int false "Page"
// @Param pageSize query int false "Page size"
// @Success 200 {object} response.Envelope
// @Router /activities [get]
func (h *ActivityHandler) List(c *gin.Context) {
	var query dto.ActivityListQuery
	if err := c.ShouldBindQuery(&query); err != nil {
		response.Error(c, appErrors.Wrap(err, appErrors.ErrValidation.Code, http.StatusBadRequest, "invalid query parameters"))
		return
	}
	records, pagination, err := h.service.List(c.Request.Context(), query)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, records, pagination)
}

// Get godoc
// @Summary Get activity by id
// @Tags Activities
// @Produce json
// @Param id path string true "Activity ID"
// @Success 200 {object} response.Envelope
// @Router /activities/{id} [get]
func (h *ActivityHandler) Get(c *gin.Context) {
	record, err := h.service.Get(c.Request.Context(), c.Param("id"))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, record, nil)
}

// Update godoc
// @Summary Activities cannot be modified
// @Tags Activities
// @Param id path string true "Activity ID"
// @Failure 409 {object} response.Envelope
// @Router /activities/{id} [put]
func (h *ActivityHandler) Update(c *gin.Context) {
	_, err := h.service.Update(c.Request.Context(), c.Param("id"), dto.LogActivityRequest{})
	response.Error(c, err)
}

// Delete godoc
// @Summary Activities cannot be deleted
// @Tags Activities
// @Param id path string true "Activity ID"
// @Failure 409 {object} response.Envelope
// @Router /activities/{id} [delete]
func (h *ActivityHandler) Delete(c *gin.Context) {
	response.Error(c, h.service.Delete(c.Request.Context(), c.Param("id")))
}
