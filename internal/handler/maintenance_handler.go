package handler

import (
	"context"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/noah-isme/activity-audit-api/internal/service"
	"github.com/noah-isme/activity-audit-api/pkg/response"
)

type maintenanceScheduler interface {
	Jobs() []service.JobStatus
	RunNow(ctx context.Context, name string) (*service.JobStatus, error)
}

// MaintenanceHandler exposes scheduled job status and manual triggers.
type MaintenanceHandler struct {
	scheduler maintenanceScheduler
}

// NewMaintenanceHandler builds a new handler.
func NewMaintenanceHandler(scheduler maintenanceScheduler) *MaintenanceHandler {
	return &MaintenanceHandler{scheduler: scheduler}
}

// Jobs godoc
// @Summary List maintenance jobs
// @Tags Maintenance
// @Produce json
// @Success 200 {object} response.Envelope
// @Router /maintenance/jobs [get]
func (h *MaintenanceHandler) Jobs(c *gin.Context) {
	response.JSON(c, http.StatusOK, h.scheduler.Jobs(), nil)
}

// Run godoc
// @Summary Run a maintenance job now
// @Tags Maintenance
// @Produce json
// @Param name path string true "Job name"
// @Success 200 {object} response.Envelope
// @Router /maintenance/jobs/{name}/run [post]
func (h *MaintenanceHandler) Run(c *gin.Context) {
	// A client disconnect must not abort a run midway.
	status, err := h.scheduler.RunNow(context.WithoutCancel(c.Request.Context()), c.Param("name"))
	if err != nil {
		if status == nil {
			response.Error(c, err)
			return
		}
		response.JSON(c, http.StatusOK, status, nil, map[string]interface{}{"failed": true})
		return
	}
	response.JSON(c, http.StatusOK, status, nil)
}
