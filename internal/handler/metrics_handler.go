package handler

import (
	"context"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/noah-isme/activity-audit-api/internal/service"
	"github.com/noah-isme/activity-audit-api/pkg/jobs"
	"github.com/noah-isme/activity-audit-api/pkg/response"
)

type queueStats interface {
	Stats() jobs.Stats
}

type pinger interface {
	PingContext(ctx context.Context) error
}

// MetricsHandler exposes observability endpoints.
type MetricsHandler struct {
	metrics *service.MetricsService
	queue   queueStats
	db      pinger
}

// NewMetricsHandler constructs a metrics handler. queue and db may be nil.
func NewMetricsHandler(metrics *service.MetricsService, queue queueStats, db pinger) *MetricsHandler {
	return &MetricsHandler{metrics: metrics, queue: queue, db: db}
}

// Prometheus serves the Prometheus metrics endpoint.
func (h *MetricsHandler) Prometheus(c *gin.Context) {
	if h.metrics == nil {
		c.Status(http.StatusServiceUnavailable)
		return
	}
	h.metrics.Handler().ServeHTTP(c.Writer, c.Request)
}

// Summary godoc
// @Summary Audit counters and analysis queue depth
// @Tags Metrics
// @Produce json
// @Success 200 {object} response.Envelope
// @Router /metrics/summary [get]
func (h *MetricsHandler) Summary(c *gin.Context) {
	payload := gin.H{}
	if h.metrics != nil {
		payload["audit"] = h.metrics.Snapshot()
	}
	if h.queue != nil {
		payload["analysisQueue"] = h.queue.Stats()
	}
	response.JSON(c, http.StatusOK, payload, nil)
}

// Health responds with OK when the database answers.
func (h *MetricsHandler) Health(c *gin.Context) {
	if h.db != nil {
		if err := h.db.PingContext(c.Request.Context()); err != nil {
			c.JSON(http.StatusServiceUnavailable, gin.H{"status": "unavailable"})
			return
		}
	}
	c.JSON(http.StatusOK, gin.H{"status": "ok"})
}
