package handler

import (
	"github.com/gin-gonic/gin"

	"github.com/noah-isme/activity-audit-api/internal/middleware"
	"github.com/noah-isme/activity-audit-api/internal/models"
)

// Handlers groups the HTTP handlers mounted by RegisterRoutes. Maintenance may be nil.
type Handlers struct {
	Activity    *ActivityHandler
	Integrity   *IntegrityHandler
	Retention   *RetentionHandler
	Security    *SecurityHandler
	Maintenance *MaintenanceHandler
	Metrics     *MetricsHandler
}

var (
	writers   = []models.UserRole{models.RoleSuperAdmin, models.RoleAdmin, models.RoleService}
	readers   = []models.UserRole{models.RoleSuperAdmin, models.RoleAdmin, models.RoleAuditor}
	operators = []models.UserRole{models.RoleSuperAdmin, models.RoleAdmin}
	owners    = []models.UserRole{models.RoleSuperAdmin}
	anyone    = []models.UserRole{models.RoleSuperAdmin, models.RoleAdmin, models.RoleAuditor, models.RoleService}
)

// RegisterRoutes mounts the public health endpoints on r and the authenticated API under prefix.
func RegisterRoutes(r *gin.Engine, prefix string, h Handlers, auth gin.HandlerFunc, extra ...gin.HandlerFunc) {
	r.GET("/health", h.Metrics.Health)
	r.GET("/metrics", h.Metrics.Prometheus)

	api := r.Group(prefix)
	api.Use(auth)
	api.Use(extra...)

	activities := api.Group("/activities")
	activities.POST("", middleware.RequireRoles(writers...), h.Activity.Log)
	activities.POST("/batch", middleware.RequireRoles(writers...), h.Activity.LogBatch)
	activities.GET("", middleware.RequireRoles(readers...), h.Activity.List)
	activities.GET("/:id", middleware.RequireRoles(readers...), h.Activity.Get)
	activities.GET("/:id/verify", middleware.RequireRoles(readers...), h.Integrity.Verify)
	activities.POST("/:id/tamper-check", middleware.RequireRoles(readers...), h.Integrity.TamperCheck)
	activities.PUT("/:id", middleware.RequireRoles(anyone...), h.Activity.Update)
	activities.PATCH("/:id", middleware.RequireRoles(anyone...), h.Activity.Update)
	activities.DELETE("/:id", middleware.RequireRoles(anyone...), h.Activity.Delete)

	api.POST("/integrity/audit", middleware.RequireRoles(readers...), h.Integrity.Audit)

	retention := api.Group("/retention")
	retention.GET("/policies", middleware.RequireRoles(readers...), h.Retention.ListPolicies)
	retention.GET("/policies/:id", middleware.RequireRoles(readers...), h.Retention.GetPolicy)
	retention.GET("/policies/:id/preview", middleware.RequireRoles(readers...), h.Retention.Preview)
	retention.POST("/policies", middleware.RequireRoles(operators...), h.Retention.CreatePolicy)
	retention.PUT("/policies/:id", middleware.RequireRoles(operators...), h.Retention.UpdatePolicy)
	retention.DELETE("/policies/:id", middleware.RequireRoles(operators...), h.Retention.DeletePolicy)
	retention.POST("/policies/:id/execute", middleware.RequireRoles(operators...), h.Retention.Execute)
	retention.POST("/execute", middleware.RequireRoles(operators...), h.Retention.ExecuteAll)
	retention.POST("/cleanup", middleware.RequireRoles(operators...), h.Retention.ManualCleanup)
	retention.GET("/logs", middleware.RequireRoles(readers...), h.Retention.ListCleanupLogs)
	retention.GET("/archives", middleware.RequireRoles(readers...), h.Retention.ListArchives)
	retention.POST("/archives/restore", middleware.RequireRoles(owners...), h.Retention.Restore)
	retention.POST("/archives/purge", middleware.RequireRoles(owners...), h.Retention.PurgeArchives)

	security := api.Group("/security", middleware.RequireRoles(readers...))
	security.GET("/report", h.Security.Report)
	security.GET("/suspicious-ips", h.Security.SuspiciousIPs)
	security.GET("/brute-force", h.Security.BruteForce)
	security.GET("/users/:actorId/patterns", h.Security.Patterns)
	security.GET("/alerts", h.Security.Alerts)

	api.GET("/metrics/summary", middleware.RequireRoles(readers...), h.Metrics.Summary)

	if h.Maintenance != nil {
		api.GET("/maintenance/jobs", middleware.RequireRoles(operators...), h.Maintenance.Jobs)
		api.POST("/maintenance/jobs/:name/run", middleware.RequireRoles(owners...), h.Maintenance.Run)
	}
}
