package middleware

import (
	"context"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/noah-isme/activity-audit-api/internal/models"
	"github.com/noah-isme/activity-audit-api/internal/service"
)

type apiAccessRecorder interface {
	LogAPIAccess(ctx context.Context, method, path string, status int, duration time.Duration, meta service.RequestMeta) (*models.ActivityRecord, error)
}

// APIAccess records every served request as an api.access activity once the
// handler has finished. Paths under any of skip are not recorded.
func APIAccess(recorder apiAccessRecorder, logger *zap.Logger, skip ...string) gin.HandlerFunc {
	if logger == nil {
		logger = zap.NewNop()
	}
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()

		path := c.FullPath()
		if path == "" {
			path = c.Request.URL.Path
		}
		for _, prefix := range skip {
			if strings.HasPrefix(path, prefix) {
				return
			}
		}

		meta := service.RequestMeta{
			IPAddress: c.ClientIP(),
			UserAgent: c.Request.UserAgent(),
		}
		if claims := Claims(c); claims != nil {
			actor := claims.UserID
			meta.ActorID = &actor
		}
		ctx := context.WithoutCancel(c.Request.Context())
		if _, err := recorder.LogAPIAccess(ctx, c.Request.Method, path, c.Writer.Status(), time.Since(start), meta); err != nil {
			logger.Warn("api access not recorded", zap.String("path", path), zap.Error(err))
		}
	}
}
