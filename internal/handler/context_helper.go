package handler

import (
	"strconv"
	"strings"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/noah-isme/activity-audit-api/internal/middleware"
	"github.com/noah-isme/activity-audit-api/internal/models"
	"github.com/noah-isme/activity-audit-api/internal/service"
	appErrors "github.com/noah-isme/activity-audit-api/pkg/errors"
)

func claimsFromContext(c *gin.Context) *models.JWTClaims {
	return middleware.Claims(c)
}

func actorFromContext(c *gin.Context) string {
	if claims := claimsFromContext(c); claims != nil {
		return claims.UserID
	}
	return ""
}

// trustedService reports whether the caller may state actor and origin itself.
func trustedService(c *gin.Context) bool {
	claims := claimsFromContext(c)
	return claims != nil && claims.Role == models.RoleService
}

func requestMeta(c *gin.Context) service.RequestMeta {
	meta := service.RequestMeta{IPAddress: c.ClientIP(), UserAgent: c.Request.UserAgent()}
	if actor := actorFromContext(c); actor != "" {
		meta.ActorID = &actor
	}
	return meta
}

// parseWindow accepts Go durations plus a day suffix such as "7d".
func parseWindow(raw string, fallback time.Duration) (time.Duration, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return fallback, nil
	}
	var (
		window time.Duration
		err    error
	)
	if days, ok := strings.CutSuffix(raw, "d"); ok {
		var n int
		n, err = strconv.Atoi(days)
		window = time.Duration(n) * 24 * time.Hour
	} else {
		window, err = time.ParseDuration(raw)
	}
	if err != nil || window <= 0 {
		return 0, appErrors.Clone(appErrors.ErrValidation, "window must be a positive duration such as 15m, 24h or 7d")
	}
	return window, nil
}
