package api

import (
	"log/slog"
	"net/http"

	"github.com/gin-gonic/gin"

	"cvbuilder/internal/api/middleware"
	"cvbuilder/internal/metrics"
	"cvbuilder/internal/subscription"
)

// CronHandler 是外部调度器调用的维护入口，由 CronSecretMiddleware 保护。
type CronHandler struct {
	svc *subscription.Service
}

func NewCronHandler(svc *subscription.Service) *CronHandler {
	return &CronHandler{svc: svc}
}

// ExpireSubscriptions 把已过期的订阅置为 expired。
func (h *CronHandler) ExpireSubscriptions(c *gin.Context) {
	n, err := h.svc.ExpireOverdue(c.Request.Context())
	if err != nil {
		Fail(c, err)
		return
	}
	metrics.SubscriptionsExpired(n)
	middleware.LoggerFromContext(c).Info("subscriptions expired", slog.Int64("count", n))
	c.JSON(http.StatusOK, gin.H{"success": true, "expired": n})
}

// FixDurations 按套餐时长修正到期时间。
func (h *CronHandler) FixDurations(c *gin.Context) {
	n, err := h.svc.FixDurations(c.Request.Context())
	if err != nil {
		Fail(c, err)
		return
	}
	middleware.LoggerFromContext(c).Info("subscription durations fixed", slog.Int64("count", n))
	c.JSON(http.StatusOK, gin.H{"success": true, "fixed": n})
}
