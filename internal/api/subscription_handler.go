package api

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"cvbuilder/internal/subscription"
)

// SubscriptionHandler 暴露订阅状态、历史、套餐与取消。
type SubscriptionHandler struct {
	svc *subscription.Service
}

func NewSubscriptionHandler(svc *subscription.Service) *SubscriptionHandler {
	return &SubscriptionHandler{svc: svc}
}

// Plans 返回可购买的套餐，价格为主货币单位。
func (h *SubscriptionHandler) Plans(c *gin.Context) {
	plans := h.svc.Catalog().Plans()
	items := make([]gin.H, 0, len(plans))
	for _, p := range plans {
		items = append(items, gin.H{
			"id":           p.ID,
			"name":         p.Name,
			"durationDays": p.DurationDays,
			"amount":       float64(p.Amount) / 100,
			"currency":     p.Currency,
		})
	}
	Success(c, http.StatusOK, "plans", items)
}

// Me 返回当前用户对两类文档的付费状态。
func (h *SubscriptionHandler) Me(c *gin.Context) {
	userID, ok := userIDFromContext(c)
	if !ok {
		AbortUnauthorized(c)
		return
	}
	status, err := h.svc.Status(c.Request.Context(), userID)
	if err != nil {
		Fail(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"success":        true,
		"hasCV":          status.HasCV,
		"hasCoverLetter": status.HasCoverLetter,
		"remainingDays":  status.RemainingDays,
		"subscription":   newSubscriptionView(status.Subscription),
	})
}

// History 返回当前用户的全部订阅。
func (h *SubscriptionHandler) History(c *gin.Context) {
	userID, ok := userIDFromContext(c)
	if !ok {
		AbortUnauthorized(c)
		return
	}
	subs, err := h.svc.History(c.Request.Context(), userID)
	if err != nil {
		Fail(c, err)
		return
	}
	items := make([]*subscriptionView, 0, len(subs))
	for i := range subs {
		items = append(items, newSubscriptionView(&subs[i]))
	}
	Success(c, http.StatusOK, "subscriptions", items)
}

// Cancel 取消当前用户的一条有效订阅。
func (h *SubscriptionHandler) Cancel(c *gin.Context) {
	userID, ok := userIDFromContext(c)
	if !ok {
		AbortUnauthorized(c)
		return
	}
	id, ok := parseIDParam(c, "id")
	if !ok {
		BadRequest(c, "invalid id")
		return
	}
	sub, err := h.svc.Cancel(c.Request.Context(), userID, id)
	if err != nil {
		Fail(c, err)
		return
	}
	Success(c, http.StatusOK, "subscription", newSubscriptionView(sub))
}
