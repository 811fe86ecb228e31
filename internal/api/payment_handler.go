package api

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	"gorm.io/gorm"

	"cvbuilder/internal/api/middleware"
	"cvbuilder/internal/database"
	"cvbuilder/internal/errcode"
	"cvbuilder/internal/metrics"
	"cvbuilder/internal/payment"
	"cvbuilder/internal/subscription"
)

// PaymentGateway 由 *payment.Client 实现。
type PaymentGateway interface {
	Initialize(ctx context.Context, req payment.InitializeRequest) (payment.InitializeResult, error)
	Verify(ctx context.Context, reference string) (payment.Verification, error)
}

// PaymentHandler 发起支付并在核验成功后开通订阅。
type PaymentHandler struct {
	db      *gorm.DB
	gateway PaymentGateway
	subs    *subscription.Service
}

func NewPaymentHandler(db *gorm.DB, gateway PaymentGateway, subs *subscription.Service) *PaymentHandler {
	return &PaymentHandler{db: db, gateway: gateway, subs: subs}
}

type initializePaymentRequest struct {
	Plan        string `json:"plan" binding:"required"`
	Type        string `json:"type" binding:"required"`
	Email       string `json:"email"`
	Reference   string `json:"reference"`
	CallbackURL string `json:"callbackUrl"`
}

// Initialize 按套餐价格在网关创建交易，金额由服务端决定。
func (h *PaymentHandler) Initialize(c *gin.Context) {
	userID, ok := userIDFromContext(c)
	if !ok {
		AbortUnauthorized(c)
		return
	}

	var req initializePaymentRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		BadRequest(c, err.Error())
		return
	}
	if !subscription.IsValidType(req.Type) {
		BadRequest(c, "type must be cv, cover-letter or all")
		return
	}
	catalog := h.subs.Catalog()
	price, err := catalog.Price(req.Plan)
	if err != nil {
		BadRequest(c, err.Error())
		return
	}

	ctx := c.Request.Context()
	email := strings.TrimSpace(req.Email)
	if email == "" {
		user, err := h.loadUser(ctx, userID)
		if err != nil {
			Fail(c, err)
			return
		}
		email = user.Email
	}

	res, err := h.gateway.Initialize(ctx, payment.InitializeRequest{
		Email:       email,
		Amount:      float64(price) / 100,
		Currency:    catalog.Currency(),
		Reference:   req.Reference,
		CallbackURL: req.CallbackURL,
		Metadata: map[string]any{
			"plan":   req.Plan,
			"type":   req.Type,
			"userId": userID,
		},
	})
	if err != nil {
		Fail(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"success":          true,
		"authorizationUrl": res.AuthorizationURL,
		"accessCode":       res.AccessCode,
		"reference":        res.Reference,
	})
}

// Verify 向网关核验交易，成功后开通订阅。重复核验同一流水号是幂等的。
func (h *PaymentHandler) Verify(c *gin.Context) {
	userID, ok := userIDFromContext(c)
	if !ok {
		AbortUnauthorized(c)
		return
	}
	reference := strings.TrimSpace(c.Query("reference"))
	if reference == "" {
		BadRequest(c, "reference is required")
		return
	}

	ctx := c.Request.Context()
	logger := paymentLogger(c, reference)

	v, err := h.gateway.Verify(ctx, reference)
	if err != nil {
		metrics.PaymentVerified("error")
		Fail(c, err)
		return
	}
	if !v.Success {
		metrics.PaymentVerified("failed")
		logger.Info("payment verification failed", slog.String("message", v.Message))
		BadRequest(c, "payment verification failed: "+v.Message)
		return
	}
	if v.UserID != 0 && v.UserID != userID {
		metrics.PaymentVerified("failed")
		logger.Warn("payment belongs to another user", slog.Uint64("owner_id", uint64(v.UserID)))
		Forbidden(c, "payment belongs to another account")
		return
	}

	plan := firstNonEmpty(v.Plan, c.Query("plan"))
	subType := firstNonEmpty(v.Type, c.Query("type"))

	// 交易金额由付款方决定，须不低于目录价格且币种一致。
	catalog := h.subs.Catalog()
	price, err := catalog.Price(plan)
	if err != nil {
		metrics.PaymentVerified("failed")
		BadRequest(c, err.Error())
		return
	}
	if v.Amount < price || !strings.EqualFold(v.Currency, catalog.Currency()) {
		metrics.PaymentVerified("failed")
		logger.Warn("payment does not cover plan price",
			slog.String("plan", plan),
			slog.Int64("amount", v.Amount),
			slog.String("currency", v.Currency),
			slog.Int64("price", price),
		)
		BadRequest(c, "payment amount does not match plan price")
		return
	}
	email := v.Email
	if email == "" {
		if user, err := h.loadUser(ctx, userID); err == nil {
			email = user.Email
		}
	}

	sub, created, err := h.subs.Activate(ctx, subscription.Purchase{
		UserID:    userID,
		Email:     email,
		Plan:      plan,
		Type:      subType,
		Amount:    v.Amount,
		Currency:  v.Currency,
		Reference: v.Reference,
		PaidAt:    v.PaidAt,
	})
	if err != nil {
		metrics.PaymentVerified("error")
		Fail(c, err)
		return
	}

	metrics.PaymentVerified("success")
	if created {
		metrics.SubscriptionActivated(sub.Plan, sub.Type)
		logger.Info("subscription activated",
			slog.Uint64("subscription_id", uint64(sub.ID)),
			slog.String("plan", sub.Plan),
			slog.String("type", sub.Type),
		)
	}
	c.JSON(http.StatusOK, gin.H{
		"success":      true,
		"created":      created,
		"subscription": newSubscriptionView(sub),
	})
}

func (h *PaymentHandler) loadUser(ctx context.Context, userID uint) (database.User, error) {
	var user database.User
	if err := h.db.WithContext(ctx).First(&user, userID).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return user, errcode.New(errcode.Unauthenticated, "unauthorized")
		}
		return user, err
	}
	return user, nil
}

func paymentLogger(c *gin.Context, reference string) *slog.Logger {
	return middleware.LoggerFromContext(c).With(slog.String("reference", reference))
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if v = strings.TrimSpace(v); v != "" {
			return v
		}
	}
	return ""
}
