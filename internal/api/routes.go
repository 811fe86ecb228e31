package api

import (
	"log/slog"

	"github.com/gin-gonic/gin"
	"gorm.io/gorm"

	"cvbuilder/internal/analytics"
	"cvbuilder/internal/api/middleware"
	"cvbuilder/internal/auth"
	"cvbuilder/internal/config"
	"cvbuilder/internal/database"
	"cvbuilder/internal/document"
	"cvbuilder/internal/storage"
	"cvbuilder/internal/subscription"
)

// Dependencies 汇总路由所需的进程级资源，由 cmd/api 在启动时构建一次。
type Dependencies struct {
	Config        *config.Config
	DB            *gorm.DB
	Redis         authRedis
	Logger        *slog.Logger
	Tokens        *auth.TokenService
	CVs           *document.CVService
	CoverLetters  *document.CoverLetterService
	Subscriptions *subscription.Service
	Payments      PaymentGateway
	Events        *analytics.Store
	Storage       *storage.Client
}

// RegisterRoutes 注册 /v1 下的全部路由。
func RegisterRoutes(router *gin.Engine, deps Dependencies) {
	cfg := deps.Config
	authHandler := NewAuthHandler(deps.DB, deps.Tokens, deps.Redis, deps.Logger, cfg.Auth)
	cvHandler := NewCVHandler(deps.CVs)
	letterHandler := NewCoverLetterHandler(deps.CoverLetters)
	subscriptionHandler := NewSubscriptionHandler(deps.Subscriptions)
	paymentHandler := NewPaymentHandler(deps.DB, deps.Payments, deps.Subscriptions)
	analyticsHandler := NewAnalyticsHandler(deps.CVs, deps.CoverLetters)
	cronHandler := NewCronHandler(deps.Subscriptions)

	var cleaner assetCleaner
	if deps.Storage != nil {
		cleaner = deps.Storage
	}
	adminHandler := NewAdminHandler(deps.DB, deps.CVs, deps.CoverLetters, deps.Subscriptions, deps.Events, cleaner)

	authMiddleware := middleware.AuthMiddleware(deps.Tokens)
	adminOnly := middleware.RequireRole(database.RoleAdmin)

	v1 := router.Group("/v1")
	{
		authGroup := v1.Group("/auth")
		{
			authGroup.POST("/register", authHandler.Register)
			authGroup.POST("/login", authHandler.Login)
			authGroup.POST("/refresh", authHandler.Refresh)
			authGroup.POST("/logout", authHandler.Logout)
			authGroup.GET("/me", authMiddleware, authHandler.Me)
			authGroup.POST("/change-password", authMiddleware, authHandler.ChangePassword)
		}

		v1.GET("/templates", ListTemplates)

		cvGroup := v1.Group("/cvs", authMiddleware)
		{
			cvGroup.GET("", cvHandler.List)
			cvGroup.POST("", cvHandler.Save)
			cvGroup.GET("/:id", cvHandler.Get)
			cvGroup.PUT("/:id", cvHandler.Save)
			cvGroup.PATCH("/:id/title", cvHandler.Rename)
			cvGroup.POST("/:id/copy", cvHandler.Copy)
			cvGroup.DELETE("/:id", cvHandler.Delete)
			cvGroup.GET("/:id/download", cvHandler.Download)
		}

		letterGroup := v1.Group("/cover-letters", authMiddleware)
		{
			letterGroup.GET("", letterHandler.List)
			letterGroup.POST("", letterHandler.Save)
			letterGroup.GET("/:id", letterHandler.Get)
			letterGroup.PUT("/:id", letterHandler.Save)
			letterGroup.PATCH("/:id/title", letterHandler.Rename)
			letterGroup.POST("/:id/copy", letterHandler.Copy)
			letterGroup.DELETE("/:id", letterHandler.Delete)
			letterGroup.GET("/:id/download", letterHandler.Download)
		}

		subscriptionGroup := v1.Group("/subscriptions")
		{
			subscriptionGroup.GET("/plans", subscriptionHandler.Plans)
			subscriptionGroup.GET("/me", authMiddleware, subscriptionHandler.Me)
			subscriptionGroup.GET("/history", authMiddleware, subscriptionHandler.History)
			subscriptionGroup.POST("/:id/cancel", authMiddleware, subscriptionHandler.Cancel)
		}

		paymentGroup := v1.Group("/payments", authMiddleware)
		{
			paymentGroup.POST("/initialize", paymentHandler.Initialize)
			paymentGroup.GET("/verify", paymentHandler.Verify)
		}

		v1.POST("/analytics/events", authMiddleware, analyticsHandler.RecordEvent)

		if deps.Storage != nil {
			assetHandler := NewAssetHandler(deps.Storage, cfg.ClamAV.Addr)
			assetGroup := v1.Group("/assets", authMiddleware)
			{
				assetGroup.POST("/upload", assetHandler.UploadAsset)
				assetGroup.GET("/view", assetHandler.GetAssetURL)
			}
		}

		cronGroup := v1.Group("/cron", middleware.CronSecretMiddleware(cfg.API.CronSecret))
		{
			cronGroup.GET("/expire-subscriptions", cronHandler.ExpireSubscriptions)
			cronGroup.GET("/fix-subscription-durations", cronHandler.FixDurations)
		}

		adminGroup := v1.Group("/admin", authMiddleware, adminOnly)
		{
			adminGroup.GET("/users", adminHandler.ListUsers)
			adminGroup.PATCH("/users/:id/role", adminHandler.UpdateRole)
			adminGroup.PATCH("/users/:id/status", adminHandler.UpdateStatus)
			adminGroup.POST("/users/:id/reset-password", adminHandler.ResetPassword)
			adminGroup.DELETE("/users/:id", adminHandler.DeleteUser)
			adminGroup.GET("/cvs", cvHandler.AdminList)
			adminGroup.GET("/cover-letters", letterHandler.AdminList)
			adminGroup.GET("/stats", adminHandler.Stats)
			adminGroup.GET("/events", adminHandler.DocumentEvents)
		}
	}
}
