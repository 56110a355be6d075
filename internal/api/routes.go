package api

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/markxplorer969/hyuuxapi-sub001/internal/core"
	"github.com/markxplorer969/hyuuxapi-sub001/internal/metrics"
	"github.com/markxplorer969/hyuuxapi-sub001/internal/middleware"
)

// Dependencies carries everything SetupRoutes wires into handlers.
type Dependencies struct {
	Logger    *zap.Logger
	Metrics   *metrics.Metrics
	Verifier  middleware.TokenVerifier
	Ledger    core.LedgerService
	Accounts  core.AccountService
	Billing   core.BillingService
	Migration core.MigrationService
	Stats     core.StatsService
	Images    core.ImageService
}

// SetupRoutes configures all the application routes with their handlers and middleware.
// Global middleware (logging, recovery, CORS) is expected to be applied by the caller.
func SetupRoutes(router *gin.Engine, deps Dependencies) {
	logger := deps.Logger
	authMW := middleware.NewAuthMiddleware(deps.Verifier, logger.Named("auth"))
	consumeKey := middleware.RequireAPIKey(deps.Ledger, true, logger)
	resolveKey := middleware.RequireAPIKey(deps.Ledger, false, logger)

	publicHandler := NewPublicHandler(deps.Billing, deps.Images, logger)
	userHandler := NewUserHandler(deps.Accounts, logger)
	keyHandler := NewKeyHandler(deps.Ledger, deps.Accounts, logger)
	billingHandler := NewBillingHandler(deps.Billing, deps.Accounts, logger.Named("billing"))
	adminHandler := NewAdminHandler(deps.Accounts, deps.Ledger, deps.Billing, deps.Migration, deps.Stats, logger.Named("admin"))

	apiGroup := router.Group("/api")
	{
		apiGroup.GET("/plans", publicHandler.ListPlans)
		apiGroup.GET("/key/info", resolveKey, publicHandler.KeyInfo)
		apiGroup.GET("/random", publicHandler.ListCategories)
		apiGroup.GET("/random/:category", publicHandler.RequireCategory, consumeKey, publicHandler.RandomImage)

		userGroup := apiGroup.Group("/users", authMW.VerifyToken())
		{
			userGroup.POST("/initialize", userHandler.InitializeUserProfile)
			userGroup.GET("/me", userHandler.GetCurrentUserProfile)
		}

		keyGroup := apiGroup.Group("/keys", authMW.VerifyToken())
		{
			keyGroup.GET("", keyHandler.ListKeys)
			keyGroup.POST("", keyHandler.IssueKey)
			keyGroup.POST("/regenerate", keyHandler.RegenerateKey)
			keyGroup.PUT("/custom", keyHandler.SetCustomKey)
		}

		billingGroup := apiGroup.Group("/billing")
		{
			billingGroup.POST("/checkout", authMW.VerifyToken(), billingHandler.CreateCheckout)
			billingGroup.GET("/transactions", authMW.VerifyToken(), billingHandler.ListTransactions)
			billingGroup.POST("/transactions/:merchantRef/cancel", authMW.VerifyToken(), billingHandler.CancelTransaction)
			// Authenticated by signature, not by token.
			billingGroup.POST("/callback", billingHandler.HandleCallback)
		}

		adminGroup := apiGroup.Group("/admin", authMW.VerifyToken(), authMW.RequireAdmin(deps.Accounts))
		{
			adminGroup.GET("/stats", adminHandler.Stats)
			adminGroup.GET("/users", adminHandler.ListUsers)
			adminGroup.PUT("/users/:id/plan", adminHandler.SetPlan)
			adminGroup.PUT("/users/:id/role", adminHandler.SetRole)
			adminGroup.DELETE("/users/:id", adminHandler.DeleteUser)
			adminGroup.POST("/users/:id/keys", adminHandler.IssueKey)
			adminGroup.POST("/keys/:id/deactivate", adminHandler.DeactivateKey)
			adminGroup.POST("/keys/:id/activate", adminHandler.ActivateKey)
			adminGroup.POST("/migrate-plans", adminHandler.MigratePlans)
			adminGroup.POST("/usage/reset", adminHandler.ResetUsage)
			adminGroup.GET("/transactions", adminHandler.ListTransactions)
		}
	}

	health := func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "UP", "message": "Slowly API is healthy."})
	}
	router.GET("/health", health)
	router.GET("/ping", health)
	if deps.Metrics != nil {
		router.GET("/metrics", gin.WrapH(deps.Metrics.Handler()))
	}

	logger.Info("API routes configured successfully under /api, /health and /metrics.")
}
