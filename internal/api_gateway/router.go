package api_gateway

import (
	"log/slog"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/bytebank-ledger/internal/api_gateway/handler"
	"github.com/bytebank-ledger/internal/api_gateway/middleware"
	"github.com/bytebank-ledger/internal/api_gateway/service"
)

type handlers struct {
	auth         *handler.AuthHandler
	transactions *handler.TransactionHandler
	accounts     *handler.AccountHandler
	reports      *handler.ReportHandler
}

// setupRouter configures API routes and middleware for the application
func setupRouter(
	logger *slog.Logger,
	r *gin.Engine,
	h handlers,
	sessions service.SessionStore,
	verifier service.TokenVerifier,
) {
	r.Use(middleware.Recovery(logger))
	r.Use(middleware.CorrelationID())
	r.Use(middleware.Logger(logger))

	v1 := r.Group("/api/v1")
	{
		v1.POST("/sessions", h.auth.CreateSession)

		// Device session lifecycle; requires X-Session-ID
		auth := v1.Group("/auth", middleware.Session(sessions))
		{
			auth.GET("/state", h.auth.State)
			auth.POST("/sign-in", h.auth.SignIn)
			auth.POST("/sign-up", h.auth.SignUp)
			auth.POST("/sign-out", h.auth.SignOut)
			auth.POST("/restore", h.auth.Restore)
			auth.DELETE("/session", h.auth.EndSession)
		}

		protected := v1.Group("", middleware.Authenticate(logger, sessions, verifier))

		transactions := protected.Group("/transactions")
		{
			transactions.GET("", h.transactions.List)
			transactions.GET("/recent", h.transactions.ListRecent)
			transactions.POST("", h.transactions.Create)
			transactions.GET("/:id", h.transactions.GetByID)
			transactions.PATCH("/:id", h.transactions.Update)
			transactions.DELETE("/:id", h.transactions.Delete)
		}

		accounts := protected.Group("/accounts")
		{
			accounts.GET("", h.accounts.List)
			accounts.POST("", h.accounts.ProvisionManually)
			accounts.POST("/ensure", h.accounts.Ensure)
			accounts.GET("/status", h.accounts.Status)
		}

		reports := protected.Group("/reports")
		{
			reports.GET("/expenses-by-category", h.reports.ExpensesByCategory)
			reports.GET("/monthly", h.reports.MonthlySummary)
		}

		protected.GET("/activity", h.reports.Activity)
	}

	// Health check endpoint for monitoring
	r.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok", "timestamp": time.Now().UTC()})
	})
}
