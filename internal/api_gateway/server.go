package api_gateway

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/bytebank-ledger/internal/api_gateway/handler"
	"github.com/bytebank-ledger/internal/api_gateway/service"
	"github.com/bytebank-ledger/internal/config"
)

// Services are the ledger operations and auth components the gateway exposes
type Services struct {
	Transactions service.TransactionService
	Accounts     service.AccountService
	Reports      service.ReportService
	Activity     service.ActivityService
	Sessions     service.SessionStore
	Verifier     service.TokenVerifier
}

// Server handles HTTP requests and manages the application's lifecycle
type Server struct {
	logger     *slog.Logger // For structured logging
	httpServer *http.Server // Underlying HTTP server
	httpRouter *gin.Engine  // Gin router instance
}

// NewServer creates and configures a new HTTP server with the given services
func NewServer(log *slog.Logger, cfg *config.Config, svc Services) *Server {
	if cfg.Application.Env == "production" {
		gin.SetMode(gin.ReleaseMode)
	}

	httpRouter := gin.New()
	// Receipts are read into memory; bound the multipart buffer by the receipt limit
	httpRouter.MaxMultipartMemory = cfg.Receipts.MaxSizeBytes + 1<<20

	h := handlers{
		auth:         handler.NewAuthHandler(log, svc.Sessions),
		transactions: handler.NewTransactionHandler(log, svc.Transactions, cfg.Receipts.MaxSizeBytes),
		accounts:     handler.NewAccountHandler(log, svc.Accounts),
		reports:      handler.NewReportHandler(log, svc.Reports, svc.Activity),
	}

	setupRouter(log, httpRouter, h, svc.Sessions, svc.Verifier)

	httpServer := &http.Server{
		Addr:         fmt.Sprintf(":%d", cfg.Server.Port),
		Handler:      httpRouter,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
		IdleTimeout:  cfg.Server.IdleTimeout,
	}

	return &Server{
		logger:     log,
		httpServer: httpServer,
		httpRouter: httpRouter,
	}
}

// Handler exposes the router, mainly for tests
func (s *Server) Handler() http.Handler {
	return s.httpRouter
}

// Start begins listening for HTTP requests
func (s *Server) Start() error {
	if err := s.httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return fmt.Errorf("failed to start HTTP server: %w", err)
	}
	return nil
}

// Stop gracefully shuts down the HTTP server, waiting at most the server's
// write timeout for in-flight requests
func (s *Server) Stop(ctx context.Context) error {
	s.logger.Info("stopping HTTP server")

	shutdownCtx, cancel := context.WithTimeout(ctx, s.httpServer.WriteTimeout)
	defer cancel()

	if err := s.httpServer.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("failed to stop HTTP server: %w", err)
	}
	return nil
}
