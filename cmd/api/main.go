package main

import (
	"context"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/getsentry/sentry-go"
	sentrygin "github.com/getsentry/sentry-go/gin"
	"github.com/gin-contrib/gzip"
	_ "github.com/joho/godotenv/autoload"

	"github.com/sjperalta/lendcore-api/internal/config"
	"github.com/sjperalta/lendcore-api/internal/database"
	"github.com/sjperalta/lendcore-api/internal/handlers"
	"github.com/sjperalta/lendcore-api/internal/jobs"
	"github.com/sjperalta/lendcore-api/internal/middleware"
	"github.com/sjperalta/lendcore-api/internal/models"
	"github.com/sjperalta/lendcore-api/internal/repository"
	"github.com/sjperalta/lendcore-api/internal/services"
	"github.com/sjperalta/lendcore-api/internal/statemachine"
	"github.com/sjperalta/lendcore-api/pkg/logger"

	"github.com/gin-gonic/gin"
)

// @title LendCore API
// @version 1.0
// @description REST API for branch-based microfinance lending
// @BasePath /api/v1
// @securityDefinitions.apikey BearerAuth
// @in header
// @name Authorization
func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("Failed to load configuration: %v", err)
	}

	logger.Setup(cfg.Environment, cfg.LogLevel)

	// Initialize Sentry when DSN is configured
	if cfg.SentryDSN != "" {
		if err := sentry.Init(sentry.ClientOptions{
			Dsn:              cfg.SentryDSN,
			TracesSampleRate: 0.2,
			Environment:      cfg.Environment,
		}); err != nil {
			logger.Error("Sentry initialization failed", "error", err)
		} else {
			logger.Info("Sentry initialized")
		}
	}

	if cfg.IsProduction() {
		gin.SetMode(gin.ReleaseMode)
	}

	db, err := database.Connect(cfg.DatabaseURL, cfg.IsProduction())
	if err != nil {
		logger.Error("Failed to connect to database", "error", err)
		os.Exit(1)
	}
	logger.Info("Connected to database")

	if cfg.AutoMigrate {
		if err := database.Migrate(db); err != nil {
			logger.Error("Failed to migrate database", "error", err)
			os.Exit(1)
		}
		logger.Info("Database schema up to date")
	}

	repos := repository.NewRepositories(db, cfg.TxMaxRetries)

	worker := jobs.NewWorker(cfg.WorkerCount)
	logger.Info("Started background worker", "goroutines", cfg.WorkerCount)

	svcs := services.NewServices(repos, worker, cfg, db)

	scheduleJobs(worker, svcs, cfg)

	h := handlers.NewHandlers(svcs, func(ctx context.Context) error {
		return database.Ping(ctx, db)
	})
	router := setupRouter(h, cfg)

	server := &http.Server{
		Addr:         ":" + cfg.Port,
		Handler:      router,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	go func() {
		logger.Info("Server starting", "port", cfg.Port)
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Error("Failed to start server", "error", err)
			os.Exit(1)
		}
	}()

	// Wait for interrupt signal for graceful shutdown
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit
	logger.Info("Shutting down server...")

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := server.Shutdown(ctx); err != nil {
		logger.Error("Server forced to shutdown", "error", err)
	}

	// Drains queued audit writes before the pool closes
	worker.Shutdown()
	logger.Info("Background worker stopped")

	if err := database.Close(db); err != nil {
		logger.Error("Failed to close database", "error", err)
	}

	if cfg.SentryDSN != "" {
		sentry.Flush(5 * time.Second)
	}

	logger.Info("Server exited gracefully")
}

func setupRouter(h *handlers.Handlers, cfg *config.Config) *gin.Engine {
	router := gin.New()

	if cfg.SentryDSN != "" {
		router.Use(sentrygin.New(sentrygin.Options{Repanic: true}))
	}
	router.Use(gin.Recovery())
	router.Use(middleware.RequestLogger())
	router.Use(middleware.CORS(cfg.AllowedOrigins))
	router.Use(gzip.Gzip(gzip.DefaultCompression))

	v1 := router.Group("/api/v1")
	{
		v1.GET("/health", h.Health.Index)

		auth := v1.Group("/auth")
		{
			auth.POST("/login", h.Auth.Login)
			auth.POST("/refresh", h.Auth.Refresh)
			auth.POST("/logout", h.Auth.Logout)
		}

		protected := v1.Group("")
		protected.Use(middleware.Auth(cfg.JWTSecret))
		{
			protected.GET("/me", h.User.Me)

			// Loans
			protected.GET("/loans", h.Loan.Index)
			protected.POST("/loans", h.Loan.Create)
			protected.GET("/loans/:loan_id", h.Loan.Show)
			protected.POST("/loans/:loan_id/submit", h.Loan.Transition(statemachine.EventSubmit))
			protected.POST("/loans/:loan_id/cancel", h.Loan.Transition(statemachine.EventCancel))
			protected.POST("/loans/:loan_id/approve", h.Loan.Transition(statemachine.EventApprove))
			protected.POST("/loans/:loan_id/activate", h.Loan.Activate)
			protected.POST("/loans/:loan_id/default", h.Loan.Transition(statemachine.EventDefault))
			protected.POST("/loans/:loan_id/write_off", h.Loan.Transition(statemachine.EventWriteOff))

			// Repayments
			protected.GET("/loans/:loan_id/repayments", h.Repayment.IndexByLoan)
			protected.POST("/loans/:loan_id/repayments", h.Repayment.Create)
			protected.GET("/repayments/:repayment_id", h.Repayment.Show)
			protected.PATCH("/repayments/:repayment_id", h.Repayment.Update)
			protected.DELETE("/repayments/:repayment_id", h.Repayment.Delete)

			// Branch staff and reporting (managers and admins)
			managers := protected.Group("")
			managers.Use(middleware.RequireRole(models.RoleManager, models.RoleAdmin))
			{
				managers.GET("/users", h.User.Index)
				managers.GET("/branches", h.Branch.Index)
				managers.GET("/audits", h.Audit.Index)
				managers.GET("/analytics/portfolio", h.Analytics.Portfolio)
				managers.GET("/analytics/portfolio/export", h.Analytics.ExportPortfolio)
			}

			// Admin-only routes
			admin := protected.Group("")
			admin.Use(middleware.RequireAdmin())
			{
				admin.POST("/users", h.User.Create)
				admin.POST("/branches", h.Branch.Create)
				admin.DELETE("/loans/:loan_id", h.Loan.Delete)
				admin.GET("/analytics/collections", h.Analytics.Collections)
				admin.GET("/analytics/collections/export", h.Analytics.ExportCollections)
				admin.GET("/jobs/status", h.Job.Status)
				admin.POST("/jobs/overdue/run", h.Job.RunOverdue)
			}
		}
	}

	return router
}

func scheduleJobs(worker *jobs.Worker, svcs *services.Services, cfg *config.Config) {
	// Flag installments that fell due; runs once at startup too
	worker.ScheduleEveryImmediate("mark_overdue", cfg.OverdueCheckInterval, func(ctx context.Context) error {
		_, err := svcs.Loan.MarkOverdueItems(ctx)
		return err
	})

	worker.ScheduleEvery("clean_analytics_cache", 15*time.Minute, func(ctx context.Context) error {
		return svcs.Analytics.CleanExpiredCache(ctx)
	})

	worker.ScheduleEvery("purge_refresh_tokens", 24*time.Hour, func(ctx context.Context) error {
		removed, err := svcs.Auth.PurgeExpiredTokens(ctx)
		if err != nil {
			return err
		}
		if removed > 0 {
			logger.Info("[Job] Expired refresh tokens removed", "count", removed)
		}
		return nil
	})

	logger.Info("Scheduled recurring jobs", "overdue_interval", cfg.OverdueCheckInterval.String())
}
