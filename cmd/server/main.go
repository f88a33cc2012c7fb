package main

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/invoo/backend/internal/application/invoicing"
	"github.com/invoo/backend/internal/domain/chain"
	"github.com/invoo/backend/internal/domain/invoice"
	"github.com/invoo/backend/internal/infrastructure/cache"
	"github.com/invoo/backend/internal/infrastructure/config"
	"github.com/invoo/backend/internal/infrastructure/logger"
	"github.com/invoo/backend/internal/infrastructure/persistence"
	"github.com/invoo/backend/internal/infrastructure/safeguards"
	"github.com/invoo/backend/internal/infrastructure/verifactu"
	"github.com/invoo/backend/internal/interfaces/http/handler"
	"github.com/invoo/backend/internal/interfaces/http/router"
)

func main() {
	// Load configuration
	cfg, err := config.Load()
	if err != nil {
		panic("Failed to load configuration: " + err.Error())
	}

	// Initialize logger
	log, err := logger.New(&logger.Config{
		Level:      cfg.Log.Level,
		Format:     cfg.Log.Format,
		Output:     cfg.Log.Output,
		TimeFormat: "2006-01-02T15:04:05.000Z07:00",
	})
	if err != nil {
		panic("Failed to initialize logger: " + err.Error())
	}
	defer func() {
		_ = logger.Sync(log)
	}()

	log.Info("Starting Invoo Backend",
		zap.String("app", cfg.App.Name),
		zap.String("env", cfg.App.Env),
		zap.String("port", cfg.App.Port),
	)

	// Create GORM logger backed by zap
	gormLogLevel := logger.MapGormLogLevel(cfg.Log.Level)
	gormLog := logger.NewGormLogger(log, gormLogLevel)

	// Initialize database connection with custom logger
	db, err := persistence.NewDatabaseWithCustomLogger(&cfg.Database, gormLog)
	if err != nil {
		log.Fatal("Failed to connect to database", zap.Error(err))
	}
	defer func() {
		if err := db.Close(); err != nil {
			log.Error("Error closing database", zap.Error(err))
		}
	}()
	log.Info("Database connected successfully")

	if err := db.Migrate(); err != nil {
		log.Fatal("Failed to run migrations", zap.Error(err))
	}

	// Initialize repositories
	recordRepo := persistence.NewGormInvoiceRecordRepository(db.DB)
	credentialRepo := persistence.NewGormCredentialRepository(db.DB)

	// Stored credentials take precedence over the config file, so key
	// rotation does not require a redeploy
	apiKey := cfg.VeriFactu.APIKey
	isProduction := cfg.VeriFactu.IsProduction
	webhookSecret := cfg.Webhook.Secret
	if cfg.VeriFactu.CompanyTaxID != "" {
		if cred, err := credentialRepo.FindByTaxID(context.Background(), cfg.VeriFactu.CompanyTaxID); err == nil {
			apiKey = cred.APIKey
			isProduction = cred.IsProduction
			if cred.WebhookSecret != "" {
				webhookSecret = cred.WebhookSecret
			}
			log.Info("Using stored API credentials", zap.String("company_tax_id", cfg.VeriFactu.CompanyTaxID))
		}
	}

	// Webhook dedup store (Redis when enabled, in-memory otherwise)
	dedupStore, err := cache.NewIdempotencyStore(cfg.Redis, log)
	if err != nil {
		log.Fatal("Failed to initialize idempotency store", zap.Error(err))
	}
	defer func() {
		if err := dedupStore.Close(); err != nil {
			log.Error("Error closing idempotency store", zap.Error(err))
		}
	}()

	// Remote tax-authority API client
	client, err := verifactu.NewClient(&verifactu.Config{
		APIKey:       apiKey,
		CompanyTaxID: cfg.VeriFactu.CompanyTaxID,
		IsProduction: isProduction,
		BaseURL:      cfg.VeriFactu.BaseURL,
		MaxRetries:   cfg.VeriFactu.MaxRetries,
		RetryDelay:   cfg.VeriFactu.RetryDelay,
		Timeout:      cfg.VeriFactu.Timeout,
	}, log)
	if err != nil {
		log.Fatal("Failed to initialize VeriFactu client", zap.Error(err))
	}

	// Protection layer in front of every remote call
	coordinator := safeguards.NewCoordinator(safeguards.Config{
		MaxDailyInvoices:   cfg.Safeguards.MaxDailyInvoices,
		MaxHourlyInvoices:  cfg.Safeguards.MaxHourlyInvoices,
		RateLimitPerSecond: cfg.Safeguards.RateLimitPerSecond,
		FailureThreshold:   cfg.Safeguards.FailureThreshold,
		RecoveryTimeout:    cfg.Safeguards.RecoveryTimeout,
		CanaryPercentage:   cfg.Safeguards.CanaryPercentage,
		SampleCapacity:     cfg.Safeguards.SampleCapacity,
	}, log)

	// Invoice chain audit trail
	chainManager := chain.NewManager()

	// Document validator
	tolerance, err := decimal.NewFromString(cfg.Validation.TotalTolerance)
	if err != nil {
		log.Fatal("Invalid validation.total_tolerance", zap.Error(err))
	}
	docValidator := invoice.NewValidator(tolerance)

	// Application services
	invoicingService := invoicing.NewService(invoicing.ServiceConfig{
		Validator:  docValidator,
		Chain:      chainManager,
		Safeguards: coordinator,
		Client:     client,
		Records:    recordRepo,
		Logger:     log,
	})
	webhookService := invoicing.NewWebhookService(invoicing.WebhookServiceConfig{
		Secret:  webhookSecret,
		Chain:   chainManager,
		Records: recordRepo,
		Dedup:   dedupStore,
		Logger:  log,
	})

	// HTTP surface
	engine := router.New(cfg, log).
		Register(handler.NewInvoiceHandler(invoicingService)).
		Register(handler.NewSystemHandler(coordinator, chainManager)).
		RegisterWebhook(handler.NewWebhookHandler(webhookService)).
		Setup(handler.NewHealthHandler(db.Ping))

	srv := &http.Server{
		Addr:           ":" + cfg.App.Port,
		Handler:        engine,
		ReadTimeout:    cfg.HTTP.ReadTimeout,
		WriteTimeout:   cfg.HTTP.WriteTimeout,
		IdleTimeout:    cfg.HTTP.IdleTimeout,
		MaxHeaderBytes: cfg.HTTP.MaxHeaderBytes,
	}

	// Start server in goroutine
	go func() {
		log.Info("Server starting", zap.String("addr", srv.Addr))
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatal("Failed to start server", zap.Error(err))
		}
	}()

	// Graceful shutdown
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit
	log.Info("Shutting down server...")

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := srv.Shutdown(ctx); err != nil {
		log.Fatal("Server forced to shutdown", zap.Error(err))
	}

	log.Info("Server exited gracefully")
}
