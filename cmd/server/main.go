package main

import (
	"context"
	"errors"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/joho/godotenv"
	"go.uber.org/zap"

	"github.com/markxplorer969/hyuuxapi-sub001/internal/api"
	"github.com/markxplorer969/hyuuxapi-sub001/internal/cache"
	"github.com/markxplorer969/hyuuxapi-sub001/internal/config"
	"github.com/markxplorer969/hyuuxapi-sub001/internal/core"
	"github.com/markxplorer969/hyuuxapi-sub001/internal/db"
	"github.com/markxplorer969/hyuuxapi-sub001/internal/metrics"
	"github.com/markxplorer969/hyuuxapi-sub001/internal/middleware"
	"github.com/markxplorer969/hyuuxapi-sub001/internal/notify"
	"github.com/markxplorer969/hyuuxapi-sub001/internal/payment"
	"github.com/markxplorer969/hyuuxapi-sub001/internal/scheduler"
)

func main() {
	// .env is a development convenience; production sets the environment directly.
	if os.Getenv("GIN_MODE") != "release" {
		if err := godotenv.Load(); err != nil && !errors.Is(err, os.ErrNotExist) {
			log.Printf("Warning: error loading .env file: %v", err)
		}
	}

	// --- 1. Load Application Configuration ---
	appConfig, err := config.LoadConfig()
	if err != nil {
		log.Fatalf("CRITICAL_ERROR: Failed to load application configuration: %v", err)
	}

	// --- 2. Initialize Logger (Zap) ---
	var zapLogger *zap.Logger
	if appConfig.IsRelease() {
		zapLogger, err = zap.NewProduction()
	} else {
		zapLogger, err = zap.NewDevelopment()
	}
	if err != nil {
		log.Fatalf("CRITICAL_ERROR: Failed to initialize Zap logger: %v", err)
	}
	defer zapLogger.Sync()

	catalog, err := config.LoadCatalog(appConfig.CatalogFile)
	if err != nil {
		zapLogger.Fatal("CRITICAL_ERROR: Failed to load plan catalog", zap.Error(err))
	}
	zapLogger.Info("Application configuration loaded successfully.",
		zap.Int("plans", len(catalog.Plans)),
		zap.Strings("imageCategories", catalog.Categories()))

	// --- 3. Initialize Firebase Admin SDK ---
	initCtx, cancelInitCtx := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancelInitCtx()
	clients, err := db.InitFirebase(initCtx, appConfig, zapLogger)
	if err != nil {
		zapLogger.Fatal("CRITICAL_ERROR: Failed to initialize Firebase Admin SDK", zap.Error(err))
	}
	defer clients.Close()
	zapLogger.Info("Firebase Admin SDK (Firestore, Auth) initialized successfully.")

	// --- 4. Initialize Repositories ---
	accountRepo := db.NewFirestoreAccountRepository(clients.Firestore)
	apiKeyRepo := db.NewFirestoreAPIKeyRepository(clients.Firestore)
	transactionRepo := db.NewFirestoreTransactionRepository(clients.Firestore)
	paymentLogRepo := db.NewFirestorePaymentLogRepository(clients.Firestore)

	// --- 5. Optional integrations ---
	statsCache, closeCache := buildCache(initCtx, appConfig, zapLogger)
	defer closeCache()

	dispatcher, closeSinks := buildNotifier(appConfig, zapLogger)
	defer closeSinks()

	var gateway core.PaymentGateway
	if appConfig.PaymentEnabled() {
		gateway = payment.NewClient(payment.Config{
			BaseURL:      appConfig.PaymentBaseURL,
			APIKey:       appConfig.PaymentAPIKey,
			PrivateKey:   appConfig.PaymentPrivateKey,
			MerchantCode: appConfig.PaymentMerchantCode,
			ReturnURL:    appConfig.PaymentReturnURL,
			CallbackURL:  appConfig.PaymentCallbackURL,
			Timeout:      appConfig.HTTPClientTimeout,
		})
		zapLogger.Info("Payment gateway enabled", zap.String("baseURL", appConfig.PaymentBaseURL))
	} else {
		zapLogger.Warn("Payment gateway SKIPPED: PAYMENT_API_KEY, PAYMENT_PRIVATE_KEY or PAYMENT_MERCHANT_CODE is not configured.")
	}

	// --- 6. Initialize Services ---
	appMetrics := metrics.New()
	ledger := core.NewLedgerService(apiKeyRepo, accountRepo, appMetrics, zapLogger, core.WithLedgerNotifier(dispatcher))
	statsService := core.NewStatsService(accountRepo, apiKeyRepo, transactionRepo, statsCache, appConfig.CacheTTL, zapLogger)
	accountService := core.NewAccountService(accountRepo, apiKeyRepo, ledger, statsService, dispatcher, zapLogger)
	billingService := core.NewBillingService(core.BillingDeps{
		Catalog:      catalog,
		Gateway:      gateway,
		Accounts:     accountRepo,
		Transactions: transactionRepo,
		PaymentLogs:  paymentLogRepo,
		Notifier:     dispatcher,
		Metrics:      appMetrics,
		Expiry:       appConfig.PaymentExpiry,
	}, zapLogger)
	migrationService := core.NewMigrationService(accountRepo, dispatcher, zapLogger)
	imageService := core.NewImageService(catalog)
	zapLogger.Info("Core services initialized successfully.")

	usageScheduler := scheduler.NewScheduler(ledger, appConfig.UsageResetSchedule, zapLogger)
	if err := usageScheduler.Start(); err != nil {
		zapLogger.Fatal("CRITICAL_ERROR: Invalid USAGE_RESET_SCHEDULE", zap.String("schedule", appConfig.UsageResetSchedule), zap.Error(err))
	}

	// --- 7. Setup Gin HTTP Engine ---
	if appConfig.IsRelease() {
		gin.SetMode(gin.ReleaseMode)
	} else {
		gin.SetMode(gin.DebugMode)
	}
	router := gin.New()
	router.Use(middleware.RequestLogger(zapLogger, appMetrics))
	router.Use(middleware.RecoveryMiddleware(zapLogger))
	router.Use(middleware.CORSMiddleware(appConfig))
	if appConfig.ClientURL == "" {
		zapLogger.Warn("CLIENT_URL is not configured; CORS allows every origin without credentials.")
	}

	api.SetupRoutes(router, api.Dependencies{
		Logger:    zapLogger,
		Metrics:   appMetrics,
		Verifier:  clients.Auth,
		Ledger:    ledger,
		Accounts:  accountService,
		Billing:   billingService,
		Migration: migrationService,
		Stats:     statsService,
		Images:    imageService,
	})

	// --- 8. Configure and Start HTTP Server ---
	serverAddr := fmt.Sprintf(":%s", appConfig.Port)
	httpServer := &http.Server{
		Addr:              serverAddr,
		Handler:           router,
		ReadHeaderTimeout: 10 * time.Second,
	}

	zapLogger.Info("Starting HTTP server...", zap.String("address", serverAddr), zap.String("ginMode", gin.Mode()))
	go func() {
		if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			zapLogger.Fatal("Failed to start HTTP server", zap.Error(err))
		}
	}()

	// --- 9. Graceful Shutdown Handling ---
	quitChannel := make(chan os.Signal, 1)
	signal.Notify(quitChannel, syscall.SIGINT, syscall.SIGTERM)
	sig := <-quitChannel
	zapLogger.Info("Received shutdown signal", zap.String("signal", sig.String()))

	shutdownCtx, cancelShutdown := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancelShutdown()

	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		zapLogger.Error("Server forced to shutdown due to error during graceful shutdown", zap.Error(err))
	}
	usageScheduler.Stop(shutdownCtx)
	dispatcher.Wait()

	zapLogger.Info("Server exiting gracefully.")
}

// buildCache returns Redis when REDIS_ADDRESS is set and reachable, the in-process cache otherwise.
func buildCache(ctx context.Context, appConfig *config.Config, logger *zap.Logger) (cache.Cache, func()) {
	if appConfig.RedisAddress != "" {
		redisCache, err := cache.NewRedisCache(ctx, cache.RedisConfig{
			Address:  appConfig.RedisAddress,
			Password: appConfig.RedisPassword,
			DB:       appConfig.RedisDB,
			Prefix:   "slowly:",
		})
		if err == nil {
			logger.Info("Redis cache enabled", zap.String("address", appConfig.RedisAddress))
			return redisCache, func() {
				if err := redisCache.Close(); err != nil {
					logger.Warn("Failed to close Redis client", zap.Error(err))
				}
			}
		}
		logger.Warn("Redis unavailable, falling back to in-memory cache", zap.Error(err))
	}
	return cache.NewMemoryCache(appConfig.CacheTTL), func() {}
}

// buildNotifier wires the configured notification sinks. Missing settings skip the sink.
func buildNotifier(appConfig *config.Config, logger *zap.Logger) (*notify.Dispatcher, func()) {
	var (
		sinks   []notify.Sink
		closers []func() error
	)
	if appConfig.DiscordWebhookURL != "" {
		sinks = append(sinks, notify.NewDiscordSink(appConfig.DiscordWebhookURL, appConfig.HTTPClientTimeout))
	}
	if appConfig.RabbitMQURL != "" {
		amqpSink, err := notify.NewAMQPSink(appConfig.RabbitMQURL, appConfig.RabbitMQQueue)
		if err != nil {
			logger.Warn("RabbitMQ unavailable, events will not be published", zap.Error(err))
		} else {
			sinks = append(sinks, amqpSink)
			closers = append(closers, amqpSink.Close)
		}
	}
	if appConfig.SMTPHost != "" {
		sinks = append(sinks, notify.NewMailSink(notify.MailConfig{
			Host:   appConfig.SMTPHost,
			Port:   appConfig.SMTPPort,
			User:   appConfig.SMTPUser,
			Pass:   appConfig.SMTPPass,
			Sender: appConfig.SMTPSender,
		}))
	}

	dispatcher := notify.NewDispatcher(logger, appConfig.HTTPClientTimeout, sinks...)
	logger.Info("Notification sinks configured", zap.Strings("sinks", dispatcher.Sinks()))
	return dispatcher, func() {
		for _, closeFn := range closers {
			if err := closeFn(); err != nil {
				logger.Warn("Failed to close notification sink", zap.Error(err))
			}
		}
	}
}
