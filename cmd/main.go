package main

import (
	"context"
	"fmt"
	"log"
	"os"
	"strconv"
	"time"

	echojwt "github.com/labstack/echo-jwt/v4"
	"github.com/labstack/echo/v4"
	echoMiddleware "github.com/labstack/echo/v4/middleware"
	"github.com/labstack/gommon/random"
	"github.com/redis/go-redis/v9"
	echoSwagger "github.com/swaggo/echo-swagger"

	"pulsepay/internal/caching"
	"pulsepay/internal/config"
	"pulsepay/internal/handlers"
	"pulsepay/internal/jobs/background"
	"pulsepay/internal/middleware"
	"pulsepay/internal/repositories"
	"pulsepay/internal/services"
	"pulsepay/pkg/database"
)

const version = "1.0.0"

func main() {
	databaseURL := os.Getenv("DATABASE_URL")
	if databaseURL == "" {
		log.Fatal("DATABASE_URL environment variable is required")
	}

	pool, err := database.NewPool(databaseURL)
	if err != nil {
		log.Fatalf("Failed to connect to database: %v", err)
	}
	defer pool.Close()

	// Engine tunables from TOML; wiring secrets stay in the environment.
	cfg := config.Defaults()
	if configPath := os.Getenv("CONFIG_PATH"); configPath != "" {
		cfg, err = config.Load(configPath)
		if err != nil {
			log.Fatalf("Failed to load config: %v", err)
		}
	}
	if apiKey := os.Getenv("GATEWAY_API_KEY"); apiKey != "" {
		cfg.Gateway.APIKey = apiKey
	}

	jwtSecret := os.Getenv("JWT_SECRET")
	if jwtSecret == "" {
		jwtSecret = random.String(32) // Generate random secret for development
		log.Printf("WARNING: Using generated JWT secret")
	}

	redisAddr := os.Getenv("REDIS_ADDR")
	if redisAddr == "" {
		redisAddr = "localhost:6379"
	}
	redisPassword := os.Getenv("REDIS_PASSWORD")
	redisDB := 0
	if redisDBStr := os.Getenv("REDIS_DB"); redisDBStr != "" {
		if db, err := strconv.Atoi(redisDBStr); err == nil {
			redisDB = db
		}
	}

	// Repositories
	planRepo := repositories.NewPlanRepo(pool)
	subscriptionRepo := repositories.NewSubscriptionRepo(pool)
	escrowRepo := repositories.NewEscrowRepo(pool)
	escrowSubRepo := repositories.NewEscrowSubscriptionRepo(pool)
	limitRepo := repositories.NewSpendingLimitRepo(pool)
	treasuryRepo := repositories.NewTreasuryRepo(pool)
	eventRepo := repositories.NewPaymentEventRepo(pool)
	sweepRepo := repositories.NewSweepStateRepo(pool)
	accountRepo := repositories.NewAccountRepo(pool)

	// Cache
	cacheSvc := caching.NewRedisCacheService(redisAddr, redisPassword, redisDB)
	redisClient := redis.NewClient(&redis.Options{
		Addr:     redisAddr,
		Password: redisPassword,
		DB:       redisDB,
	})

	// Receipt archive is optional; without MinIO configured, charges still
	// work and only the archive copies are skipped.
	var receiptSvc services.ReceiptService
	if minioEndpoint := os.Getenv("MINIO_ENDPOINT"); minioEndpoint != "" {
		minioAccessKey := os.Getenv("MINIO_ACCESS_KEY")
		minioSecretKey := os.Getenv("MINIO_SECRET_KEY")
		useSSL := os.Getenv("MINIO_USE_SSL") == "true"
		receiptSvc, err = services.NewMinioReceiptService(minioEndpoint, minioAccessKey, minioSecretKey, useSSL, cfg.Billing.ReceiptBucket)
		if err != nil {
			log.Fatalf("Failed to initialize receipt archive: %v", err)
		}
	} else {
		log.Printf("WARNING: MINIO_ENDPOINT not set, receipt archiving disabled")
	}

	// Services
	gateway := services.NewWalletGateway(cfg.Gateway)
	oracle := services.NewCachedRateOracle(
		services.NewRateOracle(cfg.Oracle),
		cacheSvc,
		time.Duration(cfg.Oracle.CacheTTLSeconds)*time.Second,
	)
	limitSvc := services.NewSpendingLimitService(limitRepo)
	planSvc := services.NewPlanService(planRepo, cacheSvc)
	subscriptionSvc := services.NewSubscriptionService(
		planRepo, subscriptionRepo, eventRepo, treasuryRepo, sweepRepo,
		limitSvc, gateway, oracle, receiptSvc,
		cfg.Billing.Asset, cfg.Oracle.Pair,
	)
	escrowSvc := services.NewEscrowService(
		escrowRepo, escrowSubRepo, eventRepo, treasuryRepo,
		limitSvc, gateway, cfg.Escrow, cfg.Billing.Asset,
	)

	if err := subscriptionSvc.LoadIndex(context.Background()); err != nil {
		log.Fatalf("Failed to load subscriber index: %v", err)
	}

	// Handlers
	planHandlers := handlers.NewPlanHandlers(planSvc)
	subscriptionHandlers := handlers.NewSubscriptionHandlers(subscriptionSvc)
	escrowHandlers := handlers.NewEscrowHandlers(escrowSvc)
	limitHandlers := handlers.NewLimitHandlers(limitSvc)
	accountHandlers := handlers.NewAccountHandlers(accountRepo)
	eventHandlers := handlers.NewEventHandlers(eventRepo)
	healthHandlers := handlers.NewHealthHandlers(pool, redisClient)

	// Auth middleware
	jwtConfig, err := middleware.JWTConfig(jwtSecret, cfg.Gateway.JWKSURL)
	if err != nil {
		log.Fatalf("Failed to configure JWT validation: %v", err)
	}

	e := echo.New()

	e.Use(echoMiddleware.Logger())
	e.Use(echoMiddleware.Recover())
	e.Use(echoMiddleware.CORS())
	e.Pre(echoMiddleware.RemoveTrailingSlash())

	// Health endpoints (no auth required)
	e.GET("/health", healthHandlers.HealthCheck)
	e.GET("/health/live", healthHandlers.LivenessCheck)
	e.GET("/health/ready", healthHandlers.ReadinessCheck)
	e.GET("/swagger/*", echoSwagger.WrapHandler)

	v1 := e.Group("/v1")

	// Registration and the live catalog are public.
	v1.POST("/accounts", accountHandlers.CreateAccount)
	v1.GET("/plans/live", planHandlers.ListLivePlans)

	protected := v1.Group("")
	protected.Use(echojwt.WithConfig(jwtConfig))
	protected.Use(middleware.AccountContext(accountRepo))

	protected.GET("/accounts/me", accountHandlers.GetMyAccount)

	// Plan registry (owner only)
	protected.POST("/plans", planHandlers.CreatePlan)
	protected.GET("/plans", planHandlers.ListPlans)
	protected.PUT("/plans/:id", planHandlers.UpdatePlan)
	protected.DELETE("/plans/:id", planHandlers.DeletePlan)
	protected.POST("/plans/:id/live", planHandlers.MakePlanLive)
	protected.GET("/plans/:id/subscribers/count", subscriptionHandlers.GetPlanSubscriberCount)

	// Subscription ledger
	protected.POST("/subscriptions", subscriptionHandlers.Subscribe)
	protected.DELETE("/subscriptions", subscriptionHandlers.Unsubscribe)
	protected.GET("/subscriptions/me", subscriptionHandlers.GetMySubscription)
	protected.POST("/subscriptions/sweep", subscriptionHandlers.RunSweep)
	protected.GET("/subscriptions/stats", subscriptionHandlers.GetStats)
	protected.POST("/refunds", subscriptionHandlers.Refund)
	protected.POST("/withdrawals", subscriptionHandlers.Withdraw)
	protected.PUT("/paymaster", subscriptionHandlers.UpdatePaymaster)

	// Spending limits
	protected.PUT("/limits", limitHandlers.SetLimit)
	protected.GET("/limits/:asset", limitHandlers.GetLimit)
	protected.DELETE("/limits/:asset", limitHandlers.ClearLimit)

	// Escrow ledger
	protected.POST("/escrows", escrowHandlers.CreateEscrow)
	protected.GET("/escrows", escrowHandlers.ListMyEscrows)
	protected.GET("/escrows/:id", escrowHandlers.GetEscrow)
	protected.POST("/escrows/:id/release", escrowHandlers.ReleaseEscrow)
	protected.POST("/escrows/:id/dispute", escrowHandlers.DisputeEscrow)
	protected.POST("/escrows/:id/resolve", escrowHandlers.ResolveEscrowDispute)

	// Escrow-funded subscriptions
	protected.POST("/escrow-subscriptions", escrowHandlers.CreateEscrowSubscription)
	protected.GET("/escrow-subscriptions/:id", escrowHandlers.GetEscrowSubscription)
	protected.POST("/escrow-subscriptions/:id/renew", escrowHandlers.RenewEscrowSubscription)
	protected.POST("/escrow-subscriptions/:id/cancel", escrowHandlers.CancelEscrowSubscription)
	protected.POST("/escrow-subscriptions/:id/payments", escrowHandlers.PayEscrowSubscription)

	// Event log
	protected.GET("/events", eventHandlers.ListEvents)

	// Background maintenance
	scheduler := background.NewJobScheduler(subscriptionSvc, planSvc, limitRepo, cacheSvc)
	if err := scheduler.Start(); err != nil {
		log.Fatalf("Failed to start scheduler: %v", err)
	}
	defer scheduler.Stop()

	portStr := os.Getenv("PORT")
	if portStr == "" {
		portStr = "8080"
	}
	port, err := strconv.Atoi(portStr)
	if err != nil {
		log.Fatalf("Invalid port %s: %v", portStr, err)
	}

	log.Printf("PulsePay billing engine v%s starting on port %d", version, port)
	e.Logger.Fatal(e.Start(fmt.Sprintf(":%d", port)))
}
