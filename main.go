package main

import (
	"context"
	"errors"
	"fmt"
	"log"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/ThreeDotsLabs/watermill/message"
	"github.com/gin-gonic/gin"
	"github.com/redis/go-redis/v9"

	"github.com/SAP-F-2025/vendor-assessment-service/internal/config"
	"github.com/SAP-F-2025/vendor-assessment-service/internal/events"
	"github.com/SAP-F-2025/vendor-assessment-service/internal/handlers"
	"github.com/SAP-F-2025/vendor-assessment-service/internal/repositories/casdoor"
	"github.com/SAP-F-2025/vendor-assessment-service/internal/repositories/postgres"
	"github.com/SAP-F-2025/vendor-assessment-service/internal/services"
	"github.com/SAP-F-2025/vendor-assessment-service/internal/utils"
	"github.com/SAP-F-2025/vendor-assessment-service/internal/validator"
	"github.com/SAP-F-2025/vendor-assessment-service/pkg"
)

func main() {
	// Load configuration
	cfg, err := config.LoadConfig()
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}

	// Initialize logger
	slogLogger := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{
		Level: cfg.LogLevel,
	}))
	logger := utils.NewSlogLogger(slogLogger)

	// Initialize databases
	db, err := pkg.InitDatabase(cfg)
	if err != nil {
		log.Fatalf("Failed to initialize database: %v", err)
	}
	if err := pkg.AutoMigrate(db); err != nil {
		log.Fatalf("Failed to migrate database: %v", err)
	}

	privilegedDB, err := pkg.InitPrivilegedDatabase(cfg)
	if err != nil {
		log.Fatalf("Failed to initialize privileged database: %v", err)
	}
	if privilegedDB == nil {
		logger.Warn("PRIVILEGED_DATABASE_URL not set, link fallback writes are disabled")
	}

	// Initialize Redis (if configured)
	var redisClient *redis.Client
	if cfg.RedisURL != "" {
		redisClient, err = pkg.NewRedisClient(cfg)
		if err != nil {
			logger.Warn("Failed to initialize Redis, continuing without cache", "error", err)
			redisClient = nil
		}
	}

	// Initialize repositories
	repoConfig := postgres.RepositoryConfig{
		DB:           db,
		PrivilegedDB: privilegedDB,
		RedisClient:  redisClient,
		CasdoorConfig: casdoor.CasdoorConfig{
			Endpoint:         cfg.Casdoor.Endpoint,
			ClientID:         cfg.Casdoor.ClientID,
			ClientSecret:     cfg.Casdoor.ClientSecret,
			Certificate:      cfg.Casdoor.Cert,
			OrganizationName: cfg.Casdoor.Organization,
			ApplicationName:  cfg.Casdoor.Application,
		},
	}
	repoManager := postgres.NewRepositoryManager(repoConfig)
	if err := repoManager.Initialize(); err != nil {
		log.Fatalf("Failed to initialize repositories: %v", err)
	}
	repo := repoManager.GetRepository()

	// Initialize event publisher
	ctx, stop := context.WithCancel(context.Background())
	defer stop()
	publisher := newPublisher(ctx, cfg, slogLogger)

	// Initialize validator
	validator := validator.New()

	// Initialize services
	serviceConfig := services.DefaultServiceManagerConfig()
	serviceConfig.PublicOrigin = cfg.Link.PublicOrigin
	serviceConfig.AffirmativeToken = cfg.Scoring.AffirmativeToken
	serviceConfig.PendingSelectionTTL = cfg.Workflow.PendingSelectionTTL

	serviceManager := services.NewServiceManager(repo, slogLogger, validator, publisher, serviceConfig)
	if err := serviceManager.Initialize(ctx); err != nil {
		log.Fatalf("Failed to initialize services: %v", err)
	}

	go runExpirySweep(ctx, serviceManager.Lifecycle(), cfg.Workflow.ExpirySweepInterval, slogLogger)

	// Initialize handlers
	authMiddleware := handlers.NewCasdoorAuthMiddleware(cfg.Casdoor, repo.User(), logger)
	handlerManager := handlers.NewHandlerManager(serviceManager, validator, logger, authMiddleware)

	// Setup Gin router
	if cfg.IsProduction() {
		gin.SetMode(gin.ReleaseMode)
	}

	router := gin.New()
	handlers.SetupMiddleware(router, logger)
	handlerManager.SetupRoutes(router)

	server := &http.Server{
		Addr:              fmt.Sprintf(":%s", cfg.Port),
		Handler:           router,
		ReadHeaderTimeout: 10 * time.Second,
	}

	go func() {
		logger.Info("Starting server", "port", cfg.Port, "environment", cfg.Environment)
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Fatalf("Failed to start server: %v", err)
		}
	}()

	// Wait for interrupt signal to gracefully shutdown the server
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	logger.Info("Shutting down server...")
	stop()

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Error("Server forced to shutdown", "error", err)
	}
	if err := serviceManager.Shutdown(shutdownCtx); err != nil {
		logger.Error("Failed to shutdown services", "error", err)
	}
	if err := repoManager.Shutdown(shutdownCtx); err != nil {
		logger.Error("Failed to close repositories", "error", err)
	}
	if redisClient != nil {
		redisClient.Close()
	}

	logger.Info("Server exited")
}

// newPublisher returns a Kafka publisher when brokers are configured and
// publishing is enabled. Otherwise events stay in process and operator
// alerts are written to the log.
func newPublisher(ctx context.Context, cfg *config.Config, logger *slog.Logger) events.EventPublisher {
	if cfg.Kafka.PublishEnabled && len(cfg.Kafka.Brokers) > 0 {
		publisher, err := events.NewKafkaPublisher(cfg.Kafka, logger)
		if err == nil {
			logger.Info("Publishing events to Kafka", "brokers", cfg.Kafka.Brokers, "topic", cfg.Kafka.Topic)
			return publisher
		}
		logger.Error("Kafka unavailable, falling back to in-process events", "error", err)
	}

	publisher, pubSub := events.NewInProcessPublisher(cfg.Kafka, logger)
	alerts, err := pubSub.Subscribe(ctx, cfg.Kafka.OperatorTopic)
	if err != nil {
		logger.Error("Failed to subscribe to operator alerts", "error", err)
		return publisher
	}
	go logOperatorAlerts(alerts, logger)
	return publisher
}

func logOperatorAlerts(alerts <-chan *message.Message, logger *slog.Logger) {
	for msg := range alerts {
		logger.Error("Operator alert",
			"event_id", msg.UUID,
			"event_type", msg.Metadata.Get("event_type"),
			"tenant_id", msg.Metadata.Get("tenant_id"),
			"payload", string(msg.Payload))
		msg.Ack()
	}
}

// runExpirySweep expires overdue assessments on a fixed interval until ctx
// is cancelled.
func runExpirySweep(ctx context.Context, lifecycle services.LifecycleService, interval time.Duration, logger *slog.Logger) {
	if interval <= 0 {
		logger.Info("Expiry sweep disabled")
		return
	}

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case now := <-ticker.C:
			expired, err := lifecycle.ExpireOverdue(ctx, now.UTC())
			if err != nil {
				logger.Error("Expiry sweep failed", "error", err)
				continue
			}
			if expired > 0 {
				logger.Info("Expiry sweep completed", "expired", expired)
			}
		}
	}
}
