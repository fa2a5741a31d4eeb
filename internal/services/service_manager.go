package services

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/SAP-F-2025/vendor-assessment-service/internal/events"
	"github.com/SAP-F-2025/vendor-assessment-service/internal/repositories"
	"github.com/SAP-F-2025/vendor-assessment-service/internal/scoring"
	"github.com/SAP-F-2025/vendor-assessment-service/internal/validator"
)

// DefaultLinkValidity is how long a public link stays usable after issuance.
const DefaultLinkValidity = 30 * 24 * time.Hour

// ServiceManagerConfig holds configuration for the service manager
type ServiceManagerConfig struct {
	// PublicOrigin prefixes public link URLs, e.g. https://vendors.example.com
	PublicOrigin string

	// AffirmativeToken is the yes_no answer that scores full marks
	AffirmativeToken string

	PendingSelectionTTL time.Duration
	LinkValidity        time.Duration

	// ExpiryBatchSize bounds one ExpireOverdue sweep
	ExpiryBatchSize int
}

// Validate validates the service manager configuration
func (config *ServiceManagerConfig) Validate() error {
	var errors []string

	if config.PendingSelectionTTL <= 0 {
		errors = append(errors, "pending selection TTL must be positive")
	}
	if config.LinkValidity <= 0 {
		errors = append(errors, "link validity must be positive")
	}
	if config.ExpiryBatchSize <= 0 {
		errors = append(errors, "expiry batch size must be positive")
	}

	if len(errors) > 0 {
		return fmt.Errorf("configuration validation failed: %v", errors)
	}
	return nil
}

// serviceManager implements ServiceManager interface
type serviceManager struct {
	// Dependencies
	repo      repositories.Repository
	logger    *slog.Logger
	validator *validator.Validator
	publisher events.EventPublisher
	config    ServiceManagerConfig

	// Service instances
	lifecycleService LifecycleService
	linkService      LinkService
	responseService  ResponseService
	templateService  TemplateService

	// Lifecycle management
	initialized bool
	shutdown    bool
	mu          sync.RWMutex
}

// NewServiceManager creates a new service manager with all dependencies
func NewServiceManager(repo repositories.Repository, logger *slog.Logger, validator *validator.Validator, publisher events.EventPublisher, config ServiceManagerConfig) ServiceManager {
	return &serviceManager{
		repo:      repo,
		logger:    logger,
		validator: validator,
		publisher: publisher,
		config:    config,
	}
}

// NewDefaultServiceManager creates a service manager with default configuration
func NewDefaultServiceManager(repo repositories.Repository, logger *slog.Logger, validator *validator.Validator, publisher events.EventPublisher) ServiceManager {
	return NewServiceManager(repo, logger, validator, publisher, DefaultServiceManagerConfig())
}

func DefaultServiceManagerConfig() ServiceManagerConfig {
	return ServiceManagerConfig{
		PublicOrigin:        "http://localhost:3000",
		AffirmativeToken:    scoring.DefaultAffirmativeToken,
		PendingSelectionTTL: 30 * time.Minute,
		LinkValidity:        DefaultLinkValidity,
		ExpiryBatchSize:     500,
	}
}

// Initialize sets up all services and their dependencies
func (sm *serviceManager) Initialize(ctx context.Context) error {
	sm.mu.Lock()
	defer sm.mu.Unlock()

	if sm.initialized {
		return nil
	}

	sm.logger.Info("Initializing service manager")

	if err := sm.config.Validate(); err != nil {
		return err
	}
	if sm.repo == nil {
		return fmt.Errorf("failed to initialize services: repository is required")
	}
	if sm.publisher == nil {
		return fmt.Errorf("failed to initialize services: event publisher is required")
	}

	engine := scoring.NewEngine(scoring.WithAffirmativeToken(sm.config.AffirmativeToken))

	lifecycle := NewLifecycleService(sm.repo, sm.logger, sm.validator, sm.publisher, engine, sm.config)
	sm.lifecycleService = lifecycle
	sm.logger.Info("Lifecycle service initialized")

	sm.linkService = NewLinkService(sm.repo, sm.logger, sm.publisher, lifecycle, sm.config)
	sm.logger.Info("Link service initialized")

	sm.responseService = NewResponseService(sm.repo, sm.logger, sm.validator, sm.publisher, engine)
	sm.logger.Info("Response service initialized")

	sm.templateService = NewTemplateService(sm.repo, sm.logger, sm.validator, sm.publisher)
	sm.logger.Info("Template service initialized")

	sm.initialized = true
	sm.logger.Info("Service manager initialized successfully")

	return nil
}

// Service getters
func (sm *serviceManager) Lifecycle() LifecycleService {
	sm.mu.RLock()
	defer sm.mu.RUnlock()

	if !sm.initialized {
		panic("service manager not initialized")
	}
	return sm.lifecycleService
}

func (sm *serviceManager) Link() LinkService {
	sm.mu.RLock()
	defer sm.mu.RUnlock()

	if !sm.initialized {
		panic("service manager not initialized")
	}
	return sm.linkService
}

func (sm *serviceManager) Response() ResponseService {
	sm.mu.RLock()
	defer sm.mu.RUnlock()

	if !sm.initialized {
		panic("service manager not initialized")
	}
	return sm.responseService
}

func (sm *serviceManager) Template() TemplateService {
	sm.mu.RLock()
	defer sm.mu.RUnlock()

	if !sm.initialized {
		panic("service manager not initialized")
	}
	return sm.templateService
}

// Health and lifecycle
func (sm *serviceManager) HealthCheck(ctx context.Context) error {
	sm.mu.RLock()
	defer sm.mu.RUnlock()

	if !sm.initialized {
		return fmt.Errorf("service manager not initialized")
	}
	if sm.shutdown {
		return fmt.Errorf("service manager is shut down")
	}

	if err := sm.repo.Ping(ctx); err != nil {
		return fmt.Errorf("repository health check failed: %w", err)
	}
	return nil
}

func (sm *serviceManager) Shutdown(ctx context.Context) error {
	sm.mu.Lock()
	defer sm.mu.Unlock()

	if sm.shutdown {
		return nil
	}

	sm.logger.Info("Shutting down service manager")

	if sm.publisher != nil {
		if err := sm.publisher.Close(); err != nil {
			sm.logger.Error("Failed to close event publisher", "error", err)
		}
	}

	sm.shutdown = true
	sm.logger.Info("Service manager shut down completed")

	return nil
}
