package postgres

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
	"gorm.io/gorm"

	"github.com/SAP-F-2025/vendor-assessment-service/internal/cache"
	"github.com/SAP-F-2025/vendor-assessment-service/internal/repositories"
	"github.com/SAP-F-2025/vendor-assessment-service/internal/repositories/casdoor"
	"github.com/SAP-F-2025/vendor-assessment-service/internal/repositories/redisstore"
)

// PostgreSQLRepository implements the main Repository interface
type PostgreSQLRepository struct {
	db           *gorm.DB
	privilegedDB *gorm.DB
	redisClient  *redis.Client
	cacheManager *cache.CacheManager

	template   repositories.TemplateRepository
	assessment repositories.AssessmentRepository
	linkWriter repositories.LinkWriter
	selection  repositories.PendingSelectionRepository
	user       repositories.UserRepository
}

// RepositoryConfig holds configuration for repository initialization
type RepositoryConfig struct {
	DB            *gorm.DB
	PrivilegedDB  *gorm.DB
	RedisClient   *redis.Client
	CasdoorConfig casdoor.CasdoorConfig
}

func NewPostgreSQLRepository(config RepositoryConfig) repositories.Repository {
	repo := &PostgreSQLRepository{
		db:           config.DB,
		privilegedDB: config.PrivilegedDB,
		redisClient:  config.RedisClient,
		cacheManager: cache.NewCacheManager(config.RedisClient),
	}

	repo.template = NewTemplatePostgreSQL(config.DB, config.RedisClient)
	repo.assessment = NewAssessmentPostgreSQL(config.DB)
	repo.linkWriter = NewLinkWriterPostgreSQL(config.DB, config.PrivilegedDB)

	// Pending selections need Redis for TTL across replicas; a single
	// instance without Redis keeps them in memory.
	if config.RedisClient != nil {
		repo.selection = redisstore.NewSelectionRedis(config.RedisClient)
	} else {
		repo.selection = redisstore.NewSelectionMemory()
	}

	repo.user = casdoor.NewUserCasdoor(config.CasdoorConfig, config.RedisClient)

	return repo
}

func (r *PostgreSQLRepository) Template() repositories.TemplateRepository {
	return r.template
}

func (r *PostgreSQLRepository) Assessment() repositories.AssessmentRepository {
	return r.assessment
}

func (r *PostgreSQLRepository) LinkWriter() repositories.LinkWriter {
	return r.linkWriter
}

func (r *PostgreSQLRepository) PendingSelection() repositories.PendingSelectionRepository {
	return r.selection
}

func (r *PostgreSQLRepository) User() repositories.UserRepository {
	return r.user
}

// WithTransaction executes a function within a database transaction
func (r *PostgreSQLRepository) WithTransaction(ctx context.Context, fn func(tx *gorm.DB) error) error {
	return r.db.WithContext(ctx).Transaction(fn)
}

// Ping checks the health of database and cache connections
func (r *PostgreSQLRepository) Ping(ctx context.Context) error {
	sqlDB, err := r.db.DB()
	if err != nil {
		return fmt.Errorf("failed to get database instance: %w", err)
	}
	if err := sqlDB.PingContext(ctx); err != nil {
		return fmt.Errorf("database ping failed: %w", err)
	}

	if r.redisClient != nil {
		if err := r.cacheManager.HealthCheck(ctx); err != nil {
			return fmt.Errorf("cache ping failed: %w", err)
		}
	}
	return nil
}

// Close closes the database connections. Redis is owned by main.
func (r *PostgreSQLRepository) Close() error {
	sqlDB, err := r.db.DB()
	if err != nil {
		return fmt.Errorf("failed to get database instance: %w", err)
	}
	if err := sqlDB.Close(); err != nil {
		return fmt.Errorf("failed to close database: %w", err)
	}

	if r.privilegedDB != nil {
		privileged, err := r.privilegedDB.DB()
		if err != nil {
			return fmt.Errorf("failed to get privileged database instance: %w", err)
		}
		if err := privileged.Close(); err != nil {
			return fmt.Errorf("failed to close privileged database: %w", err)
		}
	}
	return nil
}

// RepositoryManager implements the RepositoryManager interface
type RepositoryManager struct {
	config RepositoryConfig
	repo   repositories.Repository
}

func NewRepositoryManager(config RepositoryConfig) repositories.RepositoryManager {
	return &RepositoryManager{
		config: config,
	}
}

// Initialize verifies connectivity and builds the repositories
func (rm *RepositoryManager) Initialize() error {
	if rm.config.DB == nil {
		return fmt.Errorf("database connection is required")
	}

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	sqlDB, err := rm.config.DB.DB()
	if err != nil {
		return fmt.Errorf("failed to get database instance: %w", err)
	}
	if err := sqlDB.PingContext(ctx); err != nil {
		return fmt.Errorf("database connection failed: %w", err)
	}

	if rm.config.PrivilegedDB != nil {
		privileged, err := rm.config.PrivilegedDB.DB()
		if err != nil {
			return fmt.Errorf("failed to get privileged database instance: %w", err)
		}
		if err := privileged.PingContext(ctx); err != nil {
			return fmt.Errorf("privileged database connection failed: %w", err)
		}
	}

	if rm.config.RedisClient != nil {
		if _, err := rm.config.RedisClient.Ping(ctx).Result(); err != nil {
			return fmt.Errorf("redis connection failed: %w", err)
		}
	}

	rm.repo = NewPostgreSQLRepository(rm.config)
	return nil
}

func (rm *RepositoryManager) GetRepository() repositories.Repository {
	return rm.repo
}

func (rm *RepositoryManager) HealthCheck(ctx context.Context) error {
	if rm.repo == nil {
		return fmt.Errorf("repository not initialized")
	}
	return rm.repo.Ping(ctx)
}

func (rm *RepositoryManager) Shutdown(ctx context.Context) error {
	if rm.repo == nil {
		return nil
	}
	return rm.repo.Close()
}
