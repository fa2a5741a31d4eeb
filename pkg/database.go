package pkg

import (
	"fmt"
	"log/slog"
	"time"

	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"github.com/SAP-F-2025/vendor-assessment-service/internal/config"
	"github.com/SAP-F-2025/vendor-assessment-service/internal/models"
)

// InitDatabase opens the tenant-scoped application connection.
func InitDatabase(cfg *config.Config) (*gorm.DB, error) {
	return openDatabase(cfg.DatabaseURL, cfg)
}

// InitPrivilegedDatabase opens the service-role connection used only when a
// scoped link write is rejected. Without PRIVILEGED_DATABASE_URL it returns
// nil and the fallback path reports itself unavailable.
func InitPrivilegedDatabase(cfg *config.Config) (*gorm.DB, error) {
	if cfg.PrivilegedDatabaseURL == "" {
		return nil, nil
	}
	return openDatabase(cfg.PrivilegedDatabaseURL, cfg)
}

func openDatabase(dsn string, cfg *config.Config) (*gorm.DB, error) {
	logLevel := logger.Warn
	if cfg.LogLevel <= slog.LevelDebug {
		logLevel = logger.Info
	}

	db, err := gorm.Open(postgres.Open(dsn), &gorm.Config{
		Logger: logger.Default.LogMode(logLevel),
		NowFunc: func() time.Time {
			return time.Now().UTC()
		},
	})
	if err != nil {
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}

	sqlDB, err := db.DB()
	if err != nil {
		return nil, fmt.Errorf("failed to get database instance: %w", err)
	}
	sqlDB.SetMaxOpenConns(25)
	sqlDB.SetMaxIdleConns(5)
	sqlDB.SetConnMaxLifetime(30 * time.Minute)

	return db, nil
}

// AutoMigrate creates the schema and the row level security policies on
// assessments. Reads and inserts are open; updates are confined to the
// tenant named by app.current_tenant whenever a transaction sets it. The
// policies only bind roles that do not own the table.
func AutoMigrate(db *gorm.DB) error {
	if err := db.AutoMigrate(&models.Template{}, &models.Assessment{}); err != nil {
		return fmt.Errorf("failed to auto-migrate: %w", err)
	}

	const tenantScope = `COALESCE(current_setting('app.current_tenant', true), '') = '' OR tenant_id = current_setting('app.current_tenant', true)`
	policies := map[string]string{
		"assessments_read":          `FOR SELECT USING (true)`,
		"assessments_insert":        `FOR INSERT WITH CHECK (true)`,
		"assessments_tenant_update": `FOR UPDATE USING (` + tenantScope + `) WITH CHECK (` + tenantScope + `)`,
		"assessments_tenant_delete": `FOR DELETE USING (` + tenantScope + `)`,
	}

	if err := db.Exec(`ALTER TABLE assessments ENABLE ROW LEVEL SECURITY`).Error; err != nil {
		return fmt.Errorf("failed to enable row level security: %w", err)
	}
	for name, body := range policies {
		stmt := fmt.Sprintf(`DO $$
BEGIN
	IF NOT EXISTS (SELECT 1 FROM pg_policies WHERE tablename = 'assessments' AND policyname = '%s') THEN
		CREATE POLICY %s ON assessments %s;
	END IF;
END $$;`, name, name, body)
		if err := db.Exec(stmt).Error; err != nil {
			return fmt.Errorf("failed to create policy %s: %w", name, err)
		}
	}
	return nil
}
