package repositories

import (
	"context"

	"gorm.io/gorm"

	"github.com/SAP-F-2025/vendor-assessment-service/internal/models"
)

// TemplateRepository reads and writes questionnaire templates. Every lookup
// is scoped by tenant.
type TemplateRepository interface {
	Create(ctx context.Context, tx *gorm.DB, template *models.Template) error
	GetByID(ctx context.Context, tx *gorm.DB, tenantID, id string) (*models.Template, error)
	List(ctx context.Context, tx *gorm.DB, tenantID string, filters TemplateFilters) ([]*models.Template, int64, error)

	// Resolution helpers, oldest first
	GetFirstByFamily(ctx context.Context, tx *gorm.DB, tenantID, family string) (*models.Template, error)
	GetFirst(ctx context.Context, tx *gorm.DB, tenantID string) (*models.Template, error)

	ExistsByFamilyVersion(ctx context.Context, tx *gorm.DB, tenantID, family, version string) (bool, error)
}
