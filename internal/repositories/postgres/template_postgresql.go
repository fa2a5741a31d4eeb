package postgres

import (
	"context"
	"fmt"

	"github.com/redis/go-redis/v9"
	"gorm.io/gorm"

	"github.com/SAP-F-2025/vendor-assessment-service/internal/cache"
	"github.com/SAP-F-2025/vendor-assessment-service/internal/models"
	"github.com/SAP-F-2025/vendor-assessment-service/internal/repositories"
)

type TemplatePostgreSQL struct {
	db           *gorm.DB
	helpers      *SharedHelpers
	cacheManager *cache.CacheManager
}

func NewTemplatePostgreSQL(db *gorm.DB, redisClient *redis.Client) repositories.TemplateRepository {
	return &TemplatePostgreSQL{
		db:           db,
		helpers:      NewSharedHelpers(),
		cacheManager: cache.NewCacheManager(redisClient),
	}
}

// getDB returns the transaction DB if provided, otherwise returns the default DB
func (t *TemplatePostgreSQL) getDB(tx *gorm.DB) *gorm.DB {
	if tx != nil {
		return tx
	}
	return t.db
}

func (t *TemplatePostgreSQL) Create(ctx context.Context, tx *gorm.DB, template *models.Template) error {
	if err := t.getDB(tx).WithContext(ctx).Create(template).Error; err != nil {
		return fmt.Errorf("failed to create template: %w", err)
	}
	cache.InvalidateTemplateCache(ctx, t.cacheManager, template.TenantID, "")
	return nil
}

// GetByID is cached; templates do not change once assessments reference them.
func (t *TemplatePostgreSQL) GetByID(ctx context.Context, tx *gorm.DB, tenantID, id string) (*models.Template, error) {
	var template models.Template
	err := t.cacheManager.Template.CacheOrExecute(ctx, cache.TemplateKey(tenantID, id), &template, cache.TemplateCacheConfig.TTL, func() (interface{}, error) {
		var dbTemplate models.Template
		err := t.getDB(tx).WithContext(ctx).
			Where("id = ? AND tenant_id = ?", id, tenantID).
			First(&dbTemplate).Error
		if err != nil {
			return nil, fmt.Errorf("failed to get template: %w", err)
		}
		return &dbTemplate, nil
	})
	if err != nil {
		return nil, err
	}
	return &template, nil
}

type templatePage struct {
	Items []*models.Template `json:"items"`
	Total int64              `json:"total"`
}

// List is cached per tenant and filter set; Create drops every cached page.
func (t *TemplatePostgreSQL) List(ctx context.Context, tx *gorm.DB, tenantID string, filters repositories.TemplateFilters) ([]*models.Template, int64, error) {
	var page templatePage
	key := cache.TemplateListKey(tenantID, templateListVariant(filters))
	err := t.cacheManager.Template.CacheOrExecute(ctx, key, &page, cache.TemplateCacheConfig.TTL, func() (interface{}, error) {
		query := t.getDB(tx).WithContext(ctx).Model(&models.Template{}).Where("tenant_id = ?", tenantID)
		query = t.helpers.ApplyTemplateFilters(query, filters)

		var total int64
		if err := query.Count(&total).Error; err != nil {
			return nil, fmt.Errorf("failed to count templates: %w", err)
		}

		var templates []*models.Template
		query = t.helpers.ApplyPaginationAndSort(query, filters.SortBy, filters.SortOrder, filters.Limit, filters.Offset)
		if err := query.Find(&templates).Error; err != nil {
			return nil, fmt.Errorf("failed to list templates: %w", err)
		}
		return &templatePage{Items: templates, Total: total}, nil
	})
	if err != nil {
		return nil, 0, err
	}
	return page.Items, page.Total, nil
}

func templateListVariant(filters repositories.TemplateFilters) string {
	family := ""
	if filters.Family != nil {
		family = *filters.Family
	}
	return fmt.Sprintf("%s|%d|%d|%s|%s", family, filters.Limit, filters.Offset, filters.SortBy, filters.SortOrder)
}

func (t *TemplatePostgreSQL) GetFirstByFamily(ctx context.Context, tx *gorm.DB, tenantID, family string) (*models.Template, error) {
	var template models.Template
	err := t.getDB(tx).WithContext(ctx).
		Where("tenant_id = ? AND family = ?", tenantID, family).
		Order("created_at ASC").
		First(&template).Error
	if err != nil {
		return nil, fmt.Errorf("failed to get template for family %s: %w", family, err)
	}
	return &template, nil
}

func (t *TemplatePostgreSQL) GetFirst(ctx context.Context, tx *gorm.DB, tenantID string) (*models.Template, error) {
	var template models.Template
	err := t.getDB(tx).WithContext(ctx).
		Where("tenant_id = ?", tenantID).
		Order("created_at ASC").
		First(&template).Error
	if err != nil {
		return nil, fmt.Errorf("failed to get first template: %w", err)
	}
	return &template, nil
}

func (t *TemplatePostgreSQL) ExistsByFamilyVersion(ctx context.Context, tx *gorm.DB, tenantID, family, version string) (bool, error) {
	var count int64
	err := t.getDB(tx).WithContext(ctx).
		Model(&models.Template{}).
		Where("tenant_id = ? AND family = ? AND version = ?", tenantID, family, version).
		Count(&count).Error
	if err != nil {
		return false, fmt.Errorf("failed to check template existence: %w", err)
	}
	return count > 0, nil
}
