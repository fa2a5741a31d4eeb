package cache

import (
	"context"
	"fmt"
	"log/slog"
)

// SafeInvalidatePattern logs instead of returning the error.
func SafeInvalidatePattern(ctx context.Context, helper *CacheHelper, pattern string) {
	if err := helper.InvalidatePattern(ctx, pattern); err != nil {
		slog.ErrorContext(ctx, "Failed to invalidate cache pattern",
			"error", err,
			"pattern", pattern)
	}
}

// SafeDelete logs instead of returning the error.
func SafeDelete(ctx context.Context, helper *CacheHelper, keys ...string) {
	if err := helper.Delete(ctx, keys...); err != nil {
		slog.ErrorContext(ctx, "Failed to delete cache keys",
			"error", err,
			"keys", keys)
	}
}

func TemplateKey(tenantID, templateID string) string {
	return fmt.Sprintf("%s:id:%s", tenantID, templateID)
}

// TemplateListKey names one page of a tenant's template list. variant
// encodes the filters; an empty variant is the unfiltered list.
func TemplateListKey(tenantID, variant string) string {
	if variant == "" {
		return fmt.Sprintf("%s:list", tenantID)
	}
	return fmt.Sprintf("%s:list:%s", tenantID, variant)
}

// InvalidateTemplateCache drops the template row and every list for the tenant.
func InvalidateTemplateCache(ctx context.Context, cm *CacheManager, tenantID, templateID string) {
	if templateID != "" {
		SafeDelete(ctx, cm.Template, TemplateKey(tenantID, templateID))
	}
	SafeInvalidatePattern(ctx, cm.Template, fmt.Sprintf("%s:list*", tenantID))
}
