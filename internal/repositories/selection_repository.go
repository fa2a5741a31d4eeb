package repositories

import (
	"context"

	"github.com/SAP-F-2025/vendor-assessment-service/internal/models"
)

// PendingSelectionRepository keeps one tentative template choice per
// tenant and vendor until it expires or is consumed.
type PendingSelectionRepository interface {
	Save(ctx context.Context, selection *models.PendingSelection) error
	Get(ctx context.Context, tenantID, vendorID string) (*models.PendingSelection, error)
	Delete(ctx context.Context, tenantID, vendorID string) error
}
