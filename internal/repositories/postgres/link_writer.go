package postgres

import (
	"context"
	"fmt"

	"gorm.io/gorm"

	"github.com/SAP-F-2025/vendor-assessment-service/internal/models"
	"github.com/SAP-F-2025/vendor-assessment-service/internal/repositories"
)

// LinkWriterPostgreSQL writes link tokens through the tenant-scoped
// connection first and through the service-role connection on fallback.
type LinkWriterPostgreSQL struct {
	db           *gorm.DB
	privilegedDB *gorm.DB
}

// NewLinkWriterPostgreSQL accepts a nil privilegedDB; PrivilegedWrite then
// fails with repositories.ErrPrivilegedDisabled.
func NewLinkWriterPostgreSQL(db, privilegedDB *gorm.DB) repositories.LinkWriter {
	return &LinkWriterPostgreSQL{
		db:           db,
		privilegedDB: privilegedDB,
	}
}

func (w *LinkWriterPostgreSQL) TryScopedWrite(ctx context.Context, update repositories.LinkUpdate) (int64, error) {
	var rows int64
	err := w.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		// Local to the transaction; read by the assessments RLS policy.
		if err := tx.Exec("SELECT set_config('app.current_tenant', ?, true)", update.TenantID).Error; err != nil {
			return fmt.Errorf("failed to set tenant scope: %w", err)
		}

		result := applyLinkUpdate(tx, update)
		if result.Error != nil {
			return classifyWriteError(result.Error)
		}
		rows = result.RowsAffected
		return nil
	})
	if err != nil {
		return 0, fmt.Errorf("scoped link write failed: %w", err)
	}
	return rows, nil
}

func (w *LinkWriterPostgreSQL) PrivilegedWrite(ctx context.Context, update repositories.LinkUpdate) (int64, error) {
	if w.privilegedDB == nil {
		return 0, repositories.ErrPrivilegedDisabled
	}

	result := applyLinkUpdate(w.privilegedDB.WithContext(ctx), update)
	if result.Error != nil {
		return 0, fmt.Errorf("privileged link write failed: %w", result.Error)
	}
	return result.RowsAffected, nil
}

// applyLinkUpdate is a compare-and-swap on the previously observed token.
// A draft assessment moves to sent in the same statement.
func applyLinkUpdate(db *gorm.DB, update repositories.LinkUpdate) *gorm.DB {
	query := db.Model(&models.Assessment{}).
		Where("id = ? AND tenant_id = ?", update.AssessmentID, update.TenantID).
		Where("status NOT IN ?", terminalStatuses())

	if update.PreviousToken == nil {
		query = query.Where("link_token IS NULL")
	} else {
		query = query.Where("link_token = ?", *update.PreviousToken)
	}

	return query.UpdateColumns(map[string]interface{}{
		"link_token":      update.Token,
		"link_issued_at":  update.IssuedAt,
		"link_expires_at": update.ExpiresAt,
		"status":          gorm.Expr("CASE WHEN status = ? THEN ? ELSE status END", models.StatusDraft, models.StatusSent),
		"updated_at":      update.IssuedAt,
	})
}
