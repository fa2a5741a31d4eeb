package repositories

import (
	"context"
	"time"

	"gorm.io/gorm"

	"github.com/SAP-F-2025/vendor-assessment-service/internal/models"
)

// AssessmentRepository persists assessment instances. Reads by id are not
// tenant-filtered so the caller can tell a foreign assessment from a missing
// one; writes that change state are conditional on the expected status.
type AssessmentRepository interface {
	Create(ctx context.Context, tx *gorm.DB, assessment *models.Assessment) error
	GetByID(ctx context.Context, tx *gorm.DB, id string) (*models.Assessment, error)
	GetByToken(ctx context.Context, tx *gorm.DB, token string) (*models.Assessment, error)
	GetBySourceDraft(ctx context.Context, tx *gorm.DB, tenantID, draftID string) (*models.Assessment, error)
	List(ctx context.Context, tx *gorm.DB, tenantID string, filters AssessmentFilters) ([]*models.Assessment, int64, error)

	// UpdateStatus moves id from one status to another and returns the rows affected.
	UpdateStatus(ctx context.Context, tx *gorm.DB, id string, from, to models.AssessmentStatus) (int64, error)

	// SaveProgress writes responses, status and computed results, guarded by
	// from and by the revision the caller read. A successful write bumps
	// assessment.Revision.
	SaveProgress(ctx context.Context, tx *gorm.DB, assessment *models.Assessment, from models.AssessmentStatus) (int64, error)

	ListOverdue(ctx context.Context, tx *gorm.DB, now time.Time, limit int) ([]*models.Assessment, error)
	MarkExpired(ctx context.Context, tx *gorm.DB, ids []string) (int64, error)
}

// LinkUpdate is one compare-and-swap write of a public link. PreviousToken
// is the token the issuer observed; nil means none was stored.
type LinkUpdate struct {
	AssessmentID  string
	TenantID      string
	PreviousToken *string
	Token         string
	IssuedAt      time.Time
	ExpiresAt     time.Time
}

// LinkWriter is the two-tier write path for public links. Both methods
// report zero rows affected as (0, nil) rather than an error.
type LinkWriter interface {
	// TryScopedWrite runs under the tenant's row level security.
	TryScopedWrite(ctx context.Context, update LinkUpdate) (int64, error)

	// PrivilegedWrite bypasses per-row authorization. Fallback only.
	PrivilegedWrite(ctx context.Context, update LinkUpdate) (int64, error)
}
