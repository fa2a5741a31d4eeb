package postgres

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"gorm.io/datatypes"
	"gorm.io/gorm"

	"github.com/SAP-F-2025/vendor-assessment-service/internal/models"
	"github.com/SAP-F-2025/vendor-assessment-service/internal/repositories"
)

type AssessmentPostgreSQL struct {
	db      *gorm.DB
	helpers *SharedHelpers
}

// Assessments are not cached: the link issuer must always observe the
// stored token.
func NewAssessmentPostgreSQL(db *gorm.DB) repositories.AssessmentRepository {
	return &AssessmentPostgreSQL{
		db:      db,
		helpers: NewSharedHelpers(),
	}
}

// getDB returns the transaction DB if provided, otherwise returns the default DB
func (a *AssessmentPostgreSQL) getDB(tx *gorm.DB) *gorm.DB {
	if tx != nil {
		return tx
	}
	return a.db
}

func (a *AssessmentPostgreSQL) Create(ctx context.Context, tx *gorm.DB, assessment *models.Assessment) error {
	if assessment.IsEphemeral() {
		return fmt.Errorf("refusing to store assessment with ephemeral id %q", assessment.ID)
	}
	if err := a.getDB(tx).WithContext(ctx).Create(assessment).Error; err != nil {
		return fmt.Errorf("failed to create assessment: %w", classifyWriteError(err))
	}
	return nil
}

func (a *AssessmentPostgreSQL) GetByID(ctx context.Context, tx *gorm.DB, id string) (*models.Assessment, error) {
	var assessment models.Assessment
	if err := a.getDB(tx).WithContext(ctx).Where("id = ?", id).First(&assessment).Error; err != nil {
		return nil, fmt.Errorf("failed to get assessment: %w", err)
	}
	return &assessment, nil
}

func (a *AssessmentPostgreSQL) GetByToken(ctx context.Context, tx *gorm.DB, token string) (*models.Assessment, error) {
	var assessment models.Assessment
	if err := a.getDB(tx).WithContext(ctx).Where("link_token = ?", token).First(&assessment).Error; err != nil {
		return nil, fmt.Errorf("failed to get assessment by token: %w", err)
	}
	return &assessment, nil
}

func (a *AssessmentPostgreSQL) GetBySourceDraft(ctx context.Context, tx *gorm.DB, tenantID, draftID string) (*models.Assessment, error) {
	var assessment models.Assessment
	err := a.getDB(tx).WithContext(ctx).
		Where("tenant_id = ? AND source_draft_id = ?", tenantID, draftID).
		First(&assessment).Error
	if err != nil {
		return nil, fmt.Errorf("failed to get assessment by draft: %w", err)
	}
	return &assessment, nil
}

func (a *AssessmentPostgreSQL) List(ctx context.Context, tx *gorm.DB, tenantID string, filters repositories.AssessmentFilters) ([]*models.Assessment, int64, error) {
	query := a.getDB(tx).WithContext(ctx).Model(&models.Assessment{}).Where("tenant_id = ?", tenantID)
	query = a.helpers.ApplyAssessmentFilters(query, filters)

	var total int64
	if err := query.Count(&total).Error; err != nil {
		return nil, 0, fmt.Errorf("failed to count assessments: %w", err)
	}

	var assessments []*models.Assessment
	query = a.helpers.ApplyPaginationAndSort(query, filters.SortBy, filters.SortOrder, filters.Limit, filters.Offset)
	if err := query.Find(&assessments).Error; err != nil {
		return nil, 0, fmt.Errorf("failed to list assessments: %w", err)
	}
	return assessments, total, nil
}

func (a *AssessmentPostgreSQL) UpdateStatus(ctx context.Context, tx *gorm.DB, id string, from, to models.AssessmentStatus) (int64, error) {
	result := a.getDB(tx).WithContext(ctx).
		Model(&models.Assessment{}).
		Where("id = ? AND status = ?", id, from).
		UpdateColumns(map[string]interface{}{
			"status":     to,
			"updated_at": time.Now().UTC(),
		})
	if result.Error != nil {
		return 0, fmt.Errorf("failed to update assessment status: %w", result.Error)
	}
	return result.RowsAffected, nil
}

// SaveProgress uses UpdateColumns so model hooks do not run against the
// empty Model value; responses are encoded here instead. The whole response
// set is rewritten, so the revision guard keeps a concurrent writer from
// silently dropping answers.
func (a *AssessmentPostgreSQL) SaveProgress(ctx context.Context, tx *gorm.DB, assessment *models.Assessment, from models.AssessmentStatus) (int64, error) {
	responses, err := json.Marshal(assessment.Responses)
	if err != nil {
		return 0, fmt.Errorf("failed to encode responses: %w", err)
	}

	result := a.getDB(tx).WithContext(ctx).
		Model(&models.Assessment{}).
		Where("id = ? AND status = ? AND revision = ?", assessment.ID, from, assessment.Revision).
		UpdateColumns(map[string]interface{}{
			"responses":     datatypes.JSON(responses),
			"revision":      gorm.Expr("revision + 1"),
			"status":        assessment.Status,
			"overall_score": assessment.OverallScore,
			"risk_level":    assessment.RiskLevel,
			"completed_at":  assessment.CompletedAt,
			"updated_at":    time.Now().UTC(),
		})
	if result.Error != nil {
		return 0, fmt.Errorf("failed to save assessment progress: %w", result.Error)
	}
	if result.RowsAffected > 0 {
		assessment.Revision++
	}
	return result.RowsAffected, nil
}

// ListOverdue returns non-terminal assessments whose due date or link expiry
// is before now.
func (a *AssessmentPostgreSQL) ListOverdue(ctx context.Context, tx *gorm.DB, now time.Time, limit int) ([]*models.Assessment, error) {
	query := a.getDB(tx).WithContext(ctx).
		Where("status NOT IN ?", terminalStatuses()).
		Where("(due_date IS NOT NULL AND due_date < ?) OR (link_expires_at IS NOT NULL AND link_expires_at < ?)", now, now).
		Order("created_at ASC")
	if limit > 0 {
		query = query.Limit(limit)
	}

	var assessments []*models.Assessment
	if err := query.Find(&assessments).Error; err != nil {
		return nil, fmt.Errorf("failed to list overdue assessments: %w", err)
	}
	return assessments, nil
}

func (a *AssessmentPostgreSQL) MarkExpired(ctx context.Context, tx *gorm.DB, ids []string) (int64, error) {
	if len(ids) == 0 {
		return 0, nil
	}
	result := a.getDB(tx).WithContext(ctx).
		Model(&models.Assessment{}).
		Where("id IN ? AND status NOT IN ?", ids, terminalStatuses()).
		UpdateColumns(map[string]interface{}{
			"status":     models.StatusExpired,
			"updated_at": time.Now().UTC(),
		})
	if result.Error != nil {
		return 0, fmt.Errorf("failed to expire assessments: %w", result.Error)
	}
	return result.RowsAffected, nil
}
