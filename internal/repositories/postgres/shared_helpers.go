package postgres

import (
	"errors"

	"github.com/jackc/pgx/v5/pgconn"
	"gorm.io/gorm"

	"github.com/SAP-F-2025/vendor-assessment-service/internal/models"
	"github.com/SAP-F-2025/vendor-assessment-service/internal/repositories"
)

// insufficient_privilege, raised when a row level security policy rejects a write
const pgInsufficientPrivilege = "42501"

const pgUniqueViolation = "23505"

// SharedHelpers contains query building shared by the repositories
type SharedHelpers struct{}

func NewSharedHelpers() *SharedHelpers {
	return &SharedHelpers{}
}

func (h *SharedHelpers) ApplyAssessmentFilters(query *gorm.DB, filters repositories.AssessmentFilters) *gorm.DB {
	if filters.Status != nil {
		query = query.Where("status = ?", *filters.Status)
	}
	if filters.VendorID != nil {
		query = query.Where("vendor_id = ?", *filters.VendorID)
	}
	if filters.Priority != nil {
		query = query.Where("priority = ?", *filters.Priority)
	}
	if filters.DueBefore != nil {
		query = query.Where("due_date IS NOT NULL AND due_date < ?", *filters.DueBefore)
	}
	return query
}

func (h *SharedHelpers) ApplyTemplateFilters(query *gorm.DB, filters repositories.TemplateFilters) *gorm.DB {
	if filters.Family != nil {
		query = query.Where("family = ?", *filters.Family)
	}
	return query
}

// ApplyPaginationAndSort applies pagination and sorting with SQL injection protection
func (h *SharedHelpers) ApplyPaginationAndSort(query *gorm.DB, sortBy, sortOrder string, limit, offset int) *gorm.DB {
	allowedSortColumns := map[string]bool{
		"created_at": true,
		"updated_at": true,
		"due_date":   true,
		"status":     true,
		"priority":   true,
		"name":       true,
		"family":     true,
		"version":    true,
	}

	if sortBy == "" || !allowedSortColumns[sortBy] {
		sortBy = "created_at"
	}
	if sortOrder != "asc" && sortOrder != "ASC" {
		sortOrder = "DESC"
	} else {
		sortOrder = "ASC"
	}

	query = query.Order(sortBy + " " + sortOrder)

	if limit > 0 {
		query = query.Limit(limit)
	}
	if offset > 0 {
		query = query.Offset(offset)
	}
	return query
}

// terminalStatuses lists the states no write may leave.
func terminalStatuses() []models.AssessmentStatus {
	return []models.AssessmentStatus{models.StatusApproved, models.StatusRejected, models.StatusExpired}
}

// isPermissionDenied reports a row level security rejection from Postgres.
func isPermissionDenied(err error) bool {
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr) && pgErr.Code == pgInsufficientPrivilege
}

func isUniqueViolation(err error) bool {
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr) && pgErr.Code == pgUniqueViolation
}

// classifyWriteError tags RLS rejections so the issuer can fall back.
func classifyWriteError(err error) error {
	if err == nil {
		return nil
	}
	if isPermissionDenied(err) {
		return errors.Join(repositories.ErrPermissionDenied, err)
	}
	if isUniqueViolation(err) {
		return errors.Join(repositories.ErrDuplicate, err)
	}
	return err
}
