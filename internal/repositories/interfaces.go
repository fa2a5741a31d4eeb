package repositories

import (
	"time"

	"github.com/SAP-F-2025/vendor-assessment-service/internal/models"
)

// ===== SHARED FILTER STRUCTS =====

type AssessmentFilters struct {
	Status    *models.AssessmentStatus `json:"status"`
	VendorID  *string                  `json:"vendor_id"`
	Priority  *models.Priority         `json:"priority"`
	DueBefore *time.Time               `json:"due_before"`
	Limit     int                      `json:"limit"`
	Offset    int                      `json:"offset"`
	SortBy    string                   `json:"sort_by"`    // "created_at", "due_date", "status", "priority"
	SortOrder string                   `json:"sort_order"` // "asc", "desc"
}

type TemplateFilters struct {
	Family    *string `json:"family"`
	Limit     int     `json:"limit"`
	Offset    int     `json:"offset"`
	SortBy    string  `json:"sort_by"`
	SortOrder string  `json:"sort_order"`
}
