package validator

import (
	"time"

	"github.com/SAP-F-2025/vendor-assessment-service/internal/models"
)

// TemplateCreateRequest represents the request structure for creating templates
type TemplateCreateRequest struct {
	Family        string               `json:"family" validate:"required,max=100"`
	Name          string               `json:"name" validate:"required,min=1,max=200"`
	Version       string               `json:"version" validate:"required,max=50"`
	ScoringMethod models.ScoringMethod `json:"scoring_method" validate:"omitempty,oneof=weighted"`
	PassThreshold int                  `json:"pass_threshold" validate:"min=0,max=100"`
	Questions     []models.Question    `json:"questions" validate:"required,min=1,dive"`
}

// TemplateRef points at a concrete template or at a template family.
type TemplateRef struct {
	TemplateID     string `json:"template_id" validate:"omitempty,max=36"`
	TemplateFamily string `json:"template_family" validate:"omitempty,max=100"`
}

// SelectionRequest tentatively picks a template for a vendor
type SelectionRequest struct {
	VendorID string `json:"vendor_id" validate:"required,max=255"`
	TemplateRef
}

// DraftRequest represents the request structure for creating a draft assessment
type DraftRequest struct {
	VendorID string `json:"vendor_id" validate:"required,max=255"`
	TemplateRef
	DueDate       *time.Time      `json:"due_date" validate:"omitempty,future_date"`
	Priority      models.Priority `json:"priority" validate:"omitempty,priority"`
	FromSelection bool            `json:"from_selection"`
}

// StatusUpdateRequest represents a manual status transition
type StatusUpdateRequest struct {
	Status models.AssessmentStatus `json:"status" validate:"required,assessment_status"`
	Reason *string                 `json:"reason" validate:"omitempty,max=500"`
}

// LinkRequest issues a public link for a stored assessment or for an
// ephemeral one held by the caller.
type LinkRequest struct {
	AssessmentID string             `json:"assessment_id" validate:"omitempty,max=40"`
	Assessment   *models.Assessment `json:"assessment"`
}

// SubmitAnswersRequest carries a question id keyed payload of raw answers
type SubmitAnswersRequest struct {
	Answers        map[string]interface{} `json:"answers" validate:"required,min=1"`
	Justifications map[string]string      `json:"justifications" validate:"omitempty,dive,max=2000"`
	RespondedBy    string                 `json:"responded_by" validate:"omitempty,max=255"`
}
