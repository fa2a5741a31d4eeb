package services

import (
	"context"
	"io"
	"time"

	"github.com/SAP-F-2025/vendor-assessment-service/internal/catalog"
	"github.com/SAP-F-2025/vendor-assessment-service/internal/models"
	"github.com/SAP-F-2025/vendor-assessment-service/internal/repositories"
	"github.com/SAP-F-2025/vendor-assessment-service/internal/scoring"
	"github.com/SAP-F-2025/vendor-assessment-service/internal/validator"
)

// ===== RESPONSE DTOs =====

// AssessmentDetails is an assessment together with its live progress.
type AssessmentDetails struct {
	Assessment *models.Assessment `json:"assessment"`
	Template   *models.Template   `json:"template"`
	Stats      scoring.Stats      `json:"stats"`
	Score      scoring.Result     `json:"score"`
	Link       *models.PublicLink `json:"link,omitempty"`
}

// RespondentView is what the holder of a public link sees.
type RespondentView struct {
	AssessmentID string                  `json:"assessment_id"`
	VendorID     string                  `json:"vendor_id"`
	Status       models.AssessmentStatus `json:"status"`
	DueDate      *time.Time              `json:"due_date,omitempty"`
	ExpiresAt    time.Time               `json:"expires_at"`
	Template     *models.Template        `json:"template"`
	Responses    models.ResponseSet      `json:"responses"`
	Stats        scoring.Stats           `json:"stats"`
}

// SubmissionResult reports progress after answers were stored.
type SubmissionResult struct {
	AssessmentID string                  `json:"assessment_id"`
	Status       models.AssessmentStatus `json:"status"`
	Accepted     []string                `json:"accepted"`
	Stats        scoring.Stats           `json:"stats"`
	Completion   bool                    `json:"completion"`
}

// CompletionResult is the outcome of finishing an assessment.
type CompletionResult struct {
	AssessmentID string                  `json:"assessment_id"`
	Status       models.AssessmentStatus `json:"status"`
	Score        int                     `json:"score"`
	RiskLevel    models.RiskLevel        `json:"risk_level"`
	Passed       bool                    `json:"passed"`
	CompletedAt  time.Time               `json:"completed_at"`
}

// ===== SERVICE INTERFACES =====

// LifecycleService owns the assessment state machine and the promotion of
// ephemeral drafts to stored assessments.
type LifecycleService interface {
	// Pending selection
	SelectTemplate(ctx context.Context, actor *models.Actor, req *validator.SelectionRequest) (*models.PendingSelection, error)
	DraftFromSelection(ctx context.Context, actor *models.Actor, vendorID string) (*models.Assessment, error)

	// Drafts and materialization
	NewDraft(ctx context.Context, actor *models.Actor, req *validator.DraftRequest) (*models.Assessment, error)
	Materialize(ctx context.Context, assessment *models.Assessment, actor *models.Actor) (*models.Assessment, error)

	// Reads
	GetByID(ctx context.Context, id string, actor *models.Actor) (*models.Assessment, error)
	GetDetails(ctx context.Context, id string, actor *models.Actor) (*AssessmentDetails, error)
	List(ctx context.Context, actor *models.Actor, filters repositories.AssessmentFilters) ([]*models.Assessment, int64, error)

	// Transitions
	Transition(ctx context.Context, id string, actor *models.Actor, to models.AssessmentStatus) (*models.Assessment, error)
	MarkInProgress(ctx context.Context, id string, actor *models.Actor) (*models.Assessment, error)
	Complete(ctx context.Context, id string, actor *models.Actor) (*CompletionResult, error)
	Approve(ctx context.Context, id string, actor *models.Actor) (*models.Assessment, error)
	Reject(ctx context.Context, id string, actor *models.Actor) (*models.Assessment, error)
	ExpireOverdue(ctx context.Context, now time.Time) (int, error)
}

// LinkService issues and re-serves public links.
type LinkService interface {
	IssueOrRefreshLink(ctx context.Context, assessment *models.Assessment, actor *models.Actor) (*models.PublicLink, error)
	URLFor(token string) string
}

// ResponseService serves the respondent holding a public link.
type ResponseService interface {
	Resolve(ctx context.Context, token string) (*RespondentView, error)
	SubmitAnswer(ctx context.Context, token, questionID string, answer interface{}, justification *string, respondedBy string) (*SubmissionResult, error)
	SubmitAnswers(ctx context.Context, token string, req *validator.SubmitAnswersRequest) (*SubmissionResult, error)
	ComputeScore(ctx context.Context, token string) (*scoring.Result, error)
	ComputeStats(ctx context.Context, token string) (*scoring.Stats, error)
	Finalize(ctx context.Context, token string) (*CompletionResult, error)
}

// TemplateService manages a tenant's questionnaire templates.
type TemplateService interface {
	Create(ctx context.Context, actor *models.Actor, req *validator.TemplateCreateRequest) (*models.Template, error)
	Import(ctx context.Context, actor *models.Actor, format catalog.Format, r io.Reader) (*models.Template, error)
	List(ctx context.Context, actor *models.Actor, filters repositories.TemplateFilters) ([]*models.Template, int64, error)
	GetByID(ctx context.Context, actor *models.Actor, id string) (*models.Template, error)
	SeedDefault(ctx context.Context, actor *models.Actor) (*models.Template, error)
}

// ServiceManager wires the services and owns their lifecycle.
type ServiceManager interface {
	Lifecycle() LifecycleService
	Link() LinkService
	Response() ResponseService
	Template() TemplateService

	Initialize(ctx context.Context) error
	HealthCheck(ctx context.Context) error
	Shutdown(ctx context.Context) error
}
