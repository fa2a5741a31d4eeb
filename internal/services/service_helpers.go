package services

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"gorm.io/gorm"

	"github.com/SAP-F-2025/vendor-assessment-service/internal/events"
	"github.com/SAP-F-2025/vendor-assessment-service/internal/models"
	"github.com/SAP-F-2025/vendor-assessment-service/internal/repositories"
	"github.com/SAP-F-2025/vendor-assessment-service/internal/scoring"
)

// publishEvent sends an event and only logs failures. Domain writes have
// already committed when events are emitted.
func publishEvent(ctx context.Context, publisher events.EventPublisher, logger *slog.Logger, eventType events.EventType, tenantID string, data interface{}) {
	if publisher == nil {
		return
	}
	if err := publisher.Publish(ctx, events.NewEvent(eventType, tenantID, data)); err != nil {
		logger.Warn("Failed to publish event", "event_type", eventType, "tenant_id", tenantID, "error", err)
	}
}

// checkTenant refuses access to resources owned by another tenant.
func checkTenant(actor *models.Actor, resource, resourceID, resourceTenant, action string) error {
	if actor == nil {
		return NewAuthorizationError(nil, resource, resourceID, resourceTenant, action, "no authenticated actor")
	}
	if actor.TenantID == "" || actor.TenantID != resourceTenant {
		return NewAuthorizationError(actor, resource, resourceID, resourceTenant, action, "tenant mismatch")
	}
	return nil
}

// checkWriter refuses mutations from read-only roles.
func checkWriter(actor *models.Actor, resource, resourceID, action string) error {
	if actor == nil {
		return NewAuthorizationError(nil, resource, resourceID, "", action, "no authenticated actor")
	}
	if actor.Role == models.RoleViewer {
		return NewAuthorizationError(actor, resource, resourceID, actor.TenantID, action, "read-only role")
	}
	return nil
}

// loadAssessment reads a stored assessment and maps a miss to NotFoundError.
func loadAssessment(ctx context.Context, repo repositories.Repository, tx *gorm.DB, id string) (*models.Assessment, error) {
	assessment, err := repo.Assessment().GetByID(ctx, tx, id)
	if err != nil {
		if repositories.IsNotFoundError(err) {
			return nil, &NotFoundError{Resource: "assessment", ID: id}
		}
		return nil, fmt.Errorf("failed to get assessment: %w", err)
	}
	return assessment, nil
}

// loadTemplate reads the template an assessment was materialized against.
func loadTemplate(ctx context.Context, repo repositories.Repository, tenantID, id string) (*models.Template, error) {
	tmpl, err := repo.Template().GetByID(ctx, nil, tenantID, id)
	if err != nil {
		if repositories.IsNotFoundError(err) {
			return nil, &NotFoundError{Resource: "template", ID: id}
		}
		return nil, fmt.Errorf("failed to get template: %w", err)
	}
	return tmpl, nil
}

// missingRequired lists the required questions without a response entry.
func missingRequired(tmpl *models.Template, responses models.ResponseSet) ValidationErrors {
	var errs ValidationErrors
	for _, q := range tmpl.Questions {
		if !q.Required {
			continue
		}
		if _, ok := responses[q.ID]; !ok {
			errs = append(errs, ValidationError{
				Field:   "responses." + q.ID,
				Message: "required question is unanswered",
				Rule:    "required",
			})
		}
	}
	return errs
}

// completeAssessment scores a response set and writes the completed state,
// guarded on the status the caller observed.
func completeAssessment(ctx context.Context, repo repositories.Repository, engine *scoring.Engine, publisher events.EventPublisher, logger *slog.Logger, assessment *models.Assessment, tmpl *models.Template, now time.Time) (*CompletionResult, error) {
	from := assessment.Status
	if from != models.StatusInProgress {
		return nil, fmt.Errorf("%w: cannot complete assessment in status %s", ErrInvalidTransition, from)
	}

	result := engine.Score(tmpl, assessment.Responses)
	if !result.Completion {
		return nil, missingRequired(tmpl, assessment.Responses)
	}

	score := result.Score
	risk := result.RiskLevel
	completedAt := now

	updated := *assessment
	updated.Status = models.StatusCompleted
	updated.OverallScore = &score
	updated.RiskLevel = &risk
	updated.CompletedAt = &completedAt

	rows, err := repo.Assessment().SaveProgress(ctx, nil, &updated, from)
	if err != nil {
		return nil, fmt.Errorf("failed to complete assessment: %w", err)
	}
	if rows == 0 {
		return nil, &PersistenceConflict{Resource: "assessment", ID: assessment.ID, Operation: "complete"}
	}
	*assessment = updated

	logger.Info("Assessment completed",
		"assessment_id", assessment.ID,
		"score", score,
		"risk_level", risk,
		"passed", result.Passed)

	publishEvent(ctx, publisher, logger, events.AssessmentCompleted, assessment.TenantID, events.CompletedEvent{
		AssessmentID: assessment.ID,
		Score:        score,
		RiskLevel:    risk,
		Passed:       result.Passed,
	})

	return &CompletionResult{
		AssessmentID: assessment.ID,
		Status:       models.StatusCompleted,
		Score:        score,
		RiskLevel:    risk,
		Passed:       result.Passed,
		CompletedAt:  completedAt,
	}, nil
}

// isFatal reports a configuration error retrying cannot fix.
func isFatal(err error) bool {
	var nf *NotFoundError
	return errors.As(err, &nf) && nf.Fatal
}
