package services

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/SAP-F-2025/vendor-assessment-service/internal/events"
	"github.com/SAP-F-2025/vendor-assessment-service/internal/models"
	"github.com/SAP-F-2025/vendor-assessment-service/internal/repositories"
	"github.com/SAP-F-2025/vendor-assessment-service/internal/scoring"
	"github.com/SAP-F-2025/vendor-assessment-service/internal/validator"
)

type lifecycleService struct {
	repo      repositories.Repository
	logger    *slog.Logger
	validator *validator.Validator
	publisher events.EventPublisher
	engine    *scoring.Engine
	config    ServiceManagerConfig

	now   func() time.Time
	newID func() string
}

func NewLifecycleService(repo repositories.Repository, logger *slog.Logger, validator *validator.Validator, publisher events.EventPublisher, engine *scoring.Engine, config ServiceManagerConfig) LifecycleService {
	return &lifecycleService{
		repo:      repo,
		logger:    logger,
		validator: validator,
		publisher: publisher,
		engine:    engine,
		config:    config,
		now:       func() time.Time { return time.Now().UTC() },
		newID:     uuid.NewString,
	}
}

// ===== PENDING SELECTION =====

func (s *lifecycleService) SelectTemplate(ctx context.Context, actor *models.Actor, req *validator.SelectionRequest) (*models.PendingSelection, error) {
	if err := checkWriter(actor, "selection", req.VendorID, "select_template"); err != nil {
		return nil, err
	}
	if err := s.validator.Validate(req); err != nil {
		return nil, err
	}

	now := s.now()
	selection := &models.PendingSelection{
		TenantID:       actor.TenantID,
		VendorID:       req.VendorID,
		TemplateID:     req.TemplateID,
		TemplateFamily: req.TemplateFamily,
		SelectedBy:     actor.UserID,
		SelectedAt:     now,
		ExpiresAt:      now.Add(s.config.PendingSelectionTTL),
	}

	if err := s.repo.PendingSelection().Save(ctx, selection); err != nil {
		s.logger.Error("Failed to save pending selection", "vendor_id", req.VendorID, "error", err)
		return nil, fmt.Errorf("failed to save pending selection: %w", err)
	}

	s.logger.Info("Template selection recorded",
		"tenant_id", actor.TenantID,
		"vendor_id", req.VendorID,
		"template_id", req.TemplateID,
		"template_family", req.TemplateFamily,
		"expires_at", selection.ExpiresAt)

	publishEvent(ctx, s.publisher, s.logger, events.PendingSelectionRecorded, actor.TenantID, events.SelectionRecordedEvent{
		VendorID:   req.VendorID,
		TemplateID: req.TemplateID,
		Family:     req.TemplateFamily,
		ExpiresAt:  selection.ExpiresAt,
	})

	return selection, nil
}

func (s *lifecycleService) DraftFromSelection(ctx context.Context, actor *models.Actor, vendorID string) (*models.Assessment, error) {
	if err := checkWriter(actor, "selection", vendorID, "draft"); err != nil {
		return nil, err
	}

	selection, err := s.repo.PendingSelection().Get(ctx, actor.TenantID, vendorID)
	if err != nil {
		if repositories.IsNotFoundError(err) {
			return nil, selectionMissing(vendorID)
		}
		return nil, fmt.Errorf("failed to get pending selection: %w", err)
	}
	if selection.Expired(s.now()) {
		return nil, selectionMissing(vendorID)
	}

	return s.newDraft(actor, vendorID, selection.TemplateID, selection.TemplateFamily, nil, ""), nil
}

func selectionMissing(vendorID string) error {
	return fmt.Errorf("%w: %w", ErrSelectionMissing, &NotFoundError{Resource: "selection", ID: vendorID})
}

// ===== DRAFTS =====

func (s *lifecycleService) NewDraft(ctx context.Context, actor *models.Actor, req *validator.DraftRequest) (*models.Assessment, error) {
	if err := checkWriter(actor, "assessment", "", "draft"); err != nil {
		return nil, err
	}
	if err := s.validator.Validate(req); err != nil {
		return nil, err
	}

	if req.FromSelection {
		draft, err := s.DraftFromSelection(ctx, actor, req.VendorID)
		if err != nil {
			return nil, err
		}
		draft.DueDate = req.DueDate
		if req.Priority != "" {
			draft.Priority = req.Priority
		}
		return draft, nil
	}

	return s.newDraft(actor, req.VendorID, req.TemplateID, req.TemplateFamily, req.DueDate, req.Priority), nil
}

// newDraft builds an assessment that lives only in the caller's memory.
func (s *lifecycleService) newDraft(actor *models.Actor, vendorID, templateID, family string, dueDate *time.Time, priority models.Priority) *models.Assessment {
	if priority == "" {
		priority = models.PriorityMedium
	}
	now := s.now()
	return &models.Assessment{
		ID:             models.EphemeralIDPrefix + s.newID(),
		TenantID:       actor.TenantID,
		VendorID:       vendorID,
		TemplateID:     templateID,
		TemplateFamily: family,
		Status:         models.StatusDraft,
		Priority:       priority,
		DueDate:        dueDate,
		Responses:      models.ResponseSet{},
		CreatedBy:      actor.UserID,
		CreatedAt:      now,
		UpdatedAt:      now,
	}
}

// Materialize stores an ephemeral assessment under a fresh id and points the
// caller's copy at the stored row. A draft that was already stored returns
// that row. Stored assessments are returned unchanged.
func (s *lifecycleService) Materialize(ctx context.Context, assessment *models.Assessment, actor *models.Actor) (*models.Assessment, error) {
	if assessment == nil {
		return nil, newValidationError("assessment", "required", "assessment is required", nil)
	}
	if err := checkTenant(actor, "assessment", assessment.ID, assessment.TenantID, "materialize"); err != nil {
		return nil, err
	}
	if err := checkWriter(actor, "assessment", assessment.ID, "materialize"); err != nil {
		return nil, err
	}
	if !assessment.IsEphemeral() {
		return assessment, nil
	}
	if assessment.VendorID == "" {
		return nil, newValidationError("vendor_id", "required", "vendor is required", nil)
	}

	var draftID *string
	if assessment.ID != "" {
		id := assessment.ID
		draftID = &id
		existing, err := s.storedDraft(ctx, assessment.TenantID, id)
		if err != nil {
			return nil, err
		}
		if existing != nil {
			s.logger.Info("Draft already materialized", "assessment_id", existing.ID, "ephemeral_id", id)
			assessment.Adopt(existing)
			return existing, nil
		}
	}

	tmpl, err := s.resolveTemplate(ctx, assessment.TenantID, assessment.TemplateID, assessment.TemplateFamily)
	if err != nil {
		if isFatal(err) {
			s.logger.Error("No template available for assessment",
				"tenant_id", assessment.TenantID,
				"template_id", assessment.TemplateID,
				"template_family", assessment.TemplateFamily,
				"error", err)
		}
		return nil, err
	}

	now := s.now()
	stored := &models.Assessment{
		ID:             s.newID(),
		TenantID:       assessment.TenantID,
		VendorID:       assessment.VendorID,
		TemplateID:     tmpl.ID,
		TemplateFamily: tmpl.Family,
		Status:         models.StatusDraft,
		Priority:       assessment.Priority,
		DueDate:        assessment.DueDate,
		SourceDraftID:  draftID,
		Responses:      assessment.Responses.Clone(),
		CreatedBy:      assessment.CreatedBy,
		CreatedAt:      now,
		UpdatedAt:      now,
	}
	if stored.Priority == "" {
		stored.Priority = models.PriorityMedium
	}
	if stored.CreatedBy == "" {
		stored.CreatedBy = actor.UserID
	}

	if err := s.repo.Assessment().Create(ctx, nil, stored); err != nil {
		if draftID != nil && repositories.IsDuplicateError(err) {
			// A concurrent call stored the same draft first.
			existing, lookupErr := s.storedDraft(ctx, assessment.TenantID, *draftID)
			if lookupErr == nil && existing != nil {
				assessment.Adopt(existing)
				return existing, nil
			}
		}
		s.logger.Error("Failed to materialize assessment", "ephemeral_id", assessment.ID, "error", err)
		return nil, fmt.Errorf("failed to materialize assessment: %w", err)
	}

	if err := s.repo.PendingSelection().Delete(ctx, stored.TenantID, stored.VendorID); err != nil && !repositories.IsNotFoundError(err) {
		s.logger.Warn("Failed to clear pending selection", "vendor_id", stored.VendorID, "error", err)
	}

	ephemeralID := assessment.ID
	assessment.Adopt(stored)

	s.logger.Info("Assessment materialized",
		"assessment_id", stored.ID,
		"ephemeral_id", ephemeralID,
		"template_id", tmpl.ID,
		"vendor_id", stored.VendorID)

	publishEvent(ctx, s.publisher, s.logger, events.AssessmentMaterialized, stored.TenantID, events.MaterializedEvent{
		AssessmentID: stored.ID,
		EphemeralID:  ephemeralID,
		TemplateID:   tmpl.ID,
		VendorID:     stored.VendorID,
	})

	return stored, nil
}

// storedDraft returns the row a draft was materialized into, or nil.
func (s *lifecycleService) storedDraft(ctx context.Context, tenantID, draftID string) (*models.Assessment, error) {
	existing, err := s.repo.Assessment().GetBySourceDraft(ctx, nil, tenantID, draftID)
	if err != nil {
		if repositories.IsNotFoundError(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to look up materialized draft: %w", err)
	}
	return existing, nil
}

// resolveTemplate picks the concrete template if the tenant has it, then the
// oldest template of the family, then the tenant's oldest template.
func (s *lifecycleService) resolveTemplate(ctx context.Context, tenantID, templateID, family string) (*models.Template, error) {
	templates := s.repo.Template()

	if templateID != "" {
		tmpl, err := templates.GetByID(ctx, nil, tenantID, templateID)
		if err == nil {
			return tmpl, nil
		}
		if !repositories.IsNotFoundError(err) {
			return nil, fmt.Errorf("failed to get template: %w", err)
		}
	}

	if family != "" {
		tmpl, err := templates.GetFirstByFamily(ctx, nil, tenantID, family)
		if err == nil {
			return tmpl, nil
		}
		if !repositories.IsNotFoundError(err) {
			return nil, fmt.Errorf("failed to get template by family: %w", err)
		}
	}

	tmpl, err := templates.GetFirst(ctx, nil, tenantID)
	if err == nil {
		return tmpl, nil
	}
	if !repositories.IsNotFoundError(err) {
		return nil, fmt.Errorf("failed to get tenant template: %w", err)
	}

	ref := templateID
	if ref == "" {
		ref = family
	}
	return nil, &NotFoundError{Resource: "template", ID: ref, Fatal: true}
}

// ===== READS =====

func (s *lifecycleService) GetByID(ctx context.Context, id string, actor *models.Actor) (*models.Assessment, error) {
	if id == "" || (&models.Assessment{ID: id}).IsEphemeral() {
		return nil, &NotFoundError{Resource: "assessment", ID: id}
	}
	assessment, err := loadAssessment(ctx, s.repo, nil, id)
	if err != nil {
		return nil, err
	}
	if err := checkTenant(actor, "assessment", id, assessment.TenantID, "read"); err != nil {
		return nil, err
	}
	return assessment, nil
}

func (s *lifecycleService) GetDetails(ctx context.Context, id string, actor *models.Actor) (*AssessmentDetails, error) {
	assessment, err := s.GetByID(ctx, id, actor)
	if err != nil {
		return nil, err
	}
	tmpl, err := loadTemplate(ctx, s.repo, assessment.TenantID, assessment.TemplateID)
	if err != nil {
		return nil, err
	}

	details := &AssessmentDetails{
		Assessment: assessment,
		Template:   tmpl,
		Stats:      scoring.ComputeStats(tmpl, assessment.Responses),
		Score:      s.engine.Score(tmpl, assessment.Responses),
	}
	if assessment.HasValidLink(s.now()) {
		details.Link = linkFromAssessment(assessment, s.config.PublicOrigin)
	}
	return details, nil
}

func (s *lifecycleService) List(ctx context.Context, actor *models.Actor, filters repositories.AssessmentFilters) ([]*models.Assessment, int64, error) {
	if actor == nil || actor.TenantID == "" {
		return nil, 0, NewAuthorizationError(actor, "assessment", "", "", "list", "no tenant")
	}
	assessments, total, err := s.repo.Assessment().List(ctx, nil, actor.TenantID, filters)
	if err != nil {
		return nil, 0, fmt.Errorf("failed to list assessments: %w", err)
	}
	return assessments, total, nil
}

// ===== TRANSITIONS =====

func (s *lifecycleService) Transition(ctx context.Context, id string, actor *models.Actor, to models.AssessmentStatus) (*models.Assessment, error) {
	if err := checkWriter(actor, "assessment", id, "transition"); err != nil {
		return nil, err
	}
	assessment, err := s.GetByID(ctx, id, actor)
	if err != nil {
		return nil, err
	}

	switch to {
	case models.StatusSent:
		if assessment.Status == models.StatusDraft {
			return nil, newValidationError("status", "link_required", "an assessment is sent by issuing its public link", to)
		}
	case models.StatusApproved, models.StatusRejected:
		if !actor.CanReview() {
			return nil, NewAuthorizationError(actor, "assessment", id, assessment.TenantID, string(to), "reviewer role required")
		}
	case models.StatusExpired:
		if !assessment.Status.IsTerminal() && !assessment.IsOverdue(s.now()) {
			return nil, fmt.Errorf("%w: assessment %s is neither past its due date nor its link expiry", ErrInvalidTransition, id)
		}
	case models.StatusCompleted:
		if _, err := s.complete(ctx, assessment); err != nil {
			return nil, err
		}
		return assessment, nil
	}

	if errs := s.validator.GetBusinessValidator().ValidateStatusTransition(assessment.Status, to); len(errs) > 0 {
		return nil, fmt.Errorf("%w: %s", ErrInvalidTransition, errs[0].Message)
	}

	from := assessment.Status
	rows, err := s.repo.Assessment().UpdateStatus(ctx, nil, id, from, to)
	if err != nil {
		return nil, fmt.Errorf("failed to update assessment status: %w", err)
	}
	if rows == 0 {
		return nil, &PersistenceConflict{Resource: "assessment", ID: id, Operation: "transition"}
	}
	assessment.Status = to
	assessment.UpdatedAt = s.now()

	s.logger.Info("Assessment status changed",
		"assessment_id", id,
		"from", from,
		"to", to,
		"changed_by", actor.UserID)

	publishEvent(ctx, s.publisher, s.logger, events.AssessmentStatusChanged, assessment.TenantID, events.StatusChangedEvent{
		AssessmentID: id,
		From:         from,
		To:           to,
		ChangedBy:    actor.UserID,
	})

	return assessment, nil
}

func (s *lifecycleService) MarkInProgress(ctx context.Context, id string, actor *models.Actor) (*models.Assessment, error) {
	return s.Transition(ctx, id, actor, models.StatusInProgress)
}

func (s *lifecycleService) Complete(ctx context.Context, id string, actor *models.Actor) (*CompletionResult, error) {
	if err := checkWriter(actor, "assessment", id, "complete"); err != nil {
		return nil, err
	}
	assessment, err := s.GetByID(ctx, id, actor)
	if err != nil {
		return nil, err
	}
	return s.complete(ctx, assessment)
}

func (s *lifecycleService) complete(ctx context.Context, assessment *models.Assessment) (*CompletionResult, error) {
	tmpl, err := loadTemplate(ctx, s.repo, assessment.TenantID, assessment.TemplateID)
	if err != nil {
		return nil, err
	}
	return completeAssessment(ctx, s.repo, s.engine, s.publisher, s.logger, assessment, tmpl, s.now())
}

func (s *lifecycleService) Approve(ctx context.Context, id string, actor *models.Actor) (*models.Assessment, error) {
	return s.Transition(ctx, id, actor, models.StatusApproved)
}

func (s *lifecycleService) Reject(ctx context.Context, id string, actor *models.Actor) (*models.Assessment, error) {
	return s.Transition(ctx, id, actor, models.StatusRejected)
}

// ExpireOverdue moves every non-terminal assessment whose due date or link
// expiry lies before now to expired. It runs without an actor and spans
// tenants.
func (s *lifecycleService) ExpireOverdue(ctx context.Context, now time.Time) (int, error) {
	batch := s.config.ExpiryBatchSize
	if batch <= 0 {
		batch = 500
	}

	total := 0
	for {
		overdue, err := s.repo.Assessment().ListOverdue(ctx, nil, now, batch)
		if err != nil {
			return total, fmt.Errorf("failed to list overdue assessments: %w", err)
		}

		byTenant := make(map[string][]string)
		var ids []string
		for _, a := range overdue {
			if a.Status.IsTerminal() || !a.IsOverdue(now) {
				continue
			}
			ids = append(ids, a.ID)
			byTenant[a.TenantID] = append(byTenant[a.TenantID], a.ID)
		}
		if len(ids) == 0 {
			break
		}

		rows, err := s.repo.Assessment().MarkExpired(ctx, nil, ids)
		if err != nil {
			return total, fmt.Errorf("failed to expire assessments: %w", err)
		}
		total += int(rows)

		for tenantID, tenantIDs := range byTenant {
			publishEvent(ctx, s.publisher, s.logger, events.AssessmentExpired, tenantID, events.ExpiredEvent{AssessmentIDs: tenantIDs})
		}

		if rows == 0 || len(overdue) < batch {
			break
		}
	}

	if total > 0 {
		s.logger.Info("Expired overdue assessments", "count", total)
	}
	return total, nil
}
