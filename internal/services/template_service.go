package services

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"

	"github.com/google/uuid"

	"github.com/SAP-F-2025/vendor-assessment-service/internal/catalog"
	"github.com/SAP-F-2025/vendor-assessment-service/internal/events"
	"github.com/SAP-F-2025/vendor-assessment-service/internal/models"
	"github.com/SAP-F-2025/vendor-assessment-service/internal/repositories"
	"github.com/SAP-F-2025/vendor-assessment-service/internal/validator"
)

type templateService struct {
	repo      repositories.Repository
	logger    *slog.Logger
	validator *validator.Validator
	publisher events.EventPublisher

	newID func() string
}

func NewTemplateService(repo repositories.Repository, logger *slog.Logger, validator *validator.Validator, publisher events.EventPublisher) TemplateService {
	return &templateService{
		repo:      repo,
		logger:    logger,
		validator: validator,
		publisher: publisher,
		newID:     uuid.NewString,
	}
}

func (s *templateService) Create(ctx context.Context, actor *models.Actor, req *validator.TemplateCreateRequest) (*models.Template, error) {
	if err := checkWriter(actor, "template", "", "create"); err != nil {
		return nil, err
	}
	if errs := s.validator.GetBusinessValidator().ValidateTemplateCreate(req); len(errs) > 0 {
		return nil, errs
	}

	tmpl := &models.Template{
		Family:        req.Family,
		Name:          req.Name,
		Version:       req.Version,
		ScoringMethod: req.ScoringMethod,
		PassThreshold: req.PassThreshold,
		Questions:     req.Questions,
	}
	if tmpl.ScoringMethod == "" {
		tmpl.ScoringMethod = models.ScoringWeighted
	}
	catalog.SortQuestions(tmpl.Questions)

	return s.store(ctx, actor, tmpl)
}

func (s *templateService) Import(ctx context.Context, actor *models.Actor, format catalog.Format, r io.Reader) (*models.Template, error) {
	if err := checkWriter(actor, "template", "", "import"); err != nil {
		return nil, err
	}

	tmpl, err := catalog.Load(format, r)
	if err != nil {
		if errors.Is(err, catalog.ErrUnsupportedType) {
			return nil, newValidationError("format", "format", err.Error(), format)
		}
		return nil, newValidationError("file", "catalog", err.Error(), nil)
	}
	if errs := s.validator.GetBusinessValidator().ValidateTemplate(tmpl); len(errs) > 0 {
		return nil, errs
	}

	s.logger.Info("Catalog parsed", "format", format, "family", tmpl.Family, "questions", len(tmpl.Questions))
	return s.store(ctx, actor, tmpl)
}

// SeedDefault installs the built-in catalog for the actor's tenant. An
// existing copy of the same version is returned instead.
func (s *templateService) SeedDefault(ctx context.Context, actor *models.Actor) (*models.Template, error) {
	if err := checkWriter(actor, "template", "", "seed"); err != nil {
		return nil, err
	}

	tmpl := catalog.Default()
	exists, err := s.repo.Template().ExistsByFamilyVersion(ctx, nil, actor.TenantID, tmpl.Family, tmpl.Version)
	if err != nil {
		return nil, fmt.Errorf("failed to check template existence: %w", err)
	}
	if exists {
		existing, err := s.repo.Template().GetFirstByFamily(ctx, nil, actor.TenantID, tmpl.Family)
		if err != nil {
			return nil, fmt.Errorf("failed to get seeded template: %w", err)
		}
		return existing, nil
	}
	return s.store(ctx, actor, tmpl)
}

func (s *templateService) store(ctx context.Context, actor *models.Actor, tmpl *models.Template) (*models.Template, error) {
	exists, err := s.repo.Template().ExistsByFamilyVersion(ctx, nil, actor.TenantID, tmpl.Family, tmpl.Version)
	if err != nil {
		return nil, fmt.Errorf("failed to check template existence: %w", err)
	}
	if exists {
		return nil, fmt.Errorf("%w: %s %s", ErrTemplateExists, tmpl.Family, tmpl.Version)
	}

	tmpl.ID = s.newID()
	tmpl.TenantID = actor.TenantID
	tmpl.CreatedBy = actor.UserID

	if err := s.repo.Template().Create(ctx, nil, tmpl); err != nil {
		s.logger.Error("Failed to create template", "family", tmpl.Family, "version", tmpl.Version, "error", err)
		return nil, fmt.Errorf("failed to create template: %w", err)
	}

	s.logger.Info("Template created",
		"template_id", tmpl.ID,
		"tenant_id", tmpl.TenantID,
		"family", tmpl.Family,
		"version", tmpl.Version,
		"questions", len(tmpl.Questions))

	publishEvent(ctx, s.publisher, s.logger, events.TemplateCreated, tmpl.TenantID, events.TemplateCreatedEvent{
		TemplateID: tmpl.ID,
		Family:     tmpl.Family,
		Version:    tmpl.Version,
		Questions:  len(tmpl.Questions),
	})

	return tmpl, nil
}

func (s *templateService) List(ctx context.Context, actor *models.Actor, filters repositories.TemplateFilters) ([]*models.Template, int64, error) {
	if actor == nil || actor.TenantID == "" {
		return nil, 0, NewAuthorizationError(actor, "template", "", "", "list", "no tenant")
	}
	templates, total, err := s.repo.Template().List(ctx, nil, actor.TenantID, filters)
	if err != nil {
		return nil, 0, fmt.Errorf("failed to list templates: %w", err)
	}
	return templates, total, nil
}

func (s *templateService) GetByID(ctx context.Context, actor *models.Actor, id string) (*models.Template, error) {
	if actor == nil || actor.TenantID == "" {
		return nil, NewAuthorizationError(actor, "template", id, "", "read", "no tenant")
	}
	return loadTemplate(ctx, s.repo, actor.TenantID, id)
}
