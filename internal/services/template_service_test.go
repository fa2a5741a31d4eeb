package services

import (
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/SAP-F-2025/vendor-assessment-service/internal/catalog"
	"github.com/SAP-F-2025/vendor-assessment-service/internal/events"
	"github.com/SAP-F-2025/vendor-assessment-service/internal/models"
	"github.com/SAP-F-2025/vendor-assessment-service/internal/repositories"
	"github.com/SAP-F-2025/vendor-assessment-service/internal/validator"
)

func templateRequest() *validator.TemplateCreateRequest {
	return &validator.TemplateCreateRequest{
		Family:        "cloud-hosting",
		Name:          "Cloud Hosting Review",
		Version:       "2.0",
		PassThreshold: 60,
		Questions: []models.Question{
			{ID: "q2", Category: "Ops", Text: "Backups tested?", Type: models.QuestionYesNo, Required: true, Weight: 2, Order: 2},
			{ID: "q1", Category: "Ops", Text: "Uptime SLA", Type: models.QuestionScale, Required: true, Weight: 1, Order: 1,
				Scale: &models.ScaleParams{Min: 1, Max: 5}},
		},
	}
}

func TestTemplateService_Create(t *testing.T) {
	ts := newTestServices()
	ctx := context.Background()

	tmpl, err := ts.templates.Create(ctx, analyst("acme"), templateRequest())
	if err != nil {
		t.Fatalf("Create() error = %v", err)
	}
	if tmpl.TenantID != "acme" || tmpl.ScoringMethod != models.ScoringWeighted {
		t.Errorf("template = %+v", tmpl)
	}
	if tmpl.Questions[0].ID != "q1" {
		t.Errorf("questions not sorted by order: first = %s", tmpl.Questions[0].ID)
	}
	if n := len(ts.publisher.EventsOfType(events.TemplateCreated)); n != 1 {
		t.Errorf("TemplateCreated events = %d, want 1", n)
	}

	_, err = ts.templates.Create(ctx, analyst("acme"), templateRequest())
	if !errors.Is(err, ErrTemplateExists) {
		t.Errorf("duplicate: error = %v, want ErrTemplateExists", err)
	}

	// Another tenant may reuse the family and version.
	if _, err := ts.templates.Create(ctx, analyst("globex"), templateRequest()); err != nil {
		t.Errorf("other tenant: %v", err)
	}
}

func TestTemplateService_CreateInvalid(t *testing.T) {
	ts := newTestServices()

	req := templateRequest()
	req.Questions[0].Weight = 0
	req.Questions[1].Scale = nil

	_, err := ts.templates.Create(context.Background(), analyst("acme"), req)
	var verrs ValidationErrors
	if !errors.As(err, &verrs) {
		t.Fatalf("error = %v, want ValidationErrors", err)
	}
	if len(ts.repo.templates.rows) != 0 {
		t.Error("invalid template was stored")
	}
}

func TestTemplateService_ViewerRefused(t *testing.T) {
	ts := newTestServices()
	viewer := &models.Actor{UserID: "v", TenantID: "acme", Role: models.RoleViewer}

	var authErr *AuthorizationError
	if _, err := ts.templates.Create(context.Background(), viewer, templateRequest()); !errors.As(err, &authErr) {
		t.Errorf("Create: error = %v, want AuthorizationError", err)
	}
	if _, err := ts.templates.SeedDefault(context.Background(), viewer); !errors.As(err, &authErr) {
		t.Errorf("SeedDefault: error = %v, want AuthorizationError", err)
	}
}

func TestTemplateService_Import(t *testing.T) {
	ts := newTestServices()
	doc := `
family: saas
name: SaaS Review
version: "1"
pass_threshold: 50
questions:
  - id: s1
    category: Access
    text: SSO supported?
    type: yes_no
    required: true
    weight: 1
`
	tmpl, err := ts.templates.Import(context.Background(), analyst("acme"), catalog.FormatYAML, strings.NewReader(doc))
	if err != nil {
		t.Fatalf("Import() error = %v", err)
	}
	if tmpl.Family != "saas" || len(tmpl.Questions) != 1 || tmpl.ID == "" {
		t.Errorf("template = %+v", tmpl)
	}

	_, err = ts.templates.Import(context.Background(), analyst("acme"), "csv", strings.NewReader(doc))
	var verrs ValidationErrors
	if !errors.As(err, &verrs) || verrs[0].Field != "format" {
		t.Errorf("unsupported format: error = %v", err)
	}
}

func TestTemplateService_SeedDefaultIsIdempotent(t *testing.T) {
	ts := newTestServices()
	ctx := context.Background()

	first, err := ts.templates.SeedDefault(ctx, analyst("acme"))
	if err != nil {
		t.Fatalf("SeedDefault() error = %v", err)
	}
	if len(first.Questions) != 16 {
		t.Errorf("questions = %d, want 16", len(first.Questions))
	}

	second, err := ts.templates.SeedDefault(ctx, analyst("acme"))
	if err != nil {
		t.Fatalf("second SeedDefault() error = %v", err)
	}
	if second.ID != first.ID {
		t.Errorf("second seed id = %s, want %s", second.ID, first.ID)
	}

	list, total, err := ts.templates.List(ctx, analyst("acme"), repositories.TemplateFilters{})
	if err != nil || total != 1 || len(list) != 1 {
		t.Errorf("List() = %d items, total %d, err %v", len(list), total, err)
	}
}

func TestTemplateService_GetByID(t *testing.T) {
	ts := newTestServices()
	seedTemplate(ts.repo, "acme", "tmpl-1")

	if _, err := ts.templates.GetByID(context.Background(), analyst("acme"), "tmpl-1"); err != nil {
		t.Errorf("own tenant: %v", err)
	}
	if _, err := ts.templates.GetByID(context.Background(), analyst("globex"), "tmpl-1"); !errors.Is(err, ErrNotFound) {
		t.Errorf("other tenant: error = %v, want ErrNotFound", err)
	}
}
