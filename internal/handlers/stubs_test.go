package handlers

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/casdoor/casdoor-go-sdk/casdoorsdk"
	"github.com/gin-gonic/gin"

	"github.com/SAP-F-2025/vendor-assessment-service/internal/models"
	"github.com/SAP-F-2025/vendor-assessment-service/internal/repositories"
	"github.com/SAP-F-2025/vendor-assessment-service/internal/scoring"
	"github.com/SAP-F-2025/vendor-assessment-service/internal/services"
	"github.com/SAP-F-2025/vendor-assessment-service/internal/utils"
	"github.com/SAP-F-2025/vendor-assessment-service/internal/validator"
)

func init() {
	gin.SetMode(gin.TestMode)
}

func testLogger() utils.Logger {
	return utils.NewSlogLogger(slog.New(slog.NewTextHandler(io.Discard, nil)))
}

// ===== TOKEN PARSER =====

// stubParser accepts "Bearer <user>@<org>:<type>" style tokens.
type stubParser struct{}

func (stubParser) ParseJwtToken(token string) (*casdoorsdk.Claims, error) {
	user, rest, ok := strings.Cut(token, "@")
	if !ok {
		return nil, errors.New("malformed token")
	}
	org, userType, _ := strings.Cut(rest, ":")
	return &casdoorsdk.Claims{User: casdoorsdk.User{
		Id:    user,
		Owner: org,
		Type:  userType,
		Email: user + "@example.com",
	}}, nil
}

type stubUsers struct {
	actor *models.Actor
	err   error
}

func (s *stubUsers) GetByID(ctx context.Context, id string) (*models.Actor, error) {
	return s.actor, s.err
}

func (s *stubUsers) GetByEmail(ctx context.Context, email string) (*models.Actor, error) {
	return s.actor, s.err
}

func (s *stubUsers) ExistsByID(ctx context.Context, id string) (bool, error) {
	return s.actor != nil, s.err
}

// ===== SERVICES =====

type stubLifecycle struct {
	services.LifecycleService
	assessment *models.Assessment
	details    *services.AssessmentDetails
	completion *services.CompletionResult
	err        error
	calls      []string
}

func (s *stubLifecycle) NewDraft(ctx context.Context, actor *models.Actor, req *validator.DraftRequest) (*models.Assessment, error) {
	s.calls = append(s.calls, "NewDraft")
	return s.assessment, s.err
}

func (s *stubLifecycle) DraftFromSelection(ctx context.Context, actor *models.Actor, vendorID string) (*models.Assessment, error) {
	s.calls = append(s.calls, "DraftFromSelection")
	return s.assessment, s.err
}

func (s *stubLifecycle) GetByID(ctx context.Context, id string, actor *models.Actor) (*models.Assessment, error) {
	s.calls = append(s.calls, "GetByID")
	return s.assessment, s.err
}

func (s *stubLifecycle) GetDetails(ctx context.Context, id string, actor *models.Actor) (*services.AssessmentDetails, error) {
	s.calls = append(s.calls, "GetDetails")
	return s.details, s.err
}

func (s *stubLifecycle) List(ctx context.Context, actor *models.Actor, filters repositories.AssessmentFilters) ([]*models.Assessment, int64, error) {
	s.calls = append(s.calls, "List")
	if s.assessment == nil {
		return nil, 0, s.err
	}
	return []*models.Assessment{s.assessment}, 1, s.err
}

func (s *stubLifecycle) Transition(ctx context.Context, id string, actor *models.Actor, to models.AssessmentStatus) (*models.Assessment, error) {
	s.calls = append(s.calls, "Transition:"+string(to))
	return s.assessment, s.err
}

func (s *stubLifecycle) Complete(ctx context.Context, id string, actor *models.Actor) (*services.CompletionResult, error) {
	s.calls = append(s.calls, "Complete")
	return s.completion, s.err
}

func (s *stubLifecycle) ExpireOverdue(ctx context.Context, now time.Time) (int, error) {
	s.calls = append(s.calls, "ExpireOverdue")
	return 3, s.err
}

type stubLinks struct {
	link     *models.PublicLink
	err      error
	received *models.Assessment
}

func (s *stubLinks) IssueOrRefreshLink(ctx context.Context, assessment *models.Assessment, actor *models.Actor) (*models.PublicLink, error) {
	s.received = assessment
	return s.link, s.err
}

func (s *stubLinks) URLFor(token string) string {
	return "https://vendors.example.com" + services.PublicLinkPath + token
}

type stubResponses struct {
	services.ResponseService
	view       *services.RespondentView
	submission *services.SubmissionResult
	completion *services.CompletionResult
	err        error
	tokens     []string
}

func (s *stubResponses) Resolve(ctx context.Context, token string) (*services.RespondentView, error) {
	s.tokens = append(s.tokens, token)
	return s.view, s.err
}

func (s *stubResponses) SubmitAnswers(ctx context.Context, token string, req *validator.SubmitAnswersRequest) (*services.SubmissionResult, error) {
	s.tokens = append(s.tokens, token)
	return s.submission, s.err
}

func (s *stubResponses) ComputeScore(ctx context.Context, token string) (*scoring.Result, error) {
	s.tokens = append(s.tokens, token)
	if s.err != nil {
		return nil, s.err
	}
	return &scoring.Result{Score: 72}, nil
}

func (s *stubResponses) ComputeStats(ctx context.Context, token string) (*scoring.Stats, error) {
	s.tokens = append(s.tokens, token)
	if s.err != nil {
		return nil, s.err
	}
	return &scoring.Stats{Answered: 13, Total: 16}, nil
}

func (s *stubResponses) Finalize(ctx context.Context, token string) (*services.CompletionResult, error) {
	s.tokens = append(s.tokens, token)
	return s.completion, s.err
}

type stubTemplates struct {
	services.TemplateService
	template *models.Template
	err      error
}

func (s *stubTemplates) Create(ctx context.Context, actor *models.Actor, req *validator.TemplateCreateRequest) (*models.Template, error) {
	return s.template, s.err
}

func (s *stubTemplates) List(ctx context.Context, actor *models.Actor, filters repositories.TemplateFilters) ([]*models.Template, int64, error) {
	return []*models.Template{s.template}, 1, s.err
}

type stubManager struct {
	lifecycle *stubLifecycle
	links     *stubLinks
	responses *stubResponses
	templates *stubTemplates
	healthErr error
}

func (m *stubManager) Lifecycle() services.LifecycleService { return m.lifecycle }
func (m *stubManager) Link() services.LinkService           { return m.links }
func (m *stubManager) Response() services.ResponseService   { return m.responses }
func (m *stubManager) Template() services.TemplateService   { return m.templates }

func (m *stubManager) Initialize(ctx context.Context) error  { return nil }
func (m *stubManager) HealthCheck(ctx context.Context) error { return m.healthErr }
func (m *stubManager) Shutdown(ctx context.Context) error    { return nil }

// ===== ROUTER =====

func newTestRouter(t *testing.T) (*gin.Engine, *stubManager) {
	t.Helper()
	manager := &stubManager{
		lifecycle: &stubLifecycle{},
		links:     &stubLinks{},
		responses: &stubResponses{},
		templates: &stubTemplates{template: &models.Template{ID: "tmpl-1", TenantID: "acme"}},
	}
	logger := testLogger()
	auth := NewCasdoorAuthMiddlewareWithParser(stubParser{}, nil, logger)

	router := gin.New()
	SetupMiddleware(router, logger)
	NewHandlerManager(manager, validator.New(), logger, auth).SetupRoutes(router)
	return router, manager
}

func doRequest(router http.Handler, method, path, token, body string) *httptest.ResponseRecorder {
	var reader io.Reader
	if body != "" {
		reader = strings.NewReader(body)
	}
	req := httptest.NewRequest(method, path, reader)
	if body != "" {
		req.Header.Set("Content-Type", "application/json")
	}
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)
	return w
}
