package services

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"sort"
	"sync"
	"sync/atomic"
	"time"

	"gorm.io/gorm"

	"github.com/SAP-F-2025/vendor-assessment-service/internal/catalog"
	"github.com/SAP-F-2025/vendor-assessment-service/internal/events"
	"github.com/SAP-F-2025/vendor-assessment-service/internal/models"
	"github.com/SAP-F-2025/vendor-assessment-service/internal/repositories"
	"github.com/SAP-F-2025/vendor-assessment-service/internal/scoring"
	"github.com/SAP-F-2025/vendor-assessment-service/internal/validator"
)

var testNow = time.Date(2026, 3, 2, 10, 0, 0, 0, time.UTC)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

// ===== REPOSITORY =====

type fakeRepo struct {
	templates   *fakeTemplates
	assessments *fakeAssessments
	writer      *fakeLinkWriter
	selections  *fakeSelections
}

func newFakeRepo() *fakeRepo {
	assessments := &fakeAssessments{rows: make(map[string]*models.Assessment)}
	return &fakeRepo{
		templates:   &fakeTemplates{},
		assessments: assessments,
		writer:      &fakeLinkWriter{store: assessments, scopedOK: true, privilegedOK: true},
		selections:  &fakeSelections{rows: make(map[string]models.PendingSelection)},
	}
}

func (r *fakeRepo) Template() repositories.TemplateRepository     { return r.templates }
func (r *fakeRepo) Assessment() repositories.AssessmentRepository { return r.assessments }
func (r *fakeRepo) LinkWriter() repositories.LinkWriter           { return r.writer }
func (r *fakeRepo) PendingSelection() repositories.PendingSelectionRepository {
	return r.selections
}
func (r *fakeRepo) User() repositories.UserRepository { return nil }
func (r *fakeRepo) WithTransaction(ctx context.Context, fn func(tx *gorm.DB) error) error {
	return fn(nil)
}
func (r *fakeRepo) Ping(ctx context.Context) error { return nil }
func (r *fakeRepo) Close() error                   { return nil }

// ===== SELECTIONS =====

// fakeSelections never expires entries itself so the service's own expiry
// check is exercised.
type fakeSelections struct {
	mu   sync.Mutex
	rows map[string]models.PendingSelection
}

func (f *fakeSelections) Save(ctx context.Context, s *models.PendingSelection) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.rows[s.TenantID+"/"+s.VendorID] = *s
	return nil
}

func (f *fakeSelections) Get(ctx context.Context, tenantID, vendorID string) (*models.PendingSelection, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	s, ok := f.rows[tenantID+"/"+vendorID]
	if !ok {
		return nil, repositories.ErrNotFound
	}
	return &s, nil
}

func (f *fakeSelections) Delete(ctx context.Context, tenantID, vendorID string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	delete(f.rows, tenantID+"/"+vendorID)
	return nil
}

// ===== TEMPLATES =====

type fakeTemplates struct {
	mu   sync.Mutex
	rows []*models.Template
}

func (f *fakeTemplates) add(t *models.Template) *models.Template {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.rows = append(f.rows, t)
	return t
}

func (f *fakeTemplates) Create(ctx context.Context, tx *gorm.DB, t *models.Template) error {
	f.add(t)
	return nil
}

func (f *fakeTemplates) GetByID(ctx context.Context, tx *gorm.DB, tenantID, id string) (*models.Template, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, t := range f.rows {
		if t.TenantID == tenantID && t.ID == id {
			return t, nil
		}
	}
	return nil, fmt.Errorf("template %s: %w", id, repositories.ErrNotFound)
}

func (f *fakeTemplates) List(ctx context.Context, tx *gorm.DB, tenantID string, filters repositories.TemplateFilters) ([]*models.Template, int64, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []*models.Template
	for _, t := range f.rows {
		if t.TenantID == tenantID {
			out = append(out, t)
		}
	}
	return out, int64(len(out)), nil
}

func (f *fakeTemplates) GetFirstByFamily(ctx context.Context, tx *gorm.DB, tenantID, family string) (*models.Template, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, t := range f.rows {
		if t.TenantID == tenantID && t.Family == family {
			return t, nil
		}
	}
	return nil, repositories.ErrNotFound
}

func (f *fakeTemplates) GetFirst(ctx context.Context, tx *gorm.DB, tenantID string) (*models.Template, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, t := range f.rows {
		if t.TenantID == tenantID {
			return t, nil
		}
	}
	return nil, repositories.ErrNotFound
}

func (f *fakeTemplates) ExistsByFamilyVersion(ctx context.Context, tx *gorm.DB, tenantID, family, version string) (bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, t := range f.rows {
		if t.TenantID == tenantID && t.Family == family && t.Version == version {
			return true, nil
		}
	}
	return false, nil
}

// ===== ASSESSMENTS =====

type fakeAssessments struct {
	mu     sync.Mutex
	rows   map[string]*models.Assessment
	writes int

	// beforeSave runs ahead of every SaveProgress, used to interleave a
	// concurrent writer.
	beforeSave func()
}

func (f *fakeAssessments) put(a *models.Assessment) {
	f.mu.Lock()
	defer f.mu.Unlock()
	cp := *a
	cp.Responses = a.Responses.Clone()
	f.rows[a.ID] = &cp
}

func (f *fakeAssessments) get(id string) *models.Assessment {
	f.mu.Lock()
	defer f.mu.Unlock()
	a, ok := f.rows[id]
	if !ok {
		return nil
	}
	cp := *a
	cp.Responses = a.Responses.Clone()
	return &cp
}

func (f *fakeAssessments) Create(ctx context.Context, tx *gorm.DB, a *models.Assessment) error {
	if a.IsEphemeral() {
		return fmt.Errorf("refusing to store ephemeral id %q", a.ID)
	}
	if a.SourceDraftID != nil {
		if _, err := f.GetBySourceDraft(ctx, tx, a.TenantID, *a.SourceDraftID); err == nil {
			return fmt.Errorf("failed to create assessment: %w", repositories.ErrDuplicate)
		}
	}
	f.put(a)
	f.mu.Lock()
	f.writes++
	f.mu.Unlock()
	return nil
}

func (f *fakeAssessments) GetByID(ctx context.Context, tx *gorm.DB, id string) (*models.Assessment, error) {
	if a := f.get(id); a != nil {
		return a, nil
	}
	return nil, fmt.Errorf("failed to get assessment: %w", gorm.ErrRecordNotFound)
}

func (f *fakeAssessments) GetByToken(ctx context.Context, tx *gorm.DB, token string) (*models.Assessment, error) {
	f.mu.Lock()
	var id string
	for _, a := range f.rows {
		if a.LinkToken != nil && *a.LinkToken == token {
			id = a.ID
		}
	}
	f.mu.Unlock()
	if id == "" {
		return nil, gorm.ErrRecordNotFound
	}
	return f.get(id), nil
}

func (f *fakeAssessments) GetBySourceDraft(ctx context.Context, tx *gorm.DB, tenantID, draftID string) (*models.Assessment, error) {
	f.mu.Lock()
	var id string
	for _, a := range f.rows {
		if a.TenantID == tenantID && a.SourceDraftID != nil && *a.SourceDraftID == draftID {
			id = a.ID
		}
	}
	f.mu.Unlock()
	if id == "" {
		return nil, gorm.ErrRecordNotFound
	}
	return f.get(id), nil
}

func (f *fakeAssessments) List(ctx context.Context, tx *gorm.DB, tenantID string, filters repositories.AssessmentFilters) ([]*models.Assessment, int64, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []*models.Assessment
	for _, a := range f.rows {
		if a.TenantID == tenantID {
			cp := *a
			out = append(out, &cp)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, int64(len(out)), nil
}

func (f *fakeAssessments) UpdateStatus(ctx context.Context, tx *gorm.DB, id string, from, to models.AssessmentStatus) (int64, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	a, ok := f.rows[id]
	if !ok || a.Status != from {
		return 0, nil
	}
	a.Status = to
	f.writes++
	return 1, nil
}

func (f *fakeAssessments) SaveProgress(ctx context.Context, tx *gorm.DB, a *models.Assessment, from models.AssessmentStatus) (int64, error) {
	f.mu.Lock()
	hook := f.beforeSave
	f.mu.Unlock()
	if hook != nil {
		hook()
	}

	f.mu.Lock()
	defer f.mu.Unlock()
	row, ok := f.rows[a.ID]
	if !ok || row.Status != from || row.Revision != a.Revision {
		return 0, nil
	}
	row.Revision++
	a.Revision = row.Revision
	row.Responses = a.Responses.Clone()
	row.Status = a.Status
	row.OverallScore = a.OverallScore
	row.RiskLevel = a.RiskLevel
	row.CompletedAt = a.CompletedAt
	f.writes++
	return 1, nil
}

func (f *fakeAssessments) ListOverdue(ctx context.Context, tx *gorm.DB, now time.Time, limit int) ([]*models.Assessment, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []*models.Assessment
	for _, a := range f.rows {
		if !a.Status.IsTerminal() && a.IsOverdue(now) {
			cp := *a
			out = append(out, &cp)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func (f *fakeAssessments) MarkExpired(ctx context.Context, tx *gorm.DB, ids []string) (int64, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var n int64
	for _, id := range ids {
		if a, ok := f.rows[id]; ok && !a.Status.IsTerminal() {
			a.Status = models.StatusExpired
			n++
		}
	}
	return n, nil
}

// ===== LINK WRITER =====

// fakeLinkWriter applies the compare-and-swap the Postgres writer performs.
// scopedOK and privilegedOK switch each tier between applying the update and
// matching zero rows; the error fields take precedence.
type fakeLinkWriter struct {
	store *fakeAssessments

	mu            sync.Mutex
	scopedOK      bool
	privilegedOK  bool
	scopedErr     error
	privilegedErr error
	scopedCalls   int
	privCalls     int

	// beforePrivileged runs before the privileged write, used to simulate a
	// concurrent issuer.
	beforePrivileged func()
}

func (w *fakeLinkWriter) apply(u repositories.LinkUpdate) int64 {
	w.store.mu.Lock()
	defer w.store.mu.Unlock()
	a, ok := w.store.rows[u.AssessmentID]
	if !ok || a.TenantID != u.TenantID || a.Status.IsTerminal() {
		return 0
	}
	if !sameToken(a.LinkToken, u.PreviousToken) {
		return 0
	}
	token, issued, expires := u.Token, u.IssuedAt, u.ExpiresAt
	a.LinkToken = &token
	a.LinkIssuedAt = &issued
	a.LinkExpiresAt = &expires
	if a.Status == models.StatusDraft {
		a.Status = models.StatusSent
	}
	w.store.writes++
	return 1
}

func (w *fakeLinkWriter) TryScopedWrite(ctx context.Context, u repositories.LinkUpdate) (int64, error) {
	w.mu.Lock()
	w.scopedCalls++
	ok, err := w.scopedOK, w.scopedErr
	w.mu.Unlock()
	if err != nil {
		return 0, err
	}
	if !ok {
		return 0, nil
	}
	return w.apply(u), nil
}

func (w *fakeLinkWriter) PrivilegedWrite(ctx context.Context, u repositories.LinkUpdate) (int64, error) {
	w.mu.Lock()
	w.privCalls++
	ok, err, hook := w.privilegedOK, w.privilegedErr, w.beforePrivileged
	w.mu.Unlock()
	if hook != nil {
		hook()
	}
	if err != nil {
		return 0, err
	}
	if !ok {
		return 0, nil
	}
	return w.apply(u), nil
}

func (w *fakeLinkWriter) calls() (int, int) {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.scopedCalls, w.privCalls
}

// ===== FIXTURES =====

func analyst(tenant string) *models.Actor {
	return &models.Actor{UserID: "u-" + tenant, TenantID: tenant, Email: "analyst@" + tenant, Role: models.RoleAnalyst}
}

func reviewer(tenant string) *models.Actor {
	return &models.Actor{UserID: "r-" + tenant, TenantID: tenant, Role: models.RoleReviewer}
}

func seedTemplate(repo *fakeRepo, tenant, id string) *models.Template {
	tmpl := catalog.Default()
	tmpl.ID = id
	tmpl.TenantID = tenant
	return repo.templates.add(tmpl)
}

func seedAssessment(repo *fakeRepo, tenant, id string, status models.AssessmentStatus, templateID string) *models.Assessment {
	a := &models.Assessment{
		ID:         id,
		TenantID:   tenant,
		VendorID:   "vendor-1",
		TemplateID: templateID,
		Status:     status,
		Priority:   models.PriorityMedium,
		Responses:  models.ResponseSet{},
		CreatedAt:  testNow.Add(-time.Hour),
	}
	repo.assessments.put(a)
	return a
}

func withLink(repo *fakeRepo, id, token string, expires time.Time) {
	repo.assessments.mu.Lock()
	defer repo.assessments.mu.Unlock()
	a := repo.assessments.rows[id]
	issued := expires.Add(-DefaultLinkValidity)
	a.LinkToken = &token
	a.LinkIssuedAt = &issued
	a.LinkExpiresAt = &expires
}

type testServices struct {
	repo      *fakeRepo
	publisher *events.MockEventPublisher
	lifecycle *lifecycleService
	link      *linkService
	response  *responseService
	templates *templateService
}

func newTestServices() *testServices {
	repo := newFakeRepo()
	logger := testLogger()
	publisher := events.NewMockEventPublisher(logger)
	v := validator.New()
	engine := scoring.NewEngine()
	cfg := DefaultServiceManagerConfig()
	cfg.PublicOrigin = "https://vendors.example.com"

	clock := func() time.Time { return testNow }
	ids := 0
	newID := func() string {
		ids++
		return fmt.Sprintf("00000000-0000-0000-0000-%012d", ids)
	}

	lifecycle := NewLifecycleService(repo, logger, v, publisher, engine, cfg).(*lifecycleService)
	lifecycle.now = clock
	lifecycle.newID = newID

	var tokens atomic.Int64
	link := NewLinkService(repo, logger, publisher, lifecycle, cfg,
		WithClock(clock),
		WithTokenGenerator(func(id string, now time.Time) (string, error) {
			return fmt.Sprintf("token-%d", tokens.Add(1)), nil
		}),
	).(*linkService)

	response := NewResponseService(repo, logger, v, publisher, engine).(*responseService)
	response.now = clock

	templates := NewTemplateService(repo, logger, v, publisher).(*templateService)
	templates.newID = newID

	return &testServices{
		repo:      repo,
		publisher: publisher,
		lifecycle: lifecycle,
		link:      link,
		response:  response,
		templates: templates,
	}
}
