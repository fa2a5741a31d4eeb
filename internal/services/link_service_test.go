package services

import (
	"context"
	"encoding/base64"
	"errors"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/SAP-F-2025/vendor-assessment-service/internal/events"
	"github.com/SAP-F-2025/vendor-assessment-service/internal/models"
	"github.com/SAP-F-2025/vendor-assessment-service/internal/repositories"
	"github.com/SAP-F-2025/vendor-assessment-service/internal/validator"
)

func TestGenerateToken(t *testing.T) {
	seen := make(map[string]bool)
	for i := 0; i < 50; i++ {
		token, err := GenerateToken("a-1", testNow)
		if err != nil {
			t.Fatalf("GenerateToken() error = %v", err)
		}
		if len(token) != 43 {
			t.Errorf("len(token) = %d, want 43", len(token))
		}
		if strings.ContainsAny(token, "+/=") {
			t.Errorf("token %q is not unpadded base64url", token)
		}
		if _, err := base64.RawURLEncoding.DecodeString(token); err != nil {
			t.Errorf("token %q does not decode: %v", token, err)
		}
		if seen[token] {
			t.Fatalf("token %q generated twice for the same id and instant", token)
		}
		seen[token] = true
	}
}

func TestIssueOrRefreshLink_IdempotentWhileValid(t *testing.T) {
	ts := newTestServices()
	ctx := context.Background()
	seedTemplate(ts.repo, "acme", "tmpl-1")
	a := seedAssessment(ts.repo, "acme", "a-1", models.StatusDraft, "tmpl-1")

	first, err := ts.link.IssueOrRefreshLink(ctx, a, analyst("acme"))
	if err != nil {
		t.Fatalf("first issue: %v", err)
	}
	if first.Token != "token-1" {
		t.Errorf("token = %q, want token-1", first.Token)
	}
	if want := "https://vendors.example.com/vendor-assessment/token-1"; first.URL != want {
		t.Errorf("URL = %q, want %q", first.URL, want)
	}
	if !first.ExpiresAt.Equal(testNow.Add(30 * 24 * time.Hour)) {
		t.Errorf("ExpiresAt = %v, want issue time + 30 days", first.ExpiresAt)
	}

	stored := ts.repo.assessments.get("a-1")
	if stored.Status != models.StatusSent {
		t.Errorf("status = %s, want sent", stored.Status)
	}

	second, err := ts.link.IssueOrRefreshLink(ctx, stored, analyst("acme"))
	if err != nil {
		t.Fatalf("second issue: %v", err)
	}
	if second.Token != first.Token {
		t.Errorf("second token = %q, want %q", second.Token, first.Token)
	}

	scoped, privileged := ts.repo.writer.calls()
	if scoped != 1 || privileged != 0 {
		t.Errorf("writer calls = (%d, %d), want (1, 0)", scoped, privileged)
	}
	if n := len(ts.publisher.EventsOfType(events.LinkIssued)); n != 1 {
		t.Errorf("LinkIssued events = %d, want 1", n)
	}
}

func TestIssueOrRefreshLink_FreshTokenAfterExpiry(t *testing.T) {
	ts := newTestServices()
	ctx := context.Background()
	seedTemplate(ts.repo, "acme", "tmpl-1")
	a := seedAssessment(ts.repo, "acme", "a-1", models.StatusSent, "tmpl-1")
	withLink(ts.repo, "a-1", "stale", testNow.Add(-time.Minute))

	link, err := ts.link.IssueOrRefreshLink(ctx, a, analyst("acme"))
	if err != nil {
		t.Fatalf("IssueOrRefreshLink() error = %v", err)
	}
	if link.Token == "stale" {
		t.Fatal("expired token was returned")
	}
	stored := ts.repo.assessments.get("a-1")
	if stored.LinkToken == nil || *stored.LinkToken != link.Token {
		t.Errorf("stored token = %v, want %q", stored.LinkToken, link.Token)
	}
	if stored.Status != models.StatusSent {
		t.Errorf("status = %s, want sent", stored.Status)
	}
}

func TestIssueOrRefreshLink_CrossTenant(t *testing.T) {
	tests := []struct {
		name   string
		claims string
	}{
		// The caller passes the assessment as loaded.
		{name: "foreign assessment", claims: "acme"},
		// The caller claims its own tenant for a stored assessment owned by another.
		{name: "forged tenant", claims: "globex"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			ts := newTestServices()
			seedTemplate(ts.repo, "acme", "tmpl-1")
			stored := seedAssessment(ts.repo, "acme", "a-1", models.StatusDraft, "tmpl-1")
			stored.TenantID = tt.claims

			_, err := ts.link.IssueOrRefreshLink(context.Background(), stored, analyst("globex"))

			var authErr *AuthorizationError
			if !errors.As(err, &authErr) {
				t.Fatalf("error = %v, want AuthorizationError", err)
			}
			if authErr.ActorTenant != "globex" {
				t.Errorf("ActorTenant = %q, want globex", authErr.ActorTenant)
			}
			scoped, privileged := ts.repo.writer.calls()
			if scoped+privileged != 0 || ts.repo.assessments.writes != 0 {
				t.Errorf("writes happened: scoped=%d privileged=%d other=%d", scoped, privileged, ts.repo.assessments.writes)
			}
			if got := ts.repo.assessments.get("a-1"); got.LinkToken != nil || got.Status != models.StatusDraft {
				t.Errorf("assessment mutated: %+v", got)
			}
		})
	}
}

func TestIssueOrRefreshLink_ViewerRefused(t *testing.T) {
	ts := newTestServices()
	seedTemplate(ts.repo, "acme", "tmpl-1")
	a := seedAssessment(ts.repo, "acme", "a-1", models.StatusDraft, "tmpl-1")
	viewer := &models.Actor{UserID: "v", TenantID: "acme", Role: models.RoleViewer}

	_, err := ts.link.IssueOrRefreshLink(context.Background(), a, viewer)

	var authErr *AuthorizationError
	if !errors.As(err, &authErr) {
		t.Fatalf("error = %v, want AuthorizationError", err)
	}
}

func TestIssueOrRefreshLink_TerminalRefused(t *testing.T) {
	for _, status := range []models.AssessmentStatus{models.StatusApproved, models.StatusRejected, models.StatusExpired} {
		t.Run(string(status), func(t *testing.T) {
			ts := newTestServices()
			seedTemplate(ts.repo, "acme", "tmpl-1")
			a := seedAssessment(ts.repo, "acme", "a-1", status, "tmpl-1")

			_, err := ts.link.IssueOrRefreshLink(context.Background(), a, analyst("acme"))

			var verrs validator.ValidationErrors
			if !errors.As(err, &verrs) {
				t.Fatalf("error = %v, want ValidationErrors", err)
			}
			if scoped, _ := ts.repo.writer.calls(); scoped != 0 {
				t.Errorf("scoped writes = %d, want 0", scoped)
			}
		})
	}
}

func TestIssueOrRefreshLink_MaterializesEphemeral(t *testing.T) {
	ts := newTestServices()
	ctx := context.Background()
	seedTemplate(ts.repo, "acme", "tmpl-1")

	draft, err := ts.lifecycle.NewDraft(ctx, analyst("acme"), &validator.DraftRequest{
		VendorID:    "vendor-9",
		TemplateRef: validator.TemplateRef{TemplateID: "tmpl-1"},
	})
	if err != nil {
		t.Fatalf("NewDraft() error = %v", err)
	}
	if !draft.IsEphemeral() {
		t.Fatalf("draft id %q is not ephemeral", draft.ID)
	}

	link, err := ts.link.IssueOrRefreshLink(ctx, draft, analyst("acme"))
	if err != nil {
		t.Fatalf("IssueOrRefreshLink() error = %v", err)
	}
	if strings.HasPrefix(link.AssessmentID, models.EphemeralIDPrefix) {
		t.Errorf("link points at ephemeral id %q", link.AssessmentID)
	}
	stored := ts.repo.assessments.get(link.AssessmentID)
	if stored == nil {
		t.Fatal("materialized assessment not stored")
	}
	if stored.Status != models.StatusSent || stored.VendorID != "vendor-9" {
		t.Errorf("stored = %+v", stored)
	}
	if n := len(ts.publisher.EventsOfType(events.AssessmentMaterialized)); n != 1 {
		t.Errorf("AssessmentMaterialized events = %d, want 1", n)
	}
}

func TestIssueOrRefreshLink_SameDraftTwice(t *testing.T) {
	ts := newTestServices()
	ctx := context.Background()
	seedTemplate(ts.repo, "acme", "tmpl-1")

	draft, err := ts.lifecycle.NewDraft(ctx, analyst("acme"), &validator.DraftRequest{VendorID: "vendor-9"})
	if err != nil {
		t.Fatalf("NewDraft() error = %v", err)
	}
	resubmitted := *draft

	first, err := ts.link.IssueOrRefreshLink(ctx, draft, analyst("acme"))
	if err != nil {
		t.Fatalf("first issue: %v", err)
	}
	if draft.ID != first.AssessmentID {
		t.Errorf("draft id = %q, want %q", draft.ID, first.AssessmentID)
	}
	if draft.Status != models.StatusSent || draft.LinkToken == nil || *draft.LinkToken != first.Token {
		t.Errorf("draft not updated: status=%s token=%v", draft.Status, draft.LinkToken)
	}

	second, err := ts.link.IssueOrRefreshLink(ctx, draft, analyst("acme"))
	if err != nil {
		t.Fatalf("second issue: %v", err)
	}
	third, err := ts.link.IssueOrRefreshLink(ctx, &resubmitted, analyst("acme"))
	if err != nil {
		t.Fatalf("resubmitted draft: %v", err)
	}
	for _, link := range []*models.PublicLink{second, third} {
		if link.Token != first.Token || link.AssessmentID != first.AssessmentID {
			t.Errorf("link = %+v, want token %q on %q", link, first.Token, first.AssessmentID)
		}
	}

	rows, total, err := ts.repo.assessments.List(ctx, nil, "acme", repositories.AssessmentFilters{})
	if err != nil {
		t.Fatalf("List() error = %v", err)
	}
	if total != 1 || rows[0].ID != first.AssessmentID {
		t.Errorf("stored assessments = %d, want exactly %s", total, first.AssessmentID)
	}
	if n := len(ts.publisher.EventsOfType(events.LinkIssued)); n != 1 {
		t.Errorf("LinkIssued events = %d, want 1", n)
	}
}

func TestIssueOrRefreshLink_MaterializeFailureIsFatal(t *testing.T) {
	ts := newTestServices()
	draft := &models.Assessment{
		ID:             models.EphemeralIDPrefix + "x",
		TenantID:       "acme",
		VendorID:       "vendor-1",
		TemplateFamily: "missing",
		Status:         models.StatusDraft,
	}

	_, err := ts.link.IssueOrRefreshLink(context.Background(), draft, analyst("acme"))

	var nf *NotFoundError
	if !errors.As(err, &nf) || !nf.Fatal || nf.Resource != "template" {
		t.Fatalf("error = %v, want fatal template NotFoundError", err)
	}
	if !errors.Is(err, ErrNotFound) {
		t.Error("errors.Is(err, ErrNotFound) = false")
	}
	if scoped, privileged := ts.repo.writer.calls(); scoped+privileged != 0 {
		t.Errorf("writer called %d times", scoped+privileged)
	}
}

func TestIssueOrRefreshLink_Fallback(t *testing.T) {
	tests := []struct {
		name      string
		scopedOK  bool
		scopedErr error
	}{
		{name: "zero rows", scopedOK: false},
		{name: "permission denied", scopedErr: errors.Join(repositories.ErrPermissionDenied, errors.New("ERROR: new row violates row-level security policy (SQLSTATE 42501)"))},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			ts := newTestServices()
			seedTemplate(ts.repo, "acme", "tmpl-1")
			a := seedAssessment(ts.repo, "acme", "a-1", models.StatusDraft, "tmpl-1")
			ts.repo.writer.scopedOK = tt.scopedOK
			ts.repo.writer.scopedErr = tt.scopedErr

			link, err := ts.link.IssueOrRefreshLink(context.Background(), a, analyst("acme"))
			if err != nil {
				t.Fatalf("IssueOrRefreshLink() error = %v", err)
			}

			scoped, privileged := ts.repo.writer.calls()
			if scoped != 1 || privileged != 1 {
				t.Errorf("writer calls = (%d, %d), want (1, 1)", scoped, privileged)
			}
			if got := ts.repo.assessments.get("a-1"); got.LinkToken == nil || *got.LinkToken != link.Token {
				t.Errorf("stored token = %v, want %q", got.LinkToken, link.Token)
			}
			if n := len(ts.publisher.EventsOfType(events.LinkFallbackUsed)); n != 1 {
				t.Errorf("LinkFallbackUsed events = %d, want 1", n)
			}
			issued := ts.publisher.EventsOfType(events.LinkIssued)
			if len(issued) != 1 {
				t.Fatalf("LinkIssued events = %d, want 1", len(issued))
			}
			if data, ok := issued[0].Data.(events.LinkIssuedEvent); !ok || !data.Privileged {
				t.Errorf("LinkIssued data = %#v, want privileged", issued[0].Data)
			}
		})
	}
}

func TestIssueOrRefreshLink_TransportErrorDoesNotFallBack(t *testing.T) {
	ts := newTestServices()
	seedTemplate(ts.repo, "acme", "tmpl-1")
	a := seedAssessment(ts.repo, "acme", "a-1", models.StatusDraft, "tmpl-1")
	transport := errors.New("read tcp: connection reset by peer")
	ts.repo.writer.scopedErr = transport

	_, err := ts.link.IssueOrRefreshLink(context.Background(), a, analyst("acme"))

	if !errors.Is(err, transport) {
		t.Fatalf("error = %v, want wrapped transport error", err)
	}
	var exhausted *FallbackExhausted
	if errors.As(err, &exhausted) {
		t.Error("transport error reported as FallbackExhausted")
	}
	if _, privileged := ts.repo.writer.calls(); privileged != 0 {
		t.Errorf("privileged writes = %d, want 0", privileged)
	}
}

func TestIssueOrRefreshLink_FallbackExhausted(t *testing.T) {
	tests := []struct {
		name          string
		privilegedErr error
		wantConflict  bool
	}{
		{name: "privileged error", privilegedErr: errors.New("service role connection refused")},
		{name: "privileged zero rows", wantConflict: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			ts := newTestServices()
			seedTemplate(ts.repo, "acme", "tmpl-1")
			a := seedAssessment(ts.repo, "acme", "a-1", models.StatusDraft, "tmpl-1")
			ts.repo.writer.scopedOK = false
			ts.repo.writer.privilegedOK = false
			ts.repo.writer.privilegedErr = tt.privilegedErr

			link, err := ts.link.IssueOrRefreshLink(context.Background(), a, analyst("acme"))

			if link != nil {
				t.Errorf("link = %+v, want nil", link)
			}
			var exhausted *FallbackExhausted
			if !errors.As(err, &exhausted) {
				t.Fatalf("error = %v, want FallbackExhausted", err)
			}
			if exhausted.AssessmentID != "a-1" || exhausted.TenantID != "acme" {
				t.Errorf("exhausted = %+v", exhausted)
			}
			var conflict *PersistenceConflict
			if got := errors.As(err, &conflict); got != tt.wantConflict {
				t.Errorf("PersistenceConflict cause = %v, want %v", got, tt.wantConflict)
			}
			if _, privileged := ts.repo.writer.calls(); privileged != 1 {
				t.Errorf("privileged writes = %d, want exactly 1", privileged)
			}

			alerts := ts.publisher.EventsOfType(events.LinkFallbackExhausted)
			if len(alerts) != 1 {
				t.Fatalf("LinkFallbackExhausted events = %d, want 1", len(alerts))
			}
			if !alerts[0].Type.IsOperatorAlert() {
				t.Error("exhaustion event is not routed to operators")
			}
			if got := ts.repo.assessments.get("a-1"); got.LinkToken != nil {
				t.Errorf("token stored despite failure: %q", *got.LinkToken)
			}
		})
	}
}

func TestIssueOrRefreshLink_ConcurrentWinnerIsReturned(t *testing.T) {
	ts := newTestServices()
	seedTemplate(ts.repo, "acme", "tmpl-1")
	a := seedAssessment(ts.repo, "acme", "a-1", models.StatusDraft, "tmpl-1")

	// The scoped write loses because another issuer stores its token first.
	ts.repo.writer.scopedOK = false
	ts.repo.writer.beforePrivileged = func() {
		ts.repo.writer.apply(repositories.LinkUpdate{
			AssessmentID: "a-1",
			TenantID:     "acme",
			Token:        "winner",
			IssuedAt:     testNow,
			ExpiresAt:    testNow.Add(DefaultLinkValidity),
		})
	}

	link, err := ts.link.IssueOrRefreshLink(context.Background(), a, analyst("acme"))
	if err != nil {
		t.Fatalf("IssueOrRefreshLink() error = %v", err)
	}
	if link.Token != "winner" {
		t.Errorf("token = %q, want the concurrently stored winner", link.Token)
	}
	if n := len(ts.publisher.EventsOfType(events.LinkFallbackExhausted)); n != 0 {
		t.Errorf("LinkFallbackExhausted events = %d, want 0", n)
	}
}

func TestIssueOrRefreshLink_ConcurrentIssuersConverge(t *testing.T) {
	ts := newTestServices()
	seedTemplate(ts.repo, "acme", "tmpl-1")
	seedAssessment(ts.repo, "acme", "a-1", models.StatusDraft, "tmpl-1")

	const issuers = 8
	tokens := make([]string, issuers)
	errs := make([]error, issuers)

	var wg sync.WaitGroup
	for i := 0; i < issuers; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			a := ts.repo.assessments.get("a-1")
			link, err := ts.link.IssueOrRefreshLink(context.Background(), a, analyst("acme"))
			errs[i] = err
			if link != nil {
				tokens[i] = link.Token
			}
		}(i)
	}
	wg.Wait()

	stored := ts.repo.assessments.get("a-1")
	for i := range tokens {
		if errs[i] != nil {
			t.Fatalf("issuer %d: %v", i, errs[i])
		}
		if tokens[i] != *stored.LinkToken {
			t.Errorf("issuer %d got %q, stored %q", i, tokens[i], *stored.LinkToken)
		}
	}
}
