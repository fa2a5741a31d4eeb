package services

import (
	"context"
	"crypto/rand"
	"crypto/sha256"
	"encoding/base64"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/SAP-F-2025/vendor-assessment-service/internal/events"
	"github.com/SAP-F-2025/vendor-assessment-service/internal/models"
	"github.com/SAP-F-2025/vendor-assessment-service/internal/repositories"
)

// PublicLinkPath is the route prefix respondents open.
const PublicLinkPath = "/vendor-assessment/"

// TokenGenerator returns a fresh bearer token for an assessment.
type TokenGenerator func(assessmentID string, now time.Time) (string, error)

// GenerateToken hashes the assessment id, the issue time and 16 random bytes
// into an unpadded base64url string.
func GenerateToken(assessmentID string, now time.Time) (string, error) {
	salt := make([]byte, 16)
	if _, err := rand.Read(salt); err != nil {
		return "", fmt.Errorf("failed to read token salt: %w", err)
	}
	h := sha256.New()
	fmt.Fprintf(h, "%s|%d|", assessmentID, now.UnixNano())
	h.Write(salt)
	return base64.RawURLEncoding.EncodeToString(h.Sum(nil)), nil
}

type LinkOption func(*linkService)

func WithClock(now func() time.Time) LinkOption {
	return func(s *linkService) {
		s.now = now
	}
}

func WithTokenGenerator(gen TokenGenerator) LinkOption {
	return func(s *linkService) {
		s.generateToken = gen
	}
}

type linkService struct {
	repo      repositories.Repository
	logger    *slog.Logger
	publisher events.EventPublisher
	lifecycle LifecycleService

	origin   string
	validity time.Duration

	now           func() time.Time
	generateToken TokenGenerator
}

func NewLinkService(repo repositories.Repository, logger *slog.Logger, publisher events.EventPublisher, lifecycle LifecycleService, config ServiceManagerConfig, opts ...LinkOption) LinkService {
	s := &linkService{
		repo:          repo,
		logger:        logger,
		publisher:     publisher,
		lifecycle:     lifecycle,
		origin:        config.PublicOrigin,
		validity:      config.LinkValidity,
		now:           func() time.Time { return time.Now().UTC() },
		generateToken: GenerateToken,
	}
	if s.validity <= 0 {
		s.validity = DefaultLinkValidity
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

func (s *linkService) URLFor(token string) string {
	return publicURL(s.origin, token)
}

// IssueOrRefreshLink returns the assessment's public link, issuing a new one
// when none is stored or the stored one has expired. Ephemeral assessments
// are materialized first. The write goes through the tenant scoped path and
// falls back to the privileged path exactly once when that matches no rows
// or is rejected by row level security. On success the caller's assessment
// holds the stored id, status and link.
func (s *linkService) IssueOrRefreshLink(ctx context.Context, assessment *models.Assessment, actor *models.Actor) (*models.PublicLink, error) {
	link, current, err := s.issueOrRefresh(ctx, assessment, actor)
	if err != nil {
		return nil, err
	}
	assessment.Adopt(current)
	return link, nil
}

func (s *linkService) issueOrRefresh(ctx context.Context, assessment *models.Assessment, actor *models.Actor) (*models.PublicLink, *models.Assessment, error) {
	if assessment == nil {
		return nil, nil, newValidationError("assessment", "required", "assessment is required", nil)
	}
	if err := checkTenant(actor, "assessment", assessment.ID, assessment.TenantID, "issue_link"); err != nil {
		s.logger.Warn("Link issuance refused",
			"assessment_id", assessment.ID,
			"user_id", actorID(actor),
			"error", err)
		return nil, nil, err
	}
	if err := checkWriter(actor, "assessment", assessment.ID, "issue_link"); err != nil {
		return nil, nil, err
	}

	current, err := s.current(ctx, assessment, actor)
	if err != nil {
		return nil, nil, err
	}

	if current.Status.IsTerminal() {
		return nil, nil, newValidationError("status", "terminal_status",
			fmt.Sprintf("cannot issue a link for a %s assessment", current.Status), current.Status)
	}

	now := s.now()
	if current.HasValidLink(now) {
		return linkFromAssessment(current, s.origin), current, nil
	}

	token, err := s.generateToken(current.ID, now)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to generate link token: %w", err)
	}
	update := repositories.LinkUpdate{
		AssessmentID:  current.ID,
		TenantID:      current.TenantID,
		PreviousToken: current.LinkToken,
		Token:         token,
		IssuedAt:      now,
		ExpiresAt:     now.Add(s.validity),
	}

	writer := s.repo.LinkWriter()

	rows, err := writer.TryScopedWrite(ctx, update)
	if err != nil && !errors.Is(err, repositories.ErrPermissionDenied) {
		s.logger.Error("Scoped link write failed", "assessment_id", current.ID, "error", err)
		return nil, nil, fmt.Errorf("failed to write public link: %w", err)
	}
	if err == nil && rows > 0 {
		return s.issued(ctx, current, actor, update, false), current, nil
	}

	reason := "scoped write matched no rows"
	if err != nil {
		reason = "scoped write rejected by row level security"
	}
	s.logger.Warn("Falling back to privileged link write",
		"assessment_id", current.ID,
		"tenant_id", current.TenantID,
		"user_id", actor.UserID,
		"reason", reason)
	publishEvent(ctx, s.publisher, s.logger, events.LinkFallbackUsed, current.TenantID, events.FallbackUsedEvent{
		AssessmentID: current.ID,
		ActorID:      actor.UserID,
		Reason:       reason,
	})

	rows, err = writer.PrivilegedWrite(ctx, update)
	if err != nil {
		return nil, nil, s.exhausted(ctx, current, actor, err)
	}
	if rows > 0 {
		return s.issued(ctx, current, actor, update, true), current, nil
	}

	// A concurrent issuer may have replaced the token we observed.
	stored, rerr := s.repo.Assessment().GetByID(ctx, nil, current.ID)
	if rerr == nil && stored.HasValidLink(now) && !sameToken(stored.LinkToken, current.LinkToken) {
		s.logger.Info("Concurrent link issuance detected, returning stored link", "assessment_id", current.ID)
		return linkFromAssessment(stored, s.origin), stored, nil
	}

	return nil, nil, s.exhausted(ctx, current, actor, &PersistenceConflict{
		Resource:  "assessment",
		ID:        current.ID,
		Operation: "issue_link",
	})
}

// current materializes an ephemeral assessment or re-reads a stored one so
// issuance always starts from persisted state.
func (s *linkService) current(ctx context.Context, assessment *models.Assessment, actor *models.Actor) (*models.Assessment, error) {
	if assessment.IsEphemeral() {
		stored, err := s.lifecycle.Materialize(ctx, assessment, actor)
		if err != nil {
			return nil, err
		}
		return stored, nil
	}

	stored, err := loadAssessment(ctx, s.repo, nil, assessment.ID)
	if err != nil {
		return nil, err
	}
	if err := checkTenant(actor, "assessment", stored.ID, stored.TenantID, "issue_link"); err != nil {
		return nil, err
	}
	return stored, nil
}

func (s *linkService) issued(ctx context.Context, assessment *models.Assessment, actor *models.Actor, update repositories.LinkUpdate, privileged bool) *models.PublicLink {
	token := update.Token
	issuedAt := update.IssuedAt
	expiresAt := update.ExpiresAt
	assessment.LinkToken = &token
	assessment.LinkIssuedAt = &issuedAt
	assessment.LinkExpiresAt = &expiresAt

	s.logger.Info("Public link issued",
		"assessment_id", assessment.ID,
		"tenant_id", assessment.TenantID,
		"issued_by", actor.UserID,
		"expires_at", expiresAt,
		"privileged", privileged)

	publishEvent(ctx, s.publisher, s.logger, events.LinkIssued, assessment.TenantID, events.LinkIssuedEvent{
		AssessmentID: assessment.ID,
		IssuedBy:     actor.UserID,
		ExpiresAt:    expiresAt,
		Privileged:   privileged,
	})

	if assessment.Status == models.StatusDraft {
		assessment.Status = models.StatusSent
		publishEvent(ctx, s.publisher, s.logger, events.AssessmentStatusChanged, assessment.TenantID, events.StatusChangedEvent{
			AssessmentID: assessment.ID,
			From:         models.StatusDraft,
			To:           models.StatusSent,
			ChangedBy:    actor.UserID,
		})
	}

	return linkFromAssessment(assessment, s.origin)
}

func (s *linkService) exhausted(ctx context.Context, assessment *models.Assessment, actor *models.Actor, cause error) error {
	s.logger.Error("Privileged link write failed",
		"assessment_id", assessment.ID,
		"tenant_id", assessment.TenantID,
		"user_id", actor.UserID,
		"error", cause)

	publishEvent(ctx, s.publisher, s.logger, events.LinkFallbackExhausted, assessment.TenantID, events.FallbackExhaustedEvent{
		AssessmentID: assessment.ID,
		TenantID:     assessment.TenantID,
		ActorID:      actor.UserID,
		Reason:       cause.Error(),
	})

	return &FallbackExhausted{
		AssessmentID: assessment.ID,
		TenantID:     assessment.TenantID,
		Cause:        cause,
	}
}

func linkFromAssessment(a *models.Assessment, origin string) *models.PublicLink {
	link := &models.PublicLink{
		Token:        *a.LinkToken,
		AssessmentID: a.ID,
		ExpiresAt:    *a.LinkExpiresAt,
		URL:          publicURL(origin, *a.LinkToken),
	}
	if a.LinkIssuedAt != nil {
		link.IssuedAt = *a.LinkIssuedAt
	}
	return link
}

func publicURL(origin, token string) string {
	return strings.TrimRight(origin, "/") + PublicLinkPath + token
}

func sameToken(a, b *string) bool {
	if a == nil || b == nil {
		return a == nil && b == nil
	}
	return *a == *b
}

func actorID(actor *models.Actor) string {
	if actor == nil {
		return ""
	}
	return actor.UserID
}
