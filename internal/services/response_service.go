package services

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"time"

	"github.com/SAP-F-2025/vendor-assessment-service/internal/events"
	"github.com/SAP-F-2025/vendor-assessment-service/internal/models"
	"github.com/SAP-F-2025/vendor-assessment-service/internal/repositories"
	"github.com/SAP-F-2025/vendor-assessment-service/internal/responses"
	"github.com/SAP-F-2025/vendor-assessment-service/internal/scoring"
	"github.com/SAP-F-2025/vendor-assessment-service/internal/validator"
)

// DefaultRespondent is recorded when a submission names no responder.
const DefaultRespondent = "vendor"

type responseService struct {
	repo      repositories.Repository
	logger    *slog.Logger
	validator *validator.Validator
	publisher events.EventPublisher
	engine    *scoring.Engine

	now func() time.Time
}

func NewResponseService(repo repositories.Repository, logger *slog.Logger, validator *validator.Validator, publisher events.EventPublisher, engine *scoring.Engine) ResponseService {
	return &responseService{
		repo:      repo,
		logger:    logger,
		validator: validator,
		publisher: publisher,
		engine:    engine,
		now:       func() time.Time { return time.Now().UTC() },
	}
}

// resolve looks up the assessment behind a public token and its template.
// The token is never logged.
func (s *responseService) resolve(ctx context.Context, token string) (*models.Assessment, *models.Template, error) {
	if token == "" {
		return nil, nil, &NotFoundError{Resource: "link"}
	}

	assessment, err := s.repo.Assessment().GetByToken(ctx, nil, token)
	if err != nil {
		if repositories.IsNotFoundError(err) {
			return nil, nil, &NotFoundError{Resource: "link"}
		}
		return nil, nil, fmt.Errorf("failed to resolve link: %w", err)
	}

	if assessment.Status == models.StatusExpired || !assessment.HasValidLink(s.now()) {
		return nil, nil, ErrLinkExpired
	}

	tmpl, err := loadTemplate(ctx, s.repo, assessment.TenantID, assessment.TemplateID)
	if err != nil {
		return nil, nil, err
	}
	return assessment, tmpl, nil
}

func (s *responseService) Resolve(ctx context.Context, token string) (*RespondentView, error) {
	assessment, tmpl, err := s.resolve(ctx, token)
	if err != nil {
		return nil, err
	}
	return &RespondentView{
		AssessmentID: assessment.ID,
		VendorID:     assessment.VendorID,
		Status:       assessment.Status,
		DueDate:      assessment.DueDate,
		ExpiresAt:    *assessment.LinkExpiresAt,
		Template:     tmpl,
		Responses:    assessment.Responses,
		Stats:        scoring.ComputeStats(tmpl, assessment.Responses),
	}, nil
}

func (s *responseService) SubmitAnswer(ctx context.Context, token, questionID string, answer interface{}, justification *string, respondedBy string) (*SubmissionResult, error) {
	req := &validator.SubmitAnswersRequest{
		Answers:     map[string]interface{}{questionID: answer},
		RespondedBy: respondedBy,
	}
	if justification != nil {
		req.Justifications = map[string]string{questionID: *justification}
	}
	return s.SubmitAnswers(ctx, token, req)
}

// SubmitAnswers stores a batch of answers. The first accepted batch moves a
// sent assessment to in_progress. A write that lost a race with another
// submission is merged again onto the fresh response set.
func (s *responseService) SubmitAnswers(ctx context.Context, token string, req *validator.SubmitAnswersRequest) (*SubmissionResult, error) {
	if err := s.validator.Validate(req); err != nil {
		return nil, err
	}

	respondedBy := req.RespondedBy
	if respondedBy == "" {
		respondedBy = DefaultRespondent
	}

	var (
		saved *savedAnswers
		err   error
	)
	for attempt := 1; ; attempt++ {
		saved, err = s.saveAnswers(ctx, token, req, respondedBy)
		if err == nil {
			break
		}
		var conflict *PersistenceConflict
		if !errors.As(err, &conflict) || attempt == maxAnswerAttempts {
			return nil, err
		}
		s.logger.Warn("Concurrent answer submission, retrying",
			"assessment_id", conflict.ID,
			"attempt", attempt)
	}

	from, updated := saved.from, saved.updated
	s.logger.Info("Answers submitted",
		"assessment_id", updated.ID,
		"answers", len(saved.ids),
		"status", updated.Status)

	for _, id := range saved.ids {
		publishEvent(ctx, s.publisher, s.logger, events.AnswerSubmitted, updated.TenantID, events.AnswerSubmittedEvent{
			AssessmentID: updated.ID,
			QuestionID:   id,
			RespondedBy:  respondedBy,
		})
	}
	if updated.Status != from {
		publishEvent(ctx, s.publisher, s.logger, events.AssessmentStatusChanged, updated.TenantID, events.StatusChangedEvent{
			AssessmentID: updated.ID,
			From:         from,
			To:           updated.Status,
			ChangedBy:    respondedBy,
		})
	}

	return &SubmissionResult{
		AssessmentID: updated.ID,
		Status:       updated.Status,
		Accepted:     saved.ids,
		Stats:        scoring.ComputeStats(saved.template, updated.Responses),
		Completion:   s.engine.Score(saved.template, updated.Responses).Completion,
	}, nil
}

const maxAnswerAttempts = 3

type savedAnswers struct {
	from     models.AssessmentStatus
	updated  *models.Assessment
	template *models.Template
	ids      []string
}

// saveAnswers merges one batch onto the stored responses and writes it,
// guarded on the revision it read.
func (s *responseService) saveAnswers(ctx context.Context, token string, req *validator.SubmitAnswersRequest, respondedBy string) (*savedAnswers, error) {
	assessment, tmpl, err := s.resolve(ctx, token)
	if err != nil {
		return nil, err
	}

	from := assessment.Status
	if from != models.StatusSent && from != models.StatusInProgress {
		return nil, fmt.Errorf("%w: assessment %s no longer accepts answers in status %s", ErrInvalidTransition, assessment.ID, from)
	}

	answers, err := responses.NormalizePayload(tmpl, req.Answers)
	if err != nil {
		var unsupported *responses.UnsupportedValueError
		if errors.As(err, &unsupported) {
			return nil, newValidationError("answers."+unsupported.QuestionID, "unsupported_value", "answer must be a string, a number or null", nil)
		}
		return nil, err
	}

	ids := make([]string, 0, len(answers))
	for id := range answers {
		ids = append(ids, id)
	}
	sort.Strings(ids)

	store := responses.NewStore(assessment.Responses)
	for _, id := range ids {
		var justification *string
		if j, ok := req.Justifications[id]; ok {
			justification = &j
		}
		if _, err := store.Submit(id, answers[id], justification, respondedBy); err != nil {
			return nil, newValidationError("answers", "question_id", err.Error(), id)
		}
	}

	updated := *assessment
	updated.Responses = store.Responses()
	if from == models.StatusSent {
		updated.Status = models.StatusInProgress
	}

	rows, err := s.repo.Assessment().SaveProgress(ctx, nil, &updated, from)
	if err != nil {
		return nil, fmt.Errorf("failed to save answers: %w", err)
	}
	if rows == 0 {
		return nil, &PersistenceConflict{Resource: "assessment", ID: assessment.ID, Operation: "submit_answers"}
	}

	return &savedAnswers{from: from, updated: &updated, template: tmpl, ids: ids}, nil
}

func (s *responseService) ComputeScore(ctx context.Context, token string) (*scoring.Result, error) {
	assessment, tmpl, err := s.resolve(ctx, token)
	if err != nil {
		return nil, err
	}
	result := s.engine.Score(tmpl, assessment.Responses)
	return &result, nil
}

func (s *responseService) ComputeStats(ctx context.Context, token string) (*scoring.Stats, error) {
	assessment, tmpl, err := s.resolve(ctx, token)
	if err != nil {
		return nil, err
	}
	stats := scoring.ComputeStats(tmpl, assessment.Responses)
	return &stats, nil
}

// Finalize completes the assessment once every required question has a
// response, recording its score and risk level.
func (s *responseService) Finalize(ctx context.Context, token string) (*CompletionResult, error) {
	assessment, tmpl, err := s.resolve(ctx, token)
	if err != nil {
		return nil, err
	}
	return completeAssessment(ctx, s.repo, s.engine, s.publisher, s.logger, assessment, tmpl, s.now())
}
