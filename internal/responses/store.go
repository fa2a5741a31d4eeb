package responses

import (
	"errors"
	"time"

	"github.com/SAP-F-2025/vendor-assessment-service/internal/models"
)

var ErrEmptyQuestionID = errors.New("question id is required")

// Store accumulates responses for one assessment session. It has a single
// owner and is not safe for concurrent writers; a later submission for the
// same question replaces the earlier one.
type Store struct {
	responses models.ResponseSet
	now       func() time.Time
}

// NewStore seeds a store from previously persisted responses. The initial set
// is copied.
func NewStore(initial models.ResponseSet) *Store {
	s := &Store{
		responses: make(models.ResponseSet, len(initial)),
		now:       time.Now,
	}
	for k, v := range initial {
		s.responses[k] = v
	}
	return s
}

// Submit records an answer. Question ids that are not part of the active
// template are accepted and later ignored by scoring.
func (s *Store) Submit(questionID string, answer models.Answer, justification *string, respondedBy string) (models.Response, error) {
	if questionID == "" {
		return models.Response{}, ErrEmptyQuestionID
	}
	r := models.Response{
		QuestionID:    questionID,
		Answer:        answer,
		Justification: justification,
		RespondedBy:   respondedBy,
		RespondedAt:   s.now().UTC(),
	}
	s.responses[questionID] = r
	return r, nil
}

// Get returns the current response for a question.
func (s *Store) Get(questionID string) (models.Response, bool) {
	r, ok := s.responses[questionID]
	return r, ok
}

// Responses returns a snapshot that the caller may keep or mutate.
func (s *Store) Responses() models.ResponseSet {
	return s.responses.Clone()
}

func (s *Store) Len() int {
	return len(s.responses)
}
