package events

import (
	"context"
	"time"

	"github.com/google/uuid"

	"github.com/SAP-F-2025/vendor-assessment-service/internal/models"
)

const (
	EventSource  = "vendor-assessment-service"
	EventVersion = "1.0"
)

type EventType string

const (
	AssessmentMaterialized   EventType = "assessment.materialized"
	AssessmentStatusChanged  EventType = "assessment.status_changed"
	AssessmentCompleted      EventType = "assessment.completed"
	AssessmentExpired        EventType = "assessment.expired"
	AnswerSubmitted          EventType = "assessment.answer_submitted"
	LinkIssued               EventType = "link.issued"
	LinkFallbackUsed         EventType = "link.fallback_used"
	LinkFallbackExhausted    EventType = "link.fallback_exhausted"
	TemplateCreated          EventType = "template.created"
	PendingSelectionRecorded EventType = "selection.recorded"
)

// IsOperatorAlert reports whether the event must reach the operator topic.
func (t EventType) IsOperatorAlert() bool {
	return t == LinkFallbackExhausted
}

type Event struct {
	ID        string      `json:"id"`
	Type      EventType   `json:"type"`
	Source    string      `json:"source"`
	Version   string      `json:"version"`
	Timestamp time.Time   `json:"timestamp"`
	TenantID  string      `json:"tenant_id"`
	Data      interface{} `json:"data"`
}

func NewEvent(eventType EventType, tenantID string, data interface{}) *Event {
	return &Event{
		ID:        uuid.New().String(),
		Type:      eventType,
		Source:    EventSource,
		Version:   EventVersion,
		Timestamp: time.Now().UTC(),
		TenantID:  tenantID,
		Data:      data,
	}
}

type EventPublisher interface {
	Publish(ctx context.Context, event *Event) error
	Close() error
}

// ===== EVENT PAYLOADS =====

type LinkIssuedEvent struct {
	AssessmentID string    `json:"assessment_id"`
	IssuedBy     string    `json:"issued_by"`
	ExpiresAt    time.Time `json:"expires_at"`
	Privileged   bool      `json:"privileged"`
}

type FallbackExhaustedEvent struct {
	AssessmentID string `json:"assessment_id"`
	TenantID     string `json:"tenant_id"`
	ActorID      string `json:"actor_id"`
	Reason       string `json:"reason"`
}

type FallbackUsedEvent struct {
	AssessmentID string `json:"assessment_id"`
	ActorID      string `json:"actor_id"`
	Reason       string `json:"reason"`
}

type StatusChangedEvent struct {
	AssessmentID string                  `json:"assessment_id"`
	From         models.AssessmentStatus `json:"from"`
	To           models.AssessmentStatus `json:"to"`
	ChangedBy    string                  `json:"changed_by"`
}

type MaterializedEvent struct {
	AssessmentID string `json:"assessment_id"`
	EphemeralID  string `json:"ephemeral_id"`
	TemplateID   string `json:"template_id"`
	VendorID     string `json:"vendor_id"`
}

type AnswerSubmittedEvent struct {
	AssessmentID string `json:"assessment_id"`
	QuestionID   string `json:"question_id"`
	RespondedBy  string `json:"responded_by"`
}

type CompletedEvent struct {
	AssessmentID string           `json:"assessment_id"`
	Score        int              `json:"score"`
	RiskLevel    models.RiskLevel `json:"risk_level"`
	Passed       bool             `json:"passed"`
}

type ExpiredEvent struct {
	AssessmentIDs []string `json:"assessment_ids"`
}

type TemplateCreatedEvent struct {
	TemplateID string `json:"template_id"`
	Family     string `json:"family"`
	Version    string `json:"version"`
	Questions  int    `json:"questions"`
}

type SelectionRecordedEvent struct {
	VendorID   string    `json:"vendor_id"`
	TemplateID string    `json:"template_id,omitempty"`
	Family     string    `json:"template_family,omitempty"`
	ExpiresAt  time.Time `json:"expires_at"`
}
