package models

import (
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"gorm.io/datatypes"
	"gorm.io/gorm"
)

type AssessmentStatus string

const (
	StatusDraft      AssessmentStatus = "draft"
	StatusSent       AssessmentStatus = "sent"
	StatusInProgress AssessmentStatus = "in_progress"
	StatusCompleted  AssessmentStatus = "completed"
	StatusApproved   AssessmentStatus = "approved"
	StatusRejected   AssessmentStatus = "rejected"
	StatusExpired    AssessmentStatus = "expired"
)

// IsTerminal reports whether no further transition is possible.
func (s AssessmentStatus) IsTerminal() bool {
	return s == StatusApproved || s == StatusRejected || s == StatusExpired
}

type Priority string

const (
	PriorityLow      Priority = "low"
	PriorityMedium   Priority = "medium"
	PriorityHigh     Priority = "high"
	PriorityCritical Priority = "critical"
)

type RiskLevel string

const (
	RiskLow      RiskLevel = "low"
	RiskMedium   RiskLevel = "medium"
	RiskHigh     RiskLevel = "high"
	RiskCritical RiskLevel = "critical"
)

// EphemeralIDPrefix marks assessments that only exist in the caller's memory.
const EphemeralIDPrefix = "tmp-"

type Assessment struct {
	ID             string           `json:"id" gorm:"primaryKey;size:40"`
	TenantID       string           `json:"tenant_id" gorm:"not null;index;size:255;uniqueIndex:idx_assessments_source_draft,priority:1"`
	VendorID       string           `json:"vendor_id" gorm:"not null;index;size:255"`
	TemplateID     string           `json:"template_id" gorm:"size:36;index"`
	TemplateFamily string           `json:"template_family" gorm:"size:100"`
	Status         AssessmentStatus `json:"status" gorm:"not null;default:draft;index"`
	Priority       Priority         `json:"priority" gorm:"not null;default:medium"`
	DueDate        *time.Time       `json:"due_date"`

	// SourceDraftID is the ephemeral id this row was materialized from.
	SourceDraftID *string `json:"source_draft_id,omitempty" gorm:"size:64;uniqueIndex:idx_assessments_source_draft,priority:2"`

	// Revision guards response writes against lost updates.
	Revision int64 `json:"-" gorm:"not null;default:0"`

	Responses     ResponseSet    `json:"responses" gorm:"-"`
	ResponsesJSON datatypes.JSON `json:"-" gorm:"column:responses;type:jsonb"`

	// Public link
	LinkToken     *string    `json:"link_token,omitempty" gorm:"size:64;uniqueIndex"`
	LinkIssuedAt  *time.Time `json:"link_issued_at,omitempty"`
	LinkExpiresAt *time.Time `json:"link_expires_at,omitempty" gorm:"index"`

	// Computed on completion
	OverallScore *int       `json:"overall_score"`
	RiskLevel    *RiskLevel `json:"risk_level"`

	CreatedBy   string     `json:"created_by" gorm:"size:255"`
	CompletedAt *time.Time `json:"completed_at"`
	CreatedAt   time.Time  `json:"created_at"`
	UpdatedAt   time.Time  `json:"updated_at"`
}

func (Assessment) TableName() string {
	return "assessments"
}

func (a *Assessment) BeforeSave(tx *gorm.DB) error {
	data, err := json.Marshal(a.Responses)
	if err != nil {
		return fmt.Errorf("failed to encode responses: %w", err)
	}
	a.ResponsesJSON = datatypes.JSON(data)
	return nil
}

func (a *Assessment) AfterFind(tx *gorm.DB) error {
	a.Responses = ResponseSet{}
	if len(a.ResponsesJSON) == 0 {
		return nil
	}
	if err := json.Unmarshal(a.ResponsesJSON, &a.Responses); err != nil {
		return fmt.Errorf("failed to decode responses: %w", err)
	}
	return nil
}

// IsEphemeral reports whether the assessment has not been durably stored yet.
func (a *Assessment) IsEphemeral() bool {
	return a.ID == "" || strings.HasPrefix(a.ID, EphemeralIDPrefix)
}

// Adopt overwrites a with the stored assessment it was materialized into.
func (a *Assessment) Adopt(stored *Assessment) {
	*a = *stored
	a.Responses = stored.Responses.Clone()
}

// HasValidLink reports whether a stored link token is still usable at now.
func (a *Assessment) HasValidLink(now time.Time) bool {
	return a.LinkToken != nil && *a.LinkToken != "" &&
		a.LinkExpiresAt != nil && a.LinkExpiresAt.After(now)
}

// IsOverdue reports whether the due date or the link expiry has passed.
func (a *Assessment) IsOverdue(now time.Time) bool {
	if a.DueDate != nil && now.After(*a.DueDate) {
		return true
	}
	return a.LinkExpiresAt != nil && now.After(*a.LinkExpiresAt)
}

// PublicLink is the bearer credential handed to an external respondent.
type PublicLink struct {
	Token        string    `json:"token"`
	AssessmentID string    `json:"assessment_id"`
	IssuedAt     time.Time `json:"issued_at"`
	ExpiresAt    time.Time `json:"expires_at"`
	URL          string    `json:"url"`
}

// PendingSelection remembers a tentatively chosen template for a vendor
// before the assessment is materialized.
type PendingSelection struct {
	TenantID       string    `json:"tenant_id"`
	VendorID       string    `json:"vendor_id"`
	TemplateID     string    `json:"template_id,omitempty"`
	TemplateFamily string    `json:"template_family,omitempty"`
	SelectedBy     string    `json:"selected_by"`
	SelectedAt     time.Time `json:"selected_at"`
	ExpiresAt      time.Time `json:"expires_at"`
}

func (p *PendingSelection) Expired(now time.Time) bool {
	return !now.Before(p.ExpiresAt)
}
