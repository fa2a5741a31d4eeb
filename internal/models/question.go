package models

import (
	"encoding/json"
	"fmt"
	"time"

	"gorm.io/datatypes"
	"gorm.io/gorm"
)

type QuestionType string

const (
	QuestionYesNo          QuestionType = "yes_no"
	QuestionMultipleChoice QuestionType = "multiple_choice"
	QuestionScale          QuestionType = "scale"
	QuestionText           QuestionType = "text"
)

type RiskImpact string

const (
	ImpactLow      RiskImpact = "low"
	ImpactMedium   RiskImpact = "medium"
	ImpactHigh     RiskImpact = "high"
	ImpactCritical RiskImpact = "critical"
)

type ScoringMethod string

const (
	ScoringWeighted ScoringMethod = "weighted"
)

// ScaleParams holds the bounds of a scale question. Labels are keyed by the
// scale value they describe ("1": "Not implemented", ...).
type ScaleParams struct {
	Min    float64           `json:"min" yaml:"min"`
	Max    float64           `json:"max" yaml:"max"`
	Labels map[string]string `json:"labels,omitempty" yaml:"labels,omitempty"`
}

type Question struct {
	ID            string       `json:"id" yaml:"id" validate:"required,max=100"`
	Category      string       `json:"category" yaml:"category" validate:"required,max=100"`
	Subcategory   *string      `json:"subcategory,omitempty" yaml:"subcategory,omitempty"`
	Text          string       `json:"text" yaml:"text" validate:"required,max=2000"`
	HelpText      *string      `json:"help_text,omitempty" yaml:"help_text,omitempty"`
	Type          QuestionType `json:"type" yaml:"type" validate:"required,question_type"`
	Required      bool         `json:"required" yaml:"required"`
	Weight        float64      `json:"weight" yaml:"weight" validate:"gt=0"`
	Options       []string     `json:"options,omitempty" yaml:"options,omitempty"`
	Scale         *ScaleParams `json:"scale,omitempty" yaml:"scale,omitempty"`
	ComplianceTag *string      `json:"compliance_tag,omitempty" yaml:"compliance_tag,omitempty"`
	RiskImpact    *RiskImpact  `json:"risk_impact,omitempty" yaml:"risk_impact,omitempty" validate:"omitempty,risk_impact"`
	Order         int          `json:"order" yaml:"order"`
}

// OptionIndex returns the position of label in the option list, or -1.
func (q *Question) OptionIndex(label string) int {
	for i, opt := range q.Options {
		if opt == label {
			return i
		}
	}
	return -1
}

// Template is an ordered, versioned question catalog owned by one tenant.
// Questions are persisted as a JSONB column and decoded by the gorm hooks below.
type Template struct {
	ID            string        `json:"id" gorm:"primaryKey;size:36"`
	TenantID      string        `json:"tenant_id" gorm:"not null;index;size:255"`
	Family        string        `json:"family" gorm:"not null;index;size:100" validate:"required,max=100"`
	Name          string        `json:"name" gorm:"not null;size:200" validate:"required,min=1,max=200"`
	Version       string        `json:"version" gorm:"not null;size:50" validate:"required,max=50"`
	ScoringMethod ScoringMethod `json:"scoring_method" gorm:"not null;default:weighted" validate:"required,oneof=weighted"`
	PassThreshold int           `json:"pass_threshold" gorm:"not null" validate:"min=0,max=100"`

	Questions     []Question     `json:"questions" gorm:"-" validate:"required,min=1,dive"`
	QuestionsJSON datatypes.JSON `json:"-" gorm:"column:questions;type:jsonb;not null"`

	CreatedBy string         `json:"created_by" gorm:"size:255"`
	CreatedAt time.Time      `json:"created_at"`
	UpdatedAt time.Time      `json:"updated_at"`
	DeletedAt gorm.DeletedAt `json:"-" gorm:"index"`
}

func (Template) TableName() string {
	return "templates"
}

func (t *Template) BeforeSave(tx *gorm.DB) error {
	data, err := json.Marshal(t.Questions)
	if err != nil {
		return fmt.Errorf("failed to encode template questions: %w", err)
	}
	t.QuestionsJSON = datatypes.JSON(data)
	return nil
}

func (t *Template) AfterFind(tx *gorm.DB) error {
	if len(t.QuestionsJSON) == 0 {
		t.Questions = nil
		return nil
	}
	if err := json.Unmarshal(t.QuestionsJSON, &t.Questions); err != nil {
		return fmt.Errorf("failed to decode template questions: %w", err)
	}
	return nil
}

// Question returns the question with the given id.
func (t *Template) Question(id string) (*Question, bool) {
	for i := range t.Questions {
		if t.Questions[i].ID == id {
			return &t.Questions[i], true
		}
	}
	return nil, false
}

// TotalWeight sums the weight of every question, answered or not.
func (t *Template) TotalWeight() float64 {
	var total float64
	for _, q := range t.Questions {
		total += q.Weight
	}
	return total
}
