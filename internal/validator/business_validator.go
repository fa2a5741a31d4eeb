package validator

import (
	"fmt"
	"reflect"
	"time"

	"github.com/go-playground/validator/v10"

	"github.com/SAP-F-2025/vendor-assessment-service/internal/models"
)

// allowedTransitions is the assessment state machine. Expiry is reachable from
// every non-terminal state; the lifecycle service also requires the
// assessment to be overdue.
var allowedTransitions = map[models.AssessmentStatus][]models.AssessmentStatus{
	models.StatusDraft:      {models.StatusSent, models.StatusExpired},
	models.StatusSent:       {models.StatusInProgress, models.StatusExpired},
	models.StatusInProgress: {models.StatusCompleted, models.StatusExpired},
	models.StatusCompleted:  {models.StatusApproved, models.StatusRejected, models.StatusExpired},
	models.StatusApproved:   {},
	models.StatusRejected:   {},
	models.StatusExpired:    {},
}

// BusinessValidator handles business rule validation
type BusinessValidator struct {
	validate *validator.Validate
}

// NewBusinessValidator creates a new business validator
func NewBusinessValidator() *BusinessValidator {
	validate := validator.New()

	bv := &BusinessValidator{validate: validate}
	bv.registerBusinessRules()

	return bv
}

// Validate validates business rules for any struct
func (bv *BusinessValidator) Validate(s interface{}) ValidationErrors {
	err := bv.validate.Struct(s)
	if err != nil {
		return ToValidationErrors(err)
	}
	return nil
}

// ValidateTemplateCreate validates template creation business rules
func (bv *BusinessValidator) ValidateTemplateCreate(req *TemplateCreateRequest) ValidationErrors {
	var errors ValidationErrors

	errors = append(errors, bv.Validate(req)...)
	errors = append(errors, bv.validateQuestions(req.Questions)...)

	return errors
}

// ValidateTemplate validates a parsed template, e.g. one loaded from a file
func (bv *BusinessValidator) ValidateTemplate(tmpl *models.Template) ValidationErrors {
	var errors ValidationErrors

	errors = append(errors, bv.Validate(tmpl)...)
	errors = append(errors, bv.validateQuestions(tmpl.Questions)...)

	return errors
}

// CanTransition reports whether the state machine allows from -> to.
func CanTransition(from, to models.AssessmentStatus) bool {
	for _, allowed := range allowedTransitions[from] {
		if allowed == to {
			return true
		}
	}
	return false
}

// ValidateStatusTransition validates assessment status transitions
func (bv *BusinessValidator) ValidateStatusTransition(currentStatus, newStatus models.AssessmentStatus) ValidationErrors {
	if CanTransition(currentStatus, newStatus) {
		return nil
	}
	return ValidationErrors{{
		Field:   "status",
		Message: fmt.Sprintf("cannot transition from %s to %s", currentStatus, newStatus),
		Value:   newStatus,
		Rule:    "status_transition",
	}}
}

// validateQuestions checks the per-type invariants that struct tags cannot
// express.
func (bv *BusinessValidator) validateQuestions(questions []models.Question) ValidationErrors {
	var errors ValidationErrors
	seen := make(map[string]bool, len(questions))

	for i, q := range questions {
		field := fmt.Sprintf("questions[%d]", i)

		if seen[q.ID] {
			errors = append(errors, ValidationError{
				Field:   field + ".id",
				Message: "must be unique within the template",
				Value:   q.ID,
				Rule:    "unique_id",
			})
		}
		seen[q.ID] = true

		switch q.Type {
		case models.QuestionMultipleChoice:
			if len(q.Options) == 0 {
				errors = append(errors, ValidationError{
					Field:   field + ".options",
					Message: "multiple choice questions need at least one option",
					Rule:    "options_required",
				})
			}
			labels := make(map[string]bool, len(q.Options))
			for _, opt := range q.Options {
				if labels[opt] {
					errors = append(errors, ValidationError{
						Field:   field + ".options",
						Message: "option labels must be unique",
						Value:   opt,
						Rule:    "unique_option",
					})
					break
				}
				labels[opt] = true
			}
		case models.QuestionScale:
			if q.Scale == nil {
				errors = append(errors, ValidationError{
					Field:   field + ".scale",
					Message: "scale questions need min and max",
					Rule:    "scale_required",
				})
			} else if q.Scale.Max <= q.Scale.Min {
				errors = append(errors, ValidationError{
					Field:   field + ".scale",
					Message: "scale max must be greater than min",
					Value:   q.Scale,
					Rule:    "scale_range",
				})
			}
		}
	}

	return errors
}

// registerBusinessRules registers custom business rule validators
func (bv *BusinessValidator) registerBusinessRules() {
	bv.validate.RegisterValidation("question_type", func(fl validator.FieldLevel) bool {
		switch models.QuestionType(fl.Field().String()) {
		case models.QuestionYesNo, models.QuestionMultipleChoice, models.QuestionScale, models.QuestionText:
			return true
		}
		return false
	})

	bv.validate.RegisterValidation("risk_impact", func(fl validator.FieldLevel) bool {
		switch models.RiskImpact(fl.Field().String()) {
		case models.ImpactLow, models.ImpactMedium, models.ImpactHigh, models.ImpactCritical:
			return true
		}
		return false
	})

	bv.validate.RegisterValidation("priority", func(fl validator.FieldLevel) bool {
		switch models.Priority(fl.Field().String()) {
		case models.PriorityLow, models.PriorityMedium, models.PriorityHigh, models.PriorityCritical:
			return true
		}
		return false
	})

	bv.validate.RegisterValidation("assessment_status", func(fl validator.FieldLevel) bool {
		_, ok := allowedTransitions[models.AssessmentStatus(fl.Field().String())]
		return ok
	})

	// Due date validation (must be in future)
	bv.validate.RegisterValidation("future_date", func(fl validator.FieldLevel) bool {
		field := fl.Field()
		if field.Kind() == reflect.Ptr {
			if field.IsNil() {
				return true
			}
			field = field.Elem()
		}
		dueDate, ok := field.Interface().(time.Time)
		if !ok {
			return false
		}
		return dueDate.After(time.Now())
	})
}
