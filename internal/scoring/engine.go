package scoring

import (
	"math"

	"github.com/SAP-F-2025/vendor-assessment-service/internal/models"
)

// DefaultAffirmativeToken is the yes_no answer that scores 1.
const DefaultAffirmativeToken = "yes"

// Result is the outcome of scoring one response set against a template.
type Result struct {
	Completion  bool               `json:"completion"`
	Score       int                `json:"score"`
	Passed      bool               `json:"passed"`
	RiskLevel   models.RiskLevel   `json:"risk_level"`
	PerQuestion map[string]float64 `json:"per_question"`
}

// Engine scores response sets. It holds no mutable state and is safe for
// concurrent use.
type Engine struct {
	affirmative string
}

type Option func(*Engine)

// WithAffirmativeToken overrides the literal that yes_no answers are compared
// against. An empty token keeps the default.
func WithAffirmativeToken(token string) Option {
	return func(e *Engine) {
		if token != "" {
			e.affirmative = token
		}
	}
}

func NewEngine(opts ...Option) *Engine {
	e := &Engine{affirmative: DefaultAffirmativeToken}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

func (e *Engine) AffirmativeToken() string {
	return e.affirmative
}

// Score computes completion and the weighted aggregate. Every question's
// weight counts toward the denominator, so unanswered questions (optional
// ones included) lower the achievable maximum.
func (e *Engine) Score(tmpl *models.Template, responses models.ResponseSet) Result {
	res := Result{
		Completion:  true,
		PerQuestion: make(map[string]float64),
	}
	if tmpl == nil {
		res.RiskLevel = RiskLevelFor(0)
		return res
	}

	var earned, total float64
	for i := range tmpl.Questions {
		q := &tmpl.Questions[i]
		total += q.Weight

		resp, ok := responses[q.ID]
		if !ok {
			if q.Required {
				res.Completion = false
			}
			continue
		}

		s := e.QuestionScore(q, resp.Answer)
		res.PerQuestion[q.ID] = s
		earned += s * q.Weight
	}

	if total > 0 {
		res.Score = clampScore(roundHalfUp(earned / total * 100))
	}
	res.Passed = res.Score >= tmpl.PassThreshold
	res.RiskLevel = RiskLevelFor(res.Score)
	return res
}

// QuestionScore returns the normalized [0,1] score of one answer. Dispatch is
// on the question's declared type, not on the answer's kind.
func (e *Engine) QuestionScore(q *models.Question, a models.Answer) float64 {
	switch q.Type {
	case models.QuestionYesNo:
		if s, ok := a.StringValue(); ok && s == e.affirmative {
			return 1
		}
		return 0

	case models.QuestionScale:
		// The scale minimum is deliberately not subtracted.
		if q.Scale == nil || q.Scale.Max == 0 {
			return 0
		}
		v, ok := a.NumericValue()
		if !ok || math.IsNaN(v) {
			return 0
		}
		return clampUnit(v / q.Scale.Max)

	case models.QuestionMultipleChoice:
		n := len(q.Options)
		if n == 0 {
			return 0
		}
		label, ok := a.StringValue()
		if !ok {
			return 0
		}
		idx := q.OptionIndex(label)
		if idx < 0 {
			return 0
		}
		return float64(n-idx) / float64(n)

	default:
		if a.Truthy() {
			return 1
		}
		return 0
	}
}

// RiskLevelFor maps an aggregate score onto a risk band.
func RiskLevelFor(score int) models.RiskLevel {
	switch {
	case score >= 80:
		return models.RiskLow
	case score >= 60:
		return models.RiskMedium
	case score >= 40:
		return models.RiskHigh
	default:
		return models.RiskCritical
	}
}

func roundHalfUp(x float64) int {
	if math.IsNaN(x) || math.IsInf(x, 0) {
		return 0
	}
	return int(math.Floor(x + 0.5))
}

func clampScore(s int) int {
	if s < 0 {
		return 0
	}
	if s > 100 {
		return 100
	}
	return s
}

func clampUnit(v float64) float64 {
	if v < 0 {
		return 0
	}
	if v > 1 {
		return 1
	}
	return v
}
