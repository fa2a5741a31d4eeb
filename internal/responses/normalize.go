package responses

import (
	"encoding/json"
	"fmt"
	"strconv"

	"github.com/SAP-F-2025/vendor-assessment-service/internal/models"
)

// UnsupportedValueError reports a raw payload value that is neither a string,
// a number nor null.
type UnsupportedValueError struct {
	QuestionID string
	Value      interface{}
}

func (e *UnsupportedValueError) Error() string {
	return fmt.Sprintf("question %s: unsupported answer value of type %T", e.QuestionID, e.Value)
}

// Normalize converts a loose payload value into a typed answer based on the
// question's declared type. q may be nil for ids the template does not know.
func Normalize(q *models.Question, questionID string, raw interface{}) (models.Answer, error) {
	if raw == nil {
		return models.NullAnswer(), nil
	}

	var (
		str      string
		num      float64
		isNumber bool
	)
	switch v := raw.(type) {
	case string:
		str = v
	case float64:
		num, isNumber = v, true
	case float32:
		num, isNumber = float64(v), true
	case int:
		num, isNumber = float64(v), true
	case int64:
		num, isNumber = float64(v), true
	case json.Number:
		f, err := v.Float64()
		if err != nil {
			str = v.String()
		} else {
			num, isNumber = f, true
		}
	default:
		return models.Answer{}, &UnsupportedValueError{QuestionID: questionID, Value: raw}
	}

	if q == nil {
		if isNumber {
			return models.NumericAnswer(num), nil
		}
		return models.TextAnswer(str), nil
	}

	switch q.Type {
	case models.QuestionMultipleChoice:
		if isNumber {
			return models.ChoiceAnswer(strconv.FormatFloat(num, 'f', -1, 64)), nil
		}
		return models.ChoiceAnswer(str), nil
	case models.QuestionScale:
		if isNumber {
			return models.NumericAnswer(num), nil
		}
		// Kept as text; scoring parses numeric text.
		return models.TextAnswer(str), nil
	case models.QuestionYesNo:
		if isNumber {
			return models.TextAnswer(strconv.FormatFloat(num, 'f', -1, 64)), nil
		}
		return models.TextAnswer(str), nil
	default:
		if isNumber {
			return models.NumericAnswer(num), nil
		}
		return models.TextAnswer(str), nil
	}
}

// NormalizePayload converts a question-id keyed payload into typed answers.
// Unknown keys are kept.
func NormalizePayload(tmpl *models.Template, payload map[string]interface{}) (map[string]models.Answer, error) {
	out := make(map[string]models.Answer, len(payload))
	for id, raw := range payload {
		var q *models.Question
		if tmpl != nil {
			q, _ = tmpl.Question(id)
		}
		a, err := Normalize(q, id, raw)
		if err != nil {
			return nil, err
		}
		out[id] = a
	}
	return out, nil
}
