package models

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strconv"
	"time"
)

type AnswerKind string

const (
	AnswerText    AnswerKind = "text"
	AnswerNumeric AnswerKind = "numeric"
	AnswerChoice  AnswerKind = "choice"
	// AnswerNull is an explicit null submitted by the respondent. It is
	// distinct from an absent answer, which has no entry in the ResponseSet.
	AnswerNull AnswerKind = "null"
)

// Answer is a tagged union over the value shapes a respondent can submit.
// Only the field matching Kind is meaningful.
type Answer struct {
	Kind   AnswerKind `json:"kind"`
	Text   string     `json:"text,omitempty"`
	Number float64    `json:"number,omitempty"`
	Choice string     `json:"choice,omitempty"`
}

func TextAnswer(s string) Answer {
	return Answer{Kind: AnswerText, Text: s}
}

func NumericAnswer(n float64) Answer {
	return Answer{Kind: AnswerNumeric, Number: n}
}

func ChoiceAnswer(label string) Answer {
	return Answer{Kind: AnswerChoice, Choice: label}
}

func NullAnswer() Answer {
	return Answer{Kind: AnswerNull}
}

// StringValue returns the textual form of text and choice answers.
func (a Answer) StringValue() (string, bool) {
	switch a.Kind {
	case AnswerText:
		return a.Text, true
	case AnswerChoice:
		return a.Choice, true
	}
	return "", false
}

// NumericValue returns the answer as a number. Text answers are parsed.
func (a Answer) NumericValue() (float64, bool) {
	switch a.Kind {
	case AnswerNumeric:
		return a.Number, true
	case AnswerText, AnswerChoice:
		s, _ := a.StringValue()
		n, err := strconv.ParseFloat(s, 64)
		if err != nil {
			return 0, false
		}
		return n, true
	}
	return 0, false
}

// Truthy reports whether the answer carries a non-empty, non-zero value.
func (a Answer) Truthy() bool {
	switch a.Kind {
	case AnswerText:
		return a.Text != ""
	case AnswerChoice:
		return a.Choice != ""
	case AnswerNumeric:
		return a.Number != 0
	}
	return false
}

// IsBlank reports whether the answer is null or exactly the empty string.
// Whitespace is not trimmed.
func (a Answer) IsBlank() bool {
	switch a.Kind {
	case AnswerNull:
		return true
	case AnswerText:
		return a.Text == ""
	case AnswerChoice:
		return a.Choice == ""
	}
	return false
}

// Raw returns the answer in the loose wire form used by the respondent UI.
func (a Answer) Raw() interface{} {
	switch a.Kind {
	case AnswerText:
		return a.Text
	case AnswerChoice:
		return a.Choice
	case AnswerNumeric:
		return a.Number
	}
	return nil
}

func (a Answer) String() string {
	switch a.Kind {
	case AnswerNumeric:
		return strconv.FormatFloat(a.Number, 'f', -1, 64)
	case AnswerNull:
		return "null"
	}
	s, _ := a.StringValue()
	return s
}

func (a *Answer) UnmarshalJSON(data []byte) error {
	type plain Answer
	var p plain
	if err := json.Unmarshal(data, &p); err != nil {
		return err
	}
	switch p.Kind {
	case AnswerText, AnswerNumeric, AnswerChoice, AnswerNull:
	default:
		return fmt.Errorf("unknown answer kind %q", p.Kind)
	}
	*a = Answer(p)
	return nil
}

type Response struct {
	QuestionID    string    `json:"question_id"`
	Answer        Answer    `json:"answer"`
	Justification *string   `json:"justification,omitempty"`
	RespondedBy   string    `json:"responded_by"`
	RespondedAt   time.Time `json:"responded_at"`
}

// ResponseSet maps question id to the latest submitted response. Keys that
// match no template question are kept but ignored by scoring.
type ResponseSet map[string]Response

func (rs ResponseSet) Clone() ResponseSet {
	out := make(ResponseSet, len(rs))
	for k, v := range rs {
		out[k] = v
	}
	return out
}

func (rs ResponseSet) MarshalJSON() ([]byte, error) {
	if rs == nil {
		return []byte("{}"), nil
	}
	return json.Marshal(map[string]Response(rs))
}

func (rs *ResponseSet) UnmarshalJSON(data []byte) error {
	if bytes.Equal(bytes.TrimSpace(data), []byte("null")) {
		*rs = ResponseSet{}
		return nil
	}
	var m map[string]Response
	if err := json.Unmarshal(data, &m); err != nil {
		return err
	}
	*rs = ResponseSet(m)
	return nil
}
