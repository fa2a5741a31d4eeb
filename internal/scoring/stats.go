package scoring

import (
	"fmt"

	"github.com/SAP-F-2025/vendor-assessment-service/internal/models"
)

// Stats is the progress view of a response set. An answer counts only when it
// is present and neither null nor exactly the empty string, which is stricter
// than the completion rule used by Engine.Score.
type Stats struct {
	Answered         int `json:"answered"`
	Total            int `json:"total"`
	RequiredAnswered int `json:"required_answered"`
	RequiredTotal    int `json:"required_total"`
}

func (s Stats) String() string {
	return fmt.Sprintf("%d/%d", s.Answered, s.Total)
}

// Unanswered returns how many questions still lack a non-blank answer.
func (s Stats) Unanswered() int {
	return s.Total - s.Answered
}

// ComputeStats counts answered questions. Keys that match no template
// question are ignored.
func ComputeStats(tmpl *models.Template, responses models.ResponseSet) Stats {
	var st Stats
	if tmpl == nil {
		return st
	}
	for _, q := range tmpl.Questions {
		st.Total++
		if q.Required {
			st.RequiredTotal++
		}
		resp, ok := responses[q.ID]
		if !ok || resp.Answer.IsBlank() {
			continue
		}
		st.Answered++
		if q.Required {
			st.RequiredAnswered++
		}
	}
	return st
}
