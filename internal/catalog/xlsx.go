package catalog

import (
	"fmt"
	"io"
	"strconv"
	"strings"

	"github.com/xuri/excelize/v2"

	"github.com/SAP-F-2025/vendor-assessment-service/internal/models"
)

const (
	SheetTemplate  = "Template"
	SheetQuestions = "Questions"
)

// QuestionColumns is the header row expected on the Questions sheet. Column
// order is free; headers are matched case-insensitively.
var QuestionColumns = []string{
	"id", "category", "subcategory", "text", "help_text", "type", "required",
	"weight", "options", "scale_min", "scale_max", "scale_labels",
	"compliance_tag", "risk_impact", "order",
}

// LoadXLSX reads a workbook with an optional key/value Template sheet and a
// Questions sheet. Options and scale labels are pipe separated; scale labels
// use "value=label".
func LoadXLSX(r io.Reader) (*models.Template, error) {
	f, err := excelize.OpenReader(r)
	if err != nil {
		return nil, fmt.Errorf("failed to open workbook: %w", err)
	}
	defer f.Close()

	var file templateFile
	sheets := f.GetSheetList()

	if hasSheet(sheets, SheetTemplate) {
		rows, err := f.GetRows(SheetTemplate)
		if err != nil {
			return nil, fmt.Errorf("failed to read %s sheet: %w", SheetTemplate, err)
		}
		if err := readTemplateSheet(rows, &file); err != nil {
			return nil, err
		}
	}

	questionSheet := SheetQuestions
	if !hasSheet(sheets, SheetQuestions) {
		if len(sheets) == 0 {
			return nil, ErrNoQuestions
		}
		questionSheet = sheets[0]
	}

	rows, err := f.GetRows(questionSheet)
	if err != nil {
		return nil, fmt.Errorf("failed to read %s sheet: %w", questionSheet, err)
	}
	questions, err := readQuestionRows(rows)
	if err != nil {
		return nil, err
	}
	file.Questions = questions

	return file.toTemplate()
}

func hasSheet(sheets []string, name string) bool {
	for _, s := range sheets {
		if strings.EqualFold(s, name) {
			return true
		}
	}
	return false
}

func readTemplateSheet(rows [][]string, file *templateFile) error {
	for i, row := range rows {
		if len(row) < 2 {
			continue
		}
		key := strings.ToLower(strings.TrimSpace(row[0]))
		value := strings.TrimSpace(row[1])
		switch key {
		case "family":
			file.Family = value
		case "name":
			file.Name = value
		case "version":
			file.Version = value
		case "scoring_method":
			file.ScoringMethod = value
		case "pass_threshold":
			n, err := strconv.Atoi(value)
			if err != nil {
				return fmt.Errorf("%s row %d: invalid pass_threshold %q", SheetTemplate, i+1, value)
			}
			file.PassThreshold = n
		}
	}
	return nil
}

func readQuestionRows(rows [][]string) ([]models.Question, error) {
	if len(rows) < 2 {
		return nil, ErrNoQuestions
	}

	index := make(map[string]int)
	for i, h := range rows[0] {
		index[strings.ToLower(strings.TrimSpace(h))] = i
	}
	for _, required := range []string{"id", "text", "type"} {
		if _, ok := index[required]; !ok {
			return nil, fmt.Errorf("%s sheet: missing column %q", SheetQuestions, required)
		}
	}

	cell := func(row []string, col string) string {
		i, ok := index[col]
		if !ok || i >= len(row) {
			return ""
		}
		return strings.TrimSpace(row[i])
	}

	var questions []models.Question
	for n, row := range rows[1:] {
		line := n + 2
		if cell(row, "id") == "" {
			continue
		}

		q := models.Question{
			ID:       cell(row, "id"),
			Category: cell(row, "category"),
			Text:     cell(row, "text"),
			Type:     models.QuestionType(strings.ToLower(cell(row, "type"))),
			Required: parseBool(cell(row, "required")),
			Weight:   1,
			Order:    len(questions) + 1,
		}
		q.Subcategory = optional(cell(row, "subcategory"))
		q.HelpText = optional(cell(row, "help_text"))
		q.ComplianceTag = optional(cell(row, "compliance_tag"))
		if v := cell(row, "risk_impact"); v != "" {
			impact := models.RiskImpact(strings.ToLower(v))
			q.RiskImpact = &impact
		}

		if v := cell(row, "weight"); v != "" {
			w, err := strconv.ParseFloat(v, 64)
			if err != nil {
				return nil, fmt.Errorf("%s row %d: invalid weight %q", SheetQuestions, line, v)
			}
			q.Weight = w
		}
		if v := cell(row, "order"); v != "" {
			o, err := strconv.Atoi(v)
			if err != nil {
				return nil, fmt.Errorf("%s row %d: invalid order %q", SheetQuestions, line, v)
			}
			q.Order = o
		}
		if v := cell(row, "options"); v != "" {
			q.Options = splitPipe(v)
		}

		if q.Type == models.QuestionScale {
			scale, err := parseScale(cell(row, "scale_min"), cell(row, "scale_max"), cell(row, "scale_labels"))
			if err != nil {
				return nil, fmt.Errorf("%s row %d: %w", SheetQuestions, line, err)
			}
			q.Scale = scale
		}

		questions = append(questions, q)
	}

	if len(questions) == 0 {
		return nil, ErrNoQuestions
	}
	return questions, nil
}

func parseScale(minStr, maxStr, labels string) (*models.ScaleParams, error) {
	scale := &models.ScaleParams{}
	if minStr != "" {
		v, err := strconv.ParseFloat(minStr, 64)
		if err != nil {
			return nil, fmt.Errorf("invalid scale_min %q", minStr)
		}
		scale.Min = v
	}
	if maxStr == "" {
		return nil, fmt.Errorf("scale_max is required for scale questions")
	}
	v, err := strconv.ParseFloat(maxStr, 64)
	if err != nil {
		return nil, fmt.Errorf("invalid scale_max %q", maxStr)
	}
	scale.Max = v

	if labels != "" {
		scale.Labels = make(map[string]string)
		for _, part := range splitPipe(labels) {
			k, label, ok := strings.Cut(part, "=")
			if !ok {
				continue
			}
			scale.Labels[strings.TrimSpace(k)] = strings.TrimSpace(label)
		}
	}
	return scale, nil
}

func splitPipe(s string) []string {
	var out []string
	for _, p := range strings.Split(s, "|") {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	return out
}

func parseBool(s string) bool {
	switch strings.ToLower(s) {
	case "1", "true", "yes", "y", "x":
		return true
	}
	return false
}

func optional(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}
