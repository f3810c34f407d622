package report

import (
	"fmt"
	"strings"

	"github.com/stemsi/exstem-practice/internal/model"
	"github.com/xuri/excelize/v2"
)

const (
	summarySheet = "Summary"
	reviewSheet  = "Review"
)

var reviewHeaders = []string{"No", "Question", "Result", "Your Answer", "Correct Answer", "Explanation"}

// ExportWorkbook renders a scored attempt as an xlsx workbook with a summary
// sheet and a per-question review sheet.
func ExportWorkbook(attemptID string, res model.ResultAnalysis) ([]byte, error) {
	s := Summarize(res)

	f := excelize.NewFile()
	defer f.Close()

	if err := f.SetSheetName("Sheet1", summarySheet); err != nil {
		return nil, fmt.Errorf("failed to rename summary sheet: %w", err)
	}

	passing := "-"
	if s.PassingPercentage != nil {
		passing = fmt.Sprintf("%s%%", formatNumber(*s.PassingPercentage))
	}
	result := "Failed"
	if s.Passed {
		result = "Passed"
	}
	summaryRows := [][]any{
		{"Attempt", attemptID},
		{"Score", s.ScoreLine},
		{"Percentage", s.Percentage},
		{"Passing Percentage", passing},
		{"Result", result},
		{"Mastery", string(s.Mastery)},
		{"Duration (minutes)", s.DurationTaken},
		{"Correct", s.Correct},
		{"Incorrect", s.Incorrect},
	}
	for i, row := range summaryRows {
		if err := writeRow(f, summarySheet, i+1, row); err != nil {
			return nil, err
		}
	}

	if _, err := f.NewSheet(reviewSheet); err != nil {
		return nil, fmt.Errorf("failed to create review sheet: %w", err)
	}
	header := make([]any, len(reviewHeaders))
	for i, h := range reviewHeaders {
		header[i] = h
	}
	if err := writeRow(f, reviewSheet, 1, header); err != nil {
		return nil, err
	}
	for i, qa := range res.Analysis {
		item := s.Review[i]
		verdict := "Incorrect"
		if item.IsCorrect {
			verdict = "Correct"
		}
		row := []any{
			item.Number,
			item.QuestionText,
			verdict,
			optionTexts(qa.Options, pickedOptions(qa)),
			optionTexts(qa.Options, qa.CorrectAnswers),
			item.Explanation,
		}
		if err := writeRow(f, reviewSheet, i+2, row); err != nil {
			return nil, err
		}
	}
	f.SetActiveSheet(0)

	buf, err := f.WriteToBuffer()
	if err != nil {
		return nil, fmt.Errorf("failed to write workbook: %w", err)
	}
	return buf.Bytes(), nil
}

func writeRow(f *excelize.File, sheet string, row int, values []any) error {
	for col, v := range values {
		cell, err := excelize.CoordinatesToCellName(col+1, row)
		if err != nil {
			return err
		}
		if err := f.SetCellValue(sheet, cell, v); err != nil {
			return fmt.Errorf("failed to write %s!%s: %w", sheet, cell, err)
		}
	}
	return nil
}

func pickedOptions(qa model.QuestionAnalysis) []int {
	if qa.UserAnswer == nil {
		return nil
	}
	return qa.UserAnswer.Options()
}

func optionTexts(options []string, idx []int) string {
	if len(idx) == 0 {
		return "-"
	}
	parts := make([]string, 0, len(idx))
	for _, i := range idx {
		if i >= 0 && i < len(options) {
			parts = append(parts, options[i])
		} else {
			parts = append(parts, fmt.Sprintf("#%d", i))
		}
	}
	return strings.Join(parts, ", ")
}
