package report

import (
	"fmt"
	"strconv"

	"github.com/stemsi/exstem-practice/internal/model"
)

// Mastery is the badge shown on a passed attempt.
type Mastery string

const (
	MasteryExpert    Mastery = "EXPERT"
	MasteryAdvanced  Mastery = "ADVANCED"
	MasteryCompetent Mastery = "COMPETENT"
)

// OptionMark is how an option is highlighted in the answer review.
type OptionMark string

const (
	MarkCorrect   OptionMark = "correct"
	MarkWrongPick OptionMark = "wrong_pick"
	MarkNeutral   OptionMark = "neutral"
)

// Summary is the result screen of a scored attempt.
type Summary struct {
	ScoreLine         string   `json:"score_line"`
	Score             float64  `json:"score"`
	TotalMarks        float64  `json:"total_marks"`
	Percentage        float64  `json:"percentage"`
	Passed            bool     `json:"passed"`
	PassingPercentage *float64 `json:"passing_percentage,omitempty"`
	// PassingGap is how many percentage points were missing. Nil when the
	// attempt passed or the service did not send a passing threshold.
	PassingGap    *float64     `json:"passing_gap,omitempty"`
	Mastery       Mastery      `json:"mastery,omitempty"`
	DurationTaken float64      `json:"duration_taken"`
	Correct       int          `json:"correct"`
	Incorrect     int          `json:"incorrect"`
	Review        []ReviewItem `json:"review"`
}

// ReviewItem is one question in the answer review.
type ReviewItem struct {
	Number       int          `json:"number"`
	QuestionText string       `json:"question_text"`
	IsCorrect    bool         `json:"is_correct"`
	Answered     bool         `json:"answered"`
	Options      []OptionView `json:"options"`
	Explanation  string       `json:"explanation,omitempty"`
}

// OptionView is a single option in the review.
type OptionView struct {
	Text   string     `json:"text"`
	Picked bool       `json:"picked"`
	Mark   OptionMark `json:"mark"`
}

// Summarize builds the result screen. Pass/fail always comes from the service.
func Summarize(res model.ResultAnalysis) Summary {
	s := Summary{
		ScoreLine:         fmt.Sprintf("%s / %s", formatNumber(res.Score), formatNumber(res.TotalMarks)),
		Score:             res.Score,
		TotalMarks:        res.TotalMarks,
		Percentage:        res.Percentage,
		Passed:            res.Passed,
		PassingPercentage: res.PassingPercentage,
		DurationTaken:     res.DurationTaken,
		Review:            make([]ReviewItem, 0, len(res.Analysis)),
	}
	if gap, ok := PassingGap(res); ok {
		s.PassingGap = &gap
	}
	if res.Passed {
		s.Mastery = MasteryFor(res.Percentage)
	}

	for i, qa := range res.Analysis {
		if qa.IsCorrect {
			s.Correct++
		} else {
			s.Incorrect++
		}
		item := ReviewItem{
			Number:       i + 1,
			QuestionText: qa.QuestionText,
			IsCorrect:    qa.IsCorrect,
			Answered:     qa.UserAnswer != nil && qa.UserAnswer.Len() > 0,
			Explanation:  qa.Explanation,
			Options:      make([]OptionView, len(qa.Options)),
		}
		for j, text := range qa.Options {
			item.Options[j] = OptionView{Text: text, Picked: qa.Picked(j), Mark: MarkOption(qa, j)}
		}
		s.Review = append(s.Review, item)
	}
	return s
}

// PassingGap returns the percentage points a failed attempt fell short by.
// ok is false when the attempt passed or no threshold was supplied.
func PassingGap(res model.ResultAnalysis) (gap float64, ok bool) {
	if res.Passed || res.PassingPercentage == nil {
		return 0, false
	}
	gap = *res.PassingPercentage - res.Percentage
	if gap < 0 {
		gap = 0
	}
	return gap, true
}

// MasteryFor maps a passing percentage to its badge.
func MasteryFor(percentage float64) Mastery {
	switch {
	case percentage > 85:
		return MasteryExpert
	case percentage > 70:
		return MasteryAdvanced
	default:
		return MasteryCompetent
	}
}

// MarkOption highlights correct options and wrongly picked ones.
func MarkOption(qa model.QuestionAnalysis, option int) OptionMark {
	switch {
	case qa.IsCorrectOption(option):
		return MarkCorrect
	case qa.Picked(option):
		return MarkWrongPick
	default:
		return MarkNeutral
	}
}

func formatNumber(f float64) string {
	return strconv.FormatFloat(f, 'f', -1, 64)
}
