package model

// ResultAnalysis is the server-scored outcome of an attempt. It is produced
// only by the Exam Service and is read-only on this side.
type ResultAnalysis struct {
	Score      float64 `json:"score"`
	TotalMarks float64 `json:"total_marks"`
	Percentage float64 `json:"percentage"`
	// PassingPercentage is nil when the service did not send one.
	PassingPercentage *float64 `json:"passing_percentage,omitempty"`
	Passed            bool     `json:"passed"`
	// DurationTaken is in minutes.
	DurationTaken float64            `json:"duration_taken"`
	Analysis      []QuestionAnalysis `json:"analysis"`
}

// QuestionAnalysis is the per-question correctness breakdown.
type QuestionAnalysis struct {
	QuestionID     ID           `json:"question_id,omitempty"`
	QuestionText   string       `json:"question_text"`
	IsCorrect      bool         `json:"is_correct"`
	UserAnswer     *AnswerValue `json:"user_answer"`
	CorrectAnswers []int        `json:"correct_answers"`
	Options        []string     `json:"options"`
	Explanation    string       `json:"explanation"`
}

// Picked reports whether the user selected option.
func (q QuestionAnalysis) Picked(option int) bool {
	return q.UserAnswer != nil && q.UserAnswer.Contains(option)
}

// IsCorrectOption reports whether option is one of the correct answers.
func (q QuestionAnalysis) IsCorrectOption(option int) bool {
	for _, c := range q.CorrectAnswers {
		if c == option {
			return true
		}
	}
	return false
}
