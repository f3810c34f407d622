package model

// QuestionType enumerates the answer shapes a question accepts.
type QuestionType string

const (
	QuestionTypeSingleChoice   QuestionType = "SINGLE"
	QuestionTypeMultipleChoice QuestionType = "MCQ"
	QuestionTypeTrueFalse      QuestionType = "TRUE_FALSE"
)

// Valid reports whether t is one of the known question types.
func (t QuestionType) Valid() bool {
	switch t {
	case QuestionTypeSingleChoice, QuestionTypeMultipleChoice, QuestionTypeTrueFalse:
		return true
	}
	return false
}

// Question is a question as served during an attempt. Correct answers are
// deliberately absent; they only arrive with the ResultAnalysis.
type Question struct {
	ID           ID           `json:"id"`
	QuestionText string       `json:"question_text"`
	QuestionType QuestionType `json:"question_type"`
	Options      []string     `json:"options"`
	Marks        int          `json:"marks"`
}

// trueFalseOptions is used when the service sends a TRUE_FALSE question without options.
var trueFalseOptions = []string{"True", "False"}

// OptionCount returns how many selectable options the question has.
func (q Question) OptionCount() int {
	if len(q.Options) == 0 && q.QuestionType == QuestionTypeTrueFalse {
		return len(trueFalseOptions)
	}
	return len(q.Options)
}

// Normalized returns a copy with implicit TRUE_FALSE options filled in.
func (q Question) Normalized() Question {
	out := q
	if len(q.Options) == 0 && q.QuestionType == QuestionTypeTrueFalse {
		out.Options = append([]string(nil), trueFalseOptions...)
	} else {
		out.Options = append([]string(nil), q.Options...)
	}
	return out
}
