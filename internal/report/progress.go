package report

import (
	"math"

	"github.com/stemsi/exstem-practice/internal/model"
)

// ProgressView is the answered/unanswered tally shown beside the question grid.
type ProgressView struct {
	Total      int `json:"total"`
	Answered   int `json:"answered"`
	Unanswered int `json:"unanswered"`
	Percentage int `json:"percentage"`
}

// Progress tallies answers.
func Progress(answers []model.Answer) ProgressView {
	p := ProgressView{Total: len(answers)}
	for _, a := range answers {
		if a.Answered() {
			p.Answered++
		}
	}
	p.Unanswered = p.Total - p.Answered
	if p.Total > 0 {
		p.Percentage = int(math.Round(float64(p.Answered) * 100 / float64(p.Total)))
	}
	return p
}
