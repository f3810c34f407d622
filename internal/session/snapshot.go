package session

import (
	"github.com/stemsi/exstem-practice/internal/model"
)

// EventType names an observable change of controller state.
type EventType string

const (
	EventStarted           EventType = "started"
	EventTick              EventType = "tick"
	EventAnswer            EventType = "answer"
	EventNavigate          EventType = "navigate"
	EventSaved             EventType = "saved"
	EventSaveFailed        EventType = "save_failed"
	EventSubmitArmed       EventType = "submit_armed"
	EventSubmitCancelled   EventType = "submit_cancelled"
	EventSubmitting        EventType = "submitting"
	EventSubmitFailed      EventType = "submit_failed"
	EventCompleted         EventType = "completed"
	EventTimedOut          EventType = "timed_out"
	EventResult            EventType = "result"
	EventResultUnavailable EventType = "result_unavailable"
	EventClosed            EventType = "closed"
)

// Event pairs a change with the state right after it.
type Event struct {
	Type     EventType `json:"type"`
	Snapshot Snapshot  `json:"snapshot"`
}

// Listener observes controller events. It runs outside the controller lock,
// possibly on timer goroutines, and must not block for long.
type Listener func(Event)

// Snapshot is a point-in-time copy of an attempt. Questions are shared and
// must be treated as read-only; answers are deep copies.
type Snapshot struct {
	Status             model.AttemptStatus   `json:"status"`
	CourseSlug         string                `json:"course_slug"`
	CourseID           model.ID              `json:"course_id"`
	AttemptID          model.ID              `json:"attempt_id"`
	DurationSeconds    int                   `json:"duration_seconds"`
	Questions          []model.Question      `json:"questions"`
	Answers            []model.Answer        `json:"answers"`
	CurrentIndex       int                   `json:"current_index"`
	RemainingSeconds   int                   `json:"remaining_seconds"`
	ConfirmArmed       bool                  `json:"confirm_armed"`
	Submitting         bool                  `json:"submitting"`
	Result             *model.ResultAnalysis `json:"result,omitempty"`
	ResultsUnavailable bool                  `json:"results_unavailable"`
	LastError          string                `json:"last_error,omitempty"`
	Closed             bool                  `json:"closed"`
}

// Answered counts answered questions.
func (s Snapshot) Answered() int {
	n := 0
	for _, a := range s.Answers {
		if a.Answered() {
			n++
		}
	}
	return n
}

// Current returns the question under the cursor.
func (s Snapshot) Current() (model.Question, bool) {
	if s.CurrentIndex < 0 || s.CurrentIndex >= len(s.Questions) {
		return model.Question{}, false
	}
	return s.Questions[s.CurrentIndex], true
}

func (c *Controller) snapshotLocked() Snapshot {
	return Snapshot{
		Status:             c.status,
		CourseSlug:         c.courseSlug,
		CourseID:           c.courseID,
		AttemptID:          c.attemptID,
		DurationSeconds:    c.durationSeconds,
		Questions:          c.questions,
		Answers:            model.CloneAnswers(c.answers),
		CurrentIndex:       c.current,
		RemainingSeconds:   c.remaining,
		ConfirmArmed:       c.confirmArmed,
		Submitting:         c.submitting,
		Result:             c.result,
		ResultsUnavailable: c.unavailable,
		LastError:          c.lastErr,
		Closed:             c.closed,
	}
}
