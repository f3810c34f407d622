package model

import "time"

// AttemptStatus is the single tagged state of an exam attempt.
type AttemptStatus string

const (
	AttemptStatusNotStarted AttemptStatus = "NOT_STARTED"
	AttemptStatusActive     AttemptStatus = "ACTIVE"
	AttemptStatusCompleted  AttemptStatus = "COMPLETED"
	AttemptStatusTimedOut   AttemptStatus = "TIMED_OUT"
)

// Terminal reports whether no further transition is possible.
func (s AttemptStatus) Terminal() bool {
	return s == AttemptStatusCompleted || s == AttemptStatusTimedOut
}

// StartedAttempt is what the Exam Service returns when an attempt begins.
type StartedAttempt struct {
	AttemptID       ID
	Questions       []Question
	DurationMinutes int
}

// SessionOutcome is the journal record of how a hosted session ended.
type SessionOutcome struct {
	SessionID          string        `json:"session_id"`
	AttemptID          string        `json:"attempt_id"`
	Owner              string        `json:"owner"`
	CourseSlug         string        `json:"course_slug"`
	Status             AttemptStatus `json:"status"`
	Score              *float64      `json:"score,omitempty"`
	Percentage         *float64      `json:"percentage,omitempty"`
	Passed             *bool         `json:"passed,omitempty"`
	ResultsUnavailable bool          `json:"results_unavailable"`
	AnsweredCount      int           `json:"answered_count"`
	QuestionCount      int           `json:"question_count"`
	FinishedAt         time.Time     `json:"finished_at"`
	// Requeues counts failed journal inserts; it never reaches the database.
	Requeues           int           `json:"requeues,omitempty"`
}
