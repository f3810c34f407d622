// Package sessiontest provides an in-memory Exam Service for tests.
package sessiontest

import (
	"context"
	"sync"

	"github.com/stemsi/exstem-practice/internal/model"
)

// Call records one request made against FakeService.
type Call struct {
	Op        string
	AttemptID model.ID
	Token     string
	Answers   []model.Answer
}

// FakeService implements session.ExamService with scripted responses.
// Errors queued in the *Errs slices are consumed one per call; once drained
// the call succeeds.
type FakeService struct {
	mu sync.Mutex

	CourseID model.ID
	Started  model.StartedAttempt
	Result   model.ResultAnalysis

	ResolveErr     error
	StartErr       error
	SaveErrs       []error
	AutoSubmitErrs []error
	SubmitErrs     []error
	// NoResult makes successful submissions return a nil result.
	NoResult bool

	// SubmitGate, when set, blocks SubmitAttempt until it is closed or
	// receives. SubmitEntered is signalled once the call is blocked.
	SubmitGate    chan struct{}
	SubmitEntered chan struct{}

	calls []Call
}

// NewFakeService returns a fake serving questions for an attempt of the given
// duration.
func NewFakeService(durationMinutes int, questions ...model.Question) *FakeService {
	return &FakeService{
		CourseID: "7",
		Started: model.StartedAttempt{
			AttemptID:       "1001",
			Questions:       questions,
			DurationMinutes: durationMinutes,
		},
		Result: model.ResultAnalysis{Score: 1, TotalMarks: 2, Percentage: 50, Passed: false, DurationTaken: 1},
	}
}

// Single returns a SINGLE question with n options.
func Single(id string, n int) model.Question {
	return question(id, model.QuestionTypeSingleChoice, n)
}

// Multi returns an MCQ question with n options.
func Multi(id string, n int) model.Question {
	return question(id, model.QuestionTypeMultipleChoice, n)
}

func question(id string, t model.QuestionType, n int) model.Question {
	opts := make([]string, n)
	for i := range opts {
		opts[i] = string(rune('A' + i))
	}
	return model.Question{ID: model.ID(id), QuestionText: "Question " + id, QuestionType: t, Options: opts, Marks: 1}
}

func (f *FakeService) ResolveCourse(_ context.Context, slug string) (model.ID, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls = append(f.calls, Call{Op: "resolve"})
	if f.ResolveErr != nil {
		return "", f.ResolveErr
	}
	return f.CourseID, nil
}

func (f *FakeService) StartAttempt(_ context.Context, _ model.ID, token string) (*model.StartedAttempt, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls = append(f.calls, Call{Op: "start", Token: token})
	if f.StartErr != nil {
		return nil, f.StartErr
	}
	started := f.Started
	started.Questions = append([]model.Question(nil), f.Started.Questions...)
	return &started, nil
}

func (f *FakeService) SaveProgress(_ context.Context, attemptID model.ID, token string, answers []model.Answer) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls = append(f.calls, Call{Op: "save", AttemptID: attemptID, Token: token, Answers: model.CloneAnswers(answers)})
	return pop(&f.SaveErrs)
}

func (f *FakeService) AutoSubmit(_ context.Context, attemptID model.ID, token string, answers []model.Answer) (*model.ResultAnalysis, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls = append(f.calls, Call{Op: "auto_submit", AttemptID: attemptID, Token: token, Answers: model.CloneAnswers(answers)})
	if err := pop(&f.AutoSubmitErrs); err != nil {
		return nil, err
	}
	if f.NoResult {
		return nil, nil
	}
	res := f.Result
	return &res, nil
}

func (f *FakeService) SubmitAttempt(ctx context.Context, attemptID model.ID, token string, answers []model.Answer) (*model.ResultAnalysis, error) {
	f.mu.Lock()
	f.calls = append(f.calls, Call{Op: "submit", AttemptID: attemptID, Token: token, Answers: model.CloneAnswers(answers)})
	gate, entered := f.SubmitGate, f.SubmitEntered
	f.mu.Unlock()

	if gate != nil {
		if entered != nil {
			entered <- struct{}{}
		}
		select {
		case <-gate:
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}

	f.mu.Lock()
	defer f.mu.Unlock()
	if err := pop(&f.SubmitErrs); err != nil {
		return nil, err
	}
	if f.NoResult {
		return nil, nil
	}
	res := f.Result
	return &res, nil
}

// Calls returns the recorded calls for op, or all calls when op is empty.
func (f *FakeService) Calls(op string) []Call {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []Call
	for _, c := range f.calls {
		if op == "" || c.Op == op {
			out = append(out, c)
		}
	}
	return out
}

// SetResult replaces the result returned by later submissions.
func (f *FakeService) SetResult(r model.ResultAnalysis) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.Result = r
}

func pop(errs *[]error) error {
	if len(*errs) == 0 {
		return nil
	}
	err := (*errs)[0]
	*errs = (*errs)[1:]
	return err
}
