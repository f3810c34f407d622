// Package examapi is the REST client for the external Exam Service, which owns
// course lookup, attempt creation, progress storage and scoring.
package examapi

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/go-resty/resty/v2"
	"github.com/rs/zerolog"
	"github.com/stemsi/exstem-practice/internal/model"
)

// ErrUnauthorized is wrapped by errors for calls the service answered with 401.
var ErrUnauthorized = errors.New("exam service rejected the credential")

// APIError is returned when the service answers with a non-2xx status or an
// envelope whose success flag is false.
type APIError struct {
	Op      string
	Status  int
	Message string
}

func (e *APIError) Error() string {
	if e.Message == "" {
		return fmt.Sprintf("%s: exam service responded %d", e.Op, e.Status)
	}
	return fmt.Sprintf("%s: exam service responded %d: %s", e.Op, e.Status, e.Message)
}

// ServiceMessage returns the human-readable message the service attached, if any.
func (e *APIError) ServiceMessage() string { return e.Message }

// Unwrap lets errors.Is(err, ErrUnauthorized) match 401 responses.
func (e *APIError) Unwrap() error {
	if e.Status == http.StatusUnauthorized {
		return ErrUnauthorized
	}
	return nil
}

// Client talks to the Exam Service. The bearer token is passed per call.
type Client struct {
	http *resty.Client
	log  zerolog.Logger
}

// NewClient creates a Client for baseURL with the given per-request timeout.
func NewClient(baseURL string, timeout time.Duration, log zerolog.Logger) *Client {
	rc := resty.New().
		SetBaseURL(baseURL).
		SetTimeout(timeout).
		SetHeader("Content-Type", "application/json").
		SetHeader("Accept", "application/json")

	return &Client{
		http: rc,
		log:  log.With().Str("component", "examapi").Logger(),
	}
}

type envelope struct {
	Success *bool  `json:"success"`
	Message string `json:"message"`
	Detail  string `json:"detail"`
}

func (e *envelope) failed() bool { return e.Success != nil && !*e.Success }

func (e *envelope) message() string {
	if e.Message != "" {
		return e.Message
	}
	return e.Detail
}

type courseResponse struct {
	envelope
	Data struct {
		ID model.ID `json:"id"`
	} `json:"data"`
}

type startResponse struct {
	envelope
	TestAttemptID model.ID         `json:"test_attempt_id"`
	Questions     []model.Question `json:"questions"`
	Duration      int              `json:"duration"`
}

type resultResponse struct {
	envelope
	model.ResultAnalysis
}

type answersBody struct {
	Answers []model.Answer `json:"answers"`
}

// ResolveCourse maps a course slug to the course id.
func (c *Client) ResolveCourse(ctx context.Context, slug string) (model.ID, error) {
	var out courseResponse
	req := c.http.R().SetContext(ctx).SetPathParam("slug", slug)
	if err := c.do(req, http.MethodGet, "/api/courses/slug/{slug}/", "resolve course", &out, &out.envelope); err != nil {
		return "", err
	}
	if out.Data.ID == "" {
		return "", &APIError{Op: "resolve course", Status: http.StatusNotFound, Message: "course id missing"}
	}
	return out.Data.ID, nil
}

// StartAttempt asks the service to begin a practice attempt for courseID.
func (c *Client) StartAttempt(ctx context.Context, courseID model.ID, token string) (*model.StartedAttempt, error) {
	var out startResponse
	req := c.http.R().SetContext(ctx).SetAuthToken(token).SetPathParam("course_id", courseID.String())
	if err := c.do(req, http.MethodPost, "/api/exams/practice/{course_id}/start/", "start attempt", &out, &out.envelope); err != nil {
		return nil, err
	}
	return &model.StartedAttempt{
		AttemptID:       out.TestAttemptID,
		Questions:       out.Questions,
		DurationMinutes: out.Duration,
	}, nil
}

// SaveProgress stores an advisory snapshot of the answers.
func (c *Client) SaveProgress(ctx context.Context, attemptID model.ID, token string, answers []model.Answer) error {
	var out envelope
	req := c.http.R().SetContext(ctx).SetAuthToken(token).
		SetPathParam("attempt_id", attemptID.String()).
		SetBody(answersBody{Answers: answers})
	return c.do(req, http.MethodPost, "/api/exams/save-progress/{attempt_id}/", "save progress", &out, &out)
}

// AutoSubmit finalises an attempt whose time budget is exhausted. The answers
// frozen at the timeout travel along so nothing after the last autosave is lost.
func (c *Client) AutoSubmit(ctx context.Context, attemptID model.ID, token string, answers []model.Answer) (*model.ResultAnalysis, error) {
	var out resultResponse
	req := c.http.R().SetContext(ctx).SetAuthToken(token).
		SetPathParam("attempt_id", attemptID.String()).
		SetBody(answersBody{Answers: answers})
	if err := c.do(req, http.MethodPost, "/api/exams/auto-submit/{attempt_id}/", "auto submit", &out, &out.envelope); err != nil {
		return nil, err
	}
	return &out.ResultAnalysis, nil
}

// SubmitAttempt sends the final answers and returns the scored result.
func (c *Client) SubmitAttempt(ctx context.Context, attemptID model.ID, token string, answers []model.Answer) (*model.ResultAnalysis, error) {
	var out resultResponse
	req := c.http.R().SetContext(ctx).SetAuthToken(token).
		SetPathParam("attempt_id", attemptID.String()).
		SetBody(answersBody{Answers: answers})
	if err := c.do(req, http.MethodPost, "/api/exams/submit/{attempt_id}/", "submit attempt", &out, &out.envelope); err != nil {
		return nil, err
	}
	return &out.ResultAnalysis, nil
}

// do executes req, decoding the body into out for both success and error
// statuses, and turns failures into *APIError.
func (c *Client) do(req *resty.Request, method, path, op string, out any, env *envelope) error {
	start := time.Now()
	resp, err := req.SetResult(out).SetError(out).Execute(method, path)
	if err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}

	c.log.Debug().
		Str("op", op).
		Int("status", resp.StatusCode()).
		Dur("took", time.Since(start)).
		Msg("Exam service call")

	if resp.IsError() || env.failed() {
		return &APIError{Op: op, Status: resp.StatusCode(), Message: env.message()}
	}
	return nil
}
