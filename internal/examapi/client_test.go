package examapi

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stemsi/exstem-practice/internal/model"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestClient(t *testing.T, h http.HandlerFunc) *Client {
	t.Helper()
	srv := httptest.NewServer(h)
	t.Cleanup(srv.Close)
	return NewClient(srv.URL, 2*time.Second, zerolog.Nop())
}

func writeJSON(w http.ResponseWriter, status int, body string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_, _ = w.Write([]byte(body))
}

func TestResolveCourse(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodGet, r.Method)
		assert.Equal(t, "/api/courses/slug/go-basics/", r.URL.Path)
		writeJSON(w, http.StatusOK, `{"data":{"id":12,"title":"Go"}}`)
	})

	id, err := c.ResolveCourse(context.Background(), "go-basics")
	require.NoError(t, err)
	assert.Equal(t, model.ID("12"), id)
}

func TestResolveCourseNotFound(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusNotFound, `{"detail":"Not found."}`)
	})

	_, err := c.ResolveCourse(context.Background(), "nope")
	var apiErr *APIError
	require.ErrorAs(t, err, &apiErr)
	assert.Equal(t, http.StatusNotFound, apiErr.Status)
	assert.Equal(t, "Not found.", apiErr.Message)
}

func TestStartAttemptSendsBearerAndDecodes(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "Bearer tok-1", r.Header.Get("Authorization"))
		assert.Equal(t, "/api/exams/practice/12/start/", r.URL.Path)
		writeJSON(w, http.StatusOK, `{
			"success": true,
			"test_attempt_id": 501,
			"duration": 45,
			"questions": [
				{"id": 1, "question_text": "Pick one", "question_type": "SINGLE", "options": ["a","b"], "marks": 1},
				{"id": 2, "question_text": "Pick many", "question_type": "MCQ", "options": ["a","b","c"], "marks": 2}
			]
		}`)
	})

	started, err := c.StartAttempt(context.Background(), "12", "tok-1")
	require.NoError(t, err)
	assert.Equal(t, model.ID("501"), started.AttemptID)
	assert.Equal(t, 45, started.DurationMinutes)
	require.Len(t, started.Questions, 2)
	assert.Equal(t, model.QuestionTypeMultipleChoice, started.Questions[1].QuestionType)
}

func TestStartAttemptDeclinedEnvelope(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, `{"success": false, "message": "You have already completed this exam"}`)
	})

	_, err := c.StartAttempt(context.Background(), "12", "tok")
	var apiErr *APIError
	require.ErrorAs(t, err, &apiErr)
	assert.Equal(t, "You have already completed this exam", apiErr.Message)
}

func TestUnauthorizedIsDetectable(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusUnauthorized, `{"detail":"Invalid token."}`)
	})

	err := c.SaveProgress(context.Background(), "9", "expired", nil)
	assert.True(t, errors.Is(err, ErrUnauthorized))
}

func TestSubmitAttemptSendsAnswers(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/api/exams/submit/9/", r.URL.Path)
		var body struct {
			Answers []json.RawMessage `json:"answers"`
		}
		require.NoError(t, json.NewDecoder(r.Body).Decode(&body))
		require.Len(t, body.Answers, 2)
		assert.JSONEq(t, `{"answer":[0,2],"timestamp":null}`, string(body.Answers[0]))
		assert.JSONEq(t, `{"answer":null,"timestamp":null}`, string(body.Answers[1]))

		writeJSON(w, http.StatusOK, `{
			"success": true, "score": 2, "total_marks": 3, "percentage": 66.7,
			"passing_percentage": 50, "passed": true, "duration_taken": 4,
			"analysis": [{"question_text":"q","is_correct":true,"user_answer":[0,2],"correct_answers":[0,2],"options":["a","b","c"],"explanation":"because"}]
		}`)
	})

	v := model.MultiAnswer(2, 0)
	res, err := c.SubmitAttempt(context.Background(), "9", "tok", []model.Answer{{Value: &v}, {}})
	require.NoError(t, err)
	assert.True(t, res.Passed)
	require.NotNil(t, res.PassingPercentage)
	assert.Equal(t, 50.0, *res.PassingPercentage)
	require.Len(t, res.Analysis, 1)
	assert.True(t, res.Analysis[0].Picked(2))
}

func TestAutoSubmitTransportError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))
	url := srv.URL
	srv.Close()

	c := NewClient(url, time.Second, zerolog.Nop())
	_, err := c.AutoSubmit(context.Background(), "9", "tok", nil)
	require.Error(t, err)
	var apiErr *APIError
	assert.False(t, errors.As(err, &apiErr))
}

func TestSaveProgressSendsAnswers(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPost, r.Method)
		assert.Equal(t, "/api/exams/save-progress/9/", r.URL.Path)
		assert.Equal(t, "Bearer tok-2", r.Header.Get("Authorization"))
		assert.JSONEq(t, `{"answers":[
			{"answer":1,"timestamp":"2026-01-05T09:00:00Z"},
			{"answer":null,"timestamp":null}
		]}`, readBody(t, r))

		writeJSON(w, http.StatusOK, `{"success": true, "message": "Progress saved"}`)
	})

	at := time.Date(2026, 1, 5, 9, 0, 0, 0, time.UTC)
	v := model.SingleAnswer(1)
	err := c.SaveProgress(context.Background(), "9", "tok-2", []model.Answer{{Value: &v, RecordedAt: &at}, {}})
	require.NoError(t, err)
}

func TestSaveProgressDeclinedEnvelope(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, `{"success": false, "message": "Attempt is closed"}`)
	})

	err := c.SaveProgress(context.Background(), "9", "tok", nil)
	var apiErr *APIError
	require.ErrorAs(t, err, &apiErr)
	assert.Equal(t, "Attempt is closed", apiErr.Message)
}

func TestAutoSubmitSendsAnswersAndDecodes(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPost, r.Method)
		assert.Equal(t, "/api/exams/auto-submit/77/", r.URL.Path)
		assert.Equal(t, "Bearer tok-3", r.Header.Get("Authorization"))
		assert.JSONEq(t, `{"answers":[
			{"answer":0,"timestamp":null},
			{"answer":[1,3],"timestamp":null},
			{"answer":null,"timestamp":null}
		]}`, readBody(t, r))

		writeJSON(w, http.StatusOK, `{
			"success": true, "score": 1, "total_marks": 3, "percentage": 33.3,
			"passing_percentage": 60, "passed": false, "duration_taken": 1,
			"analysis": [
				{"question_text":"q1","is_correct":true,"user_answer":0,"correct_answers":[0],"options":["a","b"]},
				{"question_text":"q2","is_correct":false,"user_answer":[1,3],"correct_answers":[1,2],"options":["a","b","c","d"]},
				{"question_text":"q3","is_correct":false,"user_answer":null,"correct_answers":[0],"options":["t","f"]}
			]
		}`)
	})

	single := model.SingleAnswer(0)
	multi := model.MultiAnswer(3, 1)
	res, err := c.AutoSubmit(context.Background(), "77", "tok-3", []model.Answer{{Value: &single}, {Value: &multi}, {}})
	require.NoError(t, err)

	assert.False(t, res.Passed)
	assert.Equal(t, 33.3, res.Percentage)
	require.NotNil(t, res.PassingPercentage)
	assert.Equal(t, 60.0, *res.PassingPercentage)
	require.Len(t, res.Analysis, 3)

	require.NotNil(t, res.Analysis[0].UserAnswer)
	assert.False(t, res.Analysis[0].UserAnswer.Multiple())
	assert.Equal(t, []int{0}, res.Analysis[0].UserAnswer.Options())

	require.NotNil(t, res.Analysis[1].UserAnswer)
	assert.True(t, res.Analysis[1].UserAnswer.Multiple())
	assert.Equal(t, []int{1, 3}, res.Analysis[1].UserAnswer.Options())
	assert.True(t, res.Analysis[1].IsCorrectOption(2))

	assert.Nil(t, res.Analysis[2].UserAnswer)
}

func readBody(t *testing.T, r *http.Request) string {
	t.Helper()
	data, err := io.ReadAll(r.Body)
	assert.NoError(t, err)
	return string(data)
}
