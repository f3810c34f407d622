package handler

import (
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog"
	"github.com/stemsi/exstem-practice/internal/examapi"
	"github.com/stemsi/exstem-practice/internal/middleware"
	"github.com/stemsi/exstem-practice/internal/model"
	"github.com/stemsi/exstem-practice/internal/report"
	"github.com/stemsi/exstem-practice/internal/response"
	"github.com/stemsi/exstem-practice/internal/service"
	"github.com/stemsi/exstem-practice/internal/session"
	"github.com/stemsi/exstem-practice/internal/validator"
)

const xlsxContentType = "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet"

// SessionHandler exposes hosted exam sessions over REST.
type SessionHandler struct {
	sessions *service.SessionService
	log      zerolog.Logger
}

// NewSessionHandler creates a new SessionHandler.
func NewSessionHandler(sessions *service.SessionService, log zerolog.Logger) *SessionHandler {
	return &SessionHandler{
		sessions: sessions,
		log:      log.With().Str("component", "session_handler").Logger(),
	}
}

// SessionView is what exam screens render: the snapshot plus its display values.
type SessionView struct {
	ID                 string                `json:"session_id"`
	CreatedAt          time.Time             `json:"created_at"`
	Status             model.AttemptStatus   `json:"status"`
	CourseSlug         string                `json:"course_slug"`
	AttemptID          model.ID              `json:"attempt_id"`
	Questions          []model.Question      `json:"questions"`
	Answers            []model.Answer        `json:"answers"`
	CurrentIndex       int                   `json:"current_index"`
	RemainingSeconds   int                   `json:"remaining_seconds"`
	Clock              string                `json:"clock"`
	TimerBand          report.TimerBand      `json:"timer_band"`
	Progress           report.ProgressView   `json:"progress"`
	ConfirmArmed       bool                  `json:"confirm_armed"`
	Submitting         bool                  `json:"submitting"`
	ResultReady        bool                  `json:"result_ready"`
	ResultsUnavailable bool                  `json:"results_unavailable"`
	LastError          string                `json:"last_error,omitempty"`
	SubmitOutcome      session.SubmitOutcome `json:"submit_outcome,omitempty"`
}

// NewSessionView renders a hosted session for clients.
func NewSessionView(info *service.SessionInfo) SessionView {
	snap := info.Snapshot
	return SessionView{
		ID:                 info.ID,
		CreatedAt:          info.CreatedAt,
		Status:             snap.Status,
		CourseSlug:         snap.CourseSlug,
		AttemptID:          snap.AttemptID,
		Questions:          snap.Questions,
		Answers:            snap.Answers,
		CurrentIndex:       snap.CurrentIndex,
		RemainingSeconds:   snap.RemainingSeconds,
		Clock:              report.FormatClock(snap.RemainingSeconds),
		TimerBand:          report.Band(snap.RemainingSeconds),
		Progress:           report.Progress(snap.Answers),
		ConfirmArmed:       snap.ConfirmArmed,
		Submitting:         snap.Submitting,
		ResultReady:        snap.Result != nil,
		ResultsUnavailable: snap.ResultsUnavailable,
		LastError:          snap.LastError,
	}
}

// StartSession godoc
// POST /api/v1/exams/:slug/sessions
// Resolves the course and starts a new practice attempt.
func (h *SessionHandler) StartSession(c *gin.Context) {
	cred := middleware.GetCredential(c)
	if cred == nil {
		response.Fail(c, http.StatusUnauthorized, response.ErrTokenRequired)
		return
	}

	slug := c.Param("slug")
	if fields := validator.Var("slug", slug, "required,max=100,slug"); fields != nil {
		response.FailWithFields(c, http.StatusBadRequest, response.ErrValidation, fields)
		return
	}

	info, err := h.sessions.Start(c.Request.Context(), cred.Owner, cred.Token, slug)
	if err != nil {
		h.fail(c, err)
		return
	}

	response.Success(c, http.StatusCreated, NewSessionView(info))
}

// GetSession godoc
// GET /api/v1/sessions/:id
func (h *SessionHandler) GetSession(c *gin.Context) {
	cred := middleware.GetCredential(c)
	if cred == nil {
		response.Fail(c, http.StatusUnauthorized, response.ErrTokenRequired)
		return
	}

	info, err := h.sessions.Get(cred.Owner, c.Param("id"))
	if err != nil {
		h.fail(c, err)
		return
	}
	response.Success(c, http.StatusOK, NewSessionView(info))
}

// SelectAnswer godoc
// PUT /api/v1/sessions/:id/answers/:index
// Selects an option. MCQ questions toggle it, the others replace the answer.
func (h *SessionHandler) SelectAnswer(c *gin.Context) {
	cred := middleware.GetCredential(c)
	if cred == nil {
		response.Fail(c, http.StatusUnauthorized, response.ErrTokenRequired)
		return
	}

	index, ok := pathIndex(c, "index")
	if !ok {
		return
	}

	var req model.SelectAnswerRequest
	if fields := validator.Bind(c, &req); fields != nil {
		response.FailWithFields(c, http.StatusBadRequest, response.ErrValidation, fields)
		return
	}

	info, err := h.sessions.SelectAnswer(cred.Owner, c.Param("id"), index, *req.Option)
	if err != nil {
		h.fail(c, err)
		return
	}
	response.Success(c, http.StatusOK, NewSessionView(info))
}

// Navigate godoc
// POST /api/v1/sessions/:id/navigate
func (h *SessionHandler) Navigate(c *gin.Context) {
	cred := middleware.GetCredential(c)
	if cred == nil {
		response.Fail(c, http.StatusUnauthorized, response.ErrTokenRequired)
		return
	}

	var req model.NavigateRequest
	if fields := validator.Bind(c, &req); fields != nil {
		response.FailWithFields(c, http.StatusBadRequest, response.ErrValidation, fields)
		return
	}

	info, err := h.sessions.Navigate(cred.Owner, c.Param("id"), *req.Index)
	if err != nil {
		h.fail(c, err)
		return
	}
	response.Success(c, http.StatusOK, NewSessionView(info))
}

// SaveProgress godoc
// POST /api/v1/sessions/:id/save
// Queues a background save; failures are only visible in the logs.
func (h *SessionHandler) SaveProgress(c *gin.Context) {
	cred := middleware.GetCredential(c)
	if cred == nil {
		response.Fail(c, http.StatusUnauthorized, response.ErrTokenRequired)
		return
	}

	info, err := h.sessions.Save(cred.Owner, c.Param("id"))
	if err != nil {
		h.fail(c, err)
		return
	}
	response.Success(c, http.StatusAccepted, NewSessionView(info))
}

// Submit godoc
// POST /api/v1/sessions/:id/submit
// The first call arms the confirmation, the second one submits.
func (h *SessionHandler) Submit(c *gin.Context) {
	cred := middleware.GetCredential(c)
	if cred == nil {
		response.Fail(c, http.StatusUnauthorized, response.ErrTokenRequired)
		return
	}

	outcome, info, err := h.sessions.Submit(c.Request.Context(), cred.Owner, c.Param("id"))
	if err != nil {
		if errors.Is(err, session.ErrSubmitFailed) && info != nil {
			response.FailWithMessage(c, http.StatusBadGateway, response.ErrSubmitFailed, info.Snapshot.LastError)
			return
		}
		h.fail(c, err)
		return
	}

	view := NewSessionView(info)
	view.SubmitOutcome = outcome
	status := http.StatusOK
	if outcome == session.SubmitArmed {
		status = http.StatusAccepted
	}
	response.Success(c, status, view)
}

// CancelSubmit godoc
// DELETE /api/v1/sessions/:id/submit
func (h *SessionHandler) CancelSubmit(c *gin.Context) {
	cred := middleware.GetCredential(c)
	if cred == nil {
		response.Fail(c, http.StatusUnauthorized, response.ErrTokenRequired)
		return
	}

	info, err := h.sessions.CancelSubmit(cred.Owner, c.Param("id"))
	if err != nil {
		h.fail(c, err)
		return
	}
	response.Success(c, http.StatusOK, NewSessionView(info))
}

// GetResult godoc
// GET /api/v1/sessions/:id/result
func (h *SessionHandler) GetResult(c *gin.Context) {
	info, res, ok := h.result(c)
	if !ok {
		return
	}
	response.Success(c, http.StatusOK, gin.H{
		"session_id": info.ID,
		"attempt_id": info.Snapshot.AttemptID,
		"status":     info.Snapshot.Status,
		"summary":    report.Summarize(*res),
	})
}

// ExportResult godoc
// GET /api/v1/sessions/:id/result/export
// Downloads the scored attempt as an xlsx workbook.
func (h *SessionHandler) ExportResult(c *gin.Context) {
	info, res, ok := h.result(c)
	if !ok {
		return
	}

	attemptID := info.Snapshot.AttemptID.String()
	data, err := report.ExportWorkbook(attemptID, *res)
	if err != nil {
		h.log.Error().Err(err).Str("attempt_id", attemptID).Msg("Failed to export result workbook")
		response.Fail(c, http.StatusInternalServerError, response.ErrInternal)
		return
	}

	c.Header("Content-Disposition", fmt.Sprintf(`attachment; filename="attempt-%s.xlsx"`, attemptID))
	c.Data(http.StatusOK, xlsxContentType, data)
}

// CloseSession godoc
// DELETE /api/v1/sessions/:id
// Stops the session's timers. A pending result is discarded.
func (h *SessionHandler) CloseSession(c *gin.Context) {
	cred := middleware.GetCredential(c)
	if cred == nil {
		response.Fail(c, http.StatusUnauthorized, response.ErrTokenRequired)
		return
	}

	if err := h.sessions.Close(cred.Owner, c.Param("id")); err != nil {
		h.fail(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}

// result writes the error response itself when no result can be shown.
func (h *SessionHandler) result(c *gin.Context) (*service.SessionInfo, *model.ResultAnalysis, bool) {
	cred := middleware.GetCredential(c)
	if cred == nil {
		response.Fail(c, http.StatusUnauthorized, response.ErrTokenRequired)
		return nil, nil, false
	}

	info, err := h.sessions.Get(cred.Owner, c.Param("id"))
	if err != nil {
		h.fail(c, err)
		return nil, nil, false
	}

	snap := info.Snapshot
	switch {
	case snap.Result != nil:
		return info, snap.Result, true
	case snap.ResultsUnavailable:
		response.FailWithMessage(c, http.StatusServiceUnavailable, response.ErrResultsUnavailable,
			fmt.Sprintf("%s Attempt id: %s.", response.GetMessage(response.ErrResultsUnavailable), snap.AttemptID))
	default:
		response.Fail(c, http.StatusConflict, response.ErrResultNotReady)
	}
	return nil, nil, false
}

// fail maps session and service errors to the response envelope.
func (h *SessionHandler) fail(c *gin.Context, err error) {
	writeSessionError(c, h.log, err)
}

func writeSessionError(c *gin.Context, log zerolog.Logger, err error) {
	f := classifySessionError(err)
	switch {
	case f.status >= http.StatusInternalServerError && f.code == response.ErrInternal:
		log.Error().Err(err).Str("path", c.FullPath()).Msg("Unhandled session error")
	case f.status >= http.StatusInternalServerError:
		log.Warn().Err(err).Str("path", c.FullPath()).Msg("Exam service call failed")
	}
	if f.fields != nil {
		response.FailWithFields(c, f.status, f.code, f.fields)
		return
	}
	response.FailWithMessage(c, f.status, f.code, f.message)
}

// sessionFailure is how a session error is reported to clients.
type sessionFailure struct {
	status  int
	code    response.ErrCode
	message string
	fields  map[string]string
}

func classifySessionError(err error) sessionFailure {
	var inProgress *service.InProgressError
	var apiErr *examapi.APIError

	switch {
	case errors.As(err, &inProgress):
		return sessionFailure{status: http.StatusConflict, code: response.ErrAttemptInProgress,
			fields: map[string]string{"session_id": inProgress.SessionID}}
	case errors.Is(err, service.ErrSessionNotFound):
		return sessionFailure{status: http.StatusNotFound, code: response.ErrSessionNotFound}
	case errors.Is(err, service.ErrForbidden):
		return sessionFailure{status: http.StatusForbidden, code: response.ErrForbidden}
	case errors.Is(err, session.ErrMissingCredential):
		return sessionFailure{status: http.StatusUnauthorized, code: response.ErrTokenRequired}
	case errors.Is(err, examapi.ErrUnauthorized):
		return sessionFailure{status: http.StatusUnauthorized, code: response.ErrUnauthorized}
	case errors.Is(err, session.ErrResolution):
		if errors.As(err, &apiErr) && apiErr.Status == http.StatusNotFound {
			return sessionFailure{status: http.StatusNotFound, code: response.ErrCourseNotFound}
		}
		return sessionFailure{status: http.StatusBadGateway, code: response.ErrExamServiceUnavailable}
	case errors.Is(err, session.ErrStartRejected):
		return sessionFailure{status: http.StatusUnprocessableEntity, code: response.ErrStartRejected, message: serviceMessage(err)}
	case errors.Is(err, session.ErrSubmitFailed):
		return sessionFailure{status: http.StatusBadGateway, code: response.ErrSubmitFailed, message: serviceMessage(err)}
	case errors.Is(err, session.ErrSubmitInFlight):
		return sessionFailure{status: http.StatusConflict, code: response.ErrSubmitInFlight}
	case errors.Is(err, session.ErrNotActive), errors.Is(err, session.ErrAlreadyStarted):
		return sessionFailure{status: http.StatusConflict, code: response.ErrAttemptNotActive}
	case errors.Is(err, session.ErrSessionClosed):
		return sessionFailure{status: http.StatusGone, code: response.ErrSessionClosed}
	case errors.Is(err, session.ErrInvalidQuestion):
		return sessionFailure{status: http.StatusBadRequest, code: response.ErrInvalidQuestion}
	case errors.Is(err, session.ErrInvalidOption):
		return sessionFailure{status: http.StatusBadRequest, code: response.ErrInvalidOption}
	default:
		return sessionFailure{status: http.StatusInternalServerError, code: response.ErrInternal}
	}
}

func serviceMessage(err error) string {
	var sm interface{ ServiceMessage() string }
	if errors.As(err, &sm) {
		return sm.ServiceMessage()
	}
	return ""
}

// pathIndex parses a non-negative integer path parameter, writing a
// validation error when it is not one.
func pathIndex(c *gin.Context, name string) (int, bool) {
	raw := c.Param(name)
	if fields := validator.Var(name, raw, "required,numeric"); fields != nil {
		response.FailWithFields(c, http.StatusBadRequest, response.ErrValidation, fields)
		return 0, false
	}
	n, err := strconv.Atoi(raw)
	if err != nil || n < 0 {
		response.FailWithFields(c, http.StatusBadRequest, response.ErrValidation,
			map[string]string{name: name + " must be a non-negative integer"})
		return 0, false
	}
	return n, true
}
