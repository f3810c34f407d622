// Package session drives a single timed practice-exam attempt: countdown,
// periodic autosave, answer tracking, two-step submission and the automatic
// submission when the time budget runs out.
package session

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/rs/zerolog"
	"github.com/stemsi/exstem-practice/internal/model"
	"github.com/stemsi/exstem-practice/internal/scheduler"
)

const (
	TickInterval       = time.Second
	AutosaveInterval   = 30 * time.Second
	DefaultCallTimeout = 15 * time.Second

	// autoSubmitAttempts is the first try plus one retry. Only the timeout path
	// retries because nobody is there to press the button again.
	autoSubmitAttempts = 2

	msgSubmitFailed      = "Failed to submit exam. Please try again."
	msgResultUnavailable = "Results are unavailable right now. Please contact support with your attempt id."
)

// ExamService is the part of the Exam Service the controller depends on.
type ExamService interface {
	ResolveCourse(ctx context.Context, slug string) (model.ID, error)
	StartAttempt(ctx context.Context, courseID model.ID, token string) (*model.StartedAttempt, error)
	SaveProgress(ctx context.Context, attemptID model.ID, token string, answers []model.Answer) error
	AutoSubmit(ctx context.Context, attemptID model.ID, token string, answers []model.Answer) (*model.ResultAnalysis, error)
	SubmitAttempt(ctx context.Context, attemptID model.ID, token string, answers []model.Answer) (*model.ResultAnalysis, error)
}

// SubmitOutcome tells the caller what a Submit call did.
type SubmitOutcome string

const (
	// SubmitArmed means the call only armed the confirmation; nothing was sent.
	SubmitArmed SubmitOutcome = "ARMED"
	// SubmitCompleted means the answers were scored and the attempt is Completed.
	SubmitCompleted SubmitOutcome = "COMPLETED"
	// SubmitSuperseded means time ran out while the submission was in flight.
	SubmitSuperseded SubmitOutcome = "SUPERSEDED"
)

// Controller owns one exam attempt. All methods are safe for concurrent use;
// the listener may be called from timer goroutines.
type Controller struct {
	svc         ExamService
	sched       scheduler.Scheduler
	log         zerolog.Logger
	listener    Listener
	callTimeout time.Duration

	ctx    context.Context
	cancel context.CancelFunc
	bg     sync.WaitGroup

	mu              sync.Mutex
	status          model.AttemptStatus
	starting        bool
	closed          bool
	token           string
	courseSlug      string
	courseID        model.ID
	attemptID       model.ID
	durationSeconds int
	questions       []model.Question
	answers         []model.Answer
	current         int
	remaining       int
	confirmArmed    bool
	submitting      bool
	result          *model.ResultAnalysis
	unavailable     bool
	lastErr         string
	countdown       scheduler.Task
	autosave        scheduler.Task
}

// Option configures a Controller.
type Option func(*Controller)

// WithScheduler replaces the wall-clock scheduler.
func WithScheduler(s scheduler.Scheduler) Option {
	return func(c *Controller) { c.sched = s }
}

// WithLogger sets the controller logger.
func WithLogger(log zerolog.Logger) Option {
	return func(c *Controller) { c.log = log.With().Str("component", "exam_session").Logger() }
}

// WithListener registers the observer of state changes.
func WithListener(l Listener) Option {
	return func(c *Controller) { c.listener = l }
}

// WithCallTimeout bounds each Exam Service call.
func WithCallTimeout(d time.Duration) Option {
	return func(c *Controller) { c.callTimeout = d }
}

// New creates a controller in the NotStarted state.
func New(svc ExamService, opts ...Option) *Controller {
	c := &Controller{
		svc:         svc,
		sched:       scheduler.NewReal(),
		log:         zerolog.Nop(),
		callTimeout: DefaultCallTimeout,
		status:      model.AttemptStatusNotStarted,
	}
	for _, opt := range opts {
		opt(c)
	}
	c.ctx, c.cancel = context.WithCancel(context.Background())
	return c
}

// ────────────────────────────────────────────────────────────────────────────
// Lifecycle
// ────────────────────────────────────────────────────────────────────────────

// Start resolves the course slug, asks the service for a new attempt and moves
// to Active. Any error is fatal to the flow; the controller stays NotStarted.
func (c *Controller) Start(ctx context.Context, courseSlug, token string) (Snapshot, error) {
	c.mu.Lock()
	switch {
	case c.closed:
		c.mu.Unlock()
		return Snapshot{}, ErrSessionClosed
	case c.starting || c.status != model.AttemptStatusNotStarted:
		c.mu.Unlock()
		return Snapshot{}, ErrAlreadyStarted
	}
	c.starting = true
	c.mu.Unlock()

	started, courseID, err := c.begin(ctx, courseSlug, token)

	c.mu.Lock()
	c.starting = false
	if err != nil {
		c.mu.Unlock()
		c.log.Warn().Err(err).Str("course_slug", courseSlug).Msg("Exam start failed")
		return Snapshot{}, err
	}
	if c.closed {
		c.mu.Unlock()
		return Snapshot{}, ErrSessionClosed
	}

	c.token = token
	c.courseSlug = courseSlug
	c.courseID = courseID
	c.attemptID = started.AttemptID
	c.questions = make([]model.Question, len(started.Questions))
	for i, q := range started.Questions {
		c.questions[i] = q.Normalized()
	}
	c.answers = make([]model.Answer, len(c.questions))
	c.current = 0
	c.durationSeconds = started.DurationMinutes * 60
	c.remaining = c.durationSeconds
	c.status = model.AttemptStatusActive
	c.log = c.log.With().
		Str("attempt_id", c.attemptID.String()).
		Str("course_slug", courseSlug).
		Logger()

	c.countdown = c.sched.Every(TickInterval, c.Tick)
	c.autosave = c.sched.Every(AutosaveInterval, c.SaveProgress)

	snap := c.snapshotLocked()
	c.mu.Unlock()

	c.log.Info().
		Int("questions", len(snap.Questions)).
		Int("duration_seconds", snap.DurationSeconds).
		Msg("Exam attempt started")
	c.emit(EventStarted, snap)
	return snap, nil
}

func (c *Controller) begin(ctx context.Context, courseSlug, token string) (*model.StartedAttempt, model.ID, error) {
	if token == "" {
		return nil, "", ErrMissingCredential
	}

	callCtx, cancel := c.callContext(ctx)
	courseID, err := c.svc.ResolveCourse(callCtx, courseSlug)
	cancel()
	if err != nil {
		return nil, "", fmt.Errorf("%w: %w", ErrResolution, err)
	}

	callCtx, cancel = c.callContext(ctx)
	started, err := c.svc.StartAttempt(callCtx, courseID, token)
	cancel()
	if err != nil {
		return nil, "", fmt.Errorf("%w: %w", ErrStartRejected, err)
	}
	if err := validateStarted(started); err != nil {
		return nil, "", fmt.Errorf("%w: %w", ErrStartRejected, err)
	}
	return started, courseID, nil
}

func validateStarted(s *model.StartedAttempt) error {
	switch {
	case s == nil:
		return errors.New("empty start response")
	case s.AttemptID == "":
		return errors.New("missing attempt id")
	case len(s.Questions) == 0:
		return errors.New("attempt has no questions")
	case s.DurationMinutes <= 0:
		return fmt.Errorf("invalid duration %d", s.DurationMinutes)
	}
	for i, q := range s.Questions {
		if !q.QuestionType.Valid() {
			return fmt.Errorf("question %d: unknown type %q", i, q.QuestionType)
		}
		if q.OptionCount() == 0 {
			return fmt.Errorf("question %d: no options", i)
		}
	}
	return nil
}

// Close tears the session down: timers stop, in-flight calls are cancelled and
// results that arrive later are discarded. Close is idempotent.
func (c *Controller) Close() {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return
	}
	c.closed = true
	c.confirmArmed = false
	c.stopTimersLocked()
	snap := c.snapshotLocked()
	c.mu.Unlock()

	c.cancel()
	c.log.Debug().Str("status", string(snap.Status)).Msg("Exam session closed")
	c.emit(EventClosed, snap)
}

// Wait blocks until background saves and the automatic submission finish.
func (c *Controller) Wait() {
	c.bg.Wait()
}

// ────────────────────────────────────────────────────────────────────────────
// Answers and navigation
// ────────────────────────────────────────────────────────────────────────────

// SelectAnswer records option for question q. Multiple-choice questions toggle
// membership of option in the current set; other types replace the value.
func (c *Controller) SelectAnswer(q, option int) error {
	c.mu.Lock()
	if err := c.checkMutableLocked(); err != nil {
		c.mu.Unlock()
		return err
	}
	if c.submitting {
		c.mu.Unlock()
		return ErrSubmitInFlight
	}
	if q < 0 || q >= len(c.questions) {
		c.mu.Unlock()
		return ErrInvalidQuestion
	}
	question := c.questions[q]
	if option < 0 || option >= question.OptionCount() {
		c.mu.Unlock()
		return ErrInvalidOption
	}

	slot := &c.answers[q]
	if question.QuestionType == model.QuestionTypeMultipleChoice {
		current := model.MultiAnswer()
		if slot.Value != nil {
			current = *slot.Value
		}
		next := current.Toggle(option)
		if next.Len() == 0 {
			slot.Value = nil
		} else {
			slot.Value = &next
		}
	} else {
		v := model.SingleAnswer(option)
		slot.Value = &v
	}
	now := c.sched.Now()
	slot.RecordedAt = &now

	snap := c.snapshotLocked()
	c.mu.Unlock()

	c.emit(EventAnswer, snap)
	return nil
}

// Navigate moves the cursor, clamping to the valid range, and returns the
// resulting index.
func (c *Controller) Navigate(to int) (int, error) {
	c.mu.Lock()
	if err := c.checkMutableLocked(); err != nil {
		idx := c.current
		c.mu.Unlock()
		return idx, err
	}
	c.current = clamp(to, 0, len(c.questions)-1)
	snap := c.snapshotLocked()
	c.mu.Unlock()

	c.emit(EventNavigate, snap)
	return snap.CurrentIndex, nil
}

func clamp(v, lo, hi int) int {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}

// ────────────────────────────────────────────────────────────────────────────
// Timers
// ────────────────────────────────────────────────────────────────────────────

// Tick advances the countdown by one second. Reaching zero moves the attempt
// to TimedOut and dispatches the automatic submission; later ticks are no-ops.
func (c *Controller) Tick() {
	c.mu.Lock()
	if c.closed || c.status != model.AttemptStatusActive {
		c.mu.Unlock()
		return
	}
	if c.remaining > 0 {
		c.remaining--
	}
	if c.remaining > 0 {
		snap := c.snapshotLocked()
		c.mu.Unlock()
		c.emit(EventTick, snap)
		return
	}

	// The state change is the synchronization point: everything queued behind
	// this lock sees TimedOut before the network call starts.
	c.status = model.AttemptStatusTimedOut
	c.confirmArmed = false
	c.stopTimersLocked()
	snap := c.snapshotLocked()
	c.bg.Add(1)
	c.mu.Unlock()

	c.log.Info().Int("answered", snap.Answered()).Msg("Time is up, auto-submitting")
	c.emit(EventTimedOut, snap)
	go c.autoSubmit(snap.Answers)
}

// autoSubmit sends the frozen answers; the service's result is authoritative
// whatever was or was not autosaved before.
func (c *Controller) autoSubmit(answers []model.Answer) {
	defer c.bg.Done()

	var (
		res *model.ResultAnalysis
		err error
	)
	for attempt := 1; attempt <= autoSubmitAttempts; attempt++ {
		ctx, cancel := context.WithTimeout(c.ctx, c.callTimeout)
		res, err = c.svc.AutoSubmit(ctx, c.attemptID, c.token, answers)
		cancel()
		if err == nil && res == nil {
			err = errNoResult
		}
		if err == nil || c.ctx.Err() != nil {
			break
		}
		c.log.Warn().Err(err).Int("attempt", attempt).Msg("Auto-submit failed")
	}

	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return
	}
	if err != nil {
		if c.result != nil {
			c.mu.Unlock()
			return
		}
		c.unavailable = true
		c.lastErr = msgResultUnavailable
		snap := c.snapshotLocked()
		c.mu.Unlock()

		c.log.Error().Err(fmt.Errorf("%w: %w", ErrAutoSubmitFailed, err)).Msg("Results unavailable")
		c.emit(EventResultUnavailable, snap)
		return
	}
	if !c.adoptResultLocked(res) {
		c.mu.Unlock()
		c.log.Debug().Msg("Auto-submit result ignored, a result is already recorded")
		return
	}
	snap := c.snapshotLocked()
	c.mu.Unlock()

	c.emit(EventResult, snap)
}

// SaveProgress sends a snapshot of the answers in the background. It is
// advisory: failures are logged and never retried or surfaced.
func (c *Controller) SaveProgress() {
	c.mu.Lock()
	if c.closed || c.status != model.AttemptStatusActive {
		c.mu.Unlock()
		return
	}
	answers := model.CloneAnswers(c.answers)
	c.bg.Add(1)
	c.mu.Unlock()

	go func() {
		defer c.bg.Done()

		ctx, cancel := context.WithTimeout(c.ctx, c.callTimeout)
		err := c.svc.SaveProgress(ctx, c.attemptID, c.token, answers)
		cancel()

		evt := EventSaved
		if err != nil {
			evt = EventSaveFailed
			c.log.Warn().Err(fmt.Errorf("%w: %w", ErrSaveFailed, err)).Msg("Progress save failed")
		} else {
			c.log.Debug().Msg("Progress saved")
		}

		c.mu.Lock()
		if c.closed {
			c.mu.Unlock()
			return
		}
		snap := c.snapshotLocked()
		c.mu.Unlock()
		c.emit(evt, snap)
	}()
}

// ────────────────────────────────────────────────────────────────────────────
// Submission
// ────────────────────────────────────────────────────────────────────────────

// Submit implements the two-step submission. The first call only arms the
// confirmation. The next call sends the answers; on failure the attempt stays
// Active with its answers intact and the confirmation still armed, so the user
// can retry by hand.
func (c *Controller) Submit(ctx context.Context) (SubmitOutcome, error) {
	c.mu.Lock()
	if err := c.checkMutableLocked(); err != nil {
		c.mu.Unlock()
		return "", err
	}
	if c.submitting {
		c.mu.Unlock()
		return "", ErrSubmitInFlight
	}
	if !c.confirmArmed {
		c.confirmArmed = true
		snap := c.snapshotLocked()
		c.mu.Unlock()
		c.emit(EventSubmitArmed, snap)
		return SubmitArmed, nil
	}

	c.submitting = true
	c.lastErr = ""
	answers := model.CloneAnswers(c.answers)
	snap := c.snapshotLocked()
	c.mu.Unlock()
	c.emit(EventSubmitting, snap)

	callCtx, cancel := c.callContext(ctx)
	res, err := c.svc.SubmitAttempt(callCtx, c.attemptID, c.token, answers)
	cancel()
	if err == nil && res == nil {
		err = errNoResult
	}

	c.mu.Lock()
	c.submitting = false
	if c.closed {
		c.mu.Unlock()
		return "", ErrSessionClosed
	}

	if c.status.Terminal() {
		// Timed out while the request was in flight.
		adopted := err == nil && c.adoptResultLocked(res)
		snap := c.snapshotLocked()
		c.mu.Unlock()
		if adopted {
			c.emit(EventResult, snap)
		}
		return SubmitSuperseded, nil
	}

	if err != nil {
		c.lastErr = userMessage(err, msgSubmitFailed)
		snap := c.snapshotLocked()
		c.mu.Unlock()

		wrapped := fmt.Errorf("%w: %w", ErrSubmitFailed, err)
		c.log.Warn().Err(wrapped).Msg("Exam submission failed")
		c.emit(EventSubmitFailed, snap)
		return "", wrapped
	}

	c.status = model.AttemptStatusCompleted
	c.confirmArmed = false
	c.stopTimersLocked()
	c.adoptResultLocked(res)
	snap = c.snapshotLocked()
	c.mu.Unlock()

	c.log.Info().
		Float64("percentage", res.Percentage).
		Bool("passed", res.Passed).
		Msg("Exam submitted")
	c.emit(EventCompleted, snap)
	return SubmitCompleted, nil
}

// CancelSubmit disarms a pending confirmation.
func (c *Controller) CancelSubmit() error {
	c.mu.Lock()
	if err := c.checkMutableLocked(); err != nil {
		c.mu.Unlock()
		return err
	}
	if !c.confirmArmed || c.submitting {
		c.mu.Unlock()
		return nil
	}
	c.confirmArmed = false
	snap := c.snapshotLocked()
	c.mu.Unlock()

	c.emit(EventSubmitCancelled, snap)
	return nil
}

// ────────────────────────────────────────────────────────────────────────────
// Internal helpers
// ────────────────────────────────────────────────────────────────────────────

// Snapshot returns a copy of the current state.
func (c *Controller) Snapshot() Snapshot {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.snapshotLocked()
}

func (c *Controller) checkMutableLocked() error {
	if c.closed {
		return ErrSessionClosed
	}
	if c.status != model.AttemptStatusActive {
		return ErrNotActive
	}
	return nil
}

// adoptResultLocked records res unless a result is already present.
func (c *Controller) adoptResultLocked(res *model.ResultAnalysis) bool {
	if c.result != nil || res == nil {
		return false
	}
	c.result = res
	c.unavailable = false
	if c.lastErr == msgResultUnavailable {
		c.lastErr = ""
	}
	return true
}

func (c *Controller) stopTimersLocked() {
	if c.countdown != nil {
		c.countdown.Stop()
		c.countdown = nil
	}
	if c.autosave != nil {
		c.autosave.Stop()
		c.autosave = nil
	}
}

// callContext derives a bounded call context that also ends on Close.
func (c *Controller) callContext(parent context.Context) (context.Context, context.CancelFunc) {
	ctx, cancel := context.WithTimeout(parent, c.callTimeout)
	stop := context.AfterFunc(c.ctx, cancel)
	return ctx, func() {
		stop()
		cancel()
	}
}

func (c *Controller) emit(t EventType, snap Snapshot) {
	if c.listener != nil {
		c.listener(Event{Type: t, Snapshot: snap})
	}
}

// userMessage prefers the message the service attached to the failure.
func userMessage(err error, fallback string) string {
	var sm interface{ ServiceMessage() string }
	if errors.As(err, &sm) && sm.ServiceMessage() != "" {
		return sm.ServiceMessage()
	}
	return fallback
}
