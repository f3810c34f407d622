package service

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/stemsi/exstem-practice/internal/cache"
	"github.com/stemsi/exstem-practice/internal/metrics"
	"github.com/stemsi/exstem-practice/internal/model"
	"github.com/stemsi/exstem-practice/internal/scheduler"
	"github.com/stemsi/exstem-practice/internal/session"
)

var (
	ErrSessionNotFound   = errors.New("exam session not found")
	ErrForbidden         = errors.New("exam session belongs to another owner")
	ErrAttemptInProgress = errors.New("an attempt for this course is already in progress")
)

const (
	// startLockTTL covers the window between claiming the lock and learning
	// the exam duration.
	startLockTTL   = 2 * time.Minute
	publishTimeout = 2 * time.Second
	eventBuffer    = 64
)

// InProgressError reports the session already holding the course lock.
type InProgressError struct {
	SessionID string
}

func (e *InProgressError) Error() string {
	return fmt.Sprintf("%s (session %s)", ErrAttemptInProgress, e.SessionID)
}

func (e *InProgressError) Unwrap() error { return ErrAttemptInProgress }

// SessionServiceConfig tunes lifetimes.
type SessionServiceConfig struct {
	// IdleTTL is how long a finished session stays addressable.
	IdleTTL time.Duration
	// LockGrace is added to the exam duration for the active-attempt lock.
	LockGrace time.Duration
}

// SessionService hosts one exam session controller per attempt and scopes
// every operation to the owner that started it.
type SessionService struct {
	exams   session.ExamService
	lock    cache.ActiveAttemptLock
	bus     cache.EventBus
	queue   cache.OutcomeQueue
	metrics *metrics.Metrics
	cfg     SessionServiceConfig
	log     zerolog.Logger

	newScheduler func() scheduler.Scheduler
	now          func() time.Time

	mu       sync.RWMutex
	sessions map[string]*hostedSession
}

// SessionServiceOption customises a SessionService.
type SessionServiceOption func(*SessionService)

// WithSchedulerFactory replaces the wall-clock scheduler given to each controller.
func WithSchedulerFactory(f func() scheduler.Scheduler) SessionServiceOption {
	return func(s *SessionService) { s.newScheduler = f }
}

// WithClock replaces time.Now for reaping decisions.
func WithClock(now func() time.Time) SessionServiceOption {
	return func(s *SessionService) { s.now = now }
}

// NewSessionService creates a new SessionService.
func NewSessionService(
	exams session.ExamService,
	lock cache.ActiveAttemptLock,
	bus cache.EventBus,
	queue cache.OutcomeQueue,
	m *metrics.Metrics,
	cfg SessionServiceConfig,
	log zerolog.Logger,
	opts ...SessionServiceOption,
) *SessionService {
	s := &SessionService{
		exams:        exams,
		lock:         lock,
		bus:          bus,
		queue:        queue,
		metrics:      m,
		cfg:          cfg,
		log:          log.With().Str("component", "session_service").Logger(),
		newScheduler: func() scheduler.Scheduler { return scheduler.NewReal() },
		now:          time.Now,
		sessions:     make(map[string]*hostedSession),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// hostedSession is a controller plus the bookkeeping the registry needs.
type hostedSession struct {
	id         string
	owner      string
	courseSlug string
	ctrl       *session.Controller
	createdAt  time.Time

	events chan session.Event
	done   chan struct{}
	pumped chan struct{}

	mu           sync.Mutex
	lastActivity time.Time
	finishedAt   time.Time
	recorded     bool
	released     bool
	tornDown     bool
}

// SessionInfo is the registry's view of a hosted session.
type SessionInfo struct {
	ID        string           `json:"session_id"`
	CreatedAt time.Time        `json:"created_at"`
	Snapshot  session.Snapshot `json:"snapshot"`
}

// ────────────────────────────────────────────────────────────────────────────
// Lifecycle
// ────────────────────────────────────────────────────────────────────────────

// Start begins a new attempt of courseSlug for owner. Only one live session per
// owner and course is allowed.
func (s *SessionService) Start(ctx context.Context, owner, token, courseSlug string) (*SessionInfo, error) {
	id := uuid.NewString()
	log := s.log.With().Str("session_id", id).Str("owner", owner).Str("course_slug", courseSlug).Logger()

	ok, err := s.lock.Acquire(ctx, owner, courseSlug, id, startLockTTL)
	if err != nil {
		return nil, fmt.Errorf("acquire attempt lock: %w", err)
	}
	if !ok {
		holder, err := s.lock.Holder(ctx, owner, courseSlug)
		if err != nil {
			return nil, fmt.Errorf("read attempt lock: %w", err)
		}
		if holder == "" {
			// Released between the two calls.
			return s.Start(ctx, owner, token, courseSlug)
		}
		return nil, &InProgressError{SessionID: holder}
	}

	now := s.now()
	h := &hostedSession{
		id:           id,
		owner:        owner,
		courseSlug:   courseSlug,
		createdAt:    now,
		lastActivity: now,
		events:       make(chan session.Event, eventBuffer),
		done:         make(chan struct{}),
		pumped:       make(chan struct{}),
	}
	h.ctrl = session.New(s.exams,
		session.WithScheduler(s.newScheduler()),
		session.WithLogger(log),
		session.WithListener(h.enqueue),
	)
	go s.pump(h)

	snap, err := h.ctrl.Start(ctx, courseSlug, token)
	if err != nil {
		h.ctrl.Close()
		close(h.done)
		<-h.pumped
		s.releaseLock(h)
		return nil, err
	}

	ttl := time.Duration(snap.DurationSeconds)*time.Second + s.cfg.LockGrace
	if err := s.lock.Extend(ctx, owner, courseSlug, id, ttl); err != nil {
		log.Warn().Err(err).Msg("Failed to extend attempt lock")
	}

	s.mu.Lock()
	s.sessions[id] = h
	s.mu.Unlock()
	s.metrics.ActiveSessions.Inc()

	log.Info().Str("attempt_id", snap.AttemptID.String()).Msg("Exam session hosted")
	return &SessionInfo{ID: id, CreatedAt: h.createdAt, Snapshot: snap}, nil
}

// Close tears a session down.
func (s *SessionService) Close(owner, id string) error {
	h, err := s.get(owner, id)
	if err != nil {
		return err
	}
	s.teardown(h)
	return nil
}

// Shutdown closes every hosted session.
func (s *SessionService) Shutdown() {
	s.mu.RLock()
	all := make([]*hostedSession, 0, len(s.sessions))
	for _, h := range s.sessions {
		all = append(all, h)
	}
	s.mu.RUnlock()

	for _, h := range all {
		s.teardown(h)
	}
	s.log.Info().Int("sessions", len(all)).Msg("All exam sessions closed")
}

// RunReaper removes finished sessions every interval until ctx ends.
func (s *SessionService) RunReaper(ctx context.Context, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if n := s.Reap(); n > 0 {
				s.log.Debug().Int("reaped", n).Msg("Reaped idle exam sessions")
			}
		}
	}
}

// Reap tears down sessions that finished, or were last touched, more than
// IdleTTL ago. Active attempts are kept until their own timer ends them.
func (s *SessionService) Reap() int {
	now := s.now()

	s.mu.RLock()
	var stale []*hostedSession
	for _, h := range s.sessions {
		if s.expired(h, now) {
			stale = append(stale, h)
		}
	}
	s.mu.RUnlock()

	for _, h := range stale {
		s.teardown(h)
	}
	return len(stale)
}

func (s *SessionService) expired(h *hostedSession, now time.Time) bool {
	snap := h.ctrl.Snapshot()
	if !snap.Status.Terminal() {
		return false
	}
	h.mu.Lock()
	defer h.mu.Unlock()
	last := h.lastActivity
	if h.finishedAt.After(last) {
		last = h.finishedAt
	}
	return now.Sub(last) > s.cfg.IdleTTL
}

// Count returns the number of hosted sessions.
func (s *SessionService) Count() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.sessions)
}

// ────────────────────────────────────────────────────────────────────────────
// Operations
// ────────────────────────────────────────────────────────────────────────────

// Get returns the current state of a session.
func (s *SessionService) Get(owner, id string) (*SessionInfo, error) {
	h, err := s.get(owner, id)
	if err != nil {
		return nil, err
	}
	return h.info(h.ctrl.Snapshot()), nil
}

// SelectAnswer records an option for question q.
func (s *SessionService) SelectAnswer(owner, id string, q, option int) (*SessionInfo, error) {
	h, err := s.touch(owner, id)
	if err != nil {
		return nil, err
	}
	if err := h.ctrl.SelectAnswer(q, option); err != nil {
		return nil, err
	}
	return h.info(h.ctrl.Snapshot()), nil
}

// Navigate moves the question cursor.
func (s *SessionService) Navigate(owner, id string, index int) (*SessionInfo, error) {
	h, err := s.touch(owner, id)
	if err != nil {
		return nil, err
	}
	if _, err := h.ctrl.Navigate(index); err != nil {
		return nil, err
	}
	return h.info(h.ctrl.Snapshot()), nil
}

// Save requests a background progress save.
func (s *SessionService) Save(owner, id string) (*SessionInfo, error) {
	h, err := s.touch(owner, id)
	if err != nil {
		return nil, err
	}
	snap := h.ctrl.Snapshot()
	if snap.Status != model.AttemptStatusActive {
		return nil, session.ErrNotActive
	}
	h.ctrl.SaveProgress()
	return h.info(snap), nil
}

// Submit arms or confirms the submission.
func (s *SessionService) Submit(ctx context.Context, owner, id string) (session.SubmitOutcome, *SessionInfo, error) {
	h, err := s.touch(owner, id)
	if err != nil {
		return "", nil, err
	}
	outcome, err := h.ctrl.Submit(ctx)
	return outcome, h.info(h.ctrl.Snapshot()), err
}

// CancelSubmit disarms a pending confirmation.
func (s *SessionService) CancelSubmit(owner, id string) (*SessionInfo, error) {
	h, err := s.touch(owner, id)
	if err != nil {
		return nil, err
	}
	if err := h.ctrl.CancelSubmit(); err != nil {
		return nil, err
	}
	return h.info(h.ctrl.Snapshot()), nil
}

// Subscribe streams the session's events as JSON payloads.
func (s *SessionService) Subscribe(ctx context.Context, owner, id string) (*cache.Subscription, error) {
	if _, err := s.get(owner, id); err != nil {
		return nil, err
	}
	return s.bus.Subscribe(ctx, id)
}

// ────────────────────────────────────────────────────────────────────────────
// Internal helpers
// ────────────────────────────────────────────────────────────────────────────

func (s *SessionService) get(owner, id string) (*hostedSession, error) {
	s.mu.RLock()
	h, ok := s.sessions[id]
	s.mu.RUnlock()
	if !ok {
		return nil, ErrSessionNotFound
	}
	if h.owner != owner {
		return nil, ErrForbidden
	}
	return h, nil
}

func (s *SessionService) touch(owner, id string) (*hostedSession, error) {
	h, err := s.get(owner, id)
	if err != nil {
		return nil, err
	}
	h.mu.Lock()
	h.lastActivity = s.now()
	h.mu.Unlock()
	return h, nil
}

func (s *SessionService) teardown(h *hostedSession) {
	h.mu.Lock()
	if h.tornDown {
		h.mu.Unlock()
		return
	}
	h.tornDown = true
	h.mu.Unlock()

	s.mu.Lock()
	delete(s.sessions, h.id)
	s.mu.Unlock()

	h.ctrl.Close()
	h.ctrl.Wait()
	close(h.done)
	<-h.pumped

	s.recordOutcome(h, h.ctrl.Snapshot())
	s.releaseLock(h)
	s.metrics.ActiveSessions.Dec()
	s.log.Debug().Str("session_id", h.id).Msg("Exam session torn down")
}

// enqueue is the controller listener. It never blocks the timer goroutine;
// when the buffer is full the event is dropped.
func (h *hostedSession) enqueue(e session.Event) {
	select {
	case h.events <- e:
	default:
	}
}

// pump publishes events and reacts to terminal transitions off the
// controller's goroutines.
func (s *SessionService) pump(h *hostedSession) {
	defer close(h.pumped)
	for {
		select {
		case e := <-h.events:
			s.handleEvent(h, e)
		case <-h.done:
			for {
				select {
				case e := <-h.events:
					s.handleEvent(h, e)
				default:
					return
				}
			}
		}
	}
}

func (s *SessionService) handleEvent(h *hostedSession, e session.Event) {
	s.metrics.SessionEvents.WithLabelValues(string(e.Type)).Inc()

	ctx, cancel := context.WithTimeout(context.Background(), publishTimeout)
	defer cancel()
	if err := s.bus.Publish(ctx, h.id, e); err != nil {
		s.log.Warn().Err(err).Str("session_id", h.id).Str("event", string(e.Type)).Msg("Failed to publish session event")
	}

	snap := e.Snapshot
	if !snap.Status.Terminal() {
		return
	}
	h.mu.Lock()
	if h.finishedAt.IsZero() {
		h.finishedAt = s.now()
	}
	h.mu.Unlock()

	s.releaseLock(h)
	if snap.Result != nil || snap.ResultsUnavailable {
		s.recordOutcome(h, snap)
	}
}

func (s *SessionService) releaseLock(h *hostedSession) {
	h.mu.Lock()
	if h.released {
		h.mu.Unlock()
		return
	}
	h.released = true
	h.mu.Unlock()

	ctx, cancel := context.WithTimeout(context.Background(), publishTimeout)
	defer cancel()
	if err := s.lock.Release(ctx, h.owner, h.courseSlug, h.id); err != nil {
		s.log.Warn().Err(err).Str("session_id", h.id).Msg("Failed to release attempt lock")
	}
}

// recordOutcome journals a finished attempt once.
func (s *SessionService) recordOutcome(h *hostedSession, snap session.Snapshot) {
	if !snap.Status.Terminal() {
		return
	}
	h.mu.Lock()
	if h.recorded {
		h.mu.Unlock()
		return
	}
	h.recorded = true
	finished := h.finishedAt
	h.mu.Unlock()
	if finished.IsZero() {
		finished = s.now()
	}

	out := &model.SessionOutcome{
		SessionID:          h.id,
		AttemptID:          snap.AttemptID.String(),
		Owner:              h.owner,
		CourseSlug:         h.courseSlug,
		Status:             snap.Status,
		ResultsUnavailable: snap.Result == nil,
		AnsweredCount:      snap.Answered(),
		QuestionCount:      len(snap.Questions),
		FinishedAt:         finished.UTC(),
	}
	resultLabel := "unavailable"
	if r := snap.Result; r != nil {
		score, pct, passed := r.Score, r.Percentage, r.Passed
		out.Score, out.Percentage, out.Passed = &score, &pct, &passed
		resultLabel = "scored"
	}
	s.metrics.SessionOutcomes.WithLabelValues(string(snap.Status), resultLabel).Inc()

	ctx, cancel := context.WithTimeout(context.Background(), publishTimeout)
	defer cancel()
	if err := s.queue.Enqueue(ctx, out); err != nil {
		s.log.Error().Err(err).Str("session_id", h.id).Str("attempt_id", out.AttemptID).Msg("Failed to enqueue session outcome")
	}
}

func (h *hostedSession) info(snap session.Snapshot) *SessionInfo {
	return &SessionInfo{ID: h.id, CreatedAt: h.createdAt, Snapshot: snap}
}
