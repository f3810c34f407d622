package repository

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/stemsi/exstem-practice/internal/model"
)

// ErrOutcomeNotFound is returned when no journal row matches.
var ErrOutcomeNotFound = errors.New("session outcome not found")

// OutcomeRepository persists the journal of finished exam sessions.
type OutcomeRepository struct {
	pool *pgxpool.Pool
}

// NewOutcomeRepository creates a new OutcomeRepository.
func NewOutcomeRepository(pool *pgxpool.Pool) *OutcomeRepository {
	return &OutcomeRepository{pool: pool}
}

// InsertBatch writes outcomes in one statement. Rows already journalled are
// skipped, so requeued items are harmless.
func (r *OutcomeRepository) InsertBatch(ctx context.Context, batch []model.SessionOutcome) error {
	n := len(batch)
	if n == 0 {
		return nil
	}

	sessionIDs := make([]uuid.UUID, n)
	attemptIDs := make([]string, n)
	owners := make([]string, n)
	slugs := make([]string, n)
	statuses := make([]string, n)
	scores := make([]*float64, n)
	percentages := make([]*float64, n)
	passed := make([]*bool, n)
	unavailable := make([]bool, n)
	answered := make([]int32, n)
	questions := make([]int32, n)
	finishedAts := make([]time.Time, n)

	for i, o := range batch {
		id, err := uuid.Parse(o.SessionID)
		if err != nil {
			return fmt.Errorf("outcome %d: session id: %w", i, err)
		}
		sessionIDs[i] = id
		attemptIDs[i] = o.AttemptID
		owners[i] = o.Owner
		slugs[i] = o.CourseSlug
		statuses[i] = string(o.Status)
		scores[i] = o.Score
		percentages[i] = o.Percentage
		passed[i] = o.Passed
		unavailable[i] = o.ResultsUnavailable
		answered[i] = int32(o.AnsweredCount)
		questions[i] = int32(o.QuestionCount)
		finishedAts[i] = o.FinishedAt
	}

	_, err := r.pool.Exec(ctx, `
		INSERT INTO session_outcomes (
			session_id, attempt_id, owner, course_slug, status,
			score, percentage, passed, results_unavailable,
			answered_count, question_count, finished_at
		)
		SELECT * FROM UNNEST(
			$1::uuid[], $2::text[], $3::text[], $4::text[], $5::text[],
			$6::float8[], $7::float8[], $8::bool[], $9::bool[],
			$10::int4[], $11::int4[], $12::timestamptz[]
		)
		ON CONFLICT (session_id) DO NOTHING`,
		sessionIDs, attemptIDs, owners, slugs, statuses,
		scores, percentages, passed, unavailable,
		answered, questions, finishedAts,
	)
	return err
}

// Insert writes a single outcome.
func (r *OutcomeRepository) Insert(ctx context.Context, o *model.SessionOutcome) error {
	id, err := uuid.Parse(o.SessionID)
	if err != nil {
		return fmt.Errorf("session id: %w", err)
	}
	_, err = r.pool.Exec(ctx, `
		INSERT INTO session_outcomes (
			session_id, attempt_id, owner, course_slug, status,
			score, percentage, passed, results_unavailable,
			answered_count, question_count, finished_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12)
		ON CONFLICT (session_id) DO NOTHING`,
		id, o.AttemptID, o.Owner, o.CourseSlug, string(o.Status),
		o.Score, o.Percentage, o.Passed, o.ResultsUnavailable,
		o.AnsweredCount, o.QuestionCount, o.FinishedAt,
	)
	return err
}

// GetByAttemptID returns the most recent outcome journalled for an attempt.
func (r *OutcomeRepository) GetByAttemptID(ctx context.Context, attemptID string) (*model.SessionOutcome, error) {
	o := &model.SessionOutcome{}
	var (
		sessionID uuid.UUID
		status    string
	)
	err := r.pool.QueryRow(ctx, `
		SELECT session_id, attempt_id, owner, course_slug, status,
		       score, percentage, passed, results_unavailable,
		       answered_count, question_count, finished_at
		FROM session_outcomes
		WHERE attempt_id = $1
		ORDER BY finished_at DESC
		LIMIT 1`, attemptID,
	).Scan(&sessionID, &o.AttemptID, &o.Owner, &o.CourseSlug, &status,
		&o.Score, &o.Percentage, &o.Passed, &o.ResultsUnavailable,
		&o.AnsweredCount, &o.QuestionCount, &o.FinishedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrOutcomeNotFound
	}
	if err != nil {
		return nil, err
	}
	o.SessionID = sessionID.String()
	o.Status = model.AttemptStatus(status)
	return o, nil
}
