package repository

import (
	"context"
	"os"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/stemsi/exstem-practice/internal/model"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// Runs against a migrated database named by TEST_DATABASE_URL.
func testPool(t *testing.T) *pgxpool.Pool {
	t.Helper()
	url := os.Getenv("TEST_DATABASE_URL")
	if url == "" {
		t.Skip("TEST_DATABASE_URL not set")
	}
	pool, err := pgxpool.New(context.Background(), url)
	require.NoError(t, err)
	t.Cleanup(pool.Close)
	return pool
}

func outcome(attemptID string, finished time.Time) model.SessionOutcome {
	score, pct, passed := 3.0, 75.0, true
	return model.SessionOutcome{
		SessionID:     uuid.NewString(),
		AttemptID:     attemptID,
		Owner:         "alice",
		CourseSlug:    "go-basics",
		Status:        model.AttemptStatusCompleted,
		Score:         &score,
		Percentage:    &pct,
		Passed:        &passed,
		AnsweredCount: 4,
		QuestionCount: 4,
		FinishedAt:    finished.UTC().Truncate(time.Microsecond),
	}
}

func TestOutcomeRepository(t *testing.T) {
	pool := testPool(t)
	repo := NewOutcomeRepository(pool)
	ctx := context.Background()
	attempt := "it-" + uuid.NewString()
	t.Cleanup(func() { _, _ = pool.Exec(ctx, `DELETE FROM session_outcomes WHERE attempt_id = $1`, attempt) })

	now := time.Now()
	older := outcome(attempt, now.Add(-time.Hour))
	newer := outcome(attempt, now)
	newer.Status = model.AttemptStatusTimedOut
	newer.Score, newer.Percentage, newer.Passed = nil, nil, nil
	newer.ResultsUnavailable = true

	require.NoError(t, repo.InsertBatch(ctx, []model.SessionOutcome{older, newer}))
	require.NoError(t, repo.InsertBatch(ctx, []model.SessionOutcome{older}), "duplicates are ignored")
	require.NoError(t, repo.Insert(ctx, &newer))

	got, err := repo.GetByAttemptID(ctx, attempt)
	require.NoError(t, err)
	got.FinishedAt = got.FinishedAt.UTC()
	assert.Equal(t, newer, *got)

	_, err = repo.GetByAttemptID(ctx, "missing-"+attempt)
	assert.ErrorIs(t, err, ErrOutcomeNotFound)
}

func TestInsertBatchRejectsBadSessionID(t *testing.T) {
	repo := NewOutcomeRepository(nil)
	o := outcome("1", time.Now())
	o.SessionID = "not-a-uuid"
	assert.Error(t, repo.InsertBatch(context.Background(), []model.SessionOutcome{o}))
	assert.NoError(t, repo.InsertBatch(context.Background(), nil))
}
