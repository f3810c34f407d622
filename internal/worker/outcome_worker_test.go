package worker

import (
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/rs/zerolog"
	"github.com/stemsi/exstem-practice/internal/metrics"
	"github.com/stemsi/exstem-practice/internal/model"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

type mockStore struct {
	mock.Mock
}

func (m *mockStore) InsertBatch(ctx context.Context, batch []model.SessionOutcome) error {
	return m.Called(ctx, batch).Error(0)
}

func (m *mockStore) Insert(ctx context.Context, o *model.SessionOutcome) error {
	return m.Called(ctx, o).Error(0)
}

func newTestWorker(store OutcomeStore) (*OutcomeWorker, *[][]byte, *metrics.Metrics) {
	m := metrics.New()
	w := NewOutcomeWorker(store, nil, m, zerolog.Nop())
	var requeued [][]byte
	w.requeue = func(_ context.Context, raw []byte) error {
		requeued = append(requeued, raw)
		return nil
	}
	return w, &requeued, m
}

func outcomes(ids ...string) []model.SessionOutcome {
	out := make([]model.SessionOutcome, len(ids))
	for i, id := range ids {
		out[i] = model.SessionOutcome{SessionID: id, AttemptID: "a-" + id, Status: model.AttemptStatusCompleted, FinishedAt: time.Unix(0, 0).UTC()}
	}
	return out
}

func TestFlushBatch(t *testing.T) {
	store := &mockStore{}
	batch := outcomes("s1", "s2")
	store.On("InsertBatch", mock.Anything, batch).Return(nil).Once()
	w, requeued, m := newTestWorker(store)

	w.flushSafe(context.Background(), batch)

	store.AssertExpectations(t)
	store.AssertNotCalled(t, "Insert", mock.Anything, mock.Anything)
	assert.Empty(t, *requeued)
	assert.Equal(t, 2.0, testutil.ToFloat64(m.OutcomesWritten.WithLabelValues("batch")))
}

func TestFlushFallsBackToSingleInserts(t *testing.T) {
	store := &mockStore{}
	batch := outcomes("s1", "s2", "s3")
	store.On("InsertBatch", mock.Anything, batch).Return(errors.New("deadlock")).Once()
	store.On("Insert", mock.Anything, mock.MatchedBy(func(o *model.SessionOutcome) bool { return o.SessionID != "s2" })).Return(nil)
	store.On("Insert", mock.Anything, mock.MatchedBy(func(o *model.SessionOutcome) bool { return o.SessionID == "s2" })).Return(errors.New("constraint"))
	w, requeued, m := newTestWorker(store)

	w.flushSafe(context.Background(), batch)

	store.AssertNumberOfCalls(t, "Insert", 3)
	require.Len(t, *requeued, 1)
	var back model.SessionOutcome
	require.NoError(t, json.Unmarshal((*requeued)[0], &back))
	assert.Equal(t, "s2", back.SessionID)
	assert.Equal(t, 1, back.Requeues)
	assert.Equal(t, 2.0, testutil.ToFloat64(m.OutcomesWritten.WithLabelValues("single")))
}

func TestFlushEmptyBatchIsNoop(t *testing.T) {
	store := &mockStore{}
	w, _, _ := newTestWorker(store)
	w.flushSafe(context.Background(), nil)
	store.AssertNotCalled(t, "InsertBatch", mock.Anything, mock.Anything)
}

func TestFlushGivesUpAfterMaxRequeues(t *testing.T) {
	store := &mockStore{}
	batch := outcomes("s1")
	batch[0].Requeues = MaxOutcomeRequeues
	store.On("InsertBatch", mock.Anything, mock.Anything).Return(errors.New("constraint"))
	store.On("Insert", mock.Anything, mock.Anything).Return(errors.New("constraint"))
	w, requeued, m := newTestWorker(store)

	w.flushSafe(context.Background(), batch)

	assert.Empty(t, *requeued)
	assert.Equal(t, 1.0, testutil.ToFloat64(m.OutcomesDropped.WithLabelValues("exhausted")))
}

func TestRequeuedOutcomeEventuallyDropped(t *testing.T) {
	store := &mockStore{}
	store.On("InsertBatch", mock.Anything, mock.Anything).Return(errors.New("constraint"))
	store.On("Insert", mock.Anything, mock.Anything).Return(errors.New("constraint"))
	w, requeued, m := newTestWorker(store)

	o := outcomes(uuid.NewString())[0]
	raw, _ := json.Marshal(o)
	rounds := 0
	for raw != nil {
		rounds++
		decoded, ok := w.decode(string(raw))
		require.True(t, ok)
		*requeued = nil
		w.flushSafe(context.Background(), []model.SessionOutcome{decoded})
		raw = nil
		if len(*requeued) == 1 {
			raw = (*requeued)[0]
		}
	}

	assert.Equal(t, MaxOutcomeRequeues+1, rounds)
	assert.Equal(t, 1.0, testutil.ToFloat64(m.OutcomesDropped.WithLabelValues("exhausted")))
}

func TestDecode(t *testing.T) {
	w, _, m := newTestWorker(&mockStore{})

	id := uuid.NewString()
	raw, _ := json.Marshal(outcomes(id)[0])
	o, ok := w.decode(string(raw))
	require.True(t, ok)
	assert.Equal(t, id, o.SessionID)

	rejected := []string{
		"{not json",
		`{"session_id":"` + id + `","status":"COMPLETED"}`,
		`{"session_id":"s1","attempt_id":"1001","status":"COMPLETED"}`,
		`{"session_id":"` + id + `","attempt_id":"1001","status":"ACTIVE"}`,
	}
	for _, payload := range rejected {
		_, ok = w.decode(payload)
		assert.False(t, ok, payload)
	}
	assert.Equal(t, float64(len(rejected)), testutil.ToFloat64(m.OutcomesDropped.WithLabelValues("invalid")))
}
