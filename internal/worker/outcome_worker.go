package worker

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
	"github.com/stemsi/exstem-practice/internal/config"
	"github.com/stemsi/exstem-practice/internal/metrics"
	"github.com/stemsi/exstem-practice/internal/model"
)

const (
	OutcomeBatchSize    = 50
	OutcomeBatchTimeout = 2 * time.Second
	OutcomePollTimeout  = 1 * time.Second

	// MaxOutcomeRequeues bounds how often a row that keeps failing goes back
	// on the queue.
	MaxOutcomeRequeues = 5
)

// OutcomeStore is where journalled outcomes end up.
type OutcomeStore interface {
	InsertBatch(ctx context.Context, batch []model.SessionOutcome) error
	Insert(ctx context.Context, o *model.SessionOutcome) error
}

// OutcomeWorker drains the outcome queue into the journal in batches.
type OutcomeWorker struct {
	store   OutcomeStore
	rdb     *redis.Client
	metrics *metrics.Metrics
	log     zerolog.Logger

	// requeue puts a failed item back on the queue.
	requeue func(ctx context.Context, raw []byte) error
}

func NewOutcomeWorker(store OutcomeStore, rdb *redis.Client, m *metrics.Metrics, log zerolog.Logger) *OutcomeWorker {
	w := &OutcomeWorker{
		store:   store,
		rdb:     rdb,
		metrics: m,
		log:     log.With().Str("component", "outcome_worker").Logger(),
	}
	w.requeue = func(ctx context.Context, raw []byte) error {
		return w.rdb.RPush(ctx, config.WorkerKey.PersistOutcomesQueue, raw).Err()
	}
	return w
}

// ----------------------------------------------------------------
// Worker loop with batching
// ----------------------------------------------------------------

// Start blocks until ctx is cancelled, then flushes what it holds.
func (w *OutcomeWorker) Start(ctx context.Context) {
	w.log.Info().Msg("OutcomeWorker started")

	batch := make([]model.SessionOutcome, 0, OutcomeBatchSize)
	lastFlush := time.Now()

	for {
		if len(batch) > 0 &&
			(len(batch) >= OutcomeBatchSize || time.Since(lastFlush) >= OutcomeBatchTimeout) {
			w.flushSafe(ctx, batch)
			batch = batch[:0]
			lastFlush = time.Now()
		}

		select {
		case <-ctx.Done():
			w.log.Info().Int("pending", len(batch)).Msg("Shutdown requested, flushing remaining outcomes")
			w.flushSafe(context.Background(), batch)
			return

		default:
			item, err := w.rdb.BLPop(ctx, OutcomePollTimeout, config.WorkerKey.PersistOutcomesQueue).Result()
			if err != nil {
				if !errors.Is(err, redis.Nil) && ctx.Err() == nil {
					w.log.Error().Err(err).Msg("BLPop error")
					time.Sleep(OutcomePollTimeout)
				}
				continue
			}
			if len(item) < 2 {
				continue
			}

			if o, ok := w.decode(item[1]); ok {
				batch = append(batch, o)
			}
		}
	}
}

func (w *OutcomeWorker) decode(raw string) (model.SessionOutcome, bool) {
	var o model.SessionOutcome
	if err := json.Unmarshal([]byte(raw), &o); err != nil {
		w.drop("invalid").Err(err).Msg("Invalid outcome payload, dropping")
		return o, false
	}
	if o.AttemptID == "" {
		w.drop("invalid").Str("payload", raw).Msg("Outcome without attempt id, dropping")
		return o, false
	}
	if _, err := uuid.Parse(o.SessionID); err != nil {
		w.drop("invalid").Err(err).Str("attempt_id", o.AttemptID).Msg("Outcome with malformed session id, dropping")
		return o, false
	}
	if !o.Status.Terminal() {
		w.drop("invalid").Str("attempt_id", o.AttemptID).Str("status", string(o.Status)).Msg("Outcome of an unfinished attempt, dropping")
		return o, false
	}
	return o, true
}

// drop counts an abandoned outcome and returns the error event to describe it.
func (w *OutcomeWorker) drop(reason string) *zerolog.Event {
	w.metrics.OutcomesDropped.WithLabelValues(reason).Inc()
	return w.log.Error().Str("reason", reason)
}

// ----------------------------------------------------------------
// Batch insert with single-row fallback
// ----------------------------------------------------------------

func (w *OutcomeWorker) flushSafe(ctx context.Context, batch []model.SessionOutcome) {
	if len(batch) == 0 {
		return
	}

	err := w.store.InsertBatch(ctx, batch)
	if err == nil {
		w.metrics.OutcomesWritten.WithLabelValues("batch").Add(float64(len(batch)))
		w.log.Debug().Int("count", len(batch)).Msg("Outcomes journalled")
		return
	}
	w.log.Warn().Err(err).Int("count", len(batch)).Msg("Bulk outcome insert failed, using fallback")

	for i := range batch {
		o := &batch[i]
		if err := w.store.Insert(ctx, o); err != nil {
			o.Requeues++
			if o.Requeues > MaxOutcomeRequeues {
				w.drop("exhausted").Err(err).
					Str("session_id", o.SessionID).
					Str("attempt_id", o.AttemptID).
					Int("requeues", MaxOutcomeRequeues).
					Msg("Outcome insert keeps failing, giving up")
				continue
			}
			w.log.Error().Err(err).Str("session_id", o.SessionID).Int("requeues", o.Requeues).Msg("Outcome insert failed, requeueing")
			raw, _ := json.Marshal(o)
			if err := w.requeue(ctx, raw); err != nil {
				w.log.Error().Err(err).Str("session_id", o.SessionID).Str("attempt_id", o.AttemptID).Msg("Requeue failed, outcome lost")
			}
			continue
		}
		w.metrics.OutcomesWritten.WithLabelValues("single").Inc()
	}
}
