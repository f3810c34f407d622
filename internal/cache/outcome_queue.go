package cache

import (
	"context"
	"encoding/json"

	"github.com/redis/go-redis/v9"
	"github.com/stemsi/exstem-practice/internal/config"
	"github.com/stemsi/exstem-practice/internal/model"
)

// OutcomeQueue hands finished sessions to the journal worker.
type OutcomeQueue interface {
	Enqueue(ctx context.Context, outcome *model.SessionOutcome) error
}

type outcomeQueue struct {
	client *redis.Client
}

func NewOutcomeQueue(client *redis.Client) OutcomeQueue {
	return &outcomeQueue{client: client}
}

func (q *outcomeQueue) Enqueue(ctx context.Context, outcome *model.SessionOutcome) error {
	data, err := json.Marshal(outcome)
	if err != nil {
		return err
	}
	return q.client.RPush(ctx, config.WorkerKey.PersistOutcomesQueue, data).Err()
}
