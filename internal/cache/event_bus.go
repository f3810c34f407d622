package cache

import (
	"context"
	"encoding/json"

	"github.com/redis/go-redis/v9"
	"github.com/stemsi/exstem-practice/internal/config"
)

// EventBus fans session events out to every gateway replica.
type EventBus interface {
	Publish(ctx context.Context, sessionID string, event any) error
	Subscribe(ctx context.Context, sessionID string) (*Subscription, error)
}

// Subscription delivers raw JSON event payloads until closed.
type Subscription struct {
	C     <-chan []byte
	close func() error
}

// Close stops delivery.
func (s *Subscription) Close() error { return s.close() }

// NewSubscription wraps a channel and its close function.
func NewSubscription(c <-chan []byte, closeFn func() error) *Subscription {
	return &Subscription{C: c, close: closeFn}
}

type eventBus struct {
	client *redis.Client
}

func NewEventBus(client *redis.Client) EventBus {
	return &eventBus{client: client}
}

func (b *eventBus) Publish(ctx context.Context, sessionID string, event any) error {
	data, err := json.Marshal(event)
	if err != nil {
		return err
	}
	return b.client.Publish(ctx, config.CacheKey.SessionEventsChannel(sessionID), data).Err()
}

func (b *eventBus) Subscribe(ctx context.Context, sessionID string) (*Subscription, error) {
	pubsub := b.client.Subscribe(ctx, config.CacheKey.SessionEventsChannel(sessionID))
	// Wait for the confirmation so no event published after return is missed.
	if _, err := pubsub.Receive(ctx); err != nil {
		_ = pubsub.Close()
		return nil, err
	}

	out := make(chan []byte, 16)
	go func() {
		defer close(out)
		for msg := range pubsub.Channel() {
			select {
			case out <- []byte(msg.Payload):
			case <-ctx.Done():
				return
			}
		}
	}()
	return NewSubscription(out, pubsub.Close), nil
}
