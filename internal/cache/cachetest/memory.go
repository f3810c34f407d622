// Package cachetest provides in-memory stand-ins for the Redis collaborators.
package cachetest

import (
	"context"
	"encoding/json"
	"sync"
	"time"

	"github.com/stemsi/exstem-practice/internal/cache"
	"github.com/stemsi/exstem-practice/internal/model"
	"github.com/stemsi/exstem-practice/internal/session"
)

// Lock is an in-memory cache.ActiveAttemptLock. TTLs are recorded, never enforced.
type Lock struct {
	mu      sync.Mutex
	holders map[string]string
	ttls    map[string]time.Duration
}

func NewLock() *Lock {
	return &Lock{holders: map[string]string{}, ttls: map[string]time.Duration{}}
}

func (l *Lock) key(owner, slug string) string { return owner + "/" + slug }

func (l *Lock) Acquire(_ context.Context, owner, slug, id string, ttl time.Duration) (bool, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	k := l.key(owner, slug)
	if _, held := l.holders[k]; held {
		return false, nil
	}
	l.holders[k] = id
	l.ttls[k] = ttl
	return true, nil
}

func (l *Lock) Holder(_ context.Context, owner, slug string) (string, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.holders[l.key(owner, slug)], nil
}

func (l *Lock) Extend(_ context.Context, owner, slug, id string, ttl time.Duration) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	k := l.key(owner, slug)
	if l.holders[k] == id {
		l.ttls[k] = ttl
	}
	return nil
}

func (l *Lock) Release(_ context.Context, owner, slug, id string) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	k := l.key(owner, slug)
	if l.holders[k] == id {
		delete(l.holders, k)
		delete(l.ttls, k)
	}
	return nil
}

// TTL returns the last TTL set for the lock.
func (l *Lock) TTL(owner, slug string) time.Duration {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.ttls[l.key(owner, slug)]
}

// Bus is an in-memory cache.EventBus. Slow subscribers lose messages.
type Bus struct {
	mu   sync.Mutex
	log  map[string][]session.EventType
	subs map[string][]chan []byte
}

func NewBus() *Bus {
	return &Bus{log: map[string][]session.EventType{}, subs: map[string][]chan []byte{}}
}

func (b *Bus) Publish(_ context.Context, id string, event any) error {
	data, err := json.Marshal(event)
	if err != nil {
		return err
	}
	b.mu.Lock()
	defer b.mu.Unlock()
	if e, ok := event.(session.Event); ok {
		b.log[id] = append(b.log[id], e.Type)
	}
	for _, ch := range b.subs[id] {
		select {
		case ch <- data:
		default:
		}
	}
	return nil
}

func (b *Bus) Subscribe(_ context.Context, id string) (*cache.Subscription, error) {
	ch := make(chan []byte, 64)
	b.mu.Lock()
	b.subs[id] = append(b.subs[id], ch)
	b.mu.Unlock()

	var once sync.Once
	return cache.NewSubscription(ch, func() error {
		once.Do(func() {
			b.mu.Lock()
			defer b.mu.Unlock()
			subs := b.subs[id]
			for i, c := range subs {
				if c == ch {
					b.subs[id] = append(subs[:i], subs[i+1:]...)
					break
				}
			}
		})
		return nil
	}), nil
}

// Events lists the event types published for a session.
func (b *Bus) Events(id string) []session.EventType {
	b.mu.Lock()
	defer b.mu.Unlock()
	return append([]session.EventType(nil), b.log[id]...)
}

// Queue is an in-memory cache.OutcomeQueue.
type Queue struct {
	mu       sync.Mutex
	outcomes []model.SessionOutcome
}

func (q *Queue) Enqueue(_ context.Context, o *model.SessionOutcome) error {
	q.mu.Lock()
	defer q.mu.Unlock()
	q.outcomes = append(q.outcomes, *o)
	return nil
}

// All returns every enqueued outcome in order.
func (q *Queue) All() []model.SessionOutcome {
	q.mu.Lock()
	defer q.mu.Unlock()
	return append([]model.SessionOutcome(nil), q.outcomes...)
}

var (
	_ cache.ActiveAttemptLock = (*Lock)(nil)
	_ cache.EventBus          = (*Bus)(nil)
	_ cache.OutcomeQueue      = (*Queue)(nil)
)
