// Package scheduler provides cancellable periodic tasks behind an interface so
// timer-driven code can run on wall-clock time in production and on a manually
// advanced virtual clock in tests.
package scheduler

import (
	"sync"
	"time"
)

// Task is a scheduled periodic callback. Stop is idempotent and safe to call
// from inside the task's own callback.
type Task interface {
	Stop()
}

// Scheduler creates periodic tasks and tells the time.
type Scheduler interface {
	Now() time.Time
	Every(interval time.Duration, fn func()) Task
}

// Real schedules tasks on wall-clock tickers.
type Real struct{}

// NewReal returns the wall-clock scheduler.
func NewReal() Real { return Real{} }

// Now returns the current wall-clock time.
func (Real) Now() time.Time { return time.Now() }

// Every runs fn on its own goroutine once per interval until the task is stopped.
func (Real) Every(interval time.Duration, fn func()) Task {
	t := &realTask{
		ticker: time.NewTicker(interval),
		done:   make(chan struct{}),
	}
	go t.run(fn)
	return t
}

type realTask struct {
	ticker *time.Ticker
	done   chan struct{}
	once   sync.Once
}

func (t *realTask) run(fn func()) {
	for {
		select {
		case <-t.done:
			return
		case <-t.ticker.C:
			// A tick and a Stop can be ready together; Stop wins.
			select {
			case <-t.done:
				return
			default:
			}
			fn()
		}
	}
}

func (t *realTask) Stop() {
	t.once.Do(func() {
		t.ticker.Stop()
		close(t.done)
	})
}
