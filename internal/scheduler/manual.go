package scheduler

import (
	"sync"
	"time"
)

// Manual is a virtual clock. Time only moves when Advance is called, and due
// tasks fire synchronously on the caller's goroutine in deadline order.
type Manual struct {
	mu    sync.Mutex
	now   time.Time
	tasks []*manualTask
	seq   int
}

type manualTask struct {
	m        *Manual
	interval time.Duration
	next     time.Time
	fn       func()
	seq      int
	stopped  bool
}

// NewManual returns a virtual clock starting at start.
func NewManual(start time.Time) *Manual {
	return &Manual{now: start}
}

// Now returns the virtual time.
func (m *Manual) Now() time.Time {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.now
}

// Every registers fn to fire each interval of virtual time.
func (m *Manual) Every(interval time.Duration, fn func()) Task {
	if interval <= 0 {
		panic("scheduler: non-positive interval")
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.seq++
	t := &manualTask{m: m, interval: interval, next: m.now.Add(interval), fn: fn, seq: m.seq}
	m.tasks = append(m.tasks, t)
	return t
}

// Advance moves virtual time forward by d, firing every task deadline that
// falls inside the window. Callbacks may stop or create tasks.
func (m *Manual) Advance(d time.Duration) {
	m.mu.Lock()
	target := m.now.Add(d)
	for {
		t := m.nextDueLocked(target)
		if t == nil {
			break
		}
		m.now = t.next
		t.next = t.next.Add(t.interval)
		m.mu.Unlock()
		t.fn()
		m.mu.Lock()
	}
	m.now = target
	m.mu.Unlock()
}

// Pending returns the number of tasks that have not been stopped.
func (m *Manual) Pending() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	n := 0
	for _, t := range m.tasks {
		if !t.stopped {
			n++
		}
	}
	return n
}

func (m *Manual) nextDueLocked(target time.Time) *manualTask {
	var best *manualTask
	for _, t := range m.tasks {
		if t.stopped || t.next.After(target) {
			continue
		}
		if best == nil || t.next.Before(best.next) || (t.next.Equal(best.next) && t.seq < best.seq) {
			best = t
		}
	}
	return best
}

func (t *manualTask) Stop() {
	t.m.mu.Lock()
	defer t.m.mu.Unlock()
	if t.stopped {
		return
	}
	t.stopped = true
	tasks := t.m.tasks[:0]
	for _, other := range t.m.tasks {
		if other != t {
			tasks = append(tasks, other)
		}
	}
	t.m.tasks = tasks
}
