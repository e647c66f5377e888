// Package scheduler arms one-shot timers for workflow steps.
package scheduler

import (
	"sync"
	"time"

	"github.com/jonboulle/clockwork"
)

// CancelFunc stops a pending callback. Calling it more than once is a no-op.
type CancelFunc func()

// Scheduler runs fn once after d unless cancelled first.
type Scheduler interface {
	After(d time.Duration, fn func()) CancelFunc
}

// ClockScheduler schedules callbacks on a clockwork clock, so tests can drive
// time with a FakeClock.
type ClockScheduler struct {
	clock clockwork.Clock
}

func New(clock clockwork.Clock) *ClockScheduler {
	return &ClockScheduler{clock: clock}
}

func (s *ClockScheduler) After(d time.Duration, fn func()) CancelFunc {
	timer := s.clock.AfterFunc(d, fn)

	return func() { timer.Stop() }
}

// Key identifies the timer of one step of one instance.
type Key struct {
	InstanceID string
	StepID     string
}

type pending struct {
	token  uint64
	cancel CancelFunc
}

// Timers keeps at most one armed timer per Key. A callback whose timer was
// cancelled or replaced before it ran is dropped, even if the underlying
// scheduler already fired it.
type Timers struct {
	scheduler Scheduler

	mu      sync.Mutex
	seq     uint64
	pending map[Key]pending
}

func NewTimers(scheduler Scheduler) *Timers {
	return &Timers{
		scheduler: scheduler,
		pending:   make(map[Key]pending),
	}
}

// Arm schedules fn after d for key, replacing any timer already armed for it.
func (t *Timers) Arm(key Key, d time.Duration, fn func()) {
	t.mu.Lock()
	if current, ok := t.pending[key]; ok && current.cancel != nil {
		current.cancel()
	}

	t.seq++
	token := t.seq
	t.pending[key] = pending{token: token}
	t.mu.Unlock()

	cancel := t.scheduler.After(d, func() {
		if t.claim(key, token) {
			fn()
		}
	})

	t.mu.Lock()
	defer t.mu.Unlock()

	if current, ok := t.pending[key]; ok && current.token == token {
		current.cancel = cancel
		t.pending[key] = current

		return
	}

	// Cancelled or fired while the scheduler was arming it.
	cancel()
}

func (t *Timers) claim(key Key, token uint64) bool {
	t.mu.Lock()
	defer t.mu.Unlock()

	current, ok := t.pending[key]
	if !ok || current.token != token {
		return false
	}

	delete(t.pending, key)

	return true
}

// Cancel disarms the timer for key and reports whether one was pending.
func (t *Timers) Cancel(key Key) bool {
	t.mu.Lock()
	defer t.mu.Unlock()

	current, ok := t.pending[key]
	if !ok {
		return false
	}

	delete(t.pending, key)

	if current.cancel != nil {
		current.cancel()
	}

	return true
}

// CancelInstance disarms every timer of an instance.
func (t *Timers) CancelInstance(instanceID string) {
	t.mu.Lock()
	defer t.mu.Unlock()

	for key, current := range t.pending {
		if key.InstanceID != instanceID {
			continue
		}

		delete(t.pending, key)

		if current.cancel != nil {
			current.cancel()
		}
	}
}

func (t *Timers) Pending(key Key) bool {
	t.mu.Lock()
	defer t.mu.Unlock()

	_, ok := t.pending[key]

	return ok
}

func (t *Timers) Len() int {
	t.mu.Lock()
	defer t.mu.Unlock()

	return len(t.pending)
}

// Stop disarms every timer.
func (t *Timers) Stop() {
	t.mu.Lock()
	defer t.mu.Unlock()

	for key, current := range t.pending {
		delete(t.pending, key)

		if current.cancel != nil {
			current.cancel()
		}
	}
}
