package testutil

import (
	"sync"
	"time"

	"github.com/dukex/stockflow/pkg/scheduler"
)

// ManualScheduler records callbacks and runs them only when a test fires them.
type ManualScheduler struct {
	mu    sync.Mutex
	tasks []*ManualTask
}

type ManualTask struct {
	Delay     time.Duration
	fn        func()
	cancelled bool
}

func NewManualScheduler() *ManualScheduler {
	return &ManualScheduler{}
}

func (s *ManualScheduler) After(d time.Duration, fn func()) scheduler.CancelFunc {
	s.mu.Lock()
	defer s.mu.Unlock()

	task := &ManualTask{Delay: d, fn: fn}
	s.tasks = append(s.tasks, task)

	return func() {
		s.mu.Lock()
		defer s.mu.Unlock()

		task.cancelled = true
	}
}

// Tasks returns every scheduled task, cancelled ones included.
func (s *ManualScheduler) Tasks() []*ManualTask {
	s.mu.Lock()
	defer s.mu.Unlock()

	out := make([]*ManualTask, len(s.tasks))
	copy(out, s.tasks)

	return out
}

// Active returns the tasks that have not been cancelled.
func (s *ManualScheduler) Active() []*ManualTask {
	s.mu.Lock()
	defer s.mu.Unlock()

	out := make([]*ManualTask, 0, len(s.tasks))

	for _, task := range s.tasks {
		if !task.cancelled {
			out = append(out, task)
		}
	}

	return out
}

// Fire runs the task synchronously, even if it was cancelled, to simulate a
// timer that fired late.
func (s *ManualScheduler) Fire(task *ManualTask) {
	task.fn()
}

func (t *ManualTask) Cancelled() bool {
	return t.cancelled
}
