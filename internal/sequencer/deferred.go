package sequencer

import (
	"context"
	"time"
)

// task is a callback due at a point in time. It runs from Tick, on the
// host's goroutine, unless its context is cancelled first.
type task struct {
	due time.Time
	ctx context.Context
	fn  func()
}

func (s *Sequencer) resetTasks() {
	if s.cancelTasks != nil {
		s.cancelTasks()
	}
	s.tasksCtx, s.cancelTasks = context.WithCancel(context.Background())
	s.tasks = nil
}

// schedule queues fn to run on the first Tick at least delay from now. The
// returned function cancels it.
func (s *Sequencer) schedule(delay time.Duration, fn func()) context.CancelFunc {
	if s.tasksCtx == nil {
		s.resetTasks()
	}
	ctx, cancel := context.WithCancel(s.tasksCtx)
	s.tasks = append(s.tasks, &task{due: s.now().Add(delay), ctx: ctx, fn: fn})
	return cancel
}

func (s *Sequencer) runDue() {
	if len(s.tasks) == 0 {
		return
	}
	now := s.now()
	var due, pending []*task
	for _, t := range s.tasks {
		switch {
		case t.ctx.Err() != nil:
		case !now.Before(t.due):
			due = append(due, t)
		default:
			pending = append(pending, t)
		}
	}
	s.tasks = pending
	for _, t := range due {
		if t.ctx.Err() == nil {
			t.fn()
		}
	}
}

// Pending reports how many deferred tasks are waiting.
func (s *Sequencer) Pending() int {
	n := 0
	for _, t := range s.tasks {
		if t.ctx.Err() == nil {
			n++
		}
	}
	return n
}
