// Package loop provides the scheduling primitives used for deferred work:
// "next tick" notifications and fixed delays.
package loop

import (
	"context"
	"sync"
	"time"
)

// Scheduler runs tasks later than the caller.
type Scheduler interface {
	// Defer queues task to run after the current work completes.
	Defer(task func())
	// After runs task once delay has elapsed. The returned func cancels it and
	// reports whether the task was still pending.
	After(delay time.Duration, task func()) (cancel func() bool)
}

// Go runs every deferred task on its own goroutine.
type Go struct{}

// Defer implements Scheduler.
func (Go) Defer(task func()) {
	if task == nil {
		return
	}
	go task()
}

// After implements Scheduler.
func (Go) After(delay time.Duration, task func()) func() bool {
	timer := time.AfterFunc(delay, task)
	return timer.Stop
}

// Loop is a serial FIFO task queue. Tasks run one at a time, in the order
// they were queued, on whichever goroutine drives the loop through Run or
// RunPending.
type Loop struct {
	mu     sync.Mutex
	tasks  []func()
	wake   chan struct{}
	closed bool
}

// New constructs an idle loop.
func New() *Loop {
	return &Loop{wake: make(chan struct{}, 1)}
}

// Defer implements Scheduler.
func (l *Loop) Defer(task func()) {
	if task == nil {
		return
	}
	l.mu.Lock()
	if l.closed {
		l.mu.Unlock()
		return
	}
	l.tasks = append(l.tasks, task)
	l.mu.Unlock()

	select {
	case l.wake <- struct{}{}:
	default:
	}
}

// After implements Scheduler. The task is queued on the loop when the timer
// fires, so it still runs serially with every other task.
func (l *Loop) After(delay time.Duration, task func()) func() bool {
	timer := time.AfterFunc(delay, func() { l.Defer(task) })
	return timer.Stop
}

// Pending returns the number of queued tasks.
func (l *Loop) Pending() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.tasks)
}

// RunPending runs queued tasks until the queue is empty, including tasks
// queued by the tasks themselves. It returns how many tasks ran.
func (l *Loop) RunPending() int {
	ran := 0
	for {
		task, ok := l.next()
		if !ok {
			return ran
		}
		task()
		ran++
	}
}

// Run drives the loop until ctx is done or Close is called.
func (l *Loop) Run(ctx context.Context) error {
	for {
		l.RunPending()
		if l.isClosed() {
			return nil
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-l.wake:
		}
	}
}

// Close stops accepting tasks and makes Run return.
func (l *Loop) Close() {
	l.mu.Lock()
	l.closed = true
	l.mu.Unlock()
	select {
	case l.wake <- struct{}{}:
	default:
	}
}

func (l *Loop) next() (func(), bool) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if len(l.tasks) == 0 {
		return nil, false
	}
	task := l.tasks[0]
	l.tasks[0] = nil
	l.tasks = l.tasks[1:]
	return task, true
}

func (l *Loop) isClosed() bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.closed
}
