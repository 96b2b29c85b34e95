// Package host models the single-threaded execution host: one goroutine
// running scheduled tasks to completion, strictly in FIFO order. Nothing
// else may touch host-owned state such as the Scene.
package host

import (
	"errors"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	list "github.com/bahlo/generic-list-go"
)

var (
	// ErrHostStopped is returned when scheduling on a loop that is not accepting work
	ErrHostStopped = errors.New("host loop is not accepting work")
	// ErrAlreadyStarted is returned by a second Start
	ErrAlreadyStarted = errors.New("host loop already started")
)

// Task is one unit of work run on the host goroutine
type Task func()

// Loop is the host's cooperative task queue. The queue itself is unbounded;
// admission control upstream bounds how much live work reaches it.
type Loop struct {
	logger *slog.Logger
	wake   chan struct{}

	mu        sync.Mutex
	queue     *list.List[Task]
	started   bool
	accepting bool

	processed atomic.Uint64
	done      chan struct{}
}

// NewLoop creates a stopped loop
func NewLoop(logger *slog.Logger) *Loop {
	if logger == nil {
		logger = slog.Default()
	}
	return &Loop{
		logger: logger,
		wake:   make(chan struct{}, 1),
		queue:  list.New[Task](),
		done:   make(chan struct{}),
	}
}

// Start launches the host goroutine
func (l *Loop) Start() error {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.started {
		return ErrAlreadyStarted
	}
	l.started = true
	l.accepting = true
	go l.run()
	l.logger.Debug("Host loop started")
	return nil
}

// Schedule queues t behind every previously scheduled task. It never runs t
// on the caller's goroutine and only fails once the loop stops accepting.
func (l *Loop) Schedule(t Task) error {
	l.mu.Lock()
	if !l.accepting {
		l.mu.Unlock()
		return ErrHostStopped
	}
	l.queue.PushBack(t)
	l.mu.Unlock()
	l.signal()
	return nil
}

// Stop refuses new work. Tasks already queued still run before the loop
// exits.
func (l *Loop) Stop() {
	l.mu.Lock()
	l.accepting = false
	l.mu.Unlock()
	l.signal()
}

// ForceStop refuses new work and discards queued tasks. A task already
// running finishes; it cannot be interrupted.
func (l *Loop) ForceStop() {
	l.mu.Lock()
	l.accepting = false
	dropped := l.queue.Len()
	l.queue.Init()
	l.mu.Unlock()
	l.signal()
	if dropped > 0 {
		l.logger.Warn("Discarded queued host tasks", "count", dropped)
	}
}

// Done is closed when the host goroutine has exited
func (l *Loop) Done() <-chan struct{} {
	return l.done
}

// Wait blocks until the loop exits or timeout elapses
func (l *Loop) Wait(timeout time.Duration) bool {
	select {
	case <-l.done:
		return true
	case <-time.After(timeout):
		return false
	}
}

// Accepting reports whether Schedule currently admits work
func (l *Loop) Accepting() bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.accepting
}

// Processed returns the number of tasks run so far
func (l *Loop) Processed() uint64 {
	return l.processed.Load()
}

// Queued returns the number of tasks waiting to run
func (l *Loop) Queued() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.queue.Len()
}

func (l *Loop) signal() {
	select {
	case l.wake <- struct{}{}:
	default:
	}
}

// next pops the oldest task, blocking while the queue is empty. It reports
// false once the loop stopped accepting and the queue is drained.
func (l *Loop) next() (Task, bool) {
	for {
		l.mu.Lock()
		if front := l.queue.Front(); front != nil {
			t := l.queue.Remove(front)
			l.mu.Unlock()
			return t, true
		}
		accepting := l.accepting
		l.mu.Unlock()
		if !accepting {
			return nil, false
		}
		<-l.wake
	}
}

func (l *Loop) run() {
	defer close(l.done)
	for {
		t, ok := l.next()
		if !ok {
			break
		}
		l.runTask(t)
	}
	l.logger.Debug("Host loop exited", "processed", l.processed.Load())
}

func (l *Loop) runTask(t Task) {
	defer func() {
		l.processed.Add(1)
		if r := recover(); r != nil {
			l.logger.Error("Host task panicked", "panic", r)
		}
	}()
	t()
}
