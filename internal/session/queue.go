package session

import (
	"context"
	"sync"
	"time"

	list "github.com/bahlo/generic-list-go"
)

// Message is one outbound server-sent event
type Message struct {
	Event string
	Data  []byte
}

// DropNotice reports how many messages were discarded since the last notice
type DropNotice struct {
	Count int
}

// Queue is a bounded, drop-oldest outbound buffer for one streaming client
type Queue struct {
	id        string
	capacity  int
	createdAt time.Time
	now       func() time.Time

	mu           sync.Mutex
	buf          *list.List[Message]
	dropped      int
	dropPending  bool
	totalDropped int
	lastActivity time.Time
	closed       bool

	wake   chan struct{}
	closeC chan struct{}
}

func newQueue(id string, capacity int, now func() time.Time) *Queue {
	if capacity <= 0 {
		capacity = 1
	}
	t := now()
	return &Queue{
		id:           id,
		capacity:     capacity,
		createdAt:    t,
		now:          now,
		buf:          list.New[Message](),
		lastActivity: t,
		wake:         make(chan struct{}, 1),
		closeC:       make(chan struct{}),
	}
}

// ID returns the session identifier
func (q *Queue) ID() string {
	return q.id
}

// CreatedAt returns when the session was opened
func (q *Queue) CreatedAt() time.Time {
	return q.createdAt
}

// Push appends msg, evicting the oldest message when full. It reports
// whether a message was dropped. The consumer is always woken.
func (q *Queue) Push(msg Message) (dropped bool) {
	q.mu.Lock()
	if q.closed {
		q.mu.Unlock()
		return false
	}
	if q.buf.Len() >= q.capacity {
		q.buf.Remove(q.buf.Front())
		q.dropped++
		q.totalDropped++
		q.dropPending = true
		dropped = true
	}
	q.buf.PushBack(msg)
	q.lastActivity = q.now()
	q.mu.Unlock()

	q.signal()
	return dropped
}

// Pop removes and returns the oldest message
func (q *Queue) Pop() (Message, bool) {
	q.mu.Lock()
	defer q.mu.Unlock()
	front := q.buf.Front()
	if front == nil {
		return Message{}, false
	}
	q.lastActivity = q.now()
	return q.buf.Remove(front), true
}

// Drain removes and returns every buffered message in order
func (q *Queue) Drain() []Message {
	q.mu.Lock()
	defer q.mu.Unlock()
	if q.buf.Len() == 0 {
		return nil
	}
	out := make([]Message, 0, q.buf.Len())
	for e := q.buf.Front(); e != nil; e = q.buf.Front() {
		out = append(out, q.buf.Remove(e))
	}
	q.lastActivity = q.now()
	return out
}

// TakeDropNotice returns the coalesced drop count once per burst of drops
func (q *Queue) TakeDropNotice() (DropNotice, bool) {
	q.mu.Lock()
	defer q.mu.Unlock()
	if !q.dropPending {
		return DropNotice{}, false
	}
	n := DropNotice{Count: q.dropped}
	q.dropped = 0
	q.dropPending = false
	return n, true
}

// Len returns the number of buffered messages
func (q *Queue) Len() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return q.buf.Len()
}

// TotalDropped returns every drop since the session opened
func (q *Queue) TotalDropped() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return q.totalDropped
}

// Touch records consumer activity without moving messages
func (q *Queue) Touch() {
	q.mu.Lock()
	defer q.mu.Unlock()
	q.lastActivity = q.now()
}

// LastActivity returns the time of the most recent push or consume
func (q *Queue) LastActivity() time.Time {
	q.mu.Lock()
	defer q.mu.Unlock()
	return q.lastActivity
}

// Wait blocks until a push wakes the queue, the queue closes, timeout elapses
// or ctx is done. It reports whether there was activity.
func (q *Queue) Wait(ctx context.Context, timeout time.Duration) bool {
	timer := time.NewTimer(timeout)
	defer timer.Stop()
	select {
	case <-q.wake:
		return true
	case <-q.closeC:
		return false
	case <-timer.C:
		return false
	case <-ctx.Done():
		return false
	}
}

// Closed is closed once the session has been closed
func (q *Queue) Closed() <-chan struct{} {
	return q.closeC
}

func (q *Queue) close() bool {
	q.mu.Lock()
	defer q.mu.Unlock()
	if q.closed {
		return false
	}
	q.closed = true
	q.buf.Init()
	close(q.closeC)
	return true
}

func (q *Queue) signal() {
	select {
	case q.wake <- struct{}{}:
	default:
	}
}
