// Package session manages streaming client sessions and their outbound
// queues, including the periodic sweep of idle sessions.
package session

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"
)

// ErrSessionNotFound is returned for unknown or closed session ids
var ErrSessionNotFound = errors.New("session not found")

// Observer receives session events for metrics
type Observer interface {
	SessionOpened()
	SessionClosed(reason string)
	MessagesDropped(n int)
}

type nopObserver struct{}

func (nopObserver) SessionOpened() {}
func (nopObserver) SessionClosed(string) {}
func (nopObserver) MessagesDropped(int) {}

// Manager owns every open session
type Manager struct {
	mu          sync.RWMutex
	sessions    map[string]*Queue
	queueSize   int
	idleTimeout time.Duration
	observer    Observer
	logger      *slog.Logger
	now         func() time.Time
}

// NewManager creates a session manager
func NewManager(queueSize int, idleTimeout time.Duration, logger *slog.Logger) *Manager {
	if logger == nil {
		logger = slog.Default()
	}
	return &Manager{
		sessions:    make(map[string]*Queue),
		queueSize:   queueSize,
		idleTimeout: idleTimeout,
		observer:    nopObserver{},
		logger:      logger,
		now:         time.Now,
	}
}

// SetObserver attaches an event observer. Call before use.
func (m *Manager) SetObserver(o Observer) {
	if o != nil {
		m.observer = o
	}
}

// Open registers a new session and returns its queue
func (m *Manager) Open() *Queue {
	q := newQueue(uuid.NewString(), m.queueSize, m.now)

	m.mu.Lock()
	m.sessions[q.id] = q
	count := len(m.sessions)
	m.mu.Unlock()

	m.observer.SessionOpened()
	m.logger.Info("Session opened", "session_id", q.id, "active_sessions", count)
	return q
}

// Get returns the queue for id
func (m *Manager) Get(id string) (*Queue, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	q, ok := m.sessions[id]
	return q, ok
}

// Push delivers msg to a session's queue. It reports false for unknown ids.
func (m *Manager) Push(id string, msg Message) bool {
	q, ok := m.Get(id)
	if !ok {
		return false
	}
	if q.Push(msg) {
		m.observer.MessagesDropped(1)
		m.logger.Debug("Session queue full, dropped oldest message", "session_id", id)
	}
	return true
}

// Pop removes the oldest message from a session's queue
func (m *Manager) Pop(id string) (Message, bool) {
	q, ok := m.Get(id)
	if !ok {
		return Message{}, false
	}
	return q.Pop()
}

// WaitForActivity waits on a session's wake signal
func (m *Manager) WaitForActivity(ctx context.Context, id string, timeout time.Duration) (bool, error) {
	q, ok := m.Get(id)
	if !ok {
		return false, ErrSessionNotFound
	}
	return q.Wait(ctx, timeout), nil
}

// Close removes a session. Safe to call repeatedly.
func (m *Manager) Close(id string) {
	m.closeWithReason(id, "disconnect")
}

func (m *Manager) closeWithReason(id, reason string) bool {
	m.mu.Lock()
	q, ok := m.sessions[id]
	delete(m.sessions, id)
	m.mu.Unlock()

	if !ok || !q.close() {
		return false
	}
	m.observer.SessionClosed(reason)
	m.logger.Info("Session closed", "session_id", id, "reason", reason,
		"age", m.now().Sub(q.createdAt).Round(time.Second), "dropped", q.TotalDropped())
	return true
}

// Count returns the number of open sessions
func (m *Manager) Count() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.sessions)
}

// Sweep closes sessions idle for longer than the idle timeout
func (m *Manager) Sweep() int {
	cutoff := m.now().Add(-m.idleTimeout)

	m.mu.RLock()
	var idle []string
	for id, q := range m.sessions {
		if q.LastActivity().Before(cutoff) {
			idle = append(idle, id)
		}
	}
	m.mu.RUnlock()

	removed := 0
	for _, id := range idle {
		if m.closeWithReason(id, "idle") {
			removed++
		}
	}
	if removed > 0 {
		m.logger.Info("Swept idle sessions", "count", removed, "idle_timeout", m.idleTimeout)
	}
	return removed
}

// RunSweeper calls Sweep every interval until ctx is done
func (m *Manager) RunSweeper(ctx context.Context, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			m.Sweep()
		case <-ctx.Done():
			return
		}
	}
}

// CloseAll closes every session and returns how many were closed
func (m *Manager) CloseAll() int {
	m.mu.RLock()
	ids := make([]string, 0, len(m.sessions))
	for id := range m.sessions {
		ids = append(ids, id)
	}
	m.mu.RUnlock()

	closed := 0
	for _, id := range ids {
		if m.closeWithReason(id, "shutdown") {
			closed++
		}
	}
	return closed
}
