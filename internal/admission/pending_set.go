// Package admission bounds the number of host jobs waiting to run. When the
// set is full the oldest entry is cancelled and its waiter woken so newer
// requests get admitted.
package admission

import (
	"log/slog"
	"sync"
	"time"

	orderedmap "github.com/wk8/go-ordered-map/v2"
)

// WakeFunc unblocks the waiter of an evicted entry. It runs outside the
// set's lock.
type WakeFunc func()

// State is the admission view of a job id
type State int

const (
	// StateAbsent means the id is not tracked: finished, claimed or evicted
	StateAbsent State = iota
	// StateActive means the id is waiting to run
	StateActive
	// StateCancelled means the id is tracked but marked cancelled
	StateCancelled
)

func (s State) String() string {
	switch s {
	case StateActive:
		return "active"
	case StateCancelled:
		return "cancelled"
	default:
		return "absent"
	}
}

// Observer receives admission events for metrics
type Observer interface {
	Evicted(jobID string, age time.Duration)
}

type entry struct {
	addedAt   time.Time
	cancelled bool
	wake      WakeFunc
}

// PendingSet is an insertion-ordered, capacity-bounded set of job ids
type PendingSet struct {
	mu       sync.Mutex
	capacity int
	entries  *orderedmap.OrderedMap[string, *entry]
	observer Observer
	logger   *slog.Logger
	now      func() time.Time
}

// New creates a set holding at most capacity entries
func New(capacity int, logger *slog.Logger) *PendingSet {
	if capacity <= 0 {
		capacity = 1
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &PendingSet{
		capacity: capacity,
		entries:  orderedmap.New[string, *entry](),
		logger:   logger,
		now:      time.Now,
	}
}

// SetObserver attaches an event observer. Call before use.
func (p *PendingSet) SetObserver(o Observer) {
	p.observer = o
}

// Capacity returns the configured bound
func (p *PendingSet) Capacity() int {
	return p.capacity
}

// Add admits id. If the set is full the oldest entry is evicted, cancelled
// and woken, and its id returned. Adding an id that is already tracked is a
// no-op.
func (p *PendingSet) Add(id string, wake WakeFunc) (evicted string, ok bool) {
	p.mu.Lock()
	if _, exists := p.entries.Get(id); exists {
		p.mu.Unlock()
		p.logger.Debug("Pending operation already admitted", "job_id", id)
		return "", false
	}

	var victim *entry
	if p.entries.Len() >= p.capacity {
		oldest := p.entries.Oldest()
		evicted, victim = oldest.Key, oldest.Value
		p.entries.Delete(evicted)
		victim.cancelled = true
	}
	p.entries.Set(id, &entry{addedAt: p.now(), wake: wake})
	p.mu.Unlock()

	if victim == nil {
		return "", false
	}

	age := p.now().Sub(victim.addedAt)
	p.logger.Warn("Evicted oldest pending operation",
		"job_id", evicted,
		"age_ms", age.Milliseconds(),
		"capacity", p.capacity,
	)
	if p.observer != nil {
		p.observer.Evicted(evicted, age)
	}
	if victim.wake != nil {
		victim.wake()
	}
	return evicted, true
}

// State reports whether id is active, cancelled or absent
func (p *PendingSet) State(id string) State {
	p.mu.Lock()
	defer p.mu.Unlock()
	e, ok := p.entries.Get(id)
	switch {
	case !ok:
		return StateAbsent
	case e.cancelled:
		return StateCancelled
	default:
		return StateActive
	}
}

// IsCancelled reports true for absent ids and for ids marked cancelled
func (p *PendingSet) IsCancelled(id string) bool {
	return p.State(id) != StateActive
}

// Claim atomically checks id and, if still active, removes it so the host
// can run it. The returned state is the one observed before removal.
func (p *PendingSet) Claim(id string) State {
	p.mu.Lock()
	defer p.mu.Unlock()
	e, ok := p.entries.Get(id)
	if !ok {
		return StateAbsent
	}
	p.entries.Delete(id)
	if e.cancelled {
		return StateCancelled
	}
	return StateActive
}

// Cancel marks id cancelled without removing it
func (p *PendingSet) Cancel(id string) bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	e, ok := p.entries.Get(id)
	if !ok || e.cancelled {
		return false
	}
	e.cancelled = true
	return true
}

// Remove drops id. Safe to call repeatedly.
func (p *PendingSet) Remove(id string) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.entries.Delete(id)
}

// Len returns the number of tracked entries
func (p *PendingSet) Len() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.entries.Len()
}

// IDs returns tracked ids oldest first
func (p *PendingSet) IDs() []string {
	p.mu.Lock()
	defer p.mu.Unlock()
	ids := make([]string, 0, p.entries.Len())
	for pair := p.entries.Oldest(); pair != nil; pair = pair.Next() {
		ids = append(ids, pair.Key)
	}
	return ids
}

// Clear drops every entry without waking waiters and returns how many were
// dropped.
func (p *PendingSet) Clear() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	n := p.entries.Len()
	p.entries = orderedmap.New[string, *entry]()
	return n
}
