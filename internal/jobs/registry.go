// Package jobs implements the result channel between callers waiting for
// host execution and the host writing the outcome. Each job accepts exactly
// one terminal write; later writes are no-ops.
package jobs

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"
)

// Registry tracks jobs from registration until the caller discards them
type Registry struct {
	mu     sync.Mutex
	jobs   map[string]*job
	logger *slog.Logger
	now    func() time.Time
}

// NewRegistry creates an empty registry
func NewRegistry(logger *slog.Logger) *Registry {
	if logger == nil {
		logger = slog.Default()
	}
	return &Registry{
		jobs:   make(map[string]*job),
		logger: logger,
		now:    time.Now,
	}
}

// NewID returns a fresh job identifier
func NewID() string {
	return uuid.NewString()
}

// Register creates the bookkeeping for id. An id may only be registered once
// while it is tracked.
func (r *Registry) Register(id string) (*WaitHandle, error) {
	if id == "" {
		return nil, ErrEmptyJobID
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if _, exists := r.jobs[id]; exists {
		return nil, fmt.Errorf("%w: %s", ErrAlreadyRegistered, id)
	}
	j := newJob(id, r.now())
	r.jobs[id] = j
	return &WaitHandle{job: j}, nil
}

func (r *Registry) lookup(id string) *job {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.jobs[id]
}

// MarkRunning moves a pending job to running. It fails if the job is gone
// or already left the pending state.
func (r *Registry) MarkRunning(id string) bool {
	j := r.lookup(id)
	if j == nil {
		return false
	}
	return j.markRunning()
}

// Complete records a successful result
func (r *Registry) Complete(id string, result any) bool {
	return r.finish(id, StatusSuccess, result, "")
}

// Fail records an execution failure
func (r *Registry) Fail(id string, errMsg string) bool {
	return r.finish(id, StatusError, nil, errMsg)
}

// Cancel marks the job cancelled so any later host write is ignored
func (r *Registry) Cancel(id string) bool {
	return r.finish(id, StatusCancelled, nil, "")
}

func (r *Registry) finish(id string, status Status, result any, errMsg string) bool {
	j := r.lookup(id)
	if j == nil {
		r.logger.Debug("Terminal write for unknown job", "job_id", id, "status", status)
		return false
	}
	if !j.finish(status, result, errMsg, r.now()) {
		r.logger.Debug("Ignoring terminal write for finalized job", "job_id", id, "status", status)
		return false
	}
	return true
}

// Status returns the current status of a tracked job
func (r *Registry) Status(id string) (Status, bool) {
	j := r.lookup(id)
	if j == nil {
		return "", false
	}
	return j.snapshot().Status, true
}

// Await blocks until the job finishes, timeout elapses or ctx is done.
// A timeout of zero waits without bound. When the wait gives up the job is
// cancelled on the caller's behalf; if the host finished in the meantime its
// outcome wins and is returned with a nil error.
func (r *Registry) Await(ctx context.Context, h *WaitHandle, timeout time.Duration) (Outcome, error) {
	var expired <-chan time.Time
	if timeout > 0 {
		timer := time.NewTimer(timeout)
		defer timer.Stop()
		expired = timer.C
	}

	select {
	case <-h.job.done:
		return h.job.outcome(), nil
	case <-expired:
		if h.job.finish(StatusCancelled, nil, "", r.now()) {
			return h.job.outcome(), ErrWaitTimeout
		}
		return h.job.outcome(), nil
	case <-ctx.Done():
		if h.job.finish(StatusCancelled, nil, "", r.now()) {
			return h.job.outcome(), ctx.Err()
		}
		return h.job.outcome(), nil
	}
}

// Discard drops the bookkeeping for id. Safe to call repeatedly.
func (r *Registry) Discard(id string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.jobs, id)
}

// Len returns the number of tracked jobs
func (r *Registry) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.jobs)
}

// Snapshots returns a copy of every tracked job
func (r *Registry) Snapshots() []Snapshot {
	r.mu.Lock()
	jobs := make([]*job, 0, len(r.jobs))
	for _, j := range r.jobs {
		jobs = append(jobs, j)
	}
	r.mu.Unlock()

	out := make([]Snapshot, 0, len(jobs))
	for _, j := range jobs {
		out = append(out, j.snapshot())
	}
	return out
}

// Cleanup removes terminal jobs that finished more than maxAge ago. Jobs
// still pending or running are never touched: their waiters own the bound.
func (r *Registry) Cleanup(maxAge time.Duration) int {
	cutoff := r.now().Add(-maxAge)

	r.mu.Lock()
	candidates := make(map[string]*job, len(r.jobs))
	for id, j := range r.jobs {
		candidates[id] = j
	}
	r.mu.Unlock()

	var stale []string
	for id, j := range candidates {
		snap := j.snapshot()
		if snap.Status.Terminal() && snap.FinishedAt.Before(cutoff) {
			stale = append(stale, id)
		}
	}

	r.mu.Lock()
	removed := 0
	for _, id := range stale {
		if r.jobs[id] == candidates[id] {
			delete(r.jobs, id)
			removed++
		}
	}
	r.mu.Unlock()

	if removed > 0 {
		r.logger.Info("Cleaned up stale jobs", "count", removed, "max_age", maxAge)
	}
	return removed
}

// Reset forgets every job without signalling waiters; they observe their
// own timeout.
func (r *Registry) Reset() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	n := len(r.jobs)
	r.jobs = make(map[string]*job)
	return n
}

// RunSweeper calls Cleanup every interval until ctx is done
func (r *Registry) RunSweeper(ctx context.Context, interval, maxAge time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			r.Cleanup(maxAge)
		case <-ctx.Done():
			return
		}
	}
}
