package jobs

import (
	"sync"
	"time"
)

// job holds one unit of work's state. Its mutex guards the state only; the
// registry map is guarded separately so no lock spans both.
type job struct {
	id        string
	createdAt time.Time

	mu         sync.Mutex
	status     Status
	result     any
	errMsg     string
	finishedAt time.Time
	done       chan struct{}
}

func newJob(id string, now time.Time) *job {
	return &job{
		id:        id,
		createdAt: now,
		status:    StatusPending,
		done:      make(chan struct{}),
	}
}

// finish writes a terminal state. Only the first caller wins.
func (j *job) finish(status Status, result any, errMsg string, now time.Time) bool {
	j.mu.Lock()
	defer j.mu.Unlock()
	if j.status.Terminal() {
		return false
	}
	j.status = status
	j.result = result
	j.errMsg = errMsg
	j.finishedAt = now
	close(j.done)
	return true
}

func (j *job) markRunning() bool {
	j.mu.Lock()
	defer j.mu.Unlock()
	if j.status != StatusPending {
		return false
	}
	j.status = StatusRunning
	return true
}

func (j *job) outcome() Outcome {
	j.mu.Lock()
	defer j.mu.Unlock()
	o := Outcome{
		JobID:  j.id,
		Status: j.status,
		Result: j.result,
		Error:  j.errMsg,
	}
	if !j.finishedAt.IsZero() {
		o.Duration = j.finishedAt.Sub(j.createdAt)
	}
	return o
}

func (j *job) snapshot() Snapshot {
	j.mu.Lock()
	defer j.mu.Unlock()
	return Snapshot{
		ID:         j.id,
		Status:     j.status,
		CreatedAt:  j.createdAt,
		FinishedAt: j.finishedAt,
	}
}

// WaitHandle is returned by Register and consumed by Await
type WaitHandle struct {
	job *job
}

// ID returns the job identifier
func (h *WaitHandle) ID() string {
	return h.job.id
}

// Done is closed once the job reaches a terminal state
func (h *WaitHandle) Done() <-chan struct{} {
	return h.job.done
}
