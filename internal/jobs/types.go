package jobs

import (
	"errors"
	"time"
)

// Status is the lifecycle state of a job
type Status string

const (
	StatusPending   Status = "pending"
	StatusRunning   Status = "running"
	StatusSuccess   Status = "success"
	StatusError     Status = "error"
	StatusCancelled Status = "cancelled"
)

// Terminal reports whether no further transition is possible
func (s Status) Terminal() bool {
	return s == StatusSuccess || s == StatusError || s == StatusCancelled
}

var (
	// ErrEmptyJobID is returned when a job id is empty
	ErrEmptyJobID = errors.New("job id cannot be empty")
	// ErrAlreadyRegistered is returned for a second registration of the same id
	ErrAlreadyRegistered = errors.New("job already registered")
	// ErrWaitTimeout is returned by Await when the bound elapsed first
	ErrWaitTimeout = errors.New("timed out waiting for job")
)

// Outcome is the terminal view of a job observed by Await
type Outcome struct {
	JobID    string
	Status   Status
	Result   any
	Error    string
	Duration time.Duration
}

// Snapshot is a point-in-time copy of a job's bookkeeping
type Snapshot struct {
	ID         string
	Status     Status
	CreatedAt  time.Time
	FinishedAt time.Time
}
