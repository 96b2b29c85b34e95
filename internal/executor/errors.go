package executor

import (
	"context"
	"errors"
	"fmt"
	"time"
)

// Category classifies a failed host call so operators can tell a failure
// apart from a give-up or a rejection
type Category string

const (
	CategoryNone      Category = ""
	CategoryExecution Category = "execution_failed"
	CategorySchedule  Category = "schedule_failed"
	CategoryTimeout   Category = "timed_out"
	CategoryEvicted   Category = "evicted"
	CategoryCancelled Category = "cancelled"
	CategoryShutdown  Category = "shutting_down"
	CategoryInternal  Category = "internal"
)

// ErrShuttingDown is returned when the adapter refuses work during shutdown
var ErrShuttingDown = errors.New("server is shutting down")

// ExecutionError means the work ran on the host and failed
type ExecutionError struct {
	Operation string
	Message   string
}

func (e *ExecutionError) Error() string {
	return e.Message
}

// ScheduleError means the host refused the work; nothing ran
type ScheduleError struct {
	Operation string
	Err       error
}

func (e *ScheduleError) Error() string {
	return fmt.Sprintf("failed to schedule %q on the host: %v", e.Operation, e.Err)
}

func (e *ScheduleError) Unwrap() error {
	return e.Err
}

// TimeoutError means the caller stopped waiting. The work may still run.
type TimeoutError struct {
	Operation string
	Timeout   time.Duration
}

func (e *TimeoutError) Error() string {
	return fmt.Sprintf("operation %q timed out after %s; raise the timeout or set it to 0 to wait indefinitely",
		e.Operation, e.Timeout)
}

// EvictedError means the job was shed by admission control before it ran
type EvictedError struct {
	Operation string
	Capacity  int
}

func (e *EvictedError) Error() string {
	return fmt.Sprintf("operation %q cancelled: too many pending operations (max %d)", e.Operation, e.Capacity)
}

// CancelledError means the job was cancelled for a reason other than
// eviction or timeout, such as a bookkeeping sweep
type CancelledError struct {
	Operation string
}

func (e *CancelledError) Error() string {
	return fmt.Sprintf("operation %q was cancelled before it completed", e.Operation)
}

// ShutdownError is a retryable rejection during shutdown
type ShutdownError struct {
	RetryAfter time.Duration
}

func (e *ShutdownError) Error() string {
	return fmt.Sprintf("%v; retry after %s", ErrShuttingDown, e.RetryAfter)
}

func (e *ShutdownError) Unwrap() error {
	return ErrShuttingDown
}

// CategoryOf maps an error returned by Execute to its category
func CategoryOf(err error) Category {
	if err == nil {
		return CategoryNone
	}
	var (
		execErr     *ExecutionError
		schedErr    *ScheduleError
		timeoutErr  *TimeoutError
		evictedErr  *EvictedError
		cancelErr   *CancelledError
		shutdownErr *ShutdownError
	)
	switch {
	case errors.As(err, &shutdownErr), errors.Is(err, ErrShuttingDown):
		return CategoryShutdown
	case errors.As(err, &execErr):
		return CategoryExecution
	case errors.As(err, &schedErr):
		return CategorySchedule
	case errors.As(err, &timeoutErr):
		return CategoryTimeout
	case errors.As(err, &evictedErr):
		return CategoryEvicted
	case errors.As(err, &cancelErr), errors.Is(err, context.Canceled):
		return CategoryCancelled
	case errors.Is(err, context.DeadlineExceeded):
		return CategoryTimeout
	default:
		return CategoryInternal
	}
}
