// Package executor runs work on the serialized host on behalf of concurrent
// callers. Each call registers a job, passes admission control, is queued on
// the host loop and awaited with a bound.
package executor

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync/atomic"
	"time"

	"github.com/AltairaLabs/scenebridge-mcp/internal/admission"
	"github.com/AltairaLabs/scenebridge-mcp/internal/host"
	"github.com/AltairaLabs/scenebridge-mcp/internal/jobs"
)

// Scheduler queues a task on the host. host.Loop implements it.
type Scheduler interface {
	Schedule(t host.Task) error
}

// WorkFunc is the unit of work run on the host goroutine
type WorkFunc func() (any, error)

// Observer receives per-job outcomes for metrics. Skipped reports why the
// host did not run a job: the entry was cancelled or already absent.
type Observer interface {
	JobFinished(category Category, d time.Duration)
	JobSkipped(reason string)
}

type nopObserver struct{}

func (nopObserver) JobFinished(Category, time.Duration) {}
func (nopObserver) JobSkipped(string) {}

// Config holds adapter settings
type Config struct {
	// Timeout bounds each wait; zero waits indefinitely
	Timeout time.Duration
	// RetryAfter is reported to callers rejected during shutdown
	RetryAfter time.Duration
}

// Adapter bridges callers to the host loop
type Adapter struct {
	jobs     *jobs.Registry
	pending  *admission.PendingSet
	host     Scheduler
	cfg      Config
	observer Observer
	logger   *slog.Logger
	closed   atomic.Bool
}

// New creates an adapter over the given registry, pending set and host
func New(registry *jobs.Registry, pending *admission.PendingSet, scheduler Scheduler, cfg Config, logger *slog.Logger) *Adapter {
	if logger == nil {
		logger = slog.Default()
	}
	return &Adapter{
		jobs:     registry,
		pending:  pending,
		host:     scheduler,
		cfg:      cfg,
		observer: nopObserver{},
		logger:   logger,
	}
}

// SetObserver attaches an outcome observer. Call before use.
func (a *Adapter) SetObserver(o Observer) {
	if o != nil {
		a.observer = o
	}
}

// Close makes every later Execute fail fast with a ShutdownError
func (a *Adapter) Close() {
	a.closed.Store(true)
}

// Execute runs fn on the host using the configured timeout
func (a *Adapter) Execute(ctx context.Context, operation string, fn WorkFunc) (any, error) {
	return a.ExecuteWithTimeout(ctx, operation, a.cfg.Timeout, fn)
}

// ExecuteWithTimeout runs fn on the host and waits at most timeout for the
// outcome. A zero timeout waits until the job finishes or ctx is done.
func (a *Adapter) ExecuteWithTimeout(ctx context.Context, operation string, timeout time.Duration, fn WorkFunc) (any, error) {
	if a.closed.Load() {
		return nil, &ShutdownError{RetryAfter: a.cfg.RetryAfter}
	}

	id := jobs.NewID()
	handle, err := a.jobs.Register(id)
	if err != nil {
		return nil, fmt.Errorf("register job: %w", err)
	}
	defer a.jobs.Discard(id)
	defer a.pending.Remove(id)

	var evicted atomic.Bool
	a.pending.Add(id, func() {
		evicted.Store(true)
		a.jobs.Cancel(id)
	})

	log := a.logger.With("job_id", id, "operation", operation)

	if err := a.host.Schedule(a.hostTask(id, fn)); err != nil {
		a.jobs.Cancel(id)
		log.Warn("Failed to schedule host job", "error", err)
		a.observer.JobFinished(CategorySchedule, 0)
		if errors.Is(err, host.ErrHostStopped) && a.closed.Load() {
			return nil, &ShutdownError{RetryAfter: a.cfg.RetryAfter}
		}
		return nil, &ScheduleError{Operation: operation, Err: err}
	}
	log.Debug("Scheduled host job", "timeout", timeout)

	outcome, err := a.jobs.Await(ctx, handle, timeout)
	switch {
	case errors.Is(err, jobs.ErrWaitTimeout):
		log.Warn("Host job timed out", "timeout", timeout)
		a.observer.JobFinished(CategoryTimeout, timeout)
		return nil, &TimeoutError{Operation: operation, Timeout: timeout}
	case err != nil:
		log.Debug("Caller stopped waiting for host job", "error", err)
		a.observer.JobFinished(CategoryCancelled, outcome.Duration)
		return nil, fmt.Errorf("operation %q: %w", operation, err)
	}

	switch outcome.Status {
	case jobs.StatusSuccess:
		a.observer.JobFinished(CategoryNone, outcome.Duration)
		return outcome.Result, nil
	case jobs.StatusError:
		a.observer.JobFinished(CategoryExecution, outcome.Duration)
		return nil, &ExecutionError{Operation: operation, Message: outcome.Error}
	default:
		if evicted.Load() {
			a.observer.JobFinished(CategoryEvicted, outcome.Duration)
			return nil, &EvictedError{Operation: operation, Capacity: a.pending.Capacity()}
		}
		a.observer.JobFinished(CategoryCancelled, outcome.Duration)
		return nil, &CancelledError{Operation: operation}
	}
}

// hostTask wraps fn with the skip-if-cancelled check. It runs on the host
// goroutine.
func (a *Adapter) hostTask(id string, fn WorkFunc) host.Task {
	return func() {
		if state := a.pending.Claim(id); state != admission.StateActive {
			a.logger.Debug("Skipping cancelled host job", "job_id", id, "state", state.String())
			a.observer.JobSkipped(state.String())
			return
		}
		if !a.jobs.MarkRunning(id) {
			a.logger.Debug("Skipping host job finalized before start", "job_id", id)
			a.observer.JobSkipped(admission.StateCancelled.String())
			return
		}

		result, err := runSafely(fn)
		if err != nil {
			a.jobs.Fail(id, err.Error())
			return
		}
		a.jobs.Complete(id, result)
	}
}

func runSafely(fn WorkFunc) (result any, err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("panic: %v", r)
		}
	}()
	return fn()
}
