package config

import "time"

// Default timing configurations used throughout the server
const (
	// DefaultToolTimeout bounds how long a tool call waits for the host
	DefaultToolTimeout = 300 * time.Second

	// DefaultResourceTimeout bounds how long a resource read waits for the host
	DefaultResourceTimeout = 300 * time.Second

	// DefaultKeepaliveInterval is how long a stream may sit idle before a keepalive frame
	DefaultKeepaliveInterval = 15 * time.Second

	// DefaultSessionIdleTimeout is how long a streaming session may go without activity
	DefaultSessionIdleTimeout = 30 * time.Minute

	// DefaultSessionSweepInterval is how often idle sessions are swept
	DefaultSessionSweepInterval = 5 * time.Minute

	// DefaultJobMaxAge is how long finished job bookkeeping is kept before the sweep drops it
	DefaultJobMaxAge = 10 * time.Minute

	// DefaultJobSweepInterval is how often stale job bookkeeping is swept
	DefaultJobSweepInterval = 1 * time.Minute

	// DefaultGracefulShutdownTimeout bounds the executor drain during shutdown
	DefaultGracefulShutdownTimeout = 1500 * time.Millisecond

	// DefaultForceStopTimeout bounds the wait after a forced executor stop
	DefaultForceStopTimeout = 500 * time.Millisecond

	// DefaultTaskCancelGrace is how long background tasks get to observe cancellation
	DefaultTaskCancelGrace = 1 * time.Second

	// DefaultStartupTimeout bounds how long Start waits for the listener to serve
	DefaultStartupTimeout = 5 * time.Second

	// DefaultWaitForShutdown bounds how long a start waits for an in-flight shutdown
	DefaultWaitForShutdown = 3 * time.Second

	// DefaultRateLimitIdleTTL is how long an unused per-client limiter is kept
	DefaultRateLimitIdleTTL = 10 * time.Minute

	// DefaultRetryAfter is the retry hint sent while the server is shutting down
	DefaultRetryAfter = 5 * time.Second
)
