package lifecycle

import (
	"context"
	"errors"
	"time"

	"github.com/AltairaLabs/scenebridge-mcp/internal/config"
)

// InitiateShutdown runs the shutdown sequence to completion. It returns
// false without doing anything when the server is not running, including
// when another shutdown is already under way.
func (m *Manager) InitiateShutdown() bool {
	m.mu.Lock()
	if m.state != StateRunning {
		m.mu.Unlock()
		return false
	}
	m.state = StateShuttingDown
	c := m.comp.Load()
	done := m.stoppedC
	m.mu.Unlock()

	cfg := m.cfg.Shutdown
	start := time.Now()
	log := m.logger.With("component", "shutdown")
	log.Info("Shutdown initiated")

	// 1. Refuse new work
	m.rejecting.Store(true)
	c.adapter.Close()
	if c.grpcHealth != nil {
		c.grpcHealth.SetServing(false)
	}

	// 2. Stop accepting connections
	graceful := positive(cfg.GracefulTimeout, config.DefaultGracefulShutdownTimeout)
	ctx, cancel := context.WithTimeout(context.Background(), graceful)
	err := c.httpServer.Shutdown(ctx)
	cancel()
	if err != nil {
		log.Warn("HTTP server did not drain in time; closing connections", "timeout", graceful, "error", err)
		_ = c.httpServer.Close()
	}
	if serveErr := <-c.serveErr; serveErr != nil && !errors.Is(serveErr, context.Canceled) {
		log.Warn("HTTP server exited with error", "error", serveErr)
	}

	// 3. Cancel background tasks
	c.cancelSweepers()
	if remaining := c.api.CancelBackground(positive(cfg.TaskCancelGrace, config.DefaultTaskCancelGrace)); remaining > 0 {
		log.Warn("Abandoning background tasks", "count", remaining)
	}

	// 4. Drain the host loop, forcing it if needed
	c.loop.Stop()
	if !c.loop.Wait(graceful) {
		log.Warn("Host loop still busy after grace; discarding queued work", "queued", c.loop.Queued())
		c.loop.ForceStop()
		if !c.loop.Wait(positive(cfg.ForceStopTimeout, config.DefaultForceStopTimeout)) {
			log.Error("Host loop did not exit; a running task is still holding it")
		}
	}

	// 5. Drop pending entries; their waiters hit their own timeouts
	dropped := c.pending.Clear()

	// 6. Reset long-lived state
	jobsDropped := c.registry.Reset()
	closed := c.sessions.CloseAll()
	if c.grpcHealth != nil {
		c.grpcHealth.Stop(graceful)
	}

	// 7. Done
	m.mu.Lock()
	m.comp.Store(nil)
	m.state = StateStopped
	m.mu.Unlock()
	close(done)

	log.Info("Shutdown complete",
		"duration", time.Since(start).Round(time.Millisecond),
		"pending_dropped", dropped,
		"jobs_dropped", jobsDropped,
		"sessions_closed", closed,
	)
	return true
}
