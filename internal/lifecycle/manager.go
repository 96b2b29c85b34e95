// Package lifecycle owns the running server: it builds every component on
// Start and tears them down in a fixed order on shutdown. A Manager can be
// started again after it has stopped.
package lifecycle

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"sync"
	"sync/atomic"
	"time"

	"github.com/AltairaLabs/scenebridge-mcp/internal/admission"
	"github.com/AltairaLabs/scenebridge-mcp/internal/config"
	"github.com/AltairaLabs/scenebridge-mcp/internal/executor"
	"github.com/AltairaLabs/scenebridge-mcp/internal/healthgrpc"
	"github.com/AltairaLabs/scenebridge-mcp/internal/host"
	"github.com/AltairaLabs/scenebridge-mcp/internal/httpapi"
	"github.com/AltairaLabs/scenebridge-mcp/internal/jobs"
	"github.com/AltairaLabs/scenebridge-mcp/internal/mcpserver"
	"github.com/AltairaLabs/scenebridge-mcp/internal/metrics"
	"github.com/AltairaLabs/scenebridge-mcp/internal/protocol"
	"github.com/AltairaLabs/scenebridge-mcp/internal/session"
	"github.com/AltairaLabs/scenebridge-mcp/internal/tools"
	"github.com/AltairaLabs/scenebridge-mcp/internal/tools/handlers/scene"
	"github.com/mark3labs/mcp-go/mcp"
)

var (
	// ErrAlreadyRunning is returned by Start while the server is running
	ErrAlreadyRunning = errors.New("server is already running")
	// ErrShutdownInProgress is returned by Start when a previous shutdown did
	// not finish within the wait bound
	ErrShutdownInProgress = errors.New("server is still shutting down")
	// ErrStartupTimeout is returned when the listener does not come up in time
	ErrStartupTimeout = errors.New("server did not start within the startup timeout")
)

// State is the lifecycle state
type State int

const (
	StateStopped State = iota
	StateRunning
	StateShuttingDown
)

func (s State) String() string {
	switch s {
	case StateRunning:
		return "running"
	case StateShuttingDown:
		return "shutting_down"
	default:
		return "stopped"
	}
}

// Options configures a Manager
type Options struct {
	Config config.Config
	Logger *slog.Logger

	// Scene is host-owned application state. It outlives server restarts.
	Scene *host.Scene

	// Metrics is shared across restarts; nil creates one
	Metrics *metrics.Collector
}

// components are rebuilt on every Start
type components struct {
	listener   net.Listener
	httpServer *http.Server
	api        *httpapi.Server
	grpcHealth *healthgrpc.Server

	loop     *host.Loop
	registry *jobs.Registry
	pending  *admission.PendingSet
	adapter  *executor.Adapter
	sessions *session.Manager
	tools    *tools.Registry

	cancelSweepers context.CancelFunc
	serveErr       chan error
}

// Manager is the explicit server handle. mu serializes state transitions
// and is held for the whole of Start. comp is only written under mu but is
// read lock-free so gauges and Addr never wait on a slow startup.
type Manager struct {
	cfg     config.Config
	scene   *host.Scene
	logger  *slog.Logger
	metrics *metrics.Collector

	mu       sync.Mutex
	state    State
	stoppedC chan struct{}

	comp      atomic.Pointer[components]
	rejecting atomic.Bool
}

// NewManager creates a stopped manager
func NewManager(opts Options) *Manager {
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}
	sc := opts.Scene
	if sc == nil {
		sc = host.NewDefaultScene()
	}
	collector := opts.Metrics
	if collector == nil {
		collector = metrics.NewCollector()
	}
	stopped := make(chan struct{})
	close(stopped)

	m := &Manager{
		cfg:      opts.Config,
		scene:    sc,
		logger:   logger,
		metrics:  collector,
		stoppedC: stopped,
	}
	collector.WatchGauges(m.PendingJobs, m.ActiveSessions)
	return m
}

// Rejecting reports whether new work is being refused
func (m *Manager) Rejecting() bool {
	return m.rejecting.Load()
}

// State returns the current lifecycle state
func (m *Manager) State() State {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.state
}

// Addr returns the bound HTTP address, or "" when not running
func (m *Manager) Addr() string {
	c := m.current()
	if c == nil {
		return ""
	}
	return c.listener.Addr().String()
}

// PendingJobs returns the size of the pending set
func (m *Manager) PendingJobs() int {
	if c := m.current(); c != nil {
		return c.pending.Len()
	}
	return 0
}

// ActiveSessions returns the number of open streams
func (m *Manager) ActiveSessions() int {
	if c := m.current(); c != nil {
		return c.sessions.Count()
	}
	return 0
}

func (m *Manager) current() *components {
	return m.comp.Load()
}

// Start binds the listener and starts every component. A Start that arrives
// during shutdown waits, bounded, for the shutdown to finish.
func (m *Manager) Start(ctx context.Context) error {
	if err := m.waitForStopped(ctx); err != nil {
		return err
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	switch m.state {
	case StateRunning:
		return ErrAlreadyRunning
	case StateShuttingDown:
		return ErrShutdownInProgress
	}

	c, err := m.build()
	if err != nil {
		return err
	}
	if err := m.serve(ctx, c); err != nil {
		m.abort(c)
		return err
	}

	m.comp.Store(c)
	m.state = StateRunning
	m.stoppedC = make(chan struct{})
	m.rejecting.Store(false)

	m.logger.Info("MCP server started",
		"addr", c.listener.Addr().String(),
		"auth_required", m.cfg.Auth.Required,
		"local_only", m.cfg.IsLocalBind(),
		"pending_capacity", c.pending.Capacity(),
	)
	return nil
}

func (m *Manager) waitForStopped(ctx context.Context) error {
	m.mu.Lock()
	state, done := m.state, m.stoppedC
	m.mu.Unlock()
	if state != StateShuttingDown {
		return nil
	}

	wait := m.cfg.Shutdown.WaitForShutdown
	if wait <= 0 {
		wait = config.DefaultWaitForShutdown
	}
	m.logger.Warn("Server is still shutting down; waiting before start", "wait", wait)
	select {
	case <-done:
		return nil
	case <-time.After(wait):
		return ErrShutdownInProgress
	case <-ctx.Done():
		return ctx.Err()
	}
}

// build creates a fresh component set and binds the listeners
func (m *Manager) build() (*components, error) {
	cfg := m.cfg
	lis, err := net.Listen("tcp", cfg.Addr())
	if err != nil {
		return nil, fmt.Errorf("failed to bind %s: %w", cfg.Addr(), err)
	}

	c := &components{listener: lis, serveErr: make(chan error, 1)}

	c.registry = jobs.NewRegistry(m.logger)
	c.pending = admission.New(cfg.Executor.PendingCapacity, m.logger)
	c.pending.SetObserver(m.metrics)
	c.loop = host.NewLoop(m.logger)
	c.adapter = executor.New(c.registry, c.pending, c.loop, executor.Config{
		Timeout:    cfg.Executor.ToolTimeout,
		RetryAfter: cfg.Shutdown.RetryAfter,
	}, m.logger)
	c.adapter.SetObserver(m.metrics)

	c.tools = tools.NewRegistry(
		scene.NewHandler(c.adapter, m.scene, cfg.Executor.ToolTimeout, cfg.Executor.ResourceTimeout),
	)
	mcpSrv := mcpserver.New(mcp.Implementation{Name: cfg.Server.Name, Version: cfg.Server.Version},
		c.tools, cfg.Executor.OutputLimit, m.logger)
	mcpSrv.SetObserver(m.metrics)
	dispatcher := protocol.NewDispatcher(m.logger)
	mcpSrv.Register(dispatcher)

	c.sessions = session.NewManager(cfg.Sessions.QueueSize, cfg.Sessions.IdleTimeout, m.logger)
	c.sessions.SetObserver(m.metrics)

	c.api = httpapi.New(httpapi.Options{
		Config:      cfg,
		Dispatcher:  dispatcher,
		Sessions:    c.sessions,
		Metrics:     m.metrics,
		State:       m,
		Logger:      m.logger,
		PendingJobs: c.pending.Len,
		Counts:      c.tools.Counts,
	})
	c.httpServer = &http.Server{
		Handler:           c.api,
		ReadHeaderTimeout: 5 * time.Second,
	}
	// Streams never go idle on their own; closing the sessions ends them
	c.httpServer.RegisterOnShutdown(func() { c.sessions.CloseAll() })

	if cfg.GRPCHealthPort > 0 {
		c.grpcHealth = healthgrpc.New(m.logger)
	}
	return c, nil
}

// serve starts the goroutines and waits for the listener to accept
func (m *Manager) serve(ctx context.Context, c *components) error {
	cfg := m.cfg
	if err := c.loop.Start(); err != nil {
		return err
	}

	sweepCtx, cancel := context.WithCancel(context.Background())
	c.cancelSweepers = cancel
	go c.sessions.RunSweeper(sweepCtx, positive(cfg.Sessions.SweepInterval, config.DefaultSessionSweepInterval))
	go c.registry.RunSweeper(sweepCtx,
		positive(cfg.Executor.JobSweepInterval, config.DefaultJobSweepInterval),
		positive(cfg.Executor.JobMaxAge, config.DefaultJobMaxAge))

	go func() {
		err := c.httpServer.Serve(c.listener)
		if errors.Is(err, http.ErrServerClosed) {
			err = nil
		}
		c.serveErr <- err
	}()

	if err := waitForListener(ctx, c.listener.Addr().String(), c.serveErr,
		positive(cfg.Shutdown.StartupTimeout, config.DefaultStartupTimeout)); err != nil {
		return err
	}

	if c.grpcHealth != nil {
		addr := net.JoinHostPort(cfg.Server.Host, fmt.Sprint(cfg.GRPCHealthPort))
		lis, err := net.Listen("tcp", addr)
		if err != nil {
			return fmt.Errorf("failed to bind gRPC health on %s: %w", addr, err)
		}
		go func() {
			if err := c.grpcHealth.Serve(lis); err != nil {
				m.logger.Error("gRPC health server error", "error", err)
			}
		}()
		c.grpcHealth.SetServing(true)
	}
	return nil
}

// abort releases a half-started component set
func (m *Manager) abort(c *components) {
	if c.cancelSweepers != nil {
		c.cancelSweepers()
	}
	_ = c.httpServer.Close()
	_ = c.listener.Close()
	c.loop.ForceStop()
	if c.grpcHealth != nil {
		c.grpcHealth.Stop(0)
	}
}

func waitForListener(ctx context.Context, addr string, serveErr <-chan error, timeout time.Duration) error {
	deadline := time.Now().Add(timeout)
	for {
		conn, err := net.DialTimeout("tcp", addr, 100*time.Millisecond)
		if err == nil {
			_ = conn.Close()
			return nil
		}
		select {
		case err := <-serveErr:
			if err == nil {
				err = http.ErrServerClosed
			}
			return fmt.Errorf("server exited during startup: %w", err)
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(20 * time.Millisecond):
		}
		if time.Now().After(deadline) {
			return ErrStartupTimeout
		}
	}
}

func positive(d, fallback time.Duration) time.Duration {
	if d > 0 {
		return d
	}
	return fallback
}

// Stop begins shutdown in the background and returns immediately
func (m *Manager) Stop() {
	go m.InitiateShutdown()
}

// WaitForShutdown blocks until no shutdown is in progress or timeout elapses
func (m *Manager) WaitForShutdown(timeout time.Duration) bool {
	m.mu.Lock()
	done := m.stoppedC
	m.mu.Unlock()
	select {
	case <-done:
		return true
	case <-time.After(timeout):
		return false
	}
}
