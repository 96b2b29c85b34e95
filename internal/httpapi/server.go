// Package httpapi serves the JSON-RPC surfaces over HTTP: a plain
// request/response endpoint, a server-sent event stream with a correlated
// POST side channel, an unauthenticated health probe and Prometheus metrics.
package httpapi

import (
	"log/slog"
	"net/http"
	"time"

	"github.com/AltairaLabs/scenebridge-mcp/internal/config"
	"github.com/AltairaLabs/scenebridge-mcp/internal/metrics"
	"github.com/AltairaLabs/scenebridge-mcp/internal/protocol"
	"github.com/AltairaLabs/scenebridge-mcp/internal/session"
)

// Routes
const (
	PathHTTP        = "/http"
	PathSSE         = "/sse"
	PathSSEMessages = "/sse/messages"
	PathHealth      = "/health"
	PathMetrics     = "/metrics"
)

// Headers
const (
	HeaderSessionID = "X-MCP-Session-ID"
	HeaderRequestID = "X-Request-ID"
	queryToken      = "token"
	querySessionID  = "sessionId"
)

// State reports whether the server is refusing new work
type State interface {
	Rejecting() bool
}

type alwaysAccepting struct{}

func (alwaysAccepting) Rejecting() bool { return false }

// Options wires the HTTP layer to the rest of the server
type Options struct {
	Config     config.Config
	Dispatcher *protocol.Dispatcher
	Sessions   *session.Manager
	Metrics    *metrics.Collector
	State      State
	Logger     *slog.Logger

	// PendingJobs reports outstanding host jobs for /health
	PendingJobs func() int

	// Counts reports the registered tools, resources and prompts
	Counts func() (tools, resources, prompts int)
}

// Server is the http.Handler for every route
type Server struct {
	cfg        config.Config
	dispatcher *protocol.Dispatcher
	sessions   *session.Manager
	metrics    *metrics.Collector
	state      State
	pending    func() int
	counts     func() (int, int, int)
	logger     *slog.Logger

	limiter *clientLimiters
	tasks   *taskGroup
	started time.Time
	handler http.Handler
}

// New builds the handler chain
func New(opts Options) *Server {
	s := &Server{
		cfg:        opts.Config,
		dispatcher: opts.Dispatcher,
		sessions:   opts.Sessions,
		metrics:    opts.Metrics,
		state:      opts.State,
		pending:    opts.PendingJobs,
		counts:     opts.Counts,
		logger:     opts.Logger,
		limiter:    newClientLimiters(opts.Config.RateLimit),
		tasks:      newTaskGroup(),
		started:    time.Now(),
	}
	if s.logger == nil {
		s.logger = slog.Default()
	}
	if s.state == nil {
		s.state = alwaysAccepting{}
	}
	if s.metrics == nil {
		s.metrics = metrics.NewCollector()
	}
	if s.pending == nil {
		s.pending = func() int { return 0 }
	}
	if s.counts == nil {
		s.counts = func() (int, int, int) { return 0, 0, 0 }
	}

	mux := http.NewServeMux()
	mux.HandleFunc("POST "+PathHTTP, s.handleRPC)
	mux.HandleFunc("GET "+PathSSE, s.handleStream)
	mux.HandleFunc("POST "+PathSSE, s.handleSideChannel)
	mux.HandleFunc("POST "+PathSSEMessages, s.handleSideChannel)
	mux.HandleFunc("GET "+PathHealth, s.handleHealth)
	mux.Handle("GET "+PathMetrics, s.metrics.Handler())

	// Outermost first
	s.handler = s.withRequestLog(
		s.withCORS(
			s.withShutdownGate(
				s.withAuth(
					s.withRateLimit(mux)))))

	if !s.cfg.Auth.Required {
		s.logger.Warn("Authentication disabled; every local process can call the server")
	}
	return s
}

// ServeHTTP implements http.Handler
func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.handler.ServeHTTP(w, r)
}

// BackgroundTasks returns the number of side-channel requests still running
func (s *Server) BackgroundTasks() int {
	return s.tasks.Active()
}

// CancelBackground cancels side-channel work and waits up to grace for it to
// return. It reports how many tasks were still running when grace ran out.
func (s *Server) CancelBackground(grace time.Duration) int {
	remaining := s.tasks.Cancel(grace)
	if remaining > 0 {
		s.logger.Warn("Background tasks still running after cancel grace", "count", remaining, "grace", grace)
	}
	return remaining
}
