// Package healthgrpc exposes the standard gRPC health service so
// orchestrators can probe the bridge without speaking MCP.
package healthgrpc

import (
	"errors"
	"log/slog"
	"net"
	"sync"
	"time"

	"google.golang.org/grpc"
	"google.golang.org/grpc/health"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"
)

// ServiceName is the health service key reported alongside the overall ("") status
const ServiceName = "scenebridge.MCP"

// Server wraps a grpc.Server carrying only the health service
type Server struct {
	grpcServer *grpc.Server
	health     *health.Server
	logger     *slog.Logger

	stopOnce sync.Once
}

// New creates a health server reporting NOT_SERVING until SetServing(true)
func New(logger *slog.Logger) *Server {
	if logger == nil {
		logger = slog.Default()
	}
	s := &Server{
		grpcServer: grpc.NewServer(),
		health:     health.NewServer(),
		logger:     logger,
	}
	healthpb.RegisterHealthServer(s.grpcServer, s.health)
	s.SetServing(false)
	return s
}

// Serve accepts connections on lis until Stop. It returns nil after Stop.
func (s *Server) Serve(lis net.Listener) error {
	s.logger.Info("Starting gRPC health server", "addr", lis.Addr().String())
	if err := s.grpcServer.Serve(lis); err != nil && !errors.Is(err, grpc.ErrServerStopped) {
		return err
	}
	return nil
}

// SetServing flips the overall and service status
func (s *Server) SetServing(serving bool) {
	status := healthpb.HealthCheckResponse_NOT_SERVING
	if serving {
		status = healthpb.HealthCheckResponse_SERVING
	}
	s.health.SetServingStatus("", status)
	s.health.SetServingStatus(ServiceName, status)
}

// Stop shuts the server down, waiting up to timeout for open watch streams
// before forcing them closed
func (s *Server) Stop(timeout time.Duration) {
	s.stopOnce.Do(func() {
		// Watch streams end once the health server shuts down
		s.health.Shutdown()

		done := make(chan struct{})
		go func() {
			s.grpcServer.GracefulStop()
			close(done)
		}()

		select {
		case <-done:
			s.logger.Info("gRPC health server stopped gracefully")
		case <-time.After(timeout):
			s.logger.Warn("Graceful stop timeout, forcing gRPC health server stop")
			s.grpcServer.Stop()
			<-done
		}
	})
}
