// Package grpcserver exposes the health checker over the standard gRPC
// health protocol.
package grpcserver

import (
	"context"
	"fmt"
	"net"
	"time"

	"oficiogen/backend/pkg/health"
	"oficiogen/backend/pkg/logger"

	"google.golang.org/grpc"
	grpchealth "google.golang.org/grpc/health"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"
)

// Server serves grpc.health.v1 backed by a health.Checker
type Server struct {
	grpc    *grpc.Server
	health  *grpchealth.Server
	checker *health.Checker
	period  time.Duration
	log     *logger.Logger
}

// New creates the gRPC server. Statuses are refreshed every period.
func New(checker *health.Checker, period time.Duration, log *logger.Logger) *Server {
	if period <= 0 {
		period = 15 * time.Second
	}

	s := &Server{
		grpc:    grpc.NewServer(),
		health:  grpchealth.NewServer(),
		checker: checker,
		period:  period,
		log:     log,
	}
	healthpb.RegisterHealthServer(s.grpc, s.health)
	s.Sync()
	return s
}

// Sync copies the checker state into the gRPC health service. The empty
// service name carries the overall status, each component its own.
func (s *Server) Sync() {
	overall := healthpb.HealthCheckResponse_SERVING
	if !s.checker.IsSystemHealthy() {
		overall = healthpb.HealthCheckResponse_NOT_SERVING
	}
	s.health.SetServingStatus("", overall)

	for name, component := range s.checker.GetStatus() {
		status := healthpb.HealthCheckResponse_SERVING
		if component.Status == health.StatusDown {
			status = healthpb.HealthCheckResponse_NOT_SERVING
		}
		s.health.SetServingStatus(name, status)
	}
}

// Run keeps statuses in sync until ctx is done
func (s *Server) Run(ctx context.Context) {
	ticker := time.NewTicker(s.period)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			s.Sync()
		}
	}
}

// Serve listens on port and blocks until the server stops
func (s *Server) Serve(port string) error {
	lis, err := net.Listen("tcp", ":"+port)
	if err != nil {
		return fmt.Errorf("failed to listen on %s: %w", port, err)
	}

	s.log.Info("gRPC server listening", "port", port)
	return s.ServeListener(lis)
}

// ServeListener serves on an existing listener
func (s *Server) ServeListener(lis net.Listener) error {
	return s.grpc.Serve(lis)
}

// Stop marks every service as not serving and stops gracefully
func (s *Server) Stop() {
	s.health.Shutdown()
	s.grpc.GracefulStop()
}
