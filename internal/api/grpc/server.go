package grpc

import (
	"context"
	"net"
	"time"

	"google.golang.org/grpc"
	"google.golang.org/grpc/health"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"
	"google.golang.org/grpc/reflection"

	"bloodlink-backend/internal/api/grpc/interceptor"
	"bloodlink-backend/internal/logger"
	"bloodlink-backend/internal/security"
)

// ServiceName is the health service name reported besides the overall "".
const ServiceName = "bloodlink.Backend"

type HealthFunc func(ctx context.Context) error

// Server is the side gRPC listener used by orchestrators for health probes.
type Server struct {
	srv    *grpc.Server
	health *health.Server
	check  HealthFunc
}

func NewServer(tm security.TokenManager, check HealthFunc) *Server {
	auth := interceptor.NewAuthInterceptor(tm)
	srv := grpc.NewServer(
		grpc.ChainUnaryInterceptor(interceptor.Recovery(), auth.Unary()),
		grpc.ChainStreamInterceptor(auth.Stream()),
	)

	hs := health.NewServer()
	healthpb.RegisterHealthServer(srv, hs)
	reflection.Register(srv)

	s := &Server{srv: srv, health: hs, check: check}
	s.setServing(true)
	return s
}

func (s *Server) setServing(ok bool) {
	st := healthpb.HealthCheckResponse_SERVING
	if !ok {
		st = healthpb.HealthCheckResponse_NOT_SERVING
	}
	s.health.SetServingStatus("", st)
	s.health.SetServingStatus(ServiceName, st)
}

// Probe runs the health check once and publishes the result.
func (s *Server) Probe(ctx context.Context) bool {
	if s.check == nil {
		return true
	}
	err := s.check(ctx)
	if err != nil {
		logger.Warn("Health check failed", "error", err)
	}
	s.setServing(err == nil)
	return err == nil
}

// Watch probes every interval until ctx is done.
func (s *Server) Watch(ctx context.Context, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			probeCtx, cancel := context.WithTimeout(ctx, interval)
			s.Probe(probeCtx)
			cancel()
		}
	}
}

func (s *Server) Serve(lis net.Listener) error {
	return s.srv.Serve(lis)
}

// GracefulStop marks the server as not serving and drains in-flight RPCs.
func (s *Server) GracefulStop() {
	s.health.Shutdown()
	s.srv.GracefulStop()
}
