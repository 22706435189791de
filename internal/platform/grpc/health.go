// Package grpc serves and probes the gRPC health protocol for Dendrite
// processes.
package grpc

import (
	"context"
	"net"
	"time"

	"go.opentelemetry.io/contrib/instrumentation/google.golang.org/grpc/otelgrpc"
	gogrpc "google.golang.org/grpc"
	"google.golang.org/grpc/health"
	grpc_health_v1 "google.golang.org/grpc/health/grpc_health_v1"
)

// HealthServer is a gRPC server exposing only grpc.health.v1.
type HealthServer struct {
	server   *gogrpc.Server
	health   *health.Server
	serveErr chan error
}

// ServeHealth starts serving on listener in the background. The overall
// status and each named service report SERVING.
func ServeHealth(listener net.Listener, services ...string) *HealthServer {
	s := &HealthServer{
		server:   gogrpc.NewServer(gogrpc.StatsHandler(otelgrpc.NewServerHandler())),
		health:   health.NewServer(),
		serveErr: make(chan error, 1),
	}
	grpc_health_v1.RegisterHealthServer(s.server, s.health)
	s.health.SetServingStatus("", grpc_health_v1.HealthCheckResponse_SERVING)
	for _, service := range services {
		s.health.SetServingStatus(service, grpc_health_v1.HealthCheckResponse_SERVING)
	}
	go func() {
		s.serveErr <- s.server.Serve(listener)
	}()
	return s
}

// SetServing flips one service between SERVING and NOT_SERVING.
func (s *HealthServer) SetServing(service string, serving bool) {
	status := grpc_health_v1.HealthCheckResponse_NOT_SERVING
	if serving {
		status = grpc_health_v1.HealthCheckResponse_SERVING
	}
	s.health.SetServingStatus(service, status)
}

// Stop reports NOT_SERVING, drains in-flight checks for up to timeout, and
// then forces the server down.
func (s *HealthServer) Stop(timeout time.Duration) {
	if s == nil {
		return
	}
	s.health.Shutdown()
	stopped := make(chan struct{})
	go func() {
		s.server.GracefulStop()
		close(stopped)
	}()
	select {
	case <-stopped:
	case <-time.After(timeout):
		s.server.Stop()
	}
	<-s.serveErr
}

// checkHealth asks conn for service's status once.
func checkHealth(ctx context.Context, conn *gogrpc.ClientConn, service string) (grpc_health_v1.HealthCheckResponse_ServingStatus, error) {
	response, err := grpc_health_v1.NewHealthClient(conn).Check(ctx, &grpc_health_v1.HealthCheckRequest{Service: service})
	if err != nil {
		return grpc_health_v1.HealthCheckResponse_UNKNOWN, err
	}
	return response.GetStatus(), nil
}
