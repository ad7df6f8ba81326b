package health

import (
	"context"
	"fmt"
	"net"

	"textreply/backend/pkg/logger"

	"google.golang.org/grpc"
	grpchealth "google.golang.org/grpc/health"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"
)

// NewGRPCHealthServer mirrors the checker's overall health into the standard
// grpc.health.v1 service so orchestrators can poll it.
func NewGRPCHealthServer(c *Checker) *grpchealth.Server {
	srv := grpchealth.NewServer()
	srv.SetServingStatus("", healthpb.HealthCheckResponse_NOT_SERVING)

	c.OnChange(func(healthy bool) {
		status := healthpb.HealthCheckResponse_NOT_SERVING
		if healthy {
			status = healthpb.HealthCheckResponse_SERVING
		}
		srv.SetServingStatus("", status)
	})
	return srv
}

// ServeGRPC serves the health service on addr until ctx is done.
func ServeGRPC(ctx context.Context, addr string, c *Checker, log *logger.Logger) error {
	lis, err := net.Listen("tcp", addr)
	if err != nil {
		return fmt.Errorf("listen grpc health on %s: %w", addr, err)
	}

	server := grpc.NewServer()
	hs := NewGRPCHealthServer(c)
	healthpb.RegisterHealthServer(server, hs)

	go func() {
		<-ctx.Done()
		hs.Shutdown()
		server.GracefulStop()
	}()

	log.Info("gRPC health server listening", "addr", addr)
	if err := server.Serve(lis); err != nil && ctx.Err() == nil {
		return err
	}
	return nil
}
