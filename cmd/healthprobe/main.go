// Package main checks the inventory gRPC health service and exits non-zero unless it is SERVING.
// Intended as a container health check.
package main

import (
	"context"
	"fmt"
	"log"
	"os"

	"github.com/stocktrack/inventory/internal/config"
	grpcImpl "github.com/stocktrack/inventory/internal/transport/grpc"
	"github.com/stocktrack/inventory/pkg/client/grpc/interceptors"
	"github.com/stocktrack/inventory/pkg/config/configloader"
	"google.golang.org/grpc"
	"google.golang.org/grpc/credentials/insecure"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"
)

const serviceName = "inventory"

func main() {
	if err := run(context.Background()); err != nil {
		log.Printf("health probe failed: %v", err)
		os.Exit(1)
	}
}

func run(ctx context.Context) error {
	cfg, err := configloader.Load[*config.ProbeConfig](serviceName)
	if err != nil {
		return fmt.Errorf("failed to load configuration: %w", err)
	}

	conn, err := grpc.NewClient(cfg.Target.Addr,
		grpc.WithTransportCredentials(insecure.NewCredentials()),
		grpc.WithChainUnaryInterceptor(
			interceptors.NewRetryInterceptor(cfg.Target.Retry),
			interceptors.UnaryClientTimeoutInterceptor(cfg.Target.Timeout),
		),
	)
	if err != nil {
		return fmt.Errorf("failed to create gRPC client: %w", err)
	}
	defer func() { _ = conn.Close() }()

	resp, err := healthpb.NewHealthClient(conn).Check(ctx, &healthpb.HealthCheckRequest{Service: grpcImpl.ServiceName})
	if err != nil {
		return fmt.Errorf("health check failed: %w", err)
	}
	if resp.GetStatus() != healthpb.HealthCheckResponse_SERVING {
		return fmt.Errorf("service %s is %s", grpcImpl.ServiceName, resp.GetStatus())
	}
	log.Printf("service %s is %s", grpcImpl.ServiceName, resp.GetStatus())
	return nil
}
