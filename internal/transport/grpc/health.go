// Package grpc exposes the inventory service health over gRPC.
package grpc

import (
	"context"
	"log/slog"
	"time"

	"github.com/stocktrack/inventory/pkg/config"
	"google.golang.org/grpc"
	"google.golang.org/grpc/health"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"
)

// ServiceName is the name reported to grpc.health.v1 clients.
const ServiceName = "inventory"

// Pinger checks a dependency the service cannot work without.
type Pinger interface {
	Ping(ctx context.Context) error
}

// HealthReporter keeps the gRPC health status in line with the database.
type HealthReporter struct {
	server   *health.Server
	pinger   Pinger
	interval time.Duration
	timeout  time.Duration
	logger   *slog.Logger
}

// NewHealthReporter creates a reporter. A nil pinger reports SERVING until shutdown.
func NewHealthReporter(pinger Pinger, cfg config.HealthConfig, logger *slog.Logger) *HealthReporter {
	srv := health.NewServer()
	srv.SetServingStatus(ServiceName, healthpb.HealthCheckResponse_NOT_SERVING)
	return &HealthReporter{
		server:   srv,
		pinger:   pinger,
		interval: cfg.Interval,
		timeout:  cfg.Timeout,
		logger:   logger.With("component", "grpc-health"),
	}
}

// Register adds the health service to a gRPC server.
func (h *HealthReporter) Register(s *grpc.Server) {
	healthpb.RegisterHealthServer(s, h.server)
}

// Run probes the pinger on every interval until ctx is done, then marks all services NOT_SERVING.
func (h *HealthReporter) Run(ctx context.Context) error {
	ticker := time.NewTicker(h.interval)
	defer ticker.Stop()

	h.check(ctx)
	for {
		select {
		case <-ctx.Done():
			h.server.Shutdown()
			return nil
		case <-ticker.C:
			h.check(ctx)
		}
	}
}

func (h *HealthReporter) check(ctx context.Context) {
	status := healthpb.HealthCheckResponse_SERVING
	if h.pinger != nil {
		pingCtx, cancel := context.WithTimeout(ctx, h.timeout)
		defer cancel()
		if err := h.pinger.Ping(pingCtx); err != nil {
			h.logger.WarnContext(ctx, "Database ping failed", "error", err)
			status = healthpb.HealthCheckResponse_NOT_SERVING
		}
	}
	h.server.SetServingStatus(ServiceName, status)
	// the empty name is the overall server health
	h.server.SetServingStatus("", status)
}
