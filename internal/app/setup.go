// Package app wires the inventory service components together.
package app

import (
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/stocktrack/inventory/internal/config"
	"github.com/stocktrack/inventory/internal/service"
	"github.com/stocktrack/inventory/internal/store"
	grpcImpl "github.com/stocktrack/inventory/internal/transport/grpc"
	"github.com/stocktrack/inventory/internal/transport/rest"
	"github.com/stocktrack/inventory/pkg/messaging"
	"github.com/stocktrack/inventory/pkg/server"
	"google.golang.org/grpc"
)

// Pinger is satisfied by *pgxpool.Pool.
type Pinger interface {
	rest.Pinger
	grpcImpl.Pinger
}

type Dependencies struct {
	InventoryService service.InventoryService
	Logger           *slog.Logger
	// Pinger is nil when the service runs on the in-memory store.
	Pinger         Pinger
	MetricsHandler http.Handler
	MetricsPath    string
}

// SetupDependencies builds the service on top of productStore.
func SetupDependencies(productStore store.ProductStore, pinger Pinger, publisher messaging.Publisher, logger *slog.Logger) *Dependencies {
	return &Dependencies{
		InventoryService: service.NewService(productStore, publisher),
		Logger:           logger,
		Pinger:           pinger,
	}
}

// WithMetrics serves handler on path.
func (d *Dependencies) WithMetrics(path string, handler http.Handler) *Dependencies {
	d.MetricsPath = path
	d.MetricsHandler = handler
	return d
}

// SetupHttpHandler initializes the routes and middleware of the inventory service.
// Used by E2E tests to set up the HTTP server with the necessary routes and middleware.
func SetupHttpHandler(deps *Dependencies) http.Handler {
	mux := server.NewChiRouter(deps.Logger)
	wireRoutes(mux, deps)
	return server.Instrument(mux, "inventory-http")
}

func wireRoutes(mux *chi.Mux, deps *Dependencies) {
	var pinger rest.Pinger
	if deps.Pinger != nil {
		pinger = deps.Pinger
	}
	rest.NewHandler(deps.InventoryService, pinger, deps.Logger).RegisterRoutes(mux)
	if deps.MetricsHandler != nil && deps.MetricsPath != "" {
		mux.Method(http.MethodGet, deps.MetricsPath, deps.MetricsHandler)
	}
}

// SetupHttpServer creates and configures an HTTP server for the inventory service.
func SetupHttpServer(deps *Dependencies, cfg *config.Config) *http.Server {
	handler := SetupHttpHandler(deps)

	httpCfg := server.HTTPConfig{
		Port:           cfg.HTTPServer.Port,
		MaxHeaderBytes: cfg.HTTPServer.MaxHeaderBytes,
		ReadTimeout:    cfg.HTTPServer.Timeout.Read,
		WriteTimeout:   cfg.HTTPServer.Timeout.Write,
		IdleTimeout:    cfg.HTTPServer.Timeout.Idle,
		ReadHeader:     cfg.HTTPServer.Timeout.ReadHeader,
	}

	return server.NewHTTPServer(httpCfg, handler)
}

// SetupGrpcServer creates the gRPC server and the reporter driving its health service.
func SetupGrpcServer(deps *Dependencies, cfg *config.Config) (*grpc.Server, *grpcImpl.HealthReporter) {
	var pinger grpcImpl.Pinger
	if deps.Pinger != nil {
		pinger = deps.Pinger
	}
	reporter := grpcImpl.NewHealthReporter(pinger, cfg.Health, deps.Logger)
	return server.NewGRPCServer(deps.Logger, cfg.GRPC.ReflectionEnabled, reporter.Register), reporter
}
