// Package main runs the inventory service: the REST API, the gRPC health endpoint and
// the optional low-stock alert workers.
package main

import (
	"context"
	"errors"
	"fmt"
	"log"
	"log/slog"
	"net"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	_ "net/http/pprof"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/stocktrack/inventory/internal/alerts"
	"github.com/stocktrack/inventory/internal/app"
	"github.com/stocktrack/inventory/internal/config"
	"github.com/stocktrack/inventory/internal/store"
	"github.com/stocktrack/inventory/pkg/bootstrap"
	pkgconfig "github.com/stocktrack/inventory/pkg/config"
	"github.com/stocktrack/inventory/pkg/config/configloader"
	"github.com/stocktrack/inventory/pkg/messaging"
	pnats "github.com/stocktrack/inventory/pkg/nats"
	"github.com/stocktrack/inventory/pkg/telemetry"
	"golang.org/x/sync/errgroup"
	"google.golang.org/grpc"
)

const serviceName = "inventory"

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := run(ctx); err != nil {
		log.Printf("application run failed: %v", err)
		os.Exit(1)
	}
	log.Println("application stopped gracefully")
}

// run loads the configuration, connects the store and the broker, and runs every server until ctx is done.
func run(ctx context.Context) error {
	cfg, cfgErr := configloader.Load[*config.Config](serviceName)
	if cfgErr != nil {
		return fmt.Errorf("failed to load configuration: %w", cfgErr)
	}
	log.Printf("Configuration loaded: %v", cfg)

	logger := bootstrap.NewLogger(cfg.Log.Level)
	slog.SetDefault(logger)

	if cfg.Telemetry.Traces.Enabled {
		tp, err := telemetry.NewTracerProvider(ctx, serviceName, cfg.Telemetry)
		if err != nil {
			return fmt.Errorf("failed to create tracer provider: %w", err)
		}
		defer shutdownWithTimeout(logger, "tracer provider", cfg.Shutdown.Timeout, tp.Shutdown)
	}
	mp, metricsHandler, err := telemetry.NewMeterProvider(serviceName)
	if err != nil {
		return fmt.Errorf("failed to create meter provider: %w", err)
	}
	defer shutdownWithTimeout(logger, "meter provider", cfg.Shutdown.Timeout, mp.Shutdown)

	productStore, pinger, closeStore, err := setupStore(ctx, cfg, logger)
	if err != nil {
		return err
	}
	defer closeStore()

	g, gCtx := errgroup.WithContext(ctx)

	publisher := messaging.Publisher(messaging.NoopPublisher{})
	if cfg.Nats.Enabled {
		nc, err := pnats.NewClient(cfg.Nats.Url, cfg.Nats.Timeout)
		if err != nil {
			return err
		}
		defer nc.Close()
		js, err := pnats.NewJetStreamContext(nc)
		if err != nil {
			return err
		}
		if err := pnats.EnsureStream(ctx, js, cfg.Nats.Stream, messaging.InventorySubjects); err != nil {
			return err
		}
		publisher = messaging.NewBreakerPublisher(pnats.NewNatsPublisher(js), cfg.Breaker)
		logger.Info("Connected to NATS", slog.String("stream", cfg.Nats.Stream))

		if cfg.Alerts.Enabled {
			g.Go(func() error {
				logger.Info("Low-stock alert workers started", slog.Int("workers", cfg.Alerts.Workers))
				if err := alerts.Start(gCtx, js, cfg.Nats.Stream, cfg.Alerts, logger); err != nil && !errors.Is(err, context.Canceled) {
					return fmt.Errorf("alert workers failed: %w", err)
				}
				return nil
			})
		}
	}

	deps := app.SetupDependencies(productStore, pinger, publisher, logger).
		WithMetrics(cfg.Telemetry.Metrics.Path, metricsHandler)
	httpServer := app.SetupHttpServer(deps, cfg)
	grpcServer, healthReporter := app.SetupGrpcServer(deps, cfg)

	// Start the HTTP server
	g.Go(func() error {
		logger.Info("HTTP server listening", slog.String("addr", httpServer.Addr))
		if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("http server failed: %w", err)
		}
		return nil
	})
	g.Go(func() error {
		<-gCtx.Done()
		logger.Info("Shutting down HTTP server...")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Shutdown.Timeout)
		defer cancel()
		return httpServer.Shutdown(shutdownCtx)
	})

	// Start the gRPC server and its health reporter
	g.Go(func() error {
		grpcAddr := ":" + cfg.GRPC.Port
		lis, err := net.Listen("tcp", grpcAddr)
		if err != nil {
			return fmt.Errorf("failed to listen on gRPC port: %w", err)
		}
		logger.Info("gRPC server listening", slog.String("addr", grpcAddr))
		return grpcServer.Serve(lis)
	})
	g.Go(func() error {
		return healthReporter.Run(gCtx)
	})
	g.Go(func() error {
		<-gCtx.Done()
		logger.Info("Shutting down gRPC server...")
		return stopGrpcServer(grpcServer, cfg.Shutdown.Timeout, logger)
	})

	if cfg.PProf.Enabled {
		pprofServer := &http.Server{
			Addr:              cfg.PProf.Addr,
			ReadHeaderTimeout: cfg.HTTPServer.Timeout.ReadHeader,
		}
		g.Go(func() error {
			logger.Info("Pprof server listening", slog.String("addr", pprofServer.Addr))
			if err := pprofServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				return fmt.Errorf("pprof server failed: %w", err)
			}
			return nil
		})
		g.Go(func() error {
			<-gCtx.Done()
			logger.Info("Shutting down pprof server...")
			shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Shutdown.Timeout)
			defer cancel()
			return pprofServer.Shutdown(shutdownCtx)
		})
	}

	if err := g.Wait(); err != nil && !errors.Is(err, context.Canceled) {
		return fmt.Errorf("errgroup encountered an error: %w", err)
	}
	return nil
}

// setupStore opens the configured product store. The returned pinger is nil for the in-memory store.
func setupStore(ctx context.Context, cfg *config.Config, logger *slog.Logger) (store.ProductStore, app.Pinger, func(), error) {
	if cfg.Database.Driver == pkgconfig.DriverMemory {
		logger.Warn("Using in-memory product store, data is lost on restart")
		return store.NewInMemoryStore(), nil, func() {}, nil
	}

	if cfg.Database.Migrate {
		if err := store.Migrate(cfg.Database.URL); err != nil {
			return nil, nil, nil, err
		}
		logger.Info("Database migrations applied")
	}
	dbPool, err := bootstrap.NewDbPool(ctx, cfg.Database.URL, cfg.Database.Timeout)
	if err != nil {
		return nil, nil, nil, fmt.Errorf("failed to create database connection pool: %w", err)
	}
	logger.Info("Successfully connected to the database!")
	return store.NewPgStore(dbPool), dbPool, dbPool.Close, nil
}

// stopGrpcServer stops the server gracefully, forcing it after timeout.
func stopGrpcServer(grpcServer *grpc.Server, timeout time.Duration, logger *slog.Logger) error {
	stopped := make(chan struct{})
	go func() {
		grpcServer.GracefulStop()
		close(stopped)
	}()
	select {
	case <-stopped:
		logger.Info("gRPC server stopped gracefully.")
		return nil
	case <-time.After(timeout):
		logger.Warn("gRPC server graceful stop timed out. Forcing stop.")
		grpcServer.Stop()
		return fmt.Errorf("grpc server graceful stop timed out")
	}
}

func shutdownWithTimeout(logger *slog.Logger, name string, timeout time.Duration, shutdown func(context.Context) error) {
	ctx, cancel := context.WithTimeout(context.Background(), timeout)
	defer cancel()
	if err := shutdown(ctx); err != nil {
		logger.Error("Failed to shut down "+name, "error", err)
	}
}

var _ app.Pinger = (*pgxpool.Pool)(nil)
