// Package alerts consumes low-stock alerts from JetStream.
package alerts

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/nats-io/nats.go"
	"github.com/nats-io/nats.go/jetstream"
	"github.com/stocktrack/inventory/pkg/config"
	"github.com/stocktrack/inventory/pkg/messaging/events"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/propagation"
	"go.opentelemetry.io/otel/trace"
	"golang.org/x/sync/errgroup"
)

const tracerName = "inventory-alerts"

// ackableMsg is the part of jetstream.Msg the handler needs.
type ackableMsg interface {
	Data() []byte
	Subject() string
	Ack() error
	Term() error
}

// Start creates a durable pull consumer on stream and runs cfg.Workers workers until ctx is done.
func Start(ctx context.Context, js jetstream.JetStream, stream string, cfg config.SubscriberConfig, logger *slog.Logger) error {
	consumer, err := js.CreateOrUpdateConsumer(ctx, stream, jetstream.ConsumerConfig{
		FilterSubject: cfg.Subject,
		Durable:       cfg.Consumer,
		AckPolicy:     jetstream.AckExplicitPolicy,
	})
	if err != nil {
		return fmt.Errorf("failed to create consumer %s on stream %s: %w", cfg.Consumer, stream, err)
	}
	logger = logger.With("component", "alerts", "consumer", cfg.Consumer)

	g, gCtx := errgroup.WithContext(ctx)
	for range cfg.Workers {
		g.Go(func() error {
			return runWorker(gCtx, consumer, cfg, logger)
		})
	}
	return g.Wait()
}

// runWorker fetches batches from the consumer until ctx is done.
func runWorker(ctx context.Context, consumer jetstream.Consumer, cfg config.SubscriberConfig, logger *slog.Logger) error {
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		default:
		}

		batch, err := consumer.Fetch(cfg.Batch, jetstream.FetchMaxWait(cfg.Timeout))
		if err != nil {
			if errors.Is(err, nats.ErrTimeout) {
				continue
			}
			logger.ErrorContext(ctx, "Failed to fetch messages", "error", err)
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-time.After(cfg.Interval):
			}
			continue
		}
		for msg := range batch.Messages() {
			handleMessage(ctx, msg, logger)
		}
		if err := batch.Error(); err != nil && !errors.Is(err, nats.ErrTimeout) {
			logger.WarnContext(ctx, "Batch finished with error", "error", err)
		}
	}
}

// handleMessage logs a single alert. Malformed payloads are terminated so they are not redelivered.
func handleMessage(ctx context.Context, msg ackableMsg, logger *slog.Logger) {
	if msg == nil {
		logger.ErrorContext(ctx, "Received nil message")
		return
	}
	var event events.LowStockAlertEvent
	if err := json.Unmarshal(msg.Data(), &event); err != nil {
		logger.ErrorContext(ctx, "Failed to unmarshal message", "error", err, "subject", msg.Subject())
		if err := msg.Term(); err != nil {
			logger.ErrorContext(ctx, "Failed to terminate message", "error", err)
		}
		return
	}

	msgCtx := otel.GetTextMapPropagator().Extract(ctx, propagation.MapCarrier(event.Carrier))
	msgCtx, span := otel.Tracer(tracerName).Start(msgCtx, "alerts.low_stock",
		trace.WithSpanKind(trace.SpanKindConsumer),
		trace.WithAttributes(
			attribute.String("messaging.destination.name", msg.Subject()),
			attribute.Int64("inventory.product_id", event.ProductID),
		),
	)
	defer span.End()

	logger.WarnContext(msgCtx, "Low stock alert",
		slog.String("subject", msg.Subject()),
		slog.Int64("product_id", event.ProductID),
		slog.String("name", event.Name),
		slog.Int64("stock_quantity", event.StockQuantity),
		slog.Int64("low_stock_threshold", event.LowStockThreshold),
		slog.String("detected_at", event.DetectedAt.Format(time.RFC3339)))

	if err := msg.Ack(); err != nil {
		logger.ErrorContext(msgCtx, "Failed to ack message", "error", err)
	}
}
