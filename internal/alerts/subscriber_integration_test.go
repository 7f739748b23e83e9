package alerts

import (
	"context"
	"log/slog"
	"os"
	"testing"
	"time"

	"github.com/google/uuid"
	natsgo "github.com/nats-io/nats.go"
	"github.com/nats-io/nats.go/jetstream"
	"github.com/stocktrack/inventory/pkg/config"
	"github.com/stocktrack/inventory/pkg/messaging/events"
	pnats "github.com/stocktrack/inventory/pkg/nats"
	"github.com/stretchr/testify/require"
	"github.com/stretchr/testify/suite"
	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/modules/nats"
	"golang.org/x/sync/errgroup"
)

const skipIntegrationTests = "INVENTORY_SVC_SKIP_INTEGRATION_TESTS"
const natsImg = "nats:2.11.6-alpine"

// SubscriberSuite runs the alert workers against a real NATS server.
type SubscriberSuite struct {
	suite.Suite
	ctx           context.Context
	logger        *slog.Logger
	natsContainer *nats.NATSContainer
	nc            *natsgo.Conn
	js            jetstream.JetStream
}

func (s *SubscriberSuite) SetupSuite() {
	s.ctx = context.Background()
	s.logger = slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelDebug}))

	var err error
	s.natsContainer, err = nats.Run(s.ctx, natsImg)
	require.NoError(s.T(), err, "Failed to run NATS container")

	natsURL, err := s.natsContainer.ConnectionString(s.ctx)
	require.NoError(s.T(), err)
	s.nc, err = pnats.NewClient(natsURL, 5*time.Second)
	require.NoError(s.T(), err, "Failed to connect to NATS")

	s.js, err = pnats.NewJetStreamContext(s.nc)
	require.NoError(s.T(), err, "Failed to get JetStream context")
}

func (s *SubscriberSuite) TearDownSuite() {
	if s.nc != nil {
		s.nc.Close()
	}
	if err := testcontainers.TerminateContainer(s.natsContainer); err != nil {
		s.logger.Error("Failed to terminate NATS container", "error", err)
	}
}

func TestSubscriberIntegration(t *testing.T) {
	if os.Getenv(skipIntegrationTests) == "1" {
		t.Skip("Skipping integration tests based on " + skipIntegrationTests + " env var")
	}
	suite.Run(t, new(SubscriberSuite))
}

type subscriberTestCase struct {
	name    string
	publish func(ctx context.Context, subject string) error
	// acked is the stream sequence every message up to which must be acknowledged
	acked uint64
}

func (s *SubscriberSuite) TestReceiveMessage() {
	validAlert := func(ctx context.Context, subject string) error {
		_, err := s.js.Publish(ctx, subject, mustPayload(s.T(), events.LowStockAlertEvent{
			ProductID:         1,
			Name:              "Keyboard",
			StockQuantity:     1,
			LowStockThreshold: 3,
			DetectedAt:        time.Now(),
		}))
		return err
	}
	testCases := []subscriberTestCase{
		{
			name:    "Successfully receive message",
			publish: validAlert,
			acked:   1,
		},
		{
			name: "Invalid payload does not stop the worker",
			publish: func(ctx context.Context, subject string) error {
				if _, err := s.js.Publish(ctx, subject, []byte("invalid payload")); err != nil {
					return err
				}
				return validAlert(ctx, subject)
			},
			acked: 2,
		},
	}
	for _, tc := range testCases {
		s.T().Run(tc.name, func(t *testing.T) {
			s.runTest(t, tc)
		})
	}
}

func (s *SubscriberSuite) TestPublisherRoundTrip() {
	// given
	stream := "INVENTORY_" + uuid.NewString()[:8]
	subject := "inventory." + uuid.NewString()[:8] + ".stock.low"
	require.NoError(s.T(), pnats.EnsureStream(s.ctx, s.js, stream, subject))
	// a second call updates the existing stream
	require.NoError(s.T(), pnats.EnsureStream(s.ctx, s.js, stream, subject))

	// when
	publisher := pnats.NewNatsPublisher(s.js)
	err := publisher.Publish(s.ctx, subjectEvent{LowStockAlertEvent: events.LowStockAlertEvent{ProductID: 7}, subject: subject})

	// then
	require.NoError(s.T(), err)
	str, err := s.js.Stream(s.ctx, stream)
	require.NoError(s.T(), err)
	info, err := str.Info(s.ctx)
	require.NoError(s.T(), err)
	require.Equal(s.T(), uint64(1), info.State.Msgs)
}

// subjectEvent redirects an alert to a test-specific subject.
type subjectEvent struct {
	events.LowStockAlertEvent
	subject string
}

func (e subjectEvent) Subject() string { return e.subject }

func mustPayload(t *testing.T, event events.LowStockAlertEvent) []byte {
	t.Helper()
	payload, err := event.Payload()
	require.NoError(t, err)
	return payload
}

func (s *SubscriberSuite) runTest(t *testing.T, tc subscriberTestCase) {
	stream := "STREAM_" + uuid.NewString()[:8]
	consumer := "CONSUMER_" + uuid.NewString()[:8]
	subject := "subject." + uuid.NewString()[:8]

	testCtx, testCancel := context.WithTimeout(s.ctx, 10*time.Second)
	g, gCtx := errgroup.WithContext(testCtx)
	t.Cleanup(func() {
		testCancel()
		err := g.Wait()
		require.ErrorIs(t, err, context.Canceled)
	})

	_, err := s.js.CreateStream(testCtx, jetstream.StreamConfig{
		Name:      stream,
		Subjects:  []string{subject},
		Retention: jetstream.WorkQueuePolicy,
	})
	require.NoError(t, err, "Failed to add stream to JetStream")

	cfg := config.SubscriberConfig{
		Enabled:  true,
		Subject:  subject,
		Consumer: consumer,
		Batch:    10,
		Timeout:  200 * time.Millisecond,
		Interval: 200 * time.Millisecond,
		Workers:  2,
	}
	g.Go(func() error {
		return Start(gCtx, s.js, stream, cfg, s.logger)
	})

	// when
	require.NoError(t, tc.publish(testCtx, subject), "Failed to publish test message")

	// then
	require.Eventually(t, func() bool {
		c, err := s.js.Consumer(testCtx, stream, consumer)
		if err != nil {
			return false
		}
		info, err := c.Info(testCtx)
		if err != nil {
			return false
		}
		return info.NumPending == 0 && info.NumAckPending == 0 && info.AckFloor.Stream == tc.acked
	}, 8*time.Second, 100*time.Millisecond, "messages were not processed in time")
}
