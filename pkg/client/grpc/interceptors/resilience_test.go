package interceptors

import (
	"context"
	"net"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stocktrack/inventory/pkg/config"
	"github.com/stretchr/testify/require"
	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/credentials/insecure"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"
	"google.golang.org/grpc/status"
	"google.golang.org/grpc/test/bufconn"
)

// mockHealthServer answers Check with a queue of pre-configured codes, then SERVING.
// Not thread-safe, should be used in sequential tests only.
type mockHealthServer struct {
	healthpb.UnimplementedHealthServer

	callCount atomic.Int32
	responses []codes.Code
	delay     time.Duration
}

func (s *mockHealthServer) Check(ctx context.Context, _ *healthpb.HealthCheckRequest) (*healthpb.HealthCheckResponse, error) {
	s.callCount.Add(1)

	if s.delay > 0 {
		select {
		case <-time.After(s.delay):
		case <-ctx.Done():
			return nil, status.FromContextError(ctx.Err()).Err()
		}
	}
	if len(s.responses) > 0 {
		code := s.responses[0]
		s.responses = s.responses[1:]
		if code != codes.OK {
			return nil, status.Error(code, "mock error")
		}
	}
	return &healthpb.HealthCheckResponse{Status: healthpb.HealthCheckResponse_SERVING}, nil
}

// setupTestEnvironment creates a test gRPC server, a client with interceptors, and a cleanup function.
func setupTestEnvironment(t *testing.T, service *mockHealthServer, callTimeout time.Duration) (client healthpb.HealthClient, cleanup func()) {
	t.Helper()

	lis := bufconn.Listen(1024 * 1024)
	grpcServer := grpc.NewServer()
	healthpb.RegisterHealthServer(grpcServer, service)

	go func() {
		_ = grpcServer.Serve(lis)
	}()

	retryCfg := config.RetryConfig{
		MaxAttempts:    3,
		InitialBackoff: 10 * time.Millisecond,
	}

	conn, err := grpc.NewClient("passthrough://bufnet",
		grpc.WithContextDialer(func(ctx context.Context, s string) (net.Conn, error) {
			return lis.DialContext(ctx)
		}),
		grpc.WithTransportCredentials(insecure.NewCredentials()),
		grpc.WithChainUnaryInterceptor(
			NewRetryInterceptor(retryCfg),
			UnaryClientTimeoutInterceptor(callTimeout),
		),
	)
	require.NoError(t, err)

	cleanup = func() {
		_ = conn.Close()
		grpcServer.Stop()
		_ = lis.Close()
	}
	return healthpb.NewHealthClient(conn), cleanup
}

func TestInterceptors_HappyPath(t *testing.T) {
	// given
	service := &mockHealthServer{}
	client, cleanup := setupTestEnvironment(t, service, time.Second)
	defer cleanup()

	// when
	resp, err := client.Check(context.Background(), &healthpb.HealthCheckRequest{})

	// then
	require.NoError(t, err)
	require.Equal(t, healthpb.HealthCheckResponse_SERVING, resp.GetStatus())
	require.Equal(t, int32(1), service.callCount.Load(), "Server should be called exactly once")
}

func TestInterceptors_RetryOnTransientError(t *testing.T) {
	// given
	service := &mockHealthServer{responses: []codes.Code{codes.Unavailable, codes.Unavailable, codes.OK}}
	client, cleanup := setupTestEnvironment(t, service, time.Second)
	defer cleanup()

	// when
	_, err := client.Check(context.Background(), &healthpb.HealthCheckRequest{})

	// then
	require.NoError(t, err)
	require.Equal(t, int32(3), service.callCount.Load(), "Server should be called exactly 3 times due to retries")
}

func TestInterceptors_GivesUpAfterMaxAttempts(t *testing.T) {
	// given
	service := &mockHealthServer{responses: []codes.Code{codes.Unavailable, codes.Unavailable, codes.Unavailable, codes.Unavailable}}
	client, cleanup := setupTestEnvironment(t, service, time.Second)
	defer cleanup()

	// when
	_, err := client.Check(context.Background(), &healthpb.HealthCheckRequest{})

	// then
	require.Error(t, err)
	require.Equal(t, codes.Unavailable, status.Code(err))
	require.Equal(t, int32(3), service.callCount.Load())
}

func TestInterceptors_NoRetryOnDataError(t *testing.T) {
	// given
	service := &mockHealthServer{responses: []codes.Code{codes.NotFound}}
	client, cleanup := setupTestEnvironment(t, service, time.Second)
	defer cleanup()

	// when
	_, err := client.Check(context.Background(), &healthpb.HealthCheckRequest{Service: "unknown"})

	// then
	require.Error(t, err)
	require.Equal(t, codes.NotFound, status.Code(err))
	require.Equal(t, int32(1), service.callCount.Load(), "Server should be called exactly once, no retries on data error")
}

func TestInterceptors_Timeout(t *testing.T) {
	// given
	service := &mockHealthServer{delay: time.Second}
	client, cleanup := setupTestEnvironment(t, service, 50*time.Millisecond)
	defer cleanup()

	// when
	start := time.Now()
	_, err := client.Check(context.Background(), &healthpb.HealthCheckRequest{})

	// then
	require.Error(t, err)
	require.Equal(t, codes.DeadlineExceeded, status.Code(err))
	require.Less(t, time.Since(start), 500*time.Millisecond)
}
