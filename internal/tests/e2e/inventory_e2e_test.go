// Package e2e runs the inventory HTTP API end to end, once on the in-memory store and once on
// PostgreSQL started with testcontainers-go.
package e2e

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"os"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/stocktrack/inventory/internal/app"
	"github.com/stocktrack/inventory/internal/service"
	"github.com/stocktrack/inventory/internal/store"
	"github.com/stocktrack/inventory/pkg/messaging"
	"github.com/stocktrack/inventory/pkg/telemetry"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/stretchr/testify/suite"
	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/modules/postgres"
	"github.com/testcontainers/testcontainers-go/wait"
)

// skipE2ETests is the environment variable that can be set to skip the PostgreSQL E2E tests.
const skipE2ETests = "INVENTORY_SVC_SKIP_E2E_TESTS"

const productURL = "/api/product"

// apiClient talks to a running inventory HTTP server.
type apiClient struct {
	t       *testing.T
	baseURL string
	http    *http.Client
}

func (c *apiClient) do(method, path string, payload any) ([]byte, int) {
	c.t.Helper()
	var body io.Reader
	if payload != nil {
		payloadBytes, err := json.Marshal(payload)
		require.NoError(c.t, err)
		body = bytes.NewBuffer(payloadBytes)
	}
	req, err := http.NewRequestWithContext(context.Background(), method, c.baseURL+path, body)
	require.NoError(c.t, err, "Failed to create HTTP request")
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.http.Do(req)
	require.NoError(c.t, err, "HTTP request failed")
	defer func() { _ = resp.Body.Close() }()

	bodyBytes, err := io.ReadAll(resp.Body)
	require.NoError(c.t, err, "Failed to read response body")
	return bodyBytes, resp.StatusCode
}

func (c *apiClient) product(method, path string, payload any) (service.ProductDto, int, string) {
	c.t.Helper()
	body, code := c.do(method, path, payload)
	var product service.ProductDto
	if code == http.StatusOK {
		require.NoError(c.t, json.Unmarshal(body, &product), "Failed to decode product response")
	}
	return product, code, string(body)
}

func (c *apiClient) list(path string) []service.ProductDto {
	c.t.Helper()
	body, code := c.do(http.MethodGet, path, nil)
	require.Equal(c.t, http.StatusOK, code, string(body))
	var products []service.ProductDto
	require.NoError(c.t, json.Unmarshal(body, &products), "Failed to decode product list")
	return products
}

func (c *apiClient) create(name string, stock, threshold int64) service.ProductDto {
	c.t.Helper()
	p, code, body := c.product(http.MethodPost, productURL, map[string]any{
		"name": name, "description": name + " description", "stockQuantity": stock, "lowStockThreshold": threshold,
	})
	require.Equal(c.t, http.StatusOK, code, body)
	return p
}

// startServer serves the full application handler on top of productStore.
func startServer(t *testing.T, productStore store.ProductStore, pinger app.Pinger) *apiClient {
	t.Helper()
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	mp, metricsHandler, err := telemetry.NewMeterProvider("inventory-e2e")
	require.NoError(t, err)

	deps := app.SetupDependencies(productStore, pinger, messaging.NoopPublisher{}, logger).
		WithMetrics("/metrics", metricsHandler)
	server := httptest.NewServer(app.SetupHttpHandler(deps))
	t.Cleanup(func() {
		server.Close()
		_ = mp.Shutdown(context.Background())
	})
	return &apiClient{t: t, baseURL: server.URL, http: &http.Client{Timeout: 10 * time.Second}}
}

// runInventoryScenarios exercises every endpoint. Each subtest starts from an empty store.
func runInventoryScenarios(t *testing.T, newClient func(t *testing.T) *apiClient) {
	t.Run("create and read back", func(t *testing.T) {
		c := newClient(t)

		created := c.create("Keyboard", 10, 2)
		assert.NotZero(t, created.ID)
		assert.Equal(t, "Keyboard", created.Name)
		assert.Equal(t, "Keyboard description", created.Description)

		found, code, _ := c.product(http.MethodGet, fmt.Sprintf("%s/%d", productURL, created.ID), nil)
		require.Equal(t, http.StatusOK, code)
		assert.Equal(t, created, found)

		all := c.list(productURL)
		assert.Equal(t, []service.ProductDto{created}, all)
	})

	t.Run("create rejects negative stock", func(t *testing.T) {
		c := newClient(t)

		_, code, body := c.product(http.MethodPost, productURL, map[string]any{"name": "Broken", "stockQuantity": -1})

		assert.Equal(t, http.StatusBadRequest, code)
		assert.Contains(t, body, "invalid argument")
		assert.Empty(t, c.list(productURL))
	})

	t.Run("unknown and malformed ids", func(t *testing.T) {
		c := newClient(t)

		_, code, body := c.product(http.MethodGet, productURL+"/999", nil)
		assert.Equal(t, http.StatusNotFound, code)
		assert.Contains(t, body, "product not found")

		_, code, body = c.product(http.MethodGet, productURL+"/abc", nil)
		assert.Equal(t, http.StatusBadRequest, code)
		assert.Equal(t, "Invalid ID: abc", body)
	})

	t.Run("partial update", func(t *testing.T) {
		c := newClient(t)
		created := c.create("Monitor", 5, 1)
		path := fmt.Sprintf("%s/%d", productURL, created.ID)

		updated, code, _ := c.product(http.MethodPut, path, map[string]any{"name": "Monitor 27", "stockQuantity": 0, "lowStockThreshold": 3})

		require.Equal(t, http.StatusOK, code)
		assert.Equal(t, "Monitor 27", updated.Name)
		assert.Equal(t, "Monitor description", updated.Description)
		assert.Equal(t, int64(5), updated.StockQuantity, "zero stock in a patch is ignored")
		assert.Equal(t, int64(3), updated.LowStockThreshold)

		_, code, _ = c.product(http.MethodPut, productURL+"/999", map[string]any{"name": "x"})
		assert.Equal(t, http.StatusNotFound, code)
	})

	t.Run("delete", func(t *testing.T) {
		c := newClient(t)
		created := c.create("Cable", 1, 0)
		path := fmt.Sprintf("%s/%d", productURL, created.ID)

		_, code := c.do(http.MethodDelete, path, nil)
		assert.Equal(t, http.StatusNoContent, code)

		_, code = c.do(http.MethodDelete, path, nil)
		assert.Equal(t, http.StatusNotFound, code)

		_, code, _ = c.product(http.MethodGet, path, nil)
		assert.Equal(t, http.StatusNotFound, code)
	})

	t.Run("purchase and sell", func(t *testing.T) {
		c := newClient(t)
		created := c.create("Headset", 10, 3)
		path := fmt.Sprintf("%s/%d", productURL, created.ID)

		p, code, _ := c.product(http.MethodPost, path+"/purchase?stockAmount=5", nil)
		require.Equal(t, http.StatusOK, code)
		assert.Equal(t, int64(15), p.StockQuantity)

		p, code, _ = c.product(http.MethodPost, path+"/sell?stockAmount=13", nil)
		require.Equal(t, http.StatusOK, code)
		assert.Equal(t, int64(2), p.StockQuantity)

		_, code, body := c.product(http.MethodPost, path+"/sell?stockAmount=3", nil)
		assert.Equal(t, http.StatusBadRequest, code)
		assert.Contains(t, body, "insufficient stock")

		_, code, _ = c.product(http.MethodPost, path+"/purchase?stockAmount=-1", nil)
		assert.Equal(t, http.StatusBadRequest, code)

		_, code, body = c.product(http.MethodPost, path+"/purchase?stockAmount=9223372036854775807", nil)
		assert.Equal(t, http.StatusBadRequest, code)
		assert.Contains(t, body, "exceeds maximum stock quantity")

		_, code, body = c.product(http.MethodPost, path+"/sell", nil)
		assert.Equal(t, http.StatusBadRequest, code)
		assert.Equal(t, "stockAmount url parameter is required", body)

		_, code, _ = c.product(http.MethodPost, productURL+"/999/sell?stockAmount=1", nil)
		assert.Equal(t, http.StatusNotFound, code)

		found, _, _ := c.product(http.MethodGet, path, nil)
		assert.Equal(t, int64(2), found.StockQuantity, "failed operations leave stock untouched")
	})

	t.Run("low stock listing", func(t *testing.T) {
		c := newClient(t)
		low := c.create("Low", 1, 5)
		c.create("AtThreshold", 5, 5)
		empty := c.create("Empty", 0, 1)
		c.create("Plenty", 100, 5)

		list := c.list(productURL + "/low-stocks")

		require.Len(t, list, 2)
		assert.Equal(t, low.ID, list[0].ID)
		assert.Equal(t, empty.ID, list[1].ID)
	})

	t.Run("concurrent sells never oversell", func(t *testing.T) {
		c := newClient(t)
		created := c.create("Limited", 10, 0)
		path := fmt.Sprintf("%s/%d/sell?stockAmount=1", productURL, created.ID)

		var (
			wg sync.WaitGroup
			mu sync.Mutex
			ok int
		)
		for range 25 {
			wg.Add(1)
			go func() {
				defer wg.Done()
				_, code := c.do(http.MethodPost, path, nil)
				if code == http.StatusOK {
					mu.Lock()
					ok++
					mu.Unlock()
				}
			}()
		}
		wg.Wait()

		assert.Equal(t, 10, ok)
		found, _, _ := c.product(http.MethodGet, fmt.Sprintf("%s/%d", productURL, created.ID), nil)
		assert.Equal(t, int64(0), found.StockQuantity)
	})

	t.Run("probes and metrics", func(t *testing.T) {
		c := newClient(t)
		created := c.create("Metered", 5, 0)
		_, code, _ := c.product(http.MethodPost, fmt.Sprintf("%s/%d/sell?stockAmount=2", productURL, created.ID), nil)
		require.Equal(t, http.StatusOK, code)

		_, code = c.do(http.MethodGet, "/healthz", nil)
		assert.Equal(t, http.StatusOK, code)
		_, code = c.do(http.MethodGet, "/readyz", nil)
		assert.Equal(t, http.StatusOK, code)

		body, code := c.do(http.MethodGet, "/metrics", nil)
		assert.Equal(t, http.StatusOK, code)
		assert.True(t, strings.Contains(string(body), "inventory_stock_sold_units"), "sold units counter exported")
	})
}

func TestInventoryE2E_InMemory(t *testing.T) {
	runInventoryScenarios(t, func(t *testing.T) *apiClient {
		return startServer(t, store.NewInMemoryStore(), nil)
	})
}

// PostgresE2ESuite runs the same scenarios against PostgreSQL.
type PostgresE2ESuite struct {
	suite.Suite
	ctx         context.Context
	pgContainer *postgres.PostgresContainer
	dbPool      *pgxpool.Pool
}

func TestInventoryE2E_Postgres(t *testing.T) {
	if os.Getenv(skipE2ETests) == "1" {
		t.Skip("Skipping E2E tests based on " + skipE2ETests + " env var")
	}
	suite.Run(t, new(PostgresE2ESuite))
}

func (s *PostgresE2ESuite) SetupSuite() {
	s.ctx = context.Background()
	var err error
	s.pgContainer, err = postgres.Run(s.ctx,
		"postgres:17.5-alpine",
		postgres.WithDatabase("inventory"),
		postgres.WithUsername("user"),
		postgres.WithPassword("password"),
		testcontainers.WithWaitStrategy(
			wait.ForLog("database system is ready to accept connections").
				WithOccurrence(2).
				WithStartupTimeout(5*time.Minute),
		),
	)
	require.NoError(s.T(), err, "Failed to run PostgreSQL container")

	connStr, err := s.pgContainer.ConnectionString(s.ctx, "sslmode=disable")
	require.NoError(s.T(), err)
	require.NoError(s.T(), store.Migrate(connStr), "Failed to apply migrations")

	s.dbPool, err = pgxpool.New(s.ctx, connStr)
	require.NoError(s.T(), err, "Failed to create pgxpool")
}

func (s *PostgresE2ESuite) TearDownSuite() {
	if s.dbPool != nil {
		s.dbPool.Close()
	}
	if s.pgContainer != nil {
		if err := s.pgContainer.Terminate(s.ctx); err != nil {
			s.T().Logf("failed to terminate PostgreSQL container: %v", err)
		}
	}
}

func (s *PostgresE2ESuite) TestScenarios() {
	runInventoryScenarios(s.T(), func(t *testing.T) *apiClient {
		_, err := s.dbPool.Exec(s.ctx, "TRUNCATE TABLE products RESTART IDENTITY CASCADE")
		require.NoError(t, err, "Failed to truncate products table")
		return startServer(t, store.NewPgStore(s.dbPool), s.dbPool)
	})
}
