package main

import (
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/dukex/stockflow/pkg/channels/kafka"
	"github.com/dukex/stockflow/pkg/cmd"
	"github.com/dukex/stockflow/pkg/config"
	"github.com/dukex/stockflow/pkg/metrics"
	"github.com/dukex/stockflow/pkg/persistence/memory"
	"github.com/gofiber/fiber/v3"
	"github.com/jonboulle/clockwork"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func setupTestApp(t *testing.T) *fiber.App {
	t.Helper()

	bus, err := cmd.NewEventBus("gochannel", kafka.Config{}, slog.Default())
	require.NoError(t, err)
	t.Cleanup(func() { _ = bus.Close() })

	clock := clockwork.NewFakeClock()
	registry := prometheus.NewRegistry()

	engine := cmd.NewEngine(cmd.EngineConfig{
		Persistence: memory.NewPersistence(),
		EventBus:    bus,
		Governance:  config.Default(),
		Clock:       clock,
		Metrics:     metrics.NewRecorder(registry),
		Logger:      slog.Default(),
	})
	t.Cleanup(engine.Stop)

	return NewAPI(slog.Default(), engine, clock, registry).App()
}

func get(t *testing.T, app *fiber.App, path string) (int, string) {
	t.Helper()

	req := httptest.NewRequest(http.MethodGet, path, nil)
	resp, err := app.Test(req)
	require.NoError(t, err)

	defer func() {
		err := resp.Body.Close()
		if err != nil {
			t.Logf("Failed to close response body: %v", err)
		}
	}()

	body, err := io.ReadAll(resp.Body)
	require.NoError(t, err)

	return resp.StatusCode, string(body)
}

func TestAPI_RootEndpoint(t *testing.T) {
	app := setupTestApp(t)

	status, body := get(t, app, "/")
	assert.Equal(t, http.StatusOK, status)
	assert.Equal(t, "Stockflow API", body)
}

func TestAPI_Liveness(t *testing.T) {
	app := setupTestApp(t)

	status, body := get(t, app, "/livez")
	assert.Equal(t, http.StatusOK, status)
	assert.Equal(t, "OK", body)
}

func post(t *testing.T, app *fiber.App, path, body string) int {
	t.Helper()

	req := httptest.NewRequest(http.MethodPost, path, strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json")

	resp, err := app.Test(req)
	require.NoError(t, err)
	require.NoError(t, resp.Body.Close())

	return resp.StatusCode
}

func TestAPI_PrometheusMetrics(t *testing.T) {
	app := setupTestApp(t)

	require.Equal(t, http.StatusCreated, post(t, app, "/chains", `{
		"id": "cycle-count",
		"name": "Cycle Count",
		"steps": [{"id": "count", "name": "Count", "type": "approval", "approvers": [{"type": "user", "value": "maria"}]}]
	}`))

	require.Equal(t, http.StatusCreated, post(t, app, "/instances", `{
		"chain_id": "cycle-count",
		"entity_id": "bin-12",
		"entity_type": "bin",
		"initiated_by": "joao"
	}`))

	status, body := get(t, app, "/metrics")
	assert.Equal(t, http.StatusOK, status)
	assert.Contains(t, body, `stockflow_instances_started_total{chain_id="cycle-count"} 1`)
	assert.Contains(t, body, `stockflow_instances_active{chain_id="cycle-count"} 1`)
}

func TestAPI_Health(t *testing.T) {
	app := setupTestApp(t)

	status, body := get(t, app, "/health")
	assert.Equal(t, http.StatusOK, status)
	assert.Contains(t, body, `"healthy"`)
}
