package main

import (
	"context"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/dukex/actflow/pkg/act"
	"github.com/dukex/actflow/pkg/cmd"
	"github.com/dukex/actflow/pkg/metrics"
	"github.com/dukex/actflow/pkg/testutil"
	"github.com/gofiber/fiber/v3"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func setupTestApp(t *testing.T) (*fiber.App, *cmd.Runtime) {
	t.Helper()

	m := metrics.New(prometheus.NewRegistry())

	rt, err := cmd.NewRuntime(t.Context(), slog.Default(), cmd.RuntimeConfig{
		DatabaseURL: t.TempDir(),
		Callbacks:   []act.Callbacks{m.Callbacks()},
	})
	require.NoError(t, err)

	t.Cleanup(func() {
		err := rt.Close(context.Background())
		if err != nil {
			t.Logf("Failed to close runtime: %v", err)
		}
	})

	api := NewAPI(slog.Default(), rt.Persistence, rt.Service, rt.Workspaces, rt.Generations, m)

	return api.App(), rt
}

func get(t *testing.T, app *fiber.App, path string) (int, string) {
	t.Helper()

	resp, err := app.Test(httptest.NewRequest(http.MethodGet, path, nil))
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
	app, _ := setupTestApp(t)

	status, body := get(t, app, "/")
	assert.Equal(t, http.StatusOK, status)
	assert.Equal(t, "actflow API", body)
}

func TestAPI_HealthCheck(t *testing.T) {
	app, _ := setupTestApp(t)

	status, _ := get(t, app, "/livez")
	assert.Equal(t, http.StatusOK, status)

	status, body := get(t, app, "/health")
	assert.Equal(t, http.StatusOK, status)
	assert.Contains(t, body, `"healthy"`)
}

func TestAPI_MetricsAfterRun(t *testing.T) {
	app, rt := setupTestApp(t)
	ctx := t.Context()

	nodes, conns := testutil.Chain("a", "b")
	_, err := rt.Workspaces.Save(ctx, testutil.Workspace("ws-1", nodes, conns))
	require.NoError(t, err)

	created, err := rt.Service.CreateRun(ctx, act.CreateRunRequest{WorkspaceID: "ws-1", StartNodeID: "a"})
	require.NoError(t, err)

	_, err = rt.Service.RunAndWait(ctx, created.ID)
	require.NoError(t, err)

	status, body := get(t, app, "/metrics")
	require.Equal(t, http.StatusOK, status)

	for _, line := range strings.Split(body, "\n") {
		if strings.HasPrefix(line, "actflow_acts_created_total") {
			assert.Equal(t, "actflow_acts_created_total 1", line)

			return
		}
	}

	t.Fatalf("acts created counter missing from:\n%s", body)
}

func TestAPI_RunRoutes(t *testing.T) {
	app, _ := setupTestApp(t)

	status, _ := get(t, app, "/runs/act-missing")
	assert.Equal(t, http.StatusNotFound, status)

	status, body := get(t, app, "/workspaces/ws-1/runs")
	assert.Equal(t, http.StatusOK, status)
	assert.Contains(t, body, `"total":0`)
}
