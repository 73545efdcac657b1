package web_test

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"os"
	"testing"
	"time"

	"github.com/dukex/actflow/pkg/act"
	"github.com/dukex/actflow/pkg/actions"
	logaction "github.com/dukex/actflow/pkg/actions/log"
	"github.com/dukex/actflow/pkg/executor"
	"github.com/dukex/actflow/pkg/generation"
	"github.com/dukex/actflow/pkg/index"
	"github.com/dukex/actflow/pkg/models"
	"github.com/dukex/actflow/pkg/persistence/memory"
	"github.com/dukex/actflow/pkg/testutil"
	"github.com/dukex/actflow/pkg/web"
	"github.com/dukex/actflow/pkg/workspace"
	"github.com/go-playground/validator/v10"
	"github.com/gofiber/fiber/v3"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type failingHealth struct{}

func (failingHealth) HealthCheck(context.Context) error { return errors.New("connection refused") }

type testServer struct {
	app     *fiber.App
	service *act.Service
}

func setupTestApp(t *testing.T, health web.HealthChecker) *testServer {
	t.Helper()

	logger := slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{Level: slog.LevelError}))
	store := memory.NewPersistence()
	ix := index.New(store, logger)
	gens := generation.NewManager(store, ix, logger)
	acts := act.NewStore(store, ix, logger, nil)
	workspaces := workspace.NewRepository(store)

	registry := actions.NewRegistry(logger)
	require.NoError(t, registry.Register(logaction.NewActionFactory()))

	dispatcher := executor.New(gens, logger, executor.WithActionRunner(registry))
	orchestrator := act.NewOrchestrator(acts, gens, dispatcher, logger)
	service := act.NewService(acts, gens, workspaces, orchestrator, logger)
	t.Cleanup(service.Wait)

	if health == nil {
		health = store
	}

	handlers := web.NewAPIHandlers(service, workspaces, gens, health, validator.New(validator.WithRequiredStructEnabled()))

	app := fiber.New()
	handlers.Register(app)

	return &testServer{app: app, service: service}
}

func (s *testServer) do(t *testing.T, method, path string, body any) (int, []byte) {
	t.Helper()

	var reader io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		require.NoError(t, err)

		reader = bytes.NewReader(data)
	}

	req := httptest.NewRequest(method, path, reader)
	req.Header.Set("Content-Type", "application/json")

	resp, err := s.app.Test(req)
	require.NoError(t, err)

	defer func() { _ = resp.Body.Close() }()

	data, err := io.ReadAll(resp.Body)
	require.NoError(t, err)

	return resp.StatusCode, data
}

func decode[T any](t *testing.T, data []byte) T {
	t.Helper()

	var v T
	require.NoError(t, json.Unmarshal(data, &v), string(data))

	return v
}

func saveChain(t *testing.T, s *testServer) {
	t.Helper()

	nodes := []models.Node{
		testutil.TextNode("topic", "generics"),
		testutil.ActionNode("first", testutil.WithContent(models.ActionContent{
			Provider: "log", ActionID: "write",
			Parameters: map[string]string{"message": "topic is {{ topic:text }}"},
		})),
		testutil.ActionNode("second"),
		testutil.TextNode("note", "unconnected"),
	}
	conns := []models.Connection{
		testutil.ConnectPorts("topic", "text", "first", "in"),
		testutil.Connect("first", "second"),
	}

	status, body := s.do(t, http.MethodPut, "/workspaces/ws-1", web.SaveWorkspaceRequest{
		Name: "chain", Nodes: nodes, Connections: conns,
	})
	require.Equal(t, http.StatusOK, status, string(body))
}

func waitForStatus(t *testing.T, s *testServer, id string, want models.ActStatus) models.Act {
	t.Helper()

	var run models.Act

	require.Eventually(t, func() bool {
		status, body := s.do(t, http.MethodGet, "/runs/"+id, nil)
		if status != http.StatusOK {
			return false
		}

		run = decode[models.Act](t, body)

		return run.Status == want
	}, 2*time.Second, 10*time.Millisecond)

	return run
}

func TestAPIHandlers_Workspace(t *testing.T) {
	t.Parallel()

	s := setupTestApp(t, nil)
	saveChain(t, s)

	status, body := s.do(t, http.MethodGet, "/workspaces/ws-1", nil)
	require.Equal(t, http.StatusOK, status)

	ws := decode[models.Workspace](t, body)
	assert.Equal(t, "ws-1", ws.ID)
	assert.Len(t, ws.Nodes, 4)
	assert.Equal(t, models.ContentTypeAction, ws.Nodes[1].ContentType())

	status, _ = s.do(t, http.MethodGet, "/workspaces/missing", nil)
	assert.Equal(t, http.StatusNotFound, status)

	dup := []models.Node{testutil.ActionNode("a"), testutil.ActionNode("a")}
	status, body = s.do(t, http.MethodPut, "/workspaces/ws-2", web.SaveWorkspaceRequest{Nodes: dup})
	assert.Equal(t, http.StatusBadRequest, status, string(body))
}

func TestAPIHandlers_CreateRun(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name           string
		path           string
		body           any
		expectedStatus int
		expectedType   string
	}{
		{
			name:           "created without starting",
			path:           "/workspaces/ws-1/runs",
			body:           web.CreateRunRequest{StartNodeID: "first", Parameters: map[string]any{"lang": "go"}},
			expectedStatus: http.StatusCreated,
		},
		{
			name:           "missing start node id",
			path:           "/workspaces/ws-1/runs",
			body:           web.CreateRunRequest{},
			expectedStatus: http.StatusBadRequest,
			expectedType:   "validation_error",
		},
		{
			name:           "unknown start node",
			path:           "/workspaces/ws-1/runs",
			body:           web.CreateRunRequest{StartNodeID: "nope"},
			expectedStatus: http.StatusNotFound,
			expectedType:   "node_not_found",
		},
		{
			name:           "isolated variable node has nothing to run",
			path:           "/workspaces/ws-1/runs",
			body:           web.CreateRunRequest{StartNodeID: "note"},
			expectedStatus: http.StatusUnprocessableEntity,
			expectedType:   "invalid_workflow",
		},
		{
			name:           "unknown workspace",
			path:           "/workspaces/missing/runs",
			body:           web.CreateRunRequest{StartNodeID: "first"},
			expectedStatus: http.StatusNotFound,
			expectedType:   "workspace_not_found",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			s := setupTestApp(t, nil)
			saveChain(t, s)

			status, body := s.do(t, http.MethodPost, tt.path, tt.body)
			require.Equal(t, tt.expectedStatus, status, string(body))

			if tt.expectedType != "" {
				problem := decode[map[string]any](t, body)
				assert.Equal(t, tt.expectedType, problem["type"])

				return
			}

			run := decode[models.Act](t, body)
			assert.Equal(t, models.ActStatusInProgress, run.Status)
			assert.Equal(t, web.TriggerTypeAPI, run.Trigger.Type)
			assert.Equal(t, models.StepCounters{Queued: 2}, run.Steps)
			require.Len(t, run.Inputs, 1)
		})
	}
}

func TestAPIHandlers_RunLifecycle(t *testing.T) {
	t.Parallel()

	s := setupTestApp(t, nil)
	saveChain(t, s)

	status, body := s.do(t, http.MethodPost, "/workspaces/ws-1/runs", web.CreateRunRequest{StartNodeID: "first", Start: true})
	require.Equal(t, http.StatusCreated, status, string(body))

	created := decode[models.Act](t, body)
	done := waitForStatus(t, s, created.ID, models.ActStatusCompleted)
	assert.Equal(t, 2, done.Steps.Completed)

	genID := done.Sequences[0].Steps[0].GenerationID

	status, body = s.do(t, http.MethodGet, "/generations/"+genID, nil)
	require.Equal(t, http.StatusOK, status)

	gen := decode[models.Generation](t, body)
	out, ok := gen.Output("out")
	require.True(t, ok)
	assert.Equal(t, "topic is generics", out.Content)

	status, _ = s.do(t, http.MethodPost, "/runs/"+created.ID+"/start", nil)
	assert.Equal(t, http.StatusConflict, status)

	status, body = s.do(t, http.MethodPost, "/runs/"+created.ID+"/retry", web.RetryRunRequest{FromNodeID: "second", Start: true})
	require.Equal(t, http.StatusCreated, status, string(body))

	retried := decode[models.Act](t, body)
	assert.Equal(t, act.TriggerTypeRetry, retried.Trigger.Type)
	assert.Equal(t, created.ID, retried.Trigger.ID)

	retried = waitForStatus(t, s, retried.ID, models.ActStatusCompleted)
	assert.Equal(t, models.StepCounters{Completed: 1}, retried.Steps)

	status, body = s.do(t, http.MethodGet, "/workspaces/ws-1/runs", nil)
	require.Equal(t, http.StatusOK, status)

	list := decode[web.ListRunsResponse](t, body)
	assert.Equal(t, 2, list.Total)
}

func TestAPIHandlers_StartAndCancel(t *testing.T) {
	t.Parallel()

	s := setupTestApp(t, nil)
	saveChain(t, s)

	status, body := s.do(t, http.MethodPost, "/workspaces/ws-1/runs", web.CreateRunRequest{StartNodeID: "first"})
	require.Equal(t, http.StatusCreated, status)

	pending := decode[models.Act](t, body)

	status, body = s.do(t, http.MethodPost, "/runs/"+pending.ID+"/cancel", nil)
	require.Equal(t, http.StatusOK, status, string(body))

	cancelled := decode[models.Act](t, body)
	assert.Equal(t, models.ActStatusCancelled, cancelled.Status)
	assert.Equal(t, models.StepCounters{Cancelled: 2}, cancelled.Steps)

	status, _ = s.do(t, http.MethodPost, "/runs/"+pending.ID+"/start", nil)
	assert.Equal(t, http.StatusConflict, status)

	status, body = s.do(t, http.MethodPost, "/workspaces/ws-1/runs", web.CreateRunRequest{StartNodeID: "first"})
	require.Equal(t, http.StatusCreated, status)

	next := decode[models.Act](t, body)

	status, body = s.do(t, http.MethodPost, "/runs/"+next.ID+"/start", nil)
	require.Equal(t, http.StatusAccepted, status)
	assert.Equal(t, next.ID, decode[web.StartRunResponse](t, body).ID)

	waitForStatus(t, s, next.ID, models.ActStatusCompleted)
}

func TestAPIHandlers_NotFound(t *testing.T) {
	t.Parallel()

	s := setupTestApp(t, nil)

	paths := []struct {
		method string
		path   string
		body   any
	}{
		{http.MethodGet, "/runs/act-missing", nil},
		{http.MethodPost, "/runs/act-missing/start", nil},
		{http.MethodPost, "/runs/act-missing/cancel", nil},
		{http.MethodPost, "/runs/act-missing/retry", web.RetryRunRequest{FromNodeID: "a"}},
		{http.MethodGet, "/generations/gen-missing", nil},
	}

	for _, p := range paths {
		status, body := s.do(t, p.method, p.path, p.body)
		assert.Equal(t, http.StatusNotFound, status, "%s %s: %s", p.method, p.path, body)
	}

	status, _ := s.do(t, http.MethodPost, "/runs/act-missing/retry", map[string]any{})
	assert.Equal(t, http.StatusBadRequest, status)
}

func TestAPIHandlers_HealthCheck(t *testing.T) {
	t.Parallel()

	status, body := setupTestApp(t, nil).do(t, http.MethodGet, "/health", nil)
	assert.Equal(t, http.StatusOK, status)
	assert.Equal(t, "healthy", decode[map[string]any](t, body)["status"])

	status, body = setupTestApp(t, failingHealth{}).do(t, http.MethodGet, "/health", nil)
	assert.Equal(t, http.StatusServiceUnavailable, status)
	assert.Equal(t, "unhealthy", decode[map[string]any](t, body)["status"])
}
