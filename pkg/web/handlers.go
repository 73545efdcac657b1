package web

import (
	"context"
	"maps"
	"net/http"
	"slices"
	"time"

	"github.com/dukex/actflow/pkg/act"
	"github.com/dukex/actflow/pkg/models"
	"github.com/go-playground/validator/v10"
	"github.com/gofiber/fiber/v3"
)

// TriggerTypeAPI marks runs created through the HTTP API.
const TriggerTypeAPI = "api"

// RunService is the subset of act.Service the handlers drive.
type RunService interface {
	CreateRun(ctx context.Context, req act.CreateRunRequest) (models.Act, error)
	StartRun(ctx context.Context, actID string) error
	GetRun(ctx context.Context, actID string) (models.Act, error)
	ListRuns(ctx context.Context, workspaceID string) ([]models.Act, error)
	CancelRun(ctx context.Context, actID string) (models.Act, error)
	RetryRun(ctx context.Context, actID, fromNodeID string) (models.Act, error)
}

type WorkspaceStore interface {
	Get(ctx context.Context, id string) (models.Workspace, error)
	Save(ctx context.Context, ws models.Workspace) (models.Workspace, error)
}

type GenerationReader interface {
	Get(ctx context.Context, id string) (models.Generation, error)
}

// HealthChecker reports whether the storage backend is reachable.
type HealthChecker interface {
	HealthCheck(ctx context.Context) error
}

type APIHandlers struct {
	runs        RunService
	workspaces  WorkspaceStore
	generations GenerationReader
	health      HealthChecker
	validator   *validator.Validate
}

func NewAPIHandlers(
	runs RunService,
	workspaces WorkspaceStore,
	generations GenerationReader,
	health HealthChecker,
	validator *validator.Validate,
) *APIHandlers {
	return &APIHandlers{
		runs:        runs,
		workspaces:  workspaces,
		generations: generations,
		health:      health,
		validator:   validator,
	}
}

// Register mounts every route on r.
func (h *APIHandlers) Register(r fiber.Router) {
	ws := r.Group("/workspaces/:workspaceId")
	ws.Put("/", h.SaveWorkspace)
	ws.Get("/", h.GetWorkspace)
	ws.Post("/runs", h.CreateRun)
	ws.Get("/runs", h.ListRuns)

	runs := r.Group("/runs/:id")
	runs.Get("/", h.GetRun)
	runs.Post("/start", h.StartRun)
	runs.Post("/cancel", h.CancelRun)
	runs.Post("/retry", h.RetryRun)

	r.Get("/generations/:id", h.GetGeneration)
	r.Get("/health", h.HealthCheck)
}

func (h *APIHandlers) SaveWorkspace(c fiber.Ctx) error {
	var req SaveWorkspaceRequest
	if err := c.Bind().JSON(&req); err != nil {
		return badRequest(c, "Invalid JSON format")
	}

	saved, err := h.workspaces.Save(c.Context(), models.Workspace{
		ID:          c.Params("workspaceId"),
		Name:        req.Name,
		Nodes:       req.Nodes,
		Connections: req.Connections,
	})
	if err != nil {
		return handleError(c, err)
	}

	return c.JSON(saved)
}

func (h *APIHandlers) GetWorkspace(c fiber.Ctx) error {
	ws, err := h.workspaces.Get(c.Context(), c.Params("workspaceId"))
	if err != nil {
		return handleError(c, err)
	}

	return c.JSON(ws)
}

func (h *APIHandlers) CreateRun(c fiber.Ctx) error {
	var req CreateRunRequest
	if err := c.Bind().JSON(&req); err != nil {
		return badRequest(c, "Invalid JSON format")
	}

	if err := h.validator.Struct(req); err != nil {
		return badRequest(c, err.Error())
	}

	created, err := h.runs.CreateRun(c.Context(), act.CreateRunRequest{
		WorkspaceID: c.Params("workspaceId"),
		StartNodeID: req.StartNodeID,
		Name:        req.Name,
		Inputs:      requestInputs(req),
		Trigger:     models.Trigger{Type: TriggerTypeAPI},
	})
	if err != nil {
		return handleError(c, err)
	}

	if req.Start {
		err = h.runs.StartRun(c.Context(), created.ID)
		if err != nil {
			return handleError(c, err)
		}
	}

	return c.Status(fiber.StatusCreated).JSON(created)
}

func (h *APIHandlers) ListRuns(c fiber.Ctx) error {
	runs, err := h.runs.ListRuns(c.Context(), c.Params("workspaceId"))
	if err != nil {
		return handleError(c, err)
	}

	if runs == nil {
		runs = []models.Act{}
	}

	return c.JSON(ListRunsResponse{Runs: runs, Total: len(runs)})
}

func (h *APIHandlers) GetRun(c fiber.Ctx) error {
	run, err := h.runs.GetRun(c.Context(), c.Params("id"))
	if err != nil {
		return handleError(c, err)
	}

	return c.JSON(run)
}

func (h *APIHandlers) StartRun(c fiber.Ctx) error {
	id := c.Params("id")

	err := h.runs.StartRun(c.Context(), id)
	if err != nil {
		return handleError(c, err)
	}

	return c.Status(fiber.StatusAccepted).JSON(StartRunResponse{ID: id, Status: models.ActStatusInProgress})
}

func (h *APIHandlers) CancelRun(c fiber.Ctx) error {
	run, err := h.runs.CancelRun(c.Context(), c.Params("id"))
	if err != nil {
		return handleError(c, err)
	}

	return c.JSON(run)
}

func (h *APIHandlers) RetryRun(c fiber.Ctx) error {
	var req RetryRunRequest
	if err := c.Bind().JSON(&req); err != nil {
		return badRequest(c, "Invalid JSON format")
	}

	if err := h.validator.Struct(req); err != nil {
		return badRequest(c, err.Error())
	}

	run, err := h.runs.RetryRun(c.Context(), c.Params("id"), req.FromNodeID)
	if err != nil {
		return handleError(c, err)
	}

	if req.Start {
		err = h.runs.StartRun(c.Context(), run.ID)
		if err != nil {
			return handleError(c, err)
		}
	}

	return c.Status(fiber.StatusCreated).JSON(run)
}

func (h *APIHandlers) GetGeneration(c fiber.Ctx) error {
	gen, err := h.generations.Get(c.Context(), c.Params("id"))
	if err != nil {
		return handleError(c, err)
	}

	return c.JSON(gen)
}

func (h *APIHandlers) HealthCheck(c fiber.Ctx) error {
	status := "healthy"
	httpStatus := http.StatusOK
	check := "ok"

	err := h.health.HealthCheck(c.Context())
	if err != nil {
		status = "unhealthy"
		httpStatus = http.StatusServiceUnavailable
		check = err.Error()
	}

	return c.Status(httpStatus).JSON(fiber.Map{
		"status": status,
		"checkers": fiber.Map{
			"persistence": check,
		},
		"timestamp": time.Now().UTC(),
	})
}

func requestInputs(req CreateRunRequest) models.Inputs {
	var inputs models.Inputs

	if len(req.Parameters) > 0 {
		items := make([]models.Parameter, 0, len(req.Parameters))
		for _, name := range slices.Sorted(maps.Keys(req.Parameters)) {
			items = append(items, models.Parameter{Name: name, Value: req.Parameters[name]})
		}

		inputs = append(inputs, models.ParametersInput{Items: items})
	}

	if req.Webhook != nil {
		inputs = append(inputs, models.WebhookEventInput{
			Provider: req.Webhook.Provider,
			Event:    req.Webhook.Event,
			Payload:  req.Webhook.Payload,
		})
	}

	return inputs
}
