package web

import (
	"errors"

	"github.com/dukex/actflow/pkg/act"
	"github.com/dukex/actflow/pkg/generation"
	"github.com/dukex/actflow/pkg/workflow"
	"github.com/dukex/actflow/pkg/workspace"
	"github.com/go-playground/validator/v10"
	"github.com/gofiber/fiber/v3"
	"github.com/moogar0880/problems"
)

func problem(c fiber.Ctx, status int, kind, detail string) error {
	p := problems.NewStatusProblem(status).
		WithInstance(c.Path()).
		WithType(kind).
		WithDetail(detail)

	return c.Status(status).JSON(p)
}

func badRequest(c fiber.Ctx, detail string) error {
	return problem(c, fiber.StatusBadRequest, "validation_error", detail)
}

func internalError(c fiber.Ctx, err error) error {
	p := problems.NewStatusProblem(fiber.StatusInternalServerError).
		WithInstance(c.Path()).
		WithType("internal_error").
		WithError(err)

	return c.Status(fiber.StatusInternalServerError).JSON(p)
}

// handleError maps domain errors onto problem responses.
func handleError(c fiber.Ctx, err error) error {
	var validationErrs validator.ValidationErrors

	switch {
	case workspace.IsNotFound(err):
		return problem(c, fiber.StatusNotFound, "workspace_not_found", err.Error())
	case act.IsNotFound(err):
		return problem(c, fiber.StatusNotFound, "run_not_found", err.Error())
	case generation.IsNotFound(err):
		return problem(c, fiber.StatusNotFound, "generation_not_found", err.Error())
	case errors.Is(err, workflow.ErrStartNodeNotFound):
		return problem(c, fiber.StatusNotFound, "node_not_found", err.Error())

	case errors.Is(err, workflow.ErrCycle), errors.Is(err, workflow.ErrNoOperationNodes):
		return problem(c, fiber.StatusUnprocessableEntity, "invalid_workflow", err.Error())

	case errors.Is(err, workspace.ErrInvalidWorkspace), errors.As(err, &validationErrs):
		return badRequest(c, err.Error())

	case errors.Is(err, act.ErrActFinished), errors.Is(err, act.ErrActRunning):
		return problem(c, fiber.StatusConflict, "conflict", err.Error())
	case errors.Is(err, act.ErrRetryUnavailable):
		return problem(c, fiber.StatusConflict, "retry_unavailable", err.Error())

	default:
		return internalError(c, err)
	}
}
