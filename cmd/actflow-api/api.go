// Package main provides the actflow run API server.
package main

import (
	"log/slog"
	"strconv"

	"github.com/dukex/actflow/pkg/metrics"
	"github.com/dukex/actflow/pkg/persistence"
	"github.com/dukex/actflow/pkg/web"
	"github.com/go-playground/validator/v10"
	"github.com/gofiber/fiber/v3"
	"github.com/gofiber/fiber/v3/middleware/adaptor"
	"github.com/gofiber/fiber/v3/middleware/cors"
	"github.com/gofiber/fiber/v3/middleware/healthcheck"
	"github.com/gofiber/fiber/v3/middleware/logger"
)

type API struct {
	logger      *slog.Logger
	persistence persistence.Persistence
	runs        web.RunService
	workspaces  web.WorkspaceStore
	generations web.GenerationReader
	metrics     *metrics.Metrics
	validate    *validator.Validate
}

func NewAPI(
	logger *slog.Logger,
	persistence persistence.Persistence,
	runs web.RunService,
	workspaces web.WorkspaceStore,
	generations web.GenerationReader,
	metrics *metrics.Metrics,
) *API {
	return &API{
		logger:      logger,
		persistence: persistence,
		runs:        runs,
		workspaces:  workspaces,
		generations: generations,
		metrics:     metrics,
		validate:    validator.New(validator.WithRequiredStructEnabled()),
	}
}

func (a *API) App() *fiber.App {
	handlers := web.NewAPIHandlers(a.runs, a.workspaces, a.generations, a.persistence, a.validate)

	app := fiber.New()
	app.Use(cors.New())
	app.Use(logger.New(logger.Config{
		DisableColors: true,
	}))

	app.Get(healthcheck.DefaultLivenessEndpoint, healthcheck.NewHealthChecker())
	app.Get(healthcheck.DefaultReadinessEndpoint, healthcheck.NewHealthChecker())

	app.Get("/", func(c fiber.Ctx) error {
		return c.SendString("actflow API")
	})

	if a.metrics != nil {
		app.Get("/metrics", adaptor.HTTPHandler(a.metrics.Handler()))
	}

	handlers.Register(app)

	return app
}

func (a *API) Start(port int) error {
	app := a.App()

	a.logger.Info("Starting API server", "port", port)

	return app.Listen(":" + strconv.Itoa(port))
}
