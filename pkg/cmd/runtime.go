package cmd

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/dukex/actflow/pkg/act"
	"github.com/dukex/actflow/pkg/eventbus"
	"github.com/dukex/actflow/pkg/executor"
	"github.com/dukex/actflow/pkg/generation"
	"github.com/dukex/actflow/pkg/index"
	"github.com/dukex/actflow/pkg/persistence"
	"github.com/dukex/actflow/pkg/providers/remote"
	"github.com/dukex/actflow/pkg/workspace"
	"go.opentelemetry.io/otel/trace"
)

// RuntimeConfig selects the backends a process runs with.
type RuntimeConfig struct {
	DatabaseURL    string
	EventBus       string
	KafkaBrokers   []string
	MaxConcurrency int
	ProviderURL    string
	ProviderAPIKey string
	Tracer         trace.Tracer
	Callbacks      []act.Callbacks
}

// Runtime holds the wired run engine shared by the CLI and the API server.
type Runtime struct {
	Persistence persistence.Persistence
	Workspaces  *workspace.Repository
	Generations *generation.Manager
	Acts        *act.Store
	Service     *act.Service
	EventBus    *eventbus.WatermillEventBus

	logger *slog.Logger
}

// NewRuntime opens storage and the event bus and assembles the orchestrator behind a run service.
func NewRuntime(ctx context.Context, logger *slog.Logger, cfg RuntimeConfig) (*Runtime, error) {
	store, err := NewPersistence(ctx, logger, cfg.DatabaseURL)
	if err != nil {
		return nil, err
	}

	bus, err := NewEventBus(cfg.EventBus, cfg.KafkaBrokers, logger)
	if err != nil {
		_ = store.Close(ctx)

		return nil, err
	}

	registry, err := NewActionRegistry(logger)
	if err != nil {
		_ = bus.Close()
		_ = store.Close(ctx)

		return nil, err
	}

	ix := index.New(store, logger)
	gens := generation.NewManager(store, ix, logger)
	acts := act.NewStore(store, ix, logger, nil)
	workspaces := workspace.NewRepository(store)

	execOpts := []executor.Option{executor.WithActionRunner(registry)}

	if cfg.ProviderURL != "" {
		var clientOpts []remote.Option
		if cfg.ProviderAPIKey != "" {
			clientOpts = append(clientOpts, remote.WithAPIKey(cfg.ProviderAPIKey))
		}

		client := remote.NewClient(cfg.ProviderURL, logger, clientOpts...)
		execOpts = append(execOpts,
			executor.WithTextGenerator(client),
			executor.WithImageGenerator(client),
			executor.WithQueryRunner(client),
		)
	} else {
		logger.InfoContext(ctx, "No provider gateway configured, generation and query nodes will fail")
	}

	orchOpts := []act.OrchestratorOption{
		act.WithCallbacks(append([]act.Callbacks{eventbus.Callbacks(bus, logger)}, cfg.Callbacks...)...),
	}

	if cfg.MaxConcurrency > 0 {
		orchOpts = append(orchOpts, act.WithMaxConcurrency(cfg.MaxConcurrency))
	}

	if cfg.Tracer != nil {
		execOpts = append(execOpts, executor.WithTracer(cfg.Tracer))
		orchOpts = append(orchOpts, act.WithTracer(cfg.Tracer))
	}

	dispatcher := executor.New(gens, logger, execOpts...)
	orchestrator := act.NewOrchestrator(acts, gens, dispatcher, logger, orchOpts...)

	return &Runtime{
		Persistence: store,
		Workspaces:  workspaces,
		Generations: gens,
		Acts:        acts,
		Service:     act.NewService(acts, gens, workspaces, orchestrator, logger),
		EventBus:    bus,
		logger:      logger,
	}, nil
}

// Close waits for background runs and releases the event bus and storage.
func (r *Runtime) Close(ctx context.Context) error {
	r.Service.Wait()

	var errs []error

	err := r.EventBus.Close()
	if err != nil {
		errs = append(errs, fmt.Errorf("failed to close event bus: %w", err))
	}

	err = r.Persistence.Close(ctx)
	if err != nil {
		errs = append(errs, fmt.Errorf("failed to close persistence: %w", err))
	}

	return errors.Join(errs...)
}
