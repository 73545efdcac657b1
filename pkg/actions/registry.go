// Package actions holds the built-in action providers and the registry that dispatches to them.
package actions

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"strings"
	"sync"

	"github.com/dukex/actflow/pkg/executor"
	"github.com/dukex/actflow/pkg/protocol"
	"github.com/xeipuuv/gojsonschema"
)

var (
	// ErrProviderNotRegistered is returned for an unknown action provider.
	ErrProviderNotRegistered = errors.New("action provider not registered")

	// ErrUnknownAction is returned when a provider does not offer the requested action.
	ErrUnknownAction = errors.New("unknown action")

	// ErrInvalidParameters is returned when parameters do not match the provider schema.
	ErrInvalidParameters = errors.New("invalid action parameters")
)

// Registry maps provider ids to factories and satisfies executor.ActionRunner.
type Registry struct {
	logger    *slog.Logger
	mu        sync.RWMutex
	factories map[string]protocol.ActionFactory
	schemas   map[string]*gojsonschema.Schema
}

func NewRegistry(logger *slog.Logger) *Registry {
	return &Registry{
		logger:    logger.With("module", "action_registry"),
		factories: make(map[string]protocol.ActionFactory),
		schemas:   make(map[string]*gojsonschema.Schema),
	}
}

// Register adds a factory, replacing any previous one with the same id.
func (r *Registry) Register(factory protocol.ActionFactory) error {
	schema, err := gojsonschema.NewSchema(gojsonschema.NewGoLoader(factory.Schema()))
	if err != nil {
		return fmt.Errorf("invalid schema for action provider %s: %w", factory.ID(), err)
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	r.factories[factory.ID()] = factory
	r.schemas[factory.ID()] = schema

	return nil
}

// Providers lists registered provider ids in sorted order.
func (r *Registry) Providers() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()

	ids := make([]string, 0, len(r.factories))
	for id := range r.factories {
		ids = append(ids, id)
	}

	sort.Strings(ids)

	return ids
}

// RunAction validates the parameters, builds the action and executes it.
func (r *Registry) RunAction(ctx context.Context, req executor.ActionRequest) (executor.ActionResult, error) {
	r.mu.RLock()
	factory, ok := r.factories[req.Provider]
	schema := r.schemas[req.Provider]
	r.mu.RUnlock()

	if !ok {
		return executor.ActionResult{}, fmt.Errorf("%w: %q", ErrProviderNotRegistered, req.Provider)
	}

	err := validate(schema, req.Parameters)
	if err != nil {
		return executor.ActionResult{}, err
	}

	action, err := factory.Create(ctx, req.ActionID, req.Parameters)
	if err != nil {
		return executor.ActionResult{}, err
	}

	logger := r.logger.With("provider", req.Provider, "action_id", req.ActionID, "generation_id", req.GenerationID)

	return action.Execute(ctx, req.Inputs, logger)
}

func validate(schema *gojsonschema.Schema, params map[string]string) error {
	doc := make(map[string]any, len(params))
	for k, v := range params {
		doc[k] = v
	}

	result, err := schema.Validate(gojsonschema.NewGoLoader(doc))
	if err != nil {
		return fmt.Errorf("failed to validate action parameters: %w", err)
	}

	if result.Valid() {
		return nil
	}

	msgs := make([]string, 0, len(result.Errors()))
	for _, e := range result.Errors() {
		msgs = append(msgs, e.String())
	}

	return fmt.Errorf("%w: %s", ErrInvalidParameters, strings.Join(msgs, "; "))
}
