// Package protocol defines the contracts for pluggable action providers.
package protocol

import (
	"context"
	"log/slog"

	"github.com/dukex/actflow/pkg/executor"
)

// Action is one configured invocation. Inputs holds connected port values keyed by port id.
type Action interface {
	Execute(ctx context.Context, inputs map[string]string, logger *slog.Logger) (executor.ActionResult, error)
}

// ActionFactory creates actions of a single provider and describes its parameters.
type ActionFactory interface {
	// ID is the provider name referenced by action nodes.
	ID() string

	Name() string

	Description() string

	// Schema returns the JSON schema for the action parameters.
	Schema() map[string]any

	Create(ctx context.Context, actionID string, params map[string]string) (Action, error)
}
