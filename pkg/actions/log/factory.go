// Package log provides the log action provider.
package log

import (
	"context"
	"fmt"

	"github.com/dukex/actflow/pkg/protocol"
)

// ActionFactory is the factory for creating LogAction instances.
type ActionFactory struct{}

// NewActionFactory creates a new instance of ActionFactory.
func NewActionFactory() *ActionFactory {
	return &ActionFactory{}
}

// ID returns the unique identifier for the action factory.
func (*ActionFactory) ID() string {
	return "log"
}

// Name returns the name of the action factory.
func (*ActionFactory) Name() string {
	return "Log"
}

// Description returns a brief description of the action.
func (*ActionFactory) Description() string {
	return "Logs a message at a specified level. Supports {{nodeId:outputId}} references."
}

// Create creates a new LogAction instance with the provided parameters.
func (f *ActionFactory) Create(_ context.Context, actionID string, params map[string]string) (protocol.Action, error) {
	if actionID != "" && actionID != ActionIDWrite {
		return nil, fmt.Errorf("%w: %q", ErrUnsupportedAction, actionID)
	}

	return NewLogAction(params), nil
}

// Schema returns the JSON schema for the action parameters.
func (f *ActionFactory) Schema() map[string]any {
	return map[string]any{
		"type": "object",
		"properties": map[string]any{
			"message": map[string]any{
				"type":        "string",
				"description": "The message to log.",
				"examples": []string{
					"Step completed successfully",
					"Summary: {{summarize:text}}",
				},
			},
			"level": map[string]any{
				"type":        "string",
				"description": "Log level for the message",
				"default":     "info",
				"enum":        []string{"debug", "info", "warn", "warning", "error"},
			},
		},
	}
}
