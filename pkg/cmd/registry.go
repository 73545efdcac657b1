// Package cmd provides common initialization functions for command-line applications.
package cmd

import (
	"fmt"
	"log/slog"

	"github.com/dukex/actflow/pkg/actions"
	"github.com/dukex/actflow/pkg/actions/httprequest"
	logaction "github.com/dukex/actflow/pkg/actions/log"
)

func registerNativeActions(reg *actions.Registry) error {
	err := reg.Register(httprequest.NewActionFactory())
	if err != nil {
		return err
	}

	return reg.Register(logaction.NewActionFactory())
}

// NewActionRegistry returns a registry holding the built-in action providers.
func NewActionRegistry(log *slog.Logger) (*actions.Registry, error) {
	reg := actions.NewRegistry(log)

	err := registerNativeActions(reg)
	if err != nil {
		return nil, fmt.Errorf("failed to register native actions: %w", err)
	}

	return reg, nil
}
